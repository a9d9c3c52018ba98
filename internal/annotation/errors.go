package annotation

import (
	"errors"
	"fmt"
)

// ErrSamplingRateMismatch is returned when an input's sampling rate differs
// from the rate the codec was configured with.
var ErrSamplingRateMismatch = errors.New("sampling rate mismatch")

// RateMismatchError reports the configured and observed rates
type RateMismatchError struct {
	Expected float64
	Actual   float64
}

func (e *RateMismatchError) Error() string {
	return fmt.Sprintf("sampling frequency is %gHz, expected %gHz", e.Actual, e.Expected)
}

func (e *RateMismatchError) Unwrap() error {
	return ErrSamplingRateMismatch
}
