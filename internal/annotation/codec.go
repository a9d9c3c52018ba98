package annotation

import (
	"math"

	"go.uber.org/zap"
)

// Codec decodes and encodes annotations for recordings sampled at one fixed rate
type Codec struct {
	rate   float64
	logger *zap.SugaredLogger
}

// NewCodec creates a codec that accepts only recordings sampled at rate Hz.
// A nil logger is replaced with a no-op logger.
func NewCodec(rate float64, logger *zap.SugaredLogger) *Codec {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Codec{
		rate:   rate,
		logger: logger,
	}
}

// SamplingRate returns the configured rate
func (c *Codec) SamplingRate() float64 {
	return c.rate
}

func (c *Codec) checkRate(rate float64) error {
	if rate != c.rate {
		return &RateMismatchError{Expected: c.rate, Actual: rate}
	}
	return nil
}

// sampleIndex converts a time in seconds to the nearest sample index
func sampleIndex(seconds, rate float64) int {
	return int(math.Round(seconds * rate))
}

// sampleTime converts a sample index to seconds
func sampleTime(index int, rate float64) float64 {
	return float64(index) / rate
}
