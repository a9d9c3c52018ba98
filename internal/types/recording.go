package types

import "fmt"

// ChannelCount is the number of amplitude channels carried by every sample
const ChannelCount = 3

// Sample is one sampling instant: three channel amplitudes and a class label
type Sample struct {
	Channels [ChannelCount]float64
	Label    Class
}

// Recording is a fixed-length sample sequence at a single sampling rate.
// The sample slice is owned by the Recording; its length never changes.
type Recording struct {
	rate    float64
	samples []Sample
}

// NewRecording wraps samples recorded at rate. The slice is not copied.
func NewRecording(rate float64, samples []Sample) *Recording {
	return &Recording{rate: rate, samples: samples}
}

// NewRecordingFromChannels builds a recording from per-channel slices of
// equal length. Labels start out as None.
func NewRecordingFromChannels(rate float64, channels [ChannelCount][]float64) (*Recording, error) {
	n := len(channels[0])
	for c := 1; c < ChannelCount; c++ {
		if len(channels[c]) != n {
			return nil, fmt.Errorf("channel %d has %d samples, expected %d", c, len(channels[c]), n)
		}
	}

	samples := make([]Sample, n)
	for i := range samples {
		for c := 0; c < ChannelCount; c++ {
			samples[i].Channels[c] = channels[c][i]
		}
	}
	return NewRecording(rate, samples), nil
}

// Len returns the number of samples
func (r *Recording) Len() int {
	return len(r.samples)
}

// SamplingRate returns the rate in Hz
func (r *Recording) SamplingRate() float64 {
	return r.rate
}

// Duration returns the record length in seconds
func (r *Recording) Duration() float64 {
	if r.rate == 0 {
		return 0
	}
	return float64(len(r.samples)) / r.rate
}

// Sample returns the i-th sample
func (r *Recording) Sample(i int) Sample {
	return r.samples[i]
}

// Labels returns a copy of the per-sample labels
func (r *Recording) Labels() []Class {
	labels := make([]Class, len(r.samples))
	for i, s := range r.samples {
		labels[i] = s.Label
	}
	return labels
}

// Channel returns a copy of one channel's amplitudes
func (r *Recording) Channel(c int) []float64 {
	values := make([]float64, len(r.samples))
	for i, s := range r.samples {
		values[i] = s.Channels[c]
	}
	return values
}

// WithLabels returns a new Recording sharing r's amplitudes with labels
// replaced. len(labels) must equal r.Len().
func (r *Recording) WithLabels(labels []Class) (*Recording, error) {
	if len(labels) != len(r.samples) {
		return nil, fmt.Errorf("got %d labels for %d samples", len(labels), len(r.samples))
	}

	samples := make([]Sample, len(r.samples))
	copy(samples, r.samples)
	for i := range samples {
		samples[i].Label = labels[i]
	}
	return NewRecording(r.rate, samples), nil
}
