package annotation

import (
	"github.com/chrissnell/ecogmark/internal/types"
)

// Decoded is the dense form of a marker stream
type Decoded struct {
	// Labels has one entry per sample
	Labels []types.Class
	// Spans holds the decoded index pairs per class in marker order,
	// including pairs whose range fell outside the recording.
	Spans map[types.Class][]types.Span
}

// Decode turns a time-ordered marker list into per-sample labels for a
// recording of sampleCount samples at rate Hz. It fails only when rate differs
// from the codec's rate.
func (c *Codec) Decode(markers []types.Marker, rate float64, sampleCount int) (*Decoded, error) {
	if err := c.checkRate(rate); err != nil {
		return nil, err
	}

	d := &Decoded{
		Labels: make([]types.Class, sampleCount),
		Spans:  make(map[types.Class][]types.Span, len(types.Classes)),
	}
	for _, class := range types.Classes {
		d.Spans[class] = []types.Span{}
	}

	i := 0
	for i < len(markers) {
		class, ok := types.ClassForStartTag(markers[i].Tag)
		if !ok {
			i++
			continue
		}

		if i+1 >= len(markers) {
			c.logger.Debugw("dropping unmatched trailing start marker",
				"tag", markers[i].Tag, "onset", markers[i].Onset)
			break
		}

		// The following marker closes the interval regardless of its tag.
		span := types.Span{
			Start: sampleIndex(markers[i].Onset, rate),
			End:   sampleIndex(markers[i+1].Onset, rate),
		}
		d.Spans[class] = append(d.Spans[class], span)
		fill(d.Labels, span, class)
		i += 2
	}

	return d, nil
}

// Annotate decodes markers against rec and returns a copy of rec carrying
// the decoded labels.
func (c *Codec) Annotate(rec *types.Recording, markers []types.Marker) (*types.Recording, *Decoded, error) {
	d, err := c.Decode(markers, rec.SamplingRate(), rec.Len())
	if err != nil {
		return nil, nil, err
	}

	labeled, err := rec.WithLabels(d.Labels)
	if err != nil {
		return nil, nil, err
	}
	return labeled, d, nil
}

// fill writes class into labels over span, clamped to the slice bounds
func fill(labels []types.Class, span types.Span, class types.Class) {
	start := max(span.Start, 0)
	end := min(span.End, len(labels))
	for i := start; i < end; i++ {
		labels[i] = class
	}
}
