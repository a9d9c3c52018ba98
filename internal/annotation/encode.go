package annotation

import (
	"github.com/chrissnell/ecogmark/internal/types"
)

// Encoded is the marker form of a labeled recording plus its statistics
type Encoded struct {
	Markers   []types.Marker
	Analytics *types.Analytics
}

// Encode scans rec's labels, emits a start and end marker for every segment
// and aggregates segment statistics. It fails only when rec's sampling rate
// differs from the codec's rate.
func (c *Codec) Encode(rec *types.Recording) (*Encoded, error) {
	if err := c.checkRate(rec.SamplingRate()); err != nil {
		return nil, err
	}

	rate := rec.SamplingRate()
	segments := Segments(rec.Labels())

	enc := &Encoded{
		Markers: make([]types.Marker, 0, 2*len(segments)),
	}
	agg := newAggregator()

	for _, seg := range segments {
		span := types.TimeSpan{
			Start: sampleTime(seg.Start, rate),
			End:   sampleTime(seg.End, rate),
		}
		agg.add(seg.Class, span, peakAmplitude(rec, seg))

		enc.Markers = append(enc.Markers,
			types.Marker{Onset: span.Start, Tag: seg.Class.StartTag()},
			types.Marker{Onset: span.End, Tag: seg.Class.EndTag()},
		)
	}

	enc.Analytics = agg.finish(rec.Duration())
	return enc, nil
}
