package annotation

import (
	"math"

	"github.com/chrissnell/ecogmark/internal/types"
	"gonum.org/v1/gonum/stat"
)

// aggregator accumulates segment statistics during a single encode pass
type aggregator struct {
	a       *types.Analytics
	prevEnd float64
	seen    bool
}

func newAggregator() *aggregator {
	return &aggregator{a: types.NewAnalytics()}
}

func (g *aggregator) add(class types.Class, span types.TimeSpan, peak float64) {
	duration := span.End - span.Start

	g.a.AnomalyCount++
	g.a.TotalDuration += duration
	g.a.Durations = append(g.a.Durations, duration)
	g.a.AnomaliesByType[class] = append(g.a.AnomaliesByType[class], span)
	g.a.PeakAmplitudes[class] = append(g.a.PeakAmplitudes[class], peak)

	// Intervals run between consecutive segments of any class.
	if g.seen {
		g.a.Intervals = append(g.a.Intervals, span.Start-g.prevEnd)
	}
	g.prevEnd = span.End
	g.seen = true
}

// finish derives the summary scalars. totalTime is the record length in seconds.
func (g *aggregator) finish(totalTime float64) *types.Analytics {
	a := g.a
	a.TotalTime = totalTime

	if a.AnomalyCount > 0 {
		a.AverageDuration = a.TotalDuration / float64(a.AnomalyCount)
	}
	if len(a.Intervals) > 0 {
		a.AverageInterval = stat.Mean(a.Intervals, nil)
	}
	if totalTime > 0 {
		a.TimeWithAnomalies = 100 * a.TotalDuration / totalTime
	}
	if a.Durations == nil {
		a.Durations = []float64{}
	}
	if a.Intervals == nil {
		a.Intervals = []float64{}
	}

	return a
}

// peakAmplitude is exp of the largest absolute amplitude on any channel
// within the segment.
func peakAmplitude(rec *types.Recording, seg Segment) float64 {
	peak := 0.0
	for i := seg.Start; i < seg.End; i++ {
		s := rec.Sample(i)
		for _, v := range s.Channels {
			peak = math.Max(peak, math.Abs(v))
		}
	}
	return math.Exp(peak)
}
