package annotation

import "github.com/chrissnell/ecogmark/internal/types"

// Segment is a maximal run of samples sharing one non-None class
type Segment struct {
	Class types.Class
	Start int // first index of the run
	End   int // first index after the run
}

// Len returns the number of samples in the segment
func (s Segment) Len() int {
	return s.End - s.Start
}

// Segments returns the maximal runs of equal non-None labels in scan order
func Segments(labels []types.Class) []Segment {
	var segments []Segment

	i := 0
	for i < len(labels) {
		class := labels[i]
		if class == types.None {
			i++
			continue
		}

		start := i
		for i < len(labels) && labels[i] == class {
			i++
		}
		segments = append(segments, Segment{Class: class, Start: start, End: i})
	}

	return segments
}
