// Package edf reads and writes EDF and EDF+ signal containers.
//
// Only the continuous (EDF+C) variant is written. Samples are stored as
// 16-bit integers in the unit named by the header and are converted to volts
// on read. Annotations live in
// a dedicated "EDF Annotations" signal as time-stamped annotation lists.
package edf

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/chrissnell/ecogmark/internal/types"
)

// AnnotationLabel is the reserved label of the EDF+ annotation signal
const AnnotationLabel = "EDF Annotations"

const (
	digitalMin = -32768
	digitalMax = 32767
)

// DefaultDimension is the unit written for signals that name none
const DefaultDimension = "uV"

var (
	ErrInvalidHeader = errors.New("invalid EDF header")
	ErrTruncated     = errors.New("truncated EDF data")
)

// Header holds the fixed part of an EDF header
type Header struct {
	Version        string
	PatientID      string
	RecordingID    string
	StartTime      time.Time
	Reserved       string  // "EDF+C", "EDF+D" or blank for plain EDF
	DataRecords    int     // -1 if unknown
	RecordDuration float64 // seconds
}

// Signal is one data channel. Samples are in volts; PhysicalMin and
// PhysicalMax are in the header unit named by PhysicalDimension.
type Signal struct {
	Label             string
	TransducerType    string
	PhysicalDimension string
	PhysicalMin       float64
	PhysicalMax       float64
	DigitalMin        int
	DigitalMax        int
	Prefiltering      string
	SamplesPerRecord  int
	Samples           []float64
}

// Annotation is one entry of a time-stamped annotation list
type Annotation struct {
	Onset    float64
	Duration float64
	Text     string
}

// File is a decoded EDF file. Signals excludes the annotation signal.
type File struct {
	Header      Header
	Signals     []Signal
	Annotations []Annotation
}

// SamplingRate returns the data signals' common sampling rate in Hz
func (f *File) SamplingRate() (float64, error) {
	if len(f.Signals) == 0 {
		return 0, fmt.Errorf("no data signals")
	}
	if f.Header.RecordDuration <= 0 {
		return 0, fmt.Errorf("%w: record duration %g", ErrInvalidHeader, f.Header.RecordDuration)
	}

	rate := float64(f.Signals[0].SamplesPerRecord) / f.Header.RecordDuration
	for _, s := range f.Signals[1:] {
		if r := float64(s.SamplesPerRecord) / f.Header.RecordDuration; r != rate {
			return 0, fmt.Errorf("signal %q sampled at %gHz, %q at %gHz", f.Signals[0].Label, rate, s.Label, r)
		}
	}
	return rate, nil
}

// Markers returns the annotations as markers ordered by onset. Annotations
// with equal onsets keep their file order.
func (f *File) Markers() []types.Marker {
	markers := make([]types.Marker, 0, len(f.Annotations))
	for _, a := range f.Annotations {
		markers = append(markers, types.Marker{Onset: a.Onset, Tag: a.Text})
	}
	sort.SliceStable(markers, func(i, j int) bool {
		return markers[i].Onset < markers[j].Onset
	})
	return markers
}

// Recording assembles a three-channel recording. With no labels the first
// three data signals are used; otherwise signals are picked by label.
func (f *File) Recording(labels ...string) (*types.Recording, error) {
	rate, err := f.SamplingRate()
	if err != nil {
		return nil, err
	}

	var picked []Signal
	if len(labels) == 0 {
		if len(f.Signals) < types.ChannelCount {
			return nil, fmt.Errorf("file has %d data signals, need %d", len(f.Signals), types.ChannelCount)
		}
		picked = f.Signals[:types.ChannelCount]
	} else {
		if len(labels) != types.ChannelCount {
			return nil, fmt.Errorf("got %d channel labels, need %d", len(labels), types.ChannelCount)
		}
		for _, label := range labels {
			s, ok := f.signal(label)
			if !ok {
				return nil, fmt.Errorf("signal %q not found", label)
			}
			picked = append(picked, s)
		}
	}

	var channels [types.ChannelCount][]float64
	for c := range channels {
		channels[c] = picked[c].Samples
	}
	return types.NewRecordingFromChannels(rate, channels)
}

// unitScale returns the factor converting dim to volts. Unknown units are
// taken as volts.
func unitScale(dim string) float64 {
	switch strings.TrimSpace(dim) {
	case "uV", "µV", "\xb5V", "uv", "µv":
		return 1e-6
	case "mV", "mv":
		return 1e-3
	case "nV", "nv":
		return 1e-9
	default:
		return 1
	}
}

func (f *File) signal(label string) (Signal, bool) {
	for _, s := range f.Signals {
		if s.Label == label {
			return s, true
		}
	}
	return Signal{}, false
}

// NewFile builds an EDF+ file from a recording's channels and a marker list.
// The sampling rate must be a whole number of Hz; data records are 1 s long.
func NewFile(rec *types.Recording, labels [types.ChannelCount]string, markers []types.Marker) (*File, error) {
	rate := rec.SamplingRate()
	if rate <= 0 || rate != float64(int(rate)) {
		return nil, fmt.Errorf("sampling rate %gHz is not a whole number of Hz", rate)
	}

	f := &File{
		Header: Header{
			Version:        "0",
			PatientID:      "X X X X",
			RecordingID:    "Startdate X X X X",
			StartTime:      time.Date(1985, 1, 1, 0, 0, 0, 0, time.UTC),
			Reserved:       "EDF+C",
			RecordDuration: 1,
		},
	}

	for c, label := range labels {
		f.Signals = append(f.Signals, Signal{
			Label:             label,
			PhysicalDimension: DefaultDimension,
			DigitalMin:        digitalMin,
			DigitalMax:        digitalMax,
			SamplesPerRecord:  int(rate),
			Samples:           rec.Channel(c),
		})
	}

	for _, m := range markers {
		f.Annotations = append(f.Annotations, Annotation{Onset: m.Onset, Text: m.Tag})
	}
	return f, nil
}
