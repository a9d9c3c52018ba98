package annotation

import (
	"errors"
	"math"
	"reflect"
	"testing"

	"github.com/chrissnell/ecogmark/internal/types"
)

const rate = 400.0

func labelsOf(values ...int) []types.Class {
	labels := make([]types.Class, len(values))
	for i, v := range values {
		labels[i] = types.Class(v)
	}
	return labels
}

func recordingWithLabels(t *testing.T, labels []types.Class) *types.Recording {
	t.Helper()
	rec, err := types.NewRecording(rate, make([]types.Sample, len(labels))).WithLabels(labels)
	if err != nil {
		t.Fatalf("building recording: %v", err)
	}
	return rec
}

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestEncodeScenario(t *testing.T) {
	codec := NewCodec(rate, nil)
	rec := recordingWithLabels(t, labelsOf(0, 0, 1, 1, 1, 0, 0, 2, 2, 0))

	enc, err := codec.Encode(rec)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	wantMarkers := []types.Marker{
		{Onset: 2.0 / 400, Tag: "swd1"},
		{Onset: 5.0 / 400, Tag: "swd2"},
		{Onset: 7.0 / 400, Tag: "is1"},
		{Onset: 9.0 / 400, Tag: "is2"},
	}
	if !reflect.DeepEqual(enc.Markers, wantMarkers) {
		t.Errorf("markers = %v, want %v", enc.Markers, wantMarkers)
	}

	a := enc.Analytics
	if a.AnomalyCount != 2 {
		t.Errorf("AnomalyCount = %d, want 2", a.AnomalyCount)
	}
	if !almostEqual(a.TotalDuration, 0.0125) {
		t.Errorf("TotalDuration = %v, want 0.0125", a.TotalDuration)
	}
	if len(a.Intervals) != 1 || !almostEqual(a.Intervals[0], 0.005) {
		t.Errorf("Intervals = %v, want [0.005]", a.Intervals)
	}
	if !almostEqual(a.AverageInterval, 0.005) {
		t.Errorf("AverageInterval = %v, want 0.005", a.AverageInterval)
	}
	if !almostEqual(a.AverageDuration, 0.00625) {
		t.Errorf("AverageDuration = %v, want 0.00625", a.AverageDuration)
	}
	if !almostEqual(a.TotalTime, 10.0/400) {
		t.Errorf("TotalTime = %v, want %v", a.TotalTime, 10.0/400)
	}
	if !almostEqual(a.TimeWithAnomalies, 50) {
		t.Errorf("TimeWithAnomalies = %v, want 50", a.TimeWithAnomalies)
	}

	swd := a.AnomaliesByType[types.SWD]
	if len(swd) != 1 || swd[0] != (types.TimeSpan{Start: 2.0 / 400, End: 5.0 / 400}) {
		t.Errorf("SWD spans = %v", swd)
	}
	is := a.AnomaliesByType[types.IS]
	if len(is) != 1 || is[0] != (types.TimeSpan{Start: 7.0 / 400, End: 9.0 / 400}) {
		t.Errorf("IS spans = %v", is)
	}
	if len(a.AnomaliesByType[types.DS]) != 0 {
		t.Errorf("DS spans = %v, want none", a.AnomaliesByType[types.DS])
	}
}

func TestEncodeEmpty(t *testing.T) {
	codec := NewCodec(rate, nil)

	enc, err := codec.Encode(types.NewRecording(rate, nil))
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	a := enc.Analytics
	if a.AnomalyCount != 0 || a.TotalDuration != 0 || a.AverageDuration != 0 ||
		a.TimeWithAnomalies != 0 || a.AverageInterval != 0 || a.TotalTime != 0 {
		t.Errorf("expected zeroed analytics, got %+v", a)
	}
	if len(enc.Markers) != 0 {
		t.Errorf("expected no markers, got %v", enc.Markers)
	}
	for _, class := range types.Classes {
		if a.AnomaliesByType[class] == nil || a.PeakAmplitudes[class] == nil {
			t.Errorf("per-class lists for %v should be allocated", class)
		}
	}
}

func TestEncodeAllNone(t *testing.T) {
	codec := NewCodec(rate, nil)
	enc, err := codec.Encode(recordingWithLabels(t, make([]types.Class, 800)))
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if enc.Analytics.AnomalyCount != 0 || enc.Analytics.TimeWithAnomalies != 0 {
		t.Errorf("unexpected analytics %+v", enc.Analytics)
	}
	if !almostEqual(enc.Analytics.TotalTime, 2) {
		t.Errorf("TotalTime = %v, want 2", enc.Analytics.TotalTime)
	}
}

func TestPeakAmplitude(t *testing.T) {
	samples := []types.Sample{
		{Channels: [3]float64{5, 5, 5}},
		{Channels: [3]float64{0.1, -0.7, 0.2}, Label: types.DS},
		{Channels: [3]float64{0.3, 0.4, -0.5}, Label: types.DS},
		{Channels: [3]float64{9, 9, 9}},
		{Channels: [3]float64{-0.25, 0, 0}, Label: types.SWD},
	}
	codec := NewCodec(rate, nil)

	enc, err := codec.Encode(types.NewRecording(rate, samples))
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	ds := enc.Analytics.PeakAmplitudes[types.DS]
	if len(ds) != 1 || !almostEqual(ds[0], math.Exp(0.7)) {
		t.Errorf("DS peaks = %v, want [exp(0.7)]", ds)
	}
	swd := enc.Analytics.PeakAmplitudes[types.SWD]
	if len(swd) != 1 || !almostEqual(swd[0], math.Exp(0.25)) {
		t.Errorf("SWD peaks = %v, want [exp(0.25)]", swd)
	}
}

func TestEncodeAdjacentSegmentsOfDifferentClass(t *testing.T) {
	codec := NewCodec(rate, nil)
	enc, err := codec.Encode(recordingWithLabels(t, labelsOf(1, 1, 2, 2, 2, 3)))
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	if enc.Analytics.AnomalyCount != 3 {
		t.Fatalf("AnomalyCount = %d, want 3", enc.Analytics.AnomalyCount)
	}
	for i, interval := range enc.Analytics.Intervals {
		if !almostEqual(interval, 0) {
			t.Errorf("interval %d = %v, want 0", i, interval)
		}
	}
	if !almostEqual(enc.Analytics.TimeWithAnomalies, 100) {
		t.Errorf("TimeWithAnomalies = %v, want 100", enc.Analytics.TimeWithAnomalies)
	}
}

func TestDecodeScenario(t *testing.T) {
	codec := NewCodec(rate, nil)
	markers := []types.Marker{{Onset: 1.0, Tag: "swd1"}, {Onset: 2.0, Tag: "swd2"}}

	d, err := codec.Decode(markers, rate, 1200)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}

	for i, label := range d.Labels {
		want := types.None
		if i >= 400 && i < 800 {
			want = types.SWD
		}
		if label != want {
			t.Fatalf("label[%d] = %v, want %v", i, label, want)
		}
	}

	wantSpans := []types.Span{{Start: 400, End: 800}}
	if !reflect.DeepEqual(d.Spans[types.SWD], wantSpans) {
		t.Errorf("SWD spans = %v, want %v", d.Spans[types.SWD], wantSpans)
	}
}

func TestDecode(t *testing.T) {
	tests := []struct {
		name    string
		markers []types.Marker
		n       int
		want    []types.Class
		spans   map[types.Class][]types.Span
	}{
		{
			name:    "empty marker list",
			markers: nil,
			n:       4,
			want:    labelsOf(0, 0, 0, 0),
			spans:   map[types.Class][]types.Span{},
		},
		{
			name:    "trailing unmatched start is dropped",
			markers: []types.Marker{{Onset: 0.0025, Tag: "swd1"}},
			n:       4,
			want:    labelsOf(0, 0, 0, 0),
			spans:   map[types.Class][]types.Span{},
		},
		{
			name: "pair then trailing start",
			markers: []types.Marker{
				{Onset: 0, Tag: "ds1"},
				{Onset: 0.005, Tag: "ds2"},
				{Onset: 0.0075, Tag: "is1"},
			},
			n:     4,
			want:  labelsOf(3, 3, 0, 0),
			spans: map[types.Class][]types.Span{types.DS: {{Start: 0, End: 2}}},
		},
		{
			name: "unrecognised tags are skipped",
			markers: []types.Marker{
				{Onset: 0, Tag: "Recording starts"},
				{Onset: 0.0025, Tag: "is1"},
				{Onset: 0.0075, Tag: "is2"},
				{Onset: 0.0075, Tag: "swd2"},
			},
			n:     4,
			want:  labelsOf(0, 2, 2, 0),
			spans: map[types.Class][]types.Span{types.IS: {{Start: 1, End: 3}}},
		},
		{
			name: "start pairs with the next marker whatever its tag",
			markers: []types.Marker{
				{Onset: 0, Tag: "swd1"},
				{Onset: 0.005, Tag: "is1"},
				{Onset: 0.0075, Tag: "is2"},
			},
			n:     4,
			want:  labelsOf(1, 1, 0, 0),
			spans: map[types.Class][]types.Span{types.SWD: {{Start: 0, End: 2}}},
		},
		{
			name: "later pair overwrites earlier range",
			markers: []types.Marker{
				{Onset: 0, Tag: "swd1"},
				{Onset: 0.01, Tag: "swd2"},
				{Onset: 0.0025, Tag: "ds1"},
				{Onset: 0.005, Tag: "ds2"},
			},
			n:    4,
			want: labelsOf(1, 3, 1, 1),
			spans: map[types.Class][]types.Span{
				types.SWD: {{Start: 0, End: 4}},
				types.DS:  {{Start: 1, End: 2}},
			},
		},
		{
			name: "ranges past the end are clamped",
			markers: []types.Marker{
				{Onset: 0.005, Tag: "ds1"},
				{Onset: 10, Tag: "ds2"},
			},
			n:     4,
			want:  labelsOf(0, 0, 3, 3),
			spans: map[types.Class][]types.Span{types.DS: {{Start: 2, End: 4000}}},
		},
		{
			name: "onsets round to the nearest sample",
			markers: []types.Marker{
				{Onset: 0.0024, Tag: "swd1"},
				{Onset: 0.0051, Tag: "swd2"},
			},
			n:     4,
			want:  labelsOf(0, 1, 0, 0),
			spans: map[types.Class][]types.Span{types.SWD: {{Start: 1, End: 2}}},
		},
	}

	codec := NewCodec(rate, nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := codec.Decode(tt.markers, rate, tt.n)
			if err != nil {
				t.Fatalf("Decode returned error: %v", err)
			}
			if !reflect.DeepEqual(d.Labels, tt.want) {
				t.Errorf("labels = %v, want %v", d.Labels, tt.want)
			}
			for _, class := range types.Classes {
				want := tt.spans[class]
				if want == nil {
					want = []types.Span{}
				}
				if !reflect.DeepEqual(d.Spans[class], want) {
					t.Errorf("%v spans = %v, want %v", class, d.Spans[class], want)
				}
			}
		})
	}
}

func TestRateMismatch(t *testing.T) {
	codec := NewCodec(rate, nil)

	_, err := codec.Decode([]types.Marker{{Onset: 0, Tag: "swd1"}}, 256, 10)
	if !errors.Is(err, ErrSamplingRateMismatch) {
		t.Errorf("Decode error = %v, want ErrSamplingRateMismatch", err)
	}

	_, err = codec.Encode(types.NewRecording(500, make([]types.Sample, 10)))
	var mismatch *RateMismatchError
	if !errors.As(err, &mismatch) {
		t.Fatalf("Encode error = %v, want *RateMismatchError", err)
	}
	if mismatch.Expected != 400 || mismatch.Actual != 500 {
		t.Errorf("mismatch = %+v", mismatch)
	}
}

func TestAnnotate(t *testing.T) {
	codec := NewCodec(rate, nil)
	rec := types.NewRecording(rate, make([]types.Sample, 6))

	labeled, _, err := codec.Annotate(rec, []types.Marker{
		{Onset: 0.0025, Tag: "is1"},
		{Onset: 0.01, Tag: "is2"},
	})
	if err != nil {
		t.Fatalf("Annotate: %v", err)
	}

	if !reflect.DeepEqual(labeled.Labels(), labelsOf(0, 2, 2, 2, 0, 0)) {
		t.Errorf("labels = %v", labeled.Labels())
	}
	if !reflect.DeepEqual(rec.Labels(), labelsOf(0, 0, 0, 0, 0, 0)) {
		t.Errorf("source recording was modified: %v", rec.Labels())
	}
}

var propertyInputs = [][]types.Class{
	labelsOf(),
	labelsOf(0),
	labelsOf(1),
	labelsOf(0, 0, 1, 1, 1, 0, 0, 2, 2, 0),
	labelsOf(3, 3, 3, 0, 1, 0, 2, 2),
	labelsOf(1, 1, 0, 1, 1, 0, 0, 1),
	labelsOf(2, 3, 1, 2, 3, 1, 0, 0, 0, 3),
	labelsOf(0, 0, 0, 0, 0, 0),
}

func TestRoundTrip(t *testing.T) {
	codec := NewCodec(rate, nil)

	for _, labels := range propertyInputs {
		enc, err := codec.Encode(recordingWithLabels(t, labels))
		if err != nil {
			t.Fatalf("Encode(%v): %v", labels, err)
		}

		d, err := codec.Decode(enc.Markers, rate, len(labels))
		if err != nil {
			t.Fatalf("Decode: %v", err)
		}
		if !reflect.DeepEqual(d.Labels, labels) {
			t.Errorf("round trip of %v gave %v", labels, d.Labels)
		}
	}
}

func TestSegmentCountConservation(t *testing.T) {
	codec := NewCodec(rate, nil)

	for _, labels := range propertyInputs {
		enc, err := codec.Encode(recordingWithLabels(t, labels))
		if err != nil {
			t.Fatalf("Encode: %v", err)
		}

		runs := map[types.Class]int{}
		for i, l := range labels {
			if l != types.None && (i == 0 || labels[i-1] != l) {
				runs[l]++
			}
		}

		starts := map[types.Class]int{}
		for _, m := range enc.Markers {
			if class, ok := types.ClassForStartTag(m.Tag); ok {
				starts[class]++
			}
		}

		for _, class := range types.Classes {
			if starts[class] != runs[class] {
				t.Errorf("%v: %d start markers for %d runs in %v", class, starts[class], runs[class], labels)
			}
			if len(enc.Analytics.AnomaliesByType[class]) != runs[class] {
				t.Errorf("%v: %d spans for %d runs", class, len(enc.Analytics.AnomaliesByType[class]), runs[class])
			}
		}
	}
}

func TestCoverageAndIntervals(t *testing.T) {
	codec := NewCodec(rate, nil)

	for _, labels := range propertyInputs {
		enc, err := codec.Encode(recordingWithLabels(t, labels))
		if err != nil {
			t.Fatalf("Encode: %v", err)
		}

		covered := 0
		for _, l := range labels {
			if l != types.None {
				covered++
			}
		}
		if !almostEqual(enc.Analytics.TotalDuration, float64(covered)/rate) {
			t.Errorf("%v: TotalDuration = %v, want %v", labels, enc.Analytics.TotalDuration, float64(covered)/rate)
		}
		for _, interval := range enc.Analytics.Intervals {
			if interval < 0 {
				t.Errorf("%v: negative interval %v", labels, interval)
			}
		}
		if n := enc.Analytics.AnomalyCount; n > 0 && len(enc.Analytics.Intervals) != n-1 {
			t.Errorf("%v: %d intervals for %d segments", labels, len(enc.Analytics.Intervals), n)
		}
	}
}

func TestSegments(t *testing.T) {
	got := Segments(labelsOf(0, 2, 2, 1, 0, 0, 1, 1))
	want := []Segment{
		{Class: types.IS, Start: 1, End: 3},
		{Class: types.SWD, Start: 3, End: 4},
		{Class: types.SWD, Start: 6, End: 8},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Segments = %v, want %v", got, want)
	}
	if got[0].Len() != 2 {
		t.Errorf("Len = %d, want 2", got[0].Len())
	}
}
