package types

import (
	"time"

	"github.com/google/uuid"
)

// Marker is a timestamped annotation tag. Onset is in seconds from the start
// of the recording.
type Marker struct {
	Onset float64 `json:"onset"`
	Tag   string  `json:"tag"`
}

// Span is a half-open sample index range [Start, End)
type Span struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// TimeSpan is a segment expressed in seconds
type TimeSpan struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// Analytics summarises the segments found in one recording
type Analytics struct {
	AnomalyCount      int                  `json:"anomaly_count"`
	TotalDuration     float64              `json:"total_duration"`
	TotalTime         float64              `json:"total_time"`
	AverageDuration   float64              `json:"average_duration"`
	AverageInterval   float64              `json:"average_interval"`
	TimeWithAnomalies float64              `json:"time_with_anomalies"`
	AnomaliesByType   map[Class][]TimeSpan `json:"anomalies_by_type"`
	PeakAmplitudes    map[Class][]float64  `json:"peak_amplitudes"`
	Durations         []float64            `json:"durations"`
	Intervals         []float64            `json:"intervals"`
}

// NewAnalytics returns a zeroed Analytics with its per-class maps allocated
func NewAnalytics() *Analytics {
	a := &Analytics{
		AnomaliesByType: make(map[Class][]TimeSpan, len(Classes)),
		PeakAmplitudes:  make(map[Class][]float64, len(Classes)),
	}
	for _, c := range Classes {
		a.AnomaliesByType[c] = []TimeSpan{}
		a.PeakAmplitudes[c] = []float64{}
	}
	return a
}

// AnalysisResult is one processed upload as handed to storage engines
type AnalysisResult struct {
	ID          uuid.UUID  `json:"id"`
	Source      string     `json:"source"`
	ContentHash string     `json:"content_hash"`
	Mode        string     `json:"mode"`
	Analytics   *Analytics `json:"analytics"`
	CreatedAt   time.Time  `json:"created_at"`
}

// NewAnalysisResult stamps an Analytics with a fresh ID and creation time
func NewAnalysisResult(source, hash, mode string, a *Analytics) AnalysisResult {
	return AnalysisResult{
		ID:          uuid.New(),
		Source:      source,
		ContentHash: hash,
		Mode:        mode,
		Analytics:   a,
		CreatedAt:   time.Now().UTC(),
	}
}
