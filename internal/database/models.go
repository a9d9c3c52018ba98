package database

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/chrissnell/ecogmark/internal/report"
	"github.com/chrissnell/ecogmark/internal/types"
)

// Analysis is the stored summary of one processed recording
type Analysis struct {
	ID                string    `gorm:"primaryKey;column:id;type:uuid"`
	Source            string    `gorm:"column:source;not null"`
	ContentHash       string    `gorm:"column:content_hash;index"`
	Mode              string    `gorm:"column:mode"`
	AnomalyCount      int       `gorm:"column:anomaly_count"`
	TotalTime         float64   `gorm:"column:total_time"`
	TotalDuration     float64   `gorm:"column:total_duration"`
	AverageDuration   float64   `gorm:"column:average_duration"`
	AverageInterval   float64   `gorm:"column:average_interval"`
	TimeWithAnomalies float64   `gorm:"column:time_with_anomalies"`
	CreatedAt         time.Time `gorm:"column:created_at;index"`
	Segments          []Segment `gorm:"foreignKey:AnalysisID;constraint:OnDelete:CASCADE"`
}

// TableName specifies the table name for Analysis
func (Analysis) TableName() string {
	return "analyses"
}

// Segment is one anomaly belonging to an Analysis
type Segment struct {
	ID            uint    `gorm:"primaryKey;autoIncrement;column:id"`
	AnalysisID    string  `gorm:"column:analysis_id;type:uuid;index;not null"`
	Seq           int     `gorm:"column:seq"`
	Class         int     `gorm:"column:class"`
	ClassName     string  `gorm:"column:class_name"`
	StartSeconds  float64 `gorm:"column:start_seconds"`
	EndSeconds    float64 `gorm:"column:end_seconds"`
	PeakAmplitude float64 `gorm:"column:peak_amplitude"`
}

// TableName specifies the table name for Segment
func (Segment) TableName() string {
	return "segments"
}

// NewAnalysis converts a result into its stored form with segments ordered
// by start time.
func NewAnalysis(r types.AnalysisResult) Analysis {
	a := r.Analytics
	if a == nil {
		a = types.NewAnalytics()
	}

	rec := Analysis{
		ID:                r.ID.String(),
		Source:            r.Source,
		ContentHash:       r.ContentHash,
		Mode:              r.Mode,
		AnomalyCount:      a.AnomalyCount,
		TotalTime:         a.TotalTime,
		TotalDuration:     a.TotalDuration,
		AverageDuration:   a.AverageDuration,
		AverageInterval:   a.AverageInterval,
		TimeWithAnomalies: a.TimeWithAnomalies,
		CreatedAt:         r.CreatedAt,
	}

	for i, row := range report.Rows(a) {
		rec.Segments = append(rec.Segments, Segment{
			AnalysisID:    rec.ID,
			Seq:           i,
			Class:         int(row.Class),
			ClassName:     row.Type,
			StartSeconds:  row.Start,
			EndSeconds:    row.End,
			PeakAmplitude: row.PeakAmplitude,
		})
	}
	return rec
}

// Result rebuilds the analysis result from the stored rows. Intervals and
// durations are derived from the segment table in start order.
func (a Analysis) Result() (types.AnalysisResult, error) {
	id, err := uuid.Parse(a.ID)
	if err != nil {
		return types.AnalysisResult{}, fmt.Errorf("invalid analysis id %q: %w", a.ID, err)
	}

	analytics := types.NewAnalytics()
	analytics.AnomalyCount = a.AnomalyCount
	analytics.TotalTime = a.TotalTime
	analytics.TotalDuration = a.TotalDuration
	analytics.AverageDuration = a.AverageDuration
	analytics.AverageInterval = a.AverageInterval
	analytics.TimeWithAnomalies = a.TimeWithAnomalies

	segments := append([]Segment(nil), a.Segments...)
	sort.SliceStable(segments, func(i, j int) bool { return segments[i].Seq < segments[j].Seq })

	var prevEnd float64
	for i, s := range segments {
		class, err := types.ClassFromInt(s.Class)
		if err != nil {
			return types.AnalysisResult{}, err
		}
		span := types.TimeSpan{Start: s.StartSeconds, End: s.EndSeconds}
		analytics.AnomaliesByType[class] = append(analytics.AnomaliesByType[class], span)
		analytics.PeakAmplitudes[class] = append(analytics.PeakAmplitudes[class], s.PeakAmplitude)
		analytics.Durations = append(analytics.Durations, span.End-span.Start)
		if i > 0 {
			analytics.Intervals = append(analytics.Intervals, span.Start-prevEnd)
		}
		prevEnd = span.End
	}

	return types.AnalysisResult{
		ID:          id,
		Source:      a.Source,
		ContentHash: a.ContentHash,
		Mode:        a.Mode,
		Analytics:   analytics,
		CreatedAt:   a.CreatedAt,
	}, nil
}
