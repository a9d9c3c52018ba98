// Package report renders an Analytics summary as a plain-text report.
package report

import (
	"fmt"
	"io"
	"sort"
	"text/tabwriter"
	"text/template"

	"github.com/chrissnell/ecogmark/internal/types"
)

// Row is one anomaly in the details table
type Row struct {
	Class         types.Class `json:"class"`
	Type          string      `json:"type"`
	Start         float64     `json:"start"`
	End           float64     `json:"end"`
	PeakAmplitude float64     `json:"peak_amplitude"`
}

// Rows flattens the per-class segment lists into one table ordered by start time
func Rows(a *types.Analytics) []Row {
	var rows []Row
	for _, class := range types.Classes {
		peaks := a.PeakAmplitudes[class]
		for i, span := range a.AnomaliesByType[class] {
			row := Row{Class: class, Type: class.String(), Start: span.Start, End: span.End}
			if i < len(peaks) {
				row.PeakAmplitude = peaks[i]
			}
			rows = append(rows, row)
		}
	}

	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].Start < rows[j].Start
	})
	return rows
}

const summaryTemplate = `Cortical recording analysis report
==================================

Total anomalies:              {{.AnomalyCount}}
Recording length (s):         {{printf "%.2f" .TotalTime}}
Total anomaly duration (s):   {{printf "%.2f" .TotalDuration}}
Average anomaly duration (s): {{printf "%.2f" .AverageDuration}}
Time with anomalies (%):      {{printf "%.2f" .TimeWithAnomalies}}
Average interval (s):         {{printf "%.2f" .AverageInterval}}

Anomaly details
---------------
`

var summary = template.Must(template.New("summary").Parse(summaryTemplate))

// Render writes the scalar summary followed by the anomaly table
func Render(w io.Writer, a *types.Analytics) error {
	if err := summary.Execute(w, a); err != nil {
		return fmt.Errorf("error rendering summary: %w", err)
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "Type\tStart (s)\tEnd (s)\tPeak amplitude\t")
	for _, row := range Rows(a) {
		fmt.Fprintf(tw, "%s\t%.2f\t%.2f\t%.10e\t\n", row.Type, row.Start, row.End, row.PeakAmplitude)
	}
	return tw.Flush()
}
