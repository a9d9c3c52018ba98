// analysis-export dumps the analyses stored in PostgreSQL/TimescaleDB, one
// row per anomaly segment, as CSV or JSON.
package main

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/chrissnell/ecogmark/internal/log"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type ExportFormat string

const (
	FormatCSV  ExportFormat = "csv"
	FormatJSON ExportFormat = "json"
)

type Config struct {
	Host     string
	Port     int
	Database string
	User     string
	Password string
	SSLMode  string
	Format   ExportFormat
	Output   string
	Since    string
}

// SegmentRow is one exported anomaly with its analysis metadata
type SegmentRow struct {
	AnalysisID    string    `db:"analysis_id" json:"analysis_id"`
	Source        string    `db:"source" json:"source"`
	Mode          string    `db:"mode" json:"mode"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
	Seq           int       `db:"seq" json:"seq"`
	ClassName     string    `db:"class_name" json:"type"`
	StartSeconds  float64   `db:"start_seconds" json:"start"`
	EndSeconds    float64   `db:"end_seconds" json:"end"`
	PeakAmplitude float64   `db:"peak_amplitude" json:"peak_amplitude"`
}

const exportQuery = `
SELECT a.id AS analysis_id, a.source, a.mode, a.created_at,
       s.seq, s.class_name, s.start_seconds, s.end_seconds, s.peak_amplitude
FROM analyses a
JOIN segments s ON s.analysis_id = a.id
WHERE a.created_at >= $1
ORDER BY a.created_at, s.seq`

func main() {
	var cfg Config

	flag.StringVar(&cfg.Host, "host", "localhost", "Database host")
	flag.IntVar(&cfg.Port, "port", 5432, "Database port")
	flag.StringVar(&cfg.Database, "database", "ecogmark", "Database name")
	flag.StringVar(&cfg.User, "user", "postgres", "Database user")
	flag.StringVar(&cfg.Password, "password", "", "Database password")
	flag.StringVar(&cfg.SSLMode, "sslmode", "disable", "SSL mode (disable, require, etc)")
	formatStr := flag.String("format", "csv", "Export format: csv or json")
	flag.StringVar(&cfg.Output, "output", "analyses_export", "Output file base name (extension added automatically)")
	flag.StringVar(&cfg.Since, "since", "", "Only export analyses created on or after this date (YYYY-MM-DD)")
	debug := flag.Bool("debug", false, "Turn on debugging output")
	flag.Parse()

	if err := log.Init(*debug); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	switch ExportFormat(*formatStr) {
	case FormatCSV, FormatJSON:
		cfg.Format = ExportFormat(*formatStr)
	default:
		log.Fatalf("Invalid format: %s. Must be csv or json", *formatStr)
	}

	since := time.Time{}
	if cfg.Since != "" {
		var err error
		since, err = time.Parse("2006-01-02", cfg.Since)
		if err != nil {
			log.Fatalf("Invalid -since date %q: %v", cfg.Since, err)
		}
	}

	connStr := fmt.Sprintf("host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.Database, cfg.User, cfg.Password, cfg.SSLMode)

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		log.Fatalf("Failed to ping database: %v", err)
	}
	log.Infof("Connected to database %s@%s:%d", cfg.Database, cfg.Host, cfg.Port)

	rows, err := pool.Query(ctx, exportQuery, since)
	if err != nil {
		log.Fatalf("Failed to execute query: %v", err)
	}
	segments, err := pgx.CollectRows(rows, pgx.RowToStructByName[SegmentRow])
	if err != nil {
		log.Fatalf("Failed to read rows: %v", err)
	}
	log.Infof("Found %d segments to export", len(segments))

	filename := cfg.Output + "." + string(cfg.Format)
	file, err := os.Create(filename)
	if err != nil {
		log.Fatalf("Failed to create file: %v", err)
	}
	defer file.Close()

	switch cfg.Format {
	case FormatCSV:
		err = writeCSV(file, segments)
	case FormatJSON:
		err = writeJSON(file, segments)
	}
	if err != nil {
		log.Fatalf("%s export failed: %v", cfg.Format, err)
	}

	log.Infof("Exported %d segments to %s", len(segments), filename)
}

func writeCSV(w io.Writer, segments []SegmentRow) error {
	writer := csv.NewWriter(w)
	header := []string{"analysis_id", "source", "mode", "created_at", "seq", "type", "start", "end", "peak_amplitude"}
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("failed to write headers: %w", err)
	}

	for _, s := range segments {
		record := []string{
			s.AnalysisID,
			s.Source,
			s.Mode,
			s.CreatedAt.UTC().Format(time.RFC3339),
			strconv.Itoa(s.Seq),
			s.ClassName,
			strconv.FormatFloat(s.StartSeconds, 'f', -1, 64),
			strconv.FormatFloat(s.EndSeconds, 'f', -1, 64),
			strconv.FormatFloat(s.PeakAmplitude, 'e', 10, 64),
		}
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("failed to write record: %w", err)
		}
	}

	writer.Flush()
	return writer.Error()
}

func writeJSON(w io.Writer, segments []SegmentRow) error {
	if segments == nil {
		segments = []SegmentRow{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(segments)
}
