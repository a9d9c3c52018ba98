// Package sqlite keeps an embedded archive of analysis results. It needs no
// external server and backs the REST lookups when TimescaleDB is absent.
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/chrissnell/ecogmark/internal/log"
	"github.com/chrissnell/ecogmark/internal/report"
	"github.com/chrissnell/ecogmark/internal/storage"
	"github.com/chrissnell/ecogmark/internal/types"
	"github.com/chrissnell/ecogmark/pkg/migrate"
	"github.com/google/uuid"
	"github.com/vmihailenco/msgpack/v5"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Storage is a SQLite-backed analysis archive
type Storage struct {
	db *sql.DB
}

// New opens (creating if needed) the archive at path. ":memory:" is accepted.
func New(path string) (*Storage, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite archive: %w", err)
	}
	db.SetMaxOpenConns(1)

	ms, err := migrate.Load(migrations, "migrations")
	if err == nil {
		err = migrate.NewMigrator(db, ms, "").MigrateUp()
	}
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate archive schema: %w", err)
	}

	return &Storage{db: db}, nil
}

// Close closes the underlying database
func (s *Storage) Close() error {
	return s.db.Close()
}

// StartStorageEngine creates a goroutine loop to receive results and
// archive them
func (s *Storage) StartStorageEngine(ctx context.Context, wg *sync.WaitGroup) chan<- types.AnalysisResult {
	log.Info("starting SQLite archive storage engine...")
	resultChan := make(chan types.AnalysisResult, 10)
	wg.Add(1)
	go storage.ProcessResults(ctx, wg, resultChan, s.StoreResult, "SQLite archive")
	return resultChan
}

// StoreResult archives one result. The full analytics are kept as a
// msgpack blob so non-finite peak amplitudes survive.
func (s *Storage) StoreResult(ctx context.Context, r types.AnalysisResult) error {
	a := r.Analytics
	if a == nil {
		a = types.NewAnalytics()
	}
	blob, err := msgpack.Marshal(a)
	if err != nil {
		return fmt.Errorf("failed to encode analytics: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	id := r.ID.String()
	_, err = tx.ExecContext(ctx, `
		INSERT OR REPLACE INTO analyses
			(id, source, content_hash, mode, anomaly_count, time_with_anomalies, created_at, analytics)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		id, r.Source, r.ContentHash, r.Mode,
		a.AnomalyCount, a.TimeWithAnomalies,
		r.CreatedAt.UTC().Format(time.RFC3339Nano), blob)
	if err != nil {
		return fmt.Errorf("failed to insert analysis: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM segments WHERE analysis_id = ?`, id); err != nil {
		return fmt.Errorf("failed to clear segments: %w", err)
	}
	for i, row := range report.Rows(a) {
		peak := sql.NullFloat64{Float64: row.PeakAmplitude, Valid: !math.IsInf(row.PeakAmplitude, 0) && !math.IsNaN(row.PeakAmplitude)}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO segments (analysis_id, seq, class, class_name, start_seconds, end_seconds, peak_amplitude)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			id, i, int(row.Class), row.Type, row.Start, row.End, peak)
		if err != nil {
			return fmt.Errorf("failed to insert segment %d: %w", i, err)
		}
	}

	return tx.Commit()
}

// GetAnalysis loads one result by ID
func (s *Storage) GetAnalysis(ctx context.Context, id string) (*types.AnalysisResult, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, source, content_hash, mode, created_at, analytics
		FROM analyses WHERE id = ?`, id)

	r, err := scanResult(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return r, nil
}

// ListAnalyses returns up to limit results, newest first
func (s *Storage) ListAnalyses(ctx context.Context, limit int) ([]types.AnalysisResult, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, source, content_hash, mode, created_at, analytics
		FROM analyses ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query analyses: %w", err)
	}
	defer rows.Close()

	var results []types.AnalysisResult
	for rows.Next() {
		r, err := scanResult(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, *r)
	}
	return results, rows.Err()
}

// FindByHash returns the most recent result for a content hash and mode
func (s *Storage) FindByHash(ctx context.Context, hash, mode string) (*types.AnalysisResult, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, source, content_hash, mode, created_at, analytics
		FROM analyses WHERE content_hash = ? AND mode = ?
		ORDER BY created_at DESC LIMIT 1`, hash, mode)

	r, err := scanResult(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	return r, err
}

// CheckHealth pings the archive
func (s *Storage) CheckHealth(ctx context.Context) *storage.HealthData {
	return storage.CreateHealthData("SQLite archive available", s.db.PingContext(ctx))
}

type scanner interface {
	Scan(dest ...any) error
}

func scanResult(sc scanner) (*types.AnalysisResult, error) {
	var (
		id, source, hash, mode, created string
		blob                            []byte
	)
	if err := sc.Scan(&id, &source, &hash, &mode, &created, &blob); err != nil {
		return nil, err
	}

	parsedID, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("invalid analysis id %q: %w", id, err)
	}
	createdAt, err := time.Parse(time.RFC3339Nano, created)
	if err != nil {
		return nil, fmt.Errorf("invalid created_at %q: %w", created, err)
	}

	a := types.NewAnalytics()
	if err := msgpack.Unmarshal(blob, a); err != nil {
		return nil, fmt.Errorf("failed to decode analytics: %w", err)
	}

	return &types.AnalysisResult{
		ID:          parsedID,
		Source:      source,
		ContentHash: hash,
		Mode:        mode,
		Analytics:   a,
		CreatedAt:   createdAt,
	}, nil
}
