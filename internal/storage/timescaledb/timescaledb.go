// Package timescaledb stores analysis results in PostgreSQL/TimescaleDB via GORM.
package timescaledb

import (
	"context"
	"errors"
	"sync"

	"github.com/chrissnell/ecogmark/internal/database"
	"github.com/chrissnell/ecogmark/internal/log"
	"github.com/chrissnell/ecogmark/internal/storage"
	"github.com/chrissnell/ecogmark/internal/types"
	"gorm.io/gorm"
)

// Storage holds the connection for a TimescaleDB storage backend
type Storage struct {
	TimescaleDBConn *gorm.DB
}

// StartStorageEngine creates a goroutine loop to receive results and send
// them off to TimescaleDB
func (t *Storage) StartStorageEngine(ctx context.Context, wg *sync.WaitGroup) chan<- types.AnalysisResult {
	log.Info("starting TimescaleDB storage engine...")
	resultChan := make(chan types.AnalysisResult, 10)
	wg.Add(1)
	go storage.ProcessResults(ctx, wg, resultChan, t.StoreResult, "TimescaleDB")
	return resultChan
}

// StoreResult writes an analysis and its segments in one transaction
func (t *Storage) StoreResult(ctx context.Context, r types.AnalysisResult) error {
	rec := database.NewAnalysis(r)
	return t.TimescaleDBConn.WithContext(ctx).Create(&rec).Error
}

// GetAnalysis loads one analysis with its segments
func (t *Storage) GetAnalysis(ctx context.Context, id string) (*types.AnalysisResult, error) {
	var rec database.Analysis
	err := t.TimescaleDBConn.WithContext(ctx).Preload("Segments").First(&rec, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	r, err := rec.Result()
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// ListAnalyses returns the newest analyses first
func (t *Storage) ListAnalyses(ctx context.Context, limit int) ([]types.AnalysisResult, error) {
	var recs []database.Analysis
	err := t.TimescaleDBConn.WithContext(ctx).Preload("Segments").
		Order("created_at DESC").Limit(limit).Find(&recs).Error
	if err != nil {
		return nil, err
	}

	results := make([]types.AnalysisResult, 0, len(recs))
	for _, rec := range recs {
		r, err := rec.Result()
		if err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	return results, nil
}

// FindByHash returns the most recent analysis of the same content and mode
func (t *Storage) FindByHash(ctx context.Context, hash, mode string) (*types.AnalysisResult, error) {
	var rec database.Analysis
	err := t.TimescaleDBConn.WithContext(ctx).Preload("Segments").
		Where("content_hash = ? AND mode = ?", hash, mode).
		Order("created_at DESC").First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	r, err := rec.Result()
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// CheckHealth pings the database
func (t *Storage) CheckHealth(ctx context.Context) *storage.HealthData {
	if t.TimescaleDBConn == nil {
		return storage.CreateHealthData("", errors.New("TimescaleDB connection is nil"))
	}
	sqlDB, err := t.TimescaleDBConn.DB()
	if err == nil {
		err = sqlDB.PingContext(ctx)
	}
	return storage.CreateHealthData("TimescaleDB connection active", err)
}

// New sets up a new TimescaleDB storage backend
func New(ctx context.Context, connectionString string) (*Storage, error) {
	db, err := database.CreateConnection(connectionString)
	if err != nil {
		return nil, err
	}

	log.Info("creating TimescaleDB extension...")
	if err := db.WithContext(ctx).Exec(createExtensionSQL).Error; err != nil {
		log.Warn("warning: could not create TimescaleDB extension, continuing with plain PostgreSQL:", err)
	}

	log.Info("migrating analysis tables...")
	if err := database.Migrate(db.WithContext(ctx)); err != nil {
		log.Warn("warning: could not migrate analysis tables")
		return nil, err
	}

	log.Info("creating daily anomaly view...")
	if err := db.WithContext(ctx).Exec(createDailyViewSQL).Error; err != nil {
		log.Warn("warning: could not create daily anomaly view")
		return nil, err
	}

	return &Storage{TimescaleDBConn: db}, nil
}
