package managers

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/chrissnell/ecogmark/internal/log"
	"github.com/chrissnell/ecogmark/internal/storage"
	"github.com/chrissnell/ecogmark/internal/storage/sqlite"
	"github.com/chrissnell/ecogmark/internal/storage/timescaledb"
	"github.com/chrissnell/ecogmark/internal/types"
	"github.com/chrissnell/ecogmark/pkg/config"
)

const healthCheckInterval = 60 * time.Second

// StorageManager holds our active storage backends
type StorageManager struct {
	Engines           []StorageEngine
	ResultDistributor chan types.AnalysisResult
	Health            *storage.HealthManager

	mu     sync.RWMutex
	reader storage.Reader
}

// StorageEngine holds a backend storage engine's interface as well as
// a channel for passing results to the engine
type StorageEngine struct {
	Name   string
	Engine storage.EngineInterface
	C      chan<- types.AnalysisResult
}

// NewStorageManager creates a StorageManager populated with every configured engine
func NewStorageManager(ctx context.Context, wg *sync.WaitGroup, c *config.StorageData) (*StorageManager, error) {
	s := &StorageManager{
		ResultDistributor: make(chan types.AnalysisResult, 20),
		Health:            storage.NewHealthManager(),
	}

	wg.Add(1)
	go s.startResultDistributor(ctx, wg)

	if c == nil {
		return s, nil
	}

	if c.SQLite != nil && c.SQLite.Path != "" {
		engine, err := sqlite.New(c.SQLite.Path)
		if err != nil {
			return s, fmt.Errorf("could not add SQLite archive backend: %w", err)
		}
		go func() {
			<-ctx.Done()
			engine.Close()
		}()
		s.AddEngine(ctx, wg, "sqlite", engine)
	}

	if c.TimescaleDB != nil && c.TimescaleDB.ConnectionString != "" {
		engine, err := timescaledb.New(ctx, c.TimescaleDB.ConnectionString)
		if err != nil {
			return s, fmt.Errorf("could not add TimescaleDB storage backend: %w", err)
		}
		s.AddEngine(ctx, wg, "timescaledb", engine)
	}

	return s, nil
}

// AddEngine starts engine and registers it for fan-out. The first engine
// that can read results back becomes the manager's reader.
func (s *StorageManager) AddEngine(ctx context.Context, wg *sync.WaitGroup, name string, engine storage.EngineInterface) {
	se := StorageEngine{
		Name:   name,
		Engine: engine,
		C:      engine.StartStorageEngine(ctx, wg),
	}
	s.mu.Lock()
	s.Engines = append(s.Engines, se)
	if r, ok := engine.(storage.Reader); ok && s.reader == nil {
		s.reader = r
	}
	s.mu.Unlock()

	if hc, ok := engine.(storage.HealthChecker); ok {
		storage.StartHealthMonitor(ctx, s.Health, name, hc, healthCheckInterval)
	}
}

// Reader returns the engine used to serve stored analyses, or nil
func (s *StorageManager) Reader() storage.Reader {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.reader
}

// GetResultDistributor returns the result distributor channel
func (s *StorageManager) GetResultDistributor() chan<- types.AnalysisResult {
	return s.ResultDistributor
}

// startResultDistributor fans results out to the storage backends
func (s *StorageManager) startResultDistributor(ctx context.Context, wg *sync.WaitGroup) {
	defer wg.Done()

	for {
		select {
		case r := <-s.ResultDistributor:
			s.mu.RLock()
			engines := append([]StorageEngine(nil), s.Engines...)
			s.mu.RUnlock()

			if len(engines) == 0 {
				log.Debugf("no storage engines configured, analysis %s not persisted", r.ID)
				continue
			}
			for _, e := range engines {
				select {
				case e.C <- r:
				case <-ctx.Done():
					return
				}
			}
		case <-ctx.Done():
			return
		}
	}
}
