package storage

import (
	"context"
	"sync"

	"github.com/chrissnell/ecogmark/internal/types"
)

// EngineInterface is implemented by every storage backend. The returned
// channel accepts results until ctx is cancelled.
type EngineInterface interface {
	StartStorageEngine(context.Context, *sync.WaitGroup) chan<- types.AnalysisResult
}

// Reader is implemented by backends that can serve stored analyses back
type Reader interface {
	GetAnalysis(ctx context.Context, id string) (*types.AnalysisResult, error)
	ListAnalyses(ctx context.Context, limit int) ([]types.AnalysisResult, error)
	FindByHash(ctx context.Context, hash, mode string) (*types.AnalysisResult, error)
}
