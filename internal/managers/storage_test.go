package managers

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/chrissnell/ecogmark/internal/types"
	"github.com/chrissnell/ecogmark/pkg/config"
)

type recordingEngine struct {
	mu      sync.Mutex
	results []types.AnalysisResult
}

func (e *recordingEngine) StartStorageEngine(ctx context.Context, wg *sync.WaitGroup) chan<- types.AnalysisResult {
	c := make(chan types.AnalysisResult, 1)
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case r := <-c:
				e.mu.Lock()
				e.results = append(e.results, r)
				e.mu.Unlock()
			case <-ctx.Done():
				return
			}
		}
	}()
	return c
}

func (e *recordingEngine) count() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.results)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met before deadline")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestStorageManagerFanOut(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup

	sm, err := NewStorageManager(ctx, &wg, nil)
	if err != nil {
		t.Fatalf("NewStorageManager() error = %v", err)
	}
	if sm.Reader() != nil {
		t.Error("expected no reader without engines")
	}

	a, b := &recordingEngine{}, &recordingEngine{}
	sm.AddEngine(ctx, &wg, "a", a)
	sm.AddEngine(ctx, &wg, "b", b)

	sm.GetResultDistributor() <- types.NewAnalysisResult("x.edf", "", "markers", nil)
	waitFor(t, func() bool { return a.count() == 1 && b.count() == 1 })

	cancel()
	wg.Wait()
}

func TestStorageManagerShutdownWaitsForDistributor(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup

	if _, err := NewStorageManager(ctx, &wg, nil); err != nil {
		t.Fatalf("NewStorageManager() error = %v", err)
	}
	cancel()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("wg.Wait() did not return after cancellation")
	}
}

func TestStorageManagerSQLite(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var wg sync.WaitGroup

	cfg := &config.StorageData{SQLite: &config.SQLiteData{Path: filepath.Join(t.TempDir(), "archive.db")}}
	sm, err := NewStorageManager(ctx, &wg, cfg)
	if err != nil {
		t.Fatalf("NewStorageManager() error = %v", err)
	}
	if sm.Reader() == nil {
		t.Fatal("expected SQLite archive to act as reader")
	}

	r := types.NewAnalysisResult("y.edf", "h", "markers", types.NewAnalytics())
	sm.GetResultDistributor() <- r
	waitFor(t, func() bool {
		_, err := sm.Reader().GetAnalysis(context.Background(), r.ID.String())
		return err == nil
	})
	waitFor(t, func() bool { return sm.Health.IsHealthy("sqlite") })
}
