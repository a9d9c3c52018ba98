// Package storage defines the contract shared by analysis storage backends.
package storage

import (
	"context"
	"errors"
	"sync"

	"github.com/chrissnell/ecogmark/internal/log"
	"github.com/chrissnell/ecogmark/internal/types"
)

// ErrNotFound is returned by readers when no analysis has the requested ID
var ErrNotFound = errors.New("analysis not found")

// ProcessResults drains resultChan into storeFunc until ctx is cancelled.
// The caller must wg.Add(1) before starting it.
func ProcessResults(ctx context.Context, wg *sync.WaitGroup, resultChan <-chan types.AnalysisResult,
	storeFunc func(context.Context, types.AnalysisResult) error, storageName string) {
	defer wg.Done()

	for {
		select {
		case r := <-resultChan:
			if err := storeFunc(ctx, r); err != nil {
				log.Errorf("could not store analysis %s in %s: %v", r.ID, storageName, err)
			}
		case <-ctx.Done():
			log.Infof("cancellation request received. Cancelling result processor for %s.", storageName)
			return
		}
	}
}
