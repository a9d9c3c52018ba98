package storage

import (
	"context"
	"sync"
	"time"

	"github.com/chrissnell/ecogmark/internal/log"
)

// HealthData is the last observed state of a storage engine
type HealthData struct {
	LastCheck time.Time `json:"last_check"`
	Status    string    `json:"status"`
	Message   string    `json:"message,omitempty"`
	Error     string    `json:"error,omitempty"`
}

// HealthChecker is implemented by engines that can probe their backend
type HealthChecker interface {
	CheckHealth(ctx context.Context) *HealthData
}

// HealthManager keeps storage health status in memory
type HealthManager struct {
	mu     sync.RWMutex
	health map[string]HealthData
}

// NewHealthManager creates a new health manager
func NewHealthManager() *HealthManager {
	return &HealthManager{
		health: make(map[string]HealthData),
	}
}

// UpdateHealth records the status for a storage backend
func (hm *HealthManager) UpdateHealth(storageType string, health *HealthData) {
	if health == nil {
		return
	}
	hm.mu.Lock()
	defer hm.mu.Unlock()
	hm.health[storageType] = *health
}

// GetHealth returns a copy of the status for one backend
func (hm *HealthManager) GetHealth(storageType string) (HealthData, bool) {
	hm.mu.RLock()
	defer hm.mu.RUnlock()
	h, ok := hm.health[storageType]
	return h, ok
}

// GetAllHealth returns a copy of every backend's status
func (hm *HealthManager) GetAllHealth() map[string]HealthData {
	hm.mu.RLock()
	defer hm.mu.RUnlock()

	result := make(map[string]HealthData, len(hm.health))
	for k, v := range hm.health {
		result[k] = v
	}
	return result
}

// IsHealthy reports whether a backend's last check succeeded
func (hm *HealthManager) IsHealthy(storageType string) bool {
	h, ok := hm.GetHealth(storageType)
	return ok && h.Status == "healthy"
}

// StartHealthMonitor runs checker immediately and then on every interval,
// publishing results to hm until ctx is cancelled.
func StartHealthMonitor(ctx context.Context, hm *HealthManager, storageType string, checker HealthChecker, interval time.Duration) {
	go func() {
		hm.UpdateHealth(storageType, checker.CheckHealth(ctx))

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				hm.UpdateHealth(storageType, checker.CheckHealth(ctx))
			case <-ctx.Done():
				log.Infof("stopping %s health monitor", storageType)
				return
			}
		}
	}()
}

// CreateHealthData builds a HealthData from a probe error
func CreateHealthData(okMessage string, err error) *HealthData {
	h := &HealthData{
		LastCheck: time.Now(),
		Status:    "healthy",
		Message:   okMessage,
	}
	if err != nil {
		h.Status = "unhealthy"
		h.Message = "health check failed"
		h.Error = err.Error()
	}
	return h
}
