package storage

import (
	"context"
	"time"

	"github.com/dgellow/codegrant/internal/log"
)

// CleanupManager periodically drops expired codes, tokens and pending
// authorizations. Correctness never depends on it; it bounds memory.
type CleanupManager struct {
	storage  Storage
	interval time.Duration
	stopChan chan struct{}
	doneChan chan struct{}
}

// NewCleanupManager creates a new cleanup manager
func NewCleanupManager(storage Storage, interval time.Duration) *CleanupManager {
	return &CleanupManager{
		storage:  storage,
		interval: interval,
		stopChan: make(chan struct{}),
		doneChan: make(chan struct{}),
	}
}

// Run blocks until ctx is cancelled or Stop is called
func (cm *CleanupManager) Run(ctx context.Context) error {
	log.LogInfoWithFields("cleanup", "Starting expired grant cleanup", map[string]any{
		"interval": cm.interval.String(),
	})
	cm.run(ctx)
	return nil
}

// Start begins the cleanup loop in a goroutine
func (cm *CleanupManager) Start(ctx context.Context) {
	go func() { _ = cm.Run(ctx) }()
}

// Stop ends the loop and waits for it to exit
func (cm *CleanupManager) Stop() {
	close(cm.stopChan)
	<-cm.doneChan
	log.LogInfo("Expired grant cleanup stopped")
}

func (cm *CleanupManager) run(ctx context.Context) {
	defer close(cm.doneChan)

	ticker := time.NewTicker(cm.interval)
	defer ticker.Stop()

	cm.cleanup(ctx)

	for {
		select {
		case <-ticker.C:
			cm.cleanup(ctx)
		case <-cm.stopChan:
			cm.cleanup(ctx)
			return
		case <-ctx.Done():
			return
		}
	}
}

func (cm *CleanupManager) cleanup(ctx context.Context) {
	count, err := cm.storage.CleanupExpired(ctx)
	if err != nil {
		log.LogErrorWithFields("cleanup", "Failed to cleanup expired grants", map[string]any{
			"error": err.Error(),
		})
		return
	}

	if count > 0 {
		log.LogInfoWithFields("cleanup", "Cleaned up expired grants", map[string]any{
			"count": count,
		})
	}
}
