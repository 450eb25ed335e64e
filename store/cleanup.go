package store

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// CleanupJob periodically removes terminal executions older than the
// retention window.
type CleanupJob struct {
	store     Store
	retention time.Duration
	interval  time.Duration
	logger    *zap.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewCleanupJob creates a retention job. retention is how long terminal
// executions are kept, interval how often expired ones are purged.
func NewCleanupJob(s Store, retention, interval time.Duration, logger *zap.Logger) *CleanupJob {
	return &CleanupJob{
		store:     s,
		retention: retention,
		interval:  interval,
		logger:    logger.With(zap.String("component", "cleanup")),
	}
}

// Start launches the background loop. Calling Start on a running job
// is a no-op.
func (j *CleanupJob) Start() {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	j.cancel = cancel
	j.done = make(chan struct{})

	go j.loop(ctx)
	j.logger.Info("retention cleanup started",
		zap.Duration("retention", j.retention),
		zap.Duration("interval", j.interval))
}

// Stop terminates the loop and waits for the current pass to finish.
func (j *CleanupJob) Stop() {
	j.mu.Lock()
	cancel, done := j.cancel, j.done
	j.cancel = nil
	j.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (j *CleanupJob) loop(ctx context.Context) {
	defer close(j.done)

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			j.RunOnce(ctx)
		}
	}
}

// RunOnce performs a single cleanup pass and returns the number of
// executions removed.
func (j *CleanupJob) RunOnce(ctx context.Context) int64 {
	cutoff := time.Now().Add(-j.retention)
	removed, err := j.store.DeleteTerminalBefore(ctx, cutoff)
	if err != nil {
		j.logger.Warn("retention cleanup pass failed", zap.Error(err))
		return 0
	}
	if removed > 0 {
		j.logger.Info("retention cleanup pass complete", zap.Int64("removed", removed))
	}
	return removed
}
