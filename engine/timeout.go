package engine

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/pipeflow/internal/metrics"
	"github.com/BaSui01/pipeflow/store"
	"github.com/BaSui01/pipeflow/types"
)

// SweepReport summarizes one timeout sweep. StepErrors holds per-step
// failures that did not abort the rest of the sweep.
type SweepReport struct {
	AwaitingCount    int64
	OverdueCount     int
	TimedOut         int
	EarliestDeadline *time.Time
	StepErrors       map[string]error
}

// TimeoutScheduler forces awaiting steps past their deadline into
// TIMEOUT and resumes their executions. It shares no state with the
// orchestrator beyond the store.
type TimeoutScheduler struct {
	store        store.Store
	orchestrator *Orchestrator
	interval     time.Duration
	batchSize    int
	logger       *zap.Logger
	metrics      *metrics.Collector

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewTimeoutScheduler creates a scheduler sweeping every interval.
func NewTimeoutScheduler(st store.Store, orchestrator *Orchestrator, interval time.Duration, m *metrics.Collector, logger *zap.Logger) *TimeoutScheduler {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &TimeoutScheduler{
		store:        st,
		orchestrator: orchestrator,
		interval:     interval,
		batchSize:    100,
		logger:       logger.With(zap.String("component", "timeout_scheduler")),
		metrics:      m,
	}
}

// Start launches the sweep loop.
func (t *TimeoutScheduler) Start() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	t.cancel = cancel
	t.done = make(chan struct{})
	go t.loop(ctx)
	t.logger.Info("timeout scheduler started", zap.Duration("interval", t.interval))
}

// Stop terminates the loop, waiting for an in-flight sweep.
func (t *TimeoutScheduler) Stop() {
	t.mu.Lock()
	cancel, done := t.cancel, t.done
	t.cancel = nil
	t.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (t *TimeoutScheduler) loop(ctx context.Context) {
	defer close(t.done)

	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			report := t.Sweep(ctx)
			if report.TimedOut > 0 || len(report.StepErrors) > 0 {
				t.logger.Info("timeout sweep finished",
					zap.Int("overdue", report.OverdueCount),
					zap.Int("timed_out", report.TimedOut),
					zap.Int("errors", len(report.StepErrors)))
			}
		}
	}
}

// Sweep processes every overdue awaiting step once. Individual step
// failures are collected in the report, never aborting the sweep.
func (t *TimeoutScheduler) Sweep(ctx context.Context) SweepReport {
	report := SweepReport{StepErrors: make(map[string]error)}

	stats, err := t.store.GetAwaitingStats(ctx)
	if err != nil {
		t.logger.Warn("awaiting stats query failed", zap.Error(err))
	} else {
		report.AwaitingCount = stats.Count
		report.EarliestDeadline = stats.EarliestDeadline
		if t.metrics != nil {
			t.metrics.SetAwaitingSteps(stats.Count)
		}
	}

	overdue, err := t.store.ListAwaitingOverdue(ctx, time.Now(), t.batchSize)
	if err != nil {
		t.logger.Error("overdue query failed", zap.Error(err))
		return report
	}
	report.OverdueCount = len(overdue)

	for _, step := range overdue {
		if err := t.timeoutStep(ctx, step); err != nil {
			report.StepErrors[step.StepID] = err
			continue
		}
		report.TimedOut++
		if t.metrics != nil {
			t.metrics.RecordTimeout()
		}
	}
	return report
}

// timeoutStep transitions one overdue step to TIMEOUT under its read
// version and resumes the owning execution. Losing the version race
// to a concurrent event completion is fine: the step is settled
// either way.
func (t *TimeoutScheduler) timeoutStep(ctx context.Context, step *store.StepExecution) error {
	now := time.Now()
	step.Status = types.StepTimeout
	step.EndTime = &now
	step.AwaitingEvent = false
	step.TimeoutAt = nil
	step.ErrorMessage = "timed out waiting for external completion"

	if err := t.store.UpdateStep(ctx, step); err != nil {
		if types.IsCode(err, types.ErrOptimisticLock) {
			t.logger.Debug("step settled concurrently, skipping",
				zap.String("step_id", step.StepID))
			return nil
		}
		return err
	}

	t.logger.Warn("step timed out",
		zap.String("execution_id", step.ExecutionID),
		zap.String("step_id", step.StepID))

	return t.orchestrator.Run(ctx, step.ExecutionID)
}
