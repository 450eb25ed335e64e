package events

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// BroadcasterOptions tunes buffering and retry behavior. Zero values
// fall back to sane defaults.
type BroadcasterOptions struct {
	// BufferSize is the notification channel depth. When the buffer
	// is full notifications are dropped, never blocking the engine.
	BufferSize int
	// QueueCapacity bounds the retry queue; the oldest entry is
	// evicted when a new failure arrives at capacity.
	QueueCapacity int
	// MaxRetries is the total attempt count per event before it is
	// dropped for good.
	MaxRetries int
	// RetryInterval is how often the retry queue is drained.
	RetryInterval time.Duration
	// RetryBatch caps entries retried per drain cycle.
	RetryBatch int
	// PublishRate limits retry publishes per second.
	PublishRate rate.Limit
	// DefaultTopic receives events for executions without callback
	// topics of their own. Empty disables the fallback.
	DefaultTopic string
	// Metrics receives delivery instrumentation when non-nil.
	Metrics EventRecorder
}

// EventRecorder receives delivery outcomes and retry queue depth.
// *metrics.Collector satisfies it.
type EventRecorder interface {
	RecordEventPublished(eventType, outcome string)
	SetRetryQueueDepth(n int)
}

func (o *BroadcasterOptions) applyDefaults() {
	if o.BufferSize <= 0 {
		o.BufferSize = 256
	}
	if o.QueueCapacity <= 0 {
		o.QueueCapacity = 1000
	}
	if o.MaxRetries <= 0 {
		o.MaxRetries = 3
	}
	if o.RetryInterval <= 0 {
		o.RetryInterval = 5 * time.Second
	}
	if o.RetryBatch <= 0 {
		o.RetryBatch = 50
	}
	if o.PublishRate <= 0 {
		o.PublishRate = 100
	}
}

type notification struct {
	topics []string
	event  Event
}

// Broadcaster fans execution events out to callback topics. Topics
// travel with every Notify call, sourced from the execution row, so
// any instance can deliver for any execution regardless of which one
// accepted the submit. The retry queue is the only mutable state.
// Notify never blocks: delivery runs on a background goroutine and
// failed publishes go through the bounded retry queue.
type Broadcaster struct {
	publisher Publisher
	logger    *zap.Logger
	opts      BroadcasterOptions
	limiter   *rate.Limiter

	notifyCh chan notification
	retry    *retryQueue

	lifecycle sync.Mutex
	cancel    context.CancelFunc
	done      chan struct{}
}

// NewBroadcaster creates a broadcaster on publisher. Call Start before
// the first Notify.
func NewBroadcaster(publisher Publisher, logger *zap.Logger, opts BroadcasterOptions) *Broadcaster {
	opts.applyDefaults()
	return &Broadcaster{
		publisher: publisher,
		logger:    logger.With(zap.String("component", "broadcaster")),
		opts:      opts,
		limiter:   rate.NewLimiter(opts.PublishRate, 1),
		notifyCh:  make(chan notification, opts.BufferSize),
		retry:     newRetryQueue(opts.QueueCapacity),
	}
}

// Notify queues event for delivery to topics, typically the callback
// topics persisted on the execution row. Without topics the configured
// default topic applies; without that either, Notify is a no-op. It
// never blocks: when the buffer is saturated the event is dropped with
// a warning.
func (b *Broadcaster) Notify(topics []string, event Event) {
	if len(topics) == 0 {
		if b.opts.DefaultTopic == "" {
			return
		}
		topics = []string{b.opts.DefaultTopic}
	}

	select {
	case b.notifyCh <- notification{topics: topics, event: event}:
	default:
		b.logger.Warn("notification buffer full, dropping event",
			zap.String("type", event.Type),
			zap.String("execution_id", event.ExecutionID))
		b.recordOutcome(event.Type, "dropped")
	}
}

// Start launches the delivery and retry loops.
func (b *Broadcaster) Start() {
	b.lifecycle.Lock()
	defer b.lifecycle.Unlock()
	if b.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	b.cancel = cancel
	b.done = make(chan struct{})
	go b.loop(ctx)
}

// Stop terminates delivery. Queued notifications and retries still
// pending are discarded.
func (b *Broadcaster) Stop() {
	b.lifecycle.Lock()
	cancel, done := b.cancel, b.done
	b.cancel = nil
	b.lifecycle.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (b *Broadcaster) loop(ctx context.Context) {
	defer close(b.done)

	ticker := time.NewTicker(b.opts.RetryInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case n := <-b.notifyCh:
			b.deliver(ctx, n)
		case <-ticker.C:
			b.drainRetries(ctx)
		}
	}
}

func (b *Broadcaster) deliver(ctx context.Context, n notification) {
	for _, topic := range n.topics {
		if err := b.publisher.Publish(ctx, topic, n.event); err != nil {
			b.logger.Warn("publish failed, queued for retry",
				zap.String("topic", topic),
				zap.String("type", n.event.Type),
				zap.Error(err))
			if b.retry.push(pendingEvent{topic: topic, event: n.event, attempts: 1}) {
				b.logger.Warn("retry queue full, oldest entry evicted")
				b.recordOutcome(n.event.Type, "dropped")
			}
			b.recordQueueDepth()
			continue
		}
		b.recordOutcome(n.event.Type, "delivered")
	}
}

func (b *Broadcaster) drainRetries(ctx context.Context) {
	batch := b.retry.drain(b.opts.RetryBatch)
	for _, entry := range batch {
		if err := b.limiter.Wait(ctx); err != nil {
			return
		}
		err := b.publisher.Publish(ctx, entry.topic, entry.event)
		if err == nil {
			b.recordOutcome(entry.event.Type, "delivered")
			continue
		}
		entry.attempts++
		if entry.attempts >= b.opts.MaxRetries {
			b.logger.Warn("event dropped after retries exhausted",
				zap.String("topic", entry.topic),
				zap.String("type", entry.event.Type),
				zap.Int("attempts", entry.attempts))
			b.recordOutcome(entry.event.Type, "dropped")
			continue
		}
		b.retry.push(entry)
	}
	b.recordQueueDepth()
}

// PendingRetries reports the retry queue depth, for metrics and tests.
func (b *Broadcaster) PendingRetries() int {
	return b.retry.len()
}

func (b *Broadcaster) recordOutcome(eventType, outcome string) {
	if b.opts.Metrics != nil {
		b.opts.Metrics.RecordEventPublished(eventType, outcome)
	}
}

func (b *Broadcaster) recordQueueDepth() {
	if b.opts.Metrics != nil {
		b.opts.Metrics.SetRetryQueueDepth(b.retry.len())
	}
}
