package events

import "sync"

// pendingEvent is a failed publish waiting for another attempt.
type pendingEvent struct {
	topic    string
	event    Event
	attempts int
}

// retryQueue is a bounded FIFO of failed publishes. When full, the
// oldest entry is dropped to admit the newest one.
type retryQueue struct {
	mu       sync.Mutex
	entries  []pendingEvent
	capacity int
	dropped  int64
}

func newRetryQueue(capacity int) *retryQueue {
	if capacity <= 0 {
		capacity = 1000
	}
	return &retryQueue{capacity: capacity}
}

// push appends an entry, evicting the oldest when at capacity. It
// returns true when an eviction happened.
func (q *retryQueue) push(e pendingEvent) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	evicted := false
	if len(q.entries) >= q.capacity {
		q.entries = q.entries[1:]
		q.dropped++
		evicted = true
	}
	q.entries = append(q.entries, e)
	return evicted
}

// drain removes and returns up to max entries from the front.
func (q *retryQueue) drain(max int) []pendingEvent {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := len(q.entries)
	if n == 0 {
		return nil
	}
	if max > 0 && n > max {
		n = max
	}
	batch := make([]pendingEvent, n)
	copy(batch, q.entries[:n])
	q.entries = q.entries[n:]
	return batch
}

func (q *retryQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

func (q *retryQueue) droppedCount() int64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}
