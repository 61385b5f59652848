package events

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/omnidesk/backend/internal/metrics"
)

var (
	ErrQueueFull   = errors.New("event queue full")
	ErrQueueClosed = errors.New("event queue closed")
)

// QueuedPublisher hands events to a background worker so a slow or
// unreachable broker never stalls the caller. Publish fails fast when the
// buffer is full; the worker logs delivery failures.
type QueuedPublisher struct {
	next    Publisher
	timeout time.Duration
	logger  zerolog.Logger

	mu     sync.RWMutex
	closed bool
	queue  chan Event
	done   chan struct{}
}

func NewQueued(next Publisher, size int, timeout time.Duration, logger zerolog.Logger) *QueuedPublisher {
	if size <= 0 {
		size = 1
	}
	q := &QueuedPublisher{
		next:    next,
		timeout: timeout,
		logger:  logger,
		queue:   make(chan Event, size),
		done:    make(chan struct{}),
	}
	go q.run()
	return q
}

func (q *QueuedPublisher) Publish(_ context.Context, e Event) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrQueueClosed
	}
	select {
	case q.queue <- e:
		return nil
	default:
		return ErrQueueFull
	}
}

func (q *QueuedPublisher) run() {
	defer close(q.done)
	for e := range q.queue {
		ctx, cancel := context.WithTimeout(context.Background(), q.timeout)
		err := q.next.Publish(ctx, e)
		cancel()
		metrics.RecordBrokerPublish(err)
		if err != nil {
			q.logger.Warn().Err(err).
				Str("event", string(e.Type)).
				Str("tenant_id", e.TenantID).
				Str("attendance_id", e.Attendance.ID).
				Msg("broker publish failed")
		}
	}
}

// Close stops accepting events, drains the buffer and closes next.
func (q *QueuedPublisher) Close() error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	close(q.queue)
	q.mu.Unlock()
	<-q.done
	return q.next.Close()
}
