package events

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/omnidesk/backend/internal/metrics"
)

// subscriberBufferSize bounds how far a stream client may lag before
// events are dropped for it.
const subscriberBufferSize = 256

// Hub delivers events to in-process stream subscribers of the event's
// tenant. Publish never blocks on a slow subscriber.
type Hub struct {
	mu     sync.RWMutex
	subs   map[string]map[*Subscription]struct{}
	closed bool
	logger zerolog.Logger
}

type Subscription struct {
	C        <-chan Event
	ch       chan Event
	tenantID string
	hub      *Hub
	once     sync.Once
}

func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{subs: map[string]map[*Subscription]struct{}{}, logger: logger}
}

func (h *Hub) Subscribe(tenantID string) *Subscription {
	ch := make(chan Event, subscriberBufferSize)
	s := &Subscription{C: ch, ch: ch, tenantID: tenantID, hub: h}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		close(ch)
		return s
	}
	if h.subs[tenantID] == nil {
		h.subs[tenantID] = map[*Subscription]struct{}{}
	}
	h.subs[tenantID][s] = struct{}{}
	metrics.StreamSubscribersGauge.Inc()
	return s
}

// Close unregisters the subscription and closes its channel. Safe to call
// more than once.
func (s *Subscription) Close() {
	s.once.Do(func() {
		h := s.hub
		h.mu.Lock()
		defer h.mu.Unlock()
		if _, ok := h.subs[s.tenantID][s]; !ok {
			return
		}
		delete(h.subs[s.tenantID], s)
		if len(h.subs[s.tenantID]) == 0 {
			delete(h.subs, s.tenantID)
		}
		close(s.ch)
		metrics.StreamSubscribersGauge.Dec()
	})
}

func (h *Hub) Publish(_ context.Context, e Event) error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for s := range h.subs[e.TenantID] {
		select {
		case s.ch <- e:
		default:
			metrics.StreamDroppedCounter.Inc()
			h.logger.Debug().Str("tenant_id", e.TenantID).Str("event", string(e.Type)).Msg("stream subscriber lagging, event dropped")
		}
	}
	return nil
}

// Close disconnects every subscriber.
func (h *Hub) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}
	h.closed = true
	for tenantID, subs := range h.subs {
		for s := range subs {
			close(s.ch)
			metrics.StreamSubscribersGauge.Dec()
		}
		delete(h.subs, tenantID)
	}
	return nil
}

func (h *Hub) Subscribers(tenantID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[tenantID])
}
