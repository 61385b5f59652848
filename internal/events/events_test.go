package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/omnidesk/backend/internal/clock"
	"github.com/omnidesk/backend/internal/models"
)

func TestHubDeliversOnlyToTenant(t *testing.T) {
	h := NewHub(zerolog.Nop())
	a := h.Subscribe("t1")
	b := h.Subscribe("t2")
	defer a.Close()
	defer b.Close()

	if err := h.Publish(context.Background(), Event{Type: TypeNew, TenantID: "t1"}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	select {
	case e := <-a.C:
		if e.Type != TypeNew {
			t.Fatalf("unexpected event %+v", e)
		}
	case <-time.After(time.Second):
		t.Fatalf("tenant subscriber did not receive event")
	}
	select {
	case e := <-b.C:
		t.Fatalf("other tenant must not receive %+v", e)
	default:
	}
}

func TestHubDropsForSlowSubscriber(t *testing.T) {
	h := NewHub(zerolog.Nop())
	s := h.Subscribe("t1")
	defer s.Close()
	for i := 0; i < subscriberBufferSize+10; i++ {
		_ = h.Publish(context.Background(), Event{Type: TypeUpdate, TenantID: "t1"})
	}
	if got := len(s.C); got != subscriberBufferSize {
		t.Fatalf("expected buffer to cap at %d, got %d", subscriberBufferSize, got)
	}
}

func TestSubscriptionCloseIsIdempotent(t *testing.T) {
	h := NewHub(zerolog.Nop())
	s := h.Subscribe("t1")
	s.Close()
	s.Close()
	if h.Subscribers("t1") != 0 {
		t.Fatalf("closed subscription must be unregistered")
	}
	if _, ok := <-s.C; ok {
		t.Fatalf("channel must be closed")
	}
	_ = h.Close()
}

type failingPublisher struct{ calls int }

func (p *failingPublisher) Publish(context.Context, Event) error {
	p.calls++
	return errors.New("broker down")
}

func (p *failingPublisher) Close() error { return nil }

func TestEmitterSwallowsPublisherErrors(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	sub := hub.Subscribe("t1")
	defer sub.Close()
	bad := &failingPublisher{}
	e := NewEmitter(Multi{bad, hub}, clock.NewFake(time.Unix(0, 0)), zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	e.Emit(ctx, TypeTransferred, models.Attendance{ID: "a1", TenantID: "t1"})

	if bad.calls != 1 {
		t.Fatalf("expected failing publisher to be called once, got %d", bad.calls)
	}
	select {
	case got := <-sub.C:
		if got.Attendance.ID != "a1" || got.Type != TypeTransferred {
			t.Fatalf("unexpected event %+v", got)
		}
	default:
		t.Fatalf("healthy publisher must still receive the event")
	}
}

func TestEnvelopeShape(t *testing.T) {
	env := NewEnvelope(Event{Type: TypeUpdate, TenantID: "t1", OccurredAt: time.Unix(10, 0)}, "attendance-router")
	if env.Meta.Type != "attendance.update.v1" || env.Meta.ID == "" || env.Meta.CorrelationID != env.Meta.ID {
		t.Fatalf("unexpected meta %+v", env.Meta)
	}
	raw, err := json.Marshal(env)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded map[string]map[string]any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded["data"]["tenantId"] != "t1" || decoded["meta"]["producer"] != "attendance-router" {
		t.Fatalf("unexpected envelope %s", raw)
	}
}

type gatedPublisher struct {
	started chan struct{}
	release chan struct{}
	got     chan Event
	closed  bool
}

func (p *gatedPublisher) Publish(_ context.Context, e Event) error {
	select {
	case p.started <- struct{}{}:
	default:
	}
	<-p.release
	p.got <- e
	return nil
}

func (p *gatedPublisher) Close() error {
	p.closed = true
	return nil
}

func TestQueuedPublisherDoesNotBlockCaller(t *testing.T) {
	inner := &gatedPublisher{
		started: make(chan struct{}, 1),
		release: make(chan struct{}),
		got:     make(chan Event, 10),
	}
	q := NewQueued(inner, 2, time.Second, zerolog.Nop())
	ctx := context.Background()

	if err := q.Publish(ctx, Event{Type: TypeNew, TenantID: "t1"}); err != nil {
		t.Fatalf("first publish: %v", err)
	}
	select {
	case <-inner.started:
	case <-time.After(time.Second):
		t.Fatalf("worker never picked up the first event")
	}

	start := time.Now()
	for i := 0; i < 2; i++ {
		if err := q.Publish(ctx, Event{Type: TypeUpdate, TenantID: "t1"}); err != nil {
			t.Fatalf("buffered publish %d: %v", i, err)
		}
	}
	if err := q.Publish(ctx, Event{Type: TypeUpdate, TenantID: "t1"}); !errors.Is(err, ErrQueueFull) {
		t.Fatalf("expected ErrQueueFull, got %v", err)
	}
	if time.Since(start) > 500*time.Millisecond {
		t.Fatalf("publish blocked on a stalled broker")
	}

	close(inner.release)
	if err := q.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if len(inner.got) != 3 || !inner.closed {
		t.Fatalf("close must drain 3 events and close the broker, got %d closed=%v", len(inner.got), inner.closed)
	}
	if err := q.Publish(ctx, Event{Type: TypeUpdate}); !errors.Is(err, ErrQueueClosed) {
		t.Fatalf("expected ErrQueueClosed, got %v", err)
	}
}
