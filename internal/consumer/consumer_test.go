package consumer

import (
	"context"
	"errors"
	"testing"

	"github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"github.com/omnidesk/backend/internal/models"
	"github.com/omnidesk/backend/internal/routing"
)

type recorder struct {
	incoming []routing.IncomingMessage
	outgoing []routing.OutgoingMessage
	err      error
}

func (r *recorder) ProcessIncomingMessage(_ context.Context, m routing.IncomingMessage) (models.Attendance, error) {
	r.incoming = append(r.incoming, m)
	return models.Attendance{}, r.err
}

func (r *recorder) ProcessOutgoingMessage(_ context.Context, m routing.OutgoingMessage) (*models.Attendance, error) {
	r.outgoing = append(r.outgoing, m)
	return nil, r.err
}

func TestDispatcherRoutesByKey(t *testing.T) {
	rec := &recorder{}
	d := NewDispatcher(rec)
	ctx := context.Background()

	in := `{"meta":{"id":"m1"},"data":{"tenantId":"t1","leadId":"l1","content":"hi","timestamp":"2026-03-01T10:00:00Z"}}`
	if err := d.Handle(ctx, KeyInbound, []byte(in)); err != nil {
		t.Fatalf("inbound: %v", err)
	}
	out := `{"data":{"tenantId":"t1","leadId":"l1","userId":"x"}}`
	if err := d.Handle(ctx, KeyOutbound, []byte(out)); err != nil {
		t.Fatalf("outbound: %v", err)
	}

	if len(rec.incoming) != 1 || rec.incoming[0].LeadID != "l1" || rec.incoming[0].Timestamp == nil || *rec.incoming[0].Content != "hi" {
		t.Fatalf("unexpected incoming %+v", rec.incoming)
	}
	if len(rec.outgoing) != 1 || rec.outgoing[0].UserID == nil || *rec.outgoing[0].UserID != "x" {
		t.Fatalf("unexpected outgoing %+v", rec.outgoing)
	}
}

func TestDispatcherRejectsMalformed(t *testing.T) {
	d := NewDispatcher(&recorder{})
	cases := []struct {
		name string
		key  string
		body string
	}{
		{name: "not json", key: KeyInbound, body: `{`},
		{name: "missing tenant", key: KeyInbound, body: `{"data":{"leadId":"l1"}}`},
		{name: "missing lead", key: KeyOutbound, body: `{"data":{"tenantId":"t1"}}`},
		{name: "unknown key", key: "chat.deleted.v1", body: `{}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := d.Handle(context.Background(), tc.key, []byte(tc.body))
			if !errors.Is(err, ErrMalformed) {
				t.Fatalf("expected ErrMalformed, got %v", err)
			}
		})
	}
}

func TestDispatcherReturnsHandlerError(t *testing.T) {
	boom := errors.New("db down")
	d := NewDispatcher(&recorder{err: boom})
	body := []byte(`{"data":{"tenantId":"t1","leadId":"l1"}}`)
	for _, key := range []string{KeyInbound, KeyOutbound} {
		err := d.Handle(context.Background(), key, body)
		if !errors.Is(err, boom) || errors.Is(err, ErrMalformed) {
			t.Fatalf("%s: expected handler error, got %v", key, err)
		}
	}
}

type settlement struct {
	acked    bool
	nacked   bool
	requeued bool
}

type fakeAcker struct {
	got map[uint64]*settlement
}

func (f *fakeAcker) Ack(tag uint64, _ bool) error {
	f.got[tag] = &settlement{acked: true}
	return nil
}

func (f *fakeAcker) Nack(tag uint64, _ bool, requeue bool) error {
	f.got[tag] = &settlement{nacked: true, requeued: requeue}
	return nil
}

func (f *fakeAcker) Reject(tag uint64, requeue bool) error {
	return f.Nack(tag, false, requeue)
}

func TestWorkerSettlesDeliveries(t *testing.T) {
	rec := &recorder{}
	s := &Subscriber{
		dispatcher: NewDispatcher(rec),
		logger:     zerolog.Nop(),
		msgChan:    make(chan amqp091.Delivery, 3),
	}
	acker := &fakeAcker{got: map[uint64]*settlement{}}
	valid := []byte(`{"data":{"tenantId":"t1","leadId":"l1"}}`)

	s.msgChan <- amqp091.Delivery{Acknowledger: acker, DeliveryTag: 1, RoutingKey: KeyInbound, Body: valid}
	s.msgChan <- amqp091.Delivery{Acknowledger: acker, DeliveryTag: 2, RoutingKey: KeyInbound, Body: []byte(`{`)}
	close(s.msgChan)
	s.wg.Add(1)
	s.workerLoop()

	if got := acker.got[1]; got == nil || !got.acked {
		t.Fatalf("handled delivery must be acked, got %+v", got)
	}
	if got := acker.got[2]; got == nil || !got.nacked || got.requeued {
		t.Fatalf("malformed delivery must be dropped, got %+v", got)
	}

	rec.err = errors.New("db down")
	s.msgChan = make(chan amqp091.Delivery, 1)
	s.msgChan <- amqp091.Delivery{Acknowledger: acker, DeliveryTag: 3, RoutingKey: KeyOutbound, Body: valid}
	close(s.msgChan)
	s.wg.Add(1)
	s.workerLoop()

	if got := acker.got[3]; got == nil || !got.nacked || !got.requeued {
		t.Fatalf("failed delivery must be requeued, got %+v", got)
	}
}
