// Package events broadcasts attendance lifecycle changes. Publishers are
// fire-and-forget from the caller's point of view: the Emitter logs and
// counts failures but never reports them to the mutation that caused them.
package events

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/omnidesk/backend/internal/clock"
	"github.com/omnidesk/backend/internal/metrics"
	"github.com/omnidesk/backend/internal/models"
)

type Type string

const (
	TypeNew         Type = "attendance:new"
	TypeUpdate      Type = "attendance:update"
	TypeTransferred Type = "attendance:transferred"
)

// RoutingKey is the AMQP routing key for t, e.g. attendance.update.
func (t Type) RoutingKey() string {
	return strings.ReplaceAll(string(t), ":", ".")
}

type Event struct {
	Type       Type              `json:"type"`
	TenantID   string            `json:"tenantId"`
	Attendance models.Attendance `json:"attendance"`
	OccurredAt time.Time         `json:"occurredAt"`
}

type Publisher interface {
	Publish(ctx context.Context, e Event) error
	Close() error
}

// Multi fans an event out to every publisher and joins their errors.
type Multi []Publisher

func (m Multi) Publish(ctx context.Context, e Event) error {
	var errs []error
	for _, p := range m {
		if err := p.Publish(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m Multi) Close() error {
	var errs []error
	for _, p := range m {
		if err := p.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

const defaultEmitTimeout = 3 * time.Second

type Emitter struct {
	pub     Publisher
	clock   clock.Clock
	logger  zerolog.Logger
	timeout time.Duration
}

func NewEmitter(pub Publisher, c clock.Clock, logger zerolog.Logger) *Emitter {
	return &Emitter{pub: pub, clock: c, logger: logger, timeout: defaultEmitTimeout}
}

// Emit publishes with a context detached from the caller's cancellation.
func (e *Emitter) Emit(ctx context.Context, t Type, a models.Attendance) {
	if e == nil || e.pub == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.timeout)
	defer cancel()

	err := e.pub.Publish(ctx, Event{Type: t, TenantID: a.TenantID, Attendance: a, OccurredAt: e.clock.Now()})
	metrics.RecordEvent(string(t), err)
	if err != nil {
		e.logger.Warn().Err(err).
			Str("event", string(t)).
			Str("tenant_id", a.TenantID).
			Str("attendance_id", a.ID).
			Msg("event publish failed")
	}
}
