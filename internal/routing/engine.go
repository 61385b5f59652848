// Package routing drives the attendance lifecycle: creation from inbound
// messages, claim, transfer, close, priority, urgency and the repair jobs
// that keep the conversation mirror in line with ticket ownership.
package routing

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/omnidesk/backend/internal/apperr"
	"github.com/omnidesk/backend/internal/auth"
	"github.com/omnidesk/backend/internal/clock"
	"github.com/omnidesk/backend/internal/directory"
	"github.com/omnidesk/backend/internal/events"
	"github.com/omnidesk/backend/internal/models"
	"github.com/omnidesk/backend/internal/policy"
	"github.com/omnidesk/backend/internal/store"
)

const (
	// UrgencyThreshold is how long a customer may wait for a reply before
	// the attendance is flagged urgent.
	UrgencyThreshold = 5 * time.Minute

	SmartQueueSize  = 10
	DefaultPageSize = 50
	MaxPageSize     = 200

	repairBatch = 500
)

type Engine struct {
	store     store.Store
	directory *directory.Directory
	emitter   *events.Emitter
	clock     clock.Clock
	rules     policy.Rules
	logger    zerolog.Logger
}

func New(s store.Store, dir *directory.Directory, emitter *events.Emitter, c clock.Clock, rules policy.Rules, logger zerolog.Logger) *Engine {
	return &Engine{
		store:     s,
		directory: dir,
		emitter:   emitter,
		clock:     c,
		rules:     rules,
		logger:    logger,
	}
}

func (e *Engine) fail(ac auth.Context, op string, err error) error {
	var ae *apperr.Error
	if errors.As(err, &ae) {
		return ae
	}
	e.logger.Error().Err(err).
		Str("tenant_id", ac.TenantID).
		Str("user_id", ac.UserID()).
		Str("op", op).
		Msg("routing operation failed")
	return apperr.Internal(err)
}

func invalidContext() *apperr.Error {
	return apperr.Forbidden("INVALID_CONTEXT", "A tenant and caller are required")
}

func attendanceNotFound() *apperr.Error {
	return apperr.NotFound("ATTENDANCE_NOT_FOUND", "Attendance not found")
}

// scope computes the caller's visibility once per unit of work.
func (e *Engine) scope(ctx context.Context, tx store.Tx, ac auth.Context) (policy.Scope, error) {
	if ac.Privileged() {
		return policy.TenantWide(ac.TenantID, e.rules), nil
	}
	deps, err := tx.ListUserDepartments(ctx, ac.TenantID, ac.UserID())
	if err != nil {
		return policy.Scope{}, err
	}
	ids := make([]string, 0, len(deps))
	for _, d := range deps {
		ids = append(ids, d.ID)
	}
	return policy.For(ac, ids, e.rules), nil
}

func (e *Engine) load(ctx context.Context, tx store.Tx, tenantID, id string) (models.Attendance, error) {
	a, err := tx.GetAttendance(ctx, tenantID, id)
	if errors.Is(err, store.ErrNotFound) {
		return models.Attendance{}, attendanceNotFound()
	}
	return a, err
}

// lock is load with a row lock held until the unit of work ends.
func (e *Engine) lock(ctx context.Context, tx store.Tx, tenantID, id string) (models.Attendance, error) {
	a, err := tx.GetAttendanceForUpdate(ctx, tenantID, id)
	if errors.Is(err, store.ErrNotFound) {
		return models.Attendance{}, attendanceNotFound()
	}
	return a, err
}

func (e *Engine) appendLog(ctx context.Context, tx store.Tx, a models.Attendance, action models.LogAction, actor *string, notes string, at time.Time) error {
	return tx.InsertLog(ctx, models.AttendanceLog{
		ID:            uuid.NewString(),
		AttendanceID:  a.ID,
		TenantID:      a.TenantID,
		Action:        action,
		PerformedByID: actor,
		Notes:         notes,
		CreatedAt:     at,
	})
}

// Urgent reports whether a customer message at `at` has waited too long
// since the last reply. No reply ever sent counts as an infinite wait.
func Urgent(lastOutgoing *time.Time, at time.Time) bool {
	if lastOutgoing == nil {
		return true
	}
	return at.Sub(*lastOutgoing) >= UrgencyThreshold
}

func timePtr(t time.Time) *time.Time { return &t }
