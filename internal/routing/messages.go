package routing

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/omnidesk/backend/internal/events"
	"github.com/omnidesk/backend/internal/metrics"
	"github.com/omnidesk/backend/internal/mirror"
	"github.com/omnidesk/backend/internal/models"
	"github.com/omnidesk/backend/internal/store"
)

// IncomingMessage is what channel adapters report when a lead writes in.
type IncomingMessage struct {
	TenantID     string
	LeadID       string
	ConnectionID *string
	Content      *string
	Timestamp    *time.Time
}

// OutgoingMessage is what channel adapters report when the team replies.
type OutgoingMessage struct {
	TenantID     string
	LeadID       string
	UserID       *string
	ConnectionID *string
	Content      *string
	Timestamp    *time.Time
}

func (e *Engine) at(ts *time.Time) time.Time {
	if ts != nil && !ts.IsZero() {
		return *ts
	}
	return e.clock.Now()
}

// HandleIncomingMessage creates the lead's attendance when none is active or
// refreshes the active one and recomputes urgency. Failures are logged and
// swallowed; message delivery never depends on them.
func (e *Engine) HandleIncomingMessage(ctx context.Context, msg IncomingMessage) *models.Attendance {
	a, err := e.ProcessIncomingMessage(ctx, msg)
	if err != nil {
		e.logger.Error().Err(err).
			Str("tenant_id", msg.TenantID).
			Str("lead_id", msg.LeadID).
			Str("op", "handle_incoming_message").
			Msg("incoming message bookkeeping failed")
		return nil
	}
	return &a
}

// ProcessIncomingMessage is HandleIncomingMessage for callers that can retry:
// it returns the failure instead of logging it.
func (e *Engine) ProcessIncomingMessage(ctx context.Context, msg IncomingMessage) (models.Attendance, error) {
	a, created, err := e.handleIncoming(ctx, msg)
	metrics.RecordMessage("incoming", err)
	if err != nil {
		return models.Attendance{}, err
	}
	if created {
		metrics.RecordTransition(string(models.ActionCreated))
		e.emitter.Emit(ctx, events.TypeNew, a)
	} else {
		e.emitter.Emit(ctx, events.TypeUpdate, a)
	}
	return a, nil
}

func (e *Engine) handleIncoming(ctx context.Context, msg IncomingMessage) (models.Attendance, bool, error) {
	if msg.TenantID == "" || msg.LeadID == "" {
		return models.Attendance{}, false, errors.New("tenant and lead are required")
	}
	ts := e.at(msg.Timestamp)

	var (
		out     models.Attendance
		created bool
	)
	err := e.store.WithTx(ctx, func(tx store.Tx) error {
		now := e.clock.Now()
		a, err := tx.GetActiveAttendanceByLeadForUpdate(ctx, msg.TenantID, msg.LeadID)
		if errors.Is(err, store.ErrNotFound) {
			a, created, err = e.create(ctx, tx, models.Attendance{
				TenantID:       msg.TenantID,
				LeadID:         msg.LeadID,
				ConnectionID:   msg.ConnectionID,
				LastMessage:    msg.Content,
				LastMessageAt:  timePtr(ts),
				LastIncomingAt: timePtr(ts),
			}, now)
			if err != nil || created {
				out = a
				return err
			}
		} else if err != nil {
			return err
		}

		if msg.ConnectionID != nil {
			a.ConnectionID = msg.ConnectionID
		}
		if msg.Content != nil {
			a.LastMessage = msg.Content
		}
		a.LastMessageAt = timePtr(ts)
		a.LastIncomingAt = timePtr(ts)
		wasUrgent := a.IsUrgent
		a.IsUrgent = Urgent(a.LastOutgoingAt, ts)
		a.UpdatedAt = now
		if err := tx.UpdateAttendance(ctx, a); err != nil {
			return err
		}
		if a.IsUrgent && !wasUrgent {
			metrics.UrgencyFlipsCounter.WithLabelValues("incoming").Inc()
		}
		if out, err = e.load(ctx, tx, msg.TenantID, a.ID); err != nil {
			return err
		}
		return mirror.Sync(ctx, tx, out, now)
	})
	return out, created, err
}

// create opens a new attendance from seed in the tenant's fallback
// department. When a concurrent writer won the race it returns that writer's
// row with created=false.
func (e *Engine) create(ctx context.Context, tx store.Tx, seed models.Attendance, now time.Time) (models.Attendance, bool, error) {
	fallback, err := e.directory.EnsureFallbackDepartment(ctx, tx, seed.TenantID)
	if err != nil {
		return models.Attendance{}, false, err
	}
	previous, err := tx.GetLatestAttendanceByLead(ctx, seed.TenantID, seed.LeadID)
	reopened := err == nil
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return models.Attendance{}, false, err
	}
	if seed.ConnectionID == nil {
		if reopened {
			seed.ConnectionID = previous.ConnectionID
		} else if lead, err := tx.GetLead(ctx, seed.TenantID, seed.LeadID); err == nil {
			seed.ConnectionID = lead.ConnectionID
		}
	}

	depID := fallback.ID
	a := seed
	a.ID = uuid.NewString()
	a.DepartmentID = &depID
	a.AssignedUserID = nil
	a.Status = models.StatusOpen
	a.Priority = models.PriorityNormal
	a.IsUrgent = false
	a.CreatedAt = now
	a.UpdatedAt = now
	ok, err := tx.InsertAttendance(ctx, a)
	if err != nil {
		return models.Attendance{}, false, err
	}
	if !ok {
		existing, err := tx.GetActiveAttendanceByLeadForUpdate(ctx, seed.TenantID, seed.LeadID)
		return existing, false, err
	}
	if err := e.appendLog(ctx, tx, a, models.ActionCreated, nil, "", now); err != nil {
		return models.Attendance{}, false, err
	}
	if reopened {
		if err := e.appendLog(ctx, tx, a, models.ActionReopened, nil, "previous attendance "+previous.ID, now); err != nil {
			return models.Attendance{}, false, err
		}
	}
	if err := mirror.Sync(ctx, tx, a, now); err != nil {
		return models.Attendance{}, false, err
	}
	out, err := e.load(ctx, tx, seed.TenantID, a.ID)
	return out, err == nil, err
}

// HandleOutgoingMessage records a reply on the lead's active attendance. It
// assigns the replying user when nobody owns the ticket. An OPEN or
// TRANSFERRED ticket moves to IN_PROGRESS only if it has an assignee after
// that step; a reply without a known user leaves it unowned and OPEN.
// Without an active attendance it is a no-op returning nil.
func (e *Engine) HandleOutgoingMessage(ctx context.Context, msg OutgoingMessage) *models.Attendance {
	a, err := e.ProcessOutgoingMessage(ctx, msg)
	if err != nil {
		e.logger.Error().Err(err).
			Str("tenant_id", msg.TenantID).
			Str("lead_id", msg.LeadID).
			Str("op", "handle_outgoing_message").
			Msg("outgoing message bookkeeping failed")
		return nil
	}
	return a
}

// ProcessOutgoingMessage is HandleOutgoingMessage returning its failure.
func (e *Engine) ProcessOutgoingMessage(ctx context.Context, msg OutgoingMessage) (*models.Attendance, error) {
	a, autoAssigned, err := e.handleOutgoing(ctx, msg)
	metrics.RecordMessage("outgoing", err)
	if err != nil || a == nil {
		return nil, err
	}
	if autoAssigned {
		metrics.RecordTransition(string(models.ActionAutoAssigned))
	}
	e.emitter.Emit(ctx, events.TypeUpdate, *a)
	return a, nil
}

func (e *Engine) handleOutgoing(ctx context.Context, msg OutgoingMessage) (*models.Attendance, bool, error) {
	if msg.TenantID == "" || msg.LeadID == "" {
		return nil, false, errors.New("tenant and lead are required")
	}
	ts := e.at(msg.Timestamp)

	var (
		out          *models.Attendance
		autoAssigned bool
	)
	err := e.store.WithTx(ctx, func(tx store.Tx) error {
		a, err := tx.GetActiveAttendanceByLeadForUpdate(ctx, msg.TenantID, msg.LeadID)
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		now := e.clock.Now()
		if msg.Content != nil {
			a.LastMessage = msg.Content
		}
		a.LastMessageAt = timePtr(ts)
		a.LastOutgoingAt = timePtr(ts)
		a.IsUrgent = false
		if msg.ConnectionID != nil {
			a.ConnectionID = msg.ConnectionID
		}
		if a.StartedAt == nil {
			a.StartedAt = timePtr(ts)
		}

		if a.AssignedUserID == nil && msg.UserID != nil && *msg.UserID != "" {
			if _, err := tx.GetUser(ctx, msg.TenantID, *msg.UserID); err == nil {
				a.AssignedUserID = copyStr(msg.UserID)
				autoAssigned = true
			} else if !errors.Is(err, store.ErrNotFound) {
				return err
			}
		}
		if a.AssignedUserID != nil && (a.Status == models.StatusOpen || a.Status == models.StatusTransferred) {
			a.Status = models.StatusInProgress
		}
		a.UpdatedAt = now
		if err := tx.UpdateAttendance(ctx, a); err != nil {
			return err
		}
		fresh, err := e.load(ctx, tx, msg.TenantID, a.ID)
		if err != nil {
			return err
		}
		if autoAssigned {
			if err := e.appendLog(ctx, tx, fresh, models.ActionAutoAssigned, copyStr(msg.UserID), "assigned by reply", now); err != nil {
				return err
			}
		}
		out = &fresh
		return mirror.Sync(ctx, tx, fresh, now)
	})
	if err != nil {
		return nil, false, err
	}
	return out, autoAssigned, nil
}
