package routing

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/omnidesk/backend/internal/apperr"
	"github.com/omnidesk/backend/internal/auth"
	"github.com/omnidesk/backend/internal/events"
	"github.com/omnidesk/backend/internal/metrics"
	"github.com/omnidesk/backend/internal/mirror"
	"github.com/omnidesk/backend/internal/models"
	"github.com/omnidesk/backend/internal/store"
)

type TransferInput struct {
	TargetUserID       string
	TargetDepartmentID string
	Notes              string
	Priority           *models.Priority
}

// Transfer hands the attendance to a user, a department, or both. A
// department-only transfer clears the assignee so the ticket re-enters that
// department's queue.
func (e *Engine) Transfer(ctx context.Context, ac auth.Context, id string, in TransferInput) (models.Attendance, error) {
	if !ac.Valid() {
		return models.Attendance{}, invalidContext()
	}
	targetUser := strings.TrimSpace(in.TargetUserID)
	targetDept := strings.TrimSpace(in.TargetDepartmentID)
	if targetUser == "" && targetDept == "" {
		return models.Attendance{}, apperr.BadRequest("TRANSFER_TARGET_REQUIRED", "A target user or department is required")
	}
	if in.Priority != nil {
		if _, err := models.ParsePriority(string(*in.Priority)); err != nil {
			return models.Attendance{}, apperr.BadRequest("INVALID_PRIORITY", err.Error())
		}
	}

	var (
		out       models.Attendance
		eventType events.Type
	)
	err := e.store.WithTx(ctx, func(tx store.Tx) error {
		a, err := e.lock(ctx, tx, ac.TenantID, id)
		if err != nil {
			return err
		}
		scope, err := e.scope(ctx, tx, ac)
		if err != nil {
			return err
		}
		if !scope.CanTransfer(a) {
			return apperr.Forbidden("FORBIDDEN", "Only the assignee or a manager can transfer this attendance")
		}
		if !a.Active() {
			return apperr.BadRequest("ATTENDANCE_CLOSED", "Closed attendances cannot be transferred")
		}
		if targetUser != "" {
			if _, err := tx.GetUser(ctx, ac.TenantID, targetUser); err != nil {
				if errors.Is(err, store.ErrNotFound) {
					return apperr.NotFound("USER_NOT_FOUND", "Target user not found")
				}
				return err
			}
		}
		if targetDept != "" {
			if _, err := tx.GetDepartment(ctx, ac.TenantID, targetDept); err != nil {
				if errors.Is(err, store.ErrNotFound) {
					return apperr.NotFound("DEPARTMENT_NOT_FOUND", "Target department not found")
				}
				return err
			}
		}

		now := e.clock.Now()
		a.Status = models.StatusTransferred
		if targetDept != "" {
			a.DepartmentID = &targetDept
		}
		if targetUser != "" {
			a.AssignedUserID = &targetUser
			a.IsUrgent = false
			eventType = events.TypeUpdate
		} else {
			a.AssignedUserID = nil
			eventType = events.TypeTransferred
		}
		if in.Priority != nil {
			a.Priority = *in.Priority
		}
		a.TransferredByID = ac.ActorID()
		a.UpdatedAt = now
		if err := tx.UpdateAttendance(ctx, a); err != nil {
			return err
		}
		if out, err = e.load(ctx, tx, ac.TenantID, id); err != nil {
			return err
		}
		if err := e.appendLog(ctx, tx, out, models.ActionTransferred, ac.ActorID(), transferNotes(targetUser, targetDept, in.Notes), now); err != nil {
			return err
		}
		return mirror.Sync(ctx, tx, out, now)
	})
	if err != nil {
		return models.Attendance{}, e.fail(ac, "transfer", err)
	}
	metrics.RecordTransition(string(models.ActionTransferred))
	e.emitter.Emit(ctx, eventType, out)
	return out, nil
}

func transferNotes(user, dept, notes string) string {
	var parts []string
	if user != "" {
		parts = append(parts, "to user "+user)
	}
	if dept != "" {
		parts = append(parts, "to department "+dept)
	}
	target := strings.Join(parts, ", ")
	if strings.TrimSpace(notes) == "" {
		return target
	}
	return target + ": " + notes
}

func (e *Engine) Close(ctx context.Context, ac auth.Context, id, notes string) (models.Attendance, error) {
	if !ac.Valid() {
		return models.Attendance{}, invalidContext()
	}
	var out models.Attendance
	err := e.store.WithTx(ctx, func(tx store.Tx) error {
		a, err := e.lock(ctx, tx, ac.TenantID, id)
		if err != nil {
			return err
		}
		scope, err := e.scope(ctx, tx, ac)
		if err != nil {
			return err
		}
		if !scope.CanClose(a) {
			return apperr.Forbidden("FORBIDDEN", "Only the assignee or a manager can close this attendance")
		}
		if !a.Active() {
			return apperr.BadRequest("ATTENDANCE_CLOSED", "Attendance is already closed")
		}
		now := e.clock.Now()
		a.Status = models.StatusClosed
		a.EndedAt = timePtr(now)
		a.ClosedByID = ac.ActorID()
		a.IsUrgent = false
		a.UpdatedAt = now
		if err := tx.UpdateAttendance(ctx, a); err != nil {
			return err
		}
		if out, err = e.load(ctx, tx, ac.TenantID, id); err != nil {
			return err
		}
		if err := e.appendLog(ctx, tx, out, models.ActionClosed, ac.ActorID(), notes, now); err != nil {
			return err
		}
		return mirror.Sync(ctx, tx, out, now)
	})
	if err != nil {
		return models.Attendance{}, e.fail(ac, "close", err)
	}
	metrics.RecordTransition(string(models.ActionClosed))
	e.emitter.Emit(ctx, events.TypeUpdate, out)
	return out, nil
}

func (e *Engine) UpdatePriority(ctx context.Context, ac auth.Context, id string, priority models.Priority) (models.Attendance, error) {
	if !ac.Valid() {
		return models.Attendance{}, invalidContext()
	}
	p, err := models.ParsePriority(string(priority))
	if err != nil {
		return models.Attendance{}, apperr.BadRequest("INVALID_PRIORITY", err.Error())
	}
	var out models.Attendance
	err = e.store.WithTx(ctx, func(tx store.Tx) error {
		a, err := e.lock(ctx, tx, ac.TenantID, id)
		if err != nil {
			return err
		}
		scope, err := e.scope(ctx, tx, ac)
		if err != nil {
			return err
		}
		if !scope.CanUpdatePriority(a) {
			return apperr.Forbidden("FORBIDDEN", "Only the assignee or a manager can change priority")
		}
		now := e.clock.Now()
		previous := a.Priority
		a.Priority = p
		a.UpdatedAt = now
		if err := tx.UpdateAttendance(ctx, a); err != nil {
			return err
		}
		if out, err = e.load(ctx, tx, ac.TenantID, id); err != nil {
			return err
		}
		return e.appendLog(ctx, tx, out, models.ActionPriorityChanged, ac.ActorID(), fmt.Sprintf("%s -> %s", previous, p), now)
	})
	if err != nil {
		return models.Attendance{}, e.fail(ac, "update_priority", err)
	}
	metrics.RecordTransition(string(models.ActionPriorityChanged))
	e.emitter.Emit(ctx, events.TypeUpdate, out)
	return out, nil
}
