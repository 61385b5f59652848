package routing

import (
	"context"
	"errors"
	"strings"

	"github.com/omnidesk/backend/internal/apperr"
	"github.com/omnidesk/backend/internal/auth"
	"github.com/omnidesk/backend/internal/models"
	"github.com/omnidesk/backend/internal/store"
)

// ListFilters narrows listAttendances and getStats. Zero values mean "any".
type ListFilters struct {
	Status         *models.AttendanceStatus
	Priority       *models.Priority
	DepartmentID   string
	AssignedUserID string
	Urgent         *bool
	Search         string
	LeadID         string
	Limit          int
	Offset         int
}

func (f ListFilters) query() store.AttendanceQuery {
	q := store.AttendanceQuery{
		Priority:       f.Priority,
		DepartmentID:   strings.TrimSpace(f.DepartmentID),
		AssignedUserID: strings.TrimSpace(f.AssignedUserID),
		Urgent:         f.Urgent,
		Search:         strings.TrimSpace(f.Search),
		LeadID:         strings.TrimSpace(f.LeadID),
		Offset:         f.Offset,
	}
	if f.Status != nil {
		q.Statuses = []models.AttendanceStatus{*f.Status}
	}
	return q
}

func clampLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultPageSize
	case limit > MaxPageSize:
		return MaxPageSize
	}
	return limit
}

// List returns the attendances visible to the caller, urgent and important
// first, then most recent activity. Filters reaching outside a restricted
// caller's scope yield an empty page.
func (e *Engine) List(ctx context.Context, ac auth.Context, f ListFilters) ([]models.Attendance, error) {
	if !ac.Valid() {
		return nil, invalidContext()
	}
	q := f.query()
	q.Order = store.OrderInbox
	q.Limit = clampLimit(f.Limit)
	if q.Offset < 0 {
		q.Offset = 0
	}
	var out []models.Attendance
	err := e.store.View(ctx, func(tx store.Tx) error {
		var err error
		if q.Scope, err = e.scope(ctx, tx, ac); err != nil {
			return err
		}
		out, err = tx.ListAttendances(ctx, q)
		return err
	})
	if err != nil {
		return nil, e.fail(ac, "list_attendances", err)
	}
	if out == nil {
		out = []models.Attendance{}
	}
	return out, nil
}

// SmartQueue returns the next tickets the caller could pick up: highest
// priority first, then urgent, then oldest.
func (e *Engine) SmartQueue(ctx context.Context, ac auth.Context) ([]models.Attendance, error) {
	if !ac.Valid() {
		return nil, invalidContext()
	}
	var out []models.Attendance
	err := e.store.View(ctx, func(tx store.Tx) error {
		scope, err := e.scope(ctx, tx, ac)
		if err != nil {
			return err
		}
		out, err = tx.ListAttendances(ctx, store.AttendanceQuery{
			Scope:         scope,
			AvailableOnly: true,
			Order:         store.OrderQueue,
			Limit:         SmartQueueSize,
		})
		return err
	})
	if err != nil {
		return nil, e.fail(ac, "smart_queue", err)
	}
	if out == nil {
		out = []models.Attendance{}
	}
	return out, nil
}

func (e *Engine) Stats(ctx context.Context, ac auth.Context, f ListFilters) (models.Stats, error) {
	if !ac.Valid() {
		return models.Stats{}, invalidContext()
	}
	q := f.query()
	q.Offset = 0
	var st models.Stats
	err := e.store.View(ctx, func(tx store.Tx) error {
		var err error
		if q.Scope, err = e.scope(ctx, tx, ac); err != nil {
			return err
		}
		st, err = tx.AttendanceStats(ctx, q)
		return err
	})
	if err != nil {
		return models.Stats{}, e.fail(ac, "stats", err)
	}
	return st, nil
}

func (e *Engine) Get(ctx context.Context, ac auth.Context, id string) (models.Attendance, error) {
	if !ac.Valid() {
		return models.Attendance{}, invalidContext()
	}
	var a models.Attendance
	err := e.store.View(ctx, func(tx store.Tx) error {
		var err error
		if a, err = e.load(ctx, tx, ac.TenantID, id); err != nil {
			return err
		}
		return e.requireView(ctx, tx, ac, a)
	})
	if err != nil {
		return models.Attendance{}, e.fail(ac, "get_attendance", err)
	}
	return a, nil
}

// GetByLead returns the lead's active attendance, or its most recent one
// when all are closed.
func (e *Engine) GetByLead(ctx context.Context, ac auth.Context, leadID string) (models.Attendance, error) {
	if !ac.Valid() {
		return models.Attendance{}, invalidContext()
	}
	var a models.Attendance
	err := e.store.View(ctx, func(tx store.Tx) error {
		var err error
		a, err = tx.GetLatestAttendanceByLead(ctx, ac.TenantID, leadID)
		if errors.Is(err, store.ErrNotFound) {
			return attendanceNotFound()
		}
		if err != nil {
			return err
		}
		return e.requireView(ctx, tx, ac, a)
	})
	if err != nil {
		return models.Attendance{}, e.fail(ac, "get_attendance_by_lead", err)
	}
	return a, nil
}

func (e *Engine) ListLogs(ctx context.Context, ac auth.Context, id string) ([]models.AttendanceLog, error) {
	if !ac.Valid() {
		return nil, invalidContext()
	}
	var out []models.AttendanceLog
	err := e.store.View(ctx, func(tx store.Tx) error {
		a, err := e.load(ctx, tx, ac.TenantID, id)
		if err != nil {
			return err
		}
		if err := e.requireView(ctx, tx, ac, a); err != nil {
			return err
		}
		out, err = tx.ListLogs(ctx, ac.TenantID, id)
		return err
	})
	if err != nil {
		return nil, e.fail(ac, "list_logs", err)
	}
	if out == nil {
		out = []models.AttendanceLog{}
	}
	return out, nil
}

func (e *Engine) requireView(ctx context.Context, tx store.Tx, ac auth.Context, a models.Attendance) error {
	scope, err := e.scope(ctx, tx, ac)
	if err != nil {
		return err
	}
	if !scope.CanView(a) {
		return apperr.Forbidden("FORBIDDEN", "You cannot view this attendance")
	}
	return nil
}
