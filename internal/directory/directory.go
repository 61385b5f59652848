// Package directory manages departments and their membership. Mutations are
// reserved to privileged callers; reads are open to anyone in the tenant.
package directory

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/omnidesk/backend/internal/apperr"
	"github.com/omnidesk/backend/internal/auth"
	"github.com/omnidesk/backend/internal/clock"
	"github.com/omnidesk/backend/internal/events"
	"github.com/omnidesk/backend/internal/metrics"
	"github.com/omnidesk/backend/internal/mirror"
	"github.com/omnidesk/backend/internal/models"
	"github.com/omnidesk/backend/internal/store"
)

// FallbackName names the department auto-provisioned for each tenant.
const FallbackName = "General"

type Directory struct {
	store   store.Store
	clock   clock.Clock
	emitter *events.Emitter
	logger  zerolog.Logger
}

func New(s store.Store, c clock.Clock, emitter *events.Emitter, logger zerolog.Logger) *Directory {
	return &Directory{store: s, clock: c, emitter: emitter, logger: logger}
}

type DepartmentInput struct {
	Name        string
	Description string
}

func (d *Directory) fail(ac auth.Context, op string, err error) error {
	var ae *apperr.Error
	if errors.As(err, &ae) {
		return ae
	}
	d.logger.Error().Err(err).
		Str("tenant_id", ac.TenantID).
		Str("user_id", ac.UserID()).
		Str("op", op).
		Msg("directory operation failed")
	return apperr.Internal(err)
}

func requirePrivileged(ac auth.Context) error {
	if !ac.Privileged() {
		return apperr.Forbidden("FORBIDDEN", "Only admins and managers can manage departments")
	}
	return nil
}

func departmentNotFound() *apperr.Error {
	return apperr.NotFound("DEPARTMENT_NOT_FOUND", "Department not found")
}

func (d *Directory) List(ctx context.Context, ac auth.Context) ([]models.Department, error) {
	var out []models.Department
	err := d.store.View(ctx, func(tx store.Tx) error {
		var err error
		out, err = tx.ListDepartments(ctx, ac.TenantID)
		return err
	})
	if err != nil {
		return nil, d.fail(ac, "list_departments", err)
	}
	return out, nil
}

func (d *Directory) Get(ctx context.Context, ac auth.Context, id string) (models.Department, error) {
	var dep models.Department
	err := d.store.View(ctx, func(tx store.Tx) error {
		var err error
		dep, err = tx.GetDepartment(ctx, ac.TenantID, id)
		if errors.Is(err, store.ErrNotFound) {
			return departmentNotFound()
		}
		return err
	})
	if err != nil {
		return models.Department{}, d.fail(ac, "get_department", err)
	}
	return dep, nil
}

func (d *Directory) Create(ctx context.Context, ac auth.Context, in DepartmentInput) (models.Department, error) {
	if err := requirePrivileged(ac); err != nil {
		return models.Department{}, err
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return models.Department{}, apperr.BadRequest("INVALID_NAME", "Department name is required")
	}
	now := d.clock.Now()
	dep := models.Department{
		ID:          uuid.NewString(),
		TenantID:    ac.TenantID,
		Name:        name,
		Description: strings.TrimSpace(in.Description),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	err := d.store.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.InsertDepartment(ctx, dep); err != nil {
			if errors.Is(err, store.ErrDuplicate) {
				return apperr.Conflict("DEPARTMENT_NAME_TAKEN", "A department with this name already exists")
			}
			return err
		}
		return nil
	})
	if err != nil {
		return models.Department{}, d.fail(ac, "create_department", err)
	}
	return dep, nil
}

func (d *Directory) Update(ctx context.Context, ac auth.Context, id string, in DepartmentInput) (models.Department, error) {
	if err := requirePrivileged(ac); err != nil {
		return models.Department{}, err
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return models.Department{}, apperr.BadRequest("INVALID_NAME", "Department name is required")
	}
	var dep models.Department
	err := d.store.WithTx(ctx, func(tx store.Tx) error {
		var err error
		dep, err = tx.GetDepartment(ctx, ac.TenantID, id)
		if errors.Is(err, store.ErrNotFound) {
			return departmentNotFound()
		}
		if err != nil {
			return err
		}
		dep.Name = name
		dep.Description = strings.TrimSpace(in.Description)
		dep.UpdatedAt = d.clock.Now()
		err = tx.UpdateDepartment(ctx, dep)
		switch {
		case errors.Is(err, store.ErrDuplicate):
			return apperr.Conflict("DEPARTMENT_NAME_TAKEN", "A department with this name already exists")
		case errors.Is(err, store.ErrNotFound):
			return departmentNotFound()
		}
		return err
	})
	if err != nil {
		return models.Department{}, d.fail(ac, "update_department", err)
	}
	return dep, nil
}

// Delete removes memberships, detaches attendances and removes the
// department in one unit of work. Attendances are never deleted.
func (d *Directory) Delete(ctx context.Context, ac auth.Context, id string) error {
	if err := requirePrivileged(ac); err != nil {
		return err
	}
	var detached []models.Attendance
	err := d.store.WithTx(ctx, func(tx store.Tx) error {
		if _, err := tx.GetDepartment(ctx, ac.TenantID, id); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return departmentNotFound()
			}
			return err
		}
		if err := tx.DeleteMemberships(ctx, ac.TenantID, id); err != nil {
			return err
		}
		now := d.clock.Now()
		var err error
		detached, err = tx.ClearAttendanceDepartment(ctx, ac.TenantID, id, now)
		if err != nil {
			return err
		}
		for _, a := range detached {
			if err := tx.InsertLog(ctx, models.AttendanceLog{
				ID:            uuid.NewString(),
				AttendanceID:  a.ID,
				TenantID:      a.TenantID,
				Action:        models.ActionDepartmentCleared,
				PerformedByID: ac.ActorID(),
				Notes:         "department deleted",
				CreatedAt:     now,
			}); err != nil {
				return err
			}
			if err := mirror.Sync(ctx, tx, a, now); err != nil {
				return err
			}
		}
		return tx.DeleteDepartment(ctx, ac.TenantID, id)
	})
	if err != nil {
		return d.fail(ac, "delete_department", err)
	}
	for _, a := range detached {
		if a.Active() {
			d.emitter.Emit(ctx, events.TypeUpdate, a)
		}
	}
	return nil
}

func (d *Directory) ListMembers(ctx context.Context, ac auth.Context, departmentID string) ([]models.DepartmentMembership, error) {
	var out []models.DepartmentMembership
	err := d.store.View(ctx, func(tx store.Tx) error {
		if _, err := tx.GetDepartment(ctx, ac.TenantID, departmentID); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return departmentNotFound()
			}
			return err
		}
		var err error
		out, err = tx.ListMembers(ctx, ac.TenantID, departmentID)
		return err
	})
	if err != nil {
		return nil, d.fail(ac, "list_members", err)
	}
	return out, nil
}

func (d *Directory) AddMember(ctx context.Context, ac auth.Context, departmentID, userID string, role models.MembershipRole) (models.DepartmentMembership, error) {
	if err := requirePrivileged(ac); err != nil {
		return models.DepartmentMembership{}, err
	}
	if role == "" {
		role = models.MembershipMember
	}
	m := models.DepartmentMembership{DepartmentID: departmentID, UserID: userID, Role: role, CreatedAt: d.clock.Now()}
	err := d.store.WithTx(ctx, func(tx store.Tx) error {
		if _, err := tx.GetDepartment(ctx, ac.TenantID, departmentID); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return departmentNotFound()
			}
			return err
		}
		u, err := tx.GetUser(ctx, ac.TenantID, userID)
		if errors.Is(err, store.ErrNotFound) {
			return apperr.NotFound("USER_NOT_FOUND", "User not found")
		}
		if err != nil {
			return err
		}
		m.User = u.Ref()
		return tx.UpsertMember(ctx, ac.TenantID, m)
	})
	if err != nil {
		return models.DepartmentMembership{}, d.fail(ac, "add_member", err)
	}
	return m, nil
}

// RemoveMember drops the membership and puts the member's in-progress
// attendances of that department back in the department queue.
func (d *Directory) RemoveMember(ctx context.Context, ac auth.Context, departmentID, userID string) error {
	if err := requirePrivileged(ac); err != nil {
		return err
	}
	var requeued []models.Attendance
	err := d.store.WithTx(ctx, func(tx store.Tx) error {
		removed, err := tx.DeleteMember(ctx, ac.TenantID, departmentID, userID)
		if err != nil {
			return err
		}
		if !removed {
			return apperr.NotFound("MEMBERSHIP_NOT_FOUND", "User is not a member of this department")
		}
		held, err := tx.ListAssignedInDepartment(ctx, ac.TenantID, departmentID, userID, models.StatusInProgress)
		if err != nil {
			return err
		}
		now := d.clock.Now()
		for _, a := range held {
			a.Status = models.StatusTransferred
			a.AssignedUserID = nil
			a.AssignedUser = nil
			a.TransferredByID = ac.ActorID()
			a.UpdatedAt = now
			if err := tx.UpdateAttendance(ctx, a); err != nil {
				return err
			}
			if err := tx.InsertLog(ctx, models.AttendanceLog{
				ID:            uuid.NewString(),
				AttendanceID:  a.ID,
				TenantID:      a.TenantID,
				Action:        models.ActionMemberRemoved,
				PerformedByID: ac.ActorID(),
				Notes:         "assignee " + userID + " removed from department",
				CreatedAt:     now,
			}); err != nil {
				return err
			}
			if err := mirror.Sync(ctx, tx, a, now); err != nil {
				return err
			}
			requeued = append(requeued, a)
		}
		return nil
	})
	if err != nil {
		return d.fail(ac, "remove_member", err)
	}
	for _, a := range requeued {
		metrics.RecordTransition(string(models.ActionMemberRemoved))
		d.emitter.Emit(ctx, events.TypeTransferred, a)
	}
	return nil
}

// ListCallerDepartments returns the caller's memberships; privileged callers
// get every department of the tenant.
func (d *Directory) ListCallerDepartments(ctx context.Context, ac auth.Context) ([]models.Department, error) {
	if ac.Privileged() {
		return d.List(ctx, ac)
	}
	var out []models.Department
	err := d.store.View(ctx, func(tx store.Tx) error {
		var err error
		out, err = tx.ListUserDepartments(ctx, ac.TenantID, ac.UserID())
		return err
	})
	if err != nil {
		return nil, d.fail(ac, "list_caller_departments", err)
	}
	return out, nil
}

// EnsureFallbackDepartment returns the tenant's fallback department,
// creating it inside tx when missing. On creation every privileged user of
// the tenant becomes an ADMIN member. A pre-existing department already
// named FallbackName is adopted instead of duplicated.
func (d *Directory) EnsureFallbackDepartment(ctx context.Context, tx store.Tx, tenantID string) (models.Department, error) {
	dep, err := tx.GetFallbackDepartment(ctx, tenantID)
	if err == nil {
		return dep, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return models.Department{}, err
	}
	if err := tx.Lock(ctx, tenantID, "fallback-department"); err != nil {
		return models.Department{}, err
	}
	if dep, err := tx.GetFallbackDepartment(ctx, tenantID); err == nil {
		return dep, nil
	}

	now := d.clock.Now()
	dep, err = tx.GetDepartmentByName(ctx, tenantID, FallbackName)
	switch {
	case err == nil:
		dep.IsFallback = true
		dep.UpdatedAt = now
		if err := tx.UpdateDepartment(ctx, dep); err != nil {
			return models.Department{}, err
		}
	case errors.Is(err, store.ErrNotFound):
		dep = models.Department{
			ID:         uuid.NewString(),
			TenantID:   tenantID,
			Name:       FallbackName,
			IsFallback: true,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		if err := tx.InsertDepartment(ctx, dep); err != nil {
			return models.Department{}, err
		}
	default:
		return models.Department{}, err
	}

	admins, err := tx.ListPrivilegedUsers(ctx, tenantID)
	if err != nil {
		return models.Department{}, err
	}
	for _, u := range admins {
		if err := tx.UpsertMember(ctx, tenantID, models.DepartmentMembership{
			DepartmentID: dep.ID, UserID: u.ID, Role: models.MembershipAdmin, CreatedAt: now,
		}); err != nil {
			return models.Department{}, err
		}
	}
	d.logger.Info().Str("tenant_id", tenantID).Str("department_id", dep.ID).Int("members", len(admins)).Msg("fallback department provisioned")
	return dep, nil
}
