package routing

import (
	"context"
	"errors"
	"strings"

	"github.com/omnidesk/backend/internal/apperr"
	"github.com/omnidesk/backend/internal/auth"
	"github.com/omnidesk/backend/internal/events"
	"github.com/omnidesk/backend/internal/metrics"
	"github.com/omnidesk/backend/internal/mirror"
	"github.com/omnidesk/backend/internal/models"
	"github.com/omnidesk/backend/internal/store"
)

type ClaimInput struct {
	Notes        string
	DepartmentID string
}

const (
	ReasonKeepCurrent        = "KEEP_CURRENT"
	ReasonOverride           = "OVERRIDE"
	ReasonRequested          = "REQUESTED"
	ReasonAutoSelected       = "AUTO_SELECTED"
	ReasonDepartmentNotFound = "DEPARTMENT_NOT_FOUND"
	ReasonNoMembership       = "NO_MEMBERSHIP"
	ReasonNotAMember         = "NOT_A_MEMBER"
	ReasonSelectionRequired  = "SELECTION_REQUIRED"
)

// DepartmentResolution records how the department of a claim was chosen.
// DepartmentID is meaningful only when Err returns nil.
type DepartmentResolution struct {
	DepartmentID *string
	ReasonCode   string
	ReasonText   string
	Stages       []ResolutionStage
	Available    []models.DepartmentRef
}

type ResolutionStage struct {
	Name       string
	Candidates []string
}

func (r DepartmentResolution) Err() error {
	switch r.ReasonCode {
	case ReasonDepartmentNotFound:
		return apperr.NotFound("DEPARTMENT_NOT_FOUND", r.ReasonText)
	case ReasonNoMembership, ReasonNotAMember:
		return apperr.Forbidden(r.ReasonCode, r.ReasonText)
	case ReasonSelectionRequired:
		return apperr.RequiresDepartmentSelection(r.Available)
	}
	return nil
}

// ResolveClaimDepartment picks the department a claim lands in. candidates
// are every tenant department for privileged callers and the caller's
// memberships otherwise.
func ResolveClaimDepartment(privileged bool, current *string, candidates []models.Department, requested string) DepartmentResolution {
	requested = strings.TrimSpace(requested)
	var res DepartmentResolution

	ids := make([]string, 0, len(candidates))
	for _, d := range candidates {
		ids = append(ids, d.ID)
	}
	res.Stages = append(res.Stages, ResolutionStage{Name: "candidates", Candidates: ids})

	contains := func(id string) bool {
		for _, c := range ids {
			if c == id {
				return true
			}
		}
		return false
	}

	if privileged {
		if requested == "" {
			res.DepartmentID = copyStr(current)
			res.ReasonCode = ReasonKeepCurrent
			return res
		}
		res.Stages = append(res.Stages, ResolutionStage{Name: "override", Candidates: []string{requested}})
		if !contains(requested) {
			res.ReasonCode = ReasonDepartmentNotFound
			res.ReasonText = "Department not found"
			return res
		}
		res.DepartmentID = &requested
		res.ReasonCode = ReasonOverride
		return res
	}

	if len(candidates) == 0 {
		res.ReasonCode = ReasonNoMembership
		res.ReasonText = "You are not a member of any department"
		return res
	}
	if requested != "" {
		res.Stages = append(res.Stages, ResolutionStage{Name: "requested", Candidates: []string{requested}})
		if !contains(requested) {
			res.ReasonCode = ReasonNotAMember
			res.ReasonText = "You are not a member of the selected department"
			return res
		}
		res.DepartmentID = &requested
		res.ReasonCode = ReasonRequested
		return res
	}
	if len(candidates) == 1 {
		id := candidates[0].ID
		res.DepartmentID = &id
		res.ReasonCode = ReasonAutoSelected
		return res
	}
	res.ReasonCode = ReasonSelectionRequired
	res.ReasonText = "Select the department to claim this attendance into"
	for _, d := range candidates {
		res.Available = append(res.Available, *d.Ref())
	}
	return res
}

// Claim assigns the attendance to the caller. Eligibility is checked on a
// snapshot; the write is a compare-and-swap against that snapshot so a
// concurrent claim surfaces as a retryable Conflict.
func (e *Engine) Claim(ctx context.Context, ac auth.Context, id string, in ClaimInput) (models.Attendance, error) {
	human, ok := ac.Human()
	if !ok || !ac.Valid() {
		return models.Attendance{}, apperr.Forbidden("HUMAN_REQUIRED", "Only users can claim attendances")
	}

	var (
		snapshot models.Attendance
		res      DepartmentResolution
	)
	err := e.store.View(ctx, func(tx store.Tx) error {
		var err error
		snapshot, err = e.load(ctx, tx, ac.TenantID, id)
		if err != nil {
			return err
		}
		scope, err := e.scope(ctx, tx, ac)
		if err != nil {
			return err
		}
		if !scope.CanClaim(snapshot) {
			return apperr.Forbidden("FORBIDDEN", "You cannot claim this attendance")
		}
		if !snapshot.Active() {
			return apperr.BadRequest("ATTENDANCE_CLOSED", "Closed attendances cannot be claimed")
		}
		var candidates []models.Department
		if ac.Privileged() {
			candidates, err = tx.ListDepartments(ctx, ac.TenantID)
		} else {
			candidates, err = tx.ListUserDepartments(ctx, ac.TenantID, human.UserID)
		}
		if err != nil {
			return err
		}
		res = ResolveClaimDepartment(ac.Privileged(), snapshot.DepartmentID, candidates, in.DepartmentID)
		return res.Err()
	})
	if err != nil {
		return models.Attendance{}, e.fail(ac, "claim", err)
	}

	var claimed models.Attendance
	err = e.store.WithTx(ctx, func(tx store.Tx) error {
		now := e.clock.Now()
		err := tx.ClaimAttendance(ctx, store.ClaimUpdate{
			TenantID:       ac.TenantID,
			AttendanceID:   id,
			ExpectStatus:   snapshot.Status,
			ExpectAssignee: snapshot.AssignedUserID,
			UserID:         human.UserID,
			DepartmentID:   res.DepartmentID,
			At:             now,
		})
		if errors.Is(err, store.ErrStale) {
			metrics.ClaimConflictsCounter.Inc()
			return apperr.Conflict("CLAIM_CONFLICT", "Attendance was changed by someone else").
				WithDetails(map[string]any{"retryable": true})
		}
		if err != nil {
			return err
		}
		claimed, err = e.load(ctx, tx, ac.TenantID, id)
		if err != nil {
			return err
		}
		if err := e.appendLog(ctx, tx, claimed, models.ActionClaimed, ac.ActorID(), in.Notes, now); err != nil {
			return err
		}
		return mirror.Sync(ctx, tx, claimed, now)
	})
	if err != nil {
		return models.Attendance{}, e.fail(ac, "claim", err)
	}

	metrics.RecordTransition(string(models.ActionClaimed))
	e.logger.Info().
		Str("tenant_id", ac.TenantID).
		Str("user_id", human.UserID).
		Str("attendance_id", id).
		Str("reason", res.ReasonCode).
		Msg("attendance claimed")
	e.emitter.Emit(ctx, events.TypeUpdate, claimed)
	return claimed, nil
}

func copyStr(v *string) *string {
	if v == nil {
		return nil
	}
	s := *v
	return &s
}
