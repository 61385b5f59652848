// Package policy holds the pure authorization decisions over attendances.
// A Scope is computed once per request from the caller's AuthContext and
// department memberships, then consulted by every read and mutation.
package policy

import (
	"sort"

	"github.com/omnidesk/backend/internal/auth"
	"github.com/omnidesk/backend/internal/models"
)

// TransferredClaim decides who may claim a TRANSFERRED attendance that is
// already assigned to someone else.
type TransferredClaim int

const (
	// TransferredClaimDepartment lets any member of the attendance's
	// department take over an in-flight transfer.
	TransferredClaimDepartment TransferredClaim = iota
	// TransferredClaimAssigneeOnly reserves an assigned transfer for its
	// target user.
	TransferredClaimAssigneeOnly
)

func ParseTransferredClaim(v string) TransferredClaim {
	if v == "assignee_only" {
		return TransferredClaimAssigneeOnly
	}
	return TransferredClaimDepartment
}

type Rules struct {
	TransferredClaim TransferredClaim
}

type Scope struct {
	TenantID    string
	tenantWide  bool
	userID      string
	departments map[string]struct{}
	rules       Rules
}

// For builds the scope of an AuthContext. Privileged humans and the System
// see the whole tenant; agents are restricted to themselves and the given
// departments.
func For(ctx auth.Context, departmentIDs []string, rules Rules) Scope {
	if ctx.Privileged() {
		return TenantWide(ctx.TenantID, rules)
	}
	return Member(ctx.TenantID, ctx.UserID(), departmentIDs, rules)
}

func TenantWide(tenantID string, rules Rules) Scope {
	return Scope{TenantID: tenantID, tenantWide: true, rules: rules}
}

func Member(tenantID, userID string, departmentIDs []string, rules Rules) Scope {
	deps := make(map[string]struct{}, len(departmentIDs))
	for _, id := range departmentIDs {
		deps[id] = struct{}{}
	}
	return Scope{TenantID: tenantID, userID: userID, departments: deps, rules: rules}
}

func (s Scope) TenantWide() bool { return s.tenantWide }

func (s Scope) UserID() string { return s.userID }

func (s Scope) Rules() Rules { return s.rules }

// AllowsTransferOverride reports whether department members may claim a
// transfer assigned to someone else.
func (s Scope) AllowsTransferOverride() bool {
	return s.rules.TransferredClaim == TransferredClaimDepartment
}

// Departments returns the caller's department ids in stable order.
func (s Scope) Departments() []string {
	out := make([]string, 0, len(s.departments))
	for id := range s.departments {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func (s Scope) InDepartment(departmentID *string) bool {
	if departmentID == nil {
		return false
	}
	_, ok := s.departments[*departmentID]
	return ok
}

func (s Scope) sameTenant(a models.Attendance) bool {
	return a.TenantID == "" || a.TenantID == s.TenantID
}

func (s Scope) CanView(a models.Attendance) bool {
	if !s.sameTenant(a) {
		return false
	}
	if s.tenantWide {
		return true
	}
	if a.AssignedTo(s.userID) {
		return true
	}
	switch a.Status {
	case models.StatusOpen:
		return a.AssignedUserID == nil && s.InDepartment(a.DepartmentID)
	case models.StatusTransferred:
		return s.InDepartment(a.DepartmentID)
	}
	return false
}

func (s Scope) CanClaim(a models.Attendance) bool {
	if !s.sameTenant(a) {
		return false
	}
	if s.tenantWide {
		return true
	}
	switch a.Status {
	case models.StatusOpen:
		return a.DepartmentID == nil || s.InDepartment(a.DepartmentID)
	case models.StatusTransferred:
		if a.AssignedTo(s.userID) {
			return true
		}
		if !s.InDepartment(a.DepartmentID) {
			return false
		}
		return a.AssignedUserID == nil || s.AllowsTransferOverride()
	}
	return false
}

func (s Scope) CanTransfer(a models.Attendance) bool {
	return s.sameTenant(a) && (s.tenantWide || a.AssignedTo(s.userID))
}

func (s Scope) CanClose(a models.Attendance) bool {
	return s.sameTenant(a) && (s.tenantWide || a.AssignedTo(s.userID))
}

func (s Scope) CanUpdatePriority(a models.Attendance) bool {
	return s.sameTenant(a) && (s.tenantWide || a.AssignedTo(s.userID))
}

// Available reports whether a is waiting for pickup by this caller: open and
// unassigned, or transferred, and both visible and claimable.
func (s Scope) Available(a models.Attendance) bool {
	waiting := (a.Status == models.StatusOpen && a.AssignedUserID == nil) || a.Status == models.StatusTransferred
	return waiting && s.CanView(a) && s.CanClaim(a)
}

// AllowsDepartmentFilter is false when a restricted caller filters on a
// department outside their memberships; such queries yield no rows.
func (s Scope) AllowsDepartmentFilter(departmentID string) bool {
	if s.tenantWide || departmentID == "" {
		return true
	}
	_, ok := s.departments[departmentID]
	return ok
}

func (s Scope) AllowsUserFilter(userID string) bool {
	return s.tenantWide || userID == "" || userID == s.userID
}
