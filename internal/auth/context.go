package auth

import (
	"fmt"
	"strings"
)

type Role string

const (
	RoleAdmin   Role = "ADMIN"
	RoleManager Role = "MANAGER"
	RoleAgent   Role = "AGENT"
)

func ParseRole(v string) (Role, error) {
	r := Role(strings.ToUpper(strings.TrimSpace(v)))
	switch r {
	case RoleAdmin, RoleManager, RoleAgent:
		return r, nil
	}
	return "", fmt.Errorf("invalid role %q", v)
}

// Privileged reports whether the role has tenant-wide visibility. ADMIN and
// MANAGER are treated identically.
func (r Role) Privileged() bool {
	return r == RoleAdmin || r == RoleManager
}

// Principal is either a Human or the System. The unexported method closes
// the set.
type Principal interface {
	principal()
}

type Human struct {
	UserID string
	Role   Role
}

// System is the actor behind automation-triggered transitions (channel
// adapters, repair jobs). It has no user id.
type System struct {
	Name string
}

func (Human) principal()  {}
func (System) principal() {}

type Context struct {
	TenantID  string
	Principal Principal
}

func ForUser(tenantID, userID string, role Role) Context {
	return Context{TenantID: tenantID, Principal: Human{UserID: userID, Role: role}}
}

func ForSystem(tenantID, name string) Context {
	return Context{TenantID: tenantID, Principal: System{Name: name}}
}

func (c Context) Human() (Human, bool) {
	h, ok := c.Principal.(Human)
	return h, ok
}

func (c Context) IsSystem() bool {
	_, ok := c.Principal.(System)
	return ok
}

// Privileged is true for ADMIN/MANAGER humans and for the System.
func (c Context) Privileged() bool {
	switch p := c.Principal.(type) {
	case Human:
		return p.Role.Privileged()
	case System:
		return true
	}
	return false
}

// ActorID returns the user id to record as performer, nil for the System.
func (c Context) ActorID() *string {
	if h, ok := c.Human(); ok {
		id := h.UserID
		return &id
	}
	return nil
}

// UserID returns the human user id or "" for the System.
func (c Context) UserID() string {
	if h, ok := c.Human(); ok {
		return h.UserID
	}
	return ""
}

func (c Context) Valid() bool {
	if strings.TrimSpace(c.TenantID) == "" {
		return false
	}
	switch p := c.Principal.(type) {
	case Human:
		return p.UserID != "" && p.Role != ""
	case System:
		return true
	}
	return false
}
