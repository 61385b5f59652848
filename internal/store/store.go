// Package store defines the persistence contract shared by the PostgreSQL
// and in-memory backends. All access happens inside a unit of work: View for
// reads, WithTx for atomic writes.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/omnidesk/backend/internal/models"
	"github.com/omnidesk/backend/internal/policy"
)

var (
	ErrNotFound  = errors.New("not found")
	ErrDuplicate = errors.New("duplicate")
	// ErrStale means a conditional write matched no row because the row
	// changed since it was read.
	ErrStale = errors.New("stale write")
)

type Order int

const (
	// OrderInbox: urgent first, priority desc, last message desc, newest first.
	OrderInbox Order = iota
	// OrderQueue: priority desc, urgent first, oldest first.
	OrderQueue
)

type AttendanceQuery struct {
	Scope          policy.Scope
	Statuses       []models.AttendanceStatus
	Priority       *models.Priority
	DepartmentID   string
	AssignedUserID string
	Urgent         *bool
	Search         string
	LeadID         string
	AvailableOnly  bool
	Order          Order
	Limit          int
	Offset         int
}

// ClaimUpdate is a compare-and-swap on (status, assignee): it only applies
// when the row still holds ExpectStatus and ExpectAssignee.
type ClaimUpdate struct {
	TenantID       string
	AttendanceID   string
	ExpectStatus   models.AttendanceStatus
	ExpectAssignee *string
	UserID         string
	DepartmentID   *string
	At             time.Time
}

type Tx interface {
	// Lock serializes units of work on key until the enclosing transaction
	// ends.
	Lock(ctx context.Context, key ...string) error

	GetAttendance(ctx context.Context, tenantID, id string) (models.Attendance, error)
	GetActiveAttendanceByLead(ctx context.Context, tenantID, leadID string) (models.Attendance, error)
	GetLatestAttendanceByLead(ctx context.Context, tenantID, leadID string) (models.Attendance, error)
	// GetAttendanceForUpdate and GetActiveAttendanceByLeadForUpdate lock the
	// returned row until the enclosing transaction ends. Every
	// read-modify-write of an attendance starts from one of them.
	GetAttendanceForUpdate(ctx context.Context, tenantID, id string) (models.Attendance, error)
	GetActiveAttendanceByLeadForUpdate(ctx context.Context, tenantID, leadID string) (models.Attendance, error)
	// InsertAttendance returns false when the lead already has an active
	// attendance.
	InsertAttendance(ctx context.Context, a models.Attendance) (bool, error)
	UpdateAttendance(ctx context.Context, a models.Attendance) error
	ClaimAttendance(ctx context.Context, c ClaimUpdate) error
	ListAttendances(ctx context.Context, q AttendanceQuery) ([]models.Attendance, error)
	AttendanceStats(ctx context.Context, q AttendanceQuery) (models.Stats, error)
	// ListWaitingAttendances returns active, non-urgent attendances whose
	// last incoming message is unanswered and whose last outgoing message
	// (or creation, if none) is at or before cutoff.
	ListWaitingAttendances(ctx context.Context, cutoff time.Time, limit int) ([]models.Attendance, error)
	// ListAssignedInDepartment locks the returned rows like
	// GetAttendanceForUpdate.
	ListAssignedInDepartment(ctx context.Context, tenantID, departmentID, userID string, status models.AttendanceStatus) ([]models.Attendance, error)
	// ClearAttendanceDepartment nulls the department of every attendance in
	// it and returns the rows as they are after the update.
	ClearAttendanceDepartment(ctx context.Context, tenantID, departmentID string, at time.Time) ([]models.Attendance, error)

	InsertLog(ctx context.Context, l models.AttendanceLog) error
	ListLogs(ctx context.Context, tenantID, attendanceID string) ([]models.AttendanceLog, error)

	GetLead(ctx context.Context, tenantID, leadID string) (models.Lead, error)
	ListLeadsWithoutAttendance(ctx context.Context, tenantID string) ([]models.Lead, error)

	GetUser(ctx context.Context, tenantID, userID string) (models.User, error)
	ListPrivilegedUsers(ctx context.Context, tenantID string) ([]models.User, error)

	GetDepartment(ctx context.Context, tenantID, id string) (models.Department, error)
	GetDepartmentByName(ctx context.Context, tenantID, name string) (models.Department, error)
	GetFallbackDepartment(ctx context.Context, tenantID string) (models.Department, error)
	ListDepartments(ctx context.Context, tenantID string) ([]models.Department, error)
	InsertDepartment(ctx context.Context, d models.Department) error
	UpdateDepartment(ctx context.Context, d models.Department) error
	DeleteDepartment(ctx context.Context, tenantID, id string) error
	ListMembers(ctx context.Context, tenantID, departmentID string) ([]models.DepartmentMembership, error)
	UpsertMember(ctx context.Context, tenantID string, m models.DepartmentMembership) error
	DeleteMember(ctx context.Context, tenantID, departmentID, userID string) (bool, error)
	DeleteMemberships(ctx context.Context, tenantID, departmentID string) error
	ListUserDepartments(ctx context.Context, tenantID, userID string) ([]models.Department, error)

	UpsertConversation(ctx context.Context, c models.Conversation) error
	GetConversation(ctx context.Context, tenantID, leadID string) (models.Conversation, error)
	// ListMirrorDrift returns the latest attendance of every lead whose
	// conversation is missing or disagrees with it. An empty tenantID spans
	// all tenants.
	ListMirrorDrift(ctx context.Context, tenantID string, limit int) ([]models.Attendance, error)

	InsertRun(ctx context.Context, r models.Run) error
	FinishRun(ctx context.Context, id, status string, summary []byte, at time.Time) error
	GetLatestRun(ctx context.Context, tenantID string) (models.Run, error)
}

type Store interface {
	View(ctx context.Context, fn func(Tx) error) error
	WithTx(ctx context.Context, fn func(Tx) error) error
	Ping(ctx context.Context) error
}
