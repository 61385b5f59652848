package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

type AttendanceStatus string

const (
	StatusOpen        AttendanceStatus = "OPEN"
	StatusInProgress  AttendanceStatus = "IN_PROGRESS"
	StatusTransferred AttendanceStatus = "TRANSFERRED"
	StatusClosed      AttendanceStatus = "CLOSED"
)

func ParseStatus(v string) (AttendanceStatus, error) {
	s := AttendanceStatus(strings.ToUpper(strings.TrimSpace(v)))
	switch s {
	case StatusOpen, StatusInProgress, StatusTransferred, StatusClosed:
		return s, nil
	}
	return "", fmt.Errorf("invalid status %q", v)
}

type Priority string

const (
	PriorityLow    Priority = "LOW"
	PriorityNormal Priority = "NORMAL"
	PriorityHigh   Priority = "HIGH"
)

func ParsePriority(v string) (Priority, error) {
	p := Priority(strings.ToUpper(strings.TrimSpace(v)))
	switch p {
	case PriorityLow, PriorityNormal, PriorityHigh:
		return p, nil
	}
	return "", fmt.Errorf("invalid priority %q", v)
}

// Rank orders priorities for sorting; higher is more important.
func (p Priority) Rank() int {
	switch p {
	case PriorityHigh:
		return 2
	case PriorityNormal:
		return 1
	default:
		return 0
	}
}

type LogAction string

const (
	ActionCreated           LogAction = "CREATED"
	ActionClaimed           LogAction = "CLAIMED"
	ActionTransferred       LogAction = "TRANSFERRED"
	ActionClosed            LogAction = "CLOSED"
	ActionPriorityChanged   LogAction = "PRIORITY_CHANGED"
	ActionReopened          LogAction = "REOPENED"
	ActionAutoAssigned      LogAction = "AUTO_ASSIGNED"
	ActionDepartmentCleared LogAction = "DEPARTMENT_CLEARED"
	ActionMemberRemoved     LogAction = "MEMBER_REMOVED"
)

type MembershipRole string

const (
	MembershipAdmin  MembershipRole = "ADMIN"
	MembershipMember MembershipRole = "MEMBER"
)

type ConversationStatus string

const (
	ConversationActive ConversationStatus = "ACTIVE"
	ConversationClosed ConversationStatus = "CLOSED"
)

type UserRef struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
}

type DepartmentRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type LeadRef struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Phone string `json:"phone"`
}

// Attendance is one support ticket. AssignedUser, Department and Lead are
// resolved on read and never persisted.
type Attendance struct {
	ID              string           `json:"id"`
	TenantID        string           `json:"-"`
	LeadID          string           `json:"leadId"`
	ConnectionID    *string          `json:"connectionId"`
	DepartmentID    *string          `json:"departmentId"`
	AssignedUserID  *string          `json:"assignedUserId"`
	Status          AttendanceStatus `json:"status"`
	Priority        Priority         `json:"priority"`
	IsUrgent        bool             `json:"isUrgent"`
	LastMessage     *string          `json:"lastMessage"`
	LastMessageAt   *time.Time       `json:"lastMessageAt"`
	LastIncomingAt  *time.Time       `json:"-"`
	LastOutgoingAt  *time.Time       `json:"-"`
	StartedAt       *time.Time       `json:"startedAt"`
	EndedAt         *time.Time       `json:"endedAt"`
	TransferredByID *string          `json:"transferredById"`
	ClosedByID      *string          `json:"closedById"`
	CreatedAt       time.Time        `json:"createdAt"`
	UpdatedAt       time.Time        `json:"updatedAt"`

	AssignedUser *UserRef       `json:"assignedUser"`
	Department   *DepartmentRef `json:"department"`
	Lead         *LeadRef       `json:"lead,omitempty"`
}

func (a Attendance) Active() bool {
	return a.Status != StatusClosed
}

func (a Attendance) AssignedTo(userID string) bool {
	return a.AssignedUserID != nil && *a.AssignedUserID == userID
}

type AttendanceLog struct {
	ID            string    `json:"id"`
	AttendanceID  string    `json:"attendanceId"`
	TenantID      string    `json:"-"`
	Action        LogAction `json:"action"`
	PerformedByID *string   `json:"performedById"`
	Notes         string    `json:"notes"`
	CreatedAt     time.Time `json:"createdAt"`
}

type Department struct {
	ID          string    `json:"id"`
	TenantID    string    `json:"-"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	IsFallback  bool      `json:"isFallback"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

func (d Department) Ref() *DepartmentRef {
	return &DepartmentRef{ID: d.ID, Name: d.Name}
}

type DepartmentMembership struct {
	DepartmentID string         `json:"departmentId"`
	UserID       string         `json:"userId"`
	Role         MembershipRole `json:"role"`
	CreatedAt    time.Time      `json:"createdAt"`
	User         *UserRef       `json:"user,omitempty"`
}

// Conversation is the messaging core's ownership record for a lead's thread.
type Conversation struct {
	ID             string             `json:"id"`
	TenantID       string             `json:"-"`
	LeadID         string             `json:"leadId"`
	AssignedUserID *string            `json:"assignedUserId"`
	DepartmentID   *string            `json:"departmentId"`
	Status         ConversationStatus `json:"status"`
	UpdatedAt      time.Time          `json:"updatedAt"`
}

type User struct {
	ID       string `json:"id"`
	TenantID string `json:"-"`
	Name     string `json:"name"`
	Email    string `json:"email"`
	Role     string `json:"role"`
}

func (u User) Ref() *UserRef {
	return &UserRef{ID: u.ID, Name: u.Name, Email: u.Email}
}

type Lead struct {
	ID           string  `json:"id"`
	TenantID     string  `json:"-"`
	Name         string  `json:"name"`
	Phone        string  `json:"phone"`
	ConnectionID *string `json:"connectionId"`
}

func (l Lead) Ref() *LeadRef {
	return &LeadRef{ID: l.ID, Name: l.Name, Phone: l.Phone}
}

type Stats struct {
	Open                   int     `json:"open"`
	InProgress             int     `json:"inProgress"`
	Closed                 int     `json:"closed"`
	Total                  int     `json:"total"`
	AverageHandlingMinutes float64 `json:"averageHandlingMinutes"`
}

type Run struct {
	ID         string          `json:"id"`
	TenantID   *string         `json:"tenantId"`
	Kind       string          `json:"kind"`
	StartedAt  time.Time       `json:"startedAt"`
	FinishedAt *time.Time      `json:"finishedAt"`
	Status     string          `json:"status"`
	Summary    json.RawMessage `json:"summary"`
}
