// Package mirror keeps the messaging core's Conversation ownership record in
// step with the attendance that owns the thread. It is the only writer of
// conversations in this service.
package mirror

import (
	"context"
	"fmt"
	"time"

	"github.com/omnidesk/backend/internal/models"
)

type Writer interface {
	UpsertConversation(ctx context.Context, c models.Conversation) error
}

// StateFor derives the conversation an attendance implies. A closed
// attendance keeps its owner and department for history.
func StateFor(a models.Attendance, at time.Time) models.Conversation {
	status := models.ConversationActive
	if a.Status == models.StatusClosed {
		status = models.ConversationClosed
	}
	return models.Conversation{
		TenantID:       a.TenantID,
		LeadID:         a.LeadID,
		AssignedUserID: copyStr(a.AssignedUserID),
		DepartmentID:   copyStr(a.DepartmentID),
		Status:         status,
		UpdatedAt:      at,
	}
}

func Sync(ctx context.Context, w Writer, a models.Attendance, at time.Time) error {
	if err := w.UpsertConversation(ctx, StateFor(a, at)); err != nil {
		return fmt.Errorf("sync conversation %s/%s: %w", a.TenantID, a.LeadID, err)
	}
	return nil
}

// Drifted reports whether c disagrees with what a implies.
func Drifted(a models.Attendance, c models.Conversation) bool {
	want := StateFor(a, c.UpdatedAt)
	return want.Status != c.Status ||
		!sameStr(want.AssignedUserID, c.AssignedUserID) ||
		!sameStr(want.DepartmentID, c.DepartmentID)
}

func sameStr(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func copyStr(v *string) *string {
	if v == nil {
		return nil
	}
	s := *v
	return &s
}
