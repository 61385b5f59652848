package db

import (
	"context"

	"github.com/google/uuid"

	"github.com/omnidesk/backend/internal/models"
)

func (q *queries) UpsertConversation(ctx context.Context, c models.Conversation) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	_, err := q.q.Exec(ctx, `
		INSERT INTO conversations (id, tenant_id, lead_id, assigned_user_id, department_id, status, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		ON CONFLICT (tenant_id, lead_id) DO UPDATE SET
			assigned_user_id = EXCLUDED.assigned_user_id,
			department_id = EXCLUDED.department_id,
			status = EXCLUDED.status,
			updated_at = EXCLUDED.updated_at
	`, c.ID, c.TenantID, c.LeadID, c.AssignedUserID, c.DepartmentID, string(c.Status), c.UpdatedAt)
	return err
}

func (q *queries) GetConversation(ctx context.Context, tenantID, leadID string) (models.Conversation, error) {
	var (
		c      models.Conversation
		status string
	)
	err := q.q.QueryRow(ctx, `
		SELECT id, tenant_id, lead_id, assigned_user_id, department_id, status, updated_at
		FROM conversations WHERE tenant_id = $1 AND lead_id = $2`, tenantID, leadID).
		Scan(&c.ID, &c.TenantID, &c.LeadID, &c.AssignedUserID, &c.DepartmentID, &status, &c.UpdatedAt)
	c.Status = models.ConversationStatus(status)
	return c, notFound(err)
}

func (q *queries) ListMirrorDrift(ctx context.Context, tenantID string, limit int) ([]models.Attendance, error) {
	latest := `(SELECT DISTINCT ON (tenant_id, lead_id) *
		FROM attendances
		WHERE $1 = '' OR tenant_id = $1
		ORDER BY tenant_id, lead_id, (status <> 'CLOSED') DESC, created_at DESC) a`
	rows, err := q.q.Query(ctx, attendanceSelect(latest)+`
		LEFT JOIN conversations c ON c.tenant_id = a.tenant_id AND c.lead_id = a.lead_id
		WHERE c.id IS NULL
			OR c.status <> (CASE WHEN a.status = 'CLOSED' THEN 'CLOSED' ELSE 'ACTIVE' END)
			OR c.assigned_user_id IS DISTINCT FROM a.assigned_user_id
			OR c.department_id IS DISTINCT FROM a.department_id
		ORDER BY a.updated_at ASC
		LIMIT $2`, tenantID, limit)
	if err != nil {
		return nil, err
	}
	return collectAttendances(rows)
}
