package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/omnidesk/backend/internal/models"
	"github.com/omnidesk/backend/internal/store"
	"github.com/omnidesk/backend/internal/utils"
)

const attendanceColumns = `a.id, a.tenant_id, a.lead_id, a.connection_id, a.department_id, a.assigned_user_id,
	a.status, a.priority, a.is_urgent, a.last_message, a.last_message_at, a.last_incoming_at, a.last_outgoing_at,
	a.started_at, a.ended_at, a.transferred_by_id, a.closed_by_id, a.created_at, a.updated_at,
	u.name, u.email, d.name, l.name, l.phone`

// attendanceSelect reads attendances aliased as a from source, resolving the
// assignee, department and lead.
func attendanceSelect(source string) string {
	return `SELECT ` + attendanceColumns + `
		FROM ` + source + `
		LEFT JOIN users u ON u.id = a.assigned_user_id AND u.tenant_id = a.tenant_id
		LEFT JOIN departments d ON d.id = a.department_id AND d.tenant_id = a.tenant_id
		LEFT JOIN leads l ON l.id = a.lead_id AND l.tenant_id = a.tenant_id`
}

func scanAttendance(row pgx.Row) (models.Attendance, error) {
	var (
		a                   models.Attendance
		status, priority    string
		userName, userEmail *string
		deptName            *string
		leadName, leadPhone *string
	)
	if err := row.Scan(
		&a.ID, &a.TenantID, &a.LeadID, &a.ConnectionID, &a.DepartmentID, &a.AssignedUserID,
		&status, &priority, &a.IsUrgent, &a.LastMessage, &a.LastMessageAt, &a.LastIncomingAt, &a.LastOutgoingAt,
		&a.StartedAt, &a.EndedAt, &a.TransferredByID, &a.ClosedByID, &a.CreatedAt, &a.UpdatedAt,
		&userName, &userEmail, &deptName, &leadName, &leadPhone,
	); err != nil {
		return models.Attendance{}, err
	}
	a.Status = models.AttendanceStatus(status)
	a.Priority = models.Priority(priority)
	if a.AssignedUserID != nil && userName != nil {
		a.AssignedUser = &models.UserRef{ID: *a.AssignedUserID, Name: *userName, Email: derefString(userEmail)}
	}
	if a.DepartmentID != nil && deptName != nil {
		a.Department = &models.DepartmentRef{ID: *a.DepartmentID, Name: *deptName}
	}
	if leadName != nil {
		a.Lead = &models.LeadRef{ID: a.LeadID, Name: *leadName, Phone: derefString(leadPhone)}
	}
	return a, nil
}

func collectAttendances(rows pgx.Rows) ([]models.Attendance, error) {
	defer rows.Close()
	var out []models.Attendance
	for rows.Next() {
		a, err := scanAttendance(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func derefString(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}

func (q *queries) Lock(ctx context.Context, key ...string) error {
	_, err := q.q.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, utils.AdvisoryLockKey(key...))
	return err
}

func (q *queries) GetAttendance(ctx context.Context, tenantID, id string) (models.Attendance, error) {
	row := q.q.QueryRow(ctx, attendanceSelect("attendances a")+` WHERE a.tenant_id = $1 AND a.id = $2`, tenantID, id)
	a, err := scanAttendance(row)
	return a, notFound(err)
}

func (q *queries) GetActiveAttendanceByLead(ctx context.Context, tenantID, leadID string) (models.Attendance, error) {
	row := q.q.QueryRow(ctx, attendanceSelect("attendances a")+` WHERE a.tenant_id = $1 AND a.lead_id = $2 AND a.status <> 'CLOSED'`, tenantID, leadID)
	a, err := scanAttendance(row)
	return a, notFound(err)
}

func (q *queries) GetAttendanceForUpdate(ctx context.Context, tenantID, id string) (models.Attendance, error) {
	row := q.q.QueryRow(ctx, attendanceSelect("attendances a")+` WHERE a.tenant_id = $1 AND a.id = $2 FOR UPDATE OF a`, tenantID, id)
	a, err := scanAttendance(row)
	return a, notFound(err)
}

func (q *queries) GetActiveAttendanceByLeadForUpdate(ctx context.Context, tenantID, leadID string) (models.Attendance, error) {
	row := q.q.QueryRow(ctx, attendanceSelect("attendances a")+` WHERE a.tenant_id = $1 AND a.lead_id = $2 AND a.status <> 'CLOSED' FOR UPDATE OF a`, tenantID, leadID)
	a, err := scanAttendance(row)
	return a, notFound(err)
}

func (q *queries) GetLatestAttendanceByLead(ctx context.Context, tenantID, leadID string) (models.Attendance, error) {
	row := q.q.QueryRow(ctx, attendanceSelect("attendances a")+`
		WHERE a.tenant_id = $1 AND a.lead_id = $2
		ORDER BY (a.status <> 'CLOSED') DESC, a.created_at DESC
		LIMIT 1`, tenantID, leadID)
	a, err := scanAttendance(row)
	return a, notFound(err)
}

func (q *queries) InsertAttendance(ctx context.Context, a models.Attendance) (bool, error) {
	tag, err := q.q.Exec(ctx, `
		INSERT INTO attendances (id, tenant_id, lead_id, connection_id, department_id, assigned_user_id, status, priority, is_urgent,
			last_message, last_message_at, last_incoming_at, last_outgoing_at, started_at, ended_at, transferred_by_id, closed_by_id, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19)
		ON CONFLICT DO NOTHING
	`, a.ID, a.TenantID, a.LeadID, a.ConnectionID, a.DepartmentID, a.AssignedUserID, string(a.Status), string(a.Priority), a.IsUrgent,
		a.LastMessage, a.LastMessageAt, a.LastIncomingAt, a.LastOutgoingAt, a.StartedAt, a.EndedAt, a.TransferredByID, a.ClosedByID, a.CreatedAt, a.UpdatedAt)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (q *queries) UpdateAttendance(ctx context.Context, a models.Attendance) error {
	tag, err := q.q.Exec(ctx, `
		UPDATE attendances SET
			connection_id = $3, department_id = $4, assigned_user_id = $5, status = $6, priority = $7, is_urgent = $8,
			last_message = $9, last_message_at = $10, last_incoming_at = $11, last_outgoing_at = $12,
			started_at = $13, ended_at = $14, transferred_by_id = $15, closed_by_id = $16, updated_at = $17
		WHERE tenant_id = $1 AND id = $2
	`, a.TenantID, a.ID, a.ConnectionID, a.DepartmentID, a.AssignedUserID, string(a.Status), string(a.Priority), a.IsUrgent,
		a.LastMessage, a.LastMessageAt, a.LastIncomingAt, a.LastOutgoingAt,
		a.StartedAt, a.EndedAt, a.TransferredByID, a.ClosedByID, a.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (q *queries) ClaimAttendance(ctx context.Context, c store.ClaimUpdate) error {
	tag, err := q.q.Exec(ctx, `
		UPDATE attendances
		SET status = 'IN_PROGRESS', assigned_user_id = $1, department_id = $2,
			started_at = COALESCE(started_at, $3), is_urgent = FALSE, updated_at = $3
		WHERE tenant_id = $4 AND id = $5 AND status = $6 AND assigned_user_id IS NOT DISTINCT FROM $7
	`, c.UserID, c.DepartmentID, c.At, c.TenantID, c.AttendanceID, string(c.ExpectStatus), c.ExpectAssignee)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return store.ErrStale
	}
	return nil
}

func (q *queries) ListAttendances(ctx context.Context, aq store.AttendanceQuery) ([]models.Attendance, error) {
	b, ok := attendanceFilter(aq)
	if !ok {
		return nil, nil
	}
	sql := attendanceSelect("attendances a") + b.clause() + orderBy(aq.Order)
	if aq.Limit > 0 {
		sql += " LIMIT " + b.arg(aq.Limit)
	}
	if aq.Offset > 0 {
		sql += " OFFSET " + b.arg(aq.Offset)
	}
	rows, err := q.q.Query(ctx, sql, b.args...)
	if err != nil {
		return nil, err
	}
	return collectAttendances(rows)
}

func (q *queries) AttendanceStats(ctx context.Context, aq store.AttendanceQuery) (models.Stats, error) {
	var st models.Stats
	b, ok := attendanceFilter(aq)
	if !ok {
		return st, nil
	}
	sql := `SELECT
			COUNT(*) FILTER (WHERE a.status IN ('OPEN', 'TRANSFERRED')),
			COUNT(*) FILTER (WHERE a.status = 'IN_PROGRESS'),
			COUNT(*) FILTER (WHERE a.status = 'CLOSED'),
			COUNT(*),
			COALESCE(AVG(EXTRACT(EPOCH FROM (a.ended_at - a.started_at)) / 60)
				FILTER (WHERE a.status = 'CLOSED' AND a.started_at IS NOT NULL AND a.ended_at IS NOT NULL), 0)::float8
		FROM attendances a
		LEFT JOIN leads l ON l.id = a.lead_id AND l.tenant_id = a.tenant_id` + b.clause()
	err := q.q.QueryRow(ctx, sql, b.args...).Scan(&st.Open, &st.InProgress, &st.Closed, &st.Total, &st.AverageHandlingMinutes)
	return st, err
}

func (q *queries) ListWaitingAttendances(ctx context.Context, cutoff time.Time, limit int) ([]models.Attendance, error) {
	rows, err := q.q.Query(ctx, attendanceSelect("attendances a")+`
		WHERE a.status <> 'CLOSED' AND NOT a.is_urgent
			AND a.last_incoming_at IS NOT NULL
			AND (a.last_outgoing_at IS NULL OR a.last_incoming_at > a.last_outgoing_at)
			AND COALESCE(a.last_outgoing_at, a.created_at) <= $1
		ORDER BY a.created_at ASC
		LIMIT $2`, cutoff, limit)
	if err != nil {
		return nil, err
	}
	return collectAttendances(rows)
}

func (q *queries) ListAssignedInDepartment(ctx context.Context, tenantID, departmentID, userID string, status models.AttendanceStatus) ([]models.Attendance, error) {
	rows, err := q.q.Query(ctx, attendanceSelect("attendances a")+`
		WHERE a.tenant_id = $1 AND a.department_id = $2 AND a.assigned_user_id = $3 AND a.status = $4
		ORDER BY a.created_at ASC
		FOR UPDATE OF a`, tenantID, departmentID, userID, string(status))
	if err != nil {
		return nil, err
	}
	return collectAttendances(rows)
}

func (q *queries) ClearAttendanceDepartment(ctx context.Context, tenantID, departmentID string, at time.Time) ([]models.Attendance, error) {
	rows, err := q.q.Query(ctx, `
		UPDATE attendances SET department_id = NULL, updated_at = $3
		WHERE tenant_id = $1 AND department_id = $2
		RETURNING id`, tenantID, departmentID, at)
	if err != nil {
		return nil, err
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("clear department: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err = q.q.Query(ctx, attendanceSelect("attendances a")+` WHERE a.tenant_id = $1 AND a.id = ANY($2) ORDER BY a.created_at ASC`, tenantID, ids)
	if err != nil {
		return nil, err
	}
	return collectAttendances(rows)
}

func (q *queries) InsertLog(ctx context.Context, l models.AttendanceLog) error {
	_, err := q.q.Exec(ctx, `
		INSERT INTO attendance_logs (id, attendance_id, tenant_id, action, performed_by_id, notes, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, l.ID, l.AttendanceID, l.TenantID, string(l.Action), l.PerformedByID, l.Notes, l.CreatedAt)
	return err
}

func (q *queries) ListLogs(ctx context.Context, tenantID, attendanceID string) ([]models.AttendanceLog, error) {
	rows, err := q.q.Query(ctx, `
		SELECT id, attendance_id, tenant_id, action, performed_by_id, notes, created_at
		FROM attendance_logs
		WHERE tenant_id = $1 AND attendance_id = $2
		ORDER BY created_at ASC, id ASC`, tenantID, attendanceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.AttendanceLog
	for rows.Next() {
		var (
			l      models.AttendanceLog
			action string
		)
		if err := rows.Scan(&l.ID, &l.AttendanceID, &l.TenantID, &action, &l.PerformedByID, &l.Notes, &l.CreatedAt); err != nil {
			return nil, err
		}
		l.Action = models.LogAction(action)
		out = append(out, l)
	}
	return out, rows.Err()
}
