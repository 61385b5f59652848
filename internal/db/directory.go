package db

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/omnidesk/backend/internal/models"
	"github.com/omnidesk/backend/internal/store"
)

const departmentColumns = `d.id, d.tenant_id, d.name, d.description, d.is_fallback, d.created_at, d.updated_at`

func scanDepartment(row pgx.Row) (models.Department, error) {
	var d models.Department
	err := row.Scan(&d.ID, &d.TenantID, &d.Name, &d.Description, &d.IsFallback, &d.CreatedAt, &d.UpdatedAt)
	return d, err
}

func collectDepartments(rows pgx.Rows) ([]models.Department, error) {
	defer rows.Close()
	var out []models.Department
	for rows.Next() {
		d, err := scanDepartment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (q *queries) GetLead(ctx context.Context, tenantID, leadID string) (models.Lead, error) {
	var l models.Lead
	err := q.q.QueryRow(ctx, `SELECT id, tenant_id, name, phone, connection_id FROM leads WHERE tenant_id = $1 AND id = $2`, tenantID, leadID).
		Scan(&l.ID, &l.TenantID, &l.Name, &l.Phone, &l.ConnectionID)
	return l, notFound(err)
}

func (q *queries) ListLeadsWithoutAttendance(ctx context.Context, tenantID string) ([]models.Lead, error) {
	rows, err := q.q.Query(ctx, `
		SELECT l.id, l.tenant_id, l.name, l.phone, l.connection_id
		FROM leads l
		WHERE l.tenant_id = $1
			AND NOT EXISTS (SELECT 1 FROM attendances a WHERE a.tenant_id = l.tenant_id AND a.lead_id = l.id)
		ORDER BY l.created_at ASC, l.id ASC`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Lead
	for rows.Next() {
		var l models.Lead
		if err := rows.Scan(&l.ID, &l.TenantID, &l.Name, &l.Phone, &l.ConnectionID); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func (q *queries) GetUser(ctx context.Context, tenantID, userID string) (models.User, error) {
	var u models.User
	err := q.q.QueryRow(ctx, `SELECT id, tenant_id, name, email, role FROM users WHERE tenant_id = $1 AND id = $2`, tenantID, userID).
		Scan(&u.ID, &u.TenantID, &u.Name, &u.Email, &u.Role)
	return u, notFound(err)
}

func (q *queries) ListPrivilegedUsers(ctx context.Context, tenantID string) ([]models.User, error) {
	rows, err := q.q.Query(ctx, `
		SELECT id, tenant_id, name, email, role FROM users
		WHERE tenant_id = $1 AND role IN ('ADMIN', 'MANAGER')
		ORDER BY name ASC, id ASC`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.User
	for rows.Next() {
		var u models.User
		if err := rows.Scan(&u.ID, &u.TenantID, &u.Name, &u.Email, &u.Role); err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func (q *queries) GetDepartment(ctx context.Context, tenantID, id string) (models.Department, error) {
	row := q.q.QueryRow(ctx, `SELECT `+departmentColumns+` FROM departments d WHERE d.tenant_id = $1 AND d.id = $2`, tenantID, id)
	d, err := scanDepartment(row)
	return d, notFound(err)
}

func (q *queries) GetDepartmentByName(ctx context.Context, tenantID, name string) (models.Department, error) {
	row := q.q.QueryRow(ctx, `SELECT `+departmentColumns+` FROM departments d WHERE d.tenant_id = $1 AND d.name = $2`, tenantID, name)
	d, err := scanDepartment(row)
	return d, notFound(err)
}

func (q *queries) GetFallbackDepartment(ctx context.Context, tenantID string) (models.Department, error) {
	row := q.q.QueryRow(ctx, `SELECT `+departmentColumns+` FROM departments d WHERE d.tenant_id = $1 AND d.is_fallback`, tenantID)
	d, err := scanDepartment(row)
	return d, notFound(err)
}

func (q *queries) ListDepartments(ctx context.Context, tenantID string) ([]models.Department, error) {
	rows, err := q.q.Query(ctx, `SELECT `+departmentColumns+` FROM departments d WHERE d.tenant_id = $1 ORDER BY d.name ASC`, tenantID)
	if err != nil {
		return nil, err
	}
	return collectDepartments(rows)
}

func (q *queries) InsertDepartment(ctx context.Context, d models.Department) error {
	tag, err := q.q.Exec(ctx, `
		INSERT INTO departments (id, tenant_id, name, description, is_fallback, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		ON CONFLICT DO NOTHING
	`, d.ID, d.TenantID, d.Name, d.Description, d.IsFallback, d.CreatedAt, d.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return store.ErrDuplicate
	}
	return nil
}

func (q *queries) UpdateDepartment(ctx context.Context, d models.Department) error {
	tag, err := q.q.Exec(ctx, `
		UPDATE departments SET name = $3, description = $4, is_fallback = $5, updated_at = $6
		WHERE tenant_id = $1 AND id = $2
	`, d.TenantID, d.ID, d.Name, d.Description, d.IsFallback, d.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrDuplicate
		}
		return err
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (q *queries) DeleteDepartment(ctx context.Context, tenantID, id string) error {
	tag, err := q.q.Exec(ctx, `DELETE FROM departments WHERE tenant_id = $1 AND id = $2`, tenantID, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (q *queries) ListMembers(ctx context.Context, tenantID, departmentID string) ([]models.DepartmentMembership, error) {
	rows, err := q.q.Query(ctx, `
		SELECT m.department_id, m.user_id, m.role, m.created_at, u.name, u.email
		FROM department_members m
		JOIN departments d ON d.id = m.department_id
		LEFT JOIN users u ON u.id = m.user_id AND u.tenant_id = d.tenant_id
		WHERE d.tenant_id = $1 AND m.department_id = $2
		ORDER BY m.created_at ASC, m.user_id ASC`, tenantID, departmentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.DepartmentMembership
	for rows.Next() {
		var (
			m           models.DepartmentMembership
			role        string
			name, email *string
		)
		if err := rows.Scan(&m.DepartmentID, &m.UserID, &role, &m.CreatedAt, &name, &email); err != nil {
			return nil, err
		}
		m.Role = models.MembershipRole(role)
		if name != nil {
			m.User = &models.UserRef{ID: m.UserID, Name: *name, Email: derefString(email)}
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (q *queries) UpsertMember(ctx context.Context, tenantID string, m models.DepartmentMembership) error {
	tag, err := q.q.Exec(ctx, `
		INSERT INTO department_members (department_id, user_id, role, created_at)
		SELECT $1, $2, $3, $4
		WHERE EXISTS (SELECT 1 FROM departments WHERE id = $1 AND tenant_id = $5)
		ON CONFLICT (department_id, user_id) DO UPDATE SET role = EXCLUDED.role
	`, m.DepartmentID, m.UserID, string(m.Role), m.CreatedAt, tenantID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (q *queries) DeleteMember(ctx context.Context, tenantID, departmentID, userID string) (bool, error) {
	tag, err := q.q.Exec(ctx, `
		DELETE FROM department_members m
		USING departments d
		WHERE d.id = m.department_id AND d.tenant_id = $1 AND m.department_id = $2 AND m.user_id = $3
	`, tenantID, departmentID, userID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (q *queries) DeleteMemberships(ctx context.Context, tenantID, departmentID string) error {
	_, err := q.q.Exec(ctx, `
		DELETE FROM department_members m
		USING departments d
		WHERE d.id = m.department_id AND d.tenant_id = $1 AND m.department_id = $2
	`, tenantID, departmentID)
	return err
}

func (q *queries) ListUserDepartments(ctx context.Context, tenantID, userID string) ([]models.Department, error) {
	rows, err := q.q.Query(ctx, `
		SELECT `+departmentColumns+`
		FROM departments d
		JOIN department_members m ON m.department_id = d.id
		WHERE d.tenant_id = $1 AND m.user_id = $2
		ORDER BY d.name ASC`, tenantID, userID)
	if err != nil {
		return nil, err
	}
	return collectDepartments(rows)
}
