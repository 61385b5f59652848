package db

import (
	"fmt"
	"strings"

	"github.com/omnidesk/backend/internal/models"
	"github.com/omnidesk/backend/internal/store"
)

const priorityRank = `CASE a.priority WHEN 'HIGH' THEN 2 WHEN 'NORMAL' THEN 1 ELSE 0 END`

type sqlBuilder struct {
	args   []any
	wheres []string
}

// arg binds v and returns its placeholder.
func (b *sqlBuilder) arg(v any) string {
	b.args = append(b.args, v)
	return fmt.Sprintf("$%d", len(b.args))
}

func (b *sqlBuilder) where(clause string) {
	b.wheres = append(b.wheres, clause)
}

func (b *sqlBuilder) clause() string {
	if len(b.wheres) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(b.wheres, " AND ")
}

// attendanceFilter translates a query into a WHERE clause. ok is false when
// a restricted caller filters outside their scope, in which case nothing can
// match.
func attendanceFilter(q store.AttendanceQuery) (b *sqlBuilder, ok bool) {
	s := q.Scope
	if !s.AllowsDepartmentFilter(q.DepartmentID) || !s.AllowsUserFilter(q.AssignedUserID) {
		return nil, false
	}
	b = &sqlBuilder{}
	b.where("a.tenant_id = " + b.arg(s.TenantID))

	if !s.TenantWide() {
		user := b.arg(s.UserID())
		deps := b.arg(s.Departments())
		b.where(fmt.Sprintf(
			"(a.assigned_user_id = %s OR (a.status = 'OPEN' AND a.assigned_user_id IS NULL AND a.department_id = ANY(%s)) OR (a.status = 'TRANSFERRED' AND a.department_id = ANY(%s)))",
			user, deps, deps))
	}
	if q.AvailableOnly {
		b.where("((a.status = 'OPEN' AND a.assigned_user_id IS NULL) OR a.status = 'TRANSFERRED')")
		if !s.TenantWide() && !s.AllowsTransferOverride() {
			b.where(fmt.Sprintf("(a.status <> 'TRANSFERRED' OR a.assigned_user_id IS NULL OR a.assigned_user_id = %s)", b.arg(s.UserID())))
		}
	}
	if len(q.Statuses) > 0 {
		b.where("a.status = ANY(" + b.arg(statusStrings(q.Statuses)) + ")")
	}
	if q.Priority != nil {
		b.where("a.priority = " + b.arg(string(*q.Priority)))
	}
	if q.DepartmentID != "" {
		b.where("a.department_id = " + b.arg(q.DepartmentID))
	}
	if q.AssignedUserID != "" {
		b.where("a.assigned_user_id = " + b.arg(q.AssignedUserID))
	}
	if q.Urgent != nil {
		b.where("a.is_urgent = " + b.arg(*q.Urgent))
	}
	if q.LeadID != "" {
		b.where("a.lead_id = " + b.arg(q.LeadID))
	}
	if q.Search != "" {
		p := b.arg("%" + escapeLike(q.Search) + "%")
		b.where(fmt.Sprintf(`(l.name ILIKE %s ESCAPE '\' OR l.phone ILIKE %s ESCAPE '\')`, p, p))
	}
	return b, true
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// escapeLike makes s match literally inside an ILIKE pattern.
func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

func orderBy(o store.Order) string {
	if o == store.OrderQueue {
		return " ORDER BY " + priorityRank + " DESC, a.is_urgent DESC, a.created_at ASC, a.id ASC"
	}
	return " ORDER BY a.is_urgent DESC, " + priorityRank + " DESC, a.last_message_at DESC NULLS LAST, a.created_at DESC, a.id ASC"
}

func statusStrings(in []models.AttendanceStatus) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = string(s)
	}
	return out
}
