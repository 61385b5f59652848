package memdb

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/omnidesk/backend/internal/mirror"
	"github.com/omnidesk/backend/internal/models"
	"github.com/omnidesk/backend/internal/store"
)

type tx struct {
	st *state
}

var _ store.Tx = (*tx)(nil)

// Lock is a no-op: units of work are already serialized.
func (t *tx) Lock(context.Context, ...string) error { return nil }

func (t *tx) resolve(a models.Attendance) models.Attendance {
	a.AssignedUser, a.Department, a.Lead = nil, nil, nil
	if a.AssignedUserID != nil {
		if u, ok := t.st.users[*a.AssignedUserID]; ok && u.TenantID == a.TenantID {
			a.AssignedUser = u.Ref()
		}
	}
	if a.DepartmentID != nil {
		if d, ok := t.st.departments[*a.DepartmentID]; ok && d.TenantID == a.TenantID {
			a.Department = d.Ref()
		}
	}
	if l, ok := t.lead(a.TenantID, a.LeadID); ok {
		a.Lead = l.Ref()
	}
	return a
}

func (t *tx) lead(tenantID, id string) (models.Lead, bool) {
	for _, l := range t.st.leads {
		if l.ID == id && l.TenantID == tenantID {
			return l, true
		}
	}
	return models.Lead{}, false
}

func (t *tx) GetAttendance(_ context.Context, tenantID, id string) (models.Attendance, error) {
	a, ok := t.st.attendances[id]
	if !ok || a.TenantID != tenantID {
		return models.Attendance{}, store.ErrNotFound
	}
	return t.resolve(a), nil
}

func (t *tx) GetActiveAttendanceByLead(_ context.Context, tenantID, leadID string) (models.Attendance, error) {
	for _, a := range t.st.attendances {
		if a.TenantID == tenantID && a.LeadID == leadID && a.Active() {
			return t.resolve(a), nil
		}
	}
	return models.Attendance{}, store.ErrNotFound
}

// latestFirst orders active before closed, then newest first.
func latestFirst(a, b models.Attendance) bool {
	if a.Active() != b.Active() {
		return a.Active()
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	return a.ID > b.ID
}

// WithTx holds the store mutex for the whole unit of work, so plain reads
// already see a locked row.
func (t *tx) GetAttendanceForUpdate(ctx context.Context, tenantID, id string) (models.Attendance, error) {
	return t.GetAttendance(ctx, tenantID, id)
}

func (t *tx) GetActiveAttendanceByLeadForUpdate(ctx context.Context, tenantID, leadID string) (models.Attendance, error) {
	return t.GetActiveAttendanceByLead(ctx, tenantID, leadID)
}

func (t *tx) GetLatestAttendanceByLead(_ context.Context, tenantID, leadID string) (models.Attendance, error) {
	var (
		best  models.Attendance
		found bool
	)
	for _, a := range t.st.attendances {
		if a.TenantID != tenantID || a.LeadID != leadID {
			continue
		}
		if !found || latestFirst(a, best) {
			best, found = a, true
		}
	}
	if !found {
		return models.Attendance{}, store.ErrNotFound
	}
	return t.resolve(best), nil
}

func (t *tx) InsertAttendance(_ context.Context, a models.Attendance) (bool, error) {
	if _, ok := t.st.attendances[a.ID]; ok {
		return false, nil
	}
	if a.Active() {
		for _, other := range t.st.attendances {
			if other.TenantID == a.TenantID && other.LeadID == a.LeadID && other.Active() {
				return false, nil
			}
		}
	}
	a.AssignedUser, a.Department, a.Lead = nil, nil, nil
	t.st.attendances[a.ID] = a
	return true, nil
}

func (t *tx) UpdateAttendance(_ context.Context, a models.Attendance) error {
	cur, ok := t.st.attendances[a.ID]
	if !ok || cur.TenantID != a.TenantID {
		return store.ErrNotFound
	}
	a.LeadID, a.CreatedAt = cur.LeadID, cur.CreatedAt
	a.AssignedUser, a.Department, a.Lead = nil, nil, nil
	t.st.attendances[a.ID] = a
	return nil
}

func (t *tx) ClaimAttendance(_ context.Context, c store.ClaimUpdate) error {
	a, ok := t.st.attendances[c.AttendanceID]
	if !ok || a.TenantID != c.TenantID || a.Status != c.ExpectStatus || !sameStr(a.AssignedUserID, c.ExpectAssignee) {
		return store.ErrStale
	}
	user := c.UserID
	a.Status = models.StatusInProgress
	a.AssignedUserID = &user
	a.DepartmentID = copyStr(c.DepartmentID)
	if a.StartedAt == nil {
		at := c.At
		a.StartedAt = &at
	}
	a.IsUrgent = false
	a.UpdatedAt = c.At
	t.st.attendances[a.ID] = a
	return nil
}

func (t *tx) match(q store.AttendanceQuery) []models.Attendance {
	s := q.Scope
	if !s.AllowsDepartmentFilter(q.DepartmentID) || !s.AllowsUserFilter(q.AssignedUserID) {
		return nil
	}
	search := strings.ToLower(q.Search)
	var out []models.Attendance
	for _, a := range t.st.attendances {
		if a.TenantID != s.TenantID || !s.CanView(a) {
			continue
		}
		if q.AvailableOnly && !s.Available(a) {
			continue
		}
		if len(q.Statuses) > 0 && !hasStatus(q.Statuses, a.Status) {
			continue
		}
		if q.Priority != nil && a.Priority != *q.Priority {
			continue
		}
		if q.DepartmentID != "" && (a.DepartmentID == nil || *a.DepartmentID != q.DepartmentID) {
			continue
		}
		if q.AssignedUserID != "" && !a.AssignedTo(q.AssignedUserID) {
			continue
		}
		if q.Urgent != nil && a.IsUrgent != *q.Urgent {
			continue
		}
		if q.LeadID != "" && a.LeadID != q.LeadID {
			continue
		}
		a = t.resolve(a)
		if search != "" {
			if a.Lead == nil || !(strings.Contains(strings.ToLower(a.Lead.Name), search) || strings.Contains(strings.ToLower(a.Lead.Phone), search)) {
				continue
			}
		}
		out = append(out, a)
	}
	return out
}

func (t *tx) ListAttendances(_ context.Context, q store.AttendanceQuery) ([]models.Attendance, error) {
	out := t.match(q)
	if q.Order == store.OrderQueue {
		sort.SliceStable(out, func(i, j int) bool { return queueLess(out[i], out[j]) })
	} else {
		sort.SliceStable(out, func(i, j int) bool { return inboxLess(out[i], out[j]) })
	}
	if q.Offset > 0 {
		if q.Offset >= len(out) {
			return nil, nil
		}
		out = out[q.Offset:]
	}
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func inboxLess(a, b models.Attendance) bool {
	if a.IsUrgent != b.IsUrgent {
		return a.IsUrgent
	}
	if a.Priority.Rank() != b.Priority.Rank() {
		return a.Priority.Rank() > b.Priority.Rank()
	}
	switch {
	case a.LastMessageAt != nil && b.LastMessageAt == nil:
		return true
	case a.LastMessageAt == nil && b.LastMessageAt != nil:
		return false
	case a.LastMessageAt != nil && !a.LastMessageAt.Equal(*b.LastMessageAt):
		return a.LastMessageAt.After(*b.LastMessageAt)
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	return a.ID < b.ID
}

func queueLess(a, b models.Attendance) bool {
	if a.Priority.Rank() != b.Priority.Rank() {
		return a.Priority.Rank() > b.Priority.Rank()
	}
	if a.IsUrgent != b.IsUrgent {
		return a.IsUrgent
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.ID < b.ID
}

func (t *tx) AttendanceStats(_ context.Context, q store.AttendanceQuery) (models.Stats, error) {
	var (
		st      models.Stats
		handled float64
		n       int
	)
	for _, a := range t.match(q) {
		st.Total++
		switch a.Status {
		case models.StatusOpen, models.StatusTransferred:
			st.Open++
		case models.StatusInProgress:
			st.InProgress++
		case models.StatusClosed:
			st.Closed++
			if a.StartedAt != nil && a.EndedAt != nil {
				handled += a.EndedAt.Sub(*a.StartedAt).Minutes()
				n++
			}
		}
	}
	if n > 0 {
		st.AverageHandlingMinutes = handled / float64(n)
	}
	return st, nil
}

func (t *tx) ListWaitingAttendances(_ context.Context, cutoff time.Time, limit int) ([]models.Attendance, error) {
	var out []models.Attendance
	for _, a := range t.st.attendances {
		if !a.Active() || a.IsUrgent || a.LastIncomingAt == nil {
			continue
		}
		if a.LastOutgoingAt != nil && !a.LastIncomingAt.After(*a.LastOutgoingAt) {
			continue
		}
		since := a.CreatedAt
		if a.LastOutgoingAt != nil {
			since = *a.LastOutgoingAt
		}
		if since.After(cutoff) {
			continue
		}
		out = append(out, t.resolve(a))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (t *tx) ListAssignedInDepartment(_ context.Context, tenantID, departmentID, userID string, status models.AttendanceStatus) ([]models.Attendance, error) {
	var out []models.Attendance
	for _, a := range t.st.attendances {
		if a.TenantID == tenantID && a.Status == status && a.AssignedTo(userID) && a.DepartmentID != nil && *a.DepartmentID == departmentID {
			out = append(out, t.resolve(a))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (t *tx) ClearAttendanceDepartment(_ context.Context, tenantID, departmentID string, at time.Time) ([]models.Attendance, error) {
	var out []models.Attendance
	for id, a := range t.st.attendances {
		if a.TenantID != tenantID || a.DepartmentID == nil || *a.DepartmentID != departmentID {
			continue
		}
		a.DepartmentID = nil
		a.UpdatedAt = at
		t.st.attendances[id] = a
		out = append(out, t.resolve(a))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (t *tx) InsertLog(_ context.Context, l models.AttendanceLog) error {
	t.st.logs = append(t.st.logs, l)
	return nil
}

func (t *tx) ListLogs(_ context.Context, tenantID, attendanceID string) ([]models.AttendanceLog, error) {
	var out []models.AttendanceLog
	for _, l := range t.st.logs {
		if l.TenantID == tenantID && l.AttendanceID == attendanceID {
			out = append(out, l)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (t *tx) GetLead(_ context.Context, tenantID, leadID string) (models.Lead, error) {
	if l, ok := t.lead(tenantID, leadID); ok {
		return l, nil
	}
	return models.Lead{}, store.ErrNotFound
}

func (t *tx) ListLeadsWithoutAttendance(_ context.Context, tenantID string) ([]models.Lead, error) {
	seen := map[string]bool{}
	for _, a := range t.st.attendances {
		if a.TenantID == tenantID {
			seen[a.LeadID] = true
		}
	}
	var out []models.Lead
	for _, l := range t.st.leads {
		if l.TenantID == tenantID && !seen[l.ID] {
			out = append(out, l)
		}
	}
	return out, nil
}

func (t *tx) GetUser(_ context.Context, tenantID, userID string) (models.User, error) {
	u, ok := t.st.users[userID]
	if !ok || u.TenantID != tenantID {
		return models.User{}, store.ErrNotFound
	}
	return u, nil
}

func (t *tx) ListPrivilegedUsers(_ context.Context, tenantID string) ([]models.User, error) {
	var out []models.User
	for _, u := range t.st.users {
		if u.TenantID == tenantID && (u.Role == "ADMIN" || u.Role == "MANAGER") {
			out = append(out, u)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (t *tx) GetDepartment(_ context.Context, tenantID, id string) (models.Department, error) {
	d, ok := t.st.departments[id]
	if !ok || d.TenantID != tenantID {
		return models.Department{}, store.ErrNotFound
	}
	return d, nil
}

func (t *tx) GetDepartmentByName(_ context.Context, tenantID, name string) (models.Department, error) {
	for _, d := range t.st.departments {
		if d.TenantID == tenantID && d.Name == name {
			return d, nil
		}
	}
	return models.Department{}, store.ErrNotFound
}

func (t *tx) GetFallbackDepartment(_ context.Context, tenantID string) (models.Department, error) {
	for _, d := range t.st.departments {
		if d.TenantID == tenantID && d.IsFallback {
			return d, nil
		}
	}
	return models.Department{}, store.ErrNotFound
}

func (t *tx) ListDepartments(_ context.Context, tenantID string) ([]models.Department, error) {
	var out []models.Department
	for _, d := range t.st.departments {
		if d.TenantID == tenantID {
			out = append(out, d)
		}
	}
	sortDepartments(out)
	return out, nil
}

func sortDepartments(ds []models.Department) {
	sort.Slice(ds, func(i, j int) bool { return ds[i].Name < ds[j].Name })
}

// conflicts reports whether d would violate the tenant-unique name or the
// single fallback per tenant.
func (t *tx) conflicts(d models.Department) bool {
	for _, other := range t.st.departments {
		if other.ID == d.ID || other.TenantID != d.TenantID {
			continue
		}
		if other.Name == d.Name || (d.IsFallback && other.IsFallback) {
			return true
		}
	}
	return false
}

func (t *tx) InsertDepartment(_ context.Context, d models.Department) error {
	if _, ok := t.st.departments[d.ID]; ok || t.conflicts(d) {
		return store.ErrDuplicate
	}
	t.st.departments[d.ID] = d
	return nil
}

func (t *tx) UpdateDepartment(_ context.Context, d models.Department) error {
	cur, ok := t.st.departments[d.ID]
	if !ok || cur.TenantID != d.TenantID {
		return store.ErrNotFound
	}
	if t.conflicts(d) {
		return store.ErrDuplicate
	}
	d.CreatedAt = cur.CreatedAt
	t.st.departments[d.ID] = d
	return nil
}

func (t *tx) DeleteDepartment(_ context.Context, tenantID, id string) error {
	d, ok := t.st.departments[id]
	if !ok || d.TenantID != tenantID {
		return store.ErrNotFound
	}
	delete(t.st.departments, id)
	delete(t.st.members, id)
	for aid, a := range t.st.attendances {
		if a.DepartmentID != nil && *a.DepartmentID == id {
			a.DepartmentID = nil
			t.st.attendances[aid] = a
		}
	}
	return nil
}

func (t *tx) ListMembers(_ context.Context, tenantID, departmentID string) ([]models.DepartmentMembership, error) {
	d, ok := t.st.departments[departmentID]
	if !ok || d.TenantID != tenantID {
		return nil, nil
	}
	var out []models.DepartmentMembership
	for _, m := range t.st.members[departmentID] {
		m.User = nil
		if u, ok := t.st.users[m.UserID]; ok && u.TenantID == tenantID {
			m.User = u.Ref()
		}
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].UserID < out[j].UserID
	})
	return out, nil
}

func (t *tx) UpsertMember(_ context.Context, tenantID string, m models.DepartmentMembership) error {
	d, ok := t.st.departments[m.DepartmentID]
	if !ok || d.TenantID != tenantID {
		return store.ErrNotFound
	}
	byUser := t.st.members[m.DepartmentID]
	if byUser == nil {
		byUser = map[string]models.DepartmentMembership{}
		t.st.members[m.DepartmentID] = byUser
	}
	if cur, ok := byUser[m.UserID]; ok {
		cur.Role = m.Role
		byUser[m.UserID] = cur
		return nil
	}
	m.User = nil
	byUser[m.UserID] = m
	return nil
}

func (t *tx) DeleteMember(_ context.Context, tenantID, departmentID, userID string) (bool, error) {
	d, ok := t.st.departments[departmentID]
	if !ok || d.TenantID != tenantID {
		return false, nil
	}
	if _, ok := t.st.members[departmentID][userID]; !ok {
		return false, nil
	}
	delete(t.st.members[departmentID], userID)
	return true, nil
}

func (t *tx) DeleteMemberships(_ context.Context, tenantID, departmentID string) error {
	if d, ok := t.st.departments[departmentID]; ok && d.TenantID == tenantID {
		delete(t.st.members, departmentID)
	}
	return nil
}

func (t *tx) ListUserDepartments(_ context.Context, tenantID, userID string) ([]models.Department, error) {
	var out []models.Department
	for id, byUser := range t.st.members {
		if _, ok := byUser[userID]; !ok {
			continue
		}
		if d, ok := t.st.departments[id]; ok && d.TenantID == tenantID {
			out = append(out, d)
		}
	}
	sortDepartments(out)
	return out, nil
}

func conversationKey(tenantID, leadID string) string {
	return tenantID + "\x00" + leadID
}

func (t *tx) UpsertConversation(_ context.Context, c models.Conversation) error {
	key := conversationKey(c.TenantID, c.LeadID)
	if cur, ok := t.st.conversations[key]; ok {
		c.ID = cur.ID
	} else if c.ID == "" {
		c.ID = "conv-" + c.TenantID + "-" + c.LeadID
	}
	t.st.conversations[key] = c
	return nil
}

func (t *tx) GetConversation(_ context.Context, tenantID, leadID string) (models.Conversation, error) {
	c, ok := t.st.conversations[conversationKey(tenantID, leadID)]
	if !ok {
		return models.Conversation{}, store.ErrNotFound
	}
	return c, nil
}

func (t *tx) ListMirrorDrift(_ context.Context, tenantID string, limit int) ([]models.Attendance, error) {
	latest := map[string]models.Attendance{}
	for _, a := range t.st.attendances {
		if tenantID != "" && a.TenantID != tenantID {
			continue
		}
		key := conversationKey(a.TenantID, a.LeadID)
		if cur, ok := latest[key]; !ok || latestFirst(a, cur) {
			latest[key] = a
		}
	}
	var out []models.Attendance
	for key, a := range latest {
		c, ok := t.st.conversations[key]
		if ok && !mirror.Drifted(a, c) {
			continue
		}
		out = append(out, t.resolve(a))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.Before(out[j].UpdatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (t *tx) InsertRun(_ context.Context, r models.Run) error {
	t.st.runs = append(t.st.runs, r)
	return nil
}

func (t *tx) FinishRun(_ context.Context, id, status string, summary []byte, at time.Time) error {
	for i, r := range t.st.runs {
		if r.ID == id {
			finished := at
			r.Status, r.Summary, r.FinishedAt = status, summary, &finished
			t.st.runs[i] = r
			return nil
		}
	}
	return store.ErrNotFound
}

func (t *tx) GetLatestRun(_ context.Context, tenantID string) (models.Run, error) {
	var (
		best  models.Run
		found bool
	)
	for _, r := range t.st.runs {
		if r.TenantID == nil || *r.TenantID != tenantID {
			continue
		}
		if !found || !r.StartedAt.Before(best.StartedAt) {
			best, found = r, true
		}
	}
	if !found {
		return models.Run{}, store.ErrNotFound
	}
	return best, nil
}

func hasStatus(in []models.AttendanceStatus, s models.AttendanceStatus) bool {
	for _, v := range in {
		if v == s {
			return true
		}
	}
	return false
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
