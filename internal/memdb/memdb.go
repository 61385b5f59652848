// Package memdb is an in-process implementation of store.Store. It backs the
// service when no DATABASE_URL is configured and is the engine's test
// backend. WithTx works on a copy of the state and swaps it in on success,
// so a failed unit of work leaves nothing behind.
package memdb

import (
	"context"
	"sync"

	"github.com/omnidesk/backend/internal/models"
	"github.com/omnidesk/backend/internal/store"
)

type state struct {
	users         map[string]models.User
	leads         []models.Lead
	departments   map[string]models.Department
	members       map[string]map[string]models.DepartmentMembership
	attendances   map[string]models.Attendance
	logs          []models.AttendanceLog
	conversations map[string]models.Conversation
	runs          []models.Run
}

func newState() *state {
	return &state{
		users:         map[string]models.User{},
		departments:   map[string]models.Department{},
		members:       map[string]map[string]models.DepartmentMembership{},
		attendances:   map[string]models.Attendance{},
		conversations: map[string]models.Conversation{},
	}
}

func (s *state) clone() *state {
	c := &state{
		users:         make(map[string]models.User, len(s.users)),
		leads:         append([]models.Lead(nil), s.leads...),
		departments:   make(map[string]models.Department, len(s.departments)),
		members:       make(map[string]map[string]models.DepartmentMembership, len(s.members)),
		attendances:   make(map[string]models.Attendance, len(s.attendances)),
		logs:          append([]models.AttendanceLog(nil), s.logs...),
		conversations: make(map[string]models.Conversation, len(s.conversations)),
		runs:          append([]models.Run(nil), s.runs...),
	}
	for k, v := range s.users {
		c.users[k] = v
	}
	for k, v := range s.departments {
		c.departments[k] = v
	}
	for k, m := range s.members {
		cm := make(map[string]models.DepartmentMembership, len(m))
		for uk, uv := range m {
			cm[uk] = uv
		}
		c.members[k] = cm
	}
	for k, v := range s.attendances {
		c.attendances[k] = v
	}
	for k, v := range s.conversations {
		c.conversations[k] = v
	}
	return c
}

type Store struct {
	mu sync.Mutex
	st *state
}

var _ store.Store = (*Store)(nil)

func New() *Store {
	return &Store{st: newState()}
}

func (s *Store) View(ctx context.Context, fn func(store.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(&tx{st: s.st})
}

func (s *Store) WithTx(ctx context.Context, fn func(store.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	work := s.st.clone()
	if err := fn(&tx{st: work}); err != nil {
		return err
	}
	s.st = work
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return ctx.Err()
}

// AddUser registers a user owned by the messaging core.
func (s *Store) AddUser(u models.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.users[u.ID] = u
}

// AddLead registers a lead owned by the messaging core.
func (s *Store) AddLead(l models.Lead) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, existing := range s.st.leads {
		if existing.ID == l.ID {
			s.st.leads[i] = l
			return
		}
	}
	s.st.leads = append(s.st.leads, l)
}
