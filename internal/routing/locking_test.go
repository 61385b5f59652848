package routing

import (
	"context"
	"testing"
	"time"

	"github.com/omnidesk/backend/internal/memdb"
	"github.com/omnidesk/backend/internal/models"
	"github.com/omnidesk/backend/internal/policy"
	"github.com/omnidesk/backend/internal/store"
)

// laggingStore serves an old copy of one attendance to unlocked reads made
// before the unit of work writes, the way a concurrent commit looks to a
// transaction that read without a row lock.
type laggingStore struct {
	*memdb.Store
	old *models.Attendance
}

func (s *laggingStore) WithTx(ctx context.Context, fn func(store.Tx) error) error {
	return s.Store.WithTx(ctx, func(tx store.Tx) error {
		return fn(&laggingTx{Tx: tx, old: s.old})
	})
}

type laggingTx struct {
	store.Tx
	old *models.Attendance
}

func (t *laggingTx) GetAttendance(ctx context.Context, tenantID, id string) (models.Attendance, error) {
	if t.old != nil && t.old.ID == id {
		return *t.old, nil
	}
	return t.Tx.GetAttendance(ctx, tenantID, id)
}

func (t *laggingTx) GetActiveAttendanceByLead(ctx context.Context, tenantID, leadID string) (models.Attendance, error) {
	if t.old != nil && t.old.LeadID == leadID {
		return *t.old, nil
	}
	return t.Tx.GetActiveAttendanceByLead(ctx, tenantID, leadID)
}

func (t *laggingTx) UpdateAttendance(ctx context.Context, a models.Attendance) error {
	t.old = nil
	return t.Tx.UpdateAttendance(ctx, a)
}

func TestWritesDoNotUndoConcurrentClaim(t *testing.T) {
	mem := memdb.New()
	ls := &laggingStore{Store: mem}
	f := newFixture(t, ls, mem, policy.Rules{})
	ctx := context.Background()
	f.seed(t, models.Attendance{ID: "a1", LeadID: "l1"})
	f.department(t, "Sales", "x")

	var before models.Attendance
	err := mem.View(ctx, func(tx store.Tx) error {
		var err error
		before, err = tx.GetAttendance(ctx, "t1", "a1")
		return err
	})
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if _, err := f.engine.Claim(ctx, agent, "a1", ClaimInput{}); err != nil {
		t.Fatalf("claim: %v", err)
	}
	ls.old = &before

	check := func(step string, got models.Attendance) {
		t.Helper()
		if got.Status != models.StatusInProgress || !got.AssignedTo("x") {
			t.Fatalf("%s reverted the claim: %+v", step, got)
		}
		if c := f.conversation(t, "l1"); c.AssignedUserID == nil || *c.AssignedUserID != "x" {
			t.Fatalf("%s left a stale mirror: %+v", step, c)
		}
	}

	out := f.incoming("l1", t0.Add(time.Minute))
	if out == nil {
		t.Fatalf("incoming returned nothing")
	}
	check("incoming", *out)

	got, err := f.engine.UpdatePriority(ctx, boss, "a1", models.PriorityHigh)
	if err != nil {
		t.Fatalf("update priority: %v", err)
	}
	check("priority change", got)
	if got.Priority != models.PriorityHigh {
		t.Fatalf("priority not applied: %+v", got)
	}
}
