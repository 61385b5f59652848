package routing

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/omnidesk/backend/internal/apperr"
	"github.com/omnidesk/backend/internal/directory"
	"github.com/omnidesk/backend/internal/events"
	"github.com/omnidesk/backend/internal/models"
	"github.com/omnidesk/backend/internal/store"
)

func TestSyncLeadsWithAttendancesIsIdempotent(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.store.AddLead(models.Lead{ID: "l1", TenantID: "t1", Name: "Ana", Phone: "+100"})
	f.store.AddLead(models.Lead{ID: "l2", TenantID: "t1", Name: "Bea", Phone: "+200"})
	f.store.AddLead(models.Lead{ID: "l3", TenantID: "t2", Name: "Cid", Phone: "+300"})
	f.incoming("l1", t0)

	if _, err := f.engine.SyncLeadsWithAttendances(ctx, agent); apperr.KindOf(err) != apperr.KindForbidden {
		t.Fatalf("agent sync: expected Forbidden, got %v", err)
	}

	first, err := f.engine.SyncLeadsWithAttendances(ctx, boss)
	if err != nil {
		t.Fatalf("first sync: %v", err)
	}
	if first.Counts["created"] != 1 {
		t.Fatalf("expected one orphan repaired, got %+v", first.Counts)
	}
	second, err := f.engine.SyncLeadsWithAttendances(ctx, boss)
	if err != nil {
		t.Fatalf("second sync: %v", err)
	}
	if second.Counts["created"] != 0 {
		t.Fatalf("second run must create nothing, got %+v", second.Counts)
	}

	all, _ := f.engine.List(ctx, boss, ListFilters{})
	if len(all) != 2 {
		t.Fatalf("expected two attendances in tenant, got %d", len(all))
	}
	for _, a := range all {
		if a.Department == nil || a.Department.Name != directory.FallbackName || a.Status != models.StatusOpen {
			t.Fatalf("orphan attendance must be open in the fallback department, got %+v", a)
		}
	}

	run, err := f.engine.LatestRun(ctx, boss)
	if err != nil {
		t.Fatalf("latest run: %v", err)
	}
	if run.ID != second.RunID || run.Status != RunSucceeded || run.Kind != KindSyncLeads || run.FinishedAt == nil {
		t.Fatalf("unexpected run %+v", run)
	}
	var summary RunSummary
	if err := json.Unmarshal(run.Summary, &summary); err != nil {
		t.Fatalf("summary: %v", err)
	}
	if summary.Counts["created"] != float64(0) {
		t.Fatalf("persisted summary mismatch %+v", summary.Counts)
	}
}

func TestReconcileMirrorsRepairsDrift(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	a := f.incoming("l1", t0)
	_ = f.store.WithTx(ctx, func(tx store.Tx) error {
		return tx.UpsertConversation(ctx, models.Conversation{TenantID: "t1", LeadID: "l1", AssignedUserID: strp("y"), Status: models.ConversationClosed, UpdatedAt: t0})
	})

	summary, err := f.engine.ReconcileMirrors(ctx, boss)
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if summary.Counts["repaired"] != 1 {
		t.Fatalf("expected one repair, got %+v", summary.Counts)
	}
	c := f.conversation(t, "l1")
	if c.Status != models.ConversationActive || c.AssignedUserID != nil || c.DepartmentID == nil || *c.DepartmentID != *a.DepartmentID {
		t.Fatalf("mirror must match the attendance again, got %+v", c)
	}

	again, err := f.engine.reconcile(ctx, "")
	if err != nil || again.Counts["repaired"] != 0 {
		t.Fatalf("nothing left to repair: %+v %v", again.Counts, err)
	}
}

func TestSweepUrgency(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.incoming("l1", t0)
	f.incoming("l2", t0)
	replyAt := t0.Add(time.Minute)
	f.engine.HandleOutgoingMessage(ctx, OutgoingMessage{TenantID: "t1", LeadID: "l2", Timestamp: &replyAt})

	f.clock.Set(t0.Add(4 * time.Minute))
	if n, err := f.engine.SweepUrgency(ctx); err != nil || n != 0 {
		t.Fatalf("nothing is overdue yet: n=%d err=%v", n, err)
	}

	sub := f.hub.Subscribe("t1")
	defer sub.Close()
	f.clock.Set(t0.Add(5 * time.Minute))
	n, err := f.engine.SweepUrgency(ctx)
	if err != nil || n != 1 {
		t.Fatalf("expected the unanswered lead to flip, n=%d err=%v", n, err)
	}
	e := <-sub.C
	if e.Type != events.TypeUpdate || e.Attendance.LeadID != "l1" || !e.Attendance.IsUrgent {
		t.Fatalf("unexpected event %+v", e)
	}
	if n, _ := f.engine.SweepUrgency(ctx); n != 0 {
		t.Fatalf("already urgent attendances must not flip again, got %d", n)
	}
}

func TestLatestRunWithoutRuns(t *testing.T) {
	f := setup(t)
	if _, err := f.engine.LatestRun(context.Background(), boss); apperr.KindOf(err) != apperr.KindNotFound {
		t.Fatalf("expected NotFound, got %v", err)
	}
}
