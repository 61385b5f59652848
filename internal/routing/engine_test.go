package routing

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/omnidesk/backend/internal/apperr"
	"github.com/omnidesk/backend/internal/auth"
	"github.com/omnidesk/backend/internal/clock"
	"github.com/omnidesk/backend/internal/directory"
	"github.com/omnidesk/backend/internal/events"
	"github.com/omnidesk/backend/internal/memdb"
	"github.com/omnidesk/backend/internal/models"
	"github.com/omnidesk/backend/internal/policy"
	"github.com/omnidesk/backend/internal/store"
)

var (
	t0    = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	boss  = auth.ForUser("t1", "boss", auth.RoleAdmin)
	agent = auth.ForUser("t1", "x", auth.RoleAgent)
	other = auth.ForUser("t1", "y", auth.RoleAgent)
)

type fixture struct {
	engine *Engine
	dir    *directory.Directory
	store  *memdb.Store
	clock  *clock.Fake
	hub    *events.Hub
}

func newFixture(t *testing.T, s store.Store, mem *memdb.Store, rules policy.Rules) fixture {
	t.Helper()
	mem.AddUser(models.User{ID: "boss", TenantID: "t1", Name: "Boss", Role: "ADMIN"})
	mem.AddUser(models.User{ID: "x", TenantID: "t1", Name: "Xavier", Role: "AGENT"})
	mem.AddUser(models.User{ID: "y", TenantID: "t1", Name: "Yara", Role: "AGENT"})
	mem.AddUser(models.User{ID: "z", TenantID: "t2", Name: "Zoe", Role: "AGENT"})
	c := clock.NewFake(t0)
	hub := events.NewHub(zerolog.Nop())
	emitter := events.NewEmitter(hub, c, zerolog.Nop())
	dir := directory.New(s, c, emitter, zerolog.Nop())
	return fixture{
		engine: New(s, dir, emitter, c, rules, zerolog.Nop()),
		dir:    dir,
		store:  mem,
		clock:  c,
		hub:    hub,
	}
}

func setup(t *testing.T) fixture {
	mem := memdb.New()
	return newFixture(t, mem, mem, policy.Rules{})
}

func strp(v string) *string { return &v }

func (f fixture) department(t *testing.T, name string, members ...string) string {
	t.Helper()
	ctx := context.Background()
	dep, err := f.dir.Create(ctx, boss, directory.DepartmentInput{Name: name})
	if err != nil {
		t.Fatalf("create department %s: %v", name, err)
	}
	for _, m := range members {
		if _, err := f.dir.AddMember(ctx, boss, dep.ID, m, models.MembershipMember); err != nil {
			t.Fatalf("add %s to %s: %v", m, name, err)
		}
	}
	return dep.ID
}

func (f fixture) seed(t *testing.T, a models.Attendance) {
	t.Helper()
	if a.TenantID == "" {
		a.TenantID = "t1"
	}
	if a.Status == "" {
		a.Status = models.StatusOpen
	}
	if a.Priority == "" {
		a.Priority = models.PriorityNormal
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = t0
	}
	a.UpdatedAt = a.CreatedAt
	err := f.store.WithTx(context.Background(), func(tx store.Tx) error {
		ok, err := tx.InsertAttendance(context.Background(), a)
		if err == nil && !ok {
			t.Fatalf("seed %s refused", a.ID)
		}
		return err
	})
	if err != nil {
		t.Fatalf("seed %s: %v", a.ID, err)
	}
}

func (f fixture) incoming(lead string, at time.Time) *models.Attendance {
	return f.engine.HandleIncomingMessage(context.Background(), IncomingMessage{TenantID: "t1", LeadID: lead, Content: strp("hi"), Timestamp: &at})
}

func (f fixture) conversation(t *testing.T, lead string) models.Conversation {
	t.Helper()
	var c models.Conversation
	err := f.store.View(context.Background(), func(tx store.Tx) error {
		var err error
		c, err = tx.GetConversation(context.Background(), "t1", lead)
		return err
	})
	if err != nil {
		t.Fatalf("conversation %s: %v", lead, err)
	}
	return c
}

func TestIncomingKeepsOneActiveAttendancePerLead(t *testing.T) {
	f := setup(t)
	sub := f.hub.Subscribe("t1")
	defer sub.Close()

	first := f.incoming("l1", t0)
	if first == nil {
		t.Fatalf("first message must create an attendance")
	}
	if first.Status != models.StatusOpen || first.IsUrgent || first.Department == nil || first.Department.Name != directory.FallbackName {
		t.Fatalf("unexpected new attendance %+v", first)
	}
	second := f.incoming("l1", t0.Add(time.Minute))
	if second == nil || second.ID != first.ID {
		t.Fatalf("second message must reuse the active attendance, got %+v", second)
	}

	if e := <-sub.C; e.Type != events.TypeNew {
		t.Fatalf("expected attendance:new first, got %s", e.Type)
	}
	if e := <-sub.C; e.Type != events.TypeUpdate {
		t.Fatalf("expected attendance:update second, got %s", e.Type)
	}

	list, err := f.engine.List(context.Background(), boss, ListFilters{LeadID: "l1"})
	if err != nil || len(list) != 1 {
		t.Fatalf("expected exactly one attendance for the lead, got %d (%v)", len(list), err)
	}
	if c := f.conversation(t, "l1"); c.Status != models.ConversationActive {
		t.Fatalf("mirror must be active, got %+v", c)
	}
}

func TestIncomingAfterCloseOpensNewAttendance(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	first := f.incoming("l1", t0)
	if _, err := f.engine.Close(ctx, boss, first.ID, "done"); err != nil {
		t.Fatalf("close: %v", err)
	}
	if c := f.conversation(t, "l1"); c.Status != models.ConversationClosed {
		t.Fatalf("mirror must be closed, got %+v", c)
	}

	f.clock.Advance(time.Hour)
	next := f.incoming("l1", f.clock.Now())
	if next == nil || next.ID == first.ID || next.Status != models.StatusOpen {
		t.Fatalf("expected a fresh open attendance, got %+v", next)
	}
	logs, err := f.engine.ListLogs(ctx, boss, next.ID)
	if err != nil {
		t.Fatalf("logs: %v", err)
	}
	if len(logs) != 2 || logs[0].Action != models.ActionCreated || logs[1].Action != models.ActionReopened {
		t.Fatalf("expected CREATED then REOPENED, got %+v", logs)
	}
	if c := f.conversation(t, "l1"); c.Status != models.ConversationActive {
		t.Fatalf("mirror must follow the new attendance, got %+v", c)
	}
}

func TestUrgencyThreshold(t *testing.T) {
	cases := []struct {
		name   string
		wait   time.Duration
		urgent bool
	}{
		{name: "just under", wait: 4*time.Minute + 59*time.Second, urgent: false},
		{name: "just over", wait: 5*time.Minute + time.Second, urgent: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := setup(t)
			ctx := context.Background()
			f.incoming("l1", t0)
			replyAt := t0.Add(time.Minute)
			if out := f.engine.HandleOutgoingMessage(ctx, OutgoingMessage{TenantID: "t1", LeadID: "l1", Content: strp("hello"), Timestamp: &replyAt}); out == nil {
				t.Fatalf("reply must touch the active attendance")
			}
			got := f.incoming("l1", replyAt.Add(tc.wait))
			if got == nil || got.IsUrgent != tc.urgent {
				t.Fatalf("expected urgent=%v, got %+v", tc.urgent, got)
			}
		})
	}
}

func TestIncomingWithoutAnyReplyIsUrgent(t *testing.T) {
	f := setup(t)
	f.incoming("l1", t0)
	got := f.incoming("l1", t0.Add(10*time.Second))
	if got == nil || !got.IsUrgent {
		t.Fatalf("a lead that never got a reply must be urgent, got %+v", got)
	}
}

func TestOutgoingAssignsAndPromotes(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	if out := f.engine.HandleOutgoingMessage(ctx, OutgoingMessage{TenantID: "t1", LeadID: "nobody", UserID: strp("x")}); out != nil {
		t.Fatalf("outgoing without active attendance must be a no-op, got %+v", out)
	}
	f.incoming("l1", t0)
	f.incoming("l1", t0.Add(time.Second))

	out := f.engine.HandleOutgoingMessage(ctx, OutgoingMessage{TenantID: "t1", LeadID: "l1", UserID: strp("x"), Content: strp("on it")})
	if out == nil {
		t.Fatalf("expected updated attendance")
	}
	if out.Status != models.StatusInProgress || !out.AssignedTo("x") || out.IsUrgent || out.StartedAt == nil {
		t.Fatalf("unexpected attendance after reply %+v", out)
	}
	if c := f.conversation(t, "l1"); c.AssignedUserID == nil || *c.AssignedUserID != "x" {
		t.Fatalf("mirror must carry the new owner, got %+v", c)
	}
}

func TestClaimDepartmentResolution(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	sales := f.department(t, "Sales", "x", "y")
	support := f.department(t, "Support", "x")

	f.seed(t, models.Attendance{ID: "none", LeadID: "l0"})
	if _, err := f.engine.Claim(ctx, auth.ForUser("t1", "boss-agent", auth.RoleAgent), "none", ClaimInput{}); apperr.KindOf(err) != apperr.KindForbidden {
		t.Fatalf("no memberships: expected Forbidden, got %v", err)
	}

	f.seed(t, models.Attendance{ID: "one", LeadID: "l1"})
	got, err := f.engine.Claim(ctx, other, "one", ClaimInput{})
	if err != nil {
		t.Fatalf("single membership claim: %v", err)
	}
	if got.DepartmentID == nil || *got.DepartmentID != sales || !got.AssignedTo("y") || got.Status != models.StatusInProgress {
		t.Fatalf("single membership must auto-select, got %+v", got)
	}

	f.seed(t, models.Attendance{ID: "two", LeadID: "l2"})
	_, err = f.engine.Claim(ctx, agent, "two", ClaimInput{})
	if apperr.KindOf(err) != apperr.KindBadRequest {
		t.Fatalf("two memberships without choice: expected BadRequest, got %v", err)
	}
	sel, ok := apperr.AsDepartmentSelection(err)
	if !ok || len(sel.Available) != 2 {
		t.Fatalf("expected both departments offered, got %+v", sel)
	}

	if _, err := f.engine.Claim(ctx, agent, "two", ClaimInput{DepartmentID: "elsewhere"}); apperr.KindOf(err) != apperr.KindForbidden {
		t.Fatalf("department outside memberships: expected Forbidden, got %v", err)
	}
	got, err = f.engine.Claim(ctx, agent, "two", ClaimInput{DepartmentID: support, Notes: "mine"})
	if err != nil {
		t.Fatalf("claim with selection: %v", err)
	}
	if got.DepartmentID == nil || *got.DepartmentID != support {
		t.Fatalf("expected claim into selected department, got %+v", got.DepartmentID)
	}
}

func TestResolveClaimDepartmentPrivileged(t *testing.T) {
	deps := []models.Department{{ID: "d1", Name: "A"}, {ID: "d2", Name: "B"}}
	res := ResolveClaimDepartment(true, strp("d1"), deps, "")
	if res.Err() != nil || res.DepartmentID == nil || *res.DepartmentID != "d1" || res.ReasonCode != ReasonKeepCurrent {
		t.Fatalf("privileged without override keeps current: %+v", res)
	}
	res = ResolveClaimDepartment(true, strp("d1"), deps, "d2")
	if res.Err() != nil || *res.DepartmentID != "d2" {
		t.Fatalf("privileged override: %+v", res)
	}
	res = ResolveClaimDepartment(true, nil, deps, "d9")
	if apperr.KindOf(res.Err()) != apperr.KindNotFound {
		t.Fatalf("unknown override: expected NotFound, got %v", res.Err())
	}
	if len(res.Stages) != 2 || res.Stages[0].Name != "candidates" {
		t.Fatalf("unexpected stages %+v", res.Stages)
	}
}

// barrierStore holds every View until n callers have finished reading, so
// concurrent claims all pass eligibility before any of them writes.
type barrierStore struct {
	*memdb.Store
	wg sync.WaitGroup
}

func (b *barrierStore) View(ctx context.Context, fn func(store.Tx) error) error {
	err := b.Store.View(ctx, fn)
	b.wg.Done()
	b.wg.Wait()
	return err
}

func TestClaimExclusivity(t *testing.T) {
	mem := memdb.New()
	bs := &barrierStore{Store: mem}
	f := newFixture(t, bs, mem, policy.Rules{})
	f.seed(t, models.Attendance{ID: "a1", LeadID: "l1"})
	f.department(t, "Sales", "x", "y")

	bs.wg.Add(2)
	var (
		wg   sync.WaitGroup
		errs = make([]error, 2)
	)
	for i, ac := range []auth.Context{agent, other} {
		wg.Add(1)
		go func(i int, ac auth.Context) {
			defer wg.Done()
			_, errs[i] = f.engine.Claim(context.Background(), ac, "a1", ClaimInput{})
		}(i, ac)
	}
	wg.Wait()

	wins, conflicts := 0, 0
	for _, err := range errs {
		switch {
		case err == nil:
			wins++
		case apperr.KindOf(err) == apperr.KindConflict:
			conflicts++
		default:
			t.Fatalf("unexpected claim error %v", err)
		}
	}
	if wins != 1 || conflicts != 1 {
		t.Fatalf("expected one winner and one conflict, got %d/%d", wins, conflicts)
	}
	_ = mem.View(context.Background(), func(tx store.Tx) error {
		a, _ := tx.GetAttendance(context.Background(), "t1", "a1")
		if a.Status != models.StatusInProgress || a.AssignedUserID == nil {
			t.Fatalf("winner must own the attendance, got %+v", a)
		}
		logs, _ := tx.ListLogs(context.Background(), "t1", "a1")
		if len(logs) != 1 {
			t.Fatalf("exactly one CLAIMED log expected, got %d", len(logs))
		}
		return nil
	})
}

func TestVisibilityByDepartment(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	d := f.department(t, "Sales", "x")
	f.department(t, "Support", "y")
	f.seed(t, models.Attendance{ID: "a1", LeadID: "l1", DepartmentID: &d})

	mine, err := f.engine.List(ctx, agent, ListFilters{})
	if err != nil || len(mine) != 1 || mine[0].ID != "a1" {
		t.Fatalf("member should see the attendance: %+v %v", mine, err)
	}
	theirs, err := f.engine.List(ctx, other, ListFilters{})
	if err != nil || len(theirs) != 0 {
		t.Fatalf("non-member must not see it: %+v %v", theirs, err)
	}
	filtered, err := f.engine.List(ctx, other, ListFilters{DepartmentID: d})
	if err != nil || len(filtered) != 0 {
		t.Fatalf("filter outside scope must be empty, not an error: %+v %v", filtered, err)
	}
	if _, err := f.engine.Get(ctx, other, "a1"); apperr.KindOf(err) != apperr.KindForbidden {
		t.Fatalf("get outside scope: expected Forbidden, got %v", err)
	}
	if _, err := f.engine.Get(ctx, auth.ForUser("t2", "z", auth.RoleAdmin), "a1"); apperr.KindOf(err) != apperr.KindNotFound {
		t.Fatalf("cross-tenant get: expected NotFound, got %v", err)
	}
}

func TestSmartQueueOrder(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.seed(t, models.Attendance{ID: "low", LeadID: "l1", Priority: models.PriorityLow})
	f.seed(t, models.Attendance{ID: "normal", LeadID: "l2"})
	f.seed(t, models.Attendance{ID: "high-new", LeadID: "l3", Priority: models.PriorityHigh, CreatedAt: t0.Add(time.Minute)})
	f.seed(t, models.Attendance{ID: "high-old", LeadID: "l4", Priority: models.PriorityHigh})
	f.seed(t, models.Attendance{ID: "taken", LeadID: "l5", Priority: models.PriorityHigh, Status: models.StatusInProgress, AssignedUserID: strp("y")})

	q, err := f.engine.SmartQueue(ctx, boss)
	if err != nil {
		t.Fatalf("smart queue: %v", err)
	}
	want := []string{"high-old", "high-new", "normal", "low"}
	if len(q) != len(want) {
		t.Fatalf("expected %d available attendances, got %d", len(want), len(q))
	}
	for i, id := range want {
		if q[i].ID != id {
			t.Fatalf("position %d: expected %s, got %s", i, id, q[i].ID)
		}
	}
}

func TestTransferToDepartmentClearsAssignment(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	support := f.department(t, "Support", "y")
	f.seed(t, models.Attendance{ID: "a1", LeadID: "l1", Status: models.StatusInProgress, AssignedUserID: strp("x")})
	sub := f.hub.Subscribe("t1")
	defer sub.Close()

	got, err := f.engine.Transfer(ctx, agent, "a1", TransferInput{TargetDepartmentID: support, Notes: "billing"})
	if err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if got.Status != models.StatusTransferred || got.AssignedUserID != nil || got.TransferredByID == nil || *got.TransferredByID != "x" {
		t.Fatalf("unexpected attendance after transfer %+v", got)
	}
	c := f.conversation(t, "l1")
	if c.AssignedUserID != nil || c.DepartmentID == nil || *c.DepartmentID != support {
		t.Fatalf("mirror must be unassigned in the target department, got %+v", c)
	}
	if e := <-sub.C; e.Type != events.TypeTransferred {
		t.Fatalf("expected attendance:transferred, got %s", e.Type)
	}

	q, err := f.engine.SmartQueue(ctx, other)
	if err != nil || len(q) != 1 || q[0].ID != "a1" {
		t.Fatalf("transferred attendance must reach the department queue: %+v %v", q, err)
	}
}

func TestTransferGuards(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.seed(t, models.Attendance{ID: "a1", LeadID: "l1", Status: models.StatusInProgress, AssignedUserID: strp("x")})

	cases := []struct {
		name string
		ac   auth.Context
		in   TransferInput
		want apperr.Kind
	}{
		{name: "no target", ac: agent, in: TransferInput{}, want: apperr.KindBadRequest},
		{name: "not assignee", ac: other, in: TransferInput{TargetUserID: "y"}, want: apperr.KindForbidden},
		{name: "unknown user", ac: agent, in: TransferInput{TargetUserID: "ghost"}, want: apperr.KindNotFound},
		{name: "user from other tenant", ac: agent, in: TransferInput{TargetUserID: "z"}, want: apperr.KindNotFound},
		{name: "unknown department", ac: boss, in: TransferInput{TargetDepartmentID: "ghost"}, want: apperr.KindNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := f.engine.Transfer(ctx, tc.ac, "a1", tc.in); apperr.KindOf(err) != tc.want {
				t.Fatalf("expected %s, got %v", tc.want, err)
			}
		})
	}

	high := models.PriorityHigh
	got, err := f.engine.Transfer(ctx, agent, "a1", TransferInput{TargetUserID: "y", Priority: &high})
	if err != nil {
		t.Fatalf("transfer to user: %v", err)
	}
	if !got.AssignedTo("y") || got.Status != models.StatusTransferred || got.Priority != models.PriorityHigh {
		t.Fatalf("unexpected attendance %+v", got)
	}
}

func TestCloseAndPriorityGuards(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.seed(t, models.Attendance{ID: "a1", LeadID: "l1", Status: models.StatusInProgress, AssignedUserID: strp("x"), StartedAt: &t0})

	if _, err := f.engine.UpdatePriority(ctx, other, "a1", models.PriorityHigh); apperr.KindOf(err) != apperr.KindForbidden {
		t.Fatalf("priority by non-assignee: expected Forbidden, got %v", err)
	}
	if _, err := f.engine.UpdatePriority(ctx, agent, "a1", "URGENT"); apperr.KindOf(err) != apperr.KindBadRequest {
		t.Fatalf("invalid priority: expected BadRequest, got %v", err)
	}
	if got, err := f.engine.UpdatePriority(ctx, agent, "a1", models.PriorityLow); err != nil || got.Priority != models.PriorityLow {
		t.Fatalf("priority by assignee: %+v %v", got, err)
	}

	if _, err := f.engine.Close(ctx, other, "a1", ""); apperr.KindOf(err) != apperr.KindForbidden {
		t.Fatalf("close by non-assignee: expected Forbidden, got %v", err)
	}
	f.clock.Advance(30 * time.Minute)
	got, err := f.engine.Close(ctx, agent, "a1", "resolved")
	if err != nil {
		t.Fatalf("close: %v", err)
	}
	if got.Status != models.StatusClosed || got.EndedAt == nil || got.ClosedByID == nil || *got.ClosedByID != "x" {
		t.Fatalf("unexpected closed attendance %+v", got)
	}
	if c := f.conversation(t, "l1"); c.Status != models.ConversationClosed || c.AssignedUserID == nil {
		t.Fatalf("closed mirror keeps ownership, got %+v", c)
	}
	if _, err := f.engine.Close(ctx, agent, "a1", ""); apperr.KindOf(err) != apperr.KindBadRequest {
		t.Fatalf("closing twice: expected BadRequest, got %v", err)
	}

	st, err := f.engine.Stats(ctx, boss, ListFilters{})
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if st.Closed != 1 || st.AverageHandlingMinutes != 30 {
		t.Fatalf("unexpected stats %+v", st)
	}
}

func TestTransferredClaimPolicy(t *testing.T) {
	cases := []struct {
		name  string
		rules   policy.Rules
		allowed bool
	}{
		{name: "department may take over", rules: policy.Rules{TransferredClaim: policy.TransferredClaimDepartment}, allowed: true},
		{name: "reserved for assignee", rules: policy.Rules{TransferredClaim: policy.TransferredClaimAssigneeOnly}, allowed: false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			mem := memdb.New()
			f := newFixture(t, mem, mem, tc.rules)
			d := f.department(t, "Sales", "x", "y")
			f.seed(t, models.Attendance{ID: "a1", LeadID: "l1", Status: models.StatusTransferred, AssignedUserID: strp("x"), DepartmentID: &d})
			got, err := f.engine.Claim(context.Background(), other, "a1", ClaimInput{})
			if !tc.allowed {
				if apperr.KindOf(err) != apperr.KindForbidden {
					t.Fatalf("expected Forbidden, got %v", err)
				}
				return
			}
			if err != nil || !got.AssignedTo("y") {
				t.Fatalf("expected takeover by y, got %+v %v", got, err)
			}
		})
	}
}

func TestMessagesWithoutContentKeepLastMessage(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.incoming("l1", t0)

	out := f.engine.HandleIncomingMessage(ctx, IncomingMessage{TenantID: "t1", LeadID: "l1", Timestamp: timePtr(t0.Add(time.Second))})
	if out == nil || out.LastMessage == nil || *out.LastMessage != "hi" {
		t.Fatalf("incoming without content must keep the last message, got %+v", out)
	}
	out = f.engine.HandleOutgoingMessage(ctx, OutgoingMessage{TenantID: "t1", LeadID: "l1", UserID: strp("x"), Timestamp: timePtr(t0.Add(2 * time.Second))})
	if out == nil || out.LastMessage == nil || *out.LastMessage != "hi" {
		t.Fatalf("outgoing without content must keep the last message, got %+v", out)
	}
	if !out.LastMessageAt.Equal(t0.Add(2 * time.Second)) {
		t.Fatalf("last message time must still advance, got %v", out.LastMessageAt)
	}
}

func TestOutgoingWithoutKnownUserStaysOpen(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.incoming("l1", t0)

	for _, user := range []*string{nil, strp("ghost")} {
		out := f.engine.HandleOutgoingMessage(ctx, OutgoingMessage{TenantID: "t1", LeadID: "l1", UserID: user, Content: strp("auto reply")})
		if out == nil {
			t.Fatalf("expected updated attendance")
		}
		if out.Status != models.StatusOpen || out.AssignedUserID != nil {
			t.Fatalf("unowned reply must leave the ticket OPEN, got %+v", out)
		}
	}
}
