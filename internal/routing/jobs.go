package routing

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/omnidesk/backend/internal/apperr"
	"github.com/omnidesk/backend/internal/auth"
	"github.com/omnidesk/backend/internal/events"
	"github.com/omnidesk/backend/internal/metrics"
	"github.com/omnidesk/backend/internal/mirror"
	"github.com/omnidesk/backend/internal/models"
	"github.com/omnidesk/backend/internal/store"
)

const (
	KindSyncLeads        = "sync_leads"
	KindReconcileMirrors = "reconcile_mirrors"

	RunRunning   = "RUNNING"
	RunSucceeded = "SUCCEEDED"
	RunFailed    = "FAILED"

	maxRepairRounds = 20
)

type RunSummary struct {
	RunID  string           `json:"runId"`
	Kind   string           `json:"kind"`
	Events []map[string]any `json:"events"`
	Counts map[string]any   `json:"counts"`
}

func (s *RunSummary) event(stage string, at time.Time, kv ...any) {
	ev := map[string]any{"stage": stage, "at": at}
	for i := 0; i+1 < len(kv); i += 2 {
		if k, ok := kv[i].(string); ok {
			ev[k] = kv[i+1]
		}
	}
	s.Events = append(s.Events, ev)
}

// record persists a run row around fn and stores the resulting summary.
func (e *Engine) record(ctx context.Context, tenantID *string, kind string, fn func(*RunSummary) error) (RunSummary, error) {
	started := e.clock.Now()
	summary := RunSummary{RunID: uuid.NewString(), Kind: kind, Counts: map[string]any{}}
	err := e.store.WithTx(ctx, func(tx store.Tx) error {
		return tx.InsertRun(ctx, models.Run{ID: summary.RunID, TenantID: tenantID, Kind: kind, StartedAt: started, Status: RunRunning})
	})
	if err != nil {
		return summary, err
	}
	summary.event("start", started)

	runErr := fn(&summary)
	status := RunSucceeded
	if runErr != nil {
		status = RunFailed
		summary.event("error", e.clock.Now(), "error", runErr.Error())
	}
	finished := e.clock.Now()
	summary.event("finish", finished, "duration_ms", finished.Sub(started).Milliseconds())

	raw, err := json.Marshal(summary)
	if err != nil {
		return summary, errors.Join(runErr, err)
	}
	err = e.store.WithTx(ctx, func(tx store.Tx) error {
		return tx.FinishRun(ctx, summary.RunID, status, raw, finished)
	})
	return summary, errors.Join(runErr, err)
}

// SyncLeadsWithAttendances opens an attendance in the fallback department
// for every lead of the tenant that has never had one. Running it again
// creates nothing.
func (e *Engine) SyncLeadsWithAttendances(ctx context.Context, ac auth.Context) (RunSummary, error) {
	if !ac.Valid() {
		return RunSummary{}, invalidContext()
	}
	if !ac.Privileged() {
		return RunSummary{}, apperr.Forbidden("FORBIDDEN", "Only admins and managers can sync leads")
	}
	tenantID := ac.TenantID
	var created []models.Attendance
	summary, err := e.record(ctx, &tenantID, KindSyncLeads, func(s *RunSummary) error {
		return e.store.WithTx(ctx, func(tx store.Tx) error {
			if err := tx.Lock(ctx, tenantID, KindSyncLeads); err != nil {
				return err
			}
			leads, err := tx.ListLeadsWithoutAttendance(ctx, tenantID)
			if err != nil {
				return err
			}
			now := e.clock.Now()
			created = created[:0]
			for _, l := range leads {
				a, ok, err := e.create(ctx, tx, models.Attendance{TenantID: tenantID, LeadID: l.ID, ConnectionID: l.ConnectionID}, now)
				if err != nil {
					return err
				}
				if ok {
					created = append(created, a)
				}
			}
			s.Counts["leads_without_attendance"] = len(leads)
			s.Counts["created"] = len(created)
			return nil
		})
	})
	if err != nil {
		return summary, e.fail(ac, "sync_leads", err)
	}
	for _, a := range created {
		metrics.RecordTransition(string(models.ActionCreated))
		e.emitter.Emit(ctx, events.TypeNew, a)
	}
	e.logger.Info().Str("tenant_id", tenantID).Int("created", len(created)).Msg("leads synced with attendances")
	return summary, nil
}

// ReconcileMirrors rewrites the caller tenant's conversations that disagree
// with their lead's latest attendance.
func (e *Engine) ReconcileMirrors(ctx context.Context, ac auth.Context) (RunSummary, error) {
	if !ac.Valid() {
		return RunSummary{}, invalidContext()
	}
	if !ac.Privileged() {
		return RunSummary{}, apperr.Forbidden("FORBIDDEN", "Only admins and managers can reconcile conversations")
	}
	summary, err := e.reconcile(ctx, ac.TenantID)
	if err != nil {
		return summary, e.fail(ac, "reconcile_mirrors", err)
	}
	return summary, nil
}

// reconcile repairs mirror drift for one tenant, or all when tenantID is "".
func (e *Engine) reconcile(ctx context.Context, tenantID string) (RunSummary, error) {
	var tenant *string
	if tenantID != "" {
		tenant = &tenantID
	}
	return e.record(ctx, tenant, KindReconcileMirrors, func(s *RunSummary) error {
		repaired := 0
		for round := 0; round < maxRepairRounds; round++ {
			var drift []models.Attendance
			err := e.store.View(ctx, func(tx store.Tx) error {
				var err error
				drift, err = tx.ListMirrorDrift(ctx, tenantID, repairBatch)
				return err
			})
			if err != nil {
				return err
			}
			if len(drift) == 0 {
				break
			}
			err = e.store.WithTx(ctx, func(tx store.Tx) error {
				now := e.clock.Now()
				for _, stale := range drift {
					latest, err := tx.GetLatestAttendanceByLead(ctx, stale.TenantID, stale.LeadID)
					if err != nil {
						return err
					}
					a, err := tx.GetAttendanceForUpdate(ctx, latest.TenantID, latest.ID)
					if err != nil {
						return err
					}
					if err := mirror.Sync(ctx, tx, a, now); err != nil {
						return err
					}
				}
				return nil
			})
			if err != nil {
				return err
			}
			repaired += len(drift)
			metrics.MirrorRepairsCounter.Add(float64(len(drift)))
			s.event("batch", e.clock.Now(), "repaired", len(drift))
			if len(drift) < repairBatch {
				break
			}
		}
		s.Counts["repaired"] = repaired
		if repaired > 0 {
			e.logger.Warn().Str("tenant_id", tenantID).Int("repaired", repaired).Msg("conversation mirror drift repaired")
		}
		return nil
	})
}

// SweepUrgency flags active attendances whose customer has waited at least
// UrgencyThreshold for a reply. It returns how many were flipped.
func (e *Engine) SweepUrgency(ctx context.Context) (int, error) {
	cutoff := e.clock.Now().Add(-UrgencyThreshold)
	var waiting []models.Attendance
	err := e.store.View(ctx, func(tx store.Tx) error {
		var err error
		waiting, err = tx.ListWaitingAttendances(ctx, cutoff, repairBatch)
		return err
	})
	if err != nil {
		return 0, err
	}

	flipped := 0
	for _, w := range waiting {
		var (
			out     models.Attendance
			changed bool
		)
		err := e.store.WithTx(ctx, func(tx store.Tx) error {
			a, err := tx.GetAttendanceForUpdate(ctx, w.TenantID, w.ID)
			if err != nil {
				return err
			}
			if !stillWaiting(a, cutoff) {
				return nil
			}
			a.IsUrgent = true
			a.UpdatedAt = e.clock.Now()
			if err := tx.UpdateAttendance(ctx, a); err != nil {
				return err
			}
			out, changed = a, true
			return nil
		})
		if err != nil {
			e.logger.Error().Err(err).Str("tenant_id", w.TenantID).Str("attendance_id", w.ID).Str("op", "sweep_urgency").Msg("urgency flip failed")
			continue
		}
		if changed {
			flipped++
			metrics.UrgencyFlipsCounter.WithLabelValues("sweep").Inc()
			e.emitter.Emit(ctx, events.TypeUpdate, out)
		}
	}
	return flipped, nil
}

func stillWaiting(a models.Attendance, cutoff time.Time) bool {
	if !a.Active() || a.IsUrgent || a.LastIncomingAt == nil {
		return false
	}
	since := a.CreatedAt
	if a.LastOutgoingAt != nil {
		if !a.LastIncomingAt.After(*a.LastOutgoingAt) {
			return false
		}
		since = *a.LastOutgoingAt
	}
	return !since.After(cutoff)
}

func (e *Engine) LatestRun(ctx context.Context, ac auth.Context) (models.Run, error) {
	if !ac.Valid() {
		return models.Run{}, invalidContext()
	}
	if !ac.Privileged() {
		return models.Run{}, apperr.Forbidden("FORBIDDEN", "Only admins and managers can read runs")
	}
	var r models.Run
	err := e.store.View(ctx, func(tx store.Tx) error {
		var err error
		r, err = tx.GetLatestRun(ctx, ac.TenantID)
		if errors.Is(err, store.ErrNotFound) {
			return apperr.NotFound("RUN_NOT_FOUND", "No run recorded yet")
		}
		return err
	})
	if err != nil {
		return models.Run{}, e.fail(ac, "latest_run", err)
	}
	return r, nil
}

// RunJobs runs the reconcile and urgency sweep loops until ctx ends. A
// non-positive interval disables that loop.
func (e *Engine) RunJobs(ctx context.Context, reconcileEvery, sweepEvery time.Duration) {
	reconcile := tick(reconcileEvery)
	sweep := tick(sweepEvery)
	defer reconcile.stop()
	defer sweep.stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-reconcile.c:
			if _, err := e.reconcile(ctx, ""); err != nil && ctx.Err() == nil {
				e.logger.Error().Err(err).Str("op", "reconcile_mirrors").Msg("scheduled reconcile failed")
			}
		case <-sweep.c:
			n, err := e.SweepUrgency(ctx)
			if err != nil && ctx.Err() == nil {
				e.logger.Error().Err(err).Str("op", "sweep_urgency").Msg("scheduled urgency sweep failed")
				continue
			}
			if n > 0 {
				e.logger.Info().Int("flipped", n).Msg("attendances flagged urgent")
			}
		}
	}
}

type ticker struct {
	c    <-chan time.Time
	stop func()
}

func tick(every time.Duration) ticker {
	if every <= 0 {
		return ticker{stop: func() {}}
	}
	t := time.NewTicker(every)
	return ticker{c: t.C, stop: t.Stop}
}
