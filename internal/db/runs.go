package db

import (
	"context"
	"time"

	"github.com/omnidesk/backend/internal/models"
)

func (q *queries) InsertRun(ctx context.Context, r models.Run) error {
	_, err := q.q.Exec(ctx, `INSERT INTO runs (id, tenant_id, kind, started_at, status) VALUES ($1,$2,$3,$4,$5)`,
		r.ID, r.TenantID, r.Kind, r.StartedAt, r.Status)
	return err
}

func (q *queries) FinishRun(ctx context.Context, id, status string, summary []byte, at time.Time) error {
	_, err := q.q.Exec(ctx, `UPDATE runs SET status = $1, summary = $2, finished_at = $3 WHERE id = $4`, status, summary, at, id)
	return err
}

func (q *queries) GetLatestRun(ctx context.Context, tenantID string) (models.Run, error) {
	var (
		r       models.Run
		summary []byte
	)
	err := q.q.QueryRow(ctx, `
		SELECT id, tenant_id, kind, started_at, finished_at, status, summary
		FROM runs WHERE tenant_id = $1
		ORDER BY started_at DESC LIMIT 1`, tenantID).
		Scan(&r.ID, &r.TenantID, &r.Kind, &r.StartedAt, &r.FinishedAt, &r.Status, &summary)
	r.Summary = summary
	return r, notFound(err)
}
