package repos

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"smart-campus-maintenance/maintenance/internal/models"
)

type AuditRepo struct {
	pool *pgxpool.Pool
}

func NewAuditRepo(pool *pgxpool.Pool) *AuditRepo {
	return &AuditRepo{pool: pool}
}

func (r *AuditRepo) Record(ctx context.Context, entry models.AuditEntry) error {
	return r.write(ctx, r.pool, []models.AuditEntry{entry})
}

func (r *AuditRepo) write(ctx context.Context, db DBTX, entries []models.AuditEntry) error {
	if len(entries) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for i := range entries {
		entry := entries[i]
		if entry.ID == uuid.Nil {
			entry.ID = uuid.New()
		}
		if entry.OccurredAt.IsZero() {
			entry.OccurredAt = time.Now().UTC()
		}
		details, err := json.Marshal(entry.Details)
		if err != nil {
			return err
		}
		batch.Queue(`
			INSERT INTO audit_logs (
				audit_id, occurred_at, actor_user_id, action, resource_type, resource_id, details
			) VALUES ($1, $2, $3, $4, $5, $6, $7)
		`,
			entry.ID,
			entry.OccurredAt,
			entry.ActorID,
			entry.Action,
			entry.ResourceType,
			entry.ResourceID,
			details,
		)
	}

	br := db.SendBatch(ctx, batch)
	defer br.Close()

	for range entries {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}
