package repos

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"smart-campus-maintenance/maintenance/internal/engine"
	"smart-campus-maintenance/maintenance/internal/models"
)

// Store is the Postgres implementation of the engine's persistence port.
// Notifications are not delivered here: they are queued as outbox events in
// the same transaction as the state change they describe.
type Store struct {
	pool   *pgxpool.Pool
	outbox *OutboxRepo
	audit  *AuditRepo
}

var (
	_ engine.Store       = (*Store)(nil)
	_ engine.Notifier    = (*Store)(nil)
	_ engine.AuditLogger = (*AuditRepo)(nil)
)

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{
		pool:   pool,
		outbox: NewOutboxRepo(pool),
		audit:  NewAuditRepo(pool),
	}
}

func (s *Store) Audit() *AuditRepo { return s.audit }

// Notify queues a single notification outside any unit of work.
func (s *Store) Notify(ctx context.Context, n models.Notification) error {
	event, err := notificationEvent(n)
	if err != nil {
		return err
	}
	_, err = s.outbox.Insert(ctx, s.pool, event)
	return err
}
