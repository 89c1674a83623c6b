package repos

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"smart-campus-maintenance/maintenance/internal/models"
	"smart-campus-maintenance/shared/events"
)

// NotificationsRepo is the inbox that queued notifications land in once the
// consumer has read them back from the stream.
type NotificationsRepo struct {
	pool *pgxpool.Pool
}

func NewNotificationsRepo(pool *pgxpool.Pool) *NotificationsRepo {
	return &NotificationsRepo{pool: pool}
}

// Insert stores n once; a redelivered notification reports false.
func (r *NotificationsRepo) Insert(ctx context.Context, n models.Notification) (bool, error) {
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	tag, err := r.pool.Exec(ctx, `
		INSERT INTO notifications (notification_id, recipient_id, type, title, message, related_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (notification_id) DO NOTHING
	`, n.ID, n.RecipientID, n.Type, n.Title, n.Message, n.RelatedID, n.CreatedAt)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *NotificationsRepo) ListForRecipient(ctx context.Context, recipientID uuid.UUID, limit int) ([]models.Notification, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `
		SELECT notification_id, recipient_id, type, title, message, related_id, created_at
		FROM notifications
		WHERE recipient_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, recipientID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Notification
	for rows.Next() {
		var n models.Notification
		if err := rows.Scan(&n.ID, &n.RecipientID, &n.Type, &n.Title, &n.Message, &n.RelatedID, &n.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func notificationEvent(n models.Notification) (models.OutboxEvent, error) {
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	env, err := events.New(events.AggregateNotification, n.ID, "notification."+n.Type, n, n.CreatedAt)
	if err != nil {
		return models.OutboxEvent{}, err
	}
	payload, err := json.Marshal(env)
	if err != nil {
		return models.OutboxEvent{}, err
	}
	return models.OutboxEvent{
		EventID:       env.EventID,
		AggregateType: events.AggregateNotification,
		AggregateID:   n.ID,
		Topic:         events.TopicNotifications,
		Payload:       payload,
	}, nil
}

// DecodeNotification extracts the notification carried by a stream message.
func DecodeNotification(raw []byte) (models.Notification, error) {
	env, err := events.Decode(raw)
	if err != nil {
		return models.Notification{}, err
	}
	var n models.Notification
	if err := json.Unmarshal(env.Payload, &n); err != nil {
		return models.Notification{}, err
	}
	return n, nil
}
