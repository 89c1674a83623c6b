package events

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type Envelope struct {
	EventID       uuid.UUID       `json:"event_id"`
	OccurredAt    time.Time       `json:"occurred_at"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   uuid.UUID       `json:"aggregate_id"`
	EventType     string          `json:"event_type"`
	ActorID       *uuid.UUID      `json:"actor_id,omitempty"`
	Payload       json.RawMessage `json:"payload"`
}

const (
	TopicNotifications   = "maintenance.notifications"
	TopicComplaintEvents = "complaint.events"
)

const (
	AggregateComplaint    = "complaint"
	AggregateNotification = "notification"
)

// New builds an envelope around payload, stamping a fresh id and time.
func New(aggregateType string, aggregateID uuid.UUID, eventType string, payload any, at time.Time) (Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, err
	}
	if at.IsZero() {
		at = time.Now().UTC()
	}
	return Envelope{
		EventID:       uuid.New(),
		OccurredAt:    at,
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		EventType:     eventType,
		Payload:       raw,
	}, nil
}

func Decode(raw []byte) (Envelope, error) {
	var env Envelope
	err := json.Unmarshal(raw, &env)
	return env, err
}
