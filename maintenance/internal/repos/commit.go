package repos

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"smart-campus-maintenance/maintenance/internal/engine"
	"smart-campus-maintenance/maintenance/internal/models"
	"smart-campus-maintenance/shared/dbx"
	"smart-campus-maintenance/shared/events"
)

type complaintEventPayload struct {
	ComplaintID string  `json:"complaint_id"`
	Status      string  `json:"status"`
	Severity    string  `json:"severity"`
	AssigneeID  *string `json:"assignee_id,omitempty"`
}

// Commit writes the batch in one transaction. Notifications and complaint
// state changes are queued as outbox events alongside the rows they describe.
func (s *Store) Commit(ctx context.Context, b engine.Batch) error {
	if b.Empty() {
		return nil
	}
	return dbx.InTx(ctx, s.pool, func(tx pgx.Tx) error {
		for _, c := range b.NewComplaints {
			if err := insertComplaint(ctx, tx, c); err != nil {
				return fmt.Errorf("insert complaint: %w", err)
			}
			if err := s.queueComplaintEvent(ctx, tx, c); err != nil {
				return err
			}
		}
		for _, c := range b.Complaints {
			if err := updateComplaint(ctx, tx, c); err != nil {
				return fmt.Errorf("update complaint: %w", err)
			}
			if err := s.queueComplaintEvent(ctx, tx, c); err != nil {
				return err
			}
		}
		for _, t := range b.Tasks {
			if err := updateTask(ctx, tx, t); err != nil {
				return fmt.Errorf("update cleaning task: %w", err)
			}
		}
		for _, em := range b.Emergencies {
			if err := updateEmergency(ctx, tx, em); err != nil {
				return fmt.Errorf("update emergency: %w", err)
			}
		}
		for _, l := range b.Locations {
			if err := setOperational(ctx, tx, l.Location, l.Operational); err != nil {
				return fmt.Errorf("update location: %w", err)
			}
		}
		for _, n := range b.Notifications {
			event, err := notificationEvent(n)
			if err != nil {
				return err
			}
			if _, err := s.outbox.Insert(ctx, tx, event); err != nil {
				return fmt.Errorf("queue notification: %w", err)
			}
		}
		if err := s.audit.write(ctx, tx, b.Audit); err != nil {
			return fmt.Errorf("write audit: %w", err)
		}
		return nil
	})
}

func (s *Store) queueComplaintEvent(ctx context.Context, db DBTX, c models.Complaint) error {
	payload := complaintEventPayload{
		ComplaintID: c.ID.String(),
		Status:      c.Status,
		Severity:    string(c.Severity),
	}
	if c.AssigneeID != nil {
		id := c.AssigneeID.String()
		payload.AssigneeID = &id
	}
	env, err := events.New(events.AggregateComplaint, c.ID, "complaint."+c.Status, payload, c.UpdatedAt)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(env)
	if err != nil {
		return err
	}
	_, err = s.outbox.Insert(ctx, db, models.OutboxEvent{
		EventID:       env.EventID,
		AggregateType: events.AggregateComplaint,
		AggregateID:   c.ID,
		Topic:         events.TopicComplaintEvents,
		Payload:       raw,
	})
	if err != nil {
		return fmt.Errorf("queue complaint event: %w", err)
	}
	return nil
}

func setOperational(ctx context.Context, db DBTX, loc models.LocationRef, operational bool) error {
	var query string
	switch loc.Kind {
	case models.LocationAsset:
		query = `UPDATE assets SET is_operational = $2 WHERE asset_id = $1`
	case models.LocationRoom:
		query = `UPDATE rooms SET is_operational = $2 WHERE room_id = $1`
	case models.LocationClassroom:
		query = `UPDATE classrooms SET is_operational = $2 WHERE classroom_id = $1`
	default:
		return fmt.Errorf("unknown location kind %q", loc.Kind)
	}
	_, err := db.Exec(ctx, query, loc.ID, operational)
	return err
}
