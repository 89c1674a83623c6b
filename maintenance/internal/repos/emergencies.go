package repos

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"smart-campus-maintenance/maintenance/internal/engine"
	"smart-campus-maintenance/maintenance/internal/models"
	"smart-campus-maintenance/shared/workflow"
)

func (s *Store) FindEmergencies(ctx context.Context, f engine.EmergencyFilter) ([]models.Emergency, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT emergency_id, emergency_type, COALESCE(location, ''), status, escalation_level,
			reported_by, reported_at, responded_at, resolved_at
		FROM emergencies
		WHERE status = $1 AND escalation_level = $2 AND reported_at < $3
		ORDER BY reported_at ASC
	`, f.Status, f.Level, f.ReportedBefore)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Emergency
	for rows.Next() {
		var em models.Emergency
		if err := rows.Scan(&em.ID, &em.Type, &em.Location, &em.Status, &em.EscalationLevel,
			&em.ReportedBy, &em.ReportedAt, &em.RespondedAt, &em.ResolvedAt); err != nil {
			return nil, err
		}
		out = append(out, em)
	}
	return out, rows.Err()
}

// RaiseEmergency records a new triggered emergency at level 0.
func (s *Store) RaiseEmergency(ctx context.Context, emergencyType string, location string, reportedBy *uuid.UUID) (models.Emergency, error) {
	em := models.Emergency{
		ID:         uuid.New(),
		Type:       emergencyType,
		Location:   location,
		Status:     workflow.EmergencyTriggered,
		ReportedBy: reportedBy,
		ReportedAt: time.Now().UTC(),
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO emergencies (emergency_id, emergency_type, location, status, escalation_level, reported_by, reported_at)
		VALUES ($1, $2, $3, $4, 0, $5, $6)
	`, em.ID, em.Type, nullIfEmpty(em.Location), em.Status, em.ReportedBy, em.ReportedAt)
	return em, err
}

// updateEmergency never lowers the escalation level.
func updateEmergency(ctx context.Context, db DBTX, em models.Emergency) error {
	tag, err := db.Exec(ctx, `
		UPDATE emergencies
		SET status = $2, escalation_level = GREATEST(escalation_level, $3), responded_at = $4, resolved_at = $5
		WHERE emergency_id = $1
	`, em.ID, em.Status, em.EscalationLevel, em.RespondedAt, em.ResolvedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("emergency %s: %w", em.ID, engine.ErrNotFound)
	}
	return nil
}
