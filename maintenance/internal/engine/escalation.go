package engine

import (
	"context"
	"fmt"
	"log/slog"

	"smart-campus-maintenance/maintenance/internal/models"
	"smart-campus-maintenance/shared/metricsx"
	"smart-campus-maintenance/shared/workflow"
)

// RunEscalationSweep raises emergencies nobody has responded to within the
// escalation window from level 0 to level 1 and alerts admins and wardens.
// There is a single escalation level.
func (e *Engine) RunEscalationSweep(ctx context.Context) (report SweepReport, err error) {
	ctx, span := e.tracer.Start(ctx, "engine.escalation_sweep")
	defer span.End()

	now := e.now()
	report = SweepReport{Sweep: SweepEscalation, StartedAt: now}
	defer func() { report.Duration = e.now().Sub(now) }()

	emergencies, err := e.store.FindEmergencies(ctx, EmergencyFilter{
		Status:         workflow.EmergencyTriggered,
		Level:          0,
		ReportedBefore: now.Add(-e.opts.EscalationWindow),
	})
	if err != nil {
		metricsx.IncSweepRun(SweepEscalation, "error")
		return report, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	report.Scanned = len(emergencies)
	if len(emergencies) == 0 {
		metricsx.IncSweepRun(SweepEscalation, "ok")
		return report, nil
	}

	admins := e.usersWithRole(ctx, models.RoleAdmin)
	wardens := e.usersWithRole(ctx, models.RoleWarden)
	recipients := append(append([]models.User{}, admins...), wardens...)
	var actor *models.User
	if len(admins) > 0 {
		actor = &admins[0]
	}

	for _, em := range emergencies {
		// Re-check in case the store filter is coarser than ours.
		if em.Status != workflow.EmergencyTriggered || em.EscalationLevel != 0 || !em.ReportedAt.Before(now.Add(-e.opts.EscalationWindow)) {
			continue
		}
		report.Flagged++
		waited := now.Sub(em.ReportedAt)
		em.EscalationLevel = 1

		batch := Batch{Emergencies: []models.Emergency{em}}
		body := fmt.Sprintf("%s emergency at %s has had no response for %.0f minutes.", em.Type, em.Location, waited.Minutes())
		for _, r := range recipients {
			batch.Notifications = append(batch.Notifications, e.message(r.UserID, NotificationEmergency, "Emergency escalated", body, em.ID))
		}
		entry := e.auditEntry(nil, "emergency.escalated", "emergency", em.ID, map[string]any{
			"type":            em.Type,
			"location":        em.Location,
			"level":           em.EscalationLevel,
			"minutes_waiting": int(waited.Minutes()),
		})
		if actor != nil {
			entry.ActorID = uuidPtr(actor.UserID)
		}
		batch.Audit = []models.AuditEntry{entry}

		if err := e.commit(ctx, batch); err != nil {
			report.Failed++
			e.log.Error(ctx, "escalation_failed", "emergency escalation could not be persisted",
				slog.String("emergency_id", em.ID.String()),
				slog.String("error_code", "INTERNAL_ERROR"),
				slog.String("error", err.Error()),
			)
			continue
		}
		report.Notified += len(batch.Notifications)
		metricsx.IncEmergencyEscalation()
		e.log.Warn(ctx, "emergency_escalated", "emergency escalated to level 1",
			slog.String("emergency_id", em.ID.String()),
			slog.String("type", em.Type),
			slog.Int("recipients", len(recipients)),
		)
	}

	metricsx.IncSweepRun(SweepEscalation, "ok")
	return report, nil
}
