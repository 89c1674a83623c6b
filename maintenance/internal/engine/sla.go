package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"smart-campus-maintenance/maintenance/internal/models"
	"smart-campus-maintenance/shared/metricsx"
	"smart-campus-maintenance/shared/workflow"
)

const (
	SweepSLA        = "sla"
	SweepEscalation = "escalation"
)

type SweepReport struct {
	Sweep     string        `json:"sweep"`
	Scanned   int           `json:"scanned"`
	Flagged   int           `json:"flagged"`
	Notified  int           `json:"notified"`
	Throttled int           `json:"throttled"`
	Failed    int           `json:"failed"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
}

func (e *Engine) slaThreshold(severity models.Severity) time.Duration {
	if d, ok := e.opts.SLAThresholds[severity]; ok && d > 0 {
		return d
	}
	return e.opts.SLAThresholds[models.SeverityMedium]
}

// RunSLASweep flags every unresolved complaint open longer than its severity
// allows and tells the admins and the assignee. Breaches are not persisted;
// repeated notification is throttled only when a renotify interval is set.
func (e *Engine) RunSLASweep(ctx context.Context) (report SweepReport, err error) {
	ctx, span := e.tracer.Start(ctx, "engine.sla_sweep")
	defer span.End()

	now := e.now()
	report = SweepReport{Sweep: SweepSLA, StartedAt: now}
	defer func() { report.Duration = e.now().Sub(now) }()

	complaints, err := e.store.FindComplaints(ctx, ComplaintFilter{
		ExcludeStatuses: []string{workflow.ComplaintResolved, workflow.ComplaintClosed, workflow.ComplaintRejected},
	})
	if err != nil {
		metricsx.IncSweepRun(SweepSLA, "error")
		return report, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	report.Scanned = len(complaints)

	var admins []models.User
	for _, complaint := range complaints {
		threshold := e.slaThreshold(complaint.Severity)
		elapsed := now.Sub(complaint.CreatedAt)
		if threshold <= 0 || elapsed <= threshold {
			continue
		}
		report.Flagged++
		metricsx.IncSLABreach(string(complaint.Severity))

		if !e.claimBreach(ctx, complaint.ID) {
			report.Throttled++
			continue
		}
		if admins == nil {
			admins = e.usersWithRole(ctx, models.RoleAdmin)
		}

		body := fmt.Sprintf("%q (%s priority) has been open for %.1f hours, past its %.0f hour SLA.",
			complaint.Title, complaint.Severity, elapsed.Hours(), threshold.Hours())
		for _, recipient := range breachRecipients(admins, complaint.AssigneeID) {
			if e.notify(ctx, e.message(recipient, NotificationSLABreach, "SLA breached", body, complaint.ID)) {
				report.Notified++
			} else {
				report.Failed++
			}
		}
		e.log.Warn(ctx, "sla_breached", "complaint past sla threshold",
			slog.String("complaint_id", complaint.ID.String()),
			slog.String("severity", string(complaint.Severity)),
			slog.Float64("elapsed_hours", elapsed.Hours()),
			slog.Float64("threshold_hours", threshold.Hours()),
		)
	}

	metricsx.IncSweepRun(SweepSLA, "ok")
	e.log.Info(ctx, "sla_sweep_completed", "sla sweep completed",
		slog.Int("scanned", report.Scanned),
		slog.Int("breached", report.Flagged),
		slog.Int("notified", report.Notified),
		slog.Int("throttled", report.Throttled),
	)
	return report, nil
}

// claimBreach decides whether this sweep should notify for the complaint.
// Tracker errors fall back to notifying.
func (e *Engine) claimBreach(ctx context.Context, complaintID uuid.UUID) bool {
	if e.breaches == nil || e.opts.SLARenotifyInterval <= 0 {
		return true
	}
	ok, err := e.breaches.Claim(ctx, complaintID, e.opts.SLARenotifyInterval)
	if err != nil {
		e.log.Warn(ctx, "sla_dedup_failed", "breach tracker unavailable; notifying anyway",
			slog.String("complaint_id", complaintID.String()),
			slog.String("error", err.Error()),
		)
		return true
	}
	return ok
}

func breachRecipients(admins []models.User, assignee *uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]bool, len(admins)+1)
	out := make([]uuid.UUID, 0, len(admins)+1)
	for _, a := range admins {
		if !seen[a.UserID] {
			seen[a.UserID] = true
			out = append(out, a.UserID)
		}
	}
	if assignee != nil && !seen[*assignee] {
		out = append(out, *assignee)
	}
	return out
}
