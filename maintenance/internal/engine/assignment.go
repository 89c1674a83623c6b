package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"smart-campus-maintenance/maintenance/internal/models"
	"smart-campus-maintenance/shared/metricsx"
	"smart-campus-maintenance/shared/workflow"
)

const (
	NotificationAssigned      = "assignment"
	NotificationAwaitingStaff = "awaiting_staff"
	NotificationReassigned    = "reassignment"
	NotificationSLABreach     = "sla_breach"
	NotificationEmergency     = "emergency_escalation"
	NotificationStatus        = "complaint_status"
	NotificationCleaning      = "cleaning_task"
)

// AssignmentResult reports the outcome of one assignment attempt. A
// complaint left waiting for staff is a successful, unassigned result.
type AssignmentResult struct {
	Success       bool       `json:"success"`
	Assigned      bool       `json:"assigned"`
	ComplaintID   uuid.UUID  `json:"complaint_id"`
	StaffID       *uuid.UUID `json:"staff_id,omitempty"`
	LocalityMatch bool       `json:"locality_match"`
	Status        string     `json:"status,omitempty"`
	Message       string     `json:"message"`
}

// AssignComplaint routes an approved (or still waiting) complaint to the
// available staff member who has been idle the longest, preferring one in
// the complaint's own building or block.
func (e *Engine) AssignComplaint(ctx context.Context, complaintID uuid.UUID) (AssignmentResult, error) {
	ctx, span := e.tracer.Start(ctx, "engine.assign_complaint")
	defer span.End()
	span.SetAttributes(attribute.String("complaint.id", complaintID.String()))

	complaint, err := e.store.GetComplaint(ctx, complaintID)
	if err != nil {
		res := AssignmentResult{ComplaintID: complaintID, Message: "complaint not found"}
		if !errors.Is(err, ErrNotFound) {
			res.Message = "failed to load complaint"
			err = fmt.Errorf("%w: %v", ErrPersistence, err)
		}
		metricsx.IncAssignment("failed")
		return res, err
	}
	return e.assign(ctx, complaint)
}

func (e *Engine) assign(ctx context.Context, complaint models.Complaint) (AssignmentResult, error) {
	start := e.now()
	res := AssignmentResult{ComplaintID: complaint.ID, Status: complaint.Status}

	status := workflow.Normalize(complaint.Status)
	if status != workflow.ComplaintApproved && status != workflow.ComplaintWaitingForSkilledStaff {
		res.Message = fmt.Sprintf("complaint is %s, expected approved", complaint.Status)
		e.log.Warn(ctx, "assignment_rejected", "complaint not in an assignable state",
			slog.String("complaint_id", complaint.ID.String()),
			slog.String("status", complaint.Status),
			slog.String("error_code", "INVALID_STATE"),
		)
		metricsx.IncAssignment("failed")
		return res, fmt.Errorf("%w: complaint %s is %s", ErrInvalidState, complaint.ID, complaint.Status)
	}

	req, ok := RequirementFor(complaint.Category)
	if !ok {
		res.Message = fmt.Sprintf("no staff skill mapped for category %q", complaint.Category)
		metricsx.IncAssignment("failed")
		return res, fmt.Errorf("%w: unknown category %q", ErrInvalidState, complaint.Category)
	}

	candidates, err := e.store.FindStaff(ctx, req.filter())
	if err != nil {
		res.Message = "failed to load candidate staff"
		metricsx.IncAssignment("failed")
		return res, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	byAvailability(candidates)
	pick, local := pickCandidate(candidates, complaint.Location.Area)
	if pick == nil {
		return e.awaitStaff(ctx, complaint, req, res)
	}

	now := e.now()
	complaint.Status = workflow.ComplaintAssigned
	complaint.AssigneeID = uuidPtr(pick.UserID)
	complaint.AssignedAt = timePtr(now)
	complaint.UpdatedAt = now

	batch := Batch{
		Complaints: []models.Complaint{complaint},
		Notifications: []models.Notification{e.message(pick.UserID, NotificationAssigned,
			"New complaint assigned",
			fmt.Sprintf("You have been assigned %q (%s priority).", complaint.Title, complaint.Severity),
			complaint.ID,
		)},
		Audit: []models.AuditEntry{e.auditEntry(nil, "complaint.auto_assigned", "complaint", complaint.ID, map[string]any{
			"staff_id":       pick.UserID.String(),
			"role":           string(req.Role),
			"skill":          string(req.Skill),
			"locality":       complaint.Location.Area,
			"locality_match": local,
		})},
	}
	if err := e.commit(ctx, batch); err != nil {
		res.Message = "failed to persist assignment"
		e.log.Error(ctx, "assignment_failed", "assignment could not be persisted",
			slog.String("complaint_id", complaint.ID.String()),
			slog.String("error_code", "INTERNAL_ERROR"),
			slog.String("error", err.Error()),
		)
		metricsx.IncAssignment("failed")
		return res, err
	}

	metricsx.IncAssignment("assigned")
	metricsx.ObserveAssignmentLatency(e.now().Sub(start))
	e.log.Info(ctx, "complaint_assigned", "complaint assigned",
		slog.String("complaint_id", complaint.ID.String()),
		slog.String("staff_id", pick.UserID.String()),
		slog.Bool("locality_match", local),
	)

	res.Success = true
	res.Assigned = true
	res.StaffID = uuidPtr(pick.UserID)
	res.LocalityMatch = local
	res.Status = complaint.Status
	res.Message = fmt.Sprintf("assigned to %s", displayName(*pick))
	return res, nil
}

// awaitStaff parks the complaint until someone with the right skill frees up.
// Admins are told once, on the transition into the waiting state.
func (e *Engine) awaitStaff(ctx context.Context, complaint models.Complaint, req Requirement, res AssignmentResult) (AssignmentResult, error) {
	res.Success = true
	res.Status = workflow.ComplaintWaitingForSkilledStaff
	res.Message = "no available staff with the required skill"
	metricsx.IncAssignment("waiting")

	if workflow.Normalize(complaint.Status) == workflow.ComplaintWaitingForSkilledStaff {
		return res, nil
	}

	complaint.Status = workflow.ComplaintWaitingForSkilledStaff
	complaint.AssigneeID = nil
	complaint.AssignedAt = nil
	complaint.UpdatedAt = e.now()

	skill := string(req.Skill)
	if skill == "" {
		skill = string(req.Role)
	}
	batch := Batch{Complaints: []models.Complaint{complaint}}
	for _, admin := range e.usersWithRole(ctx, models.RoleAdmin) {
		batch.Notifications = append(batch.Notifications, e.message(admin.UserID, NotificationAwaitingStaff,
			"Complaint waiting for staff",
			fmt.Sprintf("No available %s for %q. It will be assigned when one becomes available.", skill, complaint.Title),
			complaint.ID,
		))
	}
	if err := e.commit(ctx, batch); err != nil {
		res.Success = false
		res.Status = ""
		res.Message = "failed to persist waiting state"
		return res, err
	}

	e.log.Info(ctx, "complaint_waiting", "no candidate staff; complaint parked",
		slog.String("complaint_id", complaint.ID.String()),
		slog.String("skill", skill),
		slog.Int("admins_notified", len(batch.Notifications)),
	)
	return res, nil
}

// pickCandidate takes the first candidate in the complaint's area, else the
// first candidate overall. Candidates must already be ordered.
func pickCandidate(candidates []models.StaffMember, area string) (*models.StaffMember, bool) {
	if len(candidates) == 0 {
		return nil, false
	}
	key := normalizeArea(area)
	if key != "" {
		for i := range candidates {
			if normalizeArea(candidates[i].AssignedArea) == key {
				return &candidates[i], true
			}
		}
	}
	return &candidates[0], false
}
