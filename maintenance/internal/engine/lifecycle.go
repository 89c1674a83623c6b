package engine

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"smart-campus-maintenance/maintenance/internal/models"
	"smart-campus-maintenance/shared/workflow"
)

type NewComplaint struct {
	Title       string             `json:"title"`
	Description string             `json:"description"`
	Category    models.Category    `json:"category"`
	StudentID   uuid.UUID          `json:"student_id"`
	Location    models.LocationRef `json:"location"`
	Hostel      bool               `json:"hostel"`
}

type StatusUpdate struct {
	ComplaintID uuid.UUID `json:"complaint_id"`
	ActorID     uuid.UUID `json:"actor_id"`
	Status      string    `json:"status"`
	Notes       string    `json:"notes,omitempty"`
	Evidence    []string  `json:"evidence,omitempty"`
}

// ReportComplaint records a new complaint, classifies its severity and takes
// the location out of service. Hostel complaints go to a warden first.
func (e *Engine) ReportComplaint(ctx context.Context, in NewComplaint) (models.Complaint, error) {
	ctx, span := e.tracer.Start(ctx, "engine.report_complaint")
	defer span.End()

	title := strings.TrimSpace(in.Title)
	if title == "" {
		return models.Complaint{}, fmt.Errorf("%w: title is required", ErrValidation)
	}
	if _, ok := RequirementFor(in.Category); !ok {
		return models.Complaint{}, fmt.Errorf("%w: unknown category %q", ErrValidation, in.Category)
	}
	if in.Location.ID == uuid.Nil {
		return models.Complaint{}, fmt.Errorf("%w: location is required", ErrValidation)
	}

	open, err := e.store.HasOpenComplaint(ctx, in.Location)
	if err != nil {
		return models.Complaint{}, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	if open {
		return models.Complaint{}, ErrDuplicateComplaint
	}

	now := e.now()
	complaint := models.Complaint{
		ID:          uuid.New(),
		Title:       title,
		Description: strings.TrimSpace(in.Description),
		Category:    in.Category,
		Severity:    ClassifyPriority(title, in.Description, in.Location.AssetType),
		Status:      workflow.ComplaintReported,
		StudentID:   in.StudentID,
		Location:    in.Location,
		Hostel:      in.Hostel,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	span.SetAttributes(attribute.String("complaint.severity", string(complaint.Severity)))

	batch := Batch{
		NewComplaints: []models.Complaint{complaint},
		Locations:     []LocationState{{Location: complaint.Location, Operational: false}},
	}
	if complaint.Hostel {
		complaint.Status = workflow.ComplaintWaitingWardenApproval
		batch.NewComplaints[0] = complaint
		for _, warden := range e.usersWithRole(ctx, models.RoleWarden) {
			batch.Notifications = append(batch.Notifications, e.message(warden.UserID, NotificationStatus,
				"Hostel complaint awaiting approval",
				fmt.Sprintf("%q (%s priority) needs warden approval.", complaint.Title, complaint.Severity),
				complaint.ID,
			))
		}
	}
	if err := e.commit(ctx, batch); err != nil {
		return models.Complaint{}, err
	}

	e.log.Info(ctx, "complaint_reported", "complaint recorded",
		slog.String("complaint_id", complaint.ID.String()),
		slog.String("category", string(complaint.Category)),
		slog.String("severity", string(complaint.Severity)),
		slog.String("status", complaint.Status),
	)
	return complaint, nil
}

// ReviewComplaint is the approval gate. Approval hands the complaint
// straight to assignment; rejection ends it.
func (e *Engine) ReviewComplaint(ctx context.Context, complaintID uuid.UUID, actorID uuid.UUID, approve bool, reason string) (AssignmentResult, error) {
	ctx, span := e.tracer.Start(ctx, "engine.review_complaint")
	defer span.End()

	res := AssignmentResult{ComplaintID: complaintID}
	complaint, err := e.loadComplaint(ctx, complaintID)
	if err != nil {
		res.Message = "complaint not found"
		return res, err
	}

	to := workflow.ComplaintRejected
	if approve {
		to = workflow.ComplaintApproved
	}
	if complaint.Status == to || !workflow.CanTransition(complaint.Status, to) {
		res.Status = complaint.Status
		res.Message = fmt.Sprintf("cannot move complaint from %s to %s", complaint.Status, to)
		return res, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, complaint.Status, to)
	}

	from := complaint.Status
	now := e.now()
	complaint.Status = to
	complaint.UpdatedAt = now
	if reason = strings.TrimSpace(reason); reason != "" {
		complaint.Notes = appendNote(complaint.Notes, reason)
	}

	batch := Batch{
		Complaints: []models.Complaint{complaint},
		Audit: []models.AuditEntry{e.auditEntry(uuidPtr(actorID), workflow.EventTypeForTransition(from, to), "complaint", complaint.ID, map[string]any{
			"from":   from,
			"to":     to,
			"reason": reason,
		})},
	}
	if !approve {
		batch.Notifications = []models.Notification{e.message(complaint.StudentID, NotificationStatus,
			"Complaint rejected",
			fmt.Sprintf("Your complaint %q was rejected. %s", complaint.Title, reason),
			complaint.ID,
		)}
	}
	if err := e.commit(ctx, batch); err != nil {
		res.Message = "failed to persist review"
		return res, err
	}

	if !approve {
		res.Success = true
		res.Status = complaint.Status
		res.Message = "complaint rejected"
		return res, nil
	}
	return e.assign(ctx, complaint)
}

// staffTargets are the statuses UpdateStatus may move a complaint into.
// Approval goes through ReviewComplaint, assignment through AssignComplaint
// and closing through VerifyOTP.
var staffTargets = map[string]bool{
	workflow.ComplaintInProgress:    true,
	workflow.ComplaintWorkSubmitted: true,
	workflow.ComplaintResolved:      true,
}

// UpdateStatus applies a transition driven by the assigned staff member:
// starting work, submitting it, resolving it and reopening it.
func (e *Engine) UpdateStatus(ctx context.Context, upd StatusUpdate) (models.Complaint, error) {
	ctx, span := e.tracer.Start(ctx, "engine.update_status")
	defer span.End()

	complaint, err := e.loadComplaint(ctx, upd.ComplaintID)
	if err != nil {
		return models.Complaint{}, err
	}

	to := workflow.Normalize(upd.Status)
	from := workflow.Normalize(complaint.Status)
	if to == workflow.ComplaintClosed {
		return complaint, fmt.Errorf("%w: closing requires otp verification", ErrInvalidTransition)
	}
	if !staffTargets[to] {
		return complaint, fmt.Errorf("%w: %s is not a staff transition", ErrInvalidTransition, to)
	}
	if to == from {
		return complaint, nil
	}
	if !workflow.CanTransition(from, to) {
		return complaint, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}

	now := e.now()
	complaint.Status = to
	complaint.UpdatedAt = now
	if notes := strings.TrimSpace(upd.Notes); notes != "" {
		complaint.Notes = appendNote(complaint.Notes, notes)
	}

	var notifications []models.Notification
	if to == workflow.ComplaintResolved {
		for _, url := range upd.Evidence {
			if url = strings.TrimSpace(url); url != "" {
				complaint.Evidence = append(complaint.Evidence, url)
			}
		}
		if complaint.OTP == nil {
			code, err := e.otp()
			if err != nil {
				return models.Complaint{}, fmt.Errorf("generate otp: %w", err)
			}
			complaint.OTP = &code
		}
		if complaint.ResolvedAt == nil {
			complaint.ResolvedAt = timePtr(now)
		}
		notifications = append(notifications, e.message(complaint.StudentID, NotificationStatus,
			"Complaint resolved",
			fmt.Sprintf("%q has been marked resolved. Confirm the fix with code %s to close it.", complaint.Title, *complaint.OTP),
			complaint.ID,
		))
	}

	batch := Batch{
		Complaints:    []models.Complaint{complaint},
		Notifications: notifications,
		Audit: []models.AuditEntry{e.auditEntry(uuidPtr(upd.ActorID), workflow.EventTypeForTransition(from, to), "complaint", complaint.ID, map[string]any{
			"from":           from,
			"to":             to,
			"evidence_count": len(upd.Evidence),
		})},
	}
	if err := e.commit(ctx, batch); err != nil {
		return models.Complaint{}, err
	}

	e.log.Info(ctx, "complaint_status_updated", "complaint status updated",
		slog.String("complaint_id", complaint.ID.String()),
		slog.String("from", from),
		slog.String("to", to),
	)
	return complaint, nil
}

// VerifyOTP closes a resolved complaint when the code matches and puts the
// location back into service. A mismatch leaves everything unchanged.
func (e *Engine) VerifyOTP(ctx context.Context, complaintID uuid.UUID, actorID uuid.UUID, otp string) (models.Complaint, error) {
	ctx, span := e.tracer.Start(ctx, "engine.verify_otp")
	defer span.End()

	complaint, err := e.loadComplaint(ctx, complaintID)
	if err != nil {
		return models.Complaint{}, err
	}
	if workflow.Normalize(complaint.Status) != workflow.ComplaintResolved {
		return complaint, fmt.Errorf("%w: complaint is %s, expected resolved", ErrInvalidState, complaint.Status)
	}
	otp = strings.TrimSpace(otp)
	if complaint.OTP == nil || subtle.ConstantTimeCompare([]byte(*complaint.OTP), []byte(otp)) != 1 {
		e.log.Warn(ctx, "otp_mismatch", "otp verification failed",
			slog.String("complaint_id", complaint.ID.String()),
			slog.String("error_code", "INVALID_OTP"),
		)
		return complaint, ErrInvalidOTP
	}

	now := e.now()
	complaint.Status = workflow.ComplaintClosed
	complaint.OTPVerified = true
	complaint.UpdatedAt = now

	batch := Batch{
		Complaints: []models.Complaint{complaint},
		Locations:  []LocationState{{Location: complaint.Location, Operational: true}},
		Audit: []models.AuditEntry{e.auditEntry(uuidPtr(actorID), workflow.EventComplaintClosed, "complaint", complaint.ID, map[string]any{
			"from": workflow.ComplaintResolved,
			"to":   workflow.ComplaintClosed,
		})},
	}
	if complaint.AssigneeID != nil {
		batch.Notifications = []models.Notification{e.message(*complaint.AssigneeID, NotificationStatus,
			"Complaint closed",
			fmt.Sprintf("%q was verified and closed.", complaint.Title),
			complaint.ID,
		)}
	}
	if err := e.commit(ctx, batch); err != nil {
		return models.Complaint{}, err
	}

	e.log.Info(ctx, "complaint_closed", "complaint closed after otp verification",
		slog.String("complaint_id", complaint.ID.String()),
	)
	return complaint, nil
}

func (e *Engine) loadComplaint(ctx context.Context, id uuid.UUID) (models.Complaint, error) {
	complaint, err := e.store.GetComplaint(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return models.Complaint{}, err
		}
		return models.Complaint{}, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	return complaint, nil
}
