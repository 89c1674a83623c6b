package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"smart-campus-maintenance/maintenance/internal/models"
	"smart-campus-maintenance/shared/metricsx"
	"smart-campus-maintenance/shared/workflow"
)

const (
	ReassignmentMarker = "[system] Auto-reassigned"
	unavailableReason  = "previous assignee became unavailable"
)

type AvailabilityResult struct {
	Success            bool      `json:"success"`
	StaffID            uuid.UUID `json:"staff_id"`
	Available          bool      `json:"available"`
	TasksAssigned      int       `json:"tasks_assigned"`
	ComplaintsAssigned int       `json:"complaints_assigned"`
	Reassigned         int       `json:"reassigned"`
	ReturnedToPool     int       `json:"returned_to_pool"`
	Failed             int       `json:"failed"`
	Message            string    `json:"message"`
}

// OnStaffAvailabilityChanged records a staff availability flip and moves
// work accordingly: a staff member coming back picks up waiting work, one
// going away hands theirs to peers or back to the pool.
func (e *Engine) OnStaffAvailabilityChanged(ctx context.Context, staffID uuid.UUID, role models.Role, available bool) (AvailabilityResult, error) {
	ctx, span := e.tracer.Start(ctx, "engine.availability_changed")
	defer span.End()
	span.SetAttributes(
		attribute.String("staff.id", staffID.String()),
		attribute.Bool("staff.available", available),
	)

	res := AvailabilityResult{StaffID: staffID, Available: available}

	staff, err := e.store.GetStaff(ctx, staffID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			res.Message = "staff member not found"
			return res, err
		}
		res.Message = "failed to load staff member"
		return res, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	if staff.Role != models.RoleTechnician && staff.Role != models.RoleCleaner {
		res.Message = fmt.Sprintf("role %s does not take work assignments", staff.Role)
		return res, fmt.Errorf("%w: staff %s has role %s", ErrInvalidState, staffID, staff.Role)
	}
	if role != "" && role != staff.Role {
		res.Message = fmt.Sprintf("staff member is a %s, not a %s", staff.Role, role)
		return res, fmt.Errorf("%w: role mismatch for staff %s", ErrInvalidState, staffID)
	}

	if e.locker != nil {
		release, ok, err := e.locker.Acquire(ctx, "maintenance:availability:"+staffID.String(), e.opts.RedistributionLockTTL)
		switch {
		case err != nil:
			e.log.Warn(ctx, "availability_lock_failed", "proceeding without redistribution lock",
				slog.String("staff_id", staffID.String()),
				slog.String("error", err.Error()),
			)
		case !ok:
			res.Message = "availability change already in progress for this staff member"
			return res, nil
		default:
			defer release()
		}
	}

	if staff.IsAvailable != available {
		now := e.now()
		if err := e.store.SetStaffAvailability(ctx, staffID, available, now); err != nil {
			res.Message = "failed to persist availability"
			return res, fmt.Errorf("%w: %v", ErrPersistence, err)
		}
		staff.IsAvailable = available
		staff.LastAvailabilityUpdate = timePtr(now)
		e.record(ctx, e.auditEntry(uuidPtr(staffID), "staff.availability_changed", "staff", staffID, map[string]any{
			"role":      string(staff.Role),
			"available": available,
		}))
	}

	if available {
		e.backfill(ctx, staff, &res)
	} else {
		e.redistribute(ctx, staff, &res)
	}

	metricsx.AddRedistribution("backfilled", res.TasksAssigned+res.ComplaintsAssigned)
	metricsx.AddRedistribution("reassigned", res.Reassigned)
	metricsx.AddRedistribution("returned", res.ReturnedToPool)
	metricsx.AddRedistribution("failed", res.Failed)

	res.Success = true
	res.Message = availabilitySummary(res)
	e.log.Info(ctx, "availability_changed", res.Message,
		slog.String("staff_id", staffID.String()),
		slog.Bool("available", available),
		slog.Int("tasks_assigned", res.TasksAssigned),
		slog.Int("complaints_assigned", res.ComplaintsAssigned),
		slog.Int("reassigned", res.Reassigned),
		slog.Int("returned_to_pool", res.ReturnedToPool),
		slog.Int("failed", res.Failed),
	)
	return res, nil
}

func availabilitySummary(res AvailabilityResult) string {
	if res.Available {
		return fmt.Sprintf("picked up %d cleaning tasks and %d complaints", res.TasksAssigned, res.ComplaintsAssigned)
	}
	return fmt.Sprintf("reassigned %d items, returned %d to the pool", res.Reassigned, res.ReturnedToPool)
}

func (e *Engine) backfill(ctx context.Context, staff models.StaffMember, res *AvailabilityResult) {
	if staff.Role == models.RoleCleaner {
		e.backfillCleaningTasks(ctx, staff, res)
	}
	e.retryWaitingComplaints(ctx, staff, res)
}

func (e *Engine) backfillCleaningTasks(ctx context.Context, staff models.StaffMember, res *AvailabilityResult) {
	today := startOfDay(e.now())
	pending, err := e.store.FindCleaningTasks(ctx, TaskFilter{
		Statuses: []string{workflow.TaskPendingAssignment},
		Unowned:  true,
		Area:     staff.AssignedArea,
		From:     today,
	})
	if err != nil {
		e.logItemFailure(ctx, "backfill_lookup_failed", "could not list pending cleaning tasks", staff.UserID, uuid.Nil, err)
		res.Failed++
		return
	}
	mine, err := e.store.FindCleaningTasks(ctx, TaskFilter{
		Statuses:  []string{workflow.TaskWaitingForAvailability},
		CleanerID: uuidPtr(staff.UserID),
		From:      today,
	})
	if err != nil {
		e.logItemFailure(ctx, "backfill_lookup_failed", "could not list waiting cleaning tasks", staff.UserID, uuid.Nil, err)
		res.Failed++
		return
	}
	parked, err := e.store.FindCleaningTasks(ctx, TaskFilter{
		Statuses: []string{workflow.TaskWaitingForAvailability},
		Area:     staff.AssignedArea,
		From:     today,
	})
	if err != nil {
		e.logItemFailure(ctx, "backfill_lookup_failed", "could not list waiting cleaning tasks", staff.UserID, uuid.Nil, err)
		res.Failed++
		return
	}

	tasks := append(pending, mine...)
	tasks = append(tasks, e.claimableFromPeers(ctx, staff, parked)...)
	sortTasks(tasks)
	if limit := e.opts.BackfillLimit; limit > 0 && len(tasks) > limit {
		tasks = tasks[:limit]
	}

	for _, task := range tasks {
		now := e.now()
		previous := task.CleanerID
		task.CleanerID = uuidPtr(staff.UserID)
		task.Status = workflow.TaskAssigned
		task.AssignedAt = timePtr(now)
		batch := Batch{
			Tasks: []models.CleaningTask{task},
			Notifications: []models.Notification{e.message(staff.UserID, NotificationCleaning,
				"Cleaning task assigned",
				fmt.Sprintf("Cleaning scheduled for %s has been assigned to you.", task.ScheduledDate.Format("2006-01-02")),
				task.ID,
			)},
		}
		if previous != nil && *previous != staff.UserID {
			batch.Audit = []models.AuditEntry{e.auditEntry(nil, "cleaning_task.reassigned", "cleaning_task", task.ID, map[string]any{
				"previous_staff_id": previous.String(),
				"staff_id":          staff.UserID.String(),
			})}
		}
		if err := e.commit(ctx, batch); err != nil {
			e.logItemFailure(ctx, "backfill_item_failed", "could not assign cleaning task", staff.UserID, task.ID, err)
			res.Failed++
			continue
		}
		res.TasksAssigned++
	}
}

// claimableFromPeers keeps the parked tasks owned by another cleaner who is
// still unavailable. Tasks already owned by staff are left to the other query.
func (e *Engine) claimableFromPeers(ctx context.Context, staff models.StaffMember, parked []models.CleaningTask) []models.CleaningTask {
	away := map[uuid.UUID]bool{}
	var out []models.CleaningTask
	for _, task := range parked {
		if task.CleanerID == nil {
			out = append(out, task)
			continue
		}
		owner := *task.CleanerID
		if owner == staff.UserID {
			continue
		}
		unavailable, seen := away[owner]
		if !seen {
			member, err := e.store.GetStaff(ctx, owner)
			if err != nil && !errors.Is(err, ErrNotFound) {
				e.logItemFailure(ctx, "backfill_owner_lookup_failed", "could not load cleaning task owner", staff.UserID, task.ID, err)
				continue
			}
			unavailable = err != nil || !member.IsAvailable || !member.IsActive
			away[owner] = unavailable
		}
		if unavailable {
			out = append(out, task)
		}
	}
	return out
}

// retryWaitingComplaints replays parked complaints this staff member could
// serve, oldest first, until the engine finds nobody left to assign.
func (e *Engine) retryWaitingComplaints(ctx context.Context, staff models.StaffMember, res *AvailabilityResult) {
	categories := categoriesServedBy(staff)
	if len(categories) == 0 {
		return
	}
	waiting, err := e.store.FindComplaints(ctx, ComplaintFilter{
		Statuses:   []string{workflow.ComplaintWaitingForSkilledStaff},
		Categories: categories,
	})
	if err != nil {
		e.logItemFailure(ctx, "backfill_lookup_failed", "could not list waiting complaints", staff.UserID, uuid.Nil, err)
		res.Failed++
		return
	}
	sort.SliceStable(waiting, func(i, j int) bool { return waiting[i].CreatedAt.Before(waiting[j].CreatedAt) })

	for _, complaint := range waiting {
		out, err := e.assign(ctx, complaint)
		if err != nil {
			e.logItemFailure(ctx, "backfill_item_failed", "could not assign waiting complaint", staff.UserID, complaint.ID, err)
			res.Failed++
			continue
		}
		if !out.Assigned {
			return
		}
		res.ComplaintsAssigned++
	}
}

func (e *Engine) redistribute(ctx context.Context, staff models.StaffMember, res *AvailabilityResult) {
	filter := StaffFilter{Role: staff.Role, AvailableOnly: true, ActiveOnly: true}
	if staff.Role == models.RoleTechnician {
		filter.Skill = staff.Skill
	}
	peers, err := e.store.FindStaff(ctx, filter)
	if err != nil {
		e.logItemFailure(ctx, "redistribution_lookup_failed", "could not list alternate staff", staff.UserID, uuid.Nil, err)
		res.Failed++
		return
	}
	alternates := make([]models.StaffMember, 0, len(peers))
	for _, p := range peers {
		if p.UserID == staff.UserID || !p.IsAvailable || !p.IsActive {
			continue
		}
		if sameArea(staff.AssignedArea, p.AssignedArea) {
			alternates = append(alternates, p)
		}
	}
	byID(alternates)

	if staff.Role == models.RoleCleaner {
		e.redistributeTasks(ctx, staff, alternates, res)
		return
	}
	e.redistributeComplaints(ctx, staff, alternates, res)
}

func (e *Engine) redistributeTasks(ctx context.Context, staff models.StaffMember, alternates []models.StaffMember, res *AvailabilityResult) {
	tasks, err := e.store.FindCleaningTasks(ctx, TaskFilter{
		Statuses:  []string{workflow.TaskAssigned, workflow.TaskWaitingForAvailability},
		CleanerID: uuidPtr(staff.UserID),
		From:      startOfDay(e.now()),
	})
	if err != nil {
		e.logItemFailure(ctx, "redistribution_lookup_failed", "could not list owned cleaning tasks", staff.UserID, uuid.Nil, err)
		res.Failed++
		return
	}
	sortTasks(tasks)

	for i, task := range tasks {
		now := e.now()
		var batch Batch
		if len(alternates) == 0 {
			task.CleanerID = nil
			task.AssignedAt = nil
			task.Status = workflow.TaskPendingAssignment
			batch.Tasks = []models.CleaningTask{task}
		} else {
			alt := alternates[i%len(alternates)]
			task.CleanerID = uuidPtr(alt.UserID)
			task.AssignedAt = timePtr(now)
			task.Status = workflow.TaskAssigned
			task.Notes = appendNote(task.Notes, reassignmentNote(staff, alt, now))
			batch.Tasks = []models.CleaningTask{task}
			batch.Notifications = []models.Notification{e.message(alt.UserID, NotificationReassigned,
				"Cleaning task reassigned to you",
				fmt.Sprintf("%s is unavailable; their cleaning task for %s is now yours.", displayName(staff), task.ScheduledDate.Format("2006-01-02")),
				task.ID,
			)}
		}
		if err := e.commit(ctx, batch); err != nil {
			e.logItemFailure(ctx, "redistribution_item_failed", "could not move cleaning task", staff.UserID, task.ID, err)
			res.Failed++
			continue
		}
		if len(alternates) == 0 {
			res.ReturnedToPool++
		} else {
			res.Reassigned++
		}
	}
}

func (e *Engine) redistributeComplaints(ctx context.Context, staff models.StaffMember, alternates []models.StaffMember, res *AvailabilityResult) {
	complaints, err := e.store.FindComplaints(ctx, ComplaintFilter{
		Statuses:   []string{workflow.ComplaintAssigned},
		AssigneeID: uuidPtr(staff.UserID),
	})
	if err != nil {
		e.logItemFailure(ctx, "redistribution_lookup_failed", "could not list owned complaints", staff.UserID, uuid.Nil, err)
		res.Failed++
		return
	}

	var admins []models.User
	if len(alternates) == 0 && len(complaints) > 0 {
		admins = e.usersWithRole(ctx, models.RoleAdmin)
	}

	for i, complaint := range complaints {
		now := e.now()
		var batch Batch
		if len(alternates) == 0 {
			complaint.Status = workflow.ComplaintWaitingForSkilledStaff
			complaint.AssigneeID = nil
			complaint.AssignedAt = nil
			complaint.UpdatedAt = now
			batch.Audit = []models.AuditEntry{e.auditEntry(nil, workflow.EventComplaintReturnedToPool, "complaint", complaint.ID, map[string]any{
				"previous_staff_id": staff.UserID.String(),
				"reason":            unavailableReason,
			})}
			for _, admin := range admins {
				batch.Notifications = append(batch.Notifications, e.message(admin.UserID, NotificationAwaitingStaff,
					"Complaint waiting for staff",
					fmt.Sprintf("%s is unavailable and no peer can take %q.", displayName(staff), complaint.Title),
					complaint.ID,
				))
			}
		} else {
			alt := alternates[i%len(alternates)]
			complaint.AssigneeID = uuidPtr(alt.UserID)
			complaint.AssignedAt = timePtr(now)
			complaint.UpdatedAt = now
			complaint.Notes = appendNote(complaint.Notes, reassignmentNote(staff, alt, now))
			batch.Audit = []models.AuditEntry{e.auditEntry(nil, "complaint.reassigned", "complaint", complaint.ID, map[string]any{
				"previous_staff_id": staff.UserID.String(),
				"staff_id":          alt.UserID.String(),
				"reason":            unavailableReason,
			})}
			batch.Notifications = []models.Notification{e.message(alt.UserID, NotificationReassigned,
				"Complaint reassigned to you",
				fmt.Sprintf("%s is unavailable; %q is now assigned to you.", displayName(staff), complaint.Title),
				complaint.ID,
			)}
		}
		batch.Complaints = []models.Complaint{complaint}
		if err := e.commit(ctx, batch); err != nil {
			e.logItemFailure(ctx, "redistribution_item_failed", "could not move complaint", staff.UserID, complaint.ID, err)
			res.Failed++
			continue
		}
		if len(alternates) == 0 {
			res.ReturnedToPool++
		} else {
			res.Reassigned++
		}
	}
}

func reassignmentNote(from models.StaffMember, to models.StaffMember, at time.Time) string {
	return fmt.Sprintf("%s from %s to %s on %s: %s",
		ReassignmentMarker, displayName(from), displayName(to), at.Format("2006-01-02"), unavailableReason)
}

func (e *Engine) logItemFailure(ctx context.Context, event string, msg string, staffID uuid.UUID, itemID uuid.UUID, err error) {
	attrs := []slog.Attr{
		slog.String("staff_id", staffID.String()),
		slog.String("error_code", ErrorCode(err)),
		slog.String("error", err.Error()),
	}
	if itemID != uuid.Nil {
		attrs = append(attrs, slog.String("item_id", itemID.String()))
	}
	e.log.Error(ctx, event, msg, attrs...)
}

func sortTasks(tasks []models.CleaningTask) {
	sort.SliceStable(tasks, func(i, j int) bool {
		a, b := tasks[i], tasks[j]
		if !a.ScheduledDate.Equal(b.ScheduledDate) {
			return a.ScheduledDate.Before(b.ScheduledDate)
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID.String() < b.ID.String()
	})
}
