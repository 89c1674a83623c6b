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

type GenerationResult struct {
	Date     string `json:"date"`
	Created  int    `json:"created"`
	Skipped  int    `json:"skipped"`
	Assigned int    `json:"assigned"`
	Waiting  int    `json:"waiting"`
	Pending  int    `json:"pending"`
	Failed   int    `json:"failed"`
}

type areaRoster struct {
	available []models.StaffMember
	owner     *models.StaffMember
	next      int
}

// GenerateDailyCleaningTasks creates one cleaning task per cleanable location
// for the given day. Existing (location, day) tasks are left alone, so the
// call is safe to repeat.
func (e *Engine) GenerateDailyCleaningTasks(ctx context.Context, date time.Time) (GenerationResult, error) {
	ctx, span := e.tracer.Start(ctx, "engine.generate_cleaning_tasks")
	defer span.End()

	day := startOfDay(date)
	res := GenerationResult{Date: day.Format("2006-01-02")}

	locations, err := e.store.ListCleanableLocations(ctx)
	if err != nil {
		return res, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	cleaners, err := e.store.FindStaff(ctx, StaffFilter{Role: models.RoleCleaner, ActiveOnly: true})
	if err != nil {
		return res, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	rosters := buildRosters(cleaners)

	for _, loc := range locations {
		now := e.now()
		task := models.CleaningTask{
			ID:            uuid.New(),
			Location:      loc,
			ScheduledDate: day,
			Status:        workflow.TaskPendingAssignment,
			CreatedAt:     now,
		}
		roster := rosters[normalizeArea(loc.Area)]
		var assignee *models.StaffMember
		switch {
		case roster != nil && len(roster.available) > 0:
			assignee = &roster.available[roster.next%len(roster.available)]
			task.CleanerID = uuidPtr(assignee.UserID)
			task.Status = workflow.TaskAssigned
			task.AssignedAt = timePtr(now)
		case roster != nil && roster.owner != nil:
			task.CleanerID = uuidPtr(roster.owner.UserID)
			task.Status = workflow.TaskWaitingForAvailability
		}

		saved, created, err := e.store.CreateCleaningTask(ctx, task)
		if err != nil {
			res.Failed++
			e.log.Error(ctx, "cleaning_task_failed", "could not create cleaning task",
				slog.String("location_id", loc.ID.String()),
				slog.String("date", res.Date),
				slog.String("error_code", "INTERNAL_ERROR"),
				slog.String("error", err.Error()),
			)
			continue
		}
		if !created {
			res.Skipped++
			continue
		}
		res.Created++
		metricsx.IncCleaningTask(saved.Status)

		switch saved.Status {
		case workflow.TaskAssigned:
			res.Assigned++
			roster.next++
			e.notify(ctx, e.message(assignee.UserID, NotificationCleaning,
				"Cleaning task assigned",
				fmt.Sprintf("You are scheduled to clean a %s in %s on %s.", loc.Kind, loc.Area, res.Date),
				saved.ID,
			))
		case workflow.TaskWaitingForAvailability:
			res.Waiting++
		default:
			res.Pending++
		}
	}

	e.log.Info(ctx, "cleaning_tasks_generated", "daily cleaning tasks generated",
		slog.String("date", res.Date),
		slog.Int("created", res.Created),
		slog.Int("skipped", res.Skipped),
		slog.Int("assigned", res.Assigned),
		slog.Int("waiting", res.Waiting),
		slog.Int("pending", res.Pending),
		slog.Int("failed", res.Failed),
	)
	return res, nil
}

// buildRosters groups active cleaners by area. Available cleaners rotate in
// order of how long they have been available; the lowest id owns the area
// when nobody is available.
func buildRosters(cleaners []models.StaffMember) map[string]*areaRoster {
	rosters := make(map[string]*areaRoster)
	byID(cleaners)
	for i := range cleaners {
		c := cleaners[i]
		if !c.IsActive {
			continue
		}
		key := normalizeArea(c.AssignedArea)
		r := rosters[key]
		if r == nil {
			r = &areaRoster{}
			rosters[key] = r
		}
		if r.owner == nil {
			owner := c
			r.owner = &owner
		}
		if c.IsAvailable {
			r.available = append(r.available, c)
		}
	}
	for _, r := range rosters {
		byAvailability(r.available)
	}
	return rosters
}
