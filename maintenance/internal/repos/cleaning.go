package repos

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"smart-campus-maintenance/maintenance/internal/engine"
	"smart-campus-maintenance/maintenance/internal/models"
)

const taskColumns = `t.task_id, t.location_kind, t.location_id, ` + locationAreaExpr + `,
	t.scheduled_date, t.cleaner_id, t.status, COALESCE(t.notes, ''), t.assigned_at, t.completed_at, t.created_at`

func scanTask(row pgx.Row) (models.CleaningTask, error) {
	var t models.CleaningTask
	err := row.Scan(&t.ID, &t.Location.Kind, &t.Location.ID, &t.Location.Area,
		&t.ScheduledDate, &t.CleanerID, &t.Status, &t.Notes, &t.AssignedAt, &t.CompletedAt, &t.CreatedAt)
	return t, err
}

func (s *Store) FindCleaningTasks(ctx context.Context, f engine.TaskFilter) ([]models.CleaningTask, error) {
	var a args
	if len(f.Statuses) > 0 {
		a.add("t.status = ANY(?)", f.Statuses)
	}
	if f.CleanerID != nil {
		a.add("t.cleaner_id = ?", *f.CleanerID)
	}
	if f.Unowned {
		a.raw("t.cleaner_id IS NULL")
	}
	if area := strings.ToLower(strings.TrimSpace(f.Area)); area != "" {
		a.add("lower(trim("+locationAreaExpr+")) = ?", area)
	}
	if !f.From.IsZero() {
		a.add("t.scheduled_date >= ?::date", f.From)
	}

	rows, err := s.pool.Query(ctx, fmt.Sprintf(`
		SELECT %s
		FROM cleaning_tasks t%s
		%s
		ORDER BY t.scheduled_date ASC, t.created_at ASC, t.task_id ASC
	`, taskColumns, locationJoin("t"), a.clause()), a.values...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.CleaningTask
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// CreateCleaningTask inserts the task unless one already exists for the same
// location and day, in which case the existing row is returned.
func (s *Store) CreateCleaningTask(ctx context.Context, task models.CleaningTask) (models.CleaningTask, bool, error) {
	err := s.pool.QueryRow(ctx, `
		INSERT INTO cleaning_tasks (
			task_id, location_kind, location_id, scheduled_date, cleaner_id, status, notes, assigned_at, completed_at, created_at
		) VALUES ($1, $2, $3, $4::date, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (location_kind, location_id, scheduled_date) DO NOTHING
		RETURNING task_id
	`, task.ID, string(task.Location.Kind), task.Location.ID, task.ScheduledDate, task.CleanerID, task.Status,
		nullIfEmpty(task.Notes), task.AssignedAt, task.CompletedAt, task.CreatedAt).Scan(&task.ID)
	if err == nil {
		return task, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return models.CleaningTask{}, false, err
	}

	existing, err := scanTask(s.pool.QueryRow(ctx, `
		SELECT `+taskColumns+`
		FROM cleaning_tasks t`+locationJoin("t")+`
		WHERE t.location_kind = $1 AND t.location_id = $2 AND t.scheduled_date = $3::date
	`, string(task.Location.Kind), task.Location.ID, task.ScheduledDate))
	if err != nil {
		return models.CleaningTask{}, false, err
	}
	return existing, false, nil
}

func (s *Store) ListCleanableLocations(ctx context.Context) ([]models.LocationRef, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT 'classroom', classroom_id, COALESCE(building, '') FROM classrooms
		UNION ALL
		SELECT 'room', room_id, COALESCE(block, '') FROM rooms
		ORDER BY 1, 3, 2
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.LocationRef
	for rows.Next() {
		var loc models.LocationRef
		if err := rows.Scan(&loc.Kind, &loc.ID, &loc.Area); err != nil {
			return nil, err
		}
		out = append(out, loc)
	}
	return out, rows.Err()
}

func updateTask(ctx context.Context, db DBTX, t models.CleaningTask) error {
	tag, err := db.Exec(ctx, `
		UPDATE cleaning_tasks
		SET cleaner_id = $2, status = $3, notes = $4, assigned_at = $5, completed_at = $6
		WHERE task_id = $1
	`, t.ID, t.CleanerID, t.Status, nullIfEmpty(t.Notes), t.AssignedAt, t.CompletedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("cleaning task %s: %w", t.ID, engine.ErrNotFound)
	}
	return nil
}
