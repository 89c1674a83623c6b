package repos

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"smart-campus-maintenance/maintenance/internal/engine"
	"smart-campus-maintenance/maintenance/internal/models"
)

const staffColumns = `u.user_id, COALESCE(u.name, ''), u.role, COALESCE(s.skill, ''), COALESCE(s.assigned_area, ''),
	s.is_available, u.is_active, s.last_availability_update, u.created_at`

func scanStaff(row pgx.Row) (models.StaffMember, error) {
	var m models.StaffMember
	err := row.Scan(&m.UserID, &m.Name, &m.Role, &m.Skill, &m.AssignedArea,
		&m.IsAvailable, &m.IsActive, &m.LastAvailabilityUpdate, &m.CreatedAt)
	return m, err
}

func (s *Store) GetStaff(ctx context.Context, id uuid.UUID) (models.StaffMember, error) {
	m, err := scanStaff(s.pool.QueryRow(ctx, `
		SELECT `+staffColumns+`
		FROM staff_profiles s
		JOIN users u ON u.user_id = s.user_id
		WHERE s.user_id = $1
	`, id))
	return m, notFound(err)
}

func (s *Store) FindStaff(ctx context.Context, f engine.StaffFilter) ([]models.StaffMember, error) {
	var a args
	if f.Role != "" {
		a.add("u.role = ?", string(f.Role))
	}
	if f.Skill != "" {
		a.add("s.skill = ?", string(f.Skill))
	}
	if f.AvailableOnly {
		a.raw("s.is_available")
	}
	if f.ActiveOnly {
		a.raw("u.is_active")
	}

	rows, err := s.pool.Query(ctx, fmt.Sprintf(`
		SELECT %s
		FROM staff_profiles s
		JOIN users u ON u.user_id = s.user_id
		%s
		ORDER BY u.user_id
	`, staffColumns, a.clause()), a.values...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.StaffMember
	for rows.Next() {
		m, err := scanStaff(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *Store) SetStaffAvailability(ctx context.Context, id uuid.UUID, available bool, at time.Time) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE staff_profiles
		SET is_available = $2, last_availability_update = $3
		WHERE user_id = $1
	`, id, available, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return engine.ErrNotFound
	}
	return nil
}

func (s *Store) ListUsersByRole(ctx context.Context, role models.Role) ([]models.User, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT user_id, COALESCE(name, ''), role, is_active
		FROM users
		WHERE role = $1
		ORDER BY user_id
	`, string(role))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.User
	for rows.Next() {
		var u models.User
		if err := rows.Scan(&u.UserID, &u.Name, &u.Role, &u.IsActive); err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}
