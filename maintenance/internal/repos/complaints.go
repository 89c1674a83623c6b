package repos

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"smart-campus-maintenance/maintenance/internal/engine"
	"smart-campus-maintenance/maintenance/internal/models"
	"smart-campus-maintenance/shared/workflow"
)

const complaintColumns = `c.complaint_id, c.title, COALESCE(c.description, ''), c.category, c.severity, c.status,
	c.student_id, c.assignee_id, c.location_kind, c.location_id, ` + locationAreaExpr + `, ` + locationAssetExpr + `,
	c.hostel, COALESCE(c.notes, ''), COALESCE(c.evidence, '{}'), c.otp, c.otp_verified,
	c.created_at, c.assigned_at, c.resolved_at, c.updated_at`

func scanComplaint(row pgx.Row) (models.Complaint, error) {
	var c models.Complaint
	err := row.Scan(
		&c.ID, &c.Title, &c.Description, &c.Category, &c.Severity, &c.Status,
		&c.StudentID, &c.AssigneeID, &c.Location.Kind, &c.Location.ID, &c.Location.Area, &c.Location.AssetType,
		&c.Hostel, &c.Notes, &c.Evidence, &c.OTP, &c.OTPVerified,
		&c.CreatedAt, &c.AssignedAt, &c.ResolvedAt, &c.UpdatedAt,
	)
	return c, err
}

func (s *Store) GetComplaint(ctx context.Context, id uuid.UUID) (models.Complaint, error) {
	c, err := scanComplaint(s.pool.QueryRow(ctx, `
		SELECT `+complaintColumns+`
		FROM complaints c`+locationJoin("c")+`
		WHERE c.complaint_id = $1
	`, id))
	return c, notFound(err)
}

func (s *Store) FindComplaints(ctx context.Context, f engine.ComplaintFilter) ([]models.Complaint, error) {
	var a args
	if len(f.Statuses) > 0 {
		a.add("c.status = ANY(?)", f.Statuses)
	}
	if len(f.ExcludeStatuses) > 0 {
		a.add("NOT (c.status = ANY(?))", f.ExcludeStatuses)
	}
	if f.AssigneeID != nil {
		a.add("c.assignee_id = ?", *f.AssigneeID)
	}
	if len(f.Categories) > 0 {
		categories := make([]string, 0, len(f.Categories))
		for _, c := range f.Categories {
			categories = append(categories, string(c))
		}
		a.add("c.category = ANY(?)", categories)
	}

	rows, err := s.pool.Query(ctx, fmt.Sprintf(`
		SELECT %s
		FROM complaints c%s
		%s
		ORDER BY c.created_at ASC, c.complaint_id ASC
	`, complaintColumns, locationJoin("c"), a.clause()), a.values...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Complaint
	for rows.Next() {
		c, err := scanComplaint(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *Store) HasOpenComplaint(ctx context.Context, loc models.LocationRef) (bool, error) {
	var open []string
	for _, status := range workflow.AllComplaintStatuses() {
		if workflow.IsOpen(status) {
			open = append(open, status)
		}
	}
	var exists bool
	err := s.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM complaints
			WHERE location_kind = $1 AND location_id = $2 AND status = ANY($3)
		)
	`, string(loc.Kind), loc.ID, open).Scan(&exists)
	return exists, err
}

func insertComplaint(ctx context.Context, db DBTX, c models.Complaint) error {
	_, err := db.Exec(ctx, `
		INSERT INTO complaints (
			complaint_id, title, description, category, severity, status, student_id, assignee_id,
			location_kind, location_id, hostel, notes, evidence, otp, otp_verified,
			created_at, assigned_at, resolved_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8,
			$9, $10, $11, $12, $13, $14, $15,
			$16, $17, $18, $19
		)
	`, c.ID, c.Title, nullIfEmpty(c.Description), string(c.Category), string(c.Severity), c.Status, c.StudentID, c.AssigneeID,
		string(c.Location.Kind), c.Location.ID, c.Hostel, nullIfEmpty(c.Notes), c.Evidence, c.OTP, c.OTPVerified,
		c.CreatedAt, c.AssignedAt, c.ResolvedAt, c.UpdatedAt)
	return err
}

func updateComplaint(ctx context.Context, db DBTX, c models.Complaint) error {
	tag, err := db.Exec(ctx, `
		UPDATE complaints
		SET severity = $2, status = $3, assignee_id = $4, notes = $5, evidence = $6,
			otp = $7, otp_verified = $8, assigned_at = $9, resolved_at = $10, updated_at = $11
		WHERE complaint_id = $1
	`, c.ID, string(c.Severity), c.Status, c.AssigneeID, nullIfEmpty(c.Notes), c.Evidence,
		c.OTP, c.OTPVerified, c.AssignedAt, c.ResolvedAt, c.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("complaint %s: %w", c.ID, engine.ErrNotFound)
	}
	return nil
}
