package engine

import (
	"context"
	"time"

	"github.com/google/uuid"

	"smart-campus-maintenance/maintenance/internal/models"
)

type ComplaintFilter struct {
	Statuses        []string
	ExcludeStatuses []string
	AssigneeID      *uuid.UUID
	Categories      []models.Category
}

type StaffFilter struct {
	Role          models.Role
	Skill         models.Skill // empty matches any skill
	AvailableOnly bool
	ActiveOnly    bool
}

type TaskFilter struct {
	Statuses  []string
	CleanerID *uuid.UUID
	Unowned   bool
	Area      string    // empty matches any area
	From      time.Time // scheduled on or after
}

type EmergencyFilter struct {
	Status         string
	Level          int
	ReportedBefore time.Time
}

// LocationState flips the operational flag of an asset or room.
type LocationState struct {
	Location    models.LocationRef
	Operational bool
}

// Batch is a unit of work: every row in it is written or none is.
type Batch struct {
	NewComplaints []models.Complaint
	Complaints    []models.Complaint
	Tasks         []models.CleaningTask
	Emergencies   []models.Emergency
	Locations     []LocationState
	Notifications []models.Notification
	Audit         []models.AuditEntry
}

func (b Batch) Empty() bool {
	return len(b.NewComplaints) == 0 && len(b.Complaints) == 0 && len(b.Tasks) == 0 &&
		len(b.Emergencies) == 0 && len(b.Locations) == 0 && len(b.Notifications) == 0 && len(b.Audit) == 0
}

// Store is the persistence the engine runs against. Lookups by id return
// ErrNotFound when the row does not exist. List methods return complaints
// oldest created first and cleaning tasks earliest scheduled first.
type Store interface {
	GetComplaint(ctx context.Context, id uuid.UUID) (models.Complaint, error)
	FindComplaints(ctx context.Context, filter ComplaintFilter) ([]models.Complaint, error)
	HasOpenComplaint(ctx context.Context, location models.LocationRef) (bool, error)

	GetStaff(ctx context.Context, id uuid.UUID) (models.StaffMember, error)
	FindStaff(ctx context.Context, filter StaffFilter) ([]models.StaffMember, error)
	SetStaffAvailability(ctx context.Context, id uuid.UUID, available bool, at time.Time) error
	ListUsersByRole(ctx context.Context, role models.Role) ([]models.User, error)

	FindCleaningTasks(ctx context.Context, filter TaskFilter) ([]models.CleaningTask, error)
	CreateCleaningTask(ctx context.Context, task models.CleaningTask) (models.CleaningTask, bool, error)
	ListCleanableLocations(ctx context.Context) ([]models.LocationRef, error)

	FindEmergencies(ctx context.Context, filter EmergencyFilter) ([]models.Emergency, error)

	Commit(ctx context.Context, batch Batch) error
}

// Notifier delivers a single notification. Delivery is fire-and-forget:
// the engine logs a failure and carries on.
type Notifier interface {
	Notify(ctx context.Context, n models.Notification) error
}

type AuditLogger interface {
	Record(ctx context.Context, entry models.AuditEntry) error
}

// Locker guards work that must not run concurrently for the same key.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (release func(), ok bool, err error)
}

// BreachTracker suppresses repeated SLA notifications for a complaint.
// Claim returns true when the caller should notify now.
type BreachTracker interface {
	Claim(ctx context.Context, complaintID uuid.UUID, ttl time.Duration) (bool, error)
}
