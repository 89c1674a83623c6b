package models

import (
	"time"

	"github.com/google/uuid"
)

type Category string

const (
	CategoryElectrical  Category = "Electrical"
	CategoryPlumbing    Category = "Plumbing"
	CategoryFurniture   Category = "Furniture"
	CategoryITNetwork   Category = "IT/Network"
	CategoryWifi        Category = "Wifi"
	CategoryCleanliness Category = "Cleanliness"
	CategoryOther       Category = "Other"
)

func AllCategories() []Category {
	return []Category{
		CategoryElectrical,
		CategoryPlumbing,
		CategoryFurniture,
		CategoryITNetwork,
		CategoryWifi,
		CategoryCleanliness,
		CategoryOther,
	}
}

type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

type Role string

const (
	RoleTechnician Role = "technician"
	RoleCleaner    Role = "cleaner"
	RoleAdmin      Role = "admin"
	RoleWarden     Role = "warden"
	RoleStudent    Role = "student"
)

type Skill string

const (
	SkillElectrician Skill = "Electrician"
	SkillPlumber     Skill = "Plumber"
	SkillMaintenance Skill = "Maintenance Technician"
	SkillIT          Skill = "IT Technician"
	SkillCleaner     Skill = "Cleaner"
)

type LocationKind string

const (
	LocationAsset     LocationKind = "asset"
	LocationRoom      LocationKind = "room"
	LocationClassroom LocationKind = "classroom"
)

// LocationRef points at the asset, room or classroom a work item concerns.
// Area is the building (classrooms, assets) or block (rooms) and is resolved
// by the store when the owning row is read.
type LocationRef struct {
	Kind      LocationKind `json:"kind"`
	ID        uuid.UUID    `json:"id"`
	Area      string       `json:"area,omitempty"`
	AssetType string       `json:"asset_type,omitempty"` // assets only
}

type Complaint struct {
	ID          uuid.UUID
	Title       string
	Description string
	Category    Category
	Severity    Severity
	Status      string
	StudentID   uuid.UUID
	AssigneeID  *uuid.UUID // technician or cleaner
	Location    LocationRef
	Hostel      bool
	Notes       string
	Evidence    []string
	OTP         *string
	OTPVerified bool
	CreatedAt   time.Time
	AssignedAt  *time.Time
	ResolvedAt  *time.Time
	UpdatedAt   time.Time
}

type StaffMember struct {
	UserID                 uuid.UUID
	Name                   string
	Role                   Role
	Skill                  Skill
	AssignedArea           string
	IsAvailable            bool
	IsActive               bool
	LastAvailabilityUpdate *time.Time
	CreatedAt              time.Time
}

// AvailableSince is the ordering key used to prefer the staff member who
// has been available the longest.
func (s StaffMember) AvailableSince() time.Time {
	if s.LastAvailabilityUpdate != nil {
		return *s.LastAvailabilityUpdate
	}
	return s.CreatedAt
}

// User is a non-staff recipient of notifications (admins, wardens).
type User struct {
	UserID   uuid.UUID
	Name     string
	Role     Role
	IsActive bool
}

type CleaningTask struct {
	ID            uuid.UUID
	Location      LocationRef
	ScheduledDate time.Time // truncated to the day
	CleanerID     *uuid.UUID
	Status        string
	Notes         string
	AssignedAt    *time.Time
	CompletedAt   *time.Time
	CreatedAt     time.Time
}

type Emergency struct {
	ID              uuid.UUID  `json:"id"`
	Type            string     `json:"type"`
	Location        string     `json:"location"`
	Status          string     `json:"status"`
	EscalationLevel int        `json:"escalation_level"`
	ReportedBy      *uuid.UUID `json:"reported_by,omitempty"`
	ReportedAt      time.Time  `json:"reported_at"`
	RespondedAt     *time.Time `json:"responded_at,omitempty"`
	ResolvedAt      *time.Time `json:"resolved_at,omitempty"`
}

type Notification struct {
	ID          uuid.UUID  `json:"id"`
	RecipientID uuid.UUID  `json:"recipient_id"`
	Type        string     `json:"type"`
	Title       string     `json:"title"`
	Message     string     `json:"message"`
	RelatedID   *uuid.UUID `json:"related_id,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

type AuditEntry struct {
	ID           uuid.UUID
	ActorID      *uuid.UUID // nil when no admin exists to act as system actor
	Action       string
	ResourceType string
	ResourceID   *uuid.UUID
	Details      map[string]any
	OccurredAt   time.Time
}

type OutboxEvent struct {
	EventID       uuid.UUID
	AggregateType string
	AggregateID   uuid.UUID
	Topic         string
	Payload       []byte
	Status        string
	Attempts      int
	NextRetryAt   *time.Time
	LockedAt      *time.Time
	LockedBy      *string
	LastError     *string
	CreatedAt     time.Time
	UpdatedAt     time.Time
	PublishedAt   *time.Time
}
