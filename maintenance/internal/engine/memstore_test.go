package engine

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"smart-campus-maintenance/maintenance/internal/models"
	"smart-campus-maintenance/shared/logx"
	"smart-campus-maintenance/shared/workflow"
)

var testNow = time.Date(2024, 3, 11, 10, 0, 0, 0, time.UTC)

// memStore is an in-memory Store, Notifier and AuditLogger.
type memStore struct {
	mu            sync.Mutex
	complaints    map[uuid.UUID]models.Complaint
	staff         map[uuid.UUID]models.StaffMember
	users         []models.User
	tasks         map[uuid.UUID]models.CleaningTask
	locations     []models.LocationRef
	operational   map[uuid.UUID]bool
	emergencies   map[uuid.UUID]models.Emergency
	notifications []models.Notification
	audit         []models.AuditEntry

	failCommit func(Batch) error
	failNotify error
	commits    int
}

func newMemStore() *memStore {
	return &memStore{
		complaints:  map[uuid.UUID]models.Complaint{},
		staff:       map[uuid.UUID]models.StaffMember{},
		tasks:       map[uuid.UUID]models.CleaningTask{},
		operational: map[uuid.UUID]bool{},
		emergencies: map[uuid.UUID]models.Emergency{},
	}
}

func newTestEngine(t *testing.T, store *memStore, opts Options) *Engine {
	t.Helper()
	e := New(Deps{
		Store:    store,
		Notifier: store,
		Audit:    store,
		Logger:   logx.New("engine-test", "test", "", "error"),
	}, opts)
	e.now = func() time.Time { return testNow }
	e.otp = func() (string, error) { return "4321", nil }
	return e
}

func (s *memStore) GetComplaint(_ context.Context, id uuid.UUID) (models.Complaint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.complaints[id]
	if !ok {
		return models.Complaint{}, ErrNotFound
	}
	return c, nil
}

func (s *memStore) FindComplaints(_ context.Context, f ComplaintFilter) ([]models.Complaint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Complaint
	for _, c := range s.complaints {
		if len(f.Statuses) > 0 && !containsString(f.Statuses, c.Status) {
			continue
		}
		if containsString(f.ExcludeStatuses, c.Status) {
			continue
		}
		if f.AssigneeID != nil && (c.AssigneeID == nil || *c.AssigneeID != *f.AssigneeID) {
			continue
		}
		if len(f.Categories) > 0 && !containsCategory(f.Categories, c.Category) {
			continue
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *memStore) HasOpenComplaint(_ context.Context, loc models.LocationRef) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.complaints {
		if c.Location.Kind == loc.Kind && c.Location.ID == loc.ID && workflow.IsOpen(c.Status) {
			return true, nil
		}
	}
	return false, nil
}

func (s *memStore) GetStaff(_ context.Context, id uuid.UUID) (models.StaffMember, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.staff[id]
	if !ok {
		return models.StaffMember{}, ErrNotFound
	}
	return st, nil
}

func (s *memStore) FindStaff(_ context.Context, f StaffFilter) ([]models.StaffMember, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.StaffMember
	for _, st := range s.staff {
		if f.Role != "" && st.Role != f.Role {
			continue
		}
		if f.Skill != "" && st.Skill != f.Skill {
			continue
		}
		if f.AvailableOnly && !st.IsAvailable {
			continue
		}
		if f.ActiveOnly && !st.IsActive {
			continue
		}
		out = append(out, st)
	}
	return out, nil
}

func (s *memStore) SetStaffAvailability(_ context.Context, id uuid.UUID, available bool, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.staff[id]
	if !ok {
		return ErrNotFound
	}
	st.IsAvailable = available
	st.LastAvailabilityUpdate = &at
	s.staff[id] = st
	return nil
}

func (s *memStore) ListUsersByRole(_ context.Context, role models.Role) ([]models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.User
	for _, u := range s.users {
		if u.Role == role {
			out = append(out, u)
		}
	}
	return out, nil
}

func (s *memStore) FindCleaningTasks(_ context.Context, f TaskFilter) ([]models.CleaningTask, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.CleaningTask
	for _, t := range s.tasks {
		if len(f.Statuses) > 0 && !containsString(f.Statuses, t.Status) {
			continue
		}
		if f.CleanerID != nil && (t.CleanerID == nil || *t.CleanerID != *f.CleanerID) {
			continue
		}
		if f.Unowned && t.CleanerID != nil {
			continue
		}
		if !sameArea(f.Area, t.Location.Area) {
			continue
		}
		if !f.From.IsZero() && t.ScheduledDate.Before(f.From) {
			continue
		}
		out = append(out, t)
	}
	sortTasks(out)
	return out, nil
}

func (s *memStore) CreateCleaningTask(_ context.Context, task models.CleaningTask) (models.CleaningTask, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.tasks {
		if existing.Location.ID == task.Location.ID && existing.ScheduledDate.Equal(task.ScheduledDate) {
			return existing, false, nil
		}
	}
	s.tasks[task.ID] = task
	return task, true, nil
}

func (s *memStore) ListCleanableLocations(context.Context) ([]models.LocationRef, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.LocationRef(nil), s.locations...), nil
}

func (s *memStore) FindEmergencies(_ context.Context, f EmergencyFilter) ([]models.Emergency, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Emergency
	for _, em := range s.emergencies {
		if em.Status == f.Status && em.EscalationLevel == f.Level && em.ReportedAt.Before(f.ReportedBefore) {
			out = append(out, em)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ReportedAt.Before(out[j].ReportedAt) })
	return out, nil
}

func (s *memStore) Commit(_ context.Context, b Batch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failCommit != nil {
		if err := s.failCommit(b); err != nil {
			return err
		}
	}
	s.commits++
	for _, c := range b.NewComplaints {
		s.complaints[c.ID] = c
	}
	for _, c := range b.Complaints {
		if _, ok := s.complaints[c.ID]; !ok {
			return errors.New("complaint missing")
		}
		s.complaints[c.ID] = c
	}
	for _, t := range b.Tasks {
		s.tasks[t.ID] = t
	}
	for _, em := range b.Emergencies {
		s.emergencies[em.ID] = em
	}
	for _, l := range b.Locations {
		s.operational[l.Location.ID] = l.Operational
	}
	s.notifications = append(s.notifications, b.Notifications...)
	s.audit = append(s.audit, b.Audit...)
	return nil
}

func (s *memStore) Notify(_ context.Context, n models.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failNotify != nil {
		return s.failNotify
	}
	s.notifications = append(s.notifications, n)
	return nil
}

func (s *memStore) Record(_ context.Context, entry models.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.audit = append(s.audit, entry)
	return nil
}

func (s *memStore) notificationsFor(id uuid.UUID) []models.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Notification
	for _, n := range s.notifications {
		if n.RecipientID == id {
			out = append(out, n)
		}
	}
	return out
}

// fixtures

func (s *memStore) addStaff(role models.Role, skill models.Skill, area string, available bool, since time.Time) models.StaffMember {
	st := models.StaffMember{
		UserID:                 uuid.New(),
		Role:                   role,
		Skill:                  skill,
		AssignedArea:           area,
		IsAvailable:            available,
		IsActive:               true,
		LastAvailabilityUpdate: &since,
		CreatedAt:              since.Add(-24 * time.Hour),
	}
	s.staff[st.UserID] = st
	return st
}

func (s *memStore) addUser(role models.Role) models.User {
	u := models.User{UserID: uuid.New(), Role: role, IsActive: true}
	s.users = append(s.users, u)
	return u
}

func (s *memStore) addComplaint(category models.Category, status string, area string, created time.Time) models.Complaint {
	c := models.Complaint{
		ID:        uuid.New(),
		Title:     string(category) + " issue",
		Category:  category,
		Severity:  models.SeverityMedium,
		Status:    status,
		StudentID: uuid.New(),
		Location:  models.LocationRef{Kind: models.LocationClassroom, ID: uuid.New(), Area: area},
		CreatedAt: created,
		UpdatedAt: created,
	}
	s.complaints[c.ID] = c
	return c
}

func (s *memStore) addTask(area string, day time.Time, status string, cleaner *uuid.UUID) models.CleaningTask {
	t := models.CleaningTask{
		ID:            uuid.New(),
		Location:      models.LocationRef{Kind: models.LocationClassroom, ID: uuid.New(), Area: area},
		ScheduledDate: startOfDay(day),
		CleanerID:     cleaner,
		Status:        status,
		CreatedAt:     day,
	}
	s.tasks[t.ID] = t
	return t
}

func containsString(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

func containsCategory(list []models.Category, v models.Category) bool {
	for _, c := range list {
		if c == v {
			return true
		}
	}
	return false
}
