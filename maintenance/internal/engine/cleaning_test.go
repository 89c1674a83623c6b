package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"smart-campus-maintenance/maintenance/internal/models"
	"smart-campus-maintenance/shared/workflow"
)

func (s *memStore) addLocation(area string) models.LocationRef {
	loc := models.LocationRef{Kind: models.LocationClassroom, ID: uuid.New(), Area: area}
	s.locations = append(s.locations, loc)
	return loc
}

func (s *memStore) taskAt(loc models.LocationRef) models.CleaningTask {
	for _, t := range s.tasks {
		if t.Location.ID == loc.ID {
			return t
		}
	}
	return models.CleaningTask{}
}

func TestGenerateRotatesAreaCleaners(t *testing.T) {
	store := newMemStore()
	first := store.addStaff(models.RoleCleaner, models.SkillCleaner, "Block A", true, testNow.Add(-3*time.Hour))
	second := store.addStaff(models.RoleCleaner, models.SkillCleaner, "Block A", true, testNow.Add(-1*time.Hour))
	locs := []models.LocationRef{store.addLocation("Block A"), store.addLocation("block a"), store.addLocation("Block A")}

	e := newTestEngine(t, store, Options{})
	res, err := e.GenerateDailyCleaningTasks(context.Background(), testNow)
	require.NoError(t, err)
	assert.Equal(t, "2024-03-11", res.Date)
	assert.Equal(t, 3, res.Created)
	assert.Equal(t, 3, res.Assigned)

	want := []uuid.UUID{first.UserID, second.UserID, first.UserID}
	for i, loc := range locs {
		task := store.taskAt(loc)
		assert.Equal(t, workflow.TaskAssigned, task.Status)
		require.NotNil(t, task.CleanerID)
		assert.Equal(t, want[i], *task.CleanerID, "location %d", i)
		assert.Equal(t, startOfDay(testNow), task.ScheduledDate)
	}
	assert.Len(t, store.notificationsFor(first.UserID), 2)
	assert.Len(t, store.notificationsFor(second.UserID), 1)
}

func TestGenerateWaitingAndPending(t *testing.T) {
	store := newMemStore()
	a := store.addStaff(models.RoleCleaner, models.SkillCleaner, "Block B", false, testNow)
	b := store.addStaff(models.RoleCleaner, models.SkillCleaner, "Block B", false, testNow)
	owner := a.UserID
	if b.UserID.String() < owner.String() {
		owner = b.UserID
	}
	staffed := store.addLocation("Block B")
	orphan := store.addLocation("Library")

	e := newTestEngine(t, store, Options{})
	res, err := e.GenerateDailyCleaningTasks(context.Background(), testNow)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Waiting)
	assert.Equal(t, 1, res.Pending)

	waiting := store.taskAt(staffed)
	assert.Equal(t, workflow.TaskWaitingForAvailability, waiting.Status)
	require.NotNil(t, waiting.CleanerID)
	assert.Equal(t, owner, *waiting.CleanerID)
	assert.Nil(t, waiting.AssignedAt)

	pending := store.taskAt(orphan)
	assert.Equal(t, workflow.TaskPendingAssignment, pending.Status)
	assert.Nil(t, pending.CleanerID)
	assert.Empty(t, store.notifications)
}

func TestGenerateIsIdempotentPerDay(t *testing.T) {
	store := newMemStore()
	store.addStaff(models.RoleCleaner, models.SkillCleaner, "Block A", true, testNow)
	store.addLocation("Block A")
	store.addLocation("Block A")
	e := newTestEngine(t, store, Options{})

	_, err := e.GenerateDailyCleaningTasks(context.Background(), testNow)
	require.NoError(t, err)
	again, err := e.GenerateDailyCleaningTasks(context.Background(), testNow.Add(5*time.Hour))
	require.NoError(t, err)
	assert.Zero(t, again.Created)
	assert.Equal(t, 2, again.Skipped)
	assert.Len(t, store.tasks, 2)

	next, err := e.GenerateDailyCleaningTasks(context.Background(), testNow.Add(24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 2, next.Created)
	assert.Len(t, store.tasks, 4)
}

type failingTaskStore struct {
	*memStore
	failFor uuid.UUID
}

func (s *failingTaskStore) CreateCleaningTask(ctx context.Context, task models.CleaningTask) (models.CleaningTask, bool, error) {
	if task.Location.ID == s.failFor {
		return models.CleaningTask{}, false, errors.New("unique violation on wrong index")
	}
	return s.memStore.CreateCleaningTask(ctx, task)
}

func TestGenerateCountsFailuresAndContinues(t *testing.T) {
	mem := newMemStore()
	bad := mem.addLocation("")
	good := mem.addLocation("")
	store := &failingTaskStore{memStore: mem, failFor: bad.ID}

	e := newTestEngine(t, mem, Options{})
	e.store = store
	res, err := e.GenerateDailyCleaningTasks(context.Background(), testNow)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, 1, res.Created)
	assert.Equal(t, workflow.TaskPendingAssignment, mem.taskAt(good).Status)
}
