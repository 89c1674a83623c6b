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

func TestAssignPrefersLocalityMatch(t *testing.T) {
	store := newMemStore()
	// Idle longest, but in another block.
	remote := store.addStaff(models.RoleTechnician, models.SkillElectrician, "Block B", true, testNow.Add(-3*time.Hour))
	local := store.addStaff(models.RoleTechnician, models.SkillElectrician, "Block A", true, testNow.Add(-1*time.Hour))
	complaint := store.addComplaint(models.CategoryElectrical, workflow.ComplaintApproved, "block a", testNow.Add(-time.Hour))
	e := newTestEngine(t, store, Options{})

	res, err := e.AssignComplaint(context.Background(), complaint.ID)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.True(t, res.Assigned)
	assert.True(t, res.LocalityMatch)
	require.NotNil(t, res.StaffID)
	assert.Equal(t, local.UserID, *res.StaffID)

	saved := store.complaints[complaint.ID]
	assert.Equal(t, workflow.ComplaintAssigned, saved.Status)
	require.NotNil(t, saved.AssigneeID)
	assert.Equal(t, local.UserID, *saved.AssigneeID)
	require.NotNil(t, saved.AssignedAt)
	assert.Equal(t, testNow, *saved.AssignedAt)

	assert.Len(t, store.notificationsFor(local.UserID), 1)
	assert.Empty(t, store.notificationsFor(remote.UserID))
	require.Len(t, store.audit, 1)
	assert.Equal(t, "complaint.auto_assigned", store.audit[0].Action)
	assert.Equal(t, 1, store.commits, "assignment, notification and audit must commit together")
}

func TestAssignFallsBackToLongestAvailable(t *testing.T) {
	store := newMemStore()
	newest := store.addStaff(models.RoleTechnician, models.SkillPlumber, "Block C", true, testNow.Add(-10*time.Minute))
	oldest := store.addStaff(models.RoleTechnician, models.SkillPlumber, "Block D", true, testNow.Add(-5*time.Hour))
	store.addStaff(models.RoleTechnician, models.SkillPlumber, "Block A", false, testNow.Add(-9*time.Hour))
	store.addStaff(models.RoleTechnician, models.SkillElectrician, "Block A", true, testNow.Add(-9*time.Hour))
	complaint := store.addComplaint(models.CategoryPlumbing, workflow.ComplaintApproved, "Block A", testNow)
	e := newTestEngine(t, store, Options{})

	res, err := e.AssignComplaint(context.Background(), complaint.ID)
	require.NoError(t, err)
	assert.True(t, res.Assigned)
	assert.False(t, res.LocalityMatch)
	assert.Equal(t, oldest.UserID, *res.StaffID)
	assert.Empty(t, store.notificationsFor(newest.UserID))
}

func TestAssignTieBreaksByStaffID(t *testing.T) {
	store := newMemStore()
	since := testNow.Add(-time.Hour)
	a := store.addStaff(models.RoleTechnician, models.SkillIT, "", true, since)
	b := store.addStaff(models.RoleTechnician, models.SkillIT, "", true, since)
	want := a.UserID
	if b.UserID.String() < a.UserID.String() {
		want = b.UserID
	}
	complaint := store.addComplaint(models.CategoryWifi, workflow.ComplaintApproved, "", testNow)
	e := newTestEngine(t, store, Options{})

	res, err := e.AssignComplaint(context.Background(), complaint.ID)
	require.NoError(t, err)
	assert.Equal(t, want, *res.StaffID)
}

func TestAssignWithoutCandidateParksComplaint(t *testing.T) {
	store := newMemStore()
	admin1 := store.addUser(models.RoleAdmin)
	admin2 := store.addUser(models.RoleAdmin)
	store.addUser(models.RoleWarden)
	store.addStaff(models.RoleTechnician, models.SkillElectrician, "Block A", false, testNow)
	complaint := store.addComplaint(models.CategoryElectrical, workflow.ComplaintApproved, "Block A", testNow)
	e := newTestEngine(t, store, Options{})

	res, err := e.AssignComplaint(context.Background(), complaint.ID)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.False(t, res.Assigned)
	assert.Nil(t, res.StaffID)

	saved := store.complaints[complaint.ID]
	assert.Equal(t, workflow.ComplaintWaitingForSkilledStaff, saved.Status)
	assert.Nil(t, saved.AssigneeID)
	assert.Len(t, store.notificationsFor(admin1.UserID), 1)
	assert.Len(t, store.notificationsFor(admin2.UserID), 1)
	assert.Len(t, store.notifications, 2)

	// A second attempt while still waiting does not notify again.
	res, err = e.AssignComplaint(context.Background(), complaint.ID)
	require.NoError(t, err)
	assert.False(t, res.Assigned)
	assert.Len(t, store.notifications, 2)
}

func TestAssignRejectsWrongState(t *testing.T) {
	store := newMemStore()
	store.addStaff(models.RoleTechnician, models.SkillElectrician, "", true, testNow)
	complaint := store.addComplaint(models.CategoryElectrical, workflow.ComplaintReported, "", testNow)
	e := newTestEngine(t, store, Options{})

	res, err := e.AssignComplaint(context.Background(), complaint.ID)
	require.ErrorIs(t, err, ErrInvalidState)
	assert.False(t, res.Success)
	assert.Equal(t, workflow.ComplaintReported, store.complaints[complaint.ID].Status)
	assert.Zero(t, store.commits)
}

func TestAssignUnknownComplaint(t *testing.T) {
	e := newTestEngine(t, newMemStore(), Options{})
	res, err := e.AssignComplaint(context.Background(), uuid.New())
	require.ErrorIs(t, err, ErrNotFound)
	assert.False(t, res.Success)
	assert.Equal(t, "NOT_FOUND", ErrorCode(err))
}

func TestAssignPersistenceFailureLeavesComplaintUntouched(t *testing.T) {
	store := newMemStore()
	staff := store.addStaff(models.RoleCleaner, models.SkillCleaner, "Hostel 1", true, testNow)
	complaint := store.addComplaint(models.CategoryCleanliness, workflow.ComplaintApproved, "Hostel 1", testNow)
	store.failCommit = func(Batch) error { return errors.New("connection reset") }
	e := newTestEngine(t, store, Options{})

	res, err := e.AssignComplaint(context.Background(), complaint.ID)
	require.ErrorIs(t, err, ErrPersistence)
	assert.False(t, res.Success)
	assert.Equal(t, workflow.ComplaintApproved, store.complaints[complaint.ID].Status)
	assert.Empty(t, store.notificationsFor(staff.UserID))
	assert.Empty(t, store.audit)
}
