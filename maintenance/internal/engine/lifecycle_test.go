package engine

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"smart-campus-maintenance/maintenance/internal/models"
	"smart-campus-maintenance/shared/workflow"
)

func TestReportComplaintClassifiesAndBlocksDuplicates(t *testing.T) {
	store := newMemStore()
	e := newTestEngine(t, store, Options{})
	loc := models.LocationRef{Kind: models.LocationAsset, ID: uuid.New(), Area: "Block A", AssetType: "projector"}

	c, err := e.ReportComplaint(context.Background(), NewComplaint{
		Title:     "Projector flicker",
		Category:  models.CategoryElectrical,
		StudentID: uuid.New(),
		Location:  loc,
	})
	require.NoError(t, err)
	assert.Equal(t, workflow.ComplaintReported, c.Status)
	assert.Equal(t, models.SeverityMedium, c.Severity)
	assert.False(t, store.operational[loc.ID], "location goes under maintenance")

	_, err = e.ReportComplaint(context.Background(), NewComplaint{
		Title:    "Projector still broken",
		Category: models.CategoryElectrical,
		Location: loc,
	})
	require.ErrorIs(t, err, ErrDuplicateComplaint)

	_, err = e.ReportComplaint(context.Background(), NewComplaint{Title: "x", Category: "Gardening", Location: loc})
	require.ErrorIs(t, err, ErrValidation)
}

func TestResolvedComplaintStillBlocksLocation(t *testing.T) {
	store := newMemStore()
	e := newTestEngine(t, store, Options{})
	prior := store.addComplaint(models.CategoryElectrical, workflow.ComplaintResolved, "Block A", testNow)
	otp := "7788"
	prior.OTP = &otp
	store.complaints[prior.ID] = prior
	store.operational[prior.Location.ID] = false

	report := NewComplaint{
		Title:     "Lights out again",
		Category:  models.CategoryElectrical,
		StudentID: uuid.New(),
		Location:  prior.Location,
	}
	_, err := e.ReportComplaint(context.Background(), report)
	require.ErrorIs(t, err, ErrDuplicateComplaint)
	assert.Len(t, store.complaints, 1)

	_, err = e.VerifyOTP(context.Background(), prior.ID, prior.StudentID, otp)
	require.NoError(t, err)
	assert.True(t, store.operational[prior.Location.ID])

	c, err := e.ReportComplaint(context.Background(), report)
	require.NoError(t, err)
	assert.Equal(t, workflow.ComplaintReported, c.Status)
	assert.False(t, store.operational[prior.Location.ID])
}

func TestHostelComplaintWaitsForWarden(t *testing.T) {
	store := newMemStore()
	warden := store.addUser(models.RoleWarden)
	e := newTestEngine(t, store, Options{})

	c, err := e.ReportComplaint(context.Background(), NewComplaint{
		Title:    "Dirty corridor",
		Category: models.CategoryCleanliness,
		Location: models.LocationRef{Kind: models.LocationRoom, ID: uuid.New(), Area: "Hostel 2"},
		Hostel:   true,
	})
	require.NoError(t, err)
	assert.Equal(t, workflow.ComplaintWaitingWardenApproval, c.Status)
	assert.Equal(t, models.SeverityLow, c.Severity)
	assert.Len(t, store.notificationsFor(warden.UserID), 1)
}

func TestReviewApprovalRunsAssignment(t *testing.T) {
	store := newMemStore()
	admin := store.addUser(models.RoleAdmin)
	tech := store.addStaff(models.RoleTechnician, models.SkillIT, "Block A", true, testNow)
	complaint := store.addComplaint(models.CategoryITNetwork, workflow.ComplaintReported, "Block A", testNow)
	e := newTestEngine(t, store, Options{})

	res, err := e.ReviewComplaint(context.Background(), complaint.ID, admin.UserID, true, "")
	require.NoError(t, err)
	assert.True(t, res.Assigned)
	assert.Equal(t, tech.UserID, *res.StaffID)
	assert.Equal(t, workflow.ComplaintAssigned, store.complaints[complaint.ID].Status)

	_, err = e.ReviewComplaint(context.Background(), complaint.ID, admin.UserID, false, "duplicate")
	require.ErrorIs(t, err, ErrInvalidTransition)
}

func TestReviewRejectionIsTerminal(t *testing.T) {
	store := newMemStore()
	admin := store.addUser(models.RoleAdmin)
	complaint := store.addComplaint(models.CategoryOther, workflow.ComplaintReported, "", testNow)
	e := newTestEngine(t, store, Options{})

	res, err := e.ReviewComplaint(context.Background(), complaint.ID, admin.UserID, false, "not a maintenance issue")
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, workflow.ComplaintRejected, store.complaints[complaint.ID].Status)
	assert.Len(t, store.notificationsFor(complaint.StudentID), 1)

	_, err = e.UpdateStatus(context.Background(), StatusUpdate{ComplaintID: complaint.ID, Status: workflow.ComplaintApproved})
	require.ErrorIs(t, err, ErrInvalidTransition)
}

func TestResolveGeneratesOTPOnce(t *testing.T) {
	store := newMemStore()
	tech := store.addStaff(models.RoleTechnician, models.SkillPlumber, "", true, testNow)
	complaint := store.addComplaint(models.CategoryPlumbing, workflow.ComplaintInProgress, "", testNow)
	id := tech.UserID
	complaint.AssigneeID = &id
	store.complaints[complaint.ID] = complaint
	e := newTestEngine(t, store, Options{})

	codes := []string{"1111", "2222"}
	e.otp = func() (string, error) {
		code := codes[0]
		codes = codes[1:]
		return code, nil
	}

	c, err := e.UpdateStatus(context.Background(), StatusUpdate{
		ComplaintID: complaint.ID,
		ActorID:     tech.UserID,
		Status:      workflow.ComplaintResolved,
		Notes:       "replaced washer",
		Evidence:    []string{"https://files.example/after.jpg", " "},
	})
	require.NoError(t, err)
	require.NotNil(t, c.OTP)
	assert.Equal(t, "1111", *c.OTP)
	assert.Equal(t, []string{"https://files.example/after.jpg"}, c.Evidence)
	assert.NotNil(t, c.ResolvedAt)
	assert.Len(t, store.notificationsFor(complaint.StudentID), 1)

	firstResolved := *c.ResolvedAt

	// Reopen and resolve again: the original code and resolution time survive.
	e.now = func() time.Time { return testNow.Add(3 * time.Hour) }
	_, err = e.UpdateStatus(context.Background(), StatusUpdate{ComplaintID: complaint.ID, ActorID: tech.UserID, Status: workflow.ComplaintInProgress})
	require.NoError(t, err)
	c, err = e.UpdateStatus(context.Background(), StatusUpdate{ComplaintID: complaint.ID, ActorID: tech.UserID, Status: workflow.ComplaintResolved})
	require.NoError(t, err)
	assert.Equal(t, "1111", *c.OTP)
	require.NotNil(t, c.ResolvedAt)
	assert.Equal(t, firstResolved, *c.ResolvedAt)
	assert.Equal(t, testNow.Add(3*time.Hour), c.UpdatedAt)
}

func TestUpdateStatusOnlyAllowsStaffTransitions(t *testing.T) {
	store := newMemStore()
	e := newTestEngine(t, store, Options{})
	tech := store.addStaff(models.RoleTechnician, models.SkillPlumber, "", true, testNow)
	id := tech.UserID

	cases := []struct {
		from string
		to   string
	}{
		{workflow.ComplaintReported, workflow.ComplaintApproved},
		{workflow.ComplaintReported, workflow.ComplaintRejected},
		{workflow.ComplaintReported, workflow.ComplaintWaitingWardenApproval},
		{workflow.ComplaintWaitingWardenApproval, workflow.ComplaintApproved},
		{workflow.ComplaintApproved, workflow.ComplaintAssigned},
		{workflow.ComplaintApproved, workflow.ComplaintWaitingForSkilledStaff},
		{workflow.ComplaintWaitingForSkilledStaff, workflow.ComplaintAssigned},
		{workflow.ComplaintAssigned, workflow.ComplaintWaitingForSkilledStaff},
		{workflow.ComplaintReported, workflow.ComplaintInProgress},
	}
	for _, tc := range cases {
		complaint := store.addComplaint(models.CategoryPlumbing, tc.from, "", testNow)
		complaint.AssigneeID = &id
		store.complaints[complaint.ID] = complaint

		_, err := e.UpdateStatus(context.Background(), StatusUpdate{ComplaintID: complaint.ID, ActorID: id, Status: tc.to})
		require.ErrorIs(t, err, ErrInvalidTransition, "%s -> %s", tc.from, tc.to)
		saved := store.complaints[complaint.ID]
		assert.Equal(t, tc.from, saved.Status, "%s -> %s", tc.from, tc.to)
		assert.Equal(t, &id, saved.AssigneeID)
	}
	assert.Empty(t, store.audit)

	complaint := store.addComplaint(models.CategoryPlumbing, workflow.ComplaintAssigned, "", testNow)
	complaint.AssigneeID = &id
	store.complaints[complaint.ID] = complaint
	for _, to := range []string{workflow.ComplaintInProgress, workflow.ComplaintWorkSubmitted, workflow.ComplaintInProgress, workflow.ComplaintWorkSubmitted, workflow.ComplaintResolved} {
		c, err := e.UpdateStatus(context.Background(), StatusUpdate{ComplaintID: complaint.ID, ActorID: id, Status: to})
		require.NoError(t, err, to)
		assert.Equal(t, to, c.Status)
	}
}

func TestCloseOnlyThroughOTP(t *testing.T) {
	store := newMemStore()
	tech := store.addStaff(models.RoleTechnician, models.SkillPlumber, "", true, testNow)
	complaint := store.addComplaint(models.CategoryPlumbing, workflow.ComplaintResolved, "", testNow)
	otp := "0042"
	id := tech.UserID
	complaint.OTP = &otp
	complaint.AssigneeID = &id
	store.complaints[complaint.ID] = complaint
	store.operational[complaint.Location.ID] = false
	e := newTestEngine(t, store, Options{})

	_, err := e.UpdateStatus(context.Background(), StatusUpdate{ComplaintID: complaint.ID, Status: workflow.ComplaintClosed})
	require.ErrorIs(t, err, ErrInvalidTransition)

	_, err = e.VerifyOTP(context.Background(), complaint.ID, complaint.StudentID, "0043")
	require.ErrorIs(t, err, ErrInvalidOTP)
	assert.Equal(t, workflow.ComplaintResolved, store.complaints[complaint.ID].Status)
	assert.False(t, store.operational[complaint.Location.ID])

	c, err := e.VerifyOTP(context.Background(), complaint.ID, complaint.StudentID, " 0042 ")
	require.NoError(t, err)
	assert.Equal(t, workflow.ComplaintClosed, c.Status)
	assert.True(t, c.OTPVerified)
	assert.True(t, store.operational[complaint.Location.ID])
	assert.Len(t, store.notificationsFor(tech.UserID), 1)

	_, err = e.VerifyOTP(context.Background(), complaint.ID, complaint.StudentID, "0042")
	require.ErrorIs(t, err, ErrInvalidState)
}
