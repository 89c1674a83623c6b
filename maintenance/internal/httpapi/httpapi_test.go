package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"smart-campus-maintenance/maintenance/internal/engine"
	"smart-campus-maintenance/maintenance/internal/middleware"
	"smart-campus-maintenance/maintenance/internal/models"
	"smart-campus-maintenance/shared/authx"
	"smart-campus-maintenance/shared/logx"
	"smart-campus-maintenance/shared/workflow"
)

type fakeEngine struct {
	reported   engine.NewComplaint
	update     engine.StatusUpdate
	otpCalls   int
	otpErr     error
	generated  time.Time
	available  *bool
	assignErr  error
	complaints map[uuid.UUID]models.Complaint
}

func (f *fakeEngine) ReportComplaint(_ context.Context, in engine.NewComplaint) (models.Complaint, error) {
	f.reported = in
	return models.Complaint{ID: uuid.New(), Title: in.Title, StudentID: in.StudentID, Status: workflow.ComplaintReported}, nil
}

func (f *fakeEngine) ReviewComplaint(_ context.Context, id uuid.UUID, _ uuid.UUID, approve bool, _ string) (engine.AssignmentResult, error) {
	return engine.AssignmentResult{Success: true, ComplaintID: id, Assigned: approve}, nil
}

func (f *fakeEngine) AssignComplaint(_ context.Context, id uuid.UUID) (engine.AssignmentResult, error) {
	if f.assignErr != nil {
		return engine.AssignmentResult{ComplaintID: id}, f.assignErr
	}
	return engine.AssignmentResult{Success: true, ComplaintID: id}, nil
}

func (f *fakeEngine) UpdateStatus(_ context.Context, upd engine.StatusUpdate) (models.Complaint, error) {
	f.update = upd
	return f.complaints[upd.ComplaintID], nil
}

func (f *fakeEngine) VerifyOTP(_ context.Context, id uuid.UUID, _ uuid.UUID, _ string) (models.Complaint, error) {
	f.otpCalls++
	if f.otpErr != nil {
		return models.Complaint{}, f.otpErr
	}
	c := f.complaints[id]
	c.Status = workflow.ComplaintClosed
	return c, nil
}

func (f *fakeEngine) OnStaffAvailabilityChanged(_ context.Context, id uuid.UUID, _ models.Role, available bool) (engine.AvailabilityResult, error) {
	f.available = &available
	return engine.AvailabilityResult{Success: true, StaffID: id, Available: available}, nil
}

func (f *fakeEngine) GenerateDailyCleaningTasks(_ context.Context, date time.Time) (engine.GenerationResult, error) {
	f.generated = date
	return engine.GenerationResult{Date: date.Format("2006-01-02")}, nil
}

func (f *fakeEngine) RunSLASweep(context.Context) (engine.SweepReport, error) {
	return engine.SweepReport{Sweep: engine.SweepSLA}, nil
}

func (f *fakeEngine) RunEscalationSweep(context.Context) (engine.SweepReport, error) {
	return engine.SweepReport{Sweep: engine.SweepEscalation}, nil
}

func (f *fakeEngine) GetComplaint(_ context.Context, id uuid.UUID) (models.Complaint, error) {
	c, ok := f.complaints[id]
	if !ok {
		return models.Complaint{}, engine.ErrNotFound
	}
	return c, nil
}

type fakeInbox struct{}

func (fakeInbox) ListForRecipient(context.Context, uuid.UUID, int) ([]models.Notification, error) {
	return nil, nil
}

type fakeEmergencies struct{}

func (fakeEmergencies) RaiseEmergency(_ context.Context, t string, loc string, by *uuid.UUID) (models.Emergency, error) {
	return models.Emergency{ID: uuid.New(), Type: t, Location: loc, Status: workflow.EmergencyTriggered, ReportedBy: by}, nil
}

func newTestMux(f *fakeEngine) *http.ServeMux {
	api := &API{
		Engine:      f,
		Complaints:  f,
		Emergencies: fakeEmergencies{},
		Inbox:       fakeInbox{},
		OTPLimiter:  middleware.NewAttemptLimiter(1, 1, time.Hour),
		Logger:      logx.New("httpapi-test", "test", "", "error"),
	}
	mux := http.NewServeMux()
	api.Register(mux)
	return mux
}

func do(t *testing.T, mux *http.ServeMux, method, path string, user uuid.UUID, roles []string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if user != uuid.Nil {
		req = req.WithContext(authx.WithAuth(req.Context(), authx.AuthContext{Subject: user.String(), Roles: roles}))
	}
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func TestReportComplaintUsesCallerAsStudent(t *testing.T) {
	f := &fakeEngine{}
	mux := newTestMux(f)
	student := uuid.New()

	rec := do(t, mux, http.MethodPost, "/v1/complaints", student, []string{"student"}, map[string]any{
		"title":      "Tap leaking",
		"category":   "Plumbing",
		"student_id": uuid.NewString(),
		"location":   map[string]any{"kind": "room", "id": uuid.NewString()},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, student, f.reported.StudentID)
	assert.Equal(t, models.CategoryPlumbing, f.reported.Category)
}

func TestRoleGates(t *testing.T) {
	mux := newTestMux(&fakeEngine{})
	id := uuid.New()

	rec := do(t, mux, http.MethodPost, "/v1/complaints/"+id.String()+"/assign", uuid.New(), []string{"student"}, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = do(t, mux, http.MethodPost, "/v1/sweeps/sla", uuid.Nil, nil, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = do(t, mux, http.MethodPost, "/v1/sweeps/escalation", uuid.New(), []string{"admin"}, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"sweep":"escalation"`)
}

func TestEngineErrorsMapToStatus(t *testing.T) {
	cases := []struct {
		err  error
		want int
		code string
	}{
		{engine.ErrNotFound, http.StatusNotFound, "NOT_FOUND"},
		{fmt.Errorf("%w: approved required", engine.ErrInvalidState), http.StatusConflict, "INVALID_STATE"},
		{engine.ErrPersistence, http.StatusInternalServerError, "INTERNAL_ERROR"},
	}
	for _, tc := range cases {
		f := &fakeEngine{assignErr: tc.err}
		rec := do(t, newTestMux(f), http.MethodPost, "/v1/complaints/"+uuid.NewString()+"/assign", uuid.New(), []string{"admin"}, nil)
		assert.Equal(t, tc.want, rec.Code)
		assert.Contains(t, rec.Body.String(), tc.code)
	}
}

func TestComplaintViewHidesOTPFromStaff(t *testing.T) {
	student, tech := uuid.New(), uuid.New()
	otp := "0042"
	c := models.Complaint{ID: uuid.New(), StudentID: student, AssigneeID: &tech, OTP: &otp, Status: workflow.ComplaintResolved}
	f := &fakeEngine{complaints: map[uuid.UUID]models.Complaint{c.ID: c}}
	mux := newTestMux(f)

	rec := do(t, mux, http.MethodGet, "/v1/complaints/"+c.ID.String(), tech, []string{"technician"}, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "0042")

	rec = do(t, mux, http.MethodGet, "/v1/complaints/"+c.ID.String(), student, []string{"student"}, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"otp":"0042"`)

	rec = do(t, mux, http.MethodGet, "/v1/complaints/"+c.ID.String(), uuid.New(), []string{"student"}, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestVerifyOTPOwnerAndLimit(t *testing.T) {
	student := uuid.New()
	c := models.Complaint{ID: uuid.New(), StudentID: student, Status: workflow.ComplaintResolved}
	f := &fakeEngine{complaints: map[uuid.UUID]models.Complaint{c.ID: c}, otpErr: engine.ErrInvalidOTP}
	mux := newTestMux(f)
	path := "/v1/complaints/" + c.ID.String() + "/verify-otp"

	rec := do(t, mux, http.MethodPost, path, uuid.New(), []string{"student"}, map[string]string{"otp": "1234"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = do(t, mux, http.MethodPost, path, student, []string{"student"}, map[string]string{"otp": "1234"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "INVALID_OTP")

	rec = do(t, mux, http.MethodPost, path, student, []string{"student"}, map[string]string{"otp": "1235"})
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, 1, f.otpCalls)
}

func TestStatusUpdateLimitedToAssigneeOrAdmin(t *testing.T) {
	tech := uuid.New()
	c := models.Complaint{ID: uuid.New(), StudentID: uuid.New(), AssigneeID: &tech, Status: workflow.ComplaintAssigned}
	unassigned := models.Complaint{ID: uuid.New(), StudentID: uuid.New(), Status: workflow.ComplaintApproved}
	f := &fakeEngine{complaints: map[uuid.UUID]models.Complaint{c.ID: c, unassigned.ID: unassigned}}
	mux := newTestMux(f)
	path := "/v1/complaints/" + c.ID.String() + "/status"
	body := map[string]string{"status": workflow.ComplaintInProgress}

	rec := do(t, mux, http.MethodPost, path, uuid.New(), []string{"technician"}, body)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, uuid.Nil, f.update.ComplaintID, "engine not reached")

	rec = do(t, mux, http.MethodPost, "/v1/complaints/"+unassigned.ID.String()+"/status", tech, []string{"technician"}, body)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = do(t, mux, http.MethodPost, path, tech, []string{"technician"}, body)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, tech, f.update.ActorID)
	assert.Equal(t, workflow.ComplaintInProgress, f.update.Status)

	admin := uuid.New()
	rec = do(t, mux, http.MethodPost, path, admin, []string{"admin"}, body)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, admin, f.update.ActorID)

	rec = do(t, mux, http.MethodPost, "/v1/complaints/"+uuid.NewString()+"/status", admin, []string{"admin"}, body)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAvailabilityIsSelfServiceUnlessAdmin(t *testing.T) {
	f := &fakeEngine{}
	mux := newTestMux(f)
	staff := uuid.New()

	rec := do(t, mux, http.MethodPost, "/v1/staff/"+staff.String()+"/availability", uuid.New(), []string{"cleaner"}, map[string]any{"available": false})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = do(t, mux, http.MethodPost, "/v1/staff/"+staff.String()+"/availability", staff, []string{"cleaner"}, map[string]any{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, mux, http.MethodPost, "/v1/staff/"+staff.String()+"/availability", uuid.New(), []string{"admin"}, map[string]any{"available": false})
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, f.available)
	assert.False(t, *f.available)
}

func TestGenerateCleaningParsesDate(t *testing.T) {
	f := &fakeEngine{}
	mux := newTestMux(f)
	admin := uuid.New()

	rec := do(t, mux, http.MethodPost, "/v1/cleaning/generate", admin, []string{"admin"}, map[string]string{"date": "2024-03-12"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "2024-03-12", f.generated.Format("2006-01-02"))

	rec = do(t, mux, http.MethodPost, "/v1/cleaning/generate", admin, []string{"admin"}, map[string]string{"date": "12/03/2024"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestClassifyAndEmergency(t *testing.T) {
	mux := newTestMux(&fakeEngine{})
	user := uuid.New()

	rec := do(t, mux, http.MethodPost, "/v1/classify", user, nil, map[string]string{"title": "Sparks near switch"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"severity":"high"`)

	rec = do(t, mux, http.MethodPost, "/v1/emergencies", user, nil, map[string]string{"type": "fire", "location": "Hostel 2"})
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"triggered"`)

	rec = do(t, mux, http.MethodGet, "/v1/notifications", user, nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"items":[]}`, rec.Body.String())
}
