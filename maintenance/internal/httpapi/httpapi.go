// Package httpapi exposes the engine operations over HTTP. Authorization is
// decided here from the caller's token roles; the engine trusts its callers.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"smart-campus-maintenance/maintenance/internal/engine"
	"smart-campus-maintenance/maintenance/internal/middleware"
	"smart-campus-maintenance/maintenance/internal/models"
	"smart-campus-maintenance/shared/authx"
	"smart-campus-maintenance/shared/httpx"
	"smart-campus-maintenance/shared/logx"
)

// Engine is the subset of *engine.Engine the API drives.
type Engine interface {
	ReportComplaint(ctx context.Context, in engine.NewComplaint) (models.Complaint, error)
	ReviewComplaint(ctx context.Context, complaintID uuid.UUID, actorID uuid.UUID, approve bool, reason string) (engine.AssignmentResult, error)
	AssignComplaint(ctx context.Context, complaintID uuid.UUID) (engine.AssignmentResult, error)
	UpdateStatus(ctx context.Context, upd engine.StatusUpdate) (models.Complaint, error)
	VerifyOTP(ctx context.Context, complaintID uuid.UUID, actorID uuid.UUID, otp string) (models.Complaint, error)
	OnStaffAvailabilityChanged(ctx context.Context, staffID uuid.UUID, role models.Role, available bool) (engine.AvailabilityResult, error)
	GenerateDailyCleaningTasks(ctx context.Context, date time.Time) (engine.GenerationResult, error)
	RunSLASweep(ctx context.Context) (engine.SweepReport, error)
	RunEscalationSweep(ctx context.Context) (engine.SweepReport, error)
}

type ComplaintReader interface {
	GetComplaint(ctx context.Context, id uuid.UUID) (models.Complaint, error)
}

type EmergencyRaiser interface {
	RaiseEmergency(ctx context.Context, emergencyType string, location string, reportedBy *uuid.UUID) (models.Emergency, error)
}

type Inbox interface {
	ListForRecipient(ctx context.Context, recipientID uuid.UUID, limit int) ([]models.Notification, error)
}

type API struct {
	Engine      Engine
	Complaints  ComplaintReader
	Emergencies EmergencyRaiser
	Inbox       Inbox
	OTPLimiter  *middleware.AttemptLimiter
	Logger      logx.Logger
}

const (
	roleAdmin      = string(models.RoleAdmin)
	roleWarden     = string(models.RoleWarden)
	roleStudent    = string(models.RoleStudent)
	roleTechnician = string(models.RoleTechnician)
	roleCleaner    = string(models.RoleCleaner)
)

// Register mounts every route on mux.
func (a *API) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /v1/classify", a.classify)
	mux.HandleFunc("POST /v1/complaints", middleware.RequireRole(a.reportComplaint, roleStudent, roleAdmin, roleWarden))
	mux.HandleFunc("GET /v1/complaints/{id}", a.getComplaint)
	mux.HandleFunc("POST /v1/complaints/{id}/review", middleware.RequireRole(a.reviewComplaint, roleAdmin, roleWarden))
	mux.HandleFunc("POST /v1/complaints/{id}/assign", middleware.RequireRole(a.assignComplaint, roleAdmin))
	mux.HandleFunc("POST /v1/complaints/{id}/status", middleware.RequireRole(a.updateStatus, roleTechnician, roleCleaner, roleAdmin))
	mux.HandleFunc("POST /v1/complaints/{id}/verify-otp", middleware.RequireRole(a.OTPLimiter.Limit(a.verifyOTP), roleStudent))
	mux.HandleFunc("POST /v1/staff/{id}/availability", middleware.RequireRole(a.setAvailability, roleTechnician, roleCleaner, roleAdmin))
	mux.HandleFunc("POST /v1/cleaning/generate", middleware.RequireRole(a.generateCleaning, roleAdmin))
	mux.HandleFunc("POST /v1/sweeps/sla", middleware.RequireRole(a.runSLASweep, roleAdmin))
	mux.HandleFunc("POST /v1/sweeps/escalation", middleware.RequireRole(a.runEscalationSweep, roleAdmin))
	mux.HandleFunc("POST /v1/emergencies", a.raiseEmergency)
	mux.HandleFunc("GET /v1/notifications", a.listNotifications)
}

// complaintView is the wire form of a complaint. The OTP is only shown to
// the student who filed the complaint.
type complaintView struct {
	ID          uuid.UUID          `json:"id"`
	Title       string             `json:"title"`
	Description string             `json:"description,omitempty"`
	Category    models.Category    `json:"category"`
	Severity    models.Severity    `json:"severity"`
	Status      string             `json:"status"`
	StudentID   uuid.UUID          `json:"student_id"`
	AssigneeID  *uuid.UUID         `json:"assignee_id,omitempty"`
	Location    models.LocationRef `json:"location"`
	Hostel      bool               `json:"hostel"`
	Notes       string             `json:"notes,omitempty"`
	Evidence    []string           `json:"evidence,omitempty"`
	OTP         *string            `json:"otp,omitempty"`
	OTPVerified bool               `json:"otp_verified"`
	CreatedAt   time.Time          `json:"created_at"`
	AssignedAt  *time.Time         `json:"assigned_at,omitempty"`
	ResolvedAt  *time.Time         `json:"resolved_at,omitempty"`
}

func viewComplaint(c models.Complaint, viewer uuid.UUID) complaintView {
	v := complaintView{
		ID:          c.ID,
		Title:       c.Title,
		Description: c.Description,
		Category:    c.Category,
		Severity:    c.Severity,
		Status:      c.Status,
		StudentID:   c.StudentID,
		AssigneeID:  c.AssigneeID,
		Location:    c.Location,
		Hostel:      c.Hostel,
		Notes:       c.Notes,
		Evidence:    c.Evidence,
		OTPVerified: c.OTPVerified,
		CreatedAt:   c.CreatedAt,
		AssignedAt:  c.AssignedAt,
		ResolvedAt:  c.ResolvedAt,
	}
	if viewer == c.StudentID {
		v.OTP = c.OTP
	}
	return v
}

func (a *API) classify(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Title       string `json:"title"`
		Description string `json:"description"`
		AssetType   string `json:"asset_type"`
	}
	if !decode(w, r, &req) {
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"severity": engine.ClassifyPriority(req.Title, req.Description, req.AssetType),
	})
}

func (a *API) reportComplaint(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorID(w, r)
	if !ok {
		return
	}
	var req engine.NewComplaint
	if !decode(w, r, &req) {
		return
	}
	req.StudentID = actor
	c, err := a.Engine.ReportComplaint(r.Context(), req)
	if err != nil {
		a.writeEngineError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, viewComplaint(c, actor))
}

func (a *API) getComplaint(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorID(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	c, err := a.Complaints.GetComplaint(r.Context(), id)
	if err != nil {
		a.writeEngineError(w, r, err)
		return
	}
	auth, _ := authx.FromContext(r.Context())
	isStaff := c.AssigneeID != nil && *c.AssigneeID == actor
	if c.StudentID != actor && !isStaff && !auth.HasRole(roleAdmin, roleWarden) {
		httpx.WriteError(w, r, http.StatusForbidden, "PERMISSION_DENIED", "not your complaint", nil)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, viewComplaint(c, actor))
}

func (a *API) reviewComplaint(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorID(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req struct {
		Approve bool   `json:"approve"`
		Reason  string `json:"reason"`
	}
	if !decode(w, r, &req) {
		return
	}
	res, err := a.Engine.ReviewComplaint(r.Context(), id, actor, req.Approve, req.Reason)
	if err != nil {
		a.writeEngineError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, res)
}

func (a *API) assignComplaint(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	res, err := a.Engine.AssignComplaint(r.Context(), id)
	if err != nil {
		a.writeEngineError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, res)
}

func (a *API) updateStatus(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorID(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req struct {
		Status   string   `json:"status"`
		Notes    string   `json:"notes"`
		Evidence []string `json:"evidence"`
	}
	if !decode(w, r, &req) {
		return
	}
	current, err := a.Complaints.GetComplaint(r.Context(), id)
	if err != nil {
		a.writeEngineError(w, r, err)
		return
	}
	auth, _ := authx.FromContext(r.Context())
	if !auth.HasRole(roleAdmin) && (current.AssigneeID == nil || *current.AssigneeID != actor) {
		httpx.WriteError(w, r, http.StatusForbidden, "PERMISSION_DENIED", "only the assignee can update this complaint", nil)
		return
	}
	c, err := a.Engine.UpdateStatus(r.Context(), engine.StatusUpdate{
		ComplaintID: id,
		ActorID:     actor,
		Status:      req.Status,
		Notes:       req.Notes,
		Evidence:    req.Evidence,
	})
	if err != nil {
		a.writeEngineError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, viewComplaint(c, actor))
}

func (a *API) verifyOTP(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorID(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req struct {
		OTP string `json:"otp"`
	}
	if !decode(w, r, &req) {
		return
	}
	c, err := a.Complaints.GetComplaint(r.Context(), id)
	if err != nil {
		a.writeEngineError(w, r, err)
		return
	}
	if c.StudentID != actor {
		httpx.WriteError(w, r, http.StatusForbidden, "PERMISSION_DENIED", "only the reporting student can close a complaint", nil)
		return
	}
	c, err = a.Engine.VerifyOTP(r.Context(), id, actor, req.OTP)
	if err != nil {
		a.writeEngineError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, viewComplaint(c, actor))
}

func (a *API) setAvailability(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorID(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	auth, _ := authx.FromContext(r.Context())
	if id != actor && !auth.HasRole(roleAdmin) {
		httpx.WriteError(w, r, http.StatusForbidden, "PERMISSION_DENIED", "staff may only change their own availability", nil)
		return
	}
	var req struct {
		Available *bool       `json:"available"`
		Role      models.Role `json:"role"`
	}
	if !decode(w, r, &req) {
		return
	}
	if req.Available == nil {
		httpx.WriteError(w, r, http.StatusBadRequest, "VALIDATION_ERROR", "available is required", nil)
		return
	}
	res, err := a.Engine.OnStaffAvailabilityChanged(r.Context(), id, req.Role, *req.Available)
	if err != nil {
		a.writeEngineError(w, r, err)
		return
	}
	status := http.StatusOK
	if !res.Success {
		status = http.StatusConflict
	}
	httpx.WriteJSON(w, status, res)
}

func (a *API) generateCleaning(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Date string `json:"date"`
	}
	if !decode(w, r, &req) {
		return
	}
	day := time.Now().UTC()
	if strings.TrimSpace(req.Date) != "" {
		parsed, err := time.Parse("2006-01-02", strings.TrimSpace(req.Date))
		if err != nil {
			httpx.WriteError(w, r, http.StatusBadRequest, "VALIDATION_ERROR", "date must be YYYY-MM-DD", nil)
			return
		}
		day = parsed
	}
	res, err := a.Engine.GenerateDailyCleaningTasks(r.Context(), day)
	if err != nil {
		a.writeEngineError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, res)
}

func (a *API) runSLASweep(w http.ResponseWriter, r *http.Request) {
	report, err := a.Engine.RunSLASweep(r.Context())
	if err != nil {
		a.writeEngineError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, report)
}

func (a *API) runEscalationSweep(w http.ResponseWriter, r *http.Request) {
	report, err := a.Engine.RunEscalationSweep(r.Context())
	if err != nil {
		a.writeEngineError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, report)
}

func (a *API) raiseEmergency(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorID(w, r)
	if !ok {
		return
	}
	var req struct {
		Type     string `json:"type"`
		Location string `json:"location"`
	}
	if !decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Type) == "" {
		httpx.WriteError(w, r, http.StatusBadRequest, "VALIDATION_ERROR", "type is required", nil)
		return
	}
	em, err := a.Emergencies.RaiseEmergency(r.Context(), strings.TrimSpace(req.Type), strings.TrimSpace(req.Location), &actor)
	if err != nil {
		a.writeEngineError(w, r, err)
		return
	}
	a.Logger.Warn(r.Context(), "emergency_raised", "emergency raised",
		slog.String("emergency_id", em.ID.String()),
		slog.String("type", em.Type),
	)
	httpx.WriteJSON(w, http.StatusCreated, em)
}

func (a *API) listNotifications(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorID(w, r)
	if !ok {
		return
	}
	items, err := a.Inbox.ListForRecipient(r.Context(), actor, 50)
	if err != nil {
		a.writeEngineError(w, r, err)
		return
	}
	if items == nil {
		items = []models.Notification{}
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (a *API) writeEngineError(w http.ResponseWriter, r *http.Request, err error) {
	code := engine.ErrorCode(err)
	status := http.StatusInternalServerError
	switch code {
	case "NOT_FOUND":
		status = http.StatusNotFound
	case "INVALID_STATE", "CONFLICT":
		status = http.StatusConflict
	case "VALIDATION_ERROR", "INVALID_OTP":
		status = http.StatusBadRequest
	}
	msg := err.Error()
	if status == http.StatusInternalServerError {
		a.Logger.Error(r.Context(), "request_failed", "request failed",
			slog.String("request_id", httpx.RequestIDFromContext(r.Context())),
			slog.String("path", r.URL.Path),
			slog.String("error_code", code),
			slog.String("error", err.Error()),
		)
		msg = "internal error"
	}
	httpx.WriteError(w, r, status, code, msg, nil)
}

func actorID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	auth, ok := authx.FromContext(r.Context())
	if !ok {
		httpx.WriteError(w, r, http.StatusUnauthorized, "UNAUTHENTICATED", "missing auth context", nil)
		return uuid.Nil, false
	}
	id, err := auth.UserID()
	if err != nil {
		httpx.WriteError(w, r, http.StatusUnauthorized, "UNAUTHENTICATED", "invalid subject", nil)
		return uuid.Nil, false
	}
	return id, true
}

func pathID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		httpx.WriteError(w, r, http.StatusBadRequest, "VALIDATION_ERROR", "invalid id", nil)
		return uuid.Nil, false
	}
	return id, true
}

func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		httpx.WriteError(w, r, http.StatusBadRequest, "VALIDATION_ERROR", "invalid request body", nil)
		return false
	}
	return true
}
