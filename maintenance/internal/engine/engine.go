// Package engine decides who works on what: it classifies and routes
// complaints to skilled staff, reacts to staff availability changes,
// generates the daily cleaning roster and runs the SLA and emergency sweeps.
package engine

import (
	"context"
	"crypto/rand"
	"fmt"
	"log/slog"
	"math/big"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"smart-campus-maintenance/maintenance/internal/models"
	"smart-campus-maintenance/shared/logx"
)

const (
	DefaultEscalationWindow = 5 * time.Minute
	DefaultLockTTL          = 30 * time.Second
)

type Options struct {
	SLAThresholds         map[models.Severity]time.Duration
	EscalationWindow      time.Duration
	SLARenotifyInterval   time.Duration // zero notifies on every sweep
	RedistributionLockTTL time.Duration
	BackfillLimit         int // zero means no limit
}

func DefaultOptions() Options {
	return Options{
		SLAThresholds: map[models.Severity]time.Duration{
			models.SeverityCritical: 2 * time.Hour,
			models.SeverityHigh:     4 * time.Hour,
			models.SeverityMedium:   24 * time.Hour,
			models.SeverityLow:      72 * time.Hour,
		},
		EscalationWindow:      DefaultEscalationWindow,
		RedistributionLockTTL: DefaultLockTTL,
		BackfillLimit:         50,
	}
}

type Deps struct {
	Store    Store
	Notifier Notifier
	Audit    AuditLogger
	Locker   Locker        // optional
	Breaches BreachTracker // optional
	Logger   logx.Logger
}

type Engine struct {
	store    Store
	notifier Notifier
	audit    AuditLogger
	locker   Locker
	breaches BreachTracker
	log      logx.Logger
	opts     Options
	tracer   trace.Tracer
	now      func() time.Time
	otp      func() (string, error)
}

func New(deps Deps, opts Options) *Engine {
	defaults := DefaultOptions()
	if len(opts.SLAThresholds) == 0 {
		opts.SLAThresholds = defaults.SLAThresholds
	}
	if opts.EscalationWindow <= 0 {
		opts.EscalationWindow = defaults.EscalationWindow
	}
	if opts.RedistributionLockTTL <= 0 {
		opts.RedistributionLockTTL = defaults.RedistributionLockTTL
	}
	if opts.BackfillLimit < 0 {
		opts.BackfillLimit = 0
	}
	return &Engine{
		store:    deps.Store,
		notifier: deps.Notifier,
		audit:    deps.Audit,
		locker:   deps.Locker,
		breaches: deps.Breaches,
		log:      deps.Logger,
		opts:     opts,
		tracer:   otel.Tracer("maintenance/engine"),
		now:      func() time.Time { return time.Now().UTC() },
		otp:      generateOTP,
	}
}

func generateOTP() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(10000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%04d", n.Int64()), nil
}

// notify sends n and swallows the failure after logging it.
func (e *Engine) notify(ctx context.Context, n models.Notification) bool {
	if e.notifier == nil {
		return false
	}
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = e.now()
	}
	if err := e.notifier.Notify(ctx, n); err != nil {
		e.log.Warn(ctx, "notification_failed", "notification delivery failed",
			slog.String("recipient_id", n.RecipientID.String()),
			slog.String("type", n.Type),
			slog.String("error_code", "NOTIFICATION_FAILED"),
			slog.String("error", err.Error()),
		)
		return false
	}
	return true
}

// usersWithRole lists active users for notification fan-out; a lookup
// failure degrades to nobody rather than failing the caller.
func (e *Engine) usersWithRole(ctx context.Context, role models.Role) []models.User {
	users, err := e.store.ListUsersByRole(ctx, role)
	if err != nil {
		e.log.Warn(ctx, "recipients_lookup_failed", "could not list users for notification",
			slog.String("role", string(role)),
			slog.String("error_code", "INTERNAL_ERROR"),
			slog.String("error", err.Error()),
		)
		return nil
	}
	out := make([]models.User, 0, len(users))
	for _, u := range users {
		if u.IsActive {
			out = append(out, u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID.String() < out[j].UserID.String() })
	return out
}

func (e *Engine) message(recipient uuid.UUID, kind string, title string, body string, related uuid.UUID) models.Notification {
	rel := related
	return models.Notification{
		ID:          uuid.New(),
		RecipientID: recipient,
		Type:        kind,
		Title:       title,
		Message:     body,
		RelatedID:   &rel,
		CreatedAt:   e.now(),
	}
}

func (e *Engine) auditEntry(actor *uuid.UUID, action string, resourceType string, resourceID uuid.UUID, details map[string]any) models.AuditEntry {
	rid := resourceID
	return models.AuditEntry{
		ID:           uuid.New(),
		ActorID:      actor,
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   &rid,
		Details:      details,
		OccurredAt:   e.now(),
	}
}

// record writes an audit entry outside a batch; failures are logged only.
func (e *Engine) record(ctx context.Context, entry models.AuditEntry) {
	if e.audit == nil {
		return
	}
	if err := e.audit.Record(ctx, entry); err != nil {
		e.log.Warn(ctx, "audit_failed", "audit entry not recorded",
			slog.String("action", entry.Action),
			slog.String("error_code", "INTERNAL_ERROR"),
			slog.String("error", err.Error()),
		)
	}
}

func (e *Engine) commit(ctx context.Context, batch Batch) error {
	if batch.Empty() {
		return nil
	}
	if err := e.store.Commit(ctx, batch); err != nil {
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	return nil
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func normalizeArea(area string) string {
	return strings.ToLower(strings.TrimSpace(area))
}

// sameArea treats an empty area on the reference side as "anywhere".
func sameArea(reference string, candidate string) bool {
	ref := normalizeArea(reference)
	if ref == "" {
		return true
	}
	return ref == normalizeArea(candidate)
}

// byAvailability orders staff by how long they have been available, oldest first.
func byAvailability(staff []models.StaffMember) {
	sort.SliceStable(staff, func(i, j int) bool {
		a, b := staff[i].AvailableSince(), staff[j].AvailableSince()
		if !a.Equal(b) {
			return a.Before(b)
		}
		return staff[i].UserID.String() < staff[j].UserID.String()
	})
}

func byID(staff []models.StaffMember) {
	sort.SliceStable(staff, func(i, j int) bool {
		return staff[i].UserID.String() < staff[j].UserID.String()
	})
}

func displayName(s models.StaffMember) string {
	if strings.TrimSpace(s.Name) != "" {
		return s.Name
	}
	return s.UserID.String()
}

func appendNote(existing string, note string) string {
	existing = strings.TrimSpace(existing)
	if existing == "" {
		return note
	}
	return existing + "\n" + note
}

func uuidPtr(id uuid.UUID) *uuid.UUID {
	return &id
}

func timePtr(t time.Time) *time.Time {
	return &t
}
