// Package app builds the engine and its adapters from configuration. The api
// and worker binaries share it so both run the engine with the same tuning.
package app

import (
	"context"
	"log/slog"
	"time"

	"smart-campus-maintenance/maintenance/internal/adapters"
	"smart-campus-maintenance/maintenance/internal/engine"
	"smart-campus-maintenance/maintenance/internal/models"
	"smart-campus-maintenance/maintenance/internal/repos"
	"smart-campus-maintenance/shared/cachex"
	"smart-campus-maintenance/shared/config"
	"smart-campus-maintenance/shared/influxx"
	"smart-campus-maintenance/shared/logx"
	"smart-campus-maintenance/shared/metricsx"
)

func EngineOptions(cfg config.Config) engine.Options {
	thresholds := make(map[models.Severity]time.Duration)
	for severity, d := range cfg.SLAThresholds() {
		thresholds[models.Severity(severity)] = d
	}
	return engine.Options{
		SLAThresholds:         thresholds,
		EscalationWindow:      cfg.EscalationWindow(),
		SLARenotifyInterval:   cfg.SLARenotifyInterval(),
		RedistributionLockTTL: cfg.RedistributionLockTTL(),
		BackfillLimit:         cfg.BackfillLimit,
	}
}

// OpenCache connects to Redis when REDIS_ADDR is set. A nil client means the
// engine runs without locking or breach throttling.
func OpenCache(ctx context.Context, cfg config.Config, logger logx.Logger) *cachex.Client {
	if cfg.RedisAddr == "" {
		return nil
	}
	cache, err := cachex.New(cfg)
	if err != nil {
		logger.Warn(ctx, "redis_init_failed", "redis init failed",
			slog.String("error_code", "FAILED_PRECONDITION"),
			slog.String("error", err.Error()),
		)
		return nil
	}
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := cache.Ping(pingCtx); err != nil {
		logger.Warn(ctx, "redis_unreachable", "redis ping failed, continuing without locks",
			slog.String("error_code", "UNAVAILABLE"),
			slog.String("error", err.Error()),
		)
	}
	return cache
}

func NewEngine(cfg config.Config, store *repos.Store, cache *cachex.Client, logger logx.Logger) *engine.Engine {
	deps := engine.Deps{
		Store:    store,
		Notifier: store,
		Audit:    store.Audit(),
		Logger:   logger,
	}
	if cache != nil {
		deps.Store = adapters.NewRoleCachedStore(store, cache, adapters.DefaultUsersTTL)
		deps.Locker = adapters.NewRedisLocker(cache.Client())
		deps.Breaches = adapters.NewBreachTracker(cache)
	}
	return engine.New(deps, EngineOptions(cfg))
}

// Recorder logs sweep and generation results and writes them to InfluxDB.
// A nil Influx client only logs.
type Recorder struct {
	Influx *influxx.Client
	Logger logx.Logger
}

func (r Recorder) Sweep(ctx context.Context, report engine.SweepReport) {
	r.Logger.Info(ctx, "sweep_done", "sweep finished",
		slog.String("sweep", report.Sweep),
		slog.Int("scanned", report.Scanned),
		slog.Int("flagged", report.Flagged),
		slog.Int("notified", report.Notified),
		slog.Int("failed", report.Failed),
		slog.Duration("duration", report.Duration),
	)
	if r.Influx == nil {
		return
	}
	err := r.Influx.WritePoint(ctx, "maintenance_sweeps",
		map[string]string{"sweep": report.Sweep},
		map[string]any{
			"scanned":     report.Scanned,
			"flagged":     report.Flagged,
			"notified":    report.Notified,
			"throttled":   report.Throttled,
			"failed":      report.Failed,
			"duration_ms": report.Duration.Milliseconds(),
		},
		report.StartedAt,
	)
	if err != nil {
		metricsx.IncInfluxWriteFailure()
		r.Logger.Warn(ctx, "influx_write_failed", "failed to record sweep",
			slog.String("error_code", "UNAVAILABLE"),
			slog.String("error", err.Error()),
		)
	}
}

func (r Recorder) Generation(ctx context.Context, res engine.GenerationResult, at time.Time) {
	r.Logger.Info(ctx, "cleaning_generated", "daily cleaning tasks generated",
		slog.String("date", res.Date),
		slog.Int("created", res.Created),
		slog.Int("assigned", res.Assigned),
		slog.Int("waiting", res.Waiting),
		slog.Int("pending", res.Pending),
		slog.Int("failed", res.Failed),
	)
	if r.Influx == nil {
		return
	}
	err := r.Influx.WritePoint(ctx, "maintenance_cleaning",
		map[string]string{"date": res.Date},
		map[string]any{
			"created":  res.Created,
			"skipped":  res.Skipped,
			"assigned": res.Assigned,
			"waiting":  res.Waiting,
			"pending":  res.Pending,
			"failed":   res.Failed,
		},
		at,
	)
	if err != nil {
		metricsx.IncInfluxWriteFailure()
		r.Logger.Warn(ctx, "influx_write_failed", "failed to record cleaning generation",
			slog.String("error_code", "UNAVAILABLE"),
			slog.String("error", err.Error()),
		)
	}
}
