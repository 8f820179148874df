package service

import (
	"context"
	"time"

	"support-chat/backend/internal/repository"
	"support-chat/backend/pkg/logger"
	"support-chat/backend/shared/observability"
)

// ReaperConfig controls the inactivity sweep
type ReaperConfig struct {
	Interval   time.Duration
	Window     time.Duration
	RunOnStart bool
}

// Reaper periodically deactivates sessions with no recent activity
type Reaper struct {
	repo    repository.ChatRepository
	cfg     ReaperConfig
	now     Clock
	log     *logger.Logger
	metrics *observability.ChatMetrics
}

// NewReaper creates a reaper. metrics may be nil.
func NewReaper(repo repository.ChatRepository, cfg ReaperConfig, now Clock, log *logger.Logger, metrics *observability.ChatMetrics) *Reaper {
	if now == nil {
		now = UTCNow
	}
	if log == nil {
		log = logger.GetGlobal()
	}
	return &Reaper{
		repo:    repo,
		cfg:     cfg,
		now:     now,
		log:     log.WithComponent("reaper"),
		metrics: metrics,
	}
}

// SweepOnce deactivates every active session last updated before now minus the window
func (r *Reaper) SweepOnce(ctx context.Context) (int64, error) {
	cutoff := r.now().Add(-r.cfg.Window)
	n, err := r.repo.DeactivateStale(ctx, cutoff)
	if err != nil {
		return 0, &StorageError{Op: "deactivate_stale", Err: err}
	}
	r.metrics.SessionsReaped(ctx, n)
	return n, nil
}

// Run sweeps every interval until ctx is cancelled. Sweep failures are logged and the loop continues.
func (r *Reaper) Run(ctx context.Context) {
	r.log.Info("Inactivity reaper started", "interval", r.cfg.Interval, "window", r.cfg.Window)
	defer r.log.Info("Inactivity reaper stopped")

	if r.cfg.RunOnStart {
		r.sweep(ctx)
	}

	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.sweep(ctx)
		}
	}
}

func (r *Reaper) sweep(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	n, err := r.SweepOnce(ctx)
	if err != nil {
		r.log.LogError(err, "Inactivity sweep failed")
		return
	}
	if n > 0 {
		r.log.Info("Deactivated inactive chat sessions", "count", n)
	}
}
