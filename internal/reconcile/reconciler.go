package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"opsagent.app/history/common/logger"
	"opsagent.app/history/internal/cache"
	"opsagent.app/history/internal/store"
)

type Config struct {
	// Interval between reconciliation passes.
	Interval time.Duration
	// Window selects which owners count as recently active.
	Window time.Duration
}

// Reconciler periodically re-derives the cached summary lists from Postgres
// for recently active owners. The cache stays correct without it (TTL bounds
// staleness); this just keeps warm entries from drifting when other writers
// touch the durable store directly.
type Reconciler struct {
	store store.ConversationStore
	cache cache.HistoryCache
	cfg   Config

	stopCh    chan struct{}
	stoppedCh chan struct{}
}

func New(cs store.ConversationStore, hc cache.HistoryCache, cfg Config) *Reconciler {
	return &Reconciler{
		store:     cs,
		cache:     hc,
		cfg:       cfg,
		stopCh:    make(chan struct{}),
		stoppedCh: make(chan struct{}),
	}
}

// Run starts the reconciliation loop. Blocks until Stop() is called or the
// context is cancelled.
func (r *Reconciler) Run(ctx context.Context) {
	ctx = logger.WithLogFields(ctx, logger.LogFields{
		Component: "history.reconciler",
	})

	defer close(r.stoppedCh)

	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	slog.InfoContext(ctx, "reconciler started",
		"interval", r.cfg.Interval,
		"window", r.cfg.Window)

	for {
		select {
		case <-ctx.Done():
			return
		case <-r.stopCh:
			slog.InfoContext(ctx, "reconciler stopping")
			return
		case <-ticker.C:
			if err := r.ReconcileOnce(ctx); err != nil {
				slog.ErrorContext(ctx, "reconciliation pass failed", "error", err)
			}
		}
	}
}

func (r *Reconciler) Stop() {
	close(r.stopCh)
	<-r.stoppedCh
}

// ReconcileOnce rebuilds the cached summary list of every recently active
// owner from the durable store. Per-owner failures are logged and skipped so
// one bad owner never stalls the pass.
func (r *Reconciler) ReconcileOnce(ctx context.Context) error {
	if !r.cache.Available(ctx) {
		slog.WarnContext(ctx, "cache unavailable, skipping reconciliation pass")
		return nil
	}

	owners, err := r.store.ListActiveOwners(ctx, r.cfg.Window)
	if err != nil {
		return fmt.Errorf("listing active owners: %w", err)
	}

	var refreshed int
	for _, owner := range owners {
		summaries, err := r.store.List(ctx, owner, r.cfg.Window)
		if err != nil {
			slog.ErrorContext(ctx, "listing conversations for owner failed",
				"error", err,
				"owner_id", owner)
			continue
		}
		if err := r.cache.PutList(ctx, owner, summaries); err != nil {
			slog.WarnContext(ctx, "refreshing cached list failed",
				"error", err,
				"owner_id", owner)
			continue
		}
		refreshed++
	}

	slog.InfoContext(ctx, "reconciliation pass complete",
		"owners", len(owners),
		"refreshed", refreshed)
	return nil
}
