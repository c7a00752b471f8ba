package dashboard

import (
	"context"
	"log/slog"
	"time"
)

// Refresher reloads the snapshot in the background: promptly after a
// mutation marks it stale, and at a coarse interval otherwise so staleness
// against out-of-band edits stays bounded.
type Refresher struct {
	loader *Loader
	poll   time.Duration
	maxAge time.Duration
	logger *slog.Logger
}

// NewRefresher creates a Refresher. If pollInterval is <= 0 it defaults to
// 500ms; if maxAge is <= 0 periodic refresh is disabled and only stale
// snapshots trigger a reload.
func NewRefresher(loader *Loader, pollInterval, maxAge time.Duration) *Refresher {
	if pollInterval <= 0 {
		pollInterval = 500 * time.Millisecond
	}
	return &Refresher{
		loader: loader,
		poll:   pollInterval,
		maxAge: maxAge,
		logger: slog.Default(),
	}
}

// Run polls until ctx is cancelled.
func (r *Refresher) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		if _, err := r.RunOnce(ctx); err != nil {
			r.logger.Error("snapshot refresh failed", "error", err)
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(r.poll):
		}
	}
}

// RunOnce reloads the snapshot if it is due and reports whether it did.
func (r *Refresher) RunOnce(ctx context.Context) (bool, error) {
	if !r.due() {
		return false, nil
	}
	if err := r.loader.Load(ctx); err != nil {
		return true, err
	}
	return true, nil
}

func (r *Refresher) due() bool {
	if r.loader.IsStale() {
		return true
	}
	if r.maxAge <= 0 {
		return false
	}
	snap, state, _ := r.loader.Snapshot()
	return state == StateReady && snap != nil && time.Since(snap.FetchedAt) > r.maxAge
}
