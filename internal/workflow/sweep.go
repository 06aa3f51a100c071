package workflow

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"repost/internal/ledger"
	"repost/internal/logging"
)

// SweepResult summarizes one pass over the enabled targets.
type SweepResult struct {
	Targets    int
	Discovered int
	Skipped    int
	Failed     int
}

// Sweep polls every enabled target for recent posts and enqueues the ones
// the ledger has not seen. Sweeps never overlap; a sweep that starts while
// another runs returns immediately.
func (m *Manager) Sweep(ctx context.Context) (SweepResult, error) {
	if !m.sweepMu.TryLock() {
		m.logger.Debug("sweep already in progress, skipping")
		return SweepResult{}, nil
	}
	defer m.sweepMu.Unlock()

	logger := logging.NewComponentLogger(m.logger, "sweep")
	targets, err := m.store.ListTargets(ctx, true)
	if err != nil {
		return SweepResult{}, fmt.Errorf("list targets: %w", err)
	}

	result := SweepResult{Targets: len(targets)}
	for _, target := range targets {
		discovered, skipped, err := m.sweepTarget(ctx, target.Handle)
		result.Discovered += discovered
		result.Skipped += skipped
		if err != nil {
			result.Failed++
			m.setLastError(err)
			logger.Error("target sweep failed",
				logging.String(logging.FieldTarget, target.Handle),
				logging.Error(err))
			continue
		}
		if err := m.store.TouchTargetSweep(ctx, target.Handle, time.Now().UTC()); err != nil {
			logger.Warn("record sweep time failed",
				logging.String(logging.FieldTarget, target.Handle),
				logging.Error(err))
		}
	}

	logger.Info("sweep completed",
		logging.String(logging.FieldEventType, "sweep_complete"),
		logging.Int("targets", result.Targets),
		logging.Int("discovered", result.Discovered),
		logging.Int("skipped", result.Skipped),
		logging.Int("failed", result.Failed))
	if result.Discovered > 0 || result.Failed > 0 {
		_ = m.notifier.NotifySweepCompleted(ctx, result.Discovered, result.Skipped)
	}
	return result, nil
}

func (m *Manager) sweepTarget(ctx context.Context, handle string) (discovered, skipped int, err error) {
	limit := m.cfg.Ingest.MaxPostsPerTarget
	if limit <= 0 {
		limit = 10
	}
	posts, err := m.deps.Fetcher.RecentPosts(ctx, handle, limit)
	if err != nil {
		return 0, 0, fmt.Errorf("list recent posts for %s: %w", handle, err)
	}

	for _, post := range posts {
		select {
		case <-ctx.Done():
			return discovered, skipped, ctx.Err()
		default:
		}

		existing, err := m.store.GetBySourceID(ctx, post.SourceID)
		if err != nil {
			return discovered, skipped, fmt.Errorf("look up %s: %w", post.SourceID, err)
		}
		if existing != nil {
			skipped++
			continue
		}

		// Download before inserting so the lane never claims an item whose
		// media has not landed yet.
		mediaPath, err := m.deps.Fetcher.Download(ctx, post, m.cfg.DownloadDir())
		if err != nil {
			return discovered, skipped, fmt.Errorf("download %s: %w", post.SourceID, err)
		}

		if _, err := m.store.NewItem(ctx, &ledger.Item{
			SourceID:  post.SourceID,
			Target:    handle,
			SourceURL: post.URL,
			Caption:   post.Caption,
			Author:    post.Author,
			MediaPath: mediaPath,
		}); err != nil {
			if errors.Is(err, ledger.ErrDuplicateSource) {
				skipped++
				_ = os.Remove(mediaPath)
				continue
			}
			return discovered, skipped, fmt.Errorf("enqueue %s: %w", post.SourceID, err)
		}
		discovered++
	}
	return discovered, skipped, nil
}

// TriggerSweep requests a sweep from the daemon's sweep loop without
// blocking. Returns false when a trigger is already queued.
func (m *Manager) TriggerSweep() bool {
	select {
	case m.sweepKick <- struct{}{}:
		return true
	default:
		return false
	}
}

// RunSweepLoop services manual sweep triggers until ctx is canceled. The
// periodic cadence comes from the scheduler; this loop only handles
// operator-initiated sweeps.
func (m *Manager) RunSweepLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-m.sweepKick:
			if _, err := m.Sweep(ctx); err != nil {
				m.logger.Error("triggered sweep failed", logging.Error(err))
			}
		}
	}
}
