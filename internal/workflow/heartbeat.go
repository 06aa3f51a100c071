package workflow

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"repost/internal/ledger"
	"repost/internal/logging"
)

// HeartbeatMonitor keeps claimed items visibly alive and rolls back items
// whose worker stopped heartbeating.
type HeartbeatMonitor struct {
	store    *ledger.Store
	logger   *slog.Logger
	interval time.Duration
	timeout  time.Duration
}

func NewHeartbeatMonitor(store *ledger.Store, logger *slog.Logger, interval, timeout time.Duration) *HeartbeatMonitor {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	if timeout <= interval {
		timeout = 4 * interval
	}
	return &HeartbeatMonitor{
		store:    store,
		logger:   logging.NewComponentLogger(logger, "heartbeat"),
		interval: interval,
		timeout:  timeout,
	}
}

// Interval returns the heartbeat cadence.
func (h *HeartbeatMonitor) Interval() time.Duration {
	return h.interval
}

// StartLoop refreshes the item's heartbeat until ctx is canceled. Run it in
// its own goroutine for the duration of a stage execution.
func (h *HeartbeatMonitor) StartLoop(ctx context.Context, wg *sync.WaitGroup, itemID int64) {
	defer wg.Done()
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := h.store.UpdateHeartbeat(ctx, itemID); err != nil {
				if ctx.Err() != nil {
					return
				}
				h.logger.Warn("heartbeat update failed",
					logging.Int64(logging.FieldItemID, itemID),
					logging.Error(err))
			}
		}
	}
}

// ReclaimStale rolls items with expired heartbeats back to their stage start
// status so another worker can pick them up.
func (h *HeartbeatMonitor) ReclaimStale(ctx context.Context) (int64, error) {
	cutoff := time.Now().UTC().Add(-h.timeout)
	return h.store.ReclaimStaleProcessing(ctx, cutoff)
}
