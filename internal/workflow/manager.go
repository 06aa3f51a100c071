// Package workflow coordinates ledger items through the pipeline stages:
// transform, duplicate check, review dispatch, and publication.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"repost/internal/approval"
	"repost/internal/config"
	"repost/internal/dedup"
	"repost/internal/fetch"
	"repost/internal/ledger"
	"repost/internal/logging"
	"repost/internal/media"
	"repost/internal/notifications"
	"repost/internal/publish"
	"repost/internal/scheduler"
	"repost/internal/stage"
)

// stageBinding ties a claimable status to the handler that advances it.
type stageBinding struct {
	name       string
	from       ledger.Status
	processing ledger.Status
	done       ledger.Status
	handler    stage.Handler
}

// laneState groups the bindings one goroutine works through. The foreground
// lane prepares content; the background lane publishes it, so a slow upload
// never starves ingest work.
type laneState struct {
	kind     ledger.ProcessingLane
	bindings []stageBinding
	logger   *slog.Logger
	kick     chan struct{}
}

// Dependencies are the collaborators the manager drives.
type Dependencies struct {
	Fetcher     fetch.Fetcher
	Transformer media.Transformer
	Engine      *dedup.Engine
	Gate        *approval.Gate
	Publisher   publish.Publisher
	Windows     *scheduler.Windows
	Notifier    notifications.Service
}

// Manager claims items from the ledger and runs them through their next
// stage. One goroutine per lane; claims are atomic, so several managers can
// share a ledger without double-processing.
type Manager struct {
	cfg      *config.Config
	store    *ledger.Store
	deps     Dependencies
	logger   *slog.Logger
	worker   string
	notifier notifications.Service

	pollInterval  time.Duration
	retryInterval time.Duration
	claimBatch    int
	maxAttempts   int

	heartbeat *HeartbeatMonitor
	lanes     []*laneState

	sweepMu   sync.Mutex
	sweepKick chan struct{}

	mu      sync.RWMutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	lastErr error
}

// NewManager wires the pipeline stages from configuration and collaborators.
func NewManager(cfg *config.Config, store *ledger.Store, deps Dependencies, logger *slog.Logger) *Manager {
	if deps.Notifier == nil {
		deps.Notifier = notifications.NewService(cfg)
	}
	if deps.Windows == nil {
		deps.Windows = scheduler.Always()
	}

	hostname, err := os.Hostname()
	if err != nil || hostname == "" {
		hostname = "repost"
	}
	worker := fmt.Sprintf("%s-%d", hostname, os.Getpid())

	m := &Manager{
		cfg:           cfg,
		store:         store,
		deps:          deps,
		logger:        logging.NewComponentLogger(logger, "workflow"),
		worker:        worker,
		notifier:      deps.Notifier,
		pollInterval:  secondsOrDefault(cfg.Workflow.QueuePollInterval, 5),
		retryInterval: secondsOrDefault(cfg.Workflow.ErrorRetryInterval, 10),
		claimBatch:    intOrDefault(cfg.Workflow.ClaimBatch, 1),
		maxAttempts:   intOrDefault(cfg.Workflow.MaxAttempts, 3),
		heartbeat: NewHeartbeatMonitor(
			store,
			logger,
			secondsOrDefault(cfg.Workflow.HeartbeatInterval, 15),
			secondsOrDefault(cfg.Workflow.HeartbeatTimeout, 120),
		),
		sweepKick: make(chan struct{}, 1),
	}

	foreground := &laneState{
		kind: ledger.LaneForeground,
		kick: make(chan struct{}, 1),
		bindings: []stageBinding{
			{
				name:       "transform",
				from:       ledger.StatusPending,
				processing: ledger.StatusTransforming,
				done:       ledger.StatusTransformed,
				handler:    newTransformStage(deps.Transformer),
			},
			{
				name:       "dedup",
				from:       ledger.StatusTransformed,
				processing: ledger.StatusDedupChecking,
				done:       ledger.StatusDeduped,
				handler:    newDedupStage(deps.Engine, deps.Notifier),
			},
			{
				name:       "review",
				from:       ledger.StatusDeduped,
				processing: ledger.StatusReviewDispatching,
				done:       ledger.StatusAwaitingReview,
				handler:    newReviewStage(deps.Gate, deps.Notifier),
			},
		},
	}
	background := &laneState{
		kind: ledger.LaneBackground,
		kick: make(chan struct{}, 1),
		bindings: []stageBinding{
			{
				name:       "publish",
				from:       ledger.StatusApproved,
				processing: ledger.StatusPublishing,
				done:       ledger.StatusPublished,
				handler:    newPublishStage(store, deps.Publisher, cfg.Publish.ChannelTitle, deps.Notifier),
			},
		},
	}
	m.lanes = []*laneState{foreground, background}
	return m
}

// Start launches the lane workers and the stale-claim reclaimer.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return errors.New("workflow already running")
	}
	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.running = true
	for _, lane := range m.lanes {
		lane.logger = m.logger.With(logging.String(logging.FieldLane, string(lane.kind)))
	}
	m.wg.Add(len(m.lanes) + 1)
	m.mu.Unlock()

	for _, lane := range m.lanes {
		go m.runLane(runCtx, lane)
	}
	go m.runReclaimer(runCtx)

	m.logger.Info("workflow started", logging.String("worker", m.worker))
	return nil
}

// Stop halts processing and waits for in-flight stages to finish.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	cancel := m.cancel
	m.running = false
	m.cancel = nil
	m.mu.Unlock()

	cancel()
	m.wg.Wait()
	m.logger.Info("workflow stopped")
}

// Running reports whether lane workers are active.
func (m *Manager) Running() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.running
}

// KickPublish wakes the background lane, typically at a window start.
func (m *Manager) KickPublish() {
	for _, lane := range m.lanes {
		if lane.kind == ledger.LaneBackground {
			select {
			case lane.kick <- struct{}{}:
			default:
			}
		}
	}
}

func (m *Manager) runLane(ctx context.Context, lane *laneState) {
	defer m.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		worked, err := m.workOnce(ctx, lane)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			m.setLastError(err)
			lane.logger.Error("lane pass failed",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check ledger database access"))
			m.sleepOrKick(ctx, lane, m.retryInterval)
			continue
		}
		if !worked {
			m.sleepOrKick(ctx, lane, m.pollInterval)
		}
	}
}

// workOnce claims and processes at most one batch across the lane's bindings.
// It reports whether any item was processed.
func (m *Manager) workOnce(ctx context.Context, lane *laneState) (bool, error) {
	worked := false
	for _, binding := range lane.bindings {
		if lane.kind == ledger.LaneBackground && !m.deps.Windows.Open(time.Now()) {
			continue
		}
		items, err := m.store.ClaimNext(ctx, m.worker, binding.from, binding.processing, m.claimBatch)
		if err != nil {
			return worked, fmt.Errorf("claim %s items: %w", binding.from, err)
		}
		for _, item := range items {
			if err := m.processItem(ctx, lane, binding, item); err != nil {
				if errors.Is(err, context.Canceled) {
					return worked, err
				}
			}
			worked = true
		}
	}
	return worked, nil
}

func (m *Manager) sleepOrKick(ctx context.Context, lane *laneState, wait time.Duration) {
	if lane.kind == ledger.LaneBackground && !m.deps.Windows.Unrestricted() {
		// Outside a window there is nothing to poll for; sleep until the
		// next window unless a kick arrives first.
		now := time.Now()
		if !m.deps.Windows.Open(now) {
			if until := m.deps.Windows.Next(now).Sub(now); until > wait {
				wait = until
			}
		}
	}
	select {
	case <-ctx.Done():
	case <-lane.kick:
	case <-time.After(wait):
	}
}

func (m *Manager) runReclaimer(ctx context.Context) {
	defer m.wg.Done()
	ticker := time.NewTicker(m.heartbeat.Interval())
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			reclaimed, err := m.heartbeat.ReclaimStale(ctx)
			if err != nil {
				m.logger.Warn("reclaim stale items failed",
					logging.Error(err),
					logging.String(logging.FieldEventType, "heartbeat_reclaim_failed"))
				continue
			}
			if reclaimed > 0 {
				m.logger.Info("reclaimed stale items",
					logging.Int64("reclaimed", reclaimed),
					logging.String(logging.FieldEventType, "heartbeat_reclaim"))
			}
		}
	}
}

func (m *Manager) setLastError(err error) {
	m.mu.Lock()
	m.lastErr = err
	m.mu.Unlock()
}

// LastError returns the most recent lane failure, if any.
func (m *Manager) LastError() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastErr
}

func secondsOrDefault(value, fallback int) time.Duration {
	if value <= 0 {
		value = fallback
	}
	return time.Duration(value) * time.Second
}

func intOrDefault(value, fallback int) int {
	if value <= 0 {
		return fallback
	}
	return value
}
