// Package daemon ties the ledger, workflow manager, scheduler, approval
// gate, and HTTP API into a single lifecycle with flock-based locking to
// prevent multiple instances sharing one ledger.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/gofrs/flock"

	"repost/internal/approval"
	"repost/internal/config"
	"repost/internal/dedup"
	"repost/internal/fetch"
	"repost/internal/ledger"
	"repost/internal/logging"
	"repost/internal/media"
	"repost/internal/notifications"
	"repost/internal/notify"
	"repost/internal/publish"
	"repost/internal/scheduler"
	"repost/internal/workflow"
)

type Daemon struct {
	cfg       *config.Config
	logger    *slog.Logger
	store     *ledger.Store
	engine    *dedup.Engine
	gate      *approval.Gate
	reviewer  notify.Notifier
	manager   *workflow.Manager
	scheduler *scheduler.Scheduler
	api       *apiServer

	lockPath string
	lock     *flock.Flock

	running atomic.Bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// Status reports daemon runtime information for the CLI and API.
type Status struct {
	Running      bool            `json:"running"`
	Workflow     workflow.Status `json:"workflow"`
	LedgerPath   string          `json:"ledger_path"`
	LockFilePath string          `json:"lock_file_path"`
	APIBind      string          `json:"api_bind,omitempty"`
}

// New builds a daemon with all collaborators wired from configuration.
func New(cfg *config.Config, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil {
		return nil, errors.New("daemon requires configuration")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, err
	}

	store, err := ledger.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}

	fetcher, err := fetch.New(cfg)
	if err != nil {
		store.Close()
		return nil, err
	}
	transformer, err := media.New(cfg)
	if err != nil {
		store.Close()
		return nil, err
	}
	publisher, err := publish.New(cfg)
	if err != nil {
		store.Close()
		return nil, err
	}
	reviewer, err := notify.New(cfg, logger)
	if err != nil {
		store.Close()
		return nil, err
	}
	windows, err := scheduler.ParseWindows(cfg.Publish.Windows, cfg.Publish.WindowMinutes, cfg.Publish.Timezone)
	if err != nil {
		store.Close()
		return nil, err
	}

	engine := dedup.NewEngine(store, cfg.Dedup.Threshold, logger)
	gate := approval.NewGate(store, reviewer, logger)
	manager := workflow.NewManager(cfg, store, workflow.Dependencies{
		Fetcher:     fetcher,
		Transformer: transformer,
		Engine:      engine,
		Gate:        gate,
		Publisher:   publisher,
		Windows:     windows,
		Notifier:    notifications.NewService(cfg),
	}, logger)

	sched, err := scheduler.New(cfg, windows,
		func() { manager.TriggerSweep() },
		manager.KickPublish,
		logger)
	if err != nil {
		store.Close()
		return nil, err
	}

	lockPath := filepath.Join(cfg.Paths.StorageDir, "repostd.lock")
	d := &Daemon{
		cfg:       cfg,
		logger:    logging.NewComponentLogger(logger, "daemon"),
		store:     store,
		engine:    engine,
		gate:      gate,
		reviewer:  reviewer,
		manager:   manager,
		scheduler: sched,
		lockPath:  lockPath,
		lock:      flock.New(lockPath),
	}
	d.api, err = newAPIServer(cfg, d, logger)
	if err != nil {
		store.Close()
		return nil, err
	}
	return d, nil
}

// Start acquires the instance lock, recovers interrupted work, and launches
// all background services.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another repost daemon instance is already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel

	fail := func(err error) error {
		cancel()
		d.cancel = nil
		_ = d.lock.Unlock()
		return err
	}

	// Items left in-flight by a crash roll back to their stage start.
	reset, err := d.store.ResetStuckProcessing(runCtx)
	if err != nil {
		return fail(fmt.Errorf("reset stuck items: %w", err))
	}
	if reset > 0 {
		d.logger.Info("recovered interrupted items", logging.Int64("items", reset))
	}

	if err := d.engine.Load(runCtx); err != nil {
		return fail(fmt.Errorf("load fingerprint index: %w", err))
	}

	if err := d.reviewer.Start(runCtx); err != nil {
		return fail(fmt.Errorf("start review channel: %w", err))
	}
	d.wg.Add(2)
	go func() {
		defer d.wg.Done()
		d.gate.Run(runCtx)
	}()
	go func() {
		defer d.wg.Done()
		d.manager.RunSweepLoop(runCtx)
	}()

	if err := d.manager.Start(runCtx); err != nil {
		return fail(fmt.Errorf("start workflow: %w", err))
	}
	d.scheduler.Start()

	if err := d.api.start(runCtx); err != nil {
		d.scheduler.Stop()
		d.manager.Stop()
		return fail(err)
	}

	// Ingest promptly instead of waiting a full interval.
	d.manager.TriggerSweep()

	d.running.Store(true)
	d.logger.Info("repost daemon started", logging.String("lock", d.lockPath))
	return nil
}

// Stop halts background services and releases the instance lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.scheduler.Stop()
	d.manager.Stop()
	d.api.stop()
	d.wg.Wait()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("release daemon lock failed", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("repost daemon stopped")
}

// Close stops the daemon and releases the ledger.
func (d *Daemon) Close() error {
	d.Stop()
	if d.store != nil {
		return d.store.Close()
	}
	return nil
}

// Status returns current daemon and pipeline state.
func (d *Daemon) Status(ctx context.Context) (Status, error) {
	snapshot, err := d.manager.Snapshot(ctx)
	if err != nil {
		return Status{}, err
	}
	return Status{
		Running:      d.running.Load(),
		Workflow:     snapshot,
		LedgerPath:   d.store.Path(),
		LockFilePath: d.lockPath,
		APIBind:      d.cfg.Paths.APIBind,
	}, nil
}

// TriggerSweep requests an immediate ingest sweep.
func (d *Daemon) TriggerSweep() bool {
	return d.manager.TriggerSweep()
}

// Resolve applies a review decision through the approval gate.
func (d *Daemon) Resolve(ctx context.Context, token string, approved bool, resolvedBy, reason string) (*ledger.Item, error) {
	return d.gate.Resolve(ctx, token, approved, resolvedBy, reason)
}

// APIAddr returns the bound API address once the daemon is running. Useful
// when the configured bind uses an ephemeral port.
func (d *Daemon) APIAddr() string {
	return d.api.addr()
}
