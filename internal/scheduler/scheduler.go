package scheduler

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"repost/internal/config"
	"repost/internal/logging"
)

// Scheduler runs the recurring ingest sweep and wakes the publish lane at
// each window start so queued approvals go out promptly.
type Scheduler struct {
	cron    *cron.Cron
	windows *Windows
	logger  *slog.Logger
}

// New wires sweep and window-kick jobs from configuration. The sweep callback
// runs every Ingest.IntervalMinutes; the publish kick fires at each window
// start in the windows' timezone.
func New(cfg *config.Config, windows *Windows, sweep func(), publishKick func(), logger *slog.Logger) (*Scheduler, error) {
	scheduler := &Scheduler{
		cron:    cron.New(cron.WithLocation(windows.Location())),
		windows: windows,
		logger:  logging.NewComponentLogger(logger, "scheduler"),
	}

	interval := cfg.Ingest.IntervalMinutes
	if interval <= 0 {
		interval = 60
	}
	if _, err := scheduler.cron.AddFunc(fmt.Sprintf("@every %dm", interval), sweep); err != nil {
		return nil, fmt.Errorf("schedule sweep: %w", err)
	}

	for _, slot := range windows.Slots() {
		var hour, minute int
		if _, err := fmt.Sscanf(slot, "%d:%d", &hour, &minute); err != nil {
			return nil, fmt.Errorf("schedule window %q: %w", slot, err)
		}
		spec := fmt.Sprintf("%d %d * * *", minute, hour)
		if _, err := scheduler.cron.AddFunc(spec, publishKick); err != nil {
			return nil, fmt.Errorf("schedule window %q: %w", slot, err)
		}
	}

	return scheduler, nil
}

// Start begins running scheduled jobs in their own goroutines.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("scheduler started",
		logging.Int("entries", len(s.cron.Entries())),
		logging.String("timezone", s.windows.Location().String()))
}

// Stop halts scheduling and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	select {
	case <-ctx.Done():
	case <-time.After(10 * time.Second):
		s.logger.Warn("scheduler jobs still running at shutdown")
	}
}
