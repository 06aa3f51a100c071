package workflow

import (
	"context"
	"time"

	"repost/internal/ledger"
	"repost/internal/stage"
)

// Status is a point-in-time snapshot of the pipeline for the CLI and API.
type Status struct {
	Running        bool                  `json:"running"`
	Worker         string                `json:"worker"`
	LastError      string                `json:"last_error,omitempty"`
	Queue          ledger.HealthSummary  `json:"queue"`
	Counts         map[ledger.Status]int `json:"counts"`
	Fingerprints   int                   `json:"fingerprints"`
	Targets        int                   `json:"targets"`
	WindowOpen     bool                  `json:"window_open"`
	NextWindow     time.Time             `json:"next_window"`
	PublishWindows []string              `json:"publish_windows,omitempty"`
}

// Snapshot collects queue counts and window state.
func (m *Manager) Snapshot(ctx context.Context) (Status, error) {
	counts, err := m.store.Stats(ctx)
	if err != nil {
		return Status{}, err
	}
	summary, err := m.store.Health(ctx)
	if err != nil {
		return Status{}, err
	}
	targets, err := m.store.ListTargets(ctx, false)
	if err != nil {
		return Status{}, err
	}

	now := time.Now()
	status := Status{
		Running:        m.Running(),
		Worker:         m.worker,
		Queue:          summary,
		Counts:         counts,
		Fingerprints:   m.deps.Engine.Size(),
		Targets:        len(targets),
		WindowOpen:     m.deps.Windows.Open(now),
		NextWindow:     m.deps.Windows.Next(now),
		PublishWindows: m.deps.Windows.Slots(),
	}
	if err := m.LastError(); err != nil {
		status.LastError = err.Error()
	}
	return status, nil
}

// Health runs every stage's health check plus the ingest fetcher's.
func (m *Manager) Health(ctx context.Context) []stage.Health {
	var checks []stage.Health
	if err := m.deps.Fetcher.Healthy(ctx); err != nil {
		checks = append(checks, stage.Unhealthy("ingest", err.Error()))
	} else {
		checks = append(checks, stage.Healthy("ingest"))
	}
	for _, lane := range m.lanes {
		for _, binding := range lane.bindings {
			checks = append(checks, binding.handler.HealthCheck(ctx))
		}
	}
	return checks
}
