package workflow

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"repost/internal/ledger"
	"repost/internal/logging"
	"repost/internal/services"
)

func (m *Manager) processItem(ctx context.Context, lane *laneState, binding stageBinding, item *ledger.Item) error {
	requestID := uuid.NewString()
	stageCtx := services.WithItemID(ctx, item.ID)
	stageCtx = services.WithStage(stageCtx, binding.name)
	stageCtx = services.WithLane(stageCtx, string(lane.kind))
	stageCtx = services.WithRequestID(stageCtx, requestID)

	stageLogger := logging.WithContext(stageCtx, lane.logger)
	stageStart := time.Now()
	stageLogger.Info("stage started",
		logging.String(logging.FieldEventType, "stage_start"),
		logging.String(logging.FieldSourceID, item.SourceID),
		logging.Int("attempts", item.Attempts))

	if err := binding.handler.Prepare(stageCtx, item); err != nil {
		m.handleStageFailure(stageCtx, stageLogger, binding, item, err)
		return err
	}

	execErr := m.executeWithHeartbeat(stageCtx, binding, item)
	if execErr != nil {
		if errors.Is(execErr, context.Canceled) {
			stageLogger.Debug("stage interrupted by shutdown")
			return execErr
		}
		m.handleStageFailure(stageCtx, stageLogger, binding, item, execErr)
		return execErr
	}

	if err := m.store.RecordSuccess(stageCtx, item, binding.done); err != nil {
		if errors.Is(err, ledger.ErrStaleClaim) {
			stageLogger.Warn("stage result discarded, claim was reclaimed",
				logging.String(logging.FieldEventType, "stale_claim"))
			return nil
		}
		m.setLastError(err)
		stageLogger.Error("persist stage result failed", logging.Error(err))
		return err
	}

	stageLogger.Info("stage completed",
		logging.String(logging.FieldEventType, "stage_complete"),
		logging.String("next_status", string(item.Status)),
		logging.Duration("stage_duration", time.Since(stageStart)))
	return nil
}

func (m *Manager) executeWithHeartbeat(ctx context.Context, binding stageBinding, item *ledger.Item) error {
	hbCtx, hbCancel := context.WithCancel(ctx)
	var hbWG sync.WaitGroup
	hbWG.Add(1)
	go m.heartbeat.StartLoop(hbCtx, &hbWG, item.ID)

	execErr := binding.handler.Execute(ctx, item)
	hbCancel()
	hbWG.Wait()
	return execErr
}

// handleStageFailure routes a stage error to its terminal or retry outcome.
// Duplicates park the item rather than failing it; everything else consumes
// an attempt and either rolls back for retry or lands in failed.
func (m *Manager) handleStageFailure(ctx context.Context, stageLogger *slog.Logger, binding stageBinding, item *ledger.Item, stageErr error) {
	if errors.Is(stageErr, services.ErrDuplicate) {
		if err := m.store.RecordDuplicate(ctx, item, item.ReviewReason); err != nil {
			if errors.Is(err, ledger.ErrStaleClaim) {
				return
			}
			m.setLastError(err)
			stageLogger.Error("record duplicate failed", logging.Error(err))
			return
		}
		stageLogger.Info("duplicate parked",
			logging.String(logging.FieldEventType, "duplicate"),
			logging.String(logging.FieldSourceID, item.SourceID),
			logging.String("reason", item.ReviewReason))
		return
	}

	retryable := services.Retryable(stageErr)
	next, err := m.store.RecordFailure(ctx, item, stageErr.Error(), retryable, m.maxAttempts)
	if err != nil {
		if errors.Is(err, ledger.ErrStaleClaim) {
			return
		}
		m.setLastError(err)
		stageLogger.Error("record failure failed", logging.Error(err))
		return
	}
	m.setLastError(stageErr)

	if next == ledger.StatusFailed {
		stageLogger.Error("stage failed permanently",
			logging.Error(stageErr),
			logging.String(logging.FieldEventType, "stage_failed"),
			logging.String(logging.FieldErrorKind, services.Kind(stageErr)),
			logging.Int("attempts", item.Attempts))
		if notifyErr := m.notifier.NotifyError(ctx, stageErr, binding.name+" stage"); notifyErr != nil {
			stageLogger.Warn("failure notification not delivered", logging.Error(notifyErr))
		}
		return
	}
	stageLogger.Warn("stage failed, will retry",
		logging.Error(stageErr),
		logging.String(logging.FieldEventType, "stage_retry"),
		logging.String("retry_status", string(next)),
		logging.Int("attempts", item.Attempts),
		logging.Int("max_attempts", m.maxAttempts))
}
