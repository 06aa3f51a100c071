// Package approval issues review requests and applies the operator's
// decisions to the ledger exactly once.
package approval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"repost/internal/ledger"
	"repost/internal/logging"
	"repost/internal/notify"
	"repost/internal/services"
)

// Gate couples the decision channel to the ledger. Every awaiting item has at
// most one outstanding token, and the first decision for a token wins.
type Gate struct {
	store    *ledger.Store
	notifier notify.Notifier
	logger   *slog.Logger
}

func NewGate(store *ledger.Store, notifier notify.Notifier, logger *slog.Logger) *Gate {
	return &Gate{
		store:    store,
		notifier: notifier,
		logger:   logging.NewComponentLogger(logger, "approval"),
	}
}

// Request issues a review token for the item and dispatches the preview.
// Re-dispatch for an item with an outstanding request reuses the existing
// token, so a crashed dispatch retried later never double-books a review.
func (g *Gate) Request(ctx context.Context, item *ledger.Item) (*ledger.Approval, error) {
	token := uuid.NewString()
	approval, err := g.store.CreateApproval(ctx, item.ID, token)
	if errors.Is(err, ledger.ErrOutstandingApproval) {
		approval, err = g.store.PendingApprovalForItem(ctx, item.ID)
		if err == nil && approval == nil {
			err = fmt.Errorf("outstanding approval for item %d vanished", item.ID)
		}
	}
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "review", "request", "create approval", err)
	}

	if err := g.notifier.SendPreview(ctx, item, approval.Token); err != nil {
		return nil, services.Wrap(services.ErrTransient, "review", "request", "send preview", err)
	}

	g.logger.Info("review requested",
		logging.Int64(logging.FieldItemID, item.ID),
		logging.String(logging.FieldSourceID, item.SourceID),
		logging.String(logging.FieldCorrelationID, approval.Token))
	return approval, nil
}

// Resolve applies a decision for a token. Replays surface ErrAlreadyResolved
// and tokens never issued surface ErrUnknownToken; both leave the ledger
// untouched.
func (g *Gate) Resolve(ctx context.Context, token string, approved bool, resolvedBy, reason string) (*ledger.Item, error) {
	item, err := g.store.ResolveApproval(ctx, token, approved, resolvedBy, reason)
	if err != nil {
		return nil, err
	}
	g.logger.Info("review resolved",
		logging.Int64(logging.FieldItemID, item.ID),
		logging.String(logging.FieldCorrelationID, token),
		logging.Bool("approved", approved),
		logging.String("resolved_by", resolvedBy))
	return item, nil
}

// Run pumps decisions from the notifier into the ledger until ctx is
// canceled or the decision stream closes. Replayed or unknown tokens are
// logged and dropped.
func (g *Gate) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case decision, ok := <-g.notifier.Decisions():
			if !ok {
				return
			}
			g.apply(ctx, decision)
		}
	}
}

func (g *Gate) apply(ctx context.Context, decision notify.Decision) {
	_, err := g.Resolve(ctx, decision.Token, decision.Approved, decision.ResolvedBy, decision.Reason)
	switch {
	case err == nil:
	case errors.Is(err, ledger.ErrAlreadyResolved):
		g.logger.Warn("decision replay ignored",
			logging.String(logging.FieldCorrelationID, decision.Token),
			logging.String("resolved_by", decision.ResolvedBy))
	case errors.Is(err, ledger.ErrUnknownToken):
		g.logger.Warn("decision for unknown token ignored",
			logging.Alert("unknown_review_token"),
			logging.String(logging.FieldCorrelationID, decision.Token))
	default:
		g.logger.Error("apply decision failed",
			logging.String(logging.FieldCorrelationID, decision.Token),
			logging.Error(err))
	}
}
