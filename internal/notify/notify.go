// Package notify delivers review previews to a human and carries their
// approve/reject decisions back, over Telegram or the console.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"repost/internal/config"
	"repost/internal/ledger"
)

// Decision is a human verdict on an outstanding review request.
type Decision struct {
	Token      string
	Approved   bool
	ResolvedBy string
	Reason     string
}

// Notifier is the review channel between the pipeline and its operator.
type Notifier interface {
	// SendPreview presents an item for review, correlated by token.
	SendPreview(ctx context.Context, item *ledger.Item, token string) error
	// Start begins listening for decisions. It returns once listening is
	// underway; decisions arrive on Decisions until ctx is canceled.
	Start(ctx context.Context) error
	// Decisions streams verdicts as the operator makes them.
	Decisions() <-chan Decision
	// Healthy reports whether the review channel is reachable.
	Healthy(ctx context.Context) error
}

// New selects a notifier implementation from configuration.
func New(cfg *config.Config, logger *slog.Logger) (Notifier, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Approval.Mode)) {
	case "console":
		return newConsoleNotifier(logger), nil
	case "telegram":
		return NewTelegram(TelegramOptions{
			Token:       cfg.Approval.BotToken,
			AdminChatID: cfg.Approval.AdminChatID,
			PollTimeout: cfg.Approval.PollTimeout,
		}, logger)
	default:
		return nil, fmt.Errorf("unknown approval mode %q", cfg.Approval.Mode)
	}
}
