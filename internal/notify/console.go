package notify

import (
	"context"
	"log/slog"

	"repost/internal/ledger"
	"repost/internal/logging"
)

// consoleNotifier logs previews and leaves resolution to the CLI or API.
// Its decision channel never yields; decisions arrive out of band through
// the approval gate's Resolve.
type consoleNotifier struct {
	logger    *slog.Logger
	decisions chan Decision
}

func newConsoleNotifier(logger *slog.Logger) *consoleNotifier {
	return &consoleNotifier{
		logger:    logging.NewComponentLogger(logger, "review"),
		decisions: make(chan Decision),
	}
}

func (c *consoleNotifier) SendPreview(ctx context.Context, item *ledger.Item, token string) error {
	c.logger.Info("review requested",
		logging.Int64(logging.FieldItemID, item.ID),
		logging.String(logging.FieldSourceID, item.SourceID),
		logging.String(logging.FieldCorrelationID, token),
		logging.String("caption", item.Caption),
		logging.String("hint", "run 'repost approve "+token+"' or 'repost reject "+token+"'"))
	return nil
}

func (c *consoleNotifier) Start(ctx context.Context) error { return nil }

func (c *consoleNotifier) Decisions() <-chan Decision { return c.decisions }

func (c *consoleNotifier) Healthy(ctx context.Context) error { return nil }
