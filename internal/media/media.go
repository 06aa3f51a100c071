package media

import (
	"context"
	"fmt"
	"strings"

	"repost/internal/config"
	"repost/internal/ledger"
)

// Output is what a transform produces: the publishable video and its
// thumbnail with the credit overlay.
type Output struct {
	VideoPath     string
	ThumbnailPath string
}

// Transformer converts downloaded source media into publishable form.
type Transformer interface {
	Transform(ctx context.Context, item *ledger.Item) (Output, error)
	Healthy(ctx context.Context) error
}

// New selects a transformer implementation from configuration.
func New(cfg *config.Config) (Transformer, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Transform.Mode)) {
	case "simulated":
		return newSimulatedTransformer(cfg), nil
	case "ffmpeg":
		return newFFmpegTransformer(cfg), nil
	default:
		return nil, fmt.Errorf("unknown transform mode %q", cfg.Transform.Mode)
	}
}
