package publish

import (
	"context"
	"fmt"
	"strings"

	"repost/internal/config"
	"repost/internal/ledger"
)

// Result reports where published content can be found.
type Result struct {
	URL string
}

// Publisher uploads approved content to the destination platform.
type Publisher interface {
	Publish(ctx context.Context, item *ledger.Item, meta Metadata) (Result, error)
	Healthy(ctx context.Context) error
}

// New selects a publisher implementation from configuration.
func New(cfg *config.Config) (Publisher, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Publish.Mode)) {
	case "simulated":
		return newLibraryPublisher(cfg.Paths.LibraryDir), nil
	case "http":
		return newHTTPPublisher(cfg)
	default:
		return nil, fmt.Errorf("unknown publish mode %q", cfg.Publish.Mode)
	}
}
