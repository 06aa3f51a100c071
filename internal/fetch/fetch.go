package fetch

import (
	"context"
	"fmt"
	"strings"

	"repost/internal/config"
)

// Post is a discovered source post not yet pulled into the pipeline.
type Post struct {
	SourceID string
	URL      string
	MediaURL string
	Caption  string
	Author   string
}

// Fetcher discovers recent posts for a target and downloads their media.
type Fetcher interface {
	// RecentPosts lists up to limit posts for a target handle, newest first.
	RecentPosts(ctx context.Context, handle string, limit int) ([]Post, error)
	// Download pulls the post's media into destDir and returns the local path.
	Download(ctx context.Context, post Post, destDir string) (string, error)
	// Healthy reports whether the fetcher can reach its source.
	Healthy(ctx context.Context) error
}

// New selects a fetcher implementation from configuration.
func New(cfg *config.Config) (Fetcher, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Ingest.Mode)) {
	case "simulated":
		return newSimulatedFetcher(cfg.Ingest.SampleDir)
	case "instagram":
		return newInstagramFetcher(cfg), nil
	default:
		return nil, fmt.Errorf("unknown ingest mode %q", cfg.Ingest.Mode)
	}
}
