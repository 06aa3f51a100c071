package testsupport

import (
	"path/filepath"
	"testing"

	"repost/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.StorageDir = filepath.Join(base, "storage")
	cfgVal.Paths.LibraryDir = filepath.Join(base, "library")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.APIBind = "127.0.0.1:0"
	cfgVal.Ingest.SampleDir = filepath.Join(base, "samples")

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithDedupThreshold overrides the Hamming distance threshold on the test config.
func WithDedupThreshold(threshold int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Dedup.Threshold = threshold
	}
}

// WithMaxAttempts overrides the stage attempt budget on the test config.
func WithMaxAttempts(attempts int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Workflow.MaxAttempts = attempts
	}
}

// WithPublishWindows overrides the publish windows on the test config.
func WithPublishWindows(windows []string, windowMinutes int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Publish.Windows = windows
		b.cfg.Publish.WindowMinutes = windowMinutes
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.StorageDir)
}
