package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"repost/internal/config"
)

func TestDefaultValidates(t *testing.T) {
	cfg := config.Default()
	cfg.Ingest.SampleDir = t.TempDir()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
}

func TestLoadMissingFileRequiresSampleDir(t *testing.T) {
	// Defaults run in simulated ingest mode, which needs a sample directory.
	path := filepath.Join(t.TempDir(), "missing.toml")
	_, _, _, err := config.Load(path)
	if err == nil || !strings.Contains(err.Error(), "ingest.sample_dir") {
		t.Fatalf("expected sample_dir validation error, got %v", err)
	}
}

func TestLoadAppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	content := "[ingest]\nsample_dir = \"" + dir + "\"\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !exists || resolved == "" {
		t.Fatalf("expected config file to be detected, got exists=%v path=%q", exists, resolved)
	}
	if cfg.Dedup.Threshold != 10 {
		t.Fatalf("expected default dedup threshold 10, got %d", cfg.Dedup.Threshold)
	}
	if cfg.Workflow.MaxAttempts != 3 {
		t.Fatalf("expected default max attempts 3, got %d", cfg.Workflow.MaxAttempts)
	}
}

func TestLoadParsesOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	content := `
[ingest]
sample_dir = "` + dir + `"
max_posts_per_target = 2

[dedup]
threshold = 5

[publish]
windows = ["09:30", "21:00"]
timezone = "America/New_York"

[workflow]
max_attempts = 7
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, _, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !exists {
		t.Fatal("expected file to exist")
	}
	if cfg.Dedup.Threshold != 5 {
		t.Fatalf("expected threshold 5, got %d", cfg.Dedup.Threshold)
	}
	if cfg.Ingest.MaxPostsPerTarget != 2 {
		t.Fatalf("expected max posts 2, got %d", cfg.Ingest.MaxPostsPerTarget)
	}
	if len(cfg.Publish.Windows) != 2 || cfg.Publish.Windows[0] != "09:30" {
		t.Fatalf("unexpected windows: %v", cfg.Publish.Windows)
	}
	if cfg.Workflow.MaxAttempts != 7 {
		t.Fatalf("expected max attempts 7, got %d", cfg.Workflow.MaxAttempts)
	}
}

func TestValidateRejectsBadWindow(t *testing.T) {
	cfg := config.Default()
	cfg.Ingest.SampleDir = t.TempDir()
	cfg.Publish.Windows = []string{"25:99"}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected invalid window to be rejected")
	}
}

func TestValidateRejectsBadThreshold(t *testing.T) {
	cfg := config.Default()
	cfg.Ingest.SampleDir = t.TempDir()
	cfg.Dedup.Threshold = 80
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected out-of-range threshold to be rejected")
	}
}

func TestEnsureDirectoriesCreatesStorageTree(t *testing.T) {
	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.StorageDir = filepath.Join(base, "storage")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Paths.LibraryDir = filepath.Join(base, "library")

	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories failed: %v", err)
	}
	for _, dir := range []string{cfg.DownloadDir(), cfg.TransformDir(), cfg.ThumbnailDir()} {
		info, err := os.Stat(dir)
		if err != nil || !info.IsDir() {
			t.Fatalf("expected directory %s to exist: %v", dir, err)
		}
	}
}
