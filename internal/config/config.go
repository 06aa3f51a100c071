package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and bind address configuration.
type Paths struct {
	StorageDir string `toml:"storage_dir"`
	LibraryDir string `toml:"library_dir"`
	LogDir     string `toml:"log_dir"`
	APIBind    string `toml:"api_bind"`
	APIToken   string `toml:"api_token"`
}

// Ingest contains configuration for polling source targets.
type Ingest struct {
	Mode              string `toml:"mode"`
	SampleDir         string `toml:"sample_dir"`
	IntervalMinutes   int    `toml:"interval_minutes"`
	MaxPostsPerTarget int    `toml:"max_posts_per_target"`
	FetchTimeout      int    `toml:"fetch_timeout"`
	BaseURL           string `toml:"base_url"`
}

// Dedup contains near-duplicate detection tunables.
type Dedup struct {
	// Threshold is the Hamming distance at or below which two fingerprints
	// are considered the same content.
	Threshold int `toml:"threshold"`
}

// Transform contains media re-encoding configuration.
type Transform struct {
	Mode         string `toml:"mode"`
	FFmpegBinary string `toml:"ffmpeg_binary"`
	TargetWidth  int    `toml:"target_width"`
	TargetHeight int    `toml:"target_height"`
	IntroFile    string `toml:"intro_file"`
	OutroFile    string `toml:"outro_file"`
	FontFile     string `toml:"font_file"`
	Timeout      int    `toml:"timeout"`
}

// Approval contains configuration for the human decision channel.
type Approval struct {
	Mode        string `toml:"mode"`
	BotToken    string `toml:"bot_token"`
	AdminChatID int64  `toml:"admin_chat_id"`
	PollTimeout int    `toml:"poll_timeout"`
}

// Publish contains configuration for releasing approved items.
type Publish struct {
	Mode          string   `toml:"mode"`
	Endpoint      string   `toml:"endpoint"`
	AuthToken     string   `toml:"auth_token"`
	ChannelTitle  string   `toml:"channel_title"`
	Windows       []string `toml:"windows"`
	WindowMinutes int      `toml:"window_minutes"`
	Timezone      string   `toml:"timezone"`
	Timeout       int      `toml:"timeout"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
	Publishes      bool   `toml:"publishes"`
	Failures       bool   `toml:"failures"`
	Duplicates     bool   `toml:"duplicates"`
	Sweeps         bool   `toml:"sweeps"`
}

// Workflow contains daemon timing, retry, and claim configuration.
type Workflow struct {
	QueuePollInterval  int `toml:"queue_poll_interval"`
	ErrorRetryInterval int `toml:"error_retry_interval"`
	HeartbeatInterval  int `toml:"heartbeat_interval"`
	HeartbeatTimeout   int `toml:"heartbeat_timeout"`
	MaxAttempts        int `toml:"max_attempts"`
	ClaimBatch         int `toml:"claim_batch"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for repost.
//
// Configuration sections by subsystem:
//   - Paths: storage/library/log directories and API bind address
//   - Ingest: target polling mode, cadence, and per-sweep caps
//   - Dedup: perceptual duplicate threshold
//   - Transform: ffmpeg re-encode settings and branding assets
//   - Approval: decision channel (telegram or console)
//   - Publish: upload endpoint and daily publish windows
//   - Notifications: ntfy push notification settings
//   - Workflow: poll intervals, heartbeats, and retry limits
//   - Logging: log format and level
type Config struct {
	Paths         Paths         `toml:"paths"`
	Ingest        Ingest        `toml:"ingest"`
	Dedup         Dedup         `toml:"dedup"`
	Transform     Transform     `toml:"transform"`
	Approval      Approval      `toml:"approval"`
	Publish       Publish       `toml:"publish"`
	Notifications Notifications `toml:"notifications"`
	Workflow      Workflow      `toml:"workflow"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/repost/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config
// has all path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("repost.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
// LibraryDir is created on a best-effort basis so the daemon can run when
// external storage is temporarily unavailable.
func (c *Config) EnsureDirectories() error {
	dirs := []string{
		c.Paths.StorageDir,
		c.Paths.LogDir,
		c.DownloadDir(),
		c.TransformDir(),
		c.ThumbnailDir(),
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	if strings.TrimSpace(c.Paths.LibraryDir) != "" {
		_ = os.MkdirAll(c.Paths.LibraryDir, 0o755)
	}
	return nil
}

// DownloadDir returns the directory holding fetched source media.
func (c *Config) DownloadDir() string {
	return filepath.Join(c.Paths.StorageDir, "downloads")
}

// TransformDir returns the directory holding re-encoded output files.
func (c *Config) TransformDir() string {
	return filepath.Join(c.Paths.StorageDir, "transforms")
}

// ThumbnailDir returns the directory holding generated thumbnails.
func (c *Config) ThumbnailDir() string {
	return filepath.Join(c.Paths.StorageDir, "thumbnails")
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
