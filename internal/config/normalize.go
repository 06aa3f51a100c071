package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	if err := c.normalizeIngest(); err != nil {
		return err
	}
	if err := c.normalizeTransform(); err != nil {
		return err
	}
	c.normalizeApproval()
	c.normalizePublish()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if c.Paths.StorageDir, err = expandPath(c.Paths.StorageDir); err != nil {
		return fmt.Errorf("paths.storage_dir: %w", err)
	}
	if c.Paths.LibraryDir, err = expandPath(c.Paths.LibraryDir); err != nil {
		return fmt.Errorf("paths.library_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	if c.Paths.APIBind == "" {
		c.Paths.APIBind = defaultAPIBind
	}
	return nil
}

func (c *Config) normalizeIngest() error {
	c.Ingest.Mode = strings.ToLower(strings.TrimSpace(c.Ingest.Mode))
	if c.Ingest.Mode == "" {
		c.Ingest.Mode = defaultIngestMode
	}
	if strings.TrimSpace(c.Ingest.SampleDir) != "" {
		var err error
		if c.Ingest.SampleDir, err = expandPath(c.Ingest.SampleDir); err != nil {
			return fmt.Errorf("ingest.sample_dir: %w", err)
		}
	}
	c.Ingest.BaseURL = strings.TrimSpace(c.Ingest.BaseURL)
	return nil
}

func (c *Config) normalizeTransform() error {
	c.Transform.Mode = strings.ToLower(strings.TrimSpace(c.Transform.Mode))
	if c.Transform.Mode == "" {
		c.Transform.Mode = defaultTransformMode
	}
	c.Transform.FFmpegBinary = strings.TrimSpace(c.Transform.FFmpegBinary)
	if c.Transform.FFmpegBinary == "" {
		c.Transform.FFmpegBinary = defaultFFmpegBinary
	}
	for name, field := range map[string]*string{
		"transform.intro_file": &c.Transform.IntroFile,
		"transform.outro_file": &c.Transform.OutroFile,
		"transform.font_file":  &c.Transform.FontFile,
	} {
		if strings.TrimSpace(*field) == "" {
			continue
		}
		expanded, err := expandPath(*field)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		*field = expanded
	}
	return nil
}

func (c *Config) normalizeApproval() {
	c.Approval.Mode = strings.ToLower(strings.TrimSpace(c.Approval.Mode))
	if c.Approval.Mode == "" {
		c.Approval.Mode = defaultApprovalMode
	}
	c.Approval.BotToken = strings.TrimSpace(c.Approval.BotToken)
	if c.Approval.BotToken == "" {
		if value, ok := os.LookupEnv("REPOST_BOT_TOKEN"); ok {
			c.Approval.BotToken = strings.TrimSpace(value)
		}
	}
}

func (c *Config) normalizePublish() {
	c.Publish.Mode = strings.ToLower(strings.TrimSpace(c.Publish.Mode))
	if c.Publish.Mode == "" {
		c.Publish.Mode = defaultPublishMode
	}
	c.Publish.Endpoint = strings.TrimSpace(c.Publish.Endpoint)
	c.Publish.AuthToken = strings.TrimSpace(c.Publish.AuthToken)
	if c.Publish.AuthToken == "" {
		if value, ok := os.LookupEnv("REPOST_PUBLISH_TOKEN"); ok {
			c.Publish.AuthToken = strings.TrimSpace(value)
		}
	}
	c.Publish.Timezone = strings.TrimSpace(c.Publish.Timezone)
	if c.Publish.Timezone == "" {
		c.Publish.Timezone = defaultPublishTimezone
	}
	windows := make([]string, 0, len(c.Publish.Windows))
	seen := make(map[string]struct{}, len(c.Publish.Windows))
	for _, window := range c.Publish.Windows {
		trimmed := strings.TrimSpace(window)
		if trimmed == "" {
			continue
		}
		if _, ok := seen[trimmed]; ok {
			continue
		}
		seen[trimmed] = struct{}{}
		windows = append(windows, trimmed)
	}
	if len(windows) > 0 {
		c.Publish.Windows = windows
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
