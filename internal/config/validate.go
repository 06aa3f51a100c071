package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateIngest(); err != nil {
		return err
	}
	if err := c.validateDedup(); err != nil {
		return err
	}
	if err := c.validateTransform(); err != nil {
		return err
	}
	if err := c.validateApproval(); err != nil {
		return err
	}
	if err := c.validatePublish(); err != nil {
		return err
	}
	if err := c.validateWorkflow(); err != nil {
		return err
	}
	return c.validateNotifications()
}

func (c *Config) validateIngest() error {
	switch c.Ingest.Mode {
	case "simulated", "instagram":
	default:
		return fmt.Errorf("ingest.mode must be %q or %q", "simulated", "instagram")
	}
	if c.Ingest.Mode == "simulated" && strings.TrimSpace(c.Ingest.SampleDir) == "" {
		return errors.New("ingest.sample_dir must be set when ingest.mode is simulated")
	}
	return ensurePositiveMap(map[string]int{
		"ingest.interval_minutes":     c.Ingest.IntervalMinutes,
		"ingest.max_posts_per_target": c.Ingest.MaxPostsPerTarget,
		"ingest.fetch_timeout":        c.Ingest.FetchTimeout,
	})
}

func (c *Config) validateDedup() error {
	if c.Dedup.Threshold < 0 || c.Dedup.Threshold > 64 {
		return errors.New("dedup.threshold must be between 0 and 64 (Hamming distance over a 64-bit fingerprint)")
	}
	return nil
}

func (c *Config) validateTransform() error {
	switch c.Transform.Mode {
	case "simulated", "ffmpeg":
	default:
		return fmt.Errorf("transform.mode must be %q or %q", "simulated", "ffmpeg")
	}
	if c.Transform.Mode == "ffmpeg" && strings.TrimSpace(c.Transform.FFmpegBinary) == "" {
		return errors.New("transform.ffmpeg_binary must be set when transform.mode is ffmpeg")
	}
	return ensurePositiveMap(map[string]int{
		"transform.target_width":  c.Transform.TargetWidth,
		"transform.target_height": c.Transform.TargetHeight,
		"transform.timeout":       c.Transform.Timeout,
	})
}

func (c *Config) validateApproval() error {
	switch c.Approval.Mode {
	case "console":
	case "telegram":
		if strings.TrimSpace(c.Approval.BotToken) == "" {
			return errors.New("approval.bot_token must be set when approval.mode is telegram")
		}
		if c.Approval.AdminChatID == 0 {
			return errors.New("approval.admin_chat_id must be set when approval.mode is telegram")
		}
	default:
		return fmt.Errorf("approval.mode must be %q or %q", "console", "telegram")
	}
	if c.Approval.PollTimeout <= 0 {
		return errors.New("approval.poll_timeout must be positive")
	}
	return nil
}

func (c *Config) validatePublish() error {
	switch c.Publish.Mode {
	case "simulated":
	case "http":
		if strings.TrimSpace(c.Publish.Endpoint) == "" {
			return errors.New("publish.endpoint must be set when publish.mode is http")
		}
		if strings.TrimSpace(c.Publish.AuthToken) == "" {
			return errors.New("publish.auth_token must be set when publish.mode is http")
		}
	default:
		return fmt.Errorf("publish.mode must be %q or %q", "simulated", "http")
	}
	if len(c.Publish.Windows) == 0 {
		return errors.New("publish.windows must include at least one HH:MM entry")
	}
	for _, window := range c.Publish.Windows {
		if _, err := time.Parse("15:04", strings.TrimSpace(window)); err != nil {
			return fmt.Errorf("publish.windows entry %q is not a valid HH:MM time", window)
		}
	}
	if c.Publish.WindowMinutes <= 0 {
		return errors.New("publish.window_minutes must be positive")
	}
	if _, err := time.LoadLocation(c.Publish.Timezone); err != nil {
		return fmt.Errorf("publish.timezone %q is not a valid IANA timezone", c.Publish.Timezone)
	}
	if c.Publish.Timeout <= 0 {
		return errors.New("publish.timeout must be positive")
	}
	return nil
}

func (c *Config) validateWorkflow() error {
	if err := ensurePositiveMap(map[string]int{
		"workflow.queue_poll_interval":  c.Workflow.QueuePollInterval,
		"workflow.error_retry_interval": c.Workflow.ErrorRetryInterval,
		"workflow.max_attempts":         c.Workflow.MaxAttempts,
		"workflow.claim_batch":          c.Workflow.ClaimBatch,
	}); err != nil {
		return err
	}
	if c.Workflow.HeartbeatInterval <= 0 {
		return errors.New("workflow.heartbeat_interval must be positive")
	}
	if c.Workflow.HeartbeatTimeout <= 0 {
		return errors.New("workflow.heartbeat_timeout must be positive")
	}
	if c.Workflow.HeartbeatTimeout <= c.Workflow.HeartbeatInterval {
		return errors.New("workflow.heartbeat_timeout must be greater than workflow.heartbeat_interval")
	}
	return nil
}

func (c *Config) validateNotifications() error {
	if c.Notifications.RequestTimeout <= 0 {
		return errors.New("notifications.request_timeout must be positive")
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
