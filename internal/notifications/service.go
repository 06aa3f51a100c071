package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"repost/internal/config"
)

const userAgent = "Repost/0.1.0"

// Service defines the operator notification surface exposed to workflow components.
type Service interface {
	NotifySweepCompleted(ctx context.Context, discovered, skipped int) error
	NotifyAwaitingReview(ctx context.Context, caption, author string) error
	NotifyPublished(ctx context.Context, title, url string) error
	NotifyDuplicate(ctx context.Context, sourceID, matchedSource string, distance int) error
	NotifyRejected(ctx context.Context, caption, reason string) error
	NotifyError(ctx context.Context, err error, context string) error
	TestNotification(ctx context.Context) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &ntfyService{
		endpoint:   topic,
		client:     &http.Client{Timeout: timeout},
		publishes:  cfg.Notifications.Publishes,
		failures:   cfg.Notifications.Failures,
		duplicates: cfg.Notifications.Duplicates,
		sweeps:     cfg.Notifications.Sweeps,
	}
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint   string
	client     *http.Client
	publishes  bool
	failures   bool
	duplicates bool
	sweeps     bool
}

func (n *ntfyService) NotifySweepCompleted(ctx context.Context, discovered, skipped int) error {
	if !n.sweeps {
		return nil
	}
	data := payload{
		title:   "Repost - Sweep Complete",
		message: fmt.Sprintf("Sweep complete: %d new posts, %d already seen", discovered, skipped),
		tags:    []string{"repost", "sweep", "completed"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyAwaitingReview(ctx context.Context, caption, author string) error {
	caption = trimCaption(caption)
	data := payload{
		title:   "Repost - Awaiting Review",
		message: fmt.Sprintf("Review needed for @%s: %s", strings.TrimSpace(author), caption),
		tags:    []string{"repost", "review", "pending"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyPublished(ctx context.Context, title, url string) error {
	if !n.publishes {
		return nil
	}
	title = strings.TrimSpace(title)
	message := fmt.Sprintf("Published: %s", title)
	if url = strings.TrimSpace(url); url != "" {
		message = fmt.Sprintf("%s\n%s", message, url)
	}
	data := payload{
		title:    "Repost - Published",
		message:  message,
		tags:     []string{"repost", "publish", "completed"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyDuplicate(ctx context.Context, sourceID, matchedSource string, distance int) error {
	if !n.duplicates {
		return nil
	}
	data := payload{
		title:   "Repost - Duplicate Skipped",
		message: fmt.Sprintf("Post %s matches %s (distance %d)", sourceID, matchedSource, distance),
		tags:    []string{"repost", "duplicate"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyRejected(ctx context.Context, caption, reason string) error {
	caption = trimCaption(caption)
	message := fmt.Sprintf("Rejected: %s", caption)
	if reason = strings.TrimSpace(reason); reason != "" {
		message = fmt.Sprintf("%s\nReason: %s", message, reason)
	}
	data := payload{
		title:   "Repost - Rejected",
		message: message,
		tags:    []string{"repost", "review", "rejected"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyError(ctx context.Context, err error, contextLabel string) error {
	if !n.failures {
		return nil
	}
	var builder strings.Builder
	builder.WriteString("Error")
	if contextLabel = strings.TrimSpace(contextLabel); contextLabel != "" {
		builder.WriteString(" with ")
		builder.WriteString(contextLabel)
	}
	builder.WriteString(": ")
	if err != nil {
		builder.WriteString(strings.TrimSpace(err.Error()))
	} else {
		builder.WriteString("unknown")
	}

	data := payload{
		title:    "Repost - Error",
		message:  builder.String(),
		tags:     []string{"repost", "error", "alert"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	data := payload{
		title:    "Repost - Test",
		message:  "Notification system test",
		tags:     []string{"repost", "test"},
		priority: "low",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) send(ctx context.Context, data payload) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.message))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func trimCaption(caption string) string {
	caption = strings.TrimSpace(caption)
	if len(caption) > 120 {
		caption = caption[:117] + "..."
	}
	if caption == "" {
		caption = "(no caption)"
	}
	return caption
}

type noopService struct{}

func (noopService) NotifySweepCompleted(context.Context, int, int) error          { return nil }
func (noopService) NotifyAwaitingReview(context.Context, string, string) error    { return nil }
func (noopService) NotifyPublished(context.Context, string, string) error         { return nil }
func (noopService) NotifyDuplicate(context.Context, string, string, int) error    { return nil }
func (noopService) NotifyRejected(context.Context, string, string) error          { return nil }
func (noopService) NotifyError(context.Context, error, string) error              { return nil }
func (noopService) TestNotification(context.Context) error                        { return nil }
