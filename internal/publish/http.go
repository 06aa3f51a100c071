package publish

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"repost/internal/config"
	"repost/internal/ledger"
	"repost/internal/services"
)

// httpPublisher uploads the video and its metadata as one multipart request.
// Responses classify into the retry taxonomy: 429 and 5xx are transient,
// other 4xx are permanent.
type httpPublisher struct {
	client   *http.Client
	endpoint string
	token    string
}

func newHTTPPublisher(cfg *config.Config) (*httpPublisher, error) {
	endpoint := strings.TrimSpace(cfg.Publish.Endpoint)
	if endpoint == "" {
		return nil, errors.New("http publish mode requires an endpoint")
	}
	timeout := time.Duration(cfg.Publish.Timeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}
	return &httpPublisher{
		client:   &http.Client{Timeout: timeout},
		endpoint: endpoint,
		token:    cfg.Publish.AuthToken,
	}, nil
}

type uploadResponse struct {
	URL   string `json:"url"`
	ID    string `json:"id"`
	Error string `json:"error"`
}

func (p *httpPublisher) Publish(ctx context.Context, item *ledger.Item, meta Metadata) (Result, error) {
	videoPath := item.TransformedPath
	if strings.TrimSpace(videoPath) == "" {
		return Result{}, services.Wrap(services.ErrValidation, "publish", "input", "item has no transformed media", nil)
	}

	body, contentType, err := p.buildBody(videoPath, item.ThumbnailPath, meta)
	if err != nil {
		return Result{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, body)
	if err != nil {
		return Result{}, fmt.Errorf("build upload request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	if p.token != "" {
		req.Header.Set("Authorization", "Bearer "+p.token)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return Result{}, services.Wrap(services.ErrTransient, "publish", "upload", "sending upload", err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	switch {
	case resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusCreated:
		var parsed uploadResponse
		if err := json.Unmarshal(raw, &parsed); err != nil {
			return Result{}, services.Wrap(services.ErrTransient, "publish", "upload", "decoding upload response", err)
		}
		if parsed.URL == "" {
			return Result{}, services.Wrap(services.ErrTransient, "publish", "upload", "upload response missing url", nil)
		}
		return Result{URL: parsed.URL}, nil
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return Result{}, services.Wrap(services.ErrTransient, "publish", "upload",
			fmt.Sprintf("endpoint returned %d: %s", resp.StatusCode, strings.TrimSpace(string(raw))), nil)
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return Result{}, services.Wrap(services.ErrConfiguration, "publish", "upload",
			fmt.Sprintf("endpoint rejected credentials (%d)", resp.StatusCode), nil)
	default:
		return Result{}, services.Wrap(services.ErrPermanent, "publish", "upload",
			fmt.Sprintf("endpoint returned %d: %s", resp.StatusCode, strings.TrimSpace(string(raw))), nil)
	}
}

func (p *httpPublisher) buildBody(videoPath, thumbnailPath string, meta Metadata) (io.Reader, string, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	fields := map[string]string{
		"title":       meta.Title,
		"description": meta.Description,
		"tags":        strings.Join(meta.Tags, ","),
	}
	for key, value := range fields {
		if err := writer.WriteField(key, value); err != nil {
			return nil, "", fmt.Errorf("write field %s: %w", key, err)
		}
	}

	if err := attachFile(writer, "video", videoPath); err != nil {
		return nil, "", err
	}
	if thumbnailPath != "" {
		if err := attachFile(writer, "thumbnail", thumbnailPath); err != nil {
			return nil, "", err
		}
	}
	if err := writer.Close(); err != nil {
		return nil, "", fmt.Errorf("finalize multipart body: %w", err)
	}
	return &buf, writer.FormDataContentType(), nil
}

func attachFile(writer *multipart.Writer, field, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return services.Wrap(services.ErrValidation, "publish", "attach", "opening "+field, err)
	}
	defer f.Close()

	part, err := writer.CreateFormFile(field, filepath.Base(path))
	if err != nil {
		return fmt.Errorf("create %s part: %w", field, err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return fmt.Errorf("copy %s: %w", field, err)
	}
	return nil
}

func (p *httpPublisher) Healthy(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, p.endpoint, nil)
	if err != nil {
		return err
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("publish endpoint unreachable: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode >= 500 {
		return fmt.Errorf("publish endpoint returned %d", resp.StatusCode)
	}
	return nil
}
