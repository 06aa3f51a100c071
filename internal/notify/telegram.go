package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"repost/internal/ledger"
	"repost/internal/logging"
)

const (
	defaultTelegramAPI  = "https://api.telegram.org"
	approveCallbackWord = "approve"
	rejectCallbackWord  = "reject"
)

// TelegramOptions configures the Telegram review notifier.
type TelegramOptions struct {
	Token       string
	AdminChatID int64
	PollTimeout int
	// BaseURL overrides the Bot API endpoint, primarily for tests.
	BaseURL string
	Client  *http.Client
}

// telegramNotifier sends previews with inline approve/reject buttons and
// long-polls getUpdates for the operator's taps.
type telegramNotifier struct {
	opts      TelegramOptions
	client    *http.Client
	baseURL   string
	logger    *slog.Logger
	decisions chan Decision
}

// NewTelegram builds a Telegram-backed notifier.
func NewTelegram(opts TelegramOptions, logger *slog.Logger) (*telegramNotifier, error) {
	if strings.TrimSpace(opts.Token) == "" {
		return nil, errors.New("telegram notifier requires a bot token")
	}
	if opts.AdminChatID == 0 {
		return nil, errors.New("telegram notifier requires an admin chat id")
	}
	base := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if base == "" {
		base = defaultTelegramAPI
	}
	client := opts.Client
	if client == nil {
		timeout := time.Duration(opts.PollTimeout+15) * time.Second
		client = &http.Client{Timeout: timeout}
	}
	return &telegramNotifier{
		opts:      opts,
		client:    client,
		baseURL:   base,
		logger:    logging.NewComponentLogger(logger, "telegram"),
		decisions: make(chan Decision, 16),
	}, nil
}

func (t *telegramNotifier) SendPreview(ctx context.Context, item *ledger.Item, token string) error {
	keyboard := map[string]any{
		"inline_keyboard": [][]map[string]string{{
			{"text": "Approve", "callback_data": approveCallbackWord + "_" + token},
			{"text": "Reject", "callback_data": rejectCallbackWord + "_" + token},
		}},
	}
	markup, err := json.Marshal(keyboard)
	if err != nil {
		return fmt.Errorf("marshal keyboard: %w", err)
	}

	caption := fmt.Sprintf("Review #%d from @%s\n\n%s", item.ID, item.Author, strings.TrimSpace(item.Caption))
	if len(caption) > 1024 {
		caption = caption[:1021] + "..."
	}

	mediaPath := item.TransformedPath
	if mediaPath == "" {
		mediaPath = item.ThumbnailPath
	}
	if mediaPath == "" {
		return t.sendMessage(ctx, caption, string(markup))
	}
	return t.sendVideo(ctx, mediaPath, caption, string(markup))
}

func (t *telegramNotifier) sendMessage(ctx context.Context, text, markup string) error {
	values := url.Values{}
	values.Set("chat_id", strconv.FormatInt(t.opts.AdminChatID, 10))
	values.Set("text", text)
	values.Set("reply_markup", markup)

	resp, err := t.postForm(ctx, "sendMessage", values)
	if err != nil {
		return err
	}
	return checkAPIResponse("sendMessage", resp)
}

func (t *telegramNotifier) sendVideo(ctx context.Context, mediaPath, caption, markup string) error {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	_ = writer.WriteField("chat_id", strconv.FormatInt(t.opts.AdminChatID, 10))
	_ = writer.WriteField("caption", caption)
	_ = writer.WriteField("reply_markup", markup)

	f, err := os.Open(mediaPath)
	if err != nil {
		return fmt.Errorf("open preview media: %w", err)
	}
	defer f.Close()
	part, err := writer.CreateFormFile("video", filepath.Base(mediaPath))
	if err != nil {
		return fmt.Errorf("create video part: %w", err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return fmt.Errorf("copy preview media: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("finalize preview body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.methodURL("sendVideo"), &buf)
	if err != nil {
		return fmt.Errorf("build sendVideo request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("sendVideo: %w", err)
	}
	return checkAPIResponse("sendVideo", resp)
}

// Start launches the getUpdates long-poll pump. Decisions are parsed from
// callback queries on the admin chat and acknowledged immediately.
func (t *telegramNotifier) Start(ctx context.Context) error {
	go t.pump(ctx)
	return nil
}

func (t *telegramNotifier) Decisions() <-chan Decision { return t.decisions }

type update struct {
	UpdateID      int64 `json:"update_id"`
	CallbackQuery *struct {
		ID   string `json:"id"`
		From struct {
			Username  string `json:"username"`
			FirstName string `json:"first_name"`
		} `json:"from"`
		Message *struct {
			Chat struct {
				ID int64 `json:"id"`
			} `json:"chat"`
		} `json:"message"`
		Data string `json:"data"`
	} `json:"callback_query"`
}

type updatesResponse struct {
	OK     bool     `json:"ok"`
	Result []update `json:"result"`
}

func (t *telegramNotifier) pump(ctx context.Context) {
	defer close(t.decisions)

	var offset int64
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		updates, err := t.getUpdates(ctx, offset)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			t.logger.Warn("poll updates failed", logging.Error(err))
			select {
			case <-time.After(5 * time.Second):
			case <-ctx.Done():
				return
			}
			continue
		}

		for _, upd := range updates {
			if upd.UpdateID >= offset {
				offset = upd.UpdateID + 1
			}
			decision, ok := t.parseCallback(upd)
			if !ok {
				continue
			}
			t.acknowledge(ctx, upd.CallbackQuery.ID)
			select {
			case t.decisions <- decision:
			case <-ctx.Done():
				return
			}
		}
	}
}

func (t *telegramNotifier) parseCallback(upd update) (Decision, bool) {
	cb := upd.CallbackQuery
	if cb == nil || cb.Message == nil {
		return Decision{}, false
	}
	if cb.Message.Chat.ID != t.opts.AdminChatID {
		t.logger.Warn("callback from unexpected chat",
			logging.Alert("unauthorized_callback"),
			logging.Int64("chat_id", cb.Message.Chat.ID))
		return Decision{}, false
	}

	word, token, found := strings.Cut(cb.Data, "_")
	if !found || token == "" {
		return Decision{}, false
	}
	var approved bool
	switch word {
	case approveCallbackWord:
		approved = true
	case rejectCallbackWord:
		approved = false
	default:
		return Decision{}, false
	}

	resolvedBy := cb.From.Username
	if resolvedBy == "" {
		resolvedBy = cb.From.FirstName
	}
	decision := Decision{Token: token, Approved: approved, ResolvedBy: resolvedBy}
	if !approved {
		decision.Reason = "rejected via telegram"
	}
	return decision, true
}

func (t *telegramNotifier) getUpdates(ctx context.Context, offset int64) ([]update, error) {
	values := url.Values{}
	values.Set("timeout", strconv.Itoa(t.opts.PollTimeout))
	values.Set("allowed_updates", `["callback_query"]`)
	if offset > 0 {
		values.Set("offset", strconv.FormatInt(offset, 10))
	}

	resp, err := t.postForm(ctx, "getUpdates", values)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var parsed updatesResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode updates: %w", err)
	}
	if !parsed.OK {
		return nil, errors.New("telegram getUpdates returned ok=false")
	}
	return parsed.Result, nil
}

func (t *telegramNotifier) acknowledge(ctx context.Context, callbackID string) {
	values := url.Values{}
	values.Set("callback_query_id", callbackID)
	resp, err := t.postForm(ctx, "answerCallbackQuery", values)
	if err != nil {
		t.logger.Debug("acknowledge callback failed", logging.Error(err))
		return
	}
	_ = resp.Body.Close()
}

func (t *telegramNotifier) Healthy(ctx context.Context) error {
	resp, err := t.postForm(ctx, "getMe", url.Values{})
	if err != nil {
		return fmt.Errorf("telegram unreachable: %w", err)
	}
	return checkAPIResponse("getMe", resp)
}

func (t *telegramNotifier) postForm(ctx context.Context, method string, values url.Values) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.methodURL(method), strings.NewReader(values.Encode()))
	if err != nil {
		return nil, fmt.Errorf("build %s request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", method, err)
	}
	return resp, nil
}

func (t *telegramNotifier) methodURL(method string) string {
	return fmt.Sprintf("%s/bot%s/%s", t.baseURL, t.opts.Token, method)
}

func checkAPIResponse(method string, resp *http.Response) error {
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s returned %d: %s", method, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	var status struct {
		OK          bool   `json:"ok"`
		Description string `json:"description"`
	}
	if err := json.Unmarshal(body, &status); err != nil {
		return fmt.Errorf("decode %s response: %w", method, err)
	}
	if !status.OK {
		return fmt.Errorf("%s failed: %s", method, status.Description)
	}
	return nil
}
