package notify_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"repost/internal/ledger"
	"repost/internal/logging"
	"repost/internal/notify"
	"repost/internal/testsupport"
)

func TestNewSelectsConsoleMode(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Approval.Mode = "console"

	notifier, err := notify.New(cfg, logging.NewNop())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	item := &ledger.Item{ID: 1, SourceID: "post-1", Caption: "hello"}
	if err := notifier.SendPreview(context.Background(), item, "tok-1"); err != nil {
		t.Fatalf("SendPreview failed: %v", err)
	}
	if err := notifier.Healthy(context.Background()); err != nil {
		t.Fatalf("Healthy failed: %v", err)
	}
	select {
	case d := <-notifier.Decisions():
		t.Fatalf("console notifier yielded decision %+v", d)
	default:
	}
}

func TestNewRejectsUnknownMode(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Approval.Mode = "carrier-pigeon"
	if _, err := notify.New(cfg, logging.NewNop()); err == nil {
		t.Fatal("expected error for unknown approval mode")
	}
}

func TestNewTelegramRequiresCredentials(t *testing.T) {
	if _, err := notify.NewTelegram(notify.TelegramOptions{AdminChatID: 7}, nil); err == nil {
		t.Fatal("expected error for missing token")
	}
	if _, err := notify.NewTelegram(notify.TelegramOptions{Token: "bot-token"}, nil); err == nil {
		t.Fatal("expected error for missing chat id")
	}
}

// botAPIStub fakes the handful of Bot API methods the notifier touches.
type botAPIStub struct {
	mu           sync.Mutex
	previews     []url.Values
	acknowledged []string
	updates      []map[string]any
	served       bool
}

func newBotAPIStub(updates []map[string]any) *botAPIStub {
	return &botAPIStub{updates: updates}
}

func (b *botAPIStub) handler(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil && !strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/") {
			t.Errorf("parse form: %v", err)
		}
		b.mu.Lock()
		defer b.mu.Unlock()
		switch {
		case strings.HasSuffix(r.URL.Path, "/getMe"):
			fmt.Fprint(w, `{"ok":true,"result":{"username":"repost_bot"}}`)
		case strings.HasSuffix(r.URL.Path, "/sendMessage"):
			b.previews = append(b.previews, r.PostForm)
			fmt.Fprint(w, `{"ok":true,"result":{}}`)
		case strings.HasSuffix(r.URL.Path, "/sendVideo"):
			if err := r.ParseMultipartForm(10 << 20); err != nil {
				t.Errorf("parse multipart: %v", err)
			}
			form := url.Values{}
			for key, vals := range r.MultipartForm.Value {
				form[key] = vals
			}
			b.previews = append(b.previews, form)
			fmt.Fprint(w, `{"ok":true,"result":{}}`)
		case strings.HasSuffix(r.URL.Path, "/answerCallbackQuery"):
			b.acknowledged = append(b.acknowledged, r.PostForm.Get("callback_query_id"))
			fmt.Fprint(w, `{"ok":true,"result":true}`)
		case strings.HasSuffix(r.URL.Path, "/getUpdates"):
			result := []map[string]any{}
			if !b.served {
				result = b.updates
				b.served = true
			}
			payload := map[string]any{"ok": true, "result": result}
			if err := json.NewEncoder(w).Encode(payload); err != nil {
				t.Errorf("encode updates: %v", err)
			}
		default:
			http.NotFound(w, r)
		}
	})
}

func TestTelegramSendPreviewUploadsVideo(t *testing.T) {
	stub := newBotAPIStub(nil)
	server := httptest.NewServer(stub.handler(t))
	t.Cleanup(server.Close)

	notifier, err := notify.NewTelegram(notify.TelegramOptions{
		Token:       "bot-token",
		AdminChatID: 42,
		PollTimeout: 1,
		BaseURL:     server.URL,
	}, logging.NewNop())
	if err != nil {
		t.Fatalf("NewTelegram failed: %v", err)
	}

	dir := t.TempDir()
	video := filepath.Join(dir, "post-1.mp4")
	testsupport.WriteFile(t, video, 2048)
	item := &ledger.Item{ID: 9, SourceID: "post-1", Author: "creator", Caption: "clip", TransformedPath: video}

	if err := notifier.SendPreview(context.Background(), item, "tok-abc"); err != nil {
		t.Fatalf("SendPreview failed: %v", err)
	}

	stub.mu.Lock()
	defer stub.mu.Unlock()
	if len(stub.previews) != 1 {
		t.Fatalf("previews = %d, want 1", len(stub.previews))
	}
	form := stub.previews[0]
	if form.Get("chat_id") != "42" {
		t.Fatalf("chat_id = %q", form.Get("chat_id"))
	}
	markup := form.Get("reply_markup")
	if !strings.Contains(markup, "approve_tok-abc") || !strings.Contains(markup, "reject_tok-abc") {
		t.Fatalf("reply markup missing callbacks: %q", markup)
	}
	if !strings.Contains(form.Get("caption"), "@creator") {
		t.Fatalf("caption = %q", form.Get("caption"))
	}
}

func TestTelegramPumpDeliversDecisions(t *testing.T) {
	updates := []map[string]any{
		{
			"update_id": 100,
			"callback_query": map[string]any{
				"id":      "cb-1",
				"from":    map[string]any{"username": "alice"},
				"message": map[string]any{"chat": map[string]any{"id": 42}},
				"data":    "approve_tok-abc",
			},
		},
		{
			// Wrong chat, must be dropped.
			"update_id": 101,
			"callback_query": map[string]any{
				"id":      "cb-2",
				"from":    map[string]any{"username": "mallory"},
				"message": map[string]any{"chat": map[string]any{"id": 777}},
				"data":    "approve_tok-abc",
			},
		},
		{
			"update_id": 102,
			"callback_query": map[string]any{
				"id":      "cb-3",
				"from":    map[string]any{"username": "alice"},
				"message": map[string]any{"chat": map[string]any{"id": 42}},
				"data":    "reject_tok-def",
			},
		},
	}
	stub := newBotAPIStub(updates)
	server := httptest.NewServer(stub.handler(t))
	t.Cleanup(server.Close)

	notifier, err := notify.NewTelegram(notify.TelegramOptions{
		Token:       "bot-token",
		AdminChatID: 42,
		PollTimeout: 0,
		BaseURL:     server.URL,
	}, logging.NewNop())
	if err != nil {
		t.Fatalf("NewTelegram failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	if err := notifier.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	var got []notify.Decision
	timeout := time.After(5 * time.Second)
	for len(got) < 2 {
		select {
		case d := <-notifier.Decisions():
			got = append(got, d)
		case <-timeout:
			t.Fatalf("timed out waiting for decisions, got %v", got)
		}
	}

	if !got[0].Approved || got[0].Token != "tok-abc" || got[0].ResolvedBy != "alice" {
		t.Fatalf("first decision = %+v", got[0])
	}
	if got[1].Approved || got[1].Token != "tok-def" {
		t.Fatalf("second decision = %+v", got[1])
	}

	stub.mu.Lock()
	acked := append([]string(nil), stub.acknowledged...)
	stub.mu.Unlock()
	if len(acked) != 2 || acked[0] != "cb-1" || acked[1] != "cb-3" {
		t.Fatalf("acknowledged = %v", acked)
	}
}

func TestTelegramHealthy(t *testing.T) {
	stub := newBotAPIStub(nil)
	server := httptest.NewServer(stub.handler(t))
	t.Cleanup(server.Close)

	notifier, err := notify.NewTelegram(notify.TelegramOptions{
		Token:       "bot-token",
		AdminChatID: 42,
		BaseURL:     server.URL,
	}, logging.NewNop())
	if err != nil {
		t.Fatalf("NewTelegram failed: %v", err)
	}
	if err := notifier.Healthy(context.Background()); err != nil {
		t.Fatalf("Healthy failed: %v", err)
	}

	server.Close()
	if err := notifier.Healthy(context.Background()); err == nil {
		t.Fatal("expected error after server shutdown")
	}
}
