package approval_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"repost/internal/approval"
	"repost/internal/ledger"
	"repost/internal/logging"
	"repost/internal/notify"
	"repost/internal/testsupport"
)

// recordingNotifier captures previews and lets tests inject decisions.
type recordingNotifier struct {
	mu        sync.Mutex
	previews  []string
	failNext  bool
	decisions chan notify.Decision
}

func newRecordingNotifier() *recordingNotifier {
	return &recordingNotifier{decisions: make(chan notify.Decision, 4)}
}

func (r *recordingNotifier) SendPreview(ctx context.Context, item *ledger.Item, token string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failNext {
		r.failNext = false
		return errors.New("preview channel down")
	}
	r.previews = append(r.previews, token)
	return nil
}

func (r *recordingNotifier) Start(ctx context.Context) error { return nil }

func (r *recordingNotifier) Decisions() <-chan notify.Decision { return r.decisions }

func (r *recordingNotifier) Healthy(ctx context.Context) error { return nil }

func (r *recordingNotifier) tokens() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.previews...)
}

func awaitingItem(t *testing.T, store *ledger.Store, sourceID string) *ledger.Item {
	t.Helper()
	item := testsupport.SeedItem(t, store, sourceID)
	item.Status = ledger.StatusAwaitingReview
	if err := store.Update(context.Background(), item); err != nil {
		t.Fatalf("move item to awaiting review: %v", err)
	}
	return item
}

func TestRequestIssuesTokenAndSendsPreview(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	notifier := newRecordingNotifier()
	gate := approval.NewGate(store, notifier, logging.NewNop())

	item := testsupport.SeedItem(t, store, "post-1")
	approvalRow, err := gate.Request(context.Background(), item)
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	if approvalRow.Token == "" || approvalRow.Status != ledger.ApprovalPending {
		t.Fatalf("approval = %+v", approvalRow)
	}
	tokens := notifier.tokens()
	if len(tokens) != 1 || tokens[0] != approvalRow.Token {
		t.Fatalf("previews = %v, want [%s]", tokens, approvalRow.Token)
	}
}

func TestRequestReusesOutstandingToken(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	notifier := newRecordingNotifier()
	gate := approval.NewGate(store, notifier, logging.NewNop())

	item := testsupport.SeedItem(t, store, "post-1")
	first, err := gate.Request(context.Background(), item)
	if err != nil {
		t.Fatalf("first Request failed: %v", err)
	}
	second, err := gate.Request(context.Background(), item)
	if err != nil {
		t.Fatalf("second Request failed: %v", err)
	}
	if second.Token != first.Token {
		t.Fatalf("re-dispatch minted new token %s, want %s", second.Token, first.Token)
	}
	if got := notifier.tokens(); len(got) != 2 {
		t.Fatalf("previews = %v, want the same token twice", got)
	}
}

func TestRequestSurfacesPreviewFailure(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	notifier := newRecordingNotifier()
	notifier.failNext = true
	gate := approval.NewGate(store, notifier, logging.NewNop())

	item := testsupport.SeedItem(t, store, "post-1")
	if _, err := gate.Request(context.Background(), item); err == nil {
		t.Fatal("expected error when preview dispatch fails")
	}

	// The token survives, so a retried dispatch reuses it.
	pending, err := store.PendingApprovalForItem(context.Background(), item.ID)
	if err != nil || pending == nil {
		t.Fatalf("pending approval after failed preview: %v, err %v", pending, err)
	}
}

func TestResolveMovesItem(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	gate := approval.NewGate(store, newRecordingNotifier(), logging.NewNop())

	item := awaitingItem(t, store, "post-1")
	row, err := store.CreateApproval(context.Background(), item.ID, "tok-1")
	if err != nil {
		t.Fatalf("create approval: %v", err)
	}

	resolved, err := gate.Resolve(context.Background(), row.Token, true, "alice", "")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if resolved.Status != ledger.StatusApproved {
		t.Fatalf("status = %s", resolved.Status)
	}

	if _, err := gate.Resolve(context.Background(), row.Token, false, "bob", "changed my mind"); !errors.Is(err, ledger.ErrAlreadyResolved) {
		t.Fatalf("replay error = %v", err)
	}
	if _, err := gate.Resolve(context.Background(), "no-such-token", true, "alice", ""); !errors.Is(err, ledger.ErrUnknownToken) {
		t.Fatalf("unknown token error = %v", err)
	}
}

func TestRunPumpsDecisions(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	notifier := newRecordingNotifier()
	gate := approval.NewGate(store, notifier, logging.NewNop())

	item := awaitingItem(t, store, "post-1")
	if _, err := store.CreateApproval(context.Background(), item.ID, "tok-1"); err != nil {
		t.Fatalf("create approval: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		gate.Run(ctx)
		close(done)
	}()

	notifier.decisions <- notify.Decision{Token: "tok-1", Approved: false, ResolvedBy: "alice", Reason: "off brand"}
	// A replay and an unknown token must not wedge the pump.
	notifier.decisions <- notify.Decision{Token: "tok-1", Approved: true, ResolvedBy: "bob"}
	notifier.decisions <- notify.Decision{Token: "ghost", Approved: true, ResolvedBy: "bob"}

	deadline := time.After(5 * time.Second)
	for {
		got, err := store.GetByID(context.Background(), item.ID)
		if err != nil {
			t.Fatalf("get item: %v", err)
		}
		if got.Status == ledger.StatusRejected {
			if got.ReviewReason != "off brand" {
				t.Fatalf("review reason = %q", got.ReviewReason)
			}
			break
		}
		select {
		case <-deadline:
			t.Fatalf("item never rejected, status %s", got.Status)
		case <-time.After(10 * time.Millisecond):
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not stop on cancel")
	}
}
