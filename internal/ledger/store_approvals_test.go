package ledger_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"

	"repost/internal/ledger"
	"repost/internal/testsupport"
)

func awaitingReviewItem(t *testing.T, store *ledger.Store, sourceID string) *ledger.Item {
	t.Helper()
	item := testsupport.SeedItem(t, store, sourceID)
	item.Status = ledger.StatusAwaitingReview
	if err := store.Update(context.Background(), item); err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	return item
}

func TestResolveApprovalAppliesDecisionOnce(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	item := awaitingReviewItem(t, store, "post-appr-1")
	token := uuid.NewString()
	if _, err := store.CreateApproval(ctx, item.ID, token); err != nil {
		t.Fatalf("CreateApproval failed: %v", err)
	}

	resolved, err := store.ResolveApproval(ctx, token, true, "admin", "")
	if err != nil {
		t.Fatalf("ResolveApproval failed: %v", err)
	}
	if resolved.Status != ledger.StatusApproved {
		t.Fatalf("item status = %s, want approved", resolved.Status)
	}

	if _, err := store.ResolveApproval(ctx, token, false, "admin", "changed my mind"); !errors.Is(err, ledger.ErrAlreadyResolved) {
		t.Fatalf("expected ErrAlreadyResolved, got %v", err)
	}

	// The losing decision must not have flipped the item.
	final, err := store.GetByID(ctx, item.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if final.Status != ledger.StatusApproved {
		t.Fatalf("item status after replay = %s, want approved", final.Status)
	}
}

func TestResolveApprovalRejection(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	item := awaitingReviewItem(t, store, "post-appr-2")
	token := uuid.NewString()
	if _, err := store.CreateApproval(ctx, item.ID, token); err != nil {
		t.Fatalf("CreateApproval failed: %v", err)
	}

	resolved, err := store.ResolveApproval(ctx, token, false, "admin", "low quality")
	if err != nil {
		t.Fatalf("ResolveApproval failed: %v", err)
	}
	if resolved.Status != ledger.StatusRejected || resolved.ReviewReason != "low quality" {
		t.Fatalf("unexpected rejected item: %#v", resolved)
	}
}

func TestResolveApprovalUnknownToken(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	if _, err := store.ResolveApproval(context.Background(), uuid.NewString(), true, "admin", ""); !errors.Is(err, ledger.ErrUnknownToken) {
		t.Fatalf("expected ErrUnknownToken, got %v", err)
	}
}

func TestCreateApprovalRejectsSecondOutstanding(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	item := awaitingReviewItem(t, store, "post-appr-3")
	if _, err := store.CreateApproval(ctx, item.ID, uuid.NewString()); err != nil {
		t.Fatalf("CreateApproval failed: %v", err)
	}
	if _, err := store.CreateApproval(ctx, item.ID, uuid.NewString()); !errors.Is(err, ledger.ErrOutstandingApproval) {
		t.Fatalf("expected ErrOutstandingApproval, got %v", err)
	}

	pending, err := store.PendingApprovalForItem(ctx, item.ID)
	if err != nil {
		t.Fatalf("PendingApprovalForItem failed: %v", err)
	}
	if pending == nil || pending.ItemID != item.ID {
		t.Fatalf("expected pending approval, got %#v", pending)
	}
}

func TestConcurrentResolutionsOnlyOneWins(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	item := awaitingReviewItem(t, store, "post-appr-4")
	token := uuid.NewString()
	if _, err := store.CreateApproval(ctx, item.ID, token); err != nil {
		t.Fatalf("CreateApproval failed: %v", err)
	}

	const racers = 8
	var wg sync.WaitGroup
	wins := make(chan bool, racers)
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func(approve bool) {
			defer wg.Done()
			_, err := store.ResolveApproval(ctx, token, approve, "admin", "")
			if err == nil {
				wins <- approve
				return
			}
			if !errors.Is(err, ledger.ErrAlreadyResolved) {
				t.Errorf("unexpected resolve error: %v", err)
			}
		}(i%2 == 0)
	}
	wg.Wait()
	close(wins)

	var winners []bool
	for w := range wins {
		winners = append(winners, w)
	}
	if len(winners) != 1 {
		t.Fatalf("expected exactly one winning resolution, got %d", len(winners))
	}

	final, err := store.GetByID(ctx, item.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	want := ledger.StatusRejected
	if winners[0] {
		want = ledger.StatusApproved
	}
	if final.Status != want {
		t.Fatalf("item status = %s, want %s", final.Status, want)
	}
}
