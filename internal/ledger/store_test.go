package ledger_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"repost/internal/ledger"
	"repost/internal/testsupport"
)

func TestNewItemRejectsReplayedSource(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	item := testsupport.SeedItem(t, store, "post-1")
	if item.Status != ledger.StatusPending {
		t.Fatalf("new item status = %s, want pending", item.Status)
	}

	_, err := store.NewItem(ctx, &ledger.Item{SourceID: "post-1", Target: "creator"})
	if !errors.Is(err, ledger.ErrDuplicateSource) {
		t.Fatalf("expected ErrDuplicateSource, got %v", err)
	}

	found, err := store.GetBySourceID(ctx, "post-1")
	if err != nil {
		t.Fatalf("GetBySourceID failed: %v", err)
	}
	if found == nil || found.ID != item.ID {
		t.Fatalf("expected original item, got %#v", found)
	}
}

func TestUpdateRoundTripsFields(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	item := testsupport.SeedItem(t, store, "post-2")
	item.TransformedPath = "/tmp/out.mp4"
	item.ThumbnailPath = "/tmp/out.jpg"
	item.Fingerprint = "a1b2c3d4e5f60718"
	item.Status = ledger.StatusTransformed
	if err := store.Update(ctx, item); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	fetched, err := store.GetByID(ctx, item.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if fetched.TransformedPath != "/tmp/out.mp4" || fetched.Fingerprint != "a1b2c3d4e5f60718" {
		t.Fatalf("unexpected round trip: %#v", fetched)
	}
	if fetched.Status != ledger.StatusTransformed {
		t.Fatalf("status = %s, want transformed", fetched.Status)
	}
}

func TestClaimNextIsExclusive(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	const total = 12
	for i := 0; i < total; i++ {
		testsupport.SeedItem(t, store, fmt.Sprintf("post-claim-%d", i))
	}

	const workers = 4
	var mu sync.Mutex
	claimed := make(map[int64]string)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(worker string) {
			defer wg.Done()
			for {
				items, err := store.ClaimNext(ctx, worker, ledger.StatusPending, ledger.StatusTransforming, 2)
				if err != nil {
					t.Errorf("%s: ClaimNext failed: %v", worker, err)
					return
				}
				if len(items) == 0 {
					return
				}
				mu.Lock()
				for _, item := range items {
					if prev, ok := claimed[item.ID]; ok {
						t.Errorf("item %d claimed by both %s and %s", item.ID, prev, worker)
					}
					claimed[item.ID] = worker
				}
				mu.Unlock()
			}
		}(fmt.Sprintf("worker-%d", w))
	}
	wg.Wait()

	if len(claimed) != total {
		t.Fatalf("claimed %d items, want %d", len(claimed), total)
	}
	remaining, err := store.List(ctx, ledger.StatusPending)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(remaining) != 0 {
		t.Fatalf("expected no pending items left, found %d", len(remaining))
	}
}

func TestClaimOrdersByCreation(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	first := testsupport.SeedItem(t, store, "post-old")
	testsupport.SeedItem(t, store, "post-new")

	items, err := store.ClaimNext(ctx, "w1", ledger.StatusPending, ledger.StatusTransforming, 1)
	if err != nil {
		t.Fatalf("ClaimNext failed: %v", err)
	}
	if len(items) != 1 || items[0].ID != first.ID {
		t.Fatalf("expected oldest item %d first, got %#v", first.ID, items)
	}
	if items[0].Status != ledger.StatusTransforming {
		t.Fatalf("claimed status = %s", items[0].Status)
	}
	if items[0].ClaimedBy != "w1" {
		t.Fatalf("claimed_by = %q", items[0].ClaimedBy)
	}
	if items[0].LastHeartbeat == nil {
		t.Fatal("expected heartbeat stamped on claim")
	}
}

func TestRecordSuccessGuardsStaleClaims(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	testsupport.SeedItem(t, store, "post-3")
	items, err := store.ClaimNext(ctx, "w1", ledger.StatusPending, ledger.StatusTransforming, 1)
	if err != nil || len(items) != 1 {
		t.Fatalf("claim: %v (%d items)", err, len(items))
	}
	item := items[0]

	item.TransformedPath = "/tmp/x.mp4"
	if err := store.RecordSuccess(ctx, item, ledger.StatusTransformed); err != nil {
		t.Fatalf("RecordSuccess failed: %v", err)
	}
	if item.Status != ledger.StatusTransformed || item.ClaimedBy != "" {
		t.Fatalf("unexpected item after success: %#v", item)
	}

	// A second completion against the old in-flight status must fail.
	stale := *item
	stale.Status = ledger.StatusTransforming
	if err := store.RecordSuccess(ctx, &stale, ledger.StatusTransformed); !errors.Is(err, ledger.ErrStaleClaim) {
		t.Fatalf("expected ErrStaleClaim, got %v", err)
	}
}

func TestRecordFailureRetriesUntilBudgetExhausted(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()
	const maxAttempts = 3

	testsupport.SeedItem(t, store, "post-4")

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		items, err := store.ClaimNext(ctx, "w1", ledger.StatusPending, ledger.StatusTransforming, 1)
		if err != nil || len(items) != 1 {
			t.Fatalf("attempt %d claim: %v (%d items)", attempt, err, len(items))
		}
		next, err := store.RecordFailure(ctx, items[0], "transform crashed", true, maxAttempts)
		if err != nil {
			t.Fatalf("attempt %d RecordFailure: %v", attempt, err)
		}
		if attempt < maxAttempts {
			if next != ledger.StatusPending {
				t.Fatalf("attempt %d: status %s, want pending", attempt, next)
			}
		} else if next != ledger.StatusFailed {
			t.Fatalf("final attempt: status %s, want failed", next)
		}
	}

	item, err := store.GetBySourceID(ctx, "post-4")
	if err != nil {
		t.Fatalf("GetBySourceID failed: %v", err)
	}
	if item.Attempts != maxAttempts {
		t.Fatalf("attempts = %d, want %d", item.Attempts, maxAttempts)
	}
	if item.ErrorMessage == "" {
		t.Fatal("expected error message recorded")
	}
}

func TestRecordFailureNonRetryableFailsImmediately(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	testsupport.SeedItem(t, store, "post-5")
	items, err := store.ClaimNext(ctx, "w1", ledger.StatusPending, ledger.StatusTransforming, 1)
	if err != nil || len(items) != 1 {
		t.Fatalf("claim: %v", err)
	}
	next, err := store.RecordFailure(ctx, items[0], "source deleted", false, 3)
	if err != nil {
		t.Fatalf("RecordFailure failed: %v", err)
	}
	if next != ledger.StatusFailed {
		t.Fatalf("status = %s, want failed on non-retryable", next)
	}
}

func TestRecordDuplicateParksItem(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	item := testsupport.SeedItem(t, store, "post-6")
	item.Status = ledger.StatusTransformed
	if err := store.Update(ctx, item); err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	items, err := store.ClaimNext(ctx, "w1", ledger.StatusTransformed, ledger.StatusDedupChecking, 1)
	if err != nil || len(items) != 1 {
		t.Fatalf("claim: %v", err)
	}
	items[0].Fingerprint = "cafe"
	if err := store.RecordDuplicate(ctx, items[0], "matches post-1 at distance 3"); err != nil {
		t.Fatalf("RecordDuplicate failed: %v", err)
	}
	fetched, err := store.GetByID(ctx, item.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if fetched.Status != ledger.StatusDuplicate || fetched.ReviewReason == "" {
		t.Fatalf("unexpected duplicate item: %#v", fetched)
	}
}

func TestReclaimStaleProcessing(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	cases := []struct {
		inflight ledger.Status
		expected ledger.Status
	}{
		{ledger.StatusTransforming, ledger.StatusPending},
		{ledger.StatusDedupChecking, ledger.StatusTransformed},
		{ledger.StatusReviewDispatching, ledger.StatusDeduped},
		{ledger.StatusPublishing, ledger.StatusApproved},
	}

	stale := time.Now().UTC().Add(-time.Hour)
	var ids []int64
	for i, tc := range cases {
		item := testsupport.SeedItem(t, store, fmt.Sprintf("post-stale-%d", i))
		item.Status = tc.inflight
		item.LastHeartbeat = &stale
		if err := store.Update(ctx, item); err != nil {
			t.Fatalf("Update failed: %v", err)
		}
		ids = append(ids, item.ID)
	}

	// One healthy in-flight item must survive the reclaim.
	healthy := testsupport.SeedItem(t, store, "post-healthy")
	now := time.Now().UTC()
	healthy.Status = ledger.StatusTransforming
	healthy.LastHeartbeat = &now
	if err := store.Update(ctx, healthy); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	count, err := store.ReclaimStaleProcessing(ctx, time.Now().UTC().Add(-5*time.Minute))
	if err != nil {
		t.Fatalf("ReclaimStaleProcessing failed: %v", err)
	}
	if int(count) != len(cases) {
		t.Fatalf("reclaimed %d, want %d", count, len(cases))
	}

	for i, tc := range cases {
		item, err := store.GetByID(ctx, ids[i])
		if err != nil {
			t.Fatalf("GetByID failed: %v", err)
		}
		if item.Status != tc.expected {
			t.Fatalf("%s: status %s, want %s", tc.inflight, item.Status, tc.expected)
		}
		if item.LastHeartbeat != nil || item.ClaimedBy != "" {
			t.Fatalf("%s: claim not cleared: %#v", tc.inflight, item)
		}
	}

	fresh, err := store.GetByID(ctx, healthy.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if fresh.Status != ledger.StatusTransforming {
		t.Fatalf("healthy item reclaimed: %s", fresh.Status)
	}
}

func TestRetryFailed(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	item := testsupport.SeedItem(t, store, "post-7")
	item.Status = ledger.StatusFailed
	item.Attempts = 3
	item.ErrorMessage = "gave up"
	if err := store.Update(ctx, item); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	count, err := store.RetryFailed(ctx, item.ID)
	if err != nil {
		t.Fatalf("RetryFailed failed: %v", err)
	}
	if count != 1 {
		t.Fatalf("retried %d items, want 1", count)
	}
	fetched, err := store.GetByID(ctx, item.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if fetched.Status != ledger.StatusPending || fetched.Attempts != 0 || fetched.ErrorMessage != "" {
		t.Fatalf("unexpected retried item: %#v", fetched)
	}
}

func TestRecordSuccessResetsAttempts(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()
	const maxAttempts = 3

	testsupport.SeedItem(t, store, "post-reset")

	// Burn two transform attempts, then succeed on the third.
	for attempt := 1; attempt <= 2; attempt++ {
		items, err := store.ClaimNext(ctx, "w1", ledger.StatusPending, ledger.StatusTransforming, 1)
		if err != nil || len(items) != 1 {
			t.Fatalf("attempt %d claim: %v (%d items)", attempt, err, len(items))
		}
		if _, err := store.RecordFailure(ctx, items[0], "transform crashed", true, maxAttempts); err != nil {
			t.Fatalf("attempt %d RecordFailure: %v", attempt, err)
		}
	}
	items, err := store.ClaimNext(ctx, "w1", ledger.StatusPending, ledger.StatusTransforming, 1)
	if err != nil || len(items) != 1 {
		t.Fatalf("claim: %v (%d items)", err, len(items))
	}
	if items[0].Attempts != 2 {
		t.Fatalf("attempts before success = %d, want 2", items[0].Attempts)
	}
	if err := store.RecordSuccess(ctx, items[0], ledger.StatusTransformed); err != nil {
		t.Fatalf("RecordSuccess failed: %v", err)
	}
	if items[0].Attempts != 0 {
		t.Fatalf("attempts after success = %d, want 0", items[0].Attempts)
	}

	// The next stage gets the full budget: one transient dedup failure must
	// roll back for retry, not exhaust a counter inherited from transform.
	items, err = store.ClaimNext(ctx, "w1", ledger.StatusTransformed, ledger.StatusDedupChecking, 1)
	if err != nil || len(items) != 1 {
		t.Fatalf("dedup claim: %v (%d items)", err, len(items))
	}
	next, err := store.RecordFailure(ctx, items[0], "index briefly unavailable", true, maxAttempts)
	if err != nil {
		t.Fatalf("RecordFailure failed: %v", err)
	}
	if next != ledger.StatusTransformed {
		t.Fatalf("first dedup failure landed in %s, want transformed", next)
	}
	fetched, err := store.GetBySourceID(ctx, "post-reset")
	if err != nil {
		t.Fatalf("GetBySourceID failed: %v", err)
	}
	if fetched.Attempts != 1 {
		t.Fatalf("dedup attempts = %d, want 1", fetched.Attempts)
	}
}

func TestRetryFailedReentersAtFailedStage(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	item := testsupport.SeedItem(t, store, "post-republish")
	item.Status = ledger.StatusApproved
	item.TransformedPath = "/tmp/out.mp4"
	if err := store.Update(ctx, item); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	items, err := store.ClaimNext(ctx, "w1", ledger.StatusApproved, ledger.StatusPublishing, 1)
	if err != nil || len(items) != 1 {
		t.Fatalf("claim: %v (%d items)", err, len(items))
	}
	next, err := store.RecordFailure(ctx, items[0], "upload quota exhausted", false, 3)
	if err != nil {
		t.Fatalf("RecordFailure failed: %v", err)
	}
	if next != ledger.StatusFailed {
		t.Fatalf("status = %s, want failed", next)
	}

	count, err := store.RetryFailed(ctx, item.ID)
	if err != nil {
		t.Fatalf("RetryFailed failed: %v", err)
	}
	if count != 1 {
		t.Fatalf("retried %d items, want 1", count)
	}
	fetched, err := store.GetByID(ctx, item.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	// Re-entering at approved keeps the item out of transform and dedup,
	// where its own registered fingerprint would park it as a duplicate.
	if fetched.Status != ledger.StatusApproved {
		t.Fatalf("retried item status = %s, want approved", fetched.Status)
	}
	if fetched.Attempts != 0 || fetched.FailedFrom != "" || fetched.ErrorMessage != "" {
		t.Fatalf("retry bookkeeping not cleared: %#v", fetched)
	}
}

func TestStatsAndHealth(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	testsupport.SeedItem(t, store, "post-a")
	b := testsupport.SeedItem(t, store, "post-b")
	b.Status = ledger.StatusPublished
	if err := store.Update(ctx, b); err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	c := testsupport.SeedItem(t, store, "post-c")
	c.Status = ledger.StatusDedupChecking
	if err := store.Update(ctx, c); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	health, err := store.Health(ctx)
	if err != nil {
		t.Fatalf("Health failed: %v", err)
	}
	if health.Total != 3 || health.Pending != 1 || health.Published != 1 || health.Processing != 1 {
		t.Fatalf("unexpected health: %#v", health)
	}
}
