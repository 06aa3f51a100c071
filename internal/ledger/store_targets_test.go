package ledger_test

import (
	"context"
	"testing"
	"time"

	"repost/internal/ledger"
	"repost/internal/testsupport"
)

func TestTargetLifecycle(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	target, err := store.AddTarget(ctx, "creator_one")
	if err != nil {
		t.Fatalf("AddTarget failed: %v", err)
	}
	if !target.Enabled {
		t.Fatal("new targets should be enabled")
	}

	if _, err := store.AddTarget(ctx, "creator_one"); err == nil {
		t.Fatal("expected duplicate handle to be rejected")
	}

	if err := store.SetTargetEnabled(ctx, "creator_one", false); err != nil {
		t.Fatalf("SetTargetEnabled failed: %v", err)
	}
	enabled, err := store.ListTargets(ctx, true)
	if err != nil {
		t.Fatalf("ListTargets failed: %v", err)
	}
	if len(enabled) != 0 {
		t.Fatalf("expected no enabled targets, got %d", len(enabled))
	}

	if err := store.TouchTargetSweep(ctx, "creator_one", time.Now()); err != nil {
		t.Fatalf("TouchTargetSweep failed: %v", err)
	}
	all, err := store.ListTargets(ctx, false)
	if err != nil {
		t.Fatalf("ListTargets failed: %v", err)
	}
	if len(all) != 1 || all[0].LastSweepAt == nil {
		t.Fatalf("unexpected targets: %#v", all)
	}

	removed, err := store.RemoveTarget(ctx, "creator_one")
	if err != nil || !removed {
		t.Fatalf("RemoveTarget = %v, %v", removed, err)
	}
}

func TestFingerprintsPersistAcrossReopen(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	ctx := context.Background()

	store, err := ledger.Open(cfg)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	item, err := store.NewItem(ctx, &ledger.Item{SourceID: "post-fp", Target: "creator"})
	if err != nil {
		t.Fatalf("NewItem failed: %v", err)
	}
	if err := store.InsertFingerprint(ctx, item.ID, item.SourceID, 0xDEADBEEFCAFE1234); err != nil {
		t.Fatalf("InsertFingerprint failed: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close store: %v", err)
	}

	reopened, err := ledger.Open(cfg)
	if err != nil {
		t.Fatalf("reopen store: %v", err)
	}
	defer reopened.Close()

	fingerprints, err := reopened.ListFingerprints(ctx)
	if err != nil {
		t.Fatalf("ListFingerprints failed: %v", err)
	}
	if len(fingerprints) != 1 || fingerprints[0].Hash != 0xDEADBEEFCAFE1234 {
		t.Fatalf("unexpected fingerprints: %#v", fingerprints)
	}

	fp, err := reopened.FingerprintBySourceID(ctx, "post-fp")
	if err != nil {
		t.Fatalf("FingerprintBySourceID failed: %v", err)
	}
	if fp == nil || fp.ItemID != item.ID {
		t.Fatalf("unexpected fingerprint: %#v", fp)
	}
}

func TestPublishRecords(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	item := testsupport.SeedItem(t, store, "post-pub")
	record := &ledger.PublishRecord{
		ItemID:      item.ID,
		URL:         "https://videos.example.com/v/abc",
		Title:       "A title",
		Description: "A description",
		Tags:        "one,two",
	}
	if err := store.InsertPublishRecord(ctx, record); err != nil {
		t.Fatalf("InsertPublishRecord failed: %v", err)
	}
	if record.ID == 0 {
		t.Fatal("expected record ID assigned")
	}

	records, err := store.ListPublishRecords(ctx, 10)
	if err != nil {
		t.Fatalf("ListPublishRecords failed: %v", err)
	}
	if len(records) != 1 || records[0].URL != record.URL {
		t.Fatalf("unexpected records: %#v", records)
	}

	count, err := store.CountPublishedSince(ctx, time.Now().Add(-time.Minute))
	if err != nil {
		t.Fatalf("CountPublishedSince failed: %v", err)
	}
	if count != 1 {
		t.Fatalf("count = %d, want 1", count)
	}
}
