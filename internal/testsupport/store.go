package testsupport

import (
	"context"
	"testing"

	"repost/internal/config"
	"repost/internal/ledger"
)

// MustOpenStore opens a ledger.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *ledger.Store {
	t.Helper()

	store, err := ledger.Open(cfg)
	if err != nil {
		t.Fatalf("open ledger store: %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Errorf("close ledger store: %v", err)
		}
	})
	return store
}

// SeedItem inserts a pending item with sensible defaults and returns it.
func SeedItem(t testing.TB, store *ledger.Store, sourceID string) *ledger.Item {
	t.Helper()

	item, err := store.NewItem(context.Background(), &ledger.Item{
		SourceID:  sourceID,
		Target:    "creator",
		SourceURL: "https://example.com/p/" + sourceID,
		Caption:   "caption for " + sourceID,
		Author:    "creator",
	})
	if err != nil {
		t.Fatalf("seed item %s: %v", sourceID, err)
	}
	return item
}
