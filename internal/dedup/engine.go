package dedup

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"repost/internal/ledger"
	"repost/internal/logging"
)

// FingerprintStore is the durable mirror of the in-memory index.
type FingerprintStore interface {
	InsertFingerprint(ctx context.Context, itemID int64, sourceID string, hash uint64) error
	ListFingerprints(ctx context.Context) ([]*ledger.Fingerprint, error)
}

// Engine answers "have we seen this content before?" with a BK-tree over
// perceptual hashes. Check-and-register is serialized so two concurrent
// near-identical items can never both pass.
type Engine struct {
	mu        sync.Mutex
	store     FingerprintStore
	tree      *bkTree
	bySource  map[string]Hash
	threshold int
	logger    *slog.Logger
}

// NewEngine builds an engine with the configured Hamming distance threshold.
func NewEngine(store FingerprintStore, threshold int, logger *slog.Logger) *Engine {
	return &Engine{
		store:     store,
		tree:      &bkTree{},
		bySource:  make(map[string]Hash),
		threshold: threshold,
		logger:    logging.NewComponentLogger(logger, "dedup"),
	}
}

// Load warms the in-memory index from durable storage. Call once on startup
// before the workflow begins claiming items.
func (e *Engine) Load(ctx context.Context) error {
	fingerprints, err := e.store.ListFingerprints(ctx)
	if err != nil {
		return fmt.Errorf("load fingerprints: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.tree = &bkTree{}
	e.bySource = make(map[string]Hash, len(fingerprints))
	for _, fp := range fingerprints {
		hash := Hash(fp.Hash)
		e.tree.insert(hash, fp.SourceID, fp.ItemID)
		e.bySource[fp.SourceID] = hash
	}
	e.logger.Info("fingerprint index loaded", logging.Int("fingerprints", len(fingerprints)))
	return nil
}

// CheckAndRegister looks the hash up against all previously accepted content.
// A match within the threshold is returned and nothing is registered. With no
// match, the hash is registered durably and in memory before the lock is
// released, so the next caller sees it.
func (e *Engine) CheckAndRegister(ctx context.Context, itemID int64, sourceID string, hash Hash) (*Match, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.bySource[sourceID]; ok {
		// Source ids are unique at ingestion, so a hit here is this item's
		// own fingerprint from an interrupted earlier run. Already
		// registered; re-entry must not park the item against itself.
		return nil, nil
	}

	if match := e.tree.nearest(hash, e.threshold); match != nil {
		e.logger.Info("near-duplicate detected",
			logging.String(logging.FieldSourceID, sourceID),
			logging.String("matched_source", match.SourceID),
			logging.Int64("matched_item", match.ItemID),
			logging.Int("distance", match.Distance))
		return match, nil
	}

	if err := e.store.InsertFingerprint(ctx, itemID, sourceID, uint64(hash)); err != nil {
		return nil, fmt.Errorf("register fingerprint: %w", err)
	}
	e.tree.insert(hash, sourceID, itemID)
	e.bySource[sourceID] = hash
	return nil, nil
}

// Seen reports whether a source identifier already passed dedup.
func (e *Engine) Seen(sourceID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.bySource[sourceID]
	return ok
}

// Size returns the number of registered fingerprints.
func (e *Engine) Size() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.tree.len()
}

// Threshold returns the configured Hamming distance threshold.
func (e *Engine) Threshold() int {
	return e.threshold
}
