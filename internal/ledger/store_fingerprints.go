package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// InsertFingerprint mirrors an accepted perceptual hash into durable storage
// so the in-memory index can be rebuilt on startup.
func (s *Store) InsertFingerprint(ctx context.Context, itemID int64, sourceID string, hash uint64) error {
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO fingerprints (item_id, source_id, hash, created_at) VALUES (?, ?, ?, ?)`,
		itemID,
		sourceID,
		int64(hash),
		time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %s", ErrDuplicateSource, sourceID)
		}
		return fmt.Errorf("insert fingerprint: %w", err)
	}
	return nil
}

// FingerprintBySourceID returns the stored fingerprint for a source post.
func (s *Store) FingerprintBySourceID(ctx context.Context, sourceID string) (*Fingerprint, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT id, item_id, source_id, hash, created_at FROM fingerprints WHERE source_id = ?`,
		sourceID,
	)
	fp, err := scanFingerprint(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("fingerprint by source: %w", err)
	}
	return fp, nil
}

// ListFingerprints returns all stored fingerprints ordered by insertion.
func (s *Store) ListFingerprints(ctx context.Context) ([]*Fingerprint, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, item_id, source_id, hash, created_at FROM fingerprints ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list fingerprints: %w", err)
	}
	defer rows.Close()

	var fingerprints []*Fingerprint
	for rows.Next() {
		fp, err := scanFingerprint(rows)
		if err != nil {
			return nil, err
		}
		fingerprints = append(fingerprints, fp)
	}
	return fingerprints, rows.Err()
}

func scanFingerprint(scanner interface{ Scan(dest ...any) error }) (*Fingerprint, error) {
	var (
		id        int64
		itemID    int64
		sourceID  string
		hash      int64
		createdAt sql.NullString
	)
	if err := scanner.Scan(&id, &itemID, &sourceID, &hash, &createdAt); err != nil {
		return nil, err
	}
	fp := &Fingerprint{ID: id, ItemID: itemID, SourceID: sourceID, Hash: uint64(hash)}
	if ts, err := parseTimeString(createdAt.String); err == nil {
		fp.CreatedAt = ts
	}
	return fp, nil
}
