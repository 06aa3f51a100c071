package ledger

import (
	"context"
	"fmt"
	"time"
)

// ClaimNext atomically moves up to limit items from a claimable status into
// its in-flight status and stamps the claiming worker. The single UPDATE with
// RETURNING guarantees no two workers ever claim the same item.
func (s *Store) ClaimNext(ctx context.Context, worker string, from, to Status, limit int) ([]*Item, error) {
	if limit <= 0 {
		limit = 1
	}
	if !IsProcessingStatus(to) {
		return nil, fmt.Errorf("claim target %s is not an in-flight status", to)
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)
	rows, err := s.db.QueryContext(
		ctx,
		`UPDATE ledger_items
        SET status = ?, claimed_by = ?, last_heartbeat = ?, updated_at = ?
        WHERE id IN (
            SELECT id FROM ledger_items WHERE status = ? ORDER BY created_at, id LIMIT ?
        )
        RETURNING `+itemColumns,
		to,
		nullableString(worker),
		now,
		now,
		from,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("claim items: %w", err)
	}
	defer rows.Close()

	var items []*Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// RecordSuccess transitions an in-flight item to its done status and persists
// any fields the stage produced. The attempt counter resets so each stage gets
// the full retry budget. The guarded WHERE clause returns ErrStaleClaim when
// the item was reclaimed while the stage ran.
func (s *Store) RecordSuccess(ctx context.Context, item *Item, done Status) error {
	if item == nil {
		return fmt.Errorf("item is nil")
	}
	processing := item.Status
	now := time.Now().UTC()
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE ledger_items
        SET status = ?, caption = ?, author = ?, media_path = ?, transformed_path = ?,
            thumbnail_path = ?, fingerprint = ?, published_url = ?, metadata_json = ?,
            review_reason = ?, attempts = 0, error_message = NULL, claimed_by = NULL,
            last_heartbeat = NULL, updated_at = ?
        WHERE id = ? AND status = ?`,
		done,
		nullableString(item.Caption),
		nullableString(item.Author),
		nullableString(item.MediaPath),
		nullableString(item.TransformedPath),
		nullableString(item.ThumbnailPath),
		nullableString(item.Fingerprint),
		nullableString(item.PublishedURL),
		nullableString(item.MetadataJSON),
		nullableString(item.ReviewReason),
		now.Format(time.RFC3339Nano),
		item.ID,
		processing,
	)
	if err != nil {
		return fmt.Errorf("record success: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return ErrStaleClaim
	}
	item.Status = done
	item.Attempts = 0
	item.ErrorMessage = ""
	item.ClaimedBy = ""
	item.LastHeartbeat = nil
	item.UpdatedAt = now
	return nil
}

// RecordFailure accounts a failed attempt. Retryable failures below the
// attempt budget roll the item back to the stage's start status; everything
// else lands in failed, remembering the stage start so a manual retry
// re-enters there instead of repeating completed stages.
func (s *Store) RecordFailure(ctx context.Context, item *Item, message string, retryable bool, maxAttempts int) (Status, error) {
	if item == nil {
		return "", fmt.Errorf("item is nil")
	}
	processing := item.Status
	attempts := item.Attempts + 1

	next := StatusFailed
	var failedFrom Status
	if retryable && attempts < maxAttempts {
		if rollback, ok := RollbackStatus(processing); ok {
			next = rollback
		}
	}
	if next == StatusFailed {
		if rollback, ok := RollbackStatus(processing); ok {
			failedFrom = rollback
		}
	}

	now := time.Now().UTC()
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE ledger_items
        SET status = ?, attempts = ?, error_message = ?, failed_from = ?,
            claimed_by = NULL, last_heartbeat = NULL, updated_at = ?
        WHERE id = ? AND status = ?`,
		next,
		attempts,
		nullableString(message),
		nullableString(string(failedFrom)),
		now.Format(time.RFC3339Nano),
		item.ID,
		processing,
	)
	if err != nil {
		return "", fmt.Errorf("record failure: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return "", fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return "", ErrStaleClaim
	}
	item.Status = next
	item.Attempts = attempts
	item.ErrorMessage = message
	item.FailedFrom = failedFrom
	item.ClaimedBy = ""
	item.LastHeartbeat = nil
	item.UpdatedAt = now
	return next, nil
}

// RecordDuplicate parks an item as a duplicate of previously seen content.
func (s *Store) RecordDuplicate(ctx context.Context, item *Item, reason string) error {
	if item == nil {
		return fmt.Errorf("item is nil")
	}
	processing := item.Status
	now := time.Now().UTC()
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE ledger_items
        SET status = ?, review_reason = ?, fingerprint = ?, claimed_by = NULL,
            last_heartbeat = NULL, updated_at = ?
        WHERE id = ? AND status = ?`,
		StatusDuplicate,
		nullableString(reason),
		nullableString(item.Fingerprint),
		now.Format(time.RFC3339Nano),
		item.ID,
		processing,
	)
	if err != nil {
		return fmt.Errorf("record duplicate: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return ErrStaleClaim
	}
	item.Status = StatusDuplicate
	item.ReviewReason = reason
	item.ClaimedBy = ""
	item.LastHeartbeat = nil
	item.UpdatedAt = now
	return nil
}

// UpdateHeartbeat refreshes the liveness timestamp for an in-flight item.
func (s *Store) UpdateHeartbeat(ctx context.Context, id int64) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err := s.db.ExecContext(
		ctx,
		`UPDATE ledger_items SET last_heartbeat = ?, updated_at = ? WHERE id = ?`,
		now,
		now,
		id,
	)
	if err != nil {
		return fmt.Errorf("update heartbeat: %w", err)
	}
	return nil
}

// ReclaimStaleProcessing rolls in-flight items whose heartbeats expired back
// to their stage start status so another worker can claim them.
func (s *Store) ReclaimStaleProcessing(ctx context.Context, cutoff time.Time) (int64, error) {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	cutoffStr := cutoff.UTC().Format(time.RFC3339Nano)

	var total int64
	for _, transition := range stageRollbackTransitions {
		res, err := s.db.ExecContext(
			ctx,
			`UPDATE ledger_items
            SET status = ?, claimed_by = NULL, last_heartbeat = NULL, updated_at = ?
            WHERE status = ? AND last_heartbeat IS NOT NULL AND last_heartbeat < ?`,
			transition.to,
			now,
			transition.from,
			cutoffStr,
		)
		if err != nil {
			return total, fmt.Errorf("reclaim stale %s items: %w", transition.from, err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return total, fmt.Errorf("rows affected: %w", err)
		}
		total += affected
	}
	return total, nil
}

// ResetStuckProcessing rolls all in-flight items back to their stage start
// status regardless of heartbeat age. Used on daemon startup.
func (s *Store) ResetStuckProcessing(ctx context.Context) (int64, error) {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	var total int64
	for _, transition := range stageRollbackTransitions {
		res, err := s.db.ExecContext(
			ctx,
			`UPDATE ledger_items
            SET status = ?, claimed_by = NULL, last_heartbeat = NULL, updated_at = ?
            WHERE status = ?`,
			transition.to,
			now,
			transition.from,
		)
		if err != nil {
			return total, fmt.Errorf("reset stuck %s items: %w", transition.from, err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return total, fmt.Errorf("rows affected: %w", err)
		}
		total += affected
	}
	return total, nil
}
