package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

const itemColumns = "id, source_id, target, source_url, caption, author, media_path, transformed_path, thumbnail_path, fingerprint, status, attempts, claimed_by, error_message, failed_from, review_reason, published_url, metadata_json, created_at, updated_at, last_heartbeat"

// NewItem inserts a freshly discovered post in pending status. Each source
// identifier may only ever be inserted once; replays return ErrDuplicateSource.
func (s *Store) NewItem(ctx context.Context, item *Item) (*Item, error) {
	if item == nil {
		return nil, errors.New("item is nil")
	}
	if strings.TrimSpace(item.SourceID) == "" {
		return nil, errors.New("source id is required")
	}
	if strings.TrimSpace(item.Target) == "" {
		return nil, errors.New("target is required")
	}

	timestamp := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := s.db.ExecContext(
		ctx,
		`INSERT INTO ledger_items (
            source_id, target, source_url, caption, author, media_path,
            metadata_json, status, attempts, created_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, 0, ?, ?)`,
		item.SourceID,
		item.Target,
		nullableString(item.SourceURL),
		nullableString(item.Caption),
		nullableString(item.Author),
		nullableString(item.MediaPath),
		nullableString(item.MetadataJSON),
		StatusPending,
		timestamp,
		timestamp,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateSource, item.SourceID)
		}
		return nil, fmt.Errorf("insert item: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(ctx, id)
}

// GetByID fetches a ledger item by identifier.
func (s *Store) GetByID(ctx context.Context, id int64) (*Item, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+itemColumns+` FROM ledger_items WHERE id = ?`, id)
	item, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get item: %w", err)
	}
	return item, nil
}

// GetBySourceID returns the item recorded for a source post, if any.
func (s *Store) GetBySourceID(ctx context.Context, sourceID string) (*Item, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+itemColumns+` FROM ledger_items WHERE source_id = ?`, sourceID)
	item, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get item by source: %w", err)
	}
	return item, nil
}

// Update persists changes to an existing ledger item.
func (s *Store) Update(ctx context.Context, item *Item) error {
	if item == nil {
		return errors.New("item is nil")
	}
	item.UpdatedAt = time.Now().UTC()
	_, err := s.db.ExecContext(
		ctx,
		`UPDATE ledger_items
         SET source_url = ?, caption = ?, author = ?, media_path = ?,
             transformed_path = ?, thumbnail_path = ?, fingerprint = ?,
             status = ?, attempts = ?, claimed_by = ?, error_message = ?,
             failed_from = ?, review_reason = ?, published_url = ?,
             metadata_json = ?, updated_at = ?, last_heartbeat = ?
         WHERE id = ?`,
		nullableString(item.SourceURL),
		nullableString(item.Caption),
		nullableString(item.Author),
		nullableString(item.MediaPath),
		nullableString(item.TransformedPath),
		nullableString(item.ThumbnailPath),
		nullableString(item.Fingerprint),
		item.Status,
		item.Attempts,
		nullableString(item.ClaimedBy),
		nullableString(item.ErrorMessage),
		nullableString(string(item.FailedFrom)),
		nullableString(item.ReviewReason),
		nullableString(item.PublishedURL),
		nullableString(item.MetadataJSON),
		item.UpdatedAt.Format(time.RFC3339Nano),
		nullableTime(item.LastHeartbeat),
		item.ID,
	)
	if err != nil {
		return fmt.Errorf("update item: %w", err)
	}
	return nil
}

// List returns ledger items filtered by status set (or all items when no
// status is provided), ordered by creation time.
func (s *Store) List(ctx context.Context, statuses ...Status) ([]*Item, error) {
	var (
		rows *sql.Rows
		err  error
	)

	baseQuery := `SELECT ` + itemColumns + ` FROM ledger_items`
	orderClause := ` ORDER BY created_at, id`

	if len(statuses) == 0 {
		rows, err = s.db.QueryContext(ctx, baseQuery+orderClause)
	} else {
		placeholders := makePlaceholders(len(statuses))
		args := make([]any, len(statuses))
		for i, status := range statuses {
			args[i] = status
		}
		rows, err = s.db.QueryContext(ctx, baseQuery+` WHERE status IN (`+placeholders+`)`+orderClause, args...)
	}
	if err != nil {
		return nil, fmt.Errorf("list ledger items: %w", err)
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

// RetryFailed re-enqueues failed items at the start of the stage they failed
// in, so completed stages are not repeated. Items failed before the column was
// recorded fall back to pending. When ids are provided, only those items are
// retried.
func (s *Store) RetryFailed(ctx context.Context, ids ...int64) (int64, error) {
	timestamp := time.Now().UTC().Format(time.RFC3339Nano)
	if len(ids) == 0 {
		res, err := s.db.ExecContext(
			ctx,
			`UPDATE ledger_items
            SET status = COALESCE(failed_from, ?), failed_from = NULL, attempts = 0,
                error_message = NULL, claimed_by = NULL, last_heartbeat = NULL,
                updated_at = ?
            WHERE status = ?`,
			StatusPending,
			timestamp,
			StatusFailed,
		)
		if err != nil {
			return 0, fmt.Errorf("retry failed items: %w", err)
		}
		return res.RowsAffected()
	}

	placeholders := makePlaceholders(len(ids))
	args := make([]any, 0, len(ids)+3)
	args = append(args, StatusPending, timestamp, StatusFailed)
	for _, id := range ids {
		args = append(args, id)
	}
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE ledger_items
        SET status = COALESCE(failed_from, ?), failed_from = NULL, attempts = 0,
            error_message = NULL, claimed_by = NULL, last_heartbeat = NULL,
            updated_at = ?
        WHERE status = ? AND id IN (`+placeholders+`)`,
		args...,
	)
	if err != nil {
		return 0, fmt.Errorf("retry selected items: %w", err)
	}
	return res.RowsAffected()
}

// Stats returns a count of items grouped by status.
func (s *Store) Stats(ctx context.Context) (map[Status]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(1) FROM ledger_items GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("ledger stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[Status]int)
	for rows.Next() {
		var status Status
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats[status] = count
	}
	return stats, rows.Err()
}

// Health aggregates ledger state for diagnostic output.
func (s *Store) Health(ctx context.Context) (HealthSummary, error) {
	stats, err := s.Stats(ctx)
	if err != nil {
		return HealthSummary{}, err
	}
	health := HealthSummary{}
	for status, count := range stats {
		health.Total += count
		switch status {
		case StatusPending:
			health.Pending += count
		case StatusAwaitingReview:
			health.AwaitingReview += count
		case StatusApproved:
			health.Approved += count
		case StatusPublished:
			health.Published += count
		case StatusDuplicate:
			health.Duplicates += count
		case StatusRejected:
			health.Rejected += count
		case StatusFailed:
			health.Failed += count
		default:
			if IsProcessingStatus(status) {
				health.Processing += count
			}
		}
	}
	return health, nil
}

// Remove deletes an item by identifier.
func (s *Store) Remove(ctx context.Context, id int64) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM ledger_items WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete item: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

// ClearTerminal removes published, rejected, duplicate, and failed items.
// Fingerprints survive via ON DELETE CASCADE exemption: they are removed with
// the item, so callers wanting dedup continuity should clear selectively.
func (s *Store) ClearTerminal(ctx context.Context, statuses ...Status) (int64, error) {
	if len(statuses) == 0 {
		statuses = []Status{StatusPublished, StatusRejected, StatusDuplicate, StatusFailed}
	}
	for _, status := range statuses {
		if !IsTerminalStatus(status) {
			return 0, fmt.Errorf("status %s is not terminal", status)
		}
	}
	placeholders := makePlaceholders(len(statuses))
	args := make([]any, len(statuses))
	for i, status := range statuses {
		args[i] = status
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM ledger_items WHERE status IN (`+placeholders+`)`, args...)
	if err != nil {
		return 0, fmt.Errorf("clear terminal items: %w", err)
	}
	return res.RowsAffected()
}

func scanItem(scanner interface{ Scan(dest ...any) error }) (*Item, error) {
	var (
		id               int64
		sourceID         string
		target           string
		sourceURL        sql.NullString
		caption          sql.NullString
		author           sql.NullString
		mediaPath        sql.NullString
		transformedPath  sql.NullString
		thumbnailPath    sql.NullString
		fingerprint      sql.NullString
		statusStr        string
		attempts         int
		claimedBy        sql.NullString
		errorMessage     sql.NullString
		failedFrom       sql.NullString
		reviewReason     sql.NullString
		publishedURL     sql.NullString
		metadata         sql.NullString
		createdRaw       sql.NullString
		updatedRaw       sql.NullString
		lastHeartbeatRaw sql.NullString
	)

	if err := scanner.Scan(
		&id,
		&sourceID,
		&target,
		&sourceURL,
		&caption,
		&author,
		&mediaPath,
		&transformedPath,
		&thumbnailPath,
		&fingerprint,
		&statusStr,
		&attempts,
		&claimedBy,
		&errorMessage,
		&failedFrom,
		&reviewReason,
		&publishedURL,
		&metadata,
		&createdRaw,
		&updatedRaw,
		&lastHeartbeatRaw,
	); err != nil {
		return nil, err
	}

	item := &Item{
		ID:              id,
		SourceID:        sourceID,
		Target:          target,
		SourceURL:       sourceURL.String,
		Caption:         caption.String,
		Author:          author.String,
		MediaPath:       mediaPath.String,
		TransformedPath: transformedPath.String,
		ThumbnailPath:   thumbnailPath.String,
		Fingerprint:     fingerprint.String,
		Status:          Status(statusStr),
		Attempts:        attempts,
		ClaimedBy:       claimedBy.String,
		ErrorMessage:    errorMessage.String,
		FailedFrom:      Status(failedFrom.String),
		ReviewReason:    reviewReason.String,
		PublishedURL:    publishedURL.String,
		MetadataJSON:    metadata.String,
	}

	if created, err := parseTimeString(createdRaw.String); err == nil {
		item.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw.String); err == nil {
		item.UpdatedAt = updated
	}
	if lastHeartbeatRaw.Valid {
		if heartbeat, err := parseTimeString(lastHeartbeatRaw.String); err == nil {
			item.LastHeartbeat = &heartbeat
		}
	}
	return item, nil
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
