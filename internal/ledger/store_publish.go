package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// InsertPublishRecord captures a successful publication.
func (s *Store) InsertPublishRecord(ctx context.Context, record *PublishRecord) error {
	if record == nil {
		return fmt.Errorf("record is nil")
	}
	if record.PublishedAt.IsZero() {
		record.PublishedAt = time.Now().UTC()
	}
	res, err := s.db.ExecContext(
		ctx,
		`INSERT INTO publish_records (item_id, url, title, description, tags, published_at)
        VALUES (?, ?, ?, ?, ?, ?)`,
		record.ItemID,
		nullableString(record.URL),
		nullableString(record.Title),
		nullableString(record.Description),
		nullableString(record.Tags),
		record.PublishedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("insert publish record: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("last insert id: %w", err)
	}
	record.ID = id
	return nil
}

// ListPublishRecords returns publication history, newest first, capped by limit.
func (s *Store) ListPublishRecords(ctx context.Context, limit int) ([]*PublishRecord, error) {
	query := `SELECT id, item_id, url, title, description, tags, published_at
        FROM publish_records ORDER BY published_at DESC, id DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list publish records: %w", err)
	}
	defer rows.Close()

	var records []*PublishRecord
	for rows.Next() {
		var (
			record      PublishRecord
			url         sql.NullString
			title       sql.NullString
			description sql.NullString
			tags        sql.NullString
			publishedAt sql.NullString
		)
		if err := rows.Scan(&record.ID, &record.ItemID, &url, &title, &description, &tags, &publishedAt); err != nil {
			return nil, err
		}
		record.URL = url.String
		record.Title = title.String
		record.Description = description.String
		record.Tags = tags.String
		if ts, err := parseTimeString(publishedAt.String); err == nil {
			record.PublishedAt = ts
		}
		records = append(records, &record)
	}
	return records, rows.Err()
}

// CountPublishedSince reports how many publications happened at or after the
// given instant. Used to enforce per-window publish limits.
func (s *Store) CountPublishedSince(ctx context.Context, since time.Time) (int, error) {
	var count int
	err := s.db.QueryRowContext(
		ctx,
		`SELECT COUNT(1) FROM publish_records WHERE published_at >= ?`,
		since.UTC().Format(time.RFC3339Nano),
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count published: %w", err)
	}
	return count, nil
}
