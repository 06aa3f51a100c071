package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

const targetColumns = "id, handle, enabled, created_at, last_sweep_at"

// AddTarget registers an ingest source by handle.
func (s *Store) AddTarget(ctx context.Context, handle string) (*Target, error) {
	handle = strings.TrimSpace(handle)
	if handle == "" {
		return nil, errors.New("handle is required")
	}
	timestamp := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := s.db.ExecContext(
		ctx,
		`INSERT INTO targets (handle, enabled, created_at) VALUES (?, 1, ?)`,
		handle,
		timestamp,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: target %s", ErrDuplicateSource, handle)
		}
		return nil, fmt.Errorf("insert target: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	row := s.db.QueryRowContext(ctx, `SELECT `+targetColumns+` FROM targets WHERE id = ?`, id)
	return scanTarget(row)
}

// RemoveTarget deletes an ingest source. Items already in the ledger remain.
func (s *Store) RemoveTarget(ctx context.Context, handle string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM targets WHERE handle = ?`, strings.TrimSpace(handle))
	if err != nil {
		return false, fmt.Errorf("delete target: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

// SetTargetEnabled toggles sweeping for a target without deleting its history.
func (s *Store) SetTargetEnabled(ctx context.Context, handle string, enabled bool) error {
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE targets SET enabled = ? WHERE handle = ?`,
		boolToInt(enabled),
		strings.TrimSpace(handle),
	)
	if err != nil {
		return fmt.Errorf("toggle target: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: target %s", ErrNotFound, handle)
	}
	return nil
}

// ListTargets returns all targets ordered by handle. When enabledOnly is set,
// disabled targets are skipped.
func (s *Store) ListTargets(ctx context.Context, enabledOnly bool) ([]*Target, error) {
	query := `SELECT ` + targetColumns + ` FROM targets`
	if enabledOnly {
		query += ` WHERE enabled = 1`
	}
	query += ` ORDER BY handle`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list targets: %w", err)
	}
	defer rows.Close()

	var targets []*Target
	for rows.Next() {
		target, err := scanTarget(rows)
		if err != nil {
			return nil, err
		}
		targets = append(targets, target)
	}
	return targets, rows.Err()
}

// TouchTargetSweep stamps the last completed sweep time for a target.
func (s *Store) TouchTargetSweep(ctx context.Context, handle string, at time.Time) error {
	_, err := s.db.ExecContext(
		ctx,
		`UPDATE targets SET last_sweep_at = ? WHERE handle = ?`,
		at.UTC().Format(time.RFC3339Nano),
		strings.TrimSpace(handle),
	)
	if err != nil {
		return fmt.Errorf("touch target sweep: %w", err)
	}
	return nil
}

func scanTarget(scanner interface{ Scan(dest ...any) error }) (*Target, error) {
	var (
		id        int64
		handle    string
		enabled   int
		createdAt sql.NullString
		lastSweep sql.NullString
	)
	if err := scanner.Scan(&id, &handle, &enabled, &createdAt, &lastSweep); err != nil {
		return nil, err
	}
	target := &Target{ID: id, Handle: handle, Enabled: enabled != 0}
	if ts, err := parseTimeString(createdAt.String); err == nil {
		target.CreatedAt = ts
	}
	if lastSweep.Valid {
		if ts, err := parseTimeString(lastSweep.String); err == nil {
			target.LastSweepAt = &ts
		}
	}
	return target, nil
}
