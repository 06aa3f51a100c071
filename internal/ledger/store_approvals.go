package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const approvalColumns = "token, item_id, status, requested_at, resolved_at, resolved_by, reason"

// CreateApproval records a review request for an item, correlated by token.
// Only one pending request may exist per item at a time.
func (s *Store) CreateApproval(ctx context.Context, itemID int64, token string) (*Approval, error) {
	if token == "" {
		return nil, errors.New("token is required")
	}
	timestamp := time.Now().UTC().Format(time.RFC3339Nano)
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO approvals (token, item_id, status, requested_at) VALUES (?, ?, ?, ?)`,
		token,
		itemID,
		ApprovalPending,
		timestamp,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: item %d", ErrOutstandingApproval, itemID)
		}
		return nil, fmt.Errorf("insert approval: %w", err)
	}
	return s.GetApproval(ctx, token)
}

// GetApproval fetches a review request by token.
func (s *Store) GetApproval(ctx context.Context, token string) (*Approval, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+approvalColumns+` FROM approvals WHERE token = ?`, token)
	approval, err := scanApproval(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get approval: %w", err)
	}
	return approval, nil
}

// PendingApprovalForItem returns the outstanding review request for an item, if any.
func (s *Store) PendingApprovalForItem(ctx context.Context, itemID int64) (*Approval, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT `+approvalColumns+` FROM approvals WHERE item_id = ? AND status = ?`,
		itemID,
		ApprovalPending,
	)
	approval, err := scanApproval(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("pending approval: %w", err)
	}
	return approval, nil
}

// ResolveApproval applies a review decision exactly once. The first decision
// for a token wins: the approval row flips out of pending and the item moves
// to approved or rejected in the same transaction. Later decisions return
// ErrAlreadyResolved; decisions for tokens never issued return ErrUnknownToken.
func (s *Store) ResolveApproval(ctx context.Context, token string, approved bool, resolvedBy, reason string) (*Item, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin resolve tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	decision := ApprovalRejected
	itemStatus := StatusRejected
	if approved {
		decision = ApprovalApproved
		itemStatus = StatusApproved
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := tx.ExecContext(
		ctx,
		`UPDATE approvals
        SET status = ?, resolved_at = ?, resolved_by = ?, reason = ?
        WHERE token = ? AND status = ?`,
		decision,
		now,
		nullableString(resolvedBy),
		nullableString(reason),
		token,
		ApprovalPending,
	)
	if err != nil {
		return nil, fmt.Errorf("resolve approval: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		var existing string
		scanErr := tx.QueryRowContext(ctx, `SELECT status FROM approvals WHERE token = ?`, token).Scan(&existing)
		if errors.Is(scanErr, sql.ErrNoRows) {
			return nil, ErrUnknownToken
		}
		if scanErr != nil {
			return nil, fmt.Errorf("inspect approval: %w", scanErr)
		}
		return nil, fmt.Errorf("%w: token %s is %s", ErrAlreadyResolved, token, existing)
	}

	var itemID int64
	if err := tx.QueryRowContext(ctx, `SELECT item_id FROM approvals WHERE token = ?`, token).Scan(&itemID); err != nil {
		return nil, fmt.Errorf("approval item id: %w", err)
	}

	if _, err := tx.ExecContext(
		ctx,
		`UPDATE ledger_items
        SET status = ?, review_reason = ?, updated_at = ?
        WHERE id = ? AND status = ?`,
		itemStatus,
		nullableString(reason),
		now,
		itemID,
		StatusAwaitingReview,
	); err != nil {
		return nil, fmt.Errorf("apply decision to item: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit resolve: %w", err)
	}
	return s.GetByID(ctx, itemID)
}

// ListPendingApprovals returns all outstanding review requests ordered by age.
func (s *Store) ListPendingApprovals(ctx context.Context) ([]*Approval, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+approvalColumns+` FROM approvals WHERE status = ? ORDER BY requested_at`,
		ApprovalPending,
	)
	if err != nil {
		return nil, fmt.Errorf("list pending approvals: %w", err)
	}
	defer rows.Close()

	var approvals []*Approval
	for rows.Next() {
		approval, err := scanApproval(rows)
		if err != nil {
			return nil, err
		}
		approvals = append(approvals, approval)
	}
	return approvals, rows.Err()
}

func scanApproval(scanner interface{ Scan(dest ...any) error }) (*Approval, error) {
	var (
		token       string
		itemID      int64
		statusStr   string
		requested   sql.NullString
		resolvedRaw sql.NullString
		resolvedBy  sql.NullString
		reason      sql.NullString
	)
	if err := scanner.Scan(&token, &itemID, &statusStr, &requested, &resolvedRaw, &resolvedBy, &reason); err != nil {
		return nil, err
	}
	approval := &Approval{
		Token:      token,
		ItemID:     itemID,
		Status:     ApprovalStatus(statusStr),
		ResolvedBy: resolvedBy.String,
		Reason:     reason.String,
	}
	if ts, err := parseTimeString(requested.String); err == nil {
		approval.RequestedAt = ts
	}
	if resolvedRaw.Valid {
		if ts, err := parseTimeString(resolvedRaw.String); err == nil {
			approval.ResolvedAt = &ts
		}
	}
	return approval, nil
}
