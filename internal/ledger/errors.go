package ledger

import "errors"

var (
	// ErrDuplicateSource indicates an item with the same source identifier
	// already exists in the ledger.
	ErrDuplicateSource = errors.New("source already recorded")
	// ErrNotFound indicates the requested item, target, or token does not exist.
	ErrNotFound = errors.New("ledger record not found")
	// ErrStaleClaim indicates the item's status no longer matches the claim,
	// meaning another worker or a reclaim sweep got there first.
	ErrStaleClaim = errors.New("stale claim")
	// ErrUnknownToken indicates an approval decision referenced a token that
	// was never issued.
	ErrUnknownToken = errors.New("unknown approval token")
	// ErrAlreadyResolved indicates an approval request was already decided.
	ErrAlreadyResolved = errors.New("approval already resolved")
	// ErrOutstandingApproval indicates the item already has a pending review
	// request and a second one may not be issued.
	ErrOutstandingApproval = errors.New("approval request already outstanding")
)
