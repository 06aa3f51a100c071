package ledger

import (
	"strings"
	"time"
)

// Status represents the lifecycle of a ledger item.
type Status string

const (
	StatusPending           Status = "pending"
	StatusTransforming      Status = "transforming"
	StatusTransformed       Status = "transformed"
	StatusDedupChecking     Status = "dedup_checking"
	StatusDeduped           Status = "deduped"
	StatusReviewDispatching Status = "review_dispatching"
	StatusAwaitingReview    Status = "awaiting_review"
	StatusApproved          Status = "approved"
	StatusRejected          Status = "rejected"
	StatusPublishing        Status = "publishing"
	StatusPublished         Status = "published"
	StatusDuplicate         Status = "duplicate"
	StatusFailed            Status = "failed"
)

var allStatuses = []Status{
	StatusPending,
	StatusTransforming,
	StatusTransformed,
	StatusDedupChecking,
	StatusDeduped,
	StatusReviewDispatching,
	StatusAwaitingReview,
	StatusApproved,
	StatusRejected,
	StatusPublishing,
	StatusPublished,
	StatusDuplicate,
	StatusFailed,
}

var statusSet = func() map[Status]struct{} {
	set := make(map[Status]struct{}, len(allStatuses))
	for _, status := range allStatuses {
		set[status] = struct{}{}
	}
	return set
}()

var processingStatuses = map[Status]struct{}{
	StatusTransforming:      {},
	StatusDedupChecking:     {},
	StatusReviewDispatching: {},
	StatusPublishing:        {},
}

var terminalStatuses = map[Status]struct{}{
	StatusPublished: {},
	StatusRejected:  {},
	StatusDuplicate: {},
	StatusFailed:    {},
}

type statusTransition struct {
	from Status
	to   Status
}

// stageRollbackTransitions maps each in-flight status back to the stage's
// claimable start status. Used when reclaiming items whose worker died.
var stageRollbackTransitions = []statusTransition{
	{from: StatusTransforming, to: StatusPending},
	{from: StatusDedupChecking, to: StatusTransformed},
	{from: StatusReviewDispatching, to: StatusDeduped},
	{from: StatusPublishing, to: StatusApproved},
}

// Item represents a pipeline item persisted in SQLite. An item corresponds to
// one source post working its way toward publication.
type Item struct {
	ID              int64
	SourceID        string
	Target          string
	SourceURL       string
	Caption         string
	Author          string
	MediaPath       string
	TransformedPath string
	ThumbnailPath   string
	Fingerprint     string
	Status          Status
	Attempts        int
	ClaimedBy       string
	ErrorMessage    string
	FailedFrom      Status
	ReviewReason    string
	PublishedURL    string
	MetadataJSON    string
	CreatedAt       time.Time
	UpdatedAt       time.Time
	LastHeartbeat   *time.Time
}

// Target is an ingest source whose recent posts are swept into the pipeline.
type Target struct {
	ID          int64
	Handle      string
	Enabled     bool
	CreatedAt   time.Time
	LastSweepAt *time.Time
}

// ApprovalStatus tracks the lifecycle of a review request.
type ApprovalStatus string

const (
	ApprovalPending  ApprovalStatus = "pending"
	ApprovalApproved ApprovalStatus = "approved"
	ApprovalRejected ApprovalStatus = "rejected"
)

// Approval is an outstanding or resolved review request correlated by token.
type Approval struct {
	Token       string
	ItemID      int64
	Status      ApprovalStatus
	RequestedAt time.Time
	ResolvedAt  *time.Time
	ResolvedBy  string
	Reason      string
}

// PublishRecord captures the outcome of a successful publication.
type PublishRecord struct {
	ID          int64
	ItemID      int64
	URL         string
	Title       string
	Description string
	Tags        string
	PublishedAt time.Time
}

// Fingerprint is the durable mirror of the in-memory dedup index.
type Fingerprint struct {
	ID        int64
	ItemID    int64
	SourceID  string
	Hash      uint64
	CreatedAt time.Time
}

// HealthSummary describes aggregated ledger counts per key lifecycle states.
type HealthSummary struct {
	Total          int
	Pending        int
	Processing     int
	AwaitingReview int
	Approved       int
	Published      int
	Duplicates     int
	Rejected       int
	Failed         int
}

// AllStatuses returns the ordered list of known statuses.
func AllStatuses() []Status {
	cp := make([]Status, len(allStatuses))
	copy(cp, allStatuses)
	return cp
}

// ParseStatus converts a string into a known Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := statusSet[normalized]
	return normalized, ok
}

// IsProcessing returns true when the status reflects an in-flight operation.
func (i Item) IsProcessing() bool {
	return IsProcessingStatus(i.Status)
}

// IsProcessingStatus reports whether a status reflects an in-flight operation.
func IsProcessingStatus(status Status) bool {
	_, ok := processingStatuses[status]
	return ok
}

// IsTerminalStatus reports whether a status ends the item's lifecycle.
func IsTerminalStatus(status Status) bool {
	_, ok := terminalStatuses[status]
	return ok
}

// IsTerminal reports whether the item has reached the end of its lifecycle.
func (i Item) IsTerminal() bool {
	return IsTerminalStatus(i.Status)
}

// RollbackStatus returns the claimable start status for an in-flight status.
func RollbackStatus(status Status) (Status, bool) {
	for _, transition := range stageRollbackTransitions {
		if transition.from == status {
			return transition.to, true
		}
	}
	return "", false
}

// ProcessingLane partitions workflow into the content preparation lane and
// the publication lane so slow uploads never starve ingest work.
type ProcessingLane string

const (
	LaneForeground ProcessingLane = "foreground"
	LaneBackground ProcessingLane = "background"
)

// LaneForItem maps a ledger item to its processing lane.
func LaneForItem(item *Item) ProcessingLane {
	if item == nil {
		return LaneForeground
	}
	switch item.Status {
	case StatusApproved, StatusPublishing, StatusPublished:
		return LaneBackground
	default:
		return LaneForeground
	}
}
