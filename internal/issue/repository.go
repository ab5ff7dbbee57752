package issue

import (
	"context"
	"time"
)

// Repository is the persistence contract. Implementations must keep
// Issue.UpvoteCount equal to the number of live Support rows for the issue.
//
// Lookups return (nil, nil) for a missing record. AddSupport and RemoveSupport
// pair the support row change with the counter change in one logical
// transaction; the (device, issue) uniqueness is enforced by the storage layer.
type Repository interface {
	Create(ctx context.Context, in Input) (*Issue, error)
	GetByID(ctx context.Context, id int64) (*Issue, error)
	GetByReportID(ctx context.Context, reportID string) (*Issue, error)
	// List is most-recent first.
	List(ctx context.Context) ([]Issue, error)
	UpdateStatus(ctx context.Context, id int64, status Status) (*Issue, error)

	// IncrementUpvoteCount and DecrementUpvoteCount are atomic at the storage
	// layer; the decrement never goes below zero.
	IncrementUpvoteCount(ctx context.Context, id int64) (*Issue, error)
	DecrementUpvoteCount(ctx context.Context, id int64) (*Issue, error)

	FindSupport(ctx context.Context, issueID int64, deviceID string) (*Support, error)
	// AddSupport fails with apperr.Conflict on a duplicate and apperr.NotFound
	// when the issue does not exist.
	AddSupport(ctx context.Context, issueID int64, deviceID string) (*Issue, error)
	// RemoveSupport fails with apperr.NotFound when no support row exists.
	RemoveSupport(ctx context.Context, issueID int64, deviceID string) (*Issue, error)
	CountSupports(ctx context.Context, issueID int64) (int64, error)

	// ListReminderCandidates returns unresolved issues created before olderThan
	// whose last reminder is unset or before resendBefore, oldest first.
	ListReminderCandidates(ctx context.Context, olderThan, resendBefore time.Time, limit int) ([]Issue, error)
	MarkReminderSent(ctx context.Context, id int64, at time.Time) error
}

// MaxReportIDAttempts bounds regeneration after a report id collision.
const MaxReportIDAttempts = 5
