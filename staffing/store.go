/*
store.go - Persistence interfaces for the staffing engine

PURPOSE:
  Defines the narrow repository boundary between domain logic and the
  relational store. Every component (availability, lifecycle, detection)
  consumes these interfaces, never a concrete database.

KEY INTERFACES:
  CounsellorStore: Staff identities and the active flag
  SubmissionStore: Events, filtered listing
  AssignmentStore: Confirmed staffing and advisory suggestions
  ActivityStore:   Append-only audit log
  DismissalStore:  "Not a duplicate" pairs
  TxStore:         Store + WithTx for multi-statement atomicity

ATOMICITY:
  Every lifecycle mutation reads the submission, checks its state and
  writes it back inside one WithTx. A crash between "replace assignments"
  and "update status" cannot leave a confirmed submission with no
  assignments, and a cancel committed by another request is never
  overwritten by a stale copy.

MISSING RECORDS:
  Get* methods return (nil, nil) when the row does not exist. Callers
  convert that to a generic.NotFoundError.

IMPLEMENTATIONS:
  - store/sqlite: database/sql + go-sqlite3
  - store/memory: in-memory, for tests
*/
package staffing

import (
	"context"
	"time"

	"github.com/warp/staffing-engine/generic"
)

// =============================================================================
// FILTERS
// =============================================================================

// SubmissionFilter narrows ListSubmissions / CountSubmissions. Zero values
// mean "no constraint". Results are ordered newest first (created_at, id).
type SubmissionFilter struct {
	Statuses      []Status
	EventStatuses []EventStatus
	SubmittedBy   *CounsellorID
	AssignedTo    *CounsellorID

	// start_date within [StartFrom, StartTo]
	StartFrom *generic.Date
	StartTo   *generic.Date

	// Own range overlaps this period (closed interval).
	Overlapping *generic.Period

	// Case-insensitive exact match.
	Country string

	// When both Country and Overlapping are set, match either instead of both.
	CountryOrOverlap bool

	ExcludeIDs []SubmissionID

	// created_at in [CreatedAfter, CreatedBefore)
	CreatedAfter  *time.Time
	CreatedBefore *time.Time

	Limit  int
	Offset int
}

type ActivityFilter struct {
	Action Action
	Actor  string
	Since  *time.Time
	Until  *time.Time
}

// =============================================================================
// STORES
// =============================================================================

type CounsellorStore interface {
	CreateCounsellor(ctx context.Context, c *Counsellor) error
	GetCounsellor(ctx context.Context, id CounsellorID) (*Counsellor, error)
	GetCounsellorByUsername(ctx context.Context, username string) (*Counsellor, error)
	ListCounsellors(ctx context.Context, activeOnly bool) ([]Counsellor, error)

	// FindActiveCounsellors resolves ids to active counsellors. Unknown or
	// inactive ids are simply absent from the result.
	FindActiveCounsellors(ctx context.Context, ids []CounsellorID) ([]Counsellor, error)
	SetCounsellorActive(ctx context.Context, id CounsellorID, active bool) error
}

type SubmissionStore interface {
	// CreateSubmission assigns ID.
	CreateSubmission(ctx context.Context, s *Submission) error
	GetSubmission(ctx context.Context, id SubmissionID) (*Submission, error)
	UpdateSubmission(ctx context.Context, s *Submission) error

	// DeleteSubmission cascades to assignments and suggestions.
	DeleteSubmission(ctx context.Context, id SubmissionID) error
	ListSubmissions(ctx context.Context, filter SubmissionFilter) ([]Submission, error)
	CountSubmissions(ctx context.Context, filter SubmissionFilter) (int, error)
}

type AssignmentStore interface {
	ListAssignments(ctx context.Context, id SubmissionID) ([]Assignment, error)

	// ReplaceAssignments deletes every assignment of the submission and
	// inserts counsellorIDs. Never merges.
	ReplaceAssignments(ctx context.Context, id SubmissionID, counsellorIDs []CounsellorID, at time.Time) error
	ClearAssignments(ctx context.Context, id SubmissionID) error

	// ConfirmedConflicts returns confirmed submissions the counsellor is
	// assigned to whose own range overlaps period, excluding exclude.
	ConfirmedConflicts(ctx context.Context, counsellorID CounsellorID, period generic.Period, exclude *SubmissionID) ([]Submission, error)

	ReplaceSuggestions(ctx context.Context, id SubmissionID, counsellorIDs []CounsellorID, at time.Time) error
	ListSuggestions(ctx context.Context, id SubmissionID) ([]Suggestion, error)
}

// ActivityStore is append-only apart from age-based pruning.
type ActivityStore interface {
	AppendActivity(ctx context.Context, entry ActivityEntry) error
	ListActivity(ctx context.Context, filter ActivityFilter) ([]ActivityEntry, error)
	PruneActivity(ctx context.Context, before time.Time) (int64, error)
}

type DismissalStore interface {
	DismissDuplicate(ctx context.Context, pair DuplicatePair, by string, at time.Time) error
	IsDismissed(ctx context.Context, pair DuplicatePair) (bool, error)

	// DismissedPartners returns every submission paired with id in a dismissal.
	DismissedPartners(ctx context.Context, id SubmissionID) (map[SubmissionID]bool, error)
}

// Store is the full repository used by the engine.
type Store interface {
	CounsellorStore
	SubmissionStore
	AssignmentStore
	ActivityStore
	DismissalStore
}

// TxStore wraps Store with transaction support.
type TxStore interface {
	Store

	// WithTx executes fn within a transaction.
	// If fn returns error, the transaction is rolled back.
	WithTx(ctx context.Context, fn func(Store) error) error
}
