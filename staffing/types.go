/*
Package staffing implements the availability and staffing-decision engine.

PURPOSE:
  Counsellors propose dated events ("submissions"). Administrators staff them
  by finalizing a set of counsellors ("assignments"). This package answers
  "who is free for these days?" and governs the lifecycle of the staffing
  decision.

KEY CONCEPTS IN THIS FILE (types.go):
  - Counsellor:  Staff identity with an active flag
  - Submission:  A dated event with a decision status and an event status
  - Assignment:  Counsellor X is staffed on submission Y (confirmed only)
  - Suggestion:  Advisory, never affects availability
  - ActivityEntry: Append-only audit fact, feeds anomaly detection
  - Principal:   The authenticated caller (username + role)

STATUS MODEL:
  Submission.Status is the staffing decision:
      pending ──finalize──▶ confirmed ──edit (before start)──▶ pending
         │                      │
         └──cancel/postpone─────┴──▶ not_applicable ──reschedule──▶ pending

  Submission.EventStatus is independent and set by administrators:
      ONGOING | COMPLETED | CANCELLED | POSTPONED

  INVARIANT: EventStatus ∈ {CANCELLED, POSTPONED} ⇒ Status = not_applicable
             and the assignment set is empty.

SEE ALSO:
  - availability.go: per-counsellor free/busy classification
  - service.go:      lifecycle transitions
  - similarity.go:   duplicate scoring
*/
package staffing

import (
	"time"

	"github.com/warp/staffing-engine/generic"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type CounsellorID int64
type SubmissionID int64

// =============================================================================
// ENUMS
// =============================================================================

type Status string

const (
	StatusPending       Status = "pending"
	StatusConfirmed     Status = "confirmed"
	StatusNotApplicable Status = "not_applicable"
)

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusNotApplicable:
		return true
	}
	return false
}

type EventStatus string

const (
	EventOngoing   EventStatus = "ONGOING"
	EventCompleted EventStatus = "COMPLETED"
	EventCancelled EventStatus = "CANCELLED"
	EventPostponed EventStatus = "POSTPONED"
)

func (e EventStatus) Valid() bool {
	switch e {
	case EventOngoing, EventCompleted, EventCancelled, EventPostponed:
		return true
	}
	return false
}

// ClearsStaffing is true for event statuses that force not_applicable.
func (e EventStatus) ClearsStaffing() bool {
	return e == EventCancelled || e == EventPostponed
}

// Terminal statuses block finalize.
func (e EventStatus) Terminal() bool {
	return e == EventCompleted || e == EventCancelled
}

type PaymentStatus string

const (
	PaymentPaid   PaymentStatus = "PAID"
	PaymentUnpaid PaymentStatus = "UNPAID"
	PaymentFree   PaymentStatus = "FREE"
)

func (p PaymentStatus) Valid() bool {
	switch p {
	case PaymentPaid, PaymentUnpaid, PaymentFree:
		return true
	}
	return false
}

type Role string

const (
	RoleAdmin      Role = "admin"
	RoleCounsellor Role = "counsellor"
)

func (r Role) Valid() bool { return r == RoleAdmin || r == RoleCounsellor }

// =============================================================================
// ENTITIES
// =============================================================================

type Counsellor struct {
	ID        CounsellorID
	Username  string
	Name      string
	Active    bool
	CreatedAt time.Time
}

type Submission struct {
	ID        SubmissionID
	StartDate generic.Date
	EndDate   generic.Date

	City    string
	Country string

	// Preset references. Nil when the submitter typed free text instead.
	OrganizerID   *int64
	OrganizerName string
	EventTypeID   *int64
	EventNameID   *int64
	EventName     string

	Remarks string

	Status        Status
	EventStatus   EventStatus
	PaymentStatus PaymentStatus

	SubmittedBy CounsellorID
	SentBy      *CounsellorID

	ConfirmedAt *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Period is the submission's own inclusive date range.
func (s Submission) Period() generic.Period {
	return generic.Period{Start: s.StartDate, End: s.EndDate}
}

type Assignment struct {
	SubmissionID SubmissionID
	CounsellorID CounsellorID
	AssignedAt   time.Time
}

type Suggestion struct {
	SubmissionID SubmissionID
	CounsellorID CounsellorID
	CreatedAt    time.Time
}

// =============================================================================
// AUDIT
// =============================================================================

type Action string

const (
	ActionSubmissionCreated     Action = "submission_created"
	ActionSubmissionUpdated     Action = "submission_updated"
	ActionSubmissionDeleted     Action = "submission_deleted"
	ActionSubmissionFinalized   Action = "submission_finalized"
	ActionMetadataUpdated       Action = "submission_metadata_updated"
	ActionRescheduled           Action = "submission_rescheduled"
	ActionDuplicateDismissed    Action = "duplicate_dismissed"
	ActionCounsellorCreated     Action = "counsellor_created"
	ActionCounsellorDeactivated Action = "counsellor_deactivated"
)

// ActivityEntry is append-only. Never updated.
type ActivityEntry struct {
	ID        int64
	Action    Action
	Actor     string
	Details   map[string]any
	CreatedAt time.Time
}

// DuplicatePair is an unordered pair stored as (low, high).
type DuplicatePair struct {
	A SubmissionID
	B SubmissionID
}

// NewDuplicatePair orders the pair so (x,y) and (y,x) are the same key.
func NewDuplicatePair(x, y SubmissionID) DuplicatePair {
	if x > y {
		x, y = y, x
	}
	return DuplicatePair{A: x, B: y}
}

// =============================================================================
// PRINCIPAL
// =============================================================================

// Principal is the authenticated caller supplied by the request layer.
type Principal struct {
	Username string
	Role     Role
}

func (p Principal) IsAdmin() bool { return p.Role == RoleAdmin }
