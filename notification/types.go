/*
Package notification stores the alerts raised by detection jobs.

PURPOSE:
  A pull-based feed. Detection jobs create notifications; recipients list,
  read and dismiss the ones visible to them.

KEY CONCEPTS:
  - Notification: typed, prioritized alert with an audience and optional expiry
  - Visibility:   target_role = viewer role, or 'all', or target_user = viewer
  - Dedup window: same type + title + related submission, unread, last hour
  - Weekly report: single-instance, each new report supersedes the previous

LIFECYCLE:
    unread ──mark read──▶ read
       │                   │
       ├──dismiss──────────┴──▶ dismissed
       └──action───────────────▶ actioned

  Rows leave the store by explicit delete, "clear read", or expiry sweep.

SEE ALSO:
  - service.go:  dedup and visibility-scoped mutations
  - settings.go: typed job switches and thresholds
*/
package notification

import (
	"time"

	"github.com/warp/staffing-engine/staffing"
)

// =============================================================================
// ENUMS
// =============================================================================

type Type string

const (
	TypeDuplicateSubmission Type = "duplicate_submission"
	TypeCounsellorOverload  Type = "counsellor_overload"
	TypeEventReminder       Type = "event_reminder"
	TypeAnomalyDetected     Type = "anomaly_detected"
	TypeWeeklyReport        Type = "weekly_report"
)

func (t Type) Valid() bool {
	switch t {
	case TypeDuplicateSubmission, TypeCounsellorOverload, TypeEventReminder, TypeAnomalyDetected, TypeWeeklyReport:
		return true
	}
	return false
}

type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical:
		return true
	}
	return false
}

type Status string

const (
	StatusUnread    Status = "unread"
	StatusRead      Status = "read"
	StatusDismissed Status = "dismissed"
	StatusActioned  Status = "actioned"
)

func (s Status) Valid() bool {
	switch s {
	case StatusUnread, StatusRead, StatusDismissed, StatusActioned:
		return true
	}
	return false
}

// AudienceAll targets every role.
const AudienceAll = "all"

// =============================================================================
// NOTIFICATION
// =============================================================================

type Notification struct {
	ID       string
	Type     Type
	Priority Priority
	Title    string
	Message  string
	Metadata map[string]any

	// Audience. Either or both may be set. TargetRole is a role name or AudienceAll.
	TargetRole string
	TargetUser string

	Status       Status
	SubmissionID *staffing.SubmissionID

	ExpiresAt *time.Time
	CreatedAt time.Time
	ReadAt    *time.Time
}

// VisibleTo is the visibility predicate shared by every query and mutation.
// Expired notifications are visible to nobody.
func (n Notification) VisibleTo(viewer staffing.Principal, now time.Time) bool {
	if n.ExpiresAt != nil && !n.ExpiresAt.After(now) {
		return false
	}
	switch {
	case n.TargetRole != "" && n.TargetRole == string(viewer.Role):
		return true
	case n.TargetRole == AudienceAll:
		return true
	case n.TargetUser != "" && n.TargetUser == viewer.Username:
		return true
	}
	return false
}

// SameSubject reports whether n would deduplicate against a new notification
// of typ/title/submission.
func (n Notification) SameSubject(typ Type, title string, submissionID *staffing.SubmissionID) bool {
	if n.Type != typ || n.Title != title {
		return false
	}
	if n.SubmissionID == nil || submissionID == nil {
		return n.SubmissionID == nil && submissionID == nil
	}
	return *n.SubmissionID == *submissionID
}
