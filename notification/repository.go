package notification

import (
	"context"
	"time"

	"github.com/warp/staffing-engine/staffing"
)

// ListFilter narrows a viewer's feed. Zero values mean "no constraint".
// Results are ordered newest first.
type ListFilter struct {
	Status Status
	Type   Type
	Limit  int
	Offset int
}

// Feed is the part of the repository that Create composes. Its calls can
// run together inside WithFeedTx.
type Feed interface {
	InsertNotification(ctx context.Context, n *Notification) error

	// FindRecentUnread returns the newest unread notification with the same
	// subject created at or after since, or nil.
	FindRecentUnread(ctx context.Context, typ Type, title string, submissionID *staffing.SubmissionID, since time.Time) (*Notification, error)

	DeleteByType(ctx context.Context, typ Type) (int64, error)
}

// Repository persists notifications and settings.
//
// Every viewer-scoped method applies Notification.VisibleTo with now, so a
// caller can never read or mutate a row outside its audience. Mutations
// report whether a visible row was affected.
type Repository interface {
	Feed

	// WithFeedTx executes fn atomically. Concurrent callers are serialized,
	// so a check made through tx still holds when fn writes.
	WithFeedTx(ctx context.Context, fn func(tx Feed) error) error

	// ExistsForSubmission reports whether any notification (any status) with
	// the same subject exists.
	ExistsForSubmission(ctx context.Context, typ Type, title string, submissionID staffing.SubmissionID) (bool, error)

	DeleteExpired(ctx context.Context, now time.Time) (int64, error)

	ListNotifications(ctx context.Context, viewer staffing.Principal, now time.Time, filter ListFilter) ([]Notification, error)
	CountNotifications(ctx context.Context, viewer staffing.Principal, now time.Time, filter ListFilter) (int, error)
	UpdateNotificationStatus(ctx context.Context, viewer staffing.Principal, now time.Time, id string, status Status) (bool, error)
	MarkAllRead(ctx context.Context, viewer staffing.Principal, now time.Time) (int64, error)
	DeleteNotification(ctx context.Context, viewer staffing.Principal, now time.Time, id string) (bool, error)
	DeleteRead(ctx context.Context, viewer staffing.Principal, now time.Time) (int64, error)

	// Settings. GetSetting reports found=false for keys never written.
	GetSetting(ctx context.Context, key string) (value string, found bool, err error)
	ListSettings(ctx context.Context) (map[string]string, error)
	SetSetting(ctx context.Context, key, value string, at time.Time) error
}
