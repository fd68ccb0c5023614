package notification

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/warp/staffing-engine/generic"
	"github.com/warp/staffing-engine/metrics"
	"github.com/warp/staffing-engine/staffing"
)

// DedupWindow is how far back an unread notification suppresses a repeat.
const DedupWindow = time.Hour

// =============================================================================
// SERVICE
// =============================================================================

type Service struct {
	Repo    Repository
	Clock   generic.Clock
	Logger  *slog.Logger
	Metrics metrics.Collector
}

func NewService(repo Repository, clock generic.Clock, logger *slog.Logger, m metrics.Collector) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if m == nil {
		m = metrics.NewNop()
	}
	return &Service{Repo: repo, Clock: clock, Logger: logger, Metrics: m}
}

// Page is one slice of a viewer's feed.
type Page struct {
	Items  []Notification
	Total  int
	Unread int
}

// =============================================================================
// CREATE
// =============================================================================

// Create inserts n unless an unread notification with the same type, title
// and related submission was created within DedupWindow, in which case the
// existing id is returned with created=false.
//
// Weekly reports skip dedup and instead delete every previous weekly report
// first, so exactly one exists at a time.
func (s *Service) Create(ctx context.Context, n Notification) (id string, created bool, err error) {
	defer func() {
		outcome := metrics.OutcomeCreated
		switch {
		case err != nil:
			outcome = metrics.OutcomeFailed
		case !created:
			outcome = metrics.OutcomeDeduplicated
		}
		s.Metrics.NotificationRaised(string(n.Type), outcome)
	}()

	if !n.Type.Valid() {
		return "", false, &generic.ValidationError{Field: "type", Message: fmt.Sprintf("invalid notification type %q", n.Type)}
	}
	if n.Title == "" {
		return "", false, &generic.ValidationError{Field: "title", Message: "title is required"}
	}

	now := s.Clock.Now()
	n.ID = uuid.NewString()
	n.Status = StatusUnread
	n.CreatedAt = now
	n.ReadAt = nil
	if !n.Priority.Valid() {
		n.Priority = PriorityMedium
	}
	if n.TargetRole == "" && n.TargetUser == "" {
		n.TargetRole = string(staffing.RoleAdmin)
	}

	// Check and insert commit together; a concurrent Create sees either
	// none or both.
	var existing *Notification
	err = s.Repo.WithFeedTx(ctx, func(tx Feed) error {
		if n.Type == TypeWeeklyReport {
			removed, err := tx.DeleteByType(ctx, TypeWeeklyReport)
			if err != nil {
				return fmt.Errorf("failed to supersede weekly reports: %w", err)
			}
			if removed > 0 {
				s.Logger.Debug("superseded weekly reports", "count", removed)
			}
		} else {
			found, err := tx.FindRecentUnread(ctx, n.Type, n.Title, n.SubmissionID, now.Add(-DedupWindow))
			if err != nil {
				return fmt.Errorf("failed to check recent notifications: %w", err)
			}
			if found != nil {
				existing = found
				return nil
			}
		}
		if err := tx.InsertNotification(ctx, &n); err != nil {
			return fmt.Errorf("failed to insert notification: %w", err)
		}
		return nil
	})
	if err != nil {
		return "", false, err
	}
	if existing != nil {
		return existing.ID, false, nil
	}
	return n.ID, true, nil
}

// =============================================================================
// FEED (viewer-scoped)
// =============================================================================

func (s *Service) List(ctx context.Context, viewer staffing.Principal, filter ListFilter) (*Page, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, &generic.ValidationError{Field: "status", Message: fmt.Sprintf("invalid status %q", filter.Status)}
	}
	if filter.Type != "" && !filter.Type.Valid() {
		return nil, &generic.ValidationError{Field: "type", Message: fmt.Sprintf("invalid type %q", filter.Type)}
	}

	now := s.Clock.Now()
	items, err := s.Repo.ListNotifications(ctx, viewer, now, filter)
	if err != nil {
		return nil, err
	}
	countFilter := ListFilter{Status: filter.Status, Type: filter.Type}
	total, err := s.Repo.CountNotifications(ctx, viewer, now, countFilter)
	if err != nil {
		return nil, err
	}
	unread, err := s.UnreadCount(ctx, viewer)
	if err != nil {
		return nil, err
	}
	return &Page{Items: items, Total: total, Unread: unread}, nil
}

func (s *Service) UnreadCount(ctx context.Context, viewer staffing.Principal) (int, error) {
	return s.Repo.CountNotifications(ctx, viewer, s.Clock.Now(), ListFilter{Status: StatusUnread})
}

func (s *Service) MarkRead(ctx context.Context, viewer staffing.Principal, id string) error {
	return s.setStatus(ctx, viewer, id, StatusRead)
}

func (s *Service) Dismiss(ctx context.Context, viewer staffing.Principal, id string) error {
	return s.setStatus(ctx, viewer, id, StatusDismissed)
}

func (s *Service) MarkActioned(ctx context.Context, viewer staffing.Principal, id string) error {
	return s.setStatus(ctx, viewer, id, StatusActioned)
}

func (s *Service) setStatus(ctx context.Context, viewer staffing.Principal, id string, status Status) error {
	ok, err := s.Repo.UpdateNotificationStatus(ctx, viewer, s.Clock.Now(), id, status)
	if err != nil {
		return err
	}
	if !ok {
		return &generic.NotFoundError{Kind: "notification", ID: id}
	}
	return nil
}

func (s *Service) Delete(ctx context.Context, viewer staffing.Principal, id string) error {
	ok, err := s.Repo.DeleteNotification(ctx, viewer, s.Clock.Now(), id)
	if err != nil {
		return err
	}
	if !ok {
		return &generic.NotFoundError{Kind: "notification", ID: id}
	}
	return nil
}

func (s *Service) MarkAllRead(ctx context.Context, viewer staffing.Principal) (int64, error) {
	return s.Repo.MarkAllRead(ctx, viewer, s.Clock.Now())
}

// ClearRead deletes the viewer's read notifications.
func (s *Service) ClearRead(ctx context.Context, viewer staffing.Principal) (int64, error) {
	return s.Repo.DeleteRead(ctx, viewer, s.Clock.Now())
}

// PurgeExpired deletes every expired notification regardless of audience.
func (s *Service) PurgeExpired(ctx context.Context) (int64, error) {
	return s.Repo.DeleteExpired(ctx, s.Clock.Now())
}

// =============================================================================
// SETTINGS
// =============================================================================

// Settings returns the typed settings. Stored values that fail to parse fall
// back to their defaults and are logged.
func (s *Service) Settings(ctx context.Context) (Settings, error) {
	raw, err := s.Repo.ListSettings(ctx)
	if err != nil {
		return Settings{}, fmt.Errorf("failed to load settings: %w", err)
	}
	settings, err := ParseSettings(raw)
	if err != nil {
		s.Logger.Warn("invalid stored settings, using defaults", "error", err)
	}
	return settings, nil
}

// RawSettings returns every known key with its stored or default value.
func (s *Service) RawSettings(ctx context.Context, viewer staffing.Principal) (map[string]string, error) {
	if !viewer.IsAdmin() {
		return nil, fmt.Errorf("%w: only admins can read settings", generic.ErrForbidden)
	}
	stored, err := s.Repo.ListSettings(ctx)
	if err != nil {
		return nil, err
	}
	out := DefaultValues()
	for k, v := range stored {
		if _, known := out[k]; known {
			out[k] = v
		}
	}
	return out, nil
}

// Setting returns one key's value. stored is false when the key was never
// written and value is its default.
func (s *Service) Setting(ctx context.Context, viewer staffing.Principal, key string) (value string, stored bool, err error) {
	if !viewer.IsAdmin() {
		return "", false, fmt.Errorf("%w: only admins can read settings", generic.ErrForbidden)
	}
	def, known := DefaultValues()[key]
	if !known {
		return "", false, &generic.NotFoundError{Kind: "setting", ID: key}
	}
	v, found, err := s.Repo.GetSetting(ctx, key)
	if err != nil {
		return "", false, fmt.Errorf("failed to load setting %s: %w", key, err)
	}
	if !found {
		return def, false, nil
	}
	return v, true, nil
}

// UpdateSettings validates every entry before writing any.
func (s *Service) UpdateSettings(ctx context.Context, viewer staffing.Principal, updates map[string]string) error {
	if !viewer.IsAdmin() {
		return fmt.Errorf("%w: only admins can update settings", generic.ErrForbidden)
	}
	if len(updates) == 0 {
		return &generic.ValidationError{Field: "settings", Message: "no settings supplied"}
	}
	for k, v := range updates {
		if err := ValidateSetting(k, v); err != nil {
			return err
		}
	}

	now := s.Clock.Now()
	for k, v := range updates {
		if err := s.Repo.SetSetting(ctx, k, v, now); err != nil {
			return fmt.Errorf("failed to save setting %s: %w", k, err)
		}
	}
	s.Logger.Info("settings updated", "by", viewer.Username, "keys", len(updates))
	return nil
}
