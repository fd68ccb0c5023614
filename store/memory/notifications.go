package memory

import (
	"context"
	"sort"
	"time"

	"github.com/warp/staffing-engine/notification"
	"github.com/warp/staffing-engine/staffing"
)

// =============================================================================
// NOTIFICATIONS
// =============================================================================

// WithFeedTx executes fn with exclusive access. Writes made by fn are
// discarded if it returns an error.
func (m *Store) WithFeedTx(_ context.Context, fn func(notification.Feed) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := m.d.clone()
	if err := fn(m.d); err != nil {
		m.d = snapshot
		return err
	}
	return nil
}

func (m *Store) InsertNotification(ctx context.Context, n *notification.Notification) error {
	d, unlock := m.write()
	defer unlock()
	return d.InsertNotification(ctx, n)
}

func (m *Store) FindRecentUnread(ctx context.Context, typ notification.Type, title string, submissionID *staffing.SubmissionID, since time.Time) (*notification.Notification, error) {
	d, unlock := m.read()
	defer unlock()
	return d.FindRecentUnread(ctx, typ, title, submissionID, since)
}

func (m *Store) DeleteByType(ctx context.Context, typ notification.Type) (int64, error) {
	d, unlock := m.write()
	defer unlock()
	return d.DeleteByType(ctx, typ)
}

// ---- feed, unlocked ----

func (d *data) InsertNotification(_ context.Context, n *notification.Notification) error {
	d.notifications[n.ID] = *n
	return nil
}

func (d *data) FindRecentUnread(_ context.Context, typ notification.Type, title string, submissionID *staffing.SubmissionID, since time.Time) (*notification.Notification, error) {
	var found *notification.Notification
	for _, n := range d.notifications {
		if n.Status != notification.StatusUnread || n.CreatedAt.Before(since) || !n.SameSubject(typ, title, submissionID) {
			continue
		}
		if found == nil || n.CreatedAt.After(found.CreatedAt) {
			found = &n
		}
	}
	return found, nil
}

func (d *data) DeleteByType(_ context.Context, typ notification.Type) (int64, error) {
	return d.deleteWhere(func(n notification.Notification) bool { return n.Type == typ }), nil
}

func (m *Store) ExistsForSubmission(_ context.Context, typ notification.Type, title string, submissionID staffing.SubmissionID) (bool, error) {
	d, unlock := m.read()
	defer unlock()
	for _, n := range d.notifications {
		if n.SameSubject(typ, title, &submissionID) {
			return true, nil
		}
	}
	return false, nil
}

func (m *Store) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	d, unlock := m.write()
	defer unlock()
	return d.deleteWhere(func(n notification.Notification) bool {
		return n.ExpiresAt != nil && !n.ExpiresAt.After(now)
	}), nil
}

func (m *Store) ListNotifications(_ context.Context, viewer staffing.Principal, now time.Time, f notification.ListFilter) ([]notification.Notification, error) {
	d, unlock := m.read()
	defer unlock()

	out := d.visible(viewer, now, f)
	if f.Offset > 0 {
		if f.Offset >= len(out) {
			return nil, nil
		}
		out = out[f.Offset:]
	}
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (m *Store) CountNotifications(_ context.Context, viewer staffing.Principal, now time.Time, f notification.ListFilter) (int, error) {
	d, unlock := m.read()
	defer unlock()
	return len(d.visible(viewer, now, f)), nil
}

func (m *Store) UpdateNotificationStatus(_ context.Context, viewer staffing.Principal, now time.Time, id string, status notification.Status) (bool, error) {
	d, unlock := m.write()
	defer unlock()

	n, ok := d.notifications[id]
	if !ok || !n.VisibleTo(viewer, now) {
		return false, nil
	}
	n.Status = status
	if status == notification.StatusRead && n.ReadAt == nil {
		at := now
		n.ReadAt = &at
	}
	d.notifications[id] = n
	return true, nil
}

func (m *Store) MarkAllRead(_ context.Context, viewer staffing.Principal, now time.Time) (int64, error) {
	d, unlock := m.write()
	defer unlock()

	var count int64
	for id, n := range d.notifications {
		if n.Status != notification.StatusUnread || !n.VisibleTo(viewer, now) {
			continue
		}
		at := now
		n.Status = notification.StatusRead
		n.ReadAt = &at
		d.notifications[id] = n
		count++
	}
	return count, nil
}

func (m *Store) DeleteNotification(_ context.Context, viewer staffing.Principal, now time.Time, id string) (bool, error) {
	d, unlock := m.write()
	defer unlock()

	n, ok := d.notifications[id]
	if !ok || !n.VisibleTo(viewer, now) {
		return false, nil
	}
	delete(d.notifications, id)
	return true, nil
}

func (m *Store) DeleteRead(_ context.Context, viewer staffing.Principal, now time.Time) (int64, error) {
	d, unlock := m.write()
	defer unlock()
	return d.deleteWhere(func(n notification.Notification) bool {
		return n.Status == notification.StatusRead && n.VisibleTo(viewer, now)
	}), nil
}

func (d *data) deleteWhere(match func(notification.Notification) bool) int64 {
	var count int64
	for id, n := range d.notifications {
		if match(n) {
			delete(d.notifications, id)
			count++
		}
	}
	return count
}

func (d *data) visible(viewer staffing.Principal, now time.Time, f notification.ListFilter) []notification.Notification {
	var out []notification.Notification
	for _, n := range d.notifications {
		if !n.VisibleTo(viewer, now) {
			continue
		}
		if f.Status != "" && n.Status != f.Status {
			continue
		}
		if f.Type != "" && n.Type != f.Type {
			continue
		}
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out
}

// =============================================================================
// SETTINGS
// =============================================================================

func (m *Store) GetSetting(_ context.Context, key string) (string, bool, error) {
	d, unlock := m.read()
	defer unlock()
	v, ok := d.settings[key]
	return v, ok, nil
}

func (m *Store) ListSettings(_ context.Context) (map[string]string, error) {
	d, unlock := m.read()
	defer unlock()
	out := make(map[string]string, len(d.settings))
	for k, v := range d.settings {
		out[k] = v
	}
	return out, nil
}

func (m *Store) SetSetting(_ context.Context, key, value string, _ time.Time) error {
	d, unlock := m.write()
	defer unlock()
	d.settings[key] = value
	return nil
}
