package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/warp/staffing-engine/notification"
	"github.com/warp/staffing-engine/staffing"
)

// =============================================================================
// NOTIFICATIONS
// =============================================================================

const notificationColumns = `id, type, priority, title, message, metadata,
	target_role, target_user, status, submission_id, expires_at, created_at, read_at`

// visibleTo is the SQL form of Notification.VisibleTo. Binds (now, role, username).
const visibleTo = `(expires_at IS NULL OR expires_at > ?)
	AND ((target_role <> '' AND target_role = ?) OR target_role = 'all' OR (target_user <> '' AND target_user = ?))`

func visibleArgs(viewer staffing.Principal, now time.Time) []any {
	return []any{formatTime(now), string(viewer.Role), viewer.Username}
}

func (c *conn) InsertNotification(ctx context.Context, n *notification.Notification) error {
	metadata, err := encodeJSON(n.Metadata)
	if err != nil {
		return err
	}
	_, err = c.q.ExecContext(ctx, `
		INSERT INTO notifications (`+notificationColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		n.ID, n.Type, n.Priority, n.Title, n.Message, metadata,
		n.TargetRole, n.TargetUser, n.Status, nullInt64(n.SubmissionID),
		nullTime(n.ExpiresAt), formatTime(n.CreatedAt), nullTime(n.ReadAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert notification: %w", err)
	}
	return nil
}

func (c *conn) FindRecentUnread(ctx context.Context, typ notification.Type, title string, submissionID *staffing.SubmissionID, since time.Time) (*notification.Notification, error) {
	row := c.q.QueryRowContext(ctx, `
		SELECT `+notificationColumns+` FROM notifications
		WHERE type = ? AND title = ? AND submission_id IS ? AND status = ? AND created_at >= ?
		ORDER BY created_at DESC, id DESC
		LIMIT 1`,
		typ, title, nullInt64(submissionID), notification.StatusUnread, formatTime(since),
	)
	n, err := scanNotification(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &n, nil
}

func (c *conn) ExistsForSubmission(ctx context.Context, typ notification.Type, title string, submissionID staffing.SubmissionID) (bool, error) {
	var n int
	err := c.q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM notifications WHERE type = ? AND title = ? AND submission_id = ?`,
		typ, title, submissionID,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to check notifications: %w", err)
	}
	return n > 0, nil
}

func (c *conn) DeleteByType(ctx context.Context, typ notification.Type) (int64, error) {
	return c.deleteNotifications(ctx, `DELETE FROM notifications WHERE type = ?`, typ)
}

func (c *conn) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	return c.deleteNotifications(ctx, `DELETE FROM notifications WHERE expires_at IS NOT NULL AND expires_at <= ?`, formatTime(now))
}

func (c *conn) ListNotifications(ctx context.Context, viewer staffing.Principal, now time.Time, f notification.ListFilter) ([]notification.Notification, error) {
	where, args := feedWhere(viewer, now, f)
	query := `SELECT ` + notificationColumns + ` FROM notifications WHERE ` + where + ` ORDER BY created_at DESC, id DESC`
	if f.Limit > 0 || f.Offset > 0 {
		limit := f.Limit
		if limit <= 0 {
			limit = -1
		}
		query += ` LIMIT ? OFFSET ?`
		args = append(args, limit, f.Offset)
	}

	rows, err := c.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query notifications: %w", err)
	}
	defer rows.Close()

	var out []notification.Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func (c *conn) CountNotifications(ctx context.Context, viewer staffing.Principal, now time.Time, f notification.ListFilter) (int, error) {
	where, args := feedWhere(viewer, now, f)
	var n int
	if err := c.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM notifications WHERE `+where, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count notifications: %w", err)
	}
	return n, nil
}

func (c *conn) UpdateNotificationStatus(ctx context.Context, viewer staffing.Principal, now time.Time, id string, status notification.Status) (bool, error) {
	// read_at records the first read only.
	args := []any{status, status, formatTime(now), id}
	res, err := c.q.ExecContext(ctx, `
		UPDATE notifications
		SET status = ?, read_at = CASE WHEN ? = 'read' AND read_at IS NULL THEN ? ELSE read_at END
		WHERE id = ? AND `+visibleTo,
		append(args, visibleArgs(viewer, now)...)...,
	)
	if err != nil {
		return false, fmt.Errorf("failed to update notification: %w", err)
	}
	n, err := rowsAffected(res)
	return n > 0, err
}

func (c *conn) MarkAllRead(ctx context.Context, viewer staffing.Principal, now time.Time) (int64, error) {
	args := []any{notification.StatusRead, formatTime(now), notification.StatusUnread}
	res, err := c.q.ExecContext(ctx, `
		UPDATE notifications SET status = ?, read_at = ?
		WHERE status = ? AND `+visibleTo,
		append(args, visibleArgs(viewer, now)...)...,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to mark notifications read: %w", err)
	}
	return rowsAffected(res)
}

func (c *conn) DeleteNotification(ctx context.Context, viewer staffing.Principal, now time.Time, id string) (bool, error) {
	n, err := c.deleteNotifications(ctx, `DELETE FROM notifications WHERE id = ? AND `+visibleTo,
		append([]any{id}, visibleArgs(viewer, now)...)...)
	return n > 0, err
}

func (c *conn) DeleteRead(ctx context.Context, viewer staffing.Principal, now time.Time) (int64, error) {
	return c.deleteNotifications(ctx, `DELETE FROM notifications WHERE status = ? AND `+visibleTo,
		append([]any{notification.StatusRead}, visibleArgs(viewer, now)...)...)
}

func (c *conn) deleteNotifications(ctx context.Context, query string, args ...any) (int64, error) {
	res, err := c.q.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to delete notifications: %w", err)
	}
	return rowsAffected(res)
}

func feedWhere(viewer staffing.Principal, now time.Time, f notification.ListFilter) (string, []any) {
	where := visibleTo
	args := visibleArgs(viewer, now)
	if f.Status != "" {
		where += ` AND status = ?`
		args = append(args, string(f.Status))
	}
	if f.Type != "" {
		where += ` AND type = ?`
		args = append(args, string(f.Type))
	}
	return where, args
}

func scanNotification(row scanner) (notification.Notification, error) {
	var (
		n                 notification.Notification
		metadata          sql.NullString
		submissionID      sql.NullInt64
		expiresAt, readAt sql.NullString
		createdAt         string
	)
	err := row.Scan(&n.ID, &n.Type, &n.Priority, &n.Title, &n.Message, &metadata,
		&n.TargetRole, &n.TargetUser, &n.Status, &submissionID, &expiresAt, &createdAt, &readAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return n, err
		}
		return n, fmt.Errorf("failed to scan notification: %w", err)
	}
	if n.Metadata, err = decodeJSON(metadata); err != nil {
		return n, err
	}
	n.SubmissionID = int64Ptr[staffing.SubmissionID](submissionID)
	if n.ExpiresAt, err = parseNullTime(expiresAt); err != nil {
		return n, err
	}
	if n.ReadAt, err = parseNullTime(readAt); err != nil {
		return n, err
	}
	if n.CreatedAt, err = parseTime(createdAt); err != nil {
		return n, err
	}
	return n, nil
}

// =============================================================================
// SETTINGS
// =============================================================================

func (c *conn) GetSetting(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := c.q.QueryRowContext(ctx, `SELECT value FROM notification_settings WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read setting %s: %w", key, err)
	}
	return value, true, nil
}

func (c *conn) ListSettings(ctx context.Context) (map[string]string, error) {
	rows, err := c.q.QueryContext(ctx, `SELECT key, value FROM notification_settings`)
	if err != nil {
		return nil, fmt.Errorf("failed to query settings: %w", err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("failed to scan setting: %w", err)
		}
		out[k] = v
	}
	return out, rows.Err()
}

func (c *conn) SetSetting(ctx context.Context, key, value string, at time.Time) error {
	_, err := c.q.ExecContext(ctx, `
		INSERT INTO notification_settings (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT (key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, formatTime(at),
	)
	if err != nil {
		return fmt.Errorf("failed to save setting %s: %w", key, err)
	}
	return nil
}
