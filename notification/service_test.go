package notification_test

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/staffing-engine/generic"
	"github.com/warp/staffing-engine/metrics"
	"github.com/warp/staffing-engine/notification"
	"github.com/warp/staffing-engine/staffing"
	"github.com/warp/staffing-engine/store/memory"
)

var (
	admin = staffing.Principal{Username: "root", Role: staffing.RoleAdmin}
	alice = staffing.Principal{Username: "alice", Role: staffing.RoleCounsellor}
	bob   = staffing.Principal{Username: "bob", Role: staffing.RoleCounsellor}
)

// movableClock lets a test advance time between calls.
type movableClock struct{ t time.Time }

func (c *movableClock) now() time.Time          { return c.t }
func (c *movableClock) advance(d time.Duration) { c.t = c.t.Add(d) }
func (c *movableClock) clock() generic.Clock    { return c.now }

func newService(t *testing.T) (*notification.Service, *movableClock) {
	t.Helper()
	mc := &movableClock{t: time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)}
	svc := notification.NewService(memory.New(), mc.clock(), slog.New(slog.NewTextHandler(io.Discard, nil)), metrics.NewNop())
	return svc, mc
}

func subID(v int64) *staffing.SubmissionID {
	id := staffing.SubmissionID(v)
	return &id
}

// =============================================================================
// CREATE & DEDUP
// =============================================================================

func TestCreate_DedupWithinHour(t *testing.T) {
	// GIVEN: An unread overload notification
	svc, mc := newService(t)
	ctx := context.Background()
	n := notification.Notification{Type: notification.TypeCounsellorOverload, Title: "Counsellor overload: bob"}

	first, created, err := svc.Create(ctx, n)
	require.NoError(t, err)
	require.True(t, created)

	// WHEN: The same subject is raised 59 minutes later
	mc.advance(59 * time.Minute)
	second, created, err := svc.Create(ctx, n)

	// THEN: The existing id comes back and nothing is inserted
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first, second)

	// Outside the window a new row is created
	mc.advance(2 * time.Minute)
	third, created, err := svc.Create(ctx, n)
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotEqual(t, first, third)
}

func TestCreate_DedupKeyIncludesSubmission(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	_, created, err := svc.Create(ctx, notification.Notification{Type: notification.TypeEventReminder, Title: "7-day reminder", SubmissionID: subID(1)})
	require.NoError(t, err)
	require.True(t, created)

	_, created, err = svc.Create(ctx, notification.Notification{Type: notification.TypeEventReminder, Title: "7-day reminder", SubmissionID: subID(2)})
	require.NoError(t, err)
	assert.True(t, created, "different submission")

	_, created, err = svc.Create(ctx, notification.Notification{Type: notification.TypeEventReminder, Title: "7-day reminder"})
	require.NoError(t, err)
	assert.True(t, created, "nil submission is its own subject")
}

func TestCreate_ReadNotificationDoesNotSuppress(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	n := notification.Notification{Type: notification.TypeAnomalyDetected, Title: "Bulk deletion by alice"}

	id, _, err := svc.Create(ctx, n)
	require.NoError(t, err)
	require.NoError(t, svc.MarkRead(ctx, admin, id))

	_, created, err := svc.Create(ctx, n)
	require.NoError(t, err)
	assert.True(t, created)
}

func TestCreate_WeeklyReportSupersedes(t *testing.T) {
	svc, mc := newService(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, created, err := svc.Create(ctx, notification.Notification{Type: notification.TypeWeeklyReport, Title: "Weekly staffing report"})
		require.NoError(t, err)
		assert.True(t, created)
		mc.advance(time.Minute)
	}

	page, err := svc.List(ctx, admin, notification.ListFilter{Type: notification.TypeWeeklyReport})
	require.NoError(t, err)
	assert.Equal(t, 1, page.Total)
}

func TestCreate_ConcurrentSameSubjectRaisedOnce(t *testing.T) {
	// GIVEN: Many detectors raising the same subject at once
	svc, _ := newService(t)
	ctx := context.Background()
	n := notification.Notification{Type: notification.TypeDuplicateSubmission, Title: "Possible duplicate: #1 and #2", SubmissionID: subID(2)}

	// WHEN
	var created atomic.Int32
	var wg sync.WaitGroup
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, ok, err := svc.Create(ctx, n)
			assert.NoError(t, err)
			if ok {
				created.Add(1)
			}
		}()
	}
	wg.Wait()

	// THEN: Exactly one row exists
	assert.Equal(t, int32(1), created.Load())
	page, err := svc.List(ctx, admin, notification.ListFilter{})
	require.NoError(t, err)
	assert.Equal(t, 1, page.Total)
}

func TestCreate_Defaults(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	_, _, err := svc.Create(ctx, notification.Notification{Type: notification.TypeCounsellorOverload, Title: "x"})
	require.NoError(t, err)

	page, err := svc.List(ctx, admin, notification.ListFilter{})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, notification.PriorityMedium, page.Items[0].Priority)
	assert.Equal(t, notification.StatusUnread, page.Items[0].Status)
	assert.Equal(t, "admin", page.Items[0].TargetRole)
	assert.Len(t, page.Items[0].ID, 36)
}

func TestCreate_Validation(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	_, _, err := svc.Create(ctx, notification.Notification{Type: "nope", Title: "x"})
	assert.ErrorIs(t, err, generic.ErrValidation)

	_, _, err = svc.Create(ctx, notification.Notification{Type: notification.TypeEventReminder})
	assert.ErrorIs(t, err, generic.ErrValidation)
}

// =============================================================================
// VISIBILITY
// =============================================================================

func seedAudience(t *testing.T, svc *notification.Service) map[string]string {
	t.Helper()
	ctx := context.Background()
	ids := map[string]string{}
	for key, n := range map[string]notification.Notification{
		"admins":     {Type: notification.TypeCounsellorOverload, Title: "admins", TargetRole: "admin"},
		"counsellor": {Type: notification.TypeEventReminder, Title: "counsellors", TargetRole: "counsellor"},
		"everyone":   {Type: notification.TypeAnomalyDetected, Title: "everyone", TargetRole: notification.AudienceAll},
		"alice":      {Type: notification.TypeEventReminder, Title: "alice only", TargetUser: "alice"},
	} {
		id, _, err := svc.Create(ctx, n)
		require.NoError(t, err)
		ids[key] = id
	}
	return ids
}

func TestList_VisibilityPredicate(t *testing.T) {
	svc, _ := newService(t)
	seedAudience(t, svc)
	ctx := context.Background()

	tests := []struct {
		viewer staffing.Principal
		want   int
	}{
		{admin, 2},
		{alice, 3},
		{bob, 2},
	}
	for _, tt := range tests {
		page, err := svc.List(ctx, tt.viewer, notification.ListFilter{})
		require.NoError(t, err)
		assert.Equal(t, tt.want, page.Total, tt.viewer.Username)
		assert.Equal(t, tt.want, page.Unread, tt.viewer.Username)
	}
}

func TestMutations_ScopedToVisibility(t *testing.T) {
	svc, _ := newService(t)
	ids := seedAudience(t, svc)
	ctx := context.Background()

	assert.ErrorIs(t, svc.MarkRead(ctx, bob, ids["alice"]), generic.ErrNotFound)
	assert.ErrorIs(t, svc.Dismiss(ctx, bob, ids["admins"]), generic.ErrNotFound)
	assert.ErrorIs(t, svc.Delete(ctx, alice, ids["admins"]), generic.ErrNotFound)
	assert.ErrorIs(t, svc.MarkRead(ctx, alice, "missing"), generic.ErrNotFound)

	require.NoError(t, svc.MarkRead(ctx, alice, ids["alice"]))
	require.NoError(t, svc.MarkActioned(ctx, alice, ids["counsellor"]))

	unread, err := svc.UnreadCount(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, 1, unread)
}

func TestMarkAllReadAndClearRead(t *testing.T) {
	svc, _ := newService(t)
	seedAudience(t, svc)
	ctx := context.Background()

	n, err := svc.MarkAllRead(ctx, bob)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	// alice still sees her own notification unread
	unread, err := svc.UnreadCount(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, 1, unread)

	cleared, err := svc.ClearRead(ctx, bob)
	require.NoError(t, err)
	assert.EqualValues(t, 2, cleared)

	page, err := svc.List(ctx, admin, notification.ListFilter{})
	require.NoError(t, err)
	assert.Equal(t, 1, page.Total, "everyone-notification was cleared by bob")
}

func TestExpiredHiddenAndPurged(t *testing.T) {
	svc, mc := newService(t)
	ctx := context.Background()
	expires := mc.t.Add(30 * time.Minute)

	_, _, err := svc.Create(ctx, notification.Notification{Type: notification.TypeAnomalyDetected, Title: "soon gone", ExpiresAt: &expires})
	require.NoError(t, err)

	count, err := svc.UnreadCount(ctx, admin)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	mc.advance(time.Hour)
	count, err = svc.UnreadCount(ctx, admin)
	require.NoError(t, err)
	assert.Zero(t, count)

	purged, err := svc.PurgeExpired(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, purged)
}

func TestList_Pagination(t *testing.T) {
	svc, mc := newService(t)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		_, _, err := svc.Create(ctx, notification.Notification{Type: notification.TypeAnomalyDetected, Title: string(rune('a' + i))})
		require.NoError(t, err)
		mc.advance(time.Second)
	}

	page, err := svc.List(ctx, admin, notification.ListFilter{Limit: 2, Offset: 1})
	require.NoError(t, err)
	assert.Equal(t, 5, page.Total)
	require.Len(t, page.Items, 2)
	assert.Equal(t, "d", page.Items[0].Title, "newest first")
}

// =============================================================================
// SETTINGS
// =============================================================================

func TestSettings_DefaultsAndUpdate(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	s, err := svc.Settings(ctx)
	require.NoError(t, err)
	assert.Equal(t, notification.DefaultSettings(), s)
	assert.Equal(t, []int{30, 14, 7, 3, 1}, s.ReminderDays)
	assert.Equal(t, 5, s.OverloadThreshold)
	assert.Equal(t, "0.7", s.DuplicateThreshold.String())

	require.NoError(t, svc.UpdateSettings(ctx, admin, map[string]string{
		notification.KeyOverloadThreshold: "3",
		notification.KeyReminderDays:      "1, 7,7,21",
	}))

	s, err = svc.Settings(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, s.OverloadThreshold)
	assert.Equal(t, []int{21, 7, 1}, s.ReminderDays)

	raw, err := svc.RawSettings(ctx, admin)
	require.NoError(t, err)
	assert.Len(t, raw, 8)
	assert.Equal(t, "3", raw[notification.KeyOverloadThreshold])
}

func TestSettings_Validation(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	bad := []map[string]string{
		{"made_up": "1"},
		{notification.KeyDuplicateThreshold: "1.5"},
		{notification.KeyOverloadThreshold: "0"},
		{notification.KeyWeeklyReportEnabled: "yes"},
		{notification.KeyReminderDays: "7,x"},
		{notification.KeyReminderDays: ""},
		{},
	}
	for _, updates := range bad {
		assert.ErrorIs(t, svc.UpdateSettings(ctx, admin, updates), generic.ErrValidation, "%v", updates)
	}

	// Nothing partial was written
	raw, err := svc.RawSettings(ctx, admin)
	require.NoError(t, err)
	assert.Equal(t, notification.DefaultValues(), raw)
}

func TestSettings_AdminOnly(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	assert.ErrorIs(t, svc.UpdateSettings(ctx, alice, map[string]string{notification.KeyOverloadThreshold: "3"}), generic.ErrForbidden)
	_, err := svc.RawSettings(ctx, alice)
	assert.ErrorIs(t, err, generic.ErrForbidden)
}

func TestSetting_StoredOrDefault(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	require.NoError(t, svc.UpdateSettings(ctx, admin, map[string]string{notification.KeyOverloadThreshold: "3"}))

	v, stored, err := svc.Setting(ctx, admin, notification.KeyOverloadThreshold)
	require.NoError(t, err)
	assert.True(t, stored)
	assert.Equal(t, "3", v)

	v, stored, err = svc.Setting(ctx, admin, notification.KeyReminderDays)
	require.NoError(t, err)
	assert.False(t, stored)
	assert.Equal(t, notification.DefaultValues()[notification.KeyReminderDays], v)

	_, _, err = svc.Setting(ctx, admin, "made_up")
	assert.True(t, generic.IsNotFound(err))
	_, _, err = svc.Setting(ctx, alice, notification.KeyOverloadThreshold)
	assert.ErrorIs(t, err, generic.ErrForbidden)
}

func TestParseSettings_BadStoredValueFallsBack(t *testing.T) {
	s, err := notification.ParseSettings(map[string]string{notification.KeyOverloadThreshold: "lots"})
	assert.Error(t, err)
	assert.Equal(t, 5, s.OverloadThreshold)
}
