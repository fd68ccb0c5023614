// Package storetest is the behavioral contract every store backend must
// satisfy. Backends call Run from their own tests.
package storetest

import (
	"context"
	"errors"
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
)

// Backend is a store serving both the staffing engine and the notification feed.
type Backend interface {
	staffing.TxStore
	notification.Repository
}

// Base is the reference instant used for every stored timestamp.
var Base = time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

// Run executes the full contract. newBackend must return an empty store.
func Run(t *testing.T, newBackend func(t *testing.T) Backend) {
	t.Run("Counsellors", func(t *testing.T) { testCounsellors(t, newBackend(t)) })
	t.Run("SubmissionCRUD", func(t *testing.T) { testSubmissionCRUD(t, newBackend(t)) })
	t.Run("SubmissionFilters", func(t *testing.T) { testSubmissionFilters(t, newBackend(t)) })
	t.Run("Assignments", func(t *testing.T) { testAssignments(t, newBackend(t)) })
	t.Run("DeleteCascades", func(t *testing.T) { testDeleteCascades(t, newBackend(t)) })
	t.Run("Activity", func(t *testing.T) { testActivity(t, newBackend(t)) })
	t.Run("Dismissals", func(t *testing.T) { testDismissals(t, newBackend(t)) })
	t.Run("WithTx", func(t *testing.T) { testWithTx(t, newBackend(t)) })
	t.Run("Notifications", func(t *testing.T) { testNotifications(t, newBackend(t)) })
	t.Run("NotificationVisibility", func(t *testing.T) { testNotificationVisibility(t, newBackend(t)) })
	t.Run("FeedTx", func(t *testing.T) { testFeedTx(t, newBackend(t)) })
	t.Run("Settings", func(t *testing.T) { testSettings(t, newBackend(t)) })
	t.Run("DuplicateCandidateCap", func(t *testing.T) { testDuplicateCandidateCap(t, newBackend(t)) })
	t.Run("DuplicateCandidateSet", func(t *testing.T) { testDuplicateCandidateSet(t, newBackend(t)) })
}

// =============================================================================
// FIXTURES
// =============================================================================

func counsellor(t *testing.T, s Backend, username string) staffing.Counsellor {
	t.Helper()
	c := staffing.Counsellor{Username: username, Name: username, Active: true, CreatedAt: Base}
	require.NoError(t, s.CreateCounsellor(context.Background(), &c))
	require.NotZero(t, c.ID)
	return c
}

type subOpts struct {
	start, end string
	country    string
	status     staffing.Status
	event      staffing.EventStatus
	created    time.Time
}

func submission(t *testing.T, s Backend, by staffing.CounsellorID, o subOpts) staffing.Submission {
	t.Helper()
	if o.end == "" {
		o.end = o.start
	}
	if o.status == "" {
		o.status = staffing.StatusPending
	}
	if o.event == "" {
		o.event = staffing.EventOngoing
	}
	if o.created.IsZero() {
		o.created = Base
	}
	sub := staffing.Submission{
		StartDate:     generic.MustParseDate(o.start),
		EndDate:       generic.MustParseDate(o.end),
		City:          "City",
		Country:       o.country,
		OrganizerName: "Org",
		Status:        o.status,
		EventStatus:   o.event,
		PaymentStatus: staffing.PaymentUnpaid,
		SubmittedBy:   by,
		CreatedAt:     o.created,
		UpdatedAt:     o.created,
	}
	require.NoError(t, s.CreateSubmission(context.Background(), &sub))
	require.NotZero(t, sub.ID)
	return sub
}

func ids(subs []staffing.Submission) []staffing.SubmissionID {
	out := make([]staffing.SubmissionID, 0, len(subs))
	for _, s := range subs {
		out = append(out, s.ID)
	}
	return out
}

func counsellorIDs(list []staffing.Counsellor) []staffing.CounsellorID {
	out := make([]staffing.CounsellorID, 0, len(list))
	for _, c := range list {
		out = append(out, c.ID)
	}
	return out
}

func datePtr(s string) *generic.Date {
	d := generic.MustParseDate(s)
	return &d
}

func timePtr(t time.Time) *time.Time { return &t }

// =============================================================================
// COUNSELLORS
// =============================================================================

func testCounsellors(t *testing.T, s Backend) {
	ctx := context.Background()
	alice := counsellor(t, s, "alice")
	bob := counsellor(t, s, "bob")
	assert.NotEqual(t, alice.ID, bob.ID)

	dup := staffing.Counsellor{Username: "Alice", Active: true, CreatedAt: Base}
	assert.Error(t, s.CreateCounsellor(ctx, &dup), "usernames are case-insensitive unique")

	got, err := s.GetCounsellorByUsername(ctx, "ALICE")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, alice.ID, got.ID)

	missing, err := s.GetCounsellor(ctx, 9999)
	require.NoError(t, err)
	assert.Nil(t, missing)

	require.NoError(t, s.SetCounsellorActive(ctx, bob.ID, false))
	active, err := s.ListCounsellors(ctx, true)
	require.NoError(t, err)
	assert.Equal(t, []staffing.CounsellorID{alice.ID}, counsellorIDs(active))

	all, err := s.ListCounsellors(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, []staffing.CounsellorID{alice.ID, bob.ID}, counsellorIDs(all))

	found, err := s.FindActiveCounsellors(ctx, []staffing.CounsellorID{bob.ID, alice.ID, alice.ID, 9999})
	require.NoError(t, err)
	assert.Equal(t, []staffing.CounsellorID{alice.ID}, counsellorIDs(found))

	assert.ErrorIs(t, s.SetCounsellorActive(ctx, 9999, true), generic.ErrNotFound)
}

// =============================================================================
// SUBMISSIONS
// =============================================================================

func testSubmissionCRUD(t *testing.T, s Backend) {
	ctx := context.Background()
	alice := counsellor(t, s, "alice")
	bob := counsellor(t, s, "bob")

	orgID := int64(42)
	sub := staffing.Submission{
		StartDate:     generic.MustParseDate("2026-04-01"),
		EndDate:       generic.MustParseDate("2026-04-03"),
		City:          "Paris",
		Country:       "France",
		OrganizerID:   &orgID,
		OrganizerName: "Org",
		EventName:     "Fair",
		Remarks:       "bring banners",
		Status:        staffing.StatusPending,
		EventStatus:   staffing.EventOngoing,
		PaymentStatus: staffing.PaymentFree,
		SubmittedBy:   alice.ID,
		CreatedAt:     Base,
		UpdatedAt:     Base,
	}
	require.NoError(t, s.CreateSubmission(ctx, &sub))

	got, err := s.GetSubmission(ctx, sub.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, got.StartDate.Equal(sub.StartDate))
	assert.True(t, got.EndDate.Equal(sub.EndDate))
	assert.Equal(t, "Paris", got.City)
	require.NotNil(t, got.OrganizerID)
	assert.Equal(t, orgID, *got.OrganizerID)
	assert.Nil(t, got.EventTypeID)
	assert.Nil(t, got.SentBy)
	assert.Nil(t, got.ConfirmedAt)
	assert.Equal(t, "bring banners", got.Remarks)
	assert.Equal(t, staffing.PaymentFree, got.PaymentStatus)
	assert.True(t, got.CreatedAt.Equal(Base))

	confirmedAt := Base.Add(time.Hour)
	got.Status = staffing.StatusConfirmed
	got.ConfirmedAt = &confirmedAt
	got.SentBy = &bob.ID
	got.UpdatedAt = confirmedAt
	require.NoError(t, s.UpdateSubmission(ctx, got))

	again, err := s.GetSubmission(ctx, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, staffing.StatusConfirmed, again.Status)
	require.NotNil(t, again.SentBy)
	assert.Equal(t, bob.ID, *again.SentBy)
	require.NotNil(t, again.ConfirmedAt)
	assert.True(t, again.ConfirmedAt.Equal(confirmedAt))

	missing, err := s.GetSubmission(ctx, 9999)
	require.NoError(t, err)
	assert.Nil(t, missing)

	ghost := *again
	ghost.ID = 9999
	assert.ErrorIs(t, s.UpdateSubmission(ctx, &ghost), generic.ErrNotFound)
	assert.ErrorIs(t, s.DeleteSubmission(ctx, 9999), generic.ErrNotFound)
}

func testSubmissionFilters(t *testing.T, s Backend) {
	ctx := context.Background()
	alice := counsellor(t, s, "alice")

	s1 := submission(t, s, alice.ID, subOpts{start: "2026-04-01", end: "2026-04-03", country: "France", created: Base})
	s2 := submission(t, s, alice.ID, subOpts{start: "2026-04-02", country: "Germany", status: staffing.StatusConfirmed, created: Base.Add(time.Minute)})
	s3 := submission(t, s, alice.ID, subOpts{start: "2026-05-01", end: "2026-05-02", country: "france", event: staffing.EventCancelled, created: Base.Add(2 * time.Minute)})
	s4 := submission(t, s, alice.ID, subOpts{start: "2026-06-01", country: "USA", created: Base.Add(3 * time.Minute)})
	require.NoError(t, s.ReplaceAssignments(ctx, s2.ID, []staffing.CounsellorID{alice.ID}, Base))

	window := generic.Period{Start: generic.MustParseDate("2026-04-03"), End: generic.MustParseDate("2026-04-10")}

	tests := []struct {
		name   string
		filter staffing.SubmissionFilter
		want   []staffing.Submission
	}{
		{"all, newest first", staffing.SubmissionFilter{}, []staffing.Submission{s4, s3, s2, s1}},
		{"status", staffing.SubmissionFilter{Statuses: []staffing.Status{staffing.StatusPending}}, []staffing.Submission{s4, s3, s1}},
		{"event status", staffing.SubmissionFilter{EventStatuses: []staffing.EventStatus{staffing.EventOngoing}}, []staffing.Submission{s4, s2, s1}},
		{"country ignores case", staffing.SubmissionFilter{Country: "FRANCE"}, []staffing.Submission{s3, s1}},
		{"overlap is closed", staffing.SubmissionFilter{Overlapping: &window}, []staffing.Submission{s1}},
		{"country and overlap", staffing.SubmissionFilter{Country: "France", Overlapping: &window}, []staffing.Submission{s1}},
		{"country or overlap", staffing.SubmissionFilter{Country: "Germany", Overlapping: &window, CountryOrOverlap: true}, []staffing.Submission{s2, s1}},
		{"assigned to", staffing.SubmissionFilter{AssignedTo: &alice.ID}, []staffing.Submission{s2}},
		{"start range inclusive", staffing.SubmissionFilter{StartFrom: datePtr("2026-04-02"), StartTo: datePtr("2026-05-01")}, []staffing.Submission{s3, s2}},
		{"exclude", staffing.SubmissionFilter{ExcludeIDs: []staffing.SubmissionID{s1.ID, s2.ID}}, []staffing.Submission{s4, s3}},
		{"created half-open", staffing.SubmissionFilter{CreatedAfter: timePtr(Base.Add(time.Minute)), CreatedBefore: timePtr(Base.Add(3 * time.Minute))}, []staffing.Submission{s3, s2}},
		{"submitted by", staffing.SubmissionFilter{SubmittedBy: &alice.ID, Limit: 2, Offset: 1}, []staffing.Submission{s3, s2}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.ListSubmissions(ctx, tt.filter)
			require.NoError(t, err)
			assert.Equal(t, ids(tt.want), ids(got))
		})
	}

	count, err := s.CountSubmissions(ctx, staffing.SubmissionFilter{Limit: 1})
	require.NoError(t, err)
	assert.Equal(t, 4, count, "count ignores pagination")
}

// =============================================================================
// ASSIGNMENTS & SUGGESTIONS
// =============================================================================

func testAssignments(t *testing.T, s Backend) {
	ctx := context.Background()
	alice := counsellor(t, s, "alice")
	bob := counsellor(t, s, "bob")
	s1 := submission(t, s, alice.ID, subOpts{start: "2026-04-01", end: "2026-04-03", status: staffing.StatusConfirmed})
	s2 := submission(t, s, alice.ID, subOpts{start: "2026-04-02", status: staffing.StatusConfirmed})
	s3 := submission(t, s, alice.ID, subOpts{start: "2026-04-02"})

	require.NoError(t, s.ReplaceAssignments(ctx, s1.ID, []staffing.CounsellorID{alice.ID, bob.ID}, Base))
	require.NoError(t, s.ReplaceAssignments(ctx, s1.ID, []staffing.CounsellorID{bob.ID}, Base))
	got, err := s.ListAssignments(ctx, s1.ID)
	require.NoError(t, err)
	require.Len(t, got, 1, "replace never merges")
	assert.Equal(t, bob.ID, got[0].CounsellorID)

	assert.Error(t, s.ReplaceAssignments(ctx, s1.ID, []staffing.CounsellorID{9999}, Base))
	got, err = s.ListAssignments(ctx, s1.ID)
	require.NoError(t, err)
	assert.Len(t, got, 1, "failed replace leaves previous assignments")

	assert.ErrorIs(t, s.ReplaceAssignments(ctx, 9999, []staffing.CounsellorID{bob.ID}, Base), generic.ErrNotFound)

	// Conflicts only count confirmed submissions.
	require.NoError(t, s.ReplaceAssignments(ctx, s2.ID, []staffing.CounsellorID{bob.ID}, Base))
	require.NoError(t, s.ReplaceAssignments(ctx, s3.ID, []staffing.CounsellorID{bob.ID}, Base))
	period := generic.Period{Start: generic.MustParseDate("2026-04-02"), End: generic.MustParseDate("2026-04-05")}

	conflicts, err := s.ConfirmedConflicts(ctx, bob.ID, period, nil)
	require.NoError(t, err)
	assert.Equal(t, []staffing.SubmissionID{s1.ID, s2.ID}, ids(conflicts), "ordered by start date")

	conflicts, err = s.ConfirmedConflicts(ctx, bob.ID, period, &s1.ID)
	require.NoError(t, err)
	assert.Equal(t, []staffing.SubmissionID{s2.ID}, ids(conflicts))

	conflicts, err = s.ConfirmedConflicts(ctx, alice.ID, period, nil)
	require.NoError(t, err)
	assert.Empty(t, conflicts)

	require.NoError(t, s.ClearAssignments(ctx, s1.ID))
	got, err = s.ListAssignments(ctx, s1.ID)
	require.NoError(t, err)
	assert.Empty(t, got)

	require.NoError(t, s.ReplaceSuggestions(ctx, s3.ID, []staffing.CounsellorID{alice.ID, bob.ID}, Base))
	sugg, err := s.ListSuggestions(ctx, s3.ID)
	require.NoError(t, err)
	assert.Len(t, sugg, 2)

	require.NoError(t, s.ReplaceSuggestions(ctx, s3.ID, nil, Base))
	sugg, err = s.ListSuggestions(ctx, s3.ID)
	require.NoError(t, err)
	assert.Empty(t, sugg)
}

func testDeleteCascades(t *testing.T, s Backend) {
	ctx := context.Background()
	alice := counsellor(t, s, "alice")
	s1 := submission(t, s, alice.ID, subOpts{start: "2026-04-01"})
	s2 := submission(t, s, alice.ID, subOpts{start: "2026-04-01"})

	require.NoError(t, s.ReplaceAssignments(ctx, s1.ID, []staffing.CounsellorID{alice.ID}, Base))
	require.NoError(t, s.ReplaceSuggestions(ctx, s1.ID, []staffing.CounsellorID{alice.ID}, Base))
	require.NoError(t, s.DismissDuplicate(ctx, staffing.NewDuplicatePair(s1.ID, s2.ID), "root", Base))
	n := notification.Notification{
		ID: "n-1", Type: notification.TypeEventReminder, Priority: notification.PriorityLow,
		Title: "reminder", TargetRole: "admin", Status: notification.StatusUnread,
		SubmissionID: &s1.ID, CreatedAt: Base,
	}
	require.NoError(t, s.InsertNotification(ctx, &n))

	require.NoError(t, s.DeleteSubmission(ctx, s1.ID))

	assignments, err := s.ListAssignments(ctx, s1.ID)
	require.NoError(t, err)
	assert.Empty(t, assignments)
	suggestions, err := s.ListSuggestions(ctx, s1.ID)
	require.NoError(t, err)
	assert.Empty(t, suggestions)
	dismissed, err := s.IsDismissed(ctx, staffing.NewDuplicatePair(s1.ID, s2.ID))
	require.NoError(t, err)
	assert.False(t, dismissed)

	admin := staffing.Principal{Username: "root", Role: staffing.RoleAdmin}
	feed, err := s.ListNotifications(ctx, admin, Base, notification.ListFilter{})
	require.NoError(t, err)
	require.Len(t, feed, 1, "notification survives its submission")
	assert.Nil(t, feed[0].SubmissionID)
}

// =============================================================================
// ACTIVITY & DISMISSALS
// =============================================================================

func testActivity(t *testing.T, s Backend) {
	ctx := context.Background()
	entries := []staffing.ActivityEntry{
		{Action: staffing.ActionSubmissionCreated, Actor: "alice", Details: map[string]any{"city": "Paris"}, CreatedAt: Base},
		{Action: staffing.ActionSubmissionDeleted, Actor: "alice", CreatedAt: Base.Add(5 * time.Minute)},
		{Action: staffing.ActionSubmissionDeleted, Actor: "bob", CreatedAt: Base.Add(10 * time.Minute)},
	}
	for _, e := range entries {
		require.NoError(t, s.AppendActivity(ctx, e))
	}

	all, err := s.ListActivity(ctx, staffing.ActivityFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "Paris", all[0].Details["city"])
	assert.NotZero(t, all[0].ID)

	deletes, err := s.ListActivity(ctx, staffing.ActivityFilter{Action: staffing.ActionSubmissionDeleted, Actor: "alice"})
	require.NoError(t, err)
	assert.Len(t, deletes, 1)

	window, err := s.ListActivity(ctx, staffing.ActivityFilter{Since: timePtr(Base.Add(5 * time.Minute)), Until: timePtr(Base.Add(10 * time.Minute))})
	require.NoError(t, err)
	require.Len(t, window, 1, "since inclusive, until exclusive")
	assert.Equal(t, "alice", window[0].Actor)

	removed, err := s.PruneActivity(ctx, Base.Add(6*time.Minute))
	require.NoError(t, err)
	assert.EqualValues(t, 2, removed)
}

func testDismissals(t *testing.T, s Backend) {
	ctx := context.Background()
	alice := counsellor(t, s, "alice")
	a := submission(t, s, alice.ID, subOpts{start: "2026-04-01"})
	b := submission(t, s, alice.ID, subOpts{start: "2026-04-01"})
	c := submission(t, s, alice.ID, subOpts{start: "2026-04-01"})

	require.NoError(t, s.DismissDuplicate(ctx, staffing.DuplicatePair{A: b.ID, B: a.ID}, "root", Base))
	require.NoError(t, s.DismissDuplicate(ctx, staffing.NewDuplicatePair(a.ID, b.ID), "root", Base), "idempotent")

	dismissed, err := s.IsDismissed(ctx, staffing.NewDuplicatePair(b.ID, a.ID))
	require.NoError(t, err)
	assert.True(t, dismissed)

	dismissed, err = s.IsDismissed(ctx, staffing.NewDuplicatePair(a.ID, c.ID))
	require.NoError(t, err)
	assert.False(t, dismissed)

	partners, err := s.DismissedPartners(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, map[staffing.SubmissionID]bool{a.ID: true}, partners)
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

func testWithTx(t *testing.T, s Backend) {
	ctx := context.Background()
	boom := errors.New("boom")

	err := s.WithTx(ctx, func(tx staffing.Store) error {
		c := staffing.Counsellor{Username: "ghost", Active: true, CreatedAt: Base}
		if err := tx.CreateCounsellor(ctx, &c); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	ghost, err := s.GetCounsellorByUsername(ctx, "ghost")
	require.NoError(t, err)
	assert.Nil(t, ghost, "rolled back")

	require.NoError(t, s.WithTx(ctx, func(tx staffing.Store) error {
		c := staffing.Counsellor{Username: "kept", Active: true, CreatedAt: Base}
		if err := tx.CreateCounsellor(ctx, &c); err != nil {
			return err
		}
		sub := staffing.Submission{
			StartDate: generic.MustParseDate("2026-04-01"), EndDate: generic.MustParseDate("2026-04-01"),
			City: "x", Country: "y", Status: staffing.StatusPending, EventStatus: staffing.EventOngoing,
			PaymentStatus: staffing.PaymentUnpaid, SubmittedBy: c.ID, CreatedAt: Base, UpdatedAt: Base,
		}
		if err := tx.CreateSubmission(ctx, &sub); err != nil {
			return err
		}
		return tx.ReplaceAssignments(ctx, sub.ID, []staffing.CounsellorID{c.ID}, Base)
	}))

	kept, err := s.GetCounsellorByUsername(ctx, "kept")
	require.NoError(t, err)
	require.NotNil(t, kept)
	count, err := s.CountSubmissions(ctx, staffing.SubmissionFilter{AssignedTo: &kept.ID})
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

// =============================================================================
// NOTIFICATIONS
// =============================================================================

func note(id string, typ notification.Type, title string, at time.Time) notification.Notification {
	return notification.Notification{
		ID: id, Type: typ, Priority: notification.PriorityMedium, Title: title,
		Message: "m", Metadata: map[string]any{"rule": "test"},
		TargetRole: "admin", Status: notification.StatusUnread, CreatedAt: at,
	}
}

func testNotifications(t *testing.T, s Backend) {
	ctx := context.Background()
	admin := staffing.Principal{Username: "root", Role: staffing.RoleAdmin}
	alice := counsellor(t, s, "alice")
	sub := submission(t, s, alice.ID, subOpts{start: "2026-04-01"})

	plain := note("a", notification.TypeCounsellorOverload, "overload", Base)
	linked := note("b", notification.TypeEventReminder, "reminder", Base.Add(time.Minute))
	linked.SubmissionID = &sub.ID
	expires := Base.Add(time.Hour)
	expiring := note("c", notification.TypeAnomalyDetected, "spike", Base.Add(2*time.Minute))
	expiring.ExpiresAt = &expires
	weekly := note("d", notification.TypeWeeklyReport, "weekly", Base.Add(3*time.Minute))
	for _, n := range []notification.Notification{plain, linked, expiring, weekly} {
		n := n
		require.NoError(t, s.InsertNotification(ctx, &n))
	}

	// Dedup lookup matches nil submission only against nil.
	found, err := s.FindRecentUnread(ctx, notification.TypeCounsellorOverload, "overload", nil, Base)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, "a", found.ID)
	assert.Equal(t, "test", found.Metadata["rule"])

	found, err = s.FindRecentUnread(ctx, notification.TypeCounsellorOverload, "overload", nil, Base.Add(time.Second))
	require.NoError(t, err)
	assert.Nil(t, found, "older than since")

	found, err = s.FindRecentUnread(ctx, notification.TypeEventReminder, "reminder", nil, Base)
	require.NoError(t, err)
	assert.Nil(t, found, "linked notification is a different subject")

	found, err = s.FindRecentUnread(ctx, notification.TypeEventReminder, "reminder", &sub.ID, Base)
	require.NoError(t, err)
	require.NotNil(t, found)
	require.NotNil(t, found.SubmissionID)
	assert.Equal(t, sub.ID, *found.SubmissionID)

	exists, err := s.ExistsForSubmission(ctx, notification.TypeEventReminder, "reminder", sub.ID)
	require.NoError(t, err)
	assert.True(t, exists)

	// Status changes
	now := Base.Add(10 * time.Minute)
	ok, err := s.UpdateNotificationStatus(ctx, admin, now, "a", notification.StatusRead)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = s.UpdateNotificationStatus(ctx, admin, now, "missing", notification.StatusRead)
	require.NoError(t, err)
	assert.False(t, ok)

	found, err = s.FindRecentUnread(ctx, notification.TypeCounsellorOverload, "overload", nil, Base)
	require.NoError(t, err)
	assert.Nil(t, found, "read notifications do not dedup")

	feed, err := s.ListNotifications(ctx, admin, now, notification.ListFilter{Status: notification.StatusRead})
	require.NoError(t, err)
	require.Len(t, feed, 1)
	require.NotNil(t, feed[0].ReadAt)
	assert.True(t, feed[0].ReadAt.Equal(now))

	feed, err = s.ListNotifications(ctx, admin, now, notification.ListFilter{})
	require.NoError(t, err)
	assert.Equal(t, []string{"d", "c", "b", "a"}, noteIDs(feed))

	feed, err = s.ListNotifications(ctx, admin, now, notification.ListFilter{Limit: 2, Offset: 1})
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "b"}, noteIDs(feed))

	marked, err := s.MarkAllRead(ctx, admin, now)
	require.NoError(t, err)
	assert.EqualValues(t, 3, marked)

	unread, err := s.CountNotifications(ctx, admin, now, notification.ListFilter{Status: notification.StatusUnread})
	require.NoError(t, err)
	assert.Zero(t, unread)

	removed, err := s.DeleteByType(ctx, notification.TypeWeeklyReport)
	require.NoError(t, err)
	assert.EqualValues(t, 1, removed)

	// Expired rows are invisible and purged.
	later := Base.Add(2 * time.Hour)
	count, err := s.CountNotifications(ctx, admin, later, notification.ListFilter{})
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	purged, err := s.DeleteExpired(ctx, later)
	require.NoError(t, err)
	assert.EqualValues(t, 1, purged)

	ok, err = s.DeleteNotification(ctx, admin, later, "a")
	require.NoError(t, err)
	assert.True(t, ok)

	cleared, err := s.DeleteRead(ctx, admin, later)
	require.NoError(t, err)
	assert.EqualValues(t, 1, cleared)

	count, err = s.CountNotifications(ctx, admin, later, notification.ListFilter{})
	require.NoError(t, err)
	assert.Zero(t, count)
}

func testNotificationVisibility(t *testing.T, s Backend) {
	ctx := context.Background()
	admin := staffing.Principal{Username: "root", Role: staffing.RoleAdmin}
	alice := staffing.Principal{Username: "alice", Role: staffing.RoleCounsellor}
	bob := staffing.Principal{Username: "bob", Role: staffing.RoleCounsellor}

	admins := note("admins", notification.TypeCounsellorOverload, "admins", Base)
	everyone := note("everyone", notification.TypeAnomalyDetected, "everyone", Base)
	everyone.TargetRole = notification.AudienceAll
	direct := note("direct", notification.TypeEventReminder, "direct", Base)
	direct.TargetRole = ""
	direct.TargetUser = "alice"
	for _, n := range []notification.Notification{admins, everyone, direct} {
		n := n
		require.NoError(t, s.InsertNotification(ctx, &n))
	}

	for viewer, want := range map[staffing.Principal]int{admin: 2, alice: 2, bob: 1} {
		count, err := s.CountNotifications(ctx, viewer, Base, notification.ListFilter{})
		require.NoError(t, err)
		assert.Equal(t, want, count, viewer.Username)
	}

	ok, err := s.UpdateNotificationStatus(ctx, bob, Base, "direct", notification.StatusDismissed)
	require.NoError(t, err)
	assert.False(t, ok, "outside audience")

	ok, err = s.DeleteNotification(ctx, bob, Base, "admins")
	require.NoError(t, err)
	assert.False(t, ok, "outside audience")

	marked, err := s.MarkAllRead(ctx, bob, Base)
	require.NoError(t, err)
	assert.EqualValues(t, 1, marked)

	unread, err := s.CountNotifications(ctx, alice, Base, notification.ListFilter{Status: notification.StatusUnread})
	require.NoError(t, err)
	assert.Equal(t, 1, unread, "alice's direct notification untouched")
}

func noteIDs(list []notification.Notification) []string {
	out := make([]string, 0, len(list))
	for _, n := range list {
		out = append(out, n.ID)
	}
	return out
}

// =============================================================================
// SETTINGS
// =============================================================================

func testSettings(t *testing.T, s Backend) {
	ctx := context.Background()

	_, found, err := s.GetSetting(ctx, notification.KeyOverloadThreshold)
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, s.SetSetting(ctx, notification.KeyOverloadThreshold, "3", Base))
	require.NoError(t, s.SetSetting(ctx, notification.KeyOverloadThreshold, "4", Base.Add(time.Minute)))
	require.NoError(t, s.SetSetting(ctx, notification.KeyReminderDays, "7,1", Base))

	v, found, err := s.GetSetting(ctx, notification.KeyOverloadThreshold)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "4", v)

	all, err := s.ListSettings(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		notification.KeyOverloadThreshold: "4",
		notification.KeyReminderDays:      "7,1",
	}, all)
}

func testFeedTx(t *testing.T, s Backend) {
	ctx := context.Background()

	// Rollback discards writes made through tx.
	boom := errors.New("boom")
	err := s.WithFeedTx(ctx, func(tx notification.Feed) error {
		n := note("x", notification.TypeCounsellorOverload, "overload", Base)
		require.NoError(t, tx.InsertNotification(ctx, &n))
		found, err := tx.FindRecentUnread(ctx, notification.TypeCounsellorOverload, "overload", nil, Base)
		require.NoError(t, err)
		require.NotNil(t, found, "tx sees its own insert")
		return boom
	})
	require.ErrorIs(t, err, boom)
	found, err := s.FindRecentUnread(ctx, notification.TypeCounsellorOverload, "overload", nil, Base)
	require.NoError(t, err)
	assert.Nil(t, found)

	// Concurrent creates of one subject leave a single row.
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := notification.NewService(s, generic.FixedClock(Base), logger, metrics.NewNop())
	var created atomic.Int32
	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, ok, err := svc.Create(ctx, notification.Notification{Type: notification.TypeCounsellorOverload, Title: "overload"})
			assert.NoError(t, err)
			if ok {
				created.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), created.Load())

	admin := staffing.Principal{Username: "root", Role: staffing.RoleAdmin}
	n, err := s.CountNotifications(ctx, admin, Base, notification.ListFilter{Type: notification.TypeCounsellorOverload})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
