package staffing_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/staffing-engine/generic"
	"github.com/warp/staffing-engine/staffing"
	"github.com/warp/staffing-engine/store/memory"
)

// =============================================================================
// FIXTURE
// =============================================================================

var (
	admin = staffing.Principal{Username: "root", Role: staffing.RoleAdmin}
	alice = staffing.Principal{Username: "alice", Role: staffing.RoleCounsellor}
	bob   = staffing.Principal{Username: "bob", Role: staffing.RoleCounsellor}
)

type fixture struct {
	ctx   context.Context
	store *memory.Store
	svc   *staffing.Service
	today generic.Date

	alice, bob, carol staffing.CounsellorID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	now := time.Date(2026, 3, 10, 9, 30, 0, 0, time.UTC)
	store := memory.New()
	svc := staffing.NewService(store, generic.FixedClock(now), slog.New(slog.NewTextHandler(io.Discard, nil)))
	f := &fixture{ctx: context.Background(), store: store, svc: svc, today: generic.DateOf(now)}

	for _, name := range []string{"alice", "bob", "carol"} {
		c, err := svc.CreateCounsellor(f.ctx, admin, name, name)
		require.NoError(t, err)
		switch name {
		case "alice":
			f.alice = c.ID
		case "bob":
			f.bob = c.ID
		case "carol":
			f.carol = c.ID
		}
	}
	return f
}

func (f *fixture) input(start, end generic.Date) staffing.SubmissionInput {
	return staffing.SubmissionInput{
		StartDate:     start,
		EndDate:       end,
		City:          "Paris",
		Country:       "FR",
		OrganizerName: "Acme",
		EventName:     "Open Day",
	}
}

func (f *fixture) submit(t *testing.T, start, end generic.Date) *staffing.Submission {
	t.Helper()
	s, err := f.svc.CreateSubmission(f.ctx, alice, f.input(start, end))
	require.NoError(t, err)
	return s
}

func (f *fixture) assigned(t *testing.T, id staffing.SubmissionID) []staffing.CounsellorID {
	t.Helper()
	rows, err := f.store.ListAssignments(f.ctx, id)
	require.NoError(t, err)
	ids := make([]staffing.CounsellorID, len(rows))
	for i, a := range rows {
		ids[i] = a.CounsellorID
	}
	return ids
}

func (f *fixture) reload(t *testing.T, id staffing.SubmissionID) *staffing.Submission {
	t.Helper()
	s, err := f.store.GetSubmission(f.ctx, id)
	require.NoError(t, err)
	require.NotNil(t, s)
	return s
}

// =============================================================================
// CREATE
// =============================================================================

func TestCreateSubmission_Pending(t *testing.T) {
	f := newFixture(t)
	in := f.input(f.today.AddDays(5), f.today.AddDays(6))
	in.SuggestedCounsellors = []staffing.CounsellorID{f.bob, f.bob, f.carol}

	s, err := f.svc.CreateSubmission(f.ctx, alice, in)
	require.NoError(t, err)

	assert.Equal(t, staffing.StatusPending, s.Status)
	assert.Equal(t, staffing.EventOngoing, s.EventStatus)
	assert.Equal(t, f.alice, s.SubmittedBy)

	detail, err := f.svc.GetSubmission(f.ctx, s.ID)
	require.NoError(t, err)
	assert.Len(t, detail.Suggestions, 2)
	assert.Empty(t, detail.Assignments, "suggestions never become assignments")
}

func TestCreateSubmission_Validation(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name   string
		mutate func(*staffing.SubmissionInput)
	}{
		{"end before start", func(in *staffing.SubmissionInput) { in.EndDate = in.StartDate.AddDays(-1) }},
		{"missing city", func(in *staffing.SubmissionInput) { in.City = " " }},
		{"missing country", func(in *staffing.SubmissionInput) { in.Country = "" }},
		{"missing organizer", func(in *staffing.SubmissionInput) { in.OrganizerName = "" }},
		{"unknown suggestion", func(in *staffing.SubmissionInput) { in.SuggestedCounsellors = []staffing.CounsellorID{999} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := f.input(f.today.AddDays(1), f.today.AddDays(2))
			tt.mutate(&in)

			_, err := f.svc.CreateSubmission(f.ctx, alice, in)
			assert.ErrorIs(t, err, generic.ErrValidation)
		})
	}

	n, err := f.store.CountSubmissions(f.ctx, staffing.SubmissionFilter{})
	require.NoError(t, err)
	assert.Zero(t, n, "validation failures write nothing")
}

func TestCreateSubmission_RequiresCounsellorProfile(t *testing.T) {
	f := newFixture(t)
	stranger := staffing.Principal{Username: "mallory", Role: staffing.RoleCounsellor}

	_, err := f.svc.CreateSubmission(f.ctx, stranger, f.input(f.today, f.today))
	assert.ErrorIs(t, err, generic.ErrForbidden)
}

func TestCreateSubmission_HookFailureDoesNotFailCreate(t *testing.T) {
	f := newFixture(t)
	var seen staffing.SubmissionID
	f.svc.SetHooks(staffing.Hooks{
		OnSubmissionCreated: func(_ context.Context, s staffing.Submission) error {
			seen = s.ID
			return errors.New("detector down")
		},
	})

	s, err := f.svc.CreateSubmission(f.ctx, alice, f.input(f.today, f.today))
	require.NoError(t, err)
	assert.Equal(t, s.ID, seen)
}

func TestCreateSubmission_HookPanicIsContained(t *testing.T) {
	f := newFixture(t)
	f.svc.SetHooks(staffing.Hooks{
		OnSubmissionCreated: func(context.Context, staffing.Submission) error { panic("boom") },
	})

	_, err := f.svc.CreateSubmission(f.ctx, alice, f.input(f.today, f.today))
	assert.NoError(t, err)
}

// =============================================================================
// FINALIZE
// =============================================================================

func TestFinalize_ReplacesNeverMerges(t *testing.T) {
	// GIVEN: A submission finalized with {alice, bob}
	f := newFixture(t)
	s := f.submit(t, f.today.AddDays(3), f.today.AddDays(4))

	_, err := f.svc.Finalize(f.ctx, admin, s.ID, []staffing.CounsellorID{f.alice, f.bob})
	require.NoError(t, err)
	assert.ElementsMatch(t, []staffing.CounsellorID{f.alice, f.bob}, f.assigned(t, s.ID))

	// WHEN: Re-finalized with {carol}
	updated, err := f.svc.Finalize(f.ctx, admin, s.ID, []staffing.CounsellorID{f.carol})
	require.NoError(t, err)

	// THEN: Exactly {carol}
	assert.Equal(t, []staffing.CounsellorID{f.carol}, f.assigned(t, s.ID))
	assert.Equal(t, staffing.StatusConfirmed, updated.Status)
	assert.NotNil(t, updated.ConfirmedAt)
}

func TestFinalize_ManualOverrideAllowsBusyCounsellor(t *testing.T) {
	f := newFixture(t)
	first := f.submit(t, f.today.AddDays(1), f.today.AddDays(5))
	second := f.submit(t, f.today.AddDays(2), f.today.AddDays(3))

	_, err := f.svc.Finalize(f.ctx, admin, first.ID, []staffing.CounsellorID{f.bob})
	require.NoError(t, err)

	_, err = f.svc.Finalize(f.ctx, admin, second.ID, []staffing.CounsellorID{f.bob})
	assert.NoError(t, err, "availability is advisory")
}

func TestFinalize_Validation(t *testing.T) {
	f := newFixture(t)
	s := f.submit(t, f.today.AddDays(1), f.today.AddDays(1))
	require.NoError(t, f.svc.DeactivateCounsellor(f.ctx, admin, f.carol))

	tests := []struct {
		name string
		ids  []staffing.CounsellorID
	}{
		{"empty", nil},
		{"unknown", []staffing.CounsellorID{f.alice, 999}},
		{"inactive", []staffing.CounsellorID{f.carol}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Finalize(f.ctx, admin, s.ID, tt.ids)
			assert.ErrorIs(t, err, generic.ErrValidation)
			assert.Equal(t, staffing.StatusPending, f.reload(t, s.ID).Status)
			assert.Empty(t, f.assigned(t, s.ID), "no partial apply")
		})
	}
}

func TestFinalize_DuplicateIDsCollapse(t *testing.T) {
	f := newFixture(t)
	s := f.submit(t, f.today.AddDays(1), f.today.AddDays(1))

	_, err := f.svc.Finalize(f.ctx, admin, s.ID, []staffing.CounsellorID{f.bob, f.bob})
	require.NoError(t, err)
	assert.Equal(t, []staffing.CounsellorID{f.bob}, f.assigned(t, s.ID))
}

func TestFinalize_RejectsClosedEvents(t *testing.T) {
	for _, status := range []staffing.EventStatus{staffing.EventCompleted, staffing.EventCancelled, staffing.EventPostponed} {
		t.Run(string(status), func(t *testing.T) {
			f := newFixture(t)
			s := f.submit(t, f.today.AddDays(1), f.today.AddDays(1))
			_, err := f.svc.UpdateMetadata(f.ctx, admin, s.ID, staffing.MetadataUpdate{PaymentStatus: staffing.PaymentPaid, EventStatus: status})
			require.NoError(t, err)

			_, err = f.svc.Finalize(f.ctx, admin, s.ID, []staffing.CounsellorID{f.bob})
			assert.ErrorIs(t, err, generic.ErrInvalidTransition)
			assert.Empty(t, f.assigned(t, s.ID))
		})
	}
}

func TestFinalize_AdminOnly(t *testing.T) {
	f := newFixture(t)
	s := f.submit(t, f.today.AddDays(1), f.today.AddDays(1))

	_, err := f.svc.Finalize(f.ctx, alice, s.ID, []staffing.CounsellorID{f.alice})
	assert.ErrorIs(t, err, generic.ErrForbidden)
}

func TestFinalize_NotFound(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Finalize(f.ctx, admin, 404, []staffing.CounsellorID{f.alice})
	assert.ErrorIs(t, err, generic.ErrNotFound)
}

func TestFinalize_RunsHookWithAssignedIDs(t *testing.T) {
	f := newFixture(t)
	var got []staffing.CounsellorID
	f.svc.SetHooks(staffing.Hooks{
		OnFinalized: func(_ context.Context, _ staffing.Submission, ids []staffing.CounsellorID) error {
			got = ids
			return nil
		},
	})
	s := f.submit(t, f.today.AddDays(1), f.today.AddDays(1))

	_, err := f.svc.Finalize(f.ctx, admin, s.ID, []staffing.CounsellorID{f.carol, f.alice})
	require.NoError(t, err)
	assert.Equal(t, []staffing.CounsellorID{f.alice, f.carol}, got)
}

// =============================================================================
// CANCEL / POSTPONE / RESCHEDULE
// =============================================================================

func TestUpdateMetadata_CancelClearsAssignments(t *testing.T) {
	for _, status := range []staffing.EventStatus{staffing.EventCancelled, staffing.EventPostponed} {
		t.Run(string(status), func(t *testing.T) {
			// GIVEN: A confirmed submission with two counsellors
			f := newFixture(t)
			s := f.submit(t, f.today.AddDays(2), f.today.AddDays(4))
			_, err := f.svc.Finalize(f.ctx, admin, s.ID, []staffing.CounsellorID{f.alice, f.bob})
			require.NoError(t, err)

			// WHEN: The event is cancelled or postponed
			updated, err := f.svc.UpdateMetadata(f.ctx, admin, s.ID, staffing.MetadataUpdate{
				PaymentStatus: staffing.PaymentUnpaid,
				EventStatus:   status,
			})
			require.NoError(t, err)

			// THEN: not_applicable with no assignments, and counsellors freed
			assert.Equal(t, staffing.StatusNotApplicable, updated.Status)
			assert.Empty(t, f.assigned(t, s.ID))

			avail, err := f.svc.Availability(f.ctx, s.StartDate, s.EndDate, nil)
			require.NoError(t, err)
			for _, a := range avail {
				assert.Equal(t, staffing.Available, a.Status, a.Counsellor.Username)
			}
		})
	}
}

func TestUpdateMetadata_FromPending(t *testing.T) {
	f := newFixture(t)
	s := f.submit(t, f.today.AddDays(2), f.today.AddDays(4))
	remarks := "venue closed"

	updated, err := f.svc.UpdateMetadata(f.ctx, admin, s.ID, staffing.MetadataUpdate{
		SentBy:        &f.bob,
		PaymentStatus: staffing.PaymentFree,
		EventStatus:   staffing.EventPostponed,
		Remarks:       &remarks,
	})
	require.NoError(t, err)
	assert.Equal(t, staffing.StatusNotApplicable, updated.Status)
	assert.Equal(t, "venue closed", f.reload(t, s.ID).Remarks)
	assert.Equal(t, f.bob, *f.reload(t, s.ID).SentBy)
}

func TestUpdateMetadata_Validation(t *testing.T) {
	f := newFixture(t)
	s := f.submit(t, f.today.AddDays(2), f.today.AddDays(4))
	unknown := staffing.CounsellorID(77)

	tests := []struct {
		name string
		m    staffing.MetadataUpdate
	}{
		{"bad payment", staffing.MetadataUpdate{PaymentStatus: "MAYBE", EventStatus: staffing.EventOngoing}},
		{"bad event", staffing.MetadataUpdate{PaymentStatus: staffing.PaymentPaid, EventStatus: "DONE"}},
		{"unknown sent_by", staffing.MetadataUpdate{PaymentStatus: staffing.PaymentPaid, EventStatus: staffing.EventOngoing, SentBy: &unknown}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.UpdateMetadata(f.ctx, admin, s.ID, tt.m)
			assert.ErrorIs(t, err, generic.ErrValidation)
		})
	}
}

func TestUpdateMetadata_CompletedKeepsAssignments(t *testing.T) {
	f := newFixture(t)
	s := f.submit(t, f.today.AddDays(1), f.today.AddDays(1))
	_, err := f.svc.Finalize(f.ctx, admin, s.ID, []staffing.CounsellorID{f.alice})
	require.NoError(t, err)

	updated, err := f.svc.UpdateMetadata(f.ctx, admin, s.ID, staffing.MetadataUpdate{PaymentStatus: staffing.PaymentPaid, EventStatus: staffing.EventCompleted})
	require.NoError(t, err)
	assert.Equal(t, staffing.StatusConfirmed, updated.Status)
	assert.Equal(t, []staffing.CounsellorID{f.alice}, f.assigned(t, s.ID))
}

func TestReschedule(t *testing.T) {
	// GIVEN: A postponed submission
	f := newFixture(t)
	s := f.submit(t, f.today.AddDays(2), f.today.AddDays(4))
	_, err := f.svc.UpdateMetadata(f.ctx, admin, s.ID, staffing.MetadataUpdate{PaymentStatus: staffing.PaymentUnpaid, EventStatus: staffing.EventPostponed})
	require.NoError(t, err)

	// WHEN: Rescheduled to new dates
	start, end := f.today.AddDays(20), f.today.AddDays(22)
	updated, err := f.svc.Reschedule(f.ctx, admin, s.ID, start, end)
	require.NoError(t, err)

	// THEN: Back to pending and ONGOING with the new range
	assert.Equal(t, staffing.StatusPending, updated.Status)
	assert.Equal(t, staffing.EventOngoing, updated.EventStatus)
	assert.True(t, f.reload(t, s.ID).StartDate.Equal(start))
}

func TestReschedule_Rejections(t *testing.T) {
	f := newFixture(t)
	s := f.submit(t, f.today.AddDays(2), f.today.AddDays(4))

	_, err := f.svc.Reschedule(f.ctx, admin, s.ID, f.today.AddDays(5), f.today.AddDays(6))
	assert.ErrorIs(t, err, generic.ErrInvalidTransition, "pending submissions are not rescheduled")

	_, err = f.svc.Reschedule(f.ctx, admin, s.ID, f.today.AddDays(6), f.today.AddDays(5))
	assert.ErrorIs(t, err, generic.ErrValidation)

	_, err = f.svc.Reschedule(f.ctx, alice, s.ID, f.today.AddDays(5), f.today.AddDays(6))
	assert.ErrorIs(t, err, generic.ErrForbidden)
}

// =============================================================================
// EDIT
// =============================================================================

func TestEdit_ConfirmedStartingToday_Rejected(t *testing.T) {
	f := newFixture(t)
	s := f.submit(t, f.today, f.today.AddDays(2))
	_, err := f.svc.Finalize(f.ctx, admin, s.ID, []staffing.CounsellorID{f.bob})
	require.NoError(t, err)

	_, err = f.svc.EditSubmission(f.ctx, alice, s.ID, f.input(f.today, f.today.AddDays(3)))

	assert.ErrorIs(t, err, generic.ErrInvalidTransition)
	assert.Equal(t, staffing.StatusConfirmed, f.reload(t, s.ID).Status)
}

func TestEdit_ConfirmedStartingTomorrow_ResetsToPending(t *testing.T) {
	// GIVEN: Confirmed submission starting tomorrow
	f := newFixture(t)
	s := f.submit(t, f.today.AddDays(1), f.today.AddDays(2))
	_, err := f.svc.Finalize(f.ctx, admin, s.ID, []staffing.CounsellorID{f.bob})
	require.NoError(t, err)

	// WHEN: The submitter edits it
	in := f.input(f.today.AddDays(1), f.today.AddDays(3))
	in.City = "Lyon"
	updated, err := f.svc.EditSubmission(f.ctx, alice, s.ID, in)
	require.NoError(t, err)

	// THEN: Pending again, assignments untouched
	assert.Equal(t, staffing.StatusPending, updated.Status)
	assert.Nil(t, updated.ConfirmedAt)
	assert.Equal(t, "Lyon", f.reload(t, s.ID).City)
	assert.Equal(t, []staffing.CounsellorID{f.bob}, f.assigned(t, s.ID))
}

func TestEdit_PendingAfterStartAllowed(t *testing.T) {
	f := newFixture(t)
	s := f.submit(t, f.today.AddDays(-2), f.today.AddDays(2))

	updated, err := f.svc.EditSubmission(f.ctx, alice, s.ID, f.input(f.today.AddDays(-2), f.today.AddDays(3)))
	require.NoError(t, err)
	assert.Equal(t, staffing.StatusPending, updated.Status)
}

func TestEdit_OnlyOwner(t *testing.T) {
	f := newFixture(t)
	s := f.submit(t, f.today.AddDays(1), f.today.AddDays(1))

	_, err := f.svc.EditSubmission(f.ctx, bob, s.ID, f.input(f.today.AddDays(1), f.today.AddDays(2)))
	assert.ErrorIs(t, err, generic.ErrForbidden)
}

func TestEdit_CancelledRejected(t *testing.T) {
	f := newFixture(t)
	s := f.submit(t, f.today.AddDays(1), f.today.AddDays(1))
	_, err := f.svc.UpdateMetadata(f.ctx, admin, s.ID, staffing.MetadataUpdate{PaymentStatus: staffing.PaymentUnpaid, EventStatus: staffing.EventCancelled})
	require.NoError(t, err)

	_, err = f.svc.EditSubmission(f.ctx, alice, s.ID, f.input(f.today.AddDays(1), f.today.AddDays(2)))
	assert.ErrorIs(t, err, generic.ErrInvalidTransition)
}

// =============================================================================
// DELETE / DISMISS / COUNSELLORS
// =============================================================================

func TestDelete_CascadesAndLogs(t *testing.T) {
	f := newFixture(t)
	s := f.submit(t, f.today.AddDays(1), f.today.AddDays(1))
	_, err := f.svc.Finalize(f.ctx, admin, s.ID, []staffing.CounsellorID{f.bob})
	require.NoError(t, err)

	require.ErrorIs(t, f.svc.DeleteSubmission(f.ctx, bob, s.ID), generic.ErrForbidden)
	require.NoError(t, f.svc.DeleteSubmission(f.ctx, alice, s.ID))

	_, err = f.svc.GetSubmission(f.ctx, s.ID)
	assert.ErrorIs(t, err, generic.ErrNotFound)
	assert.Empty(t, f.assigned(t, s.ID))

	entries, err := f.store.ListActivity(f.ctx, staffing.ActivityFilter{Action: staffing.ActionSubmissionDeleted})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "alice", entries[0].Actor)
}

func TestDismissDuplicate(t *testing.T) {
	f := newFixture(t)
	a := f.submit(t, f.today.AddDays(1), f.today.AddDays(1))
	b := f.submit(t, f.today.AddDays(1), f.today.AddDays(1))

	require.NoError(t, f.svc.DismissDuplicate(f.ctx, admin, b.ID, a.ID))

	ok, err := f.store.IsDismissed(f.ctx, staffing.NewDuplicatePair(a.ID, b.ID))
	require.NoError(t, err)
	assert.True(t, ok)

	assert.ErrorIs(t, f.svc.DismissDuplicate(f.ctx, admin, a.ID, a.ID), generic.ErrValidation)
	assert.ErrorIs(t, f.svc.DismissDuplicate(f.ctx, admin, a.ID, 999), generic.ErrNotFound)
	assert.ErrorIs(t, f.svc.DismissDuplicate(f.ctx, alice, a.ID, b.ID), generic.ErrForbidden)
}

func TestDeactivateCounsellor_KeepsHistory(t *testing.T) {
	f := newFixture(t)
	s := f.submit(t, f.today.AddDays(1), f.today.AddDays(1))
	_, err := f.svc.Finalize(f.ctx, admin, s.ID, []staffing.CounsellorID{f.carol})
	require.NoError(t, err)

	require.NoError(t, f.svc.DeactivateCounsellor(f.ctx, admin, f.carol))

	assert.Equal(t, []staffing.CounsellorID{f.carol}, f.assigned(t, s.ID))
	avail, err := f.svc.Availability(f.ctx, f.today, f.today.AddDays(3), nil)
	require.NoError(t, err)
	assert.Len(t, avail, 2)
	for _, a := range avail {
		assert.NotEqual(t, f.carol, a.Counsellor.ID)
	}
}

func TestCreateCounsellor_DuplicateUsername(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.CreateCounsellor(f.ctx, admin, "alice", "Alice Again")
	assert.ErrorIs(t, err, generic.ErrValidation)

	_, err = f.svc.CreateCounsellor(f.ctx, alice, "dave", "Dave")
	assert.ErrorIs(t, err, generic.ErrForbidden)
}

// =============================================================================
// AVAILABILITY THROUGH THE SERVICE
// =============================================================================

func TestAvailability_OnlyConfirmedCounts(t *testing.T) {
	f := newFixture(t)
	start := f.today.AddDays(10)

	confirmedSub := f.submit(t, start, start.AddDays(2))
	_, err := f.svc.Finalize(f.ctx, admin, confirmedSub.ID, []staffing.CounsellorID{f.alice})
	require.NoError(t, err)

	// bob is only suggested on a pending submission
	in := f.input(start, start.AddDays(9))
	in.SuggestedCounsellors = []staffing.CounsellorID{f.bob}
	_, err = f.svc.CreateSubmission(f.ctx, alice, in)
	require.NoError(t, err)

	avail, err := f.svc.Availability(f.ctx, start, start.AddDays(9), nil)
	require.NoError(t, err)

	byID := map[staffing.CounsellorID]staffing.CounsellorAvailability{}
	for _, a := range avail {
		byID[a.Counsellor.ID] = a
	}
	assert.Equal(t, staffing.PartiallyAvailable, byID[f.alice].Status)
	assert.Equal(t, []string{start.AddDays(3).String() + " -> " + start.AddDays(9).String()}, byID[f.alice].AvailableRanges())
	require.Len(t, byID[f.alice].Conflicts, 1)
	assert.Equal(t, confirmedSub.ID, byID[f.alice].Conflicts[0].SubmissionID)
	assert.Equal(t, staffing.Available, byID[f.bob].Status)
	assert.Equal(t, staffing.Available, byID[f.carol].Status)
}

func TestAvailability_ExcludeSelf(t *testing.T) {
	f := newFixture(t)
	s := f.submit(t, f.today.AddDays(1), f.today.AddDays(3))
	_, err := f.svc.Finalize(f.ctx, admin, s.ID, []staffing.CounsellorID{f.alice})
	require.NoError(t, err)

	avail, err := f.svc.Availability(f.ctx, s.StartDate, s.EndDate, &s.ID)
	require.NoError(t, err)
	for _, a := range avail {
		assert.Equal(t, staffing.Available, a.Status)
	}

	_, err = f.svc.Availability(f.ctx, s.EndDate, s.StartDate, nil)
	assert.ErrorIs(t, err, generic.ErrValidation)
}
