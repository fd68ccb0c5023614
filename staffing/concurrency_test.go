package staffing_test

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/staffing-engine/generic"
	"github.com/warp/staffing-engine/staffing"
	"github.com/warp/staffing-engine/store/memory"
)

// interleavedStore runs beforeTx once, just before the next transaction
// opens. It stands in for another request committing in between.
type interleavedStore struct {
	*memory.Store
	beforeTx func()
}

func (s *interleavedStore) WithTx(ctx context.Context, fn func(staffing.Store) error) error {
	if hook := s.beforeTx; hook != nil {
		s.beforeTx = nil
		hook()
	}
	return s.Store.WithTx(ctx, fn)
}

// racing returns a service over the fixture's store whose next transaction
// is preceded by a metadata update committed through the fixture service.
func (f *fixture) racing(t *testing.T, id staffing.SubmissionID, status staffing.EventStatus) *staffing.Service {
	t.Helper()
	store := &interleavedStore{Store: f.store}
	store.beforeTx = func() {
		_, err := f.svc.UpdateMetadata(f.ctx, admin, id, staffing.MetadataUpdate{PaymentStatus: staffing.PaymentPaid, EventStatus: status})
		require.NoError(t, err)
	}
	return staffing.NewService(store, f.svc.Clock, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestFinalize_ConcurrentCloseWins(t *testing.T) {
	for _, status := range []staffing.EventStatus{staffing.EventCancelled, staffing.EventPostponed} {
		t.Run(string(status), func(t *testing.T) {
			f := newFixture(t)
			s := f.submit(t, f.today.AddDays(3), f.today.AddDays(4))

			// GIVEN: the event is closed right before the finalize transaction
			svc := f.racing(t, s.ID, status)

			// WHEN
			_, err := svc.Finalize(f.ctx, admin, s.ID, []staffing.CounsellorID{f.bob})

			// THEN: finalize fails and the close stands
			require.ErrorIs(t, err, generic.ErrInvalidTransition)
			got := f.reload(t, s.ID)
			assert.Equal(t, staffing.StatusNotApplicable, got.Status)
			assert.Equal(t, status, got.EventStatus)
			assert.Empty(t, f.assigned(t, s.ID))
		})
	}
}

func TestFinalize_ConcurrentCancelOfConfirmed(t *testing.T) {
	f := newFixture(t)
	s := f.submit(t, f.today.AddDays(3), f.today.AddDays(4))
	_, err := f.svc.Finalize(f.ctx, admin, s.ID, []staffing.CounsellorID{f.bob})
	require.NoError(t, err)

	svc := f.racing(t, s.ID, staffing.EventCancelled)
	_, err = svc.Finalize(f.ctx, admin, s.ID, []staffing.CounsellorID{f.carol})

	require.ErrorIs(t, err, generic.ErrInvalidTransition)
	got := f.reload(t, s.ID)
	assert.Equal(t, staffing.EventCancelled, got.EventStatus)
	assert.Equal(t, staffing.StatusNotApplicable, got.Status)
	assert.Empty(t, f.assigned(t, s.ID), "cancelled submissions keep no assignments")
}

func TestEdit_ConcurrentCancelWins(t *testing.T) {
	f := newFixture(t)
	s := f.submit(t, f.today.AddDays(3), f.today.AddDays(4))

	svc := f.racing(t, s.ID, staffing.EventCancelled)
	in := f.input(f.today.AddDays(5), f.today.AddDays(6))
	_, err := svc.EditSubmission(f.ctx, alice, s.ID, in)

	require.ErrorIs(t, err, generic.ErrInvalidTransition)
	got := f.reload(t, s.ID)
	assert.Equal(t, staffing.EventCancelled, got.EventStatus)
	assert.Equal(t, f.today.AddDays(3), got.StartDate, "the edit was not applied")
}

func TestUpdateMetadata_ConcurrentPostponeBlocksReopen(t *testing.T) {
	f := newFixture(t)
	s := f.submit(t, f.today.AddDays(3), f.today.AddDays(4))

	// A stale read would still see ONGOING/pending and accept COMPLETED.
	svc := f.racing(t, s.ID, staffing.EventPostponed)
	_, err := svc.UpdateMetadata(f.ctx, admin, s.ID, staffing.MetadataUpdate{PaymentStatus: staffing.PaymentPaid, EventStatus: staffing.EventCompleted})

	require.ErrorIs(t, err, generic.ErrInvalidTransition)
	assert.Equal(t, staffing.EventPostponed, f.reload(t, s.ID).EventStatus)
}

func TestReschedule_SeesCloseCommittedBeforeIt(t *testing.T) {
	f := newFixture(t)
	s := f.submit(t, f.today.AddDays(3), f.today.AddDays(4))

	// The submission is only not_applicable once the racing cancel commits.
	svc := f.racing(t, s.ID, staffing.EventCancelled)
	got, err := svc.Reschedule(f.ctx, admin, s.ID, f.today.AddDays(10), f.today.AddDays(11))

	require.NoError(t, err)
	assert.Equal(t, staffing.StatusPending, got.Status)
	assert.Equal(t, staffing.EventOngoing, got.EventStatus)
}
