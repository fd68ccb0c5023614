package memory_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/staffing-engine/generic"
	"github.com/warp/staffing-engine/staffing"
	"github.com/warp/staffing-engine/store/memory"
	"github.com/warp/staffing-engine/store/storetest"
)

func TestMemoryStore_Contract(t *testing.T) {
	storetest.Run(t, func(t *testing.T) storetest.Backend {
		return memory.New()
	})
}

func TestWithTx_RollbackRestoresIDSequence(t *testing.T) {
	// GIVEN: A transaction that creates a submission then fails
	s := memory.New()
	ctx := context.Background()
	c := staffing.Counsellor{Username: "alice", Active: true, CreatedAt: storetest.Base}
	require.NoError(t, s.CreateCounsellor(ctx, &c))

	newSub := func() *staffing.Submission {
		return &staffing.Submission{
			StartDate: generic.MustParseDate("2026-04-01"), EndDate: generic.MustParseDate("2026-04-01"),
			City: "x", Country: "y", Status: staffing.StatusPending, EventStatus: staffing.EventOngoing,
			SubmittedBy: c.ID, CreatedAt: storetest.Base,
		}
	}

	err := s.WithTx(ctx, func(tx staffing.Store) error {
		if err := tx.CreateSubmission(ctx, newSub()); err != nil {
			return err
		}
		return errors.New("abort")
	})
	require.Error(t, err)

	// WHEN: The next submission is created outside a transaction
	sub := newSub()
	require.NoError(t, s.CreateSubmission(ctx, sub))

	// THEN: It reuses the rolled-back id
	assert.EqualValues(t, 1, sub.ID)
}

func TestGetSubmission_ReturnsCopy(t *testing.T) {
	s := memory.New()
	ctx := context.Background()
	sub := &staffing.Submission{City: "Paris", StartDate: generic.MustParseDate("2026-04-01"), EndDate: generic.MustParseDate("2026-04-01")}
	require.NoError(t, s.CreateSubmission(ctx, sub))

	got, err := s.GetSubmission(ctx, sub.ID)
	require.NoError(t, err)
	got.City = "Lyon"

	again, err := s.GetSubmission(ctx, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, "Paris", again.City)
}
