package storetest

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/staffing-engine/detection"
	"github.com/warp/staffing-engine/generic"
	"github.com/warp/staffing-engine/metrics"
	"github.com/warp/staffing-engine/notification"
	"github.com/warp/staffing-engine/staffing"
)

// =============================================================================
// DUPLICATE CANDIDATES (detector over the backend's SQL or map filters)
// =============================================================================

var detectorAdmin = staffing.Principal{Username: "root", Role: staffing.RoleAdmin}

func newDetector(s Backend) (*detection.Detector, *notification.Service) {
	clock := generic.FixedClock(Base.Add(2 * time.Hour))
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	notes := notification.NewService(s, clock, logger, metrics.NewNop())
	return detection.New(s, notes, clock, logger, metrics.NewNop()), notes
}

type eventOpts struct {
	start, end  string
	country     string
	organizerID *int64
	eventNameID *int64
	created     time.Time
}

func event(t *testing.T, s Backend, by staffing.CounsellorID, o eventOpts) staffing.Submission {
	t.Helper()
	if o.end == "" {
		o.end = o.start
	}
	if o.created.IsZero() {
		o.created = Base
	}
	sub := staffing.Submission{
		StartDate:     generic.MustParseDate(o.start),
		EndDate:       generic.MustParseDate(o.end),
		City:          "Paris",
		Country:       o.country,
		OrganizerID:   o.organizerID,
		OrganizerName: "Acme",
		EventNameID:   o.eventNameID,
		Status:        staffing.StatusPending,
		EventStatus:   staffing.EventOngoing,
		PaymentStatus: staffing.PaymentUnpaid,
		SubmittedBy:   by,
		CreatedAt:     o.created,
		UpdatedAt:     o.created,
	}
	require.NoError(t, s.CreateSubmission(context.Background(), &sub))
	return sub
}

func duplicateTitles(t *testing.T, s Backend) map[string]bool {
	t.Helper()
	items, err := s.ListNotifications(context.Background(), detectorAdmin, Base.Add(2*time.Hour),
		notification.ListFilter{Type: notification.TypeDuplicateSubmission})
	require.NoError(t, err)
	titles := make(map[string]bool, len(items))
	for _, n := range items {
		titles[n.Title] = true
	}
	return titles
}

func pairTitle(a, b staffing.Submission) string {
	pair := staffing.NewDuplicatePair(a.ID, b.ID)
	return fmt.Sprintf("Possible duplicate: #%d and #%d", pair.A, pair.B)
}

func testDuplicateCandidateCap(t *testing.T, s Backend) {
	ctx := context.Background()
	by := counsellor(t, s, "alice").ID
	detector, _ := newDetector(s)

	// GIVEN: one more matching submission than the candidate cap, oldest first
	var older []staffing.Submission
	for i := 0; i <= detection.DuplicateCandidateLimit; i++ {
		older = append(older, event(t, s, by, eventOpts{
			start: "2026-04-10", end: "2026-04-12", country: "FR",
			created: Base.Add(time.Duration(i) * time.Minute),
		}))
	}
	target := event(t, s, by, eventOpts{
		start: "2026-04-11", country: "FR",
		created: Base.Add(time.Hour),
	})

	// WHEN
	raised := detector.CheckDuplicates(ctx, target.ID)

	// THEN: only the most recent candidates are compared
	assert.Equal(t, detection.DuplicateCandidateLimit, raised)
	titles := duplicateTitles(t, s)
	assert.Len(t, titles, detection.DuplicateCandidateLimit)
	assert.False(t, titles[pairTitle(older[0], target)], "the oldest match is beyond the cap")
	assert.True(t, titles[pairTitle(older[1], target)])
	assert.True(t, titles[pairTitle(older[len(older)-1], target)])
}

func testDuplicateCandidateSet(t *testing.T, s Backend) {
	ctx := context.Background()
	by := counsellor(t, s, "alice").ID
	detector, notes := newDetector(s)
	require.NoError(t, notes.UpdateSettings(ctx, detectorAdmin, map[string]string{notification.KeyDuplicateThreshold: "0.5"}))

	org, name := int64(5), int64(9)
	target := event(t, s, by, eventOpts{start: "2026-04-10", end: "2026-04-12", country: "FR", organizerID: &org, eventNameID: &name})

	// organizer 0.35 + country 0.15 + city 0.15 + event 0.10 = 0.75
	sameCountry := event(t, s, by, eventOpts{start: "2026-05-01", country: "fr", organizerID: &org, eventNameID: &name})
	// organizer 0.35 + overlap 0.25 + city 0.15 + event 0.10 = 0.85
	overlapping := event(t, s, by, eventOpts{start: "2026-04-11", country: "DE", organizerID: &org, eventNameID: &name})
	// 0.60 would pass the threshold, but it shares neither country nor dates
	unrelated := event(t, s, by, eventOpts{start: "2026-05-01", country: "DE", organizerID: &org, eventNameID: &name})

	assert.Equal(t, 2, detector.CheckDuplicates(ctx, target.ID))

	titles := duplicateTitles(t, s)
	assert.True(t, titles[pairTitle(target, sameCountry)], "same country, disjoint dates")
	assert.True(t, titles[pairTitle(target, overlapping)], "other country, overlapping dates")
	assert.False(t, titles[pairTitle(target, unrelated)])
}
