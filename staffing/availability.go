package staffing

import (
	"context"
	"fmt"
	"sort"

	"github.com/warp/staffing-engine/generic"
)

// =============================================================================
// AVAILABILITY CLASSIFICATION
// =============================================================================

type AvailabilityStatus string

const (
	Available          AvailabilityStatus = "available"
	PartiallyAvailable AvailabilityStatus = "partially_available"
	Busy               AvailabilityStatus = "busy"
)

// Conflict summarizes a confirmed submission that occupies some query days.
type Conflict struct {
	SubmissionID  SubmissionID
	StartDate     generic.Date
	EndDate       generic.Date
	City          string
	Country       string
	OrganizerName string
	EventName     string
}

type CounsellorAvailability struct {
	Counsellor Counsellor
	Status     AvailabilityStatus

	// FreeRanges is set only when Status is PartiallyAvailable.
	FreeRanges []generic.Period
	BusyDays   []generic.Date
	Conflicts  []Conflict
}

// AvailableRanges renders FreeRanges for display.
func (a CounsellorAvailability) AvailableRanges() []string {
	return generic.FormatRanges(a.FreeRanges)
}

// Classify is the pure core of the calculator: given the requested window and
// the confirmed submissions that overlap it, decide available / partial / busy.
//
// Day-granular, not range-granular: a counsellor assigned to days 1-3 of a
// 10-day window is partially available for days 4-10.
func Classify(requested generic.Period, conflicts []Submission) (AvailabilityStatus, []generic.Period, []generic.Date) {
	busy := make(map[generic.Date]bool)
	for _, s := range conflicts {
		shared, ok := requested.Intersect(s.Period())
		if !ok {
			continue
		}
		for _, day := range shared.Days() {
			busy[day] = true
		}
	}

	total := requested.Len()
	switch {
	case len(busy) == 0:
		return Available, nil, nil
	case len(busy) >= total:
		return Busy, nil, sortedDays(busy)
	}

	var free []generic.Date
	for _, day := range requested.Days() {
		if !busy[day] {
			free = append(free, day)
		}
	}
	return PartiallyAvailable, generic.CompressToRanges(free), sortedDays(busy)
}

func sortedDays(set map[generic.Date]bool) []generic.Date {
	days := make([]generic.Date, 0, len(set))
	for day := range set {
		days = append(days, day)
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Before(days[j]) })
	return days
}

// =============================================================================
// CALCULATOR - Classification for every active counsellor
// =============================================================================

// AvailabilityReader is the slice of Store the calculator needs.
type AvailabilityReader interface {
	ListCounsellors(ctx context.Context, activeOnly bool) ([]Counsellor, error)
	ConfirmedConflicts(ctx context.Context, counsellorID CounsellorID, period generic.Period, exclude *SubmissionID) ([]Submission, error)
}

// AvailabilityCalculator is advisory only. It never blocks a finalize.
type AvailabilityCalculator struct {
	Store AvailabilityReader
}

func NewAvailabilityCalculator(store AvailabilityReader) *AvailabilityCalculator {
	return &AvailabilityCalculator{Store: store}
}

// Compute classifies every active counsellor against requested. exclude lets
// a submission being re-finalized not conflict with itself. Only confirmed
// submissions count as busy time.
func (c *AvailabilityCalculator) Compute(ctx context.Context, requested generic.Period, exclude *SubmissionID) ([]CounsellorAvailability, error) {
	if requested.End.Before(requested.Start) {
		return nil, generic.ErrInvalidPeriod
	}

	counsellors, err := c.Store.ListCounsellors(ctx, true)
	if err != nil {
		return nil, fmt.Errorf("failed to list counsellors: %w", err)
	}

	result := make([]CounsellorAvailability, 0, len(counsellors))
	for _, counsellor := range counsellors {
		conflicts, err := c.Store.ConfirmedConflicts(ctx, counsellor.ID, requested, exclude)
		if err != nil {
			return nil, fmt.Errorf("failed to load conflicts for counsellor %d: %w", counsellor.ID, err)
		}

		status, free, busy := Classify(requested, conflicts)
		result = append(result, CounsellorAvailability{
			Counsellor: counsellor,
			Status:     status,
			FreeRanges: free,
			BusyDays:   busy,
			Conflicts:  toConflicts(conflicts),
		})
	}
	return result, nil
}

func toConflicts(subs []Submission) []Conflict {
	out := make([]Conflict, len(subs))
	for i, s := range subs {
		out[i] = Conflict{
			SubmissionID:  s.ID,
			StartDate:     s.StartDate,
			EndDate:       s.EndDate,
			City:          s.City,
			Country:       s.Country,
			OrganizerName: s.OrganizerName,
			EventName:     s.EventName,
		}
	}
	return out
}
