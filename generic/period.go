package generic

import (
	"sort"
)

// =============================================================================
// PERIOD - Inclusive range of calendar days
// =============================================================================

// Period is a closed date range [Start, End]. Both ends count.
//
// Examples:
//   - A one-day event: Start == End
//   - A three-day conference on Jan 10-12: Start=Jan 10, End=Jan 12
type Period struct {
	Start Date
	End   Date
}

// NewPeriod validates start <= end.
func NewPeriod(start, end Date) (Period, error) {
	if start.IsZero() || end.IsZero() {
		return Period{}, &ValidationError{Field: "start_date", Message: "start_date and end_date are required"}
	}
	if end.Before(start) {
		return Period{}, ErrInvalidPeriod
	}
	return Period{Start: start, End: end}, nil
}

// Contains returns true if d is within [Start, End].
func (p Period) Contains(d Date) bool {
	return d.AfterOrEqual(p.Start) && d.BeforeOrEqual(p.End)
}

// Len is the number of days in the period, counting both ends.
func (p Period) Len() int {
	if p.End.Before(p.Start) {
		return 0
	}
	return DaysBetween(p.Start, p.End) + 1
}

// Days returns every day in the period in ascending order.
func (p Period) Days() []Date {
	return EnumerateDays(p.Start, p.End)
}

// Overlaps is the closed-interval overlap test against other.
func (p Period) Overlaps(other Period) bool {
	return Overlaps(p.Start, p.End, other.Start, other.End)
}

// Intersect returns the shared days of p and other, if any.
func (p Period) Intersect(other Period) (Period, bool) {
	if !p.Overlaps(other) {
		return Period{}, false
	}
	return Period{Start: MaxDate(p.Start, other.Start), End: MinDate(p.End, other.End)}, true
}

// String renders a single day as "2026-01-10" and a run as "2026-01-10 -> 2026-01-12".
func (p Period) String() string {
	if p.Start.Equal(p.End) {
		return p.Start.String()
	}
	return p.Start.String() + " -> " + p.End.String()
}

// =============================================================================
// DATE-RANGE UTILITIES
// =============================================================================

// EnumerateDays lists start..end inclusive. Caller guarantees start <= end;
// an inverted range yields nothing.
func EnumerateDays(start, end Date) []Date {
	if end.Before(start) {
		return nil
	}
	days := make([]Date, 0, DaysBetween(start, end)+1)
	for current := start; current.BeforeOrEqual(end); current = current.AddDays(1) {
		days = append(days, current)
	}
	return days
}

// Overlaps is true unless endA < startB or startA > endB.
func Overlaps(startA, endA, startB, endB Date) bool {
	return !(endA.Before(startB) || startA.After(endB))
}

// CompressToRanges sorts and de-duplicates days, then splits them into maximal
// runs of consecutive calendar days.
func CompressToRanges(days []Date) []Period {
	if len(days) == 0 {
		return nil
	}

	sorted := make([]Date, len(days))
	copy(sorted, days)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Before(sorted[j]) })

	var ranges []Period
	current := Period{Start: sorted[0], End: sorted[0]}
	for _, d := range sorted[1:] {
		switch {
		case d.Equal(current.End):
			// duplicate
		case d.Equal(current.End.AddDays(1)):
			current.End = d
		default:
			ranges = append(ranges, current)
			current = Period{Start: d, End: d}
		}
	}
	return append(ranges, current)
}

// FormatRanges renders CompressToRanges output for display.
func FormatRanges(ranges []Period) []string {
	out := make([]string, len(ranges))
	for i, r := range ranges {
		out[i] = r.String()
	}
	return out
}
