/*
Package generic provides the date primitives and error taxonomy shared by the
staffing engine.

PURPOSE:
  The staffing domain is date-only. Events span whole calendar days and there
  is no time-of-day anywhere in the scheduling rules. Date wraps time.Time and
  always normalizes to UTC midnight so that two dates compare equal whenever
  they name the same calendar day.

KEY CONCEPTS IN THIS PACKAGE:
  - Date:   A calendar day (time.go)
  - Clock:  Source of "now" and "today", injectable for tests (time.go)
  - Period: An inclusive [Start, End] range of dates (period.go)
  - Errors: Validation / not-found / forbidden taxonomy (errors.go)

USAGE:
  start, _ := generic.ParseDate("2026-01-10")
  end, _ := generic.ParseDate("2026-01-12")
  p, err := generic.NewPeriod(start, end)
  for _, d := range p.Days() { ... }

SEE ALSO:
  - period.go: enumeration, overlap, range compression
  - staffing/availability.go: main consumer of Period arithmetic
*/
package generic

import (
	"encoding/json"
	"fmt"
	"time"
)

// DateLayout is the wire and storage format of a Date.
const DateLayout = "2006-01-02"

// =============================================================================
// DATE - Calendar day, no time component
// =============================================================================

type Date struct {
	t time.Time
}

func NewDate(year int, month time.Month, day int) Date {
	return Date{t: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// DateOf truncates t to its calendar day in t's own location.
func DateOf(t time.Time) Date {
	return NewDate(t.Year(), t.Month(), t.Day())
}

// ParseDate parses a YYYY-MM-DD string.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return Date{}, &ValidationError{Field: "date", Message: fmt.Sprintf("invalid date %q (use YYYY-MM-DD)", s)}
	}
	return DateOf(t), nil
}

// MustParseDate is ParseDate for literals in tests and fixtures.
func MustParseDate(s string) Date {
	d, err := ParseDate(s)
	if err != nil {
		panic(err)
	}
	return d
}

// Comparison
func (d Date) Before(other Date) bool        { return d.t.Before(other.t) }
func (d Date) After(other Date) bool         { return d.t.After(other.t) }
func (d Date) Equal(other Date) bool         { return d.t.Equal(other.t) }
func (d Date) BeforeOrEqual(other Date) bool { return !d.t.After(other.t) }
func (d Date) AfterOrEqual(other Date) bool  { return !d.t.Before(other.t) }

// Arithmetic
func (d Date) AddDays(n int) Date { return Date{t: d.t.AddDate(0, 0, n)} }

// Properties
func (d Date) Time() time.Time { return d.t }
func (d Date) IsZero() bool    { return d.t.IsZero() }
func (d Date) String() string  { return d.t.Format(DateLayout) }

func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(d.String())
}

func (d *Date) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return &ValidationError{Field: "date", Message: "date must be a string"}
	}
	if s == "" {
		*d = Date{}
		return nil
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// DaysBetween returns the signed number of calendar days from -> to.
func DaysBetween(from, to Date) int {
	return int(to.t.Sub(from.t).Hours() / 24)
}

// MinDate returns the earlier of a and b.
func MinDate(a, b Date) Date {
	if a.Before(b) {
		return a
	}
	return b
}

// MaxDate returns the later of a and b.
func MaxDate(a, b Date) Date {
	if a.After(b) {
		return a
	}
	return b
}

// =============================================================================
// CLOCK - Injectable "now"
// =============================================================================

// Clock returns the current instant. A nil Clock means time.Now.
type Clock func() time.Time

// SystemClock is the production clock.
var SystemClock Clock = time.Now

// FixedClock always returns t. Used by tests for date-dependent rules.
func FixedClock(t time.Time) Clock {
	return func() time.Time { return t }
}

func (c Clock) Now() time.Time {
	if c == nil {
		return time.Now().UTC()
	}
	return c().UTC()
}

// Today is the current calendar day in UTC.
func (c Clock) Today() Date {
	return DateOf(c.Now())
}
