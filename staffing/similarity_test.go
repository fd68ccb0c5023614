package staffing_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/warp/staffing-engine/generic"
	"github.com/warp/staffing-engine/staffing"
)

func ptr[T any](v T) *T { return &v }

func sub(start, end, country, city string) staffing.Submission {
	return staffing.Submission{
		StartDate: generic.MustParseDate(start),
		EndDate:   generic.MustParseDate(end),
		Country:   country,
		City:      city,
	}
}

func TestScore_ParisScenarioFlagged(t *testing.T) {
	// GIVEN: Same organizer, country and city with overlapping dates
	s1 := sub("2026-01-10", "2026-01-12", "FR", "Paris")
	s1.OrganizerID = ptr(int64(5))
	s2 := sub("2026-01-11", "2026-01-15", "FR", "Paris")
	s2.OrganizerID = ptr(int64(5))

	// WHEN: Scored
	sim := staffing.Score(s1, s2)

	// THEN: At least 0.35 + 0.25 + 0.15, above default threshold
	assert.True(t, sim.Score.GreaterThanOrEqual(decimal.RequireFromString("0.75")), "score %s", sim.Score)
	assert.True(t, sim.IsDuplicate(staffing.DefaultDuplicateThreshold))
	assert.Contains(t, sim.Factors, staffing.FactorOrganizerID)
	assert.NotContains(t, sim.Factors, staffing.FactorOrganizerName)
}

func TestScore_Symmetric(t *testing.T) {
	a := sub("2026-03-01", "2026-03-03", "de", "Munchen")
	a.OrganizerName = "Acme Events"
	a.EventNameID = ptr(int64(9))
	b := sub("2026-03-03", "2026-03-09", "DE", "München")
	b.OrganizerName = "ACME events"
	b.EventNameID = ptr(int64(9))
	c := sub("2026-05-01", "2026-05-02", "IT", "Roma")
	c.OrganizerID = ptr(int64(1))

	pairs := [][2]staffing.Submission{{a, b}, {a, c}, {b, c}, {a, a}}
	for _, p := range pairs {
		assert.True(t, staffing.Score(p[0], p[1]).Score.Equal(staffing.Score(p[1], p[0]).Score))
	}
}

func TestScore_NameFallbackOnlyWithoutBothIDs(t *testing.T) {
	a := sub("2026-01-01", "2026-01-01", "", "")
	a.OrganizerName = "Acme"
	b := a

	assert.Equal(t, "0.55", staffing.Score(a, b).Score.StringFixed(2), "name 0.30 + overlap 0.25")

	// Both ids present and different: no fallback even though names match.
	a.OrganizerID, b.OrganizerID = ptr(int64(1)), ptr(int64(2))
	sim := staffing.Score(a, b)
	assert.Equal(t, "0.25", sim.Score.StringFixed(2))
	assert.Equal(t, []staffing.Factor{staffing.FactorDateOverlap}, sim.Factors)
}

func TestScore_AllFactors(t *testing.T) {
	a := sub("2026-01-01", "2026-01-02", "FR", "Lyon")
	a.OrganizerID = ptr(int64(3))
	a.EventNameID = ptr(int64(4))
	b := a

	assert.Equal(t, "1.00", staffing.Score(a, b).Score.StringFixed(2))
}

func TestScore_DisjointNothingInCommon(t *testing.T) {
	a := sub("2026-01-01", "2026-01-02", "FR", "Lyon")
	b := sub("2026-02-01", "2026-02-02", "ES", "Madrid")

	sim := staffing.Score(a, b)
	assert.True(t, sim.Score.IsZero())
	assert.Empty(t, sim.Factors)
	assert.False(t, sim.IsDuplicate(staffing.DefaultDuplicateThreshold))
}

func TestLevenshtein(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"", "", 0},
		{"", "abc", 3},
		{"kitten", "sitting", 3},
		{"paris", "paris", 0},
		{"munchen", "münchen", 1},
		{"flaw", "lawn", 2},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, staffing.Levenshtein(tt.a, tt.b), "%q vs %q", tt.a, tt.b)
		assert.Equal(t, tt.want, staffing.Levenshtein(tt.b, tt.a), "%q vs %q", tt.b, tt.a)
	}
}

func TestStringSimilarity(t *testing.T) {
	assert.True(t, staffing.StringSimilarity("", "").IsZero())
	assert.True(t, staffing.StringSimilarity("paris", "").IsZero())
	assert.True(t, staffing.StringSimilarity("paris", "paris").Equal(decimal.NewFromInt(1)))
	// 1 - 1/7
	assert.True(t, staffing.StringSimilarity("munchen", "münchen").GreaterThanOrEqual(staffing.CitySimilarityCutoff))
	// 1 - 3/7 is below the city cutoff
	assert.True(t, staffing.StringSimilarity("kitten", "sitting").LessThan(staffing.CitySimilarityCutoff))
}
