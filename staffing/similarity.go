package staffing

import (
	"strings"
	"unicode/utf8"

	"github.com/shopspring/decimal"
)

// =============================================================================
// SIMILARITY WEIGHTS
// =============================================================================

// Each factor is additive and independent. Organizer identity and the
// organizer-name fallback are mutually exclusive per pair.
var (
	WeightOrganizerID   = decimal.RequireFromString("0.35")
	WeightOrganizerName = decimal.RequireFromString("0.30")
	WeightDateOverlap   = decimal.RequireFromString("0.25")
	WeightCountry       = decimal.RequireFromString("0.15")
	WeightCity          = decimal.RequireFromString("0.15")
	WeightEventName     = decimal.RequireFromString("0.10")

	// CitySimilarityCutoff is the normalized edit similarity a city pair must reach.
	CitySimilarityCutoff = decimal.RequireFromString("0.8")

	// DefaultDuplicateThreshold flags a pair as a candidate duplicate.
	DefaultDuplicateThreshold = decimal.RequireFromString("0.7")
)

type Factor string

const (
	FactorOrganizerID   Factor = "organizer_id"
	FactorOrganizerName Factor = "organizer_name"
	FactorDateOverlap   Factor = "date_overlap"
	FactorCountry       Factor = "country"
	FactorCity          Factor = "city"
	FactorEventName     Factor = "event_name"
)

// Similarity is the scored result for one pair.
type Similarity struct {
	Score   decimal.Decimal // rounded to two decimals
	Factors []Factor
}

// IsDuplicate reports whether the score reaches threshold.
func (s Similarity) IsDuplicate(threshold decimal.Decimal) bool {
	return s.Score.GreaterThanOrEqual(threshold)
}

// =============================================================================
// SCORER
// =============================================================================

// Score compares two submissions. Symmetric: Score(a, b) == Score(b, a).
func Score(a, b Submission) Similarity {
	total := decimal.Zero
	var factors []Factor
	add := func(f Factor, w decimal.Decimal) {
		total = total.Add(w)
		factors = append(factors, f)
	}

	switch {
	case a.OrganizerID != nil && b.OrganizerID != nil:
		if *a.OrganizerID == *b.OrganizerID {
			add(FactorOrganizerID, WeightOrganizerID)
		}
	case sameText(a.OrganizerName, b.OrganizerName):
		add(FactorOrganizerName, WeightOrganizerName)
	}

	if a.Period().Overlaps(b.Period()) {
		add(FactorDateOverlap, WeightDateOverlap)
	}
	if sameText(a.Country, b.Country) {
		add(FactorCountry, WeightCountry)
	}
	if StringSimilarity(normalize(a.City), normalize(b.City)).GreaterThanOrEqual(CitySimilarityCutoff) {
		add(FactorCity, WeightCity)
	}
	if a.EventNameID != nil && b.EventNameID != nil && *a.EventNameID == *b.EventNameID {
		add(FactorEventName, WeightEventName)
	}

	return Similarity{Score: total.Round(2), Factors: factors}
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// sameText is a case-insensitive exact match; two blanks never match.
func sameText(a, b string) bool {
	a, b = normalize(a), normalize(b)
	return a != "" && a == b
}

// =============================================================================
// EDIT DISTANCE
// =============================================================================

// StringSimilarity is 1 - distance/max(len). Empty input scores 0.
func StringSimilarity(a, b string) decimal.Decimal {
	longest := max(utf8.RuneCountInString(a), utf8.RuneCountInString(b))
	if utf8.RuneCountInString(a) == 0 || utf8.RuneCountInString(b) == 0 {
		return decimal.Zero
	}
	dist := Levenshtein(a, b)
	return decimal.NewFromInt(1).Sub(decimal.NewFromInt(int64(dist)).Div(decimal.NewFromInt(int64(longest))))
}

// Levenshtein is the classic single-character insert/delete/substitute
// distance, computed over runes with two rolling rows.
func Levenshtein(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 {
		return len(rb)
	}
	if len(rb) == 0 {
		return len(ra)
	}

	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(ra); i++ {
		curr[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			curr[j] = min(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(rb)]
}
