package detection

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/warp/staffing-engine/notification"
	"github.com/warp/staffing-engine/staffing"
)

var highSimilarity = decimal.RequireFromString("0.9")

// CheckDuplicates compares one submission against the 50 most recent
// submissions sharing its country or overlapping its dates, and raises one
// notification per candidate at or above the configured threshold.
// Dismissed pairs are never flagged.
func (d *Detector) CheckDuplicates(ctx context.Context, id staffing.SubmissionID) int {
	return d.run(ctx, JobDuplicates, func(ctx context.Context) (int, error) {
		settings, err := d.settings(ctx)
		if err != nil {
			return 0, err
		}
		if !settings.DuplicateDetectionEnabled {
			return d.skipDisabled(JobDuplicates)
		}

		s, err := d.Store.GetSubmission(ctx, id)
		if err != nil {
			return 0, fmt.Errorf("failed to load submission %d: %w", id, err)
		}
		if s == nil {
			return 0, fmt.Errorf("submission %d not found", id)
		}
		return d.duplicatesOf(ctx, *s, settings.DuplicateThreshold, nil)
	})
}

// ScanDuplicates re-checks every submission created in the last 24 hours.
// Each pair is raised at most once per scan.
func (d *Detector) ScanDuplicates(ctx context.Context) int {
	return d.run(ctx, JobDuplicates, func(ctx context.Context) (int, error) {
		settings, err := d.settings(ctx)
		if err != nil {
			return 0, err
		}
		if !settings.DuplicateDetectionEnabled {
			return d.skipDisabled(JobDuplicates)
		}

		since := d.Clock.Now().Add(-DataErrorWindow)
		recent, err := d.Store.ListSubmissions(ctx, staffing.SubmissionFilter{CreatedAfter: &since})
		if err != nil {
			return 0, fmt.Errorf("failed to list recent submissions: %w", err)
		}

		seen := make(map[staffing.DuplicatePair]bool)
		raised := 0
		for _, s := range recent {
			n, err := d.duplicatesOf(ctx, s, settings.DuplicateThreshold, seen)
			if err != nil {
				return raised, err
			}
			raised += n
		}
		return raised, nil
	})
}

func (d *Detector) duplicatesOf(ctx context.Context, s staffing.Submission, threshold decimal.Decimal, seen map[staffing.DuplicatePair]bool) (int, error) {
	window := s.Period()
	candidates, err := d.Store.ListSubmissions(ctx, staffing.SubmissionFilter{
		Country:          s.Country,
		Overlapping:      &window,
		CountryOrOverlap: true,
		ExcludeIDs:       []staffing.SubmissionID{s.ID},
		Limit:            DuplicateCandidateLimit,
	})
	if err != nil {
		return 0, fmt.Errorf("failed to list duplicate candidates: %w", err)
	}

	dismissed, err := d.Store.DismissedPartners(ctx, s.ID)
	if err != nil {
		return 0, fmt.Errorf("failed to load dismissals: %w", err)
	}

	raised := 0
	for _, c := range candidates {
		if dismissed[c.ID] {
			continue
		}
		pair := staffing.NewDuplicatePair(s.ID, c.ID)
		if seen != nil {
			if seen[pair] {
				continue
			}
			seen[pair] = true
		}

		sim := staffing.Score(s, c)
		if !sim.IsDuplicate(threshold) {
			continue
		}
		if d.raise(ctx, duplicateNotification(pair, sim)) {
			raised++
		}
	}
	return raised, nil
}

// duplicateNotification is attached to the newer submission of the pair so
// a create-time check and a later scan deduplicate against each other.
func duplicateNotification(pair staffing.DuplicatePair, sim staffing.Similarity) notification.Notification {
	priority := notification.PriorityMedium
	if sim.Score.GreaterThanOrEqual(highSimilarity) {
		priority = notification.PriorityHigh
	}

	factors := make([]string, len(sim.Factors))
	for i, f := range sim.Factors {
		factors[i] = string(f)
	}

	newer := pair.B
	return notification.Notification{
		Type:     notification.TypeDuplicateSubmission,
		Priority: priority,
		Title:    fmt.Sprintf("Possible duplicate: #%d and #%d", pair.A, pair.B),
		Message: fmt.Sprintf("Submissions #%d and #%d look like the same event (similarity %s).",
			pair.A, pair.B, sim.Score.StringFixed(2)),
		Metadata: map[string]any{
			"submission_a": int64(pair.A),
			"submission_b": int64(pair.B),
			"score":        sim.Score.StringFixed(2),
			"factors":      factors,
		},
		TargetRole:   string(staffing.RoleAdmin),
		SubmissionID: &newer,
	}
}
