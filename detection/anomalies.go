package detection

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/staffing-engine/notification"
	"github.com/warp/staffing-engine/staffing"
)

// DetectAnomalies runs the bulk-deletion, volume-spike and data-error rules.
// The rules are independent; one failing aborts only the run's count.
func (d *Detector) DetectAnomalies(ctx context.Context) int {
	return d.run(ctx, JobAnomalies, func(ctx context.Context) (int, error) {
		settings, err := d.settings(ctx)
		if err != nil {
			return 0, err
		}
		if !settings.AnomalyDetectionEnabled {
			return d.skipDisabled(JobAnomalies)
		}

		now := d.Clock.Now()
		raised := 0
		for _, rule := range []func(context.Context, time.Time) (int, error){
			d.bulkDeletions,
			d.volumeSpike,
			d.invalidRanges,
		} {
			n, err := rule(ctx, now)
			if err != nil {
				return raised, err
			}
			raised += n
		}
		return raised, nil
	})
}

// bulkDeletions flags any actor with at least 5 deletes in the trailing 10 minutes.
func (d *Detector) bulkDeletions(ctx context.Context, now time.Time) (int, error) {
	since := now.Add(-BulkDeleteWindow)
	entries, err := d.Store.ListActivity(ctx, staffing.ActivityFilter{Action: staffing.ActionSubmissionDeleted, Since: &since})
	if err != nil {
		return 0, fmt.Errorf("failed to list deletions: %w", err)
	}

	perActor := make(map[string]int)
	for _, e := range entries {
		perActor[e.Actor]++
	}
	actors := make([]string, 0, len(perActor))
	for actor := range perActor {
		actors = append(actors, actor)
	}
	sort.Strings(actors)

	raised := 0
	for _, actor := range actors {
		count := perActor[actor]
		if count < BulkDeleteThreshold {
			continue
		}
		if d.raise(ctx, notification.Notification{
			Type:     notification.TypeAnomalyDetected,
			Priority: notification.PriorityHigh,
			Title:    fmt.Sprintf("Bulk deletion by %s", actor),
			Message:  fmt.Sprintf("%s deleted %d submissions in the last %s.", actor, count, BulkDeleteWindow),
			Metadata: map[string]any{
				"rule":    "bulk_deletion",
				"actor":   actor,
				"count":   count,
				"minutes": int(BulkDeleteWindow / time.Minute),
			},
			TargetRole: string(staffing.RoleAdmin),
		}) {
			raised++
		}
	}
	return raised, nil
}

// volumeSpike compares this hour's creations with the trailing 7-day hourly
// average. Fires at >= 3x the average and >= 5 absolute.
func (d *Detector) volumeSpike(ctx context.Context, now time.Time) (int, error) {
	hourStart := now.Truncate(time.Hour)
	baselineStart := hourStart.Add(-SpikeBaselineWindow)

	current, err := d.Store.ListActivity(ctx, staffing.ActivityFilter{Action: staffing.ActionSubmissionCreated, Since: &hourStart})
	if err != nil {
		return 0, fmt.Errorf("failed to list current creations: %w", err)
	}
	baseline, err := d.Store.ListActivity(ctx, staffing.ActivityFilter{Action: staffing.ActionSubmissionCreated, Since: &baselineStart, Until: &hourStart})
	if err != nil {
		return 0, fmt.Errorf("failed to list baseline creations: %w", err)
	}

	hours := decimal.NewFromInt(int64(SpikeBaselineWindow / time.Hour))
	average := decimal.NewFromInt(int64(len(baseline))).Div(hours)
	count := decimal.NewFromInt(int64(len(current)))

	if len(current) < SpikeMinimum || count.LessThan(average.Mul(decimal.NewFromInt(SpikeMultiplier))) {
		return 0, nil
	}

	if !d.raise(ctx, notification.Notification{
		Type:     notification.TypeAnomalyDetected,
		Priority: notification.PriorityMedium,
		Title:    fmt.Sprintf("Submission volume spike at %s", hourStart.Format("2006-01-02 15:00")),
		Message: fmt.Sprintf("%d submissions created this hour against a 7-day average of %s per hour.",
			len(current), average.StringFixed(2)),
		Metadata: map[string]any{
			"rule":           "volume_spike",
			"current":        len(current),
			"hourly_average": average.StringFixed(2),
		},
		TargetRole: string(staffing.RoleAdmin),
	}) {
		return 0, nil
	}
	return 1, nil
}

// invalidRanges flags submissions created in the last 24 hours whose end
// date precedes their start date. Validation should make this unreachable.
func (d *Detector) invalidRanges(ctx context.Context, now time.Time) (int, error) {
	since := now.Add(-DataErrorWindow)
	subs, err := d.Store.ListSubmissions(ctx, staffing.SubmissionFilter{CreatedAfter: &since})
	if err != nil {
		return 0, fmt.Errorf("failed to list recent submissions: %w", err)
	}

	raised := 0
	for _, s := range subs {
		if !s.EndDate.Before(s.StartDate) {
			continue
		}
		id := s.ID
		if d.raise(ctx, notification.Notification{
			Type:     notification.TypeAnomalyDetected,
			Priority: notification.PriorityCritical,
			Title:    fmt.Sprintf("Invalid date range on submission #%d", s.ID),
			Message: fmt.Sprintf("Submission #%d ends on %s before it starts on %s.",
				s.ID, s.EndDate, s.StartDate),
			Metadata: map[string]any{
				"rule":       "data_error",
				"start_date": s.StartDate.String(),
				"end_date":   s.EndDate.String(),
			},
			TargetRole:   string(staffing.RoleAdmin),
			SubmissionID: &id,
		}) {
			raised++
		}
	}
	return raised, nil
}
