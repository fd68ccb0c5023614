package detection

import (
	"context"
	"fmt"

	"github.com/warp/staffing-engine/notification"
	"github.com/warp/staffing-engine/staffing"
)

// WeeklyStats is the aggregate carried by the weekly report.
type WeeklyStats struct {
	Upcoming          int // open submissions starting in the next 30 days
	Unstaffed         int // of those, still pending
	AgingPending      int // pending and older than 7 days
	NextWeekConfirmed int // confirmed, starting in the next 7 days
	ActiveCounsellors int
}

// WeeklyReport raises a single weekly_report notification, superseding any
// previous one. Priority is high when unstaffed > 5 or aging > 10.
func (d *Detector) WeeklyReport(ctx context.Context) int {
	return d.run(ctx, JobWeeklyReport, func(ctx context.Context) (int, error) {
		settings, err := d.settings(ctx)
		if err != nil {
			return 0, err
		}
		if !settings.WeeklyReportEnabled {
			return d.skipDisabled(JobWeeklyReport)
		}

		stats, err := d.weeklyStats(ctx)
		if err != nil {
			return 0, err
		}

		priority := notification.PriorityMedium
		if stats.Unstaffed > 5 || stats.AgingPending > 10 {
			priority = notification.PriorityHigh
		}
		now := d.Clock.Now()
		expires := now.Add(WeeklyReportTTL)

		if !d.raise(ctx, notification.Notification{
			Type:     notification.TypeWeeklyReport,
			Priority: priority,
			Title:    fmt.Sprintf("Weekly staffing report: %s", d.Clock.Today()),
			Message: fmt.Sprintf("%d upcoming events in the next %d days, %d unstaffed, %d pending for over a week, "+
				"%d confirmed for next week, %d active counsellors.",
				stats.Upcoming, LookaheadDays, stats.Unstaffed, stats.AgingPending, stats.NextWeekConfirmed, stats.ActiveCounsellors),
			Metadata: map[string]any{
				"upcoming":            stats.Upcoming,
				"unstaffed":           stats.Unstaffed,
				"aging_pending":       stats.AgingPending,
				"next_week_confirmed": stats.NextWeekConfirmed,
				"active_counsellors":  stats.ActiveCounsellors,
			},
			TargetRole: string(staffing.RoleAdmin),
			ExpiresAt:  &expires,
		}) {
			return 0, nil
		}
		return 1, nil
	})
}

type countQuery struct {
	into   *int
	filter staffing.SubmissionFilter
}

func (d *Detector) weeklyStats(ctx context.Context) (WeeklyStats, error) {
	today := d.Clock.Today()
	horizon := today.AddDays(LookaheadDays)
	nextWeek := today.AddDays(7)
	agedBefore := d.Clock.Now().Add(-AgingPendingAge)
	ongoing := []staffing.EventStatus{staffing.EventOngoing}

	var stats WeeklyStats
	counts := []countQuery{
		{&stats.Upcoming, staffing.SubmissionFilter{
			Statuses:      []staffing.Status{staffing.StatusPending, staffing.StatusConfirmed},
			EventStatuses: ongoing, StartFrom: &today, StartTo: &horizon,
		}},
		{&stats.Unstaffed, staffing.SubmissionFilter{
			Statuses:      []staffing.Status{staffing.StatusPending},
			EventStatuses: ongoing, StartFrom: &today, StartTo: &horizon,
		}},
		{&stats.AgingPending, staffing.SubmissionFilter{
			Statuses:      []staffing.Status{staffing.StatusPending},
			EventStatuses: ongoing, CreatedBefore: &agedBefore,
		}},
		{&stats.NextWeekConfirmed, staffing.SubmissionFilter{
			Statuses:  []staffing.Status{staffing.StatusConfirmed},
			StartFrom: &today, StartTo: &nextWeek,
		}},
	}

	for _, c := range counts {
		n, err := d.Store.CountSubmissions(ctx, c.filter)
		if err != nil {
			return WeeklyStats{}, fmt.Errorf("failed to count submissions: %w", err)
		}
		*c.into = n
	}

	counsellors, err := d.Store.ListCounsellors(ctx, true)
	if err != nil {
		return WeeklyStats{}, fmt.Errorf("failed to list counsellors: %w", err)
	}
	stats.ActiveCounsellors = len(counsellors)
	return stats, nil
}

// =============================================================================
// CLEANUP
// =============================================================================

// Cleanup deletes expired notifications and activity older than 90 days.
// Returns the number of rows removed.
func (d *Detector) Cleanup(ctx context.Context) int {
	return d.run(ctx, JobCleanup, func(ctx context.Context) (int, error) {
		expired, err := d.Notifications.PurgeExpired(ctx)
		if err != nil {
			return 0, fmt.Errorf("failed to purge expired notifications: %w", err)
		}
		pruned, err := d.Store.PruneActivity(ctx, d.Clock.Now().Add(-ActivityRetention))
		if err != nil {
			return int(expired), fmt.Errorf("failed to prune activity: %w", err)
		}
		return int(expired + pruned), nil
	})
}
