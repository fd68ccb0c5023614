package detection

import (
	"context"
	"fmt"

	"github.com/warp/staffing-engine/generic"
	"github.com/warp/staffing-engine/notification"
	"github.com/warp/staffing-engine/staffing"
)

// openEventStatuses are the event statuses that still occupy a counsellor.
var openEventStatuses = []staffing.EventStatus{staffing.EventOngoing, staffing.EventPostponed}

// =============================================================================
// COUNSELLOR OVERLOAD
// =============================================================================

// CheckOverload counts, per active counsellor, the distinct confirmed and
// still-open submissions starting in the next 30 days. At or above the
// threshold raises high priority; above threshold+2 raises critical.
func (d *Detector) CheckOverload(ctx context.Context) int {
	return d.run(ctx, JobOverload, func(ctx context.Context) (int, error) {
		settings, err := d.settings(ctx)
		if err != nil {
			return 0, err
		}
		if !settings.OverloadDetectionEnabled {
			return d.skipDisabled(JobOverload)
		}

		counsellors, err := d.Store.ListCounsellors(ctx, true)
		if err != nil {
			return 0, fmt.Errorf("failed to list counsellors: %w", err)
		}

		today := d.Clock.Today()
		horizon := today.AddDays(LookaheadDays)
		threshold := settings.OverloadThreshold

		raised := 0
		for _, c := range counsellors {
			id := c.ID
			count, err := d.Store.CountSubmissions(ctx, staffing.SubmissionFilter{
				Statuses:      []staffing.Status{staffing.StatusConfirmed},
				EventStatuses: openEventStatuses,
				AssignedTo:    &id,
				StartFrom:     &today,
				StartTo:       &horizon,
			})
			if err != nil {
				return raised, fmt.Errorf("failed to count assignments for counsellor %d: %w", c.ID, err)
			}
			if count < threshold {
				continue
			}

			priority := notification.PriorityHigh
			if count > threshold+2 {
				priority = notification.PriorityCritical
			}
			name := c.Name
			if name == "" {
				name = c.Username
			}

			if d.raise(ctx, notification.Notification{
				Type:     notification.TypeCounsellorOverload,
				Priority: priority,
				Title:    fmt.Sprintf("Counsellor overload: %s", name),
				Message: fmt.Sprintf("%s is confirmed on %d events starting in the next %d days (threshold %d).",
					name, count, LookaheadDays, threshold),
				Metadata: map[string]any{
					"counsellor_id": int64(c.ID),
					"count":         count,
					"threshold":     threshold,
				},
				TargetRole: string(staffing.RoleAdmin),
			}) {
				raised++
			}
		}
		return raised, nil
	})
}

// =============================================================================
// EVENT REMINDERS
// =============================================================================

// SendReminders raises a reminder for every open submission starting within
// 30 days that is still pending or has no assignments, once per milestone.
func (d *Detector) SendReminders(ctx context.Context) int {
	return d.run(ctx, JobReminders, func(ctx context.Context) (int, error) {
		settings, err := d.settings(ctx)
		if err != nil {
			return 0, err
		}
		if !settings.EventRemindersEnabled {
			return d.skipDisabled(JobReminders)
		}

		today := d.Clock.Today()
		horizon := today.AddDays(LookaheadDays)
		subs, err := d.Store.ListSubmissions(ctx, staffing.SubmissionFilter{
			Statuses:      []staffing.Status{staffing.StatusPending, staffing.StatusConfirmed},
			EventStatuses: []staffing.EventStatus{staffing.EventOngoing},
			StartFrom:     &today,
			StartTo:       &horizon,
		})
		if err != nil {
			return 0, fmt.Errorf("failed to list upcoming submissions: %w", err)
		}

		raised := 0
		for _, s := range subs {
			daysOut := generic.DaysBetween(today, s.StartDate)
			milestone, ok := MatchMilestone(daysOut, settings.ReminderDays)
			if !ok {
				continue
			}

			assignments, err := d.Store.ListAssignments(ctx, s.ID)
			if err != nil {
				return raised, fmt.Errorf("failed to list assignments for %d: %w", s.ID, err)
			}
			if s.Status != staffing.StatusPending && len(assignments) > 0 {
				continue
			}

			title := fmt.Sprintf("%d-day reminder: %s", milestone, submissionLabel(s))
			exists, err := d.Notifications.Repo.ExistsForSubmission(ctx, notification.TypeEventReminder, title, s.ID)
			if err != nil {
				return raised, fmt.Errorf("failed to check reminders for %d: %w", s.ID, err)
			}
			if exists {
				continue
			}

			id := s.ID
			if d.raise(ctx, notification.Notification{
				Type:     notification.TypeEventReminder,
				Priority: ReminderPriority(daysOut),
				Title:    title,
				Message: fmt.Sprintf("%s in %s, %s starts in %d day(s) and is %s with %d counsellor(s) assigned.",
					submissionLabel(s), s.City, s.Country, daysOut, s.Status, len(assignments)),
				Metadata: map[string]any{
					"days_until": daysOut,
					"milestone":  milestone,
					"status":     string(s.Status),
					"assigned":   len(assignments),
				},
				TargetRole:   string(staffing.RoleAdmin),
				SubmissionID: &id,
			}) {
				raised++
			}
		}
		return raised, nil
	})
}

// MatchMilestone finds the milestone m with daysOut <= m and daysOut greater
// than the next smaller milestone. milestones must be sorted descending.
// The smallest milestone matches down to zero days out.
func MatchMilestone(daysOut int, milestones []int) (int, bool) {
	if daysOut < 0 {
		return 0, false
	}
	for i, m := range milestones {
		next := -1
		if i+1 < len(milestones) {
			next = milestones[i+1]
		}
		if daysOut <= m && daysOut > next {
			return m, true
		}
	}
	return 0, false
}

// ReminderPriority scales inversely with days remaining.
func ReminderPriority(daysOut int) notification.Priority {
	switch {
	case daysOut <= 1:
		return notification.PriorityCritical
	case daysOut <= 7:
		return notification.PriorityHigh
	case daysOut <= 14:
		return notification.PriorityMedium
	default:
		return notification.PriorityLow
	}
}
