/*
Package detection implements the rules that watch submissions, assignments
and the activity log, and raise notifications about scheduling risk.

PURPOSE:
  Each job is a read-then-conditionally-write rule. Jobs are idempotent,
  individually switchable through notification settings, and never
  propagate failure: a job that hits a storage error logs it and reports
  zero.

JOBS:
  ┌───────────────┬──────────────────────────────┬─────────────────────────┐
  │ Name          │ Trigger                      │ Raises                  │
  ├───────────────┼──────────────────────────────┼─────────────────────────┤
  │ duplicates    │ submission create, manual    │ duplicate_submission    │
  │ overload      │ every 15m, after finalize    │ counsellor_overload     │
  │ reminders     │ daily                        │ event_reminder          │
  │ anomalies     │ every 6h                     │ anomaly_detected        │
  │ weekly_report │ weekly                       │ weekly_report           │
  │ cleanup       │ hourly                       │ (deletes expired rows)  │
  └───────────────┴──────────────────────────────┴─────────────────────────┘

FAILURE ISOLATION:
  A failed notification insert is logged and skipped; the job continues
  with the next candidate.

SEE ALSO:
  - scheduler package: periodic, non-overlapping invocation
  - staffing/hooks.go: event-triggered invocation
*/
package detection

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/warp/staffing-engine/generic"
	"github.com/warp/staffing-engine/metrics"
	"github.com/warp/staffing-engine/notification"
	"github.com/warp/staffing-engine/staffing"
)

// Job names. Also the scheduler task names and the manual trigger keys.
const (
	JobDuplicates   = "duplicates"
	JobOverload     = "overload"
	JobReminders    = "reminders"
	JobAnomalies    = "anomalies"
	JobWeeklyReport = "weekly_report"
	JobCleanup      = "cleanup"
)

// Windows and limits.
const (
	DuplicateCandidateLimit = 50
	LookaheadDays           = 30
	ActivityRetention       = 90 * 24 * time.Hour
	BulkDeleteWindow        = 10 * time.Minute
	BulkDeleteThreshold     = 5
	SpikeBaselineWindow     = 7 * 24 * time.Hour
	SpikeMultiplier         = 3
	SpikeMinimum            = 5
	DataErrorWindow         = 24 * time.Hour
	AgingPendingAge         = 7 * 24 * time.Hour
	WeeklyReportTTL         = 14 * 24 * time.Hour
)

// =============================================================================
// DETECTOR
// =============================================================================

type Detector struct {
	Store         staffing.Store
	Notifications *notification.Service
	Clock         generic.Clock
	Logger        *slog.Logger
	Metrics       metrics.Collector
}

func New(store staffing.Store, notifications *notification.Service, clock generic.Clock, logger *slog.Logger, m metrics.Collector) *Detector {
	if logger == nil {
		logger = slog.Default()
	}
	if m == nil {
		m = metrics.NewNop()
	}
	return &Detector{Store: store, Notifications: notifications, Clock: clock, Logger: logger, Metrics: m}
}

// Job is a named detector entry point returning the number of
// notifications raised (or rows removed, for cleanup).
type Job struct {
	Name string
	Run  func(ctx context.Context) int
}

// Jobs lists every periodic or manually triggerable job.
func (d *Detector) Jobs() []Job {
	return []Job{
		{Name: JobDuplicates, Run: d.ScanDuplicates},
		{Name: JobOverload, Run: d.CheckOverload},
		{Name: JobReminders, Run: d.SendReminders},
		{Name: JobAnomalies, Run: d.DetectAnomalies},
		{Name: JobWeeklyReport, Run: d.WeeklyReport},
		{Name: JobCleanup, Run: d.Cleanup},
	}
}

// Hooks wires the detector into the staffing service. triggerOverload
// schedules the overload job; pass the scheduler's trigger so an
// event-driven run never overlaps a periodic one. A nil triggerOverload
// runs the check inline.
func (d *Detector) Hooks(triggerOverload func(ctx context.Context)) staffing.Hooks {
	if triggerOverload == nil {
		triggerOverload = func(ctx context.Context) { d.CheckOverload(ctx) }
	}
	return staffing.Hooks{
		OnSubmissionCreated: func(ctx context.Context, s staffing.Submission) error {
			d.CheckDuplicates(ctx, s.ID)
			return nil
		},
		OnFinalized: func(ctx context.Context, _ staffing.Submission, _ []staffing.CounsellorID) error {
			triggerOverload(ctx)
			return nil
		},
	}
}

// =============================================================================
// HELPERS
// =============================================================================

// run is the job boundary: it times fn, records metrics, and converts
// errors and panics into a logged zero result.
func (d *Detector) run(ctx context.Context, job string, fn func(context.Context) (int, error)) (n int) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			d.Metrics.JobRun(job, metrics.ResultFailure, time.Since(start))
			d.Logger.Error("detection job panicked", "job", job, "panic", r)
			n = 0
		}
	}()

	n, err := fn(ctx)
	duration := time.Since(start)
	if err != nil {
		d.Metrics.JobRun(job, metrics.ResultFailure, duration)
		d.Logger.Error("detection job failed", "job", job, "duration", duration, "error", err)
		return 0
	}

	d.Metrics.JobRun(job, metrics.ResultSuccess, duration)
	d.Logger.Info("detection job completed", "job", job, "duration", duration, "raised", n)
	return n
}

// raise creates one notification. Failures are logged and reported as false.
func (d *Detector) raise(ctx context.Context, n notification.Notification) bool {
	_, created, err := d.Notifications.Create(ctx, n)
	if err != nil {
		d.Logger.Error("failed to create notification", "type", n.Type, "title", n.Title, "error", err)
		return false
	}
	return created
}

func (d *Detector) settings(ctx context.Context) (notification.Settings, error) {
	s, err := d.Notifications.Settings(ctx)
	if err != nil {
		return notification.Settings{}, fmt.Errorf("failed to load settings: %w", err)
	}
	return s, nil
}

func (d *Detector) skipDisabled(job string) (int, error) {
	d.Logger.Debug("detection job disabled", "job", job)
	return 0, nil
}

func submissionLabel(s staffing.Submission) string {
	if s.EventName != "" {
		return fmt.Sprintf("%s (#%d)", s.EventName, s.ID)
	}
	return fmt.Sprintf("submission #%d", s.ID)
}
