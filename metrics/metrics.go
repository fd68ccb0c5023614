/*
Package metrics records detection-job and notification counters.

PURPOSE:
  Jobs and the notification service report through the Collector interface
  so tests and embedded deployments can run without Prometheus.

IMPLEMENTATIONS:
  - Nop:        discards everything
  - Prometheus: client_golang counters and histograms, served on /metrics
*/
package metrics

import "time"

// Job run results.
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
)

// Notification outcomes.
const (
	OutcomeCreated      = "created"
	OutcomeDeduplicated = "deduplicated"
	OutcomeFailed       = "failed"
)

// Collector receives engine metrics. Implementations must be safe for
// concurrent use.
type Collector interface {
	// JobRun records one completed run of a detection or maintenance job.
	JobRun(job, result string, duration time.Duration)

	// JobSkipped records a trigger dropped because the job was still running.
	JobSkipped(job string)

	// NotificationRaised records one notification create attempt.
	NotificationRaised(notificationType, outcome string)
}

// Nop discards all metrics.
type Nop struct{}

var _ Collector = Nop{}

func NewNop() Nop { return Nop{} }

func (Nop) JobRun(string, string, time.Duration) {}
func (Nop) JobSkipped(string)                    {}
func (Nop) NotificationRaised(string, string)    {}
