package metrics_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/staffing-engine/metrics"
)

func TestPrometheus_CountsJobRuns(t *testing.T) {
	// GIVEN: A collector on a private registry
	reg := prometheus.NewRegistry()
	c := metrics.NewPrometheus(reg, "")

	// WHEN: Two runs and one skip are recorded
	c.JobRun("overload", metrics.ResultSuccess, 10*time.Millisecond)
	c.JobRun("overload", metrics.ResultFailure, 5*time.Millisecond)
	c.JobSkipped("overload")
	c.NotificationRaised("weekly_report", metrics.OutcomeCreated)

	// THEN: Each series is visible under the staffing namespace
	n, err := testutil.GatherAndCount(reg, "staffing_job_runs_total")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = testutil.GatherAndCount(reg, "staffing_job_skipped_total", "staffing_notifications_total")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestPrometheus_Handler(t *testing.T) {
	c := metrics.NewPrometheus(nil, "test")
	c.JobRun("cleanup", metrics.ResultSuccess, time.Millisecond)

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `test_job_runs_total{job="cleanup",result="success"} 1`)
}

func TestNop_DiscardsEverything(t *testing.T) {
	var c metrics.Collector = metrics.NewNop()
	assert.NotPanics(t, func() {
		c.JobRun("x", metrics.ResultSuccess, time.Second)
		c.JobSkipped("x")
		c.NotificationRaised("x", metrics.OutcomeFailed)
	})
}
