package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// =============================================================================
// DETECTION JOBS (admin)
// =============================================================================

// ListJobs reports every registered job with its last run.
func (h *Handler) ListJobs(w http.ResponseWriter, r *http.Request) {
	tasks := h.Jobs.Tasks()
	dtos := make([]JobDTO, 0, len(tasks))
	for _, t := range tasks {
		dtos = append(dtos, toJobDTO(t))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// RunJob executes a job synchronously. A job already in flight is not run
// again; the response says skipped instead.
func (h *Handler) RunJob(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	result, err := h.Jobs.RunNow(r.Context(), name)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	h.Logger.Info("job triggered manually",
		"job", name,
		"by", principal(r).Username,
		"skipped", result.Skipped,
		"count", result.Count,
	)
	writeJSON(w, http.StatusOK, toRunDTO(result))
}
