/*
handlers.go - HTTP API handlers for the staffing engine

PURPOSE:
  Exposes availability, the staffing lifecycle and counsellor management
  over REST. Handles HTTP request/response, JSON serialization and
  delegates every rule to the staffing service.

ENDPOINTS:
  Availability:
    GET    /api/availability?start_date=&end_date=&exclude_submission_id=

  Counsellors:
    GET    /api/counsellors?all=true     List (active only by default)
    POST   /api/counsellors              Create (admin)
    POST   /api/counsellors/{id}/deactivate  Deactivate (admin)

  Submissions:
    GET    /api/submissions              List (status, event_status, submitted_by, assigned_to, limit, offset)
    POST   /api/submissions              Create (caller's own)
    GET    /api/submissions/{id}         Detail with assignments and suggestions
    PUT    /api/submissions/{id}         Edit (owner, before start when confirmed)
    DELETE /api/submissions/{id}         Delete (owner or admin)
    POST   /api/submissions/{id}/finalize           Staff (admin)
    PUT    /api/submissions/{id}/metadata           Payment / event status (admin)
    POST   /api/submissions/{id}/reschedule         Reopen cancelled/postponed (admin)
    POST   /api/submissions/{id}/dismiss-duplicate  Not a duplicate (admin)

REQUEST FLOW:
  1. Read the principal placed by the auth middleware
  2. Decode and validate the body (dto.go)
  3. Call the staffing service
  4. Serialize response, or map the error with writeServiceError

ERROR HANDLING:
  - 400: Validation errors, invalid input
  - 401: Missing or invalid token
  - 403: Role or ownership mismatch
  - 404: Resource not found
  - 409: Lifecycle transition not allowed
  - 500: Internal errors (logged, details withheld)

SEE ALSO:
  - notifications.go: Feed and settings handlers
  - jobs.go:          Manual detection job trigger
  - dto.go:           Request/response data structures
  - server.go:        Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/warp/staffing-engine/generic"
	"github.com/warp/staffing-engine/notification"
	"github.com/warp/staffing-engine/scheduler"
	"github.com/warp/staffing-engine/staffing"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// JobRunner is the slice of the scheduler the API needs.
type JobRunner interface {
	Tasks() []scheduler.TaskInfo
	RunNow(ctx context.Context, name string) (scheduler.RunResult, error)
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Staffing      *staffing.Service
	Notifications *notification.Service
	Jobs          JobRunner
	Logger        *slog.Logger
}

func NewHandler(staff *staffing.Service, notifications *notification.Service, jobs JobRunner, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{Staffing: staff, Notifications: notifications, Jobs: jobs, Logger: logger}
}

// =============================================================================
// AVAILABILITY
// =============================================================================

func (h *Handler) GetAvailability(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	start, end, err := parseRange(q.Get("start_date"), q.Get("end_date"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	var exclude *staffing.SubmissionID
	if raw := q.Get("exclude_submission_id"); raw != "" {
		id, err := parseID(raw, "exclude_submission_id")
		if err != nil {
			h.writeServiceError(w, r, err)
			return
		}
		sid := staffing.SubmissionID(id)
		exclude = &sid
	}

	result, err := h.Staffing.Availability(r.Context(), start, end, exclude)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	dtos := make([]AvailabilityDTO, 0, len(result))
	for _, a := range result {
		dtos = append(dtos, toAvailabilityDTO(a))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// COUNSELLORS
// =============================================================================

func (h *Handler) ListCounsellors(w http.ResponseWriter, r *http.Request) {
	activeOnly := r.URL.Query().Get("all") != "true"
	counsellors, err := h.Staffing.ListCounsellors(r.Context(), activeOnly)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	dtos := make([]CounsellorDTO, 0, len(counsellors))
	for _, c := range counsellors {
		dtos = append(dtos, toCounsellorDTO(c))
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) CreateCounsellor(w http.ResponseWriter, r *http.Request) {
	var req CreateCounsellorRequest
	if err := decodeRequest(r, &req); err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	c, err := h.Staffing.CreateCounsellor(r.Context(), principal(r), req.Username, req.Name)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toCounsellorDTO(*c))
}

func (h *Handler) DeactivateCounsellor(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(chi.URLParam(r, "id"), "id")
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	if err := h.Staffing.DeactivateCounsellor(r.Context(), principal(r), staffing.CounsellorID(id)); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "active": false})
}

// =============================================================================
// SUBMISSIONS
// =============================================================================

func (h *Handler) ListSubmissions(w http.ResponseWriter, r *http.Request) {
	filter, err := submissionFilter(r)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	subs, err := h.Staffing.ListSubmissions(r.Context(), filter)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	dtos := make([]SubmissionDTO, 0, len(subs))
	for _, s := range subs {
		dtos = append(dtos, toSubmissionDTO(s))
	}
	writeJSON(w, http.StatusOK, dtos)
}

func submissionFilter(r *http.Request) (staffing.SubmissionFilter, error) {
	q := r.URL.Query()
	var f staffing.SubmissionFilter

	for _, raw := range splitParam(q.Get("status")) {
		s := staffing.Status(raw)
		if !s.Valid() {
			return f, &generic.ValidationError{Field: "status", Message: "unknown status " + strconv.Quote(raw)}
		}
		f.Statuses = append(f.Statuses, s)
	}
	for _, raw := range splitParam(q.Get("event_status")) {
		e := staffing.EventStatus(strings.ToUpper(raw))
		if !e.Valid() {
			return f, &generic.ValidationError{Field: "event_status", Message: "unknown event_status " + strconv.Quote(raw)}
		}
		f.EventStatuses = append(f.EventStatuses, e)
	}
	if raw := q.Get("submitted_by"); raw != "" {
		id, err := parseID(raw, "submitted_by")
		if err != nil {
			return f, err
		}
		cid := staffing.CounsellorID(id)
		f.SubmittedBy = &cid
	}
	if raw := q.Get("assigned_to"); raw != "" {
		id, err := parseID(raw, "assigned_to")
		if err != nil {
			return f, err
		}
		cid := staffing.CounsellorID(id)
		f.AssignedTo = &cid
	}

	limit, offset, err := pagination(r, 100, 500)
	if err != nil {
		return f, err
	}
	f.Limit, f.Offset = limit, offset
	return f, nil
}

func (h *Handler) CreateSubmission(w http.ResponseWriter, r *http.Request) {
	var req SubmissionRequest
	if err := decodeRequest(r, &req); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	in, err := req.toInput()
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	sub, err := h.Staffing.CreateSubmission(r.Context(), principal(r), in)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toSubmissionDTO(*sub))
}

func (h *Handler) GetSubmission(w http.ResponseWriter, r *http.Request) {
	id, ok := h.submissionID(w, r)
	if !ok {
		return
	}

	detail, err := h.Staffing.GetSubmission(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toSubmissionDetailDTO(*detail))
}

func (h *Handler) EditSubmission(w http.ResponseWriter, r *http.Request) {
	id, ok := h.submissionID(w, r)
	if !ok {
		return
	}
	var req SubmissionRequest
	if err := decodeRequest(r, &req); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	in, err := req.toInput()
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	sub, err := h.Staffing.EditSubmission(r.Context(), principal(r), id, in)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toSubmissionDTO(*sub))
}

func (h *Handler) DeleteSubmission(w http.ResponseWriter, r *http.Request) {
	id, ok := h.submissionID(w, r)
	if !ok {
		return
	}

	if err := h.Staffing.DeleteSubmission(r.Context(), principal(r), id); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) FinalizeSubmission(w http.ResponseWriter, r *http.Request) {
	id, ok := h.submissionID(w, r)
	if !ok {
		return
	}
	var req FinalizeRequest
	if err := decodeRequest(r, &req); err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	sub, err := h.Staffing.Finalize(r.Context(), principal(r), id, counsellorIDs(req.CounsellorIDs))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toSubmissionDTO(*sub))
}

func (h *Handler) UpdateMetadata(w http.ResponseWriter, r *http.Request) {
	id, ok := h.submissionID(w, r)
	if !ok {
		return
	}
	var req MetadataRequest
	if err := decodeRequest(r, &req); err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	sub, err := h.Staffing.UpdateMetadata(r.Context(), principal(r), id, req.toUpdate())
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toSubmissionDTO(*sub))
}

func (h *Handler) RescheduleSubmission(w http.ResponseWriter, r *http.Request) {
	id, ok := h.submissionID(w, r)
	if !ok {
		return
	}
	var req RescheduleRequest
	if err := decodeRequest(r, &req); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	start, end, err := parseRange(req.StartDate, req.EndDate)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	sub, err := h.Staffing.Reschedule(r.Context(), principal(r), id, start, end)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toSubmissionDTO(*sub))
}

func (h *Handler) DismissDuplicate(w http.ResponseWriter, r *http.Request) {
	id, ok := h.submissionID(w, r)
	if !ok {
		return
	}
	var req DismissDuplicateRequest
	if err := decodeRequest(r, &req); err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	other := staffing.SubmissionID(req.Other)
	if err := h.Staffing.DismissDuplicate(r.Context(), principal(r), id, other); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	pair := staffing.NewDuplicatePair(id, other)
	writeJSON(w, http.StatusOK, map[string]any{"dismissed": []int64{int64(pair.A), int64(pair.B)}})
}

// =============================================================================
// HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeServiceError maps the generic error taxonomy onto HTTP statuses.
func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var ve *generic.ValidationError
	var nf *generic.NotFoundError
	switch {
	case generic.IsForbidden(err):
		writeError(w, http.StatusForbidden, "Forbidden", err)
	case errors.Is(err, generic.ErrInvalidTransition):
		writeError(w, http.StatusConflict, "Transition not allowed", err)
	case errors.As(err, &ve):
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error:   ve.Message,
			Details: map[string]string{"field": ve.Field},
		})
	case generic.IsClientError(err):
		writeError(w, http.StatusBadRequest, "Invalid request", err)
	case errors.As(err, &nf):
		writeError(w, http.StatusNotFound, nf.Error(), nil)
	case generic.IsNotFound(err):
		writeError(w, http.StatusNotFound, "Not found", err)
	default:
		h.Logger.Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"error", err,
		)
		writeError(w, http.StatusInternalServerError, "Internal server error", nil)
	}
}

// principal is set by the auth middleware for every /api route.
func principal(r *http.Request) staffing.Principal {
	p, _ := PrincipalFrom(r.Context())
	return p
}

func (h *Handler) submissionID(w http.ResponseWriter, r *http.Request) (staffing.SubmissionID, bool) {
	id, err := parseID(chi.URLParam(r, "id"), "id")
	if err != nil {
		h.writeServiceError(w, r, err)
		return 0, false
	}
	return staffing.SubmissionID(id), true
}

func parseID(raw, field string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, &generic.ValidationError{Field: field, Message: field + " must be a positive integer"}
	}
	return id, nil
}

// pagination reads limit/offset. A missing limit means def; limits above
// ceiling are clamped.
func pagination(r *http.Request, def, ceiling int) (int, int, error) {
	q := r.URL.Query()
	limit, offset := def, 0
	if raw := q.Get("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 1 {
			return 0, 0, &generic.ValidationError{Field: "limit", Message: "limit must be a positive integer"}
		}
		limit = v
	}
	if limit > ceiling {
		limit = ceiling
	}
	if raw := q.Get("offset"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 0 {
			return 0, 0, &generic.ValidationError{Field: "offset", Message: "offset must not be negative"}
		}
		offset = v
	}
	return limit, offset, nil
}

func splitParam(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
