/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the domain model from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

VALIDATION:
  Request types carry go-playground/validator tags. Shape checks (required
  fields, enum spelling, date format) happen here; domain rules (date
  ordering, active counsellors, edit windows) stay in the staffing service.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/warp/staffing-engine/generic"
	"github.com/warp/staffing-engine/notification"
	"github.com/warp/staffing-engine/scheduler"
	"github.com/warp/staffing-engine/staffing"
)

// =============================================================================
// REQUEST TYPES
// =============================================================================

// SubmissionRequest creates or edits a submission.
type SubmissionRequest struct {
	StartDate string `json:"start_date" validate:"required,datetime=2006-01-02"`
	EndDate   string `json:"end_date" validate:"required,datetime=2006-01-02"`
	City      string `json:"city" validate:"required,max=120"`
	Country   string `json:"country" validate:"required,max=120"`

	OrganizerID   *int64 `json:"organizer_id,omitempty" validate:"omitempty,gt=0"`
	OrganizerName string `json:"organizer_name,omitempty" validate:"max=200"`
	EventTypeID   *int64 `json:"event_type_id,omitempty" validate:"omitempty,gt=0"`
	EventNameID   *int64 `json:"event_name_id,omitempty" validate:"omitempty,gt=0"`
	EventName     string `json:"event_name,omitempty" validate:"max=200"`
	Remarks       string `json:"remarks,omitempty" validate:"max=2000"`

	SuggestedCounsellors []int64 `json:"suggested_counsellors,omitempty" validate:"dive,gt=0"`
}

func (r SubmissionRequest) toInput() (staffing.SubmissionInput, error) {
	start, end, err := parseRange(r.StartDate, r.EndDate)
	if err != nil {
		return staffing.SubmissionInput{}, err
	}
	return staffing.SubmissionInput{
		StartDate:            start,
		EndDate:              end,
		City:                 r.City,
		Country:              r.Country,
		OrganizerID:          r.OrganizerID,
		OrganizerName:        r.OrganizerName,
		EventTypeID:          r.EventTypeID,
		EventNameID:          r.EventNameID,
		EventName:            r.EventName,
		Remarks:              r.Remarks,
		SuggestedCounsellors: counsellorIDs(r.SuggestedCounsellors),
	}, nil
}

// FinalizeRequest confirms a submission with a set of counsellors.
type FinalizeRequest struct {
	CounsellorIDs []int64 `json:"counsellor_ids" validate:"required,min=1,dive,gt=0"`
}

// MetadataRequest updates admin-owned submission fields.
type MetadataRequest struct {
	SentBy        *int64  `json:"sent_by,omitempty" validate:"omitempty,gt=0"`
	PaymentStatus string  `json:"payment_status" validate:"required,oneof=PAID UNPAID FREE"`
	EventStatus   string  `json:"event_status" validate:"required,oneof=ONGOING COMPLETED CANCELLED POSTPONED"`
	Remarks       *string `json:"remarks,omitempty" validate:"omitempty,max=2000"`
}

func (r MetadataRequest) toUpdate() staffing.MetadataUpdate {
	var sentBy *staffing.CounsellorID
	if r.SentBy != nil {
		id := staffing.CounsellorID(*r.SentBy)
		sentBy = &id
	}
	return staffing.MetadataUpdate{
		SentBy:        sentBy,
		PaymentStatus: staffing.PaymentStatus(r.PaymentStatus),
		EventStatus:   staffing.EventStatus(r.EventStatus),
		Remarks:       r.Remarks,
	}
}

// RescheduleRequest moves a cancelled or postponed event to new dates.
type RescheduleRequest struct {
	StartDate string `json:"start_date" validate:"required,datetime=2006-01-02"`
	EndDate   string `json:"end_date" validate:"required,datetime=2006-01-02"`
}

// DismissDuplicateRequest marks the path submission and Other as distinct.
type DismissDuplicateRequest struct {
	Other int64 `json:"other_submission_id" validate:"required,gt=0"`
}

// CreateCounsellorRequest registers a counsellor.
type CreateCounsellorRequest struct {
	Username string `json:"username" validate:"required,min=2,max=64"`
	Name     string `json:"name" validate:"max=200"`
}

// UpdateSettingsRequest writes notification settings by key.
type UpdateSettingsRequest struct {
	Settings map[string]string `json:"settings" validate:"required,min=1"`
}

// =============================================================================
// RESPONSE TYPES
// =============================================================================

type CounsellorDTO struct {
	ID        int64  `json:"id"`
	Username  string `json:"username"`
	Name      string `json:"name"`
	Active    bool   `json:"active"`
	CreatedAt string `json:"created_at,omitempty"`
}

type SubmissionDTO struct {
	ID            int64  `json:"id"`
	StartDate     string `json:"start_date"`
	EndDate       string `json:"end_date"`
	City          string `json:"city"`
	Country       string `json:"country"`
	OrganizerID   *int64 `json:"organizer_id,omitempty"`
	OrganizerName string `json:"organizer_name,omitempty"`
	EventTypeID   *int64 `json:"event_type_id,omitempty"`
	EventNameID   *int64 `json:"event_name_id,omitempty"`
	EventName     string `json:"event_name,omitempty"`
	Remarks       string `json:"remarks,omitempty"`
	Status        string `json:"status"`
	EventStatus   string `json:"event_status"`
	PaymentStatus string `json:"payment_status"`
	SubmittedBy   int64  `json:"submitted_by"`
	SentBy        *int64 `json:"sent_by,omitempty"`
	ConfirmedAt   string `json:"confirmed_at,omitempty"`
	CreatedAt     string `json:"created_at"`
	UpdatedAt     string `json:"updated_at"`
}

type SubmissionDetailDTO struct {
	SubmissionDTO
	AssignedCounsellors  []int64 `json:"assigned_counsellors"`
	SuggestedCounsellors []int64 `json:"suggested_counsellors"`
}

type ConflictDTO struct {
	SubmissionID  int64  `json:"submission_id"`
	StartDate     string `json:"start_date"`
	EndDate       string `json:"end_date"`
	City          string `json:"city"`
	Country       string `json:"country"`
	OrganizerName string `json:"organizer_name,omitempty"`
	EventName     string `json:"event_name,omitempty"`
}

type AvailabilityDTO struct {
	Counsellor      CounsellorDTO `json:"counsellor"`
	Status          string        `json:"status"`
	AvailableRanges []string      `json:"available_ranges"`
	BusyDays        []string      `json:"busy_days"`
	Conflicts       []ConflictDTO `json:"conflicts"`
}

type NotificationDTO struct {
	ID           string         `json:"id"`
	Type         string         `json:"type"`
	Priority     string         `json:"priority"`
	Title        string         `json:"title"`
	Message      string         `json:"message"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	TargetRole   string         `json:"target_role,omitempty"`
	TargetUser   string         `json:"target_user,omitempty"`
	Status       string         `json:"status"`
	SubmissionID *int64         `json:"submission_id,omitempty"`
	ExpiresAt    string         `json:"expires_at,omitempty"`
	CreatedAt    string         `json:"created_at"`
	ReadAt       string         `json:"read_at,omitempty"`
}

type NotificationPageDTO struct {
	Items  []NotificationDTO `json:"items"`
	Total  int               `json:"total"`
	Unread int               `json:"unread"`
	Limit  int               `json:"limit"`
	Offset int               `json:"offset"`
}

type SettingDTO struct {
	Key     string `json:"key"`
	Value   string `json:"value"`
	Default bool   `json:"default"`
}

type RunDTO struct {
	Task       string `json:"task"`
	RunID      string `json:"run_id,omitempty"`
	StartedAt  string `json:"started_at"`
	DurationMS int64  `json:"duration_ms"`
	Count      int    `json:"count"`
	Skipped    bool   `json:"skipped"`
}

type JobDTO struct {
	Name     string  `json:"name"`
	Interval string  `json:"interval,omitempty"`
	Running  bool    `json:"running"`
	LastRun  *RunDTO `json:"last_run,omitempty"`
}

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details any    `json:"details,omitempty"`
}

// =============================================================================
// CONVERSIONS
// =============================================================================

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func formatOptionalTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return formatTimestamp(*t)
}

func toCounsellorDTO(c staffing.Counsellor) CounsellorDTO {
	dto := CounsellorDTO{ID: int64(c.ID), Username: c.Username, Name: c.Name, Active: c.Active}
	if !c.CreatedAt.IsZero() {
		dto.CreatedAt = formatTimestamp(c.CreatedAt)
	}
	return dto
}

func toSubmissionDTO(s staffing.Submission) SubmissionDTO {
	dto := SubmissionDTO{
		ID:            int64(s.ID),
		StartDate:     s.StartDate.String(),
		EndDate:       s.EndDate.String(),
		City:          s.City,
		Country:       s.Country,
		OrganizerID:   s.OrganizerID,
		OrganizerName: s.OrganizerName,
		EventTypeID:   s.EventTypeID,
		EventNameID:   s.EventNameID,
		EventName:     s.EventName,
		Remarks:       s.Remarks,
		Status:        string(s.Status),
		EventStatus:   string(s.EventStatus),
		PaymentStatus: string(s.PaymentStatus),
		SubmittedBy:   int64(s.SubmittedBy),
		ConfirmedAt:   formatOptionalTime(s.ConfirmedAt),
		CreatedAt:     formatTimestamp(s.CreatedAt),
		UpdatedAt:     formatTimestamp(s.UpdatedAt),
	}
	if s.SentBy != nil {
		v := int64(*s.SentBy)
		dto.SentBy = &v
	}
	return dto
}

func toSubmissionDetailDTO(d staffing.SubmissionDetail) SubmissionDetailDTO {
	dto := SubmissionDetailDTO{
		SubmissionDTO:        toSubmissionDTO(d.Submission),
		AssignedCounsellors:  []int64{},
		SuggestedCounsellors: []int64{},
	}
	for _, a := range d.Assignments {
		dto.AssignedCounsellors = append(dto.AssignedCounsellors, int64(a.CounsellorID))
	}
	for _, s := range d.Suggestions {
		dto.SuggestedCounsellors = append(dto.SuggestedCounsellors, int64(s.CounsellorID))
	}
	return dto
}

func toAvailabilityDTO(a staffing.CounsellorAvailability) AvailabilityDTO {
	dto := AvailabilityDTO{
		Counsellor:      toCounsellorDTO(a.Counsellor),
		Status:          string(a.Status),
		AvailableRanges: a.AvailableRanges(),
		BusyDays:        []string{},
		Conflicts:       []ConflictDTO{},
	}
	if dto.AvailableRanges == nil {
		dto.AvailableRanges = []string{}
	}
	for _, d := range a.BusyDays {
		dto.BusyDays = append(dto.BusyDays, d.String())
	}
	for _, c := range a.Conflicts {
		dto.Conflicts = append(dto.Conflicts, ConflictDTO{
			SubmissionID:  int64(c.SubmissionID),
			StartDate:     c.StartDate.String(),
			EndDate:       c.EndDate.String(),
			City:          c.City,
			Country:       c.Country,
			OrganizerName: c.OrganizerName,
			EventName:     c.EventName,
		})
	}
	return dto
}

func toNotificationDTO(n notification.Notification) NotificationDTO {
	dto := NotificationDTO{
		ID:         n.ID,
		Type:       string(n.Type),
		Priority:   string(n.Priority),
		Title:      n.Title,
		Message:    n.Message,
		Metadata:   n.Metadata,
		TargetRole: n.TargetRole,
		TargetUser: n.TargetUser,
		Status:     string(n.Status),
		ExpiresAt:  formatOptionalTime(n.ExpiresAt),
		CreatedAt:  formatTimestamp(n.CreatedAt),
		ReadAt:     formatOptionalTime(n.ReadAt),
	}
	if n.SubmissionID != nil {
		v := int64(*n.SubmissionID)
		dto.SubmissionID = &v
	}
	return dto
}

func toRunDTO(r scheduler.RunResult) RunDTO {
	return RunDTO{
		Task:       r.Task,
		RunID:      r.RunID,
		StartedAt:  formatTimestamp(r.Started),
		DurationMS: r.Duration.Milliseconds(),
		Count:      r.Count,
		Skipped:    r.Skipped,
	}
}

func toJobDTO(info scheduler.TaskInfo) JobDTO {
	dto := JobDTO{Name: info.Name, Running: info.Running}
	if info.Interval > 0 {
		dto.Interval = info.Interval.String()
	}
	if info.LastRun != nil {
		run := toRunDTO(*info.LastRun)
		dto.LastRun = &run
	}
	return dto
}

func counsellorIDs(ids []int64) []staffing.CounsellorID {
	if len(ids) == 0 {
		return nil
	}
	out := make([]staffing.CounsellorID, len(ids))
	for i, id := range ids {
		out[i] = staffing.CounsellorID(id)
	}
	return out
}

func parseRange(start, end string) (generic.Date, generic.Date, error) {
	s, err := generic.ParseDate(start)
	if err != nil {
		return generic.Date{}, generic.Date{}, &generic.ValidationError{Field: "start_date", Message: err.Error()}
	}
	e, err := generic.ParseDate(end)
	if err != nil {
		return generic.Date{}, generic.Date{}, &generic.ValidationError{Field: "end_date", Message: err.Error()}
	}
	return s, e, nil
}

// =============================================================================
// DECODING
// =============================================================================

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// decodeRequest reads a JSON body into dst and validates it.
func decodeRequest(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return &generic.ValidationError{Field: "body", Message: fmt.Sprintf("invalid JSON: %v", err)}
	}
	if err := validate.Struct(dst); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			return fieldError(fieldErrs[0])
		}
		return fmt.Errorf("%w: %v", generic.ErrValidation, err)
	}
	return nil
}

func fieldError(fe validator.FieldError) *generic.ValidationError {
	field := fe.Field()
	var msg string
	switch fe.Tag() {
	case "required":
		msg = field + " is required"
	case "oneof":
		msg = fmt.Sprintf("%s must be one of: %s", field, fe.Param())
	case "datetime":
		msg = field + " must be a date (YYYY-MM-DD)"
	case "min":
		msg = fmt.Sprintf("%s must have at least %s item(s) or characters", field, fe.Param())
	case "max":
		msg = fmt.Sprintf("%s must be at most %s characters", field, fe.Param())
	case "gt":
		msg = fmt.Sprintf("%s must be greater than %s", field, fe.Param())
	default:
		msg = fmt.Sprintf("%s failed %s validation", field, fe.Tag())
	}
	return &generic.ValidationError{Field: field, Message: msg}
}
