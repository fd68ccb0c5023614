/*
service.go - Staffing decision lifecycle

PURPOSE:
  Orchestrates every mutation of a submission and its assignment set and
  enforces the date-dependent edit rules.

TRANSITIONS:
  ┌────────────────────────────────────────────────────────────────────┐
  │                                                                    │
  │  create ──▶ pending ──finalize(ids)──▶ confirmed ◀──re-finalize──┐ │
  │               ▲                          │   └───────────────────┘ │
  │               │   edit, today < start    │                         │
  │               └──────────────────────────┘                         │
  │                                                                    │
  │  any ──event_status CANCELLED|POSTPONED──▶ not_applicable          │
  │                                   (assignments cleared, same tx)   │
  │                                                                    │
  │  not_applicable ──reschedule(start, end)──▶ pending (ONGOING)      │
  │                                                                    │
  └────────────────────────────────────────────────────────────────────┘

MANUAL OVERRIDE:
  Finalize never consults the availability calculator. Administrators may
  staff a busy or partially available counsellor.

VALIDATION (before any write):
  - start_date <= end_date
  - every supplied counsellor id resolves to an active counsellor;
    a count mismatch is a hard failure, never a partial apply
  - finalize on COMPLETED / CANCELLED fails
  State checks read the submission through the transaction that writes it,
  never from an earlier snapshot.

AUTHORIZATION:
  admin:      finalize, metadata, reschedule, dismiss duplicates, counsellors
  counsellor: create, edit/delete own submissions, availability

SEE ALSO:
  - availability.go: advisory calculator
  - hooks.go:        post-commit duplicate / overload checks
*/
package staffing

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/warp/staffing-engine/generic"
)

// =============================================================================
// INPUTS
// =============================================================================

// SubmissionInput is the counsellor-editable content of a submission.
type SubmissionInput struct {
	StartDate generic.Date
	EndDate   generic.Date

	City    string
	Country string

	OrganizerID   *int64
	OrganizerName string
	EventTypeID   *int64
	EventNameID   *int64
	EventName     string

	Remarks string

	SuggestedCounsellors []CounsellorID
}

func (in SubmissionInput) validate() error {
	if _, err := generic.NewPeriod(in.StartDate, in.EndDate); err != nil {
		return err
	}
	if strings.TrimSpace(in.City) == "" {
		return &generic.ValidationError{Field: "city", Message: "city is required"}
	}
	if strings.TrimSpace(in.Country) == "" {
		return &generic.ValidationError{Field: "country", Message: "country is required"}
	}
	if in.OrganizerID == nil && strings.TrimSpace(in.OrganizerName) == "" {
		return &generic.ValidationError{Field: "organizer", Message: "organizer_id or organizer_name is required"}
	}
	return nil
}

func (in SubmissionInput) applyTo(s *Submission) {
	s.StartDate = in.StartDate
	s.EndDate = in.EndDate
	s.City = strings.TrimSpace(in.City)
	s.Country = strings.TrimSpace(in.Country)
	s.OrganizerID = in.OrganizerID
	s.OrganizerName = strings.TrimSpace(in.OrganizerName)
	s.EventTypeID = in.EventTypeID
	s.EventNameID = in.EventNameID
	s.EventName = strings.TrimSpace(in.EventName)
	s.Remarks = in.Remarks
}

// MetadataUpdate is the admin-only metadata edit.
type MetadataUpdate struct {
	SentBy        *CounsellorID
	PaymentStatus PaymentStatus
	EventStatus   EventStatus
	Remarks       *string
}

// SubmissionDetail is a submission with its staffing facts.
type SubmissionDetail struct {
	Submission  Submission
	Assignments []Assignment
	Suggestions []Suggestion
}

// =============================================================================
// SERVICE
// =============================================================================

type Service struct {
	Store  TxStore
	Clock  generic.Clock
	Logger *slog.Logger

	hooks      Hooks
	calculator *AvailabilityCalculator
}

func NewService(store TxStore, clock generic.Clock, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		Store:      store,
		Clock:      clock,
		Logger:     logger,
		hooks:      NopHooks(),
		calculator: NewAvailabilityCalculator(store),
	}
}

// SetHooks installs post-commit callbacks. Nil fields stay no-ops.
func (s *Service) SetHooks(h Hooks) {
	nop := NopHooks()
	if h.OnSubmissionCreated == nil {
		h.OnSubmissionCreated = nop.OnSubmissionCreated
	}
	if h.OnFinalized == nil {
		h.OnFinalized = nop.OnFinalized
	}
	s.hooks = h
}

// =============================================================================
// AVAILABILITY
// =============================================================================

// Availability classifies every active counsellor for [start, end].
func (s *Service) Availability(ctx context.Context, start, end generic.Date, exclude *SubmissionID) ([]CounsellorAvailability, error) {
	period, err := generic.NewPeriod(start, end)
	if err != nil {
		return nil, err
	}
	return s.calculator.Compute(ctx, period, exclude)
}

// =============================================================================
// COUNSELLORS
// =============================================================================

func (s *Service) CreateCounsellor(ctx context.Context, p Principal, username, name string) (*Counsellor, error) {
	if !p.IsAdmin() {
		return nil, fmt.Errorf("%w: only admins can create counsellors", generic.ErrForbidden)
	}
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, &generic.ValidationError{Field: "username", Message: "username is required"}
	}

	existing, err := s.Store.GetCounsellorByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, &generic.ValidationError{Field: "username", Message: fmt.Sprintf("username %q already exists", username)}
	}

	c := &Counsellor{Username: username, Name: strings.TrimSpace(name), Active: true, CreatedAt: s.Clock.Now()}
	err = s.Store.WithTx(ctx, func(tx Store) error {
		if err := tx.CreateCounsellor(ctx, c); err != nil {
			return err
		}
		return tx.AppendActivity(ctx, s.activity(p, ActionCounsellorCreated, map[string]any{"counsellor_id": c.ID}))
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create counsellor: %w", err)
	}
	return c, nil
}

// DeactivateCounsellor removes the counsellor from future availability
// listings. Assignments and submissions are kept.
func (s *Service) DeactivateCounsellor(ctx context.Context, p Principal, id CounsellorID) error {
	if !p.IsAdmin() {
		return fmt.Errorf("%w: only admins can deactivate counsellors", generic.ErrForbidden)
	}
	c, err := s.Store.GetCounsellor(ctx, id)
	if err != nil {
		return err
	}
	if c == nil {
		return &generic.NotFoundError{Kind: "counsellor", ID: id}
	}

	return s.Store.WithTx(ctx, func(tx Store) error {
		if err := tx.SetCounsellorActive(ctx, id, false); err != nil {
			return err
		}
		return tx.AppendActivity(ctx, s.activity(p, ActionCounsellorDeactivated, map[string]any{"counsellor_id": id}))
	})
}

func (s *Service) ListCounsellors(ctx context.Context, activeOnly bool) ([]Counsellor, error) {
	return s.Store.ListCounsellors(ctx, activeOnly)
}

// =============================================================================
// SUBMISSIONS
// =============================================================================

// CreateSubmission records a pending submission for the calling counsellor.
// Duplicate detection runs afterwards and cannot fail the create.
func (s *Service) CreateSubmission(ctx context.Context, p Principal, in SubmissionInput) (*Submission, error) {
	author, err := s.counsellorFor(ctx, p)
	if err != nil {
		return nil, err
	}
	if err := in.validate(); err != nil {
		return nil, err
	}
	suggested, err := resolveActive(ctx, s.Store, "suggested_counsellors", in.SuggestedCounsellors, false)
	if err != nil {
		return nil, err
	}

	now := s.Clock.Now()
	sub := &Submission{
		Status:        StatusPending,
		EventStatus:   EventOngoing,
		PaymentStatus: PaymentUnpaid,
		SubmittedBy:   author.ID,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	in.applyTo(sub)

	err = s.Store.WithTx(ctx, func(tx Store) error {
		if err := tx.CreateSubmission(ctx, sub); err != nil {
			return err
		}
		if err := tx.ReplaceSuggestions(ctx, sub.ID, suggested, now); err != nil {
			return err
		}
		return tx.AppendActivity(ctx, s.activity(p, ActionSubmissionCreated, map[string]any{
			"submission_id": sub.ID,
			"start_date":    sub.StartDate.String(),
			"end_date":      sub.EndDate.String(),
		}))
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create submission: %w", err)
	}

	created := *sub
	s.runHook(ctx, "submission_created", func(ctx context.Context) error {
		return s.hooks.OnSubmissionCreated(ctx, created)
	})
	return sub, nil
}

func (s *Service) GetSubmission(ctx context.Context, id SubmissionID) (*SubmissionDetail, error) {
	sub, err := s.loadSubmission(ctx, s.Store, id)
	if err != nil {
		return nil, err
	}
	assignments, err := s.Store.ListAssignments(ctx, id)
	if err != nil {
		return nil, err
	}
	suggestions, err := s.Store.ListSuggestions(ctx, id)
	if err != nil {
		return nil, err
	}
	return &SubmissionDetail{Submission: *sub, Assignments: assignments, Suggestions: suggestions}, nil
}

func (s *Service) ListSubmissions(ctx context.Context, filter SubmissionFilter) ([]Submission, error) {
	return s.Store.ListSubmissions(ctx, filter)
}

// EditSubmission applies a content edit by the submitting counsellor.
// A confirmed submission may only be edited strictly before its start date,
// and the edit resets it to pending. Assignments are left untouched.
func (s *Service) EditSubmission(ctx context.Context, p Principal, id SubmissionID, in SubmissionInput) (*Submission, error) {
	author, err := s.counsellorFor(ctx, p)
	if err != nil {
		return nil, err
	}
	if err := in.validate(); err != nil {
		return nil, err
	}

	var sub *Submission
	err = s.Store.WithTx(ctx, func(tx Store) error {
		var err error
		sub, err = s.loadSubmission(ctx, tx, id)
		if err != nil {
			return err
		}
		if sub.SubmittedBy != author.ID {
			return fmt.Errorf("%w: only the submitting counsellor can edit submission %d", generic.ErrForbidden, id)
		}
		if sub.EventStatus.Terminal() || sub.Status == StatusNotApplicable {
			return &generic.TransitionError{From: string(sub.Status) + "/" + string(sub.EventStatus), Action: "edit", Reason: "event is closed, reschedule it first"}
		}
		if sub.Status == StatusConfirmed && !s.Clock.Today().Before(sub.StartDate) {
			return &generic.TransitionError{From: string(sub.Status), Action: "edit", Reason: "event has already started"}
		}
		suggested, err := resolveActive(ctx, tx, "suggested_counsellors", in.SuggestedCounsellors, false)
		if err != nil {
			return err
		}

		previous := sub.Status
		now := s.Clock.Now()
		in.applyTo(sub)
		if sub.Status == StatusConfirmed {
			sub.Status = StatusPending
			sub.ConfirmedAt = nil
		}
		sub.UpdatedAt = now

		if err := tx.UpdateSubmission(ctx, sub); err != nil {
			return err
		}
		if err := tx.ReplaceSuggestions(ctx, sub.ID, suggested, now); err != nil {
			return err
		}
		return tx.AppendActivity(ctx, s.activity(p, ActionSubmissionUpdated, map[string]any{
			"submission_id":   sub.ID,
			"previous_status": string(previous),
			"status":          string(sub.Status),
		}))
	})
	if err != nil {
		return nil, wrapTx("update submission", err)
	}
	return sub, nil
}

// DeleteSubmission removes a submission and cascades to its assignments and
// suggestions. Owner or admin only.
func (s *Service) DeleteSubmission(ctx context.Context, p Principal, id SubmissionID) error {
	var author *Counsellor
	if !p.IsAdmin() {
		var err error
		if author, err = s.counsellorFor(ctx, p); err != nil {
			return err
		}
	}

	err := s.Store.WithTx(ctx, func(tx Store) error {
		sub, err := s.loadSubmission(ctx, tx, id)
		if err != nil {
			return err
		}
		if author != nil && sub.SubmittedBy != author.ID {
			return fmt.Errorf("%w: only the submitting counsellor can delete submission %d", generic.ErrForbidden, id)
		}
		if err := tx.DeleteSubmission(ctx, id); err != nil {
			return err
		}
		return tx.AppendActivity(ctx, s.activity(p, ActionSubmissionDeleted, map[string]any{"submission_id": id}))
	})
	if err != nil {
		return wrapTx("delete submission", err)
	}
	return nil
}

// =============================================================================
// STAFFING DECISIONS (admin)
// =============================================================================

// Finalize confirms a submission with exactly counsellorIDs, replacing any
// previous assignment set in one transaction. The event status is checked
// inside that transaction, so a concurrent cancel either wins or fails it.
func (s *Service) Finalize(ctx context.Context, p Principal, id SubmissionID, counsellorIDs []CounsellorID) (*Submission, error) {
	if !p.IsAdmin() {
		return nil, fmt.Errorf("%w: only admins can finalize staffing", generic.ErrForbidden)
	}
	if len(counsellorIDs) == 0 {
		return nil, &generic.ValidationError{Field: "counsellor_ids", Message: "at least one counsellor is required"}
	}

	var (
		sub *Submission
		ids []CounsellorID
	)
	err := s.Store.WithTx(ctx, func(tx Store) error {
		var err error
		sub, err = s.loadSubmission(ctx, tx, id)
		if err != nil {
			return err
		}
		if sub.EventStatus.Terminal() {
			return &generic.TransitionError{From: string(sub.EventStatus), Action: "finalize", Reason: "event is completed or cancelled"}
		}
		if sub.Status == StatusNotApplicable {
			return &generic.TransitionError{From: string(sub.Status), Action: "finalize", Reason: "event is postponed, reschedule it first"}
		}
		if ids, err = resolveActive(ctx, tx, "counsellor_ids", counsellorIDs, true); err != nil {
			return err
		}

		now := s.Clock.Now()
		previous := sub.Status
		sub.Status = StatusConfirmed
		sub.ConfirmedAt = &now
		sub.UpdatedAt = now

		if err := tx.ReplaceAssignments(ctx, id, ids, now); err != nil {
			return err
		}
		if err := tx.UpdateSubmission(ctx, sub); err != nil {
			return err
		}
		return tx.AppendActivity(ctx, s.activity(p, ActionSubmissionFinalized, map[string]any{
			"submission_id":   id,
			"counsellor_ids":  ids,
			"previous_status": string(previous),
		}))
	})
	if err != nil {
		return nil, wrapTx("finalize submission", err)
	}

	finalized := *sub
	s.runHook(ctx, "finalized", func(ctx context.Context) error {
		return s.hooks.OnFinalized(ctx, finalized, ids)
	})
	return sub, nil
}

// UpdateMetadata sets admin-owned fields. CANCELLED or POSTPONED clears the
// assignment set and forces not_applicable in the same transaction.
func (s *Service) UpdateMetadata(ctx context.Context, p Principal, id SubmissionID, m MetadataUpdate) (*Submission, error) {
	if !p.IsAdmin() {
		return nil, fmt.Errorf("%w: only admins can edit metadata", generic.ErrForbidden)
	}
	if !m.PaymentStatus.Valid() {
		return nil, &generic.ValidationError{Field: "payment_status", Message: fmt.Sprintf("invalid payment_status %q", m.PaymentStatus)}
	}
	if !m.EventStatus.Valid() {
		return nil, &generic.ValidationError{Field: "event_status", Message: fmt.Sprintf("invalid event_status %q", m.EventStatus)}
	}

	var sub *Submission
	err := s.Store.WithTx(ctx, func(tx Store) error {
		var err error
		sub, err = s.loadSubmission(ctx, tx, id)
		if err != nil {
			return err
		}
		if sub.Status == StatusNotApplicable && !m.EventStatus.ClearsStaffing() {
			return &generic.TransitionError{From: string(sub.Status), Action: "set event_status " + string(m.EventStatus), Reason: "reschedule the event instead"}
		}
		if m.SentBy != nil {
			if _, err := resolveActive(ctx, tx, "sent_by", []CounsellorID{*m.SentBy}, true); err != nil {
				return err
			}
		}

		previous := sub.EventStatus
		sub.SentBy = m.SentBy
		sub.PaymentStatus = m.PaymentStatus
		sub.EventStatus = m.EventStatus
		if m.Remarks != nil {
			sub.Remarks = *m.Remarks
		}
		if m.EventStatus.ClearsStaffing() {
			sub.Status = StatusNotApplicable
			sub.ConfirmedAt = nil
			if err := tx.ClearAssignments(ctx, id); err != nil {
				return err
			}
		}
		sub.UpdatedAt = s.Clock.Now()

		if err := tx.UpdateSubmission(ctx, sub); err != nil {
			return err
		}
		return tx.AppendActivity(ctx, s.activity(p, ActionMetadataUpdated, map[string]any{
			"submission_id":         id,
			"previous_event_status": string(previous),
			"event_status":          string(sub.EventStatus),
			"payment_status":        string(sub.PaymentStatus),
		}))
	})
	if err != nil {
		return nil, wrapTx("update metadata", err)
	}
	return sub, nil
}

// Reschedule moves a not_applicable submission to new dates and reopens it.
func (s *Service) Reschedule(ctx context.Context, p Principal, id SubmissionID, start, end generic.Date) (*Submission, error) {
	if !p.IsAdmin() {
		return nil, fmt.Errorf("%w: only admins can reschedule", generic.ErrForbidden)
	}
	if _, err := generic.NewPeriod(start, end); err != nil {
		return nil, err
	}

	var sub *Submission
	err := s.Store.WithTx(ctx, func(tx Store) error {
		var err error
		sub, err = s.loadSubmission(ctx, tx, id)
		if err != nil {
			return err
		}
		if sub.Status != StatusNotApplicable {
			return &generic.TransitionError{From: string(sub.Status), Action: "reschedule", Reason: "only cancelled or postponed events can be rescheduled"}
		}

		previous := sub.Period()
		sub.StartDate = start
		sub.EndDate = end
		sub.EventStatus = EventOngoing
		sub.Status = StatusPending
		sub.ConfirmedAt = nil
		sub.UpdatedAt = s.Clock.Now()

		if err := tx.UpdateSubmission(ctx, sub); err != nil {
			return err
		}
		return tx.AppendActivity(ctx, s.activity(p, ActionRescheduled, map[string]any{
			"submission_id":  id,
			"previous_range": previous.String(),
			"range":          sub.Period().String(),
		}))
	})
	if err != nil {
		return nil, wrapTx("reschedule submission", err)
	}
	return sub, nil
}

// DismissDuplicate marks a pair as "not a duplicate" permanently.
func (s *Service) DismissDuplicate(ctx context.Context, p Principal, a, b SubmissionID) error {
	if !p.IsAdmin() {
		return fmt.Errorf("%w: only admins can dismiss duplicates", generic.ErrForbidden)
	}
	if a == b {
		return &generic.ValidationError{Field: "submission_ids", Message: "a submission cannot duplicate itself"}
	}

	pair := NewDuplicatePair(a, b)
	err := s.Store.WithTx(ctx, func(tx Store) error {
		for _, id := range []SubmissionID{a, b} {
			if _, err := s.loadSubmission(ctx, tx, id); err != nil {
				return err
			}
		}
		if err := tx.DismissDuplicate(ctx, pair, p.Username, s.Clock.Now()); err != nil {
			return err
		}
		return tx.AppendActivity(ctx, s.activity(p, ActionDuplicateDismissed, map[string]any{
			"submission_a": pair.A,
			"submission_b": pair.B,
		}))
	})
	if err != nil {
		return wrapTx("dismiss duplicate", err)
	}
	return nil
}

// =============================================================================
// HELPERS
// =============================================================================

func (s *Service) loadSubmission(ctx context.Context, store SubmissionStore, id SubmissionID) (*Submission, error) {
	sub, err := store.GetSubmission(ctx, id)
	if err != nil {
		return nil, err
	}
	if sub == nil {
		return nil, &generic.NotFoundError{Kind: "submission", ID: id}
	}
	return sub, nil
}

// counsellorFor resolves the caller's own active counsellor profile.
func (s *Service) counsellorFor(ctx context.Context, p Principal) (*Counsellor, error) {
	c, err := s.Store.GetCounsellorByUsername(ctx, p.Username)
	if err != nil {
		return nil, err
	}
	if c == nil || !c.Active {
		return nil, fmt.Errorf("%w: %q has no active counsellor profile", generic.ErrForbidden, p.Username)
	}
	return c, nil
}

// resolveActive de-duplicates ids and requires every one to be an active
// counsellor. Returns the ids sorted ascending.
func resolveActive(ctx context.Context, store CounsellorStore, field string, ids []CounsellorID, required bool) ([]CounsellorID, error) {
	unique := uniqueIDs(ids)
	if len(unique) == 0 {
		if required {
			return nil, &generic.ValidationError{Field: field, Message: "at least one counsellor is required"}
		}
		return nil, nil
	}

	found, err := store.FindActiveCounsellors(ctx, unique)
	if err != nil {
		return nil, err
	}
	if len(found) != len(unique) {
		return nil, &generic.ValidationError{
			Field:   field,
			Message: fmt.Sprintf("%d of %d counsellors are unknown or inactive", len(unique)-len(found), len(unique)),
		}
	}
	return unique, nil
}

func uniqueIDs(ids []CounsellorID) []CounsellorID {
	seen := make(map[CounsellorID]bool, len(ids))
	out := make([]CounsellorID, 0, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// wrapTx keeps domain errors raised inside a transaction unwrapped so their
// message reaches the caller as is.
func wrapTx(action string, err error) error {
	if generic.IsClientError(err) || generic.IsNotFound(err) || generic.IsForbidden(err) {
		return err
	}
	return fmt.Errorf("failed to %s: %w", action, err)
}

func (s *Service) activity(p Principal, action Action, details map[string]any) ActivityEntry {
	return ActivityEntry{Action: action, Actor: p.Username, Details: details, CreatedAt: s.Clock.Now()}
}

// runHook invokes a post-commit hook. Errors and panics are logged, never returned.
func (s *Service) runHook(ctx context.Context, name string, fn func(context.Context) error) {
	defer func() {
		if r := recover(); r != nil {
			s.Logger.Error("hook panicked", "hook", name, "panic", r)
		}
	}()
	start := time.Now()
	if err := fn(context.WithoutCancel(ctx)); err != nil {
		s.Logger.Error("hook failed", "hook", name, "error", err)
		return
	}
	s.Logger.Debug("hook completed", "hook", name, "duration", time.Since(start))
}
