// Package memory provides in-memory implementations of the staffing and
// notification repositories for tests and local development.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/warp/staffing-engine/generic"
	"github.com/warp/staffing-engine/notification"
	"github.com/warp/staffing-engine/staffing"
)

// =============================================================================
// MEMORY STORE
// =============================================================================

// Store holds every table in maps guarded by one mutex. WithTx is simulated
// with a snapshot and a rollback on error.
type Store struct {
	mu sync.RWMutex
	d  *data
}

var (
	_ staffing.TxStore        = (*Store)(nil)
	_ notification.Repository = (*Store)(nil)
	_ notification.Feed       = (*data)(nil)
)

func New() *Store {
	return &Store{d: newData()}
}

// WithTx executes fn with exclusive access. Writes made by fn are discarded
// if it returns an error.
func (m *Store) WithTx(_ context.Context, fn func(staffing.Store) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := m.d.clone()
	if err := fn(m.d); err != nil {
		m.d = snapshot
		return err
	}
	return nil
}

// =============================================================================
// DATA - unlocked tables, also the transactional view
// =============================================================================

type dismissal struct {
	by string
	at time.Time
}

type data struct {
	counsellors    map[staffing.CounsellorID]staffing.Counsellor
	nextCounsellor staffing.CounsellorID

	submissions    map[staffing.SubmissionID]staffing.Submission
	nextSubmission staffing.SubmissionID

	assignments map[staffing.SubmissionID][]staffing.Assignment
	suggestions map[staffing.SubmissionID][]staffing.Suggestion

	activity     []staffing.ActivityEntry
	nextActivity int64

	dismissals map[staffing.DuplicatePair]dismissal

	notifications map[string]notification.Notification
	settings      map[string]string
}

var _ staffing.Store = (*data)(nil)

func newData() *data {
	return &data{
		counsellors:   make(map[staffing.CounsellorID]staffing.Counsellor),
		submissions:   make(map[staffing.SubmissionID]staffing.Submission),
		assignments:   make(map[staffing.SubmissionID][]staffing.Assignment),
		suggestions:   make(map[staffing.SubmissionID][]staffing.Suggestion),
		dismissals:    make(map[staffing.DuplicatePair]dismissal),
		notifications: make(map[string]notification.Notification),
		settings:      make(map[string]string),
	}
}

func (d *data) clone() *data {
	c := newData()
	c.nextCounsellor = d.nextCounsellor
	c.nextSubmission = d.nextSubmission
	c.nextActivity = d.nextActivity
	for k, v := range d.counsellors {
		c.counsellors[k] = v
	}
	for k, v := range d.submissions {
		c.submissions[k] = v
	}
	for k, v := range d.assignments {
		c.assignments[k] = append([]staffing.Assignment(nil), v...)
	}
	for k, v := range d.suggestions {
		c.suggestions[k] = append([]staffing.Suggestion(nil), v...)
	}
	c.activity = append([]staffing.ActivityEntry(nil), d.activity...)
	for k, v := range d.dismissals {
		c.dismissals[k] = v
	}
	for k, v := range d.notifications {
		c.notifications[k] = v
	}
	for k, v := range d.settings {
		c.settings[k] = v
	}
	return c
}

// ---- counsellors ----

func (d *data) CreateCounsellor(_ context.Context, c *staffing.Counsellor) error {
	for _, existing := range d.counsellors {
		if strings.EqualFold(existing.Username, c.Username) {
			return &generic.ValidationError{Field: "username", Message: fmt.Sprintf("counsellor username %q already exists", c.Username)}
		}
	}
	d.nextCounsellor++
	c.ID = d.nextCounsellor
	d.counsellors[c.ID] = *c
	return nil
}

func (d *data) GetCounsellor(_ context.Context, id staffing.CounsellorID) (*staffing.Counsellor, error) {
	c, ok := d.counsellors[id]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (d *data) GetCounsellorByUsername(_ context.Context, username string) (*staffing.Counsellor, error) {
	for _, c := range d.counsellors {
		if strings.EqualFold(c.Username, username) {
			return &c, nil
		}
	}
	return nil, nil
}

func (d *data) ListCounsellors(_ context.Context, activeOnly bool) ([]staffing.Counsellor, error) {
	var out []staffing.Counsellor
	for _, c := range d.counsellors {
		if !activeOnly || c.Active {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (d *data) FindActiveCounsellors(_ context.Context, ids []staffing.CounsellorID) ([]staffing.Counsellor, error) {
	seen := make(map[staffing.CounsellorID]bool)
	var out []staffing.Counsellor
	for _, id := range ids {
		c, ok := d.counsellors[id]
		if ok && c.Active && !seen[id] {
			seen[id] = true
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (d *data) SetCounsellorActive(_ context.Context, id staffing.CounsellorID, active bool) error {
	c, ok := d.counsellors[id]
	if !ok {
		return &generic.NotFoundError{Kind: "counsellor", ID: id}
	}
	c.Active = active
	d.counsellors[id] = c
	return nil
}

// ---- submissions ----

func (d *data) CreateSubmission(_ context.Context, s *staffing.Submission) error {
	d.nextSubmission++
	s.ID = d.nextSubmission
	d.submissions[s.ID] = *s
	return nil
}

func (d *data) GetSubmission(_ context.Context, id staffing.SubmissionID) (*staffing.Submission, error) {
	s, ok := d.submissions[id]
	if !ok {
		return nil, nil
	}
	return &s, nil
}

func (d *data) UpdateSubmission(_ context.Context, s *staffing.Submission) error {
	if _, ok := d.submissions[s.ID]; !ok {
		return &generic.NotFoundError{Kind: "submission", ID: s.ID}
	}
	d.submissions[s.ID] = *s
	return nil
}

func (d *data) DeleteSubmission(_ context.Context, id staffing.SubmissionID) error {
	if _, ok := d.submissions[id]; !ok {
		return &generic.NotFoundError{Kind: "submission", ID: id}
	}
	delete(d.submissions, id)
	delete(d.assignments, id)
	delete(d.suggestions, id)
	for pair := range d.dismissals {
		if pair.A == id || pair.B == id {
			delete(d.dismissals, pair)
		}
	}
	for nid, n := range d.notifications {
		if n.SubmissionID != nil && *n.SubmissionID == id {
			n.SubmissionID = nil
			d.notifications[nid] = n
		}
	}
	return nil
}

func (d *data) ListSubmissions(_ context.Context, f staffing.SubmissionFilter) ([]staffing.Submission, error) {
	out := d.filterSubmissions(f)
	if f.Offset > 0 {
		if f.Offset >= len(out) {
			return nil, nil
		}
		out = out[f.Offset:]
	}
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (d *data) CountSubmissions(_ context.Context, f staffing.SubmissionFilter) (int, error) {
	return len(d.filterSubmissions(f)), nil
}

func (d *data) filterSubmissions(f staffing.SubmissionFilter) []staffing.Submission {
	var out []staffing.Submission
	for _, s := range d.submissions {
		if d.matches(s, f) {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out
}

func (d *data) matches(s staffing.Submission, f staffing.SubmissionFilter) bool {
	if len(f.Statuses) > 0 && !contains(f.Statuses, s.Status) {
		return false
	}
	if len(f.EventStatuses) > 0 && !contains(f.EventStatuses, s.EventStatus) {
		return false
	}
	if f.SubmittedBy != nil && s.SubmittedBy != *f.SubmittedBy {
		return false
	}
	if f.AssignedTo != nil && !d.isAssigned(s.ID, *f.AssignedTo) {
		return false
	}
	if f.StartFrom != nil && s.StartDate.Before(*f.StartFrom) {
		return false
	}
	if f.StartTo != nil && s.StartDate.After(*f.StartTo) {
		return false
	}
	if contains(f.ExcludeIDs, s.ID) {
		return false
	}
	if f.CreatedAfter != nil && s.CreatedAt.Before(*f.CreatedAfter) {
		return false
	}
	if f.CreatedBefore != nil && !s.CreatedAt.Before(*f.CreatedBefore) {
		return false
	}

	countryOK := f.Country == "" || strings.EqualFold(strings.TrimSpace(s.Country), strings.TrimSpace(f.Country))
	overlapOK := f.Overlapping == nil || s.Period().Overlaps(*f.Overlapping)
	if f.CountryOrOverlap && f.Country != "" && f.Overlapping != nil {
		return countryOK || overlapOK
	}
	return countryOK && overlapOK
}

func (d *data) isAssigned(id staffing.SubmissionID, counsellor staffing.CounsellorID) bool {
	for _, a := range d.assignments[id] {
		if a.CounsellorID == counsellor {
			return true
		}
	}
	return false
}

// ---- assignments & suggestions ----

func (d *data) ListAssignments(_ context.Context, id staffing.SubmissionID) ([]staffing.Assignment, error) {
	return append([]staffing.Assignment(nil), d.assignments[id]...), nil
}

func (d *data) ReplaceAssignments(_ context.Context, id staffing.SubmissionID, ids []staffing.CounsellorID, at time.Time) error {
	if _, ok := d.submissions[id]; !ok {
		return &generic.NotFoundError{Kind: "submission", ID: id}
	}
	rows := make([]staffing.Assignment, 0, len(ids))
	for _, cid := range ids {
		if _, ok := d.counsellors[cid]; !ok {
			return &generic.NotFoundError{Kind: "counsellor", ID: cid}
		}
		rows = append(rows, staffing.Assignment{SubmissionID: id, CounsellorID: cid, AssignedAt: at})
	}
	d.assignments[id] = rows
	return nil
}

func (d *data) ClearAssignments(_ context.Context, id staffing.SubmissionID) error {
	delete(d.assignments, id)
	return nil
}

func (d *data) ConfirmedConflicts(_ context.Context, counsellor staffing.CounsellorID, period generic.Period, exclude *staffing.SubmissionID) ([]staffing.Submission, error) {
	var out []staffing.Submission
	for id, s := range d.submissions {
		if s.Status != staffing.StatusConfirmed || (exclude != nil && *exclude == id) {
			continue
		}
		if !d.isAssigned(id, counsellor) || !s.Period().Overlaps(period) {
			continue
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartDate.Equal(out[j].StartDate) {
			return out[i].StartDate.Before(out[j].StartDate)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (d *data) ReplaceSuggestions(_ context.Context, id staffing.SubmissionID, ids []staffing.CounsellorID, at time.Time) error {
	if len(ids) == 0 {
		delete(d.suggestions, id)
		return nil
	}
	rows := make([]staffing.Suggestion, 0, len(ids))
	for _, cid := range ids {
		rows = append(rows, staffing.Suggestion{SubmissionID: id, CounsellorID: cid, CreatedAt: at})
	}
	d.suggestions[id] = rows
	return nil
}

func (d *data) ListSuggestions(_ context.Context, id staffing.SubmissionID) ([]staffing.Suggestion, error) {
	return append([]staffing.Suggestion(nil), d.suggestions[id]...), nil
}

// ---- activity ----

func (d *data) AppendActivity(_ context.Context, e staffing.ActivityEntry) error {
	d.nextActivity++
	e.ID = d.nextActivity
	d.activity = append(d.activity, e)
	return nil
}

func (d *data) ListActivity(_ context.Context, f staffing.ActivityFilter) ([]staffing.ActivityEntry, error) {
	var out []staffing.ActivityEntry
	for _, e := range d.activity {
		if f.Action != "" && e.Action != f.Action {
			continue
		}
		if f.Actor != "" && e.Actor != f.Actor {
			continue
		}
		if f.Since != nil && e.CreatedAt.Before(*f.Since) {
			continue
		}
		if f.Until != nil && !e.CreatedAt.Before(*f.Until) {
			continue
		}
		out = append(out, e)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (d *data) PruneActivity(_ context.Context, before time.Time) (int64, error) {
	kept := d.activity[:0:0]
	var removed int64
	for _, e := range d.activity {
		if e.CreatedAt.Before(before) {
			removed++
			continue
		}
		kept = append(kept, e)
	}
	d.activity = kept
	return removed, nil
}

// ---- dismissals ----

func (d *data) DismissDuplicate(_ context.Context, pair staffing.DuplicatePair, by string, at time.Time) error {
	pair = staffing.NewDuplicatePair(pair.A, pair.B)
	if _, ok := d.dismissals[pair]; !ok {
		d.dismissals[pair] = dismissal{by: by, at: at}
	}
	return nil
}

func (d *data) IsDismissed(_ context.Context, pair staffing.DuplicatePair) (bool, error) {
	_, ok := d.dismissals[staffing.NewDuplicatePair(pair.A, pair.B)]
	return ok, nil
}

func (d *data) DismissedPartners(_ context.Context, id staffing.SubmissionID) (map[staffing.SubmissionID]bool, error) {
	out := make(map[staffing.SubmissionID]bool)
	for pair := range d.dismissals {
		switch id {
		case pair.A:
			out[pair.B] = true
		case pair.B:
			out[pair.A] = true
		}
	}
	return out, nil
}

func contains[T comparable](list []T, v T) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}
