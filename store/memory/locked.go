package memory

import (
	"context"
	"time"

	"github.com/warp/staffing-engine/generic"
	"github.com/warp/staffing-engine/staffing"
)

// =============================================================================
// LOCKED ACCESS - Store methods outside a transaction
// =============================================================================

func (m *Store) read() (*data, func()) {
	m.mu.RLock()
	return m.d, m.mu.RUnlock
}

func (m *Store) write() (*data, func()) {
	m.mu.Lock()
	return m.d, m.mu.Unlock
}

func (m *Store) CreateCounsellor(ctx context.Context, c *staffing.Counsellor) error {
	d, unlock := m.write()
	defer unlock()
	return d.CreateCounsellor(ctx, c)
}

func (m *Store) GetCounsellor(ctx context.Context, id staffing.CounsellorID) (*staffing.Counsellor, error) {
	d, unlock := m.read()
	defer unlock()
	return d.GetCounsellor(ctx, id)
}

func (m *Store) GetCounsellorByUsername(ctx context.Context, username string) (*staffing.Counsellor, error) {
	d, unlock := m.read()
	defer unlock()
	return d.GetCounsellorByUsername(ctx, username)
}

func (m *Store) ListCounsellors(ctx context.Context, activeOnly bool) ([]staffing.Counsellor, error) {
	d, unlock := m.read()
	defer unlock()
	return d.ListCounsellors(ctx, activeOnly)
}

func (m *Store) FindActiveCounsellors(ctx context.Context, ids []staffing.CounsellorID) ([]staffing.Counsellor, error) {
	d, unlock := m.read()
	defer unlock()
	return d.FindActiveCounsellors(ctx, ids)
}

func (m *Store) SetCounsellorActive(ctx context.Context, id staffing.CounsellorID, active bool) error {
	d, unlock := m.write()
	defer unlock()
	return d.SetCounsellorActive(ctx, id, active)
}

func (m *Store) CreateSubmission(ctx context.Context, s *staffing.Submission) error {
	d, unlock := m.write()
	defer unlock()
	return d.CreateSubmission(ctx, s)
}

func (m *Store) GetSubmission(ctx context.Context, id staffing.SubmissionID) (*staffing.Submission, error) {
	d, unlock := m.read()
	defer unlock()
	return d.GetSubmission(ctx, id)
}

func (m *Store) UpdateSubmission(ctx context.Context, s *staffing.Submission) error {
	d, unlock := m.write()
	defer unlock()
	return d.UpdateSubmission(ctx, s)
}

func (m *Store) DeleteSubmission(ctx context.Context, id staffing.SubmissionID) error {
	d, unlock := m.write()
	defer unlock()
	return d.DeleteSubmission(ctx, id)
}

func (m *Store) ListSubmissions(ctx context.Context, f staffing.SubmissionFilter) ([]staffing.Submission, error) {
	d, unlock := m.read()
	defer unlock()
	return d.ListSubmissions(ctx, f)
}

func (m *Store) CountSubmissions(ctx context.Context, f staffing.SubmissionFilter) (int, error) {
	d, unlock := m.read()
	defer unlock()
	return d.CountSubmissions(ctx, f)
}

func (m *Store) ListAssignments(ctx context.Context, id staffing.SubmissionID) ([]staffing.Assignment, error) {
	d, unlock := m.read()
	defer unlock()
	return d.ListAssignments(ctx, id)
}

func (m *Store) ReplaceAssignments(ctx context.Context, id staffing.SubmissionID, ids []staffing.CounsellorID, at time.Time) error {
	d, unlock := m.write()
	defer unlock()
	return d.ReplaceAssignments(ctx, id, ids, at)
}

func (m *Store) ClearAssignments(ctx context.Context, id staffing.SubmissionID) error {
	d, unlock := m.write()
	defer unlock()
	return d.ClearAssignments(ctx, id)
}

func (m *Store) ConfirmedConflicts(ctx context.Context, counsellor staffing.CounsellorID, period generic.Period, exclude *staffing.SubmissionID) ([]staffing.Submission, error) {
	d, unlock := m.read()
	defer unlock()
	return d.ConfirmedConflicts(ctx, counsellor, period, exclude)
}

func (m *Store) ReplaceSuggestions(ctx context.Context, id staffing.SubmissionID, ids []staffing.CounsellorID, at time.Time) error {
	d, unlock := m.write()
	defer unlock()
	return d.ReplaceSuggestions(ctx, id, ids, at)
}

func (m *Store) ListSuggestions(ctx context.Context, id staffing.SubmissionID) ([]staffing.Suggestion, error) {
	d, unlock := m.read()
	defer unlock()
	return d.ListSuggestions(ctx, id)
}

func (m *Store) AppendActivity(ctx context.Context, e staffing.ActivityEntry) error {
	d, unlock := m.write()
	defer unlock()
	return d.AppendActivity(ctx, e)
}

func (m *Store) ListActivity(ctx context.Context, f staffing.ActivityFilter) ([]staffing.ActivityEntry, error) {
	d, unlock := m.read()
	defer unlock()
	return d.ListActivity(ctx, f)
}

func (m *Store) PruneActivity(ctx context.Context, before time.Time) (int64, error) {
	d, unlock := m.write()
	defer unlock()
	return d.PruneActivity(ctx, before)
}

func (m *Store) DismissDuplicate(ctx context.Context, pair staffing.DuplicatePair, by string, at time.Time) error {
	d, unlock := m.write()
	defer unlock()
	return d.DismissDuplicate(ctx, pair, by, at)
}

func (m *Store) IsDismissed(ctx context.Context, pair staffing.DuplicatePair) (bool, error) {
	d, unlock := m.read()
	defer unlock()
	return d.IsDismissed(ctx, pair)
}

func (m *Store) DismissedPartners(ctx context.Context, id staffing.SubmissionID) (map[staffing.SubmissionID]bool, error) {
	d, unlock := m.read()
	defer unlock()
	return d.DismissedPartners(ctx, id)
}
