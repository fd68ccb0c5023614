package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/warp/staffing-engine/generic"
	"github.com/warp/staffing-engine/staffing"
)

// =============================================================================
// COUNSELLORS
// =============================================================================

const counsellorColumns = `id, username, name, active, created_at`

func (c *conn) CreateCounsellor(ctx context.Context, co *staffing.Counsellor) error {
	res, err := c.q.ExecContext(ctx,
		`INSERT INTO counsellors (username, name, active, created_at) VALUES (?, ?, ?, ?)`,
		co.Username, co.Name, co.Active, formatTime(co.CreatedAt),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return validationf("username", "counsellor username %q already exists", co.Username)
		}
		return fmt.Errorf("failed to insert counsellor: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read counsellor id: %w", err)
	}
	co.ID = staffing.CounsellorID(id)
	return nil
}

func (c *conn) GetCounsellor(ctx context.Context, id staffing.CounsellorID) (*staffing.Counsellor, error) {
	return c.getCounsellor(ctx, `SELECT `+counsellorColumns+` FROM counsellors WHERE id = ?`, id)
}

func (c *conn) GetCounsellorByUsername(ctx context.Context, username string) (*staffing.Counsellor, error) {
	return c.getCounsellor(ctx, `SELECT `+counsellorColumns+` FROM counsellors WHERE username = ? COLLATE NOCASE`, username)
}

func (c *conn) getCounsellor(ctx context.Context, query string, args ...any) (*staffing.Counsellor, error) {
	co, err := scanCounsellor(c.q.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &co, nil
}

func (c *conn) ListCounsellors(ctx context.Context, activeOnly bool) ([]staffing.Counsellor, error) {
	query := `SELECT ` + counsellorColumns + ` FROM counsellors`
	if activeOnly {
		query += ` WHERE active = 1`
	}
	return c.queryCounsellors(ctx, query+` ORDER BY id`)
}

func (c *conn) FindActiveCounsellors(ctx context.Context, ids []staffing.CounsellorID) ([]staffing.Counsellor, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = int64(id)
	}
	query := `SELECT ` + counsellorColumns + ` FROM counsellors WHERE active = 1 AND id IN (` + placeholders(len(ids)) + `) ORDER BY id`
	return c.queryCounsellors(ctx, query, args...)
}

func (c *conn) SetCounsellorActive(ctx context.Context, id staffing.CounsellorID, active bool) error {
	res, err := c.q.ExecContext(ctx, `UPDATE counsellors SET active = ? WHERE id = ?`, active, id)
	if err != nil {
		return fmt.Errorf("failed to update counsellor: %w", err)
	}
	n, err := rowsAffected(res)
	if err != nil {
		return err
	}
	if n == 0 {
		return &generic.NotFoundError{Kind: "counsellor", ID: id}
	}
	return nil
}

func (c *conn) queryCounsellors(ctx context.Context, query string, args ...any) ([]staffing.Counsellor, error) {
	rows, err := c.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query counsellors: %w", err)
	}
	defer rows.Close()

	var out []staffing.Counsellor
	for rows.Next() {
		co, err := scanCounsellor(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, co)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanCounsellor(row scanner) (staffing.Counsellor, error) {
	var (
		co        staffing.Counsellor
		createdAt string
	)
	if err := row.Scan(&co.ID, &co.Username, &co.Name, &co.Active, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return co, err
		}
		return co, fmt.Errorf("failed to scan counsellor: %w", err)
	}
	t, err := parseTime(createdAt)
	if err != nil {
		return co, err
	}
	co.CreatedAt = t
	return co, nil
}

// =============================================================================
// SUBMISSIONS
// =============================================================================

const submissionColumns = `id, start_date, end_date, city, country,
	organizer_id, organizer_name, event_type_id, event_name_id, event_name, remarks,
	status, event_status, payment_status, submitted_by, sent_by,
	confirmed_at, created_at, updated_at`

func (c *conn) CreateSubmission(ctx context.Context, s *staffing.Submission) error {
	res, err := c.q.ExecContext(ctx, `
		INSERT INTO submissions (start_date, end_date, city, country,
			organizer_id, organizer_name, event_type_id, event_name_id, event_name, remarks,
			status, event_status, payment_status, submitted_by, sent_by,
			confirmed_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.StartDate.String(), s.EndDate.String(), s.City, s.Country,
		nullInt64(s.OrganizerID), s.OrganizerName, nullInt64(s.EventTypeID), nullInt64(s.EventNameID), s.EventName, s.Remarks,
		s.Status, s.EventStatus, s.PaymentStatus, s.SubmittedBy, nullInt64(s.SentBy),
		nullTime(s.ConfirmedAt), formatTime(s.CreatedAt), formatTime(s.UpdatedAt),
	)
	if err != nil {
		if isForeignKeyError(err) {
			return &generic.NotFoundError{Kind: "counsellor", ID: s.SubmittedBy}
		}
		return fmt.Errorf("failed to insert submission: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read submission id: %w", err)
	}
	s.ID = staffing.SubmissionID(id)
	return nil
}

func (c *conn) GetSubmission(ctx context.Context, id staffing.SubmissionID) (*staffing.Submission, error) {
	row := c.q.QueryRowContext(ctx, `SELECT `+submissionColumns+` FROM submissions WHERE id = ?`, id)
	s, err := scanSubmission(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (c *conn) UpdateSubmission(ctx context.Context, s *staffing.Submission) error {
	res, err := c.q.ExecContext(ctx, `
		UPDATE submissions SET
			start_date = ?, end_date = ?, city = ?, country = ?,
			organizer_id = ?, organizer_name = ?, event_type_id = ?, event_name_id = ?, event_name = ?, remarks = ?,
			status = ?, event_status = ?, payment_status = ?, sent_by = ?,
			confirmed_at = ?, updated_at = ?
		WHERE id = ?`,
		s.StartDate.String(), s.EndDate.String(), s.City, s.Country,
		nullInt64(s.OrganizerID), s.OrganizerName, nullInt64(s.EventTypeID), nullInt64(s.EventNameID), s.EventName, s.Remarks,
		s.Status, s.EventStatus, s.PaymentStatus, nullInt64(s.SentBy),
		nullTime(s.ConfirmedAt), formatTime(s.UpdatedAt),
		s.ID,
	)
	if err != nil {
		if isForeignKeyError(err) {
			return validationf("sent_by", "unknown counsellor")
		}
		return fmt.Errorf("failed to update submission: %w", err)
	}
	n, err := rowsAffected(res)
	if err != nil {
		return err
	}
	if n == 0 {
		return &generic.NotFoundError{Kind: "submission", ID: s.ID}
	}
	return nil
}

// DeleteSubmission relies on ON DELETE CASCADE / SET NULL for dependents.
func (c *conn) DeleteSubmission(ctx context.Context, id staffing.SubmissionID) error {
	res, err := c.q.ExecContext(ctx, `DELETE FROM submissions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete submission: %w", err)
	}
	n, err := rowsAffected(res)
	if err != nil {
		return err
	}
	if n == 0 {
		return &generic.NotFoundError{Kind: "submission", ID: id}
	}
	return nil
}

func (c *conn) ListSubmissions(ctx context.Context, f staffing.SubmissionFilter) ([]staffing.Submission, error) {
	where, args := submissionWhere(f)
	query := `SELECT ` + submissionColumns + ` FROM submissions s` + where + ` ORDER BY created_at DESC, id DESC`
	if f.Limit > 0 || f.Offset > 0 {
		limit := f.Limit
		if limit <= 0 {
			limit = -1
		}
		query += ` LIMIT ? OFFSET ?`
		args = append(args, limit, f.Offset)
	}

	rows, err := c.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query submissions: %w", err)
	}
	defer rows.Close()

	var out []staffing.Submission
	for rows.Next() {
		s, err := scanSubmission(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (c *conn) CountSubmissions(ctx context.Context, f staffing.SubmissionFilter) (int, error) {
	where, args := submissionWhere(f)
	var n int
	if err := c.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM submissions s`+where, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count submissions: %w", err)
	}
	return n, nil
}

// overlapClause matches rows whose [start_date, end_date] intersects p.
func overlapClause(p generic.Period) (string, []any) {
	return `NOT (s.end_date < ? OR s.start_date > ?)`, []any{p.Start.String(), p.End.String()}
}

// submissionWhere renders f as a WHERE clause on alias s. Empty when f has
// no constraint.
func submissionWhere(f staffing.SubmissionFilter) (string, []any) {
	var (
		clauses []string
		args    []any
	)
	add := func(clause string, a ...any) {
		clauses = append(clauses, clause)
		args = append(args, a...)
	}

	if len(f.Statuses) > 0 {
		vals := make([]any, len(f.Statuses))
		for i, v := range f.Statuses {
			vals[i] = string(v)
		}
		add(`s.status IN (`+placeholders(len(vals))+`)`, vals...)
	}
	if len(f.EventStatuses) > 0 {
		vals := make([]any, len(f.EventStatuses))
		for i, v := range f.EventStatuses {
			vals[i] = string(v)
		}
		add(`s.event_status IN (`+placeholders(len(vals))+`)`, vals...)
	}
	if f.SubmittedBy != nil {
		add(`s.submitted_by = ?`, int64(*f.SubmittedBy))
	}
	if f.AssignedTo != nil {
		add(`EXISTS (SELECT 1 FROM assignments a WHERE a.submission_id = s.id AND a.counsellor_id = ?)`, int64(*f.AssignedTo))
	}
	if f.StartFrom != nil {
		add(`s.start_date >= ?`, f.StartFrom.String())
	}
	if f.StartTo != nil {
		add(`s.start_date <= ?`, f.StartTo.String())
	}
	if len(f.ExcludeIDs) > 0 {
		vals := make([]any, len(f.ExcludeIDs))
		for i, v := range f.ExcludeIDs {
			vals[i] = int64(v)
		}
		add(`s.id NOT IN (`+placeholders(len(vals))+`)`, vals...)
	}
	if f.CreatedAfter != nil {
		add(`s.created_at >= ?`, formatTime(*f.CreatedAfter))
	}
	if f.CreatedBefore != nil {
		add(`s.created_at < ?`, formatTime(*f.CreatedBefore))
	}

	const countryClause = `LOWER(TRIM(s.country)) = LOWER(TRIM(?))`
	switch {
	case f.CountryOrOverlap && f.Country != "" && f.Overlapping != nil:
		overlap, oargs := overlapClause(*f.Overlapping)
		add(`(`+countryClause+` OR `+overlap+`)`, append([]any{f.Country}, oargs...)...)
	default:
		if f.Country != "" {
			add(countryClause, f.Country)
		}
		if f.Overlapping != nil {
			overlap, oargs := overlapClause(*f.Overlapping)
			add(overlap, oargs...)
		}
	}

	if len(clauses) == 0 {
		return "", nil
	}
	return ` WHERE ` + strings.Join(clauses, ` AND `), args
}

func scanSubmission(row scanner) (staffing.Submission, error) {
	var (
		s                           staffing.Submission
		start, end                  string
		organizerID, typeID, nameID sql.NullInt64
		sentBy                      sql.NullInt64
		confirmedAt                 sql.NullString
		createdAt, updatedAt        string
	)
	err := row.Scan(&s.ID, &start, &end, &s.City, &s.Country,
		&organizerID, &s.OrganizerName, &typeID, &nameID, &s.EventName, &s.Remarks,
		&s.Status, &s.EventStatus, &s.PaymentStatus, &s.SubmittedBy, &sentBy,
		&confirmedAt, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return s, err
		}
		return s, fmt.Errorf("failed to scan submission: %w", err)
	}

	if s.StartDate, err = generic.ParseDate(start); err != nil {
		return s, err
	}
	if s.EndDate, err = generic.ParseDate(end); err != nil {
		return s, err
	}
	s.OrganizerID = int64Ptr[int64](organizerID)
	s.EventTypeID = int64Ptr[int64](typeID)
	s.EventNameID = int64Ptr[int64](nameID)
	s.SentBy = int64Ptr[staffing.CounsellorID](sentBy)
	if s.ConfirmedAt, err = parseNullTime(confirmedAt); err != nil {
		return s, err
	}
	if s.CreatedAt, err = parseTime(createdAt); err != nil {
		return s, err
	}
	if s.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return s, err
	}
	return s, nil
}

// =============================================================================
// ASSIGNMENTS & SUGGESTIONS
// =============================================================================

func (c *conn) ListAssignments(ctx context.Context, id staffing.SubmissionID) ([]staffing.Assignment, error) {
	rows, err := c.q.QueryContext(ctx,
		`SELECT submission_id, counsellor_id, assigned_at FROM assignments WHERE submission_id = ? ORDER BY counsellor_id`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query assignments: %w", err)
	}
	defer rows.Close()

	var out []staffing.Assignment
	for rows.Next() {
		var (
			a  staffing.Assignment
			at string
		)
		if err := rows.Scan(&a.SubmissionID, &a.CounsellorID, &at); err != nil {
			return nil, fmt.Errorf("failed to scan assignment: %w", err)
		}
		if a.AssignedAt, err = parseTime(at); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// ReplaceAssignments must run inside a transaction; Store wraps it.
func (c *conn) ReplaceAssignments(ctx context.Context, id staffing.SubmissionID, counsellorIDs []staffing.CounsellorID, at time.Time) error {
	return c.replaceLinks(ctx, "assignments", "assigned_at", id, counsellorIDs, at)
}

func (c *conn) ClearAssignments(ctx context.Context, id staffing.SubmissionID) error {
	if _, err := c.q.ExecContext(ctx, `DELETE FROM assignments WHERE submission_id = ?`, id); err != nil {
		return fmt.Errorf("failed to clear assignments: %w", err)
	}
	return nil
}

func (c *conn) ConfirmedConflicts(ctx context.Context, counsellorID staffing.CounsellorID, period generic.Period, exclude *staffing.SubmissionID) ([]staffing.Submission, error) {
	overlap, args := overlapClause(period)
	query := `SELECT ` + submissionColumns + ` FROM submissions s
		JOIN assignments a ON a.submission_id = s.id
		WHERE a.counsellor_id = ? AND s.status = ? AND ` + overlap
	args = append([]any{int64(counsellorID), string(staffing.StatusConfirmed)}, args...)
	if exclude != nil {
		query += ` AND s.id <> ?`
		args = append(args, int64(*exclude))
	}
	query += ` ORDER BY s.start_date, s.id`

	rows, err := c.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query conflicts: %w", err)
	}
	defer rows.Close()

	var out []staffing.Submission
	for rows.Next() {
		s, err := scanSubmission(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (c *conn) ReplaceSuggestions(ctx context.Context, id staffing.SubmissionID, counsellorIDs []staffing.CounsellorID, at time.Time) error {
	return c.replaceLinks(ctx, "suggestions", "created_at", id, counsellorIDs, at)
}

func (c *conn) ListSuggestions(ctx context.Context, id staffing.SubmissionID) ([]staffing.Suggestion, error) {
	rows, err := c.q.QueryContext(ctx,
		`SELECT submission_id, counsellor_id, created_at FROM suggestions WHERE submission_id = ? ORDER BY counsellor_id`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query suggestions: %w", err)
	}
	defer rows.Close()

	var out []staffing.Suggestion
	for rows.Next() {
		var (
			sg staffing.Suggestion
			at string
		)
		if err := rows.Scan(&sg.SubmissionID, &sg.CounsellorID, &at); err != nil {
			return nil, fmt.Errorf("failed to scan suggestion: %w", err)
		}
		if sg.CreatedAt, err = parseTime(at); err != nil {
			return nil, err
		}
		out = append(out, sg)
	}
	return out, rows.Err()
}

// replaceLinks deletes every (submission, counsellor) row in table and
// inserts ids. table and timeColumn are internal constants.
func (c *conn) replaceLinks(ctx context.Context, table, timeColumn string, id staffing.SubmissionID, ids []staffing.CounsellorID, at time.Time) error {
	var exists int
	if err := c.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM submissions WHERE id = ?`, id).Scan(&exists); err != nil {
		return fmt.Errorf("failed to check submission: %w", err)
	}
	if exists == 0 {
		return &generic.NotFoundError{Kind: "submission", ID: id}
	}

	if _, err := c.q.ExecContext(ctx, `DELETE FROM `+table+` WHERE submission_id = ?`, id); err != nil {
		return fmt.Errorf("failed to clear %s: %w", table, err)
	}
	insert := `INSERT OR IGNORE INTO ` + table + ` (submission_id, counsellor_id, ` + timeColumn + `) VALUES (?, ?, ?)`
	stamp := formatTime(at)
	for _, cid := range ids {
		if _, err := c.q.ExecContext(ctx, insert, id, cid, stamp); err != nil {
			if isForeignKeyError(err) {
				return &generic.NotFoundError{Kind: "counsellor", ID: cid}
			}
			return fmt.Errorf("failed to insert into %s: %w", table, err)
		}
	}
	return nil
}

// =============================================================================
// ACTIVITY
// =============================================================================

func (c *conn) AppendActivity(ctx context.Context, e staffing.ActivityEntry) error {
	details, err := encodeJSON(e.Details)
	if err != nil {
		return err
	}
	if _, err := c.q.ExecContext(ctx,
		`INSERT INTO activity (action, actor, details, created_at) VALUES (?, ?, ?, ?)`,
		e.Action, e.Actor, details, formatTime(e.CreatedAt),
	); err != nil {
		return fmt.Errorf("failed to append activity: %w", err)
	}
	return nil
}

func (c *conn) ListActivity(ctx context.Context, f staffing.ActivityFilter) ([]staffing.ActivityEntry, error) {
	var (
		clauses []string
		args    []any
	)
	if f.Action != "" {
		clauses = append(clauses, `action = ?`)
		args = append(args, string(f.Action))
	}
	if f.Actor != "" {
		clauses = append(clauses, `actor = ?`)
		args = append(args, f.Actor)
	}
	if f.Since != nil {
		clauses = append(clauses, `created_at >= ?`)
		args = append(args, formatTime(*f.Since))
	}
	if f.Until != nil {
		clauses = append(clauses, `created_at < ?`)
		args = append(args, formatTime(*f.Until))
	}
	query := `SELECT id, action, actor, details, created_at FROM activity`
	if len(clauses) > 0 {
		query += ` WHERE ` + strings.Join(clauses, ` AND `)
	}
	query += ` ORDER BY created_at, id`

	rows, err := c.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query activity: %w", err)
	}
	defer rows.Close()

	var out []staffing.ActivityEntry
	for rows.Next() {
		var (
			e         staffing.ActivityEntry
			details   sql.NullString
			createdAt string
		)
		if err := rows.Scan(&e.ID, &e.Action, &e.Actor, &details, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan activity: %w", err)
		}
		if e.Details, err = decodeJSON(details); err != nil {
			return nil, err
		}
		if e.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (c *conn) PruneActivity(ctx context.Context, before time.Time) (int64, error) {
	res, err := c.q.ExecContext(ctx, `DELETE FROM activity WHERE created_at < ?`, formatTime(before))
	if err != nil {
		return 0, fmt.Errorf("failed to prune activity: %w", err)
	}
	return rowsAffected(res)
}

// =============================================================================
// DUPLICATE DISMISSALS
// =============================================================================

func (c *conn) DismissDuplicate(ctx context.Context, pair staffing.DuplicatePair, by string, at time.Time) error {
	pair = staffing.NewDuplicatePair(pair.A, pair.B)
	_, err := c.q.ExecContext(ctx, `
		INSERT INTO duplicate_dismissals (submission_a, submission_b, dismissed_by, dismissed_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (submission_a, submission_b) DO NOTHING`,
		pair.A, pair.B, by, formatTime(at),
	)
	if err != nil {
		if isForeignKeyError(err) {
			return &generic.NotFoundError{Kind: "submission", ID: fmt.Sprintf("%d/%d", pair.A, pair.B)}
		}
		return fmt.Errorf("failed to dismiss duplicate: %w", err)
	}
	return nil
}

func (c *conn) IsDismissed(ctx context.Context, pair staffing.DuplicatePair) (bool, error) {
	pair = staffing.NewDuplicatePair(pair.A, pair.B)
	var n int
	err := c.q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM duplicate_dismissals WHERE submission_a = ? AND submission_b = ?`, pair.A, pair.B,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to check dismissal: %w", err)
	}
	return n > 0, nil
}

func (c *conn) DismissedPartners(ctx context.Context, id staffing.SubmissionID) (map[staffing.SubmissionID]bool, error) {
	rows, err := c.q.QueryContext(ctx, `
		SELECT submission_b FROM duplicate_dismissals WHERE submission_a = ?
		UNION
		SELECT submission_a FROM duplicate_dismissals WHERE submission_b = ?`, id, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query dismissals: %w", err)
	}
	defer rows.Close()

	out := make(map[staffing.SubmissionID]bool)
	for rows.Next() {
		var partner staffing.SubmissionID
		if err := rows.Scan(&partner); err != nil {
			return nil, fmt.Errorf("failed to scan dismissal: %w", err)
		}
		out[partner] = true
	}
	return out, rows.Err()
}
