package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"siteforms/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

func (r Repo) InsertSubmissionTx(ctx context.Context, tx *sql.Tx, s domain.Submission) error {
	data, err := json.Marshal(s.Values)
	if err != nil {
		return fmt.Errorf("marshal submission values: %w", err)
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO submissions(id,site_id,form,page_id,values_json,created_at) VALUES (?,?,?,?,?,?)`,
		s.ID, s.SiteID, s.Form, nullable(s.PageID), string(data), s.CreatedAt)
	return err
}

const submissionColumns = `id,site_id,form,COALESCE(page_id,''),values_json,created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSubmission(row rowScanner) (domain.Submission, error) {
	var s domain.Submission
	var values string
	if err := row.Scan(&s.ID, &s.SiteID, &s.Form, &s.PageID, &values, &s.CreatedAt); err != nil {
		return s, err
	}
	if err := json.Unmarshal([]byte(values), &s.Values); err != nil {
		return s, fmt.Errorf("decode submission %s: %w", s.ID, err)
	}
	return s, nil
}

func (r Repo) GetSubmission(ctx context.Context, id string) (domain.Submission, error) {
	s, err := scanSubmission(r.DB.QueryRowContext(ctx, `SELECT `+submissionColumns+` FROM submissions WHERE id=?`, id))
	if err == sql.ErrNoRows {
		return s, ErrNotFound
	}
	return s, err
}

type SubmissionFilters struct {
	SiteID string
	Form   string
	Limit  int
	// Cursor pair from the last row of the previous page.
	CursorCreatedAt string
	CursorID        string
}

// ListSubmissions returns newest first.
func (r Repo) ListSubmissions(ctx context.Context, f SubmissionFilters) ([]domain.Submission, error) {
	clauses := []string{"1=1"}
	var args []any
	if f.SiteID != "" {
		clauses = append(clauses, "site_id=?")
		args = append(args, f.SiteID)
	}
	if f.Form != "" {
		clauses = append(clauses, "form=?")
		args = append(args, f.Form)
	}
	if f.CursorCreatedAt != "" && f.CursorID != "" {
		clauses = append(clauses, "(created_at < ? OR (created_at = ? AND id < ?))")
		args = append(args, f.CursorCreatedAt, f.CursorCreatedAt, f.CursorID)
	}
	query := `SELECT ` + submissionColumns + ` FROM submissions WHERE ` + strings.Join(clauses, " AND ") + ` ORDER BY created_at DESC, id DESC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Submission
	for rows.Next() {
		s, err := scanSubmission(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, s)
	}
	return res, rows.Err()
}

func (r Repo) UpsertConsentTx(ctx context.Context, tx *sql.Tx, c domain.Consent) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO consents(visitor_id,site_id,decision,updated_at) VALUES (?,?,?,?)
ON CONFLICT(visitor_id) DO UPDATE SET decision=excluded.decision, updated_at=excluded.updated_at`,
		c.VisitorID, c.SiteID, c.Decision, c.UpdatedAt)
	return err
}

func (r Repo) GetConsent(ctx context.Context, visitorID string) (domain.Consent, error) {
	var c domain.Consent
	err := r.DB.QueryRowContext(ctx, `SELECT visitor_id,site_id,decision,updated_at FROM consents WHERE visitor_id=?`, visitorID).
		Scan(&c.VisitorID, &c.SiteID, &c.Decision, &c.UpdatedAt)
	if err == sql.ErrNoRows {
		return c, ErrNotFound
	}
	return c, err
}

func (r Repo) InsertMetricTx(ctx context.Context, tx *sql.Tx, m domain.Metric) (int64, error) {
	res, err := tx.ExecContext(ctx, `INSERT INTO metrics(site_id,page_id,name,value,ts) VALUES (?,?,?,?,?)`,
		m.SiteID, nullable(m.PageID), m.Name, m.Value, m.TS)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// SummarizeMetrics aggregates per metric name, ordered by name.
func (r Repo) SummarizeMetrics(ctx context.Context, siteID string) ([]domain.MetricSummary, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT name,COUNT(*),AVG(value),MAX(value) FROM metrics WHERE site_id=? GROUP BY name ORDER BY name`, siteID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.MetricSummary
	for rows.Next() {
		var s domain.MetricSummary
		if err := rows.Scan(&s.Name, &s.Count, &s.Avg, &s.Max); err != nil {
			return nil, err
		}
		res = append(res, s)
	}
	return res, rows.Err()
}

const eventColumns = `id,ts,type,COALESCE(site_id,''),entity_kind,COALESCE(entity_id,''),payload_json`

func scanEvents(rows *sql.Rows) ([]domain.Event, error) {
	defer rows.Close()
	var res []domain.Event
	for rows.Next() {
		var e domain.Event
		if err := rows.Scan(&e.ID, &e.TS, &e.Type, &e.SiteID, &e.EntityKind, &e.EntityID, &e.Payload); err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

type EventFilters struct {
	SiteID     string
	Type       string
	EntityKind string
	EntityID   string
	Limit      int
	// Before returns only events with a smaller id.
	Before int64
}

// LatestEvents returns events newest first.
func (r Repo) LatestEvents(ctx context.Context, f EventFilters) ([]domain.Event, error) {
	if f.Limit <= 0 {
		f.Limit = 50
	}
	clauses := []string{"1=1"}
	var args []any
	if f.SiteID != "" {
		clauses = append(clauses, "site_id=?")
		args = append(args, f.SiteID)
	}
	if f.Type != "" {
		clauses = append(clauses, "type=?")
		args = append(args, f.Type)
	}
	if f.EntityKind != "" {
		clauses = append(clauses, "entity_kind=?")
		args = append(args, f.EntityKind)
	}
	if f.EntityID != "" {
		clauses = append(clauses, "entity_id=?")
		args = append(args, f.EntityID)
	}
	if f.Before > 0 {
		clauses = append(clauses, "id<?")
		args = append(args, f.Before)
	}
	query := fmt.Sprintf(`SELECT %s FROM events WHERE %s ORDER BY id DESC LIMIT ?`, eventColumns, strings.Join(clauses, " AND "))
	args = append(args, f.Limit)
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return scanEvents(rows)
}

// EventsAfter returns events with IDs greater than the cursor in ascending order.
func (r Repo) EventsAfter(ctx context.Context, limit int, cursor int64, siteID string) ([]domain.Event, error) {
	if limit <= 0 {
		limit = 100
	}
	clauses := []string{"1=1"}
	var args []any
	if siteID != "" {
		clauses = append(clauses, "site_id=?")
		args = append(args, siteID)
	}
	if cursor > 0 {
		clauses = append(clauses, "id>?")
		args = append(args, cursor)
	}
	query := fmt.Sprintf(`SELECT %s FROM events WHERE %s ORDER BY id ASC LIMIT ?`, eventColumns, strings.Join(clauses, " AND "))
	args = append(args, limit)
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return scanEvents(rows)
}

// LatestEventID returns the most recent event ID for a site.
func (r Repo) LatestEventID(ctx context.Context, siteID string) (int64, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT COALESCE(MAX(id),0) FROM events WHERE site_id=?`, siteID)
	var id int64
	if err := row.Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
