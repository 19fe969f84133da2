package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"html"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"

	"siteforms/internal/config"
	"siteforms/internal/domain"
	"siteforms/internal/events"
	"siteforms/internal/forms"
	"siteforms/internal/repo"
)

type Engine struct {
	DB     *sql.DB
	Repo   repo.Repo
	Events events.Writer
	Config *config.Config
	Logger *slog.Logger
	Now    func() time.Time

	policy *bluemonday.Policy
}

func New(db *sql.DB, cfg *config.Config) Engine {
	return Engine{
		DB:     db,
		Repo:   repo.Repo{DB: db},
		Events: events.Writer{DB: db},
		Config: cfg,
		Logger: slog.Default(),
		Now:    time.Now,
		policy: bluemonday.StrictPolicy(),
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) logger() *slog.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return slog.Default()
}

func (e Engine) siteID() string {
	if e.Config == nil {
		return ""
	}
	return e.Config.Site.ID
}

// submissionTimeLayout is fixed width so created_at sorts as text.
const submissionTimeLayout = "2006-01-02T15:04:05.000000000Z"

type pageKey struct{}

// WithPageID tags submissions made with ctx as coming from a page session.
func WithPageID(ctx context.Context, pageID string) context.Context {
	return context.WithValue(ctx, pageKey{}, pageID)
}

func pageIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(pageKey{}).(string)
	return id
}

// Sanitize strips markup from a submitted value and trims it.
func (e Engine) Sanitize(v string) string {
	policy := e.policy
	if policy == nil {
		policy = bluemonday.StrictPolicy()
	}
	return strings.TrimSpace(html.UnescapeString(policy.Sanitize(v)))
}

// Submit stores a form submission and records a submission.created event in
// the same transaction. It satisfies forms.Transport.
func (e Engine) Submit(ctx context.Context, form string, values map[string]string) (forms.Receipt, error) {
	if e.Config == nil {
		return forms.Receipt{}, errors.New("config not loaded")
	}
	if _, ok := e.Config.Forms[form]; !ok {
		return forms.Receipt{}, fmt.Errorf("%w: %s", forms.ErrUnknownForm, form)
	}
	clean := make(map[string]string, len(values))
	for k, v := range values {
		clean[k] = e.Sanitize(v)
	}
	sub := domain.Submission{
		ID:        uuid.NewString(),
		SiteID:    e.siteID(),
		Form:      form,
		PageID:    pageIDFrom(ctx),
		Values:    clean,
		CreatedAt: e.now().UTC().Format(submissionTimeLayout),
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return forms.Receipt{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertSubmissionTx(ctx, tx, sub); err != nil {
		return forms.Receipt{}, fmt.Errorf("insert submission: %w", err)
	}
	payload := events.EventPayload{"form": form, "values": clean}
	if sub.PageID != "" {
		payload["page_id"] = sub.PageID
	}
	if err := e.Events.Append(ctx, tx, events.SubmissionCreated, sub.SiteID, "submission", sub.ID, payload); err != nil {
		return forms.Receipt{}, err
	}
	if err := tx.Commit(); err != nil {
		return forms.Receipt{}, err
	}
	return forms.Receipt{ID: sub.ID}, nil
}

// RecordConsent stores a cookie decision. An empty visitor id gets a new one.
func (e Engine) RecordConsent(ctx context.Context, visitorID, decision string) (domain.Consent, error) {
	switch decision {
	case domain.ConsentAccepted, domain.ConsentRejected:
	default:
		return domain.Consent{}, fmt.Errorf("invalid consent decision %q", decision)
	}
	if visitorID == "" {
		visitorID = uuid.NewString()
	}
	c := domain.Consent{
		VisitorID: visitorID,
		SiteID:    e.siteID(),
		Decision:  decision,
		UpdatedAt: e.now().UTC().Format(time.RFC3339),
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Consent{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.UpsertConsentTx(ctx, tx, c); err != nil {
		return domain.Consent{}, fmt.Errorf("store consent: %w", err)
	}
	if err := e.Events.Append(ctx, tx, events.ConsentRecorded, c.SiteID, "consent", c.VisitorID, events.EventPayload{"decision": decision}); err != nil {
		return domain.Consent{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Consent{}, err
	}
	if decision == domain.ConsentAccepted {
		e.logger().Info("analytics enabled", "visitor", visitorID)
	}
	return c, nil
}

// HasConsent reports whether the visitor made any cookie decision.
func (e Engine) HasConsent(ctx context.Context, visitorID string) (bool, error) {
	_, err := e.Repo.GetConsent(ctx, visitorID)
	if errors.Is(err, repo.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// RecordMetric stores one page-load telemetry sample.
func (e Engine) RecordMetric(ctx context.Context, m domain.Metric) (domain.Metric, error) {
	if !validMetric(m.Name) {
		return domain.Metric{}, fmt.Errorf("invalid metric %q", m.Name)
	}
	if m.Value < 0 {
		return domain.Metric{}, fmt.Errorf("invalid metric value %v", m.Value)
	}
	m.SiteID = e.siteID()
	m.TS = e.now().UTC().Format(time.RFC3339)
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Metric{}, err
	}
	defer tx.Rollback()
	id, err := e.Repo.InsertMetricTx(ctx, tx, m)
	if err != nil {
		return domain.Metric{}, fmt.Errorf("store metric: %w", err)
	}
	m.ID = id
	if err := e.Events.Append(ctx, tx, events.MetricRecorded, m.SiteID, "metric", fmt.Sprint(id), events.EventPayload{"name": m.Name, "value": m.Value}); err != nil {
		return domain.Metric{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Metric{}, err
	}
	e.logger().Info("page metric", "name", m.Name, "value", m.Value, "page", m.PageID)
	return m, nil
}

func (e Engine) MetricSummary(ctx context.Context) ([]domain.MetricSummary, error) {
	return e.Repo.SummarizeMetrics(ctx, e.siteID())
}

func validMetric(name string) bool {
	for _, n := range domain.MetricNames {
		if n == name {
			return true
		}
	}
	return false
}
