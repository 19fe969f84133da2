package siteformssdk

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal Siteforms HTTP API client.
type Client struct {
	BaseURL     string
	BasePath    string
	BearerToken string
	Language    string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL:  baseURL,
		BasePath: "/v1",
		Timeout:  10 * time.Second,
	}
}

// Field is one form input and its current value.
type Field struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Required bool   `json:"required"`
	Label    string `json:"label,omitempty"`
	Value    string `json:"value"`
	Error    string `json:"error,omitempty"`
}

// Message is the form-level banner.
type Message struct {
	Kind    string `json:"kind,omitempty"`
	Text    string `json:"text,omitempty"`
	Visible bool   `json:"visible"`
}

// FormState mirrors the server's view of a form on a page.
type FormState struct {
	Name        string  `json:"name"`
	Fields      []Field `json:"fields"`
	Consent     *bool   `json:"consent,omitempty"`
	Message     Message `json:"message"`
	Submitting  bool    `json:"submitting"`
	SubmitLabel string  `json:"submit_label"`
}

// Modal is one modal on a page.
type Modal struct {
	Name    string `json:"name"`
	Open    bool   `json:"open"`
	Content struct {
		Title string `json:"title,omitempty"`
		Body  string `json:"body,omitempty"`
	} `json:"content"`
}

// Page is a visitor page session.
type Page struct {
	ID           string      `json:"id"`
	Language     string      `json:"language"`
	Forms        []FormState `json:"forms"`
	Modals       []Modal     `json:"modals"`
	ScrollLocked bool        `json:"scroll_locked"`
	CreatedAt    string      `json:"created_at"`
}

// ValidationResult is the outcome of validating one field.
type ValidationResult struct {
	Valid  bool   `json:"valid"`
	Reason string `json:"reason,omitempty"`
}

// Validation reports per-field results and overall validity.
type Validation struct {
	Valid   bool                        `json:"valid"`
	Fields  map[string]ValidationResult `json:"fields"`
	Message string                      `json:"message,omitempty"`
}

// Outcome is the result of a submission that passed validation.
type Outcome struct {
	Success    bool              `json:"success"`
	Message    string            `json:"message"`
	ReceiptID  string            `json:"receipt_id,omitempty"`
	Values     map[string]string `json:"values,omitempty"`
	CloseModal string            `json:"close_modal,omitempty"`
}

// SubmitResult carries the outcome and, for page forms, the form afterwards.
type SubmitResult struct {
	Outcome Outcome    `json:"outcome"`
	Form    *FormState `json:"form,omitempty"`
}

// Submission is a stored form submission.
type Submission struct {
	ID        string            `json:"id"`
	SiteID    string            `json:"site_id"`
	Form      string            `json:"form"`
	PageID    string            `json:"page_id,omitempty"`
	Values    map[string]string `json:"values"`
	CreatedAt string            `json:"created_at"`
}

// Consent is a visitor's cookie decision.
type Consent struct {
	VisitorID  string `json:"visitor_id"`
	HasConsent bool   `json:"has_consent"`
	Decision   string `json:"decision,omitempty"`
	UpdatedAt  string `json:"updated_at,omitempty"`
}

// Event represents a log entry.
type Event struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts"`
	Type       string         `json:"type"`
	SiteID     string         `json:"site_id"`
	EntityID   string         `json:"entity_id"`
	EntityKind string         `json:"entity_kind"`
	Payload    map[string]any `json:"payload"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Details    map[string]any
	Body       string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error: status=%d code=%s message=%s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// FieldErrors returns the per-field messages of a validation failure.
func (e *APIError) FieldErrors() map[string]string {
	raw, _ := e.Details["fields"].(map[string]any)
	out := make(map[string]string, len(raw))
	for k, v := range raw {
		if s, ok := v.(string); ok {
			out[k] = s
		}
	}
	return out
}

// IsValidation reports whether err is a 422 form validation failure.
func IsValidation(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusUnprocessableEntity
}

// PaginatedSubmissions wraps list responses with cursors.
type PaginatedSubmissions struct {
	Items      []Submission `json:"items"`
	NextCursor string       `json:"next_cursor"`
}

// PaginatedEvents wraps list responses with cursors.
type PaginatedEvents struct {
	Items      []Event `json:"items"`
	NextCursor string  `json:"next_cursor"`
}

// CreatePage starts a page session. An empty locale uses the Language field
// or the site default.
func (c *Client) CreatePage(ctx context.Context, locale string) (Page, error) {
	endpoint := "pages"
	if locale != "" {
		endpoint += "?locale=" + url.QueryEscape(locale)
	}
	var resp Page
	err := c.do(ctx, http.MethodPost, endpoint, nil, &resp)
	return resp, err
}

// ClosePage ends a page session.
func (c *Client) ClosePage(ctx context.Context, pageID string) error {
	return c.do(ctx, http.MethodDelete, "pages/"+url.PathEscape(pageID), nil, nil)
}

// SetField types value into a field of a page form.
func (c *Client) SetField(ctx context.Context, pageID, form, field, value string) (FormState, error) {
	var resp FormState
	err := c.do(ctx, http.MethodPut, c.formPath(pageID, form, "fields/"+url.PathEscape(field)), map[string]any{"value": value}, &resp)
	return resp, err
}

// Blur leaves a field and returns its validation result.
func (c *Client) Blur(ctx context.Context, pageID, form, field string) (ValidationResult, error) {
	var resp struct {
		Result ValidationResult `json:"result"`
	}
	err := c.do(ctx, http.MethodPost, c.formPath(pageID, form, "fields/"+url.PathEscape(field)+"/blur"), nil, &resp)
	return resp.Result, err
}

// SetConsent checks or unchecks the consent box of a page form.
func (c *Client) SetConsent(ctx context.Context, pageID, form string, checked bool) (FormState, error) {
	var resp FormState
	err := c.do(ctx, http.MethodPut, c.formPath(pageID, form, "consent"), map[string]any{"checked": checked}, &resp)
	return resp, err
}

// Submit submits a page form. Validation failures return an *APIError with
// status 422.
func (c *Client) Submit(ctx context.Context, pageID, form string) (SubmitResult, error) {
	var resp SubmitResult
	err := c.do(ctx, http.MethodPost, c.formPath(pageID, form, "submit"), nil, &resp)
	return resp, err
}

// OpenModal opens a modal on a page.
func (c *Client) OpenModal(ctx context.Context, pageID, modal string) error {
	return c.do(ctx, http.MethodPost, fmt.Sprintf("pages/%s/modals/%s/open", url.PathEscape(pageID), url.PathEscape(modal)), nil, nil)
}

// ValidateForm validates values against a form without a page session.
func (c *Client) ValidateForm(ctx context.Context, form string, values map[string]string, consent *bool) (Validation, error) {
	var resp Validation
	err := c.do(ctx, http.MethodPost, "forms/"+url.PathEscape(form)+"/validate", valuesBody(values, consent), &resp)
	return resp, err
}

// SubmitForm validates and submits values in one request.
func (c *Client) SubmitForm(ctx context.Context, form string, values map[string]string, consent *bool) (Outcome, error) {
	var resp SubmitResult
	err := c.do(ctx, http.MethodPost, "forms/"+url.PathEscape(form)+"/submissions", valuesBody(values, consent), &resp)
	return resp.Outcome, err
}

// RecordConsent stores a cookie decision ("accepted" or "rejected").
func (c *Client) RecordConsent(ctx context.Context, visitorID, decision string) (Consent, error) {
	var resp Consent
	err := c.do(ctx, http.MethodPost, "consent", map[string]any{"visitor_id": visitorID, "decision": decision}, &resp)
	return resp, err
}

// RecordMetric sends one performance sample.
func (c *Client) RecordMetric(ctx context.Context, pageID, name string, value float64) error {
	body := map[string]any{"name": name, "value": value}
	if pageID != "" {
		body["page_id"] = pageID
	}
	return c.do(ctx, http.MethodPost, "telemetry", body, nil)
}

// SubmissionsPage lists stored submissions, newest first. Needs a bearer token.
func (c *Client) SubmissionsPage(ctx context.Context, form string, limit int, cursor string) (PaginatedSubmissions, error) {
	q := url.Values{}
	if form != "" {
		q.Set("form", form)
	}
	if limit > 0 {
		q.Set("limit", fmt.Sprint(limit))
	}
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	var resp PaginatedSubmissions
	err := c.do(ctx, http.MethodGet, withQuery("submissions", q), nil, &resp)
	return resp, err
}

// Events returns recent events.
func (c *Client) Events(ctx context.Context, limit int) ([]Event, error) {
	page, err := c.EventsPage(ctx, limit, "")
	return page.Items, err
}

// EventsPage returns a paginated event listing. Needs a bearer token.
func (c *Client) EventsPage(ctx context.Context, limit int, cursor string) (PaginatedEvents, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", fmt.Sprint(limit))
	}
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	var resp PaginatedEvents
	err := c.do(ctx, http.MethodGet, withQuery("events", q), nil, &resp)
	return resp, err
}

func valuesBody(values map[string]string, consent *bool) map[string]any {
	body := map[string]any{"values": values}
	if consent != nil {
		body["consent"] = *consent
	}
	return body
}

func withQuery(endpoint string, q url.Values) string {
	if len(q) == 0 {
		return endpoint
	}
	return endpoint + "?" + q.Encode()
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	target := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, target, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.BearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	}
	if c.Language != "" {
		req.Header.Set("Accept-Language", c.Language)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(b)}
		var envelope struct {
			Error struct {
				Code    string         `json:"code"`
				Message string         `json:"message"`
				Details map[string]any `json:"details"`
			} `json:"error"`
		}
		if json.Unmarshal(b, &envelope) == nil {
			apiErr.Code = envelope.Error.Code
			apiErr.Message = envelope.Error.Message
			apiErr.Details = envelope.Error.Details
		}
		return apiErr
	}
	if out != nil && resp.StatusCode != http.StatusNoContent {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) formPath(pageID, form, p string) string {
	return fmt.Sprintf("pages/%s/forms/%s/%s", url.PathEscape(pageID), url.PathEscape(form), strings.TrimLeft(p, "/"))
}

func (c *Client) base() string {
	base := strings.TrimRight(c.BaseURL, "/")
	if bp := strings.Trim(c.BasePath, "/"); bp != "" {
		base += "/" + bp
	}
	return base
}
