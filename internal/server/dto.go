package server

import (
	"encoding/json"
	"time"

	"siteforms/internal/config"
	"siteforms/internal/domain"
	"siteforms/internal/forms"
	"siteforms/internal/modal"
	"siteforms/internal/page"
)

// Request payloads

type FormValuesRequest struct {
	Values  map[string]string `json:"values,omitempty"`
	Consent *bool             `json:"consent,omitempty"`
}

type SetFieldRequest struct {
	Value string `json:"value"`
}

type SetConsentRequest struct {
	Checked bool `json:"checked"`
}

type RecordConsentRequest struct {
	VisitorID string `json:"visitor_id,omitempty"`
	Decision  string `json:"decision" enum:"accepted,rejected"`
}

type RecordMetricRequest struct {
	PageID string  `json:"page_id,omitempty"`
	Name   string  `json:"name" enum:"lcp,fid,cls,page_load"`
	Value  float64 `json:"value" minimum:"0"`
}

// Response payloads

type ValidationResponse struct {
	Valid   bool                              `json:"valid"`
	Fields  map[string]forms.ValidationResult `json:"fields"`
	Message string                            `json:"message,omitempty"`
}

type PageResponse struct {
	ID           string        `json:"id"`
	Language     string        `json:"language"`
	Forms        []forms.State `json:"forms"`
	Modals       []modal.View  `json:"modals"`
	ScrollLocked bool          `json:"scroll_locked"`
	CreatedAt    string        `json:"created_at" format:"date-time"`
}

type ModalsResponse struct {
	Modals       []modal.View `json:"modals"`
	ScrollLocked bool         `json:"scroll_locked"`
}

type BlurResponse struct {
	Result forms.ValidationResult `json:"result"`
	Form   forms.State            `json:"form"`
}

type SubmitResponse struct {
	Outcome forms.Outcome `json:"outcome"`
	Form    *forms.State  `json:"form,omitempty"`
}

type ServiceResponse struct {
	Slug     string                  `json:"slug"`
	Title    string                  `json:"title"`
	Summary  string                  `json:"summary,omitempty"`
	Sections []config.ServiceSection `json:"sections,omitempty"`
	CTA      string                  `json:"cta,omitempty"`
}

type ConsentResponse struct {
	VisitorID  string `json:"visitor_id"`
	HasConsent bool   `json:"has_consent"`
	Decision   string `json:"decision,omitempty"`
	UpdatedAt  string `json:"updated_at,omitempty"`
}

type EventResponse struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts" format:"date-time"`
	Type       string         `json:"type"`
	SiteID     string         `json:"site_id,omitempty"`
	EntityKind string         `json:"entity_kind"`
	EntityID   string         `json:"entity_id,omitempty"`
	Payload    map[string]any `json:"payload,omitempty"`
}

type paginatedSubmissions struct {
	Items      []domain.Submission `json:"items"`
	NextCursor string              `json:"next_cursor,omitempty"`
}

type paginatedEvents struct {
	Items      []EventResponse `json:"items"`
	NextCursor string          `json:"next_cursor,omitempty"`
}

func pageResponse(p *page.Page) PageResponse {
	return PageResponse{
		ID:           p.ID,
		Language:     p.Language.String(),
		Forms:        nonNilSlice(p.FormStates()),
		Modals:       nonNilSlice(p.Modals.Snapshot()),
		ScrollLocked: p.Modals.ScrollLocked(),
		CreatedAt:    p.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func modalsResponse(m *modal.Manager) ModalsResponse {
	return ModalsResponse{Modals: nonNilSlice(m.Snapshot()), ScrollLocked: m.ScrollLocked()}
}

func serviceResponse(slug string, svc config.Service) ServiceResponse {
	return ServiceResponse{
		Slug:     slug,
		Title:    svc.Title,
		Summary:  svc.Summary,
		Sections: svc.Sections,
		CTA:      svc.CTA,
	}
}

func consentResponse(c domain.Consent) ConsentResponse {
	return ConsentResponse{
		VisitorID:  c.VisitorID,
		HasConsent: true,
		Decision:   c.Decision,
		UpdatedAt:  c.UpdatedAt,
	}
}

func eventResponse(e domain.Event) EventResponse {
	return EventResponse{
		ID:         e.ID,
		TS:         e.TS,
		Type:       e.Type,
		SiteID:     e.SiteID,
		EntityKind: e.EntityKind,
		EntityID:   e.EntityID,
		Payload:    decodeJSONMap(e.Payload),
	}
}

func decodeJSONMap(raw string) map[string]any {
	if raw == "" {
		return nil
	}
	var out map[string]any
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return map[string]any{"raw": raw}
	}
	return out
}

func nonNilSlice[T any](in []T) []T {
	if in == nil {
		return []T{}
	}
	return in
}
