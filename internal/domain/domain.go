package domain

type Submission struct {
	ID        string            `json:"id"`
	SiteID    string            `json:"site_id"`
	Form      string            `json:"form"`
	PageID    string            `json:"page_id,omitempty"`
	Values    map[string]string `json:"values"`
	CreatedAt string            `json:"created_at" format:"date-time"`
}

const (
	ConsentAccepted = "accepted"
	ConsentRejected = "rejected"
)

type Consent struct {
	VisitorID string `json:"visitor_id"`
	SiteID    string `json:"site_id"`
	Decision  string `json:"decision" enum:"accepted,rejected"`
	UpdatedAt string `json:"updated_at" format:"date-time"`
}

const (
	MetricLCP      = "lcp"
	MetricFID      = "fid"
	MetricCLS      = "cls"
	MetricPageLoad = "page_load"
)

// MetricNames lists the accepted telemetry metrics.
var MetricNames = []string{MetricLCP, MetricFID, MetricCLS, MetricPageLoad}

type Metric struct {
	ID     int64   `json:"id"`
	SiteID string  `json:"site_id"`
	PageID string  `json:"page_id,omitempty"`
	Name   string  `json:"name" enum:"lcp,fid,cls,page_load"`
	Value  float64 `json:"value"`
	TS     string  `json:"ts" format:"date-time"`
}

type MetricSummary struct {
	Name  string  `json:"name"`
	Count int     `json:"count"`
	Avg   float64 `json:"avg"`
	Max   float64 `json:"max"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	SiteID     string `json:"site_id,omitempty"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	Payload    string `json:"payload_json"`
}
