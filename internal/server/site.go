package server

import (
	"context"
	"errors"
	"net/http"
	"sort"

	"github.com/danielgtaylor/huma/v2"

	"siteforms/internal/domain"
	"siteforms/internal/engine"
	"siteforms/internal/page"
	"siteforms/internal/repo"
)

func registerServices(api huma.API, e engine.Engine, pages *page.Registry) {
	huma.Register(api, huma.Operation{
		OperationID: "list-services",
		Method:      http.MethodGet,
		Path:        "/services",
		Summary:     "List service detail pages",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []ServiceResponse `json:"body"`
	}, error) {
		slugs := make([]string, 0, len(e.Config.Services))
		for slug := range e.Config.Services {
			slugs = append(slugs, slug)
		}
		sort.Strings(slugs)
		items := make([]ServiceResponse, 0, len(slugs))
		for _, slug := range slugs {
			items = append(items, serviceResponse(slug, e.Config.Services[slug]))
		}
		return &struct {
			Body []ServiceResponse `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-service",
		Method:      http.MethodGet,
		Path:        "/services/{slug}",
		Summary:     "Get service details",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		Slug string `path:"slug"`
	}) (*struct {
		Body ServiceResponse `json:"body"`
	}, error) {
		svc, ok := e.Config.Services[input.Slug]
		if !ok {
			return nil, newAPIError(http.StatusNotFound, "not_found", "unknown service "+input.Slug, nil)
		}
		return &struct {
			Body ServiceResponse `json:"body"`
		}{Body: serviceResponse(input.Slug, svc)}, nil
	})
}

func registerConsent(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "record-consent",
		Method:      http.MethodPost,
		Path:        "/consent",
		Summary:     "Record a cookie consent decision",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Body RecordConsentRequest `json:"body"`
	}) (*struct {
		Body ConsentResponse `json:"body"`
	}, error) {
		c, err := e.RecordConsent(ctx, input.Body.VisitorID, input.Body.Decision)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ConsentResponse `json:"body"`
		}{Body: consentResponse(c)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-consent",
		Method:      http.MethodGet,
		Path:        "/consent/{visitor_id}",
		Summary:     "Check whether a visitor answered the cookie banner",
		Description: "has_consent is false until the visitor accepts or rejects.",
	}, func(ctx context.Context, input *struct {
		VisitorID string `path:"visitor_id"`
	}) (*struct {
		Body ConsentResponse `json:"body"`
	}, error) {
		c, err := e.Repo.GetConsent(ctx, input.VisitorID)
		if errors.Is(err, repo.ErrNotFound) {
			return &struct {
				Body ConsentResponse `json:"body"`
			}{Body: ConsentResponse{VisitorID: input.VisitorID}}, nil
		}
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ConsentResponse `json:"body"`
		}{Body: consentResponse(c)}, nil
	})
}

func registerTelemetry(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "record-metric",
		Method:        http.MethodPost,
		Path:          "/telemetry",
		Summary:       "Record a page performance sample",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Body RecordMetricRequest `json:"body"`
	}) (*struct {
		Body domain.Metric `json:"body"`
	}, error) {
		m, err := e.RecordMetric(ctx, domain.Metric{
			PageID: input.Body.PageID,
			Name:   input.Body.Name,
			Value:  input.Body.Value,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Metric `json:"body"`
		}{Body: m}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "telemetry-summary",
		Method:      http.MethodGet,
		Path:        "/telemetry/summary",
		Summary:     "Summarize performance samples per metric",
		Errors:      []int{http.StatusUnauthorized},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []domain.MetricSummary `json:"body"`
	}, error) {
		items, err := e.MetricSummary(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.MetricSummary `json:"body"`
		}{Body: nonNilSlice(items)}, nil
	})
}
