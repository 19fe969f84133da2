package server

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/danielgtaylor/huma/v2"

	"siteforms/internal/domain"
	"siteforms/internal/engine"
	"siteforms/internal/page"
	"siteforms/internal/repo"
)

func registerSubmissions(api huma.API, e engine.Engine, logger *slog.Logger) {
	huma.Register(api, huma.Operation{
		OperationID: "list-submissions",
		Method:      http.MethodGet,
		Path:        "/submissions",
		Summary:     "List stored submissions, newest first",
		Errors:      []int{http.StatusBadRequest, http.StatusUnauthorized},
	}, func(ctx context.Context, input *struct {
		Form   string `query:"form"`
		Limit  int    `query:"limit"`
		Cursor string `query:"cursor"`
	}) (*struct {
		Body paginatedSubmissions `json:"body"`
	}, error) {
		if p, ok := principalFromContext(ctx); ok {
			logger.Debug("listing submissions", "subject", p.Subject, "form", input.Form)
		}
		limit := normalizeLimit(input.Limit)
		cursorAt, cursorID, err := parseCompositeCursor(input.Cursor)
		if err != nil {
			return nil, handleError(err)
		}
		items, err := e.Repo.ListSubmissions(ctx, repo.SubmissionFilters{
			SiteID:          e.Config.Site.ID,
			Form:            input.Form,
			Limit:           limit + 1,
			CursorCreatedAt: cursorAt,
			CursorID:        cursorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		next := ""
		if len(items) > limit {
			last := items[limit-1]
			next = composeCursor(last.CreatedAt, last.ID)
			items = items[:limit]
		}
		return &struct {
			Body paginatedSubmissions `json:"body"`
		}{Body: paginatedSubmissions{Items: nonNilSlice(items), NextCursor: next}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-submission",
		Method:      http.MethodGet,
		Path:        "/submissions/{id}",
		Summary:     "Get a submission",
		Errors:      []int{http.StatusNotFound, http.StatusUnauthorized},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body domain.Submission `json:"body"`
	}, error) {
		s, err := e.Repo.GetSubmission(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Submission `json:"body"`
		}{Body: s}, nil
	})
}

func registerEvents(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/events",
		Summary:     "List events, newest first",
		Errors:      []int{http.StatusBadRequest, http.StatusUnauthorized},
	}, func(ctx context.Context, input *struct {
		Type       string `query:"type"`
		EntityKind string `query:"entity_kind"`
		EntityID   string `query:"entity_id"`
		Limit      int    `query:"limit"`
		Cursor     string `query:"cursor"`
	}) (*struct {
		Body paginatedEvents `json:"body"`
	}, error) {
		limit := normalizeLimit(input.Limit)
		var before int64
		if input.Cursor != "" {
			v, err := strconv.ParseInt(input.Cursor, 10, 64)
			if err != nil || v <= 0 {
				return nil, newAPIError(http.StatusBadRequest, "bad_request", "invalid cursor", nil)
			}
			before = v
		}
		items, err := e.Repo.LatestEvents(ctx, repo.EventFilters{
			SiteID:     e.Config.Site.ID,
			Type:       input.Type,
			EntityKind: input.EntityKind,
			EntityID:   input.EntityID,
			Limit:      limit + 1,
			Before:     before,
		})
		if err != nil {
			return nil, handleError(err)
		}
		next := ""
		if len(items) > limit {
			next = strconv.FormatInt(items[limit-1].ID, 10)
			items = items[:limit]
		}
		out := make([]EventResponse, 0, len(items))
		for _, ev := range items {
			out = append(out, eventResponse(ev))
		}
		return &struct {
			Body paginatedEvents `json:"body"`
		}{Body: paginatedEvents{Items: out, NextCursor: next}}, nil
	})
}

// SessionsResponse lists the live page sessions held in memory.
type SessionsResponse struct {
	Count int      `json:"count"`
	IDs   []string `json:"ids"`
}

func registerSessions(api huma.API, pages *page.Registry) {
	huma.Register(api, huma.Operation{
		OperationID: "list-sessions",
		Method:      http.MethodGet,
		Path:        "/sessions",
		Summary:     "List live page sessions",
		Errors:      []int{http.StatusUnauthorized},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body SessionsResponse `json:"body"`
	}, error) {
		ids := pages.IDs()
		return &struct {
			Body SessionsResponse `json:"body"`
		}{Body: SessionsResponse{Count: pages.Len(), IDs: nonNilSlice(ids)}}, nil
	})
}
