package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"siteforms/internal/engine"
	"siteforms/internal/forms"
	"siteforms/internal/page"
)

type pageFormInput struct {
	PageID string `path:"page_id"`
	Form   string `path:"form"`
}

func lookupForm(pages *page.Registry, pageID, form string) (*page.Page, *forms.Form, error) {
	p, err := pages.Get(pageID)
	if err != nil {
		return nil, nil, err
	}
	f, err := p.Form(form)
	if err != nil {
		return nil, nil, err
	}
	return p, f, nil
}

func registerPages(api huma.API, pages *page.Registry, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "create-page",
		Method:      http.MethodPost,
		Path:        "/pages",
		Summary:     "Start a page session with every configured form",
	}, func(ctx context.Context, input *struct {
		Locale         string `query:"locale"`
		AcceptLanguage string `header:"Accept-Language"`
	}) (*struct {
		Body PageResponse `json:"body"`
	}, error) {
		locale := input.Locale
		if locale == "" {
			locale = input.AcceptLanguage
		}
		p := pages.Create(locale)
		return &struct {
			Body PageResponse `json:"body"`
		}{Body: pageResponse(p)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-page",
		Method:      http.MethodGet,
		Path:        "/pages/{page_id}",
		Summary:     "Get page state",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		PageID string `path:"page_id"`
	}) (*struct {
		Body PageResponse `json:"body"`
	}, error) {
		p, err := pages.Get(input.PageID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body PageResponse `json:"body"`
		}{Body: pageResponse(p)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-page",
		Method:        http.MethodDelete,
		Path:          "/pages/{page_id}",
		Summary:       "End a page session",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		PageID string `path:"page_id"`
	}) (*struct{}, error) {
		if !pages.Delete(input.PageID) {
			return nil, handleError(fmt.Errorf("%w: %s", page.ErrNotFound, input.PageID))
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-page-form",
		Method:      http.MethodGet,
		Path:        "/pages/{page_id}/forms/{form}",
		Summary:     "Get form state",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *pageFormInput) (*struct {
		Body forms.State `json:"body"`
	}, error) {
		_, f, err := lookupForm(pages, input.PageID, input.Form)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body forms.State `json:"body"`
		}{Body: f.Snapshot()}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "set-page-field",
		Method:      http.MethodPut,
		Path:        "/pages/{page_id}/forms/{form}/fields/{field}",
		Summary:     "Type into a field",
		Description: "Sets the value and clears the field's error decoration.",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		PageID string          `path:"page_id"`
		Form   string          `path:"form"`
		Field  string          `path:"field"`
		Body   SetFieldRequest `json:"body"`
	}) (*struct {
		Body forms.State `json:"body"`
	}, error) {
		p, f, err := lookupForm(pages, input.PageID, input.Form)
		if err != nil {
			return nil, handleError(err)
		}
		if err := p.Forms.Input(f, input.Field, input.Body.Value); err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body forms.State `json:"body"`
		}{Body: f.Snapshot()}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "blur-page-field",
		Method:      http.MethodPost,
		Path:        "/pages/{page_id}/forms/{form}/fields/{field}/blur",
		Summary:     "Leave a field and validate it",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		PageID string `path:"page_id"`
		Form   string `path:"form"`
		Field  string `path:"field"`
	}) (*struct {
		Body BlurResponse `json:"body"`
	}, error) {
		p, f, err := lookupForm(pages, input.PageID, input.Form)
		if err != nil {
			return nil, handleError(err)
		}
		res, err := p.Forms.Blur(f, input.Field)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body BlurResponse `json:"body"`
		}{Body: BlurResponse{Result: res, Form: f.Snapshot()}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "set-page-consent",
		Method:      http.MethodPut,
		Path:        "/pages/{page_id}/forms/{form}/consent",
		Summary:     "Check or uncheck the consent box",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		PageID string            `path:"page_id"`
		Form   string            `path:"form"`
		Body   SetConsentRequest `json:"body"`
	}) (*struct {
		Body forms.State `json:"body"`
	}, error) {
		_, f, err := lookupForm(pages, input.PageID, input.Form)
		if err != nil {
			return nil, handleError(err)
		}
		if err := f.SetConsent(input.Body.Checked); err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body forms.State `json:"body"`
		}{Body: f.Snapshot()}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "validate-page-form",
		Method:      http.MethodPost,
		Path:        "/pages/{page_id}/forms/{form}/validate",
		Summary:     "Validate the current form values",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *pageFormInput) (*struct {
		Body ValidationResponse `json:"body"`
	}, error) {
		p, f, err := lookupForm(pages, input.PageID, input.Form)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ValidationResponse `json:"body"`
		}{Body: validateAll(p.Forms, f)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "submit-page-form",
		Method:      http.MethodPost,
		Path:        "/pages/{page_id}/forms/{form}/submit",
		Summary:     "Submit a form on the page",
		Description: "Rejects with 422 when validation fails and 409 while a submission of the same form is in flight. Transport failures return an unsuccessful outcome with the values kept.",
		Errors:      []int{http.StatusNotFound, http.StatusConflict, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *pageFormInput) (*struct {
		Body SubmitResponse `json:"body"`
	}, error) {
		p, f, err := lookupForm(pages, input.PageID, input.Form)
		if err != nil {
			return nil, handleError(err)
		}
		out, err := p.Forms.Submit(engine.WithPageID(ctx, p.ID), f)
		if errors.Is(err, forms.ErrValidation) {
			return nil, validationError(f)
		}
		if err != nil {
			return nil, handleError(err)
		}
		state := f.Snapshot()
		return &struct {
			Body SubmitResponse `json:"body"`
		}{Body: SubmitResponse{Outcome: *out, Form: &state}}, nil
	})

	registerPageModals(api, pages, e)
}

func registerPageModals(api huma.API, pages *page.Registry, e engine.Engine) {
	type modalInput struct {
		PageID string `path:"page_id"`
		Modal  string `path:"modal"`
	}
	type modalsOutput struct {
		Body ModalsResponse `json:"body"`
	}

	huma.Register(api, huma.Operation{
		OperationID: "open-page-modal",
		Method:      http.MethodPost,
		Path:        "/pages/{page_id}/modals/{modal}/open",
		Summary:     "Open a modal",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *modalInput) (*modalsOutput, error) {
		p, err := pages.Get(input.PageID)
		if err != nil {
			return nil, handleError(err)
		}
		if !p.Modals.Open(input.Modal) {
			return nil, newAPIError(http.StatusNotFound, "not_found", "unknown modal "+input.Modal, nil)
		}
		return &modalsOutput{Body: modalsResponse(p.Modals)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "close-page-modal",
		Method:      http.MethodPost,
		Path:        "/pages/{page_id}/modals/{modal}/close",
		Summary:     "Close a modal",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *modalInput) (*modalsOutput, error) {
		p, err := pages.Get(input.PageID)
		if err != nil {
			return nil, handleError(err)
		}
		if !p.Modals.Has(input.Modal) {
			return nil, newAPIError(http.StatusNotFound, "not_found", "unknown modal "+input.Modal, nil)
		}
		p.Modals.Close(input.Modal)
		return &modalsOutput{Body: modalsResponse(p.Modals)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "close-all-page-modals",
		Method:      http.MethodPost,
		Path:        "/pages/{page_id}/modals/close-all",
		Summary:     "Close every modal (Escape)",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		PageID string `path:"page_id"`
	}) (*modalsOutput, error) {
		p, err := pages.Get(input.PageID)
		if err != nil {
			return nil, handleError(err)
		}
		p.Modals.CloseAll()
		return &modalsOutput{Body: modalsResponse(p.Modals)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "open-page-service",
		Method:      http.MethodPost,
		Path:        "/pages/{page_id}/services/{slug}/open",
		Summary:     "Show service details in the service modal",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		PageID string `path:"page_id"`
		Slug   string `path:"slug"`
	}) (*modalsOutput, error) {
		p, err := pages.Get(input.PageID)
		if err != nil {
			return nil, handleError(err)
		}
		if !p.OpenService(e.Config.Services, input.Slug) {
			return nil, newAPIError(http.StatusNotFound, "not_found", "unknown service "+input.Slug, nil)
		}
		return &modalsOutput{Body: modalsResponse(p.Modals)}, nil
	})
}
