package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"siteforms/internal/engine"
	"siteforms/internal/forms"
	"siteforms/internal/i18n"
)

// buildForm creates a fresh form from the site definition and applies the
// request values. Consent is ignored for forms without a consent box.
func buildForm(e engine.Engine, name string, req FormValuesRequest) (*forms.Form, error) {
	if _, ok := e.Config.Forms[name]; !ok {
		return nil, fmt.Errorf("%w: %s", forms.ErrUnknownForm, name)
	}
	f := forms.NewForm(e.Config.FormDefinition(name))
	for field, value := range req.Values {
		if err := f.Set(field, value); err != nil {
			return nil, err
		}
	}
	if req.Consent != nil {
		if _, present := f.Consent(); present {
			_ = f.SetConsent(*req.Consent)
		}
	}
	return f, nil
}

func siteManager(e engine.Engine, acceptLanguage string, logger *slog.Logger) (*forms.Manager, error) {
	rules, err := e.Config.Rules()
	if err != nil {
		return nil, err
	}
	if acceptLanguage == "" {
		acceptLanguage = e.Config.Site.Locale
	}
	return forms.NewManager(forms.Options{
		Rules:           &rules,
		Transport:       e,
		Logger:          logger,
		Language:        i18n.Match(acceptLanguage),
		SuccessTTL:      e.Config.Timing.SuccessTTL,
		ModalCloseDelay: e.Config.Timing.ModalCloseDelay,
	}), nil
}

// validateAll runs field validation on every field and form validation on
// the whole form. A banner left over from an earlier run is only reported
// while the form is still invalid.
func validateAll(m *forms.Manager, f *forms.Form) ValidationResponse {
	resp := ValidationResponse{Fields: map[string]forms.ValidationResult{}}
	for _, field := range f.Fields() {
		resp.Fields[field.Name] = m.ValidateField(field)
	}
	resp.Valid = m.ValidateForm(f)
	if msg := f.Message(); !resp.Valid && msg.Visible && msg.Kind == forms.MessageError {
		resp.Message = msg.Text
	}
	return resp
}

func registerForms(api huma.API, e engine.Engine, logger *slog.Logger) {
	huma.Register(api, huma.Operation{
		OperationID: "list-forms",
		Method:      http.MethodGet,
		Path:        "/forms",
		Summary:     "List form definitions",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []forms.Definition `json:"body"`
	}, error) {
		return &struct {
			Body []forms.Definition `json:"body"`
		}{Body: nonNilSlice(e.Config.FormDefinitions())}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-form",
		Method:      http.MethodGet,
		Path:        "/forms/{form}",
		Summary:     "Get a form definition",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		Form string `path:"form"`
	}) (*struct {
		Body forms.Definition `json:"body"`
	}, error) {
		if _, ok := e.Config.Forms[input.Form]; !ok {
			return nil, handleError(fmt.Errorf("%w: %s", forms.ErrUnknownForm, input.Form))
		}
		return &struct {
			Body forms.Definition `json:"body"`
		}{Body: e.Config.FormDefinition(input.Form)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "validate-form",
		Method:      http.MethodPost,
		Path:        "/forms/{form}/validate",
		Summary:     "Validate values without submitting",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		Form           string            `path:"form"`
		AcceptLanguage string            `header:"Accept-Language"`
		Body           FormValuesRequest `json:"body"`
	}) (*struct {
		Body ValidationResponse `json:"body"`
	}, error) {
		f, err := buildForm(e, input.Form, input.Body)
		if err != nil {
			return nil, handleError(err)
		}
		m, err := siteManager(e, input.AcceptLanguage, logger)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ValidationResponse `json:"body"`
		}{Body: validateAll(m, f)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "submit-form",
		Method:      http.MethodPost,
		Path:        "/forms/{form}/submissions",
		Summary:     "Validate and submit a form in one request",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		Form           string            `path:"form"`
		AcceptLanguage string            `header:"Accept-Language"`
		Body           FormValuesRequest `json:"body"`
	}) (*struct {
		Body SubmitResponse `json:"body"`
	}, error) {
		f, err := buildForm(e, input.Form, input.Body)
		if err != nil {
			return nil, handleError(err)
		}
		m, err := siteManager(e, input.AcceptLanguage, logger)
		if err != nil {
			return nil, handleError(err)
		}
		out, err := m.Submit(ctx, f)
		if errors.Is(err, forms.ErrValidation) {
			return nil, validationError(f)
		}
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body SubmitResponse `json:"body"`
		}{Body: SubmitResponse{Outcome: *out}}, nil
	})
}
