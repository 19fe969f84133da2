package forms

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"siteforms/internal/i18n"
)

var (
	ErrValidation         = errors.New("validation failed")
	ErrSubmissionInFlight = errors.New("submission in flight")
	ErrUnknownForm        = errors.New("unknown form")
	ErrUnknownField       = errors.New("unknown field")
	ErrNoConsent          = errors.New("form has no consent checkbox")
)

const (
	DefaultSuccessTTL      = 5 * time.Second
	DefaultModalCloseDelay = 2 * time.Second
)

// ModalCloser closes the modal enclosing a form after a successful submission.
type ModalCloser interface {
	Close(name string)
}

// Outcome is the result of a submit attempt that reached the transport.
type Outcome struct {
	Success    bool              `json:"success"`
	Message    string            `json:"message"`
	ReceiptID  string            `json:"receipt_id,omitempty"`
	Values     map[string]string `json:"values,omitempty"`
	CloseModal string            `json:"close_modal,omitempty"`
}

type Options struct {
	Rules           *Rules
	Transport       Transport
	Modals          ModalCloser
	Clock           Clock
	Logger          *slog.Logger
	Language        language.Tag
	SuccessTTL      time.Duration
	ModalCloseDelay time.Duration
}

// Manager owns validation rules and the submit lifecycle for the forms
// registered on one page.
type Manager struct {
	rules      Rules
	transport  Transport
	modals     ModalCloser
	clock      Clock
	logger     *slog.Logger
	printer    *message.Printer
	successTTL time.Duration
	closeDelay time.Duration

	mu    sync.RWMutex
	forms map[string]*Form
}

func NewManager(opts Options) *Manager {
	m := &Manager{
		rules:      DefaultRules(),
		transport:  opts.Transport,
		modals:     opts.Modals,
		clock:      opts.Clock,
		logger:     opts.Logger,
		printer:    i18n.Printer(opts.Language),
		successTTL: opts.SuccessTTL,
		closeDelay: opts.ModalCloseDelay,
		forms:      make(map[string]*Form),
	}
	if opts.Rules != nil {
		m.rules = *opts.Rules
	}
	if m.clock == nil {
		m.clock = SystemClock()
	}
	if m.logger == nil {
		m.logger = slog.Default()
	}
	if m.transport == nil {
		m.transport = &SimulatedTransport{Clock: m.clock, Logger: m.logger}
	}
	if m.successTTL <= 0 {
		m.successTTL = DefaultSuccessTTL
	}
	if m.closeDelay <= 0 {
		m.closeDelay = DefaultModalCloseDelay
	}
	return m
}

// Register binds a form under name. A nil form is ignored and reported as not
// registered; an empty name falls back to the form's own name.
func (m *Manager) Register(name string, f *Form) bool {
	if f == nil {
		return false
	}
	if name == "" {
		name = f.Name()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.forms[name] = f
	return true
}

func (m *Manager) Form(name string) (*Form, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	f, ok := m.forms[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownForm, name)
	}
	return f, nil
}

// Names lists registered forms in lexical order.
func (m *Manager) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.forms))
	for name := range m.forms {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (m *Manager) text(key string) string {
	return m.printer.Sprintf(key)
}

// ValidateField checks a single field. It has no side effects.
func (m *Manager) ValidateField(field Field) ValidationResult {
	key := m.rules.check(field)
	if key == "" {
		return ValidationResult{Valid: true}
	}
	return ValidationResult{Valid: false, Reason: m.text(key)}
}

// Input sets a field value and clears its error decoration.
func (m *Manager) Input(f *Form, name, value string) error {
	return f.Set(name, value)
}

// Blur validates the named field and decorates the form with the result.
func (m *Manager) Blur(f *Form, name string) (ValidationResult, error) {
	field, ok := f.Field(name)
	if !ok {
		return ValidationResult{}, fmt.Errorf("%w: %s.%s", ErrUnknownField, f.Name(), name)
	}
	res := m.ValidateField(field)
	f.decorate(name, res)
	return res, nil
}

// ValidateForm validates every required field without stopping at the first
// failure, then checks the consent box if the form has one.
func (m *Manager) ValidateForm(f *Form) bool {
	valid := true
	for _, field := range f.Fields() {
		if !field.Required {
			continue
		}
		res := m.ValidateField(field)
		f.decorate(field.Name, res)
		if !res.Valid {
			valid = false
		}
	}
	if checked, present := f.Consent(); present && !checked {
		f.showMessage(MessageError, m.text(i18n.ConsentRequired))
		valid = false
	}
	return valid
}

// Submit runs the submit lifecycle for f. A form that fails validation
// returns ErrValidation without touching the transport. Transport failures
// are logged and reported as an unsuccessful Outcome with a nil error.
func (m *Manager) Submit(ctx context.Context, f *Form) (*Outcome, error) {
	if f == nil {
		return nil, ErrUnknownForm
	}
	if f.Submitting() {
		return nil, fmt.Errorf("%w: %s", ErrSubmissionInFlight, f.Name())
	}
	f.clearMessage()
	if !m.ValidateForm(f) {
		return nil, fmt.Errorf("%w: %s", ErrValidation, f.Name())
	}

	label, ok := f.begin(m.text(i18n.Sending))
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSubmissionInFlight, f.Name())
	}
	defer f.end(label)

	values := f.Values()
	receipt, err := m.transport.Submit(ctx, f.Name(), values)
	if err != nil {
		m.logger.Error("form submission failed", "form", f.Name(), "err", err)
		text := m.text(i18n.SubmitFailure)
		f.showMessage(MessageError, text)
		return &Outcome{Success: false, Message: text}, nil
	}

	f.reset()
	text := m.text(i18n.SubmitSuccess)
	seq := f.showMessage(MessageSuccess, text)
	m.clock.AfterFunc(m.successTTL, func() { f.hideMessage(seq) })

	out := &Outcome{
		Success:   true,
		Message:   text,
		ReceiptID: receipt.ID,
		Values:    values,
	}
	if modal := f.Definition().ModalName(); modal != "" {
		out.CloseModal = modal
		if m.modals != nil {
			m.clock.AfterFunc(m.closeDelay, func() { m.modals.Close(modal) })
		}
	}
	m.logger.Info("form submitted", "form", f.Name(), "receipt", receipt.ID)
	return out, nil
}
