package forms

import (
	"fmt"
	"strings"
	"sync"
)

// Placement tells the manager where a form lives on the page. Inline forms
// stay visible after a successful submission; modal forms close their modal.
type Placement string

const (
	PlacementInline Placement = "inline"
	PlacementModal  Placement = "modal"
)

// Definition declares a form: its fields in display order, whether it carries
// a consent checkbox and where it is placed.
type Definition struct {
	Name        string    `json:"name"`
	Placement   Placement `json:"placement"`
	Modal       string    `json:"modal,omitempty"`
	SubmitLabel string    `json:"submit_label"`
	Consent     bool      `json:"consent"`
	Fields      []Field   `json:"fields"`
}

// ModalName is the modal a modal-placed form closes. It defaults to the form
// name.
func (d Definition) ModalName() string {
	if d.Placement != PlacementModal {
		return ""
	}
	if d.Modal != "" {
		return d.Modal
	}
	return d.Name
}

// Validate checks the definition is usable.
func (d Definition) Validate() error {
	if strings.TrimSpace(d.Name) == "" {
		return fmt.Errorf("form name is required")
	}
	switch d.Placement {
	case PlacementInline, PlacementModal:
	default:
		return fmt.Errorf("form %s: invalid placement %q", d.Name, d.Placement)
	}
	seen := make(map[string]struct{}, len(d.Fields))
	for _, f := range d.Fields {
		if strings.TrimSpace(f.Name) == "" {
			return fmt.Errorf("form %s: field name is required", d.Name)
		}
		if !f.Type.Valid() {
			return fmt.Errorf("form %s: field %s has invalid type %q", d.Name, f.Name, f.Type)
		}
		if _, dup := seen[f.Name]; dup {
			return fmt.Errorf("form %s: duplicate field %s", d.Name, f.Name)
		}
		seen[f.Name] = struct{}{}
	}
	return nil
}

// MessageKind styles the form-level message.
type MessageKind string

const (
	MessageSuccess MessageKind = "success"
	MessageError   MessageKind = "error"
)

// Message is the form's message area.
type Message struct {
	Kind    MessageKind `json:"kind,omitempty"`
	Text    string      `json:"text,omitempty"`
	Visible bool        `json:"visible"`
}

// FieldState is a field plus its current error decoration.
type FieldState struct {
	Field
	Error string `json:"error,omitempty"`
}

// State is a point-in-time copy of a form.
type State struct {
	Name        string       `json:"name"`
	Fields      []FieldState `json:"fields"`
	Consent     *bool        `json:"consent,omitempty"`
	Message     Message      `json:"message"`
	Submitting  bool         `json:"submitting"`
	SubmitLabel string       `json:"submit_label"`
}

// Form is a live form instance. All methods are safe for concurrent use.
type Form struct {
	def Definition

	mu          sync.Mutex
	fields      []Field
	index       map[string]int
	consent     *bool
	errors      map[string]string
	message     Message
	messageSeq  uint64
	submitting  bool
	submitLabel string
}

// NewForm builds an empty form from its definition. Initial values in the
// definition are kept.
func NewForm(def Definition) *Form {
	f := &Form{
		def:         def,
		fields:      make([]Field, len(def.Fields)),
		index:       make(map[string]int, len(def.Fields)),
		errors:      make(map[string]string),
		submitLabel: def.SubmitLabel,
	}
	copy(f.fields, def.Fields)
	for i, field := range f.fields {
		f.index[field.Name] = i
	}
	if def.Consent {
		unchecked := false
		f.consent = &unchecked
	}
	return f
}

// Name returns the form identity.
func (f *Form) Name() string { return f.def.Name }

// Definition returns the declaration the form was built from.
func (f *Form) Definition() Definition { return f.def }

// Field returns a copy of the named field.
func (f *Form) Field(name string) (Field, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i, ok := f.index[name]
	if !ok {
		return Field{}, false
	}
	return f.fields[i], true
}

// Fields returns a copy of all fields in order.
func (f *Form) Fields() []Field {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Field, len(f.fields))
	copy(out, f.fields)
	return out
}

// Set writes a field value and clears that field's error decoration, the way
// typing into an input does. The form-level message is left alone.
func (f *Form) Set(name, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	i, ok := f.index[name]
	if !ok {
		return fmt.Errorf("%w: %s.%s", ErrUnknownField, f.def.Name, name)
	}
	f.fields[i].Value = value
	delete(f.errors, name)
	return nil
}

// SetConsent checks or unchecks the consent box.
func (f *Form) SetConsent(checked bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.consent == nil {
		return fmt.Errorf("%w: %s", ErrNoConsent, f.def.Name)
	}
	*f.consent = checked
	return nil
}

// Consent reports the consent box state; present is false when the form has
// none.
func (f *Form) Consent() (checked, present bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.consent == nil {
		return false, false
	}
	return *f.consent, true
}

// Values captures the field values as a name to value mapping.
func (f *Form) Values() map[string]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]string, len(f.fields))
	for _, field := range f.fields {
		out[field.Name] = field.Value
	}
	return out
}

// FieldError returns the error currently shown for a field.
func (f *Form) FieldError(name string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.errors[name]
}

// FieldErrors returns all visible field errors.
func (f *Form) FieldErrors() map[string]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.errors) == 0 {
		return nil
	}
	out := make(map[string]string, len(f.errors))
	for k, v := range f.errors {
		out[k] = v
	}
	return out
}

// Message returns the form-level message.
func (f *Form) Message() Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.message
}

// Submitting reports whether the submit control is disabled.
func (f *Form) Submitting() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.submitting
}

// SubmitLabel returns the current label of the submit control.
func (f *Form) SubmitLabel() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.submitLabel
}

// Snapshot copies the whole form state.
func (f *Form) Snapshot() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	st := State{
		Name:        f.def.Name,
		Fields:      make([]FieldState, len(f.fields)),
		Message:     f.message,
		Submitting:  f.submitting,
		SubmitLabel: f.submitLabel,
	}
	for i, field := range f.fields {
		st.Fields[i] = FieldState{Field: field, Error: f.errors[field.Name]}
	}
	if f.consent != nil {
		checked := *f.consent
		st.Consent = &checked
	}
	return st
}

func (f *Form) decorate(name string, res ValidationResult) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if res.Valid {
		delete(f.errors, name)
		return
	}
	f.errors[name] = res.Reason
}

func (f *Form) showMessage(kind MessageKind, text string) uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messageSeq++
	f.message = Message{Kind: kind, Text: text, Visible: true}
	return f.messageSeq
}

// hideMessage hides the message only if it is still the one shown as seq.
func (f *Form) hideMessage(seq uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.messageSeq != seq {
		return
	}
	f.message.Visible = false
}

func (f *Form) clearMessage() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messageSeq++
	f.message = Message{}
}

// begin disables the submit control. It returns the label to restore and
// false if a submission is already in flight.
func (f *Form) begin(sending string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.submitting {
		return "", false
	}
	original := f.submitLabel
	f.submitting = true
	f.submitLabel = sending
	return original, true
}

func (f *Form) end(label string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submitting = false
	f.submitLabel = label
}

// reset clears values, decorations and the consent box.
func (f *Form) reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.fields {
		f.fields[i].Value = ""
	}
	f.errors = make(map[string]string)
	if f.consent != nil {
		*f.consent = false
	}
}
