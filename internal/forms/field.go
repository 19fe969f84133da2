package forms

import (
	"fmt"
	"regexp"
	"strings"

	"siteforms/internal/i18n"
)

// FieldType is the input kind a field was declared with.
type FieldType string

const (
	FieldText     FieldType = "text"
	FieldEmail    FieldType = "email"
	FieldTel      FieldType = "tel"
	FieldTextarea FieldType = "textarea"
	FieldSelect   FieldType = "select"
	FieldCheckbox FieldType = "checkbox"
)

// Valid reports whether t is one of the known field types.
func (t FieldType) Valid() bool {
	switch t {
	case FieldText, FieldEmail, FieldTel, FieldTextarea, FieldSelect, FieldCheckbox:
		return true
	default:
		return false
	}
}

// Field is a single named input within a form.
type Field struct {
	Name     string    `json:"name"`
	Type     FieldType `json:"type"`
	Required bool      `json:"required"`
	Label    string    `json:"label,omitempty"`
	Value    string    `json:"value"`
}

// ValidationResult is the outcome of checking one field.
type ValidationResult struct {
	Valid  bool   `json:"valid"`
	Reason string `json:"reason,omitempty"`
}

const (
	DefaultEmailPattern = `^[^\s@]+@[^\s@]+\.[^\s@]+$`
	DefaultPhonePattern = `^(\+90|0)?5[0-9]{9}$`
)

// Rules holds the patterns used for typed fields.
type Rules struct {
	Email *regexp.Regexp
	Phone *regexp.Regexp
}

// DefaultRules returns the email pattern and the Turkish mobile pattern.
func DefaultRules() Rules {
	return Rules{
		Email: regexp.MustCompile(DefaultEmailPattern),
		Phone: regexp.MustCompile(DefaultPhonePattern),
	}
}

// NewRules compiles a phone pattern on top of the default email rule. An empty
// pattern keeps the default.
func NewRules(phonePattern string) (Rules, error) {
	rules := DefaultRules()
	if strings.TrimSpace(phonePattern) == "" {
		return rules, nil
	}
	re, err := regexp.Compile(phonePattern)
	if err != nil {
		return Rules{}, fmt.Errorf("invalid phone pattern: %w", err)
	}
	rules.Phone = re
	return rules, nil
}

// check returns the catalog key of the first failing rule, or "" when the
// field is valid. Required runs before the typed patterns.
func (r Rules) check(f Field) string {
	value := strings.TrimSpace(f.Value)
	if f.Required && value == "" {
		return i18n.FieldRequired
	}
	if value == "" {
		return ""
	}
	switch f.Type {
	case FieldEmail:
		if r.Email != nil && !r.Email.MatchString(value) {
			return i18n.InvalidEmail
		}
	case FieldTel:
		if r.Phone != nil && !r.Phone.MatchString(value) {
			return i18n.InvalidPhone
		}
	}
	return ""
}
