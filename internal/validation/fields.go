// Package validation implements the per-field format checks and the
// cross-field business rules applied to collected values. Field checks are
// pure functions of the value and the injected clock; business rules are
// expressions evaluated with the expression engine.
package validation

import (
	"fmt"
	"strings"
	"time"

	"github.com/szaher/contractbot/internal/field"
)

// MinAccountDigits is the minimum number of digits in an account number.
const MinAccountDigits = 6

// maxTextLength bounds free-text fields to the width of the stored columns.
const maxTextLength = 255

// FieldError describes why a value was rejected for a field.
type FieldError struct {
	Field   field.Name
	Value   string
	Message string
}

func (e *FieldError) Error() string {
	return e.Message
}

// Validator checks individual field values.
type Validator struct {
	now func() time.Time
}

// Option configures a Validator.
type Option func(*Validator)

// WithClock sets the clock used for past/future date checks.
func WithClock(now func() time.Time) Option {
	return func(v *Validator) { v.now = now }
}

// New creates a Validator.
func New(opts ...Option) *Validator {
	v := &Validator{now: time.Now}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Validate reports whether value is acceptable for name, with a message
// explaining the rejection.
func (v *Validator) Validate(name field.Name, value string) (bool, string) {
	if _, err := v.Check(name, value); err != nil {
		return false, err.Error()
	}
	return true, ""
}

// Check validates value for name and returns its canonical form: digits only
// for identifiers, MM/DD/YY for dates, Yes/No for yes/no fields and the
// trimmed text otherwise. A rejection is returned as *FieldError.
func (v *Validator) Check(name field.Name, value string) (string, error) {
	value = strings.TrimSpace(value)
	switch name.Kind() {
	case field.KindIdentifier:
		return v.checkAccount(name, value)
	case field.KindDate:
		return v.checkDate(name, value)
	case field.KindYesNo:
		b, ok := ParseYesNo(value)
		if !ok {
			return "", &FieldError{Field: name, Value: value,
				Message: fmt.Sprintf("%s must be yes or no, got %q", name.Display(), value)}
		}
		return FormatYesNo(b), nil
	default:
		if value == "" {
			return "", &FieldError{Field: name, Value: value,
				Message: fmt.Sprintf("%s cannot be empty", name.Display())}
		}
		if len(value) > maxTextLength {
			return "", &FieldError{Field: name, Value: value,
				Message: fmt.Sprintf("%s must be at most %d characters", name.Display(), maxTextLength)}
		}
		return value, nil
	}
}

func (v *Validator) checkAccount(name field.Name, value string) (string, error) {
	digits := Digits(value)
	if len(digits) < MinAccountDigits {
		return "", &FieldError{Field: name, Value: value,
			Message: fmt.Sprintf("%s must contain at least %d digits, got %q", name.Display(), MinAccountDigits, value)}
	}
	return digits, nil
}

func (v *Validator) checkDate(name field.Name, value string) (string, error) {
	t, err := ParseDate(value)
	if err != nil {
		return "", &FieldError{Field: name, Value: value,
			Message: fmt.Sprintf("Invalid date for %s: %q (expected MM/DD/YY)", name.Display(), value)}
	}
	today := truncateDay(v.now())
	switch name {
	case field.DateOfSignature:
		if t.After(today) {
			return "", &FieldError{Field: name, Value: value,
				Message: fmt.Sprintf("%s cannot be in the future: %s", name.Display(), FormatDate(t))}
		}
	default:
		if t.Before(today) {
			return "", &FieldError{Field: name, Value: value,
				Message: fmt.Sprintf("%s cannot be in the past: %s", name.Display(), FormatDate(t))}
		}
	}
	return FormatDate(t), nil
}

// Digits strips every non-digit rune from s.
func Digits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
