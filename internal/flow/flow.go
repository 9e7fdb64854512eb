// Package flow holds the declarative definitions of the data-collection
// flows: which fields each flow needs, in what order, how each value is
// validated and what happens once everything is collected.
package flow

import (
	"context"
	"fmt"

	"github.com/szaher/contractbot/internal/field"
	"github.com/szaher/contractbot/internal/validation"
)

// Type identifies a flow.
type Type string

const (
	None             Type = "NONE"
	ContractCreation Type = "CONTRACT_CREATION"
	Checklist        Type = "CHECKLIST"
)

// Domain returns the dictionary domain used to resolve labels for the flow.
func (t Type) Domain() string {
	switch t {
	case ContractCreation:
		return "contract"
	case Checklist:
		return "checklist"
	default:
		return ""
	}
}

// Noun is the user-facing name of what the flow creates.
func (t Type) Noun() string {
	switch t {
	case ContractCreation:
		return "contract"
	case Checklist:
		return "checklist"
	default:
		return "record"
	}
}

// ValidatorFn checks a raw value and returns its canonical form.
type ValidatorFn func(value string) (string, error)

// Request is handed to the completion executor once a flow is ready.
type Request struct {
	Type      Type
	SessionID string
	// ParentID links a sub-flow result to the record that preceded it.
	ParentID string
	Fields   map[field.Name]string
	// Optional holds the optional values the user chose to supply.
	Optional map[field.Name]string
}

// Completion is the executor's answer. OK false with a Message is a business
// rejection; a non-nil error from Execute is an infrastructure failure.
type Completion struct {
	ResultID string
	OK       bool
	Message  string
}

// Executor performs the side-effecting action at the end of a flow.
type Executor interface {
	Execute(ctx context.Context, req Request) (Completion, error)
}

// CompletionAction is bound to a Definition at construction.
type CompletionAction func(ctx context.Context, req Request) (Completion, error)

// Definition is an immutable description of one flow.
type Definition struct {
	Type     Type
	Required []field.Name
	Optional []field.Name
	// Positional enables strict-pattern comma-positional extraction.
	Positional bool
	// ConfirmBeforeComplete asks the user to approve a summary before
	// OnComplete runs.
	ConfirmBeforeComplete bool
	// Successor is offered, behind a yes/no question, after completion.
	Successor  Type
	Validators map[field.Name]ValidatorFn
	Rules      *validation.RuleSet
	OnComplete CompletionAction
}

// Accepts reports whether name belongs to the flow.
func (d *Definition) Accepts(name field.Name) bool {
	for _, f := range d.Required {
		if f == name {
			return true
		}
	}
	for _, f := range d.Optional {
		if f == name {
			return true
		}
	}
	return false
}

// IsOptional reports whether name is one of the flow's optional fields.
func (d *Definition) IsOptional(name field.Name) bool {
	for _, f := range d.Optional {
		if f == name {
			return true
		}
	}
	return false
}

// Fields returns required then optional fields.
func (d *Definition) Fields() []field.Name {
	out := make([]field.Name, 0, len(d.Required)+len(d.Optional))
	out = append(out, d.Required...)
	return append(out, d.Optional...)
}

// Index returns the position of name in Required, or -1.
func (d *Definition) Index(name field.Name) int {
	for i, f := range d.Required {
		if f == name {
			return i
		}
	}
	return -1
}

// Validate runs the field's validator.
func (d *Definition) Validate(name field.Name, value string) (string, error) {
	fn, ok := d.Validators[name]
	if !ok {
		return "", fmt.Errorf("flow %s has no validator for %s", d.Type, name)
	}
	return fn(value)
}

// Remaining returns the required fields without an accepted value, in
// definition order. It is always computed from collected, never cached.
func (d *Definition) Remaining(collected map[field.Name]string) []field.Name {
	var out []field.Name
	for _, f := range d.Required {
		v, ok := collected[f]
		if !ok || v == "" {
			out = append(out, f)
			continue
		}
		if _, err := d.Validate(f, v); err != nil {
			out = append(out, f)
		}
	}
	return out
}

// Complete invokes the completion action.
func (d *Definition) Complete(ctx context.Context, req Request) (Completion, error) {
	if d.OnComplete == nil {
		return Completion{}, fmt.Errorf("flow %s has no completion action", d.Type)
	}
	req.Type = d.Type
	return d.OnComplete(ctx, req)
}
