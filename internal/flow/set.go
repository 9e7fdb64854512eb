package flow

import (
	"context"
	"fmt"
	"sort"

	"github.com/szaher/contractbot/internal/field"
	"github.com/szaher/contractbot/internal/validation"
)

// Set is the read-only collection of flow definitions shared by all sessions.
type Set struct {
	defs map[Type]*Definition
}

// NewSet builds a Set, rejecting nil or duplicate definitions.
func NewSet(defs ...*Definition) (*Set, error) {
	s := &Set{defs: make(map[Type]*Definition, len(defs))}
	for _, d := range defs {
		if d == nil {
			return nil, fmt.Errorf("nil flow definition")
		}
		if _, dup := s.defs[d.Type]; dup {
			return nil, fmt.Errorf("duplicate flow definition %s", d.Type)
		}
		if len(d.Required) == 0 {
			return nil, fmt.Errorf("flow %s has no required fields", d.Type)
		}
		for _, f := range d.Fields() {
			if _, ok := d.Validators[f]; !ok {
				return nil, fmt.Errorf("flow %s has no validator for %s", d.Type, f)
			}
		}
		s.defs[d.Type] = d
	}
	for _, d := range s.defs {
		if d.Successor != "" && d.Successor != None {
			if _, ok := s.defs[d.Successor]; !ok {
				return nil, fmt.Errorf("flow %s names unknown successor %s", d.Type, d.Successor)
			}
		}
	}
	return s, nil
}

// Get returns the definition for t.
func (s *Set) Get(t Type) (*Definition, error) {
	d, ok := s.defs[t]
	if !ok {
		return nil, fmt.Errorf("unknown flow type %q", t)
	}
	return d, nil
}

// Types returns the defined flow types in sorted order.
func (s *Set) Types() []Type {
	out := make([]Type, 0, len(s.defs))
	for t := range s.defs {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// ContractFields is the ordered set of required contract creation fields.
var ContractFields = []field.Name{
	field.AccountNumber,
	field.ContractName,
	field.Title,
	field.Description,
	field.Comments,
	field.IsPricelist,
}

// ChecklistFields is the ordered set of checklist dates.
var ChecklistFields = []field.Name{
	field.DateOfSignature,
	field.EffectiveDate,
	field.ExpirationDate,
	field.FlowDownDate,
	field.PriceExpirationDate,
}

// ChecklistRules are the cross-date constraints of a checklist.
var ChecklistRules = []validation.RuleDef{
	{
		Name:       "expiration_after_effective",
		Expression: "EXPIRATION_DATE > EFFECTIVE_DATE",
		Field:      field.ExpirationDate,
		Message:    "Expiration Date must be after Effective Date",
	},
	{
		Name:       "expiration_after_signature",
		Expression: "EXPIRATION_DATE > DATE_OF_SIGNATURE",
		Field:      field.ExpirationDate,
		Message:    "Expiration Date must be after Date of Signature",
	},
	{
		Name:       "price_expiration_not_after_expiration",
		Expression: "PRICE_EXPIRATION_DATE <= EXPIRATION_DATE",
		Field:      field.PriceExpirationDate,
		Message:    "Price Expiration Date cannot be after Expiration Date",
	},
	{
		Name:       "flow_down_before_expiration",
		Expression: "FLOW_DOWN_DATE <= EXPIRATION_DATE",
		Field:      field.FlowDownDate,
		Message:    "Flow Down Date cannot be after Expiration Date",
	},
}

// Defaults builds the contract creation and checklist flows, both completing
// through exec.
func Defaults(v *validation.Validator, exec Executor) (*Set, error) {
	if v == nil {
		return nil, fmt.Errorf("nil validator")
	}
	if exec == nil {
		return nil, fmt.Errorf("nil executor")
	}
	action := func(ctx context.Context, req Request) (Completion, error) {
		return exec.Execute(ctx, req)
	}

	contract := &Definition{
		Type:                  ContractCreation,
		Required:              ContractFields,
		Optional:              []field.Name{field.HPPRequired},
		ConfirmBeforeComplete: true,
		Successor:             Checklist,
		OnComplete:            action,
	}
	contract.Validators = validators(v, contract.Fields())

	rules, err := validation.NewRuleSet(ChecklistFields, ChecklistRules)
	if err != nil {
		return nil, fmt.Errorf("checklist rules: %w", err)
	}
	checklist := &Definition{
		Type:       Checklist,
		Required:   ChecklistFields,
		Positional: true,
		Successor:  None,
		Rules:      rules,
		OnComplete: action,
	}
	checklist.Validators = validators(v, checklist.Fields())

	return NewSet(contract, checklist)
}

func validators(v *validation.Validator, fields []field.Name) map[field.Name]ValidatorFn {
	out := make(map[field.Name]ValidatorFn, len(fields))
	for _, f := range fields {
		name := f
		out[name] = func(value string) (string, error) {
			return v.Check(name, value)
		}
	}
	return out
}
