package flow

import (
	"github.com/szaher/contractbot/internal/field"
	"github.com/szaher/contractbot/internal/validation"
)

// FieldInfo describes one field of a flow.
type FieldInfo struct {
	Name     field.Name `json:"name" yaml:"name"`
	Display  string     `json:"display" yaml:"display"`
	Kind     string     `json:"kind" yaml:"kind"`
	Required bool       `json:"required" yaml:"required"`
}

// Description is the public shape of a Definition.
type Description struct {
	Type                  Type                 `json:"type" yaml:"type"`
	Fields                []FieldInfo          `json:"fields" yaml:"fields"`
	Positional            bool                 `json:"positional" yaml:"positional"`
	ConfirmBeforeComplete bool                 `json:"confirm_before_complete" yaml:"confirm_before_complete"`
	Successor             Type                 `json:"successor,omitempty" yaml:"successor,omitempty"`
	Rules                 []validation.RuleDef `json:"rules,omitempty" yaml:"rules,omitempty"`
}

// Describe returns the public description of d.
func (d *Definition) Describe() Description {
	desc := Description{
		Type:                  d.Type,
		Positional:            d.Positional,
		ConfirmBeforeComplete: d.ConfirmBeforeComplete,
		Rules:                 d.Rules.Defs(),
	}
	if d.Successor != None {
		desc.Successor = d.Successor
	}
	for _, f := range d.Required {
		desc.Fields = append(desc.Fields, FieldInfo{Name: f, Display: f.Display(), Kind: f.Kind().String(), Required: true})
	}
	for _, f := range d.Optional {
		desc.Fields = append(desc.Fields, FieldInfo{Name: f, Display: f.Display(), Kind: f.Kind().String()})
	}
	return desc
}

// Describe returns descriptions of every flow in type order.
func (s *Set) Describe() []Description {
	var out []Description
	for _, t := range s.Types() {
		d, err := s.Get(t)
		if err != nil {
			continue
		}
		out = append(out, d.Describe())
	}
	return out
}
