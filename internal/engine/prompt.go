package engine

import (
	"fmt"
	"strings"

	"github.com/szaher/contractbot/internal/field"
	"github.com/szaher/contractbot/internal/flow"
	"github.com/szaher/contractbot/internal/session"
)

const startHint = `Say "create contract" to start a new contract.`

const generalHelp = `I collect the details needed to create a contract, and then its checklist.
Say "create contract" to begin, or "create checklist" to add a checklist to the contract you just created.
While a flow is running you can reply with label: value pairs, say help to see what is missing, or say cancel to stop.`

// ask names the fields still needed, in definition order, and the ones
// already accepted.
func (e *Engine) ask(def *flow.Definition, s *session.Session, remaining []field.Name) string {
	var b strings.Builder
	if got := received(def, s); got != "" {
		b.WriteString("Received so far: ")
		b.WriteString(got)
		b.WriteString("\n")
	}
	switch len(remaining) {
	case 0:
		b.WriteString("I have everything I need.")
	case 1:
		fmt.Fprintf(&b, "Please provide the %s%s.", remaining[0].Display(), hint(remaining[0]))
	default:
		b.WriteString("Please provide the following:")
		for _, f := range remaining {
			fmt.Fprintf(&b, "\n- %s%s", f.Display(), hint(f))
		}
		if def.Positional {
			b.WriteString("\nYou can send all the dates at once, separated by commas, in the order listed.")
		} else {
			fmt.Fprintf(&b, "\nUse label: value pairs, for example %q.", example(remaining))
		}
	}
	return b.String()
}

func received(def *flow.Definition, s *session.Session) string {
	var parts []string
	for _, f := range def.Fields() {
		if v, ok := s.Value(f); ok && v != "" {
			parts = append(parts, fmt.Sprintf("%s: %s", f.Display(), v))
		}
	}
	return strings.Join(parts, ", ")
}

func hint(f field.Name) string {
	switch f.Kind() {
	case field.KindDate:
		return " (MM/DD/YY)"
	case field.KindYesNo:
		return " (yes/no)"
	case field.KindIdentifier:
		return " (at least 6 digits)"
	default:
		return ""
	}
}

func example(remaining []field.Name) string {
	f := remaining[0]
	var v string
	switch f.Kind() {
	case field.KindIdentifier:
		v = "123456"
	case field.KindDate:
		v = "01/31/25"
	case field.KindYesNo:
		v = "yes"
	default:
		v = "..."
	}
	return strings.ToLower(f.Display()) + ": " + v
}

// summary lists every collected value for the confirmation question.
func summary(def *flow.Definition, s *session.Session) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Please review the %s details:", def.Type.Noun())
	for _, f := range def.Fields() {
		if v, ok := s.Value(f); ok {
			fmt.Fprintf(&b, "\n- %s: %s", f.Display(), v)
		}
	}
	return b.String()
}

func confirmQuestion(def *flow.Definition) string {
	return fmt.Sprintf("Reply yes to create the %s, no to make changes, or send label: value corrections.", def.Type.Noun())
}

func successorQuestion(def *flow.Definition) string {
	return fmt.Sprintf("Would you like to create a %s for it now? (yes/no)", def.Successor.Noun())
}

func flowHelp(def *flow.Definition) string {
	var b strings.Builder
	fmt.Fprintf(&b, "To create a %s I need:", def.Type.Noun())
	for _, f := range def.Required {
		fmt.Fprintf(&b, "\n- %s%s", f.Display(), hint(f))
	}
	if len(def.Optional) > 0 {
		b.WriteString("\nOptional:")
		for _, f := range def.Optional {
			fmt.Fprintf(&b, "\n- %s%s", f.Display(), hint(f))
		}
	}
	b.WriteString("\nSay cancel at any time to stop.")
	return b.String()
}
