// Package extract parses one user utterance into candidate field values for
// a flow. Three strategies are tried in order and the first that applies
// wins: label:value pairs, strict-pattern positional values, and a single
// free-text value when exactly one field is outstanding.
package extract

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/szaher/contractbot/internal/field"
	"github.com/szaher/contractbot/internal/flow"
	"github.com/szaher/contractbot/internal/validation"
)

// Strategy names, reported in Result.Strategy.
const (
	StrategyNone       = ""
	StrategyLabelValue = "label_value"
	StrategyPositional = "positional"
	StrategySingle     = "single_field"
)

// IdentifierKindAccount is the identifier kind checked for account numbers.
const IdentifierKindAccount = "account"

// IdentifierValidator checks that an identifier exists in the system of record.
type IdentifierValidator interface {
	ValidateIdentifier(ctx context.Context, kind, value string) (bool, error)
}

// Normalizer resolves a raw label to a canonical field name.
type Normalizer interface {
	Normalize(domain, token string) (field.Name, bool)
}

// FailureKind classifies a rejected value.
type FailureKind int

const (
	// FailureInvalid means the value failed its format or business check.
	FailureInvalid FailureKind = iota
	// FailureNotFound means an identifier failed the existence check.
	FailureNotFound
	// FailureLookup means the existence check itself could not run.
	FailureLookup
)

// Failure is one rejected value.
type Failure struct {
	Field   field.Name
	Value   string
	Kind    FailureKind
	Message string
}

// Result is the outcome of one extraction.
type Result struct {
	Extracted map[field.Name]string
	// Remaining are the requested fields still without a value after this
	// extraction, in definition order.
	Remaining []field.Name
	Errors    []string
	Failures  []Failure
	Strategy  string
}

// Empty reports whether nothing was extracted and nothing was rejected.
func (r *Result) Empty() bool {
	return len(r.Extracted) == 0 && len(r.Failures) == 0
}

// Extractor runs the extraction strategies.
type Extractor struct {
	norm   Normalizer
	ids    IdentifierValidator
	logger *slog.Logger
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Extractor) { e.logger = logger }
}

// New creates an Extractor. ids may be nil to skip existence checks.
func New(norm Normalizer, ids IdentifierValidator, opts ...Option) *Extractor {
	e := &Extractor{norm: norm, ids: ids, logger: slog.Default()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

var labelSeparator = regexp.MustCompile(`[:=]`)

// HasLabels reports whether input contains at least one label separator.
func HasLabels(input string) bool {
	return labelSeparator.MatchString(input)
}

// Extract parses input against def. remaining lists the fields still wanted,
// in definition order; label:value pairs may also set any other field of the
// flow, which is how users correct an earlier value.
func (e *Extractor) Extract(ctx context.Context, input string, def *flow.Definition, remaining []field.Name) Result {
	res := Result{Extracted: make(map[field.Name]string)}
	input = strings.TrimSpace(input)

	switch {
	case input == "":
	case HasLabels(input):
		res.Strategy = StrategyLabelValue
		for _, p := range LabelValuePairs(input) {
			name, ok := e.norm.Normalize(def.Type.Domain(), p.Label)
			if !ok || !def.Accepts(name) {
				e.logger.Debug("dropping unrecognized label", "flow", def.Type, "label", p.Label)
				continue
			}
			e.accept(ctx, &res, def, name, p.Value)
		}
	case def.Positional && positional(input, remaining):
		res.Strategy = StrategyPositional
		for i, tok := range splitCommas(input) {
			e.accept(ctx, &res, def, remaining[i], tok)
		}
	case len(remaining) == 1:
		res.Strategy = StrategySingle
		e.accept(ctx, &res, def, remaining[0], input)
	}

	res.Remaining = subtract(remaining, res.Extracted)
	for _, f := range res.Failures {
		res.Errors = append(res.Errors, f.Message)
	}
	return res
}

// Value validates a single candidate value for name, as if it had been
// supplied with a label.
func (e *Extractor) Value(ctx context.Context, def *flow.Definition, remaining []field.Name, name field.Name, value string) Result {
	res := Result{Extracted: make(map[field.Name]string), Strategy: StrategySingle}
	if def.Accepts(name) {
		e.accept(ctx, &res, def, name, value)
	}
	res.Remaining = subtract(remaining, res.Extracted)
	for _, f := range res.Failures {
		res.Errors = append(res.Errors, f.Message)
	}
	return res
}

func (e *Extractor) accept(ctx context.Context, res *Result, def *flow.Definition, name field.Name, raw string) {
	value, err := def.Validate(name, raw)
	if err != nil {
		res.Failures = append(res.Failures, Failure{Field: name, Value: raw, Kind: FailureInvalid, Message: err.Error()})
		return
	}

	if name.Kind() == field.KindIdentifier && e.ids != nil {
		ok, err := e.ids.ValidateIdentifier(ctx, IdentifierKindAccount, value)
		switch {
		case err != nil:
			e.logger.Warn("identifier validation failed", "field", name, "error", err)
			res.Failures = append(res.Failures, Failure{Field: name, Value: value, Kind: FailureLookup,
				Message: fmt.Sprintf("Could not verify %s %s right now, please try again", name.Display(), value)})
			return
		case !ok:
			res.Failures = append(res.Failures, Failure{Field: name, Value: value, Kind: FailureNotFound,
				Message: fmt.Sprintf("Invalid account number: %s", value)})
			return
		}
	}

	res.Extracted[name] = value
}

// Pair is a raw label and its value.
type Pair struct {
	Label string
	Value string
}

// LabelValuePairs splits input on newlines and commas, then each segment on
// its first ':' or '='. Labels are lower-cased with whitespace collapsed to
// underscores. Segments without a separator, or with an empty label or
// value, are skipped.
func LabelValuePairs(input string) []Pair {
	var pairs []Pair
	for _, line := range strings.Split(input, "\n") {
		for _, seg := range strings.Split(line, ",") {
			loc := labelSeparator.FindStringIndex(seg)
			if loc == nil {
				continue
			}
			label := strings.Join(strings.Fields(strings.ToLower(seg[:loc[0]])), "_")
			value := strings.TrimSpace(seg[loc[1]:])
			if label == "" || value == "" {
				continue
			}
			pairs = append(pairs, Pair{Label: label, Value: value})
		}
	}
	return pairs
}

func splitCommas(input string) []string {
	parts := strings.Split(input, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// positional accepts only when every comma-separated token matches the date
// pattern and their count equals the number of remaining fields.
func positional(input string, remaining []field.Name) bool {
	if len(remaining) == 0 {
		return false
	}
	tokens := splitCommas(input)
	if len(tokens) != len(remaining) {
		return false
	}
	for i, tok := range tokens {
		if remaining[i].Kind() != field.KindDate || !validation.IsDatePattern(tok) {
			return false
		}
	}
	return true
}

func subtract(remaining []field.Name, extracted map[field.Name]string) []field.Name {
	out := make([]field.Name, 0, len(remaining))
	for _, f := range remaining {
		if _, ok := extracted[f]; !ok {
			out = append(out, f)
		}
	}
	return out
}
