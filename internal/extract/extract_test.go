package extract

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/szaher/contractbot/internal/dictionary"
	"github.com/szaher/contractbot/internal/field"
	"github.com/szaher/contractbot/internal/flow"
	"github.com/szaher/contractbot/internal/normalize"
	"github.com/szaher/contractbot/internal/validation"
)

type fakeIDs struct {
	known map[string]bool
	err   error
	calls int
}

func (f *fakeIDs) ValidateIdentifier(_ context.Context, kind, value string) (bool, error) {
	f.calls++
	if kind != IdentifierKindAccount {
		return false, errors.New("unexpected kind " + kind)
	}
	if f.err != nil {
		return false, f.err
	}
	return f.known[value], nil
}

type nopExecutor struct{}

func (nopExecutor) Execute(context.Context, flow.Request) (flow.Completion, error) {
	return flow.Completion{OK: true}, nil
}

func setup(t *testing.T, ids IdentifierValidator) (*Extractor, *flow.Set) {
	t.Helper()
	dict, err := dictionary.Default()
	if err != nil {
		t.Fatalf("dictionary: %v", err)
	}
	v := validation.New(validation.WithClock(func() time.Time {
		return time.Date(2024, 1, 15, 9, 0, 0, 0, time.UTC)
	}))
	set, err := flow.Defaults(v, nopExecutor{})
	if err != nil {
		t.Fatalf("flows: %v", err)
	}
	return New(normalize.New(dict, dict), ids), set
}

func TestLabelValuePairs(t *testing.T) {
	got := LabelValuePairs("Contract  Name: Acme Deal, account=1234567\ncomments: none, junk, : empty, title:")
	want := []Pair{
		{Label: "contract_name", Value: "Acme Deal"},
		{Label: "account", Value: "1234567"},
		{Label: "comments", Value: "none"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("LabelValuePairs = %+v, want %+v", got, want)
	}
}

func TestExtractFullContractLabels(t *testing.T) {
	ids := &fakeIDs{known: map[string]bool{"1234567": true}}
	ex, set := setup(t, ids)
	def, _ := set.Get(flow.ContractCreation)

	input := "contract name: Acme Deal, account: 1234567, title: Renewal, description: Yearly renewal, comments: none, pricelist: no"
	res := ex.Extract(context.Background(), input, def, def.Remaining(nil))

	if res.Strategy != StrategyLabelValue {
		t.Errorf("Strategy = %q, want %q", res.Strategy, StrategyLabelValue)
	}
	if len(res.Errors) != 0 {
		t.Fatalf("unexpected errors: %v", res.Errors)
	}
	if len(res.Remaining) != 0 {
		t.Errorf("Remaining = %v, want empty", res.Remaining)
	}
	want := map[field.Name]string{
		field.ContractName:  "Acme Deal",
		field.AccountNumber: "1234567",
		field.Title:         "Renewal",
		field.Description:   "Yearly renewal",
		field.Comments:      "none",
		field.IsPricelist:   "No",
	}
	if !reflect.DeepEqual(res.Extracted, want) {
		t.Errorf("Extracted = %v, want %v", res.Extracted, want)
	}
	if ids.calls != 1 {
		t.Errorf("identifier checks = %d, want 1", ids.calls)
	}
}

func TestExtractIdempotent(t *testing.T) {
	ex, set := setup(t, nil)
	def, _ := set.Get(flow.ContractCreation)
	input := "acct: 555-1234, name: Acme, commenst: n/a"
	a := ex.Extract(context.Background(), input, def, def.Remaining(nil))
	b := ex.Extract(context.Background(), input, def, def.Remaining(nil))
	if !reflect.DeepEqual(a.Extracted, b.Extracted) {
		t.Errorf("extractions differ: %v vs %v", a.Extracted, b.Extracted)
	}
	if a.Extracted[field.AccountNumber] != "5551234" || a.Extracted[field.Comments] != "n/a" {
		t.Errorf("Extracted = %v", a.Extracted)
	}
}

func TestExtractUnknownLabelsDropped(t *testing.T) {
	ex, set := setup(t, nil)
	def, _ := set.Get(flow.ContractCreation)
	res := ex.Extract(context.Background(), "favourite colour: blue, title: Renewal", def, def.Remaining(nil))
	if len(res.Errors) != 0 {
		t.Fatalf("unknown labels should not produce errors: %v", res.Errors)
	}
	if len(res.Extracted) != 1 || res.Extracted[field.Title] != "Renewal" {
		t.Errorf("Extracted = %v", res.Extracted)
	}
}

func TestExtractAccountNotFound(t *testing.T) {
	ids := &fakeIDs{known: map[string]bool{}}
	ex, set := setup(t, ids)
	def, _ := set.Get(flow.ContractCreation)
	res := ex.Extract(context.Background(), "account: 999999, title: X", def, def.Remaining(nil))

	if _, ok := res.Extracted[field.AccountNumber]; ok {
		t.Error("unknown account must not be extracted")
	}
	if len(res.Failures) != 1 || res.Failures[0].Kind != FailureNotFound {
		t.Fatalf("Failures = %+v", res.Failures)
	}
	if res.Errors[0] != "Invalid account number: 999999" {
		t.Errorf("Errors[0] = %q", res.Errors[0])
	}
	if res.Remaining[0] != field.AccountNumber {
		t.Errorf("Remaining = %v, account should still be first", res.Remaining)
	}
}

func TestExtractAccountLookupError(t *testing.T) {
	ex, set := setup(t, &fakeIDs{err: errors.New("db down")})
	def, _ := set.Get(flow.ContractCreation)
	res := ex.Extract(context.Background(), "account: 123456", def, def.Remaining(nil))
	if len(res.Failures) != 1 || res.Failures[0].Kind != FailureLookup {
		t.Fatalf("Failures = %+v", res.Failures)
	}
}

func TestExtractPositionalDates(t *testing.T) {
	ex, set := setup(t, nil)
	def, _ := set.Get(flow.Checklist)
	res := ex.Extract(context.Background(), "01/15/24, 02/01/24, 12/31/25, 03/01/24, 06/30/25", def, def.Remaining(nil))

	if res.Strategy != StrategyPositional {
		t.Fatalf("Strategy = %q, want %q", res.Strategy, StrategyPositional)
	}
	if len(res.Errors) != 0 {
		t.Fatalf("unexpected errors: %v", res.Errors)
	}
	want := map[field.Name]string{
		field.DateOfSignature:     "01/15/24",
		field.EffectiveDate:       "02/01/24",
		field.ExpirationDate:      "12/31/25",
		field.FlowDownDate:        "03/01/24",
		field.PriceExpirationDate: "06/30/25",
	}
	if !reflect.DeepEqual(res.Extracted, want) {
		t.Errorf("Extracted = %v, want %v", res.Extracted, want)
	}
}

func TestExtractPositionalCountMismatch(t *testing.T) {
	ex, set := setup(t, nil)
	def, _ := set.Get(flow.Checklist)
	res := ex.Extract(context.Background(), "01/15/24, 02/01/24", def, def.Remaining(nil))
	if !res.Empty() || res.Strategy != StrategyNone {
		t.Errorf("expected no extraction, got %+v", res)
	}
}

func TestExtractPositionalNotForContracts(t *testing.T) {
	ex, set := setup(t, nil)
	def, _ := set.Get(flow.ContractCreation)
	remaining := []field.Name{field.Title, field.Description}
	res := ex.Extract(context.Background(), "Renewal, Yearly", def, remaining)
	if !res.Empty() {
		t.Errorf("expected no extraction, got %+v", res.Extracted)
	}
}

func TestExtractSingleField(t *testing.T) {
	ex, set := setup(t, nil)
	def, _ := set.Get(flow.ContractCreation)

	res := ex.Extract(context.Background(), "  Yearly renewal, with extras ", def, []field.Name{field.Description})
	if res.Extracted[field.Description] != "Yearly renewal, with extras" {
		t.Errorf("Extracted = %v", res.Extracted)
	}

	res = ex.Extract(context.Background(), "maybe", def, []field.Name{field.IsPricelist})
	if len(res.Extracted) != 0 {
		t.Errorf("maybe should not be accepted: %v", res.Extracted)
	}
	if len(res.Failures) != 1 || res.Failures[0].Kind != FailureInvalid {
		t.Fatalf("Failures = %+v", res.Failures)
	}
	if !strings.Contains(res.Errors[0], "yes or no") {
		t.Errorf("Errors[0] = %q", res.Errors[0])
	}
	if !reflect.DeepEqual(res.Remaining, []field.Name{field.IsPricelist}) {
		t.Errorf("Remaining = %v", res.Remaining)
	}
}

func TestExtractCorrectionOfCollectedField(t *testing.T) {
	ex, set := setup(t, nil)
	def, _ := set.Get(flow.ContractCreation)
	res := ex.Extract(context.Background(), "title: Better Title", def, []field.Name{field.Comments})
	if res.Extracted[field.Title] != "Better Title" {
		t.Errorf("Extracted = %v", res.Extracted)
	}
	if !reflect.DeepEqual(res.Remaining, []field.Name{field.Comments}) {
		t.Errorf("Remaining = %v", res.Remaining)
	}
}

func TestValue(t *testing.T) {
	ex, set := setup(t, nil)
	def, _ := set.Get(flow.ContractCreation)
	res := ex.Value(context.Background(), def, def.Remaining(nil), field.AccountNumber, "123456789")
	if res.Extracted[field.AccountNumber] != "123456789" {
		t.Errorf("Extracted = %v", res.Extracted)
	}
	if len(res.Remaining) != len(def.Required)-1 {
		t.Errorf("Remaining = %v", res.Remaining)
	}
}
