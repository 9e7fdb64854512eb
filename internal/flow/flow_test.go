package flow

import (
	"context"
	"reflect"
	"testing"
	"time"

	"github.com/szaher/contractbot/internal/field"
	"github.com/szaher/contractbot/internal/validation"
)

type recordingExecutor struct {
	got []Request
}

func (r *recordingExecutor) Execute(_ context.Context, req Request) (Completion, error) {
	r.got = append(r.got, req)
	return Completion{ResultID: "res-1", OK: true}, nil
}

func newDefaults(t *testing.T) (*Set, *recordingExecutor) {
	t.Helper()
	exec := &recordingExecutor{}
	v := validation.New(validation.WithClock(func() time.Time {
		return time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	}))
	set, err := Defaults(v, exec)
	if err != nil {
		t.Fatalf("Defaults: %v", err)
	}
	return set, exec
}

func TestDefaultsTypes(t *testing.T) {
	set, _ := newDefaults(t)
	got := set.Types()
	want := []Type{Checklist, ContractCreation}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Types() = %v, want %v", got, want)
	}
	if _, err := set.Get(None); err == nil {
		t.Error("Get(None) should fail")
	}
}

func TestRemainingOrderAndValidity(t *testing.T) {
	set, _ := newDefaults(t)
	def, err := set.Get(ContractCreation)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}

	got := def.Remaining(map[field.Name]string{
		field.Title:         "Renewal",
		field.AccountNumber: "12", // too short, still remaining
		field.IsPricelist:   "",
	})
	want := []field.Name{field.AccountNumber, field.ContractName, field.Description, field.Comments, field.IsPricelist}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Remaining = %v, want %v", got, want)
	}

	if !def.Accepts(field.HPPRequired) {
		t.Error("contract flow should accept optional HPP_REQUIRED")
	}
	if def.Accepts(field.EffectiveDate) {
		t.Error("contract flow should not accept checklist dates")
	}
	if def.Index(field.Title) != 2 {
		t.Errorf("Index(TITLE) = %d, want 2", def.Index(field.Title))
	}
}

func TestCompleteSetsType(t *testing.T) {
	set, exec := newDefaults(t)
	def, _ := set.Get(Checklist)
	c, err := def.Complete(context.Background(), Request{SessionID: "s1"})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if !c.OK || c.ResultID != "res-1" {
		t.Errorf("Completion = %+v", c)
	}
	if len(exec.got) != 1 || exec.got[0].Type != Checklist {
		t.Errorf("executor saw %+v", exec.got)
	}
}

func TestNewSetRejectsBadDefinitions(t *testing.T) {
	if _, err := NewSet(nil); err == nil {
		t.Error("expected error for nil definition")
	}
	d := &Definition{Type: Checklist, Required: []field.Name{field.Title}}
	if _, err := NewSet(d); err == nil {
		t.Error("expected error for missing validator")
	}
	ok := &Definition{
		Type:       Checklist,
		Required:   []field.Name{field.Title},
		Validators: map[field.Name]ValidatorFn{field.Title: func(s string) (string, error) { return s, nil }},
		Successor:  ContractCreation,
	}
	if _, err := NewSet(ok); err == nil {
		t.Error("expected error for unknown successor")
	}
	if _, err := NewSet(ok, ok); err == nil {
		t.Error("expected error for duplicate definition")
	}
}

func TestDomain(t *testing.T) {
	if ContractCreation.Domain() != "contract" || Checklist.Domain() != "checklist" || None.Domain() != "" {
		t.Error("unexpected domain mapping")
	}
}
