package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/szaher/contractbot/internal/dictionary"
	"github.com/szaher/contractbot/internal/extract"
	"github.com/szaher/contractbot/internal/field"
	"github.com/szaher/contractbot/internal/flow"
	"github.com/szaher/contractbot/internal/normalize"
	"github.com/szaher/contractbot/internal/session"
	"github.com/szaher/contractbot/internal/telemetry"
	"github.com/szaher/contractbot/internal/testutil"
	"github.com/szaher/contractbot/internal/validation"
)

var today = testutil.Today

type fakeIDs struct {
	mu    sync.Mutex
	known map[string]bool
}

func (f *fakeIDs) ValidateIdentifier(_ context.Context, _, value string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.known[value], nil
}

type fakeExecutor struct {
	mu     sync.Mutex
	reqs   []flow.Request
	err    error
	reject string
	n      int
}

func (f *fakeExecutor) Execute(_ context.Context, req flow.Request) (flow.Completion, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reqs = append(f.reqs, req)
	if f.err != nil {
		return flow.Completion{}, f.err
	}
	if f.reject != "" {
		return flow.Completion{OK: false, Message: f.reject}, nil
	}
	f.n++
	prefix := "ctr_"
	if req.Type == flow.Checklist {
		prefix = "chk_"
	}
	return flow.Completion{ResultID: fmt.Sprintf("%s%d", prefix, f.n), OK: true}, nil
}

type harness struct {
	eng   *Engine
	reg   *session.Registry
	exec  *fakeExecutor
	clock *testutil.Clock
}

func newHarness(t *testing.T, opts ...session.Option) *harness {
	t.Helper()
	dict, err := dictionary.Default()
	if err != nil {
		t.Fatalf("dictionary: %v", err)
	}
	exec := &fakeExecutor{}
	v := validation.New(validation.WithClock(func() time.Time { return today }))
	flows, err := flow.Defaults(v, exec)
	if err != nil {
		t.Fatalf("flows: %v", err)
	}
	norm := normalize.New(dict, dict)
	ids := &fakeIDs{known: map[string]bool{"1234567": true, "7654321": true}}
	clock := testutil.NewClock(today)
	reg := session.NewRegistry(append([]session.Option{session.WithClock(clock.Now)}, opts...)...)
	eng, err := New(reg, flows, extract.New(norm, ids), WithCorrector(norm))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return &harness{eng: eng, reg: reg, exec: exec, clock: clock}
}

func (h *harness) turn(t *testing.T, id, input string) TurnResult {
	t.Helper()
	res, err := h.eng.ProcessTurn(context.Background(), id, input)
	if err != nil {
		t.Fatalf("ProcessTurn(%q): %v", input, err)
	}
	return res
}

const fullContract = "contract name: Acme Deal, account: 1234567, title: Renewal, description: Yearly renewal, comments: none, pricelist: no"

func expect(t *testing.T, res TurnResult, kind Kind, state session.State) {
	t.Helper()
	if res.Kind != kind {
		t.Errorf("Kind = %s, want %s (message %q)", res.Kind, kind, res.Message)
	}
	if res.State != state {
		t.Errorf("State = %s, want %s (message %q)", res.State, state, res.Message)
	}
}

func TestContractThenChecklist(t *testing.T) {
	h := newHarness(t)

	res := h.turn(t, "s1", "create contract")
	expect(t, res, KindPrompt, session.StateCollectingData)
	if res.Flow != flow.ContractCreation {
		t.Errorf("Flow = %s, want %s", res.Flow, flow.ContractCreation)
	}
	if len(res.RemainingFields) != 6 || res.RemainingFields[0] != "ACCOUNT_NUMBER" {
		t.Errorf("RemainingFields = %v", res.RemainingFields)
	}

	res = h.turn(t, "s1", fullContract)
	expect(t, res, KindPrompt, session.StateReadyToProcess)
	if len(res.RemainingFields) != 0 {
		t.Errorf("RemainingFields = %v, want empty", res.RemainingFields)
	}
	if got := res.CollectedFields["IS_PRICELIST"]; got != "No" {
		t.Errorf("IS_PRICELIST = %q, want %q", got, "No")
	}
	if got := res.CollectedFields["CONTRACT_NAME"]; got != "Acme Deal" {
		t.Errorf("CONTRACT_NAME = %q, want %q", got, "Acme Deal")
	}

	res = h.turn(t, "s1", "yes")
	expect(t, res, KindComplete, session.StateWaitingForInput)
	if res.ResultID != "ctr_1" {
		t.Errorf("ResultID = %q, want ctr_1", res.ResultID)
	}
	if !strings.Contains(res.Message, "checklist") {
		t.Errorf("Message = %q, want checklist offer", res.Message)
	}

	res = h.turn(t, "s1", "yes")
	expect(t, res, KindPrompt, session.StateCollectingData)
	if res.Flow != flow.Checklist {
		t.Errorf("Flow = %s, want %s", res.Flow, flow.Checklist)
	}
	if len(res.RemainingFields) != 5 {
		t.Errorf("RemainingFields = %v, want 5 dates", res.RemainingFields)
	}

	res = h.turn(t, "s1", "01/10/24, 02/01/24, 12/31/25, 06/30/25, 11/30/25")
	expect(t, res, KindComplete, session.StateCompleted)
	if res.ResultID != "chk_2" {
		t.Errorf("ResultID = %q, want chk_2", res.ResultID)
	}

	if len(h.exec.reqs) != 2 {
		t.Fatalf("executor calls = %d, want 2", len(h.exec.reqs))
	}
	if got := h.exec.reqs[1].ParentID; got != "ctr_1" {
		t.Errorf("checklist ParentID = %q, want ctr_1", got)
	}
	if got := h.exec.reqs[1].Fields[field.ExpirationDate]; got != "12/31/25" {
		t.Errorf("EXPIRATION_DATE = %q, want 12/31/25", got)
	}
}

func TestInlineAccountAtInitiation(t *testing.T) {
	h := newHarness(t)
	res := h.turn(t, "s1", "Create a contract for account 1234567")
	expect(t, res, KindPrompt, session.StateCollectingData)
	if got := res.CollectedFields["ACCOUNT_NUMBER"]; got != "1234567" {
		t.Errorf("ACCOUNT_NUMBER = %q, want 1234567", got)
	}
	if len(res.RemainingFields) != 5 {
		t.Errorf("RemainingFields = %v, want 5", res.RemainingFields)
	}
	if res.Err != nil {
		t.Errorf("Err = %v, want nil", res.Err)
	}
}

func TestLabelsAtInitiation(t *testing.T) {
	h := newHarness(t)
	res := h.turn(t, "s1", "create contract: title: Renewal, account: 7654321")
	if got := res.CollectedFields["TITLE"]; got != "Renewal" {
		t.Errorf("TITLE = %q, want Renewal", got)
	}
	if got := res.CollectedFields["ACCOUNT_NUMBER"]; got != "7654321" {
		t.Errorf("ACCOUNT_NUMBER = %q, want 7654321", got)
	}
}

func TestChecklistRuleRejectsExpiration(t *testing.T) {
	h := newHarness(t)
	h.turn(t, "s1", "create checklist")

	res := h.turn(t, "s1", "01/10/24, 03/01/24, 02/15/24, 02/01/24, 02/10/24")
	expect(t, res, KindPrompt, session.StateCollectingData)
	if !errors.Is(res.Err, ErrFieldValidationFailed) {
		t.Errorf("Err = %v, want ErrFieldValidationFailed", res.Err)
	}
	if len(res.RemainingFields) != 1 || res.RemainingFields[0] != "EXPIRATION_DATE" {
		t.Errorf("RemainingFields = %v, want [EXPIRATION_DATE]", res.RemainingFields)
	}
	if !strings.Contains(res.Message, "Expiration Date must be after Effective Date") {
		t.Errorf("Message = %q", res.Message)
	}
	if _, ok := res.CollectedFields["EXPIRATION_DATE"]; ok {
		t.Error("rejected EXPIRATION_DATE still collected")
	}

	s, _ := h.reg.Get("s1")
	if s.PendingFieldIndex != 2 {
		t.Errorf("PendingFieldIndex = %d, want 2", s.PendingFieldIndex)
	}

	res = h.turn(t, "s1", "12/31/25")
	expect(t, res, KindComplete, session.StateCompleted)
}

func TestChecklistRuleRejectsLateFlowDown(t *testing.T) {
	h := newHarness(t)
	h.turn(t, "s1", "create checklist")

	res := h.turn(t, "s1", "01/10/24, 02/01/24, 06/30/25, 12/31/25, 03/01/24")
	expect(t, res, KindPrompt, session.StateCollectingData)
	if len(res.RemainingFields) != 1 || res.RemainingFields[0] != "FLOW_DOWN_DATE" {
		t.Errorf("RemainingFields = %v, want [FLOW_DOWN_DATE]", res.RemainingFields)
	}
	if !strings.Contains(res.Message, "Flow Down Date cannot be after Expiration Date") {
		t.Errorf("Message = %q", res.Message)
	}

	res = h.turn(t, "s1", "03/01/25")
	expect(t, res, KindComplete, session.StateCompleted)
}

func TestInvalidYesNoKeepsField(t *testing.T) {
	h := newHarness(t)
	h.turn(t, "s1", "create contract")
	h.turn(t, "s1", "contract name: Acme, account: 1234567, title: T, description: D, comments: C")

	s, _ := h.reg.Get("s1")
	if s.PendingFieldIndex != 5 {
		t.Errorf("PendingFieldIndex = %d, want 5", s.PendingFieldIndex)
	}

	res := h.turn(t, "s1", "maybe")
	expect(t, res, KindPrompt, session.StateCollectingData)
	if !errors.Is(res.Err, ErrFieldValidationFailed) {
		t.Errorf("Err = %v, want ErrFieldValidationFailed", res.Err)
	}
	if len(res.RemainingFields) != 1 || res.RemainingFields[0] != "IS_PRICELIST" {
		t.Errorf("RemainingFields = %v, want [IS_PRICELIST]", res.RemainingFields)
	}
	s, _ = h.reg.Get("s1")
	if s.AttemptCount != 1 {
		t.Errorf("AttemptCount = %d, want 1", s.AttemptCount)
	}

	res = h.turn(t, "s1", "yes")
	expect(t, res, KindPrompt, session.StateReadyToProcess)
	s, _ = h.reg.Get("s1")
	if s.AttemptCount != 0 {
		t.Errorf("AttemptCount = %d, want 0 after progress", s.AttemptCount)
	}
}

func TestAccountNotFound(t *testing.T) {
	h := newHarness(t)
	h.turn(t, "s1", "create contract")
	res := h.turn(t, "s1", "account: 999999")
	if !errors.Is(res.Err, ErrIdentifierNotFound) {
		t.Errorf("Err = %v, want ErrIdentifierNotFound", res.Err)
	}
	if !strings.Contains(res.Message, "Invalid account number: 999999") {
		t.Errorf("Message = %q", res.Message)
	}
	if _, ok := res.CollectedFields["ACCOUNT_NUMBER"]; ok {
		t.Error("unknown account was collected")
	}
	if res.Code != "identifier_not_found" {
		t.Errorf("Code = %q, want identifier_not_found", res.Code)
	}
}

func TestMaxAttemptsCancels(t *testing.T) {
	h := newHarness(t)
	h.turn(t, "s1", "create contract")
	h.turn(t, "s1", "account: 1234567")

	for i := 1; i <= validation.DefaultMaxAttempts; i++ {
		res := h.turn(t, "s1", "asdf qwerty")
		expect(t, res, KindPrompt, session.StateCollectingData)
		if !errors.Is(res.Err, ErrExtractionAmbiguous) {
			t.Fatalf("attempt %d: Err = %v, want ErrExtractionAmbiguous", i, res.Err)
		}
	}
	res := h.turn(t, "s1", "asdf qwerty")
	expect(t, res, KindCancelled, session.StateCancelled)
	if !errors.Is(res.Err, ErrMaxAttemptsExceeded) {
		t.Errorf("Err = %v, want ErrMaxAttemptsExceeded", res.Err)
	}
	if len(res.CollectedFields) != 0 {
		t.Errorf("CollectedFields = %v, want empty", res.CollectedFields)
	}

	res = h.turn(t, "s1", "create contract")
	expect(t, res, KindPrompt, session.StateCollectingData)
}

func TestCancel(t *testing.T) {
	h := newHarness(t)
	h.turn(t, "s1", "create contract")
	h.turn(t, "s1", "account: 1234567")

	res := h.turn(t, "s1", "never mind")
	expect(t, res, KindCancelled, session.StateCancelled)
	if len(res.CollectedFields) != 0 || len(res.RemainingFields) != 0 {
		t.Errorf("after cancel collected=%v remaining=%v", res.CollectedFields, res.RemainingFields)
	}

	res = h.turn(t, "s1", "cancel")
	expect(t, res, KindPrompt, session.StateCancelled)
	if !strings.Contains(res.Message, "nothing to cancel") {
		t.Errorf("Message = %q", res.Message)
	}
}

func TestCancelWordInsideValueIsData(t *testing.T) {
	h := newHarness(t)
	h.turn(t, "s1", "create contract")
	res := h.turn(t, "s1", "title: Stop Loss Cover")
	expect(t, res, KindPrompt, session.StateCollectingData)
	if got := res.CollectedFields["TITLE"]; got != "Stop Loss Cover" {
		t.Errorf("TITLE = %q, want %q", got, "Stop Loss Cover")
	}
}

func TestExpiredSession(t *testing.T) {
	h := newHarness(t)
	h.turn(t, "s1", "create contract")
	h.clock.Advance(session.DefaultFlowTimeout + time.Minute)

	res := h.turn(t, "s1", "account: 1234567")
	expect(t, res, KindError, session.StateIdle)
	if !errors.Is(res.Err, ErrSessionExpired) {
		t.Errorf("Err = %v, want ErrSessionExpired", res.Err)
	}
	if len(res.CollectedFields) != 0 {
		t.Errorf("CollectedFields = %v, want empty", res.CollectedFields)
	}

	res = h.turn(t, "s1", "create contract")
	expect(t, res, KindPrompt, session.StateCollectingData)
}

func TestExpiredAfterSweep(t *testing.T) {
	h := newHarness(t)
	h.turn(t, "s1", "create contract")
	h.clock.Advance(session.DefaultFlowTimeout + time.Minute)
	if n := h.reg.SweepExpired(); n != 1 {
		t.Fatalf("SweepExpired = %d, want 1", n)
	}
	res := h.turn(t, "s1", "account: 1234567")
	if !errors.Is(res.Err, ErrSessionExpired) {
		t.Errorf("Err = %v, want ErrSessionExpired", res.Err)
	}
}

func TestCompletionFailureRetries(t *testing.T) {
	h := newHarness(t)
	h.turn(t, "s1", "create contract")
	h.turn(t, "s1", fullContract)

	h.exec.reject = "account on hold"
	res := h.turn(t, "s1", "yes")
	expect(t, res, KindError, session.StateReadyToProcess)
	if !errors.Is(res.Err, ErrCompletionExecutionFailed) {
		t.Errorf("Err = %v, want ErrCompletionExecutionFailed", res.Err)
	}
	if !strings.Contains(res.Message, "account on hold") {
		t.Errorf("Message = %q", res.Message)
	}

	h.exec.reject = ""
	res = h.turn(t, "s1", "yes")
	expect(t, res, KindComplete, session.StateWaitingForInput)
}

func TestCompletionErrorExhaustsAttempts(t *testing.T) {
	h := newHarness(t)
	h.turn(t, "s1", "create contract")
	h.turn(t, "s1", fullContract)

	h.exec.err = errors.New("db down")
	var res TurnResult
	for i := 0; i <= validation.DefaultMaxAttempts; i++ {
		res = h.turn(t, "s1", "yes")
	}
	expect(t, res, KindCancelled, session.StateCancelled)
	if !errors.Is(res.Err, ErrMaxAttemptsExceeded) || !errors.Is(res.Err, ErrCompletionExecutionFailed) {
		t.Errorf("Err = %v", res.Err)
	}
}

func TestDeclineConfirmationKeepsOnlyAccount(t *testing.T) {
	h := newHarness(t)
	h.turn(t, "s1", "create contract")
	h.turn(t, "s1", fullContract)

	res := h.turn(t, "s1", "no")
	expect(t, res, KindPrompt, session.StateCollectingData)
	if len(res.CollectedFields) != 1 || res.CollectedFields["ACCOUNT_NUMBER"] != "1234567" {
		t.Errorf("CollectedFields = %v, want only ACCOUNT_NUMBER", res.CollectedFields)
	}
	if len(res.RemainingFields) != 5 {
		t.Errorf("RemainingFields = %v, want 5", res.RemainingFields)
	}
	if res.Err != nil {
		t.Errorf("Err = %v, want nil", res.Err)
	}
	if !strings.Contains(res.Message, "Contract Name") {
		t.Errorf("Message = %q, want a prompt for the cleared fields", res.Message)
	}

	res = h.turn(t, "s1", "contract name: Beta Deal, title: New title, description: Two year term, comments: none, pricelist: yes")
	expect(t, res, KindPrompt, session.StateReadyToProcess)
	if got := res.CollectedFields["TITLE"]; got != "New title" {
		t.Errorf("TITLE = %q, want %q", got, "New title")
	}

	res = h.turn(t, "s1", "yes")
	expect(t, res, KindComplete, session.StateWaitingForInput)
	if got := h.exec.reqs[0].Fields[field.ContractName]; got != "Beta Deal" {
		t.Errorf("executed CONTRACT_NAME = %q, want Beta Deal", got)
	}
}

func TestYesAfterDeclineIsNotAFailure(t *testing.T) {
	h := newHarness(t)
	h.turn(t, "s1", "create contract")
	h.turn(t, "s1", fullContract)
	h.turn(t, "s1", "no")

	res := h.turn(t, "s1", "yes")
	expect(t, res, KindPrompt, session.StateCollectingData)
	if res.Err != nil {
		t.Errorf("Err = %v, want nil", res.Err)
	}
	if len(res.RemainingFields) != 5 {
		t.Errorf("RemainingFields = %v, want 5", res.RemainingFields)
	}
	if !strings.Contains(res.Message, "I still need a few details") {
		t.Errorf("Message = %q", res.Message)
	}
	if len(h.exec.reqs) != 0 {
		t.Errorf("executor calls = %d, want 0", len(h.exec.reqs))
	}
}

func TestDeclineThenSingleFieldAnswer(t *testing.T) {
	h := newHarness(t)
	h.turn(t, "s1", "create contract")
	h.turn(t, "s1", fullContract)
	h.turn(t, "s1", "no")

	res := h.turn(t, "s1", "contract name: Beta Deal, title: Renewal, description: Yearly renewal, comments: none")
	expect(t, res, KindPrompt, session.StateCollectingData)
	if len(res.RemainingFields) != 1 || res.RemainingFields[0] != "IS_PRICELIST" {
		t.Fatalf("RemainingFields = %v, want [IS_PRICELIST]", res.RemainingFields)
	}

	res = h.turn(t, "s1", "no")
	expect(t, res, KindPrompt, session.StateReadyToProcess)
	if got := res.CollectedFields["IS_PRICELIST"]; got != "No" {
		t.Errorf("IS_PRICELIST = %q, want No", got)
	}
	if !strings.Contains(res.Message, "Shall I create this contract?") {
		t.Errorf("Message = %q, want the confirmation question", res.Message)
	}
}

func TestTracerRecordsTurnAndCompletion(t *testing.T) {
	h := newHarness(t)
	var spans []telemetry.Span
	WithTracer(telemetry.NewTracer(telemetry.SpanExporterFunc(func(s telemetry.Span) {
		spans = append(spans, s)
	})))(h.eng)

	h.turn(t, "s1", "create contract")
	h.turn(t, "s1", fullContract)
	spans = nil
	h.turn(t, "s1", "yes")

	if len(spans) != 2 {
		t.Fatalf("exported %d spans, want 2", len(spans))
	}
	done, turn := spans[0], spans[1]
	if done.Operation != telemetry.OpComplete || done.ResultID != "ctr_1" || done.Flow != string(flow.ContractCreation) {
		t.Errorf("completion span = %+v", done)
	}
	if turn.Operation != telemetry.OpTurn || turn.Kind != string(KindComplete) || turn.ResultID != "ctr_1" {
		t.Errorf("turn span = %+v", turn)
	}
	if done.TraceID != turn.TraceID {
		t.Errorf("trace ids differ: %q, %q", done.TraceID, turn.TraceID)
	}
}

func TestYesWithNothingRemainingReconfirms(t *testing.T) {
	h := newHarness(t)
	h.turn(t, "s1", "create contract")
	h.turn(t, "s1", fullContract)
	err := h.reg.Do("s1", func(s *session.Session, _ bool) error {
		s.State = session.StateCollectingData
		s.Flags.AwaitingCompletionConfirmation = false
		return nil
	})
	if err != nil {
		t.Fatalf("Do: %v", err)
	}

	res := h.turn(t, "s1", "yes")
	expect(t, res, KindPrompt, session.StateReadyToProcess)
	if res.Err != nil {
		t.Errorf("Err = %v, want nil", res.Err)
	}
}

func TestOptionalFieldStaysOutOfCollected(t *testing.T) {
	h := newHarness(t)
	h.turn(t, "s1", "create contract")

	res := h.turn(t, "s1", "hpp: yes")
	expect(t, res, KindPrompt, session.StateCollectingData)
	if len(res.CollectedFields) != 0 {
		t.Errorf("CollectedFields = %v, want empty", res.CollectedFields)
	}
	if got := res.OptionalFields["HPP_REQUIRED"]; got != "Yes" {
		t.Errorf("OptionalFields[HPP_REQUIRED] = %q, want Yes", got)
	}
	if len(res.RemainingFields) != 6 {
		t.Errorf("RemainingFields = %v, want 6", res.RemainingFields)
	}

	h.turn(t, "s1", fullContract)
	res = h.turn(t, "s1", "yes")
	expect(t, res, KindComplete, session.StateWaitingForInput)
	req := h.exec.reqs[0]
	if _, ok := req.Fields[field.HPPRequired]; ok {
		t.Errorf("Fields = %v, HPP_REQUIRED belongs in Optional", req.Fields)
	}
	if got := req.Optional[field.HPPRequired]; got != "Yes" {
		t.Errorf("Optional[HPP_REQUIRED] = %q, want Yes", got)
	}
}

func TestChecklistFiveDatesFillPositionally(t *testing.T) {
	h := newHarness(t)
	h.turn(t, "s1", "create checklist")

	res := h.turn(t, "s1", "01/15/24, 02/01/24, 12/31/25, 03/01/24, 06/30/25")
	expect(t, res, KindComplete, session.StateCompleted)
	if len(res.RemainingFields) != 0 {
		t.Errorf("RemainingFields = %v, want empty", res.RemainingFields)
	}
	want := map[field.Name]string{
		field.DateOfSignature:     "01/15/24",
		field.EffectiveDate:       "02/01/24",
		field.ExpirationDate:      "12/31/25",
		field.FlowDownDate:        "03/01/24",
		field.PriceExpirationDate: "06/30/25",
	}
	got := h.exec.reqs[0].Fields
	for k, v := range want {
		if got[k] != v {
			t.Errorf("%s = %q, want %q", k, got[k], v)
		}
	}
}

func TestCorrectionWhileConfirming(t *testing.T) {
	h := newHarness(t)
	h.turn(t, "s1", "create contract")
	h.turn(t, "s1", fullContract)

	res := h.turn(t, "s1", "comments: urgent")
	expect(t, res, KindPrompt, session.StateReadyToProcess)
	if got := res.CollectedFields["COMMENTS"]; got != "urgent" {
		t.Errorf("COMMENTS = %q, want urgent", got)
	}
	if !strings.Contains(res.Message, "Comments: urgent") {
		t.Errorf("summary = %q", res.Message)
	}

	res = h.turn(t, "s1", "perhaps")
	expect(t, res, KindPrompt, session.StateReadyToProcess)
	if !errors.Is(res.Err, ErrFieldValidationFailed) {
		t.Errorf("Err = %v, want ErrFieldValidationFailed", res.Err)
	}
}

func TestDeclineChecklistThenStartLater(t *testing.T) {
	h := newHarness(t)
	h.turn(t, "s1", "create contract")
	h.turn(t, "s1", fullContract)
	h.turn(t, "s1", "yes")

	res := h.turn(t, "s1", "maybe later")
	expect(t, res, KindPrompt, session.StateWaitingForInput)

	res = h.turn(t, "s1", "no")
	expect(t, res, KindPrompt, session.StateCompleted)

	res = h.turn(t, "s1", "create checklist")
	expect(t, res, KindPrompt, session.StateCollectingData)
	res = h.turn(t, "s1", "01/10/24, 02/01/24, 12/31/25, 06/30/25, 11/30/25")
	expect(t, res, KindComplete, session.StateCompleted)
	if got := h.exec.reqs[len(h.exec.reqs)-1].ParentID; got != "ctr_1" {
		t.Errorf("ParentID = %q, want ctr_1", got)
	}
}

func TestTypoInIntent(t *testing.T) {
	h := newHarness(t)
	res := h.turn(t, "s1", "creat contarct")
	expect(t, res, KindPrompt, session.StateCollectingData)
	if res.Flow != flow.ContractCreation {
		t.Errorf("Flow = %s, want %s", res.Flow, flow.ContractCreation)
	}
}

func TestIdleSmallTalk(t *testing.T) {
	h := newHarness(t)
	res := h.turn(t, "s1", "hello there")
	expect(t, res, KindPrompt, session.StateIdle)
	if !strings.Contains(res.Message, "create contract") {
		t.Errorf("Message = %q", res.Message)
	}
}

func TestHelpDoesNotCountAttempt(t *testing.T) {
	h := newHarness(t)
	h.turn(t, "s1", "create contract")
	res := h.turn(t, "s1", "help")
	if !strings.Contains(res.Message, "Account Number") {
		t.Errorf("Message = %q", res.Message)
	}
	s, _ := h.reg.Get("s1")
	if s.AttemptCount != 0 {
		t.Errorf("AttemptCount = %d, want 0", s.AttemptCount)
	}
}

func TestAlreadyInProgress(t *testing.T) {
	h := newHarness(t)
	h.turn(t, "s1", "create contract")
	res := h.turn(t, "s1", "create a contract")
	if !strings.Contains(res.Message, "already in progress") {
		t.Errorf("Message = %q", res.Message)
	}
	if res.Err != nil {
		t.Errorf("Err = %v, want nil", res.Err)
	}
}

func TestSameInputIsIdempotent(t *testing.T) {
	h := newHarness(t)
	h.turn(t, "s1", "create contract")
	first := h.turn(t, "s1", "account: 1234567, title: Renewal")
	second := h.turn(t, "s1", "account: 1234567, title: Renewal")
	if strings.Join(first.RemainingFields, ",") != strings.Join(second.RemainingFields, ",") {
		t.Errorf("remaining changed: %v then %v", first.RemainingFields, second.RemainingFields)
	}
	if len(first.CollectedFields) != len(second.CollectedFields) {
		t.Errorf("collected changed: %v then %v", first.CollectedFields, second.CollectedFields)
	}
}

func TestRemainingNeverGrows(t *testing.T) {
	h := newHarness(t)
	res := h.turn(t, "s1", "create contract")
	prev := len(res.RemainingFields)
	for _, in := range []string{
		"account: 1234567",
		"name: Acme",
		"title: Renewal",
		"description: Yearly",
		"comments: none",
	} {
		res = h.turn(t, "s1", in)
		if res.Err != nil {
			t.Fatalf("%q: Err = %v", in, res.Err)
		}
		if len(res.RemainingFields) > prev {
			t.Fatalf("%q: remaining grew from %d to %d", in, prev, len(res.RemainingFields))
		}
		prev = len(res.RemainingFields)
	}
	if prev != 1 {
		t.Errorf("remaining = %d, want 1", prev)
	}
}

func TestConcurrentTurnsSameSession(t *testing.T) {
	h := newHarness(t)
	h.turn(t, "s1", "create contract")

	const n = 20
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := h.eng.ProcessTurn(context.Background(), "s1", "account: 1234567"); err != nil {
				t.Errorf("ProcessTurn: %v", err)
			}
		}()
	}
	wg.Wait()

	s, _ := h.reg.Get("s1")
	if got := len(s.History); got != 2*(n+1) {
		t.Errorf("len(History) = %d, want %d", got, 2*(n+1))
	}
	if s.AttemptCount != 0 {
		t.Errorf("AttemptCount = %d, want 0", s.AttemptCount)
	}
}

func TestConcurrentSessions(t *testing.T) {
	h := newHarness(t)
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			for _, in := range []string{"create contract", fullContract, "yes", "no"} {
				if _, err := h.eng.ProcessTurn(context.Background(), id, in); err != nil {
					t.Errorf("%s: %v", id, err)
					return
				}
			}
		}(fmt.Sprintf("s%d", i))
	}
	wg.Wait()
	for _, id := range h.reg.IDs() {
		s, _ := h.reg.Get(id)
		if s.State != session.StateCompleted {
			t.Errorf("%s: State = %s, want COMPLETED", id, s.State)
		}
	}
}

func TestEmptySessionID(t *testing.T) {
	h := newHarness(t)
	if _, err := h.eng.ProcessTurn(context.Background(), " ", "hi"); err == nil {
		t.Error("expected error for empty session id")
	}
}

func TestNewRequiresDependencies(t *testing.T) {
	if _, err := New(nil, nil, nil); err == nil {
		t.Error("expected error")
	}
}
