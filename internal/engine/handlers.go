package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/szaher/contractbot/internal/extract"
	"github.com/szaher/contractbot/internal/field"
	"github.com/szaher/contractbot/internal/flow"
	"github.com/szaher/contractbot/internal/session"
	"github.com/szaher/contractbot/internal/validation"
)

// handleIdle serves idle and terminal sessions: only an initiation intent
// moves them forward.
func (e *Engine) handleIdle(ctx context.Context, t *turn) TurnResult {
	ft, remainder := Initiation(t.input)
	if ft == flow.None {
		// Typo-corrected matches carry no remainder; values keep their case
		// only when taken from the raw input.
		ft, _ = Initiation(t.text)
		remainder = ""
	}
	if ft == flow.None {
		return TurnResult{Kind: KindPrompt, Message: "I can help you create a contract and its checklist. " + startHint}
	}
	return e.startFlow(ctx, t, ft, remainder)
}

func (e *Engine) startFlow(ctx context.Context, t *turn, ft flow.Type, remainder string) TurnResult {
	def, err := e.flows.Get(ft)
	if err != nil {
		return TurnResult{Kind: KindPrompt, Message: fmt.Sprintf("Creating a %s is not available. %s", ft.Noun(), startHint)}
	}
	s := t.s
	s.BeginFlow(ft)
	t.def = def
	e.logger.Info("flow started", "session_id", s.ID, "flow", ft, "parent_id", parentID(s, def))

	var res extract.Result
	if remainder != "" {
		remaining := def.Remaining(s.Collected)
		res = e.extractor.Extract(ctx, remainder, def, remaining)
		if res.Empty() && def.Accepts(field.AccountNumber) {
			if m := inlineAccount.FindAllString(remainder, -1); len(m) == 1 {
				res = e.extractor.Value(ctx, def, remaining, field.AccountNumber, m[0])
			}
		}
	}
	intro := fmt.Sprintf("Let's create a new %s.", ft.Noun())
	if ft == flow.Checklist && s.LastResultID != "" {
		intro = fmt.Sprintf("Let's create the checklist for contract %s.", s.LastResultID)
	}
	return e.apply(ctx, t, res, intro)
}

// handleCollecting extracts values from the input and merges the accepted
// ones into the session.
func (e *Engine) handleCollecting(ctx context.Context, t *turn) TurnResult {
	s, def := t.s, t.def
	remaining := def.Remaining(s.Collected)
	if ft, _ := Initiation(t.input); ft != flow.None && !extract.HasLabels(t.input) {
		return TurnResult{
			Kind:    KindPrompt,
			Message: fmt.Sprintf("A %s is already in progress. Say cancel to stop it first.\n%s", def.Type.Noun(), e.ask(def, s, remaining)),
		}
	}
	// A bare yes/no only answers a single outstanding yes/no field; with
	// nothing left it re-runs the readiness check, with several fields left
	// it re-asks without counting an attempt.
	if _, ok := validation.ParseYesNo(t.input); ok && !extract.HasLabels(t.input) {
		switch {
		case len(remaining) == 0:
			return e.ready(ctx, t)
		case len(remaining) > 1:
			return TurnResult{
				Kind:    KindPrompt,
				Message: fmt.Sprintf("I still need a few details before I can create the %s.\n%s", def.Type.Noun(), e.ask(def, s, remaining)),
			}
		}
	}
	res := e.extractor.Extract(ctx, t.input, def, remaining)
	return e.apply(ctx, t, res, "")
}

// apply merges an extraction result and decides the next step. intro is
// non-empty when the flow starts on this turn; an empty extraction is then
// not a failed attempt.
func (e *Engine) apply(ctx context.Context, t *turn, res extract.Result, intro string) TurnResult {
	s, def := t.s, t.def
	stored := s.Merge(res.Extracted, def)
	for _, f := range res.Failures {
		e.metrics.RecordValidationFailure(string(f.Field))
	}
	remaining := def.Remaining(s.Collected)
	setPending(s, def, remaining)

	if len(res.Failures) > 0 {
		return e.fail(t, failureError(res.Failures), res.Errors, e.ask(def, s, remaining))
	}
	if stored == 0 && intro == "" {
		return e.fail(t, ErrExtractionAmbiguous, []string{"I could not match that to any of the fields I need."}, e.ask(def, s, remaining))
	}
	if stored > 0 {
		s.AttemptCount = 0
		e.logger.Debug("fields accepted", "session_id", s.ID, "strategy", res.Strategy, "count", stored)
	}
	if len(remaining) == 0 {
		return e.ready(ctx, t)
	}
	msg := e.ask(def, s, remaining)
	if intro != "" {
		msg = intro + "\n" + msg
	}
	return TurnResult{Kind: KindPrompt, Message: msg}
}

// ready runs the cross-field rules once every required field is present,
// then either asks for confirmation or completes.
func (e *Engine) ready(ctx context.Context, t *turn) TurnResult {
	s, def := t.s, t.def
	if vr := def.Rules.Validate(s.Collected); vr != nil {
		for _, w := range vr.Warnings {
			e.logger.Warn("business rule warning", "session_id", s.ID, "flow", def.Type, "warning", w)
		}
		if !vr.Passed {
			for _, f := range vr.Rejected() {
				delete(s.Collected, f)
				e.metrics.RecordValidationFailure(string(f))
			}
			s.State = session.StateCollectingData
			s.Flags.AwaitingCompletionConfirmation = false
			remaining := def.Remaining(s.Collected)
			setPending(s, def, remaining)
			return e.fail(t, ErrFieldValidationFailed, vr.Errors, e.ask(def, s, remaining))
		}
	}

	s.State = session.StateReadyToProcess
	s.PendingFieldIndex = -1
	if def.ConfirmBeforeComplete {
		s.Flags.AwaitingCompletionConfirmation = true
		return TurnResult{Kind: KindPrompt, Message: summary(def, s) + fmt.Sprintf("\nShall I create this %s? (yes/no)", def.Type.Noun())}
	}
	return e.complete(ctx, t)
}

// handleReady serves the confirmation question. Label:value pairs correct
// a value and re-confirm.
func (e *Engine) handleReady(ctx context.Context, t *turn) TurnResult {
	s, def := t.s, t.def
	if yes, ok := validation.ParseYesNo(t.input); ok {
		if yes {
			return e.complete(ctx, t)
		}
		return e.decline(t)
	}
	if extract.HasLabels(t.input) {
		res := e.extractor.Extract(ctx, t.input, def, nil)
		for _, f := range res.Failures {
			e.metrics.RecordValidationFailure(string(f.Field))
		}
		if len(res.Failures) > 0 {
			return e.fail(t, failureError(res.Failures), res.Errors, confirmQuestion(def))
		}
		if s.Merge(res.Extracted, def) > 0 {
			s.AttemptCount = 0
			return e.ready(ctx, t)
		}
	}
	return e.fail(t, ErrFieldValidationFailed, []string{"Please answer yes or no."}, confirmQuestion(def))
}

// decline starts the details over after the user rejects the summary,
// keeping only the account number.
func (e *Engine) decline(t *turn) TurnResult {
	s, def := t.s, t.def
	s.Retain(field.AccountNumber)
	s.State = session.StateCollectingData
	s.Flags.AwaitingCompletionConfirmation = false
	s.AttemptCount = 0
	remaining := def.Remaining(s.Collected)
	setPending(s, def, remaining)
	e.logger.Info("summary declined", "session_id", s.ID, "flow", def.Type, "remaining", len(remaining))

	intro := "No problem, let's go through the details again."
	if _, ok := s.Collected[field.AccountNumber]; ok {
		intro = "No problem, let's go through the details again. I kept the account number."
	}
	return TurnResult{Kind: KindPrompt, Message: intro + "\n" + e.ask(def, s, remaining)}
}

// complete runs the flow's completion action.
func (e *Engine) complete(ctx context.Context, t *turn) TurnResult {
	s, def := t.s, t.def
	span := e.tracer.StartCompletion(ctx, s.ID, string(def.Type))

	snap := s.Snapshot()
	c, err := def.Complete(ctx, flow.Request{
		SessionID: s.ID,
		ParentID:  parentID(s, def),
		Fields:    snap.Collected,
		Optional:  snap.Optional,
	})
	if err != nil || !c.OK {
		reason := c.Message
		status := "rejected"
		if err != nil {
			reason = err.Error()
			status = "error"
		}
		e.tracer.Finish(span, status)
		e.metrics.RecordCompletion(string(def.Type), status)
		e.logger.Error("completion failed", "session_id", s.ID, "flow", def.Type, "status", status, "reason", reason)

		s.State = session.StateReadyToProcess
		s.Flags.AwaitingCompletionConfirmation = true
		s.AttemptCount++
		failure := fmt.Errorf("%w: %s", ErrCompletionExecutionFailed, reason)
		if e.retry.Exceeded(s.AttemptCount) {
			return e.abandon(t, failure)
		}
		return TurnResult{
			Kind:    KindError,
			Message: fmt.Sprintf("I couldn't create the %s: %s. Reply yes to try again or cancel to stop.", def.Type.Noun(), reason),
			Err:     failure,
		}
	}
	span.ResultID = c.ResultID
	e.tracer.Finish(span, "ok")
	e.metrics.RecordCompletion(string(def.Type), "ok")
	e.logger.Info("flow completed", "session_id", s.ID, "flow", def.Type, "result_id", c.ResultID)

	s.LastResultID = c.ResultID
	s.AttemptCount = 0
	s.PendingFieldIndex = -1
	s.Flags.AwaitingCompletionConfirmation = false
	s.State = session.StateCompleted

	msg := fmt.Sprintf("Your %s was created successfully (ID %s).", def.Type.Noun(), c.ResultID)
	if c.Message != "" {
		msg += " " + c.Message
	}
	if def.Successor != flow.None && def.Successor != "" {
		s.State = session.StateWaitingForInput
		s.Flags.ChecklistPending = true
		s.Flags.AwaitingChecklistConfirmation = true
		msg += "\n" + successorQuestion(def)
	}
	return TurnResult{Kind: KindComplete, Message: msg, ResultID: c.ResultID}
}

// handleSuccessor answers the follow-up question asked after completion.
func (e *Engine) handleSuccessor(ctx context.Context, t *turn) TurnResult {
	s, def := t.s, t.def
	yes, ok := validation.ParseYesNo(t.input)
	if !ok {
		if ft, _ := Initiation(t.text); ft == def.Successor {
			yes, ok = true, true
		}
	}
	if !ok {
		return e.fail(t, ErrFieldValidationFailed, []string{"Please answer yes or no."}, successorQuestion(def))
	}
	s.Flags.AwaitingChecklistConfirmation = false
	if !yes {
		s.Flags.ChecklistPending = false
		s.State = session.StateCompleted
		s.AttemptCount = 0
		return TurnResult{Kind: KindPrompt, Message: fmt.Sprintf("OK, no %s for now. %s", def.Successor.Noun(), startHint)}
	}
	return e.startFlow(ctx, t, def.Successor, "")
}

// cancel abandons the active flow at the user's request.
func (e *Engine) cancel(t *turn) TurnResult {
	s := t.s
	msg := fmt.Sprintf("The %s creation has been cancelled.", s.ActiveFlow.Noun())
	if s.State == session.StateWaitingForInput && t.def != nil {
		msg = fmt.Sprintf("OK, no %s. Your %s %s is saved.", t.def.Successor.Noun(), s.ActiveFlow.Noun(), s.LastResultID)
	}
	e.logger.Info("flow cancelled", "session_id", s.ID, "flow", s.ActiveFlow, "state", s.State)
	s.Cancel()
	return TurnResult{Kind: KindCancelled, Message: msg + " " + startHint}
}

// fail counts a failed attempt and builds the correction prompt, or
// abandons the flow once the ceiling is passed.
func (e *Engine) fail(t *turn, err error, problems []string, next string) TurnResult {
	s := t.s
	s.AttemptCount++
	if e.retry.Exceeded(s.AttemptCount) {
		return e.abandon(t, err)
	}
	e.logger.Debug("turn rejected", "session_id", s.ID, "attempt", s.AttemptCount, "error", err)
	return TurnResult{
		Kind:    KindPrompt,
		Message: validation.CorrectionPrompt(problems, next, s.AttemptCount, e.retry),
		Err:     err,
	}
}

func (e *Engine) abandon(t *turn, cause error) TurnResult {
	s := t.s
	noun := s.ActiveFlow.Noun()
	e.logger.Warn("flow abandoned", "session_id", s.ID, "flow", s.ActiveFlow, "attempts", s.AttemptCount, "cause", cause)
	s.Cancel()
	return TurnResult{
		Kind:    KindCancelled,
		Message: fmt.Sprintf("Too many unsuccessful attempts, so the %s creation has been cancelled. %s", noun, startHint),
		Err:     errors.Join(ErrMaxAttemptsExceeded, cause),
	}
}

// help lists what the active flow still needs without counting an attempt.
func (e *Engine) help(t *turn) TurnResult {
	s, def := t.s, t.def
	if def == nil || !s.HasActiveFlow() {
		return TurnResult{Kind: KindPrompt, Message: generalHelp}
	}
	var next string
	switch s.State {
	case session.StateReadyToProcess:
		next = confirmQuestion(def)
	case session.StateWaitingForInput:
		next = successorQuestion(def)
	default:
		next = e.ask(def, s, def.Remaining(s.Collected))
	}
	return TurnResult{Kind: KindPrompt, Message: flowHelp(def) + "\n" + next}
}

func failureError(failures []extract.Failure) error {
	var invalid, missing bool
	for _, f := range failures {
		if f.Kind == extract.FailureNotFound {
			missing = true
		} else {
			invalid = true
		}
	}
	var errs []error
	if invalid {
		errs = append(errs, ErrFieldValidationFailed)
	}
	if missing {
		errs = append(errs, ErrIdentifierNotFound)
	}
	return errors.Join(errs...)
}

func setPending(s *session.Session, def *flow.Definition, remaining []field.Name) {
	s.PendingFieldIndex = -1
	if len(remaining) == 1 {
		s.PendingFieldIndex = def.Index(remaining[0])
	}
}

func parentID(s *session.Session, def *flow.Definition) string {
	if def.Type == flow.Checklist {
		return s.LastResultID
	}
	return ""
}
