// Package engine drives conversation turns: it detects intents, routes each
// turn through a (state, flow) dispatch table, and applies extraction,
// validation and completion to the session.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/szaher/contractbot/internal/extract"
	"github.com/szaher/contractbot/internal/flow"
	"github.com/szaher/contractbot/internal/session"
	"github.com/szaher/contractbot/internal/telemetry"
	"github.com/szaher/contractbot/internal/validation"
)

// TextCorrector spell-corrects free text before intent matching.
type TextCorrector interface {
	CorrectText(text string) string
}

type route struct {
	state session.State
	flow  flow.Type
}

type handler func(ctx context.Context, t *turn) TurnResult

// turn carries one input through its handler.
type turn struct {
	s     *session.Session
	def   *flow.Definition
	input string
	// text is input lower-cased and spell-corrected, used for intents only.
	text string
}

// Engine processes turns against the session registry.
type Engine struct {
	registry  *session.Registry
	flows     *flow.Set
	extractor *extract.Extractor
	corrector TextCorrector
	retry     validation.RetryConfig
	logger    *slog.Logger
	metrics   *telemetry.Metrics
	tracer    *telemetry.Tracer
	handlers  map[route]handler
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// WithMetrics records turn and completion metrics.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithTracer records a span per turn and per completion.
func WithTracer(t *telemetry.Tracer) Option {
	return func(e *Engine) { e.tracer = t }
}

// WithRetry sets the failed-attempt ceiling.
func WithRetry(cfg validation.RetryConfig) Option {
	return func(e *Engine) { e.retry = cfg }
}

// WithCorrector spell-corrects input before intent matching.
func WithCorrector(c TextCorrector) Option {
	return func(e *Engine) { e.corrector = c }
}

// New creates an Engine.
func New(registry *session.Registry, flows *flow.Set, extractor *extract.Extractor, opts ...Option) (*Engine, error) {
	if registry == nil || flows == nil || extractor == nil {
		return nil, fmt.Errorf("engine requires a registry, flows and an extractor")
	}
	e := &Engine{
		registry:  registry,
		flows:     flows,
		extractor: extractor,
		logger:    slog.Default(),
	}
	for _, o := range opts {
		o(e)
	}
	e.handlers = e.routes()
	return e, nil
}

// routes builds the dispatch table. Idle and terminal sessions accept new
// flow intents whatever flow they last ran.
func (e *Engine) routes() map[route]handler {
	table := make(map[route]handler)
	types := append([]flow.Type{flow.None}, e.flows.Types()...)
	for _, ft := range types {
		table[route{session.StateIdle, ft}] = e.handleIdle
		table[route{session.StateCompleted, ft}] = e.handleIdle
		table[route{session.StateCancelled, ft}] = e.handleIdle
	}
	for _, ft := range e.flows.Types() {
		def, err := e.flows.Get(ft)
		if err != nil {
			continue
		}
		table[route{session.StateCollectingData, ft}] = e.handleCollecting
		table[route{session.StateReadyToProcess, ft}] = e.handleReady
		if def.Successor != flow.None && def.Successor != "" {
			table[route{session.StateWaitingForInput, ft}] = e.handleSuccessor
		}
	}
	return table
}

// Flows returns the flow definitions the engine serves.
func (e *Engine) Flows() *flow.Set {
	return e.flows
}

// Registry returns the session registry.
func (e *Engine) Registry() *session.Registry {
	return e.registry
}

// ProcessTurn applies one user input to the session, creating the session
// on first use. Turns for the same session are serialized. The returned
// error is reserved for internal faults; flow problems are reported through
// TurnResult.Kind and TurnResult.Err.
func (e *Engine) ProcessTurn(ctx context.Context, sessionID, input string) (TurnResult, error) {
	if strings.TrimSpace(sessionID) == "" {
		return TurnResult{}, fmt.Errorf("session id is required")
	}
	start := time.Now()
	ctx, span := e.tracer.StartTurn(ctx, sessionID)
	logger := telemetry.RequestLogger(e.logger, ctx, sessionID)

	var res TurnResult
	err := e.registry.Do(sessionID, func(s *session.Session, expired bool) error {
		now := e.registry.Now()
		limit := e.registry.HistoryLimit()
		s.AppendTurn(session.SpeakerUser, input, now, limit)

		var def *flow.Definition
		if expired {
			res = expiredResult()
		} else {
			t, err := e.newTurn(s, input)
			if err != nil {
				return err
			}
			before := s.State
			res, err = e.dispatch(ctx, t)
			if err != nil {
				return err
			}
			def = t.def
			if s.State != before {
				logger.Info("state transition", "from", before, "to", s.State, "flow", s.ActiveFlow)
			}
		}

		s.AppendTurn(session.SpeakerBot, res.Message, now, limit)
		res.fill(s, def)
		return nil
	})
	if err != nil {
		e.tracer.Finish(span, "error")
		logger.Error("turn failed", "error", err)
		return TurnResult{}, fmt.Errorf("process turn: %w", err)
	}

	span.Observe(string(res.Flow), string(res.State), string(res.Kind), len(res.RemainingFields))
	span.ResultID = res.ResultID
	status := "ok"
	if res.Err != nil {
		status = res.Code
	}
	e.tracer.Finish(span, status)
	e.metrics.RecordTurn(string(res.Flow), string(res.Kind), time.Since(start))
	logger.Debug("turn processed", "kind", res.Kind, "state", res.State, "remaining", len(res.RemainingFields))
	return res, nil
}

func (e *Engine) newTurn(s *session.Session, input string) (*turn, error) {
	t := &turn{s: s, input: strings.TrimSpace(input)}
	t.text = strings.ToLower(t.input)
	if e.corrector != nil {
		t.text = e.corrector.CorrectText(t.input)
	}
	if s.ActiveFlow != flow.None && s.ActiveFlow != "" {
		def, err := e.flows.Get(s.ActiveFlow)
		if err != nil {
			return nil, err
		}
		t.def = def
	}
	return t, nil
}

func (e *Engine) dispatch(ctx context.Context, t *turn) (TurnResult, error) {
	if IsCancel(t.input) || IsCancel(t.text) {
		if t.s.HasActiveFlow() {
			return e.cancel(t), nil
		}
		return TurnResult{Kind: KindPrompt, Message: "There is nothing to cancel. " + startHint}, nil
	}
	if IsHelp(t.input) {
		return e.help(t), nil
	}
	h, ok := e.handlers[route{t.s.State, t.s.ActiveFlow}]
	if !ok {
		return TurnResult{}, fmt.Errorf("no handler for state %s in flow %s", t.s.State, t.s.ActiveFlow)
	}
	return h(ctx, t), nil
}

func expiredResult() TurnResult {
	return TurnResult{
		Kind:    KindError,
		Message: "Your session expired after a period of inactivity, so that message was not processed. " + startHint,
		Err:     ErrSessionExpired,
	}
}
