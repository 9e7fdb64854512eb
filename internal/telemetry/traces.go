package telemetry

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"log/slog"
	"time"
)

// Span operations.
const (
	OpTurn     = "turn"
	OpComplete = "complete"
)

// Span times one conversation turn or one completion call. A completion
// span shares the TraceID of the turn that triggered it.
type Span struct {
	TraceID   string        `json:"trace_id"`
	SpanID    string        `json:"span_id"`
	Operation string        `json:"operation"`
	SessionID string        `json:"session_id"`
	Flow      string        `json:"flow,omitempty"`
	State     string        `json:"state,omitempty"`
	Kind      string        `json:"kind,omitempty"`
	Remaining int           `json:"remaining"`
	ResultID  string        `json:"result_id,omitempty"`
	StartTime time.Time     `json:"start_time"`
	Duration  time.Duration `json:"duration_ms,omitempty"`
	Status    string        `json:"status"`
}

// Observe records where the conversation ended up after the span's work.
func (s *Span) Observe(flow, state, kind string, remaining int) {
	s.Flow, s.State, s.Kind, s.Remaining = flow, state, kind, remaining
}

// Tracer hands out spans. A nil *Tracer is valid and exports nothing.
type Tracer struct {
	// Exporter receives finished spans. If nil, spans are discarded.
	Exporter SpanExporter
}

// SpanExporter receives finished spans.
type SpanExporter interface {
	ExportSpan(span Span)
}

// SpanExporterFunc is a function adapter for SpanExporter.
type SpanExporterFunc func(span Span)

// ExportSpan calls the function.
func (f SpanExporterFunc) ExportSpan(span Span) { f(span) }

// NewTracer creates a tracer exporting to exporter.
func NewTracer(exporter SpanExporter) *Tracer {
	return &Tracer{Exporter: exporter}
}

// LogExporter writes finished spans to logger at debug level.
func LogExporter(logger *slog.Logger) SpanExporter {
	return SpanExporterFunc(func(s Span) {
		attrs := []any{
			"trace_id", s.TraceID,
			"operation", s.Operation,
			"session_id", s.SessionID,
			"status", s.Status,
			"duration_ms", s.Duration.Milliseconds(),
		}
		if s.Flow != "" {
			attrs = append(attrs, "flow", s.Flow)
		}
		if s.Operation == OpTurn {
			attrs = append(attrs, "state", s.State, "kind", s.Kind, "remaining", s.Remaining)
		}
		if s.ResultID != "" {
			attrs = append(attrs, "result_id", s.ResultID)
		}
		logger.Debug("span", attrs...)
	})
}

type turnSpanKey struct{}

// StartTurn opens the span for one turn of sessionID. The trace ID is the
// request's correlation ID when one is set.
func (t *Tracer) StartTurn(ctx context.Context, sessionID string) (context.Context, *Span) {
	span := &Span{
		TraceID:   CorrelationID(ctx),
		SpanID:    generateID(),
		Operation: OpTurn,
		SessionID: sessionID,
		StartTime: time.Now(),
		Status:    "ok",
	}
	if span.TraceID == "" {
		span.TraceID = generateID()
	}
	return context.WithValue(ctx, turnSpanKey{}, span), span
}

// StartCompletion opens the span for a completion call made while handling
// the turn in ctx.
func (t *Tracer) StartCompletion(ctx context.Context, sessionID, flow string) *Span {
	span := &Span{
		SpanID:    generateID(),
		Operation: OpComplete,
		SessionID: sessionID,
		Flow:      flow,
		StartTime: time.Now(),
		Status:    "ok",
	}
	if turn, ok := ctx.Value(turnSpanKey{}).(*Span); ok {
		span.TraceID = turn.TraceID
	} else {
		span.TraceID = generateID()
	}
	return span
}

// Finish stamps the duration and exports the span. An empty status keeps
// "ok".
func (t *Tracer) Finish(span *Span, status string) {
	span.Duration = time.Since(span.StartTime)
	if status != "" {
		span.Status = status
	}
	if t != nil && t.Exporter != nil {
		t.Exporter.ExportSpan(*span)
	}
}

func generateID() string {
	b := make([]byte, 8)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
