package telemetry

import (
	"context"
	"log/slog"
	"strings"
)

// Redacted replaces a scrubbed value in log output.
const Redacted = "***REDACTED***"

// RedactHandler wraps a slog handler and scrubs configured credentials from
// messages and string or error attributes, including grouped ones.
type RedactHandler struct {
	inner   slog.Handler
	secrets []string
}

// NewRedactHandler wraps inner. Empty secrets are ignored.
func NewRedactHandler(inner slog.Handler, secrets ...string) *RedactHandler {
	h := &RedactHandler{inner: inner}
	for _, s := range secrets {
		if s != "" {
			h.secrets = append(h.secrets, s)
		}
	}
	return h
}

// Enabled delegates to the inner handler.
func (h *RedactHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

// Handle scrubs the record and passes it on.
func (h *RedactHandler) Handle(ctx context.Context, record slog.Record) error {
	if len(h.secrets) == 0 {
		return h.inner.Handle(ctx, record)
	}
	out := slog.NewRecord(record.Time, record.Level, h.scrub(record.Message), record.PC)
	record.Attrs(func(a slog.Attr) bool {
		out.AddAttrs(h.attr(a))
		return true
	})
	return h.inner.Handle(ctx, out)
}

// WithAttrs scrubs attrs before they are bound to the inner handler.
func (h *RedactHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	scrubbed := make([]slog.Attr, len(attrs))
	for i, a := range attrs {
		scrubbed[i] = h.attr(a)
	}
	return &RedactHandler{inner: h.inner.WithAttrs(scrubbed), secrets: h.secrets}
}

// WithGroup delegates to the inner handler.
func (h *RedactHandler) WithGroup(name string) slog.Handler {
	return &RedactHandler{inner: h.inner.WithGroup(name), secrets: h.secrets}
}

func (h *RedactHandler) attr(a slog.Attr) slog.Attr {
	v := a.Value.Resolve()
	switch v.Kind() {
	case slog.KindString:
		return slog.String(a.Key, h.scrub(v.String()))
	case slog.KindGroup:
		group := v.Group()
		scrubbed := make([]any, len(group))
		for i, g := range group {
			scrubbed[i] = h.attr(g)
		}
		return slog.Group(a.Key, scrubbed...)
	case slog.KindAny:
		if err, ok := v.Any().(error); ok {
			return slog.String(a.Key, h.scrub(err.Error()))
		}
	}
	return a
}

func (h *RedactHandler) scrub(s string) string {
	for _, secret := range h.secrets {
		s = strings.ReplaceAll(s, secret, Redacted)
	}
	return s
}
