package validation

import (
	"fmt"
	"strings"
)

// DefaultMaxAttempts is the number of failed turns tolerated before a flow
// is abandoned.
const DefaultMaxAttempts = 3

// RetryConfig configures the correction/retry behavior of a flow.
type RetryConfig struct {
	// MaxAttempts is the ceiling; zero or negative means DefaultMaxAttempts.
	MaxAttempts int
}

// Limit returns the effective attempt ceiling.
func (c RetryConfig) Limit() int {
	if c.MaxAttempts <= 0 {
		return DefaultMaxAttempts
	}
	return c.MaxAttempts
}

// Exceeded reports whether attempts has gone past the ceiling.
func (c RetryConfig) Exceeded(attempts int) bool {
	return attempts > c.Limit()
}

// CorrectionPrompt builds the message shown after a rejected turn: the
// failures, followed by what is still needed and how many tries remain.
func CorrectionPrompt(failures []string, next string, attempts int, cfg RetryConfig) string {
	var b strings.Builder
	b.WriteString("Some of the values could not be accepted:\n")
	for _, f := range failures {
		b.WriteString("- ")
		b.WriteString(f)
		b.WriteString("\n")
	}
	if next != "" {
		b.WriteString("\n")
		b.WriteString(next)
	}
	if left := cfg.Limit() - attempts; left >= 0 && attempts > 0 {
		fmt.Fprintf(&b, "\n(%d correction attempt(s) left)", left)
	}
	return b.String()
}
