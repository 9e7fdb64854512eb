// Package normalize resolves raw labels typed by users into canonical field
// names: word-level spelling correction first, then synonym lookup with a
// bounded fuzzy fallback supplied by the dictionary.
package normalize

import (
	"log/slog"
	"strings"
	"unicode"

	"github.com/szaher/contractbot/internal/field"
)

// Dictionary resolves a normalized phrase to a canonical field within a
// domain, falling back to fuzzy matching.
type Dictionary interface {
	ResolveSynonym(domain, token string) (field.Name, bool)
}

// SpellChecker maps a misspelled word to its correction.
type SpellChecker interface {
	Correct(word string) (string, bool)
}

// fillers are leading words dropped when the full phrase does not resolve.
var fillers = map[string]bool{
	"a": true, "an": true, "the": true, "with": true, "for": true,
	"and": true, "my": true, "its": true, "enter": true,
}

// Normalizer turns labels into canonical field names. It holds no session
// state; its output depends only on the input and the dictionary snapshot.
type Normalizer struct {
	dict   Dictionary
	spell  SpellChecker
	logger *slog.Logger
}

// Option configures a Normalizer.
type Option func(*Normalizer)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(n *Normalizer) { n.logger = logger }
}

// New creates a Normalizer. spell may be nil to skip spelling correction.
func New(dict Dictionary, spell SpellChecker, opts ...Option) *Normalizer {
	n := &Normalizer{dict: dict, spell: spell, logger: slog.Default()}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Normalize resolves token to a canonical field name within domain.
func (n *Normalizer) Normalize(domain, token string) (field.Name, bool) {
	words := n.correctWords(Words(token))
	if len(words) == 0 {
		return "", false
	}

	if name, ok := n.dict.ResolveSynonym(domain, strings.Join(words, " ")); ok {
		return name, true
	}

	i := 0
	for i < len(words)-1 && fillers[words[i]] {
		i++
	}
	if i > 0 {
		if name, ok := n.dict.ResolveSynonym(domain, strings.Join(words[i:], " ")); ok {
			return name, true
		}
	}

	n.logger.Debug("label not resolved", "domain", domain, "label", token)
	return "", false
}

// CorrectText applies word-level spelling correction to free text and
// returns it lower-cased with single spaces.
func (n *Normalizer) CorrectText(text string) string {
	return strings.Join(n.correctWords(strings.Fields(strings.ToLower(text))), " ")
}

func (n *Normalizer) correctWords(words []string) []string {
	if n.spell == nil {
		return words
	}
	out := make([]string, len(words))
	for i, w := range words {
		if c, ok := n.spell.Correct(w); ok {
			w = c
		}
		out[i] = w
	}
	return out
}

// Words lower-cases s and splits it on whitespace, underscores, dashes and
// dots, dropping any other punctuation.
func Words(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !(unicode.IsLetter(r) || unicode.IsDigit(r) || r == '\'')
	})
}

// Key renders s as a label key: lower case, whitespace collapsed to underscores.
func Key(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), "_")
}
