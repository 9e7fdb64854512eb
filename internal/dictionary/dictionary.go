// Package dictionary is the canonical field dictionary: per-domain synonym
// tables and word-level typo corrections loaded from YAML. Lookups read an
// immutable snapshot that can be swapped atomically on reload.
package dictionary

import (
	_ "embed"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync/atomic"

	"gopkg.in/yaml.v3"

	"github.com/szaher/contractbot/internal/field"
	"github.com/szaher/contractbot/internal/normalize"
)

//go:embed default.yaml
var defaultYAML []byte

// minFuzzyLength is the shortest token that may be fuzzy matched; shorter
// tokens are within two edits of too many synonyms.
const minFuzzyLength = 4

type document struct {
	Typos   map[string][]string            `yaml:"typos"`
	Domains map[string]map[string][]string `yaml:"domains"`
}

// Snapshot is one immutable, parsed dictionary.
type Snapshot struct {
	synonyms map[string]map[string]field.Name
	keys     map[string][]string
	typos    map[string]string
}

// Parse decodes and validates dictionary YAML. A synonym mapped to two
// different fields in one domain, or an unknown field name, is an error.
func Parse(data []byte) (*Snapshot, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse dictionary: %w", err)
	}
	if len(doc.Domains) == 0 {
		return nil, fmt.Errorf("dictionary defines no domains")
	}

	s := &Snapshot{
		synonyms: make(map[string]map[string]field.Name, len(doc.Domains)),
		keys:     make(map[string][]string, len(doc.Domains)),
		typos:    make(map[string]string),
	}

	for domain, fields := range doc.Domains {
		table := make(map[string]field.Name)
		for fname, phrases := range fields {
			name, ok := field.Parse(fname)
			if !ok {
				return nil, fmt.Errorf("domain %s: unknown field %q", domain, fname)
			}
			for _, p := range append(phrases, fname) {
				key := phrase(p)
				if key == "" {
					continue
				}
				if prev, dup := table[key]; dup && prev != name {
					return nil, fmt.Errorf("domain %s: synonym %q maps to both %s and %s", domain, key, prev, name)
				}
				table[key] = name
			}
		}
		keys := make([]string, 0, len(table))
		for k := range table {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		s.synonyms[domain] = table
		s.keys[domain] = keys
	}

	for correct, variants := range doc.Typos {
		for _, v := range variants {
			v = strings.ToLower(strings.TrimSpace(v))
			if v == "" || v == correct {
				continue
			}
			if prev, dup := s.typos[v]; dup && prev != correct {
				return nil, fmt.Errorf("typo %q corrects to both %q and %q", v, prev, correct)
			}
			s.typos[v] = strings.ToLower(correct)
		}
	}
	return s, nil
}

// LoadFile reads and parses a dictionary file.
func LoadFile(path string) (*Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read dictionary %s: %w", path, err)
	}
	return Parse(data)
}

// Domains returns the domain names in sorted order.
func (s *Snapshot) Domains() []string {
	out := make([]string, 0, len(s.keys))
	for d := range s.keys {
		out = append(out, d)
	}
	sort.Strings(out)
	return out
}

// Size returns the number of synonyms in domain.
func (s *Snapshot) Size(domain string) int {
	return len(s.keys[domain])
}

// Dictionary serves lookups from the current snapshot.
type Dictionary struct {
	snap atomic.Pointer[Snapshot]
}

// New creates a Dictionary serving s.
func New(s *Snapshot) *Dictionary {
	d := &Dictionary{}
	d.snap.Store(s)
	return d
}

// Default returns a Dictionary built from the embedded default table.
func Default() (*Dictionary, error) {
	s, err := Parse(defaultYAML)
	if err != nil {
		return nil, fmt.Errorf("embedded dictionary: %w", err)
	}
	return New(s), nil
}

// Open loads the dictionary at path, or the embedded default when path is empty.
func Open(path string) (*Dictionary, error) {
	if path == "" {
		return Default()
	}
	s, err := LoadFile(path)
	if err != nil {
		return nil, err
	}
	return New(s), nil
}

// Snapshot returns the snapshot currently served.
func (d *Dictionary) Snapshot() *Snapshot {
	return d.snap.Load()
}

// Swap replaces the served snapshot.
func (d *Dictionary) Swap(s *Snapshot) {
	d.snap.Store(s)
}

// ResolveSynonym maps token to a field in domain: exact match first, then the
// closest synonym within normalize.MaxEditDistance edits.
func (d *Dictionary) ResolveSynonym(domain, token string) (field.Name, bool) {
	s := d.snap.Load()
	key := phrase(token)
	table, ok := s.synonyms[domain]
	if !ok || key == "" {
		return "", false
	}
	if name, ok := table[key]; ok {
		return name, true
	}
	if len(key) < minFuzzyLength {
		return "", false
	}
	best, ok := normalize.Closest(key, s.keys[domain], normalize.MaxEditDistance)
	if !ok {
		return "", false
	}
	return table[best], true
}

// Correct returns the correction for a misspelled word.
func (d *Dictionary) Correct(word string) (string, bool) {
	c, ok := d.snap.Load().typos[strings.ToLower(word)]
	return c, ok
}

func phrase(s string) string {
	return strings.Join(normalize.Words(s), " ")
}
