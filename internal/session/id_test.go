package session

import (
	"strings"
	"testing"
)

func TestGenerateID(t *testing.T) {
	// Test different prefixes
	prefixes := []string{"sess_", "ctr_", "chk_", ""}
	for _, prefix := range prefixes {
		id := GenerateID(prefix)
		if !strings.HasPrefix(id, prefix) {
			t.Errorf("GenerateID(%q) = %q, want prefix %q", prefix, id, prefix)
		}
		if len(id) != len(prefix)+26 {
			t.Errorf("GenerateID(%q) = %q, want a 26 character ULID after the prefix", prefix, id)
		}
	}

	// Uniqueness and ordering
	prev := ""
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := GenerateID("u_")
		if seen[id] {
			t.Fatalf("duplicate ID generated: %s", id)
		}
		if id <= prev {
			t.Fatalf("IDs not monotonic: %s after %s", id, prev)
		}
		seen[id] = true
		prev = id
	}
}

func TestNewIDPrefix(t *testing.T) {
	if id := NewID(); !strings.HasPrefix(id, "sess_") {
		t.Errorf("NewID() = %q, want sess_ prefix", id)
	}
}
