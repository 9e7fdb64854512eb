package engine

import (
	"testing"

	"github.com/szaher/contractbot/internal/flow"
)

func TestInitiation(t *testing.T) {
	tests := []struct {
		input    string
		wantFlow flow.Type
		wantRest string
	}{
		{"create contract", flow.ContractCreation, ""},
		{"Please make a new contract for account 1234567", flow.ContractCreation, "Please for account 1234567"},
		{"create contract: title: X", flow.ContractCreation, "title: X"},
		{"start a checklist", flow.Checklist, ""},
		{"create check list 01/10/24", flow.Checklist, "01/10/24"},
		{"what is a contract", flow.None, ""},
	}
	for _, tt := range tests {
		ft, rest := Initiation(tt.input)
		if ft != tt.wantFlow || rest != tt.wantRest {
			t.Errorf("Initiation(%q) = %s, %q, want %s, %q", tt.input, ft, rest, tt.wantFlow, tt.wantRest)
		}
	}
}

func TestIsCancel(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{"cancel", true},
		{"please stop", true},
		{"nevermind", true},
		{"never mind that", true},
		{"title: stop loss", false},
		{"stopwatch", false},
		{"yes", false},
	}
	for _, tt := range tests {
		if got := IsCancel(tt.input); got != tt.want {
			t.Errorf("IsCancel(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestIsHelp(t *testing.T) {
	for _, in := range []string{"help", "Help!", "?", "what do you need"} {
		if !IsHelp(in) {
			t.Errorf("IsHelp(%q) = false", in)
		}
	}
	if IsHelp("help me with title: x") {
		t.Error("IsHelp matched a data line")
	}
}

func TestErrorCode(t *testing.T) {
	if got := errorCode(nil); got != "" {
		t.Errorf("errorCode(nil) = %q", got)
	}
	if got := errorCode(ErrSessionExpired); got != "session_expired" {
		t.Errorf("errorCode = %q, want session_expired", got)
	}
}
