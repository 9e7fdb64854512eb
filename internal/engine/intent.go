package engine

import (
	"regexp"
	"strings"

	"github.com/szaher/contractbot/internal/extract"
	"github.com/szaher/contractbot/internal/flow"
)

var (
	cancelPattern   = regexp.MustCompile(`(?i)\b(?:cancel|stop|quit|abort|exit)\b|\bnever\s*mind\b`)
	contractIntent  = regexp.MustCompile(`(?i)\b(?:create|make|generate|new|build|draft|start|add|open)\s+(?:(?:an?|new|the)\s+)*contract\b`)
	checklistIntent = regexp.MustCompile(`(?i)\b(?:create|make|generate|new|build|start|add|open)\s+(?:(?:an?|new|the)\s+)*check\s*-?\s*list\b`)
	helpPattern     = regexp.MustCompile(`(?i)^\s*(?:help|\?|what do you need|what can you do)\s*[.!?]*\s*$`)
	inlineAccount   = regexp.MustCompile(`\b\d{6,}\b`)
)

// IsCancel reports whether input asks to abandon the current flow. Inputs
// carrying label:value pairs are data, not commands.
func IsCancel(input string) bool {
	return !extract.HasLabels(input) && cancelPattern.MatchString(input)
}

// IsHelp reports whether input asks what the bot needs.
func IsHelp(input string) bool {
	return helpPattern.MatchString(input)
}

// Initiation detects a flow-initiation intent and returns the flow and the
// rest of the input with the intent phrase removed.
func Initiation(input string) (flow.Type, string) {
	if loc := checklistIntent.FindStringIndex(input); loc != nil {
		return flow.Checklist, rest(input, loc)
	}
	if loc := contractIntent.FindStringIndex(input); loc != nil {
		return flow.ContractCreation, rest(input, loc)
	}
	return flow.None, ""
}

func rest(input string, loc []int) string {
	s := strings.TrimSpace(strings.TrimRight(input[:loc[0]], " \t") + " " + strings.TrimLeft(input[loc[1]:], " \t"))
	return strings.TrimLeft(s, " \t:;,-=")
}
