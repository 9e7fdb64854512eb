package validation

import "strings"

var affirmative = map[string]bool{
	"yes": true, "y": true, "yeah": true, "yep": true, "yup": true, "sure": true,
	"ok": true, "okay": true, "true": true, "1": true, "absolutely": true,
	"definitely": true, "correct": true, "confirm": true,
}

var negative = map[string]bool{
	"no": true, "n": true, "nope": true, "nah": true, "false": true, "0": true,
	"never": true, "skip": true, "default": true, "none": true,
}

// ParseYesNo maps a broad set of affirmative and negative spellings to a
// boolean. skip and default count as no. ok is false for anything else.
func ParseYesNo(s string) (value bool, ok bool) {
	w := strings.ToLower(strings.TrimSpace(s))
	w = strings.TrimRight(w, ".!")
	switch {
	case affirmative[w]:
		return true, true
	case negative[w]:
		return false, true
	}
	return false, false
}

// FormatYesNo renders a boolean the way yes/no fields are stored.
func FormatYesNo(b bool) string {
	if b {
		return "Yes"
	}
	return "No"
}
