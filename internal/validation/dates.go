package validation

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// DateLayout is the canonical MM/DD/YY form every date field is stored in.
const DateLayout = "01/02/06"

var datePattern = regexp.MustCompile(`^\s*(\d{1,2})[/-](\d{1,2})[/-](\d{2}|\d{4})\s*$`)

// IsDatePattern reports whether s looks like MM/DD/YY (or MM/DD/YYYY, or with
// dashes). It does not check that the date exists.
func IsDatePattern(s string) bool {
	return datePattern.MatchString(s)
}

// ParseDate parses an MM/DD/YY style value into a UTC midnight time.
func ParseDate(s string) (time.Time, error) {
	m := datePattern.FindStringSubmatch(s)
	if m == nil {
		return time.Time{}, fmt.Errorf("date %q does not match MM/DD/YY", strings.TrimSpace(s))
	}
	year := m[3]
	layout := "1/2/06"
	if len(year) == 4 {
		layout = "1/2/2006"
	}
	t, err := time.Parse(layout, m[1]+"/"+m[2]+"/"+year)
	if err != nil {
		return time.Time{}, fmt.Errorf("date %q is not a calendar date", strings.TrimSpace(s))
	}
	return t, nil
}

// FormatDate renders t in the canonical layout.
func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}

// NormalizeDate parses s and re-renders it canonically.
func NormalizeDate(s string) (string, error) {
	t, err := ParseDate(s)
	if err != nil {
		return "", err
	}
	return FormatDate(t), nil
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
