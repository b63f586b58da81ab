package util

import (
	"regexp"
	"time"
)

var isoDatePattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

// ValidateISODate reports whether s is a real calendar date in YYYY-MM-DD form.
func ValidateISODate(s string) bool {
	if !isoDatePattern.MatchString(s) {
		return false
	}
	_, err := time.Parse("2006-01-02", s)
	return err == nil
}

// DateRangeEndingAt is the default transactions window: the days before end,
// through end, as YYYY-MM-DD.
func DateRangeEndingAt(end time.Time, days int) (string, string) {
	return end.AddDate(0, 0, -days).Format("2006-01-02"), end.Format("2006-01-02")
}
