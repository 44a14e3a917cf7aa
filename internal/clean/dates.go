package clean

import (
	"strings"
	"time"

	"github.com/araddon/dateparse"
)

// epoch is the last sentinel date; anything on or before it is rejected.
var epoch = time.Date(1970, 1, 1, 0, 0, 0, 0, time.UTC)

// ukLayouts are tried after the adapter's own layouts, day-first before
// year-first.
var ukLayouts = []string{
	"2006-01-02",
	"02/01/2006",
	"2/1/2006",
	"02-01-2006",
	"02.01.2006",
	"02/01/06",
	"2 Jan 2006",
	"02 Jan 2006",
	"2 January 2006",
	"02-Jan-2006",
	"2-Jan-2006",
	"Mon 2 Jan 2006",
	"Mon 02 Jan 2006",
	"Monday 2 January 2006",
	"Monday, 2 January 2006",
	"Mon, 2 Jan 2006",
	"02/01/2006 15:04",
	"02/01/2006 15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	time.RFC3339,
	"2006/01/02",
	"January 2, 2006",
	"Jan 2, 2006",
}

// ParseDate parses s with the given layouts, then common UK layouts, then a
// fuzzy day-first parse. Blank and quote-only strings, and dates on or
// before 1970-01-01, yield false.
func ParseDate(s string, layouts []string, loc *time.Location) (time.Time, bool) {
	s = strings.Trim(collapse(s), `'"`)
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	if loc == nil {
		loc = time.UTC
	}
	for _, group := range [][]string{layouts, ukLayouts} {
		for _, layout := range group {
			if t, err := time.ParseInLocation(layout, s, loc); err == nil {
				return accept(t)
			}
		}
	}
	t, err := dateparse.ParseIn(s, loc, dateparse.PreferMonthFirst(false))
	if err != nil {
		return time.Time{}, false
	}
	return accept(t)
}

func accept(t time.Time) (time.Time, bool) {
	y, m, d := t.Date()
	day := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	if !day.After(epoch) {
		return time.Time{}, false
	}
	return day, true
}

// IsDateKey reports whether key names a date field.
func IsDateKey(key string) bool {
	return strings.HasSuffix(key, "_date") || strings.HasPrefix(key, "date_")
}
