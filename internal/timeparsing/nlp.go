package timeparsing

import (
	"fmt"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
)

// nlpParser wraps olebedev/when with the English and common rule sets,
// covering the "tomorrow" / "next monday" / "in 3 days" / "3 days ago"
// phrasing accepted by --since.
var nlpParser = newNLPParser()

func newNLPParser() *when.Parser {
	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)
	return w
}

// ParseNaturalLanguage parses an English relative-time phrase relative to
// now using olebedev/when.
func ParseNaturalLanguage(input string, now time.Time) (time.Time, error) {
	if input == "" {
		return time.Time{}, fmt.Errorf("timeparsing: empty input")
	}

	res, err := nlpParser.Parse(input, now)
	if err != nil {
		return time.Time{}, fmt.Errorf("timeparsing: parse %q: %w", input, err)
	}
	if res == nil {
		return time.Time{}, fmt.Errorf("timeparsing: could not interpret %q as a date or time", input)
	}
	return res.Time, nil
}

// isoLayouts are tried, in order, before falling back to natural-language
// parsing, so an unambiguous calendar date is never misread by the NLP
// grammar.
var isoLayouts = []string{time.RFC3339, "2006-01-02"}

func parseISO(input string, loc *time.Location) (time.Time, bool) {
	for _, layout := range isoLayouts {
		if t, err := time.ParseInLocation(layout, input, loc); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// ParseRelativeTime layers the three forms --since accepts: compact
// durations ("+1d"), then ISO dates/timestamps, then natural-language
// phrases ("next monday"), in that precedence order.
func ParseRelativeTime(input string, now time.Time) (time.Time, error) {
	if input == "" {
		return time.Time{}, fmt.Errorf("timeparsing: empty input")
	}

	if IsCompactDuration(input) {
		return ParseCompactDuration(input, now)
	}

	if t, ok := parseISO(input, now.Location()); ok {
		return t, nil
	}

	return ParseNaturalLanguage(input, now)
}
