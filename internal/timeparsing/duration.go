// Package timeparsing turns the human-friendly time expressions accepted by
// --since flags and config `since` hints into the epoch-ms
// values threaded through to adapters and the Ingestor (internal/ingest).
package timeparsing

import (
	"fmt"
	"regexp"
	"strconv"
	"time"
)

// compactDurationRe matches a signed integer amount followed by a single
// unit letter, with no whitespace: +6h, -1d, 2w, 3m, 1y.
var compactDurationRe = regexp.MustCompile(`^([+-]?)(\d+)([hdwmy])$`)

// IsCompactDuration reports whether input looks like a compact duration
// expression, without parsing it.
func IsCompactDuration(input string) bool {
	return compactDurationRe.MatchString(input)
}

// ParseCompactDuration parses shorthand durations like "+6h", "-1d", "2w",
// "3m" (months), "1y" relative to now. A bare amount (no sign) is treated
// as positive.
func ParseCompactDuration(input string, now time.Time) (time.Time, error) {
	m := compactDurationRe.FindStringSubmatch(input)
	if m == nil {
		return time.Time{}, fmt.Errorf("timeparsing: %q is not a compact duration", input)
	}

	amount, err := strconv.Atoi(m[2])
	if err != nil {
		return time.Time{}, fmt.Errorf("timeparsing: invalid amount in %q: %w", input, err)
	}
	if m[1] == "-" {
		amount = -amount
	}

	switch m[3] {
	case "h":
		return now.Add(time.Duration(amount) * time.Hour), nil
	case "d":
		return now.AddDate(0, 0, amount), nil
	case "w":
		return now.AddDate(0, 0, amount*7), nil
	case "m":
		return now.AddDate(0, amount, 0), nil
	case "y":
		return now.AddDate(amount, 0, 0), nil
	default:
		return time.Time{}, fmt.Errorf("timeparsing: unknown unit in %q", input)
	}
}
