// Package interval converts between bucket widths expressed as a number of
// seconds and calendar-frequency codes such as "1H" or "15T". Frequency
// codes are the compact form used when talking to series indexes and when
// translating an internal interval into an exchange-specific encoding.
package interval

import (
	"fmt"
	"strconv"
)

// unit pairs a frequency letter with its width in seconds. The table is
// ordered largest to smallest; ToFrequency picks the first exact divisor.
// The 1-second base unit divides every positive interval, so ToFrequency
// cannot fail for valid input.
type unit struct {
	letter  string
	seconds int64
}

var units = []unit{
	{"D", 86400},
	{"H", 3600},
	{"T", 60},
	{"S", 1},
}

var secondsByLetter = map[string]int64{
	"D": 86400,
	"H": 3600,
	"T": 60,
	"S": 1,
}

// ToFrequency encodes an interval in seconds as "{multiplier}{unit}",
// choosing the largest unit that evenly divides the interval. For example
// 3600 becomes "1H" rather than "60T" or "3600S".
func ToFrequency(seconds int64) (string, error) {
	if seconds <= 0 {
		return "", fmt.Errorf("interval must be positive, got %d", seconds)
	}

	for _, u := range units {
		if seconds%u.seconds == 0 {
			return fmt.Sprintf("%d%s", seconds/u.seconds, u.letter), nil
		}
	}

	// Unreachable while the 1-second unit is registered.
	return "", fmt.Errorf("no registered unit divides interval %d", seconds)
}

// FromFrequency parses a frequency code back into a number of seconds.
// The leading multiplier is optional and defaults to 1, so "H" and "1H"
// are equivalent. An unrecognized unit letter is an error.
func FromFrequency(code string) (int64, error) {
	if code == "" {
		return 0, fmt.Errorf("empty frequency code")
	}

	letter := code[len(code)-1:]
	seconds, ok := secondsByLetter[letter]
	if !ok {
		return 0, fmt.Errorf("unknown frequency unit %q in code %q", letter, code)
	}

	multiplier := int64(1)
	if num := code[:len(code)-1]; num != "" {
		n, err := strconv.ParseInt(num, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid multiplier in frequency code %q: %w", code, err)
		}
		multiplier = n
	}
	if multiplier <= 0 {
		return 0, fmt.Errorf("multiplier must be positive in frequency code %q", code)
	}

	return multiplier * seconds, nil
}
