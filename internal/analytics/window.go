package analytics

import (
	"errors"
	"fmt"
	"strconv"
	"time"
	"unicode"
)

// ErrInvalidWindow is returned for window specs that cannot be parsed.
// Callers surface it as a request validation failure.
var ErrInvalidWindow = errors.New("invalid window format")

// ParseWindow parses a compact window spec like "30d", "12w", "6m" or "1y"
// into a duration. Months and years are fixed 30 and 365 day approximations,
// not calendar arithmetic.
func ParseWindow(spec string) (time.Duration, error) {
	if len(spec) < 2 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidWindow, spec)
	}

	n, err := strconv.Atoi(spec[:len(spec)-1])
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidWindow, spec)
	}

	const day = 24 * time.Hour
	switch unicode.ToLower(rune(spec[len(spec)-1])) {
	case 'd':
		return time.Duration(n) * day, nil
	case 'w':
		return time.Duration(n) * 7 * day, nil
	case 'm':
		return time.Duration(n) * 30 * day, nil
	case 'y':
		return time.Duration(n) * 365 * day, nil
	}
	return 0, fmt.Errorf("%w: unsupported unit in %q", ErrInvalidWindow, spec)
}
