// Package dates handles the calendar dates used as record keys.
package dates

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Layout is the wire format of a record date.
const Layout = "2006-01-02"

// ErrInvalidDate is returned for values that are not YYYY-MM-DD dates.
var ErrInvalidDate = errors.New("invalid date, expected YYYY-MM-DD")

// Format renders t in its own location as YYYY-MM-DD.
func Format(t time.Time) string {
	return t.Format(Layout)
}

// Normalize validates a YYYY-MM-DD string and returns it trimmed.
func Normalize(s string) (string, error) {
	s = strings.TrimSpace(s)
	if _, err := time.Parse(Layout, s); err != nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	return s, nil
}

// Today returns the local date.
func Today() string {
	return Format(time.Now())
}

// DaysAgo returns the local date n days before today.
func DaysAgo(n int) string {
	return Format(time.Now().AddDate(0, 0, -n))
}
