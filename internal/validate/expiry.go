package validate

import (
	"strconv"
	"strings"
	"time"
)

// PadMonth applies month auto-padding to the raw digits typed so far.
// A single digit that cannot start a valid month gets a leading zero, and two
// digits above 12 are split into a padded month and the start of the year.
// It returns the month and any digits that spill into the year.
func PadMonth(entry string) (month, rest string) {
	if !IsDigits(entry) {
		return entry, ""
	}
	switch len(entry) {
	case 1:
		if entry[0] > '1' {
			return "0" + entry, ""
		}
		return entry, ""
	case 2:
		if m, _ := strconv.Atoi(entry); m > 12 {
			return "0" + entry[:1], entry[1:]
		}
		return entry, ""
	default:
		return entry[:2], entry[2:]
	}
}

// FormatExpiry renders typed digits as "MM / YY" or "MM / YYYY", applying
// PadMonth. Input beyond six digits is truncated.
func FormatExpiry(input string) string {
	var digits strings.Builder
	for _, r := range input {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}
	d := digits.String()
	if d == "" {
		return ""
	}
	month, rest := PadMonth(d[:min(len(d), 2)])
	if len(d) > 2 {
		rest += d[2:]
	}
	if len(month) < 2 {
		return month
	}
	if len(rest) > 4 {
		rest = rest[:4]
	}
	return month + " / " + rest
}

// ParseExpiry splits a display value produced by FormatExpiry into month and
// four-digit year. Two-digit years are placed in the 2000s.
func ParseExpiry(display string) (month, year string) {
	parts := strings.SplitN(strings.ReplaceAll(display, " ", ""), "/", 2)
	month = parts[0]
	if len(parts) == 2 {
		year = NormalizeYear(parts[1])
	}
	return month, year
}

// NormalizeYear expands a two-digit year to four digits.
func NormalizeYear(y string) string {
	if len(y) == 2 && IsDigits(y) {
		return "20" + y
	}
	return y
}

// ExpirationValid reports whether month is 1..12 and the four-digit year is
// not earlier than the current year.
func ExpirationValid(month, year string, now time.Time) bool {
	year = NormalizeYear(year)
	if len(year) != 4 || !IsDigits(year) || !IsDigits(month) {
		return false
	}
	m, err := strconv.Atoi(month)
	if err != nil || m < 1 || m > 12 {
		return false
	}
	y, err := strconv.Atoi(year)
	if err != nil {
		return false
	}
	return y >= now.Year()
}
