package validate

import (
	"regexp"
	"strings"

	"payengine/internal/domain"
)

// Card brands as reported to callers and the host.
const (
	BrandVisa       = "Visa"
	BrandMasterCard = "MasterCard"
	BrandAmex       = "American Express"
	BrandDiscover   = "Discover"
	BrandJCB        = "JCB"
	BrandDiners     = "Diners Club"
)

const (
	minPANLen = 13
	maxPANLen = 19
	amexLen   = 15
)

// Checked in order against the first seven digits.
var brandPatterns = []struct {
	brand string
	re    *regexp.Regexp
}{
	{BrandVisa, regexp.MustCompile(`^4`)},
	{BrandMasterCard, regexp.MustCompile(`^(?:5[1-5][0-9]{5,}|222[1-9][0-9]{3,}|22[3-9][0-9]{4,}|2[3-6][0-9]{5,}|27[01][0-9]{4,}|2720[0-9]{3,})`)},
	{BrandAmex, regexp.MustCompile(`^3[47][0-9]{5,}$`)},
	{BrandDiscover, regexp.MustCompile(`^6(?:011|5[0-9]{2})[0-9]{3,}$`)},
	{BrandJCB, regexp.MustCompile(`^35`)},
	{BrandDiners, regexp.MustCompile(`^3(?:0[0-5]|[68][0-9])[0-9]{4,}$`)},
}

// IsDigits reports whether s is non-empty and contains only ASCII digits.
func IsDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// Luhn reports whether the digit string passes the mod-10 checksum.
func Luhn(digits string) bool {
	if !IsDigits(digits) {
		return false
	}
	sum, dbl := 0, false
	for i := len(digits) - 1; i >= 0; i-- {
		d := int(digits[i] - '0')
		if dbl {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		dbl = !dbl
	}
	return sum%10 == 0
}

// CardNumberValid strips whitespace and checks length (13..19) and Luhn.
func CardNumberValid(pan string) bool {
	d := domain.StripSpaces(pan)
	if len(d) < minPANLen || len(d) > maxPANLen {
		return false
	}
	return Luhn(d)
}

// Brand infers the card brand from the PAN prefix, or "" when unknown.
func Brand(pan string) string {
	d := domain.StripSpaces(pan)
	if len(d) > 7 {
		d = d[:7]
	}
	for _, p := range brandPatterns {
		if p.re.MatchString(d) {
			return p.brand
		}
	}
	return ""
}

func isAmexPrefix(d string) bool {
	return strings.HasPrefix(d, "34") || strings.HasPrefix(d, "37")
}

// MaxDigits is the longest PAN accepted for the brand implied by the prefix.
func MaxDigits(pan string) int {
	if isAmexPrefix(domain.StripSpaces(pan)) {
		return amexLen
	}
	return maxPANLen
}

// FormatCardNumber groups the digits of pan for display: 4-6-5 for
// American Express prefixes, 4-4-4-4-3 otherwise. Non-digits are dropped and
// digits past the brand maximum are truncated.
func FormatCardNumber(pan string) string {
	var digits strings.Builder
	for _, r := range pan {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}
	d := digits.String()
	if max := MaxDigits(d); len(d) > max {
		d = d[:max]
	}

	groups := []int{4, 4, 4, 4, 3}
	if isAmexPrefix(d) {
		groups = []int{4, 6, 5}
	}
	var b strings.Builder
	for _, n := range groups {
		if d == "" {
			break
		}
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		if n > len(d) {
			n = len(d)
		}
		b.WriteString(d[:n])
		d = d[n:]
	}
	return b.String()
}

// EditCardNumber applies a user edit to the displayed number. The edit is
// rejected, and current returned unchanged, when it would exceed the brand's
// maximum length.
func EditCardNumber(current, next string) string {
	d := domain.StripSpaces(next)
	if len(d) > MaxDigits(d) {
		return current
	}
	return FormatCardNumber(d)
}

// BIN returns the first six digits of pan, or "" when fewer are present.
func BIN(pan string) string {
	return domain.Card{Number: pan}.BIN()
}

// MaskPAN keeps the BIN and last four and masks the rest.
func MaskPAN(pan string) string {
	d := domain.StripSpaces(pan)
	n := len(d)
	switch {
	case n == 0:
		return ""
	case n <= 4:
		return strings.Repeat("*", n)
	case n < 10:
		return strings.Repeat("*", n-4) + d[n-4:]
	default:
		return d[:6] + strings.Repeat("*", n-10) + d[n-4:]
	}
}

// SecurityCodeValid reports whether s is 3 or 4 digits.
func SecurityCodeValid(s string) bool {
	return IsDigits(s) && len(s) >= 3 && len(s) <= 4
}
