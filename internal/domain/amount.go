package domain

import "github.com/shopspring/decimal"

// FormatMinor renders an amount in minor units (cents) as a two-place decimal
// string, e.g. 1234 -> "12.34".
func FormatMinor(amount int64) string {
	return decimal.New(amount, -2).StringFixed(2)
}
