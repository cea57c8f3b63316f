package model

import (
	"strconv"
)

// FormatMinorUnits renders an amount in minor currency units as a decimal string.
// The backend reports every price in minor units; the bot shows two decimals.
// Examples: 1250 → "12.50", 5 → "0.05", -300 → "-3.00"
func FormatMinorUnits(amount int64) string {
	sign := ""
	if amount < 0 {
		sign = "-"
		amount = -amount
	}
	cents := amount % 100
	s := sign + strconv.FormatInt(amount/100, 10) + "."
	if cents < 10 {
		s += "0"
	}
	return s + strconv.FormatInt(cents, 10)
}

// FormatPrice renders a price with the currency sign the bot uses in messages.
func FormatPrice(amount int64) string {
	return FormatMinorUnits(amount) + "$"
}
