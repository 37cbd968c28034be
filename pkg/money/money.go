// Package money rounds and formats monetary amounts stored as numeric(12,2).
package money

import (
	"math"
	"strings"

	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

// DefaultCurrency is used when a record carries no currency code.
const DefaultCurrency = "ZMW"

var printer = message.NewPrinter(language.English)

// Round rounds to cents, half away from zero. The epsilon absorbs binary
// representation error so 1.005 rounds to 1.01 rather than 1.00.
func Round(v float64) float64 {
	return RoundTo(v, 2)
}

// RoundTo rounds to the given number of decimal places, half away from zero.
func RoundTo(v float64, places int) float64 {
	scale := math.Pow10(places)
	shifted := v * scale
	return math.Round(shifted+math.Copysign(1e-9, shifted)) / scale
}

// Sum adds amounts and rounds the result.
func Sum(values ...float64) float64 {
	var total float64
	for _, v := range values {
		total += v
	}
	return Round(total)
}

// Equal compares two amounts at cent precision.
func Equal(a, b float64) bool {
	return Round(a) == Round(b)
}

// Scale returns the number of minor-unit digits for an ISO 4217 code,
// falling back to 2 for unknown codes.
func Scale(code string) int {
	unit, err := currency.ParseISO(normalize(code))
	if err != nil {
		return 2
	}
	scale, _ := currency.Standard.Rounding(unit)
	return scale
}

// Format renders an amount as "<ISO code> <grouped amount>", e.g.
// "ZMW 1,250.50".
func Format(amount float64, code string) string {
	code = normalize(code)
	digits := Scale(code)
	rounded := RoundTo(amount, digits)
	return code + " " + printer.Sprintf("%v", number.Decimal(rounded,
		number.MinFractionDigits(digits),
		number.MaxFractionDigits(digits),
	))
}

// Valid reports whether code is a known ISO 4217 currency.
func Valid(code string) bool {
	_, err := currency.ParseISO(normalize(code))
	return err == nil
}

func normalize(code string) string {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return DefaultCurrency
	}
	return code
}
