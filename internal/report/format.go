// Package report renders backtest runs for terminals and spreadsheets.
package report

import (
	"math"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// FormatInt formats an integer with comma separators.
func FormatInt(n int) string {
	s := strconv.FormatInt(int64(n), 10)
	sign := ""
	if n < 0 {
		sign, s = "-", s[1:]
	}
	if len(s) <= 3 {
		return sign + s
	}
	var b strings.Builder
	b.WriteString(sign)
	start := len(s) % 3
	if start > 0 {
		b.WriteString(s[:start])
	}
	for i := start; i < len(s); i += 3 {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(s[i : i+3])
	}
	return b.String()
}

// FormatPercent renders a fraction as a signed percentage with two decimals:
// 0.1234 is "+12.34%", -0.05 is "-5.00%" and 0 is "0.00%".
func FormatPercent(f float64) string {
	if !finite(f) {
		return "n/a"
	}
	d := decimal.NewFromFloat(f).Mul(hundred).Round(2)
	s := d.StringFixed(2)
	if d.IsPositive() {
		s = "+" + s
	}
	return s + "%"
}

// FormatRatio renders a plain number with the given number of decimals.
func FormatRatio(f float64, places int32) string {
	if !finite(f) {
		return "n/a"
	}
	return decimal.NewFromFloat(f).StringFixed(places)
}

// FormatPrice formats a price with two decimals, or "-" for zero.
func FormatPrice(p float64) string {
	if p == 0 || !finite(p) {
		return "-"
	}
	return decimal.NewFromFloat(p).StringFixed(2)
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
