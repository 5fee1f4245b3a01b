// Package core holds the expense data model shared by the client, the
// view pipeline and the reference API.
//
// This file contains amount parsing and formatting.
package core

import (
	"strings"

	"github.com/shopspring/decimal"
)

// ParseValor converts a user-entered amount to a decimal.
//
// It accepts both dot (12.34) and comma (12,34) decimal separators and
// rounds half-up to cents. Only positive amounts are valid.
//
// Examples:
//
//	ParseValor("12.34")  -> 12.34, nil
//	ParseValor("12,34")  -> 12.34, nil
//	ParseValor("12.345") -> 12.35, nil
//	ParseValor("-1")     -> 0, ErrInvalidAmount
func ParseValor(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, ErrInvalidAmount
	}
	s = strings.ReplaceAll(s, ",", ".")
	if strings.HasPrefix(s, "+") || strings.HasPrefix(s, "-") {
		return decimal.Zero, ErrInvalidAmount
	}
	if strings.ContainsAny(s, "eE") {
		return decimal.Zero, ErrInvalidAmount
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, ErrInvalidAmount
	}
	d = d.Round(2)
	if !d.IsPositive() {
		return decimal.Zero, ErrInvalidAmount
	}
	return d, nil
}

// FormatBRL renders an amount the way the expense table shows it: "R$ 1234.50".
func FormatBRL(d decimal.Decimal) string {
	return "R$ " + d.StringFixed(2)
}
