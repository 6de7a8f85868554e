// Package core holds the expense domain: records, money parsing, label
// normalization, grouping, totals and the category registry.
//
// This file contains the parsers for the price and quantity fields of the
// add-expense form and the presentation formatter for totals.
package core

import (
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// ParsePrice converts a user supplied price to a decimal without rounding.
//
// Both dot (12.34) and comma (12,34) decimal separators are accepted.
// Negative values and anything that is not a plain decimal number are
// rejected; zero is allowed since unit prices are non-negative.
//
// Examples:
//
//	ParsePrice("12.34")  -> 12.34, nil
//	ParsePrice("12,345") -> 12.345, nil
//	ParsePrice("-1")     -> 0, ErrInvalidPrice
//	ParsePrice("1e3")    -> 0, ErrInvalidPrice
func ParsePrice(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, ErrEmptyPrice
	}
	s = strings.ReplaceAll(s, ",", ".")
	if strings.HasPrefix(s, "-") || strings.HasPrefix(s, "+") {
		return decimal.Zero, ErrInvalidPrice
	}
	// decimal.NewFromString also accepts exponents; the form never does.
	for _, r := range s {
		if (r < '0' || r > '9') && r != '.' {
			return decimal.Zero, ErrInvalidPrice
		}
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, ErrInvalidPrice
	}
	return d, nil
}

// ParseQuantity parses a positive integer quantity. A blank field means 1,
// which is the form's initial value.
func ParseQuantity(s string) (int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 1, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 {
		return 0, ErrInvalidQuantity
	}
	return n, nil
}

// FormatAmount renders a total with two decimals. Rounding happens here and
// nowhere during accumulation.
func FormatAmount(d decimal.Decimal) string {
	return d.StringFixed(2)
}
