// Package core holds the job model, schedule rules and calendar aggregation.
//
// This file parses job values typed into spreadsheets, where amounts show up
// as "$12,500", "12500.00" or an empty cell for service jobs.
package core

import (
	"strconv"
	"strings"
	"unicode"
)

// ParseAmount converts a dollar amount to a float rounded to whole cents.
//
// A leading "$", thousands separators and blanks are ignored. An empty input
// is a service job and yields 0. Negative or malformed values return
// ErrInvalidAmount.
//
// Examples:
//
//	ParseAmount("$12,500")  -> 12500, nil
//	ParseAmount("99.995")   -> 100, nil (half-up)
//	ParseAmount("")         -> 0, nil
func ParseAmount(s string) (float64, error) {
	s = strings.Map(func(r rune) rune {
		if r == '$' || r == ',' || unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
	if s == "" {
		return 0, nil
	}
	if strings.HasPrefix(s, "-") {
		return 0, ErrInvalidAmount
	}
	s = strings.TrimPrefix(s, "+")

	parts := strings.Split(s, ".")
	if len(parts) > 2 {
		return 0, ErrInvalidAmount
	}
	intPart := parts[0]
	fracPart := ""
	if len(parts) == 2 {
		fracPart = parts[1]
	}
	if intPart == "" {
		intPart = "0"
	}
	for _, r := range intPart + fracPart {
		if !unicode.IsDigit(r) {
			return 0, ErrInvalidAmount
		}
	}
	iv, err := strconv.ParseInt(intPart, 10, 64)
	if err != nil {
		return 0, ErrInvalidAmount
	}
	const maxSafeInt64 = (1<<63 - 1) / 100
	if iv > maxSafeInt64 {
		return 0, ErrInvalidAmount
	}
	var fracCents int64
	if len(fracPart) > 0 {
		fracCents = int64(fracPart[0]-'0') * 10
		if len(fracPart) > 1 {
			fracCents += int64(fracPart[1] - '0')
			if len(fracPart) > 2 && fracPart[2] >= '5' {
				fracCents++
			}
		}
	}
	return float64(iv*100+fracCents) / 100, nil
}

// ParseCount converts a piece count. Spreadsheets often export integers as
// "12.0", which is accepted; fractional counts are not.
func ParseCount(s string) (int, error) {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	if s == "" {
		return 0, nil
	}
	if n, err := strconv.Atoi(s); err == nil {
		if n < 0 {
			return 0, ErrInvalidAmount
		}
		return n, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f < 0 || f != float64(int(f)) {
		return 0, ErrInvalidAmount
	}
	return int(f), nil
}
