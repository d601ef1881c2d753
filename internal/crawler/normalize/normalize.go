// Package normalize converts the raw text fields published on Dragon-Tiger
// pages into typed values. All functions are pure.
package normalize

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	unitWan = 1e4 // 万
	unitYi  = 1e8 // 亿
)

// ParseAmount parses a currency amount, scaling 万/亿 suffixes to the base
// unit. Empty strings and the placeholders "-" and "--" yield nil, which
// callers must treat as "no value", not zero.
func ParseAmount(text string) *float64 {
	text = strings.TrimSpace(text)
	if text == "" || text == "-" || text == "--" {
		return nil
	}

	text = strings.ReplaceAll(text, ",", "")
	text = strings.ReplaceAll(text, " ", "")

	multiplier := 1.0
	switch {
	case strings.HasSuffix(text, "万"):
		multiplier = unitWan
		text = strings.TrimSuffix(text, "万")
	case strings.HasSuffix(text, "亿"):
		multiplier = unitYi
		text = strings.TrimSuffix(text, "亿")
	}

	value, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return nil
	}

	result := value * multiplier
	return &result
}

// ParsePercent parses a percentage value, tolerating a trailing "%".
// Invalid input yields nil.
func ParsePercent(text string) *float64 {
	text = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(text), "%"))
	if text == "" || text == "-" || text == "--" {
		return nil
	}

	value, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return nil
	}
	return &value
}

// ParseFloat parses a plain decimal field with the same placeholder handling
// as ParseAmount but no unit scaling.
func ParseFloat(text string) *float64 {
	text = strings.TrimSpace(text)
	if text == "" || text == "-" || text == "--" {
		return nil
	}
	text = strings.ReplaceAll(text, ",", "")

	value, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return nil
	}
	return &value
}

// ParseDate parses a date string in the given layout. Malformed input is an
// error; callers must not silently substitute the current date.
func ParseDate(text, layout string) (time.Time, error) {
	t, err := time.Parse(layout, strings.TrimSpace(text))
	if err != nil {
		return time.Time{}, fmt.Errorf("malformed date %q: %w", text, err)
	}
	return t, nil
}
