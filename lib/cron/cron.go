// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package cron

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Schedule is a parsed cron expression.
type Schedule struct {
	expression string

	minutes     bitset64
	hours       bitset64
	daysOfMonth bitset64
	months      bitset64
	daysOfWeek  bitset64

	// Set when the corresponding day field does not start with "*".
	domRestricted bool
	dowRestricted bool
}

// bitset64 is a set of small integers.
type bitset64 uint64

func (b bitset64) has(value int) bool { return b&(1<<uint(value)) != 0 }
func (b *bitset64) set(value int)     { *b |= 1 << uint(value) }

// field describes one position of a cron expression.
type field struct {
	name     string
	minimum  int
	maximum  int
	names    map[string]int
	sundayAt int // value folded onto 0, or -1
}

var (
	minuteField = field{name: "minute", minimum: 0, maximum: 59, sundayAt: -1}
	hourField   = field{name: "hour", minimum: 0, maximum: 23, sundayAt: -1}
	domField    = field{name: "day-of-month", minimum: 1, maximum: 31, sundayAt: -1}
	monthField  = field{name: "month", minimum: 1, maximum: 12, sundayAt: -1, names: map[string]int{
		"jan": 1, "feb": 2, "mar": 3, "apr": 4, "may": 5, "jun": 6,
		"jul": 7, "aug": 8, "sep": 9, "oct": 10, "nov": 11, "dec": 12,
	}}
	dowField = field{name: "day-of-week", minimum: 0, maximum: 7, sundayAt: 7, names: map[string]int{
		"sun": 0, "mon": 1, "tue": 2, "wed": 3, "thu": 4, "fri": 5, "sat": 6,
	}}
)

var descriptors = map[string]string{
	"@yearly":   "0 0 1 1 *",
	"@annually": "0 0 1 1 *",
	"@monthly":  "0 0 1 * *",
	"@weekly":   "0 0 * * 0",
	"@daily":    "0 0 * * *",
	"@midnight": "0 0 * * *",
	"@hourly":   "0 * * * *",
}

// Parse parses a 5-field cron expression or a descriptor.
func Parse(expression string) (Schedule, error) {
	original := strings.TrimSpace(expression)
	if strings.HasPrefix(original, "@") {
		expanded, ok := descriptors[strings.ToLower(original)]
		if !ok {
			return Schedule{}, fmt.Errorf("cron: unknown descriptor %q", original)
		}
		expression = expanded
	}

	fields := strings.Fields(expression)
	if len(fields) != 5 {
		return Schedule{}, fmt.Errorf("cron: expected 5 fields, got %d", len(fields))
	}

	schedule := Schedule{
		expression:    original,
		domRestricted: !strings.HasPrefix(fields[2], "*"),
		dowRestricted: !strings.HasPrefix(fields[4], "*"),
	}
	targets := []struct {
		spec field
		bits *bitset64
	}{
		{minuteField, &schedule.minutes},
		{hourField, &schedule.hours},
		{domField, &schedule.daysOfMonth},
		{monthField, &schedule.months},
		{dowField, &schedule.daysOfWeek},
	}
	for i, target := range targets {
		bits, err := target.spec.parse(fields[i])
		if err != nil {
			return Schedule{}, fmt.Errorf("cron: %s field: %w", target.spec.name, err)
		}
		*target.bits = bits
	}
	return schedule, nil
}

// MustParse is Parse for expressions known at compile time. Panics on
// error.
func MustParse(expression string) Schedule {
	schedule, err := Parse(expression)
	if err != nil {
		panic(err)
	}
	return schedule
}

// String returns the expression the schedule was parsed from.
func (s Schedule) String() string { return s.expression }

// Next returns the earliest minute strictly after t that matches the
// schedule. An error means no match exists within four years, which
// happens only for impossible dates such as February 30.
func (s Schedule) Next(t time.Time) (time.Time, error) {
	t = t.UTC().Truncate(time.Minute).Add(time.Minute)
	limit := t.AddDate(4, 0, 0)

	for t.Before(limit) {
		switch {
		case !s.months.has(int(t.Month())):
			t = time.Date(t.Year(), t.Month()+1, 1, 0, 0, 0, 0, time.UTC)
		case !s.dayMatches(t):
			t = time.Date(t.Year(), t.Month(), t.Day()+1, 0, 0, 0, 0, time.UTC)
		case !s.hours.has(t.Hour()):
			t = time.Date(t.Year(), t.Month(), t.Day(), t.Hour()+1, 0, 0, 0, time.UTC)
		case !s.minutes.has(t.Minute()):
			t = t.Add(time.Minute)
		default:
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("cron: %q has no occurrence within 4 years of %s", s.expression, t.Format(time.RFC3339))
}

func (s Schedule) dayMatches(t time.Time) bool {
	dom := s.daysOfMonth.has(t.Day())
	dow := s.daysOfWeek.has(int(t.Weekday()))
	if s.domRestricted && s.dowRestricted {
		return dom || dow
	}
	return dom && dow
}

// parse parses a comma-separated list of terms.
func (f field) parse(text string) (bitset64, error) {
	var result bitset64
	for _, term := range strings.Split(text, ",") {
		bits, err := f.parseTerm(term)
		if err != nil {
			return 0, err
		}
		result |= bits
	}
	if f.sundayAt >= 0 && result.has(f.sundayAt) {
		result &^= 1 << uint(f.sundayAt)
		result.set(0)
	}
	return result, nil
}

// parseTerm parses *, */N, V, V-V, or V-V/N.
func (f field) parseTerm(term string) (bitset64, error) {
	rangeText, stepText, hasStep := strings.Cut(term, "/")
	step := 1
	if hasStep {
		parsed, err := strconv.Atoi(stepText)
		if err != nil {
			return 0, fmt.Errorf("invalid step %q", stepText)
		}
		if parsed <= 0 {
			return 0, fmt.Errorf("step must be positive, got %d", parsed)
		}
		step = parsed
	}

	var start, end int
	switch startText, endText, isRange := strings.Cut(rangeText, "-"); {
	case rangeText == "*":
		start, end = f.minimum, f.maximum
		if f.sundayAt >= 0 {
			end = f.sundayAt - 1
		}
	case isRange:
		var err error
		if start, err = f.value(startText); err != nil {
			return 0, err
		}
		if end, err = f.value(endText); err != nil {
			return 0, err
		}
		if start > end {
			return 0, fmt.Errorf("range start %d > end %d", start, end)
		}
	default:
		value, err := f.value(rangeText)
		if err != nil {
			return 0, err
		}
		start, end = value, value
		if hasStep {
			end = f.maximum
		}
	}

	var result bitset64
	for value := start; value <= end; value += step {
		result.set(value)
	}
	return result, nil
}

func (f field) value(text string) (int, error) {
	if number, ok := f.names[strings.ToLower(text)]; ok {
		return number, nil
	}
	value, err := strconv.Atoi(text)
	if err != nil {
		return 0, fmt.Errorf("invalid value %q", text)
	}
	if value < f.minimum || value > f.maximum {
		return 0, fmt.Errorf("value %d out of range [%d-%d]", value, f.minimum, f.maximum)
	}
	return value, nil
}
