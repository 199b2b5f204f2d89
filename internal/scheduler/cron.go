// Marquee - Self-Hosted Media Recommendations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package scheduler

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Cron is a parsed 5-field cron expression:
//
//	minute hour day-of-month month day-of-week
//
// Each field accepts *, n, n-m, lists separated by commas, and steps
// (*/s, n/s, n-m/s). Day-of-week accepts 0-7 with both 0 and 7 meaning
// Sunday. As in classic cron, when both day fields are restricted a time
// matches if either one does.
type Cron struct {
	minute, hour, dom, month, dow uint64
	domAny, dowAny                bool
}

type fieldSpec struct {
	name     string
	min, max int
}

var fieldSpecs = [5]fieldSpec{
	{"minute", 0, 59},
	{"hour", 0, 23},
	{"day-of-month", 1, 31},
	{"month", 1, 12},
	{"day-of-week", 0, 7},
}

// ParseCron parses expr.
func ParseCron(expr string) (*Cron, error) {
	fields := strings.Fields(expr)
	if len(fields) != len(fieldSpecs) {
		return nil, fmt.Errorf("cron expression must have 5 fields, got %d", len(fields))
	}

	var sets [5]uint64
	for i, f := range fields {
		set, err := parseCronField(f, fieldSpecs[i])
		if err != nil {
			return nil, fmt.Errorf("invalid %s field: %w", fieldSpecs[i].name, err)
		}
		sets[i] = set
	}

	dow := sets[4]
	if dow&(1<<7) != 0 {
		dow = (dow | 1) &^ (1 << 7)
	}

	return &Cron{
		minute: sets[0],
		hour:   sets[1],
		dom:    sets[2],
		month:  sets[3],
		dow:    dow,
		domAny: fields[2] == "*",
		dowAny: fields[4] == "*",
	}, nil
}

func parseCronField(field string, spec fieldSpec) (uint64, error) {
	var set uint64
	for _, part := range strings.Split(field, ",") {
		bitsPart, err := parseCronPart(part, spec)
		if err != nil {
			return 0, err
		}
		set |= bitsPart
	}
	return set, nil
}

func parseCronPart(part string, spec fieldSpec) (uint64, error) {
	if part == "" {
		return 0, fmt.Errorf("empty value")
	}

	rangePart, stepPart, hasStep := strings.Cut(part, "/")
	step := 1
	if hasStep {
		s, err := strconv.Atoi(stepPart)
		if err != nil || s <= 0 {
			return 0, fmt.Errorf("invalid step %q", stepPart)
		}
		step = s
	}

	var lo, hi int
	switch {
	case rangePart == "*":
		lo, hi = spec.min, spec.max
	case strings.Contains(rangePart, "-"):
		a, b, _ := strings.Cut(rangePart, "-")
		var err error
		if lo, err = strconv.Atoi(a); err != nil {
			return 0, fmt.Errorf("invalid range start %q", a)
		}
		if hi, err = strconv.Atoi(b); err != nil {
			return 0, fmt.Errorf("invalid range end %q", b)
		}
		if lo > hi {
			return 0, fmt.Errorf("range %d-%d is reversed", lo, hi)
		}
	default:
		v, err := strconv.Atoi(rangePart)
		if err != nil {
			return 0, fmt.Errorf("invalid value %q", rangePart)
		}
		lo, hi = v, v
		if hasStep {
			hi = spec.max
		}
	}

	if lo < spec.min || hi > spec.max {
		return 0, fmt.Errorf("%d-%d outside %d-%d", lo, hi, spec.min, spec.max)
	}

	var set uint64
	for v := lo; v <= hi; v += step {
		set |= 1 << uint(v)
	}
	return set, nil
}

// maxSearch bounds NextRun; a valid expression like "0 0 29 2 *" can be
// nearly four years away in the worst case.
const maxSearch = 5 * 366 * 24 * time.Hour

// NextRun returns the first matching minute strictly after after, evaluated
// in loc (UTC when nil). It returns the zero time when nothing matches
// within five years, for example "0 0 31 2 *".
func (c *Cron) NextRun(after time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	t := after.In(loc).Truncate(time.Minute).Add(time.Minute)
	limit := t.Add(maxSearch)

	for t.Before(limit) {
		if !has(c.month, int(t.Month())) {
			t = time.Date(t.Year(), t.Month()+1, 1, 0, 0, 0, 0, loc)
			continue
		}
		if !c.dayMatches(t) {
			t = time.Date(t.Year(), t.Month(), t.Day()+1, 0, 0, 0, 0, loc)
			continue
		}
		if !has(c.hour, t.Hour()) {
			t = time.Date(t.Year(), t.Month(), t.Day(), t.Hour()+1, 0, 0, 0, loc)
			continue
		}
		if !has(c.minute, t.Minute()) {
			t = t.Add(time.Minute)
			continue
		}
		return t
	}
	return time.Time{}
}

func (c *Cron) dayMatches(t time.Time) bool {
	domOK := has(c.dom, t.Day())
	dowOK := has(c.dow, int(t.Weekday()))
	switch {
	case c.domAny && c.dowAny:
		return true
	case c.domAny:
		return dowOK
	case c.dowAny:
		return domOK
	default:
		return domOK || dowOK
	}
}

// Matches reports whether t, already in the schedule's location, is a
// firing minute.
func (c *Cron) Matches(t time.Time) bool {
	return has(c.month, int(t.Month())) && c.dayMatches(t) &&
		has(c.hour, t.Hour()) && has(c.minute, t.Minute())
}

func has(set uint64, v int) bool {
	return set&(1<<uint(v)) != 0
}
