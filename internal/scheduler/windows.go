// Package scheduler decides when publication may happen and drives the
// recurring ingest sweeps.
package scheduler

import (
	"fmt"
	"sort"
	"time"
)

const minutesPerDay = 24 * 60

// Windows is the set of daily time slots during which publication is allowed.
// An empty set means publication is allowed at any time.
type Windows struct {
	location *time.Location
	starts   []int // minutes after local midnight, sorted
	duration time.Duration
}

// ParseWindows builds publish windows from "HH:MM" slot starts, a shared
// window length, and an IANA timezone name. Slots may wrap past midnight.
func ParseWindows(slots []string, windowMinutes int, timezone string) (*Windows, error) {
	location := time.Local
	if timezone != "" {
		loc, err := time.LoadLocation(timezone)
		if err != nil {
			return nil, fmt.Errorf("load timezone %q: %w", timezone, err)
		}
		location = loc
	}
	if windowMinutes <= 0 {
		windowMinutes = 60
	}

	starts := make([]int, 0, len(slots))
	for _, slot := range slots {
		parsed, err := time.Parse("15:04", slot)
		if err != nil {
			return nil, fmt.Errorf("parse window slot %q: %w", slot, err)
		}
		starts = append(starts, parsed.Hour()*60+parsed.Minute())
	}
	sort.Ints(starts)

	return &Windows{
		location: location,
		starts:   starts,
		duration: time.Duration(windowMinutes) * time.Minute,
	}, nil
}

// Always returns windows that never gate publication.
func Always() *Windows {
	return &Windows{location: time.Local}
}

// Unrestricted reports whether no slots are configured.
func (w *Windows) Unrestricted() bool {
	return len(w.starts) == 0
}

// Open reports whether t falls inside a publish window. Window starts are
// inclusive and ends exclusive, so back-to-back slots never overlap.
func (w *Windows) Open(t time.Time) bool {
	if w.Unrestricted() {
		return true
	}
	local := t.In(w.location)
	minute := local.Hour()*60 + local.Minute()
	length := int(w.duration / time.Minute)

	for _, start := range w.starts {
		end := start + length
		if minute >= start && minute < end {
			return true
		}
		// A slot near midnight spills into the next day.
		if end > minutesPerDay && minute < end-minutesPerDay {
			return true
		}
	}
	return false
}

// Next returns the start of the next window at or after t. When t is already
// inside a window, t itself is returned.
func (w *Windows) Next(t time.Time) time.Time {
	if w.Open(t) {
		return t
	}
	local := t.In(w.location)
	minute := local.Hour()*60 + local.Minute()
	midnight := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, w.location)

	for _, start := range w.starts {
		if start > minute {
			return midnight.Add(time.Duration(start) * time.Minute)
		}
	}
	// All of today's slots have passed; first slot tomorrow.
	return midnight.AddDate(0, 0, 1).Add(time.Duration(w.starts[0]) * time.Minute)
}

// Location exposes the timezone the windows are evaluated in.
func (w *Windows) Location() *time.Location {
	return w.location
}

// Slots returns the configured slot starts formatted as "HH:MM".
func (w *Windows) Slots() []string {
	out := make([]string, 0, len(w.starts))
	for _, start := range w.starts {
		out = append(out, fmt.Sprintf("%02d:%02d", start/60, start%60))
	}
	return out
}
