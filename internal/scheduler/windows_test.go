package scheduler_test

import (
	"sync/atomic"
	"testing"
	"time"

	"repost/internal/logging"
	"repost/internal/scheduler"
	"repost/internal/testsupport"
)

func mustWindows(t *testing.T, slots []string, minutes int, tz string) *scheduler.Windows {
	t.Helper()
	w, err := scheduler.ParseWindows(slots, minutes, tz)
	if err != nil {
		t.Fatalf("ParseWindows failed: %v", err)
	}
	return w
}

func at(t *testing.T, tz string, hour, minute int) time.Time {
	t.Helper()
	loc, err := time.LoadLocation(tz)
	if err != nil {
		t.Fatalf("load location: %v", err)
	}
	return time.Date(2026, time.March, 10, hour, minute, 0, 0, loc)
}

func TestWindowBoundaries(t *testing.T) {
	w := mustWindows(t, []string{"09:00", "18:30"}, 60, "UTC")

	cases := []struct {
		hour, minute int
		open         bool
	}{
		{8, 59, false},
		{9, 0, true}, // start inclusive
		{9, 59, true},
		{10, 0, false}, // end exclusive
		{18, 29, false},
		{18, 30, true},
		{19, 29, true},
		{19, 30, false},
	}
	for _, tc := range cases {
		got := w.Open(at(t, "UTC", tc.hour, tc.minute))
		if got != tc.open {
			t.Errorf("Open(%02d:%02d) = %v, want %v", tc.hour, tc.minute, got, tc.open)
		}
	}
}

func TestWindowWrapsPastMidnight(t *testing.T) {
	w := mustWindows(t, []string{"23:30"}, 60, "UTC")

	if !w.Open(at(t, "UTC", 23, 45)) {
		t.Error("23:45 should be open")
	}
	if !w.Open(at(t, "UTC", 0, 15)) {
		t.Error("00:15 should still be inside the 23:30 window")
	}
	if w.Open(at(t, "UTC", 0, 30)) {
		t.Error("00:30 should be closed")
	}
}

func TestWindowHonorsTimezone(t *testing.T) {
	w := mustWindows(t, []string{"09:00"}, 60, "America/New_York")

	// 13:30 UTC is 09:30 in New York during March DST.
	utc := time.Date(2026, time.March, 10, 13, 30, 0, 0, time.UTC)
	if !w.Open(utc) {
		t.Error("13:30 UTC should fall in the New York morning window")
	}
	if w.Open(utc.Add(-2 * time.Hour)) {
		t.Error("11:30 UTC should be outside the window")
	}
}

func TestEmptyWindowsAlwaysOpen(t *testing.T) {
	w := mustWindows(t, nil, 60, "UTC")
	if !w.Unrestricted() || !w.Open(time.Now()) {
		t.Error("windows with no slots must always be open")
	}
	if !scheduler.Always().Open(time.Now()) {
		t.Error("Always must be open")
	}
}

func TestNextFindsUpcomingSlot(t *testing.T) {
	w := mustWindows(t, []string{"09:00", "18:30"}, 60, "UTC")

	next := w.Next(at(t, "UTC", 10, 0))
	if next.Hour() != 18 || next.Minute() != 30 {
		t.Fatalf("Next after 10:00 = %s", next)
	}

	next = w.Next(at(t, "UTC", 20, 0))
	if next.Day() != 11 || next.Hour() != 9 {
		t.Fatalf("Next after 20:00 = %s", next)
	}

	inside := at(t, "UTC", 9, 30)
	if !w.Next(inside).Equal(inside) {
		t.Fatalf("Next inside a window = %s, want %s", w.Next(inside), inside)
	}
}

func TestParseWindowsRejectsBadInput(t *testing.T) {
	if _, err := scheduler.ParseWindows([]string{"25:00"}, 60, "UTC"); err == nil {
		t.Error("expected error for slot 25:00")
	}
	if _, err := scheduler.ParseWindows([]string{"09:00"}, 60, "Mars/Olympus"); err == nil {
		t.Error("expected error for unknown timezone")
	}
}

func TestSchedulerLifecycle(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Ingest.IntervalMinutes = 1

	var sweeps, kicks atomic.Int64
	w := mustWindows(t, []string{"09:00", "18:30"}, 60, "UTC")
	sched, err := scheduler.New(cfg, w,
		func() { sweeps.Add(1) },
		func() { kicks.Add(1) },
		logging.NewNop())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	// Start and stop must be clean even when no job has fired yet.
	sched.Start()
	sched.Stop()
	if sweeps.Load() != 0 || kicks.Load() != 0 {
		t.Fatalf("jobs fired unexpectedly: sweeps=%d kicks=%d", sweeps.Load(), kicks.Load())
	}
}
