package models

import (
	"testing"
	"time"
)

func date(y, m, d int) time.Time {
	return time.Date(y, time.Month(m), d, 0, 0, 0, 0, time.UTC)
}

func TestNextWindowStart_NoCheckpoint(t *testing.T) {
	var cp *ImportCheckpoint
	if got := cp.NextWindowStart(); got != nil {
		t.Fatalf("expected nil for missing checkpoint, got %v", got)
	}

	cp = &ImportCheckpoint{}
	if got := cp.NextWindowStart(); got != nil {
		t.Fatalf("expected nil for empty window, got %v", got)
	}
}

func TestNextWindowStart_DayAfterImportedThrough(t *testing.T) {
	through := date(2025, 6, 1)
	cp := &ImportCheckpoint{ImportedThrough: &through}

	got := cp.NextWindowStart()
	if got == nil {
		t.Fatalf("expected a next window start")
	}
	if want := date(2025, 6, 2); !got.Equal(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestWidenWindow_OnlyWidens(t *testing.T) {
	cp := &ImportCheckpoint{}

	cp.WidenWindow(date(2025, 3, 1), date(2025, 3, 31))
	if !cp.ImportedFrom.Equal(date(2025, 3, 1)) || !cp.ImportedThrough.Equal(date(2025, 3, 31)) {
		t.Fatalf("unexpected initial window %v to %v", cp.ImportedFrom, cp.ImportedThrough)
	}

	// A narrower range must not shrink the window.
	cp.WidenWindow(date(2025, 3, 10), date(2025, 3, 20))
	if !cp.ImportedFrom.Equal(date(2025, 3, 1)) || !cp.ImportedThrough.Equal(date(2025, 3, 31)) {
		t.Fatalf("window shrank to %v to %v", cp.ImportedFrom, cp.ImportedThrough)
	}

	// Earlier start and later end both extend.
	cp.WidenWindow(date(2025, 2, 1), date(2025, 4, 15))
	if !cp.ImportedFrom.Equal(date(2025, 2, 1)) || !cp.ImportedThrough.Equal(date(2025, 4, 15)) {
		t.Fatalf("window did not widen, got %v to %v", cp.ImportedFrom, cp.ImportedThrough)
	}
}

func TestWidenWindow_SequenceIsMonotonic(t *testing.T) {
	cp := &ImportCheckpoint{}
	windows := [][2]time.Time{
		{date(2025, 5, 1), date(2025, 5, 10)},
		{date(2025, 5, 11), date(2025, 5, 20)},
		{date(2025, 4, 1), date(2025, 4, 30)},
		{date(2025, 5, 5), date(2025, 5, 6)},
	}

	var prevFrom, prevThrough *time.Time
	for _, w := range windows {
		cp.WidenWindow(w[0], w[1])
		if prevFrom != nil && cp.ImportedFrom.After(*prevFrom) {
			t.Fatalf("imported-from moved later: %v after %v", cp.ImportedFrom, prevFrom)
		}
		if prevThrough != nil && cp.ImportedThrough.Before(*prevThrough) {
			t.Fatalf("imported-through moved earlier: %v before %v", cp.ImportedThrough, prevThrough)
		}
		prevFrom, prevThrough = cp.ImportedFrom, cp.ImportedThrough
	}
}
