package logbook

import (
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestTailReturnsRecentLinesAndTotal(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "journey.log")
	book, err := New(path)
	if err != nil {
		t.Fatalf("new logbook: %v", err)
	}
	for i := 0; i < 5; i++ {
		book.Info("entry-%d", i)
	}
	lines, total := book.Tail(3)
	if total != 5 {
		t.Fatalf("total lines = %d, want 5", total)
	}
	if len(lines) != 3 {
		t.Fatalf("len(lines) = %d, want 3", len(lines))
	}
	for idx, want := range []string{"entry-2", "entry-3", "entry-4"} {
		if !strings.Contains(lines[idx], want) {
			t.Fatalf("line %d = %q, missing %s", idx, lines[idx], want)
		}
	}
}

func TestRunEntriesRoundTripThroughParse(t *testing.T) {
	book, err := New(filepath.Join(t.TempDir(), "logs", "journey.log"))
	if err != nil {
		t.Fatalf("new logbook: %v", err)
	}
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	book.clock = func() time.Time { return fixed }

	book.ForRun("run-42").Error("backend said:\n  %s", "no vendors")
	book.Warn("dropped frame")

	lines, _ := book.Tail(10)
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}
	entry, ok := Parse(lines[0])
	if !ok {
		t.Fatalf("could not parse %q", lines[0])
	}
	if entry.Level != LevelError || entry.RunID != "run-42" || entry.Message != "backend said: no vendors" {
		t.Fatalf("unexpected entry %+v", entry)
	}
	if !entry.Time.Equal(fixed) {
		t.Fatalf("unexpected time %s", entry.Time)
	}
	entry, _ = Parse(lines[1])
	if entry.Level != LevelWarn || entry.RunID != "" {
		t.Fatalf("entries outside a run carry no run id: %+v", entry)
	}
	if _, ok := Parse("garbage"); ok {
		t.Fatalf("garbage must not parse")
	}
}

func TestNilLogbookIsSafe(t *testing.T) {
	var book *Logbook
	book.Info("ignored")
	book.ForRun("x").Warn("ignored")
	if lines, total := book.Tail(5); lines != nil || total != 0 {
		t.Fatalf("nil logbook should have no tail")
	}
}
