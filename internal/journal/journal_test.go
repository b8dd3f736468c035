package journal

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/dennishermann/evaepic-sub000/internal/progress"
	"github.com/dennishermann/evaepic-sub000/internal/session"
)

func newTestJournal(t *testing.T) *Journal {
	t.Helper()
	j, err := Open(context.Background(), filepath.Join(t.TempDir(), "state", "journal.db"))
	if err != nil {
		t.Fatalf("open journal: %v", err)
	}
	t.Cleanup(func() { _ = j.Close() })
	return j
}

func fixedClock(start time.Time) func() time.Time {
	now := start
	return func() time.Time {
		now = now.Add(time.Second)
		return now
	}
}

const (
	frameVendors   = `{"type":"progress","message":"Found 1 potential vendor.","payload":{"node":"fetch_vendors","state_update":{"all_vendors":[{"id":1,"name":"Acme"}]}}}`
	frameAggregate = `{"type":"progress","message":"Finalizing.","payload":{"node":"aggregator","state_update":{"final_comparison_report":{"winner":"Acme"}}}}`
	frameComplete  = `{"type":"complete","payload":{}}`
)

func TestMigrateIdempotent(t *testing.T) {
	j := newTestJournal(t)
	ctx := context.Background()
	for i := 0; i < 2; i++ {
		if err := migrate(ctx, j.db); err != nil {
			t.Fatalf("migrate (run %d): %v", i+1, err)
		}
	}
	var count int
	if err := j.db.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&count); err != nil {
		t.Fatalf("query schema_migrations: %v", err)
	}
	if count != len(migrations) {
		t.Fatalf("expected %d applied migrations, got %d", len(migrations), count)
	}
}

func TestOpenEnablesForeignKeys(t *testing.T) {
	j := newTestJournal(t)
	var fk int
	if err := j.db.QueryRow("PRAGMA foreign_keys").Scan(&fk); err != nil {
		t.Fatalf("query foreign_keys: %v", err)
	}
	if fk != 1 {
		t.Fatalf("foreign_keys = %d, want 1", fk)
	}
	err := j.RecordFrame(context.Background(), "missing", 1, []byte("{}"))
	if err == nil {
		t.Fatalf("expected frame for unknown run to be rejected")
	}
}

func TestRecordAndListRuns(t *testing.T) {
	j := newTestJournal(t)
	j.clock = fixedClock(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	ctx := context.Background()

	first := session.RunInfo{
		ID:          "run-1",
		Input:       "10 chairs",
		Order:       map[string]any{"item": "chair"},
		Attribution: progress.AttributionVendorID,
		StartedAt:   time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC),
	}
	second := session.RunInfo{ID: "run-2", Input: "5 desks", StartedAt: time.Date(2026, 3, 1, 8, 30, 0, 0, time.UTC)}
	for _, info := range []session.RunInfo{first, second} {
		if err := j.BeginRun(ctx, info); err != nil {
			t.Fatalf("BeginRun %s: %v", info.ID, err)
		}
	}
	if err := j.RecordFrame(ctx, "run-1", 1, []byte(frameVendors)); err != nil {
		t.Fatalf("RecordFrame: %v", err)
	}
	if err := j.RecordFrame(ctx, "run-1", 2, []byte("garbage")); err != nil {
		t.Fatalf("RecordFrame: %v", err)
	}
	if err := j.FinishRun(ctx, "run-1", session.StatusFailed, "Connection error occurred"); err != nil {
		t.Fatalf("FinishRun: %v", err)
	}

	runs, err := j.Runs(ctx, 0)
	if err != nil {
		t.Fatalf("Runs: %v", err)
	}
	if len(runs) != 2 || runs[0].ID != "run-2" || runs[1].ID != "run-1" {
		t.Fatalf("expected newest run first, got %+v", runs)
	}
	got := runs[1]
	want := Run{
		ID:          "run-1",
		Input:       "10 chairs",
		Order:       map[string]any{"item": "chair"},
		Attribution: progress.AttributionVendorID,
		Status:      session.StatusFailed,
		Err:         "Connection error occurred",
		StartedAt:   first.StartedAt,
		FinishedAt:  time.Date(2026, 3, 1, 9, 0, 3, 0, time.UTC),
		Frames:      2,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("run mismatch (-want +got):\n%s", diff)
	}
	if runs[0].Status != session.StatusRunning || runs[0].Order != nil {
		t.Fatalf("unfinished run should stay running without order, got %+v", runs[0])
	}

	limited, err := j.Runs(ctx, 1)
	if err != nil || len(limited) != 1 {
		t.Fatalf("expected one run with limit, got %d (%v)", len(limited), err)
	}
}

func TestFinishRunKeepsFirstOutcome(t *testing.T) {
	j := newTestJournal(t)
	ctx := context.Background()
	if err := j.BeginRun(ctx, session.RunInfo{ID: "run-1", Input: "x"}); err != nil {
		t.Fatalf("BeginRun: %v", err)
	}
	if err := j.FinishRun(ctx, "run-1", session.StatusCompleted, ""); err != nil {
		t.Fatalf("FinishRun: %v", err)
	}
	if err := j.FinishRun(ctx, "run-1", session.StatusCancelled, ""); err != nil {
		t.Fatalf("second FinishRun: %v", err)
	}
	run, err := j.Run(ctx, "run-1")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if run.Status != session.StatusCompleted {
		t.Fatalf("expected first outcome kept, got %s", run.Status)
	}
	if err := j.FinishRun(ctx, "nope", session.StatusFailed, ""); !errors.Is(err, ErrRunNotFound) {
		t.Fatalf("expected ErrRunNotFound, got %v", err)
	}
}

func TestReplayCompletedRun(t *testing.T) {
	j := newTestJournal(t)
	ctx := context.Background()
	if err := j.BeginRun(ctx, session.RunInfo{ID: "run-1", Input: "chairs"}); err != nil {
		t.Fatalf("BeginRun: %v", err)
	}
	for i, f := range []string{frameVendors, frameAggregate, frameComplete} {
		if err := j.RecordFrame(ctx, "run-1", i+1, []byte(f)); err != nil {
			t.Fatalf("RecordFrame: %v", err)
		}
	}
	if err := j.FinishRun(ctx, "run-1", session.StatusCompleted, ""); err != nil {
		t.Fatalf("FinishRun: %v", err)
	}
	snap, err := j.Replay(ctx, "run-1")
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if snap.Status != session.StatusCompleted || !snap.Model.AllCompleted() {
		t.Fatalf("expected completed replay, got status=%s", snap.Status)
	}
	if snap.Result["winner"] != "Acme" {
		t.Fatalf("unexpected result %v", snap.Result)
	}
}

func TestReplayAppliesRecordedOutcomeForTruncatedRun(t *testing.T) {
	j := newTestJournal(t)
	ctx := context.Background()
	if err := j.BeginRun(ctx, session.RunInfo{ID: "run-1", Input: "chairs"}); err != nil {
		t.Fatalf("BeginRun: %v", err)
	}
	if err := j.RecordFrame(ctx, "run-1", 1, []byte(frameVendors)); err != nil {
		t.Fatalf("RecordFrame: %v", err)
	}
	if err := j.FinishRun(ctx, "run-1", session.StatusFailed, session.ErrTextClosedEarly); err != nil {
		t.Fatalf("FinishRun: %v", err)
	}
	snap, err := j.Replay(ctx, "run-1")
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if snap.Status != session.StatusFailed || snap.Running || snap.Err != session.ErrTextClosedEarly {
		t.Fatalf("expected recorded failure, got status=%s err=%q", snap.Status, snap.Err)
	}
}

func TestReplayUsesRecordedAttribution(t *testing.T) {
	j := newTestJournal(t)
	ctx := context.Background()
	if err := j.BeginRun(ctx, session.RunInfo{ID: "run-1", Input: "chairs", Attribution: progress.AttributionVendorID}); err != nil {
		t.Fatalf("BeginRun: %v", err)
	}
	frames := []string{
		`{"type":"progress","message":"Found 2 vendors.","payload":{"node":"fetch_vendors","state_update":{"all_vendors":[{"id":1,"name":"Acme"},{"id":2,"name":"Globex"}]}}}`,
		`{"type":"progress","message":"Evaluated.","payload":{"node":"evaluate_vendor","state_update":{"vendor_id":"2","relevant_vendors":[{"id":2,"name":"Globex"}]}}}`,
		`{"type":"error","payload":{"message":"backend crashed"}}`,
	}
	for i, f := range frames {
		if err := j.RecordFrame(ctx, "run-1", i+1, []byte(f)); err != nil {
			t.Fatalf("RecordFrame: %v", err)
		}
	}
	snap, err := j.Replay(ctx, "run-1")
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	stage, _ := snap.Model.Stage(3)
	got := make([]progress.Status, len(stage.Vendors))
	for i, vendor := range stage.Vendors {
		got[i] = vendor.Status
	}
	want := []progress.Status{progress.StatusActive, progress.StatusCompleted}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("evaluation credited to the wrong vendor (-want +got):\n%s", diff)
	}
}

func TestReplayRejectsUnknownAttribution(t *testing.T) {
	j := newTestJournal(t)
	ctx := context.Background()
	if err := j.BeginRun(ctx, session.RunInfo{ID: "run-1", Input: "chairs", Attribution: "round-robin"}); err != nil {
		t.Fatalf("BeginRun: %v", err)
	}
	if _, err := j.Replay(ctx, "run-1"); err == nil {
		t.Fatalf("expected error for unknown attribution")
	}
}

func TestReplayUnknownRun(t *testing.T) {
	j := newTestJournal(t)
	if _, err := j.Replay(context.Background(), "ghost"); !errors.Is(err, ErrRunNotFound) {
		t.Fatalf("expected ErrRunNotFound, got %v", err)
	}
}

func TestJournalRecordsLiveSession(t *testing.T) {
	j := newTestJournal(t)
	// Drive the recorder through the same calls a live session makes.
	var rec session.Recorder = j
	ctx := context.Background()
	if err := rec.BeginRun(ctx, session.RunInfo{ID: "live"}); err != nil {
		t.Fatalf("BeginRun: %v", err)
	}
	if err := rec.FinishRun(ctx, "live", session.StatusCancelled, ""); err != nil {
		t.Fatalf("FinishRun: %v", err)
	}
	snap, err := j.Replay(ctx, "live")
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if snap.Status != session.StatusCancelled {
		t.Fatalf("expected cancelled replay, got %s", snap.Status)
	}
}
