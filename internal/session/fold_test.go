package session

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/dennishermann/evaepic-sub000/internal/progress"
)

func frames(raw ...string) [][]byte {
	out := make([][]byte, len(raw))
	for i, r := range raw {
		out[i] = []byte(r)
	}
	return out
}

func TestReplayReproducesCompletedRun(t *testing.T) {
	snap := Replay("run-9", frames(frameVendors, "not json", frameEvalAcme, frameEvalNone, frameAggregate, frameComplete))
	if snap.RunID != "run-9" || snap.Status != StatusCompleted || snap.Running {
		t.Fatalf("unexpected replay outcome %+v", snap)
	}
	if snap.Seq != 6 {
		t.Fatalf("expected seq 6, got %d", snap.Seq)
	}
	if !snap.Model.AllCompleted() {
		t.Fatalf("expected every stage completed after complete frame")
	}
	if snap.Result["winner"] != "Acme" {
		t.Fatalf("expected aggregator report as result, got %v", snap.Result)
	}
	if snap.Headline != "Order Processing Complete" {
		t.Fatalf("unexpected headline %q", snap.Headline)
	}
}

func TestReplayStopsAtTerminalFrame(t *testing.T) {
	errFrame := `{"type":"error","message":"backend exploded"}`
	snap := Replay("run-err", frames(frameVendors, errFrame, frameEvalAcme, frameComplete))
	if snap.Status != StatusFailed || snap.Err != "backend exploded" {
		t.Fatalf("unexpected replay outcome status=%s err=%q", snap.Status, snap.Err)
	}
	if st, _ := snap.Model.Stage(3); st.Status == progress.StatusCompleted {
		t.Fatalf("frames after the error must be ignored, stage 3 is %s", st.Status)
	}
}

func TestReplayOfUnfinishedRunStaysRunning(t *testing.T) {
	snap := Replay("run-open", frames(frameVendors))
	if snap.Status != StatusRunning || !snap.Running {
		t.Fatalf("expected running status, got %s", snap.Status)
	}
	if snap.Result != nil {
		t.Fatalf("expected no result, got %v", snap.Result)
	}
}

func TestReplayMatchesLiveRunWithVendorIDAttribution(t *testing.T) {
	const evalGlobex = `{"type":"progress","message":"Evaluated vendor suitability.","payload":{"node":"evaluate_vendor","state_update":{"vendor_id":"2","relevant_vendors":[{"id":2,"name":"Globex"}]}}}`
	const backendError = `{"type":"error","payload":{"message":"negotiation backend crashed"}}`
	raw := []string{frameVendors, evalGlobex, backendError}

	fs := newFakeStream(raw...)
	rec := &fakeRecorder{}
	reducer := progress.NewReducer(progress.WithAttribution(progress.ByVendorID))
	s := New(dialerFor(fs), WithReducer(reducer), WithRecorder(rec), WithRunIDs(func() string { return "run-7" }))
	if err := s.Start(context.Background(), "chairs", nil); err != nil {
		t.Fatalf("Start: %v", err)
	}
	live := waitTerminal(t, s)
	if live.Status != StatusFailed {
		t.Fatalf("expected failed run, got %s", live.Status)
	}

	rec.mu.Lock()
	name := rec.begun[0].Attribution
	rec.mu.Unlock()
	if name != progress.AttributionVendorID {
		t.Fatalf("recorded attribution = %q", name)
	}
	attribution, err := progress.ParseAttribution(name)
	if err != nil {
		t.Fatalf("ParseAttribution: %v", err)
	}

	replayed := Replay("run-7", frames(raw...), progress.WithAttribution(attribution))
	if diff := cmp.Diff(live.Model, replayed.Model); diff != "" {
		t.Fatalf("replay diverged from live run (-live +replay):\n%s", diff)
	}
	stage, _ := replayed.Model.Stage(3)
	if len(stage.Vendors) != 2 || stage.Vendors[1].Status != progress.StatusCompleted {
		t.Fatalf("expected Globex credited with the evaluation, got %+v", stage.Vendors)
	}

	if diff := cmp.Diff(live.Model, Replay("run-7", frames(raw...)).Model); diff == "" {
		t.Fatalf("default attribution should credit a different vendor")
	}
}
