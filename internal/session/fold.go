package session

import (
	"github.com/dennishermann/evaepic-sub000/internal/catalog"
	"github.com/dennishermann/evaepic-sub000/internal/progress"
	"github.com/dennishermann/evaepic-sub000/internal/stream"
)

// fold holds the run state derived from events. Live runs and journal
// replays both go through it so a replay reproduces the live outcome.
type fold struct {
	reducer *progress.Reducer
	model   progress.Model
	result  map[string]any
	status  Status
	err     string
}

func newFold(reducer *progress.Reducer, model progress.Model) *fold {
	return &fold{reducer: reducer, model: model, status: StatusRunning}
}

// apply folds ev and reports whether it ended the run. Events after the end
// are ignored.
func (f *fold) apply(ev progress.Event) bool {
	if f.status != StatusRunning {
		return true
	}
	switch ev.Kind {
	case progress.KindProgress:
		f.model = f.reducer.Apply(f.model, ev)
		f.trackResult(ev)
		return false
	case progress.KindComplete:
		if len(ev.Payload) > 0 {
			f.result = ev.Payload
		}
		f.model = f.reducer.Apply(f.model, ev)
		f.status = StatusCompleted
		return true
	case progress.KindError:
		f.err = ev.Message
		if f.err == "" {
			f.err = ErrTextBackendUnknown
		}
		f.status = StatusFailed
		return true
	}
	return false
}

// trackResult remembers the latest aggregator report as the fallback result.
func (f *fold) trackResult(ev progress.Event) {
	stage, ok := catalog.Resolve(ev.StageKey)
	if !ok || stage.Key != catalog.KeyMarketAnalysis || len(ev.Payload) == 0 {
		return
	}
	if report, ok := ev.Payload["final_comparison_report"].(map[string]any); ok && len(report) > 0 {
		f.result = report
		return
	}
	f.result = ev.Payload
}

// fill copies the fold state into snap.
func (f *fold) fill(snap *Snapshot) {
	snap.Model = f.model
	snap.Result = f.result
	snap.Status = f.status
	snap.Running = f.status == StatusRunning
	snap.Err = f.err
}

// Replay re-derives a run from its recorded raw frames with a fresh reducer
// built from opts, which must match the live reducer (its attribution in
// particular). Malformed frames are skipped and frames after a terminal one
// are ignored, exactly as in a live run. A run that never reached a terminal
// frame comes back with Status running.
func Replay(runID string, frames [][]byte, opts ...progress.Option) Snapshot {
	reducer := progress.NewReducer(opts...)
	f := newFold(reducer, reducer.Reset())
	for _, data := range frames {
		ev, err := stream.Decode(data)
		if err != nil {
			continue
		}
		if f.apply(ev) {
			break
		}
	}
	snap := Snapshot{RunID: runID, Seq: uint64(len(frames))}
	f.fill(&snap)
	snap.Headline = snap.Model.Headline()
	return snap
}
