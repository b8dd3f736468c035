// Package progress folds negotiation stream events into a monotonic,
// render-ready progress model.
package progress

import (
	"strings"

	"github.com/dennishermann/evaepic-sub000/internal/catalog"
	"github.com/dennishermann/evaepic-sub000/internal/format"
	"github.com/dennishermann/evaepic-sub000/internal/vendors"
)

// Reducer applies stage events to a Model. It owns the vendor tracker of the
// current run, so one Reducer serves one run at a time and is not safe for
// concurrent use.
type Reducer struct {
	tracker     *vendors.Tracker
	formatter   *format.Formatter
	attribution Attribution
}

// Option customizes a Reducer.
type Option func(*Reducer)

// WithAttribution overrides the fan-out attribution strategy.
func WithAttribution(a Attribution) Option {
	return func(r *Reducer) {
		if a != nil {
			r.attribution = a
		}
	}
}

// NewReducer returns a reducer with an empty vendor tracker.
func NewReducer(opts ...Option) *Reducer {
	r := &Reducer{
		tracker:     vendors.NewTracker(),
		formatter:   format.NewFormatter(),
		attribution: FirstPending,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Tracker exposes the vendor tracker for inspection.
func (r *Reducer) Tracker() *vendors.Tracker {
	return r.tracker
}

// Attribution returns the fan-out attribution strategy in use.
func (r *Reducer) Attribution() Attribution {
	return r.attribution
}

// Reset forgets every vendor and returns the seeded model.
func (r *Reducer) Reset() Model {
	r.tracker.Reset()
	return Seed()
}

// Apply folds ev into m and returns the next model. m is never modified.
// Error events leave the model as it was; complete events close every stage.
func (r *Reducer) Apply(m Model, ev Event) Model {
	switch ev.Kind {
	case KindProgress:
		return r.progress(m, ev)
	case KindComplete:
		return Complete(m)
	default:
		return m
	}
}

func (r *Reducer) progress(m Model, ev Event) Model {
	stage, ok := catalog.Resolve(ev.StageKey)
	if !ok {
		return m
	}
	idx := m.index(stage.Number)
	if idx < 0 {
		return m
	}
	r.observe(ev.Payload)

	next := m.Clone()
	for i := range next.Stages {
		if next.Stages[i].Number < stage.Number {
			closeOut(&next.Stages[i])
		}
	}

	current := &next.Stages[idx]
	stageText, rendered := format.RenderStage(stage.Key, ev.Payload)
	if current.Status == StatusCompleted {
		// Late evidence for a finished stage only refreshes what it shows.
		if rendered {
			current.Output = r.formatter.Format(stage.Number, stageText, "")
		}
		return next
	}

	current.Title = stage.DoneTitle
	current.Message = strings.TrimSpace(ev.Message)
	if current.Message == "" {
		current.Message = stage.DefaultMessage
	}
	if rendered {
		current.Output = r.formatter.Format(stage.Number, stageText, "")
	}

	if stage.IsFanOut() {
		r.syncVendors(current, stage)
	}
	if len(current.Vendors) == 0 {
		current.Status = current.Status.advance(StatusActive)
		return next
	}

	if pick, ok := r.attribution.Pick(*current, ev); ok && pick >= 0 && pick < len(current.Vendors) {
		vendor := &current.Vendors[pick]
		vendor.Status = StatusCompleted
		if text, ok := format.RenderVendor(stage.Key, ev.Payload, vendor.VendorID, vendor.DisplayName); ok {
			vendor.Output = r.formatter.Format(stage.Number, text, vendor.DisplayName)
		}
	}
	done := true
	for i := range current.Vendors {
		vendor := &current.Vendors[i]
		vendor.Status = vendor.Status.advance(StatusActive)
		if vendor.Status != StatusCompleted {
			done = false
		}
	}
	if done {
		current.Status = StatusCompleted
	} else {
		current.Status = current.Status.advance(StatusActive)
	}
	return next
}

// observe feeds vendor-set and relevance data into the tracker.
func (r *Reducer) observe(update map[string]any) {
	if refs := vendors.RefsFromPayload(update["all_vendors"]); len(refs) > 0 {
		r.tracker.ObserveVendorSet(refs)
	}
	if refs := vendors.RefsFromPayload(update["relevant_vendors"]); len(refs) > 0 {
		r.tracker.MarkRelevant(refs)
	}
}

// syncVendors seeds a fan-out stage's vendor list on first use and appends
// vendors discovered since, each starting Pending.
func (r *Reducer) syncVendors(sp *StageProgress, stage catalog.Stage) {
	var subset []vendors.Record
	switch stage.FanOut {
	case catalog.FanOutAll:
		subset = r.tracker.AllVendors()
	case catalog.FanOutRelevant:
		subset = r.tracker.RelevantVendors()
	}
	known := make(map[string]bool, len(sp.Vendors))
	for _, vendor := range sp.Vendors {
		known[vendor.VendorID] = true
	}
	for _, rec := range subset {
		if known[rec.ID] {
			continue
		}
		sp.Vendors = append(sp.Vendors, VendorProgress{
			VendorID:    rec.ID,
			DisplayName: rec.DisplayName,
			Status:      StatusPending,
		})
	}
}

// Complete forces every stage and vendor to Completed.
func Complete(m Model) Model {
	next := m.Clone()
	for i := range next.Stages {
		closeOut(&next.Stages[i])
	}
	return next
}

func closeOut(sp *StageProgress) {
	if sp.Status != StatusCompleted {
		if stage, ok := catalog.ByNumber(sp.Number); ok {
			sp.Title = stage.DoneTitle
		}
	}
	sp.Status = StatusCompleted
	for i := range sp.Vendors {
		sp.Vendors[i].Status = StatusCompleted
	}
}
