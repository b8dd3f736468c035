package vendors

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Ref identifies a vendor as reported by the backend.
type Ref struct {
	ID   string
	Name string
}

// Record is the tracker's view of one vendor for the current run.
type Record struct {
	ID          string
	DisplayName string
	Relevant    bool
}

// Tracker accumulates the vendor set of a single negotiation run. Vendors are
// kept in first-observed order. Relevance only ever flips from false to true.
//
// A Tracker is owned by one session loop and is not safe for concurrent use.
type Tracker struct {
	order   []string
	records map[string]*Record
}

// NewTracker returns an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{records: map[string]*Record{}}
}

// ObserveVendorSet registers vendors that are not yet known. Known vendors
// are left untouched.
func (t *Tracker) ObserveVendorSet(refs []Ref) {
	for _, ref := range refs {
		t.ensure(ref)
	}
}

// MarkRelevant flags each vendor as relevant, creating it first when the
// relevance signal arrives before the vendor set.
func (t *Tracker) MarkRelevant(refs []Ref) {
	for _, ref := range refs {
		if rec := t.ensure(ref); rec != nil {
			rec.Relevant = true
		}
	}
}

// AllVendors returns every known vendor in first-observed order.
func (t *Tracker) AllVendors() []Record {
	return t.snapshot(func(Record) bool { return true })
}

// RelevantVendors returns the vendors marked relevant in first-observed order.
func (t *Tracker) RelevantVendors() []Record {
	return t.snapshot(func(r Record) bool { return r.Relevant })
}

// Len reports how many vendors are known.
func (t *Tracker) Len() int {
	if t == nil {
		return 0
	}
	return len(t.order)
}

// Reset forgets every vendor.
func (t *Tracker) Reset() {
	t.order = nil
	t.records = map[string]*Record{}
}

func (t *Tracker) ensure(ref Ref) *Record {
	id := strings.TrimSpace(ref.ID)
	if id == "" {
		return nil
	}
	if t.records == nil {
		t.records = map[string]*Record{}
	}
	if rec, ok := t.records[id]; ok {
		return rec
	}
	name := strings.TrimSpace(ref.Name)
	if name == "" {
		name = id
	}
	rec := &Record{ID: id, DisplayName: name}
	t.records[id] = rec
	t.order = append(t.order, id)
	return rec
}

func (t *Tracker) snapshot(keep func(Record) bool) []Record {
	if t == nil || len(t.order) == 0 {
		return nil
	}
	out := make([]Record, 0, len(t.order))
	for _, id := range t.order {
		rec := *t.records[id]
		if keep(rec) {
			out = append(out, rec)
		}
	}
	return out
}

// RefsFromPayload extracts vendor references from a decoded JSON array such
// as state_update.all_vendors. Entries that are not objects or carry no id
// are skipped individually.
func RefsFromPayload(value any) []Ref {
	items, ok := value.([]any)
	if !ok || len(items) == 0 {
		return nil
	}
	refs := make([]Ref, 0, len(items))
	for _, item := range items {
		obj, ok := item.(map[string]any)
		if !ok {
			continue
		}
		id := IDString(obj["id"])
		if id == "" {
			continue
		}
		name, _ := obj["name"].(string)
		refs = append(refs, Ref{ID: id, Name: strings.TrimSpace(name)})
	}
	return refs
}

// IDString renders a JSON vendor identifier, which the backend may send as a
// string or a number, in a canonical string form.
func IDString(value any) string {
	switch v := value.(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case json.Number:
		return v.String()
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case nil:
		return ""
	case bool, map[string]any, []any:
		return ""
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}
