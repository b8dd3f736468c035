package vendors

import (
	"encoding/json"
	"testing"
)

func TestObserveVendorSetIsIdempotent(t *testing.T) {
	tr := NewTracker()
	tr.ObserveVendorSet([]Ref{{ID: "1", Name: "Acme"}, {ID: "2", Name: "Globex"}})
	tr.ObserveVendorSet([]Ref{{ID: "1", Name: "Renamed"}, {ID: "3", Name: "Initech"}})
	all := tr.AllVendors()
	if len(all) != 3 {
		t.Fatalf("expected 3 vendors, got %d", len(all))
	}
	if all[0].DisplayName != "Acme" {
		t.Fatalf("re-observing must not rename a known vendor, got %q", all[0].DisplayName)
	}
	if all[2].ID != "3" {
		t.Fatalf("expected first-observed order, got %+v", all)
	}
	for _, rec := range all {
		if rec.Relevant {
			t.Fatalf("observed vendors start irrelevant: %+v", rec)
		}
	}
}

func TestMarkRelevantCreatesUnknownVendors(t *testing.T) {
	tr := NewTracker()
	tr.ObserveVendorSet([]Ref{{ID: "1", Name: "Acme"}})
	tr.MarkRelevant([]Ref{{ID: "9", Name: "Late Co"}})
	relevant := tr.RelevantVendors()
	if len(relevant) != 1 || relevant[0].ID != "9" {
		t.Fatalf("expected late vendor to become relevant, got %+v", relevant)
	}
	if tr.Len() != 2 {
		t.Fatalf("expected 2 known vendors, got %d", tr.Len())
	}
}

func TestRelevanceIsMonotonic(t *testing.T) {
	tr := NewTracker()
	tr.MarkRelevant([]Ref{{ID: "1", Name: "Acme"}})
	tr.ObserveVendorSet([]Ref{{ID: "1", Name: "Acme"}})
	all := tr.AllVendors()
	if len(all) != 1 || !all[0].Relevant {
		t.Fatalf("relevance must never revert, got %+v", all)
	}
}

func TestMalformedEntriesAreSkipped(t *testing.T) {
	var payload any
	raw := `[{"id": 7, "name": "Acme"}, "junk", {"name": "no id"}, {"id": "x-1"}, null, {"id": 2.5, "name": " Globex "}]`
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	refs := RefsFromPayload(payload)
	if len(refs) != 3 {
		t.Fatalf("expected 3 usable refs, got %+v", refs)
	}
	if refs[0].ID != "7" || refs[0].Name != "Acme" {
		t.Fatalf("numeric id not canonicalized: %+v", refs[0])
	}
	tr := NewTracker()
	tr.ObserveVendorSet(refs)
	if rec := tr.AllVendors()[1]; rec.ID != "x-1" || rec.DisplayName != "x-1" {
		t.Fatalf("missing name should fall back to id, got %+v", rec)
	}
	if got := tr.AllVendors()[2]; got.ID != "2.5" || got.DisplayName != "Globex" {
		t.Fatalf("unexpected third vendor %+v", got)
	}
	if RefsFromPayload(map[string]any{"id": 1}) != nil {
		t.Fatalf("non-array payload must yield no refs")
	}
}

func TestResetClearsTracker(t *testing.T) {
	tr := NewTracker()
	tr.MarkRelevant([]Ref{{ID: "1"}})
	tr.Reset()
	if tr.Len() != 0 || tr.AllVendors() != nil {
		t.Fatalf("reset should clear vendors")
	}
}
