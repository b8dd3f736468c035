package progress

import (
	"fmt"
	"strings"

	"github.com/dennishermann/evaepic-sub000/internal/vendors"
)

// Names of the built-in attribution strategies, as accepted by
// ParseAttribution and stored with recorded runs.
const (
	AttributionFirstPending = "first-pending"
	AttributionVendorID     = "vendor-id"
)

// Attribution decides which vendor of a fan-out stage an event reports on.
type Attribution interface {
	Pick(stage StageProgress, ev Event) (int, bool)
}

// AttributionFunc adapts a function into an Attribution.
type AttributionFunc func(stage StageProgress, ev Event) (int, bool)

// Pick implements Attribution.
func (f AttributionFunc) Pick(stage StageProgress, ev Event) (int, bool) {
	return f(stage, ev)
}

type namedAttribution struct {
	name string
	pick AttributionFunc
}

func (a *namedAttribution) Pick(stage StageProgress, ev Event) (int, bool) {
	return a.pick(stage, ev)
}

func (a *namedAttribution) String() string {
	return a.name
}

// FirstPending attributes each event to the earliest vendor, in seed order,
// that has not reported yet. The backend does not name the vendor an event
// belongs to, so under reordering this can credit the wrong vendor.
var FirstPending Attribution = &namedAttribution{name: AttributionFirstPending, pick: firstUnreported}

func firstUnreported(stage StageProgress, _ Event) (int, bool) {
	for i, vendor := range stage.Vendors {
		if vendor.Status != StatusCompleted {
			return i, true
		}
	}
	return -1, false
}

// ByVendorID uses an explicit vendor_id field in the state update when the
// backend sends one and falls back to FirstPending otherwise.
var ByVendorID Attribution = &namedAttribution{name: AttributionVendorID, pick: byVendorID}

func byVendorID(stage StageProgress, ev Event) (int, bool) {
	id := vendors.IDString(ev.Payload["vendor_id"])
	if id != "" {
		for i, vendor := range stage.Vendors {
			if vendor.VendorID == id && vendor.Status != StatusCompleted {
				return i, true
			}
		}
	}
	return firstUnreported(stage, ev)
}

// ParseAttribution returns the built-in strategy called name. An empty name
// selects FirstPending.
func ParseAttribution(name string) (Attribution, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", AttributionFirstPending:
		return FirstPending, nil
	case AttributionVendorID:
		return ByVendorID, nil
	default:
		return nil, fmt.Errorf("unknown attribution %q (want %s or %s)", name, AttributionFirstPending, AttributionVendorID)
	}
}

// AttributionName returns the name of a built-in strategy, or "" for a
// custom one.
func AttributionName(a Attribution) string {
	if named, ok := a.(*namedAttribution); ok {
		return named.name
	}
	return ""
}
