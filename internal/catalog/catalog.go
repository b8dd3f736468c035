// internal/catalog/catalog.go
//
// Static registry of negotiation workflow stages. The backend reports the
// graph node that just produced output; the catalog maps that node (or the
// stage's own key) to a stable stage number, its display titles, and whether
// the stage fans out per vendor.

package catalog

import "strings"

// Stage keys. These are the identifiers the rest of the module uses; the
// backend's node names are accepted as aliases.
const (
	KeyOrderExtraction  = "order-extraction"
	KeyVendorDiscovery  = "vendor-discovery"
	KeyVendorEvaluation = "vendor-evaluation"
	KeyStrategy         = "strategy"
	KeyNegotiationRound = "negotiation-round"
	KeyMarketAnalysis   = "market-analysis"
)

// FanOut describes which vendor subset a stage runs against.
type FanOut int

const (
	FanOutNone     FanOut = iota // stage runs once
	FanOutAll                    // one sub-event per discovered vendor
	FanOutRelevant               // one sub-event per vendor marked relevant
)

// Stage describes one phase of the negotiation workflow.
type Stage struct {
	Number         int
	Key            string
	Title          string
	DoneTitle      string
	DefaultMessage string
	FanOut         FanOut
	Nodes          []string
}

// IsFanOut reports whether the stage tracks per-vendor progress.
func (s Stage) IsFanOut() bool {
	return s.FanOut != FanOutNone
}

var stages = []Stage{
	{
		Number:         1,
		Key:            KeyOrderExtraction,
		Title:          "Extracting order details",
		DoneTitle:      "Order Extracted",
		DefaultMessage: "Analyzing requirements...",
		Nodes:          []string{"extract_order"},
	},
	{
		Number:         2,
		Key:            KeyVendorDiscovery,
		Title:          "Fetching vendors",
		DoneTitle:      "Vendors Found",
		DefaultMessage: "Searching database...",
		Nodes:          []string{"fetch_vendors"},
	},
	{
		Number:         3,
		Key:            KeyVendorEvaluation,
		Title:          "Evaluating vendors",
		DoneTitle:      "Vendors Evaluated",
		DefaultMessage: "Checking suitability...",
		FanOut:         FanOutAll,
		Nodes:          []string{"evaluate_vendor"},
	},
	{
		Number:         4,
		Key:            KeyStrategy,
		Title:          "Generating strategies",
		DoneTitle:      "Strategy Generated",
		DefaultMessage: "Planning negotiation...",
		FanOut:         FanOutRelevant,
		Nodes:          []string{"generate_strategy", "start_strategy_phase", "strategist"},
	},
	{
		Number:         5,
		Key:            KeyNegotiationRound,
		Title:          "Negotiating",
		DoneTitle:      "Negotiation Round",
		DefaultMessage: "Talking to vendors...",
		FanOut:         FanOutRelevant,
		Nodes:          []string{"negotiate", "start_negotiation_phase"},
	},
	{
		Number:         6,
		Key:            KeyMarketAnalysis,
		Title:          "Finalizing",
		DoneTitle:      "Analysis Complete",
		DefaultMessage: "Aggregating results...",
		Nodes:          []string{"aggregator"},
	},
}

var lookup = buildLookup(stages)

func buildLookup(list []Stage) map[string]int {
	index := make(map[string]int, len(list)*3)
	for i, stage := range list {
		index[normalizeKey(stage.Key)] = i
		for _, node := range stage.Nodes {
			index[normalizeKey(node)] = i
		}
	}
	return index
}

// Resolve maps a stage key or backend node name to its stage.
func Resolve(keyOrNode string) (Stage, bool) {
	i, ok := lookup[normalizeKey(keyOrNode)]
	if !ok {
		return Stage{}, false
	}
	return clone(stages[i]), true
}

// ByNumber returns the stage with the given number.
func ByNumber(number int) (Stage, bool) {
	if number < 1 || number > len(stages) {
		return Stage{}, false
	}
	return clone(stages[number-1]), true
}

// Stages returns every stage ordered by number.
func Stages() []Stage {
	out := make([]Stage, len(stages))
	for i, stage := range stages {
		out[i] = clone(stage)
	}
	return out
}

func clone(s Stage) Stage {
	s.Nodes = append([]string(nil), s.Nodes...)
	return s
}

func normalizeKey(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}
