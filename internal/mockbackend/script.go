package mockbackend

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/dennishermann/evaepic-sub000/internal/stream"
)

// Vendor is one scripted supplier.
type Vendor struct {
	ID        int
	Name      string
	Rating    float64
	Suitable  bool
	BasePrice float64
	Strategy  string
}

// Script describes the negotiation the mock backend plays back.
type Script struct {
	Vendors []Vendor
	// Rounds is used when the client does not send max_rounds.
	Rounds int
	// FailAt names a graph node whose frame is replaced by an error frame.
	FailAt string
}

// DefaultScript returns a three-vendor run where two vendors are suitable.
func DefaultScript() Script {
	return Script{
		Vendors: []Vendor{
			{ID: 1, Name: "Acme Corp", Rating: 4.5, Suitable: true, BasePrice: 1200, Strategy: "Volume Discount"},
			{ID: 2, Name: "Globex", Rating: 3.8, Suitable: false, BasePrice: 1500},
			{ID: 3, Name: "Initech", Rating: 4.1, Suitable: true, BasePrice: 1100, Strategy: "Competitive Bidding"},
		},
		Rounds: 2,
	}
}

// Frame is one outbound backend message.
type Frame map[string]any

// Frames builds the full message sequence answering start. Frames after a
// scripted failure are not produced.
func (s Script) Frames(start stream.Outbound) []Frame {
	rounds := s.Rounds
	if start.MaxRounds > 0 {
		rounds = start.MaxRounds
	}
	if rounds <= 0 {
		rounds = 1
	}

	var frames []Frame
	emit := func(node, message string, update map[string]any) bool {
		if strings.EqualFold(s.FailAt, node) {
			frames = append(frames, Frame{
				"type":    "error",
				"payload": map[string]any{"message": fmt.Sprintf("%s failed", node)},
			})
			return false
		}
		frames = append(frames, Frame{
			"type":    "progress",
			"message": message,
			"payload": map[string]any{"node": node, "state_update": update},
		})
		return true
	}

	order := start.OrderObject
	if order == nil {
		order = map[string]any{"item": strings.TrimSpace(start.UserInput)}
	}
	if !emit("extract_order", "Order details extracted successfully.", map[string]any{"order_object": order}) {
		return frames
	}

	all := make([]any, 0, len(s.Vendors))
	for _, v := range s.Vendors {
		all = append(all, v.ref(true))
	}
	if !emit("fetch_vendors", fmt.Sprintf("Found %d potential vendors in the database.", len(all)), map[string]any{"all_vendors": all}) {
		return frames
	}

	var suitable []Vendor
	for _, v := range s.Vendors {
		relevant := []any{}
		if v.Suitable {
			relevant = append(relevant, v.ref(false))
			suitable = append(suitable, v)
		}
		if !emit("evaluate_vendor", "Evaluated vendor suitability.", map[string]any{"vendor_id": v.ID, "relevant_vendors": relevant}) {
			return frames
		}
	}

	for _, v := range suitable {
		strategy := v.Strategy
		if strategy == "" {
			strategy = "Standard Strategy"
		}
		update := map[string]any{
			"vendor_id": v.ID,
			"vendor_strategies": map[string]any{
				v.key(): map[string]any{"vendor_name": v.Name, "strategy_name": strategy},
			},
		}
		if !emit("generate_strategy", "Generated negotiation strategy.", update) {
			return frames
		}
	}

	for round := 1; round <= rounds; round++ {
		for _, v := range suitable {
			update := map[string]any{
				"vendor_id":        v.ID,
				"rounds_completed": round,
				"leaderboard": map[string]any{
					v.key(): map[string]any{"vendor_name": v.Name, "price_total": v.offer(round)},
				},
			}
			if !emit("negotiate", "Negotiation round completed.", update) {
				return frames
			}
		}
	}

	if !emit("aggregator", "Finalizing market analysis and reports.", s.analysis(suitable, rounds)) {
		return frames
	}
	return append(frames, Frame{"type": "complete", "payload": map[string]any{}})
}

func (v Vendor) key() string {
	return strconv.Itoa(v.ID)
}

func (v Vendor) ref(withRating bool) map[string]any {
	ref := map[string]any{"id": v.ID, "name": v.Name}
	if withRating {
		ref["rating"] = v.Rating
	}
	return ref
}

// offer drops the quote by 5% of the base price per round.
func (v Vendor) offer(round int) float64 {
	return v.BasePrice - v.BasePrice*0.05*float64(round-1)
}

func (s Script) analysis(suitable []Vendor, rounds int) map[string]any {
	type quote struct {
		vendor Vendor
		price  float64
	}
	quotes := make([]quote, 0, len(suitable))
	for _, v := range suitable {
		quotes = append(quotes, quote{vendor: v, price: v.offer(rounds)})
	}
	sort.SliceStable(quotes, func(i, j int) bool { return quotes[i].price < quotes[j].price })

	rankings := make([]any, 0, len(quotes))
	prices := make([]float64, 0, len(quotes))
	for i, q := range quotes {
		rankings = append(rankings, map[string]any{"rank": i + 1, "vendor_id": q.vendor.ID, "vendor_name": q.vendor.Name, "price_total": q.price})
		prices = append(prices, q.price)
	}
	benchmarks := map[string]any{}
	report := map[string]any{"rankings": rankings}
	if len(prices) > 0 {
		benchmarks["best_price"] = prices[0]
		benchmarks["median_price"] = median(prices)
		report["recommended_vendor"] = quotes[0].vendor.Name
		report["best_price"] = prices[0]
	}
	return map[string]any{
		"market_analysis":         map[string]any{"benchmarks": benchmarks, "rankings": rankings},
		"final_comparison_report": report,
	}
}

func median(sorted []float64) float64 {
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}
