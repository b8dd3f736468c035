package format

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/dennishermann/evaepic-sub000/internal/catalog"
	"github.com/dennishermann/evaepic-sub000/internal/vendors"
)

// RenderStage turns a stage's state_update into the bullet text the
// formatter understands. ok is false when there is nothing worth showing.
func RenderStage(key string, update map[string]any) (string, bool) {
	if len(update) == 0 {
		return "", false
	}
	var (
		text    string
		matched bool
	)
	switch key {
	case catalog.KeyOrderExtraction:
		text, matched = renderOrder(update["order_object"])
	case catalog.KeyVendorDiscovery:
		text, matched = renderVendorSet(update["all_vendors"])
	case catalog.KeyVendorEvaluation:
		text, matched = renderRelevant(update["relevant_vendors"])
	case catalog.KeyStrategy:
		text, matched = renderStrategies(update["vendor_strategies"])
	case catalog.KeyNegotiationRound:
		text, matched = renderLeaderboard(update["leaderboard"])
	case catalog.KeyMarketAnalysis:
		text, matched = renderAnalysis(update["market_analysis"])
	}
	if matched {
		return text, true
	}
	data, err := json.MarshalIndent(update, "", "  ")
	if err != nil {
		return "", false
	}
	return string(data), true
}

// RenderVendor renders one vendor's share of a fan-out update as plain
// "Name: outcome" text. ok is false when the update says nothing specific
// about any vendor.
func RenderVendor(key string, update map[string]any, vendorID, vendorName string) (string, bool) {
	if vendorName == "" {
		vendorName = vendorID
	}
	switch key {
	case catalog.KeyVendorEvaluation:
		items, ok := update["relevant_vendors"].([]any)
		if !ok {
			return "", false
		}
		for _, ref := range vendors.RefsFromPayload(items) {
			if ref.ID == vendorID {
				return vendorName, true
			}
		}
		return vendorName + ": Not suitable", true
	case catalog.KeyStrategy:
		entry, ok := vendorEntry(update["vendor_strategies"], vendorID)
		if !ok {
			return "", false
		}
		return vendorName + ": " + strategyName(entry), true
	case catalog.KeyNegotiationRound:
		entry, ok := vendorEntry(update["leaderboard"], vendorID)
		if !ok {
			return "", false
		}
		obj, _ := entry.(map[string]any)
		price, ok := number(obj["price_total"])
		if !ok || price == 0 {
			return vendorName + ": Awaiting quote", true
		}
		return vendorName + ": Offer $" + formatNumber(price), true
	}
	return "", false
}

func renderOrder(value any) (string, bool) {
	order, ok := value.(map[string]any)
	if !ok {
		return "", false
	}
	item := stringField(order, "item")
	quantity := ""
	if q, ok := order["quantity"].(map[string]any); ok {
		if n, ok := number(q["preferred"]); ok {
			quantity = formatNumber(n)
		}
	}
	var b strings.Builder
	if quantity != "" {
		fmt.Fprintf(&b, "• %sx %s", quantity, item)
	} else {
		fmt.Fprintf(&b, "• %s", item)
	}
	if budget, ok := number(order["budget"]); ok && budget != 0 {
		fmt.Fprintf(&b, "\nBudget: $%s", formatNumber(budget))
	}
	if urgency := stringField(order, "urgency"); urgency != "" {
		fmt.Fprintf(&b, "\nUrgency: %s", urgency)
	}
	return b.String(), true
}

func renderVendorSet(value any) (string, bool) {
	items, ok := value.([]any)
	if !ok {
		return "", false
	}
	if len(items) == 0 {
		return "No vendors found.", true
	}
	lines := []string{fmt.Sprintf("Found %d potential vendors:", len(items))}
	for _, item := range items {
		obj, ok := item.(map[string]any)
		if !ok {
			continue
		}
		line := "• " + vendorName(obj)
		if rating, ok := number(obj["rating"]); ok {
			line += " (" + formatNumber(rating) + "★)"
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n"), true
}

func renderRelevant(value any) (string, bool) {
	items, ok := value.([]any)
	if !ok {
		return "", false
	}
	if len(items) == 0 {
		return "No suitable vendors found.", true
	}
	lines := []string{fmt.Sprintf("Evaluated vendors. %d are suitable for this order:", len(items))}
	for _, item := range items {
		if obj, ok := item.(map[string]any); ok {
			lines = append(lines, "• "+vendorName(obj))
		}
	}
	return strings.Join(lines, "\n"), true
}

func renderStrategies(value any) (string, bool) {
	strategies, ok := value.(map[string]any)
	if !ok || len(strategies) == 0 {
		return "", false
	}
	lines := make([]string, 0, len(strategies))
	for _, key := range sortedKeys(strategies) {
		entry := strategies[key]
		name := "Vendor"
		if obj, ok := entry.(map[string]any); ok {
			if n := stringField(obj, "vendor_name"); n != "" {
				name = n
			}
		}
		lines = append(lines, "• "+name+": "+strategyName(entry))
	}
	return strings.Join(lines, "\n"), true
}

type offer struct {
	vendor string
	price  float64
}

func renderLeaderboard(value any) (string, bool) {
	board, ok := value.(map[string]any)
	if !ok {
		return "", false
	}
	var offers []offer
	for _, key := range sortedKeys(board) {
		obj, ok := board[key].(map[string]any)
		if !ok {
			continue
		}
		price, ok := number(obj["price_total"])
		if !ok || price == 0 {
			continue
		}
		name := stringField(obj, "vendor_name")
		if name == "" {
			name = key
		}
		offers = append(offers, offer{vendor: name, price: price})
	}
	if len(offers) == 0 {
		return "Waiting for initial quotes...", true
	}
	sort.SliceStable(offers, func(i, j int) bool { return offers[i].price < offers[j].price })
	lines := []string{"Latest Offers:"}
	for _, o := range offers {
		lines = append(lines, "• "+o.vendor+": $"+formatNumber(o.price))
	}
	return strings.Join(lines, "\n"), true
}

func renderAnalysis(value any) (string, bool) {
	analysis, ok := value.(map[string]any)
	if !ok {
		return "", false
	}
	benchmarks, ok := analysis["benchmarks"].(map[string]any)
	if !ok {
		return "", false
	}
	rankings, _ := analysis["rankings"].([]any)
	lines := []string{
		"• Best Price: $" + numberText(benchmarks["best_price"]),
		"• Median Price: $" + numberText(benchmarks["median_price"]),
		fmt.Sprintf("• Vendor Rankings: %d ranked", len(rankings)),
	}
	return strings.Join(lines, "\n"), true
}

// vendorEntry finds the entry for vendorID in a vendor-keyed object, falling
// back to the first entry by key order.
func vendorEntry(value any, vendorID string) (any, bool) {
	entries, ok := value.(map[string]any)
	if !ok || len(entries) == 0 {
		return nil, false
	}
	if entry, ok := entries[vendorID]; ok {
		return entry, true
	}
	return entries[sortedKeys(entries)[0]], true
}

func strategyName(entry any) string {
	switch v := entry.(type) {
	case string:
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	case map[string]any:
		for _, field := range []string{"strategy_name", "approach"} {
			if s := stringField(v, field); s != "" {
				return s
			}
		}
	}
	return "Standard Strategy"
}

func vendorName(obj map[string]any) string {
	if name := stringField(obj, "name"); name != "" {
		return name
	}
	if name := stringField(obj, "vendor_name"); name != "" {
		return name
	}
	return vendors.IDString(obj["id"])
}

func stringField(obj map[string]any, key string) string {
	s, _ := obj[key].(string)
	return strings.TrimSpace(s)
}

func number(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	}
	return 0, false
}

func numberText(value any) string {
	if n, ok := number(value); ok {
		return formatNumber(n)
	}
	if s, ok := value.(string); ok {
		return s
	}
	return "?"
}

func formatNumber(n float64) string {
	return strconv.FormatFloat(n, 'f', -1, 64)
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
