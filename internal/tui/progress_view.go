package tui

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/dennishermann/evaepic-sub000/internal/format"
	"github.com/dennishermann/evaepic-sub000/internal/progress"
)

var (
	labelStyleDone    = lipgloss.NewStyle().Foreground(lipgloss.Color("#4CAF50")).Bold(true)
	labelStyleActive  = lipgloss.NewStyle().Foreground(lipgloss.Color("#5B8DEF")).Bold(true)
	labelStylePending = lipgloss.NewStyle().Foreground(lipgloss.Color("#999999"))
	labelStyleFailed  = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF6B6B")).Bold(true)
	detailTextStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#A0AEC0"))
	cardTitleStyle    = lipgloss.NewStyle().Bold(true)
	cardSubtitleStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#F7B801"))
	cardBoxStyle      = lipgloss.NewStyle().
				Border(lipgloss.NormalBorder(), false, false, false, true).
				BorderForeground(lipgloss.Color("#444444")).
				PaddingLeft(1)
)

// renderStages lays out every stage with its message, output cards and
// vendor rows. spin is the current spinner frame for active stages.
func renderStages(m progress.Model, spin string, width int) string {
	var blocks []string
	for _, stage := range m.Stages {
		blocks = append(blocks, renderStage(stage, spin, width))
	}
	return strings.Join(blocks, "\n")
}

func renderStage(stage progress.StageProgress, spin string, width int) string {
	icon, style := statusIcon(stage.Status, spin)
	title := fmt.Sprintf("%s %d. %s", icon, stage.Number, stage.Title)
	lines := []string{style.Render(title)}
	if stage.Status == progress.StatusPending {
		return lines[0]
	}
	if msg := strings.TrimSpace(stage.Message); msg != "" {
		lines = append(lines, detailTextStyle.Render("   "+msg))
	}
	if cards := renderCards(stage.Output, width-3); cards != "" {
		lines = append(lines, indent(cards, "   "))
	}
	for _, vendor := range stage.Vendors {
		lines = append(lines, renderVendor(vendor, spin, width-3))
	}
	return strings.Join(lines, "\n")
}

func renderVendor(vendor progress.VendorProgress, spin string, width int) string {
	icon, style := statusIcon(vendor.Status, spin)
	line := fmt.Sprintf("   %s %s · %s", icon, vendor.DisplayName, style.Render(friendlyLabel(string(vendor.Status))))
	if cards := renderCards(vendor.Output, width-4); cards != "" {
		line += "\n" + indent(cards, "       ")
	}
	return line
}

func renderCards(cards []format.Card, width int) string {
	if len(cards) == 0 {
		return ""
	}
	rendered := make([]string, 0, len(cards))
	for _, card := range cards {
		rendered = append(rendered, renderCard(card, width))
	}
	return strings.Join(rendered, "\n")
}

func renderCard(card format.Card, width int) string {
	lines := []string{cardTitleStyle.Render(card.Title)}
	if card.Subtitle != "" {
		lines[0] += "  " + cardSubtitleStyle.Render(card.Subtitle)
	}
	for _, d := range card.Details {
		lines = append(lines, detailTextStyle.Render(fmt.Sprintf("%s: %s", d.Label, d.Value)))
	}
	return cardBoxStyle.Width(max(10, width)).Render(strings.Join(lines, "\n"))
}

func statusIcon(status progress.Status, spin string) (string, lipgloss.Style) {
	switch status {
	case progress.StatusCompleted:
		return "✓", labelStyleDone
	case progress.StatusActive:
		if strings.TrimSpace(spin) == "" {
			spin = "●"
		}
		return spin, labelStyleActive
	default:
		return "○", labelStylePending
	}
}

// renderResultSummary lists the top-level result fields in key order.
func renderResultSummary(result map[string]any) string {
	keys := make([]string, 0, len(result))
	for k := range result {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	lines := []string{labelStyleDone.Render("Final result")}
	for _, k := range keys {
		var value string
		switch v := result[k].(type) {
		case string:
			value = v
		case float64:
			value = fmt.Sprintf("%g", v)
		case []any:
			value = fmt.Sprintf("%d item(s)", len(v))
		case map[string]any:
			value = fmt.Sprintf("%d field(s)", len(v))
		default:
			value = fmt.Sprint(v)
		}
		lines = append(lines, detailTextStyle.Render(fmt.Sprintf("  %s: %s", friendlyLabel(k), value)))
	}
	return strings.Join(lines, "\n")
}

func indent(text, prefix string) string {
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = prefix + line
	}
	return strings.Join(lines, "\n")
}

func friendlyLabel(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	replacer := strings.NewReplacer("_", " ", "-", " ")
	words := strings.Fields(replacer.Replace(strings.ToLower(value)))
	if len(words) == 0 {
		return ""
	}
	for i, word := range words {
		words[i] = strings.ToUpper(word[:1]) + word[1:]
	}
	return strings.Join(words, " ")
}
