// Package format turns the free-form text a negotiation stage produces into
// small structured cards for rendering. Parsing is best effort: anything the
// rules do not recognize degrades to a single verbatim card.
package format

import (
	"regexp"
	"strings"

	"github.com/dennishermann/evaepic-sub000/internal/catalog"
)

// VerifiedSuitable is the card title used when a vendor-scoped line carries
// nothing but the vendor's own name.
const VerifiedSuitable = "Verified Suitable"

// Detail is one label/value pair attached to a card.
type Detail struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

// Card is the display unit produced for a stage or vendor output.
type Card struct {
	Title    string   `json:"title"`
	Subtitle string   `json:"subtitle,omitempty"`
	Details  []Detail `json:"details,omitempty"`
}

// Rule maps the bullet lines of particular stages to cards.
type Rule struct {
	Name   string
	Stages []string
	// Bullet builds a card from a bullet line with its marker removed.
	Bullet func(text string) Card
	// Details lets "label: value" lines attach to the preceding card.
	Details bool
}

func (r Rule) applies(stageKey string) bool {
	for _, key := range r.Stages {
		if key == stageKey {
			return true
		}
	}
	return false
}

var ratingPattern = regexp.MustCompile(`^(.+?)\s*\(\s*([^()]*?)\s*★\s*\)$`)

// DefaultRules is the stage shape table, in priority order.
var DefaultRules = []Rule{
	{
		Name:    "order-items",
		Stages:  []string{catalog.KeyOrderExtraction},
		Bullet:  titleOnly,
		Details: true,
	},
	{
		Name:   "rated-vendors",
		Stages: []string{catalog.KeyVendorDiscovery},
		Bullet: func(text string) Card {
			if m := ratingPattern.FindStringSubmatch(text); m != nil {
				return Card{Title: strings.TrimSpace(m[1]), Subtitle: strings.TrimSpace(m[2]) + "★"}
			}
			return Card{Title: text}
		},
	},
	{
		Name:   "suitable-vendors",
		Stages: []string{catalog.KeyVendorEvaluation},
		Bullet: func(text string) Card {
			return Card{Title: text, Subtitle: "Suitable"}
		},
	},
	{
		Name:   "labelled-values",
		Stages: []string{catalog.KeyStrategy, catalog.KeyNegotiationRound, catalog.KeyMarketAnalysis},
		Bullet: colonSplit,
	},
}

// Formatter renders stage text into cards using an ordered rule table.
type Formatter struct {
	rules []Rule
}

// NewFormatter returns a formatter using rules, or DefaultRules when none are given.
func NewFormatter(rules ...Rule) *Formatter {
	if len(rules) == 0 {
		rules = DefaultRules
	}
	return &Formatter{rules: append([]Rule(nil), rules...)}
}

// Format splits raw into cards for the given stage number. vendorName, when
// non-empty, is the vendor a vendor-scoped payload belongs to. The result is
// never empty.
func (f *Formatter) Format(stage int, raw string, vendorName string) []Card {
	rule, hasRule := f.ruleFor(stage)
	vendorName = strings.TrimSpace(vendorName)

	var cards []Card
	current := -1
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if text, ok := stripBullet(line); ok {
			var card Card
			if hasRule {
				card = rule.Bullet(text)
			} else {
				card = colonSplit(stripVendorPrefix(text, vendorName))
			}
			cards = append(cards, card)
			current = len(cards) - 1
			continue
		}
		if hasRule && rule.Details && current >= 0 {
			if label, value, ok := splitLabel(line); ok {
				cards[current].Details = append(cards[current].Details, Detail{Label: label, Value: value})
				continue
			}
		}
		if vendorName != "" {
			if text, ok := trimVendorPrefix(line, vendorName); ok {
				cards = append(cards, colonSplit(text))
				current = len(cards) - 1
			}
		}
	}
	if len(cards) == 0 {
		return []Card{{Title: raw}}
	}
	return cards
}

func (f *Formatter) ruleFor(stage int) (Rule, bool) {
	info, ok := catalog.ByNumber(stage)
	if !ok {
		return Rule{}, false
	}
	for _, rule := range f.rules {
		if rule.Bullet != nil && rule.applies(info.Key) {
			return rule, true
		}
	}
	return Rule{}, false
}

// bulletMarkers lists accepted leading markers. The mis-decoded form of "•"
// shows up when UTF-8 output passes through a Latin-1 hop.
var bulletMarkers = []string{"•", "â€¢", "- ", "* "}

func stripBullet(line string) (string, bool) {
	for _, marker := range bulletMarkers {
		if strings.HasPrefix(line, marker) {
			return strings.TrimSpace(strings.TrimPrefix(line, marker)), true
		}
	}
	return "", false
}

func titleOnly(text string) Card {
	return Card{Title: text}
}

func colonSplit(text string) Card {
	title, rest, found := strings.Cut(text, ":")
	if !found {
		return Card{Title: strings.TrimSpace(text)}
	}
	return Card{Title: strings.TrimSpace(title), Subtitle: strings.TrimSpace(rest)}
}

func splitLabel(line string) (string, string, bool) {
	label, value, found := strings.Cut(line, ":")
	label = strings.TrimSpace(label)
	if !found || label == "" {
		return "", "", false
	}
	return label, strings.TrimSpace(value), true
}

// trimVendorPrefix removes a leading vendor name. "Name: rest" yields rest,
// a bare "Name" yields VerifiedSuitable.
func trimVendorPrefix(line, vendorName string) (string, bool) {
	if vendorName == "" || !strings.HasPrefix(line, vendorName) {
		return "", false
	}
	rest := line[len(vendorName):]
	if rest != "" && rest[0] != ':' && rest[0] != ' ' && rest[0] != '\t' {
		// "Acme" must not match "Acmeville".
		return "", false
	}
	rest = strings.TrimSpace(rest)
	rest = strings.TrimSpace(strings.TrimPrefix(rest, ":"))
	if rest == "" {
		return VerifiedSuitable, true
	}
	return rest, true
}

func stripVendorPrefix(text, vendorName string) string {
	if trimmed, ok := trimVendorPrefix(text, vendorName); ok {
		return trimmed
	}
	return text
}
