package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/dennishermann/evaepic-sub000/internal/format"
	"github.com/dennishermann/evaepic-sub000/internal/progress"
	"github.com/dennishermann/evaepic-sub000/internal/session"
)

func TestBuildOrderMergesFileAndOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "order.yaml")
	body := "item: office chair\nquantity:\n  min: 10\n  preferred: 12\nurgency: low\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write order: %v", err)
	}
	sets := keyValueFlag{}
	if err := sets.Set("budget=1500"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := sets.Set("urgency=high"); err != nil {
		t.Fatalf("set: %v", err)
	}
	got, err := buildOrder(path, sets)
	if err != nil {
		t.Fatalf("buildOrder: %v", err)
	}
	want := map[string]any{
		"item":     "office chair",
		"quantity": map[string]any{"min": 10.0, "preferred": 12.0},
		"urgency":  "high",
		"budget":   1500.0,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("order mismatch (-want +got):\n%s", diff)
	}
}

func TestBuildOrderEmpty(t *testing.T) {
	got, err := buildOrder("", nil)
	if err != nil || got != nil {
		t.Fatalf("expected no order, got %v (%v)", got, err)
	}
}

func TestKeyValueFlagRejectsMalformed(t *testing.T) {
	sets := keyValueFlag{}
	if err := sets.Set("no-equals"); err == nil {
		t.Fatalf("expected error for missing '='")
	}
	if err := sets.Set("=value"); err == nil {
		t.Fatalf("expected error for empty key")
	}
}

func TestPrintProgressReportsTransitions(t *testing.T) {
	model := progress.Seed()
	ch := make(chan session.Snapshot, 3)
	ch <- session.Snapshot{Status: session.StatusIdle, Model: model}
	active := model.Clone()
	active.Stages[0].Status = progress.StatusActive
	active.Stages[0].Message = "Analyzing requirements..."
	ch <- session.Snapshot{Status: session.StatusRunning, Model: active, Headline: "Extracting order details"}
	ch <- session.Snapshot{Status: session.StatusRunning, Model: active, Headline: "Extracting order details"}
	close(ch)

	var buf bytes.Buffer
	printProgress(&buf, ch)
	out := buf.String()
	if strings.Count(out, "» Extracting order details") != 1 {
		t.Fatalf("headline should print once:\n%s", out)
	}
	if strings.Count(out, "Analyzing requirements...") != 1 {
		t.Fatalf("stage transition should print once:\n%s", out)
	}
}

func TestPrintSummaryIncludesCardsAndResult(t *testing.T) {
	model := progress.Seed()
	model.Stages[1].Status = progress.StatusCompleted
	model.Stages[1].Output = []format.Card{{Title: "Acme", Subtitle: "4.5 ★", Details: []format.Detail{{Label: "Rating", Value: "4.5"}}}}
	snap := session.Snapshot{RunID: "run-1", Status: session.StatusCompleted, Model: model, Result: map[string]any{"winner": "Acme"}}

	var buf bytes.Buffer
	printSummary(&buf, snap)
	out := buf.String()
	for _, want := range []string{"Run run-1 · completed", "Acme [4.5 ★]", "Rating: 4.5", `"winner": "Acme"`} {
		if !strings.Contains(out, want) {
			t.Fatalf("summary missing %q:\n%s", want, out)
		}
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("  short ", 10); got != "short" {
		t.Fatalf("unexpected %q", got)
	}
	if got := truncate("abcdefghij", 5); got != "abcd…" {
		t.Fatalf("unexpected %q", got)
	}
}
