package tui

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/dennishermann/evaepic-sub000/internal/format"
	"github.com/dennishermann/evaepic-sub000/internal/logbook"
	"github.com/dennishermann/evaepic-sub000/internal/progress"
	"github.com/dennishermann/evaepic-sub000/internal/session"
)

type fakeController struct {
	snap     session.Snapshot
	ch       chan session.Snapshot
	started  []string
	startErr error
	resets   int
}

func newFakeController() *fakeController {
	model := progress.Seed()
	return &fakeController{
		snap: session.Snapshot{Status: session.StatusIdle, Model: model, Headline: model.Headline()},
		ch:   make(chan session.Snapshot, 4),
	}
}

func (f *fakeController) Start(_ context.Context, input string, _ map[string]any) error {
	f.started = append(f.started, input)
	return f.startErr
}

func (f *fakeController) Reset() { f.resets++ }

func (f *fakeController) Snapshot() session.Snapshot { return f.snap }

func (f *fakeController) Subscribe() session.Subscription {
	return session.Subscription{Snapshots: f.ch}
}

func keyRune(r rune) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}}
}

func update(t *testing.T, app *App, msg tea.Msg) (*App, tea.Cmd) {
	t.Helper()
	model, cmd := app.Update(msg)
	next, ok := model.(*App)
	if !ok {
		t.Fatalf("unexpected model type: %T", model)
	}
	return next, cmd
}

func completedSnapshot() session.Snapshot {
	model := progress.Seed()
	for i := range model.Stages {
		model.Stages[i].Status = progress.StatusCompleted
	}
	model.Stages[0].Title = "Order Extracted"
	model.Stages[0].Output = []format.Card{{Title: "10x office chair", Details: []format.Detail{{Label: "Budget", Value: "$1500"}}}}
	model.Stages[2].Vendors = []progress.VendorProgress{{VendorID: "1", DisplayName: "Acme", Status: progress.StatusCompleted}}
	return session.Snapshot{
		RunID:    "run-1",
		Status:   session.StatusCompleted,
		Model:    model,
		Headline: model.Headline(),
		Result:   map[string]any{"winner": "Acme", "price": 900.0},
	}
}

func TestEnterStartsRun(t *testing.T) {
	ctrl := newFakeController()
	app := NewApp(ctrl, WithInitialInput("  10 office chairs "))
	app, cmd := update(t, app, tea.KeyMsg{Type: tea.KeyEnter})
	if app.state != stateProgress {
		t.Fatalf("expected progress state, got %d", app.state)
	}
	if cmd == nil {
		t.Fatalf("expected start command")
	}
	msg, ok := cmd().(startResultMsg)
	if !ok || msg.err != nil {
		t.Fatalf("unexpected start result %#v", msg)
	}
	if len(ctrl.started) != 1 || ctrl.started[0] != "10 office chairs" {
		t.Fatalf("expected trimmed input to start, got %q", ctrl.started)
	}
}

func TestEnterWithoutInputStaysOnPrompt(t *testing.T) {
	app := NewApp(newFakeController())
	app, cmd := update(t, app, tea.KeyMsg{Type: tea.KeyEnter})
	if app.state != stateInput || cmd != nil {
		t.Fatalf("empty input must not start a run")
	}
	if !strings.Contains(app.statusMsg, "describe the order") {
		t.Fatalf("unexpected status %q", app.statusMsg)
	}
}

func TestStartFailureIsShown(t *testing.T) {
	app := NewApp(newFakeController())
	app, _ = update(t, app, startResultMsg{err: errors.New("dial refused")})
	if !strings.Contains(app.View(), "dial refused") {
		t.Fatalf("expected start error in view")
	}
}

func TestSnapshotRendersCardsAndVendors(t *testing.T) {
	app := NewApp(newFakeController(), WithInitialInput("chairs"))
	app, _ = update(t, app, tea.KeyMsg{Type: tea.KeyEnter})
	app, cmd := update(t, app, snapshotMsg{snap: completedSnapshot()})
	if cmd == nil {
		t.Fatalf("expected the next snapshot wait to be scheduled")
	}
	view := app.View()
	for _, want := range []string{"Order Processing Complete", "Order Extracted", "10x office chair", "Budget: $1500", "Acme", "Final result"} {
		if !strings.Contains(view, want) {
			t.Fatalf("view missing %q:\n%s", want, view)
		}
	}
	if !strings.Contains(app.statusMsg, "complete") {
		t.Fatalf("unexpected status %q", app.statusMsg)
	}
}

func TestCopyWritesResultJSON(t *testing.T) {
	var copied string
	app := NewApp(newFakeController(), WithClipboard(func(s string) error {
		copied = s
		return nil
	}))
	app.state = stateProgress
	app, _ = update(t, app, snapshotMsg{snap: completedSnapshot()})
	app, cmd := update(t, app, keyRune('c'))
	if cmd == nil {
		t.Fatalf("expected copy command")
	}
	app, _ = update(t, app, cmd())
	if !strings.Contains(copied, `"winner": "Acme"`) {
		t.Fatalf("unexpected clipboard contents %q", copied)
	}
	if app.statusMsg != "Result copied to clipboard." {
		t.Fatalf("unexpected status %q", app.statusMsg)
	}
}

func TestCopyWithoutResult(t *testing.T) {
	app := NewApp(newFakeController())
	app.state = stateProgress
	app, cmd := update(t, app, keyRune('c'))
	if cmd != nil || app.statusMsg != "No result to copy yet." {
		t.Fatalf("copy without a result must be a no-op, status=%q", app.statusMsg)
	}
}

func TestResetReturnsToPrompt(t *testing.T) {
	ctrl := newFakeController()
	app := NewApp(ctrl, WithInitialInput("chairs"))
	app, _ = update(t, app, tea.KeyMsg{Type: tea.KeyEnter})
	app, _ = update(t, app, keyRune('r'))
	if ctrl.resets != 1 {
		t.Fatalf("expected one reset, got %d", ctrl.resets)
	}
	if app.state != stateInput || app.input.Value() != "chairs" {
		t.Fatalf("expected prompt with previous input, state=%d value=%q", app.state, app.input.Value())
	}
}

func TestQuitBlockedWhileRunning(t *testing.T) {
	app := NewApp(newFakeController())
	app.state = stateProgress
	app, _ = update(t, app, snapshotMsg{snap: session.Snapshot{Status: session.StatusRunning, Running: true, Model: progress.Seed()}})
	if _, cmd := update(t, app, keyRune('q')); cmd != nil {
		t.Fatalf("q must not quit during a run")
	}
}

func TestWaitForSnapshotReportsClosedSubscription(t *testing.T) {
	ctrl := newFakeController()
	app := NewApp(ctrl)
	close(ctrl.ch)
	if _, ok := app.waitForSnapshot()().(subscriptionClosedMsg); !ok {
		t.Fatalf("expected subscriptionClosedMsg")
	}
}

func TestFriendlyLabel(t *testing.T) {
	if got := friendlyLabel("final_comparison-report"); got != "Final Comparison Report" {
		t.Fatalf("unexpected label %q", got)
	}
}

func TestLogPanelShowsParsedEntries(t *testing.T) {
	book, err := logbook.New(filepath.Join(t.TempDir(), "logs", "journey.log"))
	if err != nil {
		t.Fatalf("logbook.New: %v", err)
	}
	book.ForRun("run-42").Error("backend error: %s", "boom")
	app := NewApp(newFakeController(), WithLogbook(book))
	view := app.View()
	if !strings.Contains(view, "ERROR backend error: boom") {
		t.Fatalf("expected level and message in log panel:\n%s", view)
	}
	if strings.Contains(view, "run-42") {
		t.Fatalf("raw logbook line leaked into the panel:\n%s", view)
	}
	if got := renderLogLine("not a logbook line"); !strings.Contains(got, "not a logbook line") {
		t.Fatalf("unparsed line should be shown as written, got %q", got)
	}
}
