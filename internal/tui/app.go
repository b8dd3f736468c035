// internal/tui/app.go
//
// Terminal dashboard for a negotiation run. It follows The Elm Architecture
// like every bubbletea program:
//
// 1. Model: the latest session snapshot plus input widgets
// 2. Update: folds key presses and published snapshots into the model
// 3. View: renders the stage list as cards
//
// Snapshots arrive from a session subscription; the TUI never mutates the
// progress model itself.

package tui

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/dennishermann/evaepic-sub000/internal/logbook"
	"github.com/dennishermann/evaepic-sub000/internal/session"
)

// appState represents which screen we're on
type appState int

const (
	stateInput    appState = iota // Order request prompt
	stateProgress                 // Live stage cards
)

const logTailLines = 5

// Controller is the session surface the TUI drives.
type Controller interface {
	Start(ctx context.Context, input string, order map[string]any) error
	Reset()
	Snapshot() session.Snapshot
	Subscribe() session.Subscription
}

type snapshotMsg struct {
	snap session.Snapshot
}

type subscriptionClosedMsg struct{}

type startResultMsg struct {
	err error
}

type copyResultMsg struct {
	err error
}

// AppOption customizes App construction for tests and alternate runtimes.
type AppOption func(*App)

// WithLogbook shows the tail of the run journal under the cards.
func WithLogbook(lb *logbook.Logbook) AppOption {
	return func(a *App) {
		a.logbook = lb
	}
}

// WithClipboard replaces the system clipboard writer.
func WithClipboard(write func(string) error) AppOption {
	return func(a *App) {
		if write != nil {
			a.copy = write
		}
	}
}

// WithInitialInput pre-fills the order prompt.
func WithInitialInput(input string) AppOption {
	return func(a *App) {
		a.input.SetValue(input)
	}
}

// App is the main application model.
type App struct {
	state      appState
	controller Controller
	sub        session.Subscription
	logbook    *logbook.Logbook
	copy       func(string) error

	input    textinput.Model
	spinner  spinner.Model
	viewport viewport.Model

	snap      session.Snapshot
	lastInput string
	statusMsg string

	width  int
	height int
}

// NewApp subscribes to controller and prepares the order prompt.
func NewApp(controller Controller, opts ...AppOption) *App {
	input := textinput.New()
	input.Placeholder = "e.g. 50 ergonomic office chairs under $15,000"
	input.CharLimit = 500
	input.Width = 60
	input.Prompt = "› "
	input.Focus()

	spin := spinner.New()
	spin.Spinner = spinner.Dot
	spin.Style = labelStyleActive

	a := &App{
		state:      stateInput,
		controller: controller,
		copy:       clipboard.WriteAll,
		input:      input,
		spinner:    spin,
		viewport:   viewport.New(80, 20),
		snap:       controller.Snapshot(),
		statusMsg:  "Describe what you want to buy and press Enter.",
	}
	for _, opt := range opts {
		if opt != nil {
			opt(a)
		}
	}
	a.sub = controller.Subscribe()
	return a
}

// Close releases the snapshot subscription.
func (a *App) Close() {
	a.sub.Close()
}

// Init is called once when the program starts.
func (a *App) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, a.spinner.Tick, a.waitForSnapshot())
}

// Update is called when a message is received.
func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {

	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		a.input.Width = max(20, msg.Width-10)
		a.viewport.Width = max(20, msg.Width-6)
		a.viewport.Height = max(5, msg.Height-logTailLines-12)
		a.refreshViewport()
		return a, nil

	case snapshotMsg:
		return a, a.applySnapshot(msg.snap)

	case subscriptionClosedMsg:
		return a, nil

	case startResultMsg:
		if msg.err != nil {
			a.statusMsg = fmt.Sprintf("Could not start: %v", msg.err)
		}
		return a, nil

	case copyResultMsg:
		if msg.err != nil {
			a.statusMsg = fmt.Sprintf("Copy failed: %v", msg.err)
		} else {
			a.statusMsg = "Result copied to clipboard."
		}
		return a, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		a.spinner, cmd = a.spinner.Update(msg)
		if a.state == stateProgress && a.snap.Running {
			a.refreshViewport()
		}
		return a, cmd

	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return a, tea.Quit
		}
		if a.state == stateInput {
			return a.updateInput(msg)
		}
		return a.updateProgress(msg)
	}

	return a, nil
}

func (a *App) updateInput(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		return a, tea.Quit
	case "enter":
		value := strings.TrimSpace(a.input.Value())
		if value == "" {
			a.statusMsg = "Please describe the order first."
			return a, nil
		}
		a.lastInput = value
		a.state = stateProgress
		a.input.Blur()
		a.statusMsg = "Starting negotiation…"
		a.refreshViewport()
		return a, a.startRun(value)
	}
	var cmd tea.Cmd
	a.input, cmd = a.input.Update(msg)
	return a, cmd
}

func (a *App) updateProgress(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q":
		if !a.snap.Running {
			return a, tea.Quit
		}
		a.statusMsg = "Negotiation in progress. Press r to cancel it first."
		return a, nil
	case "r", "esc":
		if msg.String() == "esc" && a.snap.Running {
			return a, nil
		}
		a.controller.Reset()
		a.state = stateInput
		a.input.SetValue(a.lastInput)
		a.input.CursorEnd()
		a.statusMsg = "Session reset."
		return a, a.input.Focus()
	case "c":
		if len(a.snap.Result) == 0 {
			a.statusMsg = "No result to copy yet."
			return a, nil
		}
		return a, a.copyResult(a.snap.Result)
	}
	var cmd tea.Cmd
	a.viewport, cmd = a.viewport.Update(msg)
	return a, cmd
}

func (a *App) applySnapshot(snap session.Snapshot) tea.Cmd {
	prev := a.snap
	a.snap = snap
	if snap.Status != prev.Status || snap.RunID != prev.RunID {
		switch snap.Status {
		case session.StatusRunning:
			a.statusMsg = "Negotiating… ↑/↓ scroll    r → cancel"
		case session.StatusCompleted:
			a.statusMsg = "Negotiation complete. c → copy result    r → new order    q → quit"
		case session.StatusFailed:
			a.statusMsg = "Negotiation failed. r → try again    q → quit"
		}
	}
	a.refreshViewport()
	return a.waitForSnapshot()
}

func (a *App) refreshViewport() {
	atBottom := a.viewport.AtBottom()
	a.viewport.SetContent(renderStages(a.snap.Model, a.spinner.View(), a.viewport.Width))
	if a.snap.Running && atBottom {
		a.viewport.GotoBottom()
	}
}

func (a *App) waitForSnapshot() tea.Cmd {
	ch := a.sub.Snapshots
	return func() tea.Msg {
		snap, ok := <-ch
		if !ok {
			return subscriptionClosedMsg{}
		}
		return snapshotMsg{snap: snap}
	}
}

func (a *App) startRun(input string) tea.Cmd {
	controller := a.controller
	return func() tea.Msg {
		return startResultMsg{err: controller.Start(context.Background(), input, nil)}
	}
}

func (a *App) copyResult(result map[string]any) tea.Cmd {
	write := a.copy
	return func() tea.Msg {
		encoded, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return copyResultMsg{err: err}
		}
		return copyResultMsg{err: write(string(encoded))}
	}
}

// View renders the current state to a string.
func (a *App) View() string {
	width := a.width
	if width <= 0 {
		width = 100
	}
	header := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("#FF6B6B")).
		MarginBottom(1).
		Render("⬡ EVAEPIC · Procurement Negotiation")

	var content string
	switch a.state {
	case stateInput:
		content = a.renderInput()
	case stateProgress:
		content = a.renderProgress()
	}
	box := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("#444444")).
		Padding(0, 1).
		Width(max(20, width-2)).
		Render(content)

	sections := []string{header, box}
	if logPanel := a.renderLogPanel(); logPanel != "" {
		sections = append(sections, logPanel)
	}
	footer := lipgloss.NewStyle().
		Foreground(lipgloss.Color("#888888")).
		MarginTop(1).
		Render(a.statusMsg)
	sections = append(sections, footer)
	return strings.Join(sections, "\n")
}

func (a *App) renderInput() string {
	title := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("#5B8DEF")).
		Render("What do you need?")
	hint := lipgloss.NewStyle().
		Foreground(lipgloss.Color("#AAAAAA")).
		MarginTop(1).
		Render("Enter → start negotiation    Esc → quit")
	return lipgloss.JoinVertical(lipgloss.Left, title, a.input.View(), hint)
}

func (a *App) renderProgress() string {
	headline := a.snap.Headline
	if headline == "" {
		headline = a.snap.Model.Headline()
	}
	prefix := ""
	if a.snap.Running {
		prefix = a.spinner.View() + " "
	}
	lines := []string{
		lipgloss.NewStyle().Bold(true).Render(prefix + headline),
		detailTextStyle.Render(fmt.Sprintf("Order: %s", a.lastInput)),
		"",
		a.viewport.View(),
	}
	if a.snap.Err != "" {
		lines = append(lines, "", labelStyleFailed.Render("⚠ "+a.snap.Err))
	}
	if len(a.snap.Result) > 0 {
		lines = append(lines, "", renderResultSummary(a.snap.Result))
	}
	return strings.Join(lines, "\n")
}

func (a *App) renderLogPanel() string {
	if a.logbook == nil {
		return ""
	}
	lines, _ := a.logbook.Tail(logTailLines)
	if len(lines) == 0 {
		return ""
	}
	fileName := filepath.Base(a.logbook.Path())
	if fileName == "." || fileName == "" {
		fileName = "log"
	}
	head := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("#5B8DEF")).
		Render(fmt.Sprintf("LOG · %s", fileName))
	for i, line := range lines {
		lines[i] = renderLogLine(line)
	}
	body := strings.Join(lines, "\n")
	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("#444444")).
		Padding(0, 1).
		Render(fmt.Sprintf("%s\n%s", head, body))
}

var (
	logTextStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#AAAAAA"))
	logWarnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#F7B801")).Bold(true)
	logErrorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF6B6B")).Bold(true)
)

// renderLogLine shortens a logbook line to local time, level and message.
// Lines that do not parse are shown as written.
func renderLogLine(line string) string {
	entry, ok := logbook.Parse(line)
	if !ok {
		return logTextStyle.Render(line)
	}
	level := fmt.Sprintf("%-5s", entry.Level)
	switch entry.Level {
	case logbook.LevelWarn:
		level = logWarnStyle.Render(level)
	case logbook.LevelError:
		level = logErrorStyle.Render(level)
	default:
		level = logTextStyle.Render(level)
	}
	return fmt.Sprintf("%s %s %s",
		logTextStyle.Render(entry.Time.Local().Format("15:04:05")),
		level,
		logTextStyle.Render(entry.Message))
}
