package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/dennishermann/evaepic-sub000/internal/feed"
	"github.com/dennishermann/evaepic-sub000/internal/format"
	"github.com/dennishermann/evaepic-sub000/internal/mockbackend"
	"github.com/dennishermann/evaepic-sub000/internal/progress"
	"github.com/dennishermann/evaepic-sub000/internal/session"
	"github.com/dennishermann/evaepic-sub000/internal/tui"
)

func sessionFlags(fs *flag.FlagSet) *runtimeOptions {
	opts := &runtimeOptions{}
	fs.StringVar(&opts.project, "project", "", "path to the project directory (defaults to cwd)")
	fs.StringVar(&opts.url, "url", "", "backend websocket URL (overrides config)")
	fs.IntVar(&opts.maxRounds, "max-rounds", 0, "cap negotiation rounds (0 keeps the backend default)")
	fs.StringVar(&opts.attribution, "attribution", progress.AttributionFirstPending, "fan-out vendor attribution: first-pending or vendor-id")
	fs.BoolVar(&opts.noJournal, "no-journal", false, "do not record frames")
	return opts
}

func runTUI(args []string) error {
	fs := flag.NewFlagSet("tui", flag.ExitOnError)
	opts := sessionFlags(fs)
	input := fs.String("input", "", "pre-fill the order prompt")
	_ = fs.Parse(args)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	rt, err := openRuntime(ctx, *opts)
	if err != nil {
		return err
	}
	defer rt.Close()

	feedServer := startFeed(ctx, rt)
	if feedServer != nil {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = feedServer.Shutdown(shutdownCtx)
		}()
	}

	rt.book.Info("dashboard opened")
	app := tui.NewApp(rt.session, tui.WithLogbook(rt.book), tui.WithInitialInput(*input))
	defer app.Close()
	p := tea.NewProgram(app, tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return fmt.Errorf("run dashboard: %w", err)
	}
	return nil
}

func startFeed(ctx context.Context, rt *runtime) *feed.Server {
	var opts []feed.Option
	opts = append(opts, feed.WithLogger(rt.logger.Named("feed")))
	if rt.journal != nil {
		opts = append(opts, feed.WithRuns(rt.journal))
	}
	srv := feed.NewServer(feed.SettingsFromConfig(rt.cfg), rt.session, opts...)
	if err := srv.Start(ctx); err != nil {
		if !feed.IsDisabled(err) {
			rt.logger.Printf("feed not started: %v", err)
		}
		return nil
	}
	rt.book.Info("progress feed at %s", srv.BaseURL())
	return srv
}

func runHeadless(args []string) error {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	opts := sessionFlags(fs)
	input := fs.String("input", "", "natural-language order request (required)")
	orderFile := fs.String("order", "", "path to a YAML/JSON order object")
	timeout := fs.Duration("timeout", 10*time.Minute, "give up after this long")
	sets := keyValueFlag{}
	fs.Var(&sets, "set", "order field override (key=value, repeatable)")
	_ = fs.Parse(args)

	if strings.TrimSpace(*input) == "" {
		return errors.New("-input is required")
	}
	order, err := buildOrder(*orderFile, sets)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()

	rt, err := openRuntime(ctx, *opts)
	if err != nil {
		return err
	}
	defer rt.Close()

	sub := rt.session.Subscribe()
	defer sub.Close()
	printed := make(chan struct{})
	go func() {
		defer close(printed)
		printProgress(os.Stdout, sub.Snapshots)
	}()

	if err := rt.session.Start(ctx, *input, order); err != nil {
		sub.Close()
		<-printed
		return err
	}
	snap := rt.session.Wait(ctx)
	sub.Close()
	<-printed
	if ctx.Err() != nil && !snap.Terminal() {
		return fmt.Errorf("run %s did not finish: %w", snap.RunID, ctx.Err())
	}
	printSummary(os.Stdout, snap)
	if snap.Status == session.StatusFailed {
		return errors.New(snap.Err)
	}
	return nil
}

func runReplay(args []string) error {
	fs := flag.NewFlagSet("replay", flag.ExitOnError)
	project := fs.String("project", "", "path to the project directory (defaults to cwd)")
	runID := fs.String("run", "", "run id to replay (defaults to the latest run)")
	asJSON := fs.Bool("json", false, "print the replayed snapshot as JSON")
	_ = fs.Parse(args)

	ctx := context.Background()
	j, err := openJournal(ctx, *project)
	if err != nil {
		return err
	}
	defer j.Close()

	id := strings.TrimSpace(*runID)
	if id == "" {
		runs, err := j.Runs(ctx, 1)
		if err != nil {
			return err
		}
		if len(runs) == 0 {
			return errors.New("no recorded runs")
		}
		id = runs[0].ID
	}
	snap, err := j.Replay(ctx, id)
	if err != nil {
		return err
	}
	if *asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(snap)
	}
	printSummary(os.Stdout, snap)
	return nil
}

func runList(args []string) error {
	fs := flag.NewFlagSet("runs", flag.ExitOnError)
	project := fs.String("project", "", "path to the project directory (defaults to cwd)")
	limit := fs.Int("limit", 20, "maximum number of runs to list (0 for all)")
	_ = fs.Parse(args)

	ctx := context.Background()
	j, err := openJournal(ctx, *project)
	if err != nil {
		return err
	}
	defer j.Close()
	runs, err := j.Runs(ctx, *limit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("No recorded runs.")
		return nil
	}
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN\tSTATUS\tFRAMES\tSTARTED\tINPUT")
	for _, run := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\n", run.ID, run.Status, run.Frames, run.StartedAt.Local().Format(time.DateTime), truncate(run.Input, 48))
	}
	return tw.Flush()
}

func runMockBackend(args []string) error {
	fs := flag.NewFlagSet("mock-backend", flag.ExitOnError)
	addr := fs.String("addr", "127.0.0.1:8000", "listen address")
	delay := fs.Duration("delay", 600*time.Millisecond, "pause between frames")
	failAt := fs.String("fail-at", "", "graph node to fail at (e.g. negotiate)")
	rounds := fs.Int("rounds", 0, "default negotiation rounds")
	_ = fs.Parse(args)

	script := mockbackend.DefaultScript()
	script.FailAt = strings.TrimSpace(*failAt)
	if *rounds > 0 {
		script.Rounds = *rounds
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := mockbackend.NewServer(*addr,
		mockbackend.WithScript(script),
		mockbackend.WithDelay(*delay),
		mockbackend.WithLogger(stdoutLogger{}))
	if err := srv.Start(ctx); err != nil {
		return err
	}
	fmt.Printf("mock backend serving %s (Ctrl+C to stop)\n", srv.URL())
	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

type stdoutLogger struct{}

func (stdoutLogger) Printf(format string, args ...any) {
	fmt.Printf(time.Now().Format(time.TimeOnly)+" "+format+"\n", args...)
}

// printProgress writes one line per headline change and stage transition.
func printProgress(w io.Writer, snapshots <-chan session.Snapshot) {
	var (
		headline string
		statuses = map[int]progress.Status{}
	)
	for snap := range snapshots {
		if snap.Status == session.StatusIdle {
			continue
		}
		if snap.Headline != headline {
			headline = snap.Headline
			fmt.Fprintf(w, "» %s\n", headline)
		}
		for _, stage := range snap.Model.Stages {
			if statuses[stage.Number] == stage.Status {
				continue
			}
			statuses[stage.Number] = stage.Status
			if stage.Status == progress.StatusPending {
				continue
			}
			fmt.Fprintf(w, "  %s %d. %s", statusMark(stage.Status), stage.Number, stage.Title)
			if stage.Message != "" {
				fmt.Fprintf(w, " · %s", stage.Message)
			}
			fmt.Fprintln(w)
		}
	}
}

// printSummary writes the final cards of every stage and the result.
func printSummary(w io.Writer, snap session.Snapshot) {
	fmt.Fprintf(w, "\nRun %s · %s\n%s\n", snap.RunID, snap.Status, snap.Headline)
	for _, stage := range snap.Model.Stages {
		fmt.Fprintf(w, "\n%s %d. %s\n", statusMark(stage.Status), stage.Number, stage.Title)
		writeCards(w, stage.Output, "    ")
		for _, vendor := range stage.Vendors {
			fmt.Fprintf(w, "    %s %s\n", statusMark(vendor.Status), vendor.DisplayName)
			writeCards(w, vendor.Output, "        ")
		}
	}
	if snap.Err != "" {
		fmt.Fprintf(w, "\nError: %s\n", snap.Err)
	}
	if len(snap.Result) > 0 {
		encoded, err := json.MarshalIndent(snap.Result, "", "  ")
		if err == nil {
			fmt.Fprintf(w, "\nResult:\n%s\n", encoded)
		}
	}
}

func writeCards(w io.Writer, cards []format.Card, indent string) {
	for _, card := range cards {
		line := indent + card.Title
		if card.Subtitle != "" {
			line += " [" + card.Subtitle + "]"
		}
		fmt.Fprintln(w, line)
		for _, d := range card.Details {
			fmt.Fprintf(w, "%s  %s: %s\n", indent, d.Label, d.Value)
		}
	}
}

func statusMark(status progress.Status) string {
	switch status {
	case progress.StatusCompleted:
		return "[✓]"
	case progress.StatusActive:
		return "[…]"
	default:
		return "[ ]"
	}
}

func truncate(value string, limit int) string {
	value = strings.TrimSpace(value)
	runes := []rune(value)
	if len(runes) <= limit {
		return value
	}
	return string(runes[:limit-1]) + "…"
}
