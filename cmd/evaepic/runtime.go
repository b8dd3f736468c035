package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dennishermann/evaepic-sub000/internal/config"
	"github.com/dennishermann/evaepic-sub000/internal/journal"
	"github.com/dennishermann/evaepic-sub000/internal/logbook"
	"github.com/dennishermann/evaepic-sub000/internal/logging"
	"github.com/dennishermann/evaepic-sub000/internal/progress"
	"github.com/dennishermann/evaepic-sub000/internal/session"
	"github.com/dennishermann/evaepic-sub000/internal/stream"
)

// runtimeOptions carries flag overrides shared by the session commands.
type runtimeOptions struct {
	project     string
	url         string
	maxRounds   int
	attribution string
	noJournal   bool
}

// runtime wires config, logs, journal and the session for one invocation.
type runtime struct {
	cfg     *config.Config
	logger  *logging.Logger
	book    *logbook.Logbook
	journal *journal.Journal
	session *session.Session
}

func resolveProject(project string) (string, error) {
	if strings.TrimSpace(project) == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return "", fmt.Errorf("determine working directory: %w", err)
		}
		project = cwd
	}
	abs, err := filepath.Abs(project)
	if err != nil {
		return "", fmt.Errorf("resolve project dir: %w", err)
	}
	return abs, nil
}

func loadConfig(project string) (*config.Config, error) {
	dir, err := resolveProject(project)
	if err != nil {
		return nil, err
	}
	if err := config.InitProjectDir(dir); err != nil {
		return nil, fmt.Errorf("init %s: %w", config.ProjectDirName, err)
	}
	cfg, err := config.NewConfig(dir)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func openRuntime(ctx context.Context, opts runtimeOptions) (*runtime, error) {
	attribution, err := progress.ParseAttribution(opts.attribution)
	if err != nil {
		return nil, err
	}
	cfg, err := loadConfig(opts.project)
	if err != nil {
		return nil, err
	}
	rt := &runtime{cfg: cfg}
	logger, err := logging.New(cfg.ProjectDir)
	if err != nil {
		return nil, err
	}
	rt.logger = logger
	book, err := logbook.New(filepath.Join(cfg.LogsDir(), "journey.log"))
	if err != nil {
		rt.Close()
		return nil, fmt.Errorf("open logbook: %w", err)
	}
	rt.book = book

	settings := stream.SettingsFromConfig(cfg)
	if u := strings.TrimSpace(opts.url); u != "" {
		settings.URL = u
	}
	if opts.maxRounds > 0 {
		settings.MaxRounds = opts.maxRounds
	}
	dialer := stream.NewWebsocketDialer(settings, stream.WithLogger(logger.Named("stream")))

	sessionOpts := []session.Option{
		session.WithLogger(logger.Named("session")),
		session.WithLogbook(book),
		session.WithReducer(progress.NewReducer(progress.WithAttribution(attribution))),
		session.WithQueueSize(cfg.Project.Session.QueueSize),
		session.WithSubscriberCapacity(cfg.Project.Session.SubscriberCapacity),
		session.WithMaxRounds(settings.MaxRounds),
	}
	if cfg.JournalEnabled() && !opts.noJournal {
		j, err := journal.Open(ctx, cfg.JournalPath())
		if err != nil {
			logger.Printf("journal disabled: %v", err)
		} else {
			rt.journal = j
			sessionOpts = append(sessionOpts, session.WithRecorder(j))
		}
	}
	rt.session = session.New(dialer, sessionOpts...)
	logger.Printf("runtime ready: stream=%s journal=%t", settings.URL, rt.journal != nil)
	return rt, nil
}

// Close stops any live run and releases files.
func (r *runtime) Close() {
	if r == nil {
		return
	}
	if r.session != nil {
		r.session.Close()
	}
	if r.journal != nil {
		if err := r.journal.Close(); err != nil {
			r.logger.Printf("close journal: %v", err)
		}
	}
	if r.logger != nil {
		_ = r.logger.Close()
	}
}

func openJournal(ctx context.Context, project string) (*journal.Journal, error) {
	cfg, err := loadConfig(project)
	if err != nil {
		return nil, err
	}
	return journal.Open(ctx, cfg.JournalPath())
}
