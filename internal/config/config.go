// internal/config/config.go
//
// This package handles configuration and the .evaepic directory structure.
// Every project that runs evaepic gets a .evaepic/ folder created in its root
// holding the config file, logs and the frame journal.

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// ProjectDirName is the name of the directory we create in each project
	ProjectDirName = ".evaepic"

	DefaultStreamURL          = "ws://localhost:8000/api/negotiate/ws"
	DefaultHandshakeTimeout   = 10 * time.Second
	DefaultQueueSize          = 64
	DefaultSubscriberCapacity = 16
	DefaultJournalPath        = "state/journal.db"
	DefaultFeedHost           = "127.0.0.1"
	DefaultFeedPort           = 8766
)

const defaultProjectConfigYAML = `# evaepic project configuration
version: 1

# Negotiation backend websocket. max_rounds > 0 overrides the backend default.
stream:
  url: ws://localhost:8000/api/negotiate/ws
  handshake_timeout: 10s
  max_rounds: 0

# Frame queue between the socket reader and the reducer, and the number of
# snapshots buffered per subscriber.
session:
  queue_size: 64
  subscriber_capacity: 16

# Every inbound frame is recorded so runs can be replayed later.
journal:
  enabled: true
  path: state/journal.db

# Read-only HTTP feed serving the live progress snapshot.
feed:
  enabled: false
  host: 127.0.0.1
  port: 8766
`

// StreamConfig describes how to reach the negotiation backend.
type StreamConfig struct {
	URL              string        `yaml:"url"`
	HandshakeTimeout time.Duration `yaml:"handshake_timeout"`
	MaxRounds        int           `yaml:"max_rounds"`
}

// SessionConfig sizes the session's internal buffers.
type SessionConfig struct {
	QueueSize          int `yaml:"queue_size"`
	SubscriberCapacity int `yaml:"subscriber_capacity"`
}

// JournalConfig controls frame recording.
type JournalConfig struct {
	Enabled *bool  `yaml:"enabled,omitempty"`
	Path    string `yaml:"path"`
}

// FeedConfig controls the HTTP progress feed.
type FeedConfig struct {
	Enabled *bool  `yaml:"enabled,omitempty"`
	Host    string `yaml:"host,omitempty"`
	Port    int    `yaml:"port,omitempty"`
}

// ProjectConfig models .evaepic/config.yaml.
type ProjectConfig struct {
	Version int           `yaml:"version"`
	Stream  StreamConfig  `yaml:"stream"`
	Session SessionConfig `yaml:"session"`
	Journal JournalConfig `yaml:"journal"`
	Feed    FeedConfig    `yaml:"feed"`
}

// Config holds the runtime configuration for evaepic.
type Config struct {
	// ProjectDir is the directory evaepic was started from
	ProjectDir string

	// StateRoot is ProjectDir/.evaepic
	StateRoot string

	Project ProjectConfig
}

// InitProjectDir creates the .evaepic directory structure in the given
// project directory and writes a default config when none exists.
//
// Structure created:
// .evaepic/
// ├── config.yaml
// ├── logs/    <- evaepic.log and journey.log
// └── state/   <- frame journal
func InitProjectDir(projectDir string) error {
	root := filepath.Join(projectDir, ProjectDirName)
	dirs := []string{
		filepath.Join(root, "logs"),
		filepath.Join(root, "state"),
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("config: ensure %s: %w", dir, err)
		}
	}
	return ensureProjectConfig(filepath.Join(root, "config.yaml"))
}

// NewConfig creates a Config populated from .evaepic/config.yaml. A missing
// file yields the defaults.
func NewConfig(projectDir string) (*Config, error) {
	cfg := &Config{
		ProjectDir: projectDir,
		StateRoot:  filepath.Join(projectDir, ProjectDirName),
		Project:    defaultProjectConfig(),
	}
	if err := cfg.loadProjectConfig(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LogsDir returns the path to the logs directory
func (c *Config) LogsDir() string {
	return filepath.Join(c.StateRoot, "logs")
}

// ProjectConfigPath returns the on-disk location for the project config file.
func (c *Config) ProjectConfigPath() string {
	return filepath.Join(c.StateRoot, "config.yaml")
}

// JournalEnabled reports whether frames should be recorded.
func (c *Config) JournalEnabled() bool {
	return c.Project.Journal.Enabled == nil || *c.Project.Journal.Enabled
}

// JournalPath returns the absolute path of the frame journal database.
func (c *Config) JournalPath() string {
	return resolvePath(c.StateRoot, c.Project.Journal.Path)
}

func (c *Config) loadProjectConfig() error {
	path := c.ProjectConfigPath()
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("config: read %s: %w", path, err)
	}

	var parsed ProjectConfig
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}

	parsed.applyDefaults()
	parsed.normalize()
	if err := parsed.validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}

	c.Project = parsed
	return nil
}

func defaultProjectConfig() ProjectConfig {
	pc := ProjectConfig{}
	pc.applyDefaults()
	return pc
}

func (pc *ProjectConfig) applyDefaults() {
	if pc.Version == 0 {
		pc.Version = 1
	}
	if strings.TrimSpace(pc.Stream.URL) == "" {
		pc.Stream.URL = DefaultStreamURL
	}
	if pc.Stream.HandshakeTimeout <= 0 {
		pc.Stream.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if pc.Session.QueueSize <= 0 {
		pc.Session.QueueSize = DefaultQueueSize
	}
	if pc.Session.SubscriberCapacity <= 0 {
		pc.Session.SubscriberCapacity = DefaultSubscriberCapacity
	}
	if strings.TrimSpace(pc.Journal.Path) == "" {
		pc.Journal.Path = DefaultJournalPath
	}
	if strings.TrimSpace(pc.Feed.Host) == "" {
		pc.Feed.Host = DefaultFeedHost
	}
	if pc.Feed.Port == 0 {
		pc.Feed.Port = DefaultFeedPort
	}
}

func (pc *ProjectConfig) normalize() {
	pc.Stream.URL = strings.TrimSpace(pc.Stream.URL)
	pc.Journal.Path = strings.TrimSpace(pc.Journal.Path)
	pc.Feed.Host = strings.TrimSpace(pc.Feed.Host)
	if pc.Stream.MaxRounds < 0 {
		pc.Stream.MaxRounds = 0
	}
}

func (pc *ProjectConfig) validate() error {
	if pc.Version < 1 {
		return fmt.Errorf("config version must be >= 1")
	}
	parsed, err := url.Parse(pc.Stream.URL)
	if err != nil {
		return fmt.Errorf("stream.url: %w", err)
	}
	switch parsed.Scheme {
	case "ws", "wss":
	default:
		return fmt.Errorf("stream.url must use ws or wss, got %q", parsed.Scheme)
	}
	if parsed.Host == "" {
		return fmt.Errorf("stream.url host is required")
	}
	if pc.Feed.Port < 1 || pc.Feed.Port > 65535 {
		return fmt.Errorf("feed.port must be between 1 and 65535")
	}
	return nil
}

func resolvePath(base, candidate string) string {
	trimmed := strings.TrimSpace(candidate)
	if trimmed == "" {
		return ""
	}
	if filepath.IsAbs(trimmed) {
		return filepath.Clean(trimmed)
	}
	return filepath.Clean(filepath.Join(base, trimmed))
}

func ensureProjectConfig(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return os.WriteFile(path, []byte(defaultProjectConfigYAML), 0o644)
}
