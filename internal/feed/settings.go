package feed

import (
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dennishermann/evaepic-sub000/internal/config"
)

const (
	// DefaultReadTimeout guards hung clients.
	DefaultReadTimeout = 15 * time.Second
	// DefaultIdleTimeout bounds keep-alive connections.
	DefaultIdleTimeout = 60 * time.Second
	// DefaultRunsLimit caps the /runs listing.
	DefaultRunsLimit = 20
)

// Settings captures runtime configuration for the progress feed.
type Settings struct {
	Enabled     bool
	Host        string
	Port        int
	ReadTimeout time.Duration
	IdleTimeout time.Duration
	RunsLimit   int
}

// SettingsFromConfig builds Settings using the project's .evaepic config and
// environment overrides.
func SettingsFromConfig(cfg *config.Config) Settings {
	settings := Settings{
		Host:        config.DefaultFeedHost,
		Port:        config.DefaultFeedPort,
		ReadTimeout: DefaultReadTimeout,
		IdleTimeout: DefaultIdleTimeout,
		RunsLimit:   DefaultRunsLimit,
	}
	if cfg != nil {
		raw := cfg.Project.Feed
		if raw.Enabled != nil {
			settings.Enabled = *raw.Enabled
		}
		if host := strings.TrimSpace(raw.Host); host != "" {
			settings.Host = host
		}
		if isValidPort(raw.Port) {
			settings.Port = raw.Port
		}
	}
	settings.applyEnvOverrides()
	settings.normalize()
	return settings
}

func (s *Settings) applyEnvOverrides() {
	if s == nil {
		return
	}
	if value := strings.TrimSpace(os.Getenv("EVAEPIC_FEED_ENABLED")); value != "" {
		if enabled, err := strconv.ParseBool(value); err == nil {
			s.Enabled = enabled
		}
	}
	if host := strings.TrimSpace(os.Getenv("EVAEPIC_FEED_HOST")); host != "" {
		s.Host = host
	}
	if port := strings.TrimSpace(os.Getenv("EVAEPIC_FEED_PORT")); port != "" {
		if parsed, err := strconv.Atoi(port); err == nil && isValidPort(parsed) {
			s.Port = parsed
		}
	}
}

func (s *Settings) normalize() {
	if s == nil {
		return
	}
	s.Host = strings.TrimSpace(s.Host)
	if s.Host == "" {
		s.Host = config.DefaultFeedHost
	}
	if !isValidPort(s.Port) {
		s.Port = config.DefaultFeedPort
	}
	if s.ReadTimeout <= 0 {
		s.ReadTimeout = DefaultReadTimeout
	}
	if s.IdleTimeout <= 0 {
		s.IdleTimeout = DefaultIdleTimeout
	}
	if s.RunsLimit <= 0 {
		s.RunsLimit = DefaultRunsLimit
	}
}

// Address returns the TCP bind address in host:port form.
func (s Settings) Address() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// URL returns the HTTP base URL for the feed.
func (s Settings) URL() string {
	return "http://" + s.Address()
}

func isValidPort(port int) bool {
	return port > 0 && port <= 65535
}
