package stream

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dennishermann/evaepic-sub000/internal/config"
)

const (
	// DefaultReadLimit caps a single inbound frame at 4 MB.
	DefaultReadLimit int64 = 4 << 20
	// DefaultWriteTimeout bounds the initiation write when ctx has no deadline.
	DefaultWriteTimeout = 10 * time.Second
)

// Settings captures how the websocket dialer reaches the backend.
type Settings struct {
	URL              string
	HandshakeTimeout time.Duration
	ReadLimit        int64
	WriteTimeout     time.Duration
	MaxRounds        int
}

// SettingsFromConfig builds Settings using the project's .evaepic config and
// environment overrides.
func SettingsFromConfig(cfg *config.Config) Settings {
	settings := Settings{
		URL:              config.DefaultStreamURL,
		HandshakeTimeout: config.DefaultHandshakeTimeout,
		ReadLimit:        DefaultReadLimit,
		WriteTimeout:     DefaultWriteTimeout,
	}
	if cfg != nil {
		raw := cfg.Project.Stream
		if u := strings.TrimSpace(raw.URL); u != "" {
			settings.URL = u
		}
		if raw.HandshakeTimeout > 0 {
			settings.HandshakeTimeout = raw.HandshakeTimeout
		}
		settings.MaxRounds = raw.MaxRounds
	}
	settings.applyEnvOverrides()
	settings.normalize()
	return settings
}

func (s *Settings) applyEnvOverrides() {
	if s == nil {
		return
	}
	if u := strings.TrimSpace(os.Getenv("EVAEPIC_STREAM_URL")); u != "" {
		s.URL = u
	}
	if value := strings.TrimSpace(os.Getenv("EVAEPIC_STREAM_HANDSHAKE_TIMEOUT")); value != "" {
		if d, err := time.ParseDuration(value); err == nil && d > 0 {
			s.HandshakeTimeout = d
		}
	}
	if value := strings.TrimSpace(os.Getenv("EVAEPIC_MAX_ROUNDS")); value != "" {
		if n, err := strconv.Atoi(value); err == nil && n >= 0 {
			s.MaxRounds = n
		}
	}
}

func (s *Settings) normalize() {
	if s == nil {
		return
	}
	s.URL = strings.TrimSpace(s.URL)
	if s.URL == "" {
		s.URL = config.DefaultStreamURL
	}
	if s.HandshakeTimeout <= 0 {
		s.HandshakeTimeout = config.DefaultHandshakeTimeout
	}
	if s.ReadLimit <= 0 {
		s.ReadLimit = DefaultReadLimit
	}
	if s.WriteTimeout <= 0 {
		s.WriteTimeout = DefaultWriteTimeout
	}
	if s.MaxRounds < 0 {
		s.MaxRounds = 0
	}
}
