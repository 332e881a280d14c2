// Package config holds the service configuration, parsed from FEEDHUB_
// environment variables.
package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds the configuration for the feed delivery service.
type Config struct {
	// HTTP server
	HTTPHost         string        `envconfig:"HTTP_HOST" default:"0.0.0.0"`
	HTTPPort         int           `envconfig:"HTTP_PORT" default:"8080"`
	HTTPReadTimeout  time.Duration `envconfig:"HTTP_READ_TIMEOUT" default:"30s"`
	HTTPWriteTimeout time.Duration `envconfig:"HTTP_WRITE_TIMEOUT" default:"30s"`

	// WebSocket transport
	WSWriteTimeout time.Duration `envconfig:"WS_WRITE_TIMEOUT" default:"5s"`
	WSReadTimeout  time.Duration `envconfig:"WS_READ_TIMEOUT" default:"60s"`
	WSBufferSize   int           `envconfig:"WS_BUFFER_SIZE" default:"100"`
	PingInterval   time.Duration `envconfig:"PING_INTERVAL" default:"30s"`

	// Connection manager
	MaxSessions int `envconfig:"MAX_SESSIONS" default:"10000"`

	// Store
	StorePath string `envconfig:"STORE_PATH" default:"./feedhub.db"`

	// Auth
	AuthSecret string `envconfig:"AUTH_SECRET" default:""`

	// User context cache
	ContextTTL   time.Duration `envconfig:"CONTEXT_TTL" default:"5m"`
	ContextGrace time.Duration `envconfig:"CONTEXT_GRACE" default:"30m"`

	// Curation
	DefaultLimit  int `envconfig:"DEFAULT_LIMIT" default:"20"`
	MaxLimit      int `envconfig:"MAX_LIMIT" default:"100"`
	CandidatePool int `envconfig:"CANDIDATE_POOL" default:"500"`

	// Scoring weights. Tunable; the shipped defaults favor recency and
	// social signal over raw engagement.
	RecencyWeight    float64       `envconfig:"RECENCY_WEIGHT" default:"0.35"`
	SocialWeight     float64       `envconfig:"SOCIAL_WEIGHT" default:"0.30"`
	AffinityWeight   float64       `envconfig:"AFFINITY_WEIGHT" default:"0.15"`
	EngagementWeight float64       `envconfig:"ENGAGEMENT_WEIGHT" default:"0.20"`
	RecencyHalfLife  time.Duration `envconfig:"RECENCY_HALF_LIFE" default:"6h"`
	SocialBaseline   float64       `envconfig:"SOCIAL_BASELINE" default:"1.0"`
}

// New creates a Config by parsing environment variables.
func New() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("FEEDHUB", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the configuration for values that would fail at runtime.
func (c *Config) Validate() error {
	if c.HTTPPort <= 0 || c.HTTPPort > 65535 {
		return fmt.Errorf("HTTP port must be between 1 and 65535")
	}
	if c.HTTPReadTimeout <= 0 || c.HTTPWriteTimeout <= 0 {
		return fmt.Errorf("HTTP timeouts must be positive")
	}
	if c.WSWriteTimeout <= 0 || c.WSReadTimeout <= 0 {
		return fmt.Errorf("WebSocket timeouts must be positive")
	}
	if c.WSBufferSize <= 0 {
		return fmt.Errorf("WebSocket buffer size must be positive")
	}
	if c.PingInterval <= 0 {
		return fmt.Errorf("ping interval must be positive")
	}
	if c.MaxSessions <= 0 {
		return fmt.Errorf("max sessions must be positive")
	}
	if c.StorePath == "" {
		return fmt.Errorf("store path cannot be empty")
	}
	if c.AuthSecret == "" {
		return fmt.Errorf("auth secret cannot be empty")
	}
	if c.ContextTTL <= 0 {
		return fmt.Errorf("context TTL must be positive")
	}
	if c.ContextGrace < c.ContextTTL {
		return fmt.Errorf("context grace window must be at least the TTL")
	}
	if c.DefaultLimit <= 0 || c.MaxLimit < c.DefaultLimit {
		return fmt.Errorf("feed limits must satisfy 0 < default <= max")
	}
	if c.CandidatePool < c.MaxLimit+1 {
		return fmt.Errorf("candidate pool must exceed max limit")
	}
	if c.RecencyWeight < 0 || c.SocialWeight < 0 || c.AffinityWeight < 0 || c.EngagementWeight < 0 {
		return fmt.Errorf("scoring weights must be non-negative")
	}
	if c.RecencyHalfLife <= 0 {
		return fmt.Errorf("recency half-life must be positive")
	}
	return nil
}

// Addr returns the HTTP listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.HTTPHost, c.HTTPPort)
}
