package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Config is the full agent configuration: YAML file first, then environment
// overrides (FIELDTRACK_ prefix), then defaults, then validation.
type Config struct {
	Dispatch struct {
		BaseURL string   `yaml:"base_url" env:"DISPATCH_BASE_URL"`
		Timeout Duration `yaml:"timeout" env:"DISPATCH_TIMEOUT"`
	} `yaml:"dispatch"`

	Channel struct {
		URL               string   `yaml:"url" env:"CHANNEL_URL"`
		ReconnectAttempts int      `yaml:"reconnect_attempts" env:"CHANNEL_RECONNECT_ATTEMPTS"`
		ReconnectDelay    Duration `yaml:"reconnect_delay" env:"CHANNEL_RECONNECT_DELAY"`
		EmitTimeout       Duration `yaml:"emit_timeout" env:"CHANNEL_EMIT_TIMEOUT"`
		PollingFallback   bool     `yaml:"polling_fallback" env:"CHANNEL_POLLING_FALLBACK"`
	} `yaml:"channel"`

	Location struct {
		StalenessWindow Duration `yaml:"staleness_window" env:"LOCATION_STALENESS_WINDOW"`
		TierHigh        Duration `yaml:"tier_high" env:"LOCATION_TIER_HIGH"`
		TierBalanced    Duration `yaml:"tier_balanced" env:"LOCATION_TIER_BALANCED"`
		TierLow         Duration `yaml:"tier_low" env:"LOCATION_TIER_LOW"`
		TierLowest      Duration `yaml:"tier_lowest" env:"LOCATION_TIER_LOWEST"`
	} `yaml:"location"`

	Tracking struct {
		JobInterval           Duration `yaml:"job_interval" env:"TRACKING_JOB_INTERVAL"`
		JobMinDistanceM       float64  `yaml:"job_min_distance_m" env:"TRACKING_JOB_MIN_DISTANCE_M"`
		StandaloneInterval    Duration `yaml:"standalone_interval" env:"TRACKING_STANDALONE_INTERVAL"`
		StandaloneMinDistance float64  `yaml:"standalone_min_distance_m" env:"TRACKING_STANDALONE_MIN_DISTANCE_M"`
	} `yaml:"tracking"`

	Store struct {
		Path string `yaml:"path" env:"STORE_PATH"`
	} `yaml:"store"`
}

// Load reads config from a YAML file, applies environment overrides and
// defaults, and validates required fields. A missing file is not an error;
// the agent can run from environment alone.
func Load(path string) (*Config, error) {
	var cfg Config

	if strings.TrimSpace(path) != "" {
		raw, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(raw, &cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config file: %w", err)
			}
		case os.IsNotExist(err):
			// fall through to env + defaults
		default:
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: "FIELDTRACK_"}); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}

	applyDefaults(&cfg)

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// applyDefaults sets safe defaults for unset fields.
func applyDefaults(cfg *Config) {
	// Dispatch
	if cfg.Dispatch.BaseURL == "" {
		cfg.Dispatch.BaseURL = "http://localhost:3000/api"
	}
	if cfg.Dispatch.Timeout == 0 {
		cfg.Dispatch.Timeout = Duration(10 * time.Second)
	}

	// Channel; reconnect cadence mirrors the dispatcher's published client
	// settings (5 attempts, fixed 1s delay).
	if cfg.Channel.URL == "" {
		cfg.Channel.URL = "ws://localhost:3000/channel"
	}
	if cfg.Channel.ReconnectAttempts == 0 {
		cfg.Channel.ReconnectAttempts = 5
	}
	if cfg.Channel.ReconnectDelay == 0 {
		cfg.Channel.ReconnectDelay = Duration(time.Second)
	}
	if cfg.Channel.EmitTimeout == 0 {
		cfg.Channel.EmitTimeout = Duration(5 * time.Second)
	}

	// Location acquisition ladder
	if cfg.Location.StalenessWindow == 0 {
		cfg.Location.StalenessWindow = Duration(10 * time.Minute)
	}
	if cfg.Location.TierHigh == 0 {
		cfg.Location.TierHigh = Duration(15 * time.Second)
	}
	if cfg.Location.TierBalanced == 0 {
		cfg.Location.TierBalanced = Duration(12 * time.Second)
	}
	if cfg.Location.TierLow == 0 {
		cfg.Location.TierLow = Duration(10 * time.Second)
	}
	if cfg.Location.TierLowest == 0 {
		cfg.Location.TierLowest = Duration(8 * time.Second)
	}

	// Tracking cadence: 5s/10m while on a job, 10s/20m standalone.
	if cfg.Tracking.JobInterval == 0 {
		cfg.Tracking.JobInterval = Duration(5 * time.Second)
	}
	if cfg.Tracking.JobMinDistanceM == 0 {
		cfg.Tracking.JobMinDistanceM = 10
	}
	if cfg.Tracking.StandaloneInterval == 0 {
		cfg.Tracking.StandaloneInterval = Duration(10 * time.Second)
	}
	if cfg.Tracking.StandaloneMinDistance == 0 {
		cfg.Tracking.StandaloneMinDistance = 20
	}

	// Store
	if cfg.Store.Path == "" {
		cfg.Store.Path = "fieldtrack.db"
	}
}

// validate checks required fields and basic ranges.
func (c *Config) validate() error {
	var problems []string

	if !strings.HasPrefix(c.Dispatch.BaseURL, "http://") && !strings.HasPrefix(c.Dispatch.BaseURL, "https://") {
		problems = append(problems, "dispatch.base_url must be an http(s) URL")
	}
	if c.Dispatch.Timeout < 0 {
		problems = append(problems, "dispatch.timeout must not be negative")
	}

	if !strings.HasPrefix(c.Channel.URL, "ws://") && !strings.HasPrefix(c.Channel.URL, "wss://") {
		problems = append(problems, "channel.url must be a ws(s) URL")
	}
	if c.Channel.ReconnectAttempts < 0 {
		problems = append(problems, "channel.reconnect_attempts must not be negative")
	}
	if c.Channel.ReconnectDelay < 0 {
		problems = append(problems, "channel.reconnect_delay must not be negative")
	}

	for _, tier := range []struct {
		name string
		val  Duration
	}{
		{"location.tier_high", c.Location.TierHigh},
		{"location.tier_balanced", c.Location.TierBalanced},
		{"location.tier_low", c.Location.TierLow},
		{"location.tier_lowest", c.Location.TierLowest},
	} {
		if tier.val < 0 {
			problems = append(problems, tier.name+" must not be negative")
		}
	}

	if c.Tracking.JobInterval <= 0 {
		problems = append(problems, "tracking.job_interval must be positive")
	}
	if c.Tracking.JobMinDistanceM < 0 {
		problems = append(problems, "tracking.job_min_distance_m must not be negative")
	}
	if c.Tracking.StandaloneInterval <= 0 {
		problems = append(problems, "tracking.standalone_interval must be positive")
	}
	if c.Tracking.StandaloneMinDistance < 0 {
		problems = append(problems, "tracking.standalone_min_distance_m must not be negative")
	}

	if len(problems) > 0 {
		return errors.New(strings.Join(problems, "; "))
	}
	return nil
}
