package config

import "time"

// RetryPolicy controls retry behavior for a class of remote calls.
// It is a value object passed per call site, never mutated in place.
type RetryPolicy struct {
	MaxAttempts  int           `mapstructure:"max_attempts" yaml:"max_attempts"`
	BaseDelay    time.Duration `mapstructure:"base_delay" yaml:"base_delay"`
	MaxDelay     time.Duration `mapstructure:"max_delay" yaml:"max_delay"`
	JitterFactor float64       `mapstructure:"jitter_factor" yaml:"jitter_factor"`
}

// Config holds guest client configuration values.
type Config struct {
	HostURL      string        `mapstructure:"host_url" yaml:"host_url"`
	EventsURL    string        `mapstructure:"events_url" yaml:"events_url"`
	DatabasePath string        `mapstructure:"database_path" yaml:"database_path"`
	LogLevel     string        `mapstructure:"log_level" yaml:"log_level"`
	CallTimeout  time.Duration `mapstructure:"call_timeout" yaml:"call_timeout"`

	// Reads covers idempotent operations (preview, game list, shared
	// preferences); Mutations covers slot claims and preference submission
	// and must keep MaxAttempts at 1.
	Reads     RetryPolicy `mapstructure:"reads" yaml:"reads"`
	Mutations RetryPolicy `mapstructure:"mutations" yaml:"mutations"`
}

// Default returns configuration with reasonable starter defaults.
func Default() Config {
	return Config{
		HostURL:      "http://localhost:8080",
		EventsURL:    "ws://localhost:8080",
		DatabasePath: "gamenight.db",
		LogLevel:     "info",
		CallTimeout:  10 * time.Second,
		Reads: RetryPolicy{
			MaxAttempts:  4,
			BaseDelay:    250 * time.Millisecond,
			MaxDelay:     4 * time.Second,
			JitterFactor: 0.2,
		},
		Mutations: RetryPolicy{
			MaxAttempts: 1,
		},
	}
}

// UpdateFrom overwrites non-zero values from other config into receiver.
func (c *Config) UpdateFrom(other Config) {
	if other.HostURL != "" {
		c.HostURL = other.HostURL
	}
	if other.EventsURL != "" {
		c.EventsURL = other.EventsURL
	}
	if other.DatabasePath != "" {
		c.DatabasePath = other.DatabasePath
	}
	if other.LogLevel != "" {
		c.LogLevel = other.LogLevel
	}
	if other.CallTimeout != 0 {
		c.CallTimeout = other.CallTimeout
	}
	if other.Reads.MaxAttempts != 0 {
		c.Reads = other.Reads
	}
	if other.Mutations.MaxAttempts != 0 {
		c.Mutations = other.Mutations
	}
}
