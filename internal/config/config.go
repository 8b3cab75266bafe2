package config

import (
	"fmt"
	"time"
)

// Presence modes.
const (
	ModePush = "push"
	ModePoll = "poll"
)

// Presence store backends.
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// Config holds server configuration values.
type Config struct {
	Addr              string        `mapstructure:"addr" yaml:"addr"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" yaml:"read_header_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
	LogLevel          string        `mapstructure:"log_level" yaml:"log_level"`
	LogJSON           bool          `mapstructure:"log_json" yaml:"log_json"`
	DatabasePath      string        `mapstructure:"database_path" yaml:"database_path"`
	MetricsEnabled    bool          `mapstructure:"metrics_enabled" yaml:"metrics_enabled"`

	JWTSecret   string        `mapstructure:"jwt_secret" yaml:"jwt_secret"`
	JWTIssuer   string        `mapstructure:"jwt_issuer" yaml:"jwt_issuer"`
	JWTAudience string        `mapstructure:"jwt_audience" yaml:"jwt_audience"`
	TokenTTL    time.Duration `mapstructure:"token_ttl" yaml:"token_ttl"`

	// MaxMessagesPerMinute limits inbound websocket messages per connection. Zero disables.
	MaxMessagesPerMinute int `mapstructure:"max_messages_per_minute" yaml:"max_messages_per_minute"`

	// WSOriginPatterns lists extra hosts allowed to open /ws cross-origin.
	// Empty means same-host only.
	WSOriginPatterns []string `mapstructure:"ws_origin_patterns" yaml:"ws_origin_patterns"`

	Presence PresenceConfig `mapstructure:"presence" yaml:"presence"`
	Redis    RedisConfig    `mapstructure:"redis" yaml:"redis"`
}

// PresenceConfig selects the presence protocol and its timings.
type PresenceConfig struct {
	Mode              string        `mapstructure:"mode" yaml:"mode"`
	Backend           string        `mapstructure:"backend" yaml:"backend"`
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval" yaml:"heartbeat_interval"`
	StaleThreshold    time.Duration `mapstructure:"stale_threshold" yaml:"stale_threshold"`
	SweepInterval     time.Duration `mapstructure:"sweep_interval" yaml:"sweep_interval"`
}

// RedisConfig points the shared presence store at a redis instance.
type RedisConfig struct {
	Addr     string `mapstructure:"addr" yaml:"addr"`
	Password string `mapstructure:"password" yaml:"password"`
	DB       int    `mapstructure:"db" yaml:"db"`
	Key      string `mapstructure:"key" yaml:"key"`
}

// Default returns configuration with reasonable starter defaults.
func Default() Config {
	return Config{
		Addr:                 ":3000",
		ReadHeaderTimeout:    5 * time.Second,
		ShutdownTimeout:      5 * time.Second,
		LogLevel:             "info",
		DatabasePath:         "users.db",
		MetricsEnabled:       true,
		JWTSecret:            "change-me-in-production",
		JWTIssuer:            "wirepresence",
		JWTAudience:          "wirepresence",
		TokenTTL:             24 * time.Hour,
		MaxMessagesPerMinute: 120,
		WSOriginPatterns:     []string{},
		Presence: PresenceConfig{
			Mode:              ModePush,
			Backend:           BackendMemory,
			HeartbeatInterval: 30 * time.Second,
			StaleThreshold:    90 * time.Second,
			SweepInterval:     30 * time.Second,
		},
		Redis: RedisConfig{
			Addr: "localhost:6379",
			Key:  "wirepresence:online",
		},
	}
}

// UpdateFrom overwrites non-zero values from other config into receiver.
func (c *Config) UpdateFrom(other Config) {
	if other.Addr != "" {
		c.Addr = other.Addr
	}
	if other.LogLevel != "" {
		c.LogLevel = other.LogLevel
	}
	if other.DatabasePath != "" {
		c.DatabasePath = other.DatabasePath
	}
	if other.Presence.Mode != "" {
		c.Presence.Mode = other.Presence.Mode
	}
	if other.Presence.Backend != "" {
		c.Presence.Backend = other.Presence.Backend
	}
}

// Validate reports settings the server cannot run with.
func (c *Config) Validate() error {
	switch c.Presence.Mode {
	case ModePush, ModePoll:
	default:
		return fmt.Errorf("unknown presence mode %q", c.Presence.Mode)
	}
	switch c.Presence.Backend {
	case BackendMemory, BackendRedis:
	default:
		return fmt.Errorf("unknown presence backend %q", c.Presence.Backend)
	}
	// The hub's connection ownership is per process; a shared store would let
	// one process remove an identity another process's connection still owns.
	if c.Presence.Mode == ModePush && c.Presence.Backend == BackendRedis {
		return fmt.Errorf("presence backend %q is only supported in %q mode", BackendRedis, ModePoll)
	}
	if c.JWTSecret == "" {
		return fmt.Errorf("jwt_secret is required")
	}
	if c.TokenTTL <= 0 {
		return fmt.Errorf("token_ttl must be positive")
	}
	if c.Presence.Mode == ModePoll {
		p := c.Presence
		if p.HeartbeatInterval <= 0 || p.SweepInterval <= 0 {
			return fmt.Errorf("heartbeat_interval and sweep_interval must be positive")
		}
		// One missed beat must not mark a live client offline.
		if p.StaleThreshold < 2*p.HeartbeatInterval {
			return fmt.Errorf("stale_threshold (%s) must be at least twice heartbeat_interval (%s)",
				p.StaleThreshold, p.HeartbeatInterval)
		}
	}
	return nil
}
