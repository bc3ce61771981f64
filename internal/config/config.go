package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/gridpulse/gridpulse-ui/internal/grid"
	"github.com/gridpulse/gridpulse-ui/internal/logging"
)

// Config holds the complete application configuration.
type Config struct {
	Server ServerConfig      `yaml:"server"`
	Feed   FeedConfig        `yaml:"feed"`
	Push   PushConfig        `yaml:"push"`
	Poll   PollConfig        `yaml:"poll"`
	Grid   GridConfig        `yaml:"grid"`
	Cache  CacheConfig       `yaml:"cache"`
	Prefs  PrefsConfig       `yaml:"prefs"`
	Log    logging.LogConfig `yaml:"log"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Listen string `yaml:"listen"`
}

// FeedConfig holds the upstream grid data service connection settings.
type FeedConfig struct {
	URL      string        `yaml:"url"`
	Username string        `yaml:"username"`
	Password string        `yaml:"password"`
	Timeout  time.Duration `yaml:"timeout"`
}

// PushConfig holds push channel (websocket) settings. When URL is empty
// the feed URL is reused with the websocket endpoint path.
type PushConfig struct {
	Enabled    bool          `yaml:"enabled"`
	URL        string        `yaml:"url"`
	BackoffMin time.Duration `yaml:"backoffMin"`
	BackoffMax time.Duration `yaml:"backoffMax"`
}

// PollConfig holds snapshot polling settings.
type PollConfig struct {
	Interval       time.Duration `yaml:"interval"`
	FetchTimeout   time.Duration `yaml:"fetchTimeout"`
	AlertSyncLimit int           `yaml:"alertSyncLimit"`
}

// GridConfig holds the grid model settings.
type GridConfig struct {
	// Readings older than MaxAge classify as unknown. 0 disables the
	// staleness check.
	MaxAge time.Duration `yaml:"maxAge"`
	// Limits optionally overrides the thresholds delivered with each
	// snapshot. A present but inconsistent override is fatal.
	Limits *grid.LimitConfig `yaml:"limits"`
}

// CacheConfig holds layout cache settings.
type CacheConfig struct {
	TTL time.Duration `yaml:"ttl"`
}

// PrefsConfig holds operator preference persistence settings.
type PrefsConfig struct {
	Store string      `yaml:"store"` // "file" (default) or "redis"
	File  FileConfig  `yaml:"file"`
	Redis RedisConfig `yaml:"redis"`
}

// FileConfig holds file-backed preference store settings.
type FileConfig struct {
	Path string `yaml:"path"`
}

// RedisConfig holds redis-backed preference store settings.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// Load reads a YAML config file and applies environment variable overrides.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		// Config file not found, use defaults + env overrides.
	} else {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	applyEnvOverrides(cfg)

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Feed.URL == "" {
		return fmt.Errorf("feed.url is required")
	}
	if c.Server.Listen == "" {
		return fmt.Errorf("server.listen is required")
	}
	if c.Poll.Interval < time.Second {
		return fmt.Errorf("poll.interval must be at least 1s (got %s)", c.Poll.Interval)
	}
	if c.Poll.FetchTimeout <= 0 {
		return fmt.Errorf("poll.fetchTimeout must be positive")
	}
	if c.Grid.MaxAge < 0 {
		return fmt.Errorf("grid.maxAge must not be negative")
	}
	if c.Grid.Limits != nil {
		if err := c.Grid.Limits.Validate(); err != nil {
			return fmt.Errorf("grid.limits: %w", err)
		}
	}
	if c.Push.BackoffMin <= 0 || c.Push.BackoffMax < c.Push.BackoffMin {
		return fmt.Errorf("push backoff range is invalid (min %s, max %s)",
			c.Push.BackoffMin, c.Push.BackoffMax)
	}

	switch c.Prefs.Store {
	case "file", "":
		if c.Prefs.File.Path == "" {
			return fmt.Errorf("prefs.file.path is required when prefs.store is \"file\"")
		}
	case "redis":
		if c.Prefs.Redis.Addr == "" {
			return fmt.Errorf("prefs.redis.addr is required when prefs.store is \"redis\"")
		}
	default:
		return fmt.Errorf("unknown prefs.store: %q (supported: file, redis)", c.Prefs.Store)
	}

	// Validate log config.
	switch c.Log.Format {
	case "text", "json", "":
	default:
		return fmt.Errorf("log.format %q is invalid (expected text/json)", c.Log.Format)
	}
	if c.Log.Level != "" {
		var level slog.Level
		if err := level.UnmarshalText([]byte(strings.ToUpper(c.Log.Level))); err != nil {
			return fmt.Errorf("log.level %q is invalid (expected debug/info/warn/error)", c.Log.Level)
		}
	}
	switch c.Log.TimeFormat {
	case "rfc3339", "rfc3339nano", "unix", "unixmilli", "":
	default:
		return fmt.Errorf("log.timeFormat %q is invalid (expected rfc3339/rfc3339nano/unix/unixmilli)", c.Log.TimeFormat)
	}

	return nil
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Listen: ":8080",
		},
		Feed: FeedConfig{
			Timeout: 10 * time.Second,
		},
		Push: PushConfig{
			Enabled:    true,
			BackoffMin: time.Second,
			BackoffMax: time.Minute,
		},
		Poll: PollConfig{
			Interval:       30 * time.Second,
			FetchTimeout:   10 * time.Second,
			AlertSyncLimit: 100,
		},
		Grid: GridConfig{
			MaxAge: 5 * time.Minute,
		},
		Cache: CacheConfig{
			TTL: 5 * time.Second,
		},
		Prefs: PrefsConfig{
			Store: "file",
			File:  FileConfig{Path: "prefs.json"},
		},
		Log: logging.LogConfig{
			Format:     "json",
			Level:      "info",
			TimeFormat: "rfc3339nano",
		},
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("GRIDPULSE_SERVER_LISTEN"); v != "" {
		cfg.Server.Listen = v
	}
	if v := os.Getenv("GRIDPULSE_FEED_URL"); v != "" {
		cfg.Feed.URL = v
	}
	if v := os.Getenv("GRIDPULSE_FEED_USERNAME"); v != "" {
		cfg.Feed.Username = v
	}
	if v := os.Getenv("GRIDPULSE_FEED_PASSWORD"); v != "" {
		cfg.Feed.Password = v
	}
	if v := os.Getenv("GRIDPULSE_FEED_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Feed.Timeout = d
		}
	}
	if v := os.Getenv("GRIDPULSE_PUSH_ENABLED"); v != "" {
		cfg.Push.Enabled = strings.EqualFold(v, "true") || v == "1"
	}
	if v := os.Getenv("GRIDPULSE_PUSH_URL"); v != "" {
		cfg.Push.URL = v
	}
	if v := os.Getenv("GRIDPULSE_POLL_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Poll.Interval = d
		}
	}
	if v := os.Getenv("GRIDPULSE_GRID_MAXAGE"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Grid.MaxAge = d
		}
	}
	if v := os.Getenv("GRIDPULSE_CACHE_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Cache.TTL = d
		}
	}
	if v := os.Getenv("GRIDPULSE_PREFS_STORE"); v != "" {
		cfg.Prefs.Store = v
	}
	if v := os.Getenv("GRIDPULSE_PREFS_FILE_PATH"); v != "" {
		cfg.Prefs.File.Path = v
	}
	if v := os.Getenv("GRIDPULSE_PREFS_REDIS_ADDR"); v != "" {
		cfg.Prefs.Redis.Addr = v
	}
	if v := os.Getenv("GRIDPULSE_PREFS_REDIS_PASSWORD"); v != "" {
		cfg.Prefs.Redis.Password = v
	}
	if v := os.Getenv("GRIDPULSE_PREFS_REDIS_DB"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Prefs.Redis.DB = n
		}
	}

	// Log overrides.
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Log.Format = strings.ToLower(v)
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = strings.ToLower(v)
	}
	if v := os.Getenv("LOG_TIME_FORMAT"); v != "" {
		cfg.Log.TimeFormat = strings.ToLower(v)
	}
	if v := os.Getenv("LOG_ADD_SOURCE"); v != "" {
		cfg.Log.AddSource = strings.EqualFold(v, "true") || v == "1"
	}
	if v := os.Getenv("LOG_TIME_KEY"); v != "" {
		cfg.Log.TimeKey = v
	}
	if v := os.Getenv("LOG_LEVEL_KEY"); v != "" {
		cfg.Log.LevelKey = v
	}
	if v := os.Getenv("LOG_MESSAGE_KEY"); v != "" {
		cfg.Log.MessageKey = v
	}
	if v := os.Getenv("LOG_SOURCE_KEY"); v != "" {
		cfg.Log.SourceKey = v
	}
}
