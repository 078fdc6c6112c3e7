package shared

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

//go:embed config.example.toml
var exampleConf []byte

// Config represents the application configuration loaded from a TOML file.
type Config struct {
	DataDir  string         `toml:"data_dir"`
	Plex     PlexConfig     `toml:"plex"`
	Trakt    TraktConfig    `toml:"trakt"`
	Sync     SyncConfig     `toml:"sync"`
	Retry    RetryConfig    `toml:"retry"`
	Schedule ScheduleConfig `toml:"schedule"`
	Database DatabaseConfig `toml:"database"`
	Server   ServerConfig   `toml:"server"`
	Log      LogConfig      `toml:"log"`
}

// PlexConfig contains the media server connection settings.
type PlexConfig struct {
	BaseURL          string        `toml:"base_url"`
	Token            string        `toml:"token"`
	ClientIdentifier string        `toml:"client_identifier"`
	Libraries        []string      `toml:"libraries"`
	PageSize         int           `toml:"page_size"`
	Timeout          time.Duration `toml:"timeout"`
}

// TraktConfig contains Trakt API credentials.
type TraktConfig struct {
	ClientID     string `toml:"client_id"`
	ClientSecret string `toml:"client_secret"`
	RedirectURI  string `toml:"redirect_uri"`
	TokenPath    string `toml:"token_path"`
	APIURL       string `toml:"api_url"`
}

// SyncConfig selects what a sync run reconciles and how.
type SyncConfig struct {
	Movies            bool          `toml:"movies"`
	Shows             bool          `toml:"shows"`
	Watched           bool          `toml:"watched"`
	Ratings           bool          `toml:"ratings"`
	Collection        bool          `toml:"collection"`
	Watchlist         bool          `toml:"watchlist"`
	TwoWay            bool          `toml:"two_way"`
	Direction         string        `toml:"direction"`
	SkipAlreadySynced bool          `toml:"skip_already_synced"`
	BatchSize         int           `toml:"batch_size"`
	DryRun            bool          `toml:"dry_run"`
	MutationDelay     time.Duration `toml:"mutation_delay"`
}

// RetryConfig bounds the backoff applied to remote calls.
type RetryConfig struct {
	MaxRetries int           `toml:"max_retries"`
	BaseDelay  time.Duration `toml:"base_delay"`
	MaxDelay   time.Duration `toml:"max_delay"`
}

// ScheduleConfig contains the daemon's cron schedule.
type ScheduleConfig struct {
	Cron       string `toml:"cron"`
	RunOnStart bool   `toml:"run_on_start"`
}

// DatabaseConfig contains database connection settings.
type DatabaseConfig struct {
	Path         string `toml:"path"`
	MaxOpenConns int    `toml:"max_open_conns"`
	MaxIdleConns int    `toml:"max_idle_conns"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

// LogConfig contains logging settings.
type LogConfig struct {
	Level string `toml:"level"`
}

// LoadConfig reads and parses a TOML configuration file from the specified path.
//
// Keys missing from the file keep the values of [DefaultConfig].
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read config file: %v", ErrMissingConfig, err)
	}

	config := DefaultConfig()
	if err := toml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("%w: failed to parse config: %v", ErrInvalidConfig, err)
	}

	return config, nil
}

// DefaultConfig returns a Config with sensible defaults loaded from the embedded example config.
func DefaultConfig() *Config {
	var config Config
	if err := toml.Unmarshal(exampleConf, &config); err != nil {
		panic(fmt.Sprintf("failed to parse embedded default config: %v", err))
	}
	return &config
}

// CreateConfigFile creates a config.toml file at the specified path using the embedded example config.
func CreateConfigFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, exampleConf, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// ApplyEnv overrides config values from environment variables.
//
// lookup is usually [os.LookupEnv].
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	flag := func(key string, dst *bool) {
		if v, ok := lookup(key); ok {
			if b, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
				*dst = b
			}
		}
	}

	str("PLEX_BASE_URL", &c.Plex.BaseURL)
	str("PLEX_TOKEN", &c.Plex.Token)
	str("TRAKT_CLIENT_ID", &c.Trakt.ClientID)
	str("TRAKT_CLIENT_SECRET", &c.Trakt.ClientSecret)
	str("LOG_LEVEL", &c.Log.Level)
	str("CONFIG_DIR", &c.DataDir)
	flag("DRY_RUN", &c.Sync.DryRun)

	if v, ok := lookup("PLEX_LIBRARIES"); ok && strings.TrimSpace(v) != "" {
		c.Plex.Libraries = nil
		for name := range strings.SplitSeq(v, ",") {
			if name = strings.TrimSpace(name); name != "" {
				c.Plex.Libraries = append(c.Plex.Libraries, name)
			}
		}
	}
	if v, ok := lookup("WEB_PORT"); ok {
		if port, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			c.Server.Port = port
		}
	}
}

// Validate reports configuration errors that make a sync run impossible.
func (c *Config) Validate() error {
	if c.Plex.BaseURL == "" {
		return fmt.Errorf("%w: plex.base_url is required", ErrInvalidConfig)
	}
	if c.Plex.Token == "" {
		return fmt.Errorf("%w: plex.token is required", ErrMissingCredentials)
	}
	if c.Trakt.ClientID == "" || c.Trakt.ClientSecret == "" {
		return fmt.Errorf("%w: trakt.client_id and trakt.client_secret are required", ErrMissingCredentials)
	}
	if c.Sync.BatchSize <= 0 {
		return fmt.Errorf("%w: sync.batch_size must be positive, got %d", ErrInvalidConfig, c.Sync.BatchSize)
	}
	switch c.Sync.Direction {
	case "pull", "push":
	default:
		return fmt.Errorf("%w: sync.direction must be pull or push, got %q", ErrInvalidConfig, c.Sync.Direction)
	}
	if !c.Sync.Movies && !c.Sync.Shows {
		return fmt.Errorf("%w: enable sync.movies or sync.shows", ErrInvalidConfig)
	}
	return nil
}

// ConfigSummary is the effective configuration with credentials reduced to whether they are set.
type ConfigSummary struct {
	PlexURL         string   `json:"plex_url"`
	Libraries       []string `json:"libraries"`
	Direction       string   `json:"direction"`
	TwoWay          bool     `json:"two_way"`
	DryRun          bool     `json:"dry_run"`
	Movies          bool     `json:"movies"`
	Shows           bool     `json:"shows"`
	Watched         bool     `json:"watched"`
	Ratings         bool     `json:"ratings"`
	Collection      bool     `json:"collection"`
	BatchSize       int      `json:"batch_size"`
	Schedule        string   `json:"schedule"`
	LogLevel        string   `json:"log_level"`
	PlexConfigured  bool     `json:"plex_configured"`
	TraktConfigured bool     `json:"trakt_configured"`
}

// Summary returns a view of c that is safe to expose over HTTP.
func (c *Config) Summary() ConfigSummary {
	libraries := []string{}
	libraries = append(libraries, c.Plex.Libraries...)
	return ConfigSummary{
		PlexURL:         c.Plex.BaseURL,
		Libraries:       libraries,
		Direction:       c.Sync.Direction,
		TwoWay:          c.Sync.TwoWay,
		DryRun:          c.Sync.DryRun,
		Movies:          c.Sync.Movies,
		Shows:           c.Sync.Shows,
		Watched:         c.Sync.Watched,
		Ratings:         c.Sync.Ratings,
		Collection:      c.Sync.Collection,
		BatchSize:       c.Sync.BatchSize,
		Schedule:        c.Schedule.Cron,
		LogLevel:        c.Log.Level,
		PlexConfigured:  c.Plex.BaseURL != "" && c.Plex.Token != "",
		TraktConfigured: c.Trakt.ClientID != "" && c.Trakt.ClientSecret != "",
	}
}

// ResolvePath places relative paths under DataDir and expands "~".
func (c *Config) ResolvePath(path string) string {
	path = ExpandHome(path)
	if path == "" || filepath.IsAbs(path) || path == ":memory:" || c.DataDir == "" {
		return path
	}
	return filepath.Join(ExpandHome(c.DataDir), path)
}
