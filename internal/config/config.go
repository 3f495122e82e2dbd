// Package config loads ~/.huddle/config.toml and the environment overrides
// of a session.
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

	"github.com/BurntSushi/toml"
	"github.com/adhocore/gronx"
	"github.com/joho/godotenv"
)

// Environment variables that override the file.
const (
	EnvToken   = "HUDDLE_TOKEN"
	EnvAPIURL  = "HUDDLE_API_URL"
	EnvPushURL = "HUDDLE_PUSH_URL"
	EnvLevel   = "HUDDLE_LOG_LEVEL"
)

// Duration is a time.Duration written as "5s" in TOML.
type Duration struct {
	time.Duration
}

// D wraps d.
func D(d time.Duration) Duration { return Duration{d} }

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// Config represents the global ~/.huddle/config.toml.
type Config struct {
	DefaultSession string `toml:"default_session"`
	Server         Server `toml:"server"`
	REST           REST   `toml:"rest"`
	Push           Push   `toml:"push"`
	Sync           Sync   `toml:"sync"`
	Log            Log    `toml:"log"`
}

// Server locates the chat service.
type Server struct {
	APIURL     string `toml:"api_url"`
	PushURL    string `toml:"push_url"`
	AuthHeader string `toml:"auth_header"`
	Token      string `toml:"token,omitempty"`
}

// REST tunes the snapshot fetcher.
type REST struct {
	Timeout       Duration `toml:"timeout"`
	MaxRetries    int      `toml:"max_retries"`
	RatePerSecond float64  `toml:"rate_per_second"`
	Burst         int      `toml:"burst"`
}

// Push tunes the event channel.
type Push struct {
	ReconnectMin Duration `toml:"reconnect_min"`
	ReconnectMax Duration `toml:"reconnect_max"`
	PingInterval Duration `toml:"ping_interval"`
	ReadTimeout  Duration `toml:"read_timeout"`
	WriteTimeout Duration `toml:"write_timeout"`
}

// Sync tunes reconciliation.
type Sync struct {
	// SnapshotCron schedules periodic full snapshots. Empty disables them.
	SnapshotCron string   `toml:"snapshot_cron"`
	GapThreshold Duration `toml:"gap_threshold"`
}

// Log sets the log level: debug, info, warn or error.
type Log struct {
	Level string `toml:"level"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		DefaultSession: "main",
		Server: Server{
			APIURL:     "http://localhost:5000/api",
			PushURL:    "ws://localhost:5000/ws",
			AuthHeader: "x-auth-token",
		},
		REST: REST{
			Timeout:       D(15 * time.Second),
			MaxRetries:    3,
			RatePerSecond: 10,
			Burst:         20,
		},
		Push: Push{
			ReconnectMin: D(500 * time.Millisecond),
			ReconnectMax: D(30 * time.Second),
			PingInterval: D(25 * time.Second),
			ReadTimeout:  D(60 * time.Second),
			WriteTimeout: D(10 * time.Second),
		},
		Sync: Sync{
			SnapshotCron: "*/15 * * * *",
			GapThreshold: D(5 * time.Second),
		},
		Log: Log{Level: "info"},
	}
}

// Load reads config from the given path on top of Default. Returns an error
// if the file is missing.
func Load(path string) (*Config, error) {
	cfg := Default()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadOrDefault is Load, falling back to Default when the file is missing.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Default(), nil
	}
	return cfg, err
}

// Save writes config to the given path, creating parent dirs as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(cfg)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}

// ApplyEnv overrides server settings from envFile, then from the process
// environment. A missing envFile is not an error.
func (c *Config) ApplyEnv(envFile string) error {
	vars := map[string]string{}
	if envFile != "" {
		fileVars, err := godotenv.Read(envFile)
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("read %s: %w", envFile, err)
		}
		for k, v := range fileVars {
			vars[k] = v
		}
	}
	for _, k := range []string{EnvToken, EnvAPIURL, EnvPushURL, EnvLevel} {
		if v, ok := os.LookupEnv(k); ok {
			vars[k] = v
		}
	}
	if v := vars[EnvToken]; v != "" {
		c.Server.Token = v
	}
	if v := vars[EnvAPIURL]; v != "" {
		c.Server.APIURL = v
	}
	if v := vars[EnvPushURL]; v != "" {
		c.Server.PushURL = v
	}
	if v := vars[EnvLevel]; v != "" {
		c.Log.Level = v
	}
	return nil
}

// Validate checks the values a daemon cannot start without.
func (c *Config) Validate() error {
	var errs []error
	if err := checkURL(c.Server.APIURL, "http", "https"); err != nil {
		errs = append(errs, fmt.Errorf("server.api_url: %w", err))
	}
	if err := checkURL(c.Server.PushURL, "ws", "wss"); err != nil {
		errs = append(errs, fmt.Errorf("server.push_url: %w", err))
	}
	if c.Sync.SnapshotCron != "" && !gronx.New().IsValid(c.Sync.SnapshotCron) {
		errs = append(errs, fmt.Errorf("sync.snapshot_cron: invalid expression %q", c.Sync.SnapshotCron))
	}
	if c.Push.ReconnectMin.Duration <= 0 || c.Push.ReconnectMax.Duration < c.Push.ReconnectMin.Duration {
		errs = append(errs, errors.New("push: reconnect_max must be at least reconnect_min > 0"))
	}
	if c.REST.MaxRetries < 0 {
		errs = append(errs, errors.New("rest.max_retries must not be negative"))
	}
	switch strings.ToLower(c.Log.Level) {
	case "", "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log.level: unknown level %q", c.Log.Level))
	}
	return errors.Join(errs...)
}

func checkURL(raw string, schemes ...string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	for _, s := range schemes {
		if u.Scheme == s && u.Host != "" {
			return nil
		}
	}
	return fmt.Errorf("%q needs a %s URL", raw, strings.Join(schemes, " or "))
}
