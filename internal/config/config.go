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
	"github.com/joho/godotenv"
)

// Environment variables that override values from config.toml.
const (
	EnvBaseURL = "CHATSYNC_BASE_URL"
	EnvToken   = "CHATSYNC_TOKEN"
	EnvSelfID  = "CHATSYNC_SELF_ID"
	EnvNATSURL = "CHATSYNC_NATS_URL"
)

// Config represents ~/.chatsync/config.toml.
type Config struct {
	BaseURL     string   `toml:"base_url"`
	Token       string   `toml:"token"`
	SelfID      string   `toml:"self_id"`
	LogPath     string   `toml:"log_path"`
	HTTPTimeout Duration `toml:"http_timeout"`
	Sync        Sync     `toml:"sync"`
	Push        Push     `toml:"push"`
}

// Sync holds polling cadence and paging knobs.
type Sync struct {
	PageSize           int      `toml:"page_size"`
	ListInterval       Duration `toml:"list_interval"`
	ThreadPollInterval Duration `toml:"thread_poll_interval"`
	// DirectPollInterval applies to threads opened by peer id before a thread
	// record exists. Zero disables polling for them.
	DirectPollInterval Duration `toml:"direct_poll_interval"`
	TypingPollInterval Duration `toml:"typing_poll_interval"`
	TypingDebounce     Duration `toml:"typing_debounce"`
	ToastTTL           Duration `toml:"toast_ttl"`
}

// Push configures the optional NATS push-notification bridge.
type Push struct {
	NATSURL string `toml:"nats_url"`
	Subject string `toml:"subject"`
}

// Duration is a time.Duration written as "1.5s" in TOML.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		HTTPTimeout: Duration{15 * time.Second},
		Sync: Sync{
			PageSize:           30,
			ListInterval:       Duration{8 * time.Second},
			ThreadPollInterval: Duration{4 * time.Second},
			DirectPollInterval: Duration{15 * time.Second},
			TypingPollInterval: Duration{2 * time.Second},
			TypingDebounce:     Duration{1500 * time.Millisecond},
			ToastTTL:           Duration{4 * time.Second},
		},
	}
}

// DefaultPath returns ~/.chatsync/config.toml.
func DefaultPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".chatsync", "config.toml")
}

// Load reads config from the given path on top of the defaults.
// Returns an error if the file is missing.
func Load(path string) (*Config, error) {
	cfg := Default()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Resolve builds the effective configuration: defaults, then path (if it
// exists), then variables from envFile (if it exists) and the process
// environment.
func Resolve(path, envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", envFile, err)
		}
	}

	cfg, err := Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		cfg, err = Default(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}

	cfg.applyEnv()
	return cfg, cfg.Validate()
}

func (c *Config) applyEnv() {
	if v := os.Getenv(EnvBaseURL); v != "" {
		c.BaseURL = v
	}
	if v := os.Getenv(EnvToken); v != "" {
		c.Token = v
	}
	if v := os.Getenv(EnvSelfID); v != "" {
		c.SelfID = v
	}
	if v := os.Getenv(EnvNATSURL); v != "" {
		c.Push.NATSURL = v
	}
}

// Validate checks that the config can drive the engine.
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("base_url is required (or set %s)", EnvBaseURL)
	}
	u, err := url.Parse(c.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("invalid base_url %q: must be an http(s) URL", c.BaseURL)
	}
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
	if strings.TrimSpace(c.SelfID) == "" {
		return fmt.Errorf("self_id is required (or set %s)", EnvSelfID)
	}
	if c.Sync.PageSize <= 0 {
		return fmt.Errorf("sync.page_size must be positive, got %d", c.Sync.PageSize)
	}
	for name, d := range map[string]Duration{
		"sync.list_interval":        c.Sync.ListInterval,
		"sync.thread_poll_interval": c.Sync.ThreadPollInterval,
		"sync.typing_poll_interval": c.Sync.TypingPollInterval,
		"sync.typing_debounce":      c.Sync.TypingDebounce,
	} {
		if d.Duration <= 0 {
			return fmt.Errorf("%s must be positive", name)
		}
	}
	if c.Sync.DirectPollInterval.Duration < 0 {
		return fmt.Errorf("sync.direct_poll_interval must not be negative")
	}
	return nil
}

// PushSubject returns the NATS subject carrying push events for selfID.
func (c *Config) PushSubject() string {
	if c.Push.Subject != "" {
		return c.Push.Subject
	}
	return "chatsync.push." + strings.ToLower(strings.TrimSpace(c.SelfID))
}

// Save writes config to the given path, creating parent dirs as needed.
// The file holds a bearer token, so it is written 0600.
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
