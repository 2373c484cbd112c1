package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
)

const appName = "dashd"

type Config struct {
	Server    ServerConfig
	Storage   StorageConfig
	Media     MediaConfig
	Feed      FeedConfig
	GenAI     GenAIConfig
	Dashboard DashboardConfig
	Log       LogConfig
}

type ServerConfig struct {
	Host     string
	Port     int
	Timezone string
}

type StorageConfig struct {
	Driver  string
	DataDir string
	DSN     string
}

type MediaConfig struct {
	Backend         string
	Dir             string
	Bucket          string
	Endpoint        string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	MaxUploadBytes  int
}

type FeedConfig struct {
	BaseURL   string
	Query     string
	Params    string
	Limit     int
	Timeout   time.Duration
	UserAgent string
}

type GenAIConfig struct {
	APIKey        string
	BaseURL       string
	Model         string
	Timeout       time.Duration
	RatePerMinute int
}

type DashboardConfig struct {
	NotesLimit int
}

type LogConfig struct {
	Level string
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Host:     "127.0.0.1",
			Port:     8787,
			Timezone: "Asia/Tokyo",
		},
		Storage: StorageConfig{
			Driver:  "sqlite",
			DataDir: defaultDataDir(),
		},
		Media: MediaConfig{
			Backend:        "fs",
			Region:         "auto",
			MaxUploadBytes: 10 << 20,
		},
		Feed: FeedConfig{
			BaseURL:   "https://news.google.com/rss",
			Query:     "site:nikkei.com OR site:jp.reuters.com OR site:bloomberg.co.jp OR site:tenki.jp",
			Params:    "hl=ja&gl=JP&ceid=JP:ja",
			Limit:     8,
			Timeout:   5 * time.Second,
			UserAgent: "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
		},
		GenAI: GenAIConfig{
			BaseURL:       "https://generativelanguage.googleapis.com/v1beta",
			Model:         "gemini-2.5-flash",
			Timeout:       30 * time.Second,
			RatePerMinute: 20,
		},
		Dashboard: DashboardConfig{
			NotesLimit: 8,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Addr is the listen address of the HTTP server.
func (c Config) Addr() string {
	return net.JoinHostPort(c.Server.Host, strconv.Itoa(c.Server.Port))
}

// Location returns the configured display time zone. Load has already
// validated the name, so the UTC fallback is only reached for hand-built
// configs.
func (c Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Server.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Load reads configuration in increasing order of precedence: defaults, the
// JSON file at $XDG_CONFIG_HOME/dashd/config.json, a .env file in the working
// directory, and DASHD_* environment variables. Secrets missing from the
// environment fall back to the platform secret store (macOS Keychain, or a
// secrets.json in the data directory elsewhere).
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "[WARN] could not load .env file: %v\n", err)
	}
	return loadWith(newPlatformBackend(), keychainReader{})
}

// keychain abstracts secret store access for testing.
type keychain interface {
	Get(service, account string) (string, error)
}

func loadWith(b ConfigBackend, kc keychain) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)
	applySecrets(&cfg, kc)

	if cfg.Media.Dir == "" {
		cfg.Media.Dir = filepath.Join(cfg.Storage.DataDir, "media")
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	switch c.Storage.Driver {
	case "sqlite":
	case "postgres":
		if c.Storage.DSN == "" {
			return fmt.Errorf("missing required config: storage.dsn for the postgres driver. "+
				"Set it via environment variable DASHD_STORAGE_DSN%s", secretHint("storage_dsn"))
		}
	default:
		return fmt.Errorf("invalid storage.driver %q: must be sqlite or postgres", c.Storage.Driver)
	}

	switch c.Media.Backend {
	case "fs":
	case "s3":
		if c.Media.Bucket == "" {
			return fmt.Errorf("missing required config: media.bucket for the s3 media backend")
		}
	default:
		return fmt.Errorf("invalid media.backend %q: must be fs or s3", c.Media.Backend)
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server.port %d", c.Server.Port)
	}
	if _, err := time.LoadLocation(c.Server.Timezone); err != nil {
		return fmt.Errorf("invalid server.timezone %q: %w", c.Server.Timezone, err)
	}
	if c.Media.MaxUploadBytes <= 0 {
		return fmt.Errorf("invalid media.max_upload_bytes %d: must be positive", c.Media.MaxUploadBytes)
	}
	return nil
}

// keychainReader reads from the platform secret store.
type keychainReader struct{}

func (keychainReader) Get(service, account string) (string, error) {
	out, err := secretLookup(service, account)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}
