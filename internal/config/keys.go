package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type keyType int

const (
	kString keyType = iota
	kInt
	kDuration
)

type keySpec struct {
	key    string
	typ    keyType
	env    string
	secret bool
	// account names the secret in the platform secret store.
	account string
	apply   func(cfg *Config, v any)
	extract func(cfg Config) any
}

var specs = []keySpec{
	{
		key: "server.host", typ: kString, env: "DASHD_SERVER_HOST",
		apply:   func(cfg *Config, v any) { cfg.Server.Host = v.(string) },
		extract: func(cfg Config) any { return cfg.Server.Host },
	},
	{
		key: "server.port", typ: kInt, env: "DASHD_SERVER_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "server.timezone", typ: kString, env: "DASHD_SERVER_TIMEZONE",
		apply:   func(cfg *Config, v any) { cfg.Server.Timezone = v.(string) },
		extract: func(cfg Config) any { return cfg.Server.Timezone },
	},
	{
		key: "storage.driver", typ: kString, env: "DASHD_STORAGE_DRIVER",
		apply:   func(cfg *Config, v any) { cfg.Storage.Driver = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.Driver },
	},
	{
		key: "storage.data_dir", typ: kString, env: "DASHD_STORAGE_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "storage.dsn", typ: kString, env: "DASHD_STORAGE_DSN",
		secret: true, account: "storage_dsn",
		apply:   func(cfg *Config, v any) { cfg.Storage.DSN = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DSN },
	},
	{
		key: "media.backend", typ: kString, env: "DASHD_MEDIA_BACKEND",
		apply:   func(cfg *Config, v any) { cfg.Media.Backend = v.(string) },
		extract: func(cfg Config) any { return cfg.Media.Backend },
	},
	{
		key: "media.dir", typ: kString, env: "DASHD_MEDIA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Media.Dir = v.(string) },
		extract: func(cfg Config) any { return cfg.Media.Dir },
	},
	{
		key: "media.bucket", typ: kString, env: "DASHD_MEDIA_BUCKET",
		apply:   func(cfg *Config, v any) { cfg.Media.Bucket = v.(string) },
		extract: func(cfg Config) any { return cfg.Media.Bucket },
	},
	{
		key: "media.endpoint", typ: kString, env: "DASHD_MEDIA_ENDPOINT",
		apply:   func(cfg *Config, v any) { cfg.Media.Endpoint = v.(string) },
		extract: func(cfg Config) any { return cfg.Media.Endpoint },
	},
	{
		key: "media.region", typ: kString, env: "DASHD_MEDIA_REGION",
		apply:   func(cfg *Config, v any) { cfg.Media.Region = v.(string) },
		extract: func(cfg Config) any { return cfg.Media.Region },
	},
	{
		key: "media.access_key_id", typ: kString, env: "DASHD_MEDIA_ACCESS_KEY_ID",
		secret: true, account: "media_access_key_id",
		apply:   func(cfg *Config, v any) { cfg.Media.AccessKeyID = v.(string) },
		extract: func(cfg Config) any { return cfg.Media.AccessKeyID },
	},
	{
		key: "media.secret_access_key", typ: kString, env: "DASHD_MEDIA_SECRET_ACCESS_KEY",
		secret: true, account: "media_secret_access_key",
		apply:   func(cfg *Config, v any) { cfg.Media.SecretAccessKey = v.(string) },
		extract: func(cfg Config) any { return cfg.Media.SecretAccessKey },
	},
	{
		key: "media.max_upload_bytes", typ: kInt, env: "DASHD_MEDIA_MAX_UPLOAD_BYTES",
		apply:   func(cfg *Config, v any) { cfg.Media.MaxUploadBytes = v.(int) },
		extract: func(cfg Config) any { return cfg.Media.MaxUploadBytes },
	},
	{
		key: "feed.base_url", typ: kString, env: "DASHD_FEED_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.Feed.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Feed.BaseURL },
	},
	{
		key: "feed.query", typ: kString, env: "DASHD_FEED_QUERY",
		apply:   func(cfg *Config, v any) { cfg.Feed.Query = v.(string) },
		extract: func(cfg Config) any { return cfg.Feed.Query },
	},
	{
		key: "feed.params", typ: kString, env: "DASHD_FEED_PARAMS",
		apply:   func(cfg *Config, v any) { cfg.Feed.Params = v.(string) },
		extract: func(cfg Config) any { return cfg.Feed.Params },
	},
	{
		key: "feed.limit", typ: kInt, env: "DASHD_FEED_LIMIT",
		apply:   func(cfg *Config, v any) { cfg.Feed.Limit = v.(int) },
		extract: func(cfg Config) any { return cfg.Feed.Limit },
	},
	{
		key: "feed.timeout", typ: kDuration, env: "DASHD_FEED_TIMEOUT",
		apply:   func(cfg *Config, v any) { cfg.Feed.Timeout = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.Feed.Timeout },
	},
	{
		key: "feed.user_agent", typ: kString, env: "DASHD_FEED_USER_AGENT",
		apply:   func(cfg *Config, v any) { cfg.Feed.UserAgent = v.(string) },
		extract: func(cfg Config) any { return cfg.Feed.UserAgent },
	},
	{
		key: "genai.api_key", typ: kString, env: "DASHD_GEMINI_API_KEY",
		secret: true, account: "gemini_api_key",
		apply:   func(cfg *Config, v any) { cfg.GenAI.APIKey = v.(string) },
		extract: func(cfg Config) any { return cfg.GenAI.APIKey },
	},
	{
		key: "genai.base_url", typ: kString, env: "DASHD_GENAI_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.GenAI.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.GenAI.BaseURL },
	},
	{
		key: "genai.model", typ: kString, env: "DASHD_GENAI_MODEL",
		apply:   func(cfg *Config, v any) { cfg.GenAI.Model = v.(string) },
		extract: func(cfg Config) any { return cfg.GenAI.Model },
	},
	{
		key: "genai.timeout", typ: kDuration, env: "DASHD_GENAI_TIMEOUT",
		apply:   func(cfg *Config, v any) { cfg.GenAI.Timeout = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.GenAI.Timeout },
	},
	{
		key: "genai.rate_per_minute", typ: kInt, env: "DASHD_GENAI_RATE_PER_MINUTE",
		apply:   func(cfg *Config, v any) { cfg.GenAI.RatePerMinute = v.(int) },
		extract: func(cfg Config) any { return cfg.GenAI.RatePerMinute },
	},
	{
		key: "dashboard.notes_limit", typ: kInt, env: "DASHD_DASHBOARD_NOTES_LIMIT",
		apply:   func(cfg *Config, v any) { cfg.Dashboard.NotesLimit = v.(int) },
		extract: func(cfg Config) any { return cfg.Dashboard.NotesLimit },
	},
	{
		key: "log.level", typ: kString, env: "DASHD_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
}

func applyBackend(cfg *Config, b ConfigBackend) error {
	for _, s := range specs {
		if s.secret {
			continue
		}
		switch s.typ {
		case kString:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kInt:
			v, ok, err := b.GetInt(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kDuration:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok && v != "" {
				if d, err := parseDuration(v); err == nil {
					s.apply(cfg, d)
				} else {
					fmt.Fprintf(os.Stderr, "[WARN] could not parse duration from config key %s=%q: %v. Using default value.\n", s.key, v, err)
				}
			}
		}
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	for _, s := range specs {
		if s.env == "" {
			continue
		}
		raw := os.Getenv(s.env)
		if raw == "" {
			continue
		}
		switch s.typ {
		case kString:
			s.apply(cfg, raw)
		case kInt:
			if i, err := strconv.Atoi(raw); err == nil {
				s.apply(cfg, i)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse integer from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		case kDuration:
			if d, err := parseDuration(raw); err == nil {
				s.apply(cfg, d)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse duration from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		}
	}
}

// applySecrets fills secrets still empty after the environment from the
// platform secret store.
func applySecrets(cfg *Config, kc keychain) {
	for _, s := range specs {
		if !s.secret || s.extract(*cfg).(string) != "" {
			continue
		}
		if v, err := kc.Get(appName, s.account); err == nil && v != "" {
			s.apply(cfg, v)
		}
	}
}

func parseDuration(v string) (time.Duration, error) {
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, fmt.Errorf("duration must be positive")
	}
	return d, nil
}
