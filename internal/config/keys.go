package config

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"strconv"
)

type keyType int

const (
	kString keyType = iota
	kInt
	kBool
)

type keySpec struct {
	key     string
	typ     keyType
	env     string
	secret  bool
	apply   func(cfg *Config, v any)
	extract func(cfg Config) any
}

var specs = []keySpec{
	{
		key: "server.port", typ: kInt, env: "KURSD_SERVER_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "server.api_token", typ: kString, env: "KURSD_API_TOKEN",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Server.APIToken = v.(string) },
		extract: func(cfg Config) any { return cfg.Server.APIToken },
	},
	{
		key: "livingapps.base_url", typ: kString, env: "KURSD_LIVINGAPPS_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.LivingApps.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.LivingApps.BaseURL },
	},
	{
		key: "livingapps.api_token", typ: kString, env: "KURSD_LIVINGAPPS_API_TOKEN",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.LivingApps.APIToken = v.(string) },
		extract: func(cfg Config) any { return cfg.LivingApps.APIToken },
	},
	{
		key: "livingapps.apps.raeume", typ: kString, env: "KURSD_APP_RAEUME",
		apply:   func(cfg *Config, v any) { cfg.LivingApps.Apps.Rooms = v.(string) },
		extract: func(cfg Config) any { return cfg.LivingApps.Apps.Rooms },
	},
	{
		key: "livingapps.apps.dozenten", typ: kString, env: "KURSD_APP_DOZENTEN",
		apply:   func(cfg *Config, v any) { cfg.LivingApps.Apps.Instructors = v.(string) },
		extract: func(cfg Config) any { return cfg.LivingApps.Apps.Instructors },
	},
	{
		key: "livingapps.apps.kurse", typ: kString, env: "KURSD_APP_KURSE",
		apply:   func(cfg *Config, v any) { cfg.LivingApps.Apps.Courses = v.(string) },
		extract: func(cfg Config) any { return cfg.LivingApps.Apps.Courses },
	},
	{
		key: "livingapps.apps.teilnehmer", typ: kString, env: "KURSD_APP_TEILNEHMER",
		apply:   func(cfg *Config, v any) { cfg.LivingApps.Apps.Participants = v.(string) },
		extract: func(cfg Config) any { return cfg.LivingApps.Apps.Participants },
	},
	{
		key: "livingapps.apps.anmeldungen", typ: kString, env: "KURSD_APP_ANMELDUNGEN",
		apply:   func(cfg *Config, v any) { cfg.LivingApps.Apps.Enrollments = v.(string) },
		extract: func(cfg Config) any { return cfg.LivingApps.Apps.Enrollments },
	},
	{
		key: "ollama.base_url", typ: kString, env: "KURSD_OLLAMA_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.Ollama.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Ollama.BaseURL },
	},
	{
		key: "ollama.vision_model", typ: kString, env: "KURSD_OLLAMA_VISION_MODEL",
		apply:   func(cfg *Config, v any) { cfg.Ollama.VisionModel = v.(string) },
		extract: func(cfg Config) any { return cfg.Ollama.VisionModel },
	},
	{
		key: "scan.enabled", typ: kBool, env: "KURSD_SCAN_ENABLED",
		apply:   func(cfg *Config, v any) { cfg.Scan.Enabled = v.(bool) },
		extract: func(cfg Config) any { return cfg.Scan.Enabled },
	},
	{
		key: "scan.timeout", typ: kString, env: "KURSD_SCAN_TIMEOUT",
		apply:   func(cfg *Config, v any) { cfg.Scan.Timeout = v.(string) },
		extract: func(cfg Config) any { return cfg.Scan.Timeout },
	},
	{
		key: "refresh.poll_interval", typ: kString, env: "KURSD_REFRESH_POLL_INTERVAL",
		apply:   func(cfg *Config, v any) { cfg.Refresh.PollInterval = v.(string) },
		extract: func(cfg Config) any { return cfg.Refresh.PollInterval },
	},
	{
		key: "refresh.max_age", typ: kString, env: "KURSD_REFRESH_MAX_AGE",
		apply:   func(cfg *Config, v any) { cfg.Refresh.MaxAge = v.(string) },
		extract: func(cfg Config) any { return cfg.Refresh.MaxAge },
	},
	{
		key: "storage.data_dir", typ: kString, env: "KURSD_STORAGE_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "log.level", typ: kString, env: "KURSD_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
}

func applyBackend(cfg *Config, b Backend) error {
	for _, s := range specs {
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
		case kBool:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok && v != "" {
				if bv, err := strconv.ParseBool(v); err == nil {
					s.apply(cfg, bv)
				} else {
					fmt.Fprintf(os.Stderr, "[WARN] could not parse bool from config key %s=%q: %v. Using default value.\n", s.key, v, err)
				}
			}
		}
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	for _, s := range specs {
		v := os.Getenv(s.env)
		if v == "" {
			continue
		}
		switch s.typ {
		case kString:
			s.apply(cfg, v)
		case kInt:
			if i, err := strconv.Atoi(v); err == nil {
				s.apply(cfg, i)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse int from %s=%q: %v. Using default value.\n", s.env, v, err)
			}
		case kBool:
			if b, err := strconv.ParseBool(v); err == nil {
				s.apply(cfg, b)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse bool from %s=%q: %v. Using default value.\n", s.env, v, err)
			}
		}
	}
}

// generateAPIToken creates the local API bearer token on first start and
// persists it in the config file so clients keep working across restarts.
func generateAPIToken(b Backend) (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	token := hex.EncodeToString(buf)
	if err := b.SetString("server.api_token", token); err != nil {
		return "", fmt.Errorf("persisting API token: %w", err)
	}
	return token, nil
}

// KeyInfo describes a config key for display purposes.
type KeyInfo struct {
	Key    string
	EnvVar string
	Value  string
}

// ShowAll returns all non-secret config key/value pairs from the current config.
func ShowAll(cfg Config) []KeyInfo {
	var result []KeyInfo
	for _, s := range specs {
		if s.secret {
			continue
		}
		result = append(result, KeyInfo{
			Key:    s.key,
			EnvVar: s.env,
			Value:  fmt.Sprintf("%v", s.extract(cfg)),
		})
	}
	return result
}

// SetKey writes a config key to the config file.
func SetKey(key, value string) error {
	b := newFileBackend()

	for _, s := range specs {
		if s.key != key {
			continue
		}
		if s.secret {
			return fmt.Errorf("cannot set secret %q via config; use environment variable %s", key, s.env)
		}
		switch s.typ {
		case kInt:
			i, err := strconv.Atoi(value)
			if err != nil {
				return fmt.Errorf("invalid integer value for %s: %w", key, err)
			}
			return b.SetInt(key, i)
		default:
			return b.SetString(key, value)
		}
	}

	return fmt.Errorf("unknown config key: %q", key)
}
