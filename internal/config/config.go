package config

import (
	"fmt"

	"github.com/kursbuero/kursd/internal/catalog"
)

type Config struct {
	Server     ServerConfig
	LivingApps LivingAppsConfig
	Ollama     OllamaConfig
	Scan       ScanConfig
	Refresh    RefreshConfig
	Storage    StorageConfig
	Log        LogConfig
}

type ServerConfig struct {
	Port     int
	APIToken string
}

// LivingAppsConfig locates the remote record storage and the five apps
// (collections) the dashboard manages.
type LivingAppsConfig struct {
	BaseURL  string
	APIToken string
	Apps     AppsConfig
}

type AppsConfig struct {
	Rooms        string
	Instructors  string
	Courses      string
	Participants string
	Enrollments  string
}

// IDs maps each collection key to its configured app id.
func (a AppsConfig) IDs() map[catalog.Key]string {
	return map[catalog.Key]string{
		catalog.Rooms:        a.Rooms,
		catalog.Instructors:  a.Instructors,
		catalog.Courses:      a.Courses,
		catalog.Participants: a.Participants,
		catalog.Enrollments:  a.Enrollments,
	}
}

type OllamaConfig struct {
	BaseURL     string
	VisionModel string
}

type ScanConfig struct {
	Enabled bool
	Timeout string
}

type RefreshConfig struct {
	PollInterval string
	MaxAge       string
}

type StorageConfig struct {
	DataDir string
}

type LogConfig struct {
	Level string
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port: 4600,
		},
		LivingApps: LivingAppsConfig{
			BaseURL: "https://my.living-apps.de/gateway",
			Apps: AppsConfig{
				Rooms:        "699c1766cca9c5344e2d7819",
				Instructors:  "699c177ec08df234b58b2d12",
				Courses:      "699c1780a9124b74ba64c1a0",
				Participants: "699c178491425c5ef83d4952",
				Enrollments:  "699c178669591607d36ae852",
			},
		},
		Ollama: OllamaConfig{
			BaseURL:     "http://localhost:11434",
			VisionModel: "llava",
		},
		Scan: ScanConfig{
			Enabled: true,
			Timeout: "60s",
		},
		Refresh: RefreshConfig{
			PollInterval: "500ms",
			MaxAge:       "5m",
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from the JSON config file at
// $XDG_CONFIG_HOME/kursd/config.json with KURSD_* environment variables
// taking precedence. The LivingApps API token must come from the
// environment; the local API bearer token is generated and persisted on
// first start.
func Load() (Config, error) {
	return loadWith(newFileBackend())
}

func loadWith(b Backend) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)

	if cfg.LivingApps.APIToken == "" {
		return Config{}, fmt.Errorf("missing required config: LivingApps API token. Set it via environment variable KURSD_LIVINGAPPS_API_TOKEN")
	}

	if cfg.Server.APIToken == "" {
		token, err := generateAPIToken(b)
		if err != nil {
			return Config{}, fmt.Errorf("generating API token: %w", err)
		}
		cfg.Server.APIToken = token
	}

	return cfg, nil
}
