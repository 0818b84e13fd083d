// Package app_config loads the server configuration from defaults, a TOML
// or YAML file and SKYLOG_* environment variables, in that order.
package app_config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
	"github.com/sirupsen/logrus"

	"github.com/SkylogUAS/Skylog/db_store"
	"github.com/SkylogUAS/Skylog/httpserver"
	"github.com/SkylogUAS/Skylog/importer"
	"github.com/SkylogUAS/Skylog/logging"
	"github.com/SkylogUAS/Skylog/media_store"
	"github.com/SkylogUAS/Skylog/overpass"
	"github.com/SkylogUAS/Skylog/pyroscope"
	"github.com/SkylogUAS/Skylog/stats_collector"
	"github.com/SkylogUAS/Skylog/webhook_sender"
)

const ENV_PREFIX = "SKYLOG_"

type Config struct {
	Logging logging.Config    `koanf:"logging"`
	HTTP    httpserver.Config `koanf:"http"`

	DB    db_store.DBConfig  `koanf:"db"`
	Media media_store.Config `koanf:"media"`
	Zones importer.Config    `koanf:"zones"`

	Overpass overpass.Config `koanf:"overpass"`

	Prometheus stats_collector.PrometheusConfig `koanf:"prometheus"`
	Pyroscope  pyroscope.Config                 `koanf:"pyroscope"`

	Webhooks        webhook_sender.WebhooksConfig `koanf:"webhooks"`
	WebhookSettings webhook_sender.SettingsConfig `koanf:"webhook_settings"`
}

func (cfg *Config) GetPrometheusConfig() stats_collector.PrometheusConfig {
	return cfg.Prometheus
}

// CreateLogger builds the logger. 'console' defaults to stdout; tools that
// write data to stdout pass os.Stderr.
func (cfg *Config) CreateLogger(rotate bool, console io.Writer) (*logrus.Logger, error) {
	return cfg.Logging.CreateLogger(rotate, console)
}

func (cfg *Config) Validate() error {
	if err := cfg.Logging.Validate(); err != nil {
		return err
	}

	if err := cfg.HTTP.Validate(); err != nil {
		return err
	}

	if err := cfg.DB.Validate(); err != nil {
		return err
	}

	if err := cfg.Media.Validate(); err != nil {
		return err
	}

	if err := cfg.Zones.Validate(); err != nil {
		return err
	}

	if err := cfg.Overpass.Validate(); err != nil {
		return err
	}

	if err := cfg.Prometheus.Validate(); err != nil {
		return err
	}

	if err := cfg.Pyroscope.Validate(); err != nil {
		return err
	}

	if err := cfg.Webhooks.Validate(); err != nil {
		return err
	}

	if err := cfg.WebhookSettings.Validate(); err != nil {
		return err
	}

	return nil
}

func GetDefaultConfig() Config {
	return Config{
		Logging: logging.Config{
			Filename:   filepath.FromSlash("logs/skylog.log"),
			MaxSizeMB:  100,
			MaxAgeDays: 7,
			MaxBackups: 10,
			Compress:   true,
		},

		HTTP: httpserver.Config{
			Addr:                   "127.0.0.1:8000",
			ShutdownTimeoutSeconds: 5,
		},

		DB: db_store.DBConfig{
			Addr:    "127.0.0.1:3306",
			Db:      "skylog",
			MaxPool: 10,
		},

		Media: media_store.Config{
			Dir:         "media",
			URL:         "/media/",
			MaxUploadMB: 25,
		},

		Zones: importer.Config{
			DefaultFile: importer.DEFAULT_ZONES_FILE,
			DemoCount:   20,
		},

		Overpass: overpass.Config{
			Url:            overpass.DEFAULT_URL,
			TimeoutSeconds: 180,
			MaxRetries:     3,
		},

		Prometheus: stats_collector.GetDefaultPrometheusConfig(),

		Pyroscope: pyroscope.Config{
			ApplicationName:      "skylog",
			MutexProfileFraction: 5,
			BlockProfileRate:     5,
		},

		WebhookSettings: webhook_sender.SettingsConfig{
			FlushIntervalSeconds: 1,
			TimeoutSeconds:       10,
		},
	}
}

func parserForFile(filename string) (koanf.Parser, error) {
	switch ext := strings.ToLower(filepath.Ext(filename)); ext {
	case ".toml":
		return toml.Parser(), nil
	case ".yaml", ".yml":
		return yaml.Parser(), nil
	default:
		return nil, fmt.Errorf("don't know how to parse config file '%s': use .toml, .yaml or .yml", filename)
	}
}

// envKey maps SKYLOG_HTTP__BASE_URL to http.base_url.
func envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, ENV_PREFIX))
	return strings.ReplaceAll(s, "__", ".")
}

// LoadConfig loads 'filename' over 'defaultConfig'. An empty filename
// skips the file.
func LoadConfig(filename string, defaultConfig Config) (*Config, error) {
	k := koanf.New(".")

	err := k.Load(structs.Provider(defaultConfig, "koanf"), nil)
	if err != nil {
		return nil, fmt.Errorf("couldn't load default config: %w", err)
	}

	if filename != "" {
		if _, err := os.Stat(filename); err != nil {
			return nil, fmt.Errorf("couldn't open '%s': %w", filename, err)
		}

		parser, err := parserForFile(filename)
		if err != nil {
			return nil, err
		}

		if err := k.Load(file.Provider(filename), parser); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	if err := k.Load(env.Provider(ENV_PREFIX, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load config from environment: %w", err)
	}

	var cfg Config

	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}
