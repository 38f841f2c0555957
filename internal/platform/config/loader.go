package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	platerr "voicepipe-server-go/internal/platform/errors"
)

const defaultConfigFile = ".config.yaml"

// Loader reads configuration from a yaml file with environment overrides.
type Loader struct {
	useDotEnv bool
	path      string
}

// NewLoader creates a loader reading from .config.yaml in the working directory.
func NewLoader() *Loader {
	return &Loader{
		useDotEnv: true,
		path:      defaultConfigFile,
	}
}

// WithDotEnv toggles loading variables from a .env file before reading config.
func (l *Loader) WithDotEnv(enabled bool) *Loader {
	l.useDotEnv = enabled
	return l
}

// WithPath overrides the config file location (useful for tests).
func (l *Loader) WithPath(path string) *Loader {
	if path != "" {
		l.path = path
	}
	return l
}

// Load reads the config file, applies env overrides and validates the result.
// A missing file yields the defaults.
func (l *Loader) Load() (*Config, error) {
	if l.useDotEnv {
		if err := godotenv.Load(); err != nil {
			fmt.Println("no .env file found, using system environment")
		}
	}

	cfg := DefaultConfig()

	data, err := os.ReadFile(l.path)
	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, platerr.Wrap(platerr.KindConfig, "load", "parse config file", err)
		}
	} else if !os.IsNotExist(err) {
		return nil, platerr.Wrap(platerr.KindConfig, "load", "read config file", err)
	}

	l.applyEnv(cfg)

	if err := l.validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv maps a small set of deployment variables over the file config.
func (l *Loader) applyEnv(cfg *Config) {
	if v := os.Getenv("VOICEPIPE_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("VOICEPIPE_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("VOICEPIPE_STORE_TYPE"); v != "" {
		cfg.Store.Type = v
	}
	if v := os.Getenv("VOICEPIPE_REDIS_ADDR"); v != "" {
		cfg.Store.Redis.Addr = v
	}
	if v := os.Getenv("VOICEPIPE_ASR_API_KEY"); v != "" {
		cfg.Capabilities.ASR.APIKey = v
	}
	if v := os.Getenv("VOICEPIPE_TTS_API_KEY"); v != "" {
		cfg.Capabilities.TTS.APIKey = v
	}
}

func (l *Loader) validate(cfg *Config) error {
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return platerr.New(platerr.KindConfig, "validate",
			fmt.Sprintf("invalid server port %d", cfg.Server.Port))
	}
	if cfg.Transport.WebSocket.Enabled {
		if cfg.Transport.WebSocket.Port <= 0 || cfg.Transport.WebSocket.Port > 65535 {
			return platerr.New(platerr.KindConfig, "validate",
				fmt.Sprintf("invalid websocket port %d", cfg.Transport.WebSocket.Port))
		}
	}
	if cfg.Pipeline.Workers <= 0 {
		return platerr.New(platerr.KindConfig, "validate", "pipeline workers must be positive")
	}
	if cfg.Pipeline.QueueCapacity <= 0 {
		return platerr.New(platerr.KindConfig, "validate", "queue capacity must be positive")
	}
	switch cfg.Store.Type {
	case "memory", "sqlite", "redis":
	default:
		return platerr.New(platerr.KindConfig, "validate",
			fmt.Sprintf("unknown store type %q", cfg.Store.Type))
	}
	return nil
}
