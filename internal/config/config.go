package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	DefaultConfigDir   = ".scanboard"
	DefaultConfigFile  = "config.json"
	DefaultDBFile      = ".scanboard/scanboard.db"
	DefaultLogDir      = ".scanboard/logs"
	DefaultSessionFile = ".scanboard/session"

	DefaultAPIURL       = "http://127.0.0.1:3001"
	DefaultPollInterval = 2 * time.Second
)

// Load reads the config file (falling back to defaults if absent) and returns
// a populated Config. The configPath flag may override the default location.
func Load(configPath string) (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("cannot determine home directory: %w", err)
	}

	v := viper.New()
	v.SetConfigType("json")
	v.SetEnvPrefix("scanboard")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(filepath.Join(home, DefaultConfigDir))
	}

	setDefaults(v, home)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			// Config file exists but is malformed.
			if !isNotExist(err) {
				return nil, fmt.Errorf("reading config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	expandPaths(&cfg, home)
	normalise(&cfg)
	return &cfg, nil
}

// Save writes the config to disk as JSON.
func Save(cfg *Config, configPath string) error {
	configPath, err := ConfigPath(configPath)
	if err != nil {
		return fmt.Errorf("cannot determine home directory: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(configPath), 0o700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("serialising config: %w", err)
	}

	return os.WriteFile(configPath, data, 0o600)
}

// ConfigPath returns the effective config file path.
func ConfigPath(override string) (string, error) {
	if override != "" {
		return override, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, DefaultConfigDir, DefaultConfigFile), nil
}

// LogDir returns ~/.scanboard/logs.
func LogDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, DefaultLogDir), nil
}

// setDefaults populates viper with sensible out-of-the-box values.
func setDefaults(v *viper.Viper, home string) {
	v.SetDefault("api.url", DefaultAPIURL)
	v.SetDefault("api.timeout", 15*time.Second)
	v.SetDefault("api.rate_limit", 10.0)
	v.SetDefault("api.burst", 20)
	v.SetDefault("api.token", "")

	v.SetDefault("monitor.poll_interval", DefaultPollInterval)

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", filepath.Join(home, DefaultDBFile))
	v.SetDefault("database.dsn", "")

	v.SetDefault("metrics.addr", "")
	v.SetDefault("export.compression", "none")
}

// normalise repairs values that would make the console misbehave.
func normalise(cfg *Config) {
	cfg.API.URL = strings.TrimRight(strings.TrimSpace(cfg.API.URL), "/")
	if cfg.API.URL == "" {
		cfg.API.URL = DefaultAPIURL
	}
	if cfg.Monitor.PollInterval <= 0 {
		cfg.Monitor.PollInterval = DefaultPollInterval
	}
	if cfg.API.Burst <= 0 {
		cfg.API.Burst = 1
	}
}

// expandPaths resolves ~ in configured paths.
func expandPaths(cfg *Config, home string) {
	cfg.Database.Path = expandHome(cfg.Database.Path, home)
}

func expandHome(path, home string) string {
	if strings.HasPrefix(path, "~/") {
		return filepath.Join(home, path[2:])
	}
	return path
}

func isNotExist(err error) bool {
	return os.IsNotExist(err) || strings.Contains(err.Error(), "no such file")
}
