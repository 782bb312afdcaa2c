package config

import (
	"encoding/json"
	"time"
)

// Config is the root configuration structure for scanboard.
// Serialised to ~/.scanboard/config.json.
type Config struct {
	API       APIConfig        `mapstructure:"api"       json:"api"`
	Monitor   MonitorConfig    `mapstructure:"monitor"   json:"monitor"`
	Database  DatabaseConfig   `mapstructure:"database"  json:"database"`
	Metrics   MetricsConfig    `mapstructure:"metrics"   json:"metrics"`
	Export    ExportConfig     `mapstructure:"export"    json:"export"`
	Schedules []ScheduleConfig `mapstructure:"schedules" json:"schedules"`
}

// APIConfig points scanboard at the scanning backend.
type APIConfig struct {
	// URL is the backend base URL, e.g. http://127.0.0.1:3001.
	URL string `mapstructure:"url" json:"url"`
	// Timeout bounds every single request.
	Timeout time.Duration `mapstructure:"timeout" json:"timeout"`
	// RateLimit is the maximum sustained requests per second (0 disables).
	RateLimit float64 `mapstructure:"rate_limit" json:"rate_limit"`
	Burst     int     `mapstructure:"burst"      json:"burst"`
	// Token is an optional bearer token for backends behind an
	// authenticating proxy. The session cookie from `scanboard login` is
	// sent regardless.
	Token string `mapstructure:"token" json:"token"`
}

// MonitorConfig controls scan status polling.
type MonitorConfig struct {
	PollInterval time.Duration `mapstructure:"poll_interval" json:"poll_interval"`
}

// MarshalJSON writes Timeout as a duration string ("15s").
func (c APIConfig) MarshalJSON() ([]byte, error) {
	type plain APIConfig
	return json.Marshal(struct {
		plain
		Timeout string `json:"timeout"`
	}{plain(c), c.Timeout.String()})
}

// MarshalJSON writes PollInterval as a duration string ("2s").
func (c MonitorConfig) MarshalJSON() ([]byte, error) {
	type plain MonitorConfig
	return json.Marshal(struct {
		plain
		PollInterval string `json:"poll_interval"`
	}{plain(c), c.PollInterval.String()})
}

// DatabaseConfig controls the operator journal storage backend.
type DatabaseConfig struct {
	// Driver is "sqlite" (default) or "mysql".
	Driver string `mapstructure:"driver" json:"driver"`
	// Path is the SQLite file path (expanded at runtime).
	Path string `mapstructure:"path"   json:"path"`
	// DSN is the MySQL data source name (used when Driver == "mysql").
	DSN string `mapstructure:"dsn"    json:"dsn"`
}

// MetricsConfig enables the Prometheus endpoint for long-running commands.
type MetricsConfig struct {
	// Addr is the listen address, e.g. 127.0.0.1:9464. Empty disables it.
	Addr string `mapstructure:"addr" json:"addr"`
}

// ExportConfig controls findings export.
type ExportConfig struct {
	// Compression is "none" (default), "gzip" or "zstd".
	Compression string `mapstructure:"compression" json:"compression"`
}

// ScheduleConfig is a cron entry that launches a scan.
type ScheduleConfig struct {
	Name string `mapstructure:"name" json:"name"`
	// Expr is a cron expression ("0 2 * * *"), "@every 6h", "@hourly", or "@daily".
	Expr      string `mapstructure:"expr"      json:"expr"`
	Target    string `mapstructure:"target"    json:"target"`
	Type      string `mapstructure:"type"      json:"type"`
	Templates string `mapstructure:"templates" json:"templates"`
	Enabled   bool   `mapstructure:"enabled"   json:"enabled"`
}
