package config

import (
	"time"
)

// Version is set at build time via ldflags.
var Version = "dev"

// Config is the root configuration for dmscrape.
type Config struct {
	Worker     WorkerConfig     `mapstructure:"worker"     yaml:"worker"`
	Frequency  FrequencyConfig  `mapstructure:"frequency"  yaml:"frequency"`
	TimeRange  TimeRangeConfig  `mapstructure:"time_range" yaml:"time_range"`
	Exporter   ExporterConfig   `mapstructure:"exporter"   yaml:"exporter"`
	Logging    LoggingConfig    `mapstructure:"logging"    yaml:"logging"`
	Metrics    MetricsConfig    `mapstructure:"metrics"    yaml:"metrics"`
}

// WorkerConfig controls the scrape worker pool.
type WorkerConfig struct {
	MaxWorkers int  `mapstructure:"max_workers" yaml:"max_workers"`
	History    bool `mapstructure:"history"     yaml:"history"`
}

// FrequencyConfig controls request pacing, including the rush-hour window
// during which the busy interval applies instead of the normal one.
type FrequencyConfig struct {
	NormalInterval time.Duration `mapstructure:"normal_interval" yaml:"normal_interval"`
	BusyInterval   time.Duration `mapstructure:"busy_interval"   yaml:"busy_interval"`
	RushStartHour  int           `mapstructure:"rush_start_hour" yaml:"rush_start_hour"`
	RushEndHour    int           `mapstructure:"rush_end_hour"   yaml:"rush_end_hour"`
	Timezone       string        `mapstructure:"timezone"        yaml:"timezone"`
}

// TimeRangeConfig bounds which historical comments a reconstructed flow
// keeps. Zero values mean "unbounded" on that side; the range only applies
// when at least one bound is set (see worker.TimeRange.Resolved).
type TimeRangeConfig struct {
	StartUnix *int64 `mapstructure:"start_unix" yaml:"start_unix"`
	EndUnix   *int64 `mapstructure:"end_unix"   yaml:"end_unix"`
}

// ExporterConfig selects and configures the destination backend(s). Type may
// be a single backend or a comma-separated list, in which case every named
// backend runs via exporter.Multi.
type ExporterConfig struct {
	Type     string         `mapstructure:"type"     yaml:"type"`
	File     FileConfig     `mapstructure:"file"     yaml:"file"`
	Mongo    MongoConfig    `mapstructure:"mongo"    yaml:"mongo"`
	Postgres PostgresConfig `mapstructure:"postgres" yaml:"postgres"`
}

// FileConfig controls the file exporter.
type FileConfig struct {
	Path  string `mapstructure:"path"  yaml:"path"`
	Split bool   `mapstructure:"split" yaml:"split"`
}

// MongoConfig controls the MongoDB exporter.
type MongoConfig struct {
	URI        string `mapstructure:"uri"        yaml:"uri"`
	Database   string `mapstructure:"database"   yaml:"database"`
	Collection string `mapstructure:"collection" yaml:"collection"`
}

// PostgresConfig controls the Postgres exporter.
type PostgresConfig struct {
	DSN string `mapstructure:"dsn" yaml:"dsn"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	Level  string `mapstructure:"level"  yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
	Output string `mapstructure:"output" yaml:"output"`
}

// MetricsConfig controls Prometheus metrics.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Port    int    `mapstructure:"port"    yaml:"port"`
	Path    string `mapstructure:"path"    yaml:"path"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Worker: WorkerConfig{
			MaxWorkers: 8,
			History:    true,
		},
		Frequency: FrequencyConfig{
			NormalInterval: 300 * time.Millisecond,
			BusyInterval:   1200 * time.Millisecond,
			RushStartHour:  8,
			RushEndHour:    23,
			Timezone:       "Local",
		},
		Exporter: ExporterConfig{
			Type: "stream",
			File: FileConfig{
				Path:  "./output",
				Split: true,
			},
			Mongo: MongoConfig{
				URI:        "mongodb://localhost:27017",
				Database:   "dmscrape",
				Collection: "comment_flows",
			},
			Postgres: PostgresConfig{
				DSN: "postgres://localhost:5432/dmscrape",
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Port:    9090,
			Path:    "/metrics",
		},
	}
}
