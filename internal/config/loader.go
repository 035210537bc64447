package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Load reads configuration from defaults, a config file, and environment
// variables. Priority (highest to lowest): env vars > config file > defaults.
// CLI flag overrides are not read here; the caller applies them afterwards.
func Load(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	v := viper.New()
	v.SetConfigType("yaml")

	// Set defaults from struct
	setDefaults(v, cfg)

	// Environment variable support
	v.SetEnvPrefix("DMSCRAPE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Load config file
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		// Search default locations
		v.SetConfigName("dmscrape")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		home, err := os.UserHomeDir()
		if err == nil {
			v.AddConfigPath(filepath.Join(home, ".dmscrape"))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && configPath != "" {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found is okay if not explicitly specified
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return cfg, nil
}

// LoadFromFile reads configuration from a specific file path.
func LoadFromFile(path string) (*Config, error) {
	return Load(path)
}

// setDefaults registers default values in viper.
func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("worker.max_workers", cfg.Worker.MaxWorkers)
	v.SetDefault("worker.history", cfg.Worker.History)

	v.SetDefault("frequency.normal_interval", cfg.Frequency.NormalInterval)
	v.SetDefault("frequency.busy_interval", cfg.Frequency.BusyInterval)
	v.SetDefault("frequency.rush_start_hour", cfg.Frequency.RushStartHour)
	v.SetDefault("frequency.rush_end_hour", cfg.Frequency.RushEndHour)
	v.SetDefault("frequency.timezone", cfg.Frequency.Timezone)

	v.SetDefault("exporter.type", cfg.Exporter.Type)
	v.SetDefault("exporter.file.path", cfg.Exporter.File.Path)
	v.SetDefault("exporter.file.split", cfg.Exporter.File.Split)
	v.SetDefault("exporter.mongo.uri", cfg.Exporter.Mongo.URI)
	v.SetDefault("exporter.mongo.database", cfg.Exporter.Mongo.Database)
	v.SetDefault("exporter.mongo.collection", cfg.Exporter.Mongo.Collection)
	v.SetDefault("exporter.postgres.dsn", cfg.Exporter.Postgres.DSN)

	v.SetDefault("logging.level", cfg.Logging.Level)
	v.SetDefault("logging.format", cfg.Logging.Format)
	v.SetDefault("logging.output", cfg.Logging.Output)

	v.SetDefault("metrics.enabled", cfg.Metrics.Enabled)
	v.SetDefault("metrics.port", cfg.Metrics.Port)
	v.SetDefault("metrics.path", cfg.Metrics.Path)
}
