package config

import (
	"fmt"
	"strings"
)

// maxWorkers mirrors scraper.MaxWorkers; duplicated here to avoid importing
// the scraper package from config.
const maxWorkers = 24

var validExporters = map[string]bool{
	"stream": true, "file": true, "mongo": true, "postgres": true,
}

// Validate checks the configuration for invalid values.
func Validate(cfg *Config) error {
	if cfg.Worker.MaxWorkers < 1 {
		return fmt.Errorf("worker.max_workers must be >= 1, got %d", cfg.Worker.MaxWorkers)
	}
	if cfg.Worker.MaxWorkers > maxWorkers {
		return fmt.Errorf("worker.max_workers must be <= %d, got %d", maxWorkers, cfg.Worker.MaxWorkers)
	}

	if cfg.Frequency.NormalInterval < 0 {
		return fmt.Errorf("frequency.normal_interval must be >= 0")
	}
	if cfg.Frequency.BusyInterval < 0 {
		return fmt.Errorf("frequency.busy_interval must be >= 0")
	}
	if cfg.Frequency.RushStartHour < 0 || cfg.Frequency.RushStartHour > 23 {
		return fmt.Errorf("frequency.rush_start_hour must be 0-23, got %d", cfg.Frequency.RushStartHour)
	}
	if cfg.Frequency.RushEndHour < 0 || cfg.Frequency.RushEndHour > 23 {
		return fmt.Errorf("frequency.rush_end_hour must be 0-23, got %d", cfg.Frequency.RushEndHour)
	}

	if cfg.TimeRange.StartUnix != nil && cfg.TimeRange.EndUnix != nil &&
		*cfg.TimeRange.StartUnix > *cfg.TimeRange.EndUnix {
		return fmt.Errorf("time_range.start_unix must be <= time_range.end_unix")
	}

	for _, kind := range strings.Split(cfg.Exporter.Type, ",") {
		kind = strings.TrimSpace(kind)
		if kind == "" {
			continue
		}
		if !validExporters[kind] {
			return fmt.Errorf("exporter.type %q is not supported (valid: stream, file, mongo, postgres)", kind)
		}
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLogLevels[cfg.Logging.Level] {
		return fmt.Errorf("logging.level must be debug/info/warn/error, got %q", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "text" && cfg.Logging.Format != "json" {
		return fmt.Errorf("logging.format must be 'text' or 'json', got %q", cfg.Logging.Format)
	}

	if cfg.Metrics.Enabled {
		if cfg.Metrics.Port < 1 || cfg.Metrics.Port > 65535 {
			return fmt.Errorf("metrics.port must be 1-65535, got %d", cfg.Metrics.Port)
		}
	}

	return nil
}
