package config

import "testing"

func TestDefaultConfigPasses(t *testing.T) {
	if err := Validate(DefaultConfig()); err != nil {
		t.Fatalf("Validate(DefaultConfig()) returned error: %v", err)
	}
}

func TestDefaultConfigEnablesHistory(t *testing.T) {
	if !DefaultConfig().Worker.History {
		t.Fatal("DefaultConfig().Worker.History = false, want true: -b disables it, implying on by default")
	}
}

func TestValidateRejectsBadWorkerCount(t *testing.T) {
	tests := []int{0, -1, maxWorkers + 1}
	for _, n := range tests {
		cfg := DefaultConfig()
		cfg.Worker.MaxWorkers = n
		if err := Validate(cfg); err == nil {
			t.Errorf("Validate() with max_workers=%d = nil, want error", n)
		}
	}
}

func TestValidateRejectsInvertedTimeRange(t *testing.T) {
	cfg := DefaultConfig()
	start, end := int64(200), int64(100)
	cfg.TimeRange.StartUnix = &start
	cfg.TimeRange.EndUnix = &end
	if err := Validate(cfg); err == nil {
		t.Fatal("Validate() with start > end = nil, want error")
	}
}

func TestValidateAcceptsMultipleExporters(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Exporter.Type = "file, stream"
	if err := Validate(cfg); err != nil {
		t.Fatalf("Validate() with exporter.type=%q returned error: %v", cfg.Exporter.Type, err)
	}
}

func TestValidateRejectsUnknownExporter(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Exporter.Type = "carrier-pigeon"
	if err := Validate(cfg); err == nil {
		t.Fatal("Validate() with an unknown exporter type = nil, want error")
	}
}

func TestValidateRejectsBadLogLevel(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Logging.Level = "verbose"
	if err := Validate(cfg); err == nil {
		t.Fatal("Validate() with an invalid logging level = nil, want error")
	}
}

func TestValidateRejectsBadMetricsPortOnlyWhenEnabled(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Metrics.Port = 0
	if err := Validate(cfg); err != nil {
		t.Fatalf("Validate() with metrics disabled and port=0 returned error: %v, want nil", err)
	}
	cfg.Metrics.Enabled = true
	if err := Validate(cfg); err == nil {
		t.Fatal("Validate() with metrics enabled and port=0 = nil, want error")
	}
}
