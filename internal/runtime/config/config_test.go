package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestZeroConfigIsValid(t *testing.T) {
	var cfg Config
	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestConfigWithDefaults(t *testing.T) {
	cfg := Config{InspectorEnabled: true, TickDuration: 3}.WithDefaults()

	if cfg.MetricsNamespace != DefaultMetricsNamespace {
		t.Errorf("namespace = %q, want %q", cfg.MetricsNamespace, DefaultMetricsNamespace)
	}
	if cfg.InspectorPort != DefaultInspectorPort {
		t.Errorf("inspector port = %d, want %d", cfg.InspectorPort, DefaultInspectorPort)
	}
	if cfg.ShutdownTimeout != DefaultShutdownTimeout {
		t.Errorf("shutdown timeout = %s, want %s", cfg.ShutdownTimeout, DefaultShutdownTimeout)
	}
	if cfg.TickInterval != time.Second {
		t.Errorf("tick interval = %s, want 1s", cfg.TickInterval)
	}

	kept := Config{MetricsNamespace: "robot", TickInterval: 10 * time.Millisecond}.WithDefaults()
	if kept.MetricsNamespace != "robot" || kept.TickInterval != 10*time.Millisecond {
		t.Fatalf("explicit values must be preserved: %+v", kept)
	}
	if kept.InspectorPort != 0 {
		t.Fatalf("inspector port should stay unset while the inspector is disabled")
	}

	unbounded := Config{}.WithDefaults()
	if unbounded.TickInterval != DefaultTickInterval || unbounded.TickDuration != 0 {
		t.Fatalf("an unbounded ticker needs the default interval: %+v", unbounded)
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr string
	}{
		{"negative metrics port", Config{MetricsPort: -1}, "metrics: invalid port -1"},
		{"metrics port too large", Config{MetricsPort: 70000}, "metrics: invalid port 70000"},
		{"negative inspector port", Config{InspectorPort: -5}, "inspector: invalid port -5"},
		{"negative rate limit", Config{InspectorRateLimit: -1}, "inspector: rate limit cannot be negative"},
		{"negative tick interval", Config{TickInterval: -time.Second}, "ticker: interval cannot be negative"},
		{"negative tick duration", Config{TickDuration: -1}, "ticker: duration cannot be negative"},
		{"negative shutdown timeout", Config{ShutdownTimeout: -time.Second}, "shutdown: timeout cannot be negative"},
		{"port clash", Config{MetricsPort: 9000, InspectorEnabled: true, InspectorPort: 9000}, "already used by the inspector"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("error %q does not contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestConfigValidateAggregatesErrors(t *testing.T) {
	cfg := Config{MetricsPort: -1, InspectorPort: -1, TickDuration: -1}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected error")
	}
	for _, want := range []string{"metrics", "inspector", "ticker"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("expected %q in %q", want, err)
		}
	}
}

func TestValidateConfigNil(t *testing.T) {
	if err := ValidateConfig(nil); err == nil {
		t.Fatal("expected error for nil config")
	}
}

func TestConfigString(t *testing.T) {
	str := Config{MetricsNamespace: "robot", TickDuration: 4}.String()
	if !strings.Contains(str, "MetricsNamespace:robot") || !strings.Contains(str, "TickDuration:4") {
		t.Fatalf("unexpected String(): %s", str)
	}
}

func TestLoadYAML(t *testing.T) {
	raw := `
metrics_enabled: true
inspector_enabled: true
inspector_cors_allowed_origins: ["*"]
tick_interval: 50ms
tick_duration: 10
broadcast_crashes: true
`
	cfg, err := LoadYAML(strings.NewReader(raw))
	if err != nil {
		t.Fatalf("LoadYAML: %v", err)
	}
	if !cfg.MetricsEnabled || !cfg.InspectorEnabled || !cfg.BroadcastCrashes {
		t.Fatalf("booleans not decoded: %+v", cfg)
	}
	if cfg.TickInterval != 50*time.Millisecond || cfg.TickDuration != 10 {
		t.Fatalf("ticker not decoded: %+v", cfg)
	}
	if cfg.InspectorPort != DefaultInspectorPort {
		t.Fatalf("defaults not applied: %+v", cfg)
	}
	if len(cfg.InspectorCORSAllowedOrigins) != 1 || cfg.InspectorCORSAllowedOrigins[0] != "*" {
		t.Fatalf("origins not decoded: %+v", cfg.InspectorCORSAllowedOrigins)
	}
}

func TestLoadYAMLEmptyDocument(t *testing.T) {
	cfg, err := LoadYAML(strings.NewReader(""))
	if err != nil {
		t.Fatalf("LoadYAML: %v", err)
	}
	if cfg.MetricsNamespace != DefaultMetricsNamespace {
		t.Fatalf("expected defaults on empty document, got %+v", cfg)
	}
}

func TestLoadYAMLRejectsUnknownKeys(t *testing.T) {
	if _, err := LoadYAML(strings.NewReader("pubsub_system: kafka\n")); err == nil {
		t.Fatal("expected unknown key to be rejected")
	}
}

func TestLoadYAMLRejectsInvalidValues(t *testing.T) {
	if _, err := LoadYAML(strings.NewReader("metrics_port: -3\n")); err == nil {
		t.Fatal("expected validation error")
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mics.yaml")
	if err := os.WriteFile(path, []byte("log_messages: true\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if !cfg.LogMessages {
		t.Fatal("expected log_messages to be true")
	}

	if _, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
