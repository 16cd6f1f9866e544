package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const sampleYAML = `
version: "1"
name: shelf-sync
sync:
  batch_size: 25
  history_limit: 50
  timeout_ms: 60000
conflicts:
  progress_threshold: 10
  timestamp_window_sec: 120
resolution:
  auto_resolve: false
  min_confidence: 0.9
`

const sampleJSON = `{
  "version": "1",
  "name": "shelf-sync",
  "sync": {"batch_size": 10}
}`

func TestLoadFromBytesYAML(t *testing.T) {
	cfg, err := LoadFromBytes([]byte(sampleYAML), "yaml")
	if err != nil {
		t.Fatalf("LoadFromBytes() failed: %v", err)
	}

	if cfg.Sync.BatchSize != 25 {
		t.Errorf("BatchSize = %d, want 25", cfg.Sync.BatchSize)
	}

	th := cfg.Thresholds()
	if th.Progress != 10 {
		t.Errorf("Progress threshold = %d, want 10", th.Progress)
	}
	if th.ProgressMedium != 30 {
		t.Errorf("unset ProgressMedium = %d, want default 30", th.ProgressMedium)
	}
	if th.TimestampWindow != 2*time.Minute {
		t.Errorf("TimestampWindow = %v, want 2m", th.TimestampWindow)
	}

	p := cfg.Policy()
	if p.AutoResolveConflicts {
		t.Error("AutoResolveConflicts should be disabled")
	}
	if p.MinConfidence != 0.9 {
		t.Errorf("MinConfidence = %v, want 0.9", p.MinConfidence)
	}
}

func TestLoadFromBytesJSON(t *testing.T) {
	cfg, err := LoadFromBytes([]byte(sampleJSON), "json")
	if err != nil {
		t.Fatalf("LoadFromBytes() failed: %v", err)
	}
	if cfg.Sync.BatchSize != 10 {
		t.Errorf("BatchSize = %d, want 10", cfg.Sync.BatchSize)
	}

	// Unset sections fall back to defaults.
	if got := cfg.Thresholds().Progress; got != 15 {
		t.Errorf("default Progress threshold = %d, want 15", got)
	}
	if p := cfg.Policy(); !p.AutoResolveConflicts || p.MinConfidence != 0.8 {
		t.Errorf("default policy = %+v, want auto-resolve at 0.8", p)
	}
}

func TestLoadFromBytesUnsupportedFormat(t *testing.T) {
	if _, err := LoadFromBytes([]byte(sampleYAML), "toml"); err == nil {
		t.Fatal("unsupported format should fail")
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "shelfsync.yaml")
	if err := os.WriteFile(path, []byte(sampleYAML), 0o644); err != nil {
		t.Fatalf("WriteFile() failed: %v", err)
	}

	cfg, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile() failed: %v", err)
	}
	if cfg.Name != "shelf-sync" {
		t.Errorf("Name = %s, want shelf-sync", cfg.Name)
	}

	if _, err := LoadFromFile(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Fatal("missing file should fail")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"missing version", func(c *Config) { c.Version = "" }, "version"},
		{"missing name", func(c *Config) { c.Name = "" }, "name"},
		{"negative batch size", func(c *Config) { c.Sync.BatchSize = -1 }, "batch_size"},
		{"similarity out of range", func(c *Config) { c.Conflicts.TitleSimilarity = 1.5 }, "similarity"},
		{"decreasing tiers", func(c *Config) {
			c.Conflicts.ProgressMedium = 50
			c.Conflicts.ProgressHigh = 30
		}, "non-decreasing"},
		{"confidence out of range", func(c *Config) { c.Resolution.MinConfidence = 2 }, "min_confidence"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{Version: "1", Name: "test"}
			tt.mutate(cfg)

			err := cfg.Validate()
			if err == nil {
				t.Fatal("Validate() should fail")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want mention of %s", err, tt.wantErr)
			}
		})
	}
}

func TestCoordinatorOptions(t *testing.T) {
	cfg, err := LoadFromBytes([]byte(sampleYAML), "yaml")
	if err != nil {
		t.Fatalf("LoadFromBytes() failed: %v", err)
	}

	opts := cfg.CoordinatorOptions()
	if len(opts) != 5 {
		t.Errorf("CoordinatorOptions() returned %d options, want 5", len(opts))
	}
}

func TestDetectFormat(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"config.yaml", "yaml"},
		{"config.yml", "yaml"},
		{"config.json", "json"},
		{"config.conf", "yaml"},
	}

	for _, tt := range tests {
		if got := detectFormat(tt.path); got != tt.want {
			t.Errorf("detectFormat(%s) = %s, want %s", tt.path, got, tt.want)
		}
	}
}
