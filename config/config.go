// Package config loads coordinator configuration from YAML or JSON
// files. Severity thresholds and the resolution policy are named,
// overridable settings rather than literals in the detection code.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/shelfsync/shelfsync"
	"github.com/shelfsync/shelfsync/conflict"
	"github.com/shelfsync/shelfsync/resolve"
)

// Config is the full file-backed configuration.
type Config struct {
	Version string `json:"version" yaml:"version"`
	Name    string `json:"name" yaml:"name"`

	Sync       SyncSettings       `json:"sync,omitempty" yaml:"sync,omitempty"`
	Conflicts  ConflictSettings   `json:"conflicts,omitempty" yaml:"conflicts,omitempty"`
	Resolution ResolutionSettings `json:"resolution,omitempty" yaml:"resolution,omitempty"`
}

// SyncSettings configures the job coordinator.
type SyncSettings struct {
	BatchSize    int `json:"batch_size,omitempty" yaml:"batch_size,omitempty"`
	HistoryLimit int `json:"history_limit,omitempty" yaml:"history_limit,omitempty"`
	TimeoutMs    int `json:"timeout_ms,omitempty" yaml:"timeout_ms,omitempty"`
}

// ConflictSettings overrides the detection thresholds. Zero values
// fall back to the defaults.
type ConflictSettings struct {
	ProgressThreshold  int     `json:"progress_threshold,omitempty" yaml:"progress_threshold,omitempty"`
	ProgressMedium     int     `json:"progress_medium,omitempty" yaml:"progress_medium,omitempty"`
	ProgressHigh       int     `json:"progress_high,omitempty" yaml:"progress_high,omitempty"`
	ProgressCritical   int     `json:"progress_critical,omitempty" yaml:"progress_critical,omitempty"`
	TitleSimilarity    float64 `json:"title_similarity,omitempty" yaml:"title_similarity,omitempty"`
	TitleHighSeverity  float64 `json:"title_high_severity,omitempty" yaml:"title_high_severity,omitempty"`
	TitleAutoResolve   float64 `json:"title_auto_resolve,omitempty" yaml:"title_auto_resolve,omitempty"`
	TimestampWindowSec int     `json:"timestamp_window_sec,omitempty" yaml:"timestamp_window_sec,omitempty"`
}

// ResolutionSettings configures the automatic resolution policy.
type ResolutionSettings struct {
	AutoResolve   *bool   `json:"auto_resolve,omitempty" yaml:"auto_resolve,omitempty"`
	MinConfidence float64 `json:"min_confidence,omitempty" yaml:"min_confidence,omitempty"`
}

// LoadFromFile loads configuration from a YAML or JSON file.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	return LoadFromBytes(data, detectFormat(path))
}

// LoadFromBytes loads configuration from raw bytes.
func LoadFromBytes(data []byte, format string) (*Config, error) {
	var cfg Config

	switch strings.ToLower(format) {
	case "yaml", "yml":
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config: %w", err)
		}
	case "json":
		if err := json.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse JSON config: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config format: %s", format)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the configuration for internal consistency.
func (c *Config) Validate() error {
	if c.Version == "" {
		return fmt.Errorf("configuration version is required")
	}
	if c.Name == "" {
		return fmt.Errorf("configuration name is required")
	}
	if c.Sync.BatchSize < 0 {
		return fmt.Errorf("sync.batch_size must not be negative")
	}
	if c.Sync.HistoryLimit < 0 {
		return fmt.Errorf("sync.history_limit must not be negative")
	}

	t := c.Conflicts
	for _, v := range []float64{t.TitleSimilarity, t.TitleHighSeverity, t.TitleAutoResolve} {
		if v < 0 || v > 1 {
			return fmt.Errorf("conflicts similarity thresholds must be within [0, 1]")
		}
	}
	if tiers := []int{t.ProgressThreshold, t.ProgressMedium, t.ProgressHigh, t.ProgressCritical}; !nonDecreasing(tiers) {
		return fmt.Errorf("conflicts progress tiers must be non-decreasing")
	}

	if c.Resolution.MinConfidence < 0 || c.Resolution.MinConfidence > 1 {
		return fmt.Errorf("resolution.min_confidence must be within [0, 1]")
	}
	return nil
}

func nonDecreasing(vals []int) bool {
	prev := 0
	for _, v := range vals {
		if v == 0 {
			continue
		}
		if v < prev {
			return false
		}
		prev = v
	}
	return true
}

// Thresholds maps the file settings onto detection thresholds,
// defaulting unset fields.
func (c *Config) Thresholds() conflict.Thresholds {
	t := conflict.DefaultThresholds()
	s := c.Conflicts
	if s.ProgressThreshold > 0 {
		t.Progress = s.ProgressThreshold
	}
	if s.ProgressMedium > 0 {
		t.ProgressMedium = s.ProgressMedium
	}
	if s.ProgressHigh > 0 {
		t.ProgressHigh = s.ProgressHigh
	}
	if s.ProgressCritical > 0 {
		t.ProgressCritical = s.ProgressCritical
	}
	if s.TitleSimilarity > 0 {
		t.TitleSimilarity = s.TitleSimilarity
	}
	if s.TitleHighSeverity > 0 {
		t.TitleHighSeverity = s.TitleHighSeverity
	}
	if s.TitleAutoResolve > 0 {
		t.TitleAutoResolve = s.TitleAutoResolve
	}
	if s.TimestampWindowSec > 0 {
		t.TimestampWindow = time.Duration(s.TimestampWindowSec) * time.Second
	}
	return t
}

// Policy maps the file settings onto a resolution policy.
func (c *Config) Policy() resolve.Policy {
	p := resolve.DefaultPolicy()
	if c.Resolution.AutoResolve != nil {
		p.AutoResolveConflicts = *c.Resolution.AutoResolve
	}
	if c.Resolution.MinConfidence > 0 {
		p.MinConfidence = c.Resolution.MinConfidence
	}
	return p
}

// CoordinatorOptions converts the configuration into coordinator
// options.
func (c *Config) CoordinatorOptions() []shelfsync.Option {
	opts := []shelfsync.Option{
		shelfsync.WithThresholds(c.Thresholds()),
		shelfsync.WithPolicy(c.Policy()),
	}
	if c.Sync.BatchSize > 0 {
		opts = append(opts, shelfsync.WithBatchSize(c.Sync.BatchSize))
	}
	if c.Sync.HistoryLimit > 0 {
		opts = append(opts, shelfsync.WithHistoryLimit(c.Sync.HistoryLimit))
	}
	if c.Sync.TimeoutMs > 0 {
		opts = append(opts, shelfsync.WithSyncTimeout(time.Duration(c.Sync.TimeoutMs)*time.Millisecond))
	}
	return opts
}

// detectFormat determines file format from extension.
func detectFormat(path string) string {
	ext := strings.ToLower(path[strings.LastIndex(path, ".")+1:])
	switch ext {
	case "yml", "yaml":
		return "yaml"
	case "json":
		return "json"
	default:
		return "yaml"
	}
}
