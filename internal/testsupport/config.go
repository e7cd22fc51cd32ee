package testsupport

import (
	"path/filepath"
	"testing"

	"audioshelf/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// Providers are disabled so tests never reach the network unless they opt in.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.InputDir = filepath.Join(base, "input")
	cfgVal.Paths.OutputDir = filepath.Join(base, "output")
	cfgVal.Paths.StagingDir = filepath.Join(base, "output", ".staging")
	cfgVal.Paths.StateDir = filepath.Join(base, "state")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.APIBind = "127.0.0.1:0"
	cfgVal.Providers.Enabled = nil
	cfgVal.Library.MinFreeMiB = 0

	builder := &configBuilder{t: t, baseDir: base, cfg: &cfgVal}
	for _, opt := range opts {
		opt(builder)
	}
	if err := builder.cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}
	return builder.cfg
}

// WithWindows sets the stability and grouping windows in seconds.
func WithWindows(stability, grouping int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Pipeline.StabilityCheckSeconds = stability
		b.cfg.Pipeline.GroupingWindowSeconds = grouping
	}
}

// WithThresholds sets the probable and automatic confidence thresholds.
func WithThresholds(probable, automatic int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Confidence.Probable = probable
		b.cfg.Confidence.Automatic = automatic
	}
}

// WithMode sets the default organize mode.
func WithMode(mode string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Library.DefaultMode = mode
	}
}

// WithDryRun toggles dry-run organization.
func WithDryRun(enabled bool) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Pipeline.DryRun = enabled
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.InputDir)
}
