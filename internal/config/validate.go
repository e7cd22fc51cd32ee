package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validatePipeline(); err != nil {
		return err
	}
	if err := c.validateConfidence(); err != nil {
		return err
	}
	if err := c.validateProviders(); err != nil {
		return err
	}
	if err := c.validateLibrary(); err != nil {
		return err
	}
	if err := c.validateAudiobookshelf(); err != nil {
		return err
	}
	if err := c.validateWorkflow(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validatePaths() error {
	if c.Paths.InputDir == "" {
		return fmt.Errorf("paths.input_dir is required. Set INPUT_DIR or edit %s (create with 'audioshelf config init')", configHint())
	}
	if c.Paths.OutputDir == "" {
		return fmt.Errorf("paths.output_dir is required. Set OUTPUT_DIR or edit %s", configHint())
	}
	if c.Paths.InputDir == c.Paths.OutputDir {
		return errors.New("paths.input_dir and paths.output_dir must differ")
	}
	if isWithin(c.Paths.InputDir, c.Paths.OutputDir) {
		return errors.New("paths.output_dir must not be inside paths.input_dir")
	}
	if isWithin(c.Paths.InputDir, c.Paths.StagingDir) {
		return errors.New("paths.staging_dir must not be inside paths.input_dir")
	}
	return nil
}

func (c *Config) validatePipeline() error {
	if c.Pipeline.StabilityCheckSeconds <= 0 {
		return errors.New("pipeline.stability_check_seconds must be positive")
	}
	if c.Pipeline.GroupingWindowSeconds <= 0 {
		return errors.New("pipeline.grouping_window_seconds must be positive")
	}
	if len(c.Pipeline.AllowedExtensions) == 0 {
		return errors.New("pipeline.allowed_extensions must list at least one extension")
	}
	switch c.Pipeline.FilenameOrder {
	case FilenameOrderTitleAuthor, FilenameOrderAuthorTitle:
	default:
		return fmt.Errorf("pipeline.filename_order must be %q or %q", FilenameOrderTitleAuthor, FilenameOrderAuthorTitle)
	}
	return nil
}

func (c *Config) validateConfidence() error {
	if c.Confidence.Probable < 0 || c.Confidence.Probable > 100 {
		return errors.New("confidence.probable must be between 0 and 100")
	}
	if c.Confidence.Automatic < 0 || c.Confidence.Automatic > 100 {
		return errors.New("confidence.automatic must be between 0 and 100")
	}
	if c.Confidence.Automatic < c.Confidence.Probable {
		return errors.New("confidence.automatic must be greater than or equal to confidence.probable")
	}
	return nil
}

func (c *Config) validateProviders() error {
	for _, name := range c.Providers.Enabled {
		switch name {
		case ProviderOpenLibrary, ProviderGoogleBooks, ProviderAudible, ProviderAudnexus:
		default:
			return fmt.Errorf("providers.enabled: unknown provider %q", name)
		}
	}
	if c.Providers.TimeoutSeconds <= 0 {
		return errors.New("providers.timeout_seconds must be positive")
	}
	if c.Providers.AggregateTimeoutSeconds < c.Providers.TimeoutSeconds {
		return errors.New("providers.aggregate_timeout_seconds must be at least providers.timeout_seconds")
	}
	return nil
}

func (c *Config) validateLibrary() error {
	switch c.Library.DefaultMode {
	case ModeCopy, ModeMove:
	default:
		return fmt.Errorf("library.default_mode must be %q or %q", ModeCopy, ModeMove)
	}
	if c.Library.DirMode < 0 || c.Library.DirMode > 0o7777 {
		return errors.New("library.dir_mode must be a valid permission value")
	}
	if c.Library.FileMode < 0 || c.Library.FileMode > 0o7777 {
		return errors.New("library.file_mode must be a valid permission value")
	}
	if c.Library.CoverTimeoutSeconds <= 0 {
		return errors.New("library.cover_timeout_seconds must be positive")
	}
	if c.Library.MinFreeMiB < 0 {
		return errors.New("library.min_free_mib must be zero or positive")
	}
	return nil
}

func (c *Config) validateAudiobookshelf() error {
	if c.Audiobookshelf.URL == "" {
		return nil
	}
	if !strings.HasPrefix(c.Audiobookshelf.URL, "http://") && !strings.HasPrefix(c.Audiobookshelf.URL, "https://") {
		return errors.New("audiobookshelf.url must start with http:// or https://")
	}
	return nil
}

func (c *Config) validateWorkflow() error {
	if err := ensurePositiveMap(map[string]int{
		"workflow.queue_poll_interval": c.Workflow.QueuePollInterval,
		"workflow.heartbeat_interval":  c.Workflow.HeartbeatInterval,
		"workflow.heartbeat_timeout":   c.Workflow.HeartbeatTimeout,
	}); err != nil {
		return err
	}
	if c.Workflow.HeartbeatTimeout <= c.Workflow.HeartbeatInterval {
		return errors.New("workflow.heartbeat_timeout must be greater than workflow.heartbeat_interval")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format must be \"console\" or \"json\", got %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn, or error, got %q", c.Logging.Level)
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}

func isWithin(root, path string) bool {
	if root == "" || path == "" {
		return false
	}
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	return rel != "." && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func configHint() string {
	path, err := DefaultConfigPath()
	if err != nil {
		return "~/.config/audioshelf/config.toml"
	}
	return path
}
