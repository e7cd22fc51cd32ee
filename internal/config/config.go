package config

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and bind address configuration.
type Paths struct {
	InputDir   string `toml:"input_dir"`
	OutputDir  string `toml:"output_dir"`
	StagingDir string `toml:"staging_dir"`
	StateDir   string `toml:"state_dir"`
	LogDir     string `toml:"log_dir"`
	APIBind    string `toml:"api_bind"`
	APIToken   string `toml:"api_token"`
}

// Pipeline controls the monitor, ingestion, and identification stages.
type Pipeline struct {
	StabilityCheckSeconds int      `toml:"stability_check_seconds"`
	GroupingWindowSeconds int      `toml:"grouping_window_seconds"`
	PollIntervalSeconds   int      `toml:"poll_interval_seconds"`
	WatchEvents           bool     `toml:"watch_events"`
	AllowedExtensions     []string `toml:"allowed_extensions"`
	FilenameOrder         string   `toml:"filename_order"`
	Workers               int      `toml:"workers"`
	DryRun                bool     `toml:"dry_run"`
}

// Confidence holds the match thresholds used by the organizer gate.
type Confidence struct {
	Automatic           int  `toml:"automatic"`
	Probable            int  `toml:"probable"`
	RequireConfirmation bool `toml:"require_confirmation"`
}

// Providers configures the external metadata catalogs.
type Providers struct {
	Enabled                 []string `toml:"enabled"`
	TimeoutSeconds          int      `toml:"timeout_seconds"`
	AggregateTimeoutSeconds int      `toml:"aggregate_timeout_seconds"`
	MaxResults              int      `toml:"max_results"`
	OpenLibraryURL          string   `toml:"openlibrary_url"`
	GoogleBooksURL          string   `toml:"googlebooks_url"`
	GoogleBooksAPIKey       string   `toml:"googlebooks_api_key"`
	AudibleURL              string   `toml:"audible_url"`
	AudnexusURL             string   `toml:"audnexus_url"`
}

// Library contains configuration for the organized output tree.
type Library struct {
	DefaultMode         string `toml:"default_mode"`
	OwnerUID            int    `toml:"owner_uid"`
	OwnerGID            int    `toml:"owner_gid"`
	DirMode             int    `toml:"dir_mode"`
	FileMode            int    `toml:"file_mode"`
	OverwriteExisting   bool   `toml:"overwrite_existing"`
	WriteTags           bool   `toml:"write_tags"`
	CoverTimeoutSeconds int    `toml:"cover_timeout_seconds"`
	MinFreeMiB          int    `toml:"min_free_mib"`
}

// Audiobookshelf contains the downstream library manager connection.
type Audiobookshelf struct {
	URL            string `toml:"url"`
	APIKey         string `toml:"api_key"`
	LibraryID      string `toml:"library_id"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
	Organized      bool   `toml:"organized"`
	Review         bool   `toml:"review"`
	Errors         bool   `toml:"errors"`
}

// Workflow contains configuration for daemon timing and intervals.
type Workflow struct {
	QueuePollInterval int `toml:"queue_poll_interval"`
	HeartbeatInterval int `toml:"heartbeat_interval"`
	HeartbeatTimeout  int `toml:"heartbeat_timeout"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config is the decoded config.toml. Each section maps to one TOML table.
type Config struct {
	Paths          Paths          `toml:"paths"`
	Pipeline       Pipeline       `toml:"pipeline"`
	Confidence     Confidence     `toml:"confidence"`
	Providers      Providers      `toml:"providers"`
	Library        Library        `toml:"library"`
	Audiobookshelf Audiobookshelf `toml:"audiobookshelf"`
	Notifications  Notifications  `toml:"notifications"`
	Workflow       Workflow       `toml:"workflow"`
	Logging        Logging        `toml:"logging"`
}

const (
	userConfigPath    = "~/.config/audioshelf/config.toml"
	projectConfigName = "audioshelf.toml"
)

// DefaultConfigPath is ~/.config/audioshelf/config.toml, expanded.
func DefaultConfigPath() (string, error) {
	return expandPath(userConfigPath)
}

// Load reads the config at path, or from the default search locations when
// path is empty, then normalizes and validates it. A missing file yields the
// defaults. It returns the config, the resolved path and whether that path
// existed.
func Load(path string) (*Config, string, bool, error) {
	resolved, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}
	cfg := Default()
	if exists {
		if err := decodeFile(resolved, &cfg); err != nil {
			return nil, "", false, err
		}
	}
	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}
	return &cfg, resolved, exists, nil
}

// decodeFile rejects keys the Config struct does not declare.
func decodeFile(path string, cfg *Config) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	dec := toml.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(cfg); err != nil {
		var strict *toml.StrictMissingError
		if errors.As(err, &strict) {
			return fmt.Errorf("parse config %s: %s", path, strict.String())
		}
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

func isRegularFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// resolveConfigPath honours an explicit path even if absent. Otherwise the
// user config wins over ./audioshelf.toml, and the user path is reported
// when neither exists.
func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, statErr := os.Stat(expanded)
		switch {
		case statErr == nil:
			return expanded, true, nil
		case errors.Is(statErr, fs.ErrNotExist):
			return expanded, false, nil
		default:
			return "", false, fmt.Errorf("stat config: %w", statErr)
		}
	}

	userPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}
	projectPath, err := filepath.Abs(projectConfigName)
	if err != nil {
		return "", false, err
	}
	for _, candidate := range []string{userPath, projectPath} {
		if isRegularFile(candidate) {
			return candidate, true, nil
		}
	}
	return userPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.InputDir, c.Paths.OutputDir, c.Paths.StagingDir, c.Paths.StateDir, c.Paths.LogDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// StabilityWindow is how long a path's size and mtime must stay unchanged.
func (c *Config) StabilityWindow() time.Duration {
	return time.Duration(c.Pipeline.StabilityCheckSeconds) * time.Second
}

// GroupingWindow is the quiet period after a directory's last new member.
func (c *Config) GroupingWindow() time.Duration {
	return time.Duration(c.Pipeline.GroupingWindowSeconds) * time.Second
}

// ProviderTimeout bounds a single provider query.
func (c *Config) ProviderTimeout() time.Duration {
	return time.Duration(c.Providers.TimeoutSeconds) * time.Second
}

// AggregateTimeout bounds a whole fan-out across providers.
func (c *Config) AggregateTimeout() time.Duration {
	return time.Duration(c.Providers.AggregateTimeoutSeconds) * time.Second
}

// IsAllowedExtension reports whether name carries an allow-listed extension.
// Compound archive suffixes such as .tar.gz are matched before the plain one.
func (c *Config) IsAllowedExtension(name string) bool {
	lower := strings.ToLower(name)
	for _, ext := range c.Pipeline.AllowedExtensions {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}

// expandPath resolves a leading ~ and returns a clean absolute path. Empty
// input stays empty.
func expandPath(value string) (string, error) {
	if value == "" {
		return "", nil
	}
	if value == "~" || strings.HasPrefix(value, "~/") || strings.HasPrefix(value, `~\`) {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		value = filepath.Join(home, strings.TrimLeft(value[1:], `/\`))
	}
	abs, err := filepath.Abs(value)
	if err != nil {
		return "", fmt.Errorf("absolute path for %q: %w", value, err)
	}
	return abs, nil
}

// ExpandPath applies the same ~ and absolute-path rules used for config paths.
func ExpandPath(value string) (string, error) { return expandPath(value) }

// CreateSample writes the commented sample config to path, creating parents.
func CreateSample(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

// Encode renders the effective configuration as TOML. API tokens and keys are
// masked so the output is safe to paste into bug reports.
func (c *Config) Encode() ([]byte, error) {
	redacted := *c
	redacted.Paths.APIToken = mask(redacted.Paths.APIToken)
	redacted.Audiobookshelf.APIKey = mask(redacted.Audiobookshelf.APIKey)
	redacted.Providers.GoogleBooksAPIKey = mask(redacted.Providers.GoogleBooksAPIKey)
	return toml.Marshal(redacted)
}

func mask(value string) string {
	if value == "" {
		return ""
	}
	return "********"
}
