package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

func (c *Config) normalize() error {
	c.applyEnvironment()
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizePipeline()
	c.normalizeProviders()
	c.normalizeLibrary()
	c.normalizeAudiobookshelf()
	c.normalizeLogging()
	return nil
}

// applyEnvironment folds container-style environment variables into the
// config. String settings are only filled when the file left them empty;
// numeric and boolean switches override the file when set.
func (c *Config) applyEnvironment() {
	fillString(&c.Paths.InputDir, "INPUT_DIR")
	fillString(&c.Paths.OutputDir, "OUTPUT_DIR")
	fillString(&c.Paths.StagingDir, "STAGING_DIR")
	fillString(&c.Paths.APIToken, "AUDIOSHELF_API_TOKEN")
	fillString(&c.Audiobookshelf.URL, "ABS_URL")
	fillString(&c.Audiobookshelf.APIKey, "ABS_API_KEY")
	fillString(&c.Audiobookshelf.LibraryID, "ABS_LIBRARY_ID")
	fillString(&c.Providers.GoogleBooksAPIKey, "GOOGLE_BOOKS_API_KEY")
	fillString(&c.Notifications.NtfyTopic, "NTFY_TOPIC")
	if value, ok := lookupEnv("LOG_DIR"); ok {
		c.Paths.LogDir = value
	}
	if value, ok := lookupEnv("AUDNEXUS_URL"); ok {
		c.Providers.AudnexusURL = value
	}

	overrideInt(&c.Library.OwnerUID, "PUID")
	overrideInt(&c.Library.OwnerGID, "PGID")
	overrideInt(&c.Pipeline.StabilityCheckSeconds, "STABILITY_CHECK_DURATION")
	overrideInt(&c.Pipeline.GroupingWindowSeconds, "GROUPING_WINDOW")
	overrideInt(&c.Confidence.Automatic, "MATCH_THRESHOLD_AUTOMATIC")
	overrideInt(&c.Confidence.Probable, "MATCH_THRESHOLD_PROBABLE")
	overrideBool(&c.Pipeline.DryRun, "DRY_RUN")

	if value, ok := lookupEnv("METADATA_PROVIDERS"); ok {
		c.Providers.Enabled = strings.Split(value, ",")
	}
}

func (c *Config) normalizePaths() error {
	var err error
	if c.Paths.InputDir, err = expandPath(c.Paths.InputDir); err != nil {
		return fmt.Errorf("paths.input_dir: %w", err)
	}
	if c.Paths.OutputDir, err = expandPath(c.Paths.OutputDir); err != nil {
		return fmt.Errorf("paths.output_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.StagingDir) == "" && c.Paths.OutputDir != "" {
		c.Paths.StagingDir = filepath.Join(c.Paths.OutputDir, defaultStagingDirName)
	}
	if c.Paths.StagingDir, err = expandPath(c.Paths.StagingDir); err != nil {
		return fmt.Errorf("paths.staging_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		c.Paths.StateDir = defaultStateDir
	}
	if c.Paths.StateDir, err = expandPath(c.Paths.StateDir); err != nil {
		return fmt.Errorf("paths.state_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	if c.Paths.APIBind == "" {
		c.Paths.APIBind = defaultAPIBind
	}
	c.Paths.APIToken = strings.TrimSpace(c.Paths.APIToken)
	return nil
}

func (c *Config) normalizePipeline() {
	seen := make(map[string]struct{}, len(c.Pipeline.AllowedExtensions))
	exts := make([]string, 0, len(c.Pipeline.AllowedExtensions))
	for _, ext := range c.Pipeline.AllowedExtensions {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		if _, ok := seen[ext]; ok {
			continue
		}
		seen[ext] = struct{}{}
		exts = append(exts, ext)
	}
	c.Pipeline.AllowedExtensions = exts

	c.Pipeline.FilenameOrder = strings.ToLower(strings.TrimSpace(c.Pipeline.FilenameOrder))
	if c.Pipeline.FilenameOrder == "" {
		c.Pipeline.FilenameOrder = defaultFilenameOrder
	}
	if c.Pipeline.PollIntervalSeconds <= 0 {
		c.Pipeline.PollIntervalSeconds = defaultPollIntervalSeconds
	}
	if c.Pipeline.Workers <= 0 {
		c.Pipeline.Workers = defaultWorkers
	}
}

func (c *Config) normalizeProviders() {
	enabled := make([]string, 0, len(c.Providers.Enabled))
	seen := make(map[string]struct{}, len(c.Providers.Enabled))
	for _, name := range c.Providers.Enabled {
		name = strings.ToLower(strings.TrimSpace(name))
		if name == "" {
			continue
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		enabled = append(enabled, name)
	}
	c.Providers.Enabled = enabled

	c.Providers.OpenLibraryURL = trimURL(c.Providers.OpenLibraryURL, defaultOpenLibraryURL)
	c.Providers.GoogleBooksURL = trimURL(c.Providers.GoogleBooksURL, defaultGoogleBooksURL)
	c.Providers.AudibleURL = trimURL(c.Providers.AudibleURL, defaultAudibleURL)
	c.Providers.AudnexusURL = trimURL(c.Providers.AudnexusURL, defaultAudnexusURL)
	c.Providers.GoogleBooksAPIKey = strings.TrimSpace(c.Providers.GoogleBooksAPIKey)
	if c.Providers.MaxResults <= 0 {
		c.Providers.MaxResults = defaultProviderMaxResults
	}
}

func (c *Config) normalizeLibrary() {
	c.Library.DefaultMode = strings.ToLower(strings.TrimSpace(c.Library.DefaultMode))
	if c.Library.DefaultMode == "" {
		c.Library.DefaultMode = defaultLibraryMode
	}
	if c.Library.DirMode == 0 {
		c.Library.DirMode = defaultDirMode
	}
	if c.Library.FileMode == 0 {
		c.Library.FileMode = defaultFileMode
	}
}

func (c *Config) normalizeAudiobookshelf() {
	c.Audiobookshelf.URL = strings.TrimRight(strings.TrimSpace(c.Audiobookshelf.URL), "/")
	c.Audiobookshelf.APIKey = strings.TrimSpace(c.Audiobookshelf.APIKey)
	c.Audiobookshelf.LibraryID = strings.TrimSpace(c.Audiobookshelf.LibraryID)
	if c.Audiobookshelf.TimeoutSeconds <= 0 {
		c.Audiobookshelf.TimeoutSeconds = defaultABSTimeoutSeconds
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
}

func trimURL(value, fallback string) string {
	value = strings.TrimRight(strings.TrimSpace(value), "/")
	if value == "" {
		return fallback
	}
	return value
}

func lookupEnv(key string) (string, bool) {
	value, ok := os.LookupEnv(key)
	if !ok {
		return "", false
	}
	value = strings.TrimSpace(value)
	return value, value != ""
}

func fillString(target *string, key string) {
	if strings.TrimSpace(*target) != "" {
		return
	}
	if value, ok := lookupEnv(key); ok {
		*target = value
	}
}

func overrideInt(target *int, key string) {
	value, ok := lookupEnv(key)
	if !ok {
		return
	}
	if parsed, err := strconv.Atoi(value); err == nil {
		*target = parsed
	}
}

func overrideBool(target *bool, key string) {
	value, ok := lookupEnv(key)
	if !ok {
		return
	}
	if parsed, err := strconv.ParseBool(value); err == nil {
		*target = parsed
	}
}
