package config

const (
	defaultStagingDirName = ".staging"
	defaultStateDir       = "~/.local/share/audioshelf"
	defaultLogDir         = "~/.local/share/audioshelf/logs"
	defaultAPIBind        = "127.0.0.1:7487"

	defaultStabilityCheckSeconds = 60
	defaultGroupingWindowSeconds = 5
	defaultPollIntervalSeconds   = 2
	defaultWorkers               = 2
	defaultFilenameOrder         = FilenameOrderTitleAuthor

	defaultConfidenceAutomatic = 90
	defaultConfidenceProbable  = 70

	defaultProviderTimeoutSeconds  = 10
	defaultAggregateTimeoutSeconds = 30
	defaultProviderMaxResults      = 5
	defaultOpenLibraryURL          = "https://openlibrary.org"
	defaultGoogleBooksURL          = "https://www.googleapis.com"
	defaultAudibleURL              = "https://api.audible.com"
	defaultAudnexusURL             = "https://api.audnexus.com"

	defaultLibraryMode         = ModeMove
	defaultDirMode             = 0o775
	defaultFileMode            = 0o664
	defaultCoverTimeoutSeconds = 15
	defaultMinFreeMiB          = 256

	defaultABSTimeoutSeconds = 10

	defaultNotifyRequestTimeout = 10

	defaultQueuePollInterval = 5
	defaultHeartbeatInterval = 15
	defaultHeartbeatTimeout  = 120
)

// Organize modes accepted by library.default_mode and the process action.
const (
	ModeCopy = "copy"
	ModeMove = "move"
)

// Filename split orders for "A - B" names.
const (
	FilenameOrderTitleAuthor = "title_author"
	FilenameOrderAuthorTitle = "author_title"
)

// Provider names accepted by providers.enabled.
const (
	ProviderOpenLibrary = "openlibrary"
	ProviderGoogleBooks = "googlebooks"
	ProviderAudible     = "audible"
	ProviderAudnexus    = "audnexus"
)

var defaultAllowedExtensions = []string{
	".m4b", ".mp3", ".m4a", ".flac", ".opus", ".ogg", ".wma", ".aac",
	".epub", ".pdf",
	".jpg", ".jpeg", ".png",
	".zip", ".tar", ".tar.gz", ".tgz",
}

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			StateDir: defaultStateDir,
			LogDir:   defaultLogDir,
			APIBind:  defaultAPIBind,
		},
		Pipeline: Pipeline{
			StabilityCheckSeconds: defaultStabilityCheckSeconds,
			GroupingWindowSeconds: defaultGroupingWindowSeconds,
			PollIntervalSeconds:   defaultPollIntervalSeconds,
			WatchEvents:           true,
			AllowedExtensions:     append([]string(nil), defaultAllowedExtensions...),
			FilenameOrder:         defaultFilenameOrder,
			Workers:               defaultWorkers,
		},
		Confidence: Confidence{
			Automatic: defaultConfidenceAutomatic,
			Probable:  defaultConfidenceProbable,
		},
		Providers: Providers{
			Enabled:                 []string{ProviderOpenLibrary, ProviderGoogleBooks, ProviderAudible},
			TimeoutSeconds:          defaultProviderTimeoutSeconds,
			AggregateTimeoutSeconds: defaultAggregateTimeoutSeconds,
			MaxResults:              defaultProviderMaxResults,
			OpenLibraryURL:          defaultOpenLibraryURL,
			GoogleBooksURL:          defaultGoogleBooksURL,
			AudibleURL:              defaultAudibleURL,
			AudnexusURL:             defaultAudnexusURL,
		},
		Library: Library{
			DefaultMode:         defaultLibraryMode,
			OwnerUID:            -1,
			OwnerGID:            -1,
			DirMode:             defaultDirMode,
			FileMode:            defaultFileMode,
			WriteTags:           true,
			CoverTimeoutSeconds: defaultCoverTimeoutSeconds,
			MinFreeMiB:          defaultMinFreeMiB,
		},
		Audiobookshelf: Audiobookshelf{
			TimeoutSeconds: defaultABSTimeoutSeconds,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyRequestTimeout,
			Organized:      true,
			Review:         true,
			Errors:         true,
		},
		Workflow: Workflow{
			QueuePollInterval: defaultQueuePollInterval,
			HeartbeatInterval: defaultHeartbeatInterval,
			HeartbeatTimeout:  defaultHeartbeatTimeout,
		},
		Logging: Logging{
			Format: "console",
			Level:  "info",
		},
	}
}
