package daemonrun

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"audioshelf/internal/aggregator"
	"audioshelf/internal/api"
	"audioshelf/internal/config"
	"audioshelf/internal/daemon"
	"audioshelf/internal/identification"
	"audioshelf/internal/ingest"
	"audioshelf/internal/logging"
	"audioshelf/internal/monitor"
	"audioshelf/internal/notifications"
	"audioshelf/internal/organizer"
	"audioshelf/internal/queue"
	"audioshelf/internal/workflow"
)

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel    string
	Development bool
}

// Run starts the audioshelf daemon and blocks until the context is
// cancelled or the process receives SIGINT/SIGTERM.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger, err := newLogger(cfg, opts)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	logProviderSnapshot(logger, cfg)

	pidPath := filepath.Join(cfg.Paths.StateDir, "audioshelfd.pid")
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	store, err := queue.Open(cfg)
	if err != nil {
		logger.Error("open queue store", logging.Error(err))
		return err
	}
	defer store.Close()

	searcher, err := aggregator.NewFromConfig(cfg, logger)
	if err != nil {
		return fmt.Errorf("configure providers: %w", err)
	}
	org := organizer.NewOrganizer(cfg, logger)

	notifier := notifications.NewService(cfg)
	workflowManager := workflow.NewManagerWithNotifier(cfg, store, logger, notifier)
	workflowManager.ConfigureStages(workflow.StageSet{
		Identifier: identification.NewIdentifier(cfg, logger),
		Enricher:   aggregator.NewEnricher(cfg, searcher, logger),
		Organizer:  org,
	})

	ingestManager := ingest.NewManager(cfg, store, logger)
	ingestManager.OnItem = func(*queue.Item) { workflowManager.Wake() }
	watcher := monitor.New(cfg, ingestManager.HandleStable, logger)

	svc := api.NewService(api.Dependencies{
		Config:    cfg,
		Store:     store,
		Pipeline:  workflowManager,
		Previewer: org,
		Searcher:  searcher,
		Monitor:   watcher,
		Grouper:   ingestManager,
		Logger:    logger,
	})

	d, err := daemon.New(cfg, store, logger, daemon.Components{
		Workflow: workflowManager,
		Monitor:  watcher,
		Ingest:   ingestManager,
		Service:  svc,
	})
	if err != nil {
		return fmt.Errorf("create daemon: %w", err)
	}
	defer d.Stop()

	if err := d.Start(signalCtx); err != nil {
		logging.ErrorWithContext(logger, "daemon start failed", "daemon_start_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check for another running instance and queue database access"),
		)
		return err
	}

	<-signalCtx.Done()
	logger.Info("audioshelf daemon shutting down")
	return nil
}

func newLogger(cfg *config.Config, opts Options) (*slog.Logger, error) {
	if opts.LogLevel == "" && !opts.Development {
		return logging.NewFromConfig(cfg)
	}
	level := cfg.Logging.Level
	if opts.LogLevel != "" {
		level = opts.LogLevel
	}
	return logging.New(logging.Options{
		Level:       level,
		Format:      cfg.Logging.Format,
		OutputPaths: []string{"stdout", filepath.Join(cfg.Paths.LogDir, "audioshelf.log")},
		Development: opts.Development,
	})
}

func writePIDFile(path string) error {
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}

func logProviderSnapshot(logger *slog.Logger, cfg *config.Config) {
	logger.Info("configuration snapshot",
		logging.String(logging.FieldEventType, "configuration_snapshot"),
		logging.String("input_dir", cfg.Paths.InputDir),
		logging.String("output_dir", cfg.Paths.OutputDir),
		logging.String("providers", strings.Join(cfg.Providers.Enabled, ",")),
		logging.Bool("googlebooks_key_present", strings.TrimSpace(cfg.Providers.GoogleBooksAPIKey) != ""),
		logging.Bool("audiobookshelf_configured", strings.TrimSpace(cfg.Audiobookshelf.URL) != ""),
		logging.Bool("ntfy_configured", strings.TrimSpace(cfg.Notifications.NtfyTopic) != ""),
		logging.Int("workers", cfg.Pipeline.Workers),
		logging.Bool("dry_run", cfg.Pipeline.DryRun),
	)
}
