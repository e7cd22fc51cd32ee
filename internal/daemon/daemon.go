package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/gofrs/flock"

	"audioshelf/internal/api"
	"audioshelf/internal/config"
	"audioshelf/internal/logging"
	"audioshelf/internal/queue"
	"audioshelf/internal/workflow"
)

// Runner is a background component with a start/stop lifecycle.
type Runner interface {
	Start(ctx context.Context) error
	Stop()
}

// Components are the pieces the daemon starts. Monitor and Ingest may be
// nil, in which case only queued work and the API run.
type Components struct {
	Workflow *workflow.Manager
	Monitor  Runner
	Ingest   Runner
	Service  *api.Service
}

// Daemon coordinates the background services and enforces single-instance execution.
type Daemon struct {
	cfg    *config.Config
	logger *slog.Logger
	store  *queue.Store
	parts  Components
	server *apiServer

	lockPath string
	lock     *flock.Flock

	running atomic.Bool
	cancel  context.CancelFunc
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, store *queue.Store, logger *slog.Logger, parts Components) (*Daemon, error) {
	if cfg == nil || store == nil || parts.Workflow == nil || parts.Service == nil {
		return nil, errors.New("daemon requires config, store, workflow manager and api service")
	}
	lockPath := filepath.Join(cfg.Paths.StateDir, "audioshelfd.lock")
	d := &Daemon{
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "daemon"),
		store:    store,
		parts:    parts,
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}
	d.server = newAPIServer(cfg, d, parts.Service, logger)
	return d, nil
}

// Start acquires the lock and launches the workflow, ingestion, monitor
// and API server, in that order.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}
	if err := os.MkdirAll(filepath.Dir(d.lockPath), 0o755); err != nil {
		return fmt.Errorf("create state directory: %w", err)
	}
	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another audioshelf daemon instance is already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	fail := func(err error) error {
		cancel()
		d.stopComponents()
		_ = d.lock.Unlock()
		return err
	}
	if err := d.parts.Workflow.Start(runCtx); err != nil {
		return fail(fmt.Errorf("start workflow: %w", err))
	}
	if d.parts.Ingest != nil {
		if err := d.parts.Ingest.Start(runCtx); err != nil {
			return fail(fmt.Errorf("start ingestion: %w", err))
		}
	}
	if d.parts.Monitor != nil {
		if err := d.parts.Monitor.Start(runCtx); err != nil {
			return fail(fmt.Errorf("start monitor: %w", err))
		}
	}
	if err := d.server.start(runCtx); err != nil {
		return fail(err)
	}

	d.cancel = cancel
	d.running.Store(true)
	d.logger.Info("audioshelf daemon started",
		logging.String("lock", d.lockPath),
		logging.String("input_dir", d.cfg.Paths.InputDir),
		logging.String("output_dir", d.cfg.Paths.OutputDir),
		logging.Bool("dry_run", d.cfg.Pipeline.DryRun),
	)
	return nil
}

// Stop stops background processing and releases the daemon lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.server.stop()
	d.stopComponents()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("audioshelf daemon stopped")
}

// stopComponents stops in reverse start order so nothing feeds a stopped
// consumer. Stop on a component that never started is a no-op.
func (d *Daemon) stopComponents() {
	if d.parts.Monitor != nil {
		d.parts.Monitor.Stop()
	}
	if d.parts.Ingest != nil {
		d.parts.Ingest.Stop()
	}
	d.parts.Workflow.Stop()
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	return d.store.Close()
}

// Addr returns the API listener address once started.
func (d *Daemon) Addr() string {
	return d.server.addr()
}

// Status returns the current daemon status.
func (d *Daemon) Status(ctx context.Context) api.DaemonStatus {
	return api.DaemonStatus{
		Running:      d.running.Load(),
		PID:          os.Getpid(),
		QueueDBPath:  d.store.Path(),
		LockFilePath: d.lockPath,
		InputDir:     d.cfg.Paths.InputDir,
		OutputDir:    d.cfg.Paths.OutputDir,
		DryRun:       d.cfg.Pipeline.DryRun,
		Pipeline:     d.parts.Service.Counters(),
		Workflow:     api.FromStatusSummary(d.parts.Workflow.Status(ctx)),
	}
}
