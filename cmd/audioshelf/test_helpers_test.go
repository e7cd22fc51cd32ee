package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"audioshelf/internal/api"
	"audioshelf/internal/config"
	"audioshelf/internal/daemon"
	"audioshelf/internal/organizer"
	"audioshelf/internal/queue"
	"audioshelf/internal/stage"
	"audioshelf/internal/testsupport"
	"audioshelf/internal/workflow"
)

type noopStage struct{}

func (noopStage) Prepare(context.Context, *queue.Item) error { return nil }
func (noopStage) Execute(context.Context, *queue.Item) error { return nil }
func (noopStage) HealthCheck(context.Context) stage.Health {
	return stage.Healthy("noop")
}

type cliTestEnv struct {
	cfg        *config.Config
	store      *queue.Store
	configPath string
	apiURL     string
}

func writeConfigFile(t *testing.T, base string) string {
	t.Helper()
	path := filepath.Join(base, "audioshelf.toml")
	content := fmt.Sprintf(`[paths]
input_dir = %q
output_dir = %q
state_dir = %q
log_dir = %q
api_bind = "127.0.0.1:0"

[providers]
enabled = []

[library]
min_free_mib = 0
`,
		filepath.Join(base, "input"),
		filepath.Join(base, "output"),
		filepath.Join(base, "state"),
		filepath.Join(base, "logs"),
	)
	testsupport.WriteBytes(t, path, []byte(content))
	return path
}

func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()

	base := t.TempDir()
	t.Setenv("HOME", filepath.Join(base, "home"))
	configPath := writeConfigFile(t, base)
	cfg, _, _, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("config.Load: %v", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}

	store := testsupport.MustOpenStore(t, cfg)
	mgr := workflow.NewManager(cfg, store, nil)
	mgr.ConfigureStages(workflow.StageSet{Identifier: noopStage{}, Enricher: noopStage{}, Organizer: noopStage{}})
	svc := api.NewService(api.Dependencies{
		Config:    cfg,
		Store:     store,
		Pipeline:  mgr,
		Previewer: organizer.NewOrganizer(cfg, nil),
	})
	d, err := daemon.New(cfg, store, nil, daemon.Components{Workflow: mgr, Service: svc})
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	if err := d.Start(ctx); err != nil {
		cancel()
		t.Fatalf("daemon start: %v", err)
	}
	t.Cleanup(func() {
		cancel()
		d.Stop()
	})

	return &cliTestEnv{
		cfg:        cfg,
		store:      store,
		configPath: configPath,
		apiURL:     "http://" + d.Addr(),
	}
}

func (env *cliTestEnv) heldItem(t *testing.T) *queue.Item {
	t.Helper()
	dir := filepath.Join(env.cfg.Paths.InputDir, "Dune - Frank Herbert")
	file := filepath.Join(dir, "dune.m4b")
	testsupport.WriteFile(t, file, 128)
	item := testsupport.NewItem(t, env.store, dir, file)
	item.Metadata.Set(queue.FieldTitle, "Dune", queue.SourceFilename)
	item.Metadata.Set(queue.FieldAuthor, "Frank Herbert", queue.SourceFilename)
	item.Stage = queue.StageOrganize
	item.Hold("Confidence 40 below threshold 70")
	if err := env.store.Update(context.Background(), item); err != nil {
		t.Fatalf("Update: %v", err)
	}
	return item
}

func (env *cliTestEnv) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	full := append([]string{"--config", env.configPath, "--api", env.apiURL}, args...)
	return runCLI(t, full...)
}

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
