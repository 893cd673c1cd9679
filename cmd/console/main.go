package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lmittmann/tint"

	"github.com/vanillastudio/console/internal/config"
	"github.com/vanillastudio/console/internal/job"
	"github.com/vanillastudio/console/internal/language"
	"github.com/vanillastudio/console/internal/manager"
	"github.com/vanillastudio/console/internal/pipeline"
	"github.com/vanillastudio/console/internal/runner"
	"github.com/vanillastudio/console/internal/server"
)

// mountDir is where the docker runner mounts each job's scratch
// directory inside the container.
const mountDir = "/workspace"

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	var logLevel slog.Level
	switch cfg.LogLevel {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	logger := slog.New(tint.NewHandler(os.Stderr, &tint.Options{Level: logLevel}))
	slog.SetDefault(logger)

	overrides, err := language.LoadOverrides(cfg.LanguagesFile)
	if err != nil {
		logger.Error("failed to load languages config", "error", err)
		os.Exit(1)
	}
	registry, err := language.NewRegistry(cfg.DefaultTimeout, overrides)
	if err != nil {
		logger.Error("invalid languages config", "error", err)
		os.Exit(1)
	}

	if err := os.MkdirAll(cfg.ScratchRoot, 0o755); err != nil {
		logger.Error("scratch root is not writable", "root", cfg.ScratchRoot, "error", err)
		os.Exit(1)
	}

	var (
		stageRunner runner.Runner
		mount       string
	)
	switch cfg.Runner {
	case "docker":
		stageRunner, err = runner.NewDocker(cfg.DockerMemoryMB, logger)
		if err != nil {
			logger.Error("failed to create docker runner", "error", err)
			os.Exit(1)
		}
		mount = mountDir
		logger.Info("using docker runner")
	case "local":
		stageRunner = runner.NewLocal(logger)
		logger.Info("using local runner")
	default:
		logger.Error("unknown runner type", "runner", cfg.Runner)
		os.Exit(1)
	}

	builder := job.NewBuilder(registry, cfg.ScratchRoot, mount)
	store := job.NewStore()
	mgr := manager.New(builder, pipeline.New(stageRunner, logger), store, logger)

	srv := server.New(mgr, registry, logger)

	// On shutdown, cancel in-flight jobs so their scratch dirs are
	// reclaimed before the process exits.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("shutting down...")
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Stop(ctx)
		mgr.Shutdown()
	}()

	if err := srv.Start(cfg.Port); err != nil {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}
}
