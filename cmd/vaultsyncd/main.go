// Command vaultsyncd bootstraps the sync engine's components and blocks
// until the process receives an interrupt: load config, build the
// dependency graph, run.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/grinsted/keeweb/internal/backend"
	"github.com/grinsted/keeweb/internal/config"
	"github.com/grinsted/keeweb/internal/controller"
	"github.com/grinsted/keeweb/internal/events"
	"github.com/grinsted/keeweb/internal/fileinfo"
	"github.com/grinsted/keeweb/internal/logging"
	"github.com/grinsted/keeweb/internal/openorch"
	"github.com/grinsted/keeweb/internal/syncengine"
	"github.com/grinsted/keeweb/internal/vaultfile"
)

func main() {
	slogger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	log := logging.NewSlogLogger(slogger)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cfg := config.LoadConfig()

	if err := run(ctx, cfg, log); err != nil {
		log.Error(ctx, "vaultsyncd exited with error", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, log logging.Logger) error {
	cache, err := backend.NewCache(cfg.CacheDir)
	if err != nil {
		return err
	}

	reg, err := fileinfo.Open(ctx, cfg.RegistryDSN)
	if err != nil {
		return err
	}

	local, err := backend.NewLocal()
	if err != nil {
		return err
	}
	defer local.Close()

	backends := backend.NewRegistry()
	backends.Register("file", local)

	if cfg.S3Bucket != "" {
		s3, err := backend.NewS3(ctx, backend.S3Config{
			Region:       cfg.S3Region,
			Bucket:       cfg.S3Bucket,
			BaseEndpoint: cfg.S3BaseEndpoint,
			AccessKey:    cfg.S3AccessKey,
			SecretKey:    cfg.S3SecretKey,
		})
		if err != nil {
			return err
		}
		backends.Register("s3", s3)
		log.Info(ctx, "registered s3 backend", "bucket", cfg.S3Bucket)
	}

	port := &events.Port{
		OnRefresh: func() { log.Debug(ctx, "refresh") },
		OnRemoteKeyChanged: func(e events.RemoteKeyChanged) {
			log.Warn(ctx, "remote key changed, re-authentication required", "file", e.FileID)
		},
	}

	orch := openorch.New(reg, backends, cache, func() vaultfile.File { return vaultfile.New() })
	orch.FileChangeSync = time.Duration(cfg.FileChangeSyncMillis) * time.Millisecond

	engine := syncengine.New(reg, backends, cache, port)
	engine.MaxLoadMergeAttempts = cfg.MaxLoadMergeAttempts

	ctrl := controller.New(orch, engine, port, log)

	log.Info(ctx, "vaultsyncd started", "cache", cfg.CacheDir, "registry", cfg.RegistryDSN)
	ctrl.Run(ctx)
	log.Info(ctx, "vaultsyncd shutting down")
	return ctrl.CloseAllFiles()
}
