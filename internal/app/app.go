package app

import (
	"context"
	"fmt"
	"log"

	"sdpflow/internal/artifact"
	"sdpflow/internal/config"
	"sdpflow/internal/handler"
	"sdpflow/internal/runner"
	"sdpflow/internal/server"
	"sdpflow/internal/tools"
)

type App struct {
	server *server.Server
}

func New() (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	var registry *tools.Registry
	if cfg.ToolsManifest != "" {
		registry, err = tools.Load(cfg.ToolsManifest, cfg.DefaultTool)
		if err != nil {
			return nil, fmt.Errorf("load tools manifest: %w", err)
		}
	} else {
		registry = tools.Open(cfg.DefaultTool)
	}

	executor := runner.NewExecutor(cfg.RunsRoot)
	if cfg.Artifact.Enabled {
		store, err := artifact.NewS3Store(artifact.S3Config{
			Endpoint:  cfg.Artifact.Endpoint,
			Region:    cfg.Artifact.Region,
			AccessKey: cfg.Artifact.AccessKey,
			SecretKey: cfg.Artifact.SecretKey,
			Bucket:    cfg.Artifact.Bucket,
			UseSSL:    cfg.Artifact.UseSSL,
		})
		if err != nil {
			// mirroring is optional; the pipeline runs without it
			log.Printf("artifact mirror disabled: %v", err)
		} else {
			executor.Artifacts = store
		}
	}

	h := handler.New(cfg.Model, executor, registry)
	srv := server.New(cfg.Port, server.NewMux(h))

	return &App{server: srv}, nil
}

func (a *App) Start() error {
	return a.server.Start()
}

func (a *App) Shutdown(ctx context.Context) error {
	return a.server.Shutdown(ctx)
}
