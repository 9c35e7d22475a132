package main

import (
	"context"
	"fmt"

	"github.com/codefionn/driveagent/internal/config"
	"github.com/codefionn/driveagent/internal/drive"
	"github.com/codefionn/driveagent/internal/llm"
	"github.com/codefionn/driveagent/internal/logger"
	"github.com/codefionn/driveagent/internal/orchestrator"
	"github.com/codefionn/driveagent/internal/tools"
)

// app holds what every agent-running command needs.
type app struct {
	cfg    *config.Config
	repo   drive.Repository
	runner *orchestrator.Runner
}

// loadConfig reads the config file, applies --log-level and starts logging.
func loadConfig() (*config.Config, error) {
	path := configFile
	if path == "" {
		path = config.GetConfigPath()
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if err := logger.Init(logger.ParseLevel(cfg.LogLevel), cfg.LogPath); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return cfg, nil
}

func newApp(ctx context.Context) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	repo, err := openRepository(ctx, cfg)
	if err != nil {
		return nil, err
	}

	client, err := llm.NewClient(ctx, llm.ProviderOptions{
		Provider:        cfg.Provider,
		APIKey:          cfg.Keys().Reveal(cfg.Provider),
		RequestInterval: cfg.RequestInterval(),
		TokensPerMinute: cfg.TokensPerMinute,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create %s client: %w", cfg.Provider, err)
	}

	runner := orchestrator.NewRunner(cfg, client, tools.NewDriveRegistry(repo))
	logger.Info("driveagent ready: provider=%s model=%s tools=%v", cfg.Provider, cfg.Model, runner.Registry().Names())
	return &app{cfg: cfg, repo: repo, runner: runner}, nil
}

func openRepository(ctx context.Context, cfg *config.Config) (drive.Repository, error) {
	if localDir != "" {
		repo, err := drive.LoadDirectory(ctx, localDir)
		if err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", localDir, err)
		}
		repo.SetReadBudget(cfg.ReadCharBudget)
		return repo, nil
	}

	opts, err := drive.ClientOptions(ctx, cfg.CredentialsPath, cfg.TokenPath)
	if err != nil {
		return nil, err
	}
	repo, err := drive.NewGoogleRepository(ctx, cfg.ReadCharBudget, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create drive client: %w", err)
	}
	return repo, nil
}
