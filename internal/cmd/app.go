package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/Iron-Ham/codeloom/internal/config"
	"github.com/Iron-Ham/codeloom/internal/errors"
	"github.com/Iron-Ham/codeloom/internal/fstore"
	"github.com/Iron-Ham/codeloom/internal/llm"
	"github.com/Iron-Ham/codeloom/internal/logging"
	"github.com/Iron-Ham/codeloom/internal/orchestrator"
	"github.com/Iron-Ham/codeloom/internal/session"
	"github.com/Iron-Ham/codeloom/internal/stage"
)

// app bundles the wired core shared by the serve and run commands.
type app struct {
	cfg      *config.Config
	logger   *logging.Logger
	store    *fstore.Store
	registry *session.Registry
	orch     *orchestrator.Orchestrator
}

// newApp loads and validates configuration, then wires the storage,
// registry, and orchestrator around a Gemini-backed pipeline.
func newApp() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger := logging.NopLogger()
	if cfg.Logging.Enabled {
		logger, err = logging.NewLogger(cfg.Paths.LogDir, cfg.Logging.Level)
		if err != nil {
			return nil, fmt.Errorf("failed to create logger: %w", err)
		}
	}

	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("failed to get current directory: %w", err)
	}

	store, err := fstore.NewStore(cfg.Paths.ResolveOutputDir(cwd))
	if err != nil {
		return nil, fmt.Errorf("failed to create output store: %w", err)
	}

	registry := session.NewRegistry(logger, cfg.Session.SubscriberBuffer)

	apiKey := cfg.Model.ResolveAPIKey()
	if apiKey == "" {
		return nil, errors.NewValidationError("no Gemini API key configured; set model.api_key or GEMINI_API_KEY").WithField("api_key")
	}

	factory := func(ctx context.Context, opts orchestrator.SubmitOptions) ([]stage.Stage, error) {
		model := cfg.Model.Name
		if opts.Model != "" {
			model = opts.Model
		}
		temperature := cfg.Model.Temperature
		if opts.Temperature != nil {
			temperature = *opts.Temperature
		}

		client, err := llm.NewGeminiClient(ctx, llm.GeminiOptions{
			APIKey:          apiKey,
			Model:           model,
			Temperature:     temperature,
			MaxOutputTokens: cfg.Model.MaxOutputTokens,
		})
		if err != nil {
			return nil, err
		}

		return []stage.Stage{
			stage.NewPlanner(client),
			stage.NewArchitect(client),
			stage.NewCoder(client),
		}, nil
	}

	orch := orchestrator.New(registry, store, factory, logger, orchestrator.Options{
		StageTimeout:          cfg.Pipeline.StageTimeout(),
		MaxConcurrentSessions: cfg.Pipeline.MaxConcurrentSessions,
	})

	return &app{
		cfg:      cfg,
		logger:   logger,
		store:    store,
		registry: registry,
		orch:     orch,
	}, nil
}

// Close flushes and releases resources.
func (a *app) Close() {
	_ = a.logger.Close()
}
