// Package app wires the stores, repositories and pipeline from a loaded Config.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/joseph-ayodele/plan-intel/internal/common"
	"github.com/joseph-ayodele/plan-intel/internal/core"
	"github.com/joseph-ayodele/plan-intel/internal/export"
	"github.com/joseph-ayodele/plan-intel/internal/llm"
	"github.com/joseph-ayodele/plan-intel/internal/llm/openai"
	"github.com/joseph-ayodele/plan-intel/internal/metrics"
	"github.com/joseph-ayodele/plan-intel/internal/render"
	"github.com/joseph-ayodele/plan-intel/internal/repository"
	"github.com/joseph-ayodele/plan-intel/internal/server"
	"github.com/joseph-ayodele/plan-intel/internal/storage"
	"github.com/joseph-ayodele/plan-intel/internal/validate"
)

const healthTimeout = 5 * time.Second

type App struct {
	Config    *common.Config
	Logger    *slog.Logger
	DB        *repository.DB
	Store     storage.ObjectStore
	Jobs      repository.JobRepository
	Artifacts repository.ArtifactRepository
	Analyses  repository.AnalysisRepository
	Export    *export.Service
	Metrics   *metrics.Metrics
}

// Open connects the database and object store. It does not touch the model.
func Open(ctx context.Context, cfg *common.Config, logger *slog.Logger) (*App, error) {
	db, err := repository.Open(ctx, cfg.Database, logger)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.HealthCheck(ctx, healthTimeout); err != nil {
		db.Close()
		return nil, fmt.Errorf("database health: %w", err)
	}
	store, err := storage.Open(ctx, cfg.Storage, logger)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("open storage: %w", err)
	}

	a := &App{
		Config:    cfg,
		Logger:    logger,
		DB:        db,
		Store:     store,
		Jobs:      repository.NewJobRepository(db, logger),
		Artifacts: repository.NewArtifactRepository(db, logger),
		Analyses:  repository.NewAnalysisRepository(db, logger),
		Metrics:   metrics.New(),
	}
	a.Export = export.NewService(a.Jobs, a.Analyses, logger)
	return a, nil
}

func (a *App) Close() { a.DB.Close() }

// NewProcessor builds the render, extraction and validation chain.
func (a *App) NewProcessor() (*core.Processor, error) {
	cfg := a.Config
	model, err := openai.NewClient(openai.Config{
		APIKey:  cfg.LLM.APIKey,
		BaseURL: cfg.LLM.BaseURL,
		Model:   cfg.LLM.Model,
	}, a.Logger)
	if err != nil {
		return nil, fmt.Errorf("openai client: %w", err)
	}
	validator, err := validate.NewValidator()
	if err != nil {
		return nil, err
	}

	renderer := render.NewRenderer(render.Config{
		Pdftoppm:  cfg.Render.Pdftoppm,
		Tesseract: cfg.Render.Tesseract,
		DPI:       cfg.Render.DPI,
		MaxPages:  cfg.Render.MaxPages,
	}, a.Logger)
	extractor := llm.NewClient(model, llm.ClientConfig{
		PassTimeout: cfg.LLM.PassTimeout,
		MaxTokens:   cfg.LLM.MaxTokens,
		Temperature: cfg.LLM.Temperature,
	}, a.Logger)

	return core.NewProcessor(core.Config{
		WorkspaceDir:     cfg.Worker.WorkspaceDir,
		MaxFileSizeBytes: int64(cfg.Render.MaxFileSizeMB) << 20,
		FallbackPages:    cfg.Worker.FallbackPages,
		OCRFallback:      cfg.Render.OCRFallback,
	}, core.Deps{
		Store:     a.Store,
		Renderer:  renderer,
		Extractor: extractor,
		Validator: validator,
		Jobs:      a.Jobs,
		Artifacts: a.Artifacts,
		Analyses:  a.Analyses,
		Metrics:   a.Metrics,
	}, a.Logger), nil
}

func (a *App) NewEnqueuer() *core.Enqueuer {
	return core.NewEnqueuer(a.Store, a.Jobs, int64(a.Config.Render.MaxFileSizeMB)<<20, a.Logger)
}

func (a *App) NewHTTPServer() *server.HTTPServer {
	return server.NewHTTPServer(server.HTTPDeps{
		Jobs:      a.Jobs,
		Artifacts: a.Artifacts,
		Analyses:  a.Analyses,
		Export:    a.Export,
		Metrics:   a.Metrics,
		Checks: map[string]server.Check{
			"db":      func(ctx context.Context) error { return a.DB.HealthCheck(ctx, healthTimeout) },
			"storage": a.Store.HealthCheck,
		},
	}, a.Logger)
}
