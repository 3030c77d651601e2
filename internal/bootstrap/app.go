// Package bootstrap assembles the application from configuration. All
// wiring lives here so components stay free of globals.
package bootstrap

import (
	"context"
	"fmt"

	"github.com/gin-gonic/gin"

	"boletin-backend/internal/analysis"
	"boletin-backend/internal/engine"
	"boletin-backend/internal/llm/gemini"
	"boletin-backend/internal/shared/config"
	"boletin-backend/internal/shared/server"
	"boletin-backend/internal/source"
	"boletin-backend/internal/store"
)

// App holds the assembled application.
type App struct {
	Cfg    config.Config
	Store  *store.Store
	Router *gin.Engine
}

// Build wires the store, the generative client, the analysis engine and
// the HTTP layer from configuration.
func Build(ctx context.Context, cfg config.Config) (*App, error) {
	st, err := store.New(ctx, store.Config{
		URI:        cfg.MongoURI,
		Database:   cfg.MongoDatabase,
		Collection: cfg.MongoCollection,
	})
	if err != nil {
		return nil, fmt.Errorf("bootstrap store: %w", err)
	}

	llmClient, err := gemini.NewClient(cfg.GeminiAPIKey, cfg.LLMModel)
	if err != nil {
		_ = st.Close(context.Background())
		return nil, fmt.Errorf("bootstrap llm client: %w", err)
	}

	eng := &engine.Engine{
		LLM:             llmClient,
		Source:          source.NewBulletinClient(cfg.BulletinBaseURL),
		AnalyzeAttempts: cfg.AnalyzeAttempts,
		OpinionAttempts: cfg.OpinionAttempts,
	}

	svc := &analysis.Service{
		Store:           st,
		Engine:          eng,
		AnalysisVersion: cfg.AnalysisVersion,
		Model:           cfg.LLMModel,
		SourceReference: cfg.BulletinBaseURL + "/seccion/primera",
	}
	handler := analysis.NewHandler(svc, st, cfg.RequestTimeout)

	return &App{
		Cfg:    cfg,
		Store:  st,
		Router: server.NewRouter(cfg, handler, st),
	}, nil
}

// Close releases resources held by the application.
func (a *App) Close(ctx context.Context) error {
	return a.Store.Close(ctx)
}
