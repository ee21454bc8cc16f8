package main

import (
	"context"
	"errors"
	"io/fs"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/prgleibe-cmyk/IdentificaPix-sub002/internal/extract"
	"github.com/prgleibe-cmyk/IdentificaPix-sub002/internal/fetcher"
	"github.com/prgleibe-cmyk/IdentificaPix-sub002/internal/ocr"
	"github.com/prgleibe-cmyk/IdentificaPix-sub002/internal/pipeline"
	"github.com/prgleibe-cmyk/IdentificaPix-sub002/internal/resilience"
	"github.com/prgleibe-cmyk/IdentificaPix-sub002/internal/store"
	"github.com/prgleibe-cmyk/IdentificaPix-sub002/internal/strategy"
	anthropicpkg "github.com/prgleibe-cmyk/IdentificaPix-sub002/pkg/anthropic"
)

// pipelineEnv holds the store, loader and pipeline needed by the import,
// reconcile and serve commands.
type pipelineEnv struct {
	Store    store.Store
	Loader   *fetcher.Loader
	Pipeline *pipeline.Pipeline
}

// Close releases resources held by the pipeline environment.
func (pe *pipelineEnv) Close() {
	if pe.Store != nil {
		_ = pe.Store.Close()
	}
}

// initPipeline validates config for mode, opens and migrates the store and
// wires the pipeline collaborators. Callers should defer env.Close().
func initPipeline(ctx context.Context, mode string) (*pipelineEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}

	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	models, err := initModels(st)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	pdf, err := ocr.NewExtractor(cfg.OCR)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	// BLOCK extraction needs the AI collaborator; without a key BLOCK models
	// degrade to warnings.
	var blocks extract.BlockExtractor
	if cfg.Anthropic.Key != "" {
		blocks = extract.NewAIExtractor(anthropicpkg.NewClient(cfg.Anthropic.Key), extract.AIConfig{
			Model:             cfg.Anthropic.Model,
			MaxTokens:         cfg.Anthropic.MaxTokens,
			RequestsPerMinute: cfg.Anthropic.RequestsPerMinute,
			Retry:             resilience.RetryConfig{MaxAttempts: cfg.Anthropic.MaxAttempts},
		})
	} else {
		zap.L().Debug("IDENTIFICAPIX_ANTHROPIC_KEY not set, BLOCK extraction disabled")
	}

	return &pipelineEnv{
		Store:    st,
		Loader:   fetcher.NewLoader(pdf),
		Pipeline: pipeline.New(cfg, st, models, blocks),
	}, nil
}

// initModels prefers the YAML models file and falls back to the models
// stored in the database.
func initModels(st store.Store) (strategy.ModelStore, error) {
	if cfg.Ingest.ModelsFile == "" {
		return st, nil
	}
	fileStore, err := strategy.LoadFile(cfg.Ingest.ModelsFile)
	switch {
	case err == nil:
		zap.L().Info("learned models loaded from file", zap.String("path", cfg.Ingest.ModelsFile))
		return fileStore, nil
	case errors.Is(err, fs.ErrNotExist):
		zap.L().Debug("models file not found, using database models", zap.String("path", cfg.Ingest.ModelsFile))
		return st, nil
	default:
		return nil, err
	}
}
