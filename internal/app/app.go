// Package app wires configuration into the parsing pipeline and its stores.
package app

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/joseph-ayodele/statement-parser/internal/bank"
	"github.com/joseph-ayodele/statement-parser/internal/common"
	"github.com/joseph-ayodele/statement-parser/internal/history"
	"github.com/joseph-ayodele/statement-parser/internal/metrics"
	"github.com/joseph-ayodele/statement-parser/internal/ocr"
	"github.com/joseph-ayodele/statement-parser/internal/pipeline"
	"github.com/joseph-ayodele/statement-parser/internal/semantic"
)

// NewRenderer builds the page renderer from the OCR settings.
func NewRenderer(cfg common.OCRConfig, logger *slog.Logger) *ocr.Renderer {
	return ocr.NewRenderer(ocr.Config{
		Pdftoppm:      cfg.Pdftoppm,
		Tesseract:     cfg.Tesseract,
		TesseractLang: cfg.TesseractLang,
		TessdataDir:   cfg.TessdataDir,
		DPI:           cfg.DPI,
		MinTextChars:  cfg.MinTextChars,
		MaxPages:      cfg.MaxPages,
		PSM:           cfg.PSM,
		OEM:           cfg.OEM,
	}, logger)
}

// NewEmbedder returns the remote embedder when a URL is configured and the
// local hashing embedder otherwise.
func NewEmbedder(cfg common.EmbeddingsConfig, logger *slog.Logger) semantic.Embedder {
	if cfg.URL == "" {
		h := semantic.NewHashingEmbedder(cfg.Dims)
		logger.Info("app.embedder.hashing", "dims", h.Dims())
		return h
	}
	return semantic.NewHTTPEmbedder(semantic.HTTPConfig{
		URL:     cfg.URL,
		Model:   cfg.Model,
		APIKey:  cfg.APIKey,
		Timeout: cfg.Timeout,
	}, nil, logger)
}

// LoadBanks reads the bank profiles. A missing, unreadable or malformed file
// is a configuration error and must stop startup.
func LoadBanks(path string, logger *slog.Logger) (*bank.Config, error) {
	cfg, err := bank.LoadConfig(path)
	if err != nil {
		return nil, common.NewAppError(common.CodeConfig, "invalid bank configuration", errors.Join(common.ErrConfig, err))
	}
	logger.Info("app.banks.loaded", "path", path, "banks", len(cfg.Banks))
	return cfg, nil
}

// NewProcessor builds the shared pipeline.
func NewProcessor(cfg *common.Config, logger *slog.Logger, m *metrics.Metrics) (*pipeline.Processor, error) {
	banks, err := LoadBanks(cfg.Banks.Path, logger)
	if err != nil {
		return nil, err
	}
	return pipeline.NewProcessor(
		logger,
		NewRenderer(cfg.OCR, logger),
		bank.NewIdentifier(banks),
		semantic.NewReranker(NewEmbedder(cfg.Embeddings, logger), logger),
		pipeline.WithMetrics(m),
		pipeline.WithScratchDir(cfg.Server.ScratchDir),
	), nil
}

// OpenHistory opens the result store and its index. It returns nil when no
// DSN is configured.
func OpenHistory(ctx context.Context, cfg common.HistoryConfig, logger *slog.Logger) (*history.Service, error) {
	if cfg.DSN == "" {
		return nil, nil
	}
	store, err := history.Open(ctx, history.Config{
		Driver:          cfg.Driver,
		DSN:             cfg.DSN,
		MaxConns:        10,
		MinConns:        1,
		MaxConnLifetime: 30 * time.Minute,
		MaxConnIdleTime: 5 * time.Minute,
		DialTimeout:     3 * time.Second,
	}, logger)
	if err != nil {
		return nil, err
	}
	svc, err := history.NewService(ctx, store, logger)
	if err != nil {
		store.Close()
		return nil, err
	}
	return svc, nil
}
