// Package pipeline runs a statement PDF through rendering, extraction and
// reranking, and builds the structured result.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/joseph-ayodele/statement-parser/internal/bank"
	"github.com/joseph-ayodele/statement-parser/internal/common"
	"github.com/joseph-ayodele/statement-parser/internal/entity"
	"github.com/joseph-ayodele/statement-parser/internal/extract"
	"github.com/joseph-ayodele/statement-parser/internal/layout"
	"github.com/joseph-ayodele/statement-parser/internal/metrics"
	"github.com/joseph-ayodele/statement-parser/internal/postprocess"
	"github.com/joseph-ayodele/statement-parser/internal/semantic"
	"github.com/joseph-ayodele/statement-parser/internal/textnorm"
)

const tracerName = "github.com/joseph-ayodele/statement-parser/internal/pipeline"

// Renderer turns a PDF file into pages.
type Renderer interface {
	Render(ctx context.Context, path string) ([]entity.Page, error)
}

// Trace carries the intermediate products of one run, for debugging.
type Trace struct {
	Pages      []entity.Page                       `json:"pages"`
	Blocks     []entity.TextBlock                  `json:"blocks"`
	BankKey    string                              `json:"bank_key"`
	Candidates map[entity.Field][]entity.Candidate `json:"candidates"`
	Choices    map[entity.Field]semantic.Choice    `json:"choices"`
	Timings    map[string]time.Duration            `json:"timings"`
}

// Processor is built once and shared; it holds no per-document state.
type Processor struct {
	logger     *slog.Logger
	renderer   Renderer
	identifier *bank.Identifier
	detector   *bank.Detector
	extractor  *extract.Extractor
	reranker   *semantic.Reranker
	metrics    *metrics.Metrics
	tracer     trace.Tracer
	scratchDir string
}

// Option customizes a Processor.
type Option func(*Processor)

func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Processor) { p.metrics = m }
}

// WithScratchDir sets where ProcessBytes stages uploads.
func WithScratchDir(dir string) Option {
	return func(p *Processor) { p.scratchDir = dir }
}

func WithTracer(t trace.Tracer) Option {
	return func(p *Processor) {
		if t != nil {
			p.tracer = t
		}
	}
}

func WithDetector(d *bank.Detector) Option {
	return func(p *Processor) {
		if d != nil {
			p.detector = d
		}
	}
}

func NewProcessor(logger *slog.Logger, renderer Renderer, identifier *bank.Identifier, reranker *semantic.Reranker, opts ...Option) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	if identifier == nil {
		identifier = bank.NewIdentifier(nil)
	}
	if reranker == nil {
		reranker = semantic.NewReranker(nil, logger)
	}
	p := &Processor{
		logger:     logger,
		renderer:   renderer,
		identifier: identifier,
		detector:   bank.NewDetector(nil),
		extractor:  extract.New(nil),
		reranker:   reranker,
		tracer:     otel.Tracer(tracerName),
		scratchDir: os.TempDir(),
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Process parses the PDF at path.
func (p *Processor) Process(ctx context.Context, path string) (entity.StatementResult, error) {
	res, _, err := p.run(ctx, path, false)
	return res, err
}

// ProcessDebug is Process plus the intermediate products.
func (p *Processor) ProcessDebug(ctx context.Context, path string) (entity.StatementResult, *Trace, error) {
	return p.run(ctx, path, true)
}

// ProcessBytes stages data in a scratch file, processes it and removes the
// file again on every path.
func (p *Processor) ProcessBytes(ctx context.Context, name string, data []byte) (entity.StatementResult, error) {
	if len(data) == 0 {
		return entity.StatementResult{}, common.NewAppError(common.CodeInvalidInput, "empty document", common.ErrInvalidInput)
	}
	ext := filepath.Ext(name)
	if ext == "" {
		ext = ".pdf"
	}
	f, err := os.CreateTemp(p.scratchDir, "upload-*"+ext)
	if err != nil {
		return entity.StatementResult{}, fmt.Errorf("create scratch file: %w", err)
	}
	tmp := f.Name()
	defer func() {
		if err := os.Remove(tmp); err != nil && !errors.Is(err, os.ErrNotExist) {
			p.logger.Warn("pipeline.scratch.remove_failed", "path", tmp, "error", err)
		}
	}()
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return entity.StatementResult{}, fmt.Errorf("write scratch file: %w", err)
	}
	if err := f.Close(); err != nil {
		return entity.StatementResult{}, fmt.Errorf("close scratch file: %w", err)
	}
	return p.Process(ctx, tmp)
}

func (p *Processor) run(ctx context.Context, path string, debug bool) (res entity.StatementResult, tr *Trace, err error) {
	ctx, span := p.tracer.Start(ctx, "pipeline.Process", trace.WithAttributes(attribute.String("document.path", path)))
	start := time.Now()
	logger := common.LoggerFromContext(ctx, p.logger)

	defer func() {
		if rec := recover(); rec != nil {
			logger.Error("pipeline.panic", "path", path, "panic", rec)
			err = common.NewAppError(common.CodeInternal, "document processing failed", fmt.Errorf("%w: panic: %v", common.ErrInternal, rec))
			res, tr = entity.StatementResult{}, nil
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			logger.Error("pipeline.process.failed", "path", path, "error", err, "elapsed_ms", time.Since(start).Milliseconds())
		}
		p.metrics.Document(err == nil)
		span.End()
	}()

	if p.renderer == nil {
		return entity.StatementResult{}, nil, common.NewAppError(common.CodeInternal, "no renderer configured", common.ErrInternal)
	}
	timings := map[string]time.Duration{}
	stage := func(name string, t0 time.Time) {
		d := time.Since(t0)
		timings[name] = d
		p.metrics.Stage(name, d)
	}

	t0 := time.Now()
	pages, err := p.renderer.Render(ctx, path)
	stage("render", t0)
	if err != nil {
		return entity.StatementResult{}, nil, err
	}
	for _, pg := range pages {
		p.metrics.Page(pg.Method)
	}

	t0 = time.Now()
	blocks := layout.Blocks(pages)
	fullText := layout.FullText(blocks)
	bankKey := p.identifier.Identify(fullText)
	candidates := p.extractor.Extract(blocks)
	stage("extract", t0)

	t0 = time.Now()
	choices := make(map[entity.Field]semantic.Choice, len(entity.Fields))
	fields := make(map[entity.Field]entity.FieldResult, len(entity.Fields))
	for _, f := range entity.Fields {
		choice, err := p.reranker.Rerank(ctx, f, candidates[f], fullText)
		if err != nil {
			return entity.StatementResult{}, nil, fmt.Errorf("rerank %s: %w", f, err)
		}
		choices[f] = choice
		fields[f] = entity.FieldResult{
			Value:      textnorm.Normalize(choice.Value),
			Confidence: Confidence(choice.Score),
			PageIndex:  choice.PageIndex,
			Snippet:    textnorm.Normalize(choice.Snippet),
		}
	}
	stage("rerank", t0)

	postprocess.Normalize(fields)
	for f, fr := range fields {
		if fr.Value == "" {
			fr.Value = fr.Snippet
			fields[f] = fr
		}
		p.metrics.Field(string(f), fr.Confidence, choices[f].Search)
	}

	res = entity.StatementResult{
		Bank:    p.bankName(bankKey, fullText, fields),
		BankKey: bankKey,
		Fields:  fields,
	}
	span.SetAttributes(
		attribute.Int("document.pages", len(pages)),
		attribute.Int("document.blocks", len(blocks)),
		attribute.String("document.bank", res.Bank),
	)
	logger.Info("pipeline.process.ok",
		"path", path,
		"pages", len(pages),
		"blocks", len(blocks),
		"bank", res.Bank,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)

	if debug {
		tr = &Trace{
			Pages:      pages,
			Blocks:     blocks,
			BankKey:    bankKey,
			Candidates: candidates,
			Choices:    choices,
			Timings:    timings,
		}
	}
	return res, tr, nil
}

// bankName prefers the configured identifier. When it finds nothing the
// keyword detector searches the full text, then the field values and snippets.
func (p *Processor) bankName(key, fullText string, fields map[entity.Field]entity.FieldResult) string {
	if key != bank.Unknown {
		return p.identifier.DisplayName(key)
	}
	parts := make([]string, 0, 2*len(fields))
	for _, f := range entity.Fields {
		fr := fields[f]
		parts = append(parts, fr.Snippet, fr.Value)
	}
	return p.detector.DetectWithFallback(fullText, parts...)
}
