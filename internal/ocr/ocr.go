// Package ocr renders statement PDF pages to positioned words, falling back to
// rasterization and OCR for pages without a usable text layer.
package ocr

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/joseph-ayodele/statement-parser/internal/common"
	"github.com/joseph-ayodele/statement-parser/internal/entity"
)

type Config struct {
	Pdftoppm  string // binary name or absolute path; if empty -> "pdftoppm"
	Tesseract string // binary name or absolute path; if empty -> "tesseract"

	TesseractLang string // default "eng"
	TessdataDir   string
	DPI           int // rasterization DPI for scanned pages, default 200
	MinTextChars  int // pages with less trimmed native text are OCR'd, default 20
	MaxPages      int // 0 = no limit

	PSM int
	OEM int

	// Filter settings for scanned pages.
	BilateralDiameter   int     // default 9
	BilateralSigmaColor float64 // default 75
	BilateralSigmaSpace float64 // default 75
}

// Renderer turns PDF files into pages of positioned words.
type Renderer struct {
	cfg    Config
	runner Runner
	logger *slog.Logger
}

// Option customizes a Renderer.
type Option func(*Renderer)

// WithRunner replaces the external command runner.
func WithRunner(r Runner) Option {
	return func(rd *Renderer) {
		if r != nil {
			rd.runner = r
		}
	}
}

func NewRenderer(cfg Config, logger *slog.Logger, opts ...Option) *Renderer {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Pdftoppm == "" {
		cfg.Pdftoppm = "pdftoppm"
	}
	if cfg.Tesseract == "" {
		cfg.Tesseract = "tesseract"
	}
	if cfg.TesseractLang == "" {
		cfg.TesseractLang = "eng"
	}
	if cfg.DPI <= 0 {
		cfg.DPI = 200
	}
	if cfg.MinTextChars <= 0 {
		cfg.MinTextChars = 20
	}
	if cfg.BilateralDiameter <= 0 {
		cfg.BilateralDiameter = 9
	}
	if cfg.BilateralSigmaColor <= 0 {
		cfg.BilateralSigmaColor = 75
	}
	if cfg.BilateralSigmaSpace <= 0 {
		cfg.BilateralSigmaSpace = 75
	}
	r := &Renderer{cfg: cfg, runner: ExecRunner{Logger: logger}, logger: logger}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Render extracts every page of the PDF at path. A page whose native text is
// shorter than MinTextChars is rasterized and OCR'd instead. Any OCR failure
// fails the whole document.
func (r *Renderer) Render(ctx context.Context, path string) ([]entity.Page, error) {
	start := time.Now()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, common.NewAppError(common.CodeInvalidInput, "read pdf", err)
	}

	native, err := readNativePages(data)
	if err != nil {
		r.logger.Error("ocr.native.failed", "path", path, "error", err)
		return nil, common.NewAppError(common.CodeRender, "read pdf text layer", errors.Join(common.ErrRender, err))
	}
	if r.cfg.MaxPages > 0 && len(native) > r.cfg.MaxPages {
		native = native[:r.cfg.MaxPages]
	}

	pages := make([]entity.Page, 0, len(native))
	var scratch string
	defer func() {
		if scratch != "" {
			if err := os.RemoveAll(scratch); err != nil {
				r.logger.Warn("ocr.scratch.cleanup_failed", "dir", scratch, "error", err)
			}
		}
	}()

	for _, np := range native {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !r.needsOCR(np.Text) {
			pages = append(pages, np)
			continue
		}
		if scratch == "" {
			if scratch, err = os.MkdirTemp("", "sp-ocr-*"); err != nil {
				return nil, fmt.Errorf("ocr scratch dir: %w", err)
			}
		}
		r.logger.Debug("ocr.page.scanned", "page", np.Index, "native_chars", utf8.RuneCountInString(strings.TrimSpace(np.Text)))
		op, err := r.ocrPage(ctx, path, np, scratch)
		if err != nil {
			r.logger.Error("ocr.page.failed", "page", np.Index, "error", err)
			return nil, common.NewAppError(common.CodeOCR, fmt.Sprintf("ocr page %d", np.Index+1), errors.Join(common.ErrOCR, err))
		}
		pages = append(pages, op)
	}

	r.logger.Info("ocr.render.ok",
		"path", path,
		"pages", len(pages),
		"ocr_pages", countOCR(pages),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return pages, nil
}

func (r *Renderer) needsOCR(text string) bool {
	return utf8.RuneCountInString(strings.TrimSpace(text)) < r.cfg.MinTextChars
}

func countOCR(pages []entity.Page) int {
	n := 0
	for _, p := range pages {
		if p.Method == entity.MethodOCR {
			n++
		}
	}
	return n
}
