// Package render rasterizes plan PDFs into page images and pulls per-page text.
package render

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

var (
	ErrOpenDocument = errors.New("cannot open document")
	ErrNoPages      = errors.New("no pages rendered")
)

type Config struct {
	Pdftoppm      string // binary name or absolute path; if empty -> "pdftoppm"
	Tesseract     string // binary name or absolute path; if empty -> "tesseract"
	TesseractLang string // default "eng"
	DPI           int    // default 300
	MaxPages      int    // 0 = no limit
}

// Page is one rendered page inside a job workspace.
type Page struct {
	Index     int
	ImagePath string
	Text      string
}

// Result is the outcome of Render. Warnings are non-fatal.
type Result struct {
	Pages      []Page
	TotalPages int
	Truncated  bool
	Warnings   []string
}

// Renderer drives pdftoppm for images and an Inspector for text and metadata.
type Renderer struct {
	cfg       Config
	runner    Runner
	inspector Inspector
	logger    *slog.Logger
}

type Option func(*Renderer)

// WithRunner swaps the command runner (tests stub pdftoppm/tesseract this way).
func WithRunner(r Runner) Option {
	return func(rr *Renderer) {
		if r != nil {
			rr.runner = r
		}
	}
}

// WithInspector swaps the PDF inspector.
func WithInspector(i Inspector) Option {
	return func(rr *Renderer) {
		if i != nil {
			rr.inspector = i
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
		cfg.DPI = 300
	}
	r := &Renderer{
		cfg:       cfg,
		runner:    execRunner{logger: logger},
		inspector: PDFInspector{},
		logger:    logger,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

func (r *Renderer) DPI() int { return r.cfg.DPI }

// capPages applies MaxPages to a document page count.
func (r *Renderer) capPages(total int) (int, bool) {
	if r.cfg.MaxPages > 0 && total > r.cfg.MaxPages {
		return r.cfg.MaxPages, true
	}
	return total, false
}

// Render rasterizes pages 0..min(N, MaxPages)-1 into outDir as page_%03d.png.
// A page that fails to render is skipped; an unreadable document or zero pages is an error.
func (r *Renderer) Render(ctx context.Context, pdfPath, outDir string) (Result, error) {
	start := time.Now()

	meta, err := r.inspector.Inspect(ctx, pdfPath)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrOpenDocument, err)
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return Result{}, fmt.Errorf("create page dir: %w", err)
	}

	res := Result{TotalPages: meta.PageCount}
	n, truncated := r.capPages(meta.PageCount)
	if truncated {
		res.Truncated = true
		w := fmt.Sprintf("document has %d pages, rendering first %d", meta.PageCount, n)
		res.Warnings = append(res.Warnings, w)
		r.logger.Warn("render.truncated", "path", pdfPath, "total_pages", meta.PageCount, "max_pages", n)
	}

	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		img, err := r.renderPage(ctx, pdfPath, outDir, i)
		if err != nil {
			res.Warnings = append(res.Warnings, fmt.Sprintf("page %d: %v", i, err))
			r.logger.Warn("render.page.failed", "path", pdfPath, "page", i, "error", err)
			continue
		}
		res.Pages = append(res.Pages, Page{Index: i, ImagePath: img})
	}

	if len(res.Pages) == 0 {
		return res, ErrNoPages
	}

	r.logger.Info("render.ok",
		"path", pdfPath,
		"pages", len(res.Pages),
		"total_pages", meta.PageCount,
		"dpi", r.cfg.DPI,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return res, nil
}

// renderPage runs: pdftoppm -r DPI -png -f P -l P -singlefile <in.pdf> <out/page_NNN>
func (r *Renderer) renderPage(ctx context.Context, pdfPath, outDir string, index int) (string, error) {
	prefix := filepath.Join(outDir, fmt.Sprintf("page_%03d", index))
	pageNr := strconv.Itoa(index + 1)
	_, errb, err := r.runner.Run(ctx, r.cfg.Pdftoppm,
		"-r", strconv.Itoa(r.cfg.DPI), "-png",
		"-f", pageNr, "-l", pageNr, "-singlefile",
		pdfPath, prefix)
	if err != nil {
		return "", fmt.Errorf("pdftoppm: %w: %s", err, truncate(strings.TrimSpace(string(errb)), 512))
	}
	img := prefix + ".png"
	st, err := os.Stat(img)
	if err != nil {
		return "", fmt.Errorf("pdftoppm produced no image: %w", err)
	}
	if st.Size() == 0 {
		return "", fmt.Errorf("pdftoppm produced an empty image")
	}
	return img, nil
}

// PageTexts returns raw text per page, capped like Render. Pages without text are "".
func (r *Renderer) PageTexts(ctx context.Context, pdfPath string) ([]string, error) {
	texts, err := r.inspector.PageTexts(ctx, pdfPath, r.cfg.MaxPages)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrOpenDocument, err)
	}
	return texts, nil
}

// Metadata probes page count and document info.
func (r *Renderer) Metadata(ctx context.Context, pdfPath string) (Metadata, error) {
	m, err := r.inspector.Inspect(ctx, pdfPath)
	if err != nil {
		return Metadata{}, fmt.Errorf("%w: %v", ErrOpenDocument, err)
	}
	return m, nil
}

// OCRImage runs tesseract on a rendered page, for pages with no text layer.
func (r *Renderer) OCRImage(ctx context.Context, imagePath string) (string, error) {
	// tesseract <file> stdout -l <lang>
	out, errb, err := r.runner.Run(ctx, r.cfg.Tesseract, imagePath, "stdout", "-l", r.cfg.TesseractLang)
	if err != nil {
		return "", fmt.Errorf("tesseract: %w: %s", err, truncate(strings.TrimSpace(string(errb)), 512))
	}
	return strings.TrimSpace(string(out)), nil
}
