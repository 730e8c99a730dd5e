package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/plan-intel/constants"
	"github.com/joseph-ayodele/plan-intel/internal/common"
	"github.com/joseph-ayodele/plan-intel/internal/entity"
	"github.com/joseph-ayodele/plan-intel/internal/llm"
	"github.com/joseph-ayodele/plan-intel/internal/metrics"
	"github.com/joseph-ayodele/plan-intel/internal/render"
	"github.com/joseph-ayodele/plan-intel/internal/repository"
	"github.com/joseph-ayodele/plan-intel/internal/selector"
	"github.com/joseph-ayodele/plan-intel/internal/storage"
	"github.com/joseph-ayodele/plan-intel/internal/validate"
)

var (
	ErrNoPagesSelected = errors.New("no pages selected for analysis")
	ErrFileTooLarge    = errors.New("file exceeds size limit")
	ErrJobNotQueued    = errors.New("job is not queued")
)

const (
	statusWriteTimeout = 10 * time.Second
	pageTextFile       = "page_text.json"
)

// Renderer is the part of render.Renderer the processor needs.
type Renderer interface {
	Render(ctx context.Context, pdfPath, outDir string) (render.Result, error)
	PageTexts(ctx context.Context, pdfPath string) ([]string, error)
	Metadata(ctx context.Context, pdfPath string) (render.Metadata, error)
	OCRImage(ctx context.Context, imagePath string) (string, error)
	DPI() int
}

type Config struct {
	WorkspaceDir     string // parent of per-job workspaces; "" = os.TempDir()
	MaxFileSizeBytes int64  // 0 = unlimited
	FallbackPages    int
	OCRFallback      bool // tesseract pages that have no text layer
}

// Processor runs one claimed job through render, select, extract, validate and persist.
type Processor struct {
	cfg       Config
	logger    *slog.Logger
	store     storage.ObjectStore
	renderer  Renderer
	extractor llm.Extractor
	validator *validate.Validator
	jobs      repository.JobRepository
	artifacts repository.ArtifactRepository
	analyses  repository.AnalysisRepository
	metrics   *metrics.Metrics
}

type Deps struct {
	Store     storage.ObjectStore
	Renderer  Renderer
	Extractor llm.Extractor
	Validator *validate.Validator
	Jobs      repository.JobRepository
	Artifacts repository.ArtifactRepository
	Analyses  repository.AnalysisRepository
	Metrics   *metrics.Metrics // optional
}

func NewProcessor(cfg Config, deps Deps, logger *slog.Logger) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	if deps.Validator == nil {
		deps.Validator = validate.MustNewValidator()
	}
	return &Processor{
		cfg:       cfg,
		logger:    logger,
		store:     deps.Store,
		renderer:  deps.Renderer,
		extractor: deps.Extractor,
		validator: deps.Validator,
		jobs:      deps.Jobs,
		artifacts: deps.Artifacts,
		analyses:  deps.Analyses,
		metrics:   deps.Metrics,
	}
}

// ProcessByID claims one specific queued job and processes it.
func (p *Processor) ProcessByID(ctx context.Context, id uuid.UUID) error {
	ok, err := p.jobs.Claim(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrJobNotQueued, id)
	}
	job, err := p.jobs.Get(ctx, id)
	if err != nil {
		return err
	}
	return p.Process(ctx, job)
}

// Process runs a job that is already in processing. Any error marks the job failed
// with the error text and is returned to the caller.
func (p *Processor) Process(ctx context.Context, job *entity.PlanJob) error {
	start := time.Now()
	log := p.logger.With("job_id", job.ID)
	ctx = common.WithLogger(common.WithJobID(ctx, job.ID.String()), log)

	log.Info("processor.job.start", "file_path", job.FilePath, "file_type", job.FileType)

	status, err := p.run(ctx, job, log)
	if err != nil {
		msg := err.Error()
		log.Error("processor.job.failed",
			"error", err,
			"code", common.ErrorCode(err),
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		if serr := p.finish(ctx, job.ID, constants.JobStatusFailed, &msg); serr != nil {
			log.Error("processor.status.error", "status", constants.JobStatusFailed, "error", serr)
		}
		p.metrics.ObserveJob(string(constants.JobStatusFailed), time.Since(start))
		return err
	}

	if err := p.finish(ctx, job.ID, status, nil); err != nil {
		log.Error("processor.status.error", "status", status, "error", err)
		p.metrics.ObserveJob(string(constants.JobStatusFailed), time.Since(start))
		return err
	}
	p.metrics.ObserveJob(string(status), time.Since(start))
	log.Info("processor.job.done", "status", status, "elapsed_ms", time.Since(start).Milliseconds())
	return nil
}

// finish writes the final status even when ctx was cancelled or timed out.
func (p *Processor) finish(ctx context.Context, id uuid.UUID, status constants.JobStatus, errMsg *string) error {
	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), statusWriteTimeout)
	defer cancel()
	ok, err := p.jobs.UpdateStatus(sctx, id, status, errMsg)
	if err != nil {
		return common.NewAppError(common.CodePersist, "update job status", err)
	}
	if !ok {
		return common.NewAppError(common.CodePersist, "update job status", fmt.Errorf("%w: job %s", common.ErrNotFound, id))
	}
	return nil
}

func (p *Processor) run(ctx context.Context, job *entity.PlanJob, log *slog.Logger) (constants.JobStatus, error) {
	workDir, err := os.MkdirTemp(p.cfg.WorkspaceDir, fmt.Sprintf("plan_%s_", job.ID))
	if err != nil {
		return "", fmt.Errorf("create workspace: %w", err)
	}
	defer func() {
		if err := os.RemoveAll(workDir); err != nil {
			log.Warn("processor.workspace.cleanup_failed", "dir", workDir, "error", err)
		}
	}()

	src, err := p.download(ctx, job, workDir)
	if err != nil {
		return "", err
	}

	var analysis *entity.Analysis
	switch job.FileType {
	case constants.DocumentPDF:
		analysis, err = p.processPDF(ctx, job, src, workDir, log)
	case constants.DocumentImage:
		analysis, err = p.processImage(ctx, job, src, log)
	default:
		err = fmt.Errorf("%w: file type %q", common.ErrInvalidInput, job.FileType)
	}
	if err != nil {
		return "", err
	}

	if err := p.analyses.Upsert(ctx, analysis); err != nil {
		return "", common.NewAppError(common.CodePersist, "save analysis", err)
	}
	if analysis.NeedsReview {
		return constants.JobStatusNeedsReview, nil
	}
	return constants.JobStatusCompleted, nil
}

// download fetches the source into the workspace as input_file.<ext>.
func (p *Processor) download(ctx context.Context, job *entity.PlanJob, workDir string) (string, error) {
	data, err := p.store.Download(ctx, job.FilePath)
	if err != nil {
		return "", common.NewAppError(common.CodeDownload, "download source", err)
	}
	if limit := p.cfg.MaxFileSizeBytes; limit > 0 && int64(len(data)) > limit {
		return "", common.NewAppError(common.CodeDownload, "download source",
			fmt.Errorf("%w: %d bytes, limit %d", ErrFileTooLarge, len(data), limit))
	}

	ext := ".pdf"
	if job.FileType == constants.DocumentImage {
		ext = "." + constants.NormalizeExt(path.Ext(job.FilePath))
		if ext == "." {
			ext = ".png"
		}
	}
	src := filepath.Join(workDir, "input_file"+ext)
	if err := os.WriteFile(src, data, 0o600); err != nil {
		return "", fmt.Errorf("write source: %w", err)
	}
	return src, nil
}

type renderedPage struct {
	imagePath  string
	artifactID uuid.UUID
}

func (p *Processor) processPDF(ctx context.Context, job *entity.PlanJob, src, workDir string, log *slog.Logger) (*entity.Analysis, error) {
	if meta, err := p.renderer.Metadata(ctx, src); err == nil {
		log.Info("processor.pdf.metadata",
			"page_count", meta.PageCount,
			"title", meta.Title,
			"author", meta.Author,
			"creator", meta.Creator,
		)
	}

	res, err := p.renderer.Render(ctx, src, filepath.Join(workDir, "pages"))
	if err != nil {
		return nil, common.NewAppError(common.CodeRender, "render pages", err)
	}
	for _, w := range res.Warnings {
		log.Warn("processor.render.warning", "warning", w)
	}
	p.metrics.Rendered(len(res.Pages))
	log.Info("processor.render.ok", "pages", len(res.Pages), "total_pages", res.TotalPages, "truncated", res.Truncated)

	pages := make(map[int]renderedPage, len(res.Pages))
	for _, pg := range res.Pages {
		a, err := p.uploadFile(ctx, job.ID, pg.ImagePath, "image/png", pg.Index, map[string]any{"dpi": p.renderer.DPI()})
		if err != nil {
			return nil, err
		}
		pages[pg.Index] = renderedPage{imagePath: pg.ImagePath, artifactID: a.ID}
	}

	texts := p.pageTexts(ctx, src, res.Pages, log)
	if err := p.uploadPageTexts(ctx, job.ID, texts); err != nil {
		return nil, err
	}

	cat := selector.Categorize(texts)
	selection := selector.EffectiveSelection(cat, len(texts), p.cfg.FallbackPages)
	if selector.ShouldProcessAllPages(cat) {
		log.Info("processor.select.fallback", "pages", len(selection))
	}

	var (
		images   []llm.Image
		analyzed []int
	)
	for _, idx := range selection {
		pg, ok := pages[idx]
		if !ok {
			continue
		}
		img, err := llm.ImageFromFile(pg.imagePath, idx, pg.artifactID.String())
		if err != nil {
			return nil, err
		}
		images = append(images, img)
		analyzed = append(analyzed, idx)
	}
	if len(images) == 0 {
		return nil, ErrNoPagesSelected
	}
	p.metrics.Selected(len(images))
	log.Info("processor.select.ok",
		"schedule", cat.Schedule,
		"legend", cat.Legend,
		"floor_plan", cat.FloorPlan,
		"analyzed", analyzed,
	)

	hint := &llm.PageHint{HasSchedules: len(cat.Schedule) > 0, HasLegend: len(cat.Legend) > 0}
	result, err := p.extract(ctx, images, hint)
	if err != nil {
		return nil, err
	}

	return p.newAnalysis(job.ID, result, entity.EvidenceSummary{
		AnalyzedPages:      analyzed,
		TotalPages:         len(res.Pages),
		DocumentPages:      res.TotalPages,
		PageCategorization: &cat,
	}), nil
}

func (p *Processor) processImage(ctx context.Context, job *entity.PlanJob, src string, log *slog.Logger) (*entity.Analysis, error) {
	name := path.Base(job.FilePath)
	data, err := os.ReadFile(src)
	if err != nil {
		return nil, fmt.Errorf("read source: %w", err)
	}
	a, err := p.upload(ctx, job.ID, name, data, constants.ContentTypeForExt(path.Ext(name)), 0,
		map[string]any{"source": "direct_upload"})
	if err != nil {
		return nil, err
	}

	img, err := llm.ImageFromFile(src, 0, a.ID.String())
	if err != nil {
		return nil, err
	}
	log.Info("processor.image.ok", "artifact_id", a.ID, "bytes", len(data))

	result, err := p.extract(ctx, []llm.Image{img}, nil)
	if err != nil {
		return nil, err
	}
	return p.newAnalysis(job.ID, result, entity.EvidenceSummary{AnalyzedPages: []int{0}, TotalPages: 1}), nil
}

// pageTexts aligns page text with rendered page indices. A missing text layer is not fatal;
// with OCRFallback, blank pages are read back from their images.
func (p *Processor) pageTexts(ctx context.Context, src string, pages []render.Page, log *slog.Logger) []string {
	raw, err := p.renderer.PageTexts(ctx, src)
	if err != nil {
		log.Warn("processor.text.failed", "error", err)
	}
	n := len(raw)
	for _, pg := range pages {
		n = max(n, pg.Index+1)
	}
	texts := make([]string, n)
	copy(texts, raw)

	if !p.cfg.OCRFallback {
		return texts
	}
	for _, pg := range pages {
		if strings.TrimSpace(texts[pg.Index]) != "" {
			continue
		}
		t, err := p.renderer.OCRImage(ctx, pg.ImagePath)
		if err != nil {
			log.Warn("processor.ocr.failed", "page", pg.Index, "error", err)
			continue
		}
		texts[pg.Index] = t
	}
	return texts
}

type pageText struct {
	PageNo int    `json:"page_no"`
	Text   string `json:"text"`
}

func (p *Processor) uploadPageTexts(ctx context.Context, jobID uuid.UUID, texts []string) error {
	out := make([]pageText, len(texts))
	for i, t := range texts {
		out[i] = pageText{PageNo: i, Text: t}
	}
	b, err := json.Marshal(out)
	if err != nil {
		return fmt.Errorf("encode page text: %w", err)
	}
	key := storage.ArtifactPath(jobID, constants.ArtifactOCRText, pageTextFile)
	if err := p.store.Upload(ctx, key, b, "application/json"); err != nil {
		return common.NewAppError(common.CodeUpload, "upload page text", err)
	}
	err = p.artifacts.Create(ctx, &entity.Artifact{
		JobID:        jobID,
		Kind:         constants.ArtifactOCRText,
		ArtifactPath: key,
		Meta:         json.RawMessage(fmt.Sprintf(`{"pages":%d}`, len(texts))),
	})
	if err != nil {
		return common.NewAppError(common.CodePersist, "record artifact", err)
	}
	return nil
}

func (p *Processor) uploadFile(ctx context.Context, jobID uuid.UUID, file, contentType string, pageNo int, meta map[string]any) (*entity.Artifact, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", filepath.Base(file), err)
	}
	return p.upload(ctx, jobID, filepath.Base(file), data, contentType, pageNo, meta)
}

// upload stores a page image under artifacts/{job}/page_image/ and records it.
func (p *Processor) upload(ctx context.Context, jobID uuid.UUID, name string, data []byte, contentType string, pageNo int, meta map[string]any) (*entity.Artifact, error) {
	key := storage.ArtifactPath(jobID, constants.ArtifactPageImage, name)
	if err := p.store.Upload(ctx, key, data, contentType); err != nil {
		return nil, common.NewAppError(common.CodeUpload, "upload page image", err)
	}
	m, err := json.Marshal(meta)
	if err != nil {
		return nil, fmt.Errorf("encode artifact meta: %w", err)
	}
	a := &entity.Artifact{
		JobID:        jobID,
		Kind:         constants.ArtifactPageImage,
		ArtifactPath: key,
		PageNo:       &pageNo,
		Meta:         m,
	}
	if err := p.artifacts.Create(ctx, a); err != nil {
		return nil, common.NewAppError(common.CodePersist, "record artifact", err)
	}
	return a, nil
}

// extract runs both model passes, then validation with repair and total reconciliation.
func (p *Processor) extract(ctx context.Context, images []llm.Image, hint *llm.PageHint) (entity.ExtractionResult, error) {
	log := common.LoggerFromContext(ctx, p.logger)

	raw, err := p.extractor.ExtractWithAudit(ctx, images, hint)
	if err != nil {
		return entity.ExtractionResult{}, common.NewAppError(common.CodeExtraction, "extract quantities", err)
	}

	out, err := p.validator.ValidateWithRepair(raw)
	if err != nil {
		return entity.ExtractionResult{}, common.NewAppError(common.CodeValidation, "validate extraction", err)
	}
	result := out.Result
	if out.Repaired {
		p.metrics.Repaired()
		log.Warn("processor.validate.repaired")
	}

	if flags := validate.Reconcile(result); len(flags) > 0 {
		for _, f := range flags {
			section, _, _ := strings.Cut(f, ".")
			p.metrics.Flagged(section)
		}
		result.Review.Flags = append(result.Review.Flags, flags...)
		result.Review.NeedsReview = true
		log.Warn("processor.reconcile.mismatch", "flags", flags)
	}
	return result, nil
}

func (p *Processor) newAnalysis(jobID uuid.UUID, result entity.ExtractionResult, ev entity.EvidenceSummary) *entity.Analysis {
	return &entity.Analysis{
		JobID:       jobID,
		Model:       p.extractor.ModelName(),
		Quantities:  result,
		Confidence:  result.ConfidenceSummary(),
		Evidence:    ev,
		NeedsReview: result.Review.NeedsReview,
	}
}
