package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/plan-intel/constants"
	"github.com/joseph-ayodele/plan-intel/internal/common"
	"github.com/joseph-ayodele/plan-intel/internal/entity"
	"github.com/joseph-ayodele/plan-intel/internal/llm"
	"github.com/joseph-ayodele/plan-intel/internal/render"
	"github.com/joseph-ayodele/plan-intel/internal/repository"
	"github.com/joseph-ayodele/plan-intel/internal/storage"
	"github.com/joseph-ayodele/plan-intel/internal/validate"
)

const validExtraction = `{
  "meta": {"floors_detected": 1, "plan_type": "residential", "units": "imperial", "notes": ""},
  "doors": {"total": 12, "by_type": {"entry": 2, "interior": 8, "sliding": 1, "bifold": 1, "other": 0},
            "confidence": "high", "evidence": [{"page_no": 2, "source": "schedule", "note": "door schedule"}]},
  "windows": {"total": 6, "by_type": {"fixed": 2, "casement": 2, "sliding": 2, "other": 0}, "confidence": "medium", "evidence": []},
  "kitchen": {"cabinets_count_est": 10, "linear_ft_est": 18, "confidence": "medium", "evidence": []},
  "bathrooms": {"bathroom_count": 2, "toilets": 2, "sinks": 2, "showers": 1, "bathtubs": 1, "confidence": "high", "evidence": []},
  "other_fixtures": {"wardrobes": 2, "closets": 3, "shelving_units": 0, "confidence": "low", "evidence": []},
  "review": {"needs_review": false, "flags": [], "assumptions": []}
}`

type fakeRenderer struct {
	pages     int
	docPages  int // source page count when above pages; the result is truncated
	texts     []string
	failPages map[int]bool
	err       error
	ocrText   string
	ocrCalls  int
}

func (f *fakeRenderer) Render(_ context.Context, _, outDir string) (render.Result, error) {
	if f.err != nil {
		return render.Result{}, f.err
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return render.Result{}, err
	}
	res := render.Result{TotalPages: f.pages}
	if f.docPages > f.pages {
		res.TotalPages = f.docPages
		res.Truncated = true
		res.Warnings = append(res.Warnings, fmt.Sprintf("rendered first %d of %d pages", f.pages, f.docPages))
	}
	for i := 0; i < f.pages; i++ {
		if f.failPages[i] {
			res.Warnings = append(res.Warnings, fmt.Sprintf("page %d: broken", i))
			continue
		}
		img := filepath.Join(outDir, fmt.Sprintf("page_%03d.png", i))
		if err := os.WriteFile(img, []byte("\x89PNG page"), 0o644); err != nil {
			return render.Result{}, err
		}
		res.Pages = append(res.Pages, render.Page{Index: i, ImagePath: img})
	}
	if len(res.Pages) == 0 {
		return res, render.ErrNoPages
	}
	return res, nil
}

func (f *fakeRenderer) PageTexts(context.Context, string) ([]string, error) { return f.texts, nil }

func (f *fakeRenderer) Metadata(context.Context, string) (render.Metadata, error) {
	return render.Metadata{PageCount: f.pages}, nil
}

func (f *fakeRenderer) OCRImage(context.Context, string) (string, error) {
	f.ocrCalls++
	return f.ocrText, nil
}

func (f *fakeRenderer) DPI() int { return 300 }

type fakeExtractor struct {
	mu     sync.Mutex
	raw    string
	err    error
	images []llm.Image
	hint   *llm.PageHint
}

func (f *fakeExtractor) ExtractWithAudit(ctx context.Context, images []llm.Image, hint *llm.PageHint) (map[string]any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.images = images
	f.hint = hint
	if f.err != nil {
		return nil, f.err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(f.raw), &m); err != nil {
		return nil, err
	}
	return m, nil
}

func (f *fakeExtractor) ModelName() string { return "test-model" }

// scriptedModel answers model calls in order.
type scriptedModel struct {
	mu        sync.Mutex
	responses []string
	requests  []llm.Request
}

func (m *scriptedModel) Complete(_ context.Context, req llm.Request) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	i := len(m.requests)
	m.requests = append(m.requests, req)
	if i >= len(m.responses) {
		return "", nil
	}
	return m.responses[i], nil
}

func (m *scriptedModel) Name() string { return "scripted-model" }

type harness struct {
	proc      *Processor
	store     *storage.FSStore
	jobs      repository.JobRepository
	artifacts repository.ArtifactRepository
	analyses  repository.AnalysisRepository
	renderer  *fakeRenderer
	extractor *fakeExtractor
	workDir   string
}

func newHarness(t *testing.T, cfg Config) *harness {
	t.Helper()
	ctx := context.Background()
	db, err := repository.Open(ctx, common.DatabaseConfig{DSN: "sqlite://:memory:"}, nil)
	require.NoError(t, err)
	t.Cleanup(db.Close)
	require.NoError(t, db.Migrate(ctx))

	store, err := storage.NewFSStore(t.TempDir())
	require.NoError(t, err)

	if cfg.WorkspaceDir == "" {
		cfg.WorkspaceDir = t.TempDir()
	}
	h := &harness{
		store:     store,
		jobs:      repository.NewJobRepository(db, nil),
		artifacts: repository.NewArtifactRepository(db, nil),
		analyses:  repository.NewAnalysisRepository(db, nil),
		renderer:  &fakeRenderer{},
		extractor: &fakeExtractor{raw: validExtraction},
		workDir:   cfg.WorkspaceDir,
	}
	h.proc = NewProcessor(cfg, Deps{
		Store:     store,
		Renderer:  h.renderer,
		Extractor: h.extractor,
		Jobs:      h.jobs,
		Artifacts: h.artifacts,
		Analyses:  h.analyses,
	}, nil)
	return h
}

// useExtractor rebuilds the processor around e, keeping the harness stores.
func (h *harness) useExtractor(cfg Config, e llm.Extractor) {
	cfg.WorkspaceDir = h.workDir
	h.proc = NewProcessor(cfg, Deps{
		Store:     h.store,
		Renderer:  h.renderer,
		Extractor: e,
		Jobs:      h.jobs,
		Artifacts: h.artifacts,
		Analyses:  h.analyses,
	}, nil)
}

// enqueue stores a source object and a queued job, then claims it.
func (h *harness) enqueue(t *testing.T, key string, kind constants.DocumentKind, data []byte) *entity.PlanJob {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, h.store.Upload(ctx, key, data, ""))
	require.NoError(t, h.jobs.Create(ctx, &entity.PlanJob{FilePath: key, FileType: kind}))
	job, err := h.jobs.ClaimNext(ctx)
	require.NoError(t, err)
	require.NotNil(t, job)
	return job
}

func (h *harness) status(t *testing.T, id uuid.UUID) *entity.PlanJob {
	t.Helper()
	job, err := h.jobs.Get(context.Background(), id)
	require.NoError(t, err)
	return job
}

func (h *harness) assertWorkspaceClean(t *testing.T) {
	t.Helper()
	entries, err := os.ReadDir(h.workDir)
	require.NoError(t, err)
	assert.Empty(t, entries, "job workspace must be removed")
}

func TestProcess_ScheduleOnThirdPage(t *testing.T) {
	h := newHarness(t, Config{})
	h.renderer.pages = 3
	h.renderer.texts = []string{"cover sheet", "site drainage", "DOOR SCHEDULE D1 36x80"}
	job := h.enqueue(t, "plans/u/house.pdf", constants.DocumentPDF, []byte("%PDF-1.4"))

	require.NoError(t, h.proc.Process(context.Background(), job))

	assert.Equal(t, constants.JobStatusCompleted, h.status(t, job.ID).Status)

	require.Len(t, h.extractor.images, 1)
	assert.Equal(t, 2, h.extractor.images[0].PageNo)
	require.NotNil(t, h.extractor.hint)
	assert.True(t, h.extractor.hint.HasSchedules)
	assert.False(t, h.extractor.hint.HasLegend)
	assert.True(t, strings.HasPrefix(h.extractor.images[0].DataURL, "data:image/png;base64,"))

	a, err := h.analyses.GetByJobID(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, "test-model", a.Model)
	assert.Equal(t, []int{2}, a.Evidence.AnalyzedPages)
	assert.Equal(t, 3, a.Evidence.TotalPages)
	require.NotNil(t, a.Evidence.PageCategorization)
	assert.Equal(t, []int{2}, a.Evidence.PageCategorization.Schedule)
	assert.Equal(t, 12, a.Quantities.Doors.Total)
	assert.Equal(t, constants.ConfidenceHigh, a.Confidence["doors"])
	assert.False(t, a.NeedsReview)

	arts, err := h.artifacts.ListByJob(context.Background(), job.ID)
	require.NoError(t, err)
	require.Len(t, arts, 4)
	var pageArtifact *entity.Artifact
	for _, art := range arts {
		data, err := h.store.Download(context.Background(), art.ArtifactPath)
		require.NoError(t, err, art.ArtifactPath)
		assert.NotEmpty(t, data)
		if art.PageNo != nil && *art.PageNo == 2 {
			pageArtifact = art
		}
	}
	require.NotNil(t, pageArtifact)
	assert.Equal(t, storage.ArtifactPath(job.ID, constants.ArtifactPageImage, "page_002.png"), pageArtifact.ArtifactPath)
	assert.JSONEq(t, `{"dpi":300}`, string(pageArtifact.Meta))
	assert.Equal(t, pageArtifact.ID.String(), h.extractor.images[0].ArtifactID)

	texts, err := h.store.Download(context.Background(), storage.ArtifactPath(job.ID, constants.ArtifactOCRText, "page_text.json"))
	require.NoError(t, err)
	assert.Contains(t, string(texts), "DOOR SCHEDULE")

	h.assertWorkspaceClean(t)
}

func TestProcess_NoKeywordsFallsBackToFirstPages(t *testing.T) {
	h := newHarness(t, Config{})
	h.renderer.pages = 12
	h.renderer.texts = make([]string, 12)
	h.renderer.failPages = map[int]bool{4: true}
	job := h.enqueue(t, "plans/u/scan.pdf", constants.DocumentPDF, []byte("%PDF-1.4"))

	require.NoError(t, h.proc.Process(context.Background(), job))

	a, err := h.analyses.GetByJobID(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2, 3, 5, 6, 7, 8, 9}, a.Evidence.AnalyzedPages)
	assert.Equal(t, 11, a.Evidence.TotalPages)
	assert.Empty(t, a.Evidence.PageCategorization.AllRelevant)
	assert.False(t, h.extractor.hint.HasSchedules)
	assert.Len(t, h.extractor.images, 9)
}

func TestProcess_TruncatedRenderCountsRenderedPages(t *testing.T) {
	h := newHarness(t, Config{})
	h.renderer.pages = 50
	h.renderer.docPages = 60
	h.renderer.texts = make([]string, 60)
	h.renderer.texts[1] = "Door Schedule"
	job := h.enqueue(t, "plans/u/tower.pdf", constants.DocumentPDF, []byte("%PDF-1.4"))

	require.NoError(t, h.proc.Process(context.Background(), job))

	a, err := h.analyses.GetByJobID(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, 50, a.Evidence.TotalPages)
	assert.Equal(t, 60, a.Evidence.DocumentPages)
	assert.Equal(t, []int{1}, a.Evidence.AnalyzedPages)
}

func TestProcess_OCRFallbackFeedsSelection(t *testing.T) {
	h := newHarness(t, Config{OCRFallback: true})
	h.renderer.pages = 2
	h.renderer.texts = []string{"", ""}
	h.renderer.ocrText = "WINDOW SCHEDULE"
	job := h.enqueue(t, "plans/u/scan.pdf", constants.DocumentPDF, []byte("%PDF-1.4"))

	require.NoError(t, h.proc.Process(context.Background(), job))

	assert.Equal(t, 2, h.renderer.ocrCalls)
	a, err := h.analyses.GetByJobID(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1}, a.Evidence.PageCategorization.Schedule)
}

func TestProcess_UnparseableAuditKeepsFirstPass(t *testing.T) {
	h := newHarness(t, Config{})
	h.renderer.pages = 3
	h.renderer.texts = []string{"cover", "site plan", "door schedule"}
	model := &scriptedModel{responses: []string{
		"```json\n" + validExtraction + "\n```",
		"The totals look consistent, no corrections needed.",
	}}
	h.useExtractor(Config{}, llm.NewClient(model, llm.ClientConfig{}, nil))
	job := h.enqueue(t, "plans/u/house.pdf", constants.DocumentPDF, []byte("%PDF-1.4"))

	require.NoError(t, h.proc.Process(context.Background(), job))

	require.Len(t, model.requests, 2)
	assert.Equal(t, llm.ExtractSystemPrompt, model.requests[0].System)
	require.Len(t, model.requests[0].Images, 1)
	assert.Equal(t, llm.AuditSystemPrompt, model.requests[1].System)

	pass1, err := llm.ParseJSONObject(validExtraction)
	require.NoError(t, err)
	want, err := validate.MustNewValidator().Validate(pass1)
	require.NoError(t, err)

	a, err := h.analyses.GetByJobID(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, want, a.Quantities)
	assert.Equal(t, "scripted-model", a.Model)
	assert.Equal(t, constants.JobStatusCompleted, h.status(t, job.ID).Status)
}

func TestProcess_RepairsInvalidExtraction(t *testing.T) {
	h := newHarness(t, Config{})
	h.renderer.pages = 1
	h.renderer.texts = []string{"floor plan"}
	h.extractor.raw = `{"doors": {"total": -5, "by_type": {"entry": 0, "interior": 0, "sliding": 0, "bifold": 0, "other": 0},
		"confidence": "maybe", "evidence": []}}`
	job := h.enqueue(t, "plans/u/a.pdf", constants.DocumentPDF, []byte("%PDF-1.4"))

	require.NoError(t, h.proc.Process(context.Background(), job))

	assert.Equal(t, constants.JobStatusNeedsReview, h.status(t, job.ID).Status)
	a, err := h.analyses.GetByJobID(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, a.Quantities.Doors.Total)
	assert.Equal(t, constants.ConfidenceLow, a.Quantities.Doors.Confidence)
	assert.True(t, a.NeedsReview)
	assert.Contains(t, a.Quantities.Review.Flags, constants.RepairMarker)
}

func TestProcess_TotalsMismatchForcesReview(t *testing.T) {
	h := newHarness(t, Config{})
	h.renderer.pages = 1
	h.renderer.texts = []string{"door schedule"}
	h.extractor.raw = strings.Replace(validExtraction, `"total": 12`, `"total": 14`, 1)
	job := h.enqueue(t, "plans/u/a.pdf", constants.DocumentPDF, []byte("%PDF-1.4"))

	require.NoError(t, h.proc.Process(context.Background(), job))

	assert.Equal(t, constants.JobStatusNeedsReview, h.status(t, job.ID).Status)
	a, err := h.analyses.GetByJobID(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, 14, a.Quantities.Doors.Total)
	assert.Contains(t, a.Quantities.Review.Flags, "doors.total (14) does not match sum of doors.by_type (12)")
}

func TestProcess_ExtractionFailureMarksJobFailed(t *testing.T) {
	h := newHarness(t, Config{})
	h.renderer.pages = 1
	h.renderer.texts = []string{"legend"}
	h.extractor.err = fmt.Errorf("extract pass: %w", llm.ErrEmptyResponse)
	job := h.enqueue(t, "plans/u/a.pdf", constants.DocumentPDF, []byte("%PDF-1.4"))

	err := h.proc.Process(context.Background(), job)
	require.Error(t, err)
	assert.True(t, errors.Is(err, llm.ErrEmptyResponse))
	assert.Equal(t, common.CodeExtraction, common.ErrorCode(err))

	stored := h.status(t, job.ID)
	assert.Equal(t, constants.JobStatusFailed, stored.Status)
	require.NotNil(t, stored.Error)
	assert.Equal(t, err.Error(), *stored.Error)

	_, err = h.analyses.GetByJobID(context.Background(), job.ID)
	assert.True(t, errors.Is(err, common.ErrNotFound))
	h.assertWorkspaceClean(t)
}

func TestProcess_RenderFailure(t *testing.T) {
	h := newHarness(t, Config{})
	h.renderer.err = fmt.Errorf("%w: not a pdf", render.ErrOpenDocument)
	job := h.enqueue(t, "plans/u/a.pdf", constants.DocumentPDF, []byte("junk"))

	err := h.proc.Process(context.Background(), job)
	assert.True(t, errors.Is(err, render.ErrOpenDocument))
	assert.Equal(t, common.CodeRender, common.ErrorCode(err))
	assert.Equal(t, constants.JobStatusFailed, h.status(t, job.ID).Status)
}

func TestProcess_FileTooLarge(t *testing.T) {
	h := newHarness(t, Config{MaxFileSizeBytes: 4})
	job := h.enqueue(t, "plans/u/a.pdf", constants.DocumentPDF, []byte("%PDF-1.4"))

	err := h.proc.Process(context.Background(), job)
	assert.True(t, errors.Is(err, ErrFileTooLarge))
	assert.Equal(t, constants.JobStatusFailed, h.status(t, job.ID).Status)
}

func TestProcess_MissingSource(t *testing.T) {
	h := newHarness(t, Config{})
	require.NoError(t, h.jobs.Create(context.Background(), &entity.PlanJob{FilePath: "plans/u/gone.pdf", FileType: constants.DocumentPDF}))
	job, err := h.jobs.ClaimNext(context.Background())
	require.NoError(t, err)

	err = h.proc.Process(context.Background(), job)
	assert.True(t, errors.Is(err, common.ErrNotFound))
	assert.Equal(t, common.CodeDownload, common.ErrorCode(err))
	assert.Equal(t, constants.JobStatusFailed, h.status(t, job.ID).Status)
}

func TestProcess_CancelledContextStillRecordsFailure(t *testing.T) {
	h := newHarness(t, Config{})
	h.renderer.pages = 1
	job := h.enqueue(t, "plans/u/a.pdf", constants.DocumentPDF, []byte("%PDF-1.4"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := h.proc.Process(ctx, job)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, constants.JobStatusFailed, h.status(t, job.ID).Status)
}

func TestProcess_SingleImage(t *testing.T) {
	h := newHarness(t, Config{})
	job := h.enqueue(t, "plans/u/1234-photo.jpg", constants.DocumentImage, []byte("\xff\xd8\xff jpeg"))

	require.NoError(t, h.proc.Process(context.Background(), job))

	require.Len(t, h.extractor.images, 1)
	assert.Nil(t, h.extractor.hint)
	assert.Equal(t, 0, h.extractor.images[0].PageNo)
	assert.True(t, strings.HasPrefix(h.extractor.images[0].DataURL, "data:image/jpeg;base64,"))

	arts, err := h.artifacts.ListByJob(context.Background(), job.ID)
	require.NoError(t, err)
	require.Len(t, arts, 1)
	assert.Equal(t, storage.ArtifactPath(job.ID, constants.ArtifactPageImage, "1234-photo.jpg"), arts[0].ArtifactPath)
	assert.JSONEq(t, `{"source":"direct_upload"}`, string(arts[0].Meta))
	require.NotNil(t, arts[0].PageNo)
	assert.Equal(t, 0, *arts[0].PageNo)

	a, err := h.analyses.GetByJobID(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, []int{0}, a.Evidence.AnalyzedPages)
	assert.Equal(t, 1, a.Evidence.TotalPages)
	assert.Nil(t, a.Evidence.PageCategorization)
	h.assertWorkspaceClean(t)
}

func TestProcessByID(t *testing.T) {
	h := newHarness(t, Config{})
	h.renderer.pages = 1
	h.renderer.texts = []string{"door schedule"}
	ctx := context.Background()

	require.NoError(t, h.store.Upload(ctx, "plans/u/a.pdf", []byte("%PDF-1.4"), ""))
	job := &entity.PlanJob{FilePath: "plans/u/a.pdf", FileType: constants.DocumentPDF}
	require.NoError(t, h.jobs.Create(ctx, job))

	require.NoError(t, h.proc.ProcessByID(ctx, job.ID))
	assert.Equal(t, constants.JobStatusCompleted, h.status(t, job.ID).Status)

	err := h.proc.ProcessByID(ctx, job.ID)
	assert.True(t, errors.Is(err, ErrJobNotQueued))
}
