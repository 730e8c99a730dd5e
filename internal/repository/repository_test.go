package repository

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/plan-intel/constants"
	"github.com/joseph-ayodele/plan-intel/internal/common"
	"github.com/joseph-ayodele/plan-intel/internal/entity"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	ctx := context.Background()
	db, err := Open(ctx, common.DatabaseConfig{DSN: "sqlite://:memory:"}, slog.Default())
	require.NoError(t, err)
	t.Cleanup(db.Close)
	require.NoError(t, db.Migrate(ctx))
	return db
}

func createJob(t *testing.T, repo JobRepository, path string, createdAt time.Time) *entity.PlanJob {
	t.Helper()
	job := &entity.PlanJob{FilePath: path, FileType: constants.DocumentPDF, CreatedAt: createdAt}
	require.NoError(t, repo.Create(context.Background(), job))
	return job
}

func TestOpen_RejectsUnknownScheme(t *testing.T) {
	_, err := Open(context.Background(), common.DatabaseConfig{DSN: "mysql://x"}, nil)
	assert.True(t, errors.Is(err, common.ErrInvalidInput))
}

func TestMigrate_IsRepeatable(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, db.Migrate(context.Background()))
	require.NoError(t, db.HealthCheck(context.Background(), time.Second))
}

func TestJobRepository_ClaimNextOldestFirst(t *testing.T) {
	ctx := context.Background()
	repo := NewJobRepository(openTestDB(t), nil)

	base := time.Now().UTC().Add(-time.Hour)
	second := createJob(t, repo, "plans/u/b.pdf", base.Add(time.Minute))
	first := createJob(t, repo, "plans/u/a.pdf", base)

	got, err := repo.ClaimNext(ctx)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, first.ID, got.ID)
	assert.Equal(t, constants.JobStatusProcessing, got.Status)
	assert.Equal(t, "plans/u/a.pdf", got.FilePath)
	assert.Equal(t, constants.DocumentPDF, got.FileType)

	got, err = repo.ClaimNext(ctx)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, second.ID, got.ID)

	got, err = repo.ClaimNext(ctx)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestJobRepository_ClaimIsConditional(t *testing.T) {
	ctx := context.Background()
	repo := NewJobRepository(openTestDB(t), nil)
	job := createJob(t, repo, "plans/u/a.pdf", time.Time{})

	ok, err := repo.Claim(ctx, job.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.Claim(ctx, job.ID)
	require.NoError(t, err)
	assert.False(t, ok, "second claim must lose")

	ok, err = repo.Claim(ctx, uuid.New())
	require.NoError(t, err)
	assert.False(t, ok)

	stored, err := repo.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, constants.JobStatusProcessing, stored.Status)
}

func TestJobRepository_UpdateStatus(t *testing.T) {
	ctx := context.Background()
	repo := NewJobRepository(openTestDB(t), nil)
	job := createJob(t, repo, "plans/u/a.pdf", time.Time{})

	msg := "render: no pages"
	ok, err := repo.UpdateStatus(ctx, job.ID, constants.JobStatusFailed, &msg)
	require.NoError(t, err)
	assert.True(t, ok)

	stored, err := repo.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, constants.JobStatusFailed, stored.Status)
	require.NotNil(t, stored.Error)
	assert.Equal(t, msg, *stored.Error)

	ok, err = repo.UpdateStatus(ctx, job.ID, constants.JobStatusCompleted, nil)
	require.NoError(t, err)
	assert.True(t, ok)
	stored, err = repo.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Nil(t, stored.Error)

	ok, err = repo.UpdateStatus(ctx, uuid.New(), constants.JobStatusCompleted, nil)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = repo.UpdateStatus(ctx, job.ID, constants.JobStatus("paused"), nil)
	assert.True(t, errors.Is(err, common.ErrInvalidInput))
}

func TestJobRepository_ExistsAndGet(t *testing.T) {
	ctx := context.Background()
	repo := NewJobRepository(openTestDB(t), nil)
	job := createJob(t, repo, "plans/u/a.pdf", time.Time{})

	ok, err := repo.Exists(ctx, job.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.Exists(ctx, uuid.New())
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = repo.Get(ctx, uuid.New())
	assert.True(t, errors.Is(err, common.ErrNotFound))

	stored, err := repo.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, constants.JobStatusQueued, stored.Status)
	assert.WithinDuration(t, job.CreatedAt, stored.CreatedAt, time.Second)
}

func TestJobRepository_CountByStatus(t *testing.T) {
	ctx := context.Background()
	repo := NewJobRepository(openTestDB(t), nil)

	n, err := repo.CountByStatus(ctx, constants.JobStatusQueued)
	require.NoError(t, err)
	assert.Zero(t, n)

	createJob(t, repo, "plans/u/a.pdf", time.Time{})
	createJob(t, repo, "plans/u/b.pdf", time.Time{})
	_, err = repo.ClaimNext(ctx)
	require.NoError(t, err)

	n, err = repo.CountByStatus(ctx, constants.JobStatusQueued)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	n, err = repo.CountByStatus(ctx, constants.JobStatusProcessing)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestArtifactRepository_CreateAndList(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	jobs := NewJobRepository(db, nil)
	repo := NewArtifactRepository(db, nil)
	job := createJob(t, jobs, "plans/u/a.pdf", time.Time{})

	p0, p1 := 0, 1
	require.NoError(t, repo.Create(ctx, &entity.Artifact{
		JobID: job.ID, Kind: constants.ArtifactPageImage, ArtifactPath: "artifacts/x/page_image/page_000.png",
		PageNo: &p0, Meta: json.RawMessage(`{"dpi":300}`),
	}))
	require.NoError(t, repo.Create(ctx, &entity.Artifact{
		JobID: job.ID, Kind: constants.ArtifactPageImage, ArtifactPath: "artifacts/x/page_image/page_001.png",
		PageNo: &p1, Meta: json.RawMessage(`{"dpi":300}`),
	}))
	require.NoError(t, repo.Create(ctx, &entity.Artifact{
		JobID: job.ID, Kind: constants.ArtifactOCRText, ArtifactPath: "artifacts/x/ocr_text/page_text.json",
	}))

	list, err := repo.ListByJob(ctx, job.ID)
	require.NoError(t, err)
	require.Len(t, list, 3)

	byPath := map[string]*entity.Artifact{}
	for _, a := range list {
		byPath[a.ArtifactPath] = a
	}
	page1 := byPath["artifacts/x/page_image/page_001.png"]
	require.NotNil(t, page1)
	require.NotNil(t, page1.PageNo)
	assert.Equal(t, 1, *page1.PageNo)
	assert.JSONEq(t, `{"dpi":300}`, string(page1.Meta))

	text := byPath["artifacts/x/ocr_text/page_text.json"]
	require.NotNil(t, text)
	assert.Nil(t, text.PageNo)
	assert.JSONEq(t, `{}`, string(text.Meta))

	empty, err := repo.ListByJob(ctx, uuid.New())
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestArtifactRepository_Rejects(t *testing.T) {
	ctx := context.Background()
	repo := NewArtifactRepository(openTestDB(t), nil)

	err := repo.Create(ctx, &entity.Artifact{JobID: uuid.New(), Kind: "thumbnail", ArtifactPath: "x"})
	assert.True(t, errors.Is(err, common.ErrInvalidInput))

	// foreign key to plan_jobs
	err = repo.Create(ctx, &entity.Artifact{JobID: uuid.New(), Kind: constants.ArtifactDebug, ArtifactPath: "x"})
	assert.True(t, errors.Is(err, common.ErrDatabase))
}

func TestAnalysisRepository_UpsertReplaces(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	jobs := NewJobRepository(db, nil)
	repo := NewAnalysisRepository(db, nil)
	job := createJob(t, jobs, "plans/u/a.pdf", time.Time{})

	_, err := repo.GetByJobID(ctx, job.ID)
	assert.True(t, errors.Is(err, common.ErrNotFound))

	first := &entity.Analysis{
		JobID:       job.ID,
		Model:       "gpt-4o",
		Quantities:  entity.ExtractionResult{Doors: entity.Doors{Total: 4, Confidence: constants.ConfidenceLow}},
		Confidence:  map[string]constants.Confidence{"doors": constants.ConfidenceLow},
		Evidence:    entity.EvidenceSummary{AnalyzedPages: []int{0}, TotalPages: 1},
		NeedsReview: true,
	}
	require.NoError(t, repo.Upsert(ctx, first))

	second := &entity.Analysis{
		JobID:      job.ID,
		Model:      "gpt-4o-mini",
		Quantities: entity.ExtractionResult{Doors: entity.Doors{Total: 9, Confidence: constants.ConfidenceHigh}},
		Confidence: map[string]constants.Confidence{"doors": constants.ConfidenceHigh},
		Evidence: entity.EvidenceSummary{
			AnalyzedPages: []int{2, 0},
			TotalPages:    50,
			DocumentPages: 60,
			PageCategorization: &entity.PageCategorization{
				Schedule: []int{2}, Legend: []int{}, FloorPlan: []int{0}, AllRelevant: []int{0, 2},
			},
		},
	}
	require.NoError(t, repo.Upsert(ctx, second))
	assert.Equal(t, first.ID, second.ID, "upsert reports the stored id")

	got, err := repo.GetByJobID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, first.ID, got.ID, "row identity survives re-processing")
	assert.Equal(t, 60, got.Evidence.DocumentPages)
	assert.Equal(t, "gpt-4o-mini", got.Model)
	assert.Equal(t, 9, got.Quantities.Doors.Total)
	assert.Equal(t, constants.ConfidenceHigh, got.Confidence["doors"])
	assert.False(t, got.NeedsReview)
	assert.Equal(t, []int{2, 0}, got.Evidence.AnalyzedPages)
	require.NotNil(t, got.Evidence.PageCategorization)
	assert.Equal(t, []int{0, 2}, got.Evidence.PageCategorization.AllRelevant)
}
