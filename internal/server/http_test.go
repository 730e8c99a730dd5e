package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/joseph-ayodele/plan-intel/constants"
	"github.com/joseph-ayodele/plan-intel/internal/common"
	"github.com/joseph-ayodele/plan-intel/internal/entity"
	"github.com/joseph-ayodele/plan-intel/internal/export"
	"github.com/joseph-ayodele/plan-intel/internal/metrics"
	"github.com/joseph-ayodele/plan-intel/internal/repository"
)

type fixture struct {
	srv      *httptest.Server
	jobs     repository.JobRepository
	arts     repository.ArtifactRepository
	analyses repository.AnalysisRepository
	checks   map[string]Check
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	db, err := repository.Open(ctx, common.DatabaseConfig{DSN: "sqlite://:memory:"}, nil)
	require.NoError(t, err)
	t.Cleanup(db.Close)
	require.NoError(t, db.Migrate(ctx))

	f := &fixture{
		jobs:     repository.NewJobRepository(db, nil),
		arts:     repository.NewArtifactRepository(db, nil),
		analyses: repository.NewAnalysisRepository(db, nil),
		checks:   map[string]Check{"db": func(context.Context) error { return nil }},
	}
	h := NewHTTPServer(HTTPDeps{
		Jobs:      f.jobs,
		Artifacts: f.arts,
		Analyses:  f.analyses,
		Export:    export.NewService(f.jobs, f.analyses, nil),
		Metrics:   metrics.NewWithRegistry(prometheus.NewRegistry()),
		Checks:    f.checks,
	}, nil)
	f.srv = httptest.NewServer(h.Handler())
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fixture) get(t *testing.T, path string) (*http.Response, []byte) {
	t.Helper()
	resp, err := http.Get(f.srv.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, body
}

func (f *fixture) seedJob(t *testing.T) *entity.PlanJob {
	t.Helper()
	job := &entity.PlanJob{FilePath: "plans/u/house.pdf", FileType: constants.DocumentPDF}
	require.NoError(t, f.jobs.Create(context.Background(), job))
	return job
}

func TestHTTP_Job(t *testing.T) {
	f := newFixture(t)
	job := f.seedJob(t)

	resp, body := f.get(t, "/v1/jobs/"+job.ID.String())
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	var got entity.PlanJob
	require.NoError(t, json.Unmarshal(body, &got))
	assert.Equal(t, job.ID, got.ID)
	assert.Equal(t, constants.JobStatusQueued, got.Status)

	resp, _ = f.get(t, "/v1/jobs/"+uuid.NewString())
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, body = f.get(t, "/v1/jobs/not-a-uuid")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, string(body), "job_id")
	assert.Contains(t, string(body), "must be a valid UUID")
}

func TestHTTP_Analysis(t *testing.T) {
	f := newFixture(t)
	job := f.seedJob(t)
	path := "/v1/jobs/" + job.ID.String() + "/analysis"

	resp, _ := f.get(t, path)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode, "not processed yet")

	resp, body := f.get(t, "/v1/jobs/"+uuid.NewString()+"/analysis")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Contains(t, string(body), "job not found")

	q := entity.ExtractionResult{Doors: entity.Doors{Total: 3, ByType: entity.DoorsByType{Interior: 3}, Confidence: constants.ConfidenceHigh}}
	q.EnsureSlices()
	require.NoError(t, f.analyses.Upsert(context.Background(), &entity.Analysis{
		JobID:      job.ID,
		Model:      "gpt-4o",
		Quantities: q,
		Confidence: q.ConfidenceSummary(),
		Evidence:   entity.EvidenceSummary{AnalyzedPages: []int{0}, TotalPages: 1},
	}))

	resp, body = f.get(t, path)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var got entity.Analysis
	require.NoError(t, json.Unmarshal(body, &got))
	assert.Equal(t, 3, got.Quantities.Doors.Total)
	assert.Equal(t, "gpt-4o", got.Model)

	resp, body = f.get(t, path+".xlsx")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, xlsxContentType, resp.Header.Get("Content-Type"))
	assert.Contains(t, resp.Header.Get("Content-Disposition"), "takeoff-"+job.ID.String()+".xlsx")
	wb, err := excelize.OpenReader(bytes.NewReader(body))
	require.NoError(t, err)
	defer wb.Close()
	v, err := wb.GetCellValue(export.SheetTakeoff, "C2")
	require.NoError(t, err)
	assert.Equal(t, "3", v)
}

func TestHTTP_AnalysisXLSXNotFound(t *testing.T) {
	f := newFixture(t)
	resp, _ := f.get(t, "/v1/jobs/"+uuid.NewString()+"/analysis.xlsx")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHTTP_Artifacts(t *testing.T) {
	f := newFixture(t)
	job := f.seedJob(t)
	page := 0
	require.NoError(t, f.arts.Create(context.Background(), &entity.Artifact{
		JobID:        job.ID,
		Kind:         constants.ArtifactPageImage,
		ArtifactPath: "artifacts/" + job.ID.String() + "/page_image/page_000.png",
		PageNo:       &page,
	}))

	resp, body := f.get(t, "/v1/jobs/"+job.ID.String()+"/artifacts")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var got struct {
		JobID     uuid.UUID          `json:"job_id"`
		Artifacts []*entity.Artifact `json:"artifacts"`
	}
	require.NoError(t, json.Unmarshal(body, &got))
	assert.Equal(t, job.ID, got.JobID)
	require.Len(t, got.Artifacts, 1)
	assert.Equal(t, constants.ArtifactPageImage, got.Artifacts[0].Kind)

	resp, _ = f.get(t, "/v1/jobs/"+uuid.NewString()+"/artifacts")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHTTP_Health(t *testing.T) {
	f := newFixture(t)

	resp, body := f.get(t, "/healthz")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"status":"ok","checks":{"db":"ok"}}`, string(body))

	f.checks["storage"] = func(context.Context) error { return errors.New("bucket missing") }
	resp, body = f.get(t, "/healthz")
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.JSONEq(t, `{"status":"degraded","checks":{"db":"ok","storage":"bucket missing"}}`, string(body))
}

func TestHTTP_Metrics(t *testing.T) {
	f := newFixture(t)
	resp, body := f.get(t, "/metrics")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "planintel_worker_jobs_claimed_total")
}
