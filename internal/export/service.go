package export

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"

	"github.com/joseph-ayodele/plan-intel/constants"
	"github.com/joseph-ayodele/plan-intel/internal/entity"
	"github.com/joseph-ayodele/plan-intel/internal/repository"
)

const (
	SheetTakeoff  = "Takeoff"
	SheetEvidence = "Evidence"
	SheetReview   = "Review"
)

// Service turns a persisted Analysis into XLSX bytes.
type Service struct {
	jobs     repository.JobRepository
	analyses repository.AnalysisRepository
	logger   *slog.Logger
}

func NewService(jobs repository.JobRepository, analyses repository.AnalysisRepository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{jobs: jobs, analyses: analyses, logger: logger}
}

// ExportAnalysisXLSX returns the takeoff workbook for a job. It fails with common.ErrNotFound
// when the job or its analysis does not exist.
func (s *Service) ExportAnalysisXLSX(ctx context.Context, jobID uuid.UUID) ([]byte, error) {
	start := time.Now()

	job, err := s.jobs.Get(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("load job: %w", err)
	}
	a, err := s.analyses.GetByJobID(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("load analysis: %w", err)
	}

	f, err := BuildWorkbook(job, a)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}

	s.logger.Info("export.xlsx.ok",
		"job_id", jobID.String(),
		"needs_review", a.NeedsReview,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return buf.Bytes(), nil
}

type takeoffRow struct {
	section    string
	item       string
	qty        any
	confidence constants.Confidence
}

func takeoffRows(q entity.ExtractionResult) []takeoffRow {
	d, w, k, b, o := q.Doors, q.Windows, q.Kitchen, q.Bathrooms, q.OtherFixtures
	return []takeoffRow{
		{"doors", "total", d.Total, d.Confidence},
		{"doors", "entry", d.ByType.Entry, d.Confidence},
		{"doors", "interior", d.ByType.Interior, d.Confidence},
		{"doors", "sliding", d.ByType.Sliding, d.Confidence},
		{"doors", "bifold", d.ByType.Bifold, d.Confidence},
		{"doors", "other", d.ByType.Other, d.Confidence},
		{"windows", "total", w.Total, w.Confidence},
		{"windows", "fixed", w.ByType.Fixed, w.Confidence},
		{"windows", "casement", w.ByType.Casement, w.Confidence},
		{"windows", "sliding", w.ByType.Sliding, w.Confidence},
		{"windows", "other", w.ByType.Other, w.Confidence},
		{"kitchen", "cabinets_count_est", k.CabinetsCountEst, k.Confidence},
		{"kitchen", "linear_ft_est", k.LinearFtEst, k.Confidence},
		{"bathrooms", "bathroom_count", b.BathroomCount, b.Confidence},
		{"bathrooms", "toilets", b.Toilets, b.Confidence},
		{"bathrooms", "sinks", b.Sinks, b.Confidence},
		{"bathrooms", "showers", b.Showers, b.Confidence},
		{"bathrooms", "bathtubs", b.Bathtubs, b.Confidence},
		{"other_fixtures", "wardrobes", o.Wardrobes, o.Confidence},
		{"other_fixtures", "closets", o.Closets, o.Confidence},
		{"other_fixtures", "shelving_units", o.ShelvingUnits, o.Confidence},
	}
}

// BuildWorkbook lays out three sheets: quantities, evidence citations and review notes.
// The caller owns the returned file and must Close it.
func BuildWorkbook(job *entity.PlanJob, a *entity.Analysis) (*excelize.File, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", SheetTakeoff); err != nil {
		f.Close()
		return nil, err
	}
	for _, name := range []string{SheetEvidence, SheetReview} {
		if _, err := f.NewSheet(name); err != nil {
			f.Close()
			return nil, err
		}
	}

	q := a.Quantities
	rows := [][]any{{"Section", "Item", "Quantity", "Confidence"}}
	for _, r := range takeoffRows(q) {
		rows = append(rows, []any{r.section, r.item, r.qty, string(r.confidence)})
	}
	if err := writeRows(f, SheetTakeoff, rows); err != nil {
		f.Close()
		return nil, err
	}
	_ = f.SetColWidth(SheetTakeoff, "A", "B", 20)
	_ = f.SetColWidth(SheetTakeoff, "C", "D", 12)

	rows = [][]any{{"Section", "Page", "Source", "Note", "Artifact ID"}}
	for _, sec := range []struct {
		name string
		ev   []entity.Evidence
	}{
		{"doors", q.Doors.Evidence},
		{"windows", q.Windows.Evidence},
		{"kitchen", q.Kitchen.Evidence},
		{"bathrooms", q.Bathrooms.Evidence},
		{"other_fixtures", q.OtherFixtures.Evidence},
	} {
		for _, e := range sec.ev {
			rows = append(rows, []any{sec.name, e.PageNo, e.Source, e.Note, e.ArtifactID})
		}
	}
	if err := writeRows(f, SheetEvidence, rows); err != nil {
		f.Close()
		return nil, err
	}
	_ = f.SetColWidth(SheetEvidence, "D", "D", 48)
	_ = f.SetColWidth(SheetEvidence, "E", "E", 38)

	rows = [][]any{
		{"Job ID", job.ID.String()},
		{"Source", job.FilePath},
		{"Status", string(job.Status)},
		{"Model", a.Model},
		{"Plan type", q.Meta.PlanType},
		{"Units", q.Meta.Units},
		{"Floors detected", q.Meta.FloorsDetected},
		{"Needs review", a.NeedsReview},
		{"Analyzed pages", joinInts(a.Evidence.AnalyzedPages)},
		{"Total pages", a.Evidence.TotalPages},
	}
	if a.Evidence.DocumentPages > a.Evidence.TotalPages {
		rows = append(rows, []any{"Document pages", a.Evidence.DocumentPages})
	}
	if q.Meta.Notes != "" {
		rows = append(rows, []any{"Notes", q.Meta.Notes})
	}
	for _, flag := range q.Review.Flags {
		rows = append(rows, []any{"Flag", flag})
	}
	for _, as := range q.Review.Assumptions {
		rows = append(rows, []any{"Assumption", as})
	}
	if err := writeRows(f, SheetReview, rows); err != nil {
		f.Close()
		return nil, err
	}
	_ = f.SetColWidth(SheetReview, "A", "A", 18)
	_ = f.SetColWidth(SheetReview, "B", "B", 80)

	return f, nil
}

func writeRows(f *excelize.File, sheet string, rows [][]any) error {
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("write %s row %d: %w", sheet, i+1, err)
		}
	}
	return nil
}

func joinInts(xs []int) string {
	parts := make([]string, len(xs))
	for i, x := range xs {
		parts[i] = fmt.Sprint(x)
	}
	return strings.Join(parts, ", ")
}
