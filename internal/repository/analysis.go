package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/google/uuid"

	"github.com/joseph-ayodele/plan-intel/internal/common"
	"github.com/joseph-ayodele/plan-intel/internal/entity"
)

type AnalysisRepository interface {
	// Upsert inserts or replaces the analysis of a.JobID and sets a.ID to the stored row's id.
	Upsert(ctx context.Context, a *entity.Analysis) error
	GetByJobID(ctx context.Context, jobID uuid.UUID) (*entity.Analysis, error)
}

type analysisRepo struct {
	db     *DB
	logger *slog.Logger
}

func NewAnalysisRepository(db *DB, logger *slog.Logger) AnalysisRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &analysisRepo{db: db, logger: logger}
}

var analysisColumns = []string{
	"id", "job_id", "model", "quantities", "confidence", "evidence", "needs_review", "created_at", "updated_at",
}

// replaced on conflict
var analysisUpdateColumns = []string{"model", "quantities", "confidence", "evidence", "needs_review", "updated_at"}

func (r *analysisRepo) Upsert(ctx context.Context, a *entity.Analysis) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	now := time.Now().UTC()
	if a.CreatedAt.IsZero() {
		a.CreatedAt = now
	}
	a.UpdatedAt = now

	quantities, err := json.Marshal(a.Quantities)
	if err != nil {
		return fmt.Errorf("encode quantities: %w", err)
	}
	confidence, err := json.Marshal(a.Confidence)
	if err != nil {
		return fmt.Errorf("encode confidence: %w", err)
	}
	evidence, err := json.Marshal(a.Evidence)
	if err != nil {
		return fmt.Errorf("encode evidence: %w", err)
	}

	query, args := r.db.builder().Insert(tableAnalyses).
		Columns(analysisColumns...).
		Values(a.ID, a.JobID, a.Model, string(quantities), string(confidence), string(evidence),
			a.NeedsReview, a.CreatedAt, a.UpdatedAt).
		OnConflict(
			entsql.ConflictColumns("job_id"),
			entsql.ResolveWith(func(u *entsql.UpdateSet) {
				for _, c := range analysisUpdateColumns {
					u.SetExcluded(c)
				}
			}),
		).
		Returning("id").
		Query()

	rows, err := r.db.query(ctx, query, args)
	if err != nil {
		r.logger.Error("analysis.upsert.error", "job_id", a.JobID, "error", err)
		return fmt.Errorf("%w: upsert analysis: %v", common.ErrDatabase, err)
	}
	defer rows.Close()

	// on conflict the stored row keeps its first id
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return fmt.Errorf("%w: upsert analysis: %v", common.ErrDatabase, err)
		}
		return fmt.Errorf("%w: upsert analysis: no row returned", common.ErrDatabase)
	}
	if err := rows.Scan(&a.ID); err != nil {
		return fmt.Errorf("%w: scan upserted analysis: %v", common.ErrDatabase, err)
	}
	r.logger.Info("analysis.upserted", "analysis_id", a.ID, "job_id", a.JobID, "needs_review", a.NeedsReview)
	return nil
}

func (r *analysisRepo) GetByJobID(ctx context.Context, jobID uuid.UUID) (*entity.Analysis, error) {
	b := r.db.builder()
	query, args := b.Select(analysisColumns...).
		From(b.Table(tableAnalyses)).
		Where(entsql.EQ("job_id", jobID)).
		Query()

	rows, err := r.db.query(ctx, query, args)
	if err != nil {
		return nil, fmt.Errorf("%w: get analysis: %v", common.ErrDatabase, err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("%w: get analysis: %v", common.ErrDatabase, err)
		}
		return nil, fmt.Errorf("%w: analysis for job %s", common.ErrNotFound, jobID)
	}

	var (
		out                              entity.Analysis
		quantities, confidence, evidence []byte
	)
	if err := rows.Scan(&out.ID, &out.JobID, &out.Model, &quantities, &confidence, &evidence,
		&out.NeedsReview, &out.CreatedAt, &out.UpdatedAt); err != nil {
		return nil, fmt.Errorf("%w: scan analysis: %v", common.ErrDatabase, err)
	}
	if err := json.Unmarshal(quantities, &out.Quantities); err != nil {
		return nil, fmt.Errorf("decode quantities: %w", err)
	}
	if err := json.Unmarshal(confidence, &out.Confidence); err != nil {
		return nil, fmt.Errorf("decode confidence: %w", err)
	}
	if err := json.Unmarshal(evidence, &out.Evidence); err != nil {
		return nil, fmt.Errorf("decode evidence: %w", err)
	}
	return &out, nil
}
