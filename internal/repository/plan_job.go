package repository

import (
	"context"
	stdsql "database/sql"
	"fmt"
	"log/slog"
	"time"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/google/uuid"

	"github.com/joseph-ayodele/plan-intel/constants"
	"github.com/joseph-ayodele/plan-intel/internal/common"
	"github.com/joseph-ayodele/plan-intel/internal/entity"
)

// claimAttempts bounds ClaimNext when other workers keep winning the race.
const claimAttempts = 3

type JobRepository interface {
	// ClaimNext moves the oldest queued job to processing. It returns nil, nil when nothing is queued.
	ClaimNext(ctx context.Context) (*entity.PlanJob, error)
	// Claim moves one specific job from queued to processing; false means it was not queued.
	Claim(ctx context.Context, id uuid.UUID) (bool, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status constants.JobStatus, errMsg *string) (bool, error)
	Exists(ctx context.Context, id uuid.UUID) (bool, error)
	CountByStatus(ctx context.Context, status constants.JobStatus) (int, error)
	Get(ctx context.Context, id uuid.UUID) (*entity.PlanJob, error)
	Create(ctx context.Context, job *entity.PlanJob) error
}

type jobRepo struct {
	db     *DB
	logger *slog.Logger
}

func NewJobRepository(db *DB, logger *slog.Logger) JobRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &jobRepo{db: db, logger: logger}
}

var jobColumns = []string{"id", "file_path", "file_type", "status", "error", "created_at", "updated_at"}

func (r *jobRepo) ClaimNext(ctx context.Context) (*entity.PlanJob, error) {
	for attempt := 1; attempt <= claimAttempts; attempt++ {
		job, err := r.nextQueued(ctx)
		if err != nil {
			return nil, err
		}
		if job == nil {
			return nil, nil
		}
		ok, err := r.Claim(ctx, job.ID)
		if err != nil {
			return nil, err
		}
		if ok {
			job.Status = constants.JobStatusProcessing
			return job, nil
		}
		r.logger.Debug("job.claim.lost", "job_id", job.ID, "attempt", attempt)
	}
	return nil, nil
}

func (r *jobRepo) nextQueued(ctx context.Context) (*entity.PlanJob, error) {
	b := r.db.builder()
	query, args := b.Select(jobColumns...).
		From(b.Table(tableJobs)).
		Where(entsql.EQ("status", string(constants.JobStatusQueued))).
		OrderBy("created_at", "id").
		Limit(1).
		Query()

	jobs, err := r.queryJobs(ctx, query, args)
	if err != nil {
		return nil, err
	}
	if len(jobs) == 0 {
		return nil, nil
	}
	return jobs[0], nil
}

func (r *jobRepo) Claim(ctx context.Context, id uuid.UUID) (bool, error) {
	query, args := r.db.builder().Update(tableJobs).
		Set("status", string(constants.JobStatusProcessing)).
		Set("updated_at", time.Now().UTC()).
		Where(entsql.And(
			entsql.EQ("id", id),
			entsql.EQ("status", string(constants.JobStatusQueued)),
		)).
		Query()

	res, err := r.db.exec(ctx, query, args)
	if err != nil {
		r.logger.Error("job.claim.error", "job_id", id, "error", err)
		return false, fmt.Errorf("%w: claim job: %v", common.ErrDatabase, err)
	}
	return affected(res)
}

func (r *jobRepo) UpdateStatus(ctx context.Context, id uuid.UUID, status constants.JobStatus, errMsg *string) (bool, error) {
	if !status.Valid() {
		return false, fmt.Errorf("%w: status %q", common.ErrInvalidInput, status)
	}
	upd := r.db.builder().Update(tableJobs).
		Set("status", string(status)).
		Set("updated_at", time.Now().UTC())
	if errMsg != nil {
		upd = upd.Set("error", *errMsg)
	} else {
		upd = upd.SetNull("error")
	}
	query, args := upd.Where(entsql.EQ("id", id)).Query()

	res, err := r.db.exec(ctx, query, args)
	if err != nil {
		r.logger.Error("job.status.error", "job_id", id, "status", status, "error", err)
		return false, fmt.Errorf("%w: update job status: %v", common.ErrDatabase, err)
	}
	ok, err := affected(res)
	if err != nil {
		return false, err
	}
	if ok {
		r.logger.Info("job.status.updated", "job_id", id, "status", status)
	}
	return ok, nil
}

func (r *jobRepo) Exists(ctx context.Context, id uuid.UUID) (bool, error) {
	b := r.db.builder()
	query, args := b.Select("id").From(b.Table(tableJobs)).Where(entsql.EQ("id", id)).Limit(1).Query()

	rows, err := r.db.query(ctx, query, args)
	if err != nil {
		return false, fmt.Errorf("%w: job exists: %v", common.ErrDatabase, err)
	}
	defer rows.Close()
	found := rows.Next()
	if err := rows.Err(); err != nil {
		return false, fmt.Errorf("%w: job exists: %v", common.ErrDatabase, err)
	}
	return found, nil
}

func (r *jobRepo) CountByStatus(ctx context.Context, status constants.JobStatus) (int, error) {
	b := r.db.builder()
	query, args := b.Select(entsql.Count("*")).From(b.Table(tableJobs)).
		Where(entsql.EQ("status", string(status))).Query()

	rows, err := r.db.query(ctx, query, args)
	if err != nil {
		return 0, fmt.Errorf("%w: count jobs: %v", common.ErrDatabase, err)
	}
	defer rows.Close()
	var n int
	if rows.Next() {
		if err := rows.Scan(&n); err != nil {
			return 0, fmt.Errorf("%w: count jobs: %v", common.ErrDatabase, err)
		}
	}
	return n, rows.Err()
}

func (r *jobRepo) Get(ctx context.Context, id uuid.UUID) (*entity.PlanJob, error) {
	b := r.db.builder()
	query, args := b.Select(jobColumns...).From(b.Table(tableJobs)).Where(entsql.EQ("id", id)).Query()

	jobs, err := r.queryJobs(ctx, query, args)
	if err != nil {
		return nil, err
	}
	if len(jobs) == 0 {
		return nil, fmt.Errorf("%w: job %s", common.ErrNotFound, id)
	}
	return jobs[0], nil
}

func (r *jobRepo) Create(ctx context.Context, job *entity.PlanJob) error {
	if job.ID == uuid.Nil {
		job.ID = uuid.New()
	}
	if job.Status == "" {
		job.Status = constants.JobStatusQueued
	}
	now := time.Now().UTC()
	if job.CreatedAt.IsZero() {
		job.CreatedAt = now
	}
	job.UpdatedAt = now

	var errText any
	if job.Error != nil {
		errText = *job.Error
	}
	query, args := r.db.builder().Insert(tableJobs).
		Columns(jobColumns...).
		Values(job.ID, job.FilePath, string(job.FileType), string(job.Status), errText, job.CreatedAt, job.UpdatedAt).
		Query()

	if _, err := r.db.exec(ctx, query, args); err != nil {
		r.logger.Error("job.create.error", "file_path", job.FilePath, "error", err)
		return fmt.Errorf("%w: create job: %v", common.ErrDatabase, err)
	}
	r.logger.Info("job.created", "job_id", job.ID, "file_type", job.FileType)
	return nil
}

func (r *jobRepo) queryJobs(ctx context.Context, query string, args []any) ([]*entity.PlanJob, error) {
	rows, err := r.db.query(ctx, query, args)
	if err != nil {
		return nil, fmt.Errorf("%w: query jobs: %v", common.ErrDatabase, err)
	}
	defer rows.Close()

	var out []*entity.PlanJob
	for rows.Next() {
		var (
			j        entity.PlanJob
			fileType string
			status   string
			errText  stdsql.NullString
		)
		if err := rows.Scan(&j.ID, &j.FilePath, &fileType, &status, &errText, &j.CreatedAt, &j.UpdatedAt); err != nil {
			return nil, fmt.Errorf("%w: scan job: %v", common.ErrDatabase, err)
		}
		j.FileType = constants.DocumentKind(fileType)
		j.Status = constants.JobStatus(status)
		if errText.Valid {
			j.Error = &errText.String
		}
		out = append(out, &j)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: query jobs: %v", common.ErrDatabase, err)
	}
	return out, nil
}

func affected(res stdsql.Result) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("%w: rows affected: %v", common.ErrDatabase, err)
	}
	return n > 0, nil
}
