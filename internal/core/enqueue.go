package core

import (
	"context"
	"fmt"
	"log/slog"
	"path"

	"github.com/joseph-ayodele/plan-intel/constants"
	"github.com/joseph-ayodele/plan-intel/internal/common"
	"github.com/joseph-ayodele/plan-intel/internal/entity"
	"github.com/joseph-ayodele/plan-intel/internal/repository"
	"github.com/joseph-ayodele/plan-intel/internal/storage"
)

// Enqueuer stores an uploaded plan and creates its queued job.
type Enqueuer struct {
	store    storage.ObjectStore
	jobs     repository.JobRepository
	maxBytes int64
	logger   *slog.Logger
}

// NewEnqueuer caps uploads at maxBytes; 0 means constants.MaxUploadMBDefault.
func NewEnqueuer(store storage.ObjectStore, jobs repository.JobRepository, maxBytes int64, logger *slog.Logger) *Enqueuer {
	if logger == nil {
		logger = slog.Default()
	}
	if maxBytes <= 0 {
		maxBytes = constants.MaxUploadMBDefault << 20
	}
	return &Enqueuer{store: store, jobs: jobs, maxBytes: maxBytes, logger: logger}
}

func (e *Enqueuer) Enqueue(ctx context.Context, owner, filename string, data []byte) (*entity.PlanJob, error) {
	ext := path.Ext(filename)
	kind, ok := constants.KindForExt(ext)
	if !ok {
		return nil, fmt.Errorf("%w: unsupported file type %q", common.ErrInvalidInput, ext)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty file", common.ErrInvalidInput)
	}
	if int64(len(data)) > e.maxBytes {
		return nil, fmt.Errorf("%w: %d bytes, limit %d", ErrFileTooLarge, len(data), e.maxBytes)
	}

	key := storage.UploadPath(owner, filename)
	if err := e.store.Upload(ctx, key, data, constants.ContentTypeForExt(ext)); err != nil {
		return nil, common.NewAppError(common.CodeUpload, "upload plan", err)
	}
	job := &entity.PlanJob{FilePath: key, FileType: kind, Status: constants.JobStatusQueued}
	if err := e.jobs.Create(ctx, job); err != nil {
		return nil, common.NewAppError(common.CodePersist, "create job", err)
	}

	e.logger.Info("enqueue.ok", "job_id", job.ID, "file_path", key, "file_type", kind, "bytes", len(data))
	return job, nil
}
