package storage

import (
	"context"
	"fmt"
	"log/slog"
	"path"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/plan-intel/constants"
	"github.com/joseph-ayodele/plan-intel/internal/common"
)

// ObjectStore is a flat key/value blob store for uploads and artifacts.
type ObjectStore interface {
	Download(ctx context.Context, key string) ([]byte, error)
	Upload(ctx context.Context, key string, data []byte, contentType string) error
	HealthCheck(ctx context.Context) error
}

// ArtifactPath is the object key of a job artifact: artifacts/{job_id}/{kind}/{filename}.
func ArtifactPath(jobID uuid.UUID, kind constants.ArtifactKind, filename string) string {
	return path.Join("artifacts", jobID.String(), string(kind), path.Base(filename))
}

// UploadPath is the object key of a newly enqueued source file: plans/{owner}/{uuid}-{name}.
func UploadPath(owner, filename string) string {
	if owner == "" {
		owner = "anonymous"
	}
	return path.Join("plans", owner, uuid.NewString()+"-"+path.Base(filename))
}

// Open builds the store selected by cfg.Backend.
func Open(ctx context.Context, cfg common.StorageConfig, logger *slog.Logger) (ObjectStore, error) {
	switch cfg.Backend {
	case "minio":
		return NewMinioStore(ctx, cfg, logger)
	case "fs":
		return NewFSStore(cfg.Dir)
	default:
		return nil, fmt.Errorf("%w: unknown storage backend %q", common.ErrInvalidInput, cfg.Backend)
	}
}
