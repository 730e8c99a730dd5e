package repository

import (
	"context"
	stdsql "database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/google/uuid"

	"github.com/joseph-ayodele/plan-intel/constants"
	"github.com/joseph-ayodele/plan-intel/internal/common"
	"github.com/joseph-ayodele/plan-intel/internal/entity"
)

type ArtifactRepository interface {
	Create(ctx context.Context, a *entity.Artifact) error
	ListByJob(ctx context.Context, jobID uuid.UUID) ([]*entity.Artifact, error)
}

type artifactRepo struct {
	db     *DB
	logger *slog.Logger
}

func NewArtifactRepository(db *DB, logger *slog.Logger) ArtifactRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &artifactRepo{db: db, logger: logger}
}

var artifactColumns = []string{"id", "job_id", "kind", "artifact_path", "page_no", "meta", "created_at"}

func (r *artifactRepo) Create(ctx context.Context, a *entity.Artifact) error {
	if !a.Kind.Valid() {
		return fmt.Errorf("%w: artifact kind %q", common.ErrInvalidInput, a.Kind)
	}
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	meta := a.Meta
	if len(meta) == 0 {
		meta = json.RawMessage(`{}`)
	}
	var pageNo any
	if a.PageNo != nil {
		pageNo = *a.PageNo
	}

	query, args := r.db.builder().Insert(tableArtifacts).
		Columns(artifactColumns...).
		Values(a.ID, a.JobID, string(a.Kind), a.ArtifactPath, pageNo, string(meta), a.CreatedAt).
		Query()

	if _, err := r.db.exec(ctx, query, args); err != nil {
		r.logger.Error("artifact.create.error", "job_id", a.JobID, "path", a.ArtifactPath, "error", err)
		return fmt.Errorf("%w: create artifact: %v", common.ErrDatabase, err)
	}
	a.Meta = meta
	return nil
}

func (r *artifactRepo) ListByJob(ctx context.Context, jobID uuid.UUID) ([]*entity.Artifact, error) {
	b := r.db.builder()
	query, args := b.Select(artifactColumns...).
		From(b.Table(tableArtifacts)).
		Where(entsql.EQ("job_id", jobID)).
		OrderBy("created_at", "page_no", "artifact_path").
		Query()

	rows, err := r.db.query(ctx, query, args)
	if err != nil {
		return nil, fmt.Errorf("%w: list artifacts: %v", common.ErrDatabase, err)
	}
	defer rows.Close()

	out := []*entity.Artifact{}
	for rows.Next() {
		var (
			a      entity.Artifact
			kind   string
			pageNo stdsql.NullInt64
			meta   []byte
		)
		if err := rows.Scan(&a.ID, &a.JobID, &kind, &a.ArtifactPath, &pageNo, &meta, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("%w: scan artifact: %v", common.ErrDatabase, err)
		}
		a.Kind = constants.ArtifactKind(kind)
		if pageNo.Valid {
			p := int(pageNo.Int64)
			a.PageNo = &p
		}
		a.Meta = json.RawMessage(meta)
		out = append(out, &a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: list artifacts: %v", common.ErrDatabase, err)
	}
	return out, nil
}
