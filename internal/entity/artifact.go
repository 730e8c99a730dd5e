package entity

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/plan-intel/constants"
)

// Artifact is a stored byproduct of processing. Rows are insert-only.
type Artifact struct {
	ID           uuid.UUID              `json:"id"`
	JobID        uuid.UUID              `json:"job_id"`
	Kind         constants.ArtifactKind `json:"kind"`
	ArtifactPath string                 `json:"artifact_path"`
	PageNo       *int                   `json:"page_no,omitempty"`
	Meta         json.RawMessage        `json:"meta,omitempty"`
	CreatedAt    time.Time              `json:"created_at"`
}
