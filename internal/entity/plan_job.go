package entity

import (
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/plan-intel/constants"
)

// PlanJob is one uploaded document waiting for, or going through, processing.
type PlanJob struct {
	ID        uuid.UUID              `json:"id"`
	FilePath  string                 `json:"file_path"`
	FileType  constants.DocumentKind `json:"file_type"`
	Status    constants.JobStatus    `json:"status"`
	Error     *string                `json:"error,omitempty"`
	CreatedAt time.Time              `json:"created_at"`
	UpdatedAt time.Time              `json:"updated_at"`
}
