package entity

import (
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/plan-intel/constants"
)

// PageCategorization holds ascending, duplicate-free page indices per category.
// AllRelevant is always the union of the other three.
type PageCategorization struct {
	Schedule    []int `json:"schedule"`
	Legend      []int `json:"legend"`
	FloorPlan   []int `json:"floor_plan"`
	AllRelevant []int `json:"all_relevant"`
}

// EvidenceSummary records which pages fed the extraction. TotalPages counts rendered
// pages; DocumentPages is the source page count before the page cap.
type EvidenceSummary struct {
	AnalyzedPages      []int               `json:"analyzed_pages"`
	TotalPages         int                 `json:"total_pages"`
	DocumentPages      int                 `json:"document_pages,omitempty"`
	PageCategorization *PageCategorization `json:"page_categorization,omitempty"`
}

// Analysis is the persisted result for a job; one row per job, replaced on re-processing.
type Analysis struct {
	ID          uuid.UUID                       `json:"id"`
	JobID       uuid.UUID                       `json:"job_id"`
	Model       string                          `json:"model"`
	Quantities  ExtractionResult                `json:"quantities"`
	Confidence  map[string]constants.Confidence `json:"confidence"`
	Evidence    EvidenceSummary                 `json:"evidence"`
	NeedsReview bool                            `json:"needs_review"`
	CreatedAt   time.Time                       `json:"created_at"`
	UpdatedAt   time.Time                       `json:"updated_at"`
}
