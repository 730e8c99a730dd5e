package constants

// JobStatus is the canonical status for rows in plan_jobs.
type JobStatus string

// Stable values (store these exact strings in DB).
const (
	JobStatusQueued      JobStatus = "queued"       // waiting for a worker
	JobStatusProcessing  JobStatus = "processing"   // claimed by a worker
	JobStatusNeedsReview JobStatus = "needs_review" // done, result flagged for a human
	JobStatusCompleted   JobStatus = "completed"    // done
	JobStatusFailed      JobStatus = "failed"       // terminal failure, error column set
)

// IsTerminal reports whether no worker will touch a job in this status again.
func (s JobStatus) IsTerminal() bool {
	switch s {
	case JobStatusNeedsReview, JobStatusCompleted, JobStatusFailed:
		return true
	}
	return false
}

func (s JobStatus) Valid() bool {
	switch s {
	case JobStatusQueued, JobStatusProcessing, JobStatusNeedsReview, JobStatusCompleted, JobStatusFailed:
		return true
	}
	return false
}
