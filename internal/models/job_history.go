package models

import (
	"time"
)

type JobStatus string

const (
	JobStatusRunning             JobStatus = "running"
	JobStatusCompleted           JobStatus = "completed"
	JobStatusCompletedWithErrors JobStatus = "completed_with_errors"
	JobStatusFailed              JobStatus = "failed"
)

// JobCategory scopes the single-concurrent-run guard: one pricing and one
// metadata job may run at the same time, but never two of the same category.
type JobCategory string

const (
	JobCategoryPricing  JobCategory = "pricing"
	JobCategoryMetadata JobCategory = "metadata"
)

// JobHistory is one record per orchestrator run. The row is mutated in place
// while the run is active (counters updated after every item) so that live
// observers see near-real-time progress; once terminal it is never touched.
type JobHistory struct {
	ID       uint        `json:"id" gorm:"primaryKey;autoIncrement"`
	RunID    string      `json:"run_id" gorm:"index"`
	JobType  string      `json:"job_type" gorm:"index"` // "scheduled" or "manual"
	JobName  string      `json:"job_name" gorm:"index"`
	Category JobCategory `json:"category" gorm:"index"`
	Status   JobStatus   `json:"status" gorm:"index"`

	StartedAt   time.Time  `json:"started_at" gorm:"index"`
	CompletedAt *time.Time `json:"completed_at"`

	Processed int `json:"processed" gorm:"default:0"`
	Succeeded int `json:"succeeded" gorm:"default:0"`
	Failed    int `json:"failed" gorm:"default:0"`

	DurationMs   *int64         `json:"duration_ms"`
	ErrorMessage string         `json:"error_message"`
	Metadata     map[string]any `json:"metadata" gorm:"serializer:json"`
}

// IsTerminal reports whether the run has finished (in any state).
func (j *JobHistory) IsTerminal() bool {
	return j.Status != JobStatusRunning
}
