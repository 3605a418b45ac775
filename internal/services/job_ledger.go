package services

import (
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/codyseavey/pkmn-cataloguer/internal/metrics"
	"github.com/codyseavey/pkmn-cataloguer/internal/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ErrJobAlreadyRunning is returned by Begin when a job of the same category
// is still active. The API layer maps it to 409 Conflict.
var ErrJobAlreadyRunning = errors.New("a job of this category is already running")

// JobLedger owns the job_histories table. It is the single writer of job
// rows and enforces the one-running-job-per-category invariant; a mutex
// serializes the check-then-create in Begin, since SQLite offers no cheap
// conditional insert here.
type JobLedger struct {
	db *gorm.DB
	mu sync.Mutex
}

func NewJobLedger(db *gorm.DB) *JobLedger {
	return &JobLedger{db: db}
}

// Begin creates a running job row, or returns ErrJobAlreadyRunning when the
// category is busy.
func (l *JobLedger) Begin(jobType, jobName string, category models.JobCategory, meta map[string]any) (*models.JobHistory, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var count int64
	err := l.db.Model(&models.JobHistory{}).
		Where("category = ? AND status = ?", category, models.JobStatusRunning).
		Count(&count).Error
	if err != nil {
		return nil, fmt.Errorf("checking for running jobs: %w", err)
	}
	if count > 0 {
		return nil, ErrJobAlreadyRunning
	}

	job := &models.JobHistory{
		RunID:     uuid.New().String(),
		JobType:   jobType,
		JobName:   jobName,
		Category:  category,
		Status:    models.JobStatusRunning,
		StartedAt: time.Now().UTC(),
		Metadata:  meta,
	}
	if err := l.db.Create(job).Error; err != nil {
		return nil, fmt.Errorf("creating job record: %w", err)
	}

	metrics.RefreshJobRunning.WithLabelValues(string(category)).Set(1)
	log.Printf("Job ledger: started %s job %s (%s)", category, job.JobName, job.RunID)
	return job, nil
}

// RecordProgress updates the live counters on a running job. Persistence
// errors are logged, not returned: losing one progress tick must never
// fail the job itself.
func (l *JobLedger) RecordProgress(job *models.JobHistory, processed, succeeded, failed int) {
	job.Processed = processed
	job.Succeeded = succeeded
	job.Failed = failed

	err := l.db.Model(&models.JobHistory{}).
		Where("id = ?", job.ID).
		Updates(map[string]any{
			"processed": processed,
			"succeeded": succeeded,
			"failed":    failed,
		}).Error
	if err != nil {
		log.Printf("Job ledger: failed to record progress for %s: %v", job.RunID, err)
	}
}

func (l *JobLedger) finish(job *models.JobHistory, status models.JobStatus, errMsg string) error {
	now := time.Now().UTC()
	duration := now.Sub(job.StartedAt).Milliseconds()

	job.Status = status
	job.CompletedAt = &now
	job.DurationMs = &duration
	job.ErrorMessage = errMsg

	err := l.db.Model(&models.JobHistory{}).
		Where("id = ?", job.ID).
		Updates(map[string]any{
			"status":        status,
			"completed_at":  now,
			"duration_ms":   duration,
			"error_message": errMsg,
			"processed":     job.Processed,
			"succeeded":     job.Succeeded,
			"failed":        job.Failed,
		}).Error
	if err != nil {
		return fmt.Errorf("finishing job %s: %w", job.RunID, err)
	}

	metrics.RefreshJobRunning.WithLabelValues(string(job.Category)).Set(0)
	metrics.RefreshJobsTotal.WithLabelValues(string(job.Category), string(status)).Inc()
	metrics.RefreshJobDuration.WithLabelValues(string(job.Category)).Observe(float64(duration) / 1000)
	return nil
}

// Complete marks the job done: completed when every item succeeded,
// completed_with_errors otherwise.
func (l *JobLedger) Complete(job *models.JobHistory) error {
	status := models.JobStatusCompleted
	if job.Failed > 0 {
		status = models.JobStatusCompletedWithErrors
	}
	log.Printf("Job ledger: %s job %s finished %s (%d processed, %d failed)",
		job.Category, job.RunID, status, job.Processed, job.Failed)
	return l.finish(job, status, "")
}

// Fail marks the job failed with the given reason.
func (l *JobLedger) Fail(job *models.JobHistory, reason string) error {
	log.Printf("Job ledger: %s job %s failed: %s", job.Category, job.RunID, reason)
	return l.finish(job, models.JobStatusFailed, reason)
}

// FailRunning force-fails whatever job is currently running in the
// category. Used when a whole-job deadline fires and the per-item loop can
// no longer be trusted to wind down cleanly.
func (l *JobLedger) FailRunning(category models.JobCategory, reason string) error {
	var job models.JobHistory
	err := l.db.Where("category = ? AND status = ?", category, models.JobStatusRunning).
		Order("started_at DESC").First(&job).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	return l.Fail(&job, reason)
}

// CurrentRun returns the active job for a category, or nil, nil.
func (l *JobLedger) CurrentRun(category models.JobCategory) (*models.JobHistory, error) {
	var job models.JobHistory
	err := l.db.Where("category = ? AND status = ?", category, models.JobStatusRunning).
		Order("started_at DESC").First(&job).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &job, nil
}

// History returns the most recent job rows, newest first.
func (l *JobLedger) History(limit int) ([]models.JobHistory, error) {
	if limit <= 0 {
		limit = 50
	}
	var jobs []models.JobHistory
	err := l.db.Order("started_at DESC").Limit(limit).Find(&jobs).Error
	return jobs, err
}
