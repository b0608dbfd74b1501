package domain

import "time"

// JobStatus represents the lifecycle state of a sync job.
// Values include JobStatusPending, JobStatusRunning, JobStatusCompleted, and JobStatusFailed.
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// SyncJob is one schedulable unit of sync work: one object type for one shop
// over one date range. Jobs move pending -> running -> completed/failed, or
// running -> pending when a resumable worker ran out of budget and persisted
// a cursor. ProgressCursor is deliberately a separate column from
// ErrorMessage so "partial progress" and "failed with message" can never be
// confused.
type SyncJob struct {
	ID               string     `gorm:"type:text;primaryKey" json:"id"`
	Shop             string     `gorm:"type:text;not null;index:idx_sync_jobs_shop_type" json:"shop"`
	ObjectType       ObjectType `gorm:"type:text;not null;index:idx_sync_jobs_shop_type" json:"object_type"`
	StartDate        time.Time  `gorm:"not null" json:"start_date"`
	EndDate          time.Time  `gorm:"not null" json:"end_date"`
	Status           JobStatus  `gorm:"default:pending;index" json:"status"`
	StartedAt        *time.Time `json:"started_at,omitempty"`
	CompletedAt      *time.Time `json:"completed_at,omitempty"`
	RecordsProcessed int        `gorm:"default:0" json:"records_processed"`
	ProgressCursor   string     `json:"progress_cursor,omitempty"`
	ErrorMessage     string     `json:"error_message,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// TableName returns the database table name for SyncJob.
func (SyncJob) TableName() string {
	return "sync_jobs"
}

// JobStats summarizes job counts per status, as reported by the dispatch
// endpoint after each scheduling pass.
type JobStats struct {
	Pending   int64 `json:"pending"`
	Running   int64 `json:"running"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
}

// Remaining reports whether any work is still outstanding.
func (s JobStats) Remaining() bool {
	return s.Pending > 0 || s.Running > 0
}
