package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/froberg/shopsync/internal/domain"
	"gorm.io/gorm"
)

// maxErrorLen bounds the error text persisted on a failed job.
const maxErrorLen = 500

// JobRepository handles sync job persistence. Ownership of a job is
// established by the conditional pending->running update in Claim: the
// worker that wins the row owns it until it writes a terminal status.
type JobRepository struct {
	db *gorm.DB
}

// NewJobRepository creates a new JobRepository.
func NewJobRepository(db *gorm.DB) *JobRepository {
	return &JobRepository{db: db}
}

// Create inserts a new sync job.
func (r *JobRepository) Create(ctx context.Context, job *domain.SyncJob) error {
	return r.db.WithContext(ctx).Create(job).Error
}

// GetByID retrieves a job by its ID.
func (r *JobRepository) GetByID(ctx context.Context, id string) (*domain.SyncJob, error) {
	var job domain.SyncJob
	if err := r.db.WithContext(ctx).First(&job, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &job, nil
}

// Exists checks whether a job for the exact unit of work is already present
// in any status. Used by backfill seeding to avoid duplicates.
func (r *JobRepository) Exists(ctx context.Context, shop string, objectType domain.ObjectType, startDate, endDate time.Time) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&domain.SyncJob{}).
		Where("shop = ? AND object_type = ? AND start_date = ? AND end_date = ?",
			shop, objectType, startDate, endDate).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// rankCase builds an ORDER BY expression mapping object types to their
// static dependency rank, so pending jobs come back dependency-first.
func rankCase() string {
	var b strings.Builder
	b.WriteString("CASE object_type")
	for _, t := range domain.AllObjectTypes() {
		fmt.Fprintf(&b, " WHEN '%s' THEN %d", t, t.Rank())
	}
	b.WriteString(" ELSE 99 END")
	return b.String()
}

// FindPending returns pending jobs ordered by dependency rank, then start
// date, then shop. Empty filter values match everything.
func (r *JobRepository) FindPending(ctx context.Context, limit int, objectType domain.ObjectType, shop string) ([]domain.SyncJob, error) {
	query := r.db.WithContext(ctx).
		Where("status = ?", domain.JobStatusPending)
	if objectType != "" {
		query = query.Where("object_type = ?", objectType)
	}
	if shop != "" {
		query = query.Where("shop = ?", shop)
	}

	var jobs []domain.SyncJob
	if err := query.
		Order(rankCase() + ", start_date ASC, shop ASC").
		Limit(limit).
		Find(&jobs).Error; err != nil {
		return nil, err
	}
	return jobs, nil
}

// HasIncompletePrerequisite reports whether any job of the given object
// types overlaps the date range for the shop and is not completed. A failed
// prerequisite blocks dependents until an operator re-seeds it.
func (r *JobRepository) HasIncompletePrerequisite(ctx context.Context, shop string, objectTypes []domain.ObjectType, startDate, endDate time.Time) (bool, error) {
	if len(objectTypes) == 0 {
		return false, nil
	}
	var count int64
	err := r.db.WithContext(ctx).Model(&domain.SyncJob{}).
		Where("shop = ? AND object_type IN ?", shop, objectTypes).
		Where("start_date <= ? AND end_date >= ?", endDate, startDate).
		Where("status <> ?", domain.JobStatusCompleted).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// Claim flips a job from pending to running. Returns false when another
// worker already claimed it (or its status changed underneath us).
func (r *JobRepository) Claim(ctx context.Context, id string) (bool, error) {
	now := time.Now().UTC()
	res := r.db.WithContext(ctx).Model(&domain.SyncJob{}).
		Where("id = ? AND status = ?", id, domain.JobStatusPending).
		Updates(map[string]interface{}{
			"status":        domain.JobStatusRunning,
			"started_at":    now,
			"error_message": "",
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// MarkCompleted records a terminal success, clearing any resume cursor.
func (r *JobRepository) MarkCompleted(ctx context.Context, id string, records int) error {
	now := time.Now().UTC()
	return r.db.WithContext(ctx).Model(&domain.SyncJob{}).
		Where("id = ? AND status = ?", id, domain.JobStatusRunning).
		Updates(map[string]interface{}{
			"status":            domain.JobStatusCompleted,
			"completed_at":      now,
			"progress_cursor":   "",
			"records_processed": gorm.Expr("records_processed + ?", records),
		}).Error
}

// MarkFailed records a terminal failure with a truncated error message.
func (r *JobRepository) MarkFailed(ctx context.Context, id string, errMsg string) error {
	now := time.Now().UTC()
	return r.db.WithContext(ctx).Model(&domain.SyncJob{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":        domain.JobStatusFailed,
			"completed_at":  now,
			"error_message": truncate(errMsg, maxErrorLen),
		}).Error
}

// Requeue returns a partially processed job to pending with its resume
// cursor, accumulating the records processed so far. Used by resumable
// workers that ran out of invocation budget.
func (r *JobRepository) Requeue(ctx context.Context, id string, cursor string, records int) error {
	return r.db.WithContext(ctx).Model(&domain.SyncJob{}).
		Where("id = ? AND status = ?", id, domain.JobStatusRunning).
		Updates(map[string]interface{}{
			"status":            domain.JobStatusPending,
			"progress_cursor":   cursor,
			"records_processed": gorm.Expr("records_processed + ?", records),
		}).Error
}

// FailStale force-fails jobs stuck in running since before the given
// instant, covering workers that crashed without a trace. Returns the number
// of jobs reclaimed.
func (r *JobRepository) FailStale(ctx context.Context, olderThan time.Time) (int64, error) {
	now := time.Now().UTC()
	res := r.db.WithContext(ctx).Model(&domain.SyncJob{}).
		Where("status = ? AND started_at < ?", domain.JobStatusRunning, olderThan).
		Updates(map[string]interface{}{
			"status":        domain.JobStatusFailed,
			"completed_at":  now,
			"error_message": "worker exceeded staleness threshold; reclaimed by scheduler",
		})
	return res.RowsAffected, res.Error
}

// Stats returns job counts per status, optionally filtered.
func (r *JobRepository) Stats(ctx context.Context, objectType domain.ObjectType, shop string) (domain.JobStats, error) {
	var stats domain.JobStats
	type row struct {
		Status domain.JobStatus
		N      int64
	}
	query := r.db.WithContext(ctx).Model(&domain.SyncJob{}).
		Select("status, count(*) as n").
		Group("status")
	if objectType != "" {
		query = query.Where("object_type = ?", objectType)
	}
	if shop != "" {
		query = query.Where("shop = ?", shop)
	}
	var rows []row
	if err := query.Find(&rows).Error; err != nil {
		return stats, err
	}
	for _, r := range rows {
		switch r.Status {
		case domain.JobStatusPending:
			stats.Pending = r.N
		case domain.JobStatusRunning:
			stats.Running = r.N
		case domain.JobStatusCompleted:
			stats.Completed = r.N
		case domain.JobStatusFailed:
			stats.Failed = r.N
		}
	}
	return stats, nil
}

// List retrieves jobs with optional filters and pagination, newest first.
func (r *JobRepository) List(ctx context.Context, shop string, objectType domain.ObjectType, status domain.JobStatus, limit, offset int) ([]domain.SyncJob, error) {
	query := r.db.WithContext(ctx).Model(&domain.SyncJob{})
	if shop != "" {
		query = query.Where("shop = ?", shop)
	}
	if objectType != "" {
		query = query.Where("object_type = ?", objectType)
	}
	if status != "" {
		query = query.Where("status = ?", status)
	}
	var jobs []domain.SyncJob
	if err := query.
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&jobs).Error; err != nil {
		return nil, err
	}
	return jobs, nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
