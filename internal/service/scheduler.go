package service

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/froberg/shopsync/internal/config"
	"github.com/froberg/shopsync/internal/domain"
	"github.com/froberg/shopsync/internal/logger"
	"github.com/froberg/shopsync/internal/repository"
)

// DispatchFilter narrows one scheduling pass to an object type and/or shop.
type DispatchFilter struct {
	ObjectType domain.ObjectType
	Shop       string
}

// DispatchResult summarizes one scheduling pass for the dispatch endpoint.
// Failures never surface as stack traces here, only as status counts.
type DispatchResult struct {
	Complete        bool            `json:"complete"`
	Message         string          `json:"message"`
	Stats           domain.JobStats `json:"stats"`
	DurationSeconds float64         `json:"duration_seconds"`
}

// Scheduler selects and dispatches pending sync jobs in dependency order.
// Each pass: reclaim stale running jobs, pick a bounded batch of ready
// pending jobs (dependency rank first, then date, then shop), restrict the
// batch to its first object type so two object types never run concurrently
// for one shop, dispatch at most one job per shop in parallel, and wait for
// all of them. The pass returns promptly; an external timer invokes it
// repeatedly until Complete.
type Scheduler struct {
	jobs    *repository.JobRepository
	workers map[domain.ObjectType]Worker
	cfg     *config.SchedulerConfig
}

// NewScheduler creates a Scheduler. The worker map binds each object type
// to the component that processes it.
func NewScheduler(jobs *repository.JobRepository, workers map[domain.ObjectType]Worker, cfg *config.SchedulerConfig) *Scheduler {
	return &Scheduler{
		jobs:    jobs,
		workers: workers,
		cfg:     cfg,
	}
}

// RunPass performs one scheduling pass.
func (s *Scheduler) RunPass(ctx context.Context, filter DispatchFilter) (*DispatchResult, error) {
	start := time.Now()

	// Stale reclaim runs before any new work is claimed, so a crashed
	// worker's job is visible as failed rather than blocking forever.
	reclaimed, err := s.jobs.FailStale(ctx, time.Now().UTC().Add(-s.cfg.StalenessThreshold))
	if err != nil {
		return nil, fmt.Errorf("reclaim stale jobs: %w", err)
	}
	if reclaimed > 0 {
		logger.With(logger.Fields{logger.FieldCount: reclaimed}).
			Warn(ctx, "Reclaimed stale running jobs as failed")
	}

	batch, err := s.selectBatch(ctx, filter)
	if err != nil {
		return nil, err
	}

	dispatched := s.dispatch(ctx, batch)

	stats, err := s.jobs.Stats(ctx, filter.ObjectType, filter.Shop)
	if err != nil {
		return nil, err
	}

	result := &DispatchResult{
		Complete:        !stats.Remaining(),
		Stats:           stats,
		DurationSeconds: time.Since(start).Seconds(),
	}
	if result.Complete {
		result.Message = "all jobs processed"
	} else {
		result.Message = fmt.Sprintf("dispatched %d job(s), %d pending", dispatched, stats.Pending)
	}

	logger.With(logger.Fields{
		logger.FieldCount:      dispatched,
		logger.FieldDurationMs: time.Since(start).Milliseconds(),
	}).Info(ctx, "Scheduling pass done: %s", result.Message)

	return result, nil
}

// selectBatch picks the jobs for this pass: ready pending jobs of the first
// (lowest-rank) object type present, at most one per shop, capped by the
// object type's parallelism limit.
func (s *Scheduler) selectBatch(ctx context.Context, filter DispatchFilter) ([]domain.SyncJob, error) {
	// Over-fetch so blocked jobs don't starve the pass.
	candidates, err := s.jobs.FindPending(ctx, s.cfg.BatchSize*3, filter.ObjectType, filter.Shop)
	if err != nil {
		return nil, fmt.Errorf("find pending jobs: %w", err)
	}

	var ready []domain.SyncJob
	for _, job := range candidates {
		blocked, err := s.jobs.HasIncompletePrerequisite(ctx, job.Shop, job.ObjectType.Prerequisites(), job.StartDate, job.EndDate)
		if err != nil {
			return nil, err
		}
		if !blocked {
			ready = append(ready, job)
		}
	}
	if len(ready) == 0 {
		return nil, nil
	}

	// Only the first object type present runs this pass. Mixing types
	// would let two workers write the same shop's rows concurrently.
	firstType := ready[0].ObjectType
	seenShop := make(map[string]bool)
	var batch []domain.SyncJob
	for _, job := range ready {
		if job.ObjectType != firstType {
			continue
		}
		if seenShop[job.Shop] {
			continue
		}
		seenShop[job.Shop] = true
		batch = append(batch, job)
		if len(batch) >= s.cfg.BatchSize {
			break
		}
	}

	if cap := s.cfg.ParallelismFor(string(firstType)); cap > 0 && len(batch) > cap {
		batch = batch[:cap]
	}
	return batch, nil
}

// dispatch fans one goroutine out per job and fans back in before
// returning. Shops are disjoint, so cross-shop parallelism needs no
// additional locking.
func (s *Scheduler) dispatch(ctx context.Context, batch []domain.SyncJob) int {
	var dispatched int64
	var wg sync.WaitGroup
	for i := range batch {
		job := batch[i]
		wg.Add(1)
		go func() {
			defer wg.Done()
			if s.runOne(ctx, &job) {
				atomic.AddInt64(&dispatched, 1)
			}
		}()
	}
	wg.Wait()
	return int(atomic.LoadInt64(&dispatched))
}

// runOne claims and processes a single job, reporting whether it was
// actually dispatched. Every failure path lands on the job row as a
// truncated error message; nothing is silently dropped.
func (s *Scheduler) runOne(ctx context.Context, job *domain.SyncJob) bool {
	claimed, err := s.jobs.Claim(ctx, job.ID)
	if err != nil {
		logger.FromContext(ctx).WithError(err).Error("Failed to claim job")
		return false
	}
	if !claimed {
		// Another pass won the conditional update.
		return false
	}

	jobCtx := logger.SetJob(ctx, job.ID, job.Shop, string(job.ObjectType))
	jobCtx, cancel := context.WithTimeout(jobCtx, s.cfg.WorkerBudget)
	defer cancel()

	worker, ok := s.workers[job.ObjectType]
	if !ok {
		s.finalize(ctx, job, WorkerResult{}, fmt.Errorf("no worker registered for object type %q", job.ObjectType))
		return true
	}

	result, err := worker.Run(jobCtx, job)
	// Finalize with the parent context: the budget may already be spent.
	s.finalize(ctx, job, result, err)
	return true
}

func (s *Scheduler) finalize(ctx context.Context, job *domain.SyncJob, result WorkerResult, runErr error) {
	switch {
	case runErr != nil:
		logger.FromContext(ctx).WithError(runErr).
			WithField(logger.FieldJobID, job.ID).
			Error("Job failed")
		if err := s.jobs.MarkFailed(ctx, job.ID, runErr.Error()); err != nil {
			logger.FromContext(ctx).WithError(err).Error("Failed to mark job failed")
		}
	case !result.Done:
		// Partial progress from a resumable worker: back to pending with
		// the cursor, not a failure.
		if err := s.jobs.Requeue(ctx, job.ID, result.Cursor, result.Records); err != nil {
			logger.FromContext(ctx).WithError(err).Error("Failed to requeue job")
		}
	default:
		if err := s.jobs.MarkCompleted(ctx, job.ID, result.Records); err != nil {
			logger.FromContext(ctx).WithError(err).Error("Failed to mark job completed")
		}
	}
}
