package service

import (
	"context"

	"github.com/froberg/shopsync/internal/domain"
)

// WorkerResult is the outcome of one worker invocation for one job.
// A resumable worker that ran out of budget returns Done=false with the
// cursor to resume from; the scheduler re-queues the job as pending.
type WorkerResult struct {
	Done    bool
	Cursor  string
	Records int
}

// Worker processes one claimed sync job. Implementations must be safe to
// invoke more than once for the same unit of work: all downstream writes are
// idempotent upserts, so duplicate partial processing is tolerated.
type Worker interface {
	Run(ctx context.Context, job *domain.SyncJob) (WorkerResult, error)
}
