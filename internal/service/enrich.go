package service

import (
	"context"
	"fmt"
	"time"

	"github.com/froberg/shopsync/internal/config"
	"github.com/froberg/shopsync/internal/domain"
	"github.com/froberg/shopsync/internal/logger"
	"github.com/froberg/shopsync/internal/repository"
)

// RefundEnrichService syncs refunds, which the platform only exposes one
// order at a time. A full date range can take far longer than one worker
// invocation's budget, so the service is resumable: it walks the ordered
// external-id key space, persists the furthest processed key as the job's
// cursor, and asks to be re-invoked until a batch comes back short.
type RefundEnrichService struct {
	orders    *repository.OrderRepository
	clients   ClientFactory
	batchSize int
	chunkSize int
}

// NewRefundEnrichService creates a new RefundEnrichService.
func NewRefundEnrichService(
	orders *repository.OrderRepository,
	clients ClientFactory,
	cfg *config.EnrichConfig,
	platformCfg *config.PlatformConfig,
) *RefundEnrichService {
	return &RefundEnrichService{
		orders:    orders,
		clients:   clients,
		batchSize: cfg.BatchSize,
		chunkSize: platformCfg.ChunkSize,
	}
}

// Run processes up to one batch of orders starting after the job's cursor.
// Processing the same order twice is harmless: refund writes are idempotent
// upserts keyed by the refund's external id.
func (s *RefundEnrichService) Run(ctx context.Context, job *domain.SyncJob) (WorkerResult, error) {
	client, err := s.clients(job.Shop)
	if err != nil {
		return WorkerResult{}, err
	}

	batch, err := s.orders.OrderKeysAfter(ctx, job.Shop, job.StartDate, job.EndDate, job.ProgressCursor, s.batchSize)
	if err != nil {
		return WorkerResult{}, fmt.Errorf("list orders after cursor: %w", err)
	}
	if len(batch) == 0 {
		return WorkerResult{Done: true}, nil
	}

	processed := 0
	cursor := job.ProgressCursor
	for _, order := range batch {
		// Leave cleanly on budget exhaustion; the cursor already covers
		// everything processed so far.
		if ctx.Err() != nil {
			return WorkerResult{Done: false, Cursor: cursor, Records: processed}, nil
		}

		records, err := client.RefundsForOrder(ctx, order.ExternalID)
		if err != nil {
			// The budget deadline can fire mid-call; the cursor still
			// covers everything processed, so requeue instead of failing.
			if ctx.Err() != nil {
				return WorkerResult{Done: false, Cursor: cursor, Records: processed}, nil
			}
			return WorkerResult{}, fmt.Errorf("fetch refunds for order %s: %w", order.ExternalID, err)
		}

		refunds := make([]domain.Refund, 0, len(records))
		for _, rec := range records {
			updatedAt := rec.UpdatedAt
			if updatedAt.IsZero() {
				updatedAt = time.Now().UTC()
			}
			refunds = append(refunds, domain.Refund{
				Shop:            job.Shop,
				ExternalID:      rec.ID,
				OrderExternalID: order.ExternalID,
				LineSKU:         rec.LineSKU,
				Quantity:        rec.Quantity,
				Amount:          rec.Amount,
				RefundDate:      rec.RefundDate,
				OrderCreatedAt:  order.CreatedAtOriginal,
				RemoteUpdatedAt: updatedAt,
			})
		}
		if err := s.orders.UpsertRefunds(ctx, refunds, s.chunkSize); err != nil {
			if ctx.Err() != nil {
				return WorkerResult{Done: false, Cursor: cursor, Records: processed}, nil
			}
			return WorkerResult{}, fmt.Errorf("upsert refunds for order %s: %w", order.ExternalID, err)
		}

		cursor = order.ExternalID
		processed++
	}

	// A short batch means the key space is exhausted.
	if len(batch) < s.batchSize {
		logger.With(logger.Fields{logger.FieldCount: processed}).
			Info(ctx, "Refund enrichment finished")
		return WorkerResult{Done: true, Records: processed}, nil
	}

	logger.With(logger.Fields{logger.FieldCount: processed}).
		Info(ctx, "Refund enrichment batch done, resuming at %s", cursor)
	return WorkerResult{Done: false, Cursor: cursor, Records: processed}, nil
}
