package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/froberg/shopsync/internal/config"
	"github.com/froberg/shopsync/internal/domain"
	"github.com/froberg/shopsync/internal/logger"
	"github.com/froberg/shopsync/internal/platform"
	"github.com/froberg/shopsync/internal/repository"
	"github.com/froberg/shopsync/internal/storage"
)

// ErrExportTimeout is returned when an export did not finish within the
// polling attempt budget.
var ErrExportTimeout = errors.New("export polling exceeded max attempts")

// PlatformClient is the slice of the upstream client the sync services use.
// *platform.Client implements it.
type PlatformClient interface {
	CurrentOperation(ctx context.Context) (*platform.Operation, error)
	SubmitExport(ctx context.Context, query string) (*platform.Operation, error)
	PollOperation(ctx context.Context, id string) (*platform.Operation, error)
	CancelOperation(ctx context.Context, id string) error
	Download(ctx context.Context, url string) (io.ReadCloser, error)
	RefundsForOrder(ctx context.Context, orderID string) ([]platform.RefundRecord, error)
}

// ClientFactory returns the platform client for one shop.
type ClientFactory func(shop string) (PlatformClient, error)

// ExportService drives one bulk export to completion for the object types
// that sync via the platform's asynchronous export API: submit the query,
// poll until done, stream-download and parse the result, and batch-upsert
// the rows. One invocation covers one (shop, object type, date range) job.
type ExportService struct {
	orders  *repository.OrderRepository
	clients ClientFactory
	archive storage.ExportArchive // nil disables archiving
	cfg     *config.PlatformConfig
}

// NewExportService creates a new ExportService. archive may be nil.
func NewExportService(
	orders *repository.OrderRepository,
	clients ClientFactory,
	archive storage.ExportArchive,
	cfg *config.PlatformConfig,
) *ExportService {
	return &ExportService{
		orders:  orders,
		clients: clients,
		archive: archive,
		cfg:     cfg,
	}
}

// Run executes the export state machine for one job.
func (s *ExportService) Run(ctx context.Context, job *domain.SyncJob) (WorkerResult, error) {
	client, err := s.clients(job.Shop)
	if err != nil {
		return WorkerResult{}, err
	}

	var query string
	switch job.ObjectType {
	case domain.ObjectTypeOrders:
		query = platform.OrderExportQuery(job.StartDate, job.EndDate)
	case domain.ObjectTypeSKUs:
		query = platform.SKUExportQuery()
	case domain.ObjectTypeShippingDiscounts:
		query = platform.ShippingExportQuery(job.StartDate, job.EndDate)
	default:
		return WorkerResult{}, fmt.Errorf("object type %q does not sync via bulk export", job.ObjectType)
	}

	url, err := s.runExport(ctx, client, query)
	if err != nil {
		return WorkerResult{}, err
	}
	if url == "" {
		// Zero results for the period is a successful sync, not an error.
		logger.CtxInfo(ctx, "Export finished with zero results")
		return WorkerResult{Done: true}, nil
	}

	records, err := s.ingestResult(ctx, client, job, url)
	if err != nil {
		return WorkerResult{}, err
	}
	return WorkerResult{Done: true, Records: records}, nil
}

// runExport walks the export through submit and polling and returns the
// result URL, or an empty URL when the export completed with no objects.
func (s *ExportService) runExport(ctx context.Context, client PlatformClient, query string) (string, error) {
	op, err := s.submit(ctx, client, query)
	if err != nil {
		return "", err
	}

	for attempt := 1; attempt <= s.cfg.MaxPollAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(s.cfg.PollInterval):
		}

		op, err = client.PollOperation(ctx, op.ID)
		if err != nil {
			return "", err
		}

		logger.With(logger.Fields{
			logger.FieldStatus: op.Status,
			logger.FieldCount:  op.ObjectCount,
		}).Info(ctx, "Export poll %d/%d", attempt, s.cfg.MaxPollAttempts)

		switch op.Status {
		case platform.StatusCompleted:
			return op.URL, nil
		case platform.StatusFailed, platform.StatusCancelled:
			return "", fmt.Errorf("export finished %s (%s)", op.Status, op.ErrorCode)
		}
	}
	return "", ErrExportTimeout
}

// submit places the export query, resolving the platform's one-export-per-
// shop constraint: an already active export is cancelled and the submission
// retried after a short wait. Skipping this check makes submission fail
// outright, so it is not optional.
func (s *ExportService) submit(ctx context.Context, client PlatformClient, query string) (*platform.Operation, error) {
	current, err := client.CurrentOperation(ctx)
	if err != nil {
		return nil, err
	}
	if current != nil && current.Active() {
		logger.CtxWarn(ctx, "Cancelling already-active export %s before submitting", current.ID)
		if err := client.CancelOperation(ctx, current.ID); err != nil {
			return nil, err
		}
		if err := sleepCtx(ctx, s.cfg.ConflictWait); err != nil {
			return nil, err
		}
	}

	op, err := client.SubmitExport(ctx, query)
	if errors.Is(err, platform.ErrExportConflict) {
		// Raced with an export submitted between our check and submit.
		current, cerr := client.CurrentOperation(ctx)
		if cerr != nil {
			return nil, cerr
		}
		if current != nil && current.Active() {
			if cerr := client.CancelOperation(ctx, current.ID); cerr != nil {
				return nil, cerr
			}
		}
		if cerr := sleepCtx(ctx, s.cfg.ConflictWait); cerr != nil {
			return nil, cerr
		}
		op, err = client.SubmitExport(ctx, query)
	}
	if err != nil {
		return nil, err
	}
	return op, nil
}

// ingestResult downloads the result file, optionally archives it, parses it
// and upserts the rows. The download is spooled to a temp file so the same
// bytes can be archived and parsed without holding them in memory.
func (s *ExportService) ingestResult(ctx context.Context, client PlatformClient, job *domain.SyncJob, url string) (int, error) {
	body, err := client.Download(ctx, url)
	if err != nil {
		return 0, err
	}
	defer body.Close()

	tmp, err := os.CreateTemp("", "shopsync-export-*.jsonl")
	if err != nil {
		return 0, fmt.Errorf("spool export result: %w", err)
	}
	defer func() {
		tmp.Close()
		os.Remove(tmp.Name())
	}()

	size, err := io.Copy(tmp, body)
	if err != nil {
		return 0, fmt.Errorf("spool export result: %w", err)
	}

	if s.archive != nil {
		if _, err := tmp.Seek(0, io.SeekStart); err != nil {
			return 0, err
		}
		key := storage.ExportKey(job.Shop, string(job.ObjectType), job.StartDate)
		if err := s.archive.Put(ctx, key, tmp, size, "application/x-ndjson"); err != nil {
			// Archiving is best-effort; the sync itself must not fail on it.
			logger.FromContext(ctx).WithError(err).Warn("Failed to archive export result")
		}
	}

	if _, err := tmp.Seek(0, io.SeekStart); err != nil {
		return 0, err
	}

	switch job.ObjectType {
	case domain.ObjectTypeOrders:
		return s.loadOrders(ctx, job, tmp)
	case domain.ObjectTypeSKUs:
		return s.loadSKUs(ctx, job, tmp)
	case domain.ObjectTypeShippingDiscounts:
		return s.loadShipping(ctx, job, tmp)
	}
	return 0, fmt.Errorf("object type %q has no result loader", job.ObjectType)
}

func (s *ExportService) loadOrders(ctx context.Context, job *domain.SyncJob, r io.Reader) (int, error) {
	nodes, err := platform.ParseOrderExport(r)
	if err != nil {
		return 0, err
	}

	orders := make([]domain.Order, 0, len(nodes))
	var lines []domain.OrderLine
	for _, node := range nodes {
		orders = append(orders, domain.Order{
			Shop:              job.Shop,
			ExternalID:        node.ID,
			OrderNumber:       node.Name,
			Currency:          node.Currency,
			GrossAmount:       node.GrossAmount,
			NetAmount:         node.NetAmount,
			DiscountAmount:    node.DiscountAmount,
			ShippingGross:     node.ShippingGross,
			ShippingNet:       node.ShippingNet,
			CreatedAtOriginal: node.CreatedAt,
			RemoteUpdatedAt:   node.UpdatedAt,
			CancelledAt:       node.CancelledAt,
		})
		for _, line := range node.Lines {
			lines = append(lines, domain.OrderLine{
				Shop:              job.Shop,
				ExternalID:        line.ID,
				OrderExternalID:   node.ID,
				SKU:               line.SKU,
				Quantity:          line.Quantity,
				GrossAmount:       line.GrossAmount,
				NetAmount:         line.NetAmount,
				DiscountAmount:    line.DiscountAmount,
				CreatedAtOriginal: node.CreatedAt,
				RemoteUpdatedAt:   node.UpdatedAt,
			})
		}
	}

	if err := s.orders.UpsertOrders(ctx, orders, s.cfg.ChunkSize); err != nil {
		return 0, fmt.Errorf("upsert orders: %w", err)
	}
	if err := s.orders.UpsertLines(ctx, lines, s.cfg.ChunkSize); err != nil {
		return 0, fmt.Errorf("upsert order lines: %w", err)
	}

	logger.With(logger.Fields{logger.FieldCount: len(orders)}).
		Info(ctx, "Loaded %d orders with %d lines", len(orders), len(lines))
	return len(orders) + len(lines), nil
}

func (s *ExportService) loadSKUs(ctx context.Context, job *domain.SyncJob, r io.Reader) (int, error) {
	records, err := platform.ParseSKUExport(r)
	if err != nil {
		return 0, err
	}

	skus := make([]domain.SKU, 0, len(records))
	for _, rec := range records {
		skus = append(skus, domain.SKU{
			Shop:            job.Shop,
			SKU:             rec.SKU,
			Color:           rec.Color,
			ArticleNumber:   rec.ArticleNumber,
			RemoteUpdatedAt: rec.UpdatedAt,
		})
	}
	if err := s.orders.UpsertSKUs(ctx, skus, s.cfg.ChunkSize); err != nil {
		return 0, fmt.Errorf("upsert skus: %w", err)
	}
	return len(skus), nil
}

func (s *ExportService) loadShipping(ctx context.Context, job *domain.SyncJob, r io.Reader) (int, error) {
	records, err := platform.ParseShippingExport(r)
	if err != nil {
		return 0, err
	}

	for _, rec := range records {
		err := s.orders.UpdateOrderShipping(ctx, job.Shop, rec.OrderID,
			rec.ShippingGross, rec.ShippingNet, rec.DiscountAmount, rec.UpdatedAt)
		if err != nil {
			return 0, fmt.Errorf("update shipping for order %s: %w", rec.OrderID, err)
		}
	}
	return len(records), nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
