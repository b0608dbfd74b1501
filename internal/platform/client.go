package platform

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
)

// Sentinel errors surfaced by the client.
var (
	// ErrExportConflict means the platform already has an active export
	// for this shop; the platform allows only one at a time.
	ErrExportConflict = errors.New("another export is already active for this shop")

	// ErrOperationNotFound means the polled operation id is unknown upstream.
	ErrOperationNotFound = errors.New("export operation not found")
)

// Config holds the per-client settings taken from the platform section of
// the application config.
type Config struct {
	Domain         string
	Token          string
	APIVersion     string
	RetryCount     int
	RetryWaitTime  time.Duration
	RequestTimeout time.Duration
}

// Client talks to one shop's upstream admin API: bulk export submission and
// polling, result download, and the synchronous per-order refund endpoint.
// Transient upstream errors (rate limits, 5xx) are retried with backoff
// inside the client and never surface on first occurrence.
type Client struct {
	rc   *resty.Client
	shop string
}

// NewClient creates a client bound to one shop.
func NewClient(shop string, cfg *Config) *Client {
	rc := resty.New()
	rc.SetBaseURL(fmt.Sprintf("https://%s/admin/api/%s", cfg.Domain, cfg.APIVersion))
	rc.SetHeader("X-Api-Token", cfg.Token)
	rc.SetHeader("Content-Type", "application/json")
	rc.SetTimeout(cfg.RequestTimeout)
	rc.SetRetryCount(cfg.RetryCount)
	rc.SetRetryWaitTime(cfg.RetryWaitTime)
	rc.AddRetryCondition(func(r *resty.Response, err error) bool {
		if err != nil {
			return true
		}
		return r.StatusCode() == http.StatusTooManyRequests || r.StatusCode() >= 500
	})

	return &Client{rc: rc, shop: shop}
}

// Shop returns the shop this client is bound to.
func (c *Client) Shop() string {
	return c.shop
}

// CurrentOperation returns the export currently occupying this shop's slot,
// or nil when none is active.
func (c *Client) CurrentOperation(ctx context.Context) (*Operation, error) {
	var op Operation
	resp, err := c.rc.R().
		SetContext(ctx).
		SetResult(&op).
		Get("/bulk_exports/current")
	if err != nil {
		return nil, fmt.Errorf("fetch current export: %w", err)
	}
	if resp.StatusCode() == http.StatusNotFound {
		return nil, nil
	}
	if resp.IsError() {
		return nil, fmt.Errorf("fetch current export: unexpected status %d", resp.StatusCode())
	}
	return &op, nil
}

// SubmitExport submits a bulk export query. The platform rejects submission
// outright while another export is active, reported as ErrExportConflict.
func (c *Client) SubmitExport(ctx context.Context, query string) (*Operation, error) {
	var op Operation
	resp, err := c.rc.R().
		SetContext(ctx).
		SetBody(map[string]string{"query": query}).
		SetResult(&op).
		Post("/bulk_exports")
	if err != nil {
		return nil, fmt.Errorf("submit export: %w", err)
	}
	if resp.StatusCode() == http.StatusConflict {
		return nil, ErrExportConflict
	}
	if resp.IsError() {
		return nil, fmt.Errorf("submit export: unexpected status %d", resp.StatusCode())
	}
	return &op, nil
}

// PollOperation refreshes one operation by id.
func (c *Client) PollOperation(ctx context.Context, id string) (*Operation, error) {
	var op Operation
	resp, err := c.rc.R().
		SetContext(ctx).
		SetResult(&op).
		Get("/bulk_exports/" + id)
	if err != nil {
		return nil, fmt.Errorf("poll export %s: %w", id, err)
	}
	if resp.StatusCode() == http.StatusNotFound {
		return nil, ErrOperationNotFound
	}
	if resp.IsError() {
		return nil, fmt.Errorf("poll export %s: unexpected status %d", id, resp.StatusCode())
	}
	return &op, nil
}

// CancelOperation asks the platform to cancel an active export.
func (c *Client) CancelOperation(ctx context.Context, id string) error {
	resp, err := c.rc.R().
		SetContext(ctx).
		Post("/bulk_exports/" + id + "/cancel")
	if err != nil {
		return fmt.Errorf("cancel export %s: %w", id, err)
	}
	if resp.IsError() && resp.StatusCode() != http.StatusNotFound {
		return fmt.Errorf("cancel export %s: unexpected status %d", id, resp.StatusCode())
	}
	return nil
}

// Download streams the result file of a completed export. The caller must
// close the returned reader.
func (c *Client) Download(ctx context.Context, url string) (io.ReadCloser, error) {
	resp, err := c.rc.R().
		SetContext(ctx).
		SetDoNotParseResponse(true).
		Get(url)
	if err != nil {
		return nil, fmt.Errorf("download export result: %w", err)
	}
	if resp.StatusCode() >= 400 {
		resp.RawBody().Close()
		return nil, fmt.Errorf("download export result: unexpected status %d", resp.StatusCode())
	}
	return resp.RawBody(), nil
}

// RefundsForOrder fetches the refunds of one order via the synchronous API.
// One call per order is what makes refund enrichment a resumable batch
// worker rather than a bulk export.
func (c *Client) RefundsForOrder(ctx context.Context, orderID string) ([]RefundRecord, error) {
	var out struct {
		Refunds []RefundRecord `json:"refunds"`
	}
	resp, err := c.rc.R().
		SetContext(ctx).
		SetResult(&out).
		Get("/orders/" + orderID + "/refunds")
	if err != nil {
		return nil, fmt.Errorf("fetch refunds for order %s: %w", orderID, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("fetch refunds for order %s: unexpected status %d", orderID, resp.StatusCode())
	}
	return out.Refunds, nil
}
