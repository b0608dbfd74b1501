package storage

import (
	"context"
	"fmt"
	"io"
	"time"
)

// ExportArchive stores raw export result files so an ingestion can be
// audited or replayed without re-running the upstream export.
type ExportArchive interface {
	// Put uploads one result file under the given key.
	Put(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error
}

// ExportKey builds the canonical archive key for one sync unit of work.
func ExportKey(shop string, objectType string, startDate time.Time) string {
	return fmt.Sprintf("exports/%s/%s/%s.jsonl", shop, startDate.UTC().Format("2006-01-02"), objectType)
}
