// Package warehouse persists scan logs, products, and users in the
// analytical store. All three operations are check-then-act: the store is
// append-oriented, so there are no transactions and no true upserts, and two
// concurrent writers can both pass the existence check. The store's own
// duplicate-key behavior decides that race.
package warehouse

import (
	"context"
	"fmt"

	"github.com/cosmescan/backend/internal/analysis"
	"github.com/cosmescan/backend/internal/config"
	"github.com/cosmescan/backend/internal/logger"
	"github.com/cosmescan/backend/internal/models"
)

// Store is the persistence layer behind the pipeline.
type Store interface {
	// AppendScanLog assigns the next log id (current max + 1, 1 for an
	// empty table) and appends one row. Returns the assigned id.
	AppendScanLog(ctx context.Context, entry *models.ScanLog) (int64, error)

	// SaveProductIfAbsent appends one product row keyed by barcode unless
	// one already exists; the existing-row path is a logged no-op. An
	// unparsed evaluation skips ingredient projection gracefully.
	SaveProductIfAbsent(ctx context.Context, outcome analysis.Outcome, barcode string) error

	// SaveUserIfAbsent appends one user row keyed by the profile's uid
	// unless one already exists.
	SaveUserIfAbsent(ctx context.Context, profile *models.UserProfile) error

	// RecentScanLogs returns up to limit rows, newest first.
	RecentScanLogs(ctx context.Context, limit int) ([]*models.ScanLog, error)

	Close() error
}

// New creates a store for the configured backend type.
func New(ctx context.Context, cfg config.Warehouse, credentialsFile string, log *logger.Logger) (Store, error) {
	switch cfg.Type {
	case "bigquery":
		return NewBigQueryStore(ctx, cfg, credentialsFile, log)
	case "sqlite":
		return NewSQLiteStore(cfg.Path, log)
	default:
		return nil, fmt.Errorf("unsupported warehouse type: %s", cfg.Type)
	}
}
