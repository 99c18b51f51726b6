package sheets

import (
	"context"

	"moneyflow/internal/core"
)

// Row statuses written to the last column of an exported row.
const (
	StatusLive    = "live"
	StatusDeleted = "deleted"
)

// Ports for outbound adapters.
type (
	// LedgerExporter mirrors ledger entries into an external spreadsheet.
	// Both operations are keyed by transaction id and safe to repeat.
	LedgerExporter interface {
		Append(ctx context.Context, t core.Transaction) (rowRef string, err error)
		MarkDeleted(ctx context.Context, t core.Transaction) error
	}
)
