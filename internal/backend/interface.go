package backend

import (
	"context"

	"moneyflow/internal/sheets"
)

// CleanupFunc represents a cleanup function for resources
type CleanupFunc func() error

// BackendResult contains the exporter and an optional cleanup function.
// Exporter is nil for the none backend.
type BackendResult struct {
	Exporter sheets.LedgerExporter
	Cleanup  CleanupFunc
}

// Factory creates export backends based on configuration
type Factory interface {
	CreateBackend(ctx context.Context, config Config) (*BackendResult, error)
}

// Config holds configuration for backend creation
type Config struct {
	Type BackendType

	// Google Sheets specific
	GoogleSpreadsheetID      string
	GoogleSheetName          string
	GoogleServiceAccountFile string
	GoogleServiceAccountJSON string
}

// BackendType represents the type of export backend
type BackendType string

const (
	NoneBackend   BackendType = "none"
	SheetsBackend BackendType = "sheets"
	MemoryBackend BackendType = "memory"
)

// String implements fmt.Stringer
func (bt BackendType) String() string {
	return string(bt)
}

// IsValid returns true if the backend type is valid
func (bt BackendType) IsValid() bool {
	switch bt {
	case NoneBackend, SheetsBackend, MemoryBackend:
		return true
	default:
		return false
	}
}
