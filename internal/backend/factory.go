package backend

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	goption "google.golang.org/api/option"

	gsheet "moneyflow/internal/sheets/google"
	"moneyflow/internal/sheets/memory"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *slog.Logger
}

// NewFactory creates a new backend factory
func NewFactory(logger *slog.Logger) Factory {
	if logger == nil {
		logger = slog.Default()
	}
	return &DefaultFactory{
		logger: logger,
	}
}

// CreateBackend implements Factory.CreateBackend
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*BackendResult, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	switch config.Type {
	case NoneBackend:
		f.logger.Info("Ledger export disabled")
		return &BackendResult{}, nil
	case SheetsBackend:
		return f.createSheetsBackend(ctx, config)
	case MemoryBackend:
		f.logger.Info("Initialized memory export backend")
		return &BackendResult{Exporter: memory.New()}, nil
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}
}

func (f *DefaultFactory) createSheetsBackend(ctx context.Context, config Config) (*BackendResult, error) {
	credentials := []byte(config.GoogleServiceAccountJSON)
	if len(credentials) == 0 {
		var err error
		credentials, err = os.ReadFile(config.GoogleServiceAccountFile)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
	}

	cli, err := gsheet.New(ctx, config.GoogleSpreadsheetID, config.GoogleSheetName,
		goption.WithCredentialsJSON(credentials))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Google Sheets client: %w", err)
	}

	f.logger.Info("Initialized Google Sheets export backend",
		"spreadsheet_id", config.GoogleSpreadsheetID,
		"sheet", config.GoogleSheetName)

	return &BackendResult{Exporter: cli}, nil
}
