package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"

	"moneyflow/internal/core"
	ports "moneyflow/internal/sheets"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"
)

// Client exports ledger entries to one sheet per calendar year of a
// spreadsheet ("2024 Ledger", "2025 Ledger", ...).
type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	sheetBase     string

	// Serializes the read-then-write row allocation.
	mu sync.Mutex
}

var _ ports.LedgerExporter = (*Client)(nil)

// DefaultSheetName is the base sheet name when none is configured.
const DefaultSheetName = "Ledger"

// New creates a client. Without options the service authenticates with
// service account credentials from GOOGLE_SERVICE_ACCOUNT_JSON,
// GOOGLE_SERVICE_ACCOUNT_FILE or GOOGLE_APPLICATION_CREDENTIALS.
func New(ctx context.Context, spreadsheetID, sheetBase string, opts ...goption.ClientOption) (*Client, error) {
	if strings.TrimSpace(spreadsheetID) == "" {
		return nil, errors.New("missing GOOGLE_SPREADSHEET_ID")
	}
	var (
		svc *gsheet.Service
		err error
	)
	if len(opts) == 0 {
		svc, err = newSheetsService(ctx)
	} else {
		svc, err = gsheet.NewService(ctx, append(opts, goption.WithScopes(gsheet.SpreadsheetsScope))...)
	}
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}
	return NewWithService(svc, spreadsheetID, sheetBase), nil
}

// NewWithService wraps an already configured Sheets service.
func NewWithService(svc *gsheet.Service, spreadsheetID, sheetBase string) *Client {
	sheetBase = strings.TrimSpace(sheetBase)
	if sheetBase == "" {
		sheetBase = DefaultSheetName
	}
	return &Client{
		svc:           svc,
		spreadsheetID: strings.TrimSpace(spreadsheetID),
		sheetBase:     sheetBase,
	}
}

// newSheetsService initializes a Sheets Service using Service Account credentials.
func newSheetsService(ctx context.Context) (*gsheet.Service, error) {
	serviceAccountJSON := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_JSON"))
	serviceAccountFile := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_FILE"))
	if serviceAccountJSON == "" && serviceAccountFile == "" {
		serviceAccountFile = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}

	var credentialsJSON []byte
	switch {
	case serviceAccountJSON != "":
		slog.InfoContext(ctx, "Using inline JSON credentials")
		credentialsJSON = []byte(serviceAccountJSON)
	case serviceAccountFile != "":
		slog.InfoContext(ctx, "Reading credentials from file", "path", serviceAccountFile)
		var err error
		credentialsJSON, err = os.ReadFile(serviceAccountFile)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
	}

	service, err := gsheet.NewService(ctx,
		goption.WithCredentialsJSON(credentialsJSON),
		goption.WithScopes(gsheet.SpreadsheetsScope))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return service, nil
}

// Append writes t to the sheet of its year. An entry exported before is
// rewritten in place, so redelivered events do not add rows.
func (c *Client) Append(ctx context.Context, t core.Transaction) (string, error) {
	if t.ID == 0 {
		return "", errors.New("transaction has no id")
	}
	if c.svc == nil {
		return "", errors.New("sheets service not initialized")
	}

	status := ports.StatusLive
	if t.Deleted {
		status = ports.StatusDeleted
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	sheet := yearPrefixedName(c.sheetBase, t.Date.Year())
	ids, err := c.readIDs(ctx, sheet)
	if err != nil {
		return "", err
	}

	row := findRow(ids, t.ID)
	if row == 0 {
		if len(ids) == 0 {
			if err := c.write(ctx, rowRange(sheet, 1), header); err != nil {
				return "", fmt.Errorf("write header to %s: %w", sheet, err)
			}
			ids = append(ids, header[:1])
		}
		row = len(ids) + 1
	}

	ref := rowRange(sheet, row)
	if err := c.write(ctx, ref, toRow(t, status)); err != nil {
		return "", fmt.Errorf("write row to %s: %w", sheet, err)
	}
	return ref, nil
}

// MarkDeleted flags the exported row of t as deleted. Rows are never
// removed so the sheet keeps the audit trail. An entry that was never
// exported is ignored.
func (c *Client) MarkDeleted(ctx context.Context, t core.Transaction) error {
	if c.svc == nil {
		return errors.New("sheets service not initialized")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	sheet := yearPrefixedName(c.sheetBase, t.Date.Year())
	ids, err := c.readIDs(ctx, sheet)
	if err != nil {
		return err
	}
	row := findRow(ids, t.ID)
	if row == 0 {
		slog.WarnContext(ctx, "Transaction not found in sheet, nothing to mark",
			"transaction_id", t.ID, "sheet", sheet)
		return nil
	}
	rng := fmt.Sprintf("%s!%s%d", sheet, statusCol, row)
	if err := c.write(ctx, rng, []any{ports.StatusDeleted}); err != nil {
		return fmt.Errorf("mark row deleted in %s: %w", sheet, err)
	}
	return nil
}

func (c *Client) readIDs(ctx context.Context, sheet string) ([][]any, error) {
	rng := fmt.Sprintf("%s!A:A", sheet)
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", rng, err)
	}
	return resp.Values, nil
}

func (c *Client) write(ctx context.Context, rng string, row []any) error {
	vr := &gsheet.ValueRange{Values: [][]any{row}}
	_, err := c.svc.Spreadsheets.Values.Update(c.spreadsheetID, rng, vr).
		ValueInputOption("RAW").Context(ctx).Do()
	return err
}
