package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"moneyflow/internal/amqp"
	"moneyflow/internal/core"
	"moneyflow/internal/metrics"
	"moneyflow/internal/sheets"
	"moneyflow/internal/storage"
)

// LedgerSource is the slice of the repository the export worker reads and
// marks.
type LedgerSource interface {
	GetTransactionAnyState(ctx context.Context, id int64) (core.Transaction, error)
	ListPendingExport(ctx context.Context, limit int) ([]storage.PendingExport, error)
	MarkExported(ctx context.Context, id int64) error
	MarkExportError(ctx context.Context, id int64) error
}

// ExportWorker mirrors ledger entries into an export backend. Events from
// the broker trigger an export right away; the pending poller catches
// entries whose events were lost.
type ExportWorker struct {
	source    LedgerSource
	exporter  sheets.LedgerExporter
	batchSize int
	interval  time.Duration

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

func NewExportWorker(source LedgerSource, exporter sheets.LedgerExporter, batchSize int, interval time.Duration) *ExportWorker {
	if batchSize <= 0 {
		batchSize = 50
	}
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &ExportWorker{
		source:    source,
		exporter:  exporter,
		batchSize: batchSize,
		interval:  interval,
	}
}

// HandleEvent exports the entry named by ev. The current row state wins
// over the event type, so a created event for an entry deleted since is
// exported as deleted.
func (w *ExportWorker) HandleEvent(ctx context.Context, ev *amqp.LedgerEvent) error {
	slog.DebugContext(ctx, "Processing ledger event",
		"event_id", ev.EventID,
		"event", ev.Event,
		"transaction_id", ev.TransactionID)
	return w.export(ctx, ev.TransactionID)
}

// ProcessPending exports up to one batch of entries still marked pending
// and returns how many were exported.
func (w *ExportWorker) ProcessPending(ctx context.Context) (int, error) {
	pending, err := w.source.ListPendingExport(ctx, w.batchSize)
	if err != nil {
		return 0, fmt.Errorf("list pending export: %w", err)
	}
	if len(pending) == 0 {
		return 0, nil
	}

	slog.InfoContext(ctx, "Processing pending exports", "count", len(pending))

	exported := 0
	for _, p := range pending {
		if err := ctx.Err(); err != nil {
			return exported, err
		}
		if err := w.export(ctx, p.ID); err != nil {
			slog.ErrorContext(ctx, "Failed to export transaction", "id", p.ID, "error", err)
			continue
		}
		exported++
	}
	return exported, nil
}

func (w *ExportWorker) export(ctx context.Context, id int64) error {
	t, err := w.source.GetTransactionAnyState(ctx, id)
	if errors.Is(err, core.ErrNotFound) {
		slog.WarnContext(ctx, "Transaction vanished before export, skipping", "id", id)
		metrics.ExportProcessed.WithLabelValues("skipped").Inc()
		return nil
	}
	if err != nil {
		metrics.ExportProcessed.WithLabelValues("error").Inc()
		return fmt.Errorf("get transaction %d: %w", id, err)
	}

	var ref string
	if t.Deleted {
		err = w.exporter.MarkDeleted(ctx, t)
	} else {
		ref, err = w.exporter.Append(ctx, t)
	}
	if err != nil {
		metrics.ExportProcessed.WithLabelValues("error").Inc()
		if markErr := w.source.MarkExportError(ctx, id); markErr != nil {
			slog.ErrorContext(ctx, "Failed to mark export error", "id", id, "error", markErr)
		}
		return fmt.Errorf("export transaction %d: %w", id, err)
	}

	// The row is written; a failed status update only means a repeat
	// export later, which the backend absorbs.
	if err := w.source.MarkExported(ctx, id); err != nil {
		slog.ErrorContext(ctx, "Failed to mark as exported", "id", id, "error", err)
	}
	metrics.ExportProcessed.WithLabelValues("exported").Inc()

	slog.InfoContext(ctx, "Exported transaction",
		"id", id,
		"deleted", t.Deleted,
		"row_ref", ref)
	return nil
}

// Start runs the pending poller in the background until Stop is called or
// ctx ends.
func (w *ExportWorker) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return errors.New("export worker is already running")
	}
	w.running = true
	w.stopCh = make(chan struct{})
	w.doneCh = make(chan struct{})

	go w.runLoop(ctx, w.stopCh, w.doneCh)

	slog.InfoContext(ctx, "Export poller started",
		"interval", w.interval,
		"batch_size", w.batchSize)
	return nil
}

// Stop signals the poller and waits for the current batch to finish.
func (w *ExportWorker) Stop(ctx context.Context) error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = false
	stopCh, doneCh := w.stopCh, w.doneCh
	w.mu.Unlock()

	close(stopCh)

	select {
	case <-doneCh:
		slog.InfoContext(ctx, "Export poller stopped")
		return nil
	case <-ctx.Done():
		slog.WarnContext(ctx, "Export poller stop timed out")
		return ctx.Err()
	}
}

func (w *ExportWorker) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

func (w *ExportWorker) runLoop(ctx context.Context, stopCh <-chan struct{}, doneCh chan<- struct{}) {
	defer close(doneCh)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.poll(ctx)
	for {
		select {
		case <-stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.poll(ctx)
		}
	}
}

func (w *ExportWorker) poll(ctx context.Context) {
	if _, err := w.ProcessPending(ctx); err != nil && ctx.Err() == nil {
		slog.ErrorContext(ctx, "Pending export pass failed", "error", err)
	}
}
