package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"moneyflow/internal/core"
	"moneyflow/internal/storage"
)

// TransactionService validates and records ledger entries and announces
// them on the event bus.
type TransactionService struct {
	ledger LedgerStore
	refs   ReferenceReader
	events EventPublisher
}

// NewTransactionService accepts a nil publisher; events are then skipped.
func NewTransactionService(ledger LedgerStore, refs ReferenceReader, events EventPublisher) *TransactionService {
	return &TransactionService{
		ledger: ledger,
		refs:   refs,
		events: events,
	}
}

// TransactionPatch carries the fields of a partial update. Nil fields are
// left unchanged.
type TransactionPatch struct {
	Type            *core.TransactionType
	Amount          *decimal.Decimal
	Currency        *string
	OriginalAmount  *decimal.Decimal
	Date            *core.Date
	CategoryID      *int64
	AccountID       *int64
	TargetAccountID *int64
	Note            *string
}

func (p TransactionPatch) empty() bool {
	return p.Type == nil && p.Amount == nil && p.Currency == nil && p.OriginalAmount == nil &&
		p.Date == nil && p.CategoryID == nil && p.AccountID == nil && p.TargetAccountID == nil && p.Note == nil
}

// Create records a new entry for ownerID. Every reference is checked for
// existence and ownership before anything is written.
func (s *TransactionService) Create(ctx context.Context, ownerID int64, t core.Transaction) (core.Transaction, error) {
	t.OwnerID = ownerID
	t.RuleID = nil
	if err := core.ValidateTransactionType(t.Type); err != nil {
		return core.Transaction{}, err
	}
	if err := core.ValidatePositiveAmount(t.Amount); err != nil {
		return core.Transaction{}, err
	}
	if t.Type == core.Transfer {
		t.CategoryID = nil
	} else {
		t.TargetAccountID = nil
	}
	if err := t.Date.Validate(); err != nil {
		return core.Transaction{}, err
	}
	if err := s.checkReferences(ctx, ownerID, &t); err != nil {
		return core.Transaction{}, err
	}
	if err := t.Validate(); err != nil {
		return core.Transaction{}, err
	}

	created, err := s.ledger.InsertTransaction(ctx, t)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("save transaction: %w", err)
	}

	slog.InfoContext(ctx, "Transaction created",
		"id", created.ID,
		"owner_id", ownerID,
		"type", created.Type,
		"amount", core.FormatAmount(created.Amount),
		"date", created.Date.String())

	s.publishCreated(ctx, created)
	return created, nil
}

// Update applies a partial change. Switching to a transfer drops the
// category; switching away from one drops the target account. The date of
// an entry generated by a recurring rule cannot be changed.
func (s *TransactionService) Update(ctx context.Context, ownerID, id int64, p TransactionPatch) (core.Transaction, error) {
	if p.empty() {
		return core.Transaction{}, core.ErrNothingToUpdate
	}
	t, err := s.get(ctx, ownerID, id)
	if err != nil {
		return core.Transaction{}, err
	}

	if p.Type != nil {
		t.Type = *p.Type
	}
	if err := core.ValidateTransactionType(t.Type); err != nil {
		return core.Transaction{}, err
	}
	if p.Amount != nil {
		if err := core.ValidatePositiveAmount(*p.Amount); err != nil {
			return core.Transaction{}, err
		}
		t.Amount = *p.Amount
	}
	if p.Currency != nil {
		t.Currency = *p.Currency
	}
	if p.OriginalAmount != nil {
		if err := core.ValidateNonNegativeAmount(*p.OriginalAmount); err != nil {
			return core.Transaction{}, fmt.Errorf("original amount: %w", err)
		}
		t.OriginalAmount = p.OriginalAmount
	}
	if p.Date != nil {
		// A generated entry holds its rule's period slot.
		if t.RuleID != nil && !p.Date.Equal(t.Date) {
			return core.Transaction{}, core.ErrGeneratedDate
		}
		t.Date = *p.Date
	}
	if p.AccountID != nil {
		t.AccountID = *p.AccountID
	}
	if p.TargetAccountID != nil {
		t.TargetAccountID = p.TargetAccountID
	}
	if p.CategoryID != nil {
		t.CategoryID = p.CategoryID
	}
	if p.Note != nil {
		t.Note = *p.Note
	}
	if t.Type == core.Transfer {
		t.CategoryID = nil
	} else {
		t.TargetAccountID = nil
	}

	if err := s.checkReferences(ctx, ownerID, &t); err != nil {
		return core.Transaction{}, err
	}
	if err := t.Validate(); err != nil {
		return core.Transaction{}, err
	}
	if err := s.ledger.UpdateTransaction(ctx, t); err != nil {
		return core.Transaction{}, fmt.Errorf("update transaction: %w", err)
	}
	return s.ledger.GetTransaction(ctx, id)
}

// Delete soft-deletes an entry; it stops counting toward balances.
func (s *TransactionService) Delete(ctx context.Context, ownerID, id int64) error {
	t, err := s.get(ctx, ownerID, id)
	if err != nil {
		return err
	}
	if err := s.ledger.SoftDeleteTransaction(ctx, ownerID, id); err != nil {
		return fmt.Errorf("soft delete transaction: %w", err)
	}

	if s.events == nil {
		slog.WarnContext(ctx, "Event publisher not available, skipping delete event")
		return nil
	}
	if err := s.events.PublishTransactionDeleted(ctx, t); err != nil {
		slog.ErrorContext(ctx, "Failed to publish delete event", "id", id, "error", err)
	}
	return nil
}

func (s *TransactionService) Get(ctx context.Context, ownerID, id int64) (core.Transaction, error) {
	return s.get(ctx, ownerID, id)
}

// List returns the owner's live entries, newest first.
func (s *TransactionService) List(ctx context.Context, ownerID int64, f storage.TransactionFilter) ([]core.Transaction, error) {
	f.OwnerID = ownerID
	if f.Type != "" {
		if err := core.ValidateTransactionType(f.Type); err != nil {
			return nil, err
		}
	}
	if f.From != nil && f.To != nil && f.To.Before(*f.From) {
		return nil, core.Validationf("end date %s is before start date %s", f.To, f.From)
	}
	return s.ledger.ListTransactions(ctx, f)
}

func (s *TransactionService) get(ctx context.Context, ownerID, id int64) (core.Transaction, error) {
	t, err := s.ledger.GetTransaction(ctx, id)
	if err != nil {
		return core.Transaction{}, err
	}
	if err := core.CheckOwnership(t.OwnerID, ownerID); err != nil {
		return core.Transaction{}, err
	}
	return t, nil
}

func (s *TransactionService) checkReferences(ctx context.Context, ownerID int64, t *core.Transaction) error {
	account, err := s.refs.GetAccount(ctx, t.AccountID)
	if err != nil {
		return err
	}
	if err := core.CheckAccountAccess(account, ownerID); err != nil {
		return err
	}

	if t.Type == core.Transfer {
		if t.TargetAccountID == nil {
			return core.ErrMissingTarget
		}
		if *t.TargetAccountID == t.AccountID {
			return core.ErrSameAccount
		}
		target, err := s.refs.GetAccount(ctx, *t.TargetAccountID)
		if err != nil {
			return err
		}
		return core.CheckAccountAccess(target, ownerID)
	}

	if t.CategoryID == nil {
		return core.ErrMissingCategory
	}
	category, err := s.refs.GetCategory(ctx, *t.CategoryID)
	if err != nil {
		return err
	}
	return core.CheckCategoryAccess(category, ownerID, t.Type)
}

func (s *TransactionService) publishCreated(ctx context.Context, t core.Transaction) {
	if s.events == nil {
		slog.WarnContext(ctx, "Event publisher not available, skipping create event")
		return
	}
	if err := s.events.PublishTransactionCreated(ctx, t); err != nil {
		// The entry is committed; export catches up from the pending queue.
		slog.ErrorContext(ctx, "Failed to publish create event", "id", t.ID, "error", err)
	}
}
