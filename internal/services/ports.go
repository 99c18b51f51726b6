package services

import (
	"context"

	"moneyflow/internal/core"
	"moneyflow/internal/storage"
)

// AccountReader resolves a live account by id.
type AccountReader interface {
	GetAccount(ctx context.Context, id int64) (core.Account, error)
}

// CategoryReader resolves a live category by id.
type CategoryReader interface {
	GetCategory(ctx context.Context, id int64) (core.Category, error)
}

// ReferenceReader is what entry-producing code needs to validate the
// account and category an entry points at.
type ReferenceReader interface {
	AccountReader
	CategoryReader
}

// LegSummer totals one balance leg of an account in cents.
type LegSummer interface {
	SumTransactions(ctx context.Context, ownerID, accountID int64, leg core.Leg, asOf *core.Date) (int64, error)
}

type AccountStore interface {
	AccountReader
	CreateAccount(ctx context.Context, a core.Account) (core.Account, error)
	ListAccounts(ctx context.Context, ownerID int64) ([]core.Account, error)
	UpdateAccount(ctx context.Context, a core.Account) error
	SoftDeleteAccount(ctx context.Context, ownerID, id int64) error
	CountAccountTransactions(ctx context.Context, ownerID, accountID int64) (int64, error)
}

type CategoryStore interface {
	CategoryReader
	CreateCategory(ctx context.Context, c core.Category) (core.Category, error)
	ListCategories(ctx context.Context, ownerID int64, typ core.TransactionType) ([]core.Category, error)
	SoftDeleteCategory(ctx context.Context, ownerID, id int64) error
}

type LedgerStore interface {
	InsertTransaction(ctx context.Context, t core.Transaction) (core.Transaction, error)
	GetTransaction(ctx context.Context, id int64) (core.Transaction, error)
	ListTransactions(ctx context.Context, f storage.TransactionFilter) ([]core.Transaction, error)
	UpdateTransaction(ctx context.Context, t core.Transaction) error
	SoftDeleteTransaction(ctx context.Context, ownerID, id int64) error
}

// DueRuleStore is the part of the rule store the engine drives.
type DueRuleStore interface {
	FindDueRules(ctx context.Context, scope core.Scope, today core.Date) ([]core.RecurringRule, error)
	// FireRule advances rule to next and inserts t atomically. It returns
	// core.ErrDuplicate when another run advanced the rule first, or when
	// an entry already holds the period; in the latter case the rule still
	// advances.
	FireRule(ctx context.Context, rule core.RecurringRule, t core.Transaction, next core.Date) (core.Transaction, error)
}

type RuleStore interface {
	CreateRule(ctx context.Context, r core.RecurringRule) (core.RecurringRule, error)
	GetRule(ctx context.Context, id int64) (core.RecurringRule, error)
	ListRules(ctx context.Context, ownerID int64) ([]core.RecurringRule, error)
	UpdateRule(ctx context.Context, r core.RecurringRule) (core.RecurringRule, error)
	SoftDeleteRule(ctx context.Context, ownerID, id int64) error
	LastGeneratedDate(ctx context.Context, ruleID int64) (*core.Date, error)
}

// OwnerInitializer seeds an owner's default data in one unit of work.
type OwnerInitializer interface {
	InitializeOwner(ctx context.Context, ownerID int64, accounts []core.Account, categories []core.Category) (bool, error)
}

// EventPublisher announces ledger changes after they are committed.
type EventPublisher interface {
	PublishTransactionCreated(ctx context.Context, t core.Transaction) error
	PublishTransactionDeleted(ctx context.Context, t core.Transaction) error
}

var (
	_ AccountStore     = (*storage.SQLiteRepository)(nil)
	_ CategoryStore    = (*storage.SQLiteRepository)(nil)
	_ LedgerStore      = (*storage.SQLiteRepository)(nil)
	_ LegSummer        = (*storage.SQLiteRepository)(nil)
	_ DueRuleStore     = (*storage.SQLiteRepository)(nil)
	_ RuleStore        = (*storage.SQLiteRepository)(nil)
	_ OwnerInitializer = (*storage.SQLiteRepository)(nil)
)
