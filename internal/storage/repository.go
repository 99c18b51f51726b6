package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"moneyflow/internal/core"

	_ "modernc.org/sqlite"
)

// SQLiteRepository is the ledger, account, category and rule store. Single
// statements come from the embedded Queries; multi-statement units of work
// are methods on the repository.
type SQLiteRepository struct {
	*Queries
	db *sql.DB
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", DSN(dbPath))
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// One connection serializes writers; concurrent write upgrades would
	// otherwise fail with SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	// Run migrations
	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{
		Queries: New(db),
		db:      db,
	}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping is used by the readiness probe.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// DB exposes the handle for tests and one-off maintenance.
func (r *SQLiteRepository) DB() *sql.DB {
	return r.db
}

// WithTx runs fn inside a database transaction, committing when fn
// returns nil and rolling back otherwise.
func (r *SQLiteRepository) WithTx(ctx context.Context, fn func(q *Queries) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(r.Queries.WithTx(tx)); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			slog.ErrorContext(ctx, "Rollback failed", "error", rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// FireRule advances rule to next and inserts the entry it generates as one
// atomic unit. When another run already advanced the rule, nothing is
// written and core.ErrDuplicate is returned. When the rule's period slot is
// already held by an existing entry, the advance is kept and
// core.ErrDuplicate is returned, so the rule moves on to its next period.
func (r *SQLiteRepository) FireRule(ctx context.Context, rule core.RecurringRule, t core.Transaction, next core.Date) (core.Transaction, error) {
	var (
		created      core.Transaction
		materialized bool
	)
	err := r.WithTx(ctx, func(q *Queries) error {
		advanced, err := q.AdvanceRule(ctx, rule, next)
		if err != nil {
			return err
		}
		if !advanced {
			return fmt.Errorf("rule %d advanced by a concurrent run: %w", rule.ID, core.ErrDuplicate)
		}
		inserted, ok, err := q.InsertGeneratedTransaction(ctx, t)
		if err != nil {
			return err
		}
		if !ok {
			materialized = true
			return nil
		}
		created = inserted
		return nil
	})
	if err != nil {
		return core.Transaction{}, err
	}
	if materialized {
		return core.Transaction{}, fmt.Errorf("rule %d already has an entry for %s: %w", rule.ID, t.Date, core.ErrDuplicate)
	}
	return created, nil
}

// InitializeOwner creates the given accounts and categories for an owner
// that has no accounts yet, in one transaction. It reports false when the
// owner was already initialized.
func (r *SQLiteRepository) InitializeOwner(ctx context.Context, ownerID int64, accounts []core.Account, categories []core.Category) (bool, error) {
	created := false
	err := r.WithTx(ctx, func(q *Queries) error {
		n, err := q.CountAccounts(ctx, ownerID)
		if err != nil {
			return err
		}
		if n > 0 {
			return nil
		}
		for _, a := range accounts {
			a.OwnerID = ownerID
			if _, err := q.CreateAccount(ctx, a); err != nil {
				return err
			}
		}
		for _, c := range categories {
			c.OwnerID = &ownerID
			if _, err := q.CreateCategory(ctx, c); err != nil {
				return err
			}
		}
		created = true
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("initialize owner %d: %w", ownerID, err)
	}
	return created, nil
}
