package services

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"moneyflow/internal/core"
	"moneyflow/internal/storage"
)

func newTestRepo(t *testing.T) *storage.SQLiteRepository {
	t.Helper()
	repo, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "services.db"))
	if err != nil {
		t.Fatalf("open repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func ptr[T any](v T) *T { return &v }

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func fixedClock(d core.Date) func() time.Time {
	return func() time.Time { return d.Add(10 * time.Hour) }
}

type ledgerFixture struct {
	owner    int64
	accountA core.Account
	accountB core.Account
	expense  core.Category
	income   core.Category
}

func seedOwner(t *testing.T, repo *storage.SQLiteRepository, owner int64) ledgerFixture {
	t.Helper()
	ctx := context.Background()
	f := ledgerFixture{owner: owner}
	var err error
	if f.accountA, err = repo.CreateAccount(ctx, core.Account{OwnerID: owner, Name: "A", Type: core.AccountCash, InitialBalance: dec("100.00")}); err != nil {
		t.Fatalf("create account: %v", err)
	}
	if f.accountB, err = repo.CreateAccount(ctx, core.Account{OwnerID: owner, Name: "B", Type: core.AccountBank}); err != nil {
		t.Fatalf("create account: %v", err)
	}
	if f.expense, err = repo.CreateCategory(ctx, core.Category{OwnerID: &owner, Name: "Subscriptions", Type: core.Expense}); err != nil {
		t.Fatalf("create category: %v", err)
	}
	if f.income, err = repo.CreateCategory(ctx, core.Category{OwnerID: &owner, Name: "Salary", Type: core.Income}); err != nil {
		t.Fatalf("create category: %v", err)
	}
	return f
}

// recordingPublisher keeps every event it is asked to publish.
type recordingPublisher struct {
	mu      sync.Mutex
	created []core.Transaction
	deleted []core.Transaction
	err     error
}

func (p *recordingPublisher) PublishTransactionCreated(_ context.Context, t core.Transaction) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.created = append(p.created, t)
	return p.err
}

func (p *recordingPublisher) PublishTransactionDeleted(_ context.Context, t core.Transaction) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.deleted = append(p.deleted, t)
	return p.err
}
