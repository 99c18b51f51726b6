package services

import (
	"context"
	"errors"
	"math/rand"
	"testing"

	"github.com/shopspring/decimal"

	"moneyflow/internal/core"
)

func TestBalanceScenario(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	f := seedOwner(t, repo, 1)
	txs := NewTransactionService(repo, repo, nil)
	calc := NewBalanceCalculator(repo, repo)

	d := core.NewDate(2024, 5, 1)
	entries := []core.Transaction{
		{Type: core.Income, Amount: dec("50.00"), Date: d, AccountID: f.accountA.ID, CategoryID: &f.income.ID},
		{Type: core.Expense, Amount: dec("20.00"), Date: d, AccountID: f.accountA.ID, CategoryID: &f.expense.ID},
		{Type: core.Transfer, Amount: dec("10.00"), Date: d, AccountID: f.accountA.ID, TargetAccountID: &f.accountB.ID},
	}
	for _, e := range entries {
		if _, err := txs.Create(ctx, 1, e); err != nil {
			t.Fatalf("create %s: %v", e.Type, err)
		}
	}

	a, err := calc.CurrentBalance(ctx, f.accountA)
	if err != nil {
		t.Fatalf("balance A: %v", err)
	}
	if !a.Equal(dec("120.00")) {
		t.Fatalf("balance A = %s, want 120.00", a)
	}
	b, err := calc.CurrentBalance(ctx, f.accountB)
	if err != nil {
		t.Fatalf("balance B: %v", err)
	}
	if !b.Equal(f.accountB.InitialBalance.Add(dec("10.00"))) {
		t.Fatalf("balance B = %s, want initial + 10.00", b)
	}
}

func TestBalanceExcludesDeleted(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	f := seedOwner(t, repo, 1)
	txs := NewTransactionService(repo, repo, nil)
	calc := NewBalanceCalculator(repo, repo)

	created, err := txs.Create(ctx, 1, core.Transaction{
		Type: core.Expense, Amount: dec("30.00"), Date: core.NewDate(2024, 5, 1),
		AccountID: f.accountA.ID, CategoryID: &f.expense.ID,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	before, _ := calc.CurrentBalance(ctx, f.accountA)
	if !before.Equal(dec("70")) {
		t.Fatalf("balance before delete = %s", before)
	}

	if err := txs.Delete(ctx, 1, created.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	after, _ := calc.CurrentBalance(ctx, f.accountA)
	if !after.Equal(dec("100")) {
		t.Fatalf("deleted entry still counts: %s", after)
	}
}

func TestBalanceMatchesModel(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	f := seedOwner(t, repo, 1)
	txs := NewTransactionService(repo, repo, nil)
	calc := NewBalanceCalculator(repo, repo)

	rng := rand.New(rand.NewSource(42))
	want := map[int64]decimal.Decimal{
		f.accountA.ID: f.accountA.InitialBalance,
		f.accountB.ID: f.accountB.InitialBalance,
	}
	accounts := []int64{f.accountA.ID, f.accountB.ID}

	for i := 0; i < 60; i++ {
		amt := decimal.New(int64(rng.Intn(100000)+1), -2)
		src := accounts[rng.Intn(2)]
		e := core.Transaction{Amount: amt, Date: core.NewDate(2024, 1+rng.Intn(12), 1+rng.Intn(28)), AccountID: src}
		switch rng.Intn(3) {
		case 0:
			e.Type = core.Income
			e.CategoryID = &f.income.ID
			want[src] = want[src].Add(amt)
		case 1:
			e.Type = core.Expense
			e.CategoryID = &f.expense.ID
			want[src] = want[src].Sub(amt)
		default:
			dst := accounts[0]
			if src == dst {
				dst = accounts[1]
			}
			e.Type = core.Transfer
			e.TargetAccountID = &dst
			want[src] = want[src].Sub(amt)
			want[dst] = want[dst].Add(amt)
		}
		if _, err := txs.Create(ctx, 1, e); err != nil {
			t.Fatalf("create #%d: %v", i, err)
		}
	}

	for _, a := range []core.Account{f.accountA, f.accountB} {
		got, err := calc.CurrentBalance(ctx, a)
		if err != nil {
			t.Fatalf("balance: %v", err)
		}
		if !got.Equal(want[a.ID]) {
			t.Fatalf("account %d: got %s, want %s", a.ID, got, want[a.ID])
		}
	}
}

func TestBalanceAsOf(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	f := seedOwner(t, repo, 1)
	txs := NewTransactionService(repo, repo, nil)
	calc := NewBalanceCalculator(repo, repo)

	for _, d := range []core.Date{core.NewDate(2024, 1, 10), core.NewDate(2024, 2, 10)} {
		if _, err := txs.Create(ctx, 1, core.Transaction{
			Type: core.Income, Amount: dec("5.00"), Date: d, AccountID: f.accountA.ID, CategoryID: &f.income.ID,
		}); err != nil {
			t.Fatalf("create: %v", err)
		}
	}
	cutoff := core.NewDate(2024, 1, 31)
	got, err := calc.GetAccountBalance(ctx, 1, f.accountA.ID, &cutoff)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if !got.Equal(dec("105")) {
		t.Fatalf("balance as of %s = %s, want 105", cutoff, got)
	}
}

func TestGetAccountBalanceChecksOwner(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	f := seedOwner(t, repo, 1)
	calc := NewBalanceCalculator(repo, repo)

	if _, err := calc.GetAccountBalance(ctx, 2, f.accountA.ID, nil); !errors.Is(err, core.ErrForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
	if _, err := calc.GetAccountBalance(ctx, 1, 9999, nil); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
