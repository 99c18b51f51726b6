package services

import (
	"context"
	"errors"
	"testing"

	"moneyflow/internal/core"
	"moneyflow/internal/storage"
)

func TestTransactionServiceCreate(t *testing.T) {
	repo := newTestRepo(t)
	f := seedOwner(t, repo, 1)
	other := seedOwner(t, repo, 2)

	tests := []struct {
		name    string
		tx      core.Transaction
		wantErr error
	}{
		{
			name: "expense",
			tx:   core.Transaction{Type: core.Expense, Amount: dec("12.50"), Date: core.NewDate(2024, 1, 5), AccountID: f.accountA.ID, CategoryID: &f.expense.ID},
		},
		{
			name: "transfer drops category",
			tx:   core.Transaction{Type: core.Transfer, Amount: dec("20"), Date: core.NewDate(2024, 1, 5), AccountID: f.accountA.ID, TargetAccountID: &f.accountB.ID, CategoryID: &f.expense.ID},
		},
		{
			name:    "zero amount",
			tx:      core.Transaction{Type: core.Expense, Amount: dec("0"), Date: core.NewDate(2024, 1, 5), AccountID: f.accountA.ID, CategoryID: &f.expense.ID},
			wantErr: core.ErrValidation,
		},
		{
			name:    "three decimal places",
			tx:      core.Transaction{Type: core.Expense, Amount: dec("1.005"), Date: core.NewDate(2024, 1, 5), AccountID: f.accountA.ID, CategoryID: &f.expense.ID},
			wantErr: core.ErrAmountScale,
		},
		{
			name:    "amount beyond int64 cents",
			tx:      core.Transaction{Type: core.Expense, Amount: dec("100000000000000000000"), Date: core.NewDate(2024, 1, 5), AccountID: f.accountA.ID, CategoryID: &f.expense.ID},
			wantErr: core.ErrAmountTooLarge,
		},
		{
			name:    "original amount with three decimal places",
			tx:      core.Transaction{Type: core.Expense, Amount: dec("1"), OriginalAmount: ptr(dec("1.239")), Currency: "USD", Date: core.NewDate(2024, 1, 5), AccountID: f.accountA.ID, CategoryID: &f.expense.ID},
			wantErr: core.ErrAmountScale,
		},
		{
			name:    "negative original amount",
			tx:      core.Transaction{Type: core.Expense, Amount: dec("1"), OriginalAmount: ptr(dec("-2")), Currency: "USD", Date: core.NewDate(2024, 1, 5), AccountID: f.accountA.ID, CategoryID: &f.expense.ID},
			wantErr: core.ErrNegativeAmount,
		},
		{
			name:    "unknown type",
			tx:      core.Transaction{Type: "refund", Amount: dec("1"), Date: core.NewDate(2024, 1, 5), AccountID: f.accountA.ID, CategoryID: &f.expense.ID},
			wantErr: core.ErrValidation,
		},
		{
			name:    "missing date",
			tx:      core.Transaction{Type: core.Expense, Amount: dec("1"), AccountID: f.accountA.ID, CategoryID: &f.expense.ID},
			wantErr: core.ErrZeroDate,
		},
		{
			name:    "transfer to itself",
			tx:      core.Transaction{Type: core.Transfer, Amount: dec("1"), Date: core.NewDate(2024, 1, 5), AccountID: f.accountA.ID, TargetAccountID: &f.accountA.ID},
			wantErr: core.ErrSameAccount,
		},
		{
			name:    "transfer without target",
			tx:      core.Transaction{Type: core.Transfer, Amount: dec("1"), Date: core.NewDate(2024, 1, 5), AccountID: f.accountA.ID},
			wantErr: core.ErrMissingTarget,
		},
		{
			name:    "expense without category",
			tx:      core.Transaction{Type: core.Expense, Amount: dec("1"), Date: core.NewDate(2024, 1, 5), AccountID: f.accountA.ID},
			wantErr: core.ErrMissingCategory,
		},
		{
			name:    "income category on expense",
			tx:      core.Transaction{Type: core.Expense, Amount: dec("1"), Date: core.NewDate(2024, 1, 5), AccountID: f.accountA.ID, CategoryID: &f.income.ID},
			wantErr: core.ErrCategoryMismatch,
		},
		{
			name:    "foreign account",
			tx:      core.Transaction{Type: core.Expense, Amount: dec("1"), Date: core.NewDate(2024, 1, 5), AccountID: other.accountA.ID, CategoryID: &f.expense.ID},
			wantErr: core.ErrForbidden,
		},
		{
			name:    "foreign transfer target",
			tx:      core.Transaction{Type: core.Transfer, Amount: dec("1"), Date: core.NewDate(2024, 1, 5), AccountID: f.accountA.ID, TargetAccountID: &other.accountB.ID},
			wantErr: core.ErrForbidden,
		},
		{
			name:    "foreign category",
			tx:      core.Transaction{Type: core.Expense, Amount: dec("1"), Date: core.NewDate(2024, 1, 5), AccountID: f.accountA.ID, CategoryID: &other.expense.ID},
			wantErr: core.ErrForbidden,
		},
		{
			name:    "missing account",
			tx:      core.Transaction{Type: core.Expense, Amount: dec("1"), Date: core.NewDate(2024, 1, 5), AccountID: 9999, CategoryID: &f.expense.ID},
			wantErr: core.ErrNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pub := &recordingPublisher{}
			svc := NewTransactionService(repo, repo, pub)
			got, err := svc.Create(context.Background(), 1, tt.tx)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Create() error = %v, want %v", err, tt.wantErr)
				}
				if len(pub.created) != 0 {
					t.Fatalf("rejected entry must not be published")
				}
				return
			}
			if err != nil {
				t.Fatalf("Create() unexpected error: %v", err)
			}
			if got.ID == 0 || got.OwnerID != 1 || !got.Amount.Equal(tt.tx.Amount) {
				t.Fatalf("unexpected created entry %+v", got)
			}
			if got.IsTransfer() && got.CategoryID != nil {
				t.Fatalf("transfer kept its category")
			}
			if len(pub.created) != 1 {
				t.Fatalf("expected one created event, got %d", len(pub.created))
			}
		})
	}
}

func TestTransactionServiceIgnoresClientRuleID(t *testing.T) {
	repo := newTestRepo(t)
	f := seedOwner(t, repo, 1)
	svc := NewTransactionService(repo, repo, nil)

	got, err := svc.Create(context.Background(), 1, core.Transaction{
		Type: core.Expense, Amount: dec("1"), Date: core.NewDate(2024, 1, 1),
		AccountID: f.accountA.ID, CategoryID: &f.expense.ID, RuleID: ptr[int64](42),
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if got.RuleID != nil {
		t.Fatalf("client supplied rule id was stored")
	}
}

func TestTransactionServicePublishFailureKeepsEntry(t *testing.T) {
	repo := newTestRepo(t)
	f := seedOwner(t, repo, 1)
	svc := NewTransactionService(repo, repo, &recordingPublisher{err: errors.New("broker down")})

	got, err := svc.Create(context.Background(), 1, core.Transaction{
		Type: core.Income, Amount: dec("1000"), Date: core.NewDate(2024, 1, 1),
		AccountID: f.accountB.ID, CategoryID: &f.income.ID,
	})
	if err != nil {
		t.Fatalf("Create should succeed when publishing fails: %v", err)
	}
	if _, err := svc.Get(context.Background(), 1, got.ID); err != nil {
		t.Fatalf("entry not stored: %v", err)
	}
}

func TestTransactionServiceUpdate(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	f := seedOwner(t, repo, 1)
	svc := NewTransactionService(repo, repo, nil)

	created, err := svc.Create(ctx, 1, core.Transaction{
		Type: core.Expense, Amount: dec("10"), Date: core.NewDate(2024, 1, 1),
		AccountID: f.accountA.ID, CategoryID: &f.expense.ID,
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if _, err := svc.Update(ctx, 1, created.ID, TransactionPatch{}); !errors.Is(err, core.ErrNothingToUpdate) {
		t.Fatalf("empty patch error = %v", err)
	}
	if _, err := svc.Update(ctx, 2, created.ID, TransactionPatch{Note: ptr("x")}); !errors.Is(err, core.ErrForbidden) {
		t.Fatalf("foreign update error = %v", err)
	}
	if _, err := svc.Update(ctx, 1, created.ID, TransactionPatch{Amount: ptr(dec("-1"))}); !errors.Is(err, core.ErrValidation) {
		t.Fatalf("negative amount error = %v", err)
	}
	if _, err := svc.Update(ctx, 1, created.ID, TransactionPatch{Amount: ptr(dec("1000000000000"))}); !errors.Is(err, core.ErrAmountTooLarge) {
		t.Fatalf("oversized amount error = %v", err)
	}
	if _, err := svc.Update(ctx, 1, created.ID, TransactionPatch{OriginalAmount: ptr(dec("1.239"))}); !errors.Is(err, core.ErrAmountScale) {
		t.Fatalf("original amount scale error = %v", err)
	}
	if _, err := svc.Update(ctx, 1, created.ID, TransactionPatch{OriginalAmount: ptr(dec("-1"))}); !errors.Is(err, core.ErrNegativeAmount) {
		t.Fatalf("negative original amount error = %v", err)
	}
	stored, err := svc.Get(ctx, 1, created.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !stored.Amount.Equal(dec("10")) || stored.OriginalAmount != nil {
		t.Fatalf("rejected patches changed the entry: %+v", stored)
	}

	updated, err := svc.Update(ctx, 1, created.ID, TransactionPatch{Amount: ptr(dec("15.25")), Note: ptr("lunch")})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if !updated.Amount.Equal(dec("15.25")) || updated.Note != "lunch" {
		t.Fatalf("patch not applied: %+v", updated)
	}

	// Switching to a transfer drops the category and needs a target.
	if _, err := svc.Update(ctx, 1, created.ID, TransactionPatch{Type: ptr(core.Transfer)}); !errors.Is(err, core.ErrMissingTarget) {
		t.Fatalf("transfer without target error = %v", err)
	}
	transfer, err := svc.Update(ctx, 1, created.ID, TransactionPatch{Type: ptr(core.Transfer), TargetAccountID: &f.accountB.ID})
	if err != nil {
		t.Fatalf("switch to transfer: %v", err)
	}
	if transfer.CategoryID != nil || transfer.TargetAccountID == nil || *transfer.TargetAccountID != f.accountB.ID {
		t.Fatalf("unexpected transfer shape: %+v", transfer)
	}

	// And back: the target goes away and a category is required again.
	if _, err := svc.Update(ctx, 1, created.ID, TransactionPatch{Type: ptr(core.Expense)}); !errors.Is(err, core.ErrMissingCategory) {
		t.Fatalf("expense without category error = %v", err)
	}
	back, err := svc.Update(ctx, 1, created.ID, TransactionPatch{Type: ptr(core.Expense), CategoryID: &f.expense.ID})
	if err != nil {
		t.Fatalf("switch back to expense: %v", err)
	}
	if back.TargetAccountID != nil {
		t.Fatalf("expense kept its target account")
	}
}

func TestTransactionServiceDelete(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	f := seedOwner(t, repo, 1)
	pub := &recordingPublisher{}
	svc := NewTransactionService(repo, repo, pub)
	balances := NewBalanceCalculator(repo, repo)

	created, err := svc.Create(ctx, 1, core.Transaction{
		Type: core.Expense, Amount: dec("30"), Date: core.NewDate(2024, 1, 1),
		AccountID: f.accountA.ID, CategoryID: &f.expense.ID,
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if err := svc.Delete(ctx, 2, created.ID); !errors.Is(err, core.ErrForbidden) {
		t.Fatalf("foreign delete error = %v", err)
	}
	if err := svc.Delete(ctx, 1, created.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := svc.Get(ctx, 1, created.ID); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("deleted entry still visible: %v", err)
	}
	if err := svc.Delete(ctx, 1, created.ID); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("second delete error = %v", err)
	}
	if len(pub.deleted) != 1 || pub.deleted[0].ID != created.ID {
		t.Fatalf("expected one delete event, got %+v", pub.deleted)
	}

	balance, err := balances.GetAccountBalance(ctx, 1, f.accountA.ID, nil)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if !balance.Equal(dec("100")) {
		t.Fatalf("deleted entry still counts: balance %s", balance)
	}
}

func TestTransactionServiceList(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	f := seedOwner(t, repo, 1)
	seedOwner(t, repo, 2)
	svc := NewTransactionService(repo, repo, nil)

	for _, d := range []core.Date{core.NewDate(2024, 1, 1), core.NewDate(2024, 2, 1), core.NewDate(2024, 3, 1)} {
		if _, err := svc.Create(ctx, 1, core.Transaction{
			Type: core.Expense, Amount: dec("1"), Date: d,
			AccountID: f.accountA.ID, CategoryID: &f.expense.ID,
		}); err != nil {
			t.Fatalf("Create: %v", err)
		}
	}

	from, to := core.NewDate(2024, 2, 1), core.NewDate(2024, 3, 31)
	got, err := svc.List(ctx, 1, storage.TransactionFilter{OwnerID: 2, From: &from, To: &to})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 entries in range, got %d", len(got))
	}
	for _, tx := range got {
		if tx.OwnerID != 1 {
			t.Fatalf("filter owner must be forced to the caller")
		}
	}

	if _, err := svc.List(ctx, 1, storage.TransactionFilter{From: &to, To: &from}); !errors.Is(err, core.ErrValidation) {
		t.Fatalf("inverted range error = %v", err)
	}
	if _, err := svc.List(ctx, 1, storage.TransactionFilter{Type: "refund"}); !errors.Is(err, core.ErrValidation) {
		t.Fatalf("bad type error = %v", err)
	}
}
