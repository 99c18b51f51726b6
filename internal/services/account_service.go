package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"moneyflow/internal/core"
)

// AccountView is an account together with its derived balance.
type AccountView struct {
	core.Account
	CurrentBalance decimal.Decimal
}

type AccountService struct {
	accounts AccountStore
	balances *BalanceCalculator
}

func NewAccountService(accounts AccountStore, balances *BalanceCalculator) *AccountService {
	return &AccountService{accounts: accounts, balances: balances}
}

// AccountPatch carries the fields of a partial update.
type AccountPatch struct {
	Name           *string
	Type           *core.AccountType
	Icon           *string
	InitialBalance *decimal.Decimal
	SortOrder      *int
}

func (p AccountPatch) empty() bool {
	return p.Name == nil && p.Type == nil && p.Icon == nil && p.InitialBalance == nil && p.SortOrder == nil
}

func (s *AccountService) Create(ctx context.Context, ownerID int64, a core.Account) (AccountView, error) {
	a.OwnerID = ownerID
	a.System = false
	if err := a.Validate(); err != nil {
		return AccountView{}, err
	}
	created, err := s.accounts.CreateAccount(ctx, a)
	if err != nil {
		return AccountView{}, fmt.Errorf("save account: %w", err)
	}
	slog.InfoContext(ctx, "Account created", "id", created.ID, "owner_id", ownerID, "type", created.Type)
	// A new account has no entries yet.
	return AccountView{Account: created, CurrentBalance: created.InitialBalance}, nil
}

// List returns the owner's accounts in display order, each with its
// current balance.
func (s *AccountService) List(ctx context.Context, ownerID int64) ([]AccountView, error) {
	accounts, err := s.accounts.ListAccounts(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	views := make([]AccountView, 0, len(accounts))
	for _, a := range accounts {
		balance, err := s.balances.CurrentBalance(ctx, a)
		if err != nil {
			return nil, fmt.Errorf("balance of account %d: %w", a.ID, err)
		}
		views = append(views, AccountView{Account: a, CurrentBalance: balance})
	}
	return views, nil
}

func (s *AccountService) Get(ctx context.Context, ownerID, id int64) (AccountView, error) {
	a, err := s.owned(ctx, ownerID, id)
	if err != nil {
		return AccountView{}, err
	}
	balance, err := s.balances.CurrentBalance(ctx, a)
	if err != nil {
		return AccountView{}, err
	}
	return AccountView{Account: a, CurrentBalance: balance}, nil
}

func (s *AccountService) Update(ctx context.Context, ownerID, id int64, p AccountPatch) (AccountView, error) {
	if p.empty() {
		return AccountView{}, core.ErrNothingToUpdate
	}
	a, err := s.owned(ctx, ownerID, id)
	if err != nil {
		return AccountView{}, err
	}
	if p.Name != nil {
		a.Name = *p.Name
	}
	if p.Type != nil {
		a.Type = *p.Type
	}
	if p.Icon != nil {
		a.Icon = *p.Icon
	}
	if p.InitialBalance != nil {
		a.InitialBalance = *p.InitialBalance
	}
	if p.SortOrder != nil {
		a.SortOrder = *p.SortOrder
	}
	if err := a.Validate(); err != nil {
		return AccountView{}, err
	}
	if err := s.accounts.UpdateAccount(ctx, a); err != nil {
		return AccountView{}, fmt.Errorf("update account: %w", err)
	}
	return s.Get(ctx, ownerID, id)
}

// Delete refuses system accounts and accounts any live entry still
// references.
func (s *AccountService) Delete(ctx context.Context, ownerID, id int64) error {
	a, err := s.owned(ctx, ownerID, id)
	if err != nil {
		return err
	}
	if a.System {
		return core.ErrSystemAccountDelete
	}
	n, err := s.accounts.CountAccountTransactions(ctx, ownerID, id)
	if err != nil {
		return err
	}
	if n > 0 {
		return core.ErrAccountInUse
	}
	if err := s.accounts.SoftDeleteAccount(ctx, ownerID, id); err != nil {
		return fmt.Errorf("delete account: %w", err)
	}
	slog.InfoContext(ctx, "Account deleted", "id", id, "owner_id", ownerID)
	return nil
}

func (s *AccountService) owned(ctx context.Context, ownerID, id int64) (core.Account, error) {
	a, err := s.accounts.GetAccount(ctx, id)
	if err != nil {
		return core.Account{}, err
	}
	if err := core.CheckAccountAccess(a, ownerID); err != nil {
		return core.Account{}, err
	}
	return a, nil
}
