package services

import (
	"context"
	"log/slog"

	"github.com/shopspring/decimal"

	"moneyflow/internal/core"
)

// DefaultAccounts are created for every new owner and cannot be deleted.
var DefaultAccounts = []core.Account{
	{Name: "Cash", Type: core.AccountCash, Icon: "wallet", SortOrder: 1},
	{Name: "Bank card", Type: core.AccountCard, Icon: "credit-card", SortOrder: 2},
	{Name: "Alipay", Type: core.AccountAlipay, Icon: "alipay", SortOrder: 3},
	{Name: "WeChat", Type: core.AccountWechat, Icon: "wechat", SortOrder: 4},
}

// DefaultCategories are the starter categories of every new owner.
var DefaultCategories = []core.Category{
	{Name: "Dining", Type: core.Expense, Icon: "restaurant", SortOrder: 1},
	{Name: "Transport", Type: core.Expense, Icon: "car", SortOrder: 2},
	{Name: "Shopping", Type: core.Expense, Icon: "shopping-bag", SortOrder: 3},
	{Name: "Entertainment", Type: core.Expense, Icon: "game-controller", SortOrder: 4},
	{Name: "Medical", Type: core.Expense, Icon: "medical", SortOrder: 5},
	{Name: "Education", Type: core.Expense, Icon: "book", SortOrder: 6},
	{Name: "Housing", Type: core.Expense, Icon: "home", SortOrder: 7},
	{Name: "Other expense", Type: core.Expense, Icon: "more", SortOrder: 8},
	{Name: "Salary", Type: core.Income, Icon: "wallet", SortOrder: 1},
	{Name: "Bonus", Type: core.Income, Icon: "gift", SortOrder: 2},
	{Name: "Investment", Type: core.Income, Icon: "trending-up", SortOrder: 3},
	{Name: "Part-time", Type: core.Income, Icon: "briefcase", SortOrder: 4},
	{Name: "Other income", Type: core.Income, Icon: "more", SortOrder: 5},
}

// DefaultDataInitializer seeds a new owner with system accounts and
// starter categories.
type DefaultDataInitializer struct {
	store OwnerInitializer
}

func NewDefaultDataInitializer(store OwnerInitializer) *DefaultDataInitializer {
	return &DefaultDataInitializer{store: store}
}

// Initialize creates the defaults in one unit of work. It reports false
// and writes nothing when the owner already has accounts.
func (d *DefaultDataInitializer) Initialize(ctx context.Context, ownerID int64) (bool, error) {
	accounts := make([]core.Account, len(DefaultAccounts))
	for i, a := range DefaultAccounts {
		a.System = true
		a.InitialBalance = decimal.Zero
		accounts[i] = a
	}

	created, err := d.store.InitializeOwner(ctx, ownerID, accounts, DefaultCategories)
	if err != nil {
		return false, err
	}
	if created {
		slog.InfoContext(ctx, "Default data initialized",
			"owner_id", ownerID,
			"accounts", len(accounts),
			"categories", len(DefaultCategories))
	} else {
		slog.InfoContext(ctx, "Owner already initialized, skipping defaults", "owner_id", ownerID)
	}
	return created, nil
}
