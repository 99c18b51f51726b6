package services

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"moneyflow/internal/core"
	"moneyflow/internal/metrics"
)

// BalanceCalculator derives account balances from the ledger. Nothing is
// stored or cached: every call recomputes from the live entries.
type BalanceCalculator struct {
	ledger   LegSummer
	accounts AccountReader
}

func NewBalanceCalculator(ledger LegSummer, accounts AccountReader) *BalanceCalculator {
	return &BalanceCalculator{ledger: ledger, accounts: accounts}
}

// CurrentBalance returns initial + income + transfer-in - expense -
// transfer-out over the account's live entries. The caller has already
// checked that the account exists and who owns it.
func (b *BalanceCalculator) CurrentBalance(ctx context.Context, account core.Account) (decimal.Decimal, error) {
	return b.BalanceAsOf(ctx, account, nil)
}

// BalanceAsOf is CurrentBalance restricted to entries dated on or before
// asOf. A nil asOf includes every entry.
func (b *BalanceCalculator) BalanceAsOf(ctx context.Context, account core.Account, asOf *core.Date) (decimal.Decimal, error) {
	start := time.Now()
	defer func() { metrics.BalanceDuration.Observe(time.Since(start).Seconds()) }()

	cents := core.ToCents(account.InitialBalance)
	for _, leg := range core.Legs {
		sum, err := b.ledger.SumTransactions(ctx, account.OwnerID, account.ID, leg, asOf)
		if err != nil {
			return decimal.Zero, err
		}
		cents += leg.Sign() * sum
	}
	return core.FromCents(cents), nil
}

// GetAccountBalance resolves the account, checks that ownerID owns it and
// returns its balance.
func (b *BalanceCalculator) GetAccountBalance(ctx context.Context, ownerID, accountID int64, asOf *core.Date) (decimal.Decimal, error) {
	account, err := b.accounts.GetAccount(ctx, accountID)
	if err != nil {
		return decimal.Zero, err
	}
	if err := core.CheckAccountAccess(account, ownerID); err != nil {
		return decimal.Zero, err
	}
	return b.BalanceAsOf(ctx, account, asOf)
}
