package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"moneyflow/internal/core"
)

const accountColumns = `id, owner_id, name, type, icon, initial_balance_cents, sort_order, is_system, deleted, created_at`

func scanAccount(row scanner) (core.Account, error) {
	var (
		a         core.Account
		typ       string
		initial   int64
		createdAt string
	)
	if err := row.Scan(&a.ID, &a.OwnerID, &a.Name, &typ, &a.Icon, &initial, &a.SortOrder, &a.System, &a.Deleted, &createdAt); err != nil {
		return core.Account{}, err
	}
	a.Type = core.AccountType(typ)
	a.InitialBalance = core.FromCents(initial)
	a.CreatedAt = parseTimestamp(createdAt)
	return a, nil
}

func (q *Queries) CreateAccount(ctx context.Context, a core.Account) (core.Account, error) {
	row := q.db.QueryRowContext(ctx, `
		INSERT INTO accounts (owner_id, name, type, icon, initial_balance_cents, sort_order, is_system)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		RETURNING `+accountColumns,
		a.OwnerID, a.Name, string(a.Type), a.Icon, core.ToCents(a.InitialBalance), a.SortOrder, a.System)
	created, err := scanAccount(row)
	if err != nil {
		return core.Account{}, fmt.Errorf("create account: %w", err)
	}
	return created, nil
}

// GetAccount returns a live account by id regardless of owner; callers
// check ownership.
func (q *Queries) GetAccount(ctx context.Context, id int64) (core.Account, error) {
	row := q.db.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = ? AND deleted = 0`, id)
	a, err := scanAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Account{}, core.NotFoundf("account %d not found", id)
	}
	if err != nil {
		return core.Account{}, fmt.Errorf("get account %d: %w", id, err)
	}
	return a, nil
}

func (q *Queries) ListAccounts(ctx context.Context, ownerID int64) ([]core.Account, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT `+accountColumns+` FROM accounts
		WHERE owner_id = ? AND deleted = 0
		ORDER BY sort_order, id`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	defer rows.Close()

	var accounts []core.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}
		accounts = append(accounts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate accounts: %w", err)
	}
	return accounts, nil
}

func (q *Queries) CountAccounts(ctx context.Context, ownerID int64) (int64, error) {
	var n int64
	err := q.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM accounts WHERE owner_id = ? AND deleted = 0`, ownerID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count accounts: %w", err)
	}
	return n, nil
}

func (q *Queries) UpdateAccount(ctx context.Context, a core.Account) error {
	res, err := q.db.ExecContext(ctx, `
		UPDATE accounts
		SET name = ?, type = ?, icon = ?, initial_balance_cents = ?, sort_order = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND owner_id = ? AND deleted = 0`,
		a.Name, string(a.Type), a.Icon, core.ToCents(a.InitialBalance), a.SortOrder, a.ID, a.OwnerID)
	if err != nil {
		return fmt.Errorf("update account %d: %w", a.ID, err)
	}
	ok, err := affected(res)
	if err != nil {
		return err
	}
	if !ok {
		return core.NotFoundf("account %d not found", a.ID)
	}
	return nil
}

func (q *Queries) SoftDeleteAccount(ctx context.Context, ownerID, id int64) error {
	res, err := q.db.ExecContext(ctx, `
		UPDATE accounts SET deleted = 1, updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND owner_id = ? AND deleted = 0`, id, ownerID)
	if err != nil {
		return fmt.Errorf("delete account %d: %w", id, err)
	}
	ok, err := affected(res)
	if err != nil {
		return err
	}
	if !ok {
		return core.NotFoundf("account %d not found", id)
	}
	return nil
}

// CountAccountTransactions counts live entries touching the account on
// either transfer leg.
func (q *Queries) CountAccountTransactions(ctx context.Context, ownerID, accountID int64) (int64, error) {
	var n int64
	err := q.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM transactions
		WHERE owner_id = ? AND deleted = 0 AND (account_id = ? OR target_account_id = ?)`,
		ownerID, accountID, accountID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count account transactions: %w", err)
	}
	return n, nil
}
