package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"moneyflow/internal/core"
)

const transactionColumns = `id, owner_id, type, amount_cents, currency, original_amount_cents, date,
	category_id, account_id, target_account_id, note, rule_id, deleted, created_at, updated_at`

func scanTransaction(row scanner) (core.Transaction, error) {
	var (
		t                  core.Transaction
		typ                string
		amount             int64
		original           sql.NullInt64
		date               string
		category, target   sql.NullInt64
		rule               sql.NullInt64
		createdAt, updated string
	)
	err := row.Scan(&t.ID, &t.OwnerID, &typ, &amount, &t.Currency, &original, &date,
		&category, &t.AccountID, &target, &t.Note, &rule, &t.Deleted, &createdAt, &updated)
	if err != nil {
		return core.Transaction{}, err
	}
	t.Type = core.TransactionType(typ)
	t.Amount = core.FromCents(amount)
	if original.Valid {
		o := core.FromCents(original.Int64)
		t.OriginalAmount = &o
	}
	if t.Date, err = parseDate(date); err != nil {
		return core.Transaction{}, err
	}
	t.CategoryID = intPtr(category)
	t.TargetAccountID = intPtr(target)
	t.RuleID = intPtr(rule)
	t.CreatedAt = parseTimestamp(createdAt)
	t.UpdatedAt = parseTimestamp(updated)
	return t, nil
}

func originalCents(t core.Transaction) sql.NullInt64 {
	if t.OriginalAmount == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: core.ToCents(*t.OriginalAmount), Valid: true}
}

func (q *Queries) InsertTransaction(ctx context.Context, t core.Transaction) (core.Transaction, error) {
	row := q.db.QueryRowContext(ctx, `
		INSERT INTO transactions (owner_id, type, amount_cents, currency, original_amount_cents, date,
			category_id, account_id, target_account_id, note, rule_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING `+transactionColumns,
		t.OwnerID, string(t.Type), core.ToCents(t.Amount), t.Currency, originalCents(t), t.Date.String(),
		nullInt(t.CategoryID), t.AccountID, nullInt(t.TargetAccountID), t.Note, nullInt(t.RuleID))
	created, err := scanTransaction(row)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("insert transaction: %w", err)
	}
	return created, nil
}

// InsertGeneratedTransaction inserts an entry produced by a recurring rule.
// It reports false without error when the rule already has an entry for
// that date.
func (q *Queries) InsertGeneratedTransaction(ctx context.Context, t core.Transaction) (core.Transaction, bool, error) {
	if t.RuleID == nil {
		return core.Transaction{}, false, fmt.Errorf("insert generated transaction: rule id is required")
	}
	row := q.db.QueryRowContext(ctx, `
		INSERT INTO transactions (owner_id, type, amount_cents, currency, original_amount_cents, date,
			category_id, account_id, target_account_id, note, rule_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT DO NOTHING
		RETURNING `+transactionColumns,
		t.OwnerID, string(t.Type), core.ToCents(t.Amount), t.Currency, originalCents(t), t.Date.String(),
		nullInt(t.CategoryID), t.AccountID, nullInt(t.TargetAccountID), t.Note, nullInt(t.RuleID))
	created, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Transaction{}, false, nil
	}
	if err != nil {
		return core.Transaction{}, false, fmt.Errorf("insert generated transaction: %w", err)
	}
	return created, true, nil
}

func (q *Queries) GetTransaction(ctx context.Context, id int64) (core.Transaction, error) {
	row := q.db.QueryRowContext(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE id = ? AND deleted = 0`, id)
	t, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Transaction{}, core.NotFoundf("transaction %d not found", id)
	}
	if err != nil {
		return core.Transaction{}, fmt.Errorf("get transaction %d: %w", id, err)
	}
	return t, nil
}

// GetTransactionAnyState also returns soft-deleted entries; the export
// worker needs them to mark removed rows.
func (q *Queries) GetTransactionAnyState(ctx context.Context, id int64) (core.Transaction, error) {
	row := q.db.QueryRowContext(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE id = ?`, id)
	t, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Transaction{}, core.NotFoundf("transaction %d not found", id)
	}
	if err != nil {
		return core.Transaction{}, fmt.Errorf("get transaction %d: %w", id, err)
	}
	return t, nil
}

// TransactionFilter narrows ListTransactions. Zero values match everything.
type TransactionFilter struct {
	OwnerID    int64
	From, To   *core.Date
	Type       core.TransactionType
	AccountID  *int64
	CategoryID *int64
	RuleID     *int64
	Limit      int
	Offset     int
}

func (q *Queries) ListTransactions(ctx context.Context, f TransactionFilter) ([]core.Transaction, error) {
	var (
		where = []string{"owner_id = ?", "deleted = 0"}
		args  = []any{f.OwnerID}
	)
	if f.From != nil {
		where = append(where, "date >= ?")
		args = append(args, f.From.String())
	}
	if f.To != nil {
		where = append(where, "date <= ?")
		args = append(args, f.To.String())
	}
	if f.Type != "" {
		where = append(where, "type = ?")
		args = append(args, string(f.Type))
	}
	if f.AccountID != nil {
		where = append(where, "(account_id = ? OR target_account_id = ?)")
		args = append(args, *f.AccountID, *f.AccountID)
	}
	if f.CategoryID != nil {
		where = append(where, "category_id = ?")
		args = append(args, *f.CategoryID)
	}
	if f.RuleID != nil {
		where = append(where, "rule_id = ?")
		args = append(args, *f.RuleID)
	}
	limit := f.Limit
	if limit <= 0 {
		limit = -1
	}
	args = append(args, limit, f.Offset)

	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE ` +
		strings.Join(where, " AND ") + ` ORDER BY date DESC, id DESC LIMIT ? OFFSET ?`
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	var txs []core.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		txs = append(txs, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transactions: %w", err)
	}
	return txs, nil
}

func (q *Queries) UpdateTransaction(ctx context.Context, t core.Transaction) error {
	res, err := q.db.ExecContext(ctx, `
		UPDATE transactions
		SET type = ?, amount_cents = ?, currency = ?, original_amount_cents = ?, date = ?,
			category_id = ?, account_id = ?, target_account_id = ?, note = ?,
			export_status = 'pending', updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND owner_id = ? AND deleted = 0`,
		string(t.Type), core.ToCents(t.Amount), t.Currency, originalCents(t), t.Date.String(),
		nullInt(t.CategoryID), t.AccountID, nullInt(t.TargetAccountID), t.Note,
		t.ID, t.OwnerID)
	if isUniqueViolation(err) {
		return core.Conflictf("recurring rule already has an entry dated %s", t.Date)
	}
	if err != nil {
		return fmt.Errorf("update transaction %d: %w", t.ID, err)
	}
	ok, err := affected(res)
	if err != nil {
		return err
	}
	if !ok {
		return core.NotFoundf("transaction %d not found", t.ID)
	}
	return nil
}

func (q *Queries) SoftDeleteTransaction(ctx context.Context, ownerID, id int64) error {
	res, err := q.db.ExecContext(ctx, `
		UPDATE transactions SET deleted = 1, export_status = 'pending', updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND owner_id = ? AND deleted = 0`, id, ownerID)
	if err != nil {
		return fmt.Errorf("delete transaction %d: %w", id, err)
	}
	ok, err := affected(res)
	if err != nil {
		return err
	}
	if !ok {
		return core.NotFoundf("transaction %d not found", id)
	}
	return nil
}

var legQueries = map[core.Leg]string{
	core.LegIncome:      `account_id = ? AND type = 'income'`,
	core.LegExpense:     `account_id = ? AND type = 'expense'`,
	core.LegTransferOut: `account_id = ? AND type = 'transfer'`,
	core.LegTransferIn:  `target_account_id = ? AND type = 'transfer'`,
}

// SumTransactions totals one balance leg of an account in cents. Deleted
// rows never count; asOf, when set, excludes entries dated after it.
func (q *Queries) SumTransactions(ctx context.Context, ownerID, accountID int64, leg core.Leg, asOf *core.Date) (int64, error) {
	cond, ok := legQueries[leg]
	if !ok {
		return 0, fmt.Errorf("unknown balance leg %q", leg)
	}
	query := `SELECT COALESCE(SUM(amount_cents), 0) FROM transactions WHERE owner_id = ? AND deleted = 0 AND ` + cond
	args := []any{ownerID, accountID}
	if asOf != nil {
		query += ` AND date <= ?`
		args = append(args, asOf.String())
	}
	var sum int64
	if err := q.db.QueryRowContext(ctx, query, args...).Scan(&sum); err != nil {
		return 0, fmt.Errorf("sum %s for account %d: %w", leg, accountID, err)
	}
	return sum, nil
}

// PendingExport is the minimal data needed to queue an entry for export.
type PendingExport struct {
	ID        int64
	OwnerID   int64
	CreatedAt time.Time
}

// ListPendingExport returns entries not yet written to the export backend,
// oldest first.
func (q *Queries) ListPendingExport(ctx context.Context, limit int) ([]PendingExport, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT id, owner_id, created_at FROM transactions
		WHERE export_status = 'pending'
		ORDER BY id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list pending export: %w", err)
	}
	defer rows.Close()

	var pending []PendingExport
	for rows.Next() {
		var (
			p         PendingExport
			createdAt string
		)
		if err := rows.Scan(&p.ID, &p.OwnerID, &createdAt); err != nil {
			return nil, fmt.Errorf("scan pending export: %w", err)
		}
		p.CreatedAt = parseTimestamp(createdAt)
		pending = append(pending, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pending export: %w", err)
	}
	return pending, nil
}

func (q *Queries) MarkExported(ctx context.Context, id int64) error {
	if _, err := q.db.ExecContext(ctx, `UPDATE transactions SET export_status = 'exported' WHERE id = ?`, id); err != nil {
		return fmt.Errorf("mark transaction exported: %w", err)
	}
	return nil
}

func (q *Queries) MarkExportError(ctx context.Context, id int64) error {
	if _, err := q.db.ExecContext(ctx, `UPDATE transactions SET export_status = 'error' WHERE id = ?`, id); err != nil {
		return fmt.Errorf("mark transaction export error: %w", err)
	}
	return nil
}
