package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"moneyflow/internal/core"
)

const ruleColumns = `id, owner_id, type, amount_cents, category_id, account_id, frequency,
	start_date, next_execution_date, enabled, description, version, deleted`

func scanRule(row scanner) (core.RecurringRule, error) {
	var (
		r           core.RecurringRule
		typ, freq   string
		amount      int64
		start, next string
	)
	err := row.Scan(&r.ID, &r.OwnerID, &typ, &amount, &r.CategoryID, &r.AccountID, &freq,
		&start, &next, &r.Enabled, &r.Description, &r.Version, &r.Deleted)
	if err != nil {
		return core.RecurringRule{}, err
	}
	r.Type = core.TransactionType(typ)
	r.Frequency = core.Frequency(freq)
	r.Amount = core.FromCents(amount)
	if r.StartDate, err = parseDate(start); err != nil {
		return core.RecurringRule{}, err
	}
	if r.NextExecutionDate, err = parseDate(next); err != nil {
		return core.RecurringRule{}, err
	}
	return r, nil
}

func scanRules(rows *sql.Rows) ([]core.RecurringRule, error) {
	defer rows.Close()
	var rules []core.RecurringRule
	for rows.Next() {
		r, err := scanRule(rows)
		if err != nil {
			return nil, fmt.Errorf("scan recurring rule: %w", err)
		}
		rules = append(rules, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate recurring rules: %w", err)
	}
	return rules, nil
}

func (q *Queries) CreateRule(ctx context.Context, r core.RecurringRule) (core.RecurringRule, error) {
	row := q.db.QueryRowContext(ctx, `
		INSERT INTO recurring_rules (owner_id, type, amount_cents, category_id, account_id, frequency,
			start_date, next_execution_date, enabled, description)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING `+ruleColumns,
		r.OwnerID, string(r.Type), core.ToCents(r.Amount), r.CategoryID, r.AccountID, string(r.Frequency),
		r.StartDate.String(), r.NextExecutionDate.String(), r.Enabled, r.Description)
	created, err := scanRule(row)
	if err != nil {
		return core.RecurringRule{}, fmt.Errorf("create recurring rule: %w", err)
	}
	return created, nil
}

func (q *Queries) GetRule(ctx context.Context, id int64) (core.RecurringRule, error) {
	row := q.db.QueryRowContext(ctx, `SELECT `+ruleColumns+` FROM recurring_rules WHERE id = ? AND deleted = 0`, id)
	r, err := scanRule(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.RecurringRule{}, core.NotFoundf("recurring rule %d not found", id)
	}
	if err != nil {
		return core.RecurringRule{}, fmt.Errorf("get recurring rule %d: %w", id, err)
	}
	return r, nil
}

func (q *Queries) ListRules(ctx context.Context, ownerID int64) ([]core.RecurringRule, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT `+ruleColumns+` FROM recurring_rules
		WHERE owner_id = ? AND deleted = 0
		ORDER BY next_execution_date, id`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list recurring rules: %w", err)
	}
	return scanRules(rows)
}

// FindDueRules selects enabled live rules whose next execution date is on
// or before today, in id order.
func (q *Queries) FindDueRules(ctx context.Context, scope core.Scope, today core.Date) ([]core.RecurringRule, error) {
	query := `SELECT ` + ruleColumns + ` FROM recurring_rules
		WHERE enabled = 1 AND deleted = 0 AND next_execution_date <= ?`
	args := []any{today.String()}
	if ownerID, ok := scope.OwnerID(); ok {
		query += ` AND owner_id = ?`
		args = append(args, ownerID)
	}
	query += ` ORDER BY id`

	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("find due rules: %w", err)
	}
	return scanRules(rows)
}

// UpdateRule writes every mutable field if the stored version still
// matches r.Version, and bumps it. A stale version is a conflict.
func (q *Queries) UpdateRule(ctx context.Context, r core.RecurringRule) (core.RecurringRule, error) {
	row := q.db.QueryRowContext(ctx, `
		UPDATE recurring_rules
		SET type = ?, amount_cents = ?, category_id = ?, account_id = ?, frequency = ?,
			start_date = ?, next_execution_date = ?, enabled = ?, description = ?,
			version = version + 1, updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND owner_id = ? AND version = ? AND deleted = 0
		RETURNING `+ruleColumns,
		string(r.Type), core.ToCents(r.Amount), r.CategoryID, r.AccountID, string(r.Frequency),
		r.StartDate.String(), r.NextExecutionDate.String(), r.Enabled, r.Description,
		r.ID, r.OwnerID, r.Version)
	updated, err := scanRule(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.RecurringRule{}, core.Conflictf("recurring rule %d was modified concurrently", r.ID)
	}
	if err != nil {
		return core.RecurringRule{}, fmt.Errorf("update recurring rule %d: %w", r.ID, err)
	}
	return updated, nil
}

// AdvanceRule moves a rule that was due on r.NextExecutionDate to next.
// It reports false when another run already advanced, disabled or
// deleted the rule.
func (q *Queries) AdvanceRule(ctx context.Context, r core.RecurringRule, next core.Date) (bool, error) {
	res, err := q.db.ExecContext(ctx, `
		UPDATE recurring_rules
		SET next_execution_date = ?, version = version + 1, updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND version = ? AND next_execution_date = ? AND enabled = 1 AND deleted = 0`,
		next.String(), r.ID, r.Version, r.NextExecutionDate.String())
	if err != nil {
		return false, fmt.Errorf("advance recurring rule %d: %w", r.ID, err)
	}
	return affected(res)
}

func (q *Queries) SoftDeleteRule(ctx context.Context, ownerID, id int64) error {
	res, err := q.db.ExecContext(ctx, `
		UPDATE recurring_rules SET deleted = 1, version = version + 1, updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND owner_id = ? AND deleted = 0`, id, ownerID)
	if err != nil {
		return fmt.Errorf("delete recurring rule %d: %w", id, err)
	}
	ok, err := affected(res)
	if err != nil {
		return err
	}
	if !ok {
		return core.NotFoundf("recurring rule %d not found", id)
	}
	return nil
}

// LastGeneratedDate returns the latest period a rule has an entry for,
// deleted entries included, since they still hold the period's slot.
func (q *Queries) LastGeneratedDate(ctx context.Context, ruleID int64) (*core.Date, error) {
	var last sql.NullString
	err := q.db.QueryRowContext(ctx, `SELECT MAX(date) FROM transactions WHERE rule_id = ?`, ruleID).Scan(&last)
	if err != nil {
		return nil, fmt.Errorf("last generated date of rule %d: %w", ruleID, err)
	}
	if !last.Valid {
		return nil, nil
	}
	d, err := parseDate(last.String)
	if err != nil {
		return nil, err
	}
	return &d, nil
}
