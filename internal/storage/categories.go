package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"moneyflow/internal/core"
)

const categoryColumns = `id, owner_id, parent_id, name, type, icon, sort_order, deleted`

func scanCategory(row scanner) (core.Category, error) {
	var (
		c      core.Category
		owner  sql.NullInt64
		parent sql.NullInt64
		typ    string
	)
	if err := row.Scan(&c.ID, &owner, &parent, &c.Name, &typ, &c.Icon, &c.SortOrder, &c.Deleted); err != nil {
		return core.Category{}, err
	}
	c.OwnerID = intPtr(owner)
	c.ParentID = intPtr(parent)
	c.Type = core.TransactionType(typ)
	return c, nil
}

func (q *Queries) CreateCategory(ctx context.Context, c core.Category) (core.Category, error) {
	row := q.db.QueryRowContext(ctx, `
		INSERT INTO categories (owner_id, parent_id, name, type, icon, sort_order)
		VALUES (?, ?, ?, ?, ?, ?)
		RETURNING `+categoryColumns,
		nullInt(c.OwnerID), nullInt(c.ParentID), c.Name, string(c.Type), c.Icon, c.SortOrder)
	created, err := scanCategory(row)
	if err != nil {
		return core.Category{}, fmt.Errorf("create category: %w", err)
	}
	return created, nil
}

func (q *Queries) GetCategory(ctx context.Context, id int64) (core.Category, error) {
	row := q.db.QueryRowContext(ctx, `SELECT `+categoryColumns+` FROM categories WHERE id = ? AND deleted = 0`, id)
	c, err := scanCategory(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Category{}, core.NotFoundf("category %d not found", id)
	}
	if err != nil {
		return core.Category{}, fmt.Errorf("get category %d: %w", id, err)
	}
	return c, nil
}

// ListCategories returns the owner's categories followed by the global
// ones. An empty typ matches both expense and income.
func (q *Queries) ListCategories(ctx context.Context, ownerID int64, typ core.TransactionType) ([]core.Category, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT `+categoryColumns+` FROM categories
		WHERE (owner_id = ? OR owner_id IS NULL) AND deleted = 0 AND (? = '' OR type = ?)
		ORDER BY owner_id IS NULL, type, sort_order, id`,
		ownerID, string(typ), string(typ))
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()

	var categories []core.Category
	for rows.Next() {
		c, err := scanCategory(rows)
		if err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		categories = append(categories, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate categories: %w", err)
	}
	return categories, nil
}

// SoftDeleteCategory only touches categories the owner holds; global ones
// are never deleted through it.
func (q *Queries) SoftDeleteCategory(ctx context.Context, ownerID, id int64) error {
	res, err := q.db.ExecContext(ctx, `
		UPDATE categories SET deleted = 1
		WHERE id = ? AND owner_id = ? AND deleted = 0`, id, ownerID)
	if err != nil {
		return fmt.Errorf("delete category %d: %w", id, err)
	}
	ok, err := affected(res)
	if err != nil {
		return err
	}
	if !ok {
		return core.NotFoundf("category %d not found", id)
	}
	return nil
}
