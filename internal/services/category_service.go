package services

import (
	"context"
	"fmt"
	"strings"

	"moneyflow/internal/core"
)

type CategoryService struct {
	categories CategoryStore
}

func NewCategoryService(categories CategoryStore) *CategoryService {
	return &CategoryService{categories: categories}
}

// Create adds a category owned by ownerID. A parent, when given, must be
// visible to the owner and of the same type.
func (s *CategoryService) Create(ctx context.Context, ownerID int64, c core.Category) (core.Category, error) {
	c.OwnerID = &ownerID
	c.Name = strings.TrimSpace(c.Name)
	if err := c.Validate(); err != nil {
		return core.Category{}, err
	}
	if c.ParentID != nil {
		parent, err := s.categories.GetCategory(ctx, *c.ParentID)
		if err != nil {
			return core.Category{}, err
		}
		if err := core.CheckCategoryAccess(parent, ownerID, c.Type); err != nil {
			return core.Category{}, fmt.Errorf("parent category: %w", err)
		}
	}
	created, err := s.categories.CreateCategory(ctx, c)
	if err != nil {
		return core.Category{}, fmt.Errorf("save category: %w", err)
	}
	return created, nil
}

// List returns the owner's categories and the global ones. An empty typ
// lists both kinds.
func (s *CategoryService) List(ctx context.Context, ownerID int64, typ core.TransactionType) ([]core.Category, error) {
	if typ != "" {
		if err := core.ValidateRuleType(typ); err != nil {
			return nil, err
		}
	}
	return s.categories.ListCategories(ctx, ownerID, typ)
}

// Delete removes one of the owner's categories. Global categories are
// read-only to every owner.
func (s *CategoryService) Delete(ctx context.Context, ownerID, id int64) error {
	c, err := s.categories.GetCategory(ctx, id)
	if err != nil {
		return err
	}
	if c.Global() {
		return core.Forbiddenf("global category %d cannot be deleted", id)
	}
	if err := core.CheckOwnership(*c.OwnerID, ownerID); err != nil {
		return err
	}
	return s.categories.SoftDeleteCategory(ctx, ownerID, id)
}
