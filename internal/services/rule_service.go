package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"moneyflow/internal/core"
)

type RuleService struct {
	rules RuleStore
	refs  ReferenceReader
}

func NewRuleService(rules RuleStore, refs ReferenceReader) *RuleService {
	return &RuleService{rules: rules, refs: refs}
}

// RulePatch carries the fields of a partial update.
type RulePatch struct {
	Type        *core.TransactionType
	Amount      *decimal.Decimal
	CategoryID  *int64
	AccountID   *int64
	Frequency   *core.Frequency
	StartDate   *core.Date
	Enabled     *bool
	Description *string
}

func (p RulePatch) empty() bool {
	return p.Type == nil && p.Amount == nil && p.CategoryID == nil && p.AccountID == nil &&
		p.Frequency == nil && p.StartDate == nil && p.Enabled == nil && p.Description == nil
}

// Create stores a rule whose first firing is one period after its start
// date.
func (s *RuleService) Create(ctx context.Context, ownerID int64, r core.RecurringRule) (core.RecurringRule, error) {
	r.OwnerID = ownerID
	r.NextExecutionDate = core.Date{}
	if err := r.Validate(); err != nil {
		return core.RecurringRule{}, err
	}
	if err := s.checkReferences(ctx, r); err != nil {
		return core.RecurringRule{}, err
	}
	next, err := core.Advance(r.StartDate, r.Frequency)
	if err != nil {
		return core.RecurringRule{}, err
	}
	r.NextExecutionDate = next

	created, err := s.rules.CreateRule(ctx, r)
	if err != nil {
		return core.RecurringRule{}, fmt.Errorf("save recurring rule: %w", err)
	}
	slog.InfoContext(ctx, "Recurring rule created",
		"id", created.ID,
		"owner_id", ownerID,
		"frequency", created.Frequency,
		"next_execution_date", created.NextExecutionDate.String())
	return created, nil
}

// Update applies a partial change. A new start date or frequency
// reschedules the rule from its start date, skipping periods it already
// produced entries for.
func (s *RuleService) Update(ctx context.Context, ownerID, id int64, p RulePatch) (core.RecurringRule, error) {
	if p.empty() {
		return core.RecurringRule{}, core.ErrNothingToUpdate
	}
	r, err := s.get(ctx, ownerID, id)
	if err != nil {
		return core.RecurringRule{}, err
	}

	reschedule := p.StartDate != nil || p.Frequency != nil
	if p.Type != nil {
		r.Type = *p.Type
	}
	if p.Amount != nil {
		r.Amount = *p.Amount
	}
	if p.CategoryID != nil {
		r.CategoryID = *p.CategoryID
	}
	if p.AccountID != nil {
		r.AccountID = *p.AccountID
	}
	if p.Frequency != nil {
		r.Frequency = *p.Frequency
	}
	if p.StartDate != nil {
		r.StartDate = *p.StartDate
	}
	if p.Enabled != nil {
		r.Enabled = *p.Enabled
	}
	if p.Description != nil {
		r.Description = *p.Description
	}

	if reschedule {
		r.NextExecutionDate = core.Date{}
	}
	if err := r.Validate(); err != nil {
		return core.RecurringRule{}, err
	}
	if err := s.checkReferences(ctx, r); err != nil {
		return core.RecurringRule{}, err
	}
	if reschedule {
		if r.NextExecutionDate, err = s.schedule(ctx, r); err != nil {
			return core.RecurringRule{}, err
		}
	}

	updated, err := s.rules.UpdateRule(ctx, r)
	if err != nil {
		return core.RecurringRule{}, err
	}
	return updated, nil
}

// Delete stops future generation. Entries the rule already produced stay.
func (s *RuleService) Delete(ctx context.Context, ownerID, id int64) error {
	if _, err := s.get(ctx, ownerID, id); err != nil {
		return err
	}
	return s.rules.SoftDeleteRule(ctx, ownerID, id)
}

func (s *RuleService) Get(ctx context.Context, ownerID, id int64) (core.RecurringRule, error) {
	return s.get(ctx, ownerID, id)
}

func (s *RuleService) List(ctx context.Context, ownerID int64) ([]core.RecurringRule, error) {
	return s.rules.ListRules(ctx, ownerID)
}

func (s *RuleService) get(ctx context.Context, ownerID, id int64) (core.RecurringRule, error) {
	r, err := s.rules.GetRule(ctx, id)
	if err != nil {
		return core.RecurringRule{}, err
	}
	if err := core.CheckOwnership(r.OwnerID, ownerID); err != nil {
		return core.RecurringRule{}, err
	}
	return r, nil
}

// schedule returns the first period after the start date that the rule
// has not produced an entry for yet.
func (s *RuleService) schedule(ctx context.Context, r core.RecurringRule) (core.Date, error) {
	next, err := core.Advance(r.StartDate, r.Frequency)
	if err != nil {
		return core.Date{}, err
	}
	last, err := s.rules.LastGeneratedDate(ctx, r.ID)
	if err != nil {
		return core.Date{}, err
	}
	for last != nil && !next.After(*last) {
		if next, err = core.Advance(next, r.Frequency); err != nil {
			return core.Date{}, err
		}
	}
	return next, nil
}

func (s *RuleService) checkReferences(ctx context.Context, r core.RecurringRule) error {
	account, err := s.refs.GetAccount(ctx, r.AccountID)
	if err != nil {
		return err
	}
	if err := core.CheckAccountAccess(account, r.OwnerID); err != nil {
		return err
	}
	category, err := s.refs.GetCategory(ctx, r.CategoryID)
	if err != nil {
		return err
	}
	return core.CheckCategoryAccess(category, r.OwnerID, r.Type)
}
