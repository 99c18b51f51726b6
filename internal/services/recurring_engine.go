package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"moneyflow/internal/core"
	"moneyflow/internal/metrics"
)

// DefaultRecurringNote is the note of a generated entry whose rule has no
// description.
const DefaultRecurringNote = "Recurring bill"

// RecurringEngine materializes ledger entries from due recurring rules.
//
// Each call fires every selected rule at most once, so a rule that is
// several periods behind catches up one period per call. Concurrent calls
// for the same scope in one process share a single run; across processes
// the store's (rule, date) uniqueness and the rule version guard make the
// losing run a no-op.
type RecurringEngine struct {
	rules  DueRuleStore
	refs   ReferenceReader
	events EventPublisher
	now    func() time.Time
	loc    *time.Location
	group  singleflight.Group
}

type EngineOption func(*RecurringEngine)

// WithClock sets the time source used to decide what is due.
func WithClock(now func() time.Time) EngineOption {
	return func(e *RecurringEngine) { e.now = now }
}

// WithLocation sets the zone in which "today" is evaluated.
func WithLocation(loc *time.Location) EngineOption {
	return func(e *RecurringEngine) {
		if loc != nil {
			e.loc = loc
		}
	}
}

// WithEventPublisher announces generated entries after each commit.
func WithEventPublisher(p EventPublisher) EngineOption {
	return func(e *RecurringEngine) { e.events = p }
}

func NewRecurringEngine(rules DueRuleStore, refs ReferenceReader, opts ...EngineOption) *RecurringEngine {
	e := &RecurringEngine{
		rules: rules,
		refs:  refs,
		now:   time.Now,
		loc:   time.UTC,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Today is the calendar date the engine considers current.
func (e *RecurringEngine) Today() core.Date {
	return core.DateOf(e.now().In(e.loc))
}

// RunDueRules fires every enabled, live rule in scope whose next execution
// date is on or before today. A rule that cannot be fired is recorded in
// the report and the run moves on; the returned error is reserved for
// failures that stop the whole run.
//
// Callers that join a run already in flight share its report. The shared
// run is not tied to any one caller's context: a caller whose ctx ends
// stops waiting and gets ctx's error, while the run completes for the rest.
func (e *RecurringEngine) RunDueRules(ctx context.Context, scope core.Scope) (core.RunReport, error) {
	if err := ctx.Err(); err != nil {
		return core.RunReport{}, fmt.Errorf("recurring run interrupted: %w", err)
	}
	runCtx := context.WithoutCancel(ctx)
	ch := e.group.DoChan(scope.Key(), func() (any, error) {
		return e.run(runCtx, scope)
	})
	select {
	case <-ctx.Done():
		return core.RunReport{}, fmt.Errorf("recurring run interrupted: %w", ctx.Err())
	case res := <-ch:
		if res.Shared {
			metrics.RecurringCollapsed.Inc()
		}
		report, _ := res.Val.(core.RunReport)
		return report, res.Err
	}
}

func (e *RecurringEngine) run(ctx context.Context, scope core.Scope) (core.RunReport, error) {
	start := time.Now()
	report := core.RunReport{
		RunID: uuid.NewString(),
		Scope: scope,
		Today: e.Today(),
	}
	logger := slog.With("run_id", report.RunID, "scope", scope.Key())

	scopeLabel := "owner"
	if scope.All() {
		scopeLabel = "all"
	}
	defer func() { metrics.RecurringRunDuration.Observe(time.Since(start).Seconds()) }()

	rules, err := e.rules.FindDueRules(ctx, scope, report.Today)
	if err != nil {
		metrics.RecurringRuns.WithLabelValues(scopeLabel, "error").Inc()
		return report, fmt.Errorf("find due rules: %w", err)
	}

	logger.InfoContext(ctx, "Processing recurring rules",
		"due", len(rules),
		"today", report.Today.String())

	memo := newLookupMemo(e.refs, 2*len(rules))
	for _, rule := range rules {
		outcome, created := e.fire(ctx, logger, memo, rule)
		report.Outcomes = append(report.Outcomes, outcome)
		metrics.RecurringOutcomes.WithLabelValues(string(outcome.Status)).Inc()
		if outcome.Status == core.OutcomeGenerated {
			report.Generated = append(report.Generated, created)
			e.publish(ctx, logger, created)
		}
	}

	metrics.RecurringRuns.WithLabelValues(scopeLabel, "ok").Inc()
	stats := memo.stats()
	logger.InfoContext(ctx, "Recurring rule processing complete",
		"generated", report.Count(core.OutcomeGenerated),
		"skipped", report.Count(core.OutcomeSkipped),
		"duplicate", report.Count(core.OutcomeDuplicate),
		"failed", report.Count(core.OutcomeFailed),
		"lookup_hits", stats.Hits,
		"lookup_misses", stats.Misses,
		"duration_ms", time.Since(start).Milliseconds())

	return report, nil
}

// fire processes one rule and never returns an error: every failure is an
// outcome.
func (e *RecurringEngine) fire(ctx context.Context, logger *slog.Logger, memo *lookupMemo, rule core.RecurringRule) (core.RuleOutcome, core.Transaction) {
	outcome := core.RuleOutcome{
		RuleID:   rule.ID,
		OwnerID:  rule.OwnerID,
		FiredFor: rule.NextExecutionDate,
	}
	log := logger.With("rule_id", rule.ID, "owner_id", rule.OwnerID)

	if err := e.checkReferences(ctx, memo, rule); err != nil {
		outcome.Reason = err.Error()
		if core.KindOf(err) == core.KindInternal {
			outcome.Status = core.OutcomeFailed
			log.ErrorContext(ctx, "Failed to resolve rule references", "error", err)
		} else {
			outcome.Status = core.OutcomeSkipped
			log.WarnContext(ctx, "Skipping recurring rule with invalid references", "reason", err)
		}
		return outcome, core.Transaction{}
	}

	next, err := core.Advance(rule.NextExecutionDate, rule.Frequency)
	if err != nil {
		outcome.Status = core.OutcomeSkipped
		outcome.Reason = err.Error()
		log.WarnContext(ctx, "Skipping recurring rule with invalid schedule",
			"frequency", rule.Frequency, "reason", err)
		return outcome, core.Transaction{}
	}

	created, err := e.rules.FireRule(ctx, rule, generatedTransaction(rule), next)
	switch {
	case errors.Is(err, core.ErrDuplicate):
		outcome.Status = core.OutcomeDuplicate
		outcome.Reason = err.Error()
		log.InfoContext(ctx, "Recurring rule period already materialized",
			"date", rule.NextExecutionDate.String(), "reason", err)
		return outcome, core.Transaction{}
	case err != nil:
		outcome.Status = core.OutcomeFailed
		outcome.Reason = err.Error()
		log.ErrorContext(ctx, "Failed to fire recurring rule", "error", err)
		return outcome, core.Transaction{}
	}

	outcome.Status = core.OutcomeGenerated
	outcome.TransactionID = created.ID
	outcome.NextExecution = next
	log.InfoContext(ctx, "Created transaction from recurring rule",
		"transaction_id", created.ID,
		"date", created.Date.String(),
		"amount", core.FormatAmount(created.Amount),
		"frequency", rule.Frequency,
		"next_execution_date", next.String())
	return outcome, created
}

func (e *RecurringEngine) checkReferences(ctx context.Context, memo *lookupMemo, rule core.RecurringRule) error {
	account, err := memo.account(ctx, rule.OwnerID, rule.AccountID)
	if err != nil {
		return err
	}
	if err := core.CheckAccountAccess(account, rule.OwnerID); err != nil {
		return fmt.Errorf("account %d: %w", rule.AccountID, err)
	}
	category, err := memo.category(ctx, rule.OwnerID, rule.CategoryID)
	if err != nil {
		return err
	}
	if err := core.CheckCategoryAccess(category, rule.OwnerID, rule.Type); err != nil {
		return fmt.Errorf("category %d: %w", rule.CategoryID, err)
	}
	return nil
}

func generatedTransaction(rule core.RecurringRule) core.Transaction {
	note := rule.Description
	if note == "" {
		note = DefaultRecurringNote
	}
	categoryID, ruleID := rule.CategoryID, rule.ID
	return core.Transaction{
		OwnerID:    rule.OwnerID,
		Type:       rule.Type,
		Amount:     rule.Amount,
		Date:       rule.NextExecutionDate,
		CategoryID: &categoryID,
		AccountID:  rule.AccountID,
		Note:       note,
		RuleID:     &ruleID,
	}
}

func (e *RecurringEngine) publish(ctx context.Context, logger *slog.Logger, t core.Transaction) {
	if e.events == nil {
		return
	}
	if err := e.events.PublishTransactionCreated(ctx, t); err != nil {
		logger.ErrorContext(ctx, "Failed to publish ledger event",
			"transaction_id", t.ID, "error", err)
	}
}
