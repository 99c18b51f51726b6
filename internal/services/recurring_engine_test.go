package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"moneyflow/internal/core"
	"moneyflow/internal/storage"
)

func createRule(t *testing.T, svc *RuleService, f ledgerFixture, freq core.Frequency, start core.Date, amount string) core.RecurringRule {
	t.Helper()
	r, err := svc.Create(context.Background(), f.owner, core.RecurringRule{
		Type:       core.Expense,
		Amount:     dec(amount),
		CategoryID: f.expense.ID,
		AccountID:  f.accountA.ID,
		Frequency:  freq,
		StartDate:  start,
		Enabled:    true,
	})
	if err != nil {
		t.Fatalf("create rule: %v", err)
	}
	return r
}

func TestEngineMonthlyScenario(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	f := seedOwner(t, repo, 1)
	rules := NewRuleService(repo, repo)

	rule := createRule(t, rules, f, core.Monthly, core.NewDate(2024, 1, 15), "9.99")
	if !rule.NextExecutionDate.Equal(core.NewDate(2024, 2, 15)) {
		t.Fatalf("next execution after create = %s, want 2024-02-15", rule.NextExecutionDate)
	}

	pub := &recordingPublisher{}
	engine := NewRecurringEngine(repo, repo,
		WithClock(fixedClock(core.NewDate(2024, 2, 15))),
		WithEventPublisher(pub))

	report, err := engine.RunDueRules(ctx, core.ScopeAll)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(report.Generated) != 1 {
		t.Fatalf("generated %d transactions, want 1", len(report.Generated))
	}
	got := report.Generated[0]
	if !got.Date.Equal(core.NewDate(2024, 2, 15)) || !got.Amount.Equal(dec("9.99")) {
		t.Fatalf("unexpected transaction %+v", got)
	}
	if got.Note != DefaultRecurringNote {
		t.Fatalf("note = %q, want %q", got.Note, DefaultRecurringNote)
	}
	if got.RuleID == nil || *got.RuleID != rule.ID {
		t.Fatalf("transaction not linked to its rule")
	}
	if report.RunID == "" || !report.Today.Equal(core.NewDate(2024, 2, 15)) {
		t.Fatalf("report metadata missing: %+v", report)
	}

	stored, err := rules.Get(ctx, 1, rule.ID)
	if err != nil {
		t.Fatalf("get rule: %v", err)
	}
	if !stored.NextExecutionDate.Equal(core.NewDate(2024, 3, 15)) {
		t.Fatalf("next execution = %s, want 2024-03-15", stored.NextExecutionDate)
	}
	if len(pub.created) != 1 || pub.created[0].ID != got.ID {
		t.Fatalf("expected one created event, got %+v", pub.created)
	}
}

func TestEngineFiresOncePerCall(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	f := seedOwner(t, repo, 1)
	rules := NewRuleService(repo, repo)

	// Next execution 2024-02-15; three periods are due by 2024-04-20.
	rule := createRule(t, rules, f, core.Monthly, core.NewDate(2024, 1, 15), "10.00")
	engine := NewRecurringEngine(repo, repo, WithClock(fixedClock(core.NewDate(2024, 4, 20))))

	wantDates := []core.Date{core.NewDate(2024, 2, 15), core.NewDate(2024, 3, 15), core.NewDate(2024, 4, 15)}
	for i, want := range wantDates {
		report, err := engine.RunDueRules(ctx, core.OwnerScope(1))
		if err != nil {
			t.Fatalf("run %d: %v", i, err)
		}
		if len(report.Generated) != 1 || !report.Generated[0].Date.Equal(want) {
			t.Fatalf("run %d generated %+v, want one entry for %s", i, report.Generated, want)
		}
		stored, _ := rules.Get(ctx, 1, rule.ID)
		next, _ := core.Advance(want, core.Monthly)
		if !stored.NextExecutionDate.Equal(next) {
			t.Fatalf("run %d: next = %s, want %s", i, stored.NextExecutionDate, next)
		}
	}

	report, err := engine.RunDueRules(ctx, core.OwnerScope(1))
	if err != nil {
		t.Fatalf("final run: %v", err)
	}
	if len(report.Generated) != 0 || len(report.Outcomes) != 0 {
		t.Fatalf("caught-up rule fired again: %+v", report)
	}
}

func TestEngineImmediateRerunIsNoop(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	f := seedOwner(t, repo, 1)
	rules := NewRuleService(repo, repo)
	createRule(t, rules, f, core.Daily, core.NewDate(2024, 6, 1), "1.00")
	createRule(t, rules, f, core.Weekly, core.NewDate(2024, 5, 26), "2.00")

	engine := NewRecurringEngine(repo, repo, WithClock(fixedClock(core.NewDate(2024, 6, 2))))
	first, err := engine.RunDueRules(ctx, core.ScopeAll)
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	if len(first.Generated) != 2 {
		t.Fatalf("first run generated %d, want 2", len(first.Generated))
	}
	second, err := engine.RunDueRules(ctx, core.ScopeAll)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if len(second.Generated) != 0 {
		t.Fatalf("second run generated %d, want 0", len(second.Generated))
	}
}

func TestEngineSkipsInvalidRulesAndContinues(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	f := seedOwner(t, repo, 1)
	rules := NewRuleService(repo, repo)

	broken := createRule(t, rules, f, core.Monthly, core.NewDate(2024, 1, 15), "5.00")
	healthy := createRule(t, rules, f, core.Monthly, core.NewDate(2024, 1, 20), "6.00")

	// Delete the category behind the first rule after it was created.
	if err := repo.SoftDeleteCategory(ctx, 1, f.expense.ID); err != nil {
		t.Fatalf("delete category: %v", err)
	}
	other, err := repo.CreateCategory(ctx, core.Category{OwnerID: ptr[int64](1), Name: "Other", Type: core.Expense})
	if err != nil {
		t.Fatalf("create category: %v", err)
	}
	if _, err := repo.DB().ExecContext(ctx, `UPDATE recurring_rules SET category_id = ? WHERE id = ?`, other.ID, healthy.ID); err != nil {
		t.Fatalf("repoint rule: %v", err)
	}

	engine := NewRecurringEngine(repo, repo, WithClock(fixedClock(core.NewDate(2024, 2, 28))))
	report, err := engine.RunDueRules(ctx, core.ScopeAll)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(report.Outcomes) != 2 {
		t.Fatalf("expected two outcomes, got %+v", report.Outcomes)
	}
	if o := report.Outcomes[0]; o.RuleID != broken.ID || o.Status != core.OutcomeSkipped || o.Reason == "" {
		t.Fatalf("broken rule outcome = %+v", o)
	}
	if o := report.Outcomes[1]; o.RuleID != healthy.ID || o.Status != core.OutcomeGenerated {
		t.Fatalf("healthy rule outcome = %+v", o)
	}

	stored, _ := rules.Get(ctx, 1, broken.ID)
	if !stored.NextExecutionDate.Equal(broken.NextExecutionDate) {
		t.Fatalf("skipped rule must not advance, next = %s", stored.NextExecutionDate)
	}
}

func TestEngineSkipsRuleWithCategoryTypeMismatch(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	f := seedOwner(t, repo, 1)
	rule := createRule(t, NewRuleService(repo, repo), f, core.Daily, core.NewDate(2024, 1, 1), "3.00")
	if _, err := repo.DB().ExecContext(ctx, `UPDATE recurring_rules SET category_id = ? WHERE id = ?`, f.income.ID, rule.ID); err != nil {
		t.Fatalf("repoint rule: %v", err)
	}

	engine := NewRecurringEngine(repo, repo, WithClock(fixedClock(core.NewDate(2024, 1, 2))))
	report, err := engine.RunDueRules(ctx, core.ScopeAll)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if report.Count(core.OutcomeSkipped) != 1 || len(report.Generated) != 0 {
		t.Fatalf("expected a skipped rule, got %+v", report.Outcomes)
	}
}

func TestEngineOwnerScope(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	rules := NewRuleService(repo, repo)
	f1 := seedOwner(t, repo, 1)
	f2 := seedOwner(t, repo, 2)
	createRule(t, rules, f1, core.Daily, core.NewDate(2024, 1, 1), "1.00")
	createRule(t, rules, f2, core.Daily, core.NewDate(2024, 1, 1), "1.00")

	engine := NewRecurringEngine(repo, repo, WithClock(fixedClock(core.NewDate(2024, 1, 2))))
	report, err := engine.RunDueRules(ctx, core.OwnerScope(2))
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(report.Generated) != 1 || report.Generated[0].OwnerID != 2 {
		t.Fatalf("owner scope leaked: %+v", report.Generated)
	}

	report, err = engine.RunDueRules(ctx, core.ScopeAll)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(report.Generated) != 1 || report.Generated[0].OwnerID != 1 {
		t.Fatalf("global run should only find owner 1's rule: %+v", report.Generated)
	}
}

func TestEngineConcurrentRunsDoNotDoublePost(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	f := seedOwner(t, repo, 1)
	rules := NewRuleService(repo, repo)
	for i := 0; i < 5; i++ {
		createRule(t, rules, f, core.Monthly, core.NewDate(2024, 1, 1+i), "4.00")
	}

	clock := WithClock(fixedClock(core.NewDate(2024, 2, 10)))
	// Two engines model two processes; each also runs concurrently with
	// itself.
	engines := []*RecurringEngine{NewRecurringEngine(repo, repo, clock), NewRecurringEngine(repo, repo, clock)}

	scopes := []core.Scope{core.ScopeAll, core.OwnerScope(1)}

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(e *RecurringEngine, scope core.Scope) {
			defer wg.Done()
			if _, err := e.RunDueRules(ctx, scope); err != nil {
				errs <- err
			}
		}(engines[i%2], scopes[(i/2)%2])
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("run failed: %v", err)
	}

	txs, err := repo.ListTransactions(ctx, storage.TransactionFilter{OwnerID: 1})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(txs) != 5 {
		t.Fatalf("expected exactly one entry per rule, got %d", len(txs))
	}
}

// flakyRuleStore fails FireRule for one rule id.
type flakyRuleStore struct {
	DueRuleStore
	failID int64
}

func (s flakyRuleStore) FireRule(ctx context.Context, rule core.RecurringRule, t core.Transaction, next core.Date) (core.Transaction, error) {
	if rule.ID == s.failID {
		return core.Transaction{}, errors.New("disk I/O error")
	}
	return s.DueRuleStore.FireRule(ctx, rule, t, next)
}

func TestEngineRecordsPersistenceFailures(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	f := seedOwner(t, repo, 1)
	rules := NewRuleService(repo, repo)
	failing := createRule(t, rules, f, core.Daily, core.NewDate(2024, 1, 1), "1.00")
	createRule(t, rules, f, core.Daily, core.NewDate(2024, 1, 1), "2.00")

	pub := &recordingPublisher{err: errors.New("broker down")}
	engine := NewRecurringEngine(flakyRuleStore{DueRuleStore: repo, failID: failing.ID}, repo,
		WithClock(fixedClock(core.NewDate(2024, 1, 2))),
		WithEventPublisher(pub))

	report, err := engine.RunDueRules(ctx, core.ScopeAll)
	if err != nil {
		t.Fatalf("a per-rule failure must not fail the run: %v", err)
	}
	if report.Count(core.OutcomeFailed) != 1 || report.Count(core.OutcomeGenerated) != 1 {
		t.Fatalf("unexpected outcomes %+v", report.Outcomes)
	}
	if len(pub.created) != 1 {
		t.Fatalf("publisher should have been called once, got %d", len(pub.created))
	}

	stored, _ := rules.Get(ctx, 1, failing.ID)
	if !stored.NextExecutionDate.Equal(failing.NextExecutionDate) {
		t.Fatalf("failed rule advanced to %s", stored.NextExecutionDate)
	}
}

func TestEngineUsesConfiguredLocation(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	f := seedOwner(t, repo, 1)
	createRule(t, NewRuleService(repo, repo), f, core.Daily, core.NewDate(2024, 3, 31), "1.00")

	// 20:00 UTC on 2024-03-31 is already 2024-04-01 in UTC+8.
	instant := core.NewDate(2024, 3, 31).Add(20 * time.Hour)
	clock := WithClock(func() time.Time { return instant })

	utc := NewRecurringEngine(repo, repo, clock)
	if report, _ := utc.RunDueRules(ctx, core.ScopeAll); len(report.Generated) != 0 {
		t.Fatalf("rule due 2024-04-01 fired on 2024-03-31 UTC")
	}
	east := NewRecurringEngine(repo, repo, clock, WithLocation(time.FixedZone("UTC+8", 8*3600)))
	if report, _ := east.RunDueRules(ctx, core.ScopeAll); len(report.Generated) != 1 {
		t.Fatalf("rule should fire on 2024-04-01 in UTC+8")
	}
}

func TestEngineStopsOnCancelledContext(t *testing.T) {
	repo := newTestRepo(t)
	f := seedOwner(t, repo, 1)
	createRule(t, NewRuleService(repo, repo), f, core.Daily, core.NewDate(2024, 1, 1), "1.00")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	engine := NewRecurringEngine(repo, repo, WithClock(fixedClock(core.NewDate(2024, 1, 2))))
	if _, err := engine.RunDueRules(ctx, core.ScopeAll); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestEngineKeepsRunningAfterGeneratedEntryEdit(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	f := seedOwner(t, repo, 1)
	rules := NewRuleService(repo, repo)
	txs := NewTransactionService(repo, repo, nil)
	rule := createRule(t, rules, f, core.Monthly, core.NewDate(2024, 1, 15), "9.99")

	runOn := func(d core.Date) core.RunReport {
		t.Helper()
		report, err := NewRecurringEngine(repo, repo, WithClock(fixedClock(d))).RunDueRules(ctx, core.ScopeAll)
		if err != nil {
			t.Fatalf("run on %s: %v", d, err)
		}
		return report
	}

	first := runOn(core.NewDate(2024, 2, 15))
	if len(first.Generated) != 1 {
		t.Fatalf("generated %d, want 1", len(first.Generated))
	}
	entry := first.Generated[0]

	// Moving the entry onto the rule's next period is refused.
	_, err := txs.Update(ctx, 1, entry.ID, TransactionPatch{Date: ptr(core.NewDate(2024, 3, 15))})
	if !errors.Is(err, core.ErrGeneratedDate) {
		t.Fatalf("date edit error = %v, want ErrGeneratedDate", err)
	}
	edited, err := txs.Update(ctx, 1, entry.ID, TransactionPatch{Date: ptr(entry.Date), Note: ptr("Streaming")})
	if err != nil {
		t.Fatalf("edit keeping the date: %v", err)
	}
	if edited.Note != "Streaming" || !edited.Date.Equal(entry.Date) {
		t.Fatalf("unexpected edit result %+v", edited)
	}

	for _, tc := range []struct {
		today, want core.Date
	}{
		{core.NewDate(2024, 3, 15), core.NewDate(2024, 3, 15)},
		{core.NewDate(2024, 4, 20), core.NewDate(2024, 4, 15)},
		{core.NewDate(2024, 6, 20), core.NewDate(2024, 5, 15)},
	} {
		report := runOn(tc.today)
		if len(report.Generated) != 1 || !report.Generated[0].Date.Equal(tc.want) {
			t.Fatalf("run on %s: outcomes %+v, want one entry for %s", tc.today, report.Outcomes, tc.want)
		}
	}

	list, err := repo.ListTransactions(ctx, storage.TransactionFilter{OwnerID: 1, RuleID: &rule.ID})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 4 {
		t.Fatalf("rule has %d entries, want 4", len(list))
	}
	stored, _ := rules.Get(ctx, 1, rule.ID)
	if !stored.NextExecutionDate.Equal(core.NewDate(2024, 6, 15)) {
		t.Fatalf("next execution = %s, want 2024-06-15", stored.NextExecutionDate)
	}
}

func TestEngineMovesPastHeldPeriod(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	f := seedOwner(t, repo, 1)
	rules := NewRuleService(repo, repo)
	rule := createRule(t, rules, f, core.Monthly, core.NewDate(2024, 1, 15), "9.99")

	// An entry of the rule already occupies the 2024-02-15 slot.
	held := generatedTransaction(rule)
	if _, err := repo.InsertTransaction(ctx, held); err != nil {
		t.Fatalf("insert: %v", err)
	}

	engine := NewRecurringEngine(repo, repo, WithClock(fixedClock(core.NewDate(2024, 3, 20))))
	report, err := engine.RunDueRules(ctx, core.ScopeAll)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if report.Count(core.OutcomeDuplicate) != 1 || len(report.Generated) != 0 {
		t.Fatalf("unexpected outcomes %+v", report.Outcomes)
	}

	report, err = engine.RunDueRules(ctx, core.ScopeAll)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if len(report.Generated) != 1 || !report.Generated[0].Date.Equal(core.NewDate(2024, 3, 15)) {
		t.Fatalf("rule did not move past the held period: %+v", report.Outcomes)
	}
}

// blockingRuleStore holds the first FindDueRules call until released and
// records whether its context was still live.
type blockingRuleStore struct {
	DueRuleStore
	once    sync.Once
	entered chan struct{}
	release chan struct{}
	ctxErr  error
}

func (s *blockingRuleStore) FindDueRules(ctx context.Context, scope core.Scope, today core.Date) ([]core.RecurringRule, error) {
	first := false
	s.once.Do(func() { first = true })
	if first {
		close(s.entered)
		<-s.release
		s.ctxErr = ctx.Err()
	}
	return s.DueRuleStore.FindDueRules(ctx, scope, today)
}

func TestEngineSharedRunOutlivesCancelledCaller(t *testing.T) {
	repo := newTestRepo(t)
	f := seedOwner(t, repo, 1)
	createRule(t, NewRuleService(repo, repo), f, core.Daily, core.NewDate(2024, 1, 1), "1.00")

	store := &blockingRuleStore{DueRuleStore: repo, entered: make(chan struct{}), release: make(chan struct{})}
	engine := NewRecurringEngine(store, repo, WithClock(fixedClock(core.NewDate(2024, 1, 2))))

	ctx, cancel := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := engine.RunDueRules(ctx, core.ScopeAll)
		firstErr <- err
	}()
	<-store.entered

	cancel()
	if err := <-firstErr; !errors.Is(err, context.Canceled) {
		t.Fatalf("cancelled caller error = %v, want context.Canceled", err)
	}

	joined := make(chan error, 1)
	go func() {
		_, err := engine.RunDueRules(context.Background(), core.ScopeAll)
		joined <- err
	}()
	time.Sleep(20 * time.Millisecond)
	close(store.release)

	if err := <-joined; err != nil {
		t.Fatalf("joined caller error = %v", err)
	}
	if store.ctxErr != nil {
		t.Fatalf("shared run saw a cancelled context: %v", store.ctxErr)
	}
	list, err := repo.ListTransactions(context.Background(), storage.TransactionFilter{OwnerID: 1})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("expected the shared run to generate 1 entry, got %d", len(list))
	}
}

// countingReader counts account reads made through it.
type countingReader struct {
	ReferenceReader
	mu       sync.Mutex
	accounts int
}

func (r *countingReader) GetAccount(ctx context.Context, id int64) (core.Account, error) {
	r.mu.Lock()
	r.accounts++
	r.mu.Unlock()
	return r.ReferenceReader.GetAccount(ctx, id)
}

func TestEngineReadsMissingAccountOncePerRun(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	f := seedOwner(t, repo, 1)
	rules := NewRuleService(repo, repo)
	for i := 0; i < 3; i++ {
		createRule(t, rules, f, core.Daily, core.NewDate(2024, 1, 1), "1.00")
	}
	if err := repo.SoftDeleteAccount(ctx, 1, f.accountA.ID); err != nil {
		t.Fatalf("delete account: %v", err)
	}

	refs := &countingReader{ReferenceReader: repo}
	engine := NewRecurringEngine(repo, refs, WithClock(fixedClock(core.NewDate(2024, 1, 2))))
	report, err := engine.RunDueRules(ctx, core.ScopeAll)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if report.Count(core.OutcomeSkipped) != 3 {
		t.Fatalf("unexpected outcomes %+v", report.Outcomes)
	}
	if refs.accounts != 1 {
		t.Fatalf("missing account read %d times, want 1", refs.accounts)
	}
}
