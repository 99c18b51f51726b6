package core

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Scope selects the owners a recurring run covers.
type Scope struct {
	all     bool
	ownerID int64
}

// ScopeAll covers every owner; it is what the scheduler uses.
var ScopeAll = Scope{all: true}

// OwnerScope covers a single owner.
func OwnerScope(ownerID int64) Scope { return Scope{ownerID: ownerID} }

// All reports whether the scope covers every owner.
func (s Scope) All() bool { return s.all }

// OwnerID returns the owner of a single-owner scope and false for ScopeAll.
func (s Scope) OwnerID() (int64, bool) { return s.ownerID, !s.all }

// Key identifies the scope for run collapsing and logs.
func (s Scope) Key() string {
	if s.all {
		return "all"
	}
	return fmt.Sprintf("owner:%d", s.ownerID)
}

func (s Scope) String() string { return s.Key() }

// Leg is one sign-contributing side of the balance formula.
type Leg string

const (
	LegIncome      Leg = "income"
	LegExpense     Leg = "expense"
	LegTransferIn  Leg = "transfer_in"
	LegTransferOut Leg = "transfer_out"
)

// Legs lists every balance leg.
var Legs = []Leg{LegIncome, LegExpense, LegTransferIn, LegTransferOut}

// Sign is +1 for legs that add to a balance and -1 for those that subtract.
func (l Leg) Sign() int64 {
	switch l {
	case LegIncome, LegTransferIn:
		return 1
	default:
		return -1
	}
}

// OutcomeStatus is the result of processing one rule in a run.
type OutcomeStatus string

const (
	OutcomeGenerated OutcomeStatus = "generated"
	OutcomeSkipped   OutcomeStatus = "skipped"
	OutcomeDuplicate OutcomeStatus = "duplicate"
	OutcomeFailed    OutcomeStatus = "failed"
)

// RuleOutcome records what happened to one selected rule.
type RuleOutcome struct {
	RuleID        int64
	OwnerID       int64
	Status        OutcomeStatus
	Reason        string
	TransactionID int64
	FiredFor      Date
	NextExecution Date
}

// RunReport is the result of one RunDueRules call.
type RunReport struct {
	RunID     string
	Scope     Scope
	Today     Date
	Generated []Transaction
	Outcomes  []RuleOutcome
}

// Count returns how many outcomes have the given status.
func (r RunReport) Count(status OutcomeStatus) int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Status == status {
			n++
		}
	}
	return n
}

// Total sums the amounts of the generated transactions.
func (r RunReport) Total() decimal.Decimal {
	sum := decimal.Zero
	for _, t := range r.Generated {
		sum = sum.Add(t.Amount)
	}
	return sum
}
