package core

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	Monthly Frequency = "monthly"
	Yearly  Frequency = "yearly"
	Weekly  Frequency = "weekly"
	Daily   Frequency = "daily"
)

const (
	Expense  TransactionType = "expense"
	Income   TransactionType = "income"
	Transfer TransactionType = "transfer"
)

const (
	AccountCash   AccountType = "cash"
	AccountCard   AccountType = "card"
	AccountAlipay AccountType = "alipay"
	AccountWechat AccountType = "wechat"
	AccountBank   AccountType = "bank"
	AccountOther  AccountType = "other"
)

// DateLayout is the wire and storage format of a calendar date.
const DateLayout = "2006-01-02"

type (
	Frequency       string
	TransactionType string
	AccountType     string

	// Date is a calendar date; the time part is always midnight UTC.
	Date struct {
		time.Time
	}

	// Transaction is a ledger entry. Amount is never negative; the type
	// decides the sign it contributes to an account balance.
	Transaction struct {
		ID              int64
		OwnerID         int64
		Type            TransactionType
		Amount          decimal.Decimal
		Currency        string
		OriginalAmount  *decimal.Decimal
		Date            Date
		CategoryID      *int64
		AccountID       int64
		TargetAccountID *int64
		Note            string
		RuleID          *int64
		Deleted         bool
		CreatedAt       time.Time
		UpdatedAt       time.Time
	}

	// Account stores only its initial balance; the current balance is
	// always derived from the ledger.
	Account struct {
		ID             int64
		OwnerID        int64
		Name           string
		Type           AccountType
		Icon           string
		InitialBalance decimal.Decimal
		SortOrder      int
		System         bool
		Deleted        bool
		CreatedAt      time.Time
	}

	// Category is owned by a user, or global when OwnerID is nil.
	Category struct {
		ID        int64
		OwnerID   *int64
		ParentID  *int64
		Name      string
		Type      TransactionType
		Icon      string
		SortOrder int
		Deleted   bool
	}

	// RecurringRule materializes one ledger entry per period.
	RecurringRule struct {
		ID                int64
		OwnerID           int64
		Type              TransactionType
		Amount            decimal.Decimal
		CategoryID        int64
		AccountID         int64
		Frequency         Frequency
		StartDate         Date
		NextExecutionDate Date
		Enabled           bool
		Description       string
		Version           int64
		Deleted           bool
	}
)

func (d Date) Validate() error {
	if d.IsZero() {
		return ErrZeroDate
	}
	_, month, day := d.Date()
	if day < 1 || day > 31 {
		return ErrInvalidDay
	}
	if month < 1 || month > 12 {
		return ErrInvalidMonth
	}
	return nil
}

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// DateOf returns the calendar date of t as seen in t's own location.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return NewDate(y, int(m), d)
}

// ParseDate parses a date string in YYYY-MM-DD format.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return Date{}, Validationf("invalid date %q: expected YYYY-MM-DD", s)
	}
	return Date{Time: t}, nil
}

func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(DateLayout)
}

// Before reports whether d is strictly before other.
func (d Date) Before(other Date) bool { return d.Time.Before(other.Time) }

// After reports whether d is strictly after other.
func (d Date) After(other Date) bool { return d.Time.After(other.Time) }

// Equal reports whether d and other are the same calendar date.
func (d Date) Equal(other Date) bool { return d.Time.Equal(other.Time) }

func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte("null"), nil
	}
	return []byte(`"` + d.String() + `"`), nil
}

func (d *Date) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		*d = Date{}
		return nil
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// Validate checks the stored shape of a ledger entry. Reference checks
// (account and category existence, ownership) are done by the services.
func (t Transaction) Validate() error {
	if err := ValidateTransactionType(t.Type); err != nil {
		return err
	}
	if err := ValidateNonNegativeAmount(t.Amount); err != nil {
		return err
	}
	if t.OriginalAmount != nil {
		if err := ValidateNonNegativeAmount(*t.OriginalAmount); err != nil {
			return fmt.Errorf("original amount: %w", err)
		}
	}
	if err := t.Date.Validate(); err != nil {
		return err
	}
	if t.Type == Transfer {
		if t.TargetAccountID == nil {
			return ErrMissingTarget
		}
		if *t.TargetAccountID == t.AccountID {
			return ErrSameAccount
		}
		if t.CategoryID != nil {
			return ErrUnexpectedCategory
		}
		return nil
	}
	if t.CategoryID == nil {
		return ErrMissingCategory
	}
	if t.TargetAccountID != nil {
		return Validationf("%s transaction cannot have a target account", t.Type)
	}
	return nil
}

// IsTransfer reports whether the entry moves money between two accounts.
func (t Transaction) IsTransfer() bool { return t.Type == Transfer }

func (a Account) Validate() error {
	if strings.TrimSpace(a.Name) == "" {
		return ErrEmptyName
	}
	if err := ValidateAccountType(a.Type); err != nil {
		return err
	}
	return ValidateScale(a.InitialBalance)
}

// Global reports whether the category is shared by every owner.
func (c Category) Global() bool { return c.OwnerID == nil }

func (c Category) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return ErrEmptyName
	}
	return ValidateRuleType(c.Type)
}

func (r RecurringRule) Validate() error {
	if err := ValidateRuleType(r.Type); err != nil {
		return err
	}
	if err := ValidateFrequency(r.Frequency); err != nil {
		return err
	}
	if err := ValidatePositiveAmount(r.Amount); err != nil {
		return err
	}
	if err := r.StartDate.Validate(); err != nil {
		return Validationf("invalid start date: %v", err)
	}
	if len(r.Description) > 200 {
		return ErrDescriptionTooLong
	}
	if !r.NextExecutionDate.IsZero() && r.NextExecutionDate.Before(r.StartDate) {
		return Validationf("next execution date %s is before start date %s", r.NextExecutionDate, r.StartDate)
	}
	return nil
}
