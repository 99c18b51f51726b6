package core

import "github.com/shopspring/decimal"

// ValidateRuleType accepts the types a recurring rule or a category can carry.
func ValidateRuleType(t TransactionType) error {
	switch t {
	case "":
		return ErrEmptyType
	case Expense, Income:
		return nil
	default:
		return ErrInvalidType
	}
}

// ValidateTransactionType accepts every ledger entry type.
func ValidateTransactionType(t TransactionType) error {
	if t == Transfer {
		return nil
	}
	return ValidateRuleType(t)
}

func ValidateFrequency(f Frequency) error {
	if f == "" {
		return ErrEmptyFrequency
	}
	if _, ok := steppers[f]; !ok {
		return ErrInvalidFrequency
	}
	return nil
}

func ValidateAccountType(t AccountType) error {
	switch t {
	case AccountCash, AccountCard, AccountAlipay, AccountWechat, AccountBank, AccountOther:
		return nil
	default:
		return ErrInvalidAccountType
	}
}

// ValidateScale rejects amounts with more than two fractional digits and
// amounts whose magnitude exceeds MaxAmount.
func ValidateScale(d decimal.Decimal) error {
	if !d.Equal(d.Truncate(MaxScale)) {
		return ErrAmountScale
	}
	if d.Abs().GreaterThan(MaxAmount) {
		return ErrAmountTooLarge
	}
	return nil
}

// ValidatePositiveAmount is used for rules and new transactions.
func ValidatePositiveAmount(d decimal.Decimal) error {
	if !d.IsPositive() {
		return ErrInvalidAmount
	}
	return ValidateScale(d)
}

// ValidateNonNegativeAmount is used for budgets and stored ledger rows.
func ValidateNonNegativeAmount(d decimal.Decimal) error {
	if d.IsNegative() {
		return ErrNegativeAmount
	}
	return ValidateScale(d)
}

// CheckOwnership rejects access to an entity owned by someone else.
func CheckOwnership(entityOwner, caller int64) error {
	if entityOwner != caller {
		return Forbiddenf("access denied")
	}
	return nil
}

// CheckCategoryAccess verifies that caller may book an entry of type want
// against c. Global categories are readable by everyone.
func CheckCategoryAccess(c Category, caller int64, want TransactionType) error {
	if c.Deleted {
		return NotFoundf("category %d not found", c.ID)
	}
	if c.OwnerID != nil {
		if err := CheckOwnership(*c.OwnerID, caller); err != nil {
			return err
		}
	}
	if c.Type != want {
		return ErrCategoryMismatch
	}
	return nil
}

// CheckAccountAccess verifies that caller may book entries on a.
func CheckAccountAccess(a Account, caller int64) error {
	if a.Deleted {
		return NotFoundf("account %d not found", a.ID)
	}
	return CheckOwnership(a.OwnerID, caller)
}
