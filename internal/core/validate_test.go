package core

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

func TestValidateTypes(t *testing.T) {
	cases := []struct {
		typ      TransactionType
		ruleOK   bool
		ledgerOK bool
	}{
		{Expense, true, true},
		{Income, true, true},
		{Transfer, false, true},
		{"", false, false},
		{"refund", false, false},
	}
	for _, tc := range cases {
		if err := ValidateRuleType(tc.typ); (err == nil) != tc.ruleOK {
			t.Fatalf("ValidateRuleType(%q) = %v", tc.typ, err)
		}
		if err := ValidateTransactionType(tc.typ); (err == nil) != tc.ledgerOK {
			t.Fatalf("ValidateTransactionType(%q) = %v", tc.typ, err)
		}
	}
}

func TestValidateFrequency(t *testing.T) {
	for _, f := range []Frequency{Daily, Weekly, Monthly, Yearly} {
		if err := ValidateFrequency(f); err != nil {
			t.Fatalf("%s: %v", f, err)
		}
	}
	if err := ValidateFrequency("hourly"); !errors.Is(err, ErrInvalidFrequency) {
		t.Fatalf("expected ErrInvalidFrequency, got %v", err)
	}
	if err := ValidateFrequency(""); !errors.Is(err, ErrEmptyFrequency) {
		t.Fatalf("expected ErrEmptyFrequency, got %v", err)
	}
}

func TestValidateAmounts(t *testing.T) {
	d := decimal.RequireFromString
	cases := []struct {
		in          string
		positive    bool
		nonNegative bool
	}{
		{"0.01", true, true},
		{"100", true, true},
		{"1.10", true, true},
		{"0", false, true},
		{"-0.01", false, false},
		{"1.001", false, false},
		{"999999999999.99", true, true},
		{"1000000000000", false, false},
		{"100000000000000000000", false, false},
	}
	for _, tc := range cases {
		if err := ValidatePositiveAmount(d(tc.in)); (err == nil) != tc.positive {
			t.Fatalf("ValidatePositiveAmount(%s) = %v", tc.in, err)
		}
		if err := ValidateNonNegativeAmount(d(tc.in)); (err == nil) != tc.nonNegative {
			t.Fatalf("ValidateNonNegativeAmount(%s) = %v", tc.in, err)
		}
	}
}

func TestValidateScaleBoundsMagnitude(t *testing.T) {
	for _, in := range []string{"1000000000000", "-1000000000000", "100000000000000000000", "9223372036854775.81"} {
		if err := ValidateScale(decimal.RequireFromString(in)); !errors.Is(err, ErrAmountTooLarge) {
			t.Errorf("ValidateScale(%s) = %v, want ErrAmountTooLarge", in, err)
		}
	}
	if err := ValidateScale(MaxAmount.Neg()); err != nil {
		t.Errorf("ValidateScale(-MaxAmount) = %v", err)
	}
	if got := FromCents(ToCents(MaxAmount)); !got.Equal(MaxAmount) {
		t.Errorf("MaxAmount does not survive cents conversion: %s", got)
	}
}

func TestCheckOwnership(t *testing.T) {
	if err := CheckOwnership(1, 1); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}
	if err := CheckOwnership(1, 2); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
}

func TestCheckCategoryAccess(t *testing.T) {
	own := Category{ID: 1, OwnerID: ptr[int64](7), Type: Expense}
	global := Category{ID: 2, Type: Income}

	cases := []struct {
		name   string
		cat    Category
		caller int64
		want   TransactionType
		err    error
	}{
		{"own", own, 7, Expense, nil},
		{"global", global, 9, Income, nil},
		{"other owner", own, 8, Expense, ErrForbidden},
		{"type mismatch", own, 7, Income, ErrCategoryMismatch},
		{"deleted", Category{ID: 3, Type: Expense, Deleted: true}, 7, Expense, ErrNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := CheckCategoryAccess(tc.cat, tc.caller, tc.want)
			if tc.err == nil {
				if err != nil {
					t.Fatalf("expected ok, got %v", err)
				}
				return
			}
			if !errors.Is(err, tc.err) {
				t.Fatalf("expected %v, got %v", tc.err, err)
			}
		})
	}
}

func TestErrorKinds(t *testing.T) {
	wrapped := errors.Join(errors.New("ctx"), ErrSameAccount)
	if KindOf(wrapped) != KindValidation {
		t.Fatalf("expected validation kind, got %s", KindOf(wrapped))
	}
	if !errors.Is(ErrSystemAccountDelete, ErrForbidden) {
		t.Fatalf("system account delete should be forbidden")
	}
	if errors.Is(ErrAccountInUse, ErrValidation) {
		t.Fatalf("account in use is a conflict, not a validation error")
	}
	if errors.Is(ErrInvalidDay, ErrInvalidMonth) {
		t.Fatalf("distinct sentinels must not match each other")
	}
	if KindOf(errors.New("boom")) != KindInternal {
		t.Fatalf("unclassified errors are internal")
	}
}
