package core

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a failure so the outer layers can map it to a
// response without string matching.
type ErrorKind string

const (
	KindValidation ErrorKind = "validation"
	KindForbidden  ErrorKind = "forbidden"
	KindNotFound   ErrorKind = "not_found"
	KindConflict   ErrorKind = "conflict"
	KindDuplicate  ErrorKind = "duplicate"
	KindInternal   ErrorKind = "internal"
)

// Error is a classified domain error.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *Error) Error() string {
	switch {
	case e.Message != "" && e.Err != nil:
		return e.Message + ": " + e.Err.Error()
	case e.Message != "":
		return e.Message
	case e.Err != nil:
		return string(e.Kind) + ": " + e.Err.Error()
	default:
		return string(e.Kind)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches a bare kind sentinel (one without a message) by kind, so
// errors.Is(err, ErrValidation) holds for every validation error.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || t.Message != "" || t.Err != nil {
		return false
	}
	return t.Kind == e.Kind
}

// Kind sentinels.
var (
	ErrValidation = &Error{Kind: KindValidation}
	ErrForbidden  = &Error{Kind: KindForbidden}
	ErrNotFound   = &Error{Kind: KindNotFound}
	ErrConflict   = &Error{Kind: KindConflict}
	ErrDuplicate  = &Error{Kind: KindDuplicate}
)

// Validation failures shared by several entities.
var (
	ErrInvalidDay          = &Error{Kind: KindValidation, Message: "invalid day"}
	ErrInvalidMonth        = &Error{Kind: KindValidation, Message: "invalid month"}
	ErrZeroDate            = &Error{Kind: KindValidation, Message: "date cannot be zero"}
	ErrInvalidAmount       = &Error{Kind: KindValidation, Message: "amount must be greater than 0"}
	ErrNegativeAmount      = &Error{Kind: KindValidation, Message: "amount cannot be negative"}
	ErrAmountScale         = &Error{Kind: KindValidation, Message: "amount has more than two decimal places"}
	ErrAmountTooLarge      = &Error{Kind: KindValidation, Message: "amount exceeds 999999999999.99"}
	ErrGeneratedDate       = &Error{Kind: KindValidation, Message: "date of an entry generated by a recurring rule cannot be changed"}
	ErrEmptyType           = &Error{Kind: KindValidation, Message: "type is required"}
	ErrInvalidType         = &Error{Kind: KindValidation, Message: "invalid type"}
	ErrEmptyFrequency      = &Error{Kind: KindValidation, Message: "frequency is required"}
	ErrInvalidFrequency    = &Error{Kind: KindValidation, Message: "invalid frequency"}
	ErrMissingTarget       = &Error{Kind: KindValidation, Message: "transfer requires a target account"}
	ErrSameAccount         = &Error{Kind: KindValidation, Message: "target account must differ from source account"}
	ErrMissingCategory     = &Error{Kind: KindValidation, Message: "category is required"}
	ErrCategoryMismatch    = &Error{Kind: KindValidation, Message: "category type does not match"}
	ErrEmptyName           = &Error{Kind: KindValidation, Message: "name is required"}
	ErrNothingToUpdate     = &Error{Kind: KindValidation, Message: "at least one field must be updated"}
	ErrDescriptionTooLong  = &Error{Kind: KindValidation, Message: "description too long (max 200 characters)"}
	ErrUnexpectedCategory  = &Error{Kind: KindValidation, Message: "transfer cannot have a category"}
	ErrInvalidAccountType  = &Error{Kind: KindValidation, Message: "invalid account type"}
	ErrSystemAccountDelete = &Error{Kind: KindForbidden, Message: "system account cannot be deleted"}
	ErrAccountInUse        = &Error{Kind: KindConflict, Message: "account has transactions and cannot be deleted"}
)

// NotFoundf reports a missing or soft-deleted entity.
func NotFoundf(format string, args ...any) error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

// Forbiddenf reports an ownership violation.
func Forbiddenf(format string, args ...any) error {
	return &Error{Kind: KindForbidden, Message: fmt.Sprintf(format, args...)}
}

// Validationf reports bad client input.
func Validationf(format string, args ...any) error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

// Conflictf reports a write that lost against a concurrent change or an
// existing reference.
func Conflictf(format string, args ...any) error {
	return &Error{Kind: KindConflict, Message: fmt.Sprintf(format, args...)}
}

// KindOf returns the kind of the first classified error in err's chain,
// or KindInternal when there is none.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}
