package service

import (
	"errors"
	"fmt"
)

// Kind classifies ledger failures. Only KindStoreUnavailable is retryable.
type Kind string

const (
	KindInvalidAmount       Kind = "InvalidAmount"
	KindInsufficientBalance Kind = "InsufficientBalance"
	KindAlreadyEntitled     Kind = "AlreadyEntitled"
	KindStoreUnavailable    Kind = "StoreUnavailable"
)

// Sentinels for errors.Is; every *Error matches the sentinel of its kind.
var (
	ErrInvalidAmount       = &Error{Kind: KindInvalidAmount, Message: "amount must be a positive integer"}
	ErrInsufficientBalance = &Error{Kind: KindInsufficientBalance, Message: "insufficient units"}
	ErrAlreadyEntitled     = &Error{Kind: KindAlreadyEntitled, Message: "account is already entitled by subscription"}
	ErrStoreUnavailable    = &Error{Kind: KindStoreUnavailable, Message: "ledger store unavailable, try again"}
)

// Error is returned by every Ledger and Gate operation that fails.
type Error struct {
	Kind    Kind
	Message string
	// Have and Needed are set for KindInsufficientBalance.
	Have   int64
	Needed int64
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// Shortfall is how many more units the caller must earn.
func (e *Error) Shortfall() int64 {
	if e.Needed <= e.Have {
		return 0
	}
	return e.Needed - e.Have
}

func invalidAmount(format string, args ...any) *Error {
	return &Error{Kind: KindInvalidAmount, Message: fmt.Sprintf(format, args...)}
}

func insufficientBalance(have, needed int64) *Error {
	return &Error{
		Kind:    KindInsufficientBalance,
		Message: fmt.Sprintf("need %d more units", needed-have),
		Have:    have,
		Needed:  needed,
	}
}

func alreadyEntitled(accountID string) *Error {
	return &Error{Kind: KindAlreadyEntitled, Message: fmt.Sprintf("account %s has an active subscription", accountID)}
}

func storeUnavailable(op string, err error) *Error {
	return &Error{Kind: KindStoreUnavailable, Message: op, Err: err}
}

// KindOf returns the Kind of err, or "" if err is not a ledger error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsRetryable reports whether repeating the whole operation may succeed.
func IsRetryable(err error) bool {
	return KindOf(err) == KindStoreUnavailable
}
