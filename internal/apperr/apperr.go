// Package apperr defines the error taxonomy returned by the order engine and
// the ledgers. Callers match kinds with errors.Is against the sentinels.
package apperr

import (
	"errors"
	"fmt"
)

type Kind string

const (
	KindValidation           Kind = "validation"
	KindRuleViolation        Kind = "rule_violation"
	KindPriceUnavailable     Kind = "price_unavailable"
	KindInsufficientFunds    Kind = "insufficient_funds"
	KindInsufficientHoldings Kind = "insufficient_holdings"
	KindInvalidOrderState    Kind = "invalid_order_state"
	KindNotOwner             Kind = "not_owner"
	KindNotFound             Kind = "not_found"
	KindConcurrencyConflict  Kind = "concurrency_conflict"
)

var (
	ErrValidation           = &Error{Kind: KindValidation}
	ErrRuleViolation        = &Error{Kind: KindRuleViolation}
	ErrPriceUnavailable     = &Error{Kind: KindPriceUnavailable}
	ErrInsufficientFunds    = &Error{Kind: KindInsufficientFunds}
	ErrInsufficientHoldings = &Error{Kind: KindInsufficientHoldings}
	ErrInvalidOrderState    = &Error{Kind: KindInvalidOrderState}
	ErrNotOwner             = &Error{Kind: KindNotOwner}
	ErrNotFound             = &Error{Kind: KindNotFound}
	ErrConcurrencyConflict  = &Error{Kind: KindConcurrencyConflict}
)

type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

func Wrap(kind Kind, err error, msg string) *Error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}

func (e *Error) Error() string {
	msg := e.Msg
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same kind, so a sentinel such as
// ErrInsufficientFunds matches every insufficient-funds error.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// KindOf returns the kind of the first *Error in err's chain, or "".
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// Retryable reports whether the caller may resubmit the same request
// unchanged and reasonably expect a different outcome.
func Retryable(err error) bool {
	return KindOf(err) == KindConcurrencyConflict
}
