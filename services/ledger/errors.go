package ledger

import (
	"errors"
	"fmt"

	"smallbiznis-picks/pkg/errutil"
)

var (
	ErrInvalidReference    = errors.New("invalid ledger reference")
	ErrNonPositiveAmount   = errors.New("amount must be greater than zero")
	ErrAmountOverflow      = errors.New("amount overflows the account balance")
	ErrAccountNotFound     = errors.New("account not found")
	ErrInsufficientBalance = errors.New("insufficient available balance")
	ErrCannotRelease       = errors.New("cannot release more than reserved balance")
	ErrIdempotencyMismatch = errors.New("reference already applied with a different amount")
)

func invalidReference(msg string) error {
	return errutil.ValidationFailed(msg, ErrInvalidReference,
		errutil.WithDetails(errutil.Detail{Field: "reference", Message: msg}))
}

func accountNotFound(userID string) error {
	return errutil.NotFound(fmt.Sprintf("account %s not found", userID), ErrAccountNotFound)
}
