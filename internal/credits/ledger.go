// Package credits meters verifications against per-account balances.
package credits

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInsufficientCredits is returned when a deduction would go below zero
	ErrInsufficientCredits = errors.New("insufficient credits")

	// ErrUnknownAccount is returned for an empty account ID
	ErrUnknownAccount = errors.New("unknown account")

	// ErrInvalidAmount is returned for negative costs or top-ups
	ErrInvalidAmount = errors.New("invalid credit amount")
)

// Ledger holds credit balances. Accounts are created on first use with the
// ledger's initial balance.
type Ledger interface {
	// Deduct atomically subtracts cost if the balance covers it and returns
	// the remaining balance. The balance never goes below zero. On
	// ErrInsufficientCredits the unchanged balance is returned.
	Deduct(ctx context.Context, accountID string, cost int) (int, error)

	// Add credits a purchase or refund and returns the new balance
	Add(ctx context.Context, accountID string, amount int) (int, error)

	// Balance returns the current balance
	Balance(ctx context.Context, accountID string) (int, error)
}

func checkArgs(accountID string, amount int) error {
	if strings.TrimSpace(accountID) == "" {
		return ErrUnknownAccount
	}
	if amount < 0 {
		return fmt.Errorf("%w: %d", ErrInvalidAmount, amount)
	}
	return nil
}
