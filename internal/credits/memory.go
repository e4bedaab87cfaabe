package credits

import (
	"context"
	"sync"
)

// MemoryLedger keeps balances in process memory
type MemoryLedger struct {
	mu       sync.Mutex
	balances map[string]int
	initial  int
}

// NewMemoryLedger creates an in-memory ledger
func NewMemoryLedger(initialBalance int) *MemoryLedger {
	return &MemoryLedger{
		balances: make(map[string]int),
		initial:  initialBalance,
	}
}

// Deduct subtracts cost under the ledger lock
func (l *MemoryLedger) Deduct(_ context.Context, accountID string, cost int) (int, error) {
	if err := checkArgs(accountID, cost); err != nil {
		return 0, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	bal := l.balanceLocked(accountID)
	if bal < cost {
		return bal, ErrInsufficientCredits
	}
	l.balances[accountID] = bal - cost
	return bal - cost, nil
}

// Add credits amount to the account
func (l *MemoryLedger) Add(_ context.Context, accountID string, amount int) (int, error) {
	if err := checkArgs(accountID, amount); err != nil {
		return 0, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	bal := l.balanceLocked(accountID) + amount
	l.balances[accountID] = bal
	return bal, nil
}

// Balance returns the current balance
func (l *MemoryLedger) Balance(_ context.Context, accountID string) (int, error) {
	if err := checkArgs(accountID, 0); err != nil {
		return 0, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balanceLocked(accountID), nil
}

func (l *MemoryLedger) balanceLocked(accountID string) int {
	bal, ok := l.balances[accountID]
	if !ok {
		bal = l.initial
		l.balances[accountID] = bal
	}
	return bal
}
