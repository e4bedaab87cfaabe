package credits

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// PostgresLedger stores balances in the accounts table
type PostgresLedger struct {
	DB      *sql.DB
	initial int
}

// NewPostgresLedger creates a ledger on an open database
func NewPostgresLedger(db *sql.DB, initialBalance int) *PostgresLedger {
	return &PostgresLedger{DB: db, initial: initialBalance}
}

// Deduct is a single conditional UPDATE, so concurrent requests cannot both
// pass the balance check
func (l *PostgresLedger) Deduct(ctx context.Context, accountID string, cost int) (int, error) {
	if err := checkArgs(accountID, cost); err != nil {
		return 0, err
	}
	if err := l.ensure(ctx, accountID); err != nil {
		return 0, err
	}

	const q = `
update accounts
   set credits = credits - $2, updated_at = now()
 where id = $1 and credits >= $2
returning credits`

	var remaining int
	err := l.DB.QueryRowContext(ctx, q, accountID, cost).Scan(&remaining)
	if errors.Is(err, sql.ErrNoRows) {
		bal, err := l.Balance(ctx, accountID)
		if err != nil {
			return 0, err
		}
		return bal, ErrInsufficientCredits
	}
	if err != nil {
		return 0, fmt.Errorf("deduct credits: %w", err)
	}
	return remaining, nil
}

// Add credits amount, creating the account if needed
func (l *PostgresLedger) Add(ctx context.Context, accountID string, amount int) (int, error) {
	if err := checkArgs(accountID, amount); err != nil {
		return 0, err
	}

	const q = `
insert into accounts (id, credits) values ($1, $2::int + $3::int)
on conflict (id) do update
   set credits = accounts.credits + $3, updated_at = now()
returning credits`

	var bal int
	if err := l.DB.QueryRowContext(ctx, q, accountID, l.initial, amount).Scan(&bal); err != nil {
		return 0, fmt.Errorf("add credits: %w", err)
	}
	return bal, nil
}

// Balance returns the current balance, creating the account if needed
func (l *PostgresLedger) Balance(ctx context.Context, accountID string) (int, error) {
	if err := checkArgs(accountID, 0); err != nil {
		return 0, err
	}
	if err := l.ensure(ctx, accountID); err != nil {
		return 0, err
	}

	var bal int
	if err := l.DB.QueryRowContext(ctx, `select credits from accounts where id = $1`, accountID).Scan(&bal); err != nil {
		return 0, fmt.Errorf("read balance: %w", err)
	}
	return bal, nil
}

func (l *PostgresLedger) ensure(ctx context.Context, accountID string) error {
	const q = `insert into accounts (id, credits) values ($1, $2) on conflict (id) do nothing`
	if _, err := l.DB.ExecContext(ctx, q, accountID, l.initial); err != nil {
		return fmt.Errorf("provision account: %w", err)
	}
	return nil
}
