// Package store opens the Postgres database and owns its schema.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // pgx driver
)

// Open connects to Postgres through the pgx stdlib driver and pings it
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	if dsn == "" {
		return nil, fmt.Errorf("database URL is empty: set DATABASE_URL or database.url")
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(time.Hour)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return db, nil
}

// schema is applied in order; every statement is idempotent
var schema = []string{
	`create table if not exists accounts (
		id         text primary key,
		credits    integer not null check (credits >= 0),
		created_at timestamptz not null default now(),
		updated_at timestamptz not null default now()
	)`,
	`create table if not exists verifications (
		id         uuid primary key,
		account_id text not null,
		modality   text not null,
		input      jsonb not null,
		result     jsonb not null,
		created_at timestamptz not null default now()
	)`,
	`create index if not exists verifications_account_created_idx
		on verifications (account_id, created_at desc)`,
}

// Migrate creates the tables the ledger and history store need
func Migrate(ctx context.Context, db *sql.DB) error {
	for i, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate step %d: %w", i+1, err)
		}
	}
	return nil
}
