package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ppiankov/truthguard/internal/model"
)

// PostgresStore keeps records in the verifications table
type PostgresStore struct{ DB *sql.DB }

// NewPostgresStore creates a store on an open database
func NewPostgresStore(db *sql.DB) *PostgresStore { return &PostgresStore{DB: db} }

// Save inserts a record
func (s *PostgresStore) Save(ctx context.Context, rec *model.Record) error {
	if err := prepare(rec); err != nil {
		return err
	}

	input, err := json.Marshal(rec.Input)
	if err != nil {
		return fmt.Errorf("marshal input: %w", err)
	}
	result, err := json.Marshal(rec.Result)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}

	const q = `
insert into verifications (id, account_id, modality, input, result, created_at)
values ($1, $2, $3, $4, $5, $6)`
	if _, err := s.DB.ExecContext(ctx, q, rec.ID, rec.AccountID, string(rec.Input.Modality()), input, result, rec.CreatedAt); err != nil {
		return fmt.Errorf("save verification: %w", err)
	}
	return nil
}

// Get returns one record by ID
func (s *PostgresStore) Get(ctx context.Context, id string) (*model.Record, error) {
	if !validID(id) {
		return nil, ErrNotFound
	}

	const q = `
select id::text, account_id, modality, input, result, created_at
from verifications
where id = $1`
	rec, err := scanRecord(s.DB.QueryRowContext(ctx, q, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return rec, err
}

// ListByAccount returns the account's newest records first
func (s *PostgresStore) ListByAccount(ctx context.Context, accountID string, limit int) ([]model.Record, error) {
	const q = `
select id::text, account_id, modality, input, result, created_at
from verifications
where account_id = $1
order by created_at desc
limit $2`
	rows, err := s.DB.QueryContext(ctx, q, accountID, normalizeLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("list verifications: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := []model.Record{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list verifications: %w", err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*model.Record, error) {
	var (
		id, accountID, modality string
		inputJS, resultJS       []byte
		createdAt               time.Time
	)
	if err := row.Scan(&id, &accountID, &modality, &inputJS, &resultJS, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan verification: %w", err)
	}

	in, err := model.DecodeInput(model.Modality(modality), inputJS)
	if err != nil {
		return nil, fmt.Errorf("decode input of %s: %w", id, err)
	}
	var result model.VerificationResult
	if err := json.Unmarshal(resultJS, &result); err != nil {
		return nil, fmt.Errorf("decode result of %s: %w", id, err)
	}

	return &model.Record{
		ID:        id,
		AccountID: accountID,
		Input:     in,
		Result:    result,
		CreatedAt: createdAt,
	}, nil
}
