// Package history persists finished verifications for listing and sharing.
package history

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/ppiankov/truthguard/internal/model"
)

// ErrNotFound is returned when no record has the requested ID
var ErrNotFound = errors.New("verification not found")

// DefaultLimit is how many records a history listing returns
const DefaultLimit = 10

// Store saves and reads verification records
type Store interface {
	// Save assigns ID and CreatedAt when they are empty
	Save(ctx context.Context, rec *model.Record) error
	Get(ctx context.Context, id string) (*model.Record, error)
	// ListByAccount returns the newest records first
	ListByAccount(ctx context.Context, accountID string, limit int) ([]model.Record, error)
}

func prepare(rec *model.Record) error {
	if rec.Input == nil {
		return errors.New("record has no input")
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	return nil
}

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}
	return limit
}

// validID rejects IDs that could never have been issued by Save
func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}
