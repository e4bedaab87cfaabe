package store

import (
	"context"
	"os"
	"strings"
	"testing"
)

func TestOpen_EmptyDSN(t *testing.T) {
	_, err := Open(context.Background(), "")
	if err == nil || !strings.Contains(err.Error(), "DATABASE_URL") {
		t.Errorf("Expected empty DSN error, got %v", err)
	}
}

func TestOpenAndMigrate(t *testing.T) {
	dsn := os.Getenv("TRUTHGUARD_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TRUTHGUARD_TEST_DATABASE_URL not set")
	}

	ctx := context.Background()
	db, err := Open(ctx, dsn)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer func() { _ = db.Close() }()

	// Running twice proves the schema is idempotent
	for i := 0; i < 2; i++ {
		if err := Migrate(ctx, db); err != nil {
			t.Fatalf("Migrate run %d failed: %v", i+1, err)
		}
	}
}
