package repository

import (
	"context"
	_ "embed"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed schema.sql
var schema string

// Migrate applies the embedded schema. Every statement is idempotent.
func Migrate(ctx context.Context, db *pgxpool.Pool) error {
	// no arguments, so pgx sends the whole script over the simple protocol
	if _, err := db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}
