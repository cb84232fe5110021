package repository

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var (
	// ErrNotFound is returned when a row does not exist
	ErrNotFound = errors.New("not found")
	// ErrStateChanged is returned when a conditional update lost its precondition
	ErrStateChanged = errors.New("state changed")
	// ErrDuplicate is returned on unique constraint violations
	ErrDuplicate = errors.New("duplicate")
	// ErrAlreadyLinked is returned when a user already has a partner
	ErrAlreadyLinked = errors.New("already linked")
)

const uniqueViolation = "23505"

// wrap converts driver errors into repository sentinels
func wrap(err error, what string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return fmt.Errorf("%s: %w", what, ErrDuplicate)
	}
	return fmt.Errorf("failed to %s: %w", what, err)
}
