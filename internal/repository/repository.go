package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"classpulse/internal/database"
)

var (
	// ErrNotFound is returned when no row matches the key
	ErrNotFound = errors.New("not found")

	// ErrConflict is returned when a guarded update matched the row but its
	// guard (status, active flag, revision) no longer held
	ErrConflict = errors.New("row changed concurrently")

	// ErrDuplicate is returned when an insert violates a unique constraint
	ErrDuplicate = errors.New("duplicate key")
)

// Transactor runs fn in a transaction. *database.DB implements it.
type Transactor interface {
	WithTx(ctx context.Context, fn func(tx database.DBTX) error) error
}

func now() time.Time {
	return time.Now().UTC()
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

func notFound(err error, what string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	}
	return err
}

func insertError(db database.DBTX, err error, what string) error {
	if db.GetDialect().IsUniqueViolation(err) {
		return fmt.Errorf("%s: %w", what, ErrDuplicate)
	}
	return fmt.Errorf("failed to insert %s: %w", what, err)
}

func rowsChanged(res sql.Result, err error) (bool, error) {
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
