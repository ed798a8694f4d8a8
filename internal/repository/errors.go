package repository

import (
	"errors"
	"fmt"

	"github.com/ayo6706/mfs-ledger/internal/store"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const (
	uniqueViolation = "23505"
	checkViolation  = "23514"
)

// mapErr translates driver errors into the store sentinels, keeping the
// original error in the chain.
func mapErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s: %w", op, store.ErrNotFound)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case uniqueViolation:
			return fmt.Errorf("%s: %w: %w", op, store.ErrDuplicate, err)
		case checkViolation:
			return fmt.Errorf("%s: %w: %w", op, store.ErrInsufficientFunds, err)
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}

func requireExactlyOne(tag pgconn.CommandTag, op string) error {
	switch rows := tag.RowsAffected(); rows {
	case 1:
		return nil
	case 0:
		return fmt.Errorf("%s: %w", op, store.ErrNotFound)
	default:
		return fmt.Errorf("%s affected %d rows", op, rows)
	}
}
