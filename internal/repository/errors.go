package repository

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

var (
	ErrSlotTaken = errors.New("slot already reserved")
	ErrNotFound  = errors.New("record not found")
)

// isContention reports postgres errors raised when concurrent writers collide
// on the same rows: serialization failure, deadlock, lock timeout and
// exclusion constraint violation.
func isContention(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	switch pgErr.Code {
	case "40001", "40P01", "55P03", "23P01":
		return true
	default:
		return false
	}
}
