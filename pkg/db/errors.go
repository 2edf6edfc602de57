package db

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
)

const pgUniqueViolation = "23505"

// IsUniqueViolation reports whether the error is a unique constraint
// violation on one of the given names. Postgres reports the constraint name
// ("duplicate key value violates unique constraint \"idx_...\"") while sqlite
// reports the column path ("UNIQUE constraint failed: orders.column"), so
// callers pass both spellings. With no names, any unique violation matches.
func IsUniqueViolation(err error, names ...string) bool {
	if err == nil {
		return false
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if pgErr.Code != pgUniqueViolation {
			return false
		}
		if len(names) == 0 {
			return true
		}
		for _, name := range names {
			if pgErr.ConstraintName == name || strings.Contains(pgErr.Message, name) {
				return true
			}
		}
		return false
	}

	msg := err.Error()
	if !strings.Contains(msg, "duplicate key value") && !strings.Contains(msg, "UNIQUE constraint failed") {
		return false
	}
	if len(names) == 0 {
		return true
	}
	for _, name := range names {
		if strings.Contains(msg, name) {
			return true
		}
	}
	return false
}
