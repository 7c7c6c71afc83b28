package db

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
)

// Postgres unique_violation error code.
const pgUniqueViolationCode = "23505"

// IsUniqueViolation reports whether err is a unique constraint violation on
// the named constraint. Postgres errors carry the constraint name, so the
// check is exact there. sqlite (the in-memory test databases) only names the
// column set in its message, so any unique violation matches.
func IsUniqueViolation(err error, constraintName string) bool {
	if err == nil {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if pgErr.Code != pgUniqueViolationCode {
			return false
		}
		return constraintName == "" || pgErr.ConstraintName == constraintName
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
