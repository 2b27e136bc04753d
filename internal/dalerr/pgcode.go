package dalerr

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

// PgCode returns the Postgres SQLSTATE code for err, or "" if err does not
// wrap a *pgconn.PgError. Entity stores use this to translate uniqueness
// violations (23505) into dalerr.Conflict without hand-parsing driver
// error strings.
func PgCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

const UniqueViolation = "23505"
