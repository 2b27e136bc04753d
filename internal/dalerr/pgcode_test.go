package dalerr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
)

func TestPgCode_ExtractsSQLState(t *testing.T) {
	pgErr := &pgconn.PgError{Code: UniqueViolation, Message: "duplicate key"}
	wrapped := fmt.Errorf("inserting stack: %w", pgErr)

	if got := PgCode(wrapped); got != UniqueViolation {
		t.Errorf("PgCode() = %q, want %q", got, UniqueViolation)
	}
}

func TestPgCode_NonPgError(t *testing.T) {
	if got := PgCode(errors.New("boom")); got != "" {
		t.Errorf("PgCode() = %q, want empty string", got)
	}
}

func TestPgCode_Nil(t *testing.T) {
	if got := PgCode(nil); got != "" {
		t.Errorf("PgCode(nil) = %q, want empty string", got)
	}
}
