// Package credential implements the PAK (Pre-Authentication Key) credential
// subsystem described in spec §4.1: issuing, verifying and rotating
// prefixed tokens whose only persisted form is a keyed hash, plus the AEAD
// sealing used for webhook secrets.
package credential

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base32"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/brokkr-io/brokkr/internal/dalerr"
	"github.com/brokkr-io/brokkr/internal/tenant"
)

// TokenPrefix is the human-recognizable prefix on every issued PAK.
const TokenPrefix = "brokkr_"

// shortIDEncoding avoids padding and ambiguous characters in the
// human-visible short id segment of a token.
var shortIDEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// secretEntropyBytes yields a 256-bit secret once base64url-encoded.
const secretEntropyBytes = 32

// Table names a closed set of tables that carry a pak_hash column. Only
// constants below are valid — never attacker- or caller-derived strings —
// so interpolating them into SQL below carries no injection risk.
type Table string

const (
	TableAgents     Table = "agents"
	TableGenerators Table = "generators"
	TableAdmins     Table = "admins"
)

var principalTypeByTable = map[Table]PrincipalType{
	TableAgents:     PrincipalAgent,
	TableGenerators: PrincipalGenerator,
	TableAdmins:     PrincipalAdmin,
}

// Store issues, verifies and rotates PAKs against the relational store.
type Store struct {
	Pool   *pgxpool.Pool
	Schema string
	// Pepper is the server-wide secret mixed into every hash via HMAC-SHA256,
	// strengthening the teacher's unsalted sha256.Sum256 (core/pkg/auth
	// .HashAPIKey) to satisfy the spec's "salted hash" requirement.
	Pepper []byte
}

// HashToken computes the persisted form of a plaintext PAK.
func (s *Store) HashToken(plaintext string) string {
	mac := hmac.New(sha256.New, s.Pepper)
	mac.Write([]byte(plaintext))
	return hex.EncodeToString(mac.Sum(nil))
}

// generateToken mints a fresh plaintext PAK of form brokkr_<shortid>_<secret>.
func generateToken() (plaintext, shortID string, err error) {
	shortIDRaw := make([]byte, 8)
	if _, err = rand.Read(shortIDRaw); err != nil {
		return "", "", fmt.Errorf("generating short id: %w", err)
	}
	shortID = strings.ToLower(shortIDEncoding.EncodeToString(shortIDRaw))

	secretRaw := make([]byte, secretEntropyBytes)
	if _, err = rand.Read(secretRaw); err != nil {
		return "", "", fmt.Errorf("generating secret: %w", err)
	}
	secret := base64.RawURLEncoding.EncodeToString(secretRaw)

	plaintext = fmt.Sprintf("%s%s_%s", TokenPrefix, shortID, secret)
	return plaintext, shortID, nil
}

// Issue mints a fresh PAK for an existing principal row and persists its
// hash. The plaintext is returned exactly once; the caller is responsible
// for emitting the audit event spec §4.1 requires.
func (s *Store) Issue(ctx context.Context, table Table, id uuid.UUID) (string, error) {
	plaintext, _, err := generateToken()
	if err != nil {
		return "", err
	}

	conn, err := tenant.Acquire(ctx, s.Pool, s.Schema)
	if err != nil {
		return "", dalerr.Wrap(dalerr.ConnectionPool, "%v", err)
	}
	defer conn.Release()

	hash := s.HashToken(plaintext)
	tag, err := conn.Exec(ctx,
		fmt.Sprintf("UPDATE %s SET pak_hash = $1, updated_at = now() WHERE id = $2 AND deleted_at IS NULL", table),
		hash, id,
	)
	if err != nil {
		return "", fmt.Errorf("persisting pak hash: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return "", dalerr.Wrap(dalerr.NotFound, "%s %s", table, id)
	}

	return plaintext, nil
}

// Rotate is Issue under another name: a fresh PAK atomically replaces the
// old hash, invalidating the previous token.
func (s *Store) Rotate(ctx context.Context, table Table, id uuid.UUID) (string, error) {
	return s.Issue(ctx, table, id)
}

// Verify resolves a bearer PAK to its Principal by an indexed hash lookup
// against each principal table in turn. It never leaks which principal
// class a failed attempt targeted: every non-match returns the same
// InvalidCredential error regardless of table.
func (s *Store) Verify(ctx context.Context, plaintext string) (*Principal, error) {
	if !strings.HasPrefix(plaintext, TokenPrefix) {
		return nil, dalerr.Wrap(dalerr.InvalidCredential, "malformed token")
	}

	hash := s.HashToken(plaintext)

	conn, err := tenant.Acquire(ctx, s.Pool, s.Schema)
	if err != nil {
		return nil, dalerr.Wrap(dalerr.ConnectionPool, "%v", err)
	}
	defer conn.Release()

	for _, table := range []Table{TableAgents, TableGenerators, TableAdmins} {
		var id uuid.UUID
		var name string
		err := conn.QueryRow(ctx,
			fmt.Sprintf("SELECT id, name FROM %s WHERE pak_hash = $1 AND deleted_at IS NULL", table),
			hash,
		).Scan(&id, &name)
		if err == nil {
			return &Principal{Type: principalTypeByTable[table], ID: id, Name: name}, nil
		}
		if err != pgx.ErrNoRows {
			return nil, fmt.Errorf("looking up principal in %s: %w", table, err)
		}
	}

	return nil, dalerr.Wrap(dalerr.InvalidCredential, "no principal matches this token")
}
