package store

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/blake2b"

	"github.com/dukerupert/classdesk/internal/model"
)

type IdentityStore struct {
	db *sql.DB
}

func NewIdentityStore(db *sql.DB) *IdentityStore {
	return &IdentityStore{db: db}
}

const identityCols = `subject, token_hash, created_at, last_seen_at`

func scanIdentity(scanner interface{ Scan(...any) error }) (*model.Identity, error) {
	var id model.Identity
	if err := scanner.Scan(&id.Subject, &id.TokenHash, &id.CreatedAt, &id.LastSeenAt); err != nil {
		return nil, err
	}
	return &id, nil
}

// HashToken returns the hex BLAKE2b-256 digest stored in place of the token.
func HashToken(token string) string {
	sum := blake2b.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// Create generates a new subject and a crypto-random token. The returned
// token is the only copy; it is not recoverable from the database.
func (s *IdentityStore) Create(ctx context.Context) (*model.Identity, string, error) {
	tokenBytes := make([]byte, 32)
	if _, err := rand.Read(tokenBytes); err != nil {
		return nil, "", fmt.Errorf("generate token: %w", err)
	}
	token := hex.EncodeToString(tokenBytes)

	now := time.Now().UTC()
	id := &model.Identity{
		Subject:    uuid.NewString(),
		TokenHash:  HashToken(token),
		CreatedAt:  now,
		LastSeenAt: now,
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO identities (`+identityCols+`) VALUES (?, ?, ?, ?)`,
		id.Subject, id.TokenHash, id.CreatedAt, id.LastSeenAt,
	)
	if err != nil {
		return nil, "", fmt.Errorf("insert identity: %w", err)
	}
	return id, token, nil
}

// GetByToken returns the identity for token, or nil if none matches.
func (s *IdentityStore) GetByToken(ctx context.Context, token string) (*model.Identity, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+identityCols+` FROM identities WHERE token_hash = ?`, HashToken(token))
	id, err := scanIdentity(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get identity: %w", err)
	}
	return id, nil
}

func (s *IdentityStore) Touch(ctx context.Context, subject string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE identities SET last_seen_at = ? WHERE subject = ?`, time.Now().UTC(), subject)
	if err != nil {
		return fmt.Errorf("touch identity: %w", err)
	}
	return nil
}

// DeleteStale removes identities not seen since before and owning no events
// or notes. Returns the number deleted.
func (s *IdentityStore) DeleteStale(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM identities
		 WHERE last_seen_at < ?
		   AND NOT EXISTS (SELECT 1 FROM calendar_events e WHERE e.owner_id = identities.subject)
		   AND NOT EXISTS (SELECT 1 FROM notes n WHERE n.owner_id = identities.subject)`,
		before.UTC(),
	)
	if err != nil {
		return 0, fmt.Errorf("delete stale identities: %w", err)
	}
	count, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return count, nil
}
