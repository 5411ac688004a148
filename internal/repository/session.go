package repository

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Jungeey/ArtVibe-sub000/internal/domain/auth"
)

const findSessionSQL = `SELECT token_hash, user_id, role FROM sessions WHERE token_hash = $1`

// ErrSessionNotFound is returned when no session matches the token hash.
var ErrSessionNotFound = errors.New("session not found")

var _ auth.Repository = (*SessionRepository)(nil)

// SessionRepository implements auth.Repository backed by PostgreSQL.
type SessionRepository struct {
	pool *pgxpool.Pool
}

// NewSessionRepository returns a SessionRepository that uses the given pool.
func NewSessionRepository(pool *pgxpool.Pool) *SessionRepository {
	return &SessionRepository{pool: pool}
}

// FindByTokenHash returns the session stored for the given HMAC hash.
func (r *SessionRepository) FindByTokenHash(ctx context.Context, hash string) (*auth.Session, error) {
	var s auth.Session
	err := r.pool.QueryRow(ctx, findSessionSQL, hash).Scan(&s.TokenHash, &s.UserID, &s.Role)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("finding session: %w", err)
	}
	return &s, nil
}
