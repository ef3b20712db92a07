package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned when a row does not exist. It wraps
// sql.ErrNoRows so existing errors.Is checks keep working.
var ErrNotFound = fmt.Errorf("store: not found: %w", sql.ErrNoRows)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// ── Users ──────────────────────────────────────────────────────────

func (s *PostgresStore) CreateUser(ctx context.Context, user User) (User, error) {
	const insert = `
		INSERT INTO users (id, email, display_name, password_hash, org_id)
		VALUES ($1, LOWER($2), $3, $4, $5)
		RETURNING id, email, display_name, password_hash, org_id, created_at, updated_at
	`
	var out User
	err := s.db.QueryRowContext(ctx, insert, user.ID, user.Email, user.DisplayName, user.PasswordHash, user.OrgID).
		Scan(&out.ID, &out.Email, &out.DisplayName, &out.PasswordHash, &out.OrgID, &out.CreatedAt, &out.UpdatedAt)
	if err != nil {
		return User{}, fmt.Errorf("insert user: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (User, error) {
	const query = `
		SELECT id, email, display_name, password_hash, org_id, created_at, updated_at
		FROM users WHERE email = LOWER($1)
	`
	var user User
	err := s.db.QueryRowContext(ctx, query, email).
		Scan(&user.ID, &user.Email, &user.DisplayName, &user.PasswordHash, &user.OrgID, &user.CreatedAt, &user.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrNotFound
	}
	if err != nil {
		return User{}, fmt.Errorf("lookup user by email: %w", err)
	}
	return user, nil
}

func (s *PostgresStore) GetUserByID(ctx context.Context, id string) (User, error) {
	const query = `
		SELECT id, email, display_name, password_hash, org_id, created_at, updated_at
		FROM users WHERE id = $1
	`
	var user User
	err := s.db.QueryRowContext(ctx, query, id).
		Scan(&user.ID, &user.Email, &user.DisplayName, &user.PasswordHash, &user.OrgID, &user.CreatedAt, &user.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrNotFound
	}
	if err != nil {
		return User{}, fmt.Errorf("lookup user by id: %w", err)
	}
	return user, nil
}

// ── Organizations ──────────────────────────────────────────────────

// GetOrganizationDocument returns the raw JSON document for one tenant.
func (s *PostgresStore) GetOrganizationDocument(ctx context.Context, orgID string) ([]byte, error) {
	var document []byte
	err := s.db.QueryRowContext(ctx, `SELECT document FROM organizations WHERE id = $1`, orgID).Scan(&document)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("lookup organization %s: %w", orgID, err)
	}
	return document, nil
}

// SaveOrganizationDocument overwrites the stored document wholesale.
// There is no server-side merge: the client's document is authoritative.
func (s *PostgresStore) SaveOrganizationDocument(ctx context.Context, orgID string, document []byte) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO organizations (id, document, updated_at) VALUES ($1, $2, NOW())
		ON CONFLICT (id) DO UPDATE SET document = EXCLUDED.document, updated_at = NOW()
	`, orgID, document)
	if err != nil {
		return fmt.Errorf("save organization %s: %w", orgID, err)
	}
	return nil
}

// ── Refresh sessions (PostgreSQL fallback when Redis is absent) ────

func (s *PostgresStore) SaveRefreshSession(ctx context.Context, tokenHash string, user User, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO refresh_sessions (token_hash, user_id, expires_at) VALUES ($1, $2, $3)
		ON CONFLICT (token_hash) DO UPDATE SET user_id = EXCLUDED.user_id, expires_at = EXCLUDED.expires_at
	`, tokenHash, user.ID, expiresAt)
	if err != nil {
		return fmt.Errorf("save refresh session: %w", err)
	}
	return nil
}

func (s *PostgresStore) LookupRefreshSession(ctx context.Context, tokenHash string) (User, error) {
	const query = `
		SELECT u.id, u.email, u.display_name, u.password_hash, u.org_id, u.created_at, u.updated_at
		FROM refresh_sessions rs
		JOIN users u ON u.id = rs.user_id
		WHERE rs.token_hash = $1 AND rs.expires_at > NOW()
	`
	var user User
	err := s.db.QueryRowContext(ctx, query, tokenHash).
		Scan(&user.ID, &user.Email, &user.DisplayName, &user.PasswordHash, &user.OrgID, &user.CreatedAt, &user.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, fmt.Errorf("refresh session not found or expired")
	}
	if err != nil {
		return User{}, fmt.Errorf("lookup refresh session: %w", err)
	}
	return user, nil
}

func (s *PostgresStore) RevokeRefreshSession(ctx context.Context, tokenHash string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM refresh_sessions WHERE token_hash = $1`, tokenHash); err != nil {
		return fmt.Errorf("revoke refresh session: %w", err)
	}
	return nil
}
