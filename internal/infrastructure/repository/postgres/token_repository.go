package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/dmpolyakov/ai-drive-agent/internal/core/domain"
)

// TokenRepository persists per-user OAuth grants. Access and refresh
// tokens are sealed by the cipher before insert; the database never sees
// them in the clear.
type TokenRepository struct {
	db     *sql.DB
	cipher *TokenCipher
}

func NewTokenRepository(db *sql.DB, cipher *TokenCipher) *TokenRepository {
	return &TokenRepository{db: db, cipher: cipher}
}

func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

func (r *TokenRepository) EnsureSchema(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across api/worker startups.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026082901)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS oauth_tokens (
	user_id TEXT PRIMARY KEY,
	access_token TEXT NOT NULL,
	refresh_token TEXT NOT NULL,
	expiry TIMESTAMPTZ NOT NULL,
	scope TEXT,
	updated_at TIMESTAMPTZ NOT NULL
);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

func (r *TokenRepository) Save(ctx context.Context, token domain.GoogleToken) error {
	access, err := r.cipher.Seal(token.AccessToken)
	if err != nil {
		return fmt.Errorf("seal access token: %w", err)
	}
	refresh, err := r.cipher.Seal(token.RefreshToken)
	if err != nil {
		return fmt.Errorf("seal refresh token: %w", err)
	}

	updatedAt := token.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}

	_, err = r.db.ExecContext(ctx, `
INSERT INTO oauth_tokens (user_id, access_token, refresh_token, expiry, scope, updated_at)
VALUES ($1,$2,$3,$4,$5,$6)
ON CONFLICT (user_id) DO UPDATE
SET access_token = EXCLUDED.access_token,
    refresh_token = EXCLUDED.refresh_token,
    expiry = EXCLUDED.expiry,
    scope = EXCLUDED.scope,
    updated_at = EXCLUDED.updated_at
`, token.UserID, access, refresh, token.Expiry, token.Scope, updatedAt)
	if err != nil {
		return fmt.Errorf("upsert oauth token: %w", err)
	}
	return nil
}

func (r *TokenRepository) Get(ctx context.Context, userID string) (*domain.GoogleToken, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT user_id, access_token, refresh_token, expiry, scope, updated_at
FROM oauth_tokens
WHERE user_id = $1
`, userID)

	var token domain.GoogleToken
	var access, refresh string
	err := row.Scan(&token.UserID, &access, &refresh, &token.Expiry, &token.Scope, &token.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrNotFound, "get oauth token", fmt.Errorf("no grant for user %s", userID))
		}
		return nil, fmt.Errorf("get oauth token: %w", err)
	}

	if token.AccessToken, err = r.cipher.Open(access); err != nil {
		return nil, fmt.Errorf("open access token: %w", err)
	}
	if token.RefreshToken, err = r.cipher.Open(refresh); err != nil {
		return nil, fmt.Errorf("open refresh token: %w", err)
	}
	return &token, nil
}

func (r *TokenRepository) Delete(ctx context.Context, userID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM oauth_tokens WHERE user_id = $1`, userID)
	if err != nil {
		return fmt.Errorf("delete oauth token: %w", err)
	}
	return nil
}
