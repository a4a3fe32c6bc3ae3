// Pivota | 2026
// repository.go

package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/pivota/accounts-api/internal/core"
)

// TokenRepository is the refresh-token side of the credential store.
type TokenRepository interface {
	Create(ctx context.Context, token *RefreshToken) error
	FindByDigest(ctx context.Context, digest string) (*RefreshToken, error)
	DeleteByID(ctx context.Context, id string) error
	DeleteByDigest(ctx context.Context, digest string) error
	DeleteExpired(ctx context.Context) (int64, error)
}

type tokenRepository struct {
	db core.DBTX
}

func NewTokenRepository(db core.DBTX) TokenRepository {
	return &tokenRepository{db: db}
}

func (r *tokenRepository) Create(
	ctx context.Context,
	token *RefreshToken,
) error {
	query := `
		INSERT INTO refresh_tokens (
			id, user_id, token_digest, device_label, ip_address, expires_at
		) VALUES (
			$1, $2, $3, $4, $5, $6
		)
		RETURNING created_at`

	ctx, cancel := core.StoreContext(ctx)
	defer cancel()

	err := r.db.GetContext(ctx, &token.CreatedAt, query,
		token.ID,
		token.UserID,
		token.TokenDigest,
		token.DeviceLabel,
		token.IPAddress,
		token.ExpiresAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("create refresh token: %w", core.ErrDuplicateKey)
		}
		return core.MapStoreError("create refresh token", err)
	}

	return nil
}

func (r *tokenRepository) FindByDigest(
	ctx context.Context,
	digest string,
) (*RefreshToken, error) {
	query := `
		SELECT id, user_id, token_digest, device_label, ip_address,
		       created_at, expires_at
		FROM refresh_tokens
		WHERE token_digest = $1`

	ctx, cancel := core.StoreContext(ctx)
	defer cancel()

	var token RefreshToken
	err := r.db.GetContext(ctx, &token, query, digest)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("find refresh token: %w", core.ErrNotFound)
	}
	if err != nil {
		return nil, core.MapStoreError("find refresh token", err)
	}

	return &token, nil
}

// DeleteByID removes exactly one token row and reports core.ErrNotFound when
// the row was already gone. Rotation relies on that: concurrent refreshes
// race on this delete and only the winner proceeds.
func (r *tokenRepository) DeleteByID(ctx context.Context, id string) error {
	query := `DELETE FROM refresh_tokens WHERE id = $1`

	ctx, cancel := core.StoreContext(ctx)
	defer cancel()

	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return core.MapStoreError("delete refresh token", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return core.MapStoreError("delete refresh token", err)
	}

	if rows == 0 {
		return fmt.Errorf("delete refresh token: %w", core.ErrNotFound)
	}

	return nil
}

// DeleteByDigest is the idempotent delete behind logout; a missing row is
// not an error.
func (r *tokenRepository) DeleteByDigest(
	ctx context.Context,
	digest string,
) error {
	query := `DELETE FROM refresh_tokens WHERE token_digest = $1`

	ctx, cancel := core.StoreContext(ctx)
	defer cancel()

	if _, err := r.db.ExecContext(ctx, query, digest); err != nil {
		return core.MapStoreError("delete refresh token", err)
	}

	return nil
}

func (r *tokenRepository) DeleteExpired(ctx context.Context) (int64, error) {
	query := `DELETE FROM refresh_tokens WHERE expires_at < $1`

	ctx, cancel := core.StoreContext(ctx)
	defer cancel()

	result, err := r.db.ExecContext(ctx, query, time.Now())
	if err != nil {
		return 0, core.MapStoreError("delete expired tokens", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, core.MapStoreError("delete expired tokens", err)
	}

	return rows, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}
