// Pivota | 2026
// guard.go

package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/pivota/accounts-api/internal/core"
	"github.com/pivota/accounts-api/internal/middleware"
)

// Guard authorizes bearer tokens on protected calls. Beyond signature and
// expiry it re-resolves the subject so tokens for deleted accounts stop
// working immediately; embedded role/plan claims stay authoritative for the
// token's TTL window.
type Guard struct {
	issuer   *TokenIssuer
	accounts AccountProvider
}

func NewGuard(issuer *TokenIssuer, accounts AccountProvider) *Guard {
	return &Guard{issuer: issuer, accounts: accounts}
}

func (g *Guard) Authorize(
	ctx context.Context,
	token string,
) (*middleware.AuthContext, error) {
	claims, err := g.issuer.VerifyAccessToken(ctx, token)
	if err != nil {
		return nil, err
	}

	account, err := g.accounts.GetByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return nil, fmt.Errorf("authorize: %w", ErrUserNotFound)
		}
		return nil, fmt.Errorf("authorize: %w", err)
	}

	return &middleware.AuthContext{
		UserID: account.ID,
		Email:  account.Email,
		Plan:   claims.Plan,
		Roles:  claims.Roles,
	}, nil
}
