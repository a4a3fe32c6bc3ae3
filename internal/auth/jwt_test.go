// Pivota | 2026
// jwt_test.go

package auth

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"errors"
	"testing"
	"time"

	"github.com/lestrrat-go/jwx/v3/jwa"
	"github.com/lestrrat-go/jwx/v3/jwk"
	"github.com/lestrrat-go/jwx/v3/jwt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pivota/accounts-api/internal/config"
	"github.com/pivota/accounts-api/internal/core"
)

func testJWTConfig() config.JWTConfig {
	return config.JWTConfig{
		AccessTokenExpire:  15 * time.Minute,
		RefreshTokenExpire: 168 * time.Hour,
		Issuer:             "pivota-accounts",
		Audience:           "pivota-platform",
	}
}

func newTestIssuer(t *testing.T, cfg config.JWTConfig) *TokenIssuer {
	t.Helper()

	ecKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	privateKey, err := jwk.Import(ecKey)
	require.NoError(t, err)

	issuer, err := newTokenIssuer(privateKey, cfg)
	require.NoError(t, err)

	return issuer
}

func TestAccessTokenRoundTrip(t *testing.T) {
	issuer := newTestIssuer(t, testJWTConfig())

	claims := AccessTokenClaims{
		UserID: "user-123",
		Email:  "jane@example.com",
		Name:   "Jane Doe",
		Plan:   "gold",
		Roles:  []string{"user", "employer", "landlord"},
	}

	signed, err := issuer.IssueAccessToken(claims)
	require.NoError(t, err)
	require.NotEmpty(t, signed)

	verified, err := issuer.VerifyAccessToken(context.Background(), signed)
	require.NoError(t, err)

	assert.Equal(t, claims.UserID, verified.UserID)
	assert.Equal(t, claims.Email, verified.Email)
	assert.Equal(t, claims.Name, verified.Name)
	assert.Equal(t, claims.Plan, verified.Plan)
	assert.Equal(t, claims.Roles, verified.Roles)
}

func TestVerifyAccessTokenExpired(t *testing.T) {
	cfg := testJWTConfig()
	cfg.AccessTokenExpire = -time.Minute
	issuer := newTestIssuer(t, cfg)

	signed, err := issuer.IssueAccessToken(AccessTokenClaims{
		UserID: "user-123",
		Email:  "jane@example.com",
		Name:   "Jane Doe",
		Plan:   "free",
		Roles:  []string{"user"},
	})
	require.NoError(t, err)

	_, err = issuer.VerifyAccessToken(context.Background(), signed)
	assert.ErrorIs(t, err, core.ErrTokenExpired)
}

func TestVerifyAccessTokenWrongKey(t *testing.T) {
	signer := newTestIssuer(t, testJWTConfig())
	verifier := newTestIssuer(t, testJWTConfig())

	signed, err := signer.IssueAccessToken(AccessTokenClaims{
		UserID: "user-123",
		Email:  "jane@example.com",
		Name:   "Jane Doe",
		Plan:   "free",
		Roles:  []string{"user"},
	})
	require.NoError(t, err)

	_, err = verifier.VerifyAccessToken(context.Background(), signed)
	assert.ErrorIs(t, err, core.ErrTokenBadSignature)
}

func TestVerifyAccessTokenMalformed(t *testing.T) {
	issuer := newTestIssuer(t, testJWTConfig())

	_, err := issuer.VerifyAccessToken(
		context.Background(),
		"not.a.token",
	)
	assert.ErrorIs(t, err, core.ErrTokenMalformed)
}

func TestClassifyParseError(t *testing.T) {
	// Error texts as jwx v3 actually produces them: a wrong-key token fails
	// with "signature verification failed", while undecodable input fails
	// earlier with a decode error that never carries that phrase.
	tests := []struct {
		name string
		err  error
		want error
	}{
		{
			"expired",
			errors.New(`"exp" not satisfied`),
			core.ErrTokenExpired,
		},
		{
			"wrong key",
			errors.New(
				"jwt.Parse: jwt.VerifyCompact: " +
					"signature verification failed for ES256",
			),
			core.ErrTokenBadSignature,
		},
		{
			"undecodable signature",
			errors.New(
				"jwt.verifyFast: failed to decode signature: " +
					"illegal base64 data at input byte 0",
			),
			core.ErrTokenMalformed,
		},
		{
			"not a jwt at all",
			errors.New("jwt.Parse: failed to parse token"),
			core.ErrTokenMalformed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, classifyParseError(tt.err), tt.want)
		})
	}
}

func TestVerifyAccessTokenRejectsNonAccessType(t *testing.T) {
	issuer := newTestIssuer(t, testJWTConfig())
	now := time.Now()

	token, err := jwt.NewBuilder().
		Issuer(issuer.config.Issuer).
		Audience([]string{issuer.config.Audience}).
		Subject("user-123").
		IssuedAt(now).
		Expiration(now.Add(time.Hour)).
		Claim("email", "jane@example.com").
		Claim("name", "Jane Doe").
		Claim("plan", "free").
		Claim("roles", []string{"user"}).
		Claim("type", "refresh").
		Build()
	require.NoError(t, err)

	signed, err := jwt.Sign(token, jwt.WithKey(jwa.ES256(), issuer.privateKey))
	require.NoError(t, err)

	_, err = issuer.VerifyAccessToken(context.Background(), string(signed))
	assert.ErrorIs(t, err, core.ErrTokenMalformed)
}

func TestMintRefreshToken(t *testing.T) {
	issuer := newTestIssuer(t, testJWTConfig())

	data, err := issuer.MintRefreshToken()
	require.NoError(t, err)

	assert.NotEmpty(t, data.Token)
	assert.Equal(t, core.DigestToken(data.Token), data.Digest)
	assert.WithinDuration(
		t,
		time.Now().Add(168*time.Hour),
		data.ExpiresAt,
		time.Minute,
	)

	other, err := issuer.MintRefreshToken()
	require.NoError(t, err)
	assert.NotEqual(t, data.Token, other.Token)
}
