// Pivota | 2026
// jwt.go

package auth

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lestrrat-go/jwx/v3/jwa"
	"github.com/lestrrat-go/jwx/v3/jwk"
	"github.com/lestrrat-go/jwx/v3/jwt"

	"github.com/pivota/accounts-api/internal/config"
	"github.com/pivota/accounts-api/internal/core"
)

// TokenIssuer signs short-lived access tokens and mints opaque refresh
// tokens. Access tokens are ES256 JWTs; refresh tokens are random strings
// the store tracks by digest.
type TokenIssuer struct {
	privateKey jwk.Key
	publicKey  jwk.Key
	publicJWKS jwk.Set
	config     config.JWTConfig
}

func NewTokenIssuer(cfg config.JWTConfig) (*TokenIssuer, error) {
	privateKeyPEM, err := os.ReadFile(cfg.PrivateKeyPath)
	if err != nil {
		return nil, fmt.Errorf("read private key: %w", err)
	}

	privateKey, err := jwk.ParseKey(privateKeyPEM, jwk.WithPEM(true))
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}

	return newTokenIssuer(privateKey, cfg)
}

func newTokenIssuer(
	privateKey jwk.Key,
	cfg config.JWTConfig,
) (*TokenIssuer, error) {
	if setErr := privateKey.Set(jwk.AlgorithmKey, jwa.ES256()); setErr != nil {
		return nil, fmt.Errorf("set algorithm: %w", setErr)
	}

	keyID := uuid.New().String()[:8]
	if setErr := privateKey.Set(jwk.KeyIDKey, keyID); setErr != nil {
		return nil, fmt.Errorf("set key id: %w", setErr)
	}

	publicKey, err := privateKey.PublicKey()
	if err != nil {
		return nil, fmt.Errorf("derive public key: %w", err)
	}

	if setErr := publicKey.Set(jwk.KeyUsageKey, "sig"); setErr != nil {
		return nil, fmt.Errorf("set key usage: %w", setErr)
	}

	publicJWKS := jwk.NewSet()
	if addErr := publicJWKS.AddKey(publicKey); addErr != nil {
		return nil, fmt.Errorf("add key to set: %w", addErr)
	}

	return &TokenIssuer{
		privateKey: privateKey,
		publicKey:  publicKey,
		publicJWKS: publicJWKS,
		config:     cfg,
	}, nil
}

func GenerateKeyPair(privateKeyPath, publicKeyPath string) error {
	privateKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return fmt.Errorf("generate key: %w", err)
	}

	jwkPrivate, err := jwk.Import(privateKey)
	if err != nil {
		return fmt.Errorf("import private key: %w", err)
	}

	privatePEM, err := jwk.Pem(jwkPrivate)
	if err != nil {
		return fmt.Errorf("encode private key: %w", err)
	}

	if writeErr := os.WriteFile(privateKeyPath, privatePEM, 0o600); writeErr != nil {
		return fmt.Errorf("write private key: %w", writeErr)
	}

	jwkPublic, err := jwkPrivate.PublicKey()
	if err != nil {
		return fmt.Errorf("derive public key: %w", err)
	}

	publicPEM, err := jwk.Pem(jwkPublic)
	if err != nil {
		return fmt.Errorf("encode public key: %w", err)
	}

	//nolint:gosec // G306: public key is intentionally world-readable
	if writeErr := os.WriteFile(publicKeyPath, publicPEM, 0o644); writeErr != nil {
		return fmt.Errorf("write public key: %w", writeErr)
	}

	return nil
}

// AccessTokenClaims is the claim set embedded in each access token.
type AccessTokenClaims struct {
	UserID string
	Email  string
	Name   string
	Plan   string
	Roles  []string
}

func (m *TokenIssuer) IssueAccessToken(
	claims AccessTokenClaims,
) (string, error) {
	now := time.Now()

	token, err := jwt.NewBuilder().
		JwtID(uuid.New().String()).
		Issuer(m.config.Issuer).
		Audience([]string{m.config.Audience}).
		Subject(claims.UserID).
		IssuedAt(now).
		Expiration(now.Add(m.config.AccessTokenExpire)).
		NotBefore(now).
		Claim("email", claims.Email).
		Claim("name", claims.Name).
		Claim("plan", claims.Plan).
		Claim("roles", claims.Roles).
		Claim("type", "access").
		Build()
	if err != nil {
		return "", fmt.Errorf("build token: %w", err)
	}

	signed, err := jwt.Sign(token, jwt.WithKey(jwa.ES256(), m.privateKey))
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}

	return string(signed), nil
}

// VerifyAccessToken checks signature, validity window, and claim shape.
// The three failure kinds stay distinguishable: core.ErrTokenExpired,
// core.ErrTokenBadSignature, core.ErrTokenMalformed.
func (m *TokenIssuer) VerifyAccessToken(
	ctx context.Context,
	tokenString string,
) (*AccessTokenClaims, error) {
	token, err := jwt.Parse(
		[]byte(tokenString),
		jwt.WithKey(jwa.ES256(), m.publicKey),
		jwt.WithValidate(true),
		jwt.WithIssuer(m.config.Issuer),
		jwt.WithAudience(m.config.Audience),
	)
	if err != nil {
		return nil, fmt.Errorf("verify token: %w", classifyParseError(err))
	}

	var tokenType string
	if err := token.Get("type", &tokenType); err != nil ||
		tokenType != "access" {
		return nil, fmt.Errorf(
			"verify token: invalid token type: %w",
			core.ErrTokenMalformed,
		)
	}

	subject, ok := token.Subject()
	if !ok || subject == "" {
		return nil, fmt.Errorf(
			"verify token: missing subject: %w",
			core.ErrTokenMalformed,
		)
	}

	var email string
	if err := token.Get("email", &email); err != nil {
		return nil, fmt.Errorf(
			"verify token: missing email claim: %w",
			core.ErrTokenMalformed,
		)
	}

	var name string
	if err := token.Get("name", &name); err != nil {
		return nil, fmt.Errorf(
			"verify token: missing name claim: %w",
			core.ErrTokenMalformed,
		)
	}

	var plan string
	if err := token.Get("plan", &plan); err != nil {
		return nil, fmt.Errorf(
			"verify token: missing plan claim: %w",
			core.ErrTokenMalformed,
		)
	}

	var rolesRaw []any
	if err := token.Get("roles", &rolesRaw); err != nil {
		return nil, fmt.Errorf(
			"verify token: missing roles claim: %w",
			core.ErrTokenMalformed,
		)
	}

	roles := make([]string, 0, len(rolesRaw))
	for _, r := range rolesRaw {
		role, ok := r.(string)
		if !ok {
			return nil, fmt.Errorf(
				"verify token: malformed roles claim: %w",
				core.ErrTokenMalformed,
			)
		}
		roles = append(roles, role)
	}

	return &AccessTokenClaims{
		UserID: subject,
		Email:  email,
		Name:   name,
		Plan:   plan,
		Roles:  roles,
	}, nil
}

// classifyParseError maps jwx parse failures onto the three token error
// kinds. jwx v3 does not export sentinels for these, so this inspects the
// error text. A signature mismatch reads "signature verification failed";
// structurally broken input fails earlier with decode errors, so everything
// else is malformed.
func classifyParseError(err error) error {
	errStr := err.Error()

	if strings.Contains(errStr, "exp") &&
		strings.Contains(errStr, "not satisfied") {
		return core.ErrTokenExpired
	}

	if strings.Contains(errStr, "signature verification failed") {
		return core.ErrTokenBadSignature
	}

	return core.ErrTokenMalformed
}

func (m *TokenIssuer) AccessTokenTTL() time.Duration {
	return m.config.AccessTokenExpire
}

func (m *TokenIssuer) JWKSHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "public, max-age=3600")

		if err := json.NewEncoder(w).Encode(m.publicJWKS); err != nil {
			http.Error(
				w,
				"Internal Server Error",
				http.StatusInternalServerError,
			)
			return
		}
	}
}

func (m *TokenIssuer) KeyID() string {
	var kid string
	//nolint:errcheck // key ID always set during construction
	_ = m.privateKey.Get(jwk.KeyIDKey, &kid)
	return kid
}

// RefreshTokenData is a freshly minted refresh token before persistence.
type RefreshTokenData struct {
	Token     string
	Digest    string
	ExpiresAt time.Time
}

func (m *TokenIssuer) MintRefreshToken() (*RefreshTokenData, error) {
	token, err := core.GenerateRefreshToken()
	if err != nil {
		return nil, fmt.Errorf("generate refresh token: %w", err)
	}

	return &RefreshTokenData{
		Token:     token,
		Digest:    core.DigestToken(token),
		ExpiresAt: time.Now().Add(m.config.RefreshTokenExpire),
	}, nil
}
