// Pivota | 2026
// service.go

package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/pivota/accounts-api/internal/core"
	"github.com/pivota/accounts-api/internal/policy"
)

var (
	ErrPasswordMismatch    = errors.New("passwords do not match")
	ErrDuplicateAccount    = errors.New("account already exists")
	ErrInvalidCredentials  = errors.New("invalid credentials")
	ErrInvalidRefreshToken = errors.New("invalid refresh token")
	ErrRefreshTokenExpired = errors.New("refresh token expired")
	ErrUserNotFound        = errors.New("user not found")
)

const (
	unknownDevice = "Unknown Device"
	unknownIP     = "Unknown IP"

	// tokenInsertAttempts bounds regeneration when the store reports a
	// digest collision on insert.
	tokenInsertAttempts = 3
)

// AccountProvider is the user/plan side of the credential store, implemented
// by the account package.
type AccountProvider interface {
	GetByEmail(ctx context.Context, email string) (*AccountInfo, error)
	GetByID(ctx context.Context, id string) (*AccountInfo, error)
	EmailOrPhoneInUse(ctx context.Context, email, phone string) (bool, error)
	PlanExists(ctx context.Context, name string) (bool, error)
	Create(ctx context.Context, acct NewAccount) (*AccountInfo, error)
}

// Service orchestrates the credential and session lifecycle: signup, login,
// refresh rotation, and logout. All collaborators are constructor-injected.
type Service struct {
	accounts AccountProvider
	tokens   TokenRepository
	issuer   *TokenIssuer
	policy   *policy.Engine
}

func NewService(
	accounts AccountProvider,
	tokens TokenRepository,
	issuer *TokenIssuer,
	policyEngine *policy.Engine,
) *Service {
	return &Service{
		accounts: accounts,
		tokens:   tokens,
		issuer:   issuer,
		policy:   policyEngine,
	}
}

func (s *Service) Signup(
	ctx context.Context,
	req SignupRequest,
) (*SignupResponse, error) {
	if req.Password != req.ConfirmPassword {
		return nil, ErrPasswordMismatch
	}

	// One combined existence query; the store's unique constraints remain
	// the backstop for the check-then-act window.
	inUse, err := s.accounts.EmailOrPhoneInUse(ctx, req.Email, req.Phone)
	if err != nil {
		return nil, fmt.Errorf("check existing account: %w", err)
	}
	if inUse {
		return nil, ErrDuplicateAccount
	}

	planKnown, err := s.accounts.PlanExists(ctx, req.Plan)
	if err != nil {
		return nil, fmt.Errorf("resolve plan: %w", err)
	}
	if !planKnown {
		return nil, fmt.Errorf(
			"plan %q is not one of %s: %w",
			req.Plan,
			strings.Join(s.policy.PlanNames(), ", "),
			policy.ErrUnknownPlan,
		)
	}

	granted, err := s.policy.ValidateSelection(req.Plan, req.Roles)
	if err != nil {
		return nil, err
	}

	passwordHash, err := core.HashPassword(req.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	account, err := s.accounts.Create(ctx, NewAccount{
		FirstName:    req.FirstName,
		LastName:     req.LastName,
		Email:        req.Email,
		Phone:        req.Phone,
		PasswordHash: passwordHash,
		Plan:         req.Plan,
		IsPremium:    req.Plan != "free",
		Roles:        granted,
	})
	if err != nil {
		if errors.Is(err, core.ErrDuplicateKey) {
			return nil, ErrDuplicateAccount
		}
		return nil, fmt.Errorf("create account: %w", err)
	}

	return &SignupResponse{
		User:    toAccountResponse(account),
		Message: welcomeMessage(req.Plan),
	}, nil
}

func (s *Service) Login(
	ctx context.Context,
	req LoginRequest,
	deviceLabel, ipAddress string,
) (*AuthResponse, error) {
	account, err := s.accounts.GetByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			// Burn the same verification cost as the found path so a miss
			// is indistinguishable from a wrong password.
			core.VerifyPasswordTimingSafe(req.Password, nil)
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("get account: %w", err)
	}

	if !core.VerifyPasswordTimingSafe(req.Password, &account.PasswordHash) {
		return nil, ErrInvalidCredentials
	}

	return s.issueSession(ctx, account, deviceLabel, ipAddress)
}

func (s *Service) Refresh(
	ctx context.Context,
	refreshToken string,
) (*AuthResponse, error) {
	digest := core.DigestToken(refreshToken)

	stored, err := s.tokens.FindByDigest(ctx, digest)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return nil, ErrInvalidRefreshToken
		}
		return nil, fmt.Errorf("find refresh token: %w", err)
	}

	if stored.IsExpired() {
		//nolint:errcheck // stale row removal is best-effort
		_ = s.tokens.DeleteByID(ctx, stored.ID)
		return nil, ErrRefreshTokenExpired
	}

	// Delete first: concurrent refreshes with the same token race here and
	// exactly one wins the row.
	if err := s.tokens.DeleteByID(ctx, stored.ID); err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return nil, ErrInvalidRefreshToken
		}
		return nil, fmt.Errorf("rotate refresh token: %w", err)
	}

	// Claims are computed from current account state, never replayed from
	// the original login.
	account, err := s.accounts.GetByID(ctx, stored.UserID)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return nil, ErrInvalidRefreshToken
		}
		return nil, fmt.Errorf("get account: %w", err)
	}

	return s.issueSession(ctx, account, stored.DeviceLabel, stored.IPAddress)
}

func (s *Service) Logout(ctx context.Context, refreshToken string) error {
	// Idempotent: deleting an absent token is a success. Access tokens are
	// not revoked and remain valid until natural expiry.
	digest := core.DigestToken(refreshToken)

	if err := s.tokens.DeleteByDigest(ctx, digest); err != nil {
		return fmt.Errorf("delete refresh token: %w", err)
	}

	return nil
}

func (s *Service) GetCurrentUser(
	ctx context.Context,
	userID string,
) (*AccountResponse, error) {
	account, err := s.accounts.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	resp := toAccountResponse(account)
	return &resp, nil
}

// PurgeExpiredTokens removes refresh tokens past their expiry. Intended for
// a periodic maintenance caller.
func (s *Service) PurgeExpiredTokens(ctx context.Context) (int64, error) {
	return s.tokens.DeleteExpired(ctx)
}

func (s *Service) issueSession(
	ctx context.Context,
	account *AccountInfo,
	deviceLabel, ipAddress string,
) (*AuthResponse, error) {
	if deviceLabel == "" {
		deviceLabel = unknownDevice
	}
	if ipAddress == "" {
		ipAddress = unknownIP
	}

	accessToken, err := s.issuer.IssueAccessToken(AccessTokenClaims{
		UserID: account.ID,
		Email:  account.Email,
		Name:   account.DisplayName(),
		Plan:   account.Plan,
		Roles:  account.Roles,
	})
	if err != nil {
		return nil, fmt.Errorf("issue access token: %w", err)
	}

	refreshData, err := s.persistRefreshToken(ctx, account.ID, deviceLabel, ipAddress)
	if err != nil {
		return nil, err
	}

	ttl := s.issuer.AccessTokenTTL()

	return &AuthResponse{
		User: toAccountResponse(account),
		Tokens: TokenResponse{
			AccessToken:  accessToken,
			RefreshToken: refreshData.Token,
			TokenType:    "Bearer",
			ExpiresIn:    int(ttl / time.Second),
			ExpiresAt:    time.Now().Add(ttl),
		},
	}, nil
}

// persistRefreshToken mints and stores an opaque token, regenerating on the
// store's unique-constraint fault. Collisions are treated as negligible but
// not impossible.
func (s *Service) persistRefreshToken(
	ctx context.Context,
	userID, deviceLabel, ipAddress string,
) (*RefreshTokenData, error) {
	var lastErr error

	for range tokenInsertAttempts {
		data, err := s.issuer.MintRefreshToken()
		if err != nil {
			return nil, err
		}

		err = s.tokens.Create(ctx, &RefreshToken{
			ID:          uuid.New().String(),
			UserID:      userID,
			TokenDigest: data.Digest,
			DeviceLabel: deviceLabel,
			IPAddress:   ipAddress,
			ExpiresAt:   data.ExpiresAt,
		})
		if err == nil {
			return data, nil
		}

		if !errors.Is(err, core.ErrDuplicateKey) {
			return nil, fmt.Errorf("store refresh token: %w", err)
		}

		lastErr = err
	}

	return nil, fmt.Errorf("store refresh token: %w", lastErr)
}

func welcomeMessage(plan string) string {
	if plan == "free" {
		return "Your account was created successfully."
	}
	return fmt.Sprintf(
		"Your %s premium membership has been created successfully.",
		plan,
	)
}
