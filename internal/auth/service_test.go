// Pivota | 2026
// service_test.go

package auth

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pivota/accounts-api/internal/core"
	"github.com/pivota/accounts-api/internal/policy"
)

type fakeAccounts struct {
	mu       sync.Mutex
	byID     map[string]*AccountInfo
	plans    map[string]bool
	createOK bool
}

func newFakeAccounts() *fakeAccounts {
	return &fakeAccounts{
		byID: make(map[string]*AccountInfo),
		plans: map[string]bool{
			"free":   true,
			"bronze": true,
			"silver": true,
			"gold":   true,
		},
		createOK: true,
	}
}

func (f *fakeAccounts) GetByEmail(
	_ context.Context,
	email string,
) (*AccountInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, a := range f.byID {
		if a.Email == email {
			copied := *a
			return &copied, nil
		}
	}
	return nil, fmt.Errorf("get user by email: %w", core.ErrNotFound)
}

func (f *fakeAccounts) GetByID(
	_ context.Context,
	id string,
) (*AccountInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.byID[id]
	if !ok {
		return nil, fmt.Errorf("get user: %w", core.ErrNotFound)
	}
	copied := *a
	return &copied, nil
}

func (f *fakeAccounts) EmailOrPhoneInUse(
	_ context.Context,
	email, phone string,
) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, a := range f.byID {
		if a.Email == email || a.Phone == phone {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeAccounts) PlanExists(
	_ context.Context,
	name string,
) (bool, error) {
	return f.plans[name], nil
}

func (f *fakeAccounts) Create(
	_ context.Context,
	acct NewAccount,
) (*AccountInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.createOK {
		return nil, fmt.Errorf("create user: %w", core.ErrDuplicateKey)
	}

	info := &AccountInfo{
		ID:           uuid.New().String(),
		FirstName:    acct.FirstName,
		LastName:     acct.LastName,
		Email:        acct.Email,
		Phone:        acct.Phone,
		PasswordHash: acct.PasswordHash,
		Plan:         acct.Plan,
		IsPremium:    acct.IsPremium,
		Roles:        acct.Roles,
		CreatedAt:    time.Now(),
	}
	f.byID[info.ID] = info
	return info, nil
}

type fakeTokens struct {
	mu         sync.Mutex
	byDigest   map[string]*RefreshToken
	failCreate int
}

func newFakeTokens() *fakeTokens {
	return &fakeTokens{byDigest: make(map[string]*RefreshToken)}
}

func (f *fakeTokens) Create(_ context.Context, token *RefreshToken) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.failCreate > 0 {
		f.failCreate--
		return fmt.Errorf("create refresh token: %w", core.ErrDuplicateKey)
	}

	if _, exists := f.byDigest[token.TokenDigest]; exists {
		return fmt.Errorf("create refresh token: %w", core.ErrDuplicateKey)
	}

	token.CreatedAt = time.Now()
	copied := *token
	f.byDigest[token.TokenDigest] = &copied
	return nil
}

func (f *fakeTokens) FindByDigest(
	_ context.Context,
	digest string,
) (*RefreshToken, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.byDigest[digest]
	if !ok {
		return nil, fmt.Errorf("find refresh token: %w", core.ErrNotFound)
	}
	copied := *t
	return &copied, nil
}

func (f *fakeTokens) DeleteByID(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for digest, t := range f.byDigest {
		if t.ID == id {
			delete(f.byDigest, digest)
			return nil
		}
	}
	return fmt.Errorf("delete refresh token: %w", core.ErrNotFound)
}

func (f *fakeTokens) DeleteByDigest(_ context.Context, digest string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.byDigest, digest)
	return nil
}

func (f *fakeTokens) DeleteExpired(_ context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var purged int64
	for digest, t := range f.byDigest {
		if t.IsExpired() {
			delete(f.byDigest, digest)
			purged++
		}
	}
	return purged, nil
}

func (f *fakeTokens) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.byDigest)
}

func newTestService(t *testing.T) (*Service, *fakeAccounts, *fakeTokens) {
	t.Helper()

	accounts := newFakeAccounts()
	tokens := newFakeTokens()
	issuer := newTestIssuer(t, testJWTConfig())
	svc := NewService(accounts, tokens, issuer, policy.DefaultEngine())

	return svc, accounts, tokens
}

func validSignup() SignupRequest {
	return SignupRequest{
		FirstName:       "Jane",
		LastName:        "Doe",
		Email:           "jane@example.com",
		Password:        "password123",
		ConfirmPassword: "password123",
		Phone:           "5551234567",
		Plan:            "gold",
		Roles:           []string{"employer", "landlord"},
	}
}

func TestSignup(t *testing.T) {
	svc, accounts, _ := newTestService(t)
	ctx := context.Background()

	resp, err := svc.Signup(ctx, validSignup())
	require.NoError(t, err)

	assert.Equal(t, "jane@example.com", resp.User.Email)
	assert.Equal(t, "gold", resp.User.Plan)
	assert.True(t, resp.User.IsPremium)
	assert.Equal(
		t,
		[]string{"user", "employer", "landlord"},
		resp.User.Roles,
	)
	assert.Contains(t, resp.Message, "gold premium membership")

	stored, err := accounts.GetByEmail(ctx, "jane@example.com")
	require.NoError(t, err)
	assert.NotEqual(t, "password123", stored.PasswordHash)
	assert.True(t, core.VerifyPassword("password123", stored.PasswordHash))
}

func TestSignupFreePlan(t *testing.T) {
	svc, _, _ := newTestService(t)

	req := validSignup()
	req.Plan = "free"
	req.Roles = nil

	resp, err := svc.Signup(context.Background(), req)
	require.NoError(t, err)

	assert.False(t, resp.User.IsPremium)
	assert.Equal(t, []string{"user"}, resp.User.Roles)
	assert.Equal(t, "Your account was created successfully.", resp.Message)
}

func TestSignupPasswordMismatch(t *testing.T) {
	svc, accounts, _ := newTestService(t)

	req := validSignup()
	req.ConfirmPassword = "different123"

	_, err := svc.Signup(context.Background(), req)
	assert.ErrorIs(t, err, ErrPasswordMismatch)
	assert.Empty(t, accounts.byID)
}

func TestSignupDuplicate(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Signup(ctx, validSignup())
	require.NoError(t, err)

	_, err = svc.Signup(ctx, validSignup())
	assert.ErrorIs(t, err, ErrDuplicateAccount)
}

func TestSignupDuplicateFromStore(t *testing.T) {
	// The up-front existence check can miss a concurrent insert; the store's
	// unique constraint must still surface as a duplicate account.
	svc, accounts, _ := newTestService(t)
	accounts.createOK = false

	_, err := svc.Signup(context.Background(), validSignup())
	assert.ErrorIs(t, err, ErrDuplicateAccount)
}

func TestSignupUnknownPlan(t *testing.T) {
	svc, accounts, _ := newTestService(t)

	req := validSignup()
	req.Plan = "platinum"

	_, err := svc.Signup(context.Background(), req)
	assert.ErrorIs(t, err, policy.ErrUnknownPlan)
	assert.Contains(t, err.Error(), "bronze, free, gold, silver")
	assert.Empty(t, accounts.byID)
}

func TestSignupPolicyRejection(t *testing.T) {
	svc, accounts, _ := newTestService(t)
	ctx := context.Background()

	req := validSignup()
	req.Plan = "free"
	req.Roles = []string{"employer"}

	_, err := svc.Signup(ctx, req)
	var roleErr *policy.RoleNotAllowedError
	assert.ErrorAs(t, err, &roleErr)
	assert.Empty(t, accounts.byID)

	req = validSignup()
	req.Plan = "bronze"
	req.Roles = []string{"employer", "landlord"}

	_, err = svc.Signup(ctx, req)
	var quotaErr *policy.RoleQuotaError
	assert.ErrorAs(t, err, &quotaErr)
	assert.Empty(t, accounts.byID)
}

func TestLogin(t *testing.T) {
	svc, _, tokens := newTestService(t)
	ctx := context.Background()

	_, err := svc.Signup(ctx, validSignup())
	require.NoError(t, err)

	resp, err := svc.Login(ctx, LoginRequest{
		Email:    "jane@example.com",
		Password: "password123",
	}, "Mozilla/5.0", "203.0.113.7")
	require.NoError(t, err)

	assert.Equal(t, "jane@example.com", resp.User.Email)
	assert.Equal(t, "Bearer", resp.Tokens.TokenType)
	assert.NotEmpty(t, resp.Tokens.AccessToken)
	assert.NotEmpty(t, resp.Tokens.RefreshToken)
	assert.Equal(t, 15*60, resp.Tokens.ExpiresIn)
	assert.Equal(t, 1, tokens.count())

	stored, err := tokens.FindByDigest(
		ctx, core.DigestToken(resp.Tokens.RefreshToken))
	require.NoError(t, err)
	assert.Equal(t, "Mozilla/5.0", stored.DeviceLabel)
	assert.Equal(t, "203.0.113.7", stored.IPAddress)
}

func TestLoginInvalidCredentials(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Signup(ctx, validSignup())
	require.NoError(t, err)

	// Wrong password and unknown email collapse to the same error.
	_, err = svc.Login(ctx, LoginRequest{
		Email:    "jane@example.com",
		Password: "wrongpassword",
	}, "", "")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = svc.Login(ctx, LoginRequest{
		Email:    "nobody@example.com",
		Password: "password123",
	}, "", "")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestLoginDefaultsDeviceMetadata(t *testing.T) {
	svc, _, tokens := newTestService(t)
	ctx := context.Background()

	_, err := svc.Signup(ctx, validSignup())
	require.NoError(t, err)

	resp, err := svc.Login(ctx, LoginRequest{
		Email:    "jane@example.com",
		Password: "password123",
	}, "", "")
	require.NoError(t, err)

	stored, err := tokens.FindByDigest(
		ctx, core.DigestToken(resp.Tokens.RefreshToken))
	require.NoError(t, err)
	assert.Equal(t, "Unknown Device", stored.DeviceLabel)
	assert.Equal(t, "Unknown IP", stored.IPAddress)
}

func TestRefreshRotatesToken(t *testing.T) {
	svc, _, tokens := newTestService(t)
	ctx := context.Background()

	_, err := svc.Signup(ctx, validSignup())
	require.NoError(t, err)

	login, err := svc.Login(ctx, LoginRequest{
		Email:    "jane@example.com",
		Password: "password123",
	}, "Mozilla/5.0", "203.0.113.7")
	require.NoError(t, err)

	refreshed, err := svc.Refresh(ctx, login.Tokens.RefreshToken)
	require.NoError(t, err)

	assert.NotEqual(
		t,
		login.Tokens.RefreshToken,
		refreshed.Tokens.RefreshToken,
	)
	assert.Equal(t, 1, tokens.count())

	// The used token is gone; replaying it fails.
	_, err = svc.Refresh(ctx, login.Tokens.RefreshToken)
	assert.ErrorIs(t, err, ErrInvalidRefreshToken)

	// Device metadata carries over to the replacement row.
	stored, err := tokens.FindByDigest(
		ctx, core.DigestToken(refreshed.Tokens.RefreshToken))
	require.NoError(t, err)
	assert.Equal(t, "Mozilla/5.0", stored.DeviceLabel)
	assert.Equal(t, "203.0.113.7", stored.IPAddress)
}

func TestRefreshUnknownToken(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, err := svc.Refresh(context.Background(), "never-issued")
	assert.ErrorIs(t, err, ErrInvalidRefreshToken)
}

func TestRefreshExpiredToken(t *testing.T) {
	svc, _, tokens := newTestService(t)
	ctx := context.Background()

	_, err := svc.Signup(ctx, validSignup())
	require.NoError(t, err)

	login, err := svc.Login(ctx, LoginRequest{
		Email:    "jane@example.com",
		Password: "password123",
	}, "", "")
	require.NoError(t, err)

	digest := core.DigestToken(login.Tokens.RefreshToken)
	tokens.mu.Lock()
	tokens.byDigest[digest].ExpiresAt = time.Now().Add(-time.Minute)
	tokens.mu.Unlock()

	_, err = svc.Refresh(ctx, login.Tokens.RefreshToken)
	assert.ErrorIs(t, err, ErrRefreshTokenExpired)

	// The stale row was removed on the way out.
	assert.Equal(t, 0, tokens.count())
}

func TestRefreshReflectsCurrentAccountState(t *testing.T) {
	svc, accounts, _ := newTestService(t)
	ctx := context.Background()

	signup, err := svc.Signup(ctx, validSignup())
	require.NoError(t, err)

	login, err := svc.Login(ctx, LoginRequest{
		Email:    "jane@example.com",
		Password: "password123",
	}, "", "")
	require.NoError(t, err)

	// Plan changed between login and refresh; the new access token must
	// carry the current state, not the login-time snapshot.
	accounts.mu.Lock()
	accounts.byID[signup.User.ID].Plan = "free"
	accounts.byID[signup.User.ID].Roles = []string{"user"}
	accounts.mu.Unlock()

	refreshed, err := svc.Refresh(ctx, login.Tokens.RefreshToken)
	require.NoError(t, err)

	issuer := svc.issuer
	claims, err := issuer.VerifyAccessToken(ctx, refreshed.Tokens.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "free", claims.Plan)
	assert.Equal(t, []string{"user"}, claims.Roles)
}

func TestLogoutIdempotent(t *testing.T) {
	svc, _, tokens := newTestService(t)
	ctx := context.Background()

	_, err := svc.Signup(ctx, validSignup())
	require.NoError(t, err)

	login, err := svc.Login(ctx, LoginRequest{
		Email:    "jane@example.com",
		Password: "password123",
	}, "", "")
	require.NoError(t, err)

	require.NoError(t, svc.Logout(ctx, login.Tokens.RefreshToken))
	assert.Equal(t, 0, tokens.count())

	// Second logout with the same token is still a success.
	require.NoError(t, svc.Logout(ctx, login.Tokens.RefreshToken))

	_, err = svc.Refresh(ctx, login.Tokens.RefreshToken)
	assert.ErrorIs(t, err, ErrInvalidRefreshToken)
}

func TestPersistRefreshTokenRetriesOnCollision(t *testing.T) {
	svc, _, tokens := newTestService(t)
	ctx := context.Background()

	_, err := svc.Signup(ctx, validSignup())
	require.NoError(t, err)

	tokens.failCreate = 2

	resp, err := svc.Login(ctx, LoginRequest{
		Email:    "jane@example.com",
		Password: "password123",
	}, "", "")
	require.NoError(t, err)
	assert.NotEmpty(t, resp.Tokens.RefreshToken)
	assert.Equal(t, 1, tokens.count())
}

func TestPersistRefreshTokenGivesUpAfterRetries(t *testing.T) {
	svc, _, tokens := newTestService(t)
	ctx := context.Background()

	_, err := svc.Signup(ctx, validSignup())
	require.NoError(t, err)

	tokens.failCreate = tokenInsertAttempts

	_, err = svc.Login(ctx, LoginRequest{
		Email:    "jane@example.com",
		Password: "password123",
	}, "", "")
	assert.ErrorIs(t, err, core.ErrDuplicateKey)
}

func TestPurgeExpiredTokens(t *testing.T) {
	svc, _, tokens := newTestService(t)
	ctx := context.Background()

	_, err := svc.Signup(ctx, validSignup())
	require.NoError(t, err)

	first, err := svc.Login(ctx, LoginRequest{
		Email:    "jane@example.com",
		Password: "password123",
	}, "", "")
	require.NoError(t, err)

	_, err = svc.Login(ctx, LoginRequest{
		Email:    "jane@example.com",
		Password: "password123",
	}, "", "")
	require.NoError(t, err)

	digest := core.DigestToken(first.Tokens.RefreshToken)
	tokens.mu.Lock()
	tokens.byDigest[digest].ExpiresAt = time.Now().Add(-time.Hour)
	tokens.mu.Unlock()

	purged, err := svc.PurgeExpiredTokens(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), purged)
	assert.Equal(t, 1, tokens.count())
}

func TestGetCurrentUser(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	signup, err := svc.Signup(ctx, validSignup())
	require.NoError(t, err)

	user, err := svc.GetCurrentUser(ctx, signup.User.ID)
	require.NoError(t, err)
	assert.Equal(t, "jane@example.com", user.Email)

	_, err = svc.GetCurrentUser(ctx, "no-such-user")
	assert.ErrorIs(t, err, core.ErrNotFound)
}
