// Pivota | 2026
// service_test.go

package account

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pivota/accounts-api/internal/auth"
	"github.com/pivota/accounts-api/internal/core"
)

type fakeRepository struct {
	users   map[string]*User
	roles   map[string]string
	userRls map[string][]string
	plans   map[string]bool
}

func newFakeRepository() *fakeRepository {
	return &fakeRepository{
		users: make(map[string]*User),
		roles: map[string]string{
			"user":            "role-1",
			"admin":           "role-2",
			"super_admin":     "role-3",
			"employer":        "role-4",
			"landlord":        "role-5",
			"serviceProvider": "role-6",
		},
		userRls: make(map[string][]string),
		plans: map[string]bool{
			"free": true, "bronze": true, "silver": true, "gold": true,
		},
	}
}

func (f *fakeRepository) GetByID(_ context.Context, id string) (*User, error) {
	u, ok := f.users[id]
	if !ok {
		return nil, fmt.Errorf("get user: %w", core.ErrNotFound)
	}
	copied := *u
	return &copied, nil
}

func (f *fakeRepository) GetByEmail(
	_ context.Context,
	email string,
) (*User, error) {
	for _, u := range f.users {
		if u.Email == email {
			copied := *u
			return &copied, nil
		}
	}
	return nil, fmt.Errorf("get user by email: %w", core.ErrNotFound)
}

func (f *fakeRepository) EmailOrPhoneInUse(
	_ context.Context,
	email, phone string,
) (bool, error) {
	for _, u := range f.users {
		if u.Email == email || u.Phone == phone {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeRepository) PlanExists(
	_ context.Context,
	name string,
) (bool, error) {
	return f.plans[name], nil
}

func (f *fakeRepository) RoleIDsByName(
	_ context.Context,
	names []string,
) (map[string]string, error) {
	ids := make(map[string]string)
	for _, name := range names {
		if id, ok := f.roles[name]; ok {
			ids[name] = id
		}
	}
	return ids, nil
}

func (f *fakeRepository) RoleNamesForUser(
	_ context.Context,
	userID string,
) ([]string, error) {
	return f.userRls[userID], nil
}

func (f *fakeRepository) CreateWithRoles(
	_ context.Context,
	user *User,
	roleIDs []string,
) error {
	f.users[user.ID] = user

	names := make([]string, 0, len(roleIDs))
	for _, id := range roleIDs {
		for name, roleID := range f.roles {
			if roleID == id {
				names = append(names, name)
			}
		}
	}
	f.userRls[user.ID] = names
	return nil
}

func newAccount() auth.NewAccount {
	return auth.NewAccount{
		FirstName:    "Jane",
		LastName:     "Doe",
		Email:        "Jane@Example.com",
		Phone:        "5551234567",
		PasswordHash: "$argon2id$...",
		Plan:         "gold",
		IsPremium:    true,
		Roles:        []string{"user", "employer"},
	}
}

func TestCreateResolvesRoles(t *testing.T) {
	repo := newFakeRepository()
	svc := NewService(repo)
	ctx := context.Background()

	info, err := svc.Create(ctx, newAccount())
	require.NoError(t, err)

	assert.Equal(t, []string{"user", "employer"}, info.Roles)
	assert.Equal(t, "jane@example.com", info.Email)
	assert.True(t, info.IsPremium)

	stored := repo.users[info.ID]
	require.NotNil(t, stored)
	assert.Equal(t, "jane@example.com", stored.Email)
	assert.ElementsMatch(
		t,
		[]string{"user", "employer"},
		repo.userRls[info.ID],
	)
}

func TestCreateRejectsUnseededRole(t *testing.T) {
	repo := newFakeRepository()
	delete(repo.roles, "employer")
	svc := NewService(repo)

	_, err := svc.Create(context.Background(), newAccount())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "employer")
	assert.Empty(t, repo.users)
}

func TestGetByEmailLowercases(t *testing.T) {
	repo := newFakeRepository()
	svc := NewService(repo)
	ctx := context.Background()

	created, err := svc.Create(ctx, newAccount())
	require.NoError(t, err)

	info, err := svc.GetByEmail(ctx, "JANE@example.COM")
	require.NoError(t, err)
	assert.Equal(t, created.ID, info.ID)

	_, err = svc.GetByEmail(ctx, "nobody@example.com")
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestGetByIDPopulatesRoles(t *testing.T) {
	repo := newFakeRepository()
	svc := NewService(repo)
	ctx := context.Background()

	created, err := svc.Create(ctx, newAccount())
	require.NoError(t, err)

	info, err := svc.GetByID(ctx, created.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"user", "employer"}, info.Roles)
}

func TestEmailOrPhoneInUse(t *testing.T) {
	repo := newFakeRepository()
	svc := NewService(repo)
	ctx := context.Background()

	_, err := svc.Create(ctx, newAccount())
	require.NoError(t, err)

	inUse, err := svc.EmailOrPhoneInUse(ctx, "JANE@EXAMPLE.COM", "0000000000")
	require.NoError(t, err)
	assert.True(t, inUse)

	inUse, err = svc.EmailOrPhoneInUse(ctx, "other@example.com", "5551234567")
	require.NoError(t, err)
	assert.True(t, inUse)

	inUse, err = svc.EmailOrPhoneInUse(ctx, "other@example.com", "0000000000")
	require.NoError(t, err)
	assert.False(t, inUse)
}
