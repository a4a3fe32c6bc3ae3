// Pivota | 2026
// service.go

package account

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/pivota/accounts-api/internal/auth"
)

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) GetByID(
	ctx context.Context,
	id string,
) (*auth.AccountInfo, error) {
	user, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	roles, err := s.repo.RoleNamesForUser(ctx, user.ID)
	if err != nil {
		return nil, err
	}

	return toAccountInfo(user, roles), nil
}

func (s *Service) GetByEmail(
	ctx context.Context,
	email string,
) (*auth.AccountInfo, error) {
	user, err := s.repo.GetByEmail(ctx, strings.ToLower(email))
	if err != nil {
		return nil, err
	}

	roles, err := s.repo.RoleNamesForUser(ctx, user.ID)
	if err != nil {
		return nil, err
	}

	return toAccountInfo(user, roles), nil
}

func (s *Service) EmailOrPhoneInUse(
	ctx context.Context,
	email, phone string,
) (bool, error) {
	return s.repo.EmailOrPhoneInUse(ctx, strings.ToLower(email), phone)
}

func (s *Service) PlanExists(ctx context.Context, name string) (bool, error) {
	return s.repo.PlanExists(ctx, name)
}

func (s *Service) Create(
	ctx context.Context,
	acct auth.NewAccount,
) (*auth.AccountInfo, error) {
	roleIDs, err := s.repo.RoleIDsByName(ctx, acct.Roles)
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(acct.Roles))
	for _, name := range acct.Roles {
		id, ok := roleIDs[name]
		if !ok {
			return nil, fmt.Errorf("create account: role %q is not seeded", name)
		}
		ids = append(ids, id)
	}

	user := &User{
		ID:           uuid.New().String(),
		FirstName:    acct.FirstName,
		LastName:     acct.LastName,
		Email:        strings.ToLower(acct.Email),
		Phone:        acct.Phone,
		PasswordHash: acct.PasswordHash,
		Plan:         acct.Plan,
		IsPremium:    acct.IsPremium,
	}

	if err := s.repo.CreateWithRoles(ctx, user, ids); err != nil {
		return nil, err
	}

	return toAccountInfo(user, acct.Roles), nil
}

func toAccountInfo(u *User, roles []string) *auth.AccountInfo {
	return &auth.AccountInfo{
		ID:           u.ID,
		FirstName:    u.FirstName,
		LastName:     u.LastName,
		Email:        u.Email,
		Phone:        u.Phone,
		PasswordHash: u.PasswordHash,
		Plan:         u.Plan,
		IsPremium:    u.IsPremium,
		Roles:        roles,
		CreatedAt:    u.CreatedAt,
	}
}

var _ auth.AccountProvider = (*Service)(nil)
