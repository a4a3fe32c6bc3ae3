// Pivota | 2026
// dto.go

package auth

import (
	"time"
)

type SignupRequest struct {
	FirstName       string   `json:"first_name"       validate:"required,min=1,max=100"`
	LastName        string   `json:"last_name"        validate:"required,min=1,max=100"`
	Email           string   `json:"email"            validate:"required,email,max=255"`
	Password        string   `json:"password"         validate:"required,min=8,max=128"`
	ConfirmPassword string   `json:"confirm_password" validate:"required,min=8,max=128"`
	Phone           string   `json:"phone"            validate:"required,number,min=10,max=15"`
	Plan            string   `json:"plan"             validate:"required,oneof=free bronze silver gold"`
	Roles           []string `json:"roles,omitempty"`
}

type LoginRequest struct {
	Email    string `json:"email"    validate:"required,email,max=255"`
	Password string `json:"password" validate:"required,min=8,max=128"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

type LogoutRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

type TokenResponse struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	TokenType    string    `json:"token_type"`
	ExpiresIn    int       `json:"expires_in"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// AccountResponse is the public projection of an account. It never carries
// the password hash.
type AccountResponse struct {
	ID        string    `json:"id"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	Email     string    `json:"email"`
	Phone     string    `json:"phone"`
	Plan      string    `json:"plan"`
	IsPremium bool      `json:"is_premium"`
	Roles     []string  `json:"roles"`
	CreatedAt time.Time `json:"created_at"`
}

type SignupResponse struct {
	User    AccountResponse `json:"user"`
	Message string          `json:"message"`
}

type AuthResponse struct {
	User   AccountResponse `json:"user"`
	Tokens TokenResponse   `json:"tokens"`
}

func toAccountResponse(a *AccountInfo) AccountResponse {
	return AccountResponse{
		ID:        a.ID,
		FirstName: a.FirstName,
		LastName:  a.LastName,
		Email:     a.Email,
		Phone:     a.Phone,
		Plan:      a.Plan,
		IsPremium: a.IsPremium,
		Roles:     a.Roles,
		CreatedAt: a.CreatedAt,
	}
}
