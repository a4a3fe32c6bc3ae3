// Pivota | 2026
// dto_test.go

package auth

import (
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
)

func TestSignupRequestValidation(t *testing.T) {
	v := validator.New(validator.WithRequiredStructEnabled())

	base := func() SignupRequest {
		return SignupRequest{
			FirstName:       "Jane",
			LastName:        "Doe",
			Email:           "jane@example.com",
			Password:        "password123",
			ConfirmPassword: "password123",
			Phone:           "5551234567",
			Plan:            "gold",
		}
	}

	tests := []struct {
		name    string
		mutate  func(*SignupRequest)
		wantErr bool
	}{
		{"valid", func(r *SignupRequest) {}, false},
		{
			"phone with decimal point",
			func(r *SignupRequest) { r.Phone = "12.34567890" },
			true,
		},
		{
			"phone with sign",
			func(r *SignupRequest) { r.Phone = "+15551234567" },
			true,
		},
		{
			"phone too short",
			func(r *SignupRequest) { r.Phone = "555123" },
			true,
		},
		{
			"phone too long",
			func(r *SignupRequest) { r.Phone = "5551234567555123456" },
			true,
		},
		{
			"phone fifteen digits",
			func(r *SignupRequest) { r.Phone = "555123456789012" },
			false,
		},
		{
			"bad email",
			func(r *SignupRequest) { r.Email = "not-an-email" },
			true,
		},
		{
			"short password",
			func(r *SignupRequest) {
				r.Password = "short"
				r.ConfirmPassword = "short"
			},
			true,
		},
		{
			"unknown plan",
			func(r *SignupRequest) { r.Plan = "platinum" },
			true,
		},
		{
			"missing first name",
			func(r *SignupRequest) { r.FirstName = "" },
			true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := base()
			tt.mutate(&req)

			err := v.Struct(req)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
