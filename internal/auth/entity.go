// Pivota | 2026
// entity.go

package auth

import (
	"time"
)

// RefreshToken is the persisted side of an opaque refresh token. Only the
// sha256 digest of the token value is stored; the raw value exists on the
// wire and nowhere else.
type RefreshToken struct {
	ID          string    `db:"id"`
	UserID      string    `db:"user_id"`
	TokenDigest string    `db:"token_digest"`
	DeviceLabel string    `db:"device_label"`
	IPAddress   string    `db:"ip_address"`
	CreatedAt   time.Time `db:"created_at"`
	ExpiresAt   time.Time `db:"expires_at"`
}

func (t *RefreshToken) IsExpired() bool {
	return !time.Now().Before(t.ExpiresAt)
}

// AccountInfo is the view of an account the session lifecycle works with,
// provided by the account package. Roles always includes the base role.
type AccountInfo struct {
	ID           string
	FirstName    string
	LastName     string
	Email        string
	Phone        string
	PasswordHash string
	Plan         string
	IsPremium    bool
	Roles        []string
	CreatedAt    time.Time
}

func (a *AccountInfo) DisplayName() string {
	return a.FirstName + " " + a.LastName
}

// NewAccount carries everything needed to create an account and its role
// links in one unit.
type NewAccount struct {
	FirstName    string
	LastName     string
	Email        string
	Phone        string
	PasswordHash string
	Plan         string
	IsPremium    bool
	Roles        []string
}
