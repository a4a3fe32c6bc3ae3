// Pivota | 2026
// entity.go

package account

import (
	"time"
)

// Seed role names. user is granted to every account at signup; the platform
// roles are opt-in and gated by the subscription plan.
const (
	RoleUser            = "user"
	RoleAdmin           = "admin"
	RoleSuperAdmin      = "super_admin"
	RoleEmployer        = "employer"
	RoleLandlord        = "landlord"
	RoleServiceProvider = "serviceProvider"
)

const (
	PlanFree   = "free"
	PlanBronze = "bronze"
	PlanSilver = "silver"
	PlanGold   = "gold"
)

type User struct {
	ID           string    `db:"id"            json:"id"`
	FirstName    string    `db:"first_name"    json:"first_name"`
	LastName     string    `db:"last_name"     json:"last_name"`
	Email        string    `db:"email"         json:"email"`
	Phone        string    `db:"phone"         json:"phone"`
	PasswordHash string    `db:"password_hash" json:"-"`
	Plan         string    `db:"plan"          json:"plan"`
	IsPremium    bool      `db:"is_premium"    json:"is_premium"`
	CreatedAt    time.Time `db:"created_at"    json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at"    json:"updated_at"`
}

type Plan struct {
	ID   string `db:"id"   json:"id"`
	Name string `db:"name" json:"name"`
}

type Role struct {
	ID   string `db:"id"   json:"id"`
	Name string `db:"name" json:"name"`
}
