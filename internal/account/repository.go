// Pivota | 2026
// repository.go

package account

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"

	"github.com/pivota/accounts-api/internal/core"
)

type Repository interface {
	GetByID(ctx context.Context, id string) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	EmailOrPhoneInUse(ctx context.Context, email, phone string) (bool, error)
	PlanExists(ctx context.Context, name string) (bool, error)
	RoleIDsByName(ctx context.Context, names []string) (map[string]string, error)
	RoleNamesForUser(ctx context.Context, userID string) ([]string, error)
	CreateWithRoles(ctx context.Context, user *User, roleIDs []string) error
}

type repository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) Repository {
	return &repository{db: db}
}

func (r *repository) GetByID(ctx context.Context, id string) (*User, error) {
	query := `
		SELECT id, first_name, last_name, email, phone, password_hash,
		       plan, is_premium, created_at, updated_at
		FROM users
		WHERE id = $1`

	ctx, cancel := core.StoreContext(ctx)
	defer cancel()

	var user User
	err := r.db.GetContext(ctx, &user, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get user: %w", core.ErrNotFound)
	}
	if err != nil {
		return nil, core.MapStoreError("get user", err)
	}

	return &user, nil
}

func (r *repository) GetByEmail(
	ctx context.Context,
	email string,
) (*User, error) {
	query := `
		SELECT id, first_name, last_name, email, phone, password_hash,
		       plan, is_premium, created_at, updated_at
		FROM users
		WHERE email = $1`

	ctx, cancel := core.StoreContext(ctx)
	defer cancel()

	var user User
	err := r.db.GetContext(ctx, &user, query, email)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get user by email: %w", core.ErrNotFound)
	}
	if err != nil {
		return nil, core.MapStoreError("get user by email", err)
	}

	return &user, nil
}

func (r *repository) EmailOrPhoneInUse(
	ctx context.Context,
	email, phone string,
) (bool, error) {
	query := `SELECT EXISTS(
		SELECT 1 FROM users WHERE email = $1 OR phone = $2)`

	ctx, cancel := core.StoreContext(ctx)
	defer cancel()

	var exists bool
	if err := r.db.GetContext(ctx, &exists, query, email, phone); err != nil {
		return false, core.MapStoreError("check email or phone in use", err)
	}

	return exists, nil
}

func (r *repository) PlanExists(
	ctx context.Context,
	name string,
) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM plans WHERE name = $1)`

	ctx, cancel := core.StoreContext(ctx)
	defer cancel()

	var exists bool
	if err := r.db.GetContext(ctx, &exists, query, name); err != nil {
		return false, core.MapStoreError("check plan exists", err)
	}

	return exists, nil
}

func (r *repository) RoleIDsByName(
	ctx context.Context,
	names []string,
) (map[string]string, error) {
	query, args, err := sqlx.In(
		`SELECT id, name FROM roles WHERE name IN (?)`, names)
	if err != nil {
		return nil, fmt.Errorf("resolve roles: %w", err)
	}
	query = r.db.Rebind(query)

	ctx, cancel := core.StoreContext(ctx)
	defer cancel()

	var roles []Role
	if err := r.db.SelectContext(ctx, &roles, query, args...); err != nil {
		return nil, core.MapStoreError("resolve roles", err)
	}

	ids := make(map[string]string, len(roles))
	for _, role := range roles {
		ids[role.Name] = role.ID
	}

	return ids, nil
}

func (r *repository) RoleNamesForUser(
	ctx context.Context,
	userID string,
) ([]string, error) {
	query := `
		SELECT r.name
		FROM roles r
		JOIN user_roles ur ON ur.role_id = r.id
		WHERE ur.user_id = $1
		ORDER BY r.name`

	ctx, cancel := core.StoreContext(ctx)
	defer cancel()

	var names []string
	if err := r.db.SelectContext(ctx, &names, query, userID); err != nil {
		return nil, core.MapStoreError("get user roles", err)
	}

	return names, nil
}

// CreateWithRoles inserts the user row and its role links in one
// transaction, so a partially-roled account can never be observed.
func (r *repository) CreateWithRoles(
	ctx context.Context,
	user *User,
	roleIDs []string,
) error {
	insertUser := `
		INSERT INTO users (id, first_name, last_name, email, phone,
		                   password_hash, plan, is_premium)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at, updated_at`

	insertRole := `
		INSERT INTO user_roles (user_id, role_id)
		VALUES ($1, $2)`

	ctx, cancel := core.StoreContext(ctx)
	defer cancel()

	err := core.InTx(ctx, r.db, func(tx *sqlx.Tx) error {
		row := tx.QueryRowxContext(ctx, insertUser,
			user.ID,
			user.FirstName,
			user.LastName,
			user.Email,
			user.Phone,
			user.PasswordHash,
			user.Plan,
			user.IsPremium,
		)
		if err := row.Scan(&user.CreatedAt, &user.UpdatedAt); err != nil {
			return err
		}

		for _, roleID := range roleIDs {
			if _, err := tx.ExecContext(
				ctx, insertRole, user.ID, roleID,
			); err != nil {
				return err
			}
		}

		return nil
	})
	if err != nil {
		if isDuplicateKeyError(err) {
			return fmt.Errorf("create user: %w", core.ErrDuplicateKey)
		}
		return core.MapStoreError("create user", err)
	}

	return nil
}

func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}
