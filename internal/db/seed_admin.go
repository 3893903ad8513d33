package db

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/AnzuWanzu/W1-MultiRole-Authentication-System/internal/config"
	"github.com/AnzuWanzu/W1-MultiRole-Authentication-System/internal/domain/user"
	"github.com/AnzuWanzu/W1-MultiRole-Authentication-System/internal/security"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// EnsureAdminUser seeds a bootstrap admin account so a fresh deployment
// has someone who can reach the admin-only routes. No-op unless both
// ADMIN_EMAIL and ADMIN_PASSWORD are configured.
func EnsureAdminUser(ctx context.Context, pool *pgxpool.Pool, cfg config.Config) error {
	if cfg.AdminEmail == "" || cfg.AdminPassword == "" {
		return nil
	}

	email := strings.ToLower(cfg.AdminEmail)

	// check if the user exists

	var dummy string

	err := pool.QueryRow(ctx, `SELECT id FROM users WHERE email = $1`, email).Scan(&dummy)

	if err == nil {
		return nil
	}

	if !errors.Is(err, pgx.ErrNoRows) {
		return err
	}

	hash, err := security.HashPassword(cfg.AdminPassword)

	if err != nil {
		return err
	}

	now := time.Now().UTC()

	u := user.User{
		ID:           uuid.NewString(),
		Name:         cfg.AdminName,
		Username:     cfg.AdminUsername,
		Email:        email,
		PasswordHash: hash,
		Role:         user.RoleAdmin,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	_, err = pool.Exec(ctx,
		`INSERT INTO users (id, name, username, email, password_hash, role, is_active, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		`,
		u.ID, u.Name, u.Username, u.Email, u.PasswordHash, u.Role, u.IsActive, u.CreatedAt, u.UpdatedAt,
	)

	return err
}
