package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/AnzuWanzu/W1-MultiRole-Authentication-System/internal/domain/user"
	"github.com/AnzuWanzu/W1-MultiRole-Authentication-System/internal/observability"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const userColumns = `id, name, username, email, password_hash, role, is_active, last_login, created_at, updated_at`

type UsersRepo struct {
	pool *pgxpool.Pool
	prom *observability.Prom
}

// constructor function

func NewUsersRepo(pool *pgxpool.Pool, prom *observability.Prom) *UsersRepo {
	return &UsersRepo{
		pool: pool,
		prom: prom,
	}
}

func (r *UsersRepo) observe(op string, fn func() error) error {
	if r.prom == nil {
		return fn()
	}

	return r.prom.ObserveDB(op, fn)
}

func scanUser(row pgx.Row) (user.User, error) {
	var u user.User

	err := row.Scan(
		&u.ID,
		&u.Name,
		&u.Username,
		&u.Email,
		&u.PasswordHash,
		&u.Role,
		&u.IsActive,
		&u.LastLogin,
		&u.CreatedAt,
		&u.UpdatedAt,
	)

	return u, err
}

// List returns every user, newest first.
func (r *UsersRepo) List(ctx context.Context) ([]user.User, error) {
	var output []user.User

	err := r.observe("users.list", func() error {
		rows, err := r.pool.Query(ctx,
			`SELECT `+userColumns+` FROM users ORDER BY created_at DESC`)

		if err != nil {
			return err
		}

		defer rows.Close()

		output = make([]user.User, 0)

		for rows.Next() {
			u, err := scanUser(rows)

			if err != nil {
				return err
			}

			output = append(output, u)
		}

		return rows.Err()
	})

	if err != nil {
		return nil, err
	}

	return output, nil
}

func (r *UsersRepo) GetByID(ctx context.Context, id string) (user.User, error) {
	var u user.User

	err := r.observe("users.get_by_id", func() error {
		var err error
		u, err = scanUser(r.pool.QueryRow(ctx,
			`SELECT `+userColumns+` FROM users WHERE id = $1`, id))
		return err
	})

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return user.User{}, user.ErrNotFound
		}

		return user.User{}, err
	}

	return u, nil
}

func (r *UsersRepo) GetByUsername(ctx context.Context, username string) (user.User, error) {
	var u user.User

	err := r.observe("users.get_by_username", func() error {
		var err error
		u, err = scanUser(r.pool.QueryRow(ctx,
			`SELECT `+userColumns+` FROM users WHERE username = $1`, username))
		return err
	})

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return user.User{}, user.ErrNotFound
		}

		return user.User{}, err
	}

	return u, nil
}

// ExistsByEmail is the fast-path probe used before inserting. The
// unique index remains the source of truth under concurrent creates.
func (r *UsersRepo) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	var exists bool

	err := r.observe("users.exists_by_email", func() error {
		return r.pool.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM users WHERE LOWER(email) = LOWER($1))`, email).Scan(&exists)
	})

	return exists, err
}

func (r *UsersRepo) ExistsByUsername(ctx context.Context, username string) (bool, error) {
	var exists bool

	err := r.observe("users.exists_by_username", func() error {
		return r.pool.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM users WHERE username = $1)`, username).Scan(&exists)
	})

	return exists, err
}

func (r *UsersRepo) Create(ctx context.Context, u user.User) error {
	return r.observe("users.create", func() error {
		_, err := r.pool.Exec(ctx,
			`INSERT INTO users (id, name, username, email, password_hash, role, is_active, last_login, created_at, updated_at)
			 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
			u.ID, u.Name, u.Username, u.Email, u.PasswordHash, u.Role, u.IsActive, u.LastLogin, u.CreatedAt, u.UpdatedAt)

		return err
	})
}

func (r *UsersRepo) UpdateLastLogin(ctx context.Context, id string, at time.Time) error {
	return r.observe("users.update_last_login", func() error {
		_, err := r.pool.Exec(ctx,
			`UPDATE users SET last_login = $2, updated_at = NOW() WHERE id = $1`, id, at)

		return err
	})
}

func (r *UsersRepo) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	return r.observe("users.update_password", func() error {
		tag, err := r.pool.Exec(ctx,
			`UPDATE users SET password_hash = $2, updated_at = NOW() WHERE id = $1`, id, passwordHash)

		if err != nil {
			return err
		}

		if tag.RowsAffected() == 0 {
			return user.ErrNotFound
		}

		return nil
	})
}

// Update applies the provided fields only. Constraint violations (bad
// role, duplicate email/username) come back as raw store errors; the
// handler maps those to a generic store failure, not a 422.
func (r *UsersRepo) Update(ctx context.Context, id string, req user.UpdateUserRequest) (user.User, error) {
	sets := []string{"updated_at = NOW()"}
	args := []interface{}{id}

	argsPosition := 2

	if req.Name != nil {
		sets = append(sets, fmt.Sprintf("name = $%d", argsPosition))
		args = append(args, *req.Name)
		argsPosition++
	}

	if req.Username != nil {
		sets = append(sets, fmt.Sprintf("username = $%d", argsPosition))
		args = append(args, *req.Username)
		argsPosition++
	}

	if req.Email != nil {
		sets = append(sets, fmt.Sprintf("email = $%d", argsPosition))
		args = append(args, strings.ToLower(*req.Email))
		argsPosition++
	}

	if req.Role != nil {
		sets = append(sets, fmt.Sprintf("role = $%d", argsPosition))
		args = append(args, *req.Role)
		argsPosition++
	}

	query := `UPDATE users SET ` + strings.Join(sets, ", ") +
		` WHERE id = $1 RETURNING ` + userColumns

	var u user.User

	err := r.observe("users.update", func() error {
		var err error
		u, err = scanUser(r.pool.QueryRow(ctx, query, args...))
		return err
	})

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return user.User{}, user.ErrNotFound
		}

		return user.User{}, err
	}

	return u, nil
}

func (r *UsersRepo) SetRole(ctx context.Context, id, role string) (user.User, error) {
	var u user.User

	err := r.observe("users.set_role", func() error {
		var err error
		u, err = scanUser(r.pool.QueryRow(ctx,
			`UPDATE users SET role = $2, updated_at = NOW() WHERE id = $1 RETURNING `+userColumns,
			id, role))
		return err
	})

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return user.User{}, user.ErrNotFound
		}

		return user.User{}, err
	}

	return u, nil
}

// Delete removes the row and returns what was deleted, mirroring a
// find-and-delete in one round trip.
func (r *UsersRepo) Delete(ctx context.Context, id string) (user.User, error) {
	var u user.User

	err := r.observe("users.delete", func() error {
		var err error
		u, err = scanUser(r.pool.QueryRow(ctx,
			`DELETE FROM users WHERE id = $1 RETURNING `+userColumns, id))
		return err
	})

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return user.User{}, user.ErrNotFound
		}

		return user.User{}, err
	}

	return u, nil
}
