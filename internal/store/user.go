package store

import (
	"context"
	"database/sql"
	"errors"

	"github.com/steward-platform/apiserver/types"
)

const userColumns = `id, email, password, role, status, created_at, updated_at`

// UserRepository handles persistence for users.
type UserRepository struct {
	db *sql.DB
}

func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (types.User, error) {
	var user types.User
	err := row.Scan(
		&user.ID,
		&user.Email,
		&user.PasswordHash,
		&user.Role,
		&user.Status,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	return user, err
}

func (r *UserRepository) GetByID(ctx context.Context, id int) (types.User, error) {
	const query = `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	user, err := scanUser(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.User{}, ErrNotFound
		}
		return types.User{}, err
	}
	return user, nil
}

// GetByEmail returns the user including its password hash.
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (types.User, error) {
	const query = `SELECT ` + userColumns + ` FROM users WHERE email = $1`
	user, err := scanUser(r.db.QueryRowContext(ctx, query, email))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.User{}, ErrNotFound
		}
		return types.User{}, err
	}
	return user, nil
}

func (r *UserRepository) Create(ctx context.Context, user types.User) (types.User, error) {
	const query = `
		INSERT INTO users (email, password, role, status)
		VALUES ($1, $2, $3, $4)
		RETURNING ` + userColumns
	created, err := scanUser(r.db.QueryRowContext(
		ctx,
		query,
		user.Email,
		user.PasswordHash,
		user.Role,
		user.Status,
	))
	if err != nil {
		return types.User{}, mapWriteError(err)
	}
	return created, nil
}

// Update applies the non-nil fields of changes and re-stamps updated_at.
func (r *UserRepository) Update(ctx context.Context, id int, changes types.UserChanges) (types.User, error) {
	var a args
	set := assignments{args: &a}
	if changes.Email != nil {
		set.set("email", *changes.Email)
	}
	if changes.PasswordHash != nil {
		set.set("password", *changes.PasswordHash)
	}
	if changes.Role != nil {
		set.set("role", *changes.Role)
	}
	if changes.Status != nil {
		set.set("status", *changes.Status)
	}
	set.setRaw("updated_at = NOW()")

	query := `UPDATE users SET ` + set.String() + ` WHERE id = ` + a.add(id) + ` RETURNING ` + userColumns
	user, err := scanUser(r.db.QueryRowContext(ctx, query, a...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.User{}, ErrNotFound
		}
		return types.User{}, mapWriteError(err)
	}
	return user, nil
}

func (r *UserRepository) Delete(ctx context.Context, id int) error {
	const query = `DELETE FROM users WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// List returns users matching filter, newest first.
func (r *UserRepository) List(ctx context.Context, filter types.UserFilter) ([]types.User, error) {
	var a args
	where := conditions{args: &a}
	if filter.Role != nil {
		where.eq("role", *filter.Role)
	}
	if filter.Status != nil {
		where.eq("status", *filter.Status)
	}

	query := `SELECT ` + userColumns + ` FROM users ` + where.String() +
		` ORDER BY created_at DESC, id DESC` + paginate(&a, filter.Limit, filter.Offset)
	rows, err := r.db.QueryContext(ctx, query, a...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]types.User, 0)
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

// ManagesAccounts reports whether any managed account names id as its manager.
func (r *UserRepository) ManagesAccounts(ctx context.Context, id int) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM managed_accounts WHERE manager_id = $1)`, id).Scan(&exists)
	return exists, err
}
