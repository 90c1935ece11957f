package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"

	"imagegen/internal/model"
	"imagegen/internal/repository"
)

const uniqueViolation = "23505"

// UserPostgres is a PostgreSQL implementation of repository.UserRepository.
type UserPostgres struct {
	db *sql.DB
}

// NewUserPostgres creates a new UserPostgres repository.
func NewUserPostgres(db *sql.DB) *UserPostgres {
	return &UserPostgres{db: db}
}

var _ repository.UserRepository = (*UserPostgres)(nil)

const userColumns = `id, email, name, password_hash, created_at, updated_at`

func (r *UserPostgres) Create(ctx context.Context, u *model.User) (*model.User, error) {
	const q = `
		INSERT INTO users (id, email, name, password_hash, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING ` + userColumns
	row := r.db.QueryRowContext(ctx, q,
		u.ID,
		u.Email,
		u.Name,
		u.PasswordHash,
		u.CreatedAt,
		u.UpdatedAt,
	)
	var out model.User
	if err := scanUser(row, &out); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return nil, repository.ErrDuplicate
		}
		return nil, err
	}
	return &out, nil
}

func (r *UserPostgres) FindByID(ctx context.Context, id string) (*model.User, error) {
	const q = `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	var u model.User
	if err := scanUser(r.db.QueryRowContext(ctx, q, id), &u); err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *UserPostgres) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	const q = `SELECT ` + userColumns + ` FROM users WHERE lower(email) = lower($1)`
	var u model.User
	if err := scanUser(r.db.QueryRowContext(ctx, q, email), &u); err != nil {
		return nil, err
	}
	return &u, nil
}

// UpdateName sets the profile name and bumps updated_at.
func (r *UserPostgres) UpdateName(ctx context.Context, id, name string) (*model.User, error) {
	const q = `
		UPDATE users SET name = $2, updated_at = now()
		WHERE id = $1
		RETURNING ` + userColumns
	var u model.User
	if err := scanUser(r.db.QueryRowContext(ctx, q, id, name), &u); err != nil {
		return nil, err
	}
	return &u, nil
}

func scanUser(s scanner, u *model.User) error {
	return s.Scan(
		&u.ID,
		&u.Email,
		&u.Name,
		&u.PasswordHash,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
}
