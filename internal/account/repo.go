package account

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"attendx/internal/store"
)

// Repository persists users in Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

const userColumns = `id, name, roll_no, phone, password_hash, role, dept, section, created_at`

// CreateUser inserts a new user, failing with ErrDuplicateRollNo on a taken roll number.
func (r *Repository) CreateUser(ctx context.Context, u *User) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO users (id, name, roll_no, phone, password_hash, role, dept, section)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		RETURNING created_at
	`, u.ID, u.Name, u.RollNo, u.Phone, u.PasswordHash, string(u.Role), u.Dept, u.Section)
	if err := row.Scan(&u.CreatedAt); err != nil {
		if store.IsUniqueViolation(err, "") {
			return ErrDuplicateRollNo
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

// UpsertUser creates or replaces the user with u.RollNo.
func (r *Repository) UpsertUser(ctx context.Context, u *User) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO users (id, name, roll_no, phone, password_hash, role, dept, section)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		ON CONFLICT (roll_no) DO UPDATE SET
			name = EXCLUDED.name,
			phone = EXCLUDED.phone,
			password_hash = EXCLUDED.password_hash,
			role = EXCLUDED.role,
			dept = COALESCE(NULLIF(EXCLUDED.dept, ''), users.dept),
			section = COALESCE(NULLIF(EXCLUDED.section, ''), users.section),
			updated_at = NOW()
		RETURNING id, created_at
	`, u.ID, u.Name, u.RollNo, u.Phone, u.PasswordHash, string(u.Role), u.Dept, u.Section)
	if err := row.Scan(&u.ID, &u.CreatedAt); err != nil {
		return fmt.Errorf("upsert user: %w", err)
	}
	return nil
}

// UserByID returns a single user by storage id.
func (r *Repository) UserByID(ctx context.Context, id string) (*User, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, nil
	}
	return r.one(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
}

// UserByRollNo returns a single user by roll number.
func (r *Repository) UserByRollNo(ctx context.Context, rollNo string) (*User, error) {
	return r.one(ctx, `SELECT `+userColumns+` FROM users WHERE roll_no = $1`, rollNo)
}

// UsersByRole lists users holding role, ordered by roll number.
func (r *Repository) UsersByRole(ctx context.Context, role Role) ([]User, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+userColumns+` FROM users WHERE role = $1 ORDER BY roll_no`, string(role))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, *u)
	}
	return users, rows.Err()
}

// UpdatePassword stores a new hash for the user.
func (r *Repository) UpdatePassword(ctx context.Context, id, hash string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE users SET password_hash = $2, updated_at = $3 WHERE id = $1
	`, id, hash, time.Now().UTC())
	return err
}

func (r *Repository) one(ctx context.Context, query string, arg any) (*User, error) {
	u, err := scanUser(r.db.QueryRowContext(ctx, query, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return u, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanUser(s scanner) (*User, error) {
	var u User
	var role string
	if err := s.Scan(&u.ID, &u.Name, &u.RollNo, &u.Phone, &u.PasswordHash, &role, &u.Dept, &u.Section, &u.CreatedAt); err != nil {
		return nil, err
	}
	u.Role = Role(role)
	return &u, nil
}
