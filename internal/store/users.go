package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const userColumns = `id, email, password_hash, name, gender, age, marital_status, segment, region,
	nationality, is_active, created_at, updated_at`

// CreateUser inserts u, assigning its ID and timestamps. A taken email yields ErrDuplicate.
func (s *Store) CreateUser(ctx context.Context, u *User) error {
	now := time.Now().UTC()
	u.ID = uuid.NewString()
	u.Email = NormalizeEmail(u.Email)
	u.IsActive = true
	u.CreatedAt, u.UpdatedAt = now, now

	_, err := s.db.NamedExecContext(ctx, `INSERT INTO users (`+userColumns+`)
		VALUES (:id, :email, :password_hash, :name, :gender, :age, :marital_status, :segment, :region,
			:nationality, :is_active, :created_at, :updated_at)`, u)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("email %s: %w", u.Email, ErrDuplicate)
		}
		return fmt.Errorf("failed to insert user: %w", err)
	}
	return nil
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	var u User
	err := s.db.GetContext(ctx, &u, s.q(`SELECT `+userColumns+` FROM users WHERE email = ?`), NormalizeEmail(email))
	if err != nil {
		return nil, fmt.Errorf("failed to query user: %w", notFound(err))
	}
	return &u, nil
}

func (s *Store) GetUserByID(ctx context.Context, id string) (*User, error) {
	var u User
	err := s.db.GetContext(ctx, &u, s.q(`SELECT `+userColumns+` FROM users WHERE id = ?`), id)
	if err != nil {
		return nil, fmt.Errorf("failed to get user by id: %w", notFound(err))
	}
	return &u, nil
}

// UpdateUser writes the mutable profile fields of u.
func (s *Store) UpdateUser(ctx context.Context, u *User) error {
	u.UpdatedAt = time.Now().UTC()
	res, err := s.db.NamedExecContext(ctx, `UPDATE users SET name = :name, gender = :gender, age = :age,
		marital_status = :marital_status, segment = :segment, region = :region, nationality = :nationality,
		updated_at = :updated_at WHERE id = :id`, u)
	if err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return ErrNotFound
	}
	return nil
}

// DeactivateUser soft-deletes the account; its data stays in place.
func (s *Store) DeactivateUser(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, s.q(`UPDATE users SET is_active = ?, updated_at = ? WHERE id = ?`),
		false, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to deactivate user: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return ErrNotFound
	}
	return nil
}

func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
