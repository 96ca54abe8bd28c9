package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/clinicride/escort-booking/internal/model"
)

// UserRepo reads accounts.  Accounts are written by the identity
// service, never here.
type UserRepo struct{ DB *sql.DB }

func NewUserRepo(db *sql.DB) *UserRepo { return &UserRepo{DB: db} }

// GetByID fetches an account by id or returns ErrNotFound.
func (r *UserRepo) GetByID(ctx context.Context, id string) (*model.User, error) {
	var (
		u             model.User
		role          string
		email, mobile sql.NullString
	)
	err := r.DB.QueryRowContext(ctx,
		"SELECT id, full_name, email, mobile, role, created_at FROM users WHERE id = ? LIMIT 1",
		id).Scan(&u.ID, &u.FullName, &email, &mobile, &role, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	u.Email = nullString(email)
	u.Mobile = nullString(mobile)
	u.Role = model.Role(role)
	u.CreatedAt = u.CreatedAt.UTC()
	return &u, nil
}
