package domain

import (
	"errors"

	"github.com/google/uuid"
)

// User view validation errors
var (
	// ErrUserIDEmpty is returned when a user ID is empty or nil.
	ErrUserIDEmpty = errors.New("user ID cannot be empty")
)

// UserRole is a user's platform-wide role, as reported by the user directory.
type UserRole string

// Global user roles.
const (
	UserRoleAdmin     UserRole = "admin"
	UserRoleManager   UserRole = "manager"
	UserRoleDeveloper UserRole = "developer"
	UserRoleViewer    UserRole = "viewer"
)

// UserView is the projection of a user record that the user directory returns
// on cross-service lookups. User records themselves are owned by the user
// service; this package never mutates them.
type UserView struct {
	ID       uuid.UUID `json:"id"`
	Name     string    `json:"name"`
	Email    string    `json:"email"`
	Role     UserRole  `json:"role"`
	IsActive bool      `json:"is_active"`
}

// Validate checks if the UserView has valid data.
func (u *UserView) Validate() error {
	if u.ID == uuid.Nil {
		return ErrUserIDEmpty
	}
	return nil
}
