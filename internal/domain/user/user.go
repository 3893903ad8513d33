package user

import (
	"errors"
	"time"
)

var ErrNotFound = errors.New("user not found")

// Roles a user can hold. Employee is the default for new accounts.
const (
	RoleAdmin    = "admin"
	RoleManager  = "manager"
	RoleEmployee = "employee"
)

func IsValidRole(role string) bool {
	switch role {
	case RoleAdmin, RoleManager, RoleEmployee:
		return true
	}
	return false
}

type User struct {
	ID           string     `json:"id"`
	Name         string     `json:"name"`
	Username     string     `json:"username"`
	Email        string     `json:"email"`
	PasswordHash string     `json:"-"` // never expose hash in JSON
	Role         string     `json:"role"`
	IsActive     bool       `json:"isActive"`
	LastLogin    *time.Time `json:"lastLogin"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
}

// Public is the outward-facing projection of a user. The password hash
// never leaves the process, not even on the admin surface.
type Public struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Username  string     `json:"username"`
	Email     string     `json:"email"`
	Role      string     `json:"role"`
	LastLogin *time.Time `json:"lastLogin,omitempty"`
}

func (u User) Public() Public {
	return Public{
		ID:        u.ID,
		Name:      u.Name,
		Username:  u.Username,
		Email:     u.Email,
		Role:      u.Role,
		LastLogin: u.LastLogin,
	}
}

type CreateUserRequest struct {
	Name     string `json:"name" binding:"required"`
	Username string `json:"username" binding:"required"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,userpassword"`
	Role     string `json:"role" binding:"omitempty,oneof=admin manager employee"`
}

type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required,userpassword"`
}

// UpdateUserRequest carries the mutable profile fields. Pointers so a
// partial update can tell "absent" from "set to zero value".
// Role is not range-checked here: a bad role on update is rejected by
// the table CHECK constraint at write time and surfaces as a store
// error, which is what existing clients expect.
type UpdateUserRequest struct {
	Name     *string `json:"name"`
	Username *string `json:"username"`
	Email    *string `json:"email" binding:"omitempty,email"`
	Role     *string `json:"role"`
}

type ChangePasswordRequest struct {
	CurrentPassword string `json:"currentPassword" binding:"required"`
	NewPassword     string `json:"newPassword" binding:"required,userpassword"`
}

type SetRoleRequest struct {
	Role string `json:"role" binding:"required,oneof=admin manager employee"`
}
