package users

import "time"

// User represents an account. Deactivation is the soft delete: the row stays
// for audit history while every permission check denies.
type User struct {
	ID           int64
	Email        string
	Name         string
	IsActive     bool
	IsStaff      bool
	IsSuperuser  bool
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
