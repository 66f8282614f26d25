package roles

import "time"

// Role represents a named permission bundle.
type Role struct {
	ID          int64
	Name        string
	Description string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Membership links a user to a role and records who assigned it.
type Membership struct {
	UserID     int64
	RoleID     int64
	AssignedAt time.Time
	AssignedBy int64
}

// RolePermission links a role to a permission code. Role grants are additive
// only; denies exist solely at the user and resource tiers.
type RolePermission struct {
	RoleID       int64
	PermissionID int64
	Code         string
	GrantedAt    time.Time
	GrantedBy    int64
}
