package grants

import "time"

// UserPermission is a direct allow/deny override for one user, applying to
// every resource instance of the permission's code.
type UserPermission struct {
	ID           int64
	UserID       int64
	PermissionID int64
	Code         string
	IsGranted    bool
	GrantedAt    time.Time
	GrantedBy    int64
}

// ResourcePermission is the finest-grained override, scoped to a single
// (resourceType, resourceID) instance.
type ResourcePermission struct {
	ID           int64
	UserID       int64
	ResourceType string
	ResourceID   string
	PermissionID int64
	Code         string
	IsGranted    bool
	GrantedAt    time.Time
	GrantedBy    int64
}

// Lookup is the result of a single override probe: Found=false means the
// tier abstains and the decision falls through.
type Lookup struct {
	Found     bool
	IsGranted bool
}
