package types

import "time"

// Role is the platform-wide authorization role of a user.
type Role string

// Supported roles.
const (
	// RoleOwner submits accounts for management and keeps update rights over them.
	RoleOwner Role = "owner"

	// RoleManager executes tasks against accounts it is assigned to.
	RoleManager Role = "manager"

	// RoleAdmin has platform-wide override authority.
	RoleAdmin Role = "admin"
)

// Roles lists every valid role.
var Roles = []Role{RoleOwner, RoleManager, RoleAdmin}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleOwner, RoleManager, RoleAdmin:
		return true
	default:
		return false
	}
}

// CanManage reports whether a user with this role may be assigned as the
// manager of an account or the assignee of a task.
func (r Role) CanManage() bool {
	return r == RoleManager || r == RoleAdmin
}

// UserStatus is the lifecycle state of a user.
type UserStatus string

// Supported user statuses.
const (
	// UserPending is the state of every freshly registered user.
	UserPending UserStatus = "pending"

	// UserActive users may log in.
	UserActive UserStatus = "active"

	// UserSuspended users are locked out until an admin reactivates them.
	UserSuspended UserStatus = "suspended"
)

// UserStatuses lists every valid user status.
var UserStatuses = []UserStatus{UserPending, UserActive, UserSuspended}

// Valid reports whether s is one of the known user statuses.
func (s UserStatus) Valid() bool {
	switch s {
	case UserPending, UserActive, UserSuspended:
		return true
	default:
		return false
	}
}

// User represents a platform user.
// It contains identity, role, lifecycle state and audit metadata.
type User struct {
	// ID is the unique identifier of the user.
	ID int `json:"id" db:"id"`

	// Email is the unique login address, compared exactly as stored.
	Email string `json:"email" db:"email"`

	// PasswordHash stores the bcrypt hash of the user's password.
	// This field is never exposed in API responses.
	PasswordHash string `json:"-" db:"password"`

	// Role indicates the user's authorization level.
	Role Role `json:"role" db:"role"`

	// Status is the lifecycle state; only active users may log in.
	Status UserStatus `json:"status" db:"status"`

	// CreatedAt is the timestamp when the user was created.
	CreatedAt time.Time `json:"created_at" db:"created_at"`

	// UpdatedAt is the timestamp of the most recent update to the user.
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// UserUpdate is a partial update of a user. Nil fields are left unchanged.
// Password carries the plain-text value; it is hashed before persistence.
type UserUpdate struct {
	Email    *string     `json:"email,omitempty"`
	Password *string     `json:"password,omitempty"`
	Role     *Role       `json:"role,omitempty"`
	Status   *UserStatus `json:"status,omitempty"`
}

// Empty reports whether the update touches no field.
func (u UserUpdate) Empty() bool {
	return u.Email == nil && u.Password == nil && u.Role == nil && u.Status == nil
}

// UserFilter narrows user listings.
type UserFilter struct {
	Role   *Role
	Status *UserStatus
	Limit  int
	Offset int
}

// UserChanges is the persistence-level form of UserUpdate, with the
// password already hashed.
type UserChanges struct {
	Email        *string
	PasswordHash *string
	Role         *Role
	Status       *UserStatus
}
