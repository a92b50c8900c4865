// internal/domain/auth/entity.go
package auth

import (
	"database/sql"
	"time"
)

// Role is the ordered application role. Ranks compare numerically: a caller
// authorizes an action iff its rank is at least the required rank.
type Role string

const (
	RoleViewer   Role = "viewer"
	RoleOperator Role = "operator"
	RoleAdmin    Role = "admin"
)

var roleRanks = map[Role]int{
	RoleViewer:   1,
	RoleOperator: 2,
	RoleAdmin:    3,
}

// Rank returns the numeric rank of the role, 0 for unknown roles.
func (r Role) Rank() int {
	return roleRanks[r]
}

// Valid reports whether the role is one of the known roles.
func (r Role) Valid() bool {
	return roleRanks[r] != 0
}

// AtLeast reports whether the role's rank meets the required role's rank.
func (r Role) AtLeast(required Role) bool {
	return r.Rank() >= required.Rank()
}

// Identity represents the core user identity
type Identity struct {
	ID                  int64          `json:"id" db:"id"`
	Email               sql.NullString `json:"email" db:"email"`
	Status              string         `json:"status" db:"status"` // active, inactive, suspended
	PasswordHash        sql.NullString `json:"-" db:"password_hash"`
	LastLogin           sql.NullTime   `json:"last_login" db:"last_login"`
	FailedLoginAttempts int            `json:"-" db:"failed_login_attempts"`
	LockedUntil         sql.NullTime   `json:"-" db:"locked_until"`
	CreatedAt           time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt           time.Time      `json:"updated_at" db:"updated_at"`
	DeletedAt           sql.NullTime   `json:"-" db:"deleted_at"`
}

// UserProfile is the durable application-level user record. A session whose
// subject has no active profile must not authorize protected actions.
type UserProfile struct {
	ID          int64     `json:"id" db:"id"`
	IdentityID  int64     `json:"identity_id" db:"identity_id"`
	DisplayName string    `json:"display_name" db:"display_name"`
	Role        Role      `json:"role" db:"role"`
	Active      bool      `json:"active" db:"active"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`
}

// Session represents a user session row
type Session struct {
	ID             int64          `json:"id" db:"id"`
	IdentityID     int64          `json:"identity_id" db:"identity_id"`
	SessionToken   string         `json:"-" db:"session_token"` // access JTI
	RefreshToken   sql.NullString `json:"-" db:"refresh_token"` // refresh JTI
	IPAddress      sql.NullString `json:"ip_address" db:"ip_address"`
	UserAgent      sql.NullString `json:"user_agent" db:"user_agent"`
	Status         string         `json:"status" db:"status"` // active, expired, revoked
	LoginAt        time.Time      `json:"login_at" db:"login_at"`
	LastActivityAt time.Time      `json:"last_activity_at" db:"last_activity_at"`
	ExpiresAt      time.Time      `json:"expires_at" db:"expires_at"`
	LogoutAt       sql.NullTime   `json:"logout_at" db:"logout_at"`
}
