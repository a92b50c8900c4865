// internal/pkg/sessioncache/types.go
package sessioncache

import (
	"time"

	"glasstrace-service/internal/domain/auth"
)

// CachedSession is the Redis-resident projection of an authenticated user
// session, keyed by identity and access-token JTI.
type CachedSession struct {
	JTI            string    `json:"jti"`
	IdentityID     int64     `json:"identity_id"`
	SessionID      int64     `json:"session_id"` // DB session ID
	Email          string    `json:"email"`
	Role           auth.Role `json:"role"`
	IPAddress      string    `json:"ip_address,omitempty"`
	UserAgent      string    `json:"user_agent,omitempty"`
	LoginAt        time.Time `json:"login_at"`
	LastActivityAt time.Time `json:"last_activity_at"`
	ExpiresAt      time.Time `json:"expires_at"`
	IsActive       bool      `json:"is_active"`
}
