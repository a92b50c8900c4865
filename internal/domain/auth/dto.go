// internal/domain/auth/dto.go
package auth

import "time"

// RegisterRequest for user registration
type RegisterRequest struct {
	Email       string `json:"email" binding:"required,email"`
	Password    string `json:"password" binding:"required,min=8"`
	DisplayName string `json:"display_name" binding:"required"`
	IPAddress   string `json:"-"`
	UserAgent   string `json:"-"`
}

// LoginRequest for user login
type LoginRequest struct {
	Email     string `json:"email" binding:"required,email"`
	Password  string `json:"password" binding:"required"`
	IPAddress string `json:"-"`
	UserAgent string `json:"-"`
}

// RefreshRequest exchanges a refresh token for a fresh token pair
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

// LogoutRequest selects the sign-out scope
type LogoutRequest struct {
	Scope string `json:"scope"` // local (default) or global
}

// LoginResponse successful login/refresh response
type LoginResponse struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	TokenType    string    `json:"token_type"`
	ExpiresIn    int       `json:"expires_in"`
	ExpiresAt    time.Time `json:"expires_at"`
	User         UserInfo  `json:"user"`
}

// EventKind identifies a pushed auth-state event.
type EventKind string

const (
	EventSignedIn       EventKind = "SIGNED_IN"
	EventSignedOut      EventKind = "SIGNED_OUT"
	EventTokenRefreshed EventKind = "TOKEN_REFRESHED"
	EventUserUpdated    EventKind = "USER_UPDATED"
)

// SessionPayload is the token material carried by auth events and token
// responses. It is what a client holds as its in-memory session.
type SessionPayload struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	SubjectID    int64     `json:"subject_id"`
	IssuedAt     time.Time `json:"issued_at"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// AuthEvent is pushed asynchronously over the event subscription. Events may
// arrive duplicated or out of order relative to in-flight requests;
// consumers must de-duplicate.
type AuthEvent struct {
	Kind      EventKind       `json:"kind"`
	SubjectID int64           `json:"subject_id,omitempty"`
	Session   *SessionPayload `json:"session,omitempty"`
}

// UserInfo minimal user information
type UserInfo struct {
	IdentityID  int64  `json:"identity_id"`
	Email       string `json:"email"`
	DisplayName string `json:"display_name"`
	Role        Role   `json:"role"`
	Active      bool   `json:"active"`
}
