// internal/repository/postgres/auth_repo.go
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"glasstrace-service/internal/domain/auth"
	xerrors "glasstrace-service/internal/pkg/errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type AuthRepository struct {
	db *pgxpool.Pool
}

func NewAuthRepository(db *pgxpool.Pool) *AuthRepository {
	return &AuthRepository{db: db}
}

// ========== Identity Methods ==========

// CreateIdentity inserts a new identity with its password hash
func (r *AuthRepository) CreateIdentity(ctx context.Context, identity *auth.Identity) error {
	query := `
		INSERT INTO identities (email, status, password_hash, created_at, updated_at)
		VALUES ($1, $2, $3, NOW(), NOW())
		RETURNING id, created_at, updated_at
	`

	err := r.db.QueryRow(ctx, query,
		identity.Email, identity.Status, identity.PasswordHash,
	).Scan(&identity.ID, &identity.CreatedAt, &identity.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create identity: %w", err)
	}

	return nil
}

// FindIdentityByEmail retrieves an identity by email
func (r *AuthRepository) FindIdentityByEmail(ctx context.Context, email string) (*auth.Identity, error) {
	query := `
		SELECT id, email, status, password_hash, last_login,
		       failed_login_attempts, locked_until,
		       created_at, updated_at, deleted_at
		FROM identities
		WHERE LOWER(email) = LOWER($1) AND deleted_at IS NULL
	`

	var identity auth.Identity
	err := r.db.QueryRow(ctx, query, email).Scan(
		&identity.ID, &identity.Email, &identity.Status, &identity.PasswordHash,
		&identity.LastLogin, &identity.FailedLoginAttempts, &identity.LockedUntil,
		&identity.CreatedAt, &identity.UpdatedAt, &identity.DeletedAt,
	)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, xerrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find identity: %w", err)
	}

	return &identity, nil
}

// FindIdentityByID retrieves an identity by ID
func (r *AuthRepository) FindIdentityByID(ctx context.Context, id int64) (*auth.Identity, error) {
	query := `
		SELECT id, email, status, password_hash, last_login,
		       failed_login_attempts, locked_until,
		       created_at, updated_at, deleted_at
		FROM identities
		WHERE id = $1 AND deleted_at IS NULL
	`

	var identity auth.Identity
	err := r.db.QueryRow(ctx, query, id).Scan(
		&identity.ID, &identity.Email, &identity.Status, &identity.PasswordHash,
		&identity.LastLogin, &identity.FailedLoginAttempts, &identity.LockedUntil,
		&identity.CreatedAt, &identity.UpdatedAt, &identity.DeletedAt,
	)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, xerrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find identity: %w", err)
	}

	return &identity, nil
}

// ExistsByEmail checks whether an identity exists for the email
func (r *AuthRepository) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM identities WHERE LOWER(email) = LOWER($1) AND deleted_at IS NULL)`

	var exists bool
	if err := r.db.QueryRow(ctx, query, email).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check email: %w", err)
	}
	return exists, nil
}

// UpdateIdentityLastLogin stamps the last login and clears failed attempts
func (r *AuthRepository) UpdateIdentityLastLogin(ctx context.Context, id int64) error {
	query := `
		UPDATE identities
		SET last_login = NOW(), failed_login_attempts = 0, locked_until = NULL, updated_at = NOW()
		WHERE id = $1
	`

	if _, err := r.db.Exec(ctx, query, id); err != nil {
		return fmt.Errorf("failed to update last login: %w", err)
	}
	return nil
}

// IncrementFailedLoginAttempts bumps the counter and locks the account for
// lockDuration once it passes 5 attempts
func (r *AuthRepository) IncrementFailedLoginAttempts(ctx context.Context, id int64, lockDuration time.Duration) error {
	query := `
		UPDATE identities
		SET failed_login_attempts = failed_login_attempts + 1,
		    locked_until = CASE WHEN failed_login_attempts + 1 >= 5 THEN NOW() + $2::interval ELSE locked_until END,
		    updated_at = NOW()
		WHERE id = $1
	`

	if _, err := r.db.Exec(ctx, query, id, lockDuration.String()); err != nil {
		return fmt.Errorf("failed to increment login attempts: %w", err)
	}
	return nil
}

// ========== Profile Methods ==========

// CreateUserProfile inserts a profile for an identity
func (r *AuthRepository) CreateUserProfile(ctx context.Context, profile *auth.UserProfile) error {
	query := `
		INSERT INTO user_profiles (identity_id, display_name, role, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, NOW(), NOW())
		RETURNING id, created_at, updated_at
	`

	err := r.db.QueryRow(ctx, query,
		profile.IdentityID, profile.DisplayName, profile.Role, profile.Active,
	).Scan(&profile.ID, &profile.CreatedAt, &profile.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create profile: %w", err)
	}

	return nil
}

// GetUserProfile retrieves the profile owned by an identity
func (r *AuthRepository) GetUserProfile(ctx context.Context, identityID int64) (*auth.UserProfile, error) {
	query := `
		SELECT id, identity_id, display_name, role, active, created_at, updated_at
		FROM user_profiles
		WHERE identity_id = $1
	`

	var profile auth.UserProfile
	err := r.db.QueryRow(ctx, query, identityID).Scan(
		&profile.ID, &profile.IdentityID, &profile.DisplayName,
		&profile.Role, &profile.Active, &profile.CreatedAt, &profile.UpdatedAt,
	)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, xerrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}

	return &profile, nil
}

// ========== Session Methods ==========

// CreateSession inserts a new session row
func (r *AuthRepository) CreateSession(ctx context.Context, session *auth.Session) error {
	query := `
		INSERT INTO user_sessions (identity_id, session_token, refresh_token, ip_address,
		                           user_agent, status, login_at, last_activity_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, 'active', NOW(), NOW(), $6)
		RETURNING id, login_at, last_activity_at
	`

	err := r.db.QueryRow(ctx, query,
		session.IdentityID, session.SessionToken, session.RefreshToken,
		session.IPAddress, session.UserAgent, session.ExpiresAt,
	).Scan(&session.ID, &session.LoginAt, &session.LastActivityAt)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}

	return nil
}

// FindSessionByToken retrieves a session by its access JTI
func (r *AuthRepository) FindSessionByToken(ctx context.Context, jti string) (*auth.Session, error) {
	return r.findSession(ctx, `session_token = $1`, jti)
}

// FindSessionByRefreshToken retrieves a session by its refresh JTI
func (r *AuthRepository) FindSessionByRefreshToken(ctx context.Context, refreshJTI string) (*auth.Session, error) {
	return r.findSession(ctx, `refresh_token = $1`, refreshJTI)
}

func (r *AuthRepository) findSession(ctx context.Context, where string, arg any) (*auth.Session, error) {
	query := `
		SELECT id, identity_id, session_token, refresh_token, ip_address, user_agent,
		       status, login_at, last_activity_at, expires_at, logout_at
		FROM user_sessions
		WHERE ` + where

	var session auth.Session
	err := r.db.QueryRow(ctx, query, arg).Scan(
		&session.ID, &session.IdentityID, &session.SessionToken, &session.RefreshToken,
		&session.IPAddress, &session.UserAgent, &session.Status,
		&session.LoginAt, &session.LastActivityAt, &session.ExpiresAt, &session.LogoutAt,
	)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, xerrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find session: %w", err)
	}

	return &session, nil
}

// RotateSessionTokens replaces the token pair of a session after a refresh
func (r *AuthRepository) RotateSessionTokens(ctx context.Context, sessionID int64, accessJTI, refreshJTI string, expiresAt time.Time) error {
	query := `
		UPDATE user_sessions
		SET session_token = $2, refresh_token = $3, expires_at = $4, last_activity_at = NOW()
		WHERE id = $1 AND status = 'active'
	`

	tag, err := r.db.Exec(ctx, query, sessionID, accessJTI, refreshJTI, expiresAt)
	if err != nil {
		return fmt.Errorf("failed to rotate session tokens: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return xerrors.ErrSessionExpired
	}
	return nil
}

// UpdateSessionActivity stamps last activity on a session
func (r *AuthRepository) UpdateSessionActivity(ctx context.Context, sessionID int64) error {
	query := `UPDATE user_sessions SET last_activity_at = NOW() WHERE id = $1`

	if _, err := r.db.Exec(ctx, query, sessionID); err != nil {
		return fmt.Errorf("failed to update session activity: %w", err)
	}
	return nil
}

// InvalidateSession revokes a single session
func (r *AuthRepository) InvalidateSession(ctx context.Context, sessionID int64) error {
	query := `
		UPDATE user_sessions
		SET status = 'revoked', logout_at = NOW()
		WHERE id = $1 AND status = 'active'
	`

	if _, err := r.db.Exec(ctx, query, sessionID); err != nil {
		return fmt.Errorf("failed to invalidate session: %w", err)
	}
	return nil
}

// InvalidateAllUserSessions revokes every active session of an identity
func (r *AuthRepository) InvalidateAllUserSessions(ctx context.Context, identityID int64) error {
	query := `
		UPDATE user_sessions
		SET status = 'revoked', logout_at = NOW()
		WHERE identity_id = $1 AND status = 'active'
	`

	if _, err := r.db.Exec(ctx, query, identityID); err != nil {
		return fmt.Errorf("failed to invalidate sessions: %w", err)
	}
	return nil
}
