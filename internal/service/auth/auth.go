// internal/service/auth/auth.go
package auth

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"glasstrace-service/internal/domain/auth"
	xerrors "glasstrace-service/internal/pkg/errors"
	"glasstrace-service/internal/pkg/jwt"
	"glasstrace-service/internal/pkg/sessioncache"
	"glasstrace-service/internal/repository/postgres"
	ws "glasstrace-service/internal/websocket"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

type AuthService struct {
	authRepo    *postgres.AuthRepository
	jwtManager  *jwt.Manager
	cache       *sessioncache.Cache
	rateLimiter *sessioncache.RateLimiter
	hub         *ws.Hub
	logger      *zap.Logger
}

func NewAuthService(
	authRepo *postgres.AuthRepository,
	jwtManager *jwt.Manager,
	cache *sessioncache.Cache,
	rateLimiter *sessioncache.RateLimiter,
	hub *ws.Hub,
	logger *zap.Logger,
) *AuthService {
	return &AuthService{
		authRepo:    authRepo,
		jwtManager:  jwtManager,
		cache:       cache,
		rateLimiter: rateLimiter,
		hub:         hub,
		logger:      logger,
	}
}

// ========== Registration ==========

// Register creates a new user account. New accounts start as viewers; an
// admin promotes them afterwards.
func (s *AuthService) Register(ctx context.Context, req *auth.RegisterRequest) (*auth.LoginResponse, error) {
	exists, err := s.authRepo.ExistsByEmail(ctx, req.Email)
	if err != nil {
		return nil, fmt.Errorf("failed to check email: %w", err)
	}
	if exists {
		return nil, xerrors.ErrDuplicateEntry
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	identity := &auth.Identity{
		Email:        sql.NullString{String: req.Email, Valid: true},
		Status:       "active",
		PasswordHash: sql.NullString{String: string(hashedPassword), Valid: true},
	}

	if err := s.authRepo.CreateIdentity(ctx, identity); err != nil {
		return nil, fmt.Errorf("failed to create identity: %w", err)
	}

	profile := &auth.UserProfile{
		IdentityID:  identity.ID,
		DisplayName: req.DisplayName,
		Role:        auth.RoleViewer,
		Active:      true,
	}

	if err := s.authRepo.CreateUserProfile(ctx, profile); err != nil {
		return nil, fmt.Errorf("failed to create profile: %w", err)
	}

	// Auto-login after registration
	return s.loginWithIdentity(ctx, identity, profile, req.IPAddress, req.UserAgent)
}

// ========== Login ==========

// Login authenticates a user with email/password
func (s *AuthService) Login(ctx context.Context, req *auth.LoginRequest) (*auth.LoginResponse, error) {
	// Rate limiting
	allowed, remaining, err := s.rateLimiter.CheckLoginAttempt(ctx, req.IPAddress, req.Email)
	if err != nil {
		return nil, fmt.Errorf("rate limiter error: %w", err)
	}
	if !allowed {
		return nil, xerrors.ErrRateLimited
	}

	identity, err := s.authRepo.FindIdentityByEmail(ctx, req.Email)
	if err != nil {
		return nil, xerrors.ErrInvalidCredentials
	}

	if identity.Status != "active" {
		return nil, fmt.Errorf("account is %s", identity.Status)
	}
	if identity.LockedUntil.Valid && identity.LockedUntil.Time.After(time.Now()) {
		return nil, fmt.Errorf("account is temporarily locked until %s", identity.LockedUntil.Time.Format(time.RFC3339))
	}

	if err := bcrypt.CompareHashAndPassword([]byte(identity.PasswordHash.String), []byte(req.Password)); err != nil {
		s.authRepo.IncrementFailedLoginAttempts(ctx, identity.ID, 30*time.Minute)
		return nil, fmt.Errorf("%w (attempts remaining: %d)", xerrors.ErrInvalidCredentials, remaining)
	}

	profile, err := s.authRepo.GetUserProfile(ctx, identity.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}
	if !profile.Active {
		return nil, xerrors.ErrProfileInactive
	}

	if err := s.authRepo.UpdateIdentityLastLogin(ctx, identity.ID); err != nil {
		s.logger.Error("failed to update last login", zap.Error(err))
	}
	s.rateLimiter.ResetLoginAttempts(ctx, req.IPAddress, req.Email)

	resp, err := s.loginWithIdentity(ctx, identity, profile, req.IPAddress, req.UserAgent)
	if err != nil {
		return nil, err
	}

	s.hub.Publish(&auth.AuthEvent{
		Kind:      auth.EventSignedIn,
		SubjectID: identity.ID,
		Session:   sessionPayload(resp, identity.ID),
	})

	return resp, nil
}

// loginWithIdentity creates the session row, caches it, and mints tokens
func (s *AuthService) loginWithIdentity(ctx context.Context, identity *auth.Identity, profile *auth.UserProfile, ipAddress, userAgent string) (*auth.LoginResponse, error) {
	accessToken, accessJTI, err := s.jwtManager.Generator.GenerateAccessToken(identity.ID, string(profile.Role))
	if err != nil {
		return nil, fmt.Errorf("failed to generate access token: %w", err)
	}

	refreshToken, refreshJTI, err := s.jwtManager.Generator.GenerateRefreshToken(identity.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to generate refresh token: %w", err)
	}

	expiresAt := time.Now().Add(s.jwtManager.Generator.Ttl)

	dbSession := &auth.Session{
		IdentityID:   identity.ID,
		SessionToken: accessJTI,
		RefreshToken: sql.NullString{String: refreshJTI, Valid: true},
		IPAddress:    sql.NullString{String: ipAddress, Valid: ipAddress != ""},
		UserAgent:    sql.NullString{String: userAgent, Valid: userAgent != ""},
		ExpiresAt:    expiresAt,
	}

	if err := s.authRepo.CreateSession(ctx, dbSession); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	cached := &sessioncache.CachedSession{
		JTI:            accessJTI,
		IdentityID:     identity.ID,
		SessionID:      dbSession.ID,
		Email:          identity.Email.String,
		Role:           profile.Role,
		IPAddress:      ipAddress,
		UserAgent:      userAgent,
		LoginAt:        time.Now(),
		LastActivityAt: time.Now(),
		ExpiresAt:      expiresAt,
		IsActive:       true,
	}

	if err := s.cache.Put(ctx, cached); err != nil {
		s.logger.Warn("failed to cache session", zap.Error(err))
	}

	return &auth.LoginResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		TokenType:    "Bearer",
		ExpiresIn:    int(s.jwtManager.Generator.Ttl.Seconds()),
		ExpiresAt:    expiresAt,
		User: auth.UserInfo{
			IdentityID:  identity.ID,
			Email:       identity.Email.String,
			DisplayName: profile.DisplayName,
			Role:        profile.Role,
			Active:      profile.Active,
		},
	}, nil
}

// ========== Refresh ==========

// Refresh exchanges a refresh token for a fresh token pair, rotating the
// refresh token. A bad, expired or already-rotated refresh token is a
// credential error, never retried by clients.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*auth.LoginResponse, error) {
	claims, err := s.jwtManager.Verifier.VerifyRefreshToken(refreshToken)
	if err != nil {
		return nil, xerrors.ErrInvalidRefreshToken
	}

	dbSession, err := s.authRepo.FindSessionByRefreshToken(ctx, claims.ID)
	if err != nil || dbSession.Status != "active" {
		// Rotated-out or revoked refresh tokens land here.
		return nil, xerrors.ErrInvalidRefreshToken
	}

	identity, err := s.authRepo.FindIdentityByID(ctx, dbSession.IdentityID)
	if err != nil {
		return nil, xerrors.ErrInvalidRefreshToken
	}
	if identity.Status != "active" {
		return nil, xerrors.ErrInvalidRefreshToken
	}

	profile, err := s.authRepo.GetUserProfile(ctx, identity.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}
	if !profile.Active {
		return nil, xerrors.ErrProfileInactive
	}

	accessToken, accessJTI, err := s.jwtManager.Generator.GenerateAccessToken(identity.ID, string(profile.Role))
	if err != nil {
		return nil, fmt.Errorf("failed to generate access token: %w", err)
	}
	newRefreshToken, refreshJTI, err := s.jwtManager.Generator.GenerateRefreshToken(identity.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to generate refresh token: %w", err)
	}

	expiresAt := time.Now().Add(s.jwtManager.Generator.Ttl)

	oldJTI := dbSession.SessionToken
	if err := s.authRepo.RotateSessionTokens(ctx, dbSession.ID, accessJTI, refreshJTI, expiresAt); err != nil {
		return nil, fmt.Errorf("failed to rotate session: %w", err)
	}

	// Old access token stops validating the moment the rotation lands.
	s.cache.Invalidate(ctx, identity.ID, oldJTI)

	cached := &sessioncache.CachedSession{
		JTI:            accessJTI,
		IdentityID:     identity.ID,
		SessionID:      dbSession.ID,
		Email:          identity.Email.String,
		Role:           profile.Role,
		LoginAt:        dbSession.LoginAt,
		LastActivityAt: time.Now(),
		ExpiresAt:      expiresAt,
		IsActive:       true,
	}
	if err := s.cache.Put(ctx, cached); err != nil {
		s.logger.Warn("failed to cache refreshed session", zap.Error(err))
	}

	resp := &auth.LoginResponse{
		AccessToken:  accessToken,
		RefreshToken: newRefreshToken,
		TokenType:    "Bearer",
		ExpiresIn:    int(s.jwtManager.Generator.Ttl.Seconds()),
		ExpiresAt:    expiresAt,
		User: auth.UserInfo{
			IdentityID:  identity.ID,
			Email:       identity.Email.String,
			DisplayName: profile.DisplayName,
			Role:        profile.Role,
			Active:      profile.Active,
		},
	}

	s.hub.Publish(&auth.AuthEvent{
		Kind:      auth.EventTokenRefreshed,
		SubjectID: identity.ID,
		Session:   sessionPayload(resp, identity.ID),
	})

	return resp, nil
}

// ========== Logout ==========

// Logout invalidates the current session, or every session of the identity
// when scope is global
func (s *AuthService) Logout(ctx context.Context, identityID int64, jti, scope string) error {
	if scope == "global" {
		if err := s.authRepo.InvalidateAllUserSessions(ctx, identityID); err != nil {
			return fmt.Errorf("failed to invalidate sessions: %w", err)
		}
		if err := s.cache.InvalidateAll(ctx, identityID); err != nil {
			s.logger.Warn("failed to clear cached sessions", zap.Error(err))
		}
	} else {
		dbSession, err := s.authRepo.FindSessionByToken(ctx, jti)
		if err == nil {
			if err := s.authRepo.InvalidateSession(ctx, dbSession.ID); err != nil {
				return fmt.Errorf("failed to invalidate session: %w", err)
			}
		}
		s.cache.Invalidate(ctx, identityID, jti)
	}

	remainingTTL := s.jwtManager.Generator.Ttl
	if err := s.cache.BlacklistToken(ctx, jti, remainingTTL); err != nil {
		s.logger.Warn("failed to blacklist token", zap.Error(err))
	}

	s.hub.Publish(&auth.AuthEvent{
		Kind:      auth.EventSignedOut,
		SubjectID: identityID,
	})

	return nil
}

// ========== Validation ==========

// ValidateToken validates an access token against signature, blacklist and
// the session record
func (s *AuthService) ValidateToken(ctx context.Context, token string) (*jwt.Claims, error) {
	claims, err := s.jwtManager.Verifier.VerifyAccessToken(token)
	if err != nil {
		return nil, fmt.Errorf("invalid token: %w", err)
	}

	blacklisted, err := s.cache.IsTokenBlacklisted(ctx, claims.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to check blacklist: %w", err)
	}
	if blacklisted {
		return nil, xerrors.ErrSessionExpired
	}

	// Cache first; fall back to the session row when Redis has evicted it.
	if _, err := s.cache.Get(ctx, claims.SubjectID, claims.ID); err == nil {
		return claims, nil
	}

	dbSession, err := s.authRepo.FindSessionByToken(ctx, claims.ID)
	if err != nil || dbSession.Status != "active" || dbSession.ExpiresAt.Before(time.Now()) {
		return nil, xerrors.ErrSessionExpired
	}
	if dbSession.IdentityID != claims.SubjectID {
		return nil, xerrors.ErrUnauthorized
	}

	return claims, nil
}

// GetSessionByToken resolves the session row backing an access JTI.
func (s *AuthService) GetSessionByToken(ctx context.Context, jti string) (*auth.Session, error) {
	return s.authRepo.FindSessionByToken(ctx, jti)
}

// ========== Profile ==========

// GetProfile retrieves a user profile by subject identity
func (s *AuthService) GetProfile(ctx context.Context, identityID int64) (*auth.UserProfile, error) {
	profile, err := s.authRepo.GetUserProfile(ctx, identityID)
	if err != nil {
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}
	return profile, nil
}

// ========== Helpers ==========

func sessionPayload(resp *auth.LoginResponse, subjectID int64) *auth.SessionPayload {
	return &auth.SessionPayload{
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
		SubjectID:    subjectID,
		IssuedAt:     resp.ExpiresAt.Add(-time.Duration(resp.ExpiresIn) * time.Second),
		ExpiresAt:    resp.ExpiresAt,
	}
}
