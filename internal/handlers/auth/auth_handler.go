// internal/handlers/auth/auth_handler.go
package auth

import (
	"errors"
	"net/http"

	"glasstrace-service/internal/domain/auth"
	"glasstrace-service/internal/middleware"
	xerrors "glasstrace-service/internal/pkg/errors"
	"glasstrace-service/internal/pkg/response"
	authUsecase "glasstrace-service/internal/service/auth"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type AuthHandler struct {
	authService *authUsecase.AuthService
	logger      *zap.Logger
}

func NewAuthHandler(authService *authUsecase.AuthService, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{
		authService: authService,
		logger:      logger,
	}
}

// ========== Registration ==========

// Register handles user registration (public endpoint)
func (h *AuthHandler) Register(c *gin.Context) {
	var req auth.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "invalid request", err)
		return
	}

	req.IPAddress = c.ClientIP()
	req.UserAgent = c.GetHeader("User-Agent")

	loginResp, err := h.authService.Register(c.Request.Context(), &req)
	if err != nil {
		h.logger.Error("registration failed",
			zap.String("email", req.Email),
			zap.Error(err),
		)
		if errors.Is(err, xerrors.ErrDuplicateEntry) {
			response.Error(c, http.StatusConflict, "email already registered", err)
			return
		}
		response.Error(c, http.StatusBadRequest, "registration failed", err)
		return
	}

	response.Success(c, http.StatusCreated, "registration successful", loginResp)
}

// ========== Login ==========

// Login handles user login
func (h *AuthHandler) Login(c *gin.Context) {
	var req auth.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "invalid request", err)
		return
	}

	req.IPAddress = c.ClientIP()
	req.UserAgent = c.GetHeader("User-Agent")

	loginResp, err := h.authService.Login(c.Request.Context(), &req)
	if err != nil {
		h.logger.Warn("login failed",
			zap.String("email", req.Email),
			zap.String("ip", req.IPAddress),
			zap.Error(err),
		)
		if errors.Is(err, xerrors.ErrRateLimited) {
			response.Error(c, http.StatusTooManyRequests, "too many login attempts", err)
			return
		}
		response.Error(c, http.StatusUnauthorized, "login failed", err)
		return
	}

	h.logger.Info("user logged in",
		zap.Int64("identity_id", loginResp.User.IdentityID),
		zap.String("email", loginResp.User.Email),
	)

	response.Success(c, http.StatusOK, "login successful", loginResp)
}

// ========== Refresh ==========

// Refresh exchanges a refresh token for a fresh token pair (public
// endpoint; the refresh token is the credential)
func (h *AuthHandler) Refresh(c *gin.Context) {
	var req auth.RefreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "invalid request", err)
		return
	}

	loginResp, err := h.authService.Refresh(c.Request.Context(), req.RefreshToken)
	if err != nil {
		if errors.Is(err, xerrors.ErrInvalidRefreshToken) || errors.Is(err, xerrors.ErrProfileInactive) {
			response.Error(c, http.StatusUnauthorized, "refresh rejected", err)
			return
		}
		h.logger.Error("refresh failed", zap.Error(err))
		response.Error(c, http.StatusInternalServerError, "refresh failed", err)
		return
	}

	response.Success(c, http.StatusOK, "token refreshed", loginResp)
}

// ========== Logout ==========

// Logout handles user logout (requires auth). Scope "global" revokes every
// session of the identity.
func (h *AuthHandler) Logout(c *gin.Context) {
	identityID := middleware.MustGetIdentityID(c)
	jti := middleware.MustGetJTI(c)

	var req auth.LogoutRequest
	// Body is optional; default scope is local.
	_ = c.ShouldBindJSON(&req)

	if err := h.authService.Logout(c.Request.Context(), identityID, jti, req.Scope); err != nil {
		h.logger.Error("logout failed",
			zap.Int64("identity_id", identityID),
			zap.Error(err),
		)
		response.Error(c, http.StatusInternalServerError, "logout failed", err)
		return
	}

	response.Success(c, http.StatusOK, "logout successful", nil)
}

// ========== Profile ==========

// Me returns the caller's profile (requires auth)
func (h *AuthHandler) Me(c *gin.Context) {
	identityID := middleware.MustGetIdentityID(c)

	profile, err := h.authService.GetProfile(c.Request.Context(), identityID)
	if err != nil {
		response.Error(c, http.StatusNotFound, "profile not found", err)
		return
	}

	response.Success(c, http.StatusOK, "profile", profile)
}
