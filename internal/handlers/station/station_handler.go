// internal/handlers/station/station_handler.go
package station

import (
	"errors"
	"fmt"
	"net/http"

	"glasstrace-service/internal/domain/order"
	"glasstrace-service/internal/domain/station"
	"glasstrace-service/internal/middleware"
	xerrors "glasstrace-service/internal/pkg/errors"
	"glasstrace-service/internal/pkg/response"
	stationUsecase "glasstrace-service/internal/service/station"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type StationHandler struct {
	stationService *stationUsecase.StationService
	logger         *zap.Logger
}

func NewStationHandler(stationService *stationUsecase.StationService, logger *zap.Logger) *StationHandler {
	return &StationHandler{
		stationService: stationService,
		logger:         logger,
	}
}

// ========== Authentication ==========

// Authenticate verifies a station credential pair (public endpoint; the
// secret is the credential)
func (h *StationHandler) Authenticate(c *gin.Context) {
	var req station.AuthenticateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "invalid request", err)
		return
	}

	st, err := h.stationService.VerifyStation(c.Request.Context(), req.StationID, req.StationSecret)
	if err != nil {
		switch {
		case errors.Is(err, xerrors.ErrRateLimited):
			response.Error(c, http.StatusTooManyRequests, "too many authentication attempts", err)
		case errors.Is(err, xerrors.ErrStationCredentials):
			response.Error(c, http.StatusUnauthorized, "station authentication failed", err)
		default:
			h.logger.Error("station authentication error", zap.Error(err))
			response.Error(c, http.StatusInternalServerError, "station authentication failed", err)
		}
		return
	}

	proof, err := h.stationService.IssueSessionProof(st.ID)
	if err != nil {
		h.logger.Error("failed to mint session proof", zap.Error(err))
		response.Error(c, http.StatusInternalServerError, "station authentication failed", err)
		return
	}

	response.Success(c, http.StatusOK, "station authenticated", station.AuthenticateResponse{
		Success:     true,
		StationName: st.Name,
		Location:    st.Location.String,
		Permissions: st.Permissions,
		AuthProof:   proof,
	})
}

// ========== Service Sessions ==========

// CreateServiceSession opens a service-session row. The body must carry the
// proof returned by a recent successful authentication of the same station.
func (h *StationHandler) CreateServiceSession(c *gin.Context) {
	var req station.CreateServiceSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "invalid request", err)
		return
	}

	sess, err := h.stationService.CreateServiceSession(c.Request.Context(), &req)
	if err != nil {
		if errors.Is(err, xerrors.ErrStationCredentials) {
			response.Error(c, http.StatusUnauthorized, "station authentication required", err)
			return
		}
		h.logger.Error("service session creation failed",
			zap.String("station_id", req.StationID),
			zap.Error(err),
		)
		response.Error(c, http.StatusInternalServerError, "failed to create service session", err)
		return
	}

	response.Success(c, http.StatusCreated, "service session created", sess)
}

// UpdateServiceSession patches a service-session row: expiry extension on
// renewal, activity stamps, deactivation on cleanup. A session may only
// patch itself, so the path id must match the presented credential.
func (h *StationHandler) UpdateServiceSession(c *gin.Context) {
	sess, ok := middleware.GetServiceSession(c)
	if !ok {
		response.Unauthorized(c, "missing service session")
		return
	}

	id := c.Param("id")
	if sess.ID != id {
		response.Unauthorized(c, "service session mismatch")
		return
	}

	var req station.UpdateServiceSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "invalid request", err)
		return
	}

	if err := h.stationService.UpdateServiceSession(c.Request.Context(), id, &req); err != nil {
		if errors.Is(err, xerrors.ErrNotFound) {
			response.NotFound(c, "service session not found")
			return
		}
		response.Error(c, http.StatusInternalServerError, "failed to update service session", err)
		return
	}

	response.Success(c, http.StatusOK, "service session updated", nil)
}

// ========== Scanning ==========

// Scan applies a status transition for a scanned barcode. Requires a valid
// service session; the piece mutation and its audit entry are atomic.
func (h *StationHandler) Scan(c *gin.Context) {
	sess, ok := middleware.GetServiceSession(c)
	if !ok {
		response.Unauthorized(c, "missing service session")
		return
	}

	var req station.ScanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "invalid request", err)
		return
	}

	piece, err := h.stationService.UpdatePieceStatus(
		c.Request.Context(),
		req.Barcode,
		order.PieceStatus(req.NewStatus),
		sess.StationID,
		sess.StationName,
		req.Notes,
	)
	if err != nil {
		switch {
		case errors.Is(err, xerrors.ErrNotFound):
			response.NotFound(c, "unknown barcode")
		case errors.Is(err, xerrors.ErrInvalidTransition), errors.Is(err, xerrors.ErrInvalidInput):
			response.Error(c, http.StatusConflict, "status transition rejected", err)
		default:
			h.logger.Error("scan failed",
				zap.String("barcode", req.Barcode),
				zap.String("station_id", sess.StationID),
				zap.Error(err),
			)
			response.Error(c, http.StatusInternalServerError, "scan failed", err)
		}
		return
	}

	h.stationService.TouchServiceSession(c.Request.Context(), sess.ID)

	response.Success(c, http.StatusOK, "piece status updated", piece)
}

// ManualScan applies a status transition on behalf of a signed-in operator
// working without a station credential. The audit entry carries a
// user-derived actor label and no station id.
func (h *StationHandler) ManualScan(c *gin.Context) {
	var req station.ScanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "invalid request", err)
		return
	}

	actor := fmt.Sprintf("user:%d", middleware.MustGetIdentityID(c))

	piece, err := h.stationService.UpdatePieceStatus(
		c.Request.Context(),
		req.Barcode,
		order.PieceStatus(req.NewStatus),
		"",
		actor,
		req.Notes,
	)
	if err != nil {
		switch {
		case errors.Is(err, xerrors.ErrNotFound):
			response.NotFound(c, "unknown barcode")
		case errors.Is(err, xerrors.ErrInvalidTransition), errors.Is(err, xerrors.ErrInvalidInput):
			response.Error(c, http.StatusConflict, "status transition rejected", err)
		default:
			h.logger.Error("manual scan failed",
				zap.String("barcode", req.Barcode),
				zap.String("actor", actor),
				zap.Error(err),
			)
			response.Error(c, http.StatusInternalServerError, "scan failed", err)
		}
		return
	}

	response.Success(c, http.StatusOK, "piece status updated", piece)
}

// GetPiece resolves a barcode to a piece with its order context. Lookups
// are reads and do not count as session activity.
func (h *StationHandler) GetPiece(c *gin.Context) {
	if _, ok := middleware.GetServiceSession(c); !ok {
		response.Unauthorized(c, "missing service session")
		return
	}

	pw, err := h.stationService.GetPieceWithOrder(c.Request.Context(), c.Param("barcode"))
	if err != nil {
		if errors.Is(err, xerrors.ErrNotFound) {
			response.NotFound(c, "unknown barcode")
			return
		}
		response.Error(c, http.StatusInternalServerError, "failed to load piece", err)
		return
	}

	response.Success(c, http.StatusOK, "piece", pw)
}
