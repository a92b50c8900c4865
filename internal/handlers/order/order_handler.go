// internal/handlers/order/order_handler.go
package order

import (
	"errors"
	"net/http"
	"strconv"

	"glasstrace-service/internal/domain/order"
	"glasstrace-service/internal/middleware"
	xerrors "glasstrace-service/internal/pkg/errors"
	"glasstrace-service/internal/pkg/response"
	orderUsecase "glasstrace-service/internal/service/order"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type OrderHandler struct {
	orderService *orderUsecase.OrderService
	logger       *zap.Logger
}

func NewOrderHandler(orderService *orderUsecase.OrderService, logger *zap.Logger) *OrderHandler {
	return &OrderHandler{
		orderService: orderService,
		logger:       logger,
	}
}

// ========== Orders ==========

// CreateOrder creates an order with its pieces (operator+)
func (h *OrderHandler) CreateOrder(c *gin.Context) {
	var req order.CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "invalid request", err)
		return
	}

	createdBy := middleware.MustGetIdentityID(c)

	result, err := h.orderService.CreateOrder(c.Request.Context(), &req, createdBy)
	if err != nil {
		if errors.Is(err, xerrors.ErrNotFound) {
			response.Error(c, http.StatusBadRequest, "unknown client or glass type", err)
			return
		}
		h.logger.Error("order creation failed", zap.Error(err))
		response.Error(c, http.StatusInternalServerError, "failed to create order", err)
		return
	}

	response.Success(c, http.StatusCreated, "order created", result)
}

// GetOrder returns one order with client, glass type and pieces
func (h *OrderHandler) GetOrder(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		response.Error(c, http.StatusBadRequest, "invalid order id", err)
		return
	}

	result, err := h.orderService.GetOrder(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, xerrors.ErrNotFound) {
			response.NotFound(c, "order not found")
			return
		}
		response.Error(c, http.StatusInternalServerError, "failed to load order", err)
		return
	}

	response.Success(c, http.StatusOK, "order", result)
}

// ListOrders lists orders with optional filters
func (h *OrderHandler) ListOrders(c *gin.Context) {
	var filter order.ListOrdersFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		response.Error(c, http.StatusBadRequest, "invalid filter", err)
		return
	}

	orders, err := h.orderService.ListOrders(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, http.StatusInternalServerError, "failed to list orders", err)
		return
	}

	response.Success(c, http.StatusOK, "orders", orders)
}

// UpdateOrder updates mutable order fields (operator+)
func (h *OrderHandler) UpdateOrder(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		response.Error(c, http.StatusBadRequest, "invalid order id", err)
		return
	}

	var req order.UpdateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "invalid request", err)
		return
	}

	if err := h.orderService.UpdateOrder(c.Request.Context(), id, &req); err != nil {
		switch {
		case errors.Is(err, xerrors.ErrInvalidInput):
			response.Error(c, http.StatusBadRequest, "invalid update", err)
		case errors.Is(err, xerrors.ErrNotFound):
			response.NotFound(c, "order not found")
		default:
			response.Error(c, http.StatusInternalServerError, "failed to update order", err)
		}
		return
	}

	response.Success(c, http.StatusOK, "order updated", nil)
}

// DeleteOrder soft-deletes an order (admin)
func (h *OrderHandler) DeleteOrder(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		response.Error(c, http.StatusBadRequest, "invalid order id", err)
		return
	}

	if err := h.orderService.DeleteOrder(c.Request.Context(), id); err != nil {
		if errors.Is(err, xerrors.ErrNotFound) {
			response.NotFound(c, "order not found")
			return
		}
		response.Error(c, http.StatusInternalServerError, "failed to delete order", err)
		return
	}

	response.Success(c, http.StatusOK, "order deleted", nil)
}

// ========== Pieces ==========

// ListOrderPieces lists the pieces belonging to one order
func (h *OrderHandler) ListOrderPieces(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		response.Error(c, http.StatusBadRequest, "invalid order id", err)
		return
	}

	pieces, err := h.orderService.ListOrderPieces(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, xerrors.ErrNotFound) {
			response.NotFound(c, "order not found")
			return
		}
		response.Error(c, http.StatusInternalServerError, "failed to list pieces", err)
		return
	}

	response.Success(c, http.StatusOK, "pieces", pieces)
}

// GetPiece resolves a barcode to a piece
func (h *OrderHandler) GetPiece(c *gin.Context) {
	piece, err := h.orderService.GetPiece(c.Request.Context(), c.Param("barcode"))
	if err != nil {
		if errors.Is(err, xerrors.ErrNotFound) {
			response.NotFound(c, "piece not found")
			return
		}
		response.Error(c, http.StatusInternalServerError, "failed to load piece", err)
		return
	}

	response.Success(c, http.StatusOK, "piece", piece)
}

// GetPieceHistory returns a piece and its full audit trail
func (h *OrderHandler) GetPieceHistory(c *gin.Context) {
	barcode := c.Param("barcode")

	piece, history, err := h.orderService.GetPieceHistory(c.Request.Context(), barcode)
	if err != nil {
		if errors.Is(err, xerrors.ErrNotFound) {
			response.NotFound(c, "piece not found")
			return
		}
		response.Error(c, http.StatusInternalServerError, "failed to load piece history", err)
		return
	}

	response.Success(c, http.StatusOK, "piece history", gin.H{
		"piece":   piece,
		"history": history,
	})
}

// ========== Lookups ==========

// ListClients lists the client directory
func (h *OrderHandler) ListClients(c *gin.Context) {
	clients, err := h.orderService.ListClients(c.Request.Context())
	if err != nil {
		response.Error(c, http.StatusInternalServerError, "failed to list clients", err)
		return
	}

	response.Success(c, http.StatusOK, "clients", clients)
}

// ListGlassTypes lists the glass type catalog
func (h *OrderHandler) ListGlassTypes(c *gin.Context) {
	types, err := h.orderService.ListGlassTypes(c.Request.Context())
	if err != nil {
		response.Error(c, http.StatusInternalServerError, "failed to list glass types", err)
		return
	}

	response.Success(c, http.StatusOK, "glass types", types)
}

// ========== Dashboard ==========

// Dashboard returns live production counts
func (h *OrderHandler) Dashboard(c *gin.Context) {
	summary, err := h.orderService.DashboardSummary(c.Request.Context())
	if err != nil {
		response.Error(c, http.StatusInternalServerError, "failed to build dashboard", err)
		return
	}

	response.Success(c, http.StatusOK, "dashboard", summary)
}
