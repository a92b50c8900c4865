// internal/service/order/order.go
package order

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"glasstrace-service/internal/domain/order"
	xerrors "glasstrace-service/internal/pkg/errors"
	"glasstrace-service/internal/repository/postgres"

	"go.uber.org/zap"
)

type OrderService struct {
	orderRepo *postgres.OrderRepository
	pieceRepo *postgres.PieceRepository
	logger    *zap.Logger
}

func NewOrderService(orderRepo *postgres.OrderRepository, pieceRepo *postgres.PieceRepository, logger *zap.Logger) *OrderService {
	return &OrderService{
		orderRepo: orderRepo,
		pieceRepo: pieceRepo,
		logger:    logger,
	}
}

// ========== Orders ==========

// CreateOrder creates an order and its pieces. Each piece gets a barcode
// of the form GLS-YYYYMMDD-NNNNNN-Pnnn derived from the order number.
func (s *OrderService) CreateOrder(ctx context.Context, req *order.CreateOrderRequest, createdBy int64) (*order.OrderWithPieces, error) {
	client, err := s.orderRepo.GetClient(ctx, req.ClientID)
	if err != nil {
		return nil, fmt.Errorf("client lookup failed: %w", err)
	}
	glass, err := s.orderRepo.GetGlassType(ctx, req.GlassTypeID)
	if err != nil {
		return nil, fmt.Errorf("glass type lookup failed: %w", err)
	}

	priority := req.Priority
	if priority == "" {
		priority = order.PriorityNormal
	}

	seq, err := s.orderRepo.CountOrdersToday(ctx)
	if err != nil {
		return nil, err
	}
	orderNumber := fmt.Sprintf("GLS-%s-%06d", time.Now().Format("20060102"), seq+1)

	o := &order.Order{
		OrderNumber: orderNumber,
		ClientID:    req.ClientID,
		GlassTypeID: req.GlassTypeID,
		Priority:    priority,
		Status:      order.StatusPending,
		Notes:       sql.NullString{String: req.Notes, Valid: req.Notes != ""},
		CreatedBy:   createdBy,
	}

	var pieces []order.Piece
	n := 0
	for _, spec := range req.Pieces {
		for i := 0; i < spec.Count; i++ {
			n++
			pieces = append(pieces, order.Piece{
				Barcode:  fmt.Sprintf("%s-P%03d", orderNumber, n),
				WidthMM:  spec.WidthMM,
				HeightMM: spec.HeightMM,
				Status:   order.StatusPending,
			})
		}
	}

	if err := s.orderRepo.CreateOrderWithPieces(ctx, o, pieces); err != nil {
		return nil, err
	}

	s.logger.Info("order created",
		zap.String("order_number", o.OrderNumber),
		zap.Int("pieces", len(pieces)),
		zap.String("priority", string(o.Priority)))

	return &order.OrderWithPieces{Order: *o, Client: *client, Glass: *glass, Pieces: pieces}, nil
}

// GetOrder returns an order with its client, glass type and pieces
func (s *OrderService) GetOrder(ctx context.Context, id int64) (*order.OrderWithPieces, error) {
	o, err := s.orderRepo.GetOrder(ctx, id)
	if err != nil {
		return nil, err
	}

	client, err := s.orderRepo.GetClient(ctx, o.ClientID)
	if err != nil {
		return nil, err
	}
	glass, err := s.orderRepo.GetGlassType(ctx, o.GlassTypeID)
	if err != nil {
		return nil, err
	}
	pieces, err := s.orderRepo.ListPieces(ctx, o.ID)
	if err != nil {
		return nil, err
	}

	return &order.OrderWithPieces{Order: *o, Client: *client, Glass: *glass, Pieces: pieces}, nil
}

// ListOrders lists orders matching the filter
func (s *OrderService) ListOrders(ctx context.Context, filter order.ListOrdersFilter) ([]*order.Order, error) {
	return s.orderRepo.ListOrders(ctx, filter)
}

// UpdateOrder updates mutable order fields
func (s *OrderService) UpdateOrder(ctx context.Context, id int64, req *order.UpdateOrderRequest) error {
	if req.Priority != "" {
		switch req.Priority {
		case order.PriorityLow, order.PriorityNormal, order.PriorityHigh, order.PriorityUrgent:
		default:
			return fmt.Errorf("%w: unknown priority %q", xerrors.ErrInvalidInput, req.Priority)
		}
	}
	return s.orderRepo.UpdateOrder(ctx, id, req)
}

// DeleteOrder soft-deletes an order
func (s *OrderService) DeleteOrder(ctx context.Context, id int64) error {
	return s.orderRepo.SoftDeleteOrder(ctx, id)
}

// ========== Pieces ==========

// ListOrderPieces returns the pieces of one order
func (s *OrderService) ListOrderPieces(ctx context.Context, orderID int64) ([]order.Piece, error) {
	if _, err := s.orderRepo.GetOrder(ctx, orderID); err != nil {
		return nil, err
	}
	return s.orderRepo.ListPieces(ctx, orderID)
}

// GetPiece resolves a barcode to a piece
func (s *OrderService) GetPiece(ctx context.Context, barcode string) (*order.Piece, error) {
	return s.pieceRepo.GetPieceByBarcode(ctx, barcode)
}

// GetPieceHistory returns a piece and its audit trail
func (s *OrderService) GetPieceHistory(ctx context.Context, barcode string) (*order.Piece, []order.StatusHistory, error) {
	piece, err := s.pieceRepo.GetPieceByBarcode(ctx, barcode)
	if err != nil {
		return nil, nil, err
	}

	history, err := s.pieceRepo.ListStatusHistory(ctx, piece.ID)
	if err != nil {
		return nil, nil, err
	}

	return piece, history, nil
}

// ========== Lookups & Dashboard ==========

func (s *OrderService) ListClients(ctx context.Context) ([]order.Client, error) {
	return s.orderRepo.ListClients(ctx)
}

func (s *OrderService) ListGlassTypes(ctx context.Context) ([]order.GlassType, error) {
	return s.orderRepo.ListGlassTypes(ctx)
}

func (s *OrderService) DashboardSummary(ctx context.Context) (*order.DashboardSummary, error) {
	return s.orderRepo.DashboardSummary(ctx)
}
