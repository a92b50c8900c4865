// internal/domain/order/dto.go
package order

// PieceSpec describes one piece on an order creation request.
type PieceSpec struct {
	WidthMM  int `json:"width_mm" binding:"required,gt=0"`
	HeightMM int `json:"height_mm" binding:"required,gt=0"`
	Count    int `json:"count" binding:"required,gt=0"`
}

// CreateOrderRequest creates an order plus its pieces in one call.
type CreateOrderRequest struct {
	ClientID    int64       `json:"client_id" binding:"required"`
	GlassTypeID int64       `json:"glass_type_id" binding:"required"`
	Priority    Priority    `json:"priority"`
	Notes       string      `json:"notes"`
	Pieces      []PieceSpec `json:"pieces" binding:"required,min=1,dive"`
}

// UpdateOrderRequest updates mutable order fields.
type UpdateOrderRequest struct {
	Priority Priority `json:"priority"`
	Notes    string   `json:"notes"`
}

// ListOrdersFilter narrows order listings.
type ListOrdersFilter struct {
	ClientID int64       `form:"client_id"`
	Status   PieceStatus `form:"status"`
	Priority Priority    `form:"priority"`
	Limit    int         `form:"limit"`
	Offset   int         `form:"offset"`
}

// OrderWithPieces is the detail view of an order.
type OrderWithPieces struct {
	Order  Order     `json:"order"`
	Client Client    `json:"client"`
	Glass  GlassType `json:"glass_type"`
	Pieces []Piece   `json:"pieces"`
}

// DashboardSummary aggregates live counts for the dashboard page.
type DashboardSummary struct {
	OrdersByStatus map[PieceStatus]int64 `json:"orders_by_status"`
	PiecesByStatus map[PieceStatus]int64 `json:"pieces_by_status"`
	UrgentOrders   int64                 `json:"urgent_orders"`
	CompletedToday int64                 `json:"completed_today"`
}
