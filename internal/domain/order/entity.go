// internal/domain/order/entity.go
package order

import (
	"database/sql"
	"time"
)

// PieceStatus is a stage in the fixed production sequence.
type PieceStatus string

const (
	StatusPending   PieceStatus = "pending"
	StatusCutting   PieceStatus = "cutting"
	StatusTempering PieceStatus = "tempering"
	StatusEdging    PieceStatus = "edging"
	StatusQuality   PieceStatus = "quality"
	StatusCompleted PieceStatus = "completed"
	StatusOnHold    PieceStatus = "on_hold"
)

// Sequence is the production flow in order. on_hold sits outside the flow.
var Sequence = []PieceStatus{
	StatusPending,
	StatusCutting,
	StatusTempering,
	StatusEdging,
	StatusQuality,
	StatusCompleted,
}

var sequenceIndex = func() map[PieceStatus]int {
	m := make(map[PieceStatus]int, len(Sequence))
	for i, s := range Sequence {
		m[s] = i + 1
	}
	return m
}()

// Valid reports whether s is a known piece status.
func (s PieceStatus) Valid() bool {
	return s == StatusOnHold || sequenceIndex[s] != 0
}

// CanTransition reports whether a piece may move from -> to. Pieces advance
// one stage at a time; any unfinished piece can be put on hold, and a held
// piece can resume at any unfinished stage.
func CanTransition(from, to PieceStatus) bool {
	if !from.Valid() || !to.Valid() || from == to {
		return false
	}
	if to == StatusOnHold {
		return from != StatusCompleted
	}
	if from == StatusOnHold {
		return to != StatusCompleted
	}
	return sequenceIndex[to] == sequenceIndex[from]+1
}

// Priority of an order.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// Client is a customer of the shop.
type Client struct {
	ID        int64          `json:"id" db:"id"`
	Name      string         `json:"name" db:"name"`
	Contact   sql.NullString `json:"contact" db:"contact"`
	CreatedAt time.Time      `json:"created_at" db:"created_at"`
}

// GlassType is a fabricated glass product type.
type GlassType struct {
	ID          int64          `json:"id" db:"id"`
	Name        string         `json:"name" db:"name"`
	ThicknessMM float64        `json:"thickness_mm" db:"thickness_mm"`
	Description sql.NullString `json:"description" db:"description"`
}

// Order groups the pieces fabricated for one client request.
type Order struct {
	ID          int64          `json:"id" db:"id"`
	OrderNumber string         `json:"order_number" db:"order_number"`
	ClientID    int64          `json:"client_id" db:"client_id"`
	GlassTypeID int64          `json:"glass_type_id" db:"glass_type_id"`
	Priority    Priority       `json:"priority" db:"priority"`
	Status      PieceStatus    `json:"status" db:"status"` // least-advanced piece status
	Notes       sql.NullString `json:"notes" db:"notes"`
	CreatedBy   int64          `json:"created_by" db:"created_by"`
	CreatedAt   time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at" db:"updated_at"`
	DeletedAt   sql.NullTime   `json:"-" db:"deleted_at"`
}

// Piece is a single pane of glass tracked by barcode through the stations.
type Piece struct {
	ID        int64       `json:"id" db:"id"`
	OrderID   int64       `json:"order_id" db:"order_id"`
	Barcode   string      `json:"barcode" db:"barcode"`
	WidthMM   int         `json:"width_mm" db:"width_mm"`
	HeightMM  int         `json:"height_mm" db:"height_mm"`
	Status    PieceStatus `json:"status" db:"status"`
	CreatedAt time.Time   `json:"created_at" db:"created_at"`
	UpdatedAt time.Time   `json:"updated_at" db:"updated_at"`
}

// StatusHistory is one audit entry for a piece status change.
type StatusHistory struct {
	ID         int64          `json:"id" db:"id"`
	PieceID    int64          `json:"piece_id" db:"piece_id"`
	FromStatus PieceStatus    `json:"from_status" db:"from_status"`
	ToStatus   PieceStatus    `json:"to_status" db:"to_status"`
	StationID  sql.NullString `json:"station_id" db:"station_id"`
	ActorLabel string         `json:"actor_label" db:"actor_label"`
	Notes      sql.NullString `json:"notes" db:"notes"`
	CreatedAt  time.Time      `json:"created_at" db:"created_at"`
}

// PieceWithOrder is a piece joined with its order, client and glass type,
// the shape the scanning interfaces display.
type PieceWithOrder struct {
	Piece         Piece       `json:"piece"`
	OrderNumber   string      `json:"order_number"`
	OrderPriority Priority    `json:"order_priority"`
	ClientName    string      `json:"client_name"`
	GlassType     string      `json:"glass_type"`
	ThicknessMM   float64     `json:"thickness_mm"`
	OrderStatus   PieceStatus `json:"order_status"`
}
