// internal/repository/postgres/order_repo.go
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"glasstrace-service/internal/domain/order"
	xerrors "glasstrace-service/internal/pkg/errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type OrderRepository struct {
	db *pgxpool.Pool
}

func NewOrderRepository(db *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{db: db}
}

// ========== Order Methods ==========

// CreateOrderWithPieces inserts an order and all of its pieces in one
// transaction so a half-created order can never be listed.
func (r *OrderRepository) CreateOrderWithPieces(ctx context.Context, o *order.Order, pieces []order.Piece) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO orders (order_number, client_id, glass_type_id, priority, status, notes, created_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW(), NOW())
		RETURNING id, created_at, updated_at
	`

	err = tx.QueryRow(ctx, query,
		o.OrderNumber, o.ClientID, o.GlassTypeID, o.Priority, o.Status, o.Notes, o.CreatedBy,
	).Scan(&o.ID, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create order: %w", err)
	}

	pieceQuery := `
		INSERT INTO pieces (order_id, barcode, width_mm, height_mm, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW(), NOW())
		RETURNING id, created_at, updated_at
	`

	for i := range pieces {
		p := &pieces[i]
		p.OrderID = o.ID
		err := tx.QueryRow(ctx, pieceQuery,
			p.OrderID, p.Barcode, p.WidthMM, p.HeightMM, p.Status,
		).Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
		if err != nil {
			return fmt.Errorf("failed to create piece %s: %w", p.Barcode, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit order: %w", err)
	}
	return nil
}

// GetOrder retrieves a single order
func (r *OrderRepository) GetOrder(ctx context.Context, id int64) (*order.Order, error) {
	query := `
		SELECT id, order_number, client_id, glass_type_id, priority, status, notes,
		       created_by, created_at, updated_at, deleted_at
		FROM orders
		WHERE id = $1 AND deleted_at IS NULL
	`

	var o order.Order
	err := r.db.QueryRow(ctx, query, id).Scan(
		&o.ID, &o.OrderNumber, &o.ClientID, &o.GlassTypeID, &o.Priority, &o.Status,
		&o.Notes, &o.CreatedBy, &o.CreatedAt, &o.UpdatedAt, &o.DeletedAt,
	)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, xerrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get order: %w", err)
	}

	return &o, nil
}

// ListOrders lists orders matching the filter, newest first
func (r *OrderRepository) ListOrders(ctx context.Context, filter order.ListOrdersFilter) ([]*order.Order, error) {
	var conditions []string
	var args []any

	conditions = append(conditions, "deleted_at IS NULL")
	if filter.ClientID > 0 {
		args = append(args, filter.ClientID)
		conditions = append(conditions, fmt.Sprintf("client_id = $%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.Priority != "" {
		args = append(args, filter.Priority)
		conditions = append(conditions, fmt.Sprintf("priority = $%d", len(args)))
	}

	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	args = append(args, limit, filter.Offset)

	query := fmt.Sprintf(`
		SELECT id, order_number, client_id, glass_type_id, priority, status, notes,
		       created_by, created_at, updated_at, deleted_at
		FROM orders
		WHERE %s
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d
	`, strings.Join(conditions, " AND "), len(args)-1, len(args))

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	defer rows.Close()

	var orders []*order.Order
	for rows.Next() {
		var o order.Order
		if err := rows.Scan(
			&o.ID, &o.OrderNumber, &o.ClientID, &o.GlassTypeID, &o.Priority, &o.Status,
			&o.Notes, &o.CreatedBy, &o.CreatedAt, &o.UpdatedAt, &o.DeletedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		orders = append(orders, &o)
	}

	return orders, rows.Err()
}

// ListPieces lists the pieces of an order
func (r *OrderRepository) ListPieces(ctx context.Context, orderID int64) ([]order.Piece, error) {
	query := `
		SELECT id, order_id, barcode, width_mm, height_mm, status, created_at, updated_at
		FROM pieces
		WHERE order_id = $1
		ORDER BY barcode
	`

	rows, err := r.db.Query(ctx, query, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to list pieces: %w", err)
	}
	defer rows.Close()

	var pieces []order.Piece
	for rows.Next() {
		var p order.Piece
		if err := rows.Scan(&p.ID, &p.OrderID, &p.Barcode, &p.WidthMM, &p.HeightMM, &p.Status, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan piece: %w", err)
		}
		pieces = append(pieces, p)
	}

	return pieces, rows.Err()
}

// UpdateOrder updates mutable order fields
func (r *OrderRepository) UpdateOrder(ctx context.Context, id int64, req *order.UpdateOrderRequest) error {
	query := `
		UPDATE orders
		SET priority = COALESCE(NULLIF($2, ''), priority),
		    notes = CASE WHEN $3 <> '' THEN $3 ELSE notes END,
		    updated_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL
	`

	tag, err := r.db.Exec(ctx, query, id, string(req.Priority), req.Notes)
	if err != nil {
		return fmt.Errorf("failed to update order: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return xerrors.ErrNotFound
	}
	return nil
}

// SoftDeleteOrder marks an order deleted
func (r *OrderRepository) SoftDeleteOrder(ctx context.Context, id int64) error {
	query := `UPDATE orders SET deleted_at = NOW() WHERE id = $1 AND deleted_at IS NULL`

	tag, err := r.db.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete order: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return xerrors.ErrNotFound
	}
	return nil
}

// CountOrdersToday returns how many orders were created today, used for
// order-number generation
func (r *OrderRepository) CountOrdersToday(ctx context.Context) (int64, error) {
	query := `SELECT COUNT(*) FROM orders WHERE created_at::date = CURRENT_DATE`

	var n int64
	if err := r.db.QueryRow(ctx, query).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count orders: %w", err)
	}
	return n, nil
}

// ========== Lookup Methods ==========

// GetClient retrieves a client
func (r *OrderRepository) GetClient(ctx context.Context, id int64) (*order.Client, error) {
	query := `SELECT id, name, contact, created_at FROM clients WHERE id = $1`

	var c order.Client
	err := r.db.QueryRow(ctx, query, id).Scan(&c.ID, &c.Name, &c.Contact, &c.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, xerrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get client: %w", err)
	}
	return &c, nil
}

// GetGlassType retrieves a glass type
func (r *OrderRepository) GetGlassType(ctx context.Context, id int64) (*order.GlassType, error) {
	query := `SELECT id, name, thickness_mm, description FROM glass_types WHERE id = $1`

	var g order.GlassType
	err := r.db.QueryRow(ctx, query, id).Scan(&g.ID, &g.Name, &g.ThicknessMM, &g.Description)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, xerrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get glass type: %w", err)
	}
	return &g, nil
}

// ListClients lists all clients
func (r *OrderRepository) ListClients(ctx context.Context) ([]order.Client, error) {
	rows, err := r.db.Query(ctx, `SELECT id, name, contact, created_at FROM clients ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list clients: %w", err)
	}
	defer rows.Close()

	var clients []order.Client
	for rows.Next() {
		var c order.Client
		if err := rows.Scan(&c.ID, &c.Name, &c.Contact, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan client: %w", err)
		}
		clients = append(clients, c)
	}
	return clients, rows.Err()
}

// ListGlassTypes lists all glass types
func (r *OrderRepository) ListGlassTypes(ctx context.Context) ([]order.GlassType, error) {
	rows, err := r.db.Query(ctx, `SELECT id, name, thickness_mm, description FROM glass_types ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list glass types: %w", err)
	}
	defer rows.Close()

	var types []order.GlassType
	for rows.Next() {
		var g order.GlassType
		if err := rows.Scan(&g.ID, &g.Name, &g.ThicknessMM, &g.Description); err != nil {
			return nil, fmt.Errorf("failed to scan glass type: %w", err)
		}
		types = append(types, g)
	}
	return types, rows.Err()
}

// ========== Dashboard ==========

// DashboardSummary aggregates counts for the dashboard page
func (r *OrderRepository) DashboardSummary(ctx context.Context) (*order.DashboardSummary, error) {
	summary := &order.DashboardSummary{
		OrdersByStatus: make(map[order.PieceStatus]int64),
		PiecesByStatus: make(map[order.PieceStatus]int64),
	}

	rows, err := r.db.Query(ctx, `SELECT status, COUNT(*) FROM orders WHERE deleted_at IS NULL GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("failed to count orders: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var s order.PieceStatus
		var n int64
		if err := rows.Scan(&s, &n); err != nil {
			return nil, fmt.Errorf("failed to scan order count: %w", err)
		}
		summary.OrdersByStatus[s] = n
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	pieceRows, err := r.db.Query(ctx, `SELECT status, COUNT(*) FROM pieces GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("failed to count pieces: %w", err)
	}
	defer pieceRows.Close()
	for pieceRows.Next() {
		var s order.PieceStatus
		var n int64
		if err := pieceRows.Scan(&s, &n); err != nil {
			return nil, fmt.Errorf("failed to scan piece count: %w", err)
		}
		summary.PiecesByStatus[s] = n
	}
	if err := pieceRows.Err(); err != nil {
		return nil, err
	}

	err = r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM orders WHERE priority = 'urgent' AND status <> 'completed' AND deleted_at IS NULL`,
	).Scan(&summary.UrgentOrders)
	if err != nil {
		return nil, fmt.Errorf("failed to count urgent orders: %w", err)
	}

	err = r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM pieces WHERE status = 'completed' AND updated_at::date = CURRENT_DATE`,
	).Scan(&summary.CompletedToday)
	if err != nil {
		return nil, fmt.Errorf("failed to count completed pieces: %w", err)
	}

	return summary, nil
}
