// internal/repository/postgres/piece_repo.go
package postgres

import (
	"context"
	"errors"
	"fmt"

	"glasstrace-service/internal/domain/order"
	xerrors "glasstrace-service/internal/pkg/errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PieceRepository struct {
	db *pgxpool.Pool
}

func NewPieceRepository(db *pgxpool.Pool) *PieceRepository {
	return &PieceRepository{db: db}
}

// GetPieceByBarcode retrieves a piece by its barcode
func (r *PieceRepository) GetPieceByBarcode(ctx context.Context, barcode string) (*order.Piece, error) {
	query := `
		SELECT id, order_id, barcode, width_mm, height_mm, status, created_at, updated_at
		FROM pieces
		WHERE barcode = $1
	`

	var p order.Piece
	err := r.db.QueryRow(ctx, query, barcode).Scan(
		&p.ID, &p.OrderID, &p.Barcode, &p.WidthMM, &p.HeightMM, &p.Status, &p.CreatedAt, &p.UpdatedAt,
	)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, xerrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get piece: %w", err)
	}

	return &p, nil
}

// GetPieceWithOrder retrieves a piece joined with its order, client and
// glass type in one query
func (r *PieceRepository) GetPieceWithOrder(ctx context.Context, barcode string) (*order.PieceWithOrder, error) {
	query := `
		SELECT p.id, p.order_id, p.barcode, p.width_mm, p.height_mm, p.status,
		       p.created_at, p.updated_at,
		       o.order_number, o.priority, o.status,
		       c.name, g.name, g.thickness_mm
		FROM pieces p
		JOIN orders o ON o.id = p.order_id AND o.deleted_at IS NULL
		JOIN clients c ON c.id = o.client_id
		JOIN glass_types g ON g.id = o.glass_type_id
		WHERE p.barcode = $1
	`

	var pw order.PieceWithOrder
	err := r.db.QueryRow(ctx, query, barcode).Scan(
		&pw.Piece.ID, &pw.Piece.OrderID, &pw.Piece.Barcode, &pw.Piece.WidthMM,
		&pw.Piece.HeightMM, &pw.Piece.Status, &pw.Piece.CreatedAt, &pw.Piece.UpdatedAt,
		&pw.OrderNumber, &pw.OrderPriority, &pw.OrderStatus,
		&pw.ClientName, &pw.GlassType, &pw.ThicknessMM,
	)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, xerrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get piece with order: %w", err)
	}

	return &pw, nil
}

// UpdatePieceStatusAtomic moves a piece to newStatus and appends the audit
// history entry in a single transaction, so a status change can never land
// without its audit row or vice versa. The parent order's status is
// recomputed to the least-advanced piece in the same transaction.
func (r *PieceRepository) UpdatePieceStatusAtomic(ctx context.Context, barcode string, newStatus order.PieceStatus, stationID, actorLabel, notes string) (*order.Piece, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var p order.Piece
	err = tx.QueryRow(ctx, `
		SELECT id, order_id, barcode, width_mm, height_mm, status, created_at, updated_at
		FROM pieces
		WHERE barcode = $1
		FOR UPDATE
	`, barcode).Scan(&p.ID, &p.OrderID, &p.Barcode, &p.WidthMM, &p.HeightMM, &p.Status, &p.CreatedAt, &p.UpdatedAt)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, xerrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock piece: %w", err)
	}

	if !order.CanTransition(p.Status, newStatus) {
		return nil, fmt.Errorf("%w: %s -> %s", xerrors.ErrInvalidTransition, p.Status, newStatus)
	}

	err = tx.QueryRow(ctx, `
		UPDATE pieces SET status = $2, updated_at = NOW() WHERE id = $1
		RETURNING updated_at
	`, p.ID, newStatus).Scan(&p.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to update piece status: %w", err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO piece_status_history (piece_id, from_status, to_status, station_id, actor_label, notes, created_at)
		VALUES ($1, $2, $3, NULLIF($4, ''), $5, NULLIF($6, ''), NOW())
	`, p.ID, p.Status, newStatus, stationID, actorLabel, notes)
	if err != nil {
		return nil, fmt.Errorf("failed to append status history: %w", err)
	}

	// Order status follows its least-advanced piece; on_hold pins the order.
	_, err = tx.Exec(ctx, `
		UPDATE orders SET status = (
			SELECT CASE
				WHEN COUNT(*) FILTER (WHERE status = 'on_hold') > 0 THEN 'on_hold'
				ELSE (
					SELECT status FROM pieces
					WHERE order_id = $1
					ORDER BY array_position(ARRAY['pending','cutting','tempering','edging','quality','completed'], status)
					LIMIT 1
				)
			END
			FROM pieces WHERE order_id = $1
		), updated_at = NOW()
		WHERE id = $1
	`, p.OrderID)
	if err != nil {
		return nil, fmt.Errorf("failed to recompute order status: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit status update: %w", err)
	}

	p.Status = newStatus
	return &p, nil
}

// ListStatusHistory lists the audit trail of a piece, newest first
func (r *PieceRepository) ListStatusHistory(ctx context.Context, pieceID int64) ([]order.StatusHistory, error) {
	query := `
		SELECT id, piece_id, from_status, to_status, station_id, actor_label, notes, created_at
		FROM piece_status_history
		WHERE piece_id = $1
		ORDER BY created_at DESC
	`

	rows, err := r.db.Query(ctx, query, pieceID)
	if err != nil {
		return nil, fmt.Errorf("failed to list status history: %w", err)
	}
	defer rows.Close()

	var history []order.StatusHistory
	for rows.Next() {
		var h order.StatusHistory
		if err := rows.Scan(&h.ID, &h.PieceID, &h.FromStatus, &h.ToStatus, &h.StationID, &h.ActorLabel, &h.Notes, &h.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan history: %w", err)
		}
		history = append(history, h)
	}

	return history, rows.Err()
}
