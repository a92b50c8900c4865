// internal/repository/postgres/station_repo.go
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"glasstrace-service/internal/domain/station"
	xerrors "glasstrace-service/internal/pkg/errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lib/pq"
)

type StationRepository struct {
	db *pgxpool.Pool
}

func NewStationRepository(db *pgxpool.Pool) *StationRepository {
	return &StationRepository{db: db}
}

// ========== Station Methods ==========

// GetStation retrieves a station by its identifier
func (r *StationRepository) GetStation(ctx context.Context, id string) (*station.Station, error) {
	query := `
		SELECT id, name, location, secret_hash, permissions, active, created_at
		FROM stations
		WHERE id = $1
	`

	var s station.Station
	err := r.db.QueryRow(ctx, query, id).Scan(
		&s.ID, &s.Name, &s.Location, &s.SecretHash, pq.Array(&s.Permissions), &s.Active, &s.CreatedAt,
	)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, xerrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get station: %w", err)
	}

	return &s, nil
}

// ========== Service Session Methods ==========

// CreateServiceSession inserts a new service-session row
func (r *StationRepository) CreateServiceSession(ctx context.Context, s *station.ServiceSession) error {
	query := `
		INSERT INTO service_sessions (id, station_id, station_name, location, permissions,
		                              created_at, expires_at, last_activity_at, active)
		VALUES ($1, $2, $3, $4, $5, NOW(), $6, NOW(), TRUE)
		RETURNING created_at, last_activity_at
	`

	err := r.db.QueryRow(ctx, query,
		s.ID, s.StationID, s.StationName, s.Location, pq.Array(s.Permissions), s.ExpiresAt,
	).Scan(&s.CreatedAt, &s.LastActivityAt)
	if err != nil {
		return fmt.Errorf("failed to create service session: %w", err)
	}

	s.Active = true
	return nil
}

// GetServiceSession retrieves a service session by id
func (r *StationRepository) GetServiceSession(ctx context.Context, id string) (*station.ServiceSession, error) {
	query := `
		SELECT id, station_id, station_name, location, permissions,
		       created_at, expires_at, last_activity_at, active
		FROM service_sessions
		WHERE id = $1
	`

	var s station.ServiceSession
	err := r.db.QueryRow(ctx, query, id).Scan(
		&s.ID, &s.StationID, &s.StationName, &s.Location, pq.Array(&s.Permissions),
		&s.CreatedAt, &s.ExpiresAt, &s.LastActivityAt, &s.Active,
	)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, xerrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get service session: %w", err)
	}

	return &s, nil
}

// UpdateServiceSession patches expiry, last activity and/or the active flag
func (r *StationRepository) UpdateServiceSession(ctx context.Context, id string, req *station.UpdateServiceSessionRequest) error {
	var sets []string
	var args []any

	args = append(args, id)
	if req.ExpiresAt != nil {
		args = append(args, *req.ExpiresAt)
		sets = append(sets, fmt.Sprintf("expires_at = $%d", len(args)))
	}
	if req.LastActivityAt != nil {
		args = append(args, *req.LastActivityAt)
		sets = append(sets, fmt.Sprintf("last_activity_at = $%d", len(args)))
	}
	if req.Active != nil {
		args = append(args, *req.Active)
		sets = append(sets, fmt.Sprintf("active = $%d", len(args)))
	}
	if len(sets) == 0 {
		return xerrors.ErrInvalidInput
	}

	query := fmt.Sprintf(`UPDATE service_sessions SET %s WHERE id = $1`, strings.Join(sets, ", "))

	tag, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update service session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return xerrors.ErrNotFound
	}
	return nil
}

// TouchServiceSession stamps last activity on an active session
func (r *StationRepository) TouchServiceSession(ctx context.Context, id string, at time.Time) error {
	query := `UPDATE service_sessions SET last_activity_at = $2 WHERE id = $1 AND active`

	if _, err := r.db.Exec(ctx, query, id, at); err != nil {
		return fmt.Errorf("failed to touch service session: %w", err)
	}
	return nil
}

// DeactivateStationSessions marks every active session of a station
// inactive, used when a fresh authentication supersedes older rows
func (r *StationRepository) DeactivateStationSessions(ctx context.Context, stationID string, exceptID string) error {
	query := `UPDATE service_sessions SET active = FALSE WHERE station_id = $1 AND active AND id <> $2`

	if _, err := r.db.Exec(ctx, query, stationID, exceptID); err != nil {
		return fmt.Errorf("failed to deactivate station sessions: %w", err)
	}
	return nil
}
