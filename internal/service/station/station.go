// internal/service/station/station.go
package station

import (
	"context"
	"errors"
	"fmt"
	"time"

	"glasstrace-service/internal/domain/order"
	"glasstrace-service/internal/domain/station"
	xerrors "glasstrace-service/internal/pkg/errors"
	"glasstrace-service/internal/pkg/jwt"
	"glasstrace-service/internal/pkg/sessioncache"
	"glasstrace-service/internal/repository/postgres"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

type StationService struct {
	stationRepo *postgres.StationRepository
	pieceRepo   *postgres.PieceRepository
	jwtManager  *jwt.Manager
	cache       *sessioncache.Cache
	rateLimiter *sessioncache.RateLimiter
	logger      *zap.Logger
}

func NewStationService(
	stationRepo *postgres.StationRepository,
	pieceRepo *postgres.PieceRepository,
	jwtManager *jwt.Manager,
	cache *sessioncache.Cache,
	rateLimiter *sessioncache.RateLimiter,
	logger *zap.Logger,
) *StationService {
	return &StationService{
		stationRepo: stationRepo,
		pieceRepo:   pieceRepo,
		jwtManager:  jwtManager,
		cache:       cache,
		rateLimiter: rateLimiter,
		logger:      logger,
	}
}

// ========== Station Authentication ==========

// VerifyStation checks a station credential pair and returns the station
// metadata. Unknown stations, inactive stations and wrong secrets all
// collapse into ErrStationCredentials so callers cannot probe identifiers.
func (s *StationService) VerifyStation(ctx context.Context, stationID, stationSecret string) (*station.Station, error) {
	allowed, err := s.rateLimiter.CheckStationAuthAttempt(ctx, stationID)
	if err != nil {
		return nil, fmt.Errorf("rate limiter error: %w", err)
	}
	if !allowed {
		return nil, xerrors.ErrRateLimited
	}

	st, err := s.stationRepo.GetStation(ctx, stationID)
	if err != nil {
		if errors.Is(err, xerrors.ErrNotFound) {
			return nil, xerrors.ErrStationCredentials
		}
		return nil, err
	}

	if !st.Active {
		return nil, xerrors.ErrStationCredentials
	}

	if err := bcrypt.CompareHashAndPassword([]byte(st.SecretHash), []byte(stationSecret)); err != nil {
		s.logger.Warn("station authentication failed", zap.String("station_id", stationID))
		return nil, xerrors.ErrStationCredentials
	}

	return st, nil
}

// IssueSessionProof mints the short-lived proof a verified station
// exchanges for a service session.
func (s *StationService) IssueSessionProof(stationID string) (string, error) {
	return s.jwtManager.Generator.GenerateStationProof(stationID)
}

// ========== Service Sessions ==========

// CreateServiceSession opens a service-session row. The request must carry
// a proof minted by a recent successful authentication of the same station;
// each proof opens at most one session. Session metadata comes from the
// station record, so the secret holder cannot spoof name or permissions.
// Older active rows of the same station are superseded best-effort; the
// expiry column remains the authoritative tie-breaker.
func (s *StationService) CreateServiceSession(ctx context.Context, req *station.CreateServiceSessionRequest) (*station.ServiceSession, error) {
	stationID, jti, err := s.jwtManager.Verifier.VerifyStationProof(req.AuthProof)
	if err != nil || stationID != req.StationID {
		s.logger.Warn("service session request with invalid proof",
			zap.String("station_id", req.StationID), zap.Error(err))
		return nil, xerrors.ErrStationCredentials
	}

	used, err := s.cache.IsTokenBlacklisted(ctx, jti)
	if err != nil {
		return nil, fmt.Errorf("proof replay check failed: %w", err)
	}
	if used {
		return nil, xerrors.ErrStationCredentials
	}

	st, err := s.stationRepo.GetStation(ctx, stationID)
	if err != nil {
		if errors.Is(err, xerrors.ErrNotFound) {
			return nil, xerrors.ErrStationCredentials
		}
		return nil, err
	}
	if !st.Active {
		return nil, xerrors.ErrStationCredentials
	}

	sess := &station.ServiceSession{
		ID:          ulid.Make().String(),
		StationID:   st.ID,
		StationName: st.Name,
		Location:    st.Location,
		Permissions: st.Permissions,
		ExpiresAt:   req.ExpiresAt,
	}

	if err := s.stationRepo.CreateServiceSession(ctx, sess); err != nil {
		return nil, err
	}

	if err := s.cache.BlacklistToken(ctx, jti, jwt.StationProofTTL); err != nil {
		s.logger.Warn("failed to mark session proof consumed",
			zap.String("station_id", stationID), zap.Error(err))
	}

	if err := s.stationRepo.DeactivateStationSessions(ctx, st.ID, sess.ID); err != nil {
		s.logger.Warn("failed to supersede older station sessions",
			zap.String("station_id", st.ID), zap.Error(err))
	}

	return sess, nil
}

// ValidateServiceSession resolves a service-session id and checks that the
// row still authorizes operations.
func (s *StationService) ValidateServiceSession(ctx context.Context, id string) (*station.ServiceSession, error) {
	sess, err := s.stationRepo.GetServiceSession(ctx, id)
	if err != nil {
		return nil, err
	}
	if !sess.ValidAt(time.Now()) {
		return nil, xerrors.ErrSessionExpired
	}
	return sess, nil
}

// UpdateServiceSession patches a service-session row
func (s *StationService) UpdateServiceSession(ctx context.Context, id string, req *station.UpdateServiceSessionRequest) error {
	return s.stationRepo.UpdateServiceSession(ctx, id, req)
}

// TouchServiceSession stamps last activity, best effort
func (s *StationService) TouchServiceSession(ctx context.Context, id string) {
	if err := s.stationRepo.TouchServiceSession(ctx, id, time.Now()); err != nil {
		s.logger.Warn("failed to touch service session", zap.String("id", id), zap.Error(err))
	}
}

// ========== Piece Operations ==========

// UpdatePieceStatus applies a scanned status change atomically: the piece
// status mutation and its audit entry land in one transaction or not at all.
func (s *StationService) UpdatePieceStatus(ctx context.Context, barcode string, newStatus order.PieceStatus, stationID, actorLabel, notes string) (*order.Piece, error) {
	if !newStatus.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", xerrors.ErrInvalidInput, newStatus)
	}

	piece, err := s.pieceRepo.UpdatePieceStatusAtomic(ctx, barcode, newStatus, stationID, actorLabel, notes)
	if err != nil {
		return nil, err
	}

	s.logger.Info("piece status updated",
		zap.String("barcode", barcode),
		zap.String("status", string(newStatus)),
		zap.String("station_id", stationID),
		zap.String("actor", actorLabel))

	return piece, nil
}

// GetPieceWithOrder looks up a piece joined with its order context
func (s *StationService) GetPieceWithOrder(ctx context.Context, barcode string) (*order.PieceWithOrder, error) {
	return s.pieceRepo.GetPieceWithOrder(ctx, barcode)
}
