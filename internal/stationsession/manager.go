// internal/stationsession/manager.go

// Package stationsession manages the unattended service credential of a
// scanning station: it authenticates the station, keeps a long-lived
// service-session row alive ahead of expiry, re-authenticates lazily when
// the row lapses anyway, and marks the row inactive on shutdown.
package stationsession

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"glasstrace-service/internal/domain/order"
	"glasstrace-service/internal/domain/station"
	"glasstrace-service/internal/pkg/clock"
	xerrors "glasstrace-service/internal/pkg/errors"
	"glasstrace-service/internal/store"

	"go.uber.org/zap"
)

const (
	// Service sessions live half a day; renewal runs well ahead of expiry
	// so a missed renewal still leaves a two hour window for lazy
	// recovery before operations start failing.
	sessionTTL      = 12 * time.Hour
	renewalInterval = 10 * time.Hour

	opTimeout = 15 * time.Second
)

// ErrNoCredentials is returned by New when the station credential pair is
// incomplete. A manager is only ever constructed for a fully configured
// station.
var ErrNoCredentials = errors.New("station id and secret are both required")

// Manager owns one station's service session. All exported methods are safe
// for concurrent use.
type Manager struct {
	store  store.Store
	clock  clock.Clock
	logger *zap.Logger

	stationID     string
	stationSecret string

	mu         sync.Mutex
	info       *store.StationInfo
	session    *station.ServiceSession
	renewTimer clock.Timer
	generation uint64
	closed     bool
}

func New(st store.Store, clk clock.Clock, stationID, stationSecret string, logger *zap.Logger) (*Manager, error) {
	if stationID == "" || stationSecret == "" {
		return nil, ErrNoCredentials
	}
	if clk == nil {
		clk = clock.New()
	}
	return &Manager{
		store:         st,
		clock:         clk,
		logger:        logger,
		stationID:     stationID,
		stationSecret: stationSecret,
	}, nil
}

// Initialize authenticates the station, opens a fresh service session and
// arms the renewal timer. Safe to call again at any point; the previous
// session row is simply superseded.
func (m *Manager) Initialize(ctx context.Context) error {
	info, err := m.store.AuthenticateStation(ctx, m.stationID, m.stationSecret)
	if err != nil {
		if xerrors.IsCredentialError(err) {
			m.logger.Error("station credentials rejected", zap.String("station_id", m.stationID), zap.Error(err))
		}
		return fmt.Errorf("station authentication failed: %w", err)
	}

	now := m.clock.Now()
	sess, err := m.store.InsertServiceSession(ctx, &station.CreateServiceSessionRequest{
		StationID:   m.stationID,
		StationName: info.Name,
		Location:    info.Location,
		Permissions: info.Permissions,
		ExpiresAt:   now.Add(sessionTTL),
	})
	if err != nil {
		return fmt.Errorf("failed to open service session: %w", err)
	}

	m.mu.Lock()
	m.generation++
	m.info = info
	m.session = sess
	m.armRenewalLocked()
	m.mu.Unlock()

	m.logger.Info("service session established",
		zap.String("station_id", m.stationID),
		zap.String("session_id", sess.ID),
		zap.Time("expires_at", sess.ExpiresAt))
	return nil
}

func (m *Manager) armRenewalLocked() {
	if m.renewTimer != nil {
		m.renewTimer.Stop()
	}
	gen := m.generation
	m.renewTimer = m.clock.AfterFunc(renewalInterval, func() {
		m.renew(gen)
	})
}

// renew extends the current session's expiry in place. If the extension
// fails for any reason the whole credential is rebuilt from scratch; if
// even that fails, the next operation re-authenticates lazily.
func (m *Manager) renew(gen uint64) {
	m.mu.Lock()
	if m.generation != gen || m.closed || m.session == nil {
		m.mu.Unlock()
		return
	}
	sessionID := m.session.ID
	m.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	expiresAt := m.clock.Now().Add(sessionTTL)
	err := m.store.UpdateServiceSession(ctx, sessionID, &station.UpdateServiceSessionRequest{
		ExpiresAt: &expiresAt,
	})
	if err == nil {
		m.mu.Lock()
		if m.generation == gen && m.session != nil {
			m.session.ExpiresAt = expiresAt
			m.armRenewalLocked()
		}
		m.mu.Unlock()
		m.logger.Info("service session renewed",
			zap.String("session_id", sessionID),
			zap.Time("expires_at", expiresAt))
		return
	}

	m.logger.Warn("service session renewal failed, re-authenticating",
		zap.String("session_id", sessionID), zap.Error(err))
	if err := m.Initialize(ctx); err != nil {
		m.logger.Error("station re-authentication failed, will retry on next operation", zap.Error(err))
	}
}

// ensureSession returns a currently valid session, re-authenticating first
// if the held one is missing, expired or deactivated.
func (m *Manager) ensureSession(ctx context.Context) (*station.ServiceSession, error) {
	m.mu.Lock()
	sess := m.session
	closed := m.closed
	m.mu.Unlock()

	if closed {
		return nil, fmt.Errorf("station session manager is closed")
	}
	if sess.ValidAt(m.clock.Now()) {
		return sess, nil
	}

	if sess != nil {
		m.logger.Info("service session lapsed, re-authenticating",
			zap.String("session_id", sess.ID))
	}
	if err := m.Initialize(ctx); err != nil {
		return nil, err
	}

	m.mu.Lock()
	sess = m.session
	m.mu.Unlock()
	return sess, nil
}

// UpdatePieceStatus applies a scanned status transition under this
// station's credential. The piece mutation is atomic server-side; the
// activity stamp afterwards is best effort only.
func (m *Manager) UpdatePieceStatus(ctx context.Context, barcode string, newStatus order.PieceStatus, notes string) (*order.Piece, error) {
	sess, err := m.ensureSession(ctx)
	if err != nil {
		return nil, err
	}

	piece, err := m.store.UpdatePieceStatusAtomic(ctx, barcode, newStatus, m.stationID, sess.StationName, notes)
	if err != nil {
		return nil, err
	}

	m.touch(ctx, sess.ID)
	return piece, nil
}

// GetPieceInfo resolves a scanned barcode to the piece and its order. A
// lookup is a pure read; only status transitions stamp session activity.
func (m *Manager) GetPieceInfo(ctx context.Context, barcode string) (*order.PieceWithOrder, error) {
	if _, err := m.ensureSession(ctx); err != nil {
		return nil, err
	}

	return m.store.GetPieceWithOrder(ctx, barcode)
}

func (m *Manager) touch(ctx context.Context, sessionID string) {
	now := m.clock.Now()
	err := m.store.UpdateServiceSession(ctx, sessionID, &station.UpdateServiceSessionRequest{
		LastActivityAt: &now,
	})
	if err != nil {
		m.logger.Warn("failed to stamp service session activity",
			zap.String("session_id", sessionID), zap.Error(err))
	}
}

// Session returns the currently held service session, if any.
func (m *Manager) Session() *station.ServiceSession {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session
}

// Cleanup marks the service session inactive and disarms the renewal
// timer. The row stays behind for audit; only its authorization ends.
func (m *Manager) Cleanup(ctx context.Context) error {
	m.mu.Lock()
	m.generation++
	m.closed = true
	if m.renewTimer != nil {
		m.renewTimer.Stop()
		m.renewTimer = nil
	}
	sess := m.session
	m.session = nil
	m.mu.Unlock()

	if sess == nil {
		return nil
	}

	inactive := false
	err := m.store.UpdateServiceSession(ctx, sess.ID, &station.UpdateServiceSessionRequest{
		Active: &inactive,
	})
	if err != nil {
		m.logger.Warn("failed to deactivate service session",
			zap.String("session_id", sess.ID), zap.Error(err))
		return err
	}

	m.logger.Info("service session closed", zap.String("session_id", sess.ID))
	return nil
}
