// internal/stationsession/manager_test.go
package stationsession

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"glasstrace-service/internal/domain/auth"
	"glasstrace-service/internal/domain/order"
	"glasstrace-service/internal/domain/station"
	"glasstrace-service/internal/pkg/clock"
	xerrors "glasstrace-service/internal/pkg/errors"
	"glasstrace-service/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var t0 = time.Date(2025, 6, 2, 6, 0, 0, 0, time.UTC)

// ========== Fakes ==========

type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

type fakeTimer struct {
	clk      *fakeClock
	deadline time.Time
	fn       func()
	stopped  bool
	fired    bool
}

func newFakeClock(start time.Time) *fakeClock {
	return &fakeClock{now: start}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) AfterFunc(d time.Duration, fn func()) clock.Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{clk: c, deadline: c.now.Add(d), fn: fn}
	c.timers = append(c.timers, t)
	return t
}

func (t *fakeTimer) Stop() bool {
	t.clk.mu.Lock()
	defer t.clk.mu.Unlock()
	if t.fired || t.stopped {
		return false
	}
	t.stopped = true
	return true
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.now.Add(d)
	c.mu.Unlock()

	for {
		c.mu.Lock()
		var next *fakeTimer
		for _, t := range c.timers {
			if t.stopped || t.fired || t.deadline.After(target) {
				continue
			}
			if next == nil || t.deadline.Before(next.deadline) {
				next = t
			}
		}
		if next == nil {
			c.now = target
			c.mu.Unlock()
			return
		}
		next.fired = true
		if next.deadline.After(c.now) {
			c.now = next.deadline
		}
		fn := next.fn
		c.mu.Unlock()

		fn()
	}
}

// fakeBackend covers the station slice of store.Store.
type fakeBackend struct {
	mu sync.Mutex

	authErr   error
	updateErr error

	authCalls   int
	insertCalls int
	scanCalls   int

	updates []struct {
		id  string
		req station.UpdateServiceSessionRequest
	}

	lastInsert *station.CreateServiceSessionRequest
}

func (f *fakeBackend) AuthenticateStation(ctx context.Context, stationID, stationSecret string) (*store.StationInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.authCalls++
	if f.authErr != nil {
		return nil, f.authErr
	}
	return &store.StationInfo{
		Name:        "Tempering Oven 1",
		Location:    "Hall B",
		Permissions: []string{"scan:tempering"},
	}, nil
}

func (f *fakeBackend) InsertServiceSession(ctx context.Context, req *station.CreateServiceSessionRequest) (*station.ServiceSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.insertCalls++
	f.lastInsert = req
	return &station.ServiceSession{
		ID:          fmt.Sprintf("svc-%d", f.insertCalls),
		StationID:   req.StationID,
		StationName: req.StationName,
		Permissions: req.Permissions,
		ExpiresAt:   req.ExpiresAt,
		Active:      true,
	}, nil
}

func (f *fakeBackend) UpdateServiceSession(ctx context.Context, id string, req *station.UpdateServiceSessionRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updateErr != nil {
		return f.updateErr
	}
	f.updates = append(f.updates, struct {
		id  string
		req station.UpdateServiceSessionRequest
	}{id, *req})
	return nil
}

func (f *fakeBackend) UpdatePieceStatusAtomic(ctx context.Context, barcode string, newStatus order.PieceStatus, stationID, actorLabel, notes string) (*order.Piece, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scanCalls++
	return &order.Piece{Barcode: barcode, Status: newStatus}, nil
}

func (f *fakeBackend) GetPieceWithOrder(ctx context.Context, barcode string) (*order.PieceWithOrder, error) {
	return &order.PieceWithOrder{
		Piece:       order.Piece{Barcode: barcode, Status: order.StatusCutting},
		OrderNumber: "GLS-20250101-000123",
		ClientName:  "Acme Glazing",
	}, nil
}

// User-session operations are not exercised by the station manager.

func (f *fakeBackend) GetSession(ctx context.Context) (*store.Session, error) { return nil, nil }
func (f *fakeBackend) RefreshSession(ctx context.Context) (*store.Session, error) {
	return nil, xerrors.ErrInvalidRefreshToken
}
func (f *fakeBackend) SignInWithPassword(ctx context.Context, identity, secret string) (*store.Session, error) {
	return nil, xerrors.ErrInvalidCredentials
}
func (f *fakeBackend) SignUp(ctx context.Context, identity, secret, displayName string) (*store.Session, error) {
	return nil, xerrors.ErrInvalidCredentials
}
func (f *fakeBackend) SignOut(ctx context.Context, scope store.SignOutScope) error { return nil }
func (f *fakeBackend) OnAuthStateChange(ctx context.Context, handler store.AuthEventHandler) (func(), error) {
	return func() {}, nil
}
func (f *fakeBackend) FetchProfile(ctx context.Context, subjectID int64) (*auth.UserProfile, error) {
	return nil, xerrors.ErrNotFound
}

func (f *fakeBackend) AuthCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.authCalls
}

func (f *fakeBackend) InsertCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.insertCalls
}

// ========== Tests ==========

func newTestManager(t *testing.T) (*Manager, *fakeBackend, *fakeClock) {
	t.Helper()
	fb := &fakeBackend{}
	clk := newFakeClock(t0)
	m, err := New(fb, clk, "STATION_TEMPERING_01", "hunter2", zap.NewNop())
	require.NoError(t, err)
	return m, fb, clk
}

func TestNewRequiresBothCredentials(t *testing.T) {
	fb := &fakeBackend{}
	clk := newFakeClock(t0)

	_, err := New(fb, clk, "", "secret", zap.NewNop())
	assert.ErrorIs(t, err, ErrNoCredentials)

	_, err = New(fb, clk, "STATION_X", "", zap.NewNop())
	assert.ErrorIs(t, err, ErrNoCredentials)
}

func TestInitializeOpensServiceSession(t *testing.T) {
	m, fb, _ := newTestManager(t)

	require.NoError(t, m.Initialize(context.Background()))

	assert.Equal(t, 1, fb.AuthCalls())
	assert.Equal(t, 1, fb.InsertCalls())

	sess := m.Session()
	require.NotNil(t, sess)
	assert.Equal(t, "STATION_TEMPERING_01", sess.StationID)
	assert.Equal(t, "Tempering Oven 1", sess.StationName)
	assert.Equal(t, t0.Add(sessionTTL), sess.ExpiresAt)
}

func TestRenewalExtendsExpiryInPlace(t *testing.T) {
	m, fb, clk := newTestManager(t)
	require.NoError(t, m.Initialize(context.Background()))

	clk.Advance(renewalInterval)

	// Renewal patches the existing row; no second authentication.
	assert.Equal(t, 1, fb.AuthCalls())
	assert.Equal(t, 1, fb.InsertCalls())

	fb.mu.Lock()
	require.Len(t, fb.updates, 1)
	update := fb.updates[0]
	fb.mu.Unlock()
	assert.Equal(t, "svc-1", update.id)
	require.NotNil(t, update.req.ExpiresAt)
	assert.Equal(t, t0.Add(renewalInterval+sessionTTL), *update.req.ExpiresAt)

	sess := m.Session()
	assert.Equal(t, t0.Add(renewalInterval+sessionTTL), sess.ExpiresAt)

	// The renewal cycle keeps going: another interval, another extension.
	clk.Advance(renewalInterval)
	fb.mu.Lock()
	assert.Len(t, fb.updates, 2)
	fb.mu.Unlock()
}

func TestRenewalFailureRebuildsCredential(t *testing.T) {
	m, fb, clk := newTestManager(t)
	require.NoError(t, m.Initialize(context.Background()))

	fb.mu.Lock()
	fb.updateErr = errors.New("connection refused")
	fb.mu.Unlock()

	clk.Advance(renewalInterval)

	// The failed extension triggers a full re-authentication.
	assert.Equal(t, 2, fb.AuthCalls())
	assert.Equal(t, 2, fb.InsertCalls())
	assert.Equal(t, "svc-2", m.Session().ID)
}

func TestLazyReauthenticationAfterLapse(t *testing.T) {
	m, fb, clk := newTestManager(t)
	require.NoError(t, m.Initialize(context.Background()))

	// Renewal and the fallback re-authentication both fail, so the
	// session lapses at its original expiry.
	fb.mu.Lock()
	fb.updateErr = errors.New("connection refused")
	fb.authErr = errors.New("connection refused")
	fb.mu.Unlock()

	clk.Advance(renewalInterval)
	require.Equal(t, 2, fb.AuthCalls())
	require.Equal(t, 1, fb.InsertCalls())

	// Past expiry with the backend reachable again: the next scan
	// re-authenticates transparently.
	fb.mu.Lock()
	fb.updateErr = nil
	fb.authErr = nil
	fb.mu.Unlock()
	clk.Advance(sessionTTL - renewalInterval + time.Minute)

	piece, err := m.UpdatePieceStatus(context.Background(), "GLS-20250101-000123-P001", order.StatusTempering, "")
	require.NoError(t, err)
	assert.Equal(t, order.StatusTempering, piece.Status)
	assert.Equal(t, 3, fb.AuthCalls())
	assert.Equal(t, 2, fb.InsertCalls())

	// Re-authentication happens once per lapse, not per scan.
	_, err = m.UpdatePieceStatus(context.Background(), "GLS-20250101-000123-P002", order.StatusTempering, "")
	require.NoError(t, err)
	assert.Equal(t, 3, fb.AuthCalls())
}

func TestUpdatePieceStatusStampsActivity(t *testing.T) {
	m, fb, _ := newTestManager(t)
	require.NoError(t, m.Initialize(context.Background()))

	_, err := m.UpdatePieceStatus(context.Background(), "GLS-20250101-000123-P001", order.StatusCutting, "first cut")
	require.NoError(t, err)

	fb.mu.Lock()
	defer fb.mu.Unlock()
	assert.Equal(t, 1, fb.scanCalls)
	require.Len(t, fb.updates, 1)
	assert.Equal(t, "svc-1", fb.updates[0].id)
	assert.NotNil(t, fb.updates[0].req.LastActivityAt)
	assert.Nil(t, fb.updates[0].req.ExpiresAt)
}

func TestGetPieceInfoIsReadOnly(t *testing.T) {
	m, fb, _ := newTestManager(t)
	require.NoError(t, m.Initialize(context.Background()))

	pw, err := m.GetPieceInfo(context.Background(), "GLS-20250101-000123-P001")
	require.NoError(t, err)
	assert.Equal(t, "GLS-20250101-000123", pw.OrderNumber)

	// A lookup must not write anything to the session row.
	fb.mu.Lock()
	defer fb.mu.Unlock()
	assert.Empty(t, fb.updates)
}

func TestStationCredentialRejectionSurfaces(t *testing.T) {
	m, fb, _ := newTestManager(t)
	fb.authErr = xerrors.ErrStationCredentials

	err := m.Initialize(context.Background())
	require.ErrorIs(t, err, xerrors.ErrStationCredentials)
	assert.Nil(t, m.Session())
}

func TestCleanupDeactivatesSession(t *testing.T) {
	m, fb, clk := newTestManager(t)
	require.NoError(t, m.Initialize(context.Background()))

	require.NoError(t, m.Cleanup(context.Background()))

	fb.mu.Lock()
	require.Len(t, fb.updates, 1)
	update := fb.updates[0]
	fb.mu.Unlock()
	assert.Equal(t, "svc-1", update.id)
	require.NotNil(t, update.req.Active)
	assert.False(t, *update.req.Active)
	assert.Nil(t, m.Session())

	// No renewal fires after cleanup.
	clk.Advance(2 * renewalInterval)
	assert.Equal(t, 1, fb.AuthCalls())

	// And no operation re-authenticates a closed manager.
	_, err := m.UpdatePieceStatus(context.Background(), "GLS-20250101-000123-P001", order.StatusCutting, "")
	require.Error(t, err)
	assert.Equal(t, 1, fb.AuthCalls())
}
