// internal/usersession/fakes_test.go
package usersession

import (
	"context"
	"errors"
	"sync"
	"time"

	"glasstrace-service/internal/domain/auth"
	"glasstrace-service/internal/domain/order"
	"glasstrace-service/internal/domain/station"
	"glasstrace-service/internal/pkg/clock"
	"glasstrace-service/internal/store"
)

// ========== Fake Clock ==========

// fakeClock is a manually advanced clock. Due timers fire synchronously
// inside Advance, outside the clock's own lock, so callbacks may arm new
// timers.
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

// Advance moves time forward, firing due timers in deadline order. Timers
// armed by a firing callback are honored within the same advance.
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

// ========== Fake Store ==========

var errNotWired = errors.New("not wired in this fake")

// fakeStore is a hand-rolled store.Store with pluggable behavior per call.
type fakeStore struct {
	mu sync.Mutex

	getSessionFn func(ctx context.Context) (*store.Session, error)
	refreshFn    func(ctx context.Context) (*store.Session, error)
	signInFn     func(ctx context.Context) (*store.Session, error)
	profile      *auth.UserProfile
	profileErr   error

	refreshCalls  int
	signOutCalls  int
	signOutScopes []store.SignOutScope

	handler store.AuthEventHandler
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		profile: &auth.UserProfile{
			ID:          1,
			IdentityID:  42,
			DisplayName: "Floor Operator",
			Role:        auth.RoleOperator,
			Active:      true,
		},
	}
}

func (f *fakeStore) GetSession(ctx context.Context) (*store.Session, error) {
	f.mu.Lock()
	fn := f.getSessionFn
	f.mu.Unlock()
	if fn == nil {
		return nil, nil
	}
	return fn(ctx)
}

func (f *fakeStore) RefreshSession(ctx context.Context) (*store.Session, error) {
	f.mu.Lock()
	f.refreshCalls++
	fn := f.refreshFn
	f.mu.Unlock()
	if fn == nil {
		return nil, errNotWired
	}
	return fn(ctx)
}

func (f *fakeStore) SignInWithPassword(ctx context.Context, identity, secret string) (*store.Session, error) {
	f.mu.Lock()
	fn := f.signInFn
	f.mu.Unlock()
	if fn == nil {
		return nil, errNotWired
	}
	return fn(ctx)
}

func (f *fakeStore) SignUp(ctx context.Context, identity, secret, displayName string) (*store.Session, error) {
	return f.SignInWithPassword(ctx, identity, secret)
}

func (f *fakeStore) SignOut(ctx context.Context, scope store.SignOutScope) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.signOutCalls++
	f.signOutScopes = append(f.signOutScopes, scope)
	return nil
}

func (f *fakeStore) OnAuthStateChange(ctx context.Context, handler store.AuthEventHandler) (func(), error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handler = handler
	return func() {}, nil
}

func (f *fakeStore) FetchProfile(ctx context.Context, subjectID int64) (*auth.UserProfile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.profileErr != nil {
		return nil, f.profileErr
	}
	return f.profile, nil
}

func (f *fakeStore) RefreshCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.refreshCalls
}

func (f *fakeStore) SignOutCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.signOutCalls
}

func (f *fakeStore) PushEvent(kind auth.EventKind, session *store.Session) {
	f.mu.Lock()
	handler := f.handler
	f.mu.Unlock()
	if handler != nil {
		handler(kind, session)
	}
}

// Station operations are not exercised by the user session manager.

func (f *fakeStore) AuthenticateStation(ctx context.Context, stationID, stationSecret string) (*store.StationInfo, error) {
	return nil, errNotWired
}

func (f *fakeStore) InsertServiceSession(ctx context.Context, req *station.CreateServiceSessionRequest) (*station.ServiceSession, error) {
	return nil, errNotWired
}

func (f *fakeStore) UpdateServiceSession(ctx context.Context, id string, req *station.UpdateServiceSessionRequest) error {
	return errNotWired
}

func (f *fakeStore) UpdatePieceStatusAtomic(ctx context.Context, barcode string, newStatus order.PieceStatus, stationID, actorLabel, notes string) (*order.Piece, error) {
	return nil, errNotWired
}

func (f *fakeStore) GetPieceWithOrder(ctx context.Context, barcode string) (*order.PieceWithOrder, error) {
	return nil, errNotWired
}
