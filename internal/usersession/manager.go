// internal/usersession/manager.go

// Package usersession owns the client-side lifecycle of an operator's
// session: startup recovery, proactive token renewal, retry with backoff,
// activity-driven renewal and auth-event handling.
package usersession

import (
	"context"
	"fmt"
	"sync"
	"time"

	"glasstrace-service/internal/domain/auth"
	"glasstrace-service/internal/pkg/backoff"
	"glasstrace-service/internal/pkg/clock"
	xerrors "glasstrace-service/internal/pkg/errors"
	"glasstrace-service/internal/store"

	"go.uber.org/zap"
)

const (
	// Renewal is scheduled this far ahead of token expiry.
	renewalLead = 5 * time.Minute
	// If the renewal point is closer than this, renew almost immediately
	// instead of cutting it fine.
	minRenewalLead  = 1 * time.Minute
	nearExpiryGrace = 10 * time.Second
	minRenewalDelay = 5 * time.Second

	// Activity recording is throttled; each accepted sample re-arms the
	// inactivity timer. The timer firing triggers a proactive renewal, in
	// case the store invalidated the session while the operator was idle.
	activityThrottle  = 60 * time.Second
	inactivityTimeout = 30 * time.Minute

	// A startup that stays in loading longer than this is treated as hung
	// and force-resolved to unauthenticated.
	loadingDeadline = 10 * time.Second

	retryBase  = 2 * time.Second
	maxRetries = 3
	dedupSlots = 10
)

// Snapshot is an immutable view of the manager's state, safe to hand to
// subscribers and route guards.
type Snapshot struct {
	Session      *store.Session
	Profile      *auth.UserProfile
	Loading      bool
	LoadingSince time.Time
	IsRefreshing bool
	LastActivity time.Time
}

// Authenticated reports whether the snapshot carries a live session.
func (s Snapshot) Authenticated() bool {
	return s.Session != nil
}

// Listener is invoked after every state change. Called without internal
// locks held; implementations may call back into the manager.
type Listener func(Snapshot)

// Manager drives the user session state machine. All exported methods are
// safe for concurrent use.
type Manager struct {
	store  store.Store
	clock  clock.Clock
	logger *zap.Logger

	mu           sync.Mutex
	session      *store.Session
	profile      *auth.UserProfile
	loading      bool
	loadingSince time.Time
	refreshing   bool
	lastActivity time.Time
	lastRecorded time.Time

	// generation invalidates timer callbacks armed under a previous state.
	generation uint64

	renewTimer      clock.Timer
	retryTimer      clock.Timer
	inactivityTimer clock.Timer
	loadingTimer    clock.Timer

	retry backoff.Policy

	// ring of recently seen event fingerprints, for de-duplicating pushed
	// auth events against locally applied transitions.
	ring    [dedupSlots]string
	ringIdx int

	unsubscribe func()

	listeners    map[int]Listener
	nextListener int
}

func NewManager(st store.Store, clk clock.Clock, logger *zap.Logger) *Manager {
	if clk == nil {
		clk = clock.New()
	}
	return &Manager{
		store:     st,
		clock:     clk,
		logger:    logger,
		retry:     backoff.Policy{Base: retryBase, MaxAttempts: maxRetries},
		listeners: make(map[int]Listener),
	}
}

// Subscribe registers a listener and returns its remover. The listener is
// immediately called with the current state.
func (m *Manager) Subscribe(fn Listener) func() {
	m.mu.Lock()
	id := m.nextListener
	m.nextListener++
	m.listeners[id] = fn
	snap := m.snapshotLocked()
	m.mu.Unlock()

	fn(snap)
	return func() {
		m.mu.Lock()
		delete(m.listeners, id)
		m.mu.Unlock()
	}
}

// Snapshot returns the current state.
func (m *Manager) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

func (m *Manager) snapshotLocked() Snapshot {
	return Snapshot{
		Session:      m.session,
		Profile:      m.profile,
		Loading:      m.loading,
		LoadingSince: m.loadingSince,
		IsRefreshing: m.refreshing,
		LastActivity: m.lastActivity,
	}
}

// ========== Startup ==========

// Initialize recovers a persisted session, loads the profile and starts the
// renewal machinery. It always resolves the loading state: any failure
// lands in a clean unauthenticated state rather than an endless spinner.
func (m *Manager) Initialize(ctx context.Context) error {
	m.mu.Lock()
	m.loading = true
	m.loadingSince = m.clock.Now()
	gen := m.generation
	m.mu.Unlock()
	m.notify()

	// Watchdog: if this startup hangs past the deadline, treat it as an
	// authentication loop. Local state is torn down and a local-scope
	// sign-out clears any persisted credential that keeps causing the hang.
	watchdog := m.clock.AfterFunc(loadingDeadline, func() {
		m.mu.Lock()
		stuck := m.loading && m.generation == gen
		if stuck {
			m.logger.Error("startup did not resolve in time, forcing unauthenticated state",
				zap.Duration("deadline", loadingDeadline))
			m.resetLocked()
		}
		m.mu.Unlock()
		if stuck {
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if serr := m.store.SignOut(sctx, store.SignOutLocal); serr != nil {
				m.logger.Warn("local sign-out after stalled startup failed", zap.Error(serr))
			}
			m.notify()
		}
	})
	defer watchdog.Stop()

	session, err := m.store.GetSession(ctx)
	m.mu.Lock()
	if m.generation != gen {
		// The watchdog already resolved this startup; a late result must
		// not resurrect it.
		m.mu.Unlock()
		return nil
	}
	m.mu.Unlock()
	if err != nil {
		if xerrors.IsCredentialError(err) {
			m.logger.Info("persisted session rejected, starting unauthenticated", zap.Error(err))
		} else {
			m.logger.Warn("session recovery failed, starting unauthenticated", zap.Error(err))
		}
		m.resolveUnauthenticated(gen)
		return nil
	}
	if session == nil {
		m.resolveUnauthenticated(gen)
		return nil
	}

	profile, err := m.store.FetchProfile(ctx, session.SubjectID)
	if err != nil {
		m.logger.Warn("profile fetch failed during startup", zap.Error(err))
		if xerrors.IsCredentialError(err) {
			m.resolveUnauthenticated(gen)
			return nil
		}
		// Transient fault: keep the session, the profile can be fetched
		// again on the next auth event.
	} else if !profile.Active {
		m.logger.Warn("profile inactive, discarding recovered session",
			zap.Int64("subject_id", session.SubjectID))
		if err := m.store.SignOut(ctx, store.SignOutLocal); err != nil {
			m.logger.Warn("sign-out of inactive profile failed", zap.Error(err))
		}
		m.resolveUnauthenticated(gen)
		return xerrors.ErrProfileInactive
	}

	m.mu.Lock()
	if m.generation != gen {
		m.mu.Unlock()
		return nil
	}
	m.mu.Unlock()

	m.adoptSession(auth.EventSignedIn, session, profile)
	m.ensureSubscription(ctx)
	return nil
}

func (m *Manager) resolveUnauthenticated(gen uint64) {
	m.mu.Lock()
	if m.generation == gen {
		m.resetLocked()
	}
	m.mu.Unlock()
	m.notify()
}

// ensureSubscription starts the pushed-event subscription if none is live.
func (m *Manager) ensureSubscription(ctx context.Context) {
	m.mu.Lock()
	already := m.unsubscribe != nil
	m.mu.Unlock()
	if already {
		return
	}

	cancel, err := m.store.OnAuthStateChange(ctx, m.handleAuthEvent)
	if err != nil {
		m.logger.Warn("auth event subscription unavailable", zap.Error(err))
		return
	}
	m.mu.Lock()
	m.unsubscribe = cancel
	m.mu.Unlock()
}

// ========== Sign-in / Sign-up / Sign-out ==========

func (m *Manager) SignIn(ctx context.Context, identity, secret string) error {
	session, err := m.store.SignInWithPassword(ctx, identity, secret)
	if err != nil {
		return err
	}
	m.afterAuthentication(ctx, auth.EventSignedIn, session)
	return nil
}

func (m *Manager) SignUp(ctx context.Context, identity, secret, displayName string) error {
	session, err := m.store.SignUp(ctx, identity, secret, displayName)
	if err != nil {
		return err
	}
	m.afterAuthentication(ctx, auth.EventSignedIn, session)
	return nil
}

func (m *Manager) afterAuthentication(ctx context.Context, kind auth.EventKind, session *store.Session) {
	profile, err := m.store.FetchProfile(ctx, session.SubjectID)
	if err != nil {
		m.logger.Warn("profile fetch failed after authentication", zap.Error(err))
		profile = nil
	}
	m.adoptSession(kind, session, profile)
	m.ensureSubscription(ctx)
}

// SignOut revokes the session and resets local state. The reset happens
// even when the server call fails: a user who asked to leave, leaves.
func (m *Manager) SignOut(ctx context.Context, scope store.SignOutScope) error {
	m.mu.Lock()
	session := m.session
	m.mu.Unlock()
	if session == nil {
		return nil
	}

	err := m.store.SignOut(ctx, scope)
	if err != nil {
		m.logger.Warn("server sign-out failed", zap.Error(err))
	}

	m.mu.Lock()
	m.rememberLocked(fingerprint(auth.EventSignedOut, session.SubjectID, session.ExpiresAt))
	m.resetLocked()
	m.mu.Unlock()
	m.notify()
	return err
}

// forceSignOut is the terminal path for unrecoverable renewal failure.
func (m *Manager) forceSignOut(reason string, err error) {
	m.logger.Error("forcing sign-out", zap.String("reason", reason), zap.Error(err))

	ctx, cancelCtx := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelCtx()
	if serr := m.store.SignOut(ctx, store.SignOutLocal); serr != nil {
		m.logger.Warn("server sign-out failed during forced sign-out", zap.Error(serr))
	}

	m.mu.Lock()
	if m.session != nil {
		m.rememberLocked(fingerprint(auth.EventSignedOut, m.session.SubjectID, m.session.ExpiresAt))
	}
	m.resetLocked()
	m.mu.Unlock()
	m.notify()
}

// resetLocked clears all authenticated state and disarms every timer.
// Bumping the generation invalidates callbacks already armed.
func (m *Manager) resetLocked() {
	m.generation++
	m.session = nil
	m.profile = nil
	m.loading = false
	m.refreshing = false
	m.retry.Reset()
	m.stopTimersLocked()
	if m.unsubscribe != nil {
		m.unsubscribe()
		m.unsubscribe = nil
	}
}

func (m *Manager) stopTimersLocked() {
	for _, t := range []clock.Timer{m.renewTimer, m.retryTimer, m.inactivityTimer} {
		if t != nil {
			t.Stop()
		}
	}
	m.renewTimer, m.retryTimer, m.inactivityTimer = nil, nil, nil
}

// ========== Session adoption & renewal ==========

// adoptSession installs a session as current state and arms the renewal
// and inactivity timers for it.
func (m *Manager) adoptSession(kind auth.EventKind, session *store.Session, profile *auth.UserProfile) {
	m.mu.Lock()
	m.installLocked(kind, session, profile)
	m.mu.Unlock()
	m.notify()
}

func (m *Manager) installLocked(kind auth.EventKind, session *store.Session, profile *auth.UserProfile) {
	m.generation++
	m.session = session
	if profile != nil {
		m.profile = profile
	}
	m.loading = false
	m.refreshing = false
	m.retry.Reset()
	m.lastActivity = m.clock.Now()
	m.rememberLocked(fingerprint(kind, session.SubjectID, session.ExpiresAt))
	m.stopTimersLocked()
	m.armRenewalLocked(session)
	m.armInactivityLocked()
}

// armRenewalLocked schedules the next refresh.
//
// The renewal point sits renewalLead before expiry. If that point is less
// than minRenewalLead away the token is already near expiry, so renewal is
// scheduled almost immediately instead. An already expired token gets no
// timer at all; the next access will fail and take the retry path.
func (m *Manager) armRenewalLocked(session *store.Session) {
	now := m.clock.Now()
	tte := session.ExpiresAt.Sub(now)
	if tte <= 0 {
		m.logger.Warn("session already expired, no renewal scheduled",
			zap.Time("expires_at", session.ExpiresAt))
		return
	}

	var delay time.Duration
	if renewAt := tte - renewalLead; renewAt > minRenewalLead {
		delay = renewAt
	} else {
		delay = tte - nearExpiryGrace
		if delay < minRenewalDelay {
			delay = minRenewalDelay
		}
	}

	gen := m.generation
	m.renewTimer = m.clock.AfterFunc(delay, func() {
		m.refreshIfCurrent(gen, false)
	})
}

func (m *Manager) armInactivityLocked() {
	gen := m.generation
	if m.inactivityTimer != nil {
		m.inactivityTimer.Stop()
	}
	m.inactivityTimer = m.clock.AfterFunc(inactivityTimeout, func() {
		m.logger.Info("idle past inactivity window, renewing proactively",
			zap.Duration("timeout", inactivityTimeout))
		m.refreshIfCurrent(gen, false)
	})
}

func (m *Manager) refreshIfCurrent(gen uint64, forced bool) {
	m.mu.Lock()
	current := m.generation == gen && m.session != nil
	m.mu.Unlock()
	if !current {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	// Failure outcomes are handled inside RefreshSession.
	_ = m.RefreshSession(ctx, forced)
}

// RecordActivity notes user interaction. Samples inside the throttle
// window are dropped; accepted samples re-arm the inactivity timer.
func (m *Manager) RecordActivity() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session == nil {
		return
	}
	now := m.clock.Now()
	if !m.lastRecorded.IsZero() && now.Sub(m.lastRecorded) < activityThrottle {
		return
	}
	m.lastRecorded = now
	m.lastActivity = now
	m.armInactivityLocked()
}

// RefreshSession exchanges the current session for a fresh one.
//
// Concurrent calls collapse into one: while a refresh is in flight every
// other call returns immediately. Unforced calls additionally short-circuit
// when the token is nowhere near expiry.
func (m *Manager) RefreshSession(ctx context.Context, forced bool) error {
	m.mu.Lock()
	if m.session == nil {
		m.mu.Unlock()
		return xerrors.ErrUnauthorized
	}
	if m.refreshing {
		m.mu.Unlock()
		return nil
	}
	if !forced && m.session.ExpiresAt.Sub(m.clock.Now()) > renewalLead {
		session := m.session
		m.stopRenewTimerLocked()
		m.armRenewalLocked(session)
		m.mu.Unlock()
		return nil
	}
	m.refreshing = true
	gen := m.generation
	m.mu.Unlock()
	m.notify()

	session, err := m.store.RefreshSession(ctx)

	m.mu.Lock()
	if m.generation != gen {
		// State moved underneath us (sign-out, pushed event). Discard.
		m.mu.Unlock()
		return nil
	}
	m.refreshing = false

	if err == nil {
		// Installed under the same lock as the generation check above: a
		// sign-out landing while the refresh was in flight must win, not
		// be overwritten by this result.
		m.installLocked(auth.EventTokenRefreshed, session, nil)
		m.mu.Unlock()
		m.notify()
		return nil
	}

	if xerrors.IsCredentialError(err) {
		m.mu.Unlock()
		m.notify()
		m.forceSignOut("refresh token rejected", err)
		return err
	}

	// Transient fault: schedule a retry, or give up after the cap.
	delay, ok := m.retry.Next()
	if !ok {
		m.mu.Unlock()
		m.notify()
		m.forceSignOut(fmt.Sprintf("renewal failed %d times", maxRetries), err)
		return err
	}

	attempt := m.retry.Attempt()
	m.logger.Warn("session renewal failed, will retry",
		zap.Int("attempt", attempt),
		zap.Duration("retry_in", delay),
		zap.Error(err))
	if m.retryTimer != nil {
		m.retryTimer.Stop()
	}
	m.retryTimer = m.clock.AfterFunc(delay, func() {
		m.refreshIfCurrent(gen, true)
	})
	m.mu.Unlock()
	m.notify()
	return err
}

func (m *Manager) stopRenewTimerLocked() {
	if m.renewTimer != nil {
		m.renewTimer.Stop()
		m.renewTimer = nil
	}
}

// ========== Pushed auth events ==========

// handleAuthEvent applies a pushed event unless its fingerprint was already
// seen, which covers both server-side duplicates and echoes of transitions
// this manager applied itself.
func (m *Manager) handleAuthEvent(kind auth.EventKind, session *store.Session) {
	var subjectID int64
	var expiresAt time.Time
	if session != nil {
		subjectID = session.SubjectID
		expiresAt = session.ExpiresAt
	} else {
		m.mu.Lock()
		if m.session != nil {
			subjectID = m.session.SubjectID
			expiresAt = m.session.ExpiresAt
		}
		m.mu.Unlock()
	}

	fp := fingerprint(kind, subjectID, expiresAt)
	m.mu.Lock()
	if m.seenLocked(fp) {
		m.mu.Unlock()
		return
	}
	m.rememberLocked(fp)
	m.mu.Unlock()

	switch kind {
	case auth.EventSignedOut:
		m.clearFromEvent("session revoked remotely")

	case auth.EventSignedIn, auth.EventTokenRefreshed:
		if session == nil {
			// A session-bearing event without its session means the store
			// no longer has one; treat it exactly like a sign-out.
			m.clearFromEvent("auth event arrived without session payload")
			return
		}
		m.adoptSession(kind, session, nil)

	case auth.EventUserUpdated:
		m.mu.Lock()
		current := m.session
		m.mu.Unlock()
		if current == nil {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		profile, err := m.store.FetchProfile(ctx, current.SubjectID)
		if err != nil {
			m.logger.Warn("profile refetch failed", zap.Error(err))
			return
		}
		if !profile.Active {
			m.forceSignOut("profile deactivated", xerrors.ErrProfileInactive)
			return
		}
		m.mu.Lock()
		m.profile = profile
		m.mu.Unlock()
		m.notify()
	}
}

// clearFromEvent tears down local state in response to a pushed event,
// without calling the store: the store already knows.
func (m *Manager) clearFromEvent(reason string) {
	m.mu.Lock()
	had := m.session != nil
	if had {
		m.resetLocked()
	}
	m.mu.Unlock()
	if had {
		m.logger.Info(reason)
		m.notify()
	}
}

func fingerprint(kind auth.EventKind, subjectID int64, expiresAt time.Time) string {
	return fmt.Sprintf("%s|%d|%d", kind, subjectID, expiresAt.Unix())
}

func (m *Manager) seenLocked(fp string) bool {
	for _, s := range m.ring {
		if s == fp {
			return true
		}
	}
	return false
}

func (m *Manager) rememberLocked(fp string) {
	m.ring[m.ringIdx] = fp
	m.ringIdx = (m.ringIdx + 1) % dedupSlots
}

// Close tears down timers and the event subscription without revoking
// anything server-side.
func (m *Manager) Close() {
	m.mu.Lock()
	m.resetLocked()
	m.mu.Unlock()
}

func (m *Manager) notify() {
	m.mu.Lock()
	snap := m.snapshotLocked()
	fns := make([]Listener, 0, len(m.listeners))
	for _, fn := range m.listeners {
		fns = append(fns, fn)
	}
	m.mu.Unlock()
	for _, fn := range fns {
		fn(snap)
	}
}
