// internal/store/http_store.go
package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"glasstrace-service/internal/domain/auth"
	"glasstrace-service/internal/domain/order"
	"glasstrace-service/internal/domain/station"
	xerrors "glasstrace-service/internal/pkg/errors"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// HTTPStore implements Store against the GlassTrace API server. The current
// session is persisted to a local file so an agent restart can recover it
// without re-prompting for credentials.
type HTTPStore struct {
	baseURL string
	apiKey  string
	client  *http.Client
	logger  *zap.Logger

	mu               sync.Mutex
	session          *Session
	stationProof     string
	serviceSessionID string
	sessionFile      string
}

// envelope mirrors the server's standard response format.
type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   string          `json:"error,omitempty"`
}

func NewHTTPStore(baseURL, apiKey, stateDir string, logger *zap.Logger) *HTTPStore {
	return &HTTPStore{
		baseURL:     strings.TrimRight(baseURL, "/"),
		apiKey:      apiKey,
		client:      &http.Client{Timeout: 15 * time.Second},
		logger:      logger,
		sessionFile: filepath.Join(stateDir, "session.json"),
	}
}

// ========== User Session Operations ==========

func (s *HTTPStore) GetSession(ctx context.Context) (*Session, error) {
	s.mu.Lock()
	session := s.session
	s.mu.Unlock()

	if session == nil {
		session = s.loadPersisted()
	}
	if session == nil {
		// No persisted credential: a normal unauthenticated start.
		return nil, nil
	}

	if session.ExpiresAt.After(time.Now()) {
		s.setSession(session)
		return session, nil
	}

	// Access token expired; try the persisted refresh token.
	s.setSession(session)
	return s.RefreshSession(ctx)
}

func (s *HTTPStore) RefreshSession(ctx context.Context) (*Session, error) {
	s.mu.Lock()
	session := s.session
	s.mu.Unlock()

	if session == nil || session.RefreshToken == "" {
		return nil, xerrors.ErrInvalidRefreshToken
	}

	body := map[string]string{"refresh_token": session.RefreshToken}
	var resp auth.LoginResponse
	err := s.doJSON(ctx, http.MethodPost, "/api/v1/auth/refresh", body, "", &resp)
	if err != nil {
		var se *statusError
		if errors.As(err, &se) && (se.code == http.StatusUnauthorized || se.code == http.StatusForbidden) {
			s.clearPersisted()
			return nil, fmt.Errorf("%w: %s", xerrors.ErrInvalidRefreshToken, se.message)
		}
		return nil, err
	}

	fresh := payloadFromLogin(&resp)
	s.setSession(fresh)
	return fresh, nil
}

func (s *HTTPStore) SignInWithPassword(ctx context.Context, identity, secret string) (*Session, error) {
	body := map[string]string{"email": identity, "password": secret}
	var resp auth.LoginResponse
	err := s.doJSON(ctx, http.MethodPost, "/api/v1/auth/login", body, "", &resp)
	if err != nil {
		var se *statusError
		if errors.As(err, &se) && se.code == http.StatusUnauthorized {
			return nil, fmt.Errorf("%w: %s", xerrors.ErrInvalidCredentials, se.message)
		}
		return nil, err
	}

	session := payloadFromLogin(&resp)
	s.setSession(session)
	return session, nil
}

func (s *HTTPStore) SignUp(ctx context.Context, identity, secret, displayName string) (*Session, error) {
	body := map[string]string{"email": identity, "password": secret, "display_name": displayName}
	var resp auth.LoginResponse
	if err := s.doJSON(ctx, http.MethodPost, "/api/v1/auth/register", body, "", &resp); err != nil {
		return nil, err
	}

	session := payloadFromLogin(&resp)
	s.setSession(session)
	return session, nil
}

func (s *HTTPStore) SignOut(ctx context.Context, scope SignOutScope) error {
	s.mu.Lock()
	session := s.session
	s.mu.Unlock()

	// Local state is cleared no matter what the server says: a sign-out
	// must always leave this client unauthenticated.
	defer s.clearPersisted()

	if session == nil {
		return nil
	}

	body := map[string]string{"scope": string(scope)}
	err := s.doJSON(ctx, http.MethodPost, "/api/v1/auth/logout", body, session.AccessToken, nil)
	if err != nil && scope == SignOutGlobal {
		return err
	}
	if err != nil {
		s.logger.Warn("server sign-out failed, cleared local session anyway", zap.Error(err))
	}
	return nil
}

func (s *HTTPStore) FetchProfile(ctx context.Context, subjectID int64) (*auth.UserProfile, error) {
	s.mu.Lock()
	session := s.session
	s.mu.Unlock()

	if session == nil {
		return nil, xerrors.ErrUnauthorized
	}

	var profile auth.UserProfile
	if err := s.doJSON(ctx, http.MethodGet, "/api/v1/auth/me", nil, session.AccessToken, &profile); err != nil {
		return nil, err
	}
	if profile.IdentityID != subjectID {
		return nil, fmt.Errorf("profile subject mismatch: have %d, want %d", profile.IdentityID, subjectID)
	}
	return &profile, nil
}

// OnAuthStateChange subscribes over websocket. The read loop runs until the
// returned cancel function is called, the context ends, or the connection
// drops; a dropped subscription is not re-established here, the manager's
// own renewal timers keep the session alive regardless.
func (s *HTTPStore) OnAuthStateChange(ctx context.Context, handler AuthEventHandler) (func(), error) {
	s.mu.Lock()
	session := s.session
	s.mu.Unlock()

	if session == nil {
		return nil, xerrors.ErrUnauthorized
	}

	wsURL, err := url.Parse(s.baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base url: %w", err)
	}
	switch wsURL.Scheme {
	case "https":
		wsURL.Scheme = "wss"
	default:
		wsURL.Scheme = "ws"
	}
	wsURL.Path = "/ws"
	q := wsURL.Query()
	q.Set("token", session.AccessToken)
	wsURL.RawQuery = q.Encode()

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to auth events: %w", err)
	}

	done := make(chan struct{})
	go func() {
		defer conn.Close()
		for {
			var event auth.AuthEvent
			if err := conn.ReadJSON(&event); err != nil {
				select {
				case <-done:
				default:
					s.logger.Warn("auth event subscription dropped", zap.Error(err))
				}
				return
			}

			if event.Session != nil {
				// Keep the persisted copy current with pushed token material.
				s.setSession(event.Session)
			}
			handler(event.Kind, event.Session)
		}
	}()

	cancel := func() {
		close(done)
		conn.Close()
	}
	return cancel, nil
}

// ========== Station Operations ==========

func (s *HTTPStore) AuthenticateStation(ctx context.Context, stationID, stationSecret string) (*StationInfo, error) {
	body := station.AuthenticateRequest{StationID: stationID, StationSecret: stationSecret}
	var resp station.AuthenticateResponse
	err := s.doJSON(ctx, http.MethodPost, "/api/v1/stations/authenticate", body, "", &resp)
	if err != nil {
		var se *statusError
		if errors.As(err, &se) && se.code == http.StatusUnauthorized {
			return nil, fmt.Errorf("%w: %s", xerrors.ErrStationCredentials, se.message)
		}
		return nil, err
	}
	if !resp.Success {
		return nil, xerrors.ErrStationCredentials
	}

	// The proof is single-use and short-lived; it is held here only until
	// the matching InsertServiceSession call spends it.
	s.mu.Lock()
	s.stationProof = resp.AuthProof
	s.mu.Unlock()

	return &StationInfo{
		Name:        resp.StationName,
		Location:    resp.Location,
		Permissions: resp.Permissions,
	}, nil
}

func (s *HTTPStore) InsertServiceSession(ctx context.Context, req *station.CreateServiceSessionRequest) (*station.ServiceSession, error) {
	s.mu.Lock()
	if req.AuthProof == "" {
		req.AuthProof = s.stationProof
	}
	s.mu.Unlock()

	var sess station.ServiceSession
	if err := s.doJSON(ctx, http.MethodPost, "/api/v1/stations/sessions", req, "", &sess); err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.stationProof = ""
	s.serviceSessionID = sess.ID
	s.mu.Unlock()

	return &sess, nil
}

func (s *HTTPStore) UpdateServiceSession(ctx context.Context, id string, req *station.UpdateServiceSessionRequest) error {
	return s.doJSON(ctx, http.MethodPatch, "/api/v1/stations/sessions/"+url.PathEscape(id), req, "", nil)
}

func (s *HTTPStore) UpdatePieceStatusAtomic(ctx context.Context, barcode string, newStatus order.PieceStatus, stationID, actorLabel, notes string) (*order.Piece, error) {
	body := map[string]string{
		"barcode":     barcode,
		"new_status":  string(newStatus),
		"actor_label": actorLabel,
		"notes":       notes,
	}

	var piece order.Piece
	if err := s.doJSON(ctx, http.MethodPost, "/api/v1/stations/scan", body, "", &piece); err != nil {
		return nil, err
	}
	return &piece, nil
}

func (s *HTTPStore) GetPieceWithOrder(ctx context.Context, barcode string) (*order.PieceWithOrder, error) {
	var pw order.PieceWithOrder
	path := "/api/v1/stations/pieces/" + url.PathEscape(barcode)
	err := s.doJSON(ctx, http.MethodGet, path, nil, "", &pw)
	if err != nil {
		var se *statusError
		if errors.As(err, &se) && se.code == http.StatusNotFound {
			return nil, xerrors.ErrNotFound
		}
		return nil, err
	}
	return &pw, nil
}

// ========== Plumbing ==========

// statusError carries the HTTP status alongside the server's message so
// callers can classify credential rejections.
type statusError struct {
	code    int
	message string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.code, e.message)
}

func (s *HTTPStore) doJSON(ctx context.Context, method, path string, body any, bearer string, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("X-API-Key", s.apiKey)
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	s.mu.Lock()
	if s.serviceSessionID != "" {
		req.Header.Set("X-Service-Session", s.serviceSessionID)
	}
	s.mu.Unlock()

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	if resp.StatusCode >= 400 || !env.Success {
		msg := env.Error
		if msg == "" {
			msg = env.Message
		}
		return &statusError{code: resp.StatusCode, message: msg}
	}

	if out != nil && env.Data != nil {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("failed to decode response data: %w", err)
		}
	}
	return nil
}

func (s *HTTPStore) setSession(session *Session) {
	s.mu.Lock()
	s.session = session
	s.mu.Unlock()
	s.persist(session)
}

func (s *HTTPStore) loadPersisted() *Session {
	data, err := os.ReadFile(s.sessionFile)
	if err != nil {
		return nil
	}

	var session Session
	if err := json.Unmarshal(data, &session); err != nil {
		s.logger.Warn("failed to parse persisted session, discarding", zap.Error(err))
		os.Remove(s.sessionFile)
		return nil
	}
	return &session
}

func (s *HTTPStore) persist(session *Session) {
	data, err := json.Marshal(session)
	if err != nil {
		return
	}
	if err := os.WriteFile(s.sessionFile, data, 0o600); err != nil {
		s.logger.Warn("failed to persist session", zap.Error(err))
	}
}

func (s *HTTPStore) clearPersisted() {
	s.mu.Lock()
	s.session = nil
	s.mu.Unlock()
	os.Remove(s.sessionFile)
}

func payloadFromLogin(resp *auth.LoginResponse) *Session {
	return &Session{
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
		SubjectID:    resp.User.IdentityID,
		IssuedAt:     resp.ExpiresAt.Add(-time.Duration(resp.ExpiresIn) * time.Second),
		ExpiresAt:    resp.ExpiresAt,
	}
}
