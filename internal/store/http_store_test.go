// internal/store/http_store_test.go
package store

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"glasstrace-service/internal/domain/auth"
	"glasstrace-service/internal/domain/station"
	xerrors "glasstrace-service/internal/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func writeEnvelope(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{
		"success": status < 400,
		"message": http.StatusText(status),
		"data":    data,
	})
}

func writeEnvelopeError(w http.ResponseWriter, status int, errMsg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{
		"success": false,
		"message": http.StatusText(status),
		"error":   errMsg,
	})
}

func loginResponse(token string, expiresIn time.Duration) auth.LoginResponse {
	now := time.Now()
	return auth.LoginResponse{
		AccessToken:  token,
		RefreshToken: "refresh-" + token,
		TokenType:    "Bearer",
		ExpiresIn:    int(expiresIn.Seconds()),
		ExpiresAt:    now.Add(expiresIn),
		User:         auth.UserInfo{IdentityID: 42, Email: "op@example.com", Role: auth.RoleOperator, Active: true},
	}
}

func newTestStore(t *testing.T, handler http.Handler) (*HTTPStore, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	s := NewHTTPStore(srv.URL, "test-key", t.TempDir(), zap.NewNop())
	return s, srv
}

func TestSignInPersistsSession(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/auth/login", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-key", r.Header.Get("X-API-Key"))
		writeEnvelope(w, http.StatusOK, loginResponse("tok-1", time.Hour))
	})

	s, _ := newTestStore(t, mux)

	session, err := s.SignInWithPassword(context.Background(), "op@example.com", "secret")
	require.NoError(t, err)
	assert.Equal(t, "tok-1", session.AccessToken)
	assert.Equal(t, int64(42), session.SubjectID)

	// Session file written for restart recovery.
	data, err := os.ReadFile(s.sessionFile)
	require.NoError(t, err)
	var persisted Session
	require.NoError(t, json.Unmarshal(data, &persisted))
	assert.Equal(t, "tok-1", persisted.AccessToken)
}

func TestSignInRejectionIsCredentialError(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/auth/login", func(w http.ResponseWriter, r *http.Request) {
		writeEnvelopeError(w, http.StatusUnauthorized, "invalid credentials")
	})

	s, _ := newTestStore(t, mux)

	_, err := s.SignInWithPassword(context.Background(), "op@example.com", "wrong")
	require.ErrorIs(t, err, xerrors.ErrInvalidCredentials)
	assert.True(t, xerrors.IsCredentialError(err))
}

func TestGetSessionReturnsNilWithoutPersistedState(t *testing.T) {
	s, _ := newTestStore(t, http.NewServeMux())

	session, err := s.GetSession(context.Background())
	require.NoError(t, err)
	assert.Nil(t, session)
}

func TestGetSessionRefreshesExpiredToken(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/auth/login", func(w http.ResponseWriter, r *http.Request) {
		// Token that is already past expiry when recovered.
		resp := loginResponse("stale", time.Hour)
		resp.ExpiresAt = time.Now().Add(-time.Minute)
		writeEnvelope(w, http.StatusOK, resp)
	})
	mux.HandleFunc("POST /api/v1/auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "refresh-stale", body["refresh_token"])
		writeEnvelope(w, http.StatusOK, loginResponse("fresh", time.Hour))
	})

	s, _ := newTestStore(t, mux)

	_, err := s.SignInWithPassword(context.Background(), "op@example.com", "secret")
	require.NoError(t, err)

	session, err := s.GetSession(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "fresh", session.AccessToken)
}

func TestRefreshRejectionClearsPersistedSession(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/auth/login", func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, http.StatusOK, loginResponse("tok-1", time.Hour))
	})
	mux.HandleFunc("POST /api/v1/auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		writeEnvelopeError(w, http.StatusUnauthorized, "refresh token rotated out")
	})

	s, _ := newTestStore(t, mux)

	_, err := s.SignInWithPassword(context.Background(), "op@example.com", "secret")
	require.NoError(t, err)

	_, err = s.RefreshSession(context.Background())
	require.ErrorIs(t, err, xerrors.ErrInvalidRefreshToken)

	// The rejected credential is gone; a fresh start is unauthenticated.
	session, err := s.GetSession(context.Background())
	require.NoError(t, err)
	assert.Nil(t, session)
}

func TestRefreshNetworkFailureIsTransient(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/auth/login", func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, http.StatusOK, loginResponse("tok-1", time.Hour))
	})

	s, srv := newTestStore(t, mux)

	_, err := s.SignInWithPassword(context.Background(), "op@example.com", "secret")
	require.NoError(t, err)

	srv.Close()

	_, err = s.RefreshSession(context.Background())
	require.Error(t, err)
	assert.False(t, xerrors.IsCredentialError(err))
}

func TestAuthenticateStationRejection(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/stations/authenticate", func(w http.ResponseWriter, r *http.Request) {
		writeEnvelopeError(w, http.StatusUnauthorized, "invalid station credentials")
	})

	s, _ := newTestStore(t, mux)

	_, err := s.AuthenticateStation(context.Background(), "STATION_X", "bad")
	require.ErrorIs(t, err, xerrors.ErrStationCredentials)
}

func TestServiceSessionHeaderRidesSubsequentCalls(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/stations/sessions", func(w http.ResponseWriter, r *http.Request) {
		var req station.CreateServiceSessionRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		writeEnvelope(w, http.StatusCreated, station.ServiceSession{
			ID:          "svc-1",
			StationID:   req.StationID,
			StationName: req.StationName,
			ExpiresAt:   req.ExpiresAt,
			Active:      true,
		})
	})

	var scanHeader string
	mux.HandleFunc("POST /api/v1/stations/scan", func(w http.ResponseWriter, r *http.Request) {
		scanHeader = r.Header.Get("X-Service-Session")
		writeEnvelope(w, http.StatusOK, map[string]any{"barcode": "GLS-20250101-000123-P001", "status": "tempering"})
	})

	s, _ := newTestStore(t, mux)

	sess, err := s.InsertServiceSession(context.Background(), &station.CreateServiceSessionRequest{
		StationID:   "STATION_TEMPERING_01",
		StationName: "Tempering Oven 1",
		ExpiresAt:   time.Now().Add(12 * time.Hour),
	})
	require.NoError(t, err)
	require.Equal(t, "svc-1", sess.ID)

	piece, err := s.UpdatePieceStatusAtomic(context.Background(), "GLS-20250101-000123-P001", "tempering", "STATION_TEMPERING_01", "Tempering Oven 1", "")
	require.NoError(t, err)
	assert.Equal(t, "GLS-20250101-000123-P001", piece.Barcode)
	assert.Equal(t, "svc-1", scanHeader)
}

func TestAuthProofRidesSessionCreation(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/stations/authenticate", func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, http.StatusOK, station.AuthenticateResponse{
			Success:     true,
			StationName: "Tempering Oven 1",
			Permissions: []string{"scan:tempering"},
			AuthProof:   "proof-abc",
		})
	})

	var sessionProof string
	mux.HandleFunc("POST /api/v1/stations/sessions", func(w http.ResponseWriter, r *http.Request) {
		var req station.CreateServiceSessionRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		sessionProof = req.AuthProof
		writeEnvelope(w, http.StatusCreated, station.ServiceSession{
			ID:        "svc-1",
			StationID: req.StationID,
			ExpiresAt: req.ExpiresAt,
			Active:    true,
		})
	})

	s, _ := newTestStore(t, mux)

	info, err := s.AuthenticateStation(context.Background(), "STATION_TEMPERING_01", "hunter2")
	require.NoError(t, err)
	require.Equal(t, "Tempering Oven 1", info.Name)

	// The proof minted at authentication time is attached to the session
	// request without the caller having to thread it through.
	_, err = s.InsertServiceSession(context.Background(), &station.CreateServiceSessionRequest{
		StationID: "STATION_TEMPERING_01",
		ExpiresAt: time.Now().Add(12 * time.Hour),
	})
	require.NoError(t, err)
	assert.Equal(t, "proof-abc", sessionProof)
}

func TestGetPieceWithOrderNotFound(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/stations/pieces/{barcode}", func(w http.ResponseWriter, r *http.Request) {
		writeEnvelopeError(w, http.StatusNotFound, "unknown barcode")
	})

	s, _ := newTestStore(t, mux)

	_, err := s.GetPieceWithOrder(context.Background(), "GLS-19990101-000001-P001")
	require.ErrorIs(t, err, xerrors.ErrNotFound)
}
