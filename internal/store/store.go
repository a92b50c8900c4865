// internal/store/store.go

// Package store defines the client-side view of the GlassTrace backend.
// The session managers are written against the Store interface only; the
// production implementation speaks HTTP/websocket to the API server, and
// tests substitute fakes.
package store

import (
	"context"

	"glasstrace-service/internal/domain/auth"
	"glasstrace-service/internal/domain/order"
	"glasstrace-service/internal/domain/station"
)

// Session is the client-held token material of an authenticated user.
type Session = auth.SessionPayload

// SignOutScope selects whether sign-out revokes only this client's session
// or every session of the subject.
type SignOutScope string

const (
	SignOutLocal  SignOutScope = "local"
	SignOutGlobal SignOutScope = "global"
)

// StationInfo is the metadata returned by a successful station verification.
type StationInfo struct {
	Name        string   `json:"name"`
	Location    string   `json:"location"`
	Permissions []string `json:"permissions"`
}

// AuthEventHandler receives pushed auth-state events. Events may repeat and
// may race in-flight calls; consumers de-duplicate.
type AuthEventHandler func(kind auth.EventKind, session *Session)

// Store is the backend surface the session managers depend on. Every method
// is a suspension point: callers must tolerate arbitrary latency and
// offline conditions.
//
// Error classification matters to callers: xerrors.IsCredentialError
// distinguishes terminal credential rejections (never retried) from
// transient faults (retried with backoff).
type Store interface {
	// GetSession recovers the persisted session, if any. A missing or
	// unrecoverable persisted credential returns (nil, nil) or a
	// credential-classified error; both mean "start unauthenticated".
	GetSession(ctx context.Context) (*Session, error)

	// RefreshSession exchanges the current session for a fresh one.
	RefreshSession(ctx context.Context) (*Session, error)

	SignInWithPassword(ctx context.Context, identity, secret string) (*Session, error)
	SignUp(ctx context.Context, identity, secret, displayName string) (*Session, error)
	SignOut(ctx context.Context, scope SignOutScope) error

	// OnAuthStateChange subscribes to pushed auth events. The returned
	// function cancels the subscription.
	OnAuthStateChange(ctx context.Context, handler AuthEventHandler) (func(), error)

	FetchProfile(ctx context.Context, subjectID int64) (*auth.UserProfile, error)

	AuthenticateStation(ctx context.Context, stationID, stationSecret string) (*StationInfo, error)
	InsertServiceSession(ctx context.Context, req *station.CreateServiceSessionRequest) (*station.ServiceSession, error)
	UpdateServiceSession(ctx context.Context, id string, req *station.UpdateServiceSessionRequest) error

	// UpdatePieceStatusAtomic applies a status change and its audit entry
	// in one backend call, so partial application cannot occur.
	UpdatePieceStatusAtomic(ctx context.Context, barcode string, newStatus order.PieceStatus, stationID, actorLabel, notes string) (*order.Piece, error)
	GetPieceWithOrder(ctx context.Context, barcode string) (*order.PieceWithOrder, error)
}
