// internal/usersession/guard_test.go
package usersession

import (
	"testing"
	"time"

	"glasstrace-service/internal/domain/auth"
	"glasstrace-service/internal/store"

	"github.com/stretchr/testify/assert"
)

func authedSnapshot(role auth.Role) Snapshot {
	return Snapshot{
		Session: &store.Session{AccessToken: "tok", SubjectID: 42},
		Profile: &auth.UserProfile{IdentityID: 42, Role: role, Active: true},
	}
}

func TestEvaluate(t *testing.T) {
	now := time.Date(2025, 6, 2, 8, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		snap Snapshot
		req  Requirement
		want Decision
	}{
		{
			name: "public route, anonymous",
			snap: Snapshot{},
			req:  Requirement{},
			want: DecisionAllow,
		},
		{
			name: "protected route, anonymous",
			snap: Snapshot{},
			req:  Requirement{RequireAuth: true},
			want: DecisionRedirectSignIn,
		},
		{
			name: "protected route, authenticated",
			snap: authedSnapshot(auth.RoleViewer),
			req:  Requirement{RequireAuth: true},
			want: DecisionAllow,
		},
		{
			name: "guest-only route, authenticated",
			snap: authedSnapshot(auth.RoleViewer),
			req:  Requirement{GuestOnly: true},
			want: DecisionRedirectHome,
		},
		{
			name: "guest-only route, anonymous",
			snap: Snapshot{},
			req:  Requirement{GuestOnly: true},
			want: DecisionAllow,
		},
		{
			name: "role gate met",
			snap: authedSnapshot(auth.RoleAdmin),
			req:  Requirement{RequireAuth: true, MinRole: auth.RoleOperator},
			want: DecisionAllow,
		},
		{
			name: "role gate not met",
			snap: authedSnapshot(auth.RoleViewer),
			req:  Requirement{RequireAuth: true, MinRole: auth.RoleOperator},
			want: DecisionRedirectHome,
		},
		{
			// A session with no profile is incomplete, not a lesser role.
			name: "role gate without profile",
			snap: Snapshot{Session: &store.Session{AccessToken: "tok"}},
			req:  Requirement{RequireAuth: true, MinRole: auth.RoleOperator},
			want: DecisionRedirectSignIn,
		},
		{
			name: "protected route without profile",
			snap: Snapshot{Session: &store.Session{AccessToken: "tok"}},
			req:  Requirement{RequireAuth: true},
			want: DecisionRedirectSignIn,
		},
		{
			name: "protected route, deactivated profile",
			snap: Snapshot{
				Session: &store.Session{AccessToken: "tok", SubjectID: 42},
				Profile: &auth.UserProfile{IdentityID: 42, Role: auth.RoleOperator, Active: false},
			},
			req:  Requirement{RequireAuth: true},
			want: DecisionRedirectSignIn,
		},
		{
			name: "role gate, deactivated admin",
			snap: Snapshot{
				Session: &store.Session{AccessToken: "tok", SubjectID: 42},
				Profile: &auth.UserProfile{IdentityID: 42, Role: auth.RoleAdmin, Active: false},
			},
			req:  Requirement{MinRole: auth.RoleOperator},
			want: DecisionRedirectSignIn,
		},
		{
			name: "role gate, anonymous",
			snap: Snapshot{},
			req:  Requirement{MinRole: auth.RoleOperator},
			want: DecisionRedirectSignIn,
		},
		{
			name: "loading briefly",
			snap: Snapshot{Loading: true, LoadingSince: now.Add(-2 * time.Second)},
			req:  Requirement{RequireAuth: true},
			want: DecisionShowLoading,
		},
		{
			name: "loading past retry threshold",
			snap: Snapshot{Loading: true, LoadingSince: now.Add(-16 * time.Second)},
			req:  Requirement{RequireAuth: true},
			want: DecisionShowRetry,
		},
		{
			name: "loading past reset threshold",
			snap: Snapshot{Loading: true, LoadingSince: now.Add(-31 * time.Second)},
			req:  Requirement{},
			want: DecisionShowReset,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Evaluate(tt.snap, tt.req, now))
		})
	}
}
