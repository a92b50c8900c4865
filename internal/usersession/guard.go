// internal/usersession/guard.go
package usersession

import (
	"time"

	"glasstrace-service/internal/domain/auth"
)

// Guard escalation thresholds: a view stuck loading past the first shows a
// manual retry, past the second an emergency reset.
const (
	retryThreshold = 15 * time.Second
	resetThreshold = 30 * time.Second
)

// Decision is a route guard verdict.
type Decision string

const (
	DecisionAllow          Decision = "allow"
	DecisionRedirectSignIn Decision = "redirect_sign_in"
	DecisionRedirectHome   Decision = "redirect_home"
	DecisionShowLoading    Decision = "show_loading"
	DecisionShowRetry      Decision = "show_retry"
	DecisionShowReset      Decision = "show_reset"
)

// Requirement describes what a route demands of the session state.
type Requirement struct {
	// RequireAuth routes reject unauthenticated visitors.
	RequireAuth bool
	// MinRole additionally demands at least this role rank. Empty means
	// any authenticated role.
	MinRole auth.Role
	// GuestOnly routes (sign-in, sign-up) reject authenticated visitors.
	GuestOnly bool
}

// Evaluate decides what a route should do given the current session state.
//
// Loading never blocks forever: the verdict escalates from a plain spinner
// to a retry control and finally to an emergency reset, so a wedged
// initialization always leaves the user a way out.
func Evaluate(snap Snapshot, req Requirement, now time.Time) Decision {
	if snap.Loading {
		waited := now.Sub(snap.LoadingSince)
		switch {
		case waited >= resetThreshold:
			return DecisionShowReset
		case waited >= retryThreshold:
			return DecisionShowRetry
		default:
			return DecisionShowLoading
		}
	}

	if req.GuestOnly {
		if snap.Authenticated() {
			return DecisionRedirectHome
		}
		return DecisionAllow
	}

	// A session without a corresponding active profile is incomplete and
	// authorizes nothing: protected routes treat it like no session at all.
	authed := snap.Authenticated() && snap.Profile != nil && snap.Profile.Active

	if req.RequireAuth && !authed {
		return DecisionRedirectSignIn
	}

	if req.MinRole != "" {
		if !authed {
			return DecisionRedirectSignIn
		}
		if !snap.Profile.Role.AtLeast(req.MinRole) {
			return DecisionRedirectHome
		}
	}

	return DecisionAllow
}
