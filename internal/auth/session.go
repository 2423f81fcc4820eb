// ABOUTME: AuthSession value and the sign-in states it moves through
// ABOUTME: Constructed on load, replaced on each transition, torn down on sign-out

package auth

import (
	"time"

	"github.com/2389/lamp/internal/account"
)

// State is a position in the sign-in flow.
type State int

const (
	SignedOut State = iota
	Authenticating
	SignedInUnregistered
	SignedInRegisteredUnsubscribed
	SignedInSubscribed
)

func (s State) String() string {
	switch s {
	case SignedOut:
		return "signed_out"
	case Authenticating:
		return "authenticating"
	case SignedInUnregistered:
		return "signed_in_unregistered"
	case SignedInRegisteredUnsubscribed:
		return "signed_in_registered_unsubscribed"
	case SignedInSubscribed:
		return "signed_in_subscribed"
	default:
		return "unknown"
	}
}

// SignedIn reports whether s is one of the terminal signed-in states.
func (s State) SignedIn() bool {
	return s >= SignedInUnregistered
}

// StateFor maps a freshly fetched record to its signed-in state.
func StateFor(u *account.UserRecord) State {
	switch {
	case u == nil || !u.IsRegistered:
		return SignedInUnregistered
	case u.IsSubscribed:
		return SignedInSubscribed
	default:
		return SignedInRegisteredUnsubscribed
	}
}

// Session is the client's view of who is signed in. Treat it as a value:
// methods return modified copies.
type Session struct {
	State        State
	User         *account.UserRecord
	Credential   *Credential
	TransitionID string
	Epoch        uint64
	SignedInAt   time.Time
}

// NewSession returns the session a fresh process starts with.
func NewSession() Session {
	return Session{State: SignedOut}
}

// UserID returns the signed-in user's ID, or "" when signed out.
func (s Session) UserID() string {
	if s.User == nil {
		return ""
	}
	return s.User.UserID
}

// Begin starts a transition. The epoch advances so anything still in flight
// for the previous session is ignored.
func (s Session) Begin(transitionID string) Session {
	return Session{
		State:        Authenticating,
		TransitionID: transitionID,
		Epoch:        s.Epoch + 1,
	}
}

// Establish records the gateway credential once the remote session exists.
// The state stays Authenticating until Resolve.
func (s Session) Establish(cred *Credential) Session {
	s.Credential = cred
	return s
}

// Resolve completes the current transition with user.
func (s Session) Resolve(user *account.UserRecord, cred *Credential, now time.Time) Session {
	s.State = StateFor(user)
	s.User = user
	s.Credential = cred
	if s.SignedInAt.IsZero() {
		s.SignedInAt = now
	}
	return s
}

// WithUser replaces the record without starting a new transition, as after
// a profile update.
func (s Session) WithUser(user *account.UserRecord) Session {
	s.User = user
	s.State = StateFor(user)
	return s
}

// End tears the session down.
func (s Session) End() Session {
	return Session{State: SignedOut, Epoch: s.Epoch + 1}
}
