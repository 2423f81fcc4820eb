// ABOUTME: Routing decision from a freshly fetched user record to a landing state
// ABOUTME: Pure function with fixed precedence plus the single destination dispatch

// Package route decides where a user lands after authentication.
package route

import "github.com/2389/lamp/internal/account"

// Decision is the landing state for a user.
type Decision int

const (
	// Registration: signed in but the account is not registered yet.
	Registration Decision = iota + 1
	// FreeTierExhausted: registered, unsubscribed, monthly allotment used up.
	FreeTierExhausted
	// GettingStarted: registered and unsubscribed with allotment left.
	GettingStarted
	// PrimaryApp: registered and subscribed.
	PrimaryApp
)

func (d Decision) String() string {
	switch d {
	case Registration:
		return "registration"
	case FreeTierExhausted:
		return "free_tier_exhausted"
	case GettingStarted:
		return "getting_started"
	case PrimaryApp:
		return "primary_app"
	}
	return "unknown"
}

// Route maps a user record to a Decision. Checks run in order:
// registration first, then subscription, then SMS usage. A nil SMSUsage
// counts as not exhausted and Plan never affects the result.
func Route(u *account.UserRecord) Decision {
	if u == nil || !u.IsRegistered {
		return Registration
	}
	if u.IsSubscribed {
		return PrimaryApp
	}
	if u.SMSUsage.Exhausted() {
		return FreeTierExhausted
	}
	return GettingStarted
}

// Destination is where a client navigates for a Decision.
type Destination struct {
	Decision Decision
	Path     string
	Title    string
}

var destinations = map[Decision]Destination{
	Registration:      {Decision: Registration, Path: "/register", Title: "Finish setting up your account"},
	FreeTierExhausted: {Decision: FreeTierExhausted, Path: "/upgrade", Title: "You've used this month's free messages"},
	GettingStarted:    {Decision: GettingStarted, Path: "/getting-started", Title: "Getting started"},
	PrimaryApp:        {Decision: PrimaryApp, Path: "/chat", Title: "Chat"},
}

// Dispatch is the one place a Decision becomes a Destination.
// Unknown decisions fall back to Registration.
func Dispatch(d Decision) Destination {
	if dest, ok := destinations[d]; ok {
		return dest
	}
	return destinations[Registration]
}
