// Package auth holds the client's authentication state.
//
// # Session
//
// A Session is an immutable value describing where the user stands:
//
//	SignedOut -> Authenticating -> SignedInUnregistered
//	                            -> SignedInRegisteredUnsubscribed
//	                            -> SignedInSubscribed
//
// The flow controller constructs a Session on load and replaces it on every
// transition. Each replacement carries a new epoch so responses that belong
// to an older session can be recognised and dropped.
//
// # Credentials
//
// The gateway's session token is a JWT. The client cannot verify its
// signature, but it reads the subject and expiry so a stale token can be
// treated as signed out without a round trip:
//
//	cred, err := InspectToken(raw)
//	if err == nil && cred.Expired(time.Now()) { ... }
//
// # Validation
//
// Registration and credential forms are checked locally before anything is
// sent. Failures are apperr validation errors.
package auth
