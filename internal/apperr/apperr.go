// ABOUTME: Classified error type shared by the gateway client and controllers
// ABOUTME: Carries a kind, a machine code, and maps to a single user-facing message

package apperr

import (
	"errors"
	"fmt"
)

// Kind is the broad class of an error.
type Kind string

const (
	KindValidation Kind = "validation"
	KindAuth       Kind = "auth"
	KindNetwork    Kind = "network"
	KindMerge      Kind = "merge"
	KindInternal   Kind = "internal"
)

// Machine codes.
const (
	CodeInvalidCredentials = "invalid_credentials"
	CodeAccountExists      = "account_exists"
	CodeCodeExpired        = "code_expired"
	CodeCodeConsumed       = "code_consumed"
	CodeNotFound           = "not_found"
	CodeUnauthorized       = "unauthorized"
	CodeRejected           = "rejected"
	CodeUnavailable        = "unavailable"
	CodeTransport          = "transport"

	CodePhoneInvalid      = "phone_invalid"
	CodeConsentRequired   = "consent_required"
	CodePasswordTooShort  = "password_too_short"
	CodeEmailRequired     = "email_required"
	CodeEmptyMessage      = "empty_message"
	CodeSendInFlight      = "send_in_flight"
	CodeNotSignedIn       = "not_signed_in"
	CodeTransitionRunning = "transition_running"
)

// Error is a classified error.
type Error struct {
	Kind  Kind
	Code  string
	Msg   string
	Cause error
}

func (e *Error) Error() string {
	switch {
	case e.Msg != "" && e.Cause != nil:
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Cause)
	case e.Msg != "":
		return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
	case e.Cause != nil:
		return fmt.Sprintf("%s/%s: %v", e.Kind, e.Code, e.Cause)
	default:
		return fmt.Sprintf("%s/%s", e.Kind, e.Code)
	}
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches another *Error with the same kind and code, so sentinel-style
// comparisons work: errors.Is(err, apperr.Auth(apperr.CodeAccountExists, "")).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind && (t.Code == "" || e.Code == t.Code)
}

// Validation returns a local field-check failure.
func Validation(code, msg string) error {
	return &Error{Kind: KindValidation, Code: code, Msg: msg}
}

// Auth returns a gateway rejection.
func Auth(code, msg string) error {
	return &Error{Kind: KindAuth, Code: code, Msg: msg}
}

// Network wraps a transport failure.
func Network(code string, cause error) error {
	if cause == nil {
		return nil
	}
	return &Error{Kind: KindNetwork, Code: code, Cause: cause}
}

// Merge wraps an analytics identity failure.
func Merge(code string, cause error) error {
	if cause == nil {
		return nil
	}
	return &Error{Kind: KindMerge, Code: code, Cause: cause}
}

// Wrap classifies cause. Returns nil for a nil cause.
func Wrap(cause error, kind Kind, code string) error {
	if cause == nil {
		return nil
	}
	return &Error{Kind: kind, Code: code, Cause: cause}
}

// KindOf returns the kind of err, or "" if it is unclassified.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// CodeOf returns the machine code of err, or "".
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsKind reports whether err is classified as kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}

var userMessages = map[string]string{
	CodeInvalidCredentials: "That email and password don't match an account.",
	CodeAccountExists:      "An account with that email already exists. Try signing in instead.",
	CodeCodeExpired:        "That sign-in link has expired. Please try again.",
	CodeCodeConsumed:       "That sign-in link was already used. Please try again.",
	CodeNotFound:           "We couldn't find what you were looking for.",
	CodeUnauthorized:       "Your session has ended. Please sign in again.",
	CodePhoneInvalid:       "Please enter a 10-digit phone number.",
	CodeConsentRequired:    "Please agree to receive text messages to continue.",
	CodePasswordTooShort:   "Passwords must be at least 8 characters.",
	CodeEmailRequired:      "Please enter your email address.",
	CodeEmptyMessage:       "Please type a message first.",
	CodeSendInFlight:       "Please wait for the current reply.",
	CodeNotSignedIn:        "Please sign in first.",
	CodeTransitionRunning:  "Signing you in, one moment.",
}

const genericNetworkMessage = "Something went wrong reaching the server. Please try again."

// UserMessage maps err to the single message shown to the user.
// Merge errors are never surfaced and map to "".
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var e *Error
	if !errors.As(err, &e) {
		return genericNetworkMessage
	}
	switch e.Kind {
	case KindMerge:
		return ""
	case KindNetwork, KindInternal:
		return genericNetworkMessage
	}
	if msg, ok := userMessages[e.Code]; ok {
		return msg
	}
	if e.Msg != "" {
		return e.Msg
	}
	return genericNetworkMessage
}
