// ABOUTME: Inspection of the gateway's session JWT without signature verification
// ABOUTME: Reads sub and exp so an expired credential short-circuits to signed out

package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Token errors
var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token expired")
	ErrMissingClaim = errors.New("missing required claim")
)

// Credential is what the client can learn from a session token locally.
type Credential struct {
	Subject   string
	ExpiresAt time.Time // zero when the token carries no exp
}

// Expired reports whether the credential's expiry is at or before now.
func (c *Credential) Expired(now time.Time) bool {
	return !c.ExpiresAt.IsZero() && !now.Before(c.ExpiresAt)
}

// InspectToken parses raw without verifying its signature. The gateway
// remains the authority; this only lets the client skip requests it knows
// will fail.
func InspectToken(raw string) (*Credential, error) {
	if raw == "" {
		return nil, ErrInvalidToken
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, claims); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return nil, fmt.Errorf("%w: sub", ErrMissingClaim)
	}

	cred := &Credential{Subject: sub}
	exp, err := claims.GetExpirationTime()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if exp != nil {
		cred.ExpiresAt = exp.Time
	}
	return cred, nil
}

// CheckToken inspects raw and fails with ErrExpiredToken if it has expired.
func CheckToken(raw string, now time.Time) (*Credential, error) {
	cred, err := InspectToken(raw)
	if err != nil {
		return nil, err
	}
	if cred.Expired(now) {
		return cred, ErrExpiredToken
	}
	return cred, nil
}
