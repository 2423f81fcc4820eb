// ABOUTME: Store interfaces and data types for lamp client persistence
// ABOUTME: Defines identity, alias ledger, cookie, and client-state records

package store

import (
	"context"
	"errors"
	"time"

	"github.com/2389/lamp/internal/identity"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// Well-known client state keys.
const (
	StateCurrentDistinctID = "analytics.current_distinct_id"
	StateSuperProperties   = "analytics.super_properties"
)

// Cookie is a persisted gateway credential cookie.
type Cookie struct {
	Host     string
	Name     string
	Value    string
	Path     string
	Domain   string
	Expires  *time.Time
	Secure   bool
	HTTPOnly bool
}

// IdentityStore records the kind tag of every key this client minted or saw.
type IdentityStore interface {
	RecordIdentity(ctx context.Context, id identity.Identity) error
	IdentityKind(ctx context.Context, key string) (identity.Kind, error)
}

// AliasStore is the ledger of alias links already emitted.
type AliasStore interface {
	// RecordAlias inserts link unless an alias for the same unordered pair
	// exists. It reports whether a new row was written.
	RecordAlias(ctx context.Context, link *identity.AliasLink) (bool, error)
	ListAliases(ctx context.Context, userID string) ([]*identity.AliasLink, error)
}

// CookieStore persists the gateway cookie jar between runs.
type CookieStore interface {
	ReplaceCookies(ctx context.Context, host string, cookies []*Cookie) error
	LoadCookies(ctx context.Context, host string) ([]*Cookie, error)
	ClearCookies(ctx context.Context, host string) error
}

// StateStore is a small string key/value table for client state.
type StateStore interface {
	GetState(ctx context.Context, key string) (string, error)
	SetState(ctx context.Context, key, value string) error
	DeleteState(ctx context.Context, key string) error
}

// Store is everything SQLiteStore provides.
type Store interface {
	IdentityStore
	AliasStore
	CookieStore
	StateStore
	Close() error
}
