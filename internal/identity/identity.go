// ABOUTME: Identity kinds, key derivation for web and SMS lineages, and alias guards
// ABOUTME: Keys are opaque strings; the Kind tag travels with them where known

package identity

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Kind tags where a key came from.
type Kind string

const (
	KindAnonymousWeb  Kind = "anonymous_web"
	KindAnonymousSMS  Kind = "anonymous_sms"
	KindAuthenticated Kind = "authenticated"
)

// Valid reports whether k is one of the known kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindAnonymousWeb, KindAnonymousSMS, KindAuthenticated:
		return true
	}
	return false
}

// WebSeparator appears in every generated anonymous web key and in no
// SMS-derived key.
const WebSeparator = "-"

// DefaultSMSPrefix is prepended to phone digits to form an SMS key.
const DefaultSMSPrefix = "sms_"

// Identity is a key plus the lineage it belongs to.
type Identity struct {
	Key  string
	Kind Kind
}

// AliasLink records that PreviousKey and UserID are the same person.
type AliasLink struct {
	PreviousKey  string
	PreviousKind Kind
	UserID       string
	TransitionID string
	CreatedAt    time.Time
}

var (
	ErrEmptyKey       = errors.New("identity key is empty")
	ErrNoDigits       = errors.New("phone number has no digits")
	ErrSelfAlias      = errors.New("previous key equals user id")
	ErrAlreadyAuthed  = errors.New("previous key is already authenticated")
	ErrNotWebAnon     = errors.New("previous key is not an anonymous web key")
	ErrNotSMSIdentity = errors.New("previous key is not an anonymous sms key")
)

// NewWebKey mints a fresh anonymous web identity.
func NewWebKey() Identity {
	return Identity{Key: uuid.NewString(), Kind: KindAnonymousWeb}
}

// Authenticated returns the durable identity for a user ID.
func Authenticated(userID string) Identity {
	return Identity{Key: userID, Kind: KindAuthenticated}
}

// DigitsOnly drops every non-digit rune from s.
func DigitsOnly(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// SMSKey derives the anonymous SMS identity for phone. The result depends
// only on prefix and the digits of phone, so "(202) 555-1234" and
// "202.555.1234" map to the same key.
func SMSKey(prefix, phone string) (Identity, error) {
	digits := DigitsOnly(phone)
	if digits == "" {
		return Identity{}, ErrNoDigits
	}
	if prefix == "" {
		prefix = DefaultSMSPrefix
	}
	return Identity{Key: prefix + digits, Kind: KindAnonymousSMS}, nil
}

// LooksWebAnonymous is the legacy shape check for keys that arrive without a
// kind tag. It can misclassify IDs that happen to contain the separator, so
// callers prefer a stored Kind when one exists.
func LooksWebAnonymous(key string) bool {
	return strings.Contains(key, WebSeparator)
}

// Classify returns the kind of key, preferring known when it is valid.
func Classify(key string, known Kind, smsPrefix string) Kind {
	if known.Valid() {
		return known
	}
	if smsPrefix == "" {
		smsPrefix = DefaultSMSPrefix
	}
	if strings.HasPrefix(key, smsPrefix) && DigitsOnly(key[len(smsPrefix):]) == key[len(smsPrefix):] && len(key) > len(smsPrefix) {
		return KindAnonymousSMS
	}
	if LooksWebAnonymous(key) {
		return KindAnonymousWeb
	}
	return KindAuthenticated
}

// CanAlias checks the invariants for linking prev to userID: the keys differ
// and prev is not already an authenticated identity.
func CanAlias(prev Identity, userID string) error {
	if prev.Key == "" || userID == "" {
		return ErrEmptyKey
	}
	if prev.Key == userID {
		return ErrSelfAlias
	}
	if prev.Kind == KindAuthenticated {
		return ErrAlreadyAuthed
	}
	return nil
}

// CanAliasWeb is CanAlias restricted to anonymous web keys.
func CanAliasWeb(prev Identity, userID string) error {
	if err := CanAlias(prev, userID); err != nil {
		return err
	}
	if prev.Kind != KindAnonymousWeb {
		return ErrNotWebAnon
	}
	return nil
}

// PairKey returns a canonical key for the unordered pair {a, b}.
func PairKey(a, b string) (lo, hi string) {
	if a < b {
		return a, b
	}
	return b, a
}
