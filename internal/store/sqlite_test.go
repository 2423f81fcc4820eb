// ABOUTME: Tests for SQLite store implementation
// ABOUTME: Covers identity kinds, the alias ledger, cookie persistence, and client state

package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/2389/lamp/internal/identity"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestNewSQLiteStore_CreatesDirectory(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "subdir", "nested", "test.db")

	s, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	defer s.Close()

	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Error("database file was not created in nested directory")
	}
}

func TestNewSQLiteStore_ReopenKeepsData(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")
	ctx := context.Background()

	s, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	if err := s.SetState(ctx, "k", "v"); err != nil {
		t.Fatalf("SetState failed: %v", err)
	}
	s.Close()

	s, err = NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer s.Close()

	got, err := s.GetState(ctx, "k")
	if err != nil {
		t.Fatalf("GetState failed: %v", err)
	}
	if got != "v" {
		t.Errorf("GetState = %q, want %q", got, "v")
	}
}

func TestIdentityKind(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.IdentityKind(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("IdentityKind(missing) err = %v, want ErrNotFound", err)
	}

	web := identity.NewWebKey()
	if err := s.RecordIdentity(ctx, web); err != nil {
		t.Fatalf("RecordIdentity failed: %v", err)
	}
	kind, err := s.IdentityKind(ctx, web.Key)
	if err != nil {
		t.Fatalf("IdentityKind failed: %v", err)
	}
	if kind != identity.KindAnonymousWeb {
		t.Errorf("kind = %q, want %q", kind, identity.KindAnonymousWeb)
	}

	// A later anonymous record does not overwrite the first kind
	if err := s.RecordIdentity(ctx, identity.Identity{Key: web.Key, Kind: identity.KindAnonymousSMS}); err != nil {
		t.Fatalf("RecordIdentity failed: %v", err)
	}
	kind, _ = s.IdentityKind(ctx, web.Key)
	if kind != identity.KindAnonymousWeb {
		t.Errorf("kind after sms record = %q, want %q", kind, identity.KindAnonymousWeb)
	}

	// Promotion to authenticated is allowed
	if err := s.RecordIdentity(ctx, identity.Authenticated(web.Key)); err != nil {
		t.Fatalf("RecordIdentity failed: %v", err)
	}
	kind, _ = s.IdentityKind(ctx, web.Key)
	if kind != identity.KindAuthenticated {
		t.Errorf("kind after promotion = %q, want %q", kind, identity.KindAuthenticated)
	}
}

func TestRecordIdentity_RejectsInvalid(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.RecordIdentity(ctx, identity.Identity{Kind: identity.KindAnonymousWeb}); err == nil {
		t.Error("expected error for empty key")
	}
	if err := s.RecordIdentity(ctx, identity.Identity{Key: "k", Kind: "bogus"}); err == nil {
		t.Error("expected error for invalid kind")
	}
}

func TestRecordAlias_OncePerUnorderedPair(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	link := &identity.AliasLink{
		PreviousKey:  "anon-1",
		PreviousKind: identity.KindAnonymousWeb,
		UserID:       "user1",
		TransitionID: "t1",
	}
	inserted, err := s.RecordAlias(ctx, link)
	if err != nil {
		t.Fatalf("RecordAlias failed: %v", err)
	}
	if !inserted {
		t.Fatal("first RecordAlias should insert")
	}

	inserted, err = s.RecordAlias(ctx, &identity.AliasLink{PreviousKey: "anon-1", UserID: "user1", TransitionID: "t2"})
	if err != nil {
		t.Fatalf("RecordAlias failed: %v", err)
	}
	if inserted {
		t.Error("second RecordAlias for same pair should not insert")
	}

	// Reversed direction is the same unordered pair
	inserted, err = s.RecordAlias(ctx, &identity.AliasLink{PreviousKey: "user1", UserID: "anon-1", TransitionID: "t3"})
	if err != nil {
		t.Fatalf("RecordAlias failed: %v", err)
	}
	if inserted {
		t.Error("reversed pair should not insert")
	}

	links, err := s.ListAliases(ctx, "user1")
	if err != nil {
		t.Fatalf("ListAliases failed: %v", err)
	}
	if len(links) != 1 {
		t.Fatalf("ListAliases len = %d, want 1", len(links))
	}
	if links[0].TransitionID != "t1" || links[0].PreviousKind != identity.KindAnonymousWeb {
		t.Errorf("unexpected link: %+v", links[0])
	}
}

func TestRecordAlias_RejectsSelfAlias(t *testing.T) {
	s := newTestStore(t)

	_, err := s.RecordAlias(context.Background(), &identity.AliasLink{PreviousKey: "u", UserID: "u"})
	if !errors.Is(err, identity.ErrSelfAlias) {
		t.Errorf("err = %v, want ErrSelfAlias", err)
	}
}

func TestCookies_ReplaceLoadClear(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	expires := time.Now().Add(time.Hour).UTC().Truncate(time.Second)

	err := s.ReplaceCookies(ctx, "api.example.com", []*Cookie{
		{Name: "session", Value: "abc", Path: "/", Expires: &expires, Secure: true, HTTPOnly: true},
		{Name: "csrf", Value: "xyz", Path: "/"},
	})
	if err != nil {
		t.Fatalf("ReplaceCookies failed: %v", err)
	}

	got, err := s.LoadCookies(ctx, "api.example.com")
	if err != nil {
		t.Fatalf("LoadCookies failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("LoadCookies len = %d, want 2", len(got))
	}
	// Ordered by name
	if got[0].Name != "csrf" || got[1].Name != "session" {
		t.Errorf("unexpected order: %s, %s", got[0].Name, got[1].Name)
	}
	if got[1].Expires == nil || !got[1].Expires.Equal(expires) {
		t.Errorf("expires = %v, want %v", got[1].Expires, expires)
	}
	if !got[1].Secure || !got[1].HTTPOnly {
		t.Error("flags not persisted")
	}

	// Replace drops cookies not in the new set
	if err := s.ReplaceCookies(ctx, "api.example.com", []*Cookie{{Name: "session", Value: "def"}}); err != nil {
		t.Fatalf("ReplaceCookies failed: %v", err)
	}
	got, _ = s.LoadCookies(ctx, "api.example.com")
	if len(got) != 1 || got[0].Value != "def" {
		t.Errorf("after replace got %+v", got)
	}

	if err := s.ClearCookies(ctx, "api.example.com"); err != nil {
		t.Fatalf("ClearCookies failed: %v", err)
	}
	got, _ = s.LoadCookies(ctx, "api.example.com")
	if len(got) != 0 {
		t.Errorf("after clear got %d cookies", len(got))
	}
}

func TestState_SetGetDelete(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.GetState(ctx, StateCurrentDistinctID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("GetState err = %v, want ErrNotFound", err)
	}
	if err := s.SetState(ctx, StateCurrentDistinctID, "a"); err != nil {
		t.Fatalf("SetState failed: %v", err)
	}
	if err := s.SetState(ctx, StateCurrentDistinctID, "b"); err != nil {
		t.Fatalf("SetState failed: %v", err)
	}
	got, err := s.GetState(ctx, StateCurrentDistinctID)
	if err != nil || got != "b" {
		t.Fatalf("GetState = %q, %v; want b", got, err)
	}
	if err := s.DeleteState(ctx, StateCurrentDistinctID); err != nil {
		t.Fatalf("DeleteState failed: %v", err)
	}
	if err := s.DeleteState(ctx, StateCurrentDistinctID); err != nil {
		t.Fatalf("second DeleteState failed: %v", err)
	}
	if _, err := s.GetState(ctx, StateCurrentDistinctID); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetState after delete err = %v, want ErrNotFound", err)
	}
}
