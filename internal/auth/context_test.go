// ABOUTME: Unit tests for session context helpers
// ABOUTME: Tests WithSession and FromContext

package auth

import (
	"context"
	"testing"

	"github.com/2389/lamp/internal/account"
)

func TestFromContext_Missing(t *testing.T) {
	_, ok := FromContext(context.Background())
	if ok {
		t.Error("FromContext() ok = true on an empty context")
	}
}

func TestWithSession_RoundTrip(t *testing.T) {
	s := Session{State: SignedInSubscribed, User: &account.UserRecord{UserID: "u1"}, Epoch: 7}
	ctx := WithSession(context.Background(), s)

	got, ok := FromContext(ctx)
	if !ok {
		t.Fatal("FromContext() ok = false")
	}
	if got.UserID() != "u1" || got.State != SignedInSubscribed {
		t.Errorf("FromContext() = %+v, want user u1 subscribed", got)
	}
	if got.Epoch != 7 {
		t.Errorf("FromContext().Epoch = %d, want 7", got.Epoch)
	}
}

func TestWithSession_Shadowing(t *testing.T) {
	outer := WithSession(context.Background(), Session{Epoch: 1})
	inner := WithSession(outer, Session{Epoch: 2})

	if s, _ := FromContext(inner); s.Epoch != 2 {
		t.Errorf("inner epoch = %d, want 2", s.Epoch)
	}
	if s, _ := FromContext(outer); s.Epoch != 1 {
		t.Errorf("outer epoch = %d, want 1", s.Epoch)
	}
}
