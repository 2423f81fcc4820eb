// ABOUTME: Tests for the analytics client, HTTP sender, and async dispatcher
// ABOUTME: Uses a recording sender, an httptest capture endpoint, and goleak

package analytics

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/2389/lamp/internal/apperr"
	"github.com/2389/lamp/internal/identity"
	"github.com/2389/lamp/internal/store"
)

type recordingSender struct {
	mu     sync.Mutex
	events []Event
	err    error
}

func (r *recordingSender) Send(_ context.Context, ev Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.events = append(r.events, ev)
	return nil
}

func (r *recordingSender) snapshot() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

func newTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestClient_CurrentDistinctID_MintsOnce(t *testing.T) {
	s := newTestStore(t)
	c := NewClient(&recordingSender{}, s, nil)
	ctx := context.Background()

	first, err := c.CurrentDistinctID(ctx)
	require.NoError(t, err)
	assert.True(t, identity.LooksWebAnonymous(first))

	second, err := c.CurrentDistinctID(ctx)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	kind, err := s.IdentityKind(ctx, first)
	require.NoError(t, err)
	assert.Equal(t, identity.KindAnonymousWeb, kind)
}

func TestClient_IdentifySwitchesCurrent(t *testing.T) {
	s := newTestStore(t)
	rec := &recordingSender{}
	c := NewClient(rec, s, nil)
	ctx := context.Background()

	require.NoError(t, c.Identify(ctx, "user1", map[string]any{"email": "ruth@example.com"}))

	current, err := c.CurrentDistinctID(ctx)
	require.NoError(t, err)
	assert.Equal(t, "user1", current)

	kind, _ := s.IdentityKind(ctx, "user1")
	assert.Equal(t, identity.KindAuthenticated, kind)

	events := rec.snapshot()
	require.Len(t, events, 1)
	assert.Equal(t, EventIdentify, events[0].Name)
	assert.Equal(t, "user1", events[0].DistinctID)
	assert.Equal(t, map[string]any{"email": "ruth@example.com"}, events[0].Properties["$set"])
	assert.False(t, events[0].Timestamp.IsZero())
}

func TestClient_IdentifyRejectsEmpty(t *testing.T) {
	c := NewClient(&recordingSender{}, newTestStore(t), nil)
	err := c.Identify(context.Background(), "", nil)
	assert.Equal(t, apperr.KindMerge, apperr.KindOf(err))
}

func TestClient_Alias(t *testing.T) {
	rec := &recordingSender{}
	c := NewClient(rec, newTestStore(t), nil)

	require.NoError(t, c.Alias(context.Background(), "user1", "anon-key"))

	events := rec.snapshot()
	require.Len(t, events, 1)
	assert.Equal(t, EventCreateAlias, events[0].Name)
	assert.Equal(t, "user1", events[0].DistinctID)
	assert.Equal(t, "anon-key", events[0].Properties["alias"])
}

func TestClient_RegisterAndCapture(t *testing.T) {
	rec := &recordingSender{}
	c := NewClient(rec, newTestStore(t), nil)
	ctx := context.Background()

	require.NoError(t, c.Register(ctx, map[string]any{"environment": "staging"}))
	require.NoError(t, c.Register(ctx, map[string]any{"plan": "free"}))
	require.NoError(t, c.Capture(ctx, "phone_linked", map[string]any{"plan": "premium"}))

	events := rec.snapshot()
	require.Len(t, events, 1)
	assert.Equal(t, "staging", events[0].Properties["environment"])
	assert.Equal(t, "premium", events[0].Properties["plan"], "event properties override super properties")
}

func TestClient_ResetStartsFreshLineage(t *testing.T) {
	rec := &recordingSender{}
	c := NewClient(rec, newTestStore(t), nil)
	ctx := context.Background()

	require.NoError(t, c.Identify(ctx, "user1", nil))
	require.NoError(t, c.Register(ctx, map[string]any{"plan": "free"}))
	require.NoError(t, c.Reset(ctx))

	current, err := c.CurrentDistinctID(ctx)
	require.NoError(t, err)
	assert.NotEqual(t, "user1", current)
	assert.True(t, identity.LooksWebAnonymous(current))

	require.NoError(t, c.Capture(ctx, "page_view", nil))
	events := rec.snapshot()
	last := events[len(events)-1]
	assert.NotContains(t, last.Properties, "plan")
}

func TestClient_SendFailureIsMergeError(t *testing.T) {
	c := NewClient(&recordingSender{err: errors.New("offline")}, newTestStore(t), nil)
	err := c.Alias(context.Background(), "user1", "anon-key")
	assert.Equal(t, apperr.KindMerge, apperr.KindOf(err))
	assert.Empty(t, apperr.UserMessage(err))
}

func TestHTTPSender_PostsCapture(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/capture/", r.URL.Path)
		json.NewDecoder(r.Body).Decode(&got) //nolint:errcheck
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	s := NewHTTPSender(srv.URL+"/", "phc_test", srv.Client())
	err := s.Send(context.Background(), Event{Name: EventIdentify, DistinctID: "user1", Timestamp: time.Now()})
	require.NoError(t, err)

	assert.Equal(t, "phc_test", got["api_key"])
	assert.Equal(t, EventIdentify, got["event"])
	assert.Equal(t, "user1", got["distinct_id"])
}

func TestHTTPSender_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	err := NewHTTPSender(srv.URL, "k", srv.Client()).Send(context.Background(), Event{Name: "x"})
	assert.Error(t, err)
}

func TestDispatcher_DeliversAndDrains(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	rec := &recordingSender{}
	d := NewDispatcher(rec, 16, nil)
	for i := 0; i < 10; i++ {
		require.NoError(t, d.Send(context.Background(), Event{Name: "e"}))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, d.Close(ctx))
	require.NoError(t, d.Close(ctx), "second close is a no-op")

	assert.Len(t, rec.snapshot(), 10)

	// Sends after close are dropped, not panics
	require.NoError(t, d.Send(context.Background(), Event{Name: "late"}))
	assert.Len(t, rec.snapshot(), 10)
}

type blockingSender struct {
	release chan struct{}
	count   int
	mu      sync.Mutex
}

func (b *blockingSender) Send(context.Context, Event) error {
	<-b.release
	b.mu.Lock()
	b.count++
	b.mu.Unlock()
	return nil
}

func TestDispatcher_FullQueueDropsWithoutBlocking(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	b := &blockingSender{release: make(chan struct{})}
	d := NewDispatcher(b, 1, nil)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 50; i++ {
			d.Send(context.Background(), Event{Name: "e"}) //nolint:errcheck
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Send blocked on a full queue")
	}

	close(b.release)
	require.NoError(t, d.Close(context.Background()))

	b.mu.Lock()
	defer b.mu.Unlock()
	assert.Less(t, b.count, 50, "some events should have been dropped")
	assert.GreaterOrEqual(t, b.count, 1)
}

func TestDispatcher_FailuresAreSwallowed(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	d := NewDispatcher(&recordingSender{err: errors.New("offline")}, 4, nil)
	assert.NoError(t, d.Send(context.Background(), Event{Name: "e"}))
	require.NoError(t, d.Close(context.Background()))
}
