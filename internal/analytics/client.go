// ABOUTME: Analytics identity client tracking the current distinct ID and super properties
// ABOUTME: Implements identify, alias, register, capture, reset over a pluggable Sender

package analytics

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"sync"
	"time"

	"github.com/2389/lamp/internal/apperr"
	"github.com/2389/lamp/internal/identity"
	"github.com/2389/lamp/internal/store"
)

// Backend is the analytics identity surface the merge protocol needs.
type Backend interface {
	Identify(ctx context.Context, distinctID string, properties map[string]any) error
	Alias(ctx context.Context, newID, oldID string) error
	Register(ctx context.Context, superProperties map[string]any) error
	Capture(ctx context.Context, event string, properties map[string]any) error
	Reset(ctx context.Context) error
	CurrentDistinctID(ctx context.Context) (string, error)
}

// LocalState is the store surface Client persists to.
type LocalState interface {
	store.StateStore
	store.IdentityStore
}

// Client implements Backend.
type Client struct {
	sender Sender
	state  LocalState
	logger *slog.Logger
	now    func() time.Time

	mu sync.Mutex
}

// NewClient creates an analytics client.
func NewClient(sender Sender, state LocalState, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if sender == nil {
		sender = NopSender{}
	}
	return &Client{
		sender: sender,
		state:  state,
		logger: logger.With("component", "analytics"),
		now:    time.Now,
	}
}

// CurrentDistinctID returns the active distinct ID, minting and recording an
// anonymous web key on first use.
func (c *Client) CurrentDistinctID(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.currentLocked(ctx)
}

func (c *Client) currentLocked(ctx context.Context) (string, error) {
	id, err := c.state.GetState(ctx, store.StateCurrentDistinctID)
	if err == nil && id != "" {
		return id, nil
	}
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return "", apperr.Merge(apperr.CodeTransport, err)
	}
	return c.mintLocked(ctx)
}

func (c *Client) mintLocked(ctx context.Context) (string, error) {
	web := identity.NewWebKey()
	if err := c.state.RecordIdentity(ctx, web); err != nil {
		return "", apperr.Merge(apperr.CodeTransport, fmt.Errorf("recording anonymous key: %w", err))
	}
	if err := c.state.SetState(ctx, store.StateCurrentDistinctID, web.Key); err != nil {
		return "", apperr.Merge(apperr.CodeTransport, fmt.Errorf("storing distinct id: %w", err))
	}
	c.logger.Debug("minted anonymous web identity")
	return web.Key, nil
}

// Identify makes distinctID current and upserts properties under it.
func (c *Client) Identify(ctx context.Context, distinctID string, properties map[string]any) error {
	if distinctID == "" {
		return apperr.Merge(apperr.CodeRejected, identity.ErrEmptyKey)
	}
	c.mu.Lock()
	if err := c.state.RecordIdentity(ctx, identity.Authenticated(distinctID)); err != nil {
		c.mu.Unlock()
		return apperr.Merge(apperr.CodeTransport, err)
	}
	if err := c.state.SetState(ctx, store.StateCurrentDistinctID, distinctID); err != nil {
		c.mu.Unlock()
		return apperr.Merge(apperr.CodeTransport, err)
	}
	c.mu.Unlock()

	props := map[string]any{}
	if len(properties) > 0 {
		props["$set"] = properties
	}
	return c.send(ctx, Event{Name: EventIdentify, DistinctID: distinctID, Properties: props})
}

// Alias links oldID to newID.
func (c *Client) Alias(ctx context.Context, newID, oldID string) error {
	return c.send(ctx, Event{
		Name:       EventCreateAlias,
		DistinctID: newID,
		Properties: map[string]any{"distinct_id": newID, "alias": oldID},
	})
}

// Register merges superProperties into the properties attached to every
// later capture.
func (c *Client) Register(ctx context.Context, superProperties map[string]any) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	current, err := c.superLocked(ctx)
	if err != nil {
		return err
	}
	maps.Copy(current, superProperties)
	data, err := json.Marshal(current)
	if err != nil {
		return apperr.Merge(apperr.CodeRejected, fmt.Errorf("encoding super properties: %w", err))
	}
	if err := c.state.SetState(ctx, store.StateSuperProperties, string(data)); err != nil {
		return apperr.Merge(apperr.CodeTransport, err)
	}
	return nil
}

func (c *Client) superLocked(ctx context.Context) (map[string]any, error) {
	raw, err := c.state.GetState(ctx, store.StateSuperProperties)
	if errors.Is(err, store.ErrNotFound) {
		return map[string]any{}, nil
	}
	if err != nil {
		return nil, apperr.Merge(apperr.CodeTransport, err)
	}
	props := map[string]any{}
	if err := json.Unmarshal([]byte(raw), &props); err != nil {
		c.logger.Warn("discarding unreadable super properties", "error", err)
		return map[string]any{}, nil
	}
	return props, nil
}

// Capture sends a named event under the current distinct ID.
func (c *Client) Capture(ctx context.Context, event string, properties map[string]any) error {
	c.mu.Lock()
	distinctID, err := c.currentLocked(ctx)
	if err != nil {
		c.mu.Unlock()
		return err
	}
	props, err := c.superLocked(ctx)
	c.mu.Unlock()
	if err != nil {
		return err
	}
	maps.Copy(props, properties)
	return c.send(ctx, Event{Name: event, DistinctID: distinctID, Properties: props})
}

// Reset forgets super properties and starts a fresh anonymous lineage.
func (c *Client) Reset(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.state.DeleteState(ctx, store.StateSuperProperties); err != nil {
		return apperr.Merge(apperr.CodeTransport, err)
	}
	_, err := c.mintLocked(ctx)
	return err
}

func (c *Client) send(ctx context.Context, ev Event) error {
	ev.Timestamp = c.now().UTC()
	if err := c.sender.Send(ctx, ev); err != nil {
		return apperr.Merge(apperr.CodeTransport, err)
	}
	return nil
}
