// ABOUTME: Analytics event envelope and the Sender interface
// ABOUTME: Events are identify, alias, or named captures keyed by distinct ID

package analytics

import (
	"context"
	"time"
)

// Reserved event names understood by the capture endpoint.
const (
	EventIdentify    = "$identify"
	EventCreateAlias = "$create_alias"
)

// Event is one message to the analytics backend.
type Event struct {
	Name       string         `json:"event"`
	DistinctID string         `json:"distinct_id"`
	Properties map[string]any `json:"properties,omitempty"`
	Timestamp  time.Time      `json:"timestamp"`
}

// Sender delivers events.
type Sender interface {
	Send(ctx context.Context, ev Event) error
}

// NopSender drops every event.
type NopSender struct{}

// Send discards ev.
func (NopSender) Send(context.Context, Event) error { return nil }
