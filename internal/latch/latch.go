// ABOUTME: Latch interface shared by the in-memory and Redis one-shot guards
// ABOUTME: Acquire is an atomic check-and-set keyed by an operation token

package latch

import "context"

// Latch is a one-shot guard keyed by an operation token such as an
// authorization code or a transition ID.
type Latch interface {
	// Acquire atomically marks key and reports whether this call was the
	// first to do so.
	Acquire(ctx context.Context, key string) (bool, error)
	// Release forgets key so it can be acquired again.
	Release(ctx context.Context, key string) error
}
