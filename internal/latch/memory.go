// ABOUTME: Thread-safe TTL cache backing the in-process one-shot latch
// ABOUTME: Bounded by size with O(1) oldest-first eviction

package latch

import (
	"container/list"
	"context"
	"sync"
	"time"
)

// cacheEntry stores the timestamp and list element for a cached key.
type cacheEntry struct {
	timestamp time.Time
	element   *list.Element
}

// Memory is a TTL-based, size-limited set of acquired keys.
// Uses a doubly-linked list to maintain insertion order for O(1) eviction.
type Memory struct {
	mu      sync.Mutex
	seen    map[string]*cacheEntry
	order   *list.List // keys in insertion order (oldest at front)
	ttl     time.Duration
	maxSize int
	now     func() time.Time
	done    chan struct{}
	closed  bool
}

// NewMemory creates a latch whose keys expire after ttl. At most maxSize keys
// are remembered; the oldest is evicted first.
// A background goroutine periodically cleans up expired entries.
func NewMemory(ttl time.Duration, maxSize int) *Memory {
	m := &Memory{
		seen:    make(map[string]*cacheEntry),
		order:   list.New(),
		ttl:     ttl,
		maxSize: maxSize,
		now:     time.Now,
		done:    make(chan struct{}),
	}
	go m.cleanup()
	return m
}

// Acquire returns true if key was not held (or had expired) and is now held.
func (m *Memory) Acquire(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if entry, ok := m.seen[key]; ok && m.now().Sub(entry.timestamp) < m.ttl {
		return false, nil
	}
	m.markLocked(key)
	return true, nil
}

// held reports whether key is currently held.
func (m *Memory) held(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.seen[key]
	return ok && m.now().Sub(entry.timestamp) < m.ttl
}

// Release forgets key.
func (m *Memory) Release(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if entry, ok := m.seen[key]; ok {
		m.order.Remove(entry.element)
		delete(m.seen, key)
	}
	return nil
}

// markLocked records key. Must be called with mu held.
func (m *Memory) markLocked(key string) {
	now := m.now()

	if entry, exists := m.seen[key]; exists {
		entry.timestamp = now
		m.order.MoveToBack(entry.element)
		return
	}

	if len(m.seen) >= m.maxSize {
		m.evictOldest()
	}

	elem := m.order.PushBack(key)
	m.seen[key] = &cacheEntry{
		timestamp: now,
		element:   elem,
	}
}

// evictOldest removes the oldest entry. Must be called with mu held.
func (m *Memory) evictOldest() {
	front := m.order.Front()
	if front == nil {
		return
	}

	key, _ := front.Value.(string)
	m.order.Remove(front)
	delete(m.seen, key)
}

// cleanup runs in a background goroutine, periodically removing expired entries.
func (m *Memory) cleanup() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.runCleanup()
		case <-m.done:
			return
		}
	}
}

// runCleanup removes all expired entries.
func (m *Memory) runCleanup() {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	for key, entry := range m.seen {
		if now.Sub(entry.timestamp) >= m.ttl {
			m.order.Remove(entry.element)
			delete(m.seen, key)
		}
	}
}

// Close stops the background cleanup goroutine. It is safe to call multiple times.
func (m *Memory) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.closed {
		close(m.done)
		m.closed = true
	}
}
