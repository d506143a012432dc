// ABOUTME: Thread-safe, size-limited TTL cache keyed by string
// ABOUTME: Backs workspace owner lookups and duplicate-event suppression for the chat frontends

package cache

import (
	"container/list"
	"sync"
	"time"
)

type entry[V any] struct {
	value   V
	stored  time.Time
	element *list.Element
}

// TTL holds values for a fixed time and evicts the oldest key once full.
// Insertion order is kept in a linked list so eviction is O(1).
type TTL[V any] struct {
	mu      sync.Mutex
	items   map[string]*entry[V]
	order   *list.List // keys, oldest at front
	ttl     time.Duration
	maxSize int
	now     func() time.Time
	done    chan struct{}
	closed  bool
}

// New creates a cache and starts its background sweeper. Call Close to stop it.
func New[V any](ttl time.Duration, maxSize int) *TTL[V] {
	c := newTTL[V](ttl, maxSize, time.Now)
	go c.sweep(time.Minute)
	return c
}

func newTTL[V any](ttl time.Duration, maxSize int, now func() time.Time) *TTL[V] {
	if maxSize <= 0 {
		maxSize = 1024
	}
	return &TTL[V]{
		items:   make(map[string]*entry[V]),
		order:   list.New(),
		ttl:     ttl,
		maxSize: maxSize,
		now:     now,
		done:    make(chan struct{}),
	}
}

// Get returns the live value for key.
func (c *TTL[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.items[key]
	if !ok || c.expired(e) {
		var zero V
		return zero, false
	}
	return e.value, true
}

// Set stores value under key, refreshing its age.
func (c *TTL[V]) Set(key string, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.setLocked(key, value)
}

// Delete drops a key.
func (c *TTL[V]) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.items[key]; ok {
		c.order.Remove(e.element)
		delete(c.items, key)
	}
}

// CheckAndMark reports whether key was already present and live; if not, it
// records key with value. The check and the write happen under one lock.
func (c *TTL[V]) CheckAndMark(key string, value V) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.items[key]; ok && !c.expired(e) {
		return true
	}
	c.setLocked(key, value)
	return false
}

// Len counts stored keys, including ones that expired but were not yet swept.
func (c *TTL[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

func (c *TTL[V]) expired(e *entry[V]) bool {
	return c.now().Sub(e.stored) >= c.ttl
}

func (c *TTL[V]) setLocked(key string, value V) {
	now := c.now()

	if e, ok := c.items[key]; ok {
		e.value = value
		e.stored = now
		c.order.MoveToBack(e.element)
		return
	}

	if len(c.items) >= c.maxSize {
		if front := c.order.Front(); front != nil {
			oldest, _ := front.Value.(string)
			c.order.Remove(front)
			delete(c.items, oldest)
		}
	}

	c.items[key] = &entry[V]{
		value:   value,
		stored:  now,
		element: c.order.PushBack(key),
	}
}

func (c *TTL[V]) sweep(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.removeExpired()
		case <-c.done:
			return
		}
	}
}

func (c *TTL[V]) removeExpired() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for key, e := range c.items {
		if c.expired(e) {
			c.order.Remove(e.element)
			delete(c.items, key)
		}
	}
}

// Close stops the sweeper. It is safe to call multiple times.
func (c *TTL[V]) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed {
		close(c.done)
		c.closed = true
	}
}
