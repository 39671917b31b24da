// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

// Package hotcache is a short-TTL cache for endpoints polled far faster than
// their upstreams can answer. Concurrent misses for one key share a single
// upstream fetch.
package hotcache

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"
)

// Result classifies how a Get was served.
type Result string

const (
	ResultHit       Result = "hit"
	ResultMiss      Result = "miss"
	ResultCoalesced Result = "coalesced"
	ResultError     Result = "error"
)

// Stats counts Get outcomes since the cache was created.
type Stats struct {
	Hits      uint64 `json:"hits"`
	Misses    uint64 `json:"misses"`
	Coalesced uint64 `json:"coalesced"`
	Errors    uint64 `json:"errors"`
	Entries   int    `json:"entries"`
}

type options struct {
	maxEntries int
	now        func() time.Time
	observe    func(name string, r Result)
}

// Option configures a Cache.
type Option func(*options)

// WithMaxEntries bounds the number of stored entries. Expired entries are
// evicted first once the bound is reached.
func WithMaxEntries(n int) Option {
	return func(o *options) { o.maxEntries = n }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithObserver reports every Get outcome under the cache's name.
func WithObserver(fn func(name string, r Result)) Option {
	return func(o *options) { o.observe = fn }
}

type entry[V any] struct {
	value   V
	written time.Time
}

// Cache maps keys to values that stay fresh for one TTL.
type Cache[V any] struct {
	name string
	ttl  time.Duration
	opts options

	mu      sync.Mutex
	entries map[string]entry[V]
	group   singleflight.Group

	hits, misses, coalesced, errors atomic.Uint64
}

// New returns an empty cache. name labels observer callbacks.
func New[V any](name string, ttl time.Duration, opts ...Option) *Cache[V] {
	o := options{maxEntries: 10000, now: time.Now}
	for _, fn := range opts {
		fn(&o)
	}
	return &Cache[V]{
		name:    name,
		ttl:     ttl,
		opts:    o,
		entries: make(map[string]entry[V]),
	}
}

// TTL returns the freshness window.
func (c *Cache[V]) TTL() time.Duration { return c.ttl }

func (c *Cache[V]) lookup(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok || c.opts.now().Sub(e.written) >= c.ttl {
		var zero V
		return zero, false
	}
	return e.value, true
}

func (c *Cache[V]) store(key string, v V) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.entries[key]; !exists && c.opts.maxEntries > 0 && len(c.entries) >= c.opts.maxEntries {
		c.evictLocked()
	}
	c.entries[key] = entry[V]{value: v, written: c.opts.now()}
}

func (c *Cache[V]) evictLocked() {
	now := c.opts.now()
	for k, e := range c.entries {
		if now.Sub(e.written) >= c.ttl {
			delete(c.entries, k)
		}
	}
	for k := range c.entries {
		if len(c.entries) < c.opts.maxEntries {
			return
		}
		delete(c.entries, k)
	}
}

// Get returns the fresh value for key, or calls fetch once on behalf of every
// concurrent caller missing the same key. Failed fetches are not stored. The
// fetch runs detached from ctx so one caller giving up does not fail the
// others; ctx only bounds how long this caller waits.
func (c *Cache[V]) Get(ctx context.Context, key string, fetch func(context.Context) (V, error)) (V, error) {
	if v, ok := c.lookup(key); ok {
		c.hits.Add(1)
		c.observe(ResultHit)
		return v, nil
	}

	var leader bool
	fetchCtx := context.WithoutCancel(ctx)
	ch := c.group.DoChan(key, func() (interface{}, error) {
		leader = true
		if v, ok := c.lookup(key); ok {
			return v, nil
		}
		v, err := fetch(fetchCtx)
		if err != nil {
			return v, err
		}
		c.store(key, v)
		return v, nil
	})

	select {
	case res := <-ch:
		switch {
		case res.Err != nil:
			c.errors.Add(1)
			c.observe(ResultError)
		case leader:
			c.misses.Add(1)
			c.observe(ResultMiss)
		default:
			c.coalesced.Add(1)
			c.observe(ResultCoalesced)
		}
		v, _ := res.Val.(V)
		return v, res.Err
	case <-ctx.Done():
		var zero V
		return zero, ctx.Err()
	}
}

func (c *Cache[V]) observe(r Result) {
	if c.opts.observe != nil {
		c.opts.observe(c.name, r)
	}
}

// Invalidate drops key.
func (c *Cache[V]) Invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// Sweep removes expired entries and returns how many were removed.
func (c *Cache[V]) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.opts.now()
	n := 0
	for k, e := range c.entries {
		if now.Sub(e.written) >= c.ttl {
			delete(c.entries, k)
			n++
		}
	}
	return n
}

// Len returns the number of stored entries, fresh or not.
func (c *Cache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Stats returns the outcome counters.
func (c *Cache[V]) Stats() Stats {
	return Stats{
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		Coalesced: c.coalesced.Load(),
		Errors:    c.errors.Load(),
		Entries:   c.Len(),
	}
}

// Sweeper is implemented by every Cache.
type Sweeper interface {
	Sweep() int
}

// RunSweeper sweeps caches every interval until ctx is done.
func RunSweeper(ctx context.Context, interval time.Duration, caches ...Sweeper) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, c := range caches {
				c.Sweep()
			}
		}
	}
}
