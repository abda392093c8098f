// Package cache implements the content-addressed stage result cache.
// Keys encode everything that can influence a stage's output, so a hit
// never needs invalidation logic; the whole cache is discarded at build
// end unless a persistent store carries entries across builds.
package cache

import (
	"fmt"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/singleflight"
)

// Key identifies one stage computation. Input covers the stage's direct
// input bytes, Context covers everything else that influences the
// output (template set version, configuration, script version).
type Key struct {
	Stage   string
	Input   uint64
	Context uint64
}

func (k Key) String() string {
	return fmt.Sprintf("%s/%016x/%016x", k.Stage, k.Input, k.Context)
}

// Output is a completed stage result. Data and Meta are shared between
// all callers that hit the same key and must be treated as immutable.
type Output struct {
	Data []byte
	Meta map[string]string
}

// ComputeFunc produces the output for a key on a cache miss.
type ComputeFunc func() (Output, error)

// Result tells a caller where its output came from.
type Result int

const (
	// Hit served the output from memory.
	Hit Result = iota
	// StoreHit served the output from the persistent store.
	StoreHit
	// Computed ran the compute function.
	Computed
	// Shared joined another caller's in-flight computation.
	Shared
)

// Store is an optional persistent backend consulted on memory misses
// and written through on computes.
type Store interface {
	Get(key Key) (Output, bool, error)
	Put(key Key, out Output) error
	Close() error
}

// Stats are cumulative cache counters.
type Stats struct {
	Hits      uint64
	Misses    uint64
	StoreHits uint64
}

// Cache is safe for concurrent use. Distinct keys proceed fully in
// parallel; concurrent requests for one key share a single computation.
type Cache struct {
	mem    sync.Map // Key -> Output
	flight singleflight.Group
	store  Store

	hits      atomic.Uint64
	misses    atomic.Uint64
	storeHits atomic.Uint64
}

// New returns an in-memory cache.
func New() *Cache { return &Cache{} }

// NewWithStore returns a cache backed by a persistent store. The store
// may be nil, which behaves like New.
func NewWithStore(store Store) *Cache { return &Cache{store: store} }

// GetOrCompute returns the cached output for key, computing it at most
// once under concurrency: callers racing on one key block until the
// first computation finishes and then share its result, including a
// compute error. Failed computations are not cached. The Result is
// per caller: one of the racers reports how the output was obtained,
// the rest report Shared and touch no counters.
func (c *Cache) GetOrCompute(key Key, compute ComputeFunc) (Output, Result, error) {
	if v, ok := c.mem.Load(key); ok {
		c.hits.Add(1)
		return v.(Output), Hit, nil
	}
	// The closure below only runs for the flight leader, so joiners
	// keep the Shared default.
	res := Shared
	v, err, _ := c.flight.Do(key.String(), func() (any, error) {
		// A racing caller may have stored the value between our miss
		// and the flight starting.
		if v, ok := c.mem.Load(key); ok {
			c.hits.Add(1)
			res = Hit
			return v.(Output), nil
		}
		if c.store != nil {
			if out, ok, err := c.store.Get(key); err == nil && ok {
				c.storeHits.Add(1)
				res = StoreHit
				c.mem.Store(key, out)
				return out, nil
			}
		}
		c.misses.Add(1)
		res = Computed
		out, err := compute()
		if err != nil {
			return Output{}, err
		}
		c.mem.Store(key, out)
		if c.store != nil {
			// Write-through is best effort; a failed persist only costs
			// a recompute in a later build.
			_ = c.store.Put(key, out)
		}
		return out, nil
	})
	if err != nil {
		return Output{}, res, err
	}
	return v.(Output), res, nil
}

// Stats returns a snapshot of the counters.
func (c *Cache) Stats() Stats {
	return Stats{
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		StoreHits: c.storeHits.Load(),
	}
}

// Close releases the persistent store, if any.
func (c *Cache) Close() error {
	if c.store == nil {
		return nil
	}
	return c.store.Close()
}
