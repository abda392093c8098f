// Package intern provides a concurrent string interner issuing dense
// integer identifiers for canonical paths and cache keys.
package intern

import (
	"sync"
	"sync/atomic"

	"github.com/cespare/xxhash/v2"
)

// ID is a dense identifier for an interned key. IDs start at 0 and are
// append-only for the lifetime of the interner: the mapping from key to
// ID is bijective and never changes once issued.
type ID uint32

const (
	shardCount = 64 // power of two, shard = hash & (shardCount-1)
	blockSize  = 1024
)

type shard struct {
	mu   sync.RWMutex
	keys map[string]ID
}

// Interner maps keys to dense IDs. Safe for concurrent use; lookups are
// sharded by key hash so unrelated keys do not contend on one lock.
type Interner struct {
	shards [shardCount]shard
	next   atomic.Uint32

	// blocks is the append-only resolve arena. Slots are written once,
	// before the owning ID is published; the mutex only guards growth.
	blocksMu sync.RWMutex
	blocks   [][]string
}

// New returns an empty interner.
func New() *Interner {
	in := &Interner{}
	for i := range in.shards {
		in.shards[i].keys = make(map[string]ID)
	}
	return in
}

// Intern returns the ID for key, issuing a new one on first sight.
// Repeated calls with an equal key return the same ID.
func (in *Interner) Intern(key string) ID {
	s := &in.shards[xxhash.Sum64String(key)&(shardCount-1)]

	s.mu.RLock()
	id, ok := s.keys[key]
	s.mu.RUnlock()
	if ok {
		return id
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.keys[key]; ok {
		return id
	}
	id = ID(in.next.Add(1) - 1)
	in.store(id, key)
	s.keys[key] = id
	return id
}

// Lookup returns the ID for key without interning it.
func (in *Interner) Lookup(key string) (ID, bool) {
	s := &in.shards[xxhash.Sum64String(key)&(shardCount-1)]
	s.mu.RLock()
	id, ok := s.keys[key]
	s.mu.RUnlock()
	return id, ok
}

// Resolve returns the key for an ID previously returned by Intern.
// It is total for issued IDs; resolving an ID that was never issued
// returns the empty string.
func (in *Interner) Resolve(id ID) string {
	in.blocksMu.RLock()
	defer in.blocksMu.RUnlock()
	b, off := int(id)/blockSize, int(id)%blockSize
	if b >= len(in.blocks) {
		return ""
	}
	return in.blocks[b][off]
}

// Len reports how many distinct keys have been interned.
func (in *Interner) Len() int {
	return int(in.next.Load())
}

func (in *Interner) store(id ID, key string) {
	in.blocksMu.Lock()
	defer in.blocksMu.Unlock()
	for int(id)/blockSize >= len(in.blocks) {
		in.blocks = append(in.blocks, make([]string, blockSize))
	}
	in.blocks[int(id)/blockSize][int(id)%blockSize] = key
}
