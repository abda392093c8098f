// Package graph holds the in-memory site model: pages, templates,
// partials, collections and the dependency edges between them, plus the
// render state machine driving wavefront scheduling.
package graph

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"tern/internal/source"
)

// NodeID indexes the graph's node arena.
type NodeID int32

// NodeKind classifies a node.
type NodeKind int

const (
	KindPage NodeKind = iota
	KindCollection
	KindTemplate
	KindPartial
	KindStylesheet
	KindData
	KindAsset
)

func (k NodeKind) String() string {
	switch k {
	case KindPage:
		return "page"
	case KindCollection:
		return "collection"
	case KindTemplate:
		return "template"
	case KindPartial:
		return "partial"
	case KindStylesheet:
		return "stylesheet"
	case KindData:
		return "data"
	case KindAsset:
		return "asset"
	default:
		return "unknown"
	}
}

var (
	// ErrCycle marks dependency declarations that would close a cycle.
	ErrCycle = errors.New("graph: dependency cycle")
	// ErrExists marks duplicate node registration.
	ErrExists = errors.New("graph: node already registered")
	// ErrUnknownNode marks operations against an ID never issued.
	ErrUnknownNode = errors.New("graph: unknown node")
)

// CycleError carries the closed path for diagnostics. errors.Is matches
// ErrCycle.
type CycleError struct {
	From string
	To   string
	Path []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("graph: dependency cycle: %s -> %s closes %s", e.From, e.To, strings.Join(e.Path, " -> "))
}

func (e *CycleError) Is(target error) bool { return target == ErrCycle }

type node struct {
	id    NodeID
	name  string
	kind  NodeKind
	entry *source.Entry // nil for virtual nodes

	state atomic.Int32
	// remaining counts declared dependencies not yet Done. Guarded by
	// Graph.mu together with edge mutation so decrements never race
	// edge insertion.
	remaining int32

	deps       []NodeID
	dependents []NodeID

	err      error  // failure cause, set before state flips to Failed
	failedBy NodeID // root cause for propagated failures, self if origin
}

// Info is a read-only snapshot of one node.
type Info struct {
	ID    NodeID
	Name  string
	Kind  NodeKind
	State State
	Entry *source.Entry
	Err   error
	// FailedBy names the root-cause node for propagated failures.
	FailedBy NodeID
}

// Graph owns all nodes. Nodes live in an append-only arena indexed by
// NodeID; edges are integer pairs. Safe for concurrent use: reads take
// a shared lock, state flips are atomic, and edge/counter mutation
// happens in short exclusive sections.
type Graph struct {
	mu     sync.RWMutex
	nodes  []*node
	byName map[string]NodeID

	// ready collects nodes whose remaining counter hit zero. Drained by
	// TopologicalBatch; duplicates are harmless since dispatch claims
	// nodes through a Pending -> Rendering transition.
	ready []NodeID

	live atomic.Int32 // nodes not yet terminal
}

// New returns an empty graph.
func New() *Graph {
	return &Graph{byName: make(map[string]NodeID)}
}

// Register adds a node under a unique logical name. The entry may be
// nil for virtual nodes created by script hooks. Dependencies passed
// here bind atomically with the registration, which is required when
// registering while the scheduler is already draining batches; a node
// registered without them is immediately batch-eligible.
func (g *Graph) Register(name string, kind NodeKind, entry *source.Entry, deps ...NodeID) (NodeID, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.byName[name]; ok {
		return 0, fmt.Errorf("%w: %s", ErrExists, name)
	}
	for _, dep := range deps {
		if !g.valid(dep) {
			return 0, ErrUnknownNode
		}
	}
	id := NodeID(len(g.nodes))
	n := &node{id: id, name: name, kind: kind, entry: entry}
	g.nodes = append(g.nodes, n)
	g.byName[name] = id
	g.live.Add(1)
	for _, dep := range deps {
		n.deps = append(n.deps, dep)
		g.nodes[dep].dependents = append(g.nodes[dep].dependents, id)
		if State(g.nodes[dep].state.Load()) != StateDone {
			n.remaining++
		}
	}
	if n.remaining == 0 {
		g.ready = append(g.ready, id)
	}
	return id, nil
}

// DeclareDependency records that from needs to before it can render.
// Fails with a CycleError (matching ErrCycle) when the edge would close
// a dependency cycle; the graph is unchanged in that case.
func (g *Graph) DeclareDependency(from, to NodeID) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.valid(from) || !g.valid(to) {
		return ErrUnknownNode
	}
	if from == to {
		return &CycleError{From: g.nodes[from].name, To: g.nodes[to].name, Path: []string{g.nodes[from].name}}
	}
	for _, d := range g.nodes[from].deps {
		if d == to {
			return nil
		}
	}
	// Incremental check: the new edge from -> to closes a cycle exactly
	// when from is already reachable from to along dependency edges.
	if path := g.pathBetween(to, from); path != nil {
		return &CycleError{
			From: g.nodes[from].name,
			To:   g.nodes[to].name,
			Path: g.names(path),
		}
	}
	g.nodes[from].deps = append(g.nodes[from].deps, to)
	g.nodes[to].dependents = append(g.nodes[to].dependents, from)
	switch State(g.nodes[to].state.Load()) {
	case StateDone:
		// Already satisfied, nothing outstanding.
	case StateFailed:
		// The dependency can never complete; the declaring node and its
		// dependents inherit the failure immediately.
		t := g.nodes[to]
		g.propagateLocked(t, t.failedBy, t.err)
	default:
		g.nodes[from].remaining++
	}
	return nil
}

// pathBetween returns the dependency path from start to goal, or nil.
// Caller holds mu.
func (g *Graph) pathBetween(start, goal NodeID) []NodeID {
	prev := map[NodeID]NodeID{start: start}
	stack := []NodeID{start}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if cur == goal {
			var path []NodeID
			for at := goal; ; at = prev[at] {
				path = append([]NodeID{at}, path...)
				if at == start {
					return path
				}
			}
		}
		for _, next := range g.nodes[cur].deps {
			if _, seen := prev[next]; !seen {
				prev[next] = cur
				stack = append(stack, next)
			}
		}
	}
	return nil
}

func (g *Graph) names(ids []NodeID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = g.nodes[id].name
	}
	return out
}

// TopologicalBatch drains the set of nodes whose dependencies are all
// Done and that still await rendering, ordered by ID. Calling it
// repeatedly as nodes complete yields wavefront scheduling.
func (g *Graph) TopologicalBatch() []NodeID {
	g.mu.Lock()
	drained := g.ready
	g.ready = nil
	var batch []NodeID
	for _, id := range drained {
		n := g.nodes[id]
		if State(n.state.Load()) == StatePending && n.remaining == 0 {
			batch = append(batch, id)
		}
	}
	g.mu.Unlock()
	sort.Slice(batch, func(i, j int) bool { return batch[i] < batch[j] })
	return batch
}

// MarkRendering claims a node for a worker. Exactly one concurrent
// caller wins; the others receive a TransitionError.
func (g *Graph) MarkRendering(id NodeID) error {
	n, err := g.node(id)
	if err != nil {
		return err
	}
	if !n.state.CompareAndSwap(int32(StatePending), int32(StateRendering)) {
		return &TransitionError{Node: id, From: State(n.state.Load()), To: StateRendering}
	}
	return nil
}

// MarkDone completes a node and unlocks dependents whose last
// outstanding dependency it was.
func (g *Graph) MarkDone(id NodeID) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.valid(id) {
		return ErrUnknownNode
	}
	n := g.nodes[id]
	if !n.state.CompareAndSwap(int32(StateRendering), int32(StateDone)) {
		return &TransitionError{Node: id, From: State(n.state.Load()), To: StateDone}
	}
	g.live.Add(-1)
	for _, dep := range n.dependents {
		d := g.nodes[dep]
		d.remaining--
		if d.remaining == 0 {
			g.ready = append(g.ready, dep)
		}
	}
	return nil
}

// MarkFailed records a node failure and propagates Failed to every
// transitive dependent so none of them renders against stale or partial
// input. It returns the IDs newly failed by propagation, in ID order,
// for reporting.
func (g *Graph) MarkFailed(id NodeID, cause error) ([]NodeID, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.valid(id) {
		return nil, ErrUnknownNode
	}
	n := g.nodes[id]
	from := State(n.state.Load())
	if !canTransition(from, StateFailed) {
		return nil, &TransitionError{Node: id, From: from, To: StateFailed}
	}
	n.err = cause
	n.failedBy = id
	n.state.Store(int32(StateFailed))
	g.live.Add(-1)
	return g.propagateLocked(n, id, cause), nil
}

// propagateLocked fails every transitive dependent of origin that has
// not started rendering, in deterministic ID order. Caller holds mu.
func (g *Graph) propagateLocked(origin *node, rootID NodeID, cause error) []NodeID {
	var propagated []NodeID
	queue := append([]NodeID(nil), origin.dependents...)
	sort.Slice(queue, func(i, j int) bool { return queue[i] < queue[j] })
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		d := g.nodes[cur]
		if !d.state.CompareAndSwap(int32(StatePending), int32(StateFailed)) {
			continue
		}
		d.err = fmt.Errorf("dependency %s failed: %w", origin.name, cause)
		d.failedBy = rootID
		g.live.Add(-1)
		propagated = append(propagated, cur)
		next := append([]NodeID(nil), d.dependents...)
		sort.Slice(next, func(i, j int) bool { return next[i] < next[j] })
		queue = append(queue, next...)
	}
	sort.Slice(propagated, func(i, j int) bool { return propagated[i] < propagated[j] })
	return propagated
}

// Node returns a snapshot of one node.
func (g *Graph) Node(id NodeID) (Info, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if !g.valid(id) {
		return Info{}, false
	}
	return g.info(g.nodes[id]), true
}

// Lookup resolves a logical name to its node snapshot.
func (g *Graph) Lookup(name string) (Info, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	id, ok := g.byName[name]
	if !ok {
		return Info{}, false
	}
	return g.info(g.nodes[id]), true
}

func (g *Graph) info(n *node) Info {
	return Info{
		ID:       n.id,
		Name:     n.name,
		Kind:     n.kind,
		State:    State(n.state.Load()),
		Entry:    n.entry,
		Err:      n.err,
		FailedBy: n.failedBy,
	}
}

// State reads a node's current state. Unknown IDs read as Failed.
func (g *Graph) State(id NodeID) State {
	g.mu.RLock()
	ok := g.valid(id)
	var n *node
	if ok {
		n = g.nodes[id]
	}
	g.mu.RUnlock()
	if !ok {
		return StateFailed
	}
	return State(n.state.Load())
}

// Dependencies returns a copy of a node's declared dependency IDs.
func (g *Graph) Dependencies(id NodeID) []NodeID {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if !g.valid(id) {
		return nil
	}
	return append([]NodeID(nil), g.nodes[id].deps...)
}

// Dependents returns a copy of a node's reverse edges.
func (g *Graph) Dependents(id NodeID) []NodeID {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if !g.valid(id) {
		return nil
	}
	return append([]NodeID(nil), g.nodes[id].dependents...)
}

// Len reports how many nodes are registered.
func (g *Graph) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.nodes)
}

// Remaining counts nodes that have not reached a terminal state. The
// scheduler drains until it hits zero.
func (g *Graph) Remaining() int {
	return int(g.live.Load())
}

// Failed returns snapshots of every failed node, in ID order.
func (g *Graph) Failed() []Info {
	g.mu.RLock()
	defer g.mu.RUnlock()
	var out []Info
	for _, n := range g.nodes {
		if State(n.state.Load()) == StateFailed {
			out = append(out, g.info(n))
		}
	}
	return out
}

// All returns snapshots of every node, in ID order.
func (g *Graph) All() []Info {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]Info, len(g.nodes))
	for i, n := range g.nodes {
		out[i] = g.info(n)
	}
	return out
}

func (g *Graph) node(id NodeID) (*node, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if !g.valid(id) {
		return nil, ErrUnknownNode
	}
	return g.nodes[id], nil
}

func (g *Graph) valid(id NodeID) bool {
	return id >= 0 && int(id) < len(g.nodes)
}
