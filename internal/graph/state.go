package graph

import "fmt"

// State is the render lifecycle of a node.
type State int32

const (
	StatePending State = iota
	StateRendering
	StateDone
	StateFailed
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateRendering:
		return "rendering"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool { return s == StateDone || s == StateFailed }

// validTransitions maps each state to the states it may move to.
// Pending may fail directly: failure of a dependency propagates to
// nodes that never started rendering.
var validTransitions = map[State][]State{
	StatePending:   {StateRendering, StateFailed},
	StateRendering: {StateDone, StateFailed},
	StateDone:      {},
	StateFailed:    {},
}

// TransitionError reports a state change the lifecycle does not allow.
type TransitionError struct {
	Node NodeID
	From State
	To   State
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("graph: node %d cannot move %s -> %s", e.Node, e.From, e.To)
}

func canTransition(from, to State) bool {
	for _, s := range validTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}
