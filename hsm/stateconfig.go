package hsm

import (
	"context"
	"fmt"
)

// stateNode is the internal, mutable representation of one configured
// state: its hierarchy edge, its entry/exit callbacks, and its outgoing
// trigger behaviours. It is the teacher's stateRepresentation, generalized
// to the spec's permit/permitIf/ignore/onEntry/onEntryFrom/onExit/
// substateOf vocabulary.
type stateNode struct {
	state       State
	parent      *stateNode
	children    []*stateNode
	entryAll    []actionBehaviour
	exitAll     []actionBehaviour
	behaviours  map[Trigger][]triggerBehaviour
}

func newStateNode(s State) *stateNode {
	return &stateNode{state: s, behaviours: make(map[Trigger][]triggerBehaviour)}
}

func (n *stateNode) addBehaviour(b triggerBehaviour) {
	n.behaviours[b.trigger()] = append(n.behaviours[b.trigger()], b)
}

func (n *stateNode) includesState(s State) bool {
	if n.state == s {
		return true
	}
	for _, c := range n.children {
		if c.includesState(s) {
			return true
		}
	}
	return false
}

func (n *stateNode) isIncludedInState(s State) bool {
	if n.state == s {
		return true
	}
	if n.parent != nil {
		return n.parent.isIncludedInState(s)
	}
	return false
}

// findHandler looks only at this node (not ancestors) for a fireable-or-not
// handler of trigger, resolving "first configured, guard-permitting" among
// same-trigger behaviours and panicking if two are simultaneously fireable
// (guards must be mutually exclusive, matching the teacher's contract).
func (n *stateNode) findHandler(ctx context.Context, t Trigger, args ...any) (behaviourResult, bool) {
	candidates, ok := n.behaviours[t]
	if !ok {
		return behaviourResult{}, false
	}
	var result behaviourResult
	var unmetBuf []string
	for _, b := range candidates {
		unmetBuf = b.unmetGuards(ctx, unmetBuf[:0], args...)
		if len(unmetBuf) == 0 {
			if result.handler != nil && len(result.unmet) == 0 {
				panic(fmt.Sprintf("hsm: multiple permitted transitions configured from state %v for trigger %v; guards must be mutually exclusive", n.state, t))
			}
			result.handler = b
			result.unmet = nil
			result.foundInNode = n
		} else if result.handler == nil {
			result.handler = b
			result.unmet = append([]string(nil), unmetBuf...)
			result.foundInNode = n
		}
	}
	return result, result.handler != nil && len(result.unmet) == 0
}

// findHandlerInChain searches this node and then its ancestor chain
// (lowest descendant wins per §4.1 step 1), returning the first node whose
// search turns up a candidate at all — fireable or guard-blocked.
func (n *stateNode) findHandlerInChain(ctx context.Context, t Trigger, args ...any) (behaviourResult, bool) {
	if result, ok := n.findHandler(ctx, t, args...); ok || result.handler != nil {
		return result, ok
	}
	if n.parent != nil {
		return n.parent.findHandlerInChain(ctx, t, args...)
	}
	return behaviourResult{}, false
}

func (n *stateNode) permittedTriggers(ctx context.Context, args ...any) []Trigger {
	seen := make(map[Trigger]struct{})
	var out []Trigger
	for cur := n; cur != nil; cur = cur.parent {
		for trig, behaviours := range cur.behaviours {
			if _, dup := seen[trig]; dup {
				continue
			}
			for _, b := range behaviours {
				if b.guardsMet(ctx, args...) {
					seen[trig] = struct{}{}
					out = append(out, trig)
					break
				}
			}
		}
	}
	return out
}

func (n *stateNode) runEntry(ctx context.Context, t Transition, args ...any) error {
	for _, a := range n.entryAll {
		if err := a.run(ctx, t, args...); err != nil {
			return err
		}
	}
	return nil
}

func (n *stateNode) runExit(ctx context.Context, t Transition, args ...any) error {
	for _, a := range n.exitAll {
		if err := a.run(ctx, t, args...); err != nil {
			return err
		}
	}
	return nil
}
