package hsm

import (
	"context"
	"fmt"
)

// Validate checks the configured hierarchy for cycles and confirms every
// transition target and parent reference resolves to a configured state.
// Hosts call this once at actor activation, before replay; a cycle or
// dangling reference fails activation with ConfigurationError (§4.1, §4.4,
// §7) rather than surfacing as a confusing runtime panic mid-transition.
func (m *Machine) Validate() error {
	for s, n := range m.states {
		if err := m.checkAcyclic(s, n); err != nil {
			return err
		}
		for _, behaviours := range n.behaviours {
			for _, b := range behaviours {
				tb, ok := b.(*transitioningBehaviour)
				if !ok {
					continue
				}
				if _, known := m.states[tb.destination]; !known {
					return &ConfigurationError{Detail: fmt.Sprintf("state %v has a transition to unconfigured state %v", s, tb.destination)}
				}
			}
		}
	}
	m.validated = true
	return nil
}

func (m *Machine) checkAcyclic(s State, n *stateNode) error {
	seen := map[*stateNode]struct{}{n: {}}
	for cur := n.parent; cur != nil; cur = cur.parent {
		if _, ok := seen[cur]; ok {
			return &ConfigurationError{Detail: fmt.Sprintf("hierarchy cycle detected at state %v", s)}
		}
		seen[cur] = struct{}{}
	}
	return nil
}

// MachineInfo is the introspection snapshot behind the public actor
// contract's machineInfo() (§6).
type MachineInfo struct {
	CurrentState      State
	States            []State
	PermittedTriggers []Trigger
	Transitions       []DetailedTransition
	Hierarchy         map[State]State // child -> parent, only configured edges
}

// Info builds a MachineInfo snapshot of the machine's static configuration
// and current dynamic state.
func (m *Machine) Info(ctx context.Context) MachineInfo {
	hierarchy := make(map[State]State)
	for s, n := range m.states {
		if n.parent != nil {
			hierarchy[s] = n.parent.state
		}
	}
	return MachineInfo{
		CurrentState:      m.current,
		States:            append([]State(nil), m.order...),
		PermittedTriggers: m.PermittedTriggers(ctx),
		Transitions:       m.DetailedPermittedTriggers(),
		Hierarchy:         hierarchy,
	}
}
