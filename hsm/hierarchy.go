package hsm

// Hierarchical Extension (§4.4): derived queries over the parent/children
// indexes already embedded in each stateNode by StateConfiguration.SubstateOf.

// ParentOf returns the configured parent of s, and false if s has none or
// is unconfigured.
func (m *Machine) ParentOf(s State) (State, bool) {
	n, ok := m.states[s]
	if !ok || n.parent == nil {
		return nil, false
	}
	return n.parent.state, true
}

// SubstatesOf returns the direct children of s.
func (m *Machine) SubstatesOf(s State) []State {
	n, ok := m.states[s]
	if !ok {
		return nil
	}
	out := make([]State, len(n.children))
	for i, c := range n.children {
		out[i] = c.state
	}
	return out
}

// Ancestors returns the chain from s's parent up to the root, leaf→root
// order (s itself is not included).
func (m *Machine) Ancestors(s State) []State {
	n, ok := m.states[s]
	if !ok {
		return nil
	}
	var out []State
	for cur := n.parent; cur != nil; cur = cur.parent {
		out = append(out, cur.state)
	}
	return out
}

// Descendants returns every state reachable below s via a breadth-first
// traversal of the children index.
func (m *Machine) Descendants(s State) []State {
	n, ok := m.states[s]
	if !ok {
		return nil
	}
	var out []State
	queue := append([]*stateNode(nil), n.children...)
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		out = append(out, cur.state)
		queue = append(queue, cur.children...)
	}
	return out
}

// CurrentPath returns the chain from the root down to the current state,
// root→current order.
func (m *Machine) CurrentPath() []State {
	n, ok := m.states[m.current]
	if !ok {
		return []State{m.current}
	}
	var reversed []State
	for cur := n; cur != nil; cur = cur.parent {
		reversed = append(reversed, cur.state)
	}
	path := make([]State, len(reversed))
	for i, s := range reversed {
		path[len(reversed)-1-i] = s
	}
	return path
}

// IsInStateOrSubstate is IsInState(s) || current state is a descendant of s.
func (m *Machine) IsInStateOrSubstate(s State) bool {
	if m.IsInState(s) {
		return true
	}
	for _, d := range m.Descendants(s) {
		if d == m.current {
			return true
		}
	}
	return false
}
