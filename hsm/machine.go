package hsm

import (
	"context"
	"fmt"
	"reflect"
)

// Machine is the authoritative in-memory hierarchical state machine (§4.1).
// It performs no I/O; callers (grain.Coordinator) are responsible for
// persistence, replay, timers and publication around each Fire.
type Machine struct {
	states       map[State]*stateNode
	order        []State // insertion order, for deterministic MachineInfo
	initial      State
	current      State
	triggerTypes map[Trigger][]reflect.Type
	validated    bool
}

// NewMachine creates a machine whose current state starts at initial.
// initial need not have been configured yet.
func NewMachine(initial State) *Machine {
	return &Machine{
		states:       make(map[State]*stateNode),
		initial:      initial,
		current:      initial,
		triggerTypes: make(map[Trigger][]reflect.Type),
	}
}

func (m *Machine) node(s State) *stateNode {
	n, ok := m.states[s]
	if !ok {
		n = newStateNode(s)
		m.states[s] = n
		m.order = append(m.order, s)
	}
	return n
}

// Configure begins configuration of state s, returning a fluent handle.
func (m *Machine) Configure(s State) *StateConfiguration {
	return &StateConfiguration{m: m, node: m.node(s)}
}

// SetTriggerParameters declares the argument types required whenever
// trigger is fired, up to MaxTriggerParameters. Fire validates both count
// and convertibility against this declaration when present.
func (m *Machine) SetTriggerParameters(trigger Trigger, types ...reflect.Type) {
	if len(types) > MaxTriggerParameters {
		panic(fmt.Sprintf("hsm: trigger %v declares %d parameters, exceeding the maximum of %d", trigger, len(types), MaxTriggerParameters))
	}
	if _, exists := m.triggerTypes[trigger]; exists {
		panic(fmt.Sprintf("hsm: parameters for trigger %v already configured", trigger))
	}
	m.triggerTypes[trigger] = types
}

func (m *Machine) validateParameters(trigger Trigger, args []any) {
	types, ok := m.triggerTypes[trigger]
	if !ok {
		return
	}
	if len(args) != len(types) {
		panic(fmt.Sprintf("hsm: trigger %v expects %d parameters, got %d", trigger, len(types), len(args)))
	}
	for i, want := range types {
		got := reflect.TypeOf(args[i])
		if got == nil || !got.ConvertibleTo(want) {
			panic(fmt.Sprintf("hsm: trigger %v parameter %d is %v, not convertible to %v", trigger, i, got, want))
		}
	}
}

// CurrentState returns the machine's current state.
func (m *Machine) CurrentState() State { return m.current }

// SetCurrentState forcibly sets the current state without running any
// callback. Used exclusively by replay (grain.Coordinator.Activate), which
// must not re-run entry/exit side effects (§4.2 Activation step 3).
func (m *Machine) SetCurrentState(s State) { m.current = s }

// IsInState reports whether s equals the current state or is an ancestor of
// it (§4.1).
func (m *Machine) IsInState(s State) bool {
	n, ok := m.states[m.current]
	if !ok {
		return m.current == s
	}
	return n.isIncludedInState(s)
}

// CanFire reports whether trigger has some permitted, guard-satisfying
// transition from the current state or an ancestor.
func (m *Machine) CanFire(ctx context.Context, trigger Trigger, args ...any) bool {
	ok, _ := m.CanFireWithUnmetGuards(ctx, trigger, args...)
	return ok
}

// CanFireWithUnmetGuards reports fireability and, when a handler exists but
// its guards fail, the human-readable descriptions of the unmet guards
// (§6 CanFireWithUnmetGuards).
func (m *Machine) CanFireWithUnmetGuards(ctx context.Context, trigger Trigger, args ...any) (bool, []string) {
	n := m.node(m.current)
	result, ok := n.findHandlerInChain(ctx, trigger, args...)
	return ok, result.unmet
}

// PermittedTriggers returns the triggers that would currently succeed.
func (m *Machine) PermittedTriggers(ctx context.Context, args ...any) []Trigger {
	return m.node(m.current).permittedTriggers(ctx, args...)
}

// DetailedTransition describes one outgoing transition for MachineInfo-style
// introspection (§6 detailedPermittedTriggers / machineInfo).
type DetailedTransition struct {
	Trigger     Trigger
	Destination State
	GuardNames  []string
}

// DetailedPermittedTriggers returns every configured transition reachable
// from the current state (including ancestors), regardless of whether its
// guards currently pass, annotated with guard descriptions.
func (m *Machine) DetailedPermittedTriggers() []DetailedTransition {
	var out []DetailedTransition
	for n := m.node(m.current); n != nil; n = n.parent {
		for _, behaviours := range n.behaviours {
			for _, b := range behaviours {
				tb, ok := b.(*transitioningBehaviour)
				if !ok {
					continue
				}
				names := make([]string, len(tb.g.guards))
				for i, g := range tb.g.guards {
					names[i] = g.name
				}
				out = append(out, DetailedTransition{Trigger: tb.t, Destination: tb.destination, GuardNames: names})
			}
		}
	}
	return out
}

// Fire performs the trigger ordering mandated by §4.1: search current state
// and ancestors (lowest descendant wins), evaluate guards, compute the exit
// path to the lowest common ancestor, run exit callbacks leaf-first, update
// current state, compute the entry path from the LCA to the destination,
// and run entry callbacks root-first.
func (m *Machine) Fire(ctx context.Context, trigger Trigger, args ...any) error {
	m.validateParameters(trigger, args)

	source := m.node(m.current)
	result, ok := source.findHandlerInChain(ctx, trigger, args...)
	if !ok {
		return &InvalidTransitionError{State: m.current, Trigger: trigger, UnmetGuards: result.unmet}
	}

	switch b := result.handler.(type) {
	case *ignoredBehaviour:
		return nil
	case *transitioningBehaviour:
		return m.transition(ctx, source, b.destination, trigger, args...)
	}
	return &InvalidTransitionError{State: m.current, Trigger: trigger}
}

func (m *Machine) transition(ctx context.Context, source *stateNode, dest State, trigger Trigger, args ...any) error {
	destNode := m.node(dest)
	lca := lowestCommonAncestor(source, destNode)

	t := Transition{From: source.state, To: dest, Trigger: trigger}
	ctx = withTransition(ctx, t)

	for n := source; n != lca; n = n.parent {
		if err := n.runExit(ctx, t, args...); err != nil {
			return err
		}
	}

	m.current = dest

	entryChain := ancestorChainAbove(destNode, lca)
	for i := len(entryChain) - 1; i >= 0; i-- {
		if err := entryChain[i].runEntry(ctx, t, args...); err != nil {
			return err
		}
	}
	return nil
}

// ancestorChainAbove returns [n, n.parent, ..., child-of-lca], i.e. every
// node from n up to but not including lca, ordered leaf-first (index 0 is
// n). The caller iterates it in reverse for root-first entry.
func ancestorChainAbove(n, lca *stateNode) []*stateNode {
	var chain []*stateNode
	for cur := n; cur != lca; cur = cur.parent {
		chain = append(chain, cur)
	}
	return chain
}

func lowestCommonAncestor(a, b *stateNode) *stateNode {
	ancestors := make(map[*stateNode]struct{})
	for n := a; n != nil; n = n.parent {
		ancestors[n] = struct{}{}
	}
	for n := b; n != nil; n = n.parent {
		if _, ok := ancestors[n]; ok {
			return n
		}
	}
	return nil
}

type transitionCtxKey struct{}

func withTransition(ctx context.Context, t Transition) context.Context {
	return context.WithValue(ctx, transitionCtxKey{}, t)
}

// TransitionFromContext retrieves the in-flight Transition set by Fire, for
// callbacks that want full from/to/trigger detail without it being passed
// as an explicit parameter.
func TransitionFromContext(ctx context.Context) (Transition, bool) {
	t, ok := ctx.Value(transitionCtxKey{}).(Transition)
	return t, ok
}
