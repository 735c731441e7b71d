package hsm

import "fmt"

// StateConfiguration is the fluent handle returned by Machine.Configure,
// permitting permit/permitIf/ignore/onEntry/onEntryFrom/onExit/substateOf
// per §4.1.
type StateConfiguration struct {
	m    *Machine
	node *stateNode
}

// State returns the state this configuration handle describes.
func (sc *StateConfiguration) State() State { return sc.node.state }

// Permit accepts trigger unconditionally and transitions to dest.
func (sc *StateConfiguration) Permit(trigger Trigger, dest State) *StateConfiguration {
	return sc.PermitIf(trigger, dest)
}

// PermitIf accepts trigger and transitions to dest only if every guard
// evaluates true. With no guards it behaves like Permit.
func (sc *StateConfiguration) PermitIf(trigger Trigger, dest State, guards ...Guard) *StateConfiguration {
	if dest == sc.node.state {
		panic(fmt.Sprintf("hsm: Permit/PermitIf(%v) targets its own source state %v; this is a reentrant transition and is not supported", trigger, dest))
	}
	sc.node.addBehaviour(&transitioningBehaviour{
		baseBehaviour: baseBehaviour{t: trigger, g: newGuardSet(fmt.Sprintf("%v->%v", trigger, dest), guards...)},
		destination:   dest,
	})
	return sc
}

// Ignore accepts trigger in this state without transitioning and without
// running any callback; a no-op that prevents the trigger being reported
// unhandled.
func (sc *StateConfiguration) Ignore(trigger Trigger, guards ...Guard) *StateConfiguration {
	sc.node.addBehaviour(&ignoredBehaviour{
		baseBehaviour: baseBehaviour{t: trigger, g: newGuardSet(fmt.Sprintf("ignore(%v)", trigger), guards...)},
	})
	return sc
}

// OnEntry registers a callback run whenever this state is entered,
// regardless of the originating trigger.
func (sc *StateConfiguration) OnEntry(action Action) *StateConfiguration {
	sc.node.entryAll = append(sc.node.entryAll, actionBehaviour{action: action})
	return sc
}

// OnEntryFrom registers a callback run only when this state is entered as
// the result of the given trigger.
func (sc *StateConfiguration) OnEntryFrom(trigger Trigger, action Action) *StateConfiguration {
	sc.node.entryAll = append(sc.node.entryAll, actionBehaviour{action: action, trigger: &trigger})
	return sc
}

// OnExit registers a callback run whenever this state is exited.
func (sc *StateConfiguration) OnExit(action Action) *StateConfiguration {
	sc.node.exitAll = append(sc.node.exitAll, actionBehaviour{action: action})
	return sc
}

// OnExitWith registers a callback run only when this state is exited as the
// result of the given trigger.
func (sc *StateConfiguration) OnExitWith(trigger Trigger, action Action) *StateConfiguration {
	sc.node.exitAll = append(sc.node.exitAll, actionBehaviour{action: action, trigger: &trigger})
	return sc
}

// SubstateOf declares this state a child of parent (a hierarchy edge).
// Validated for cycles by Machine.Validate, not here, since the
// parent may not be configured yet.
func (sc *StateConfiguration) SubstateOf(parent State) *StateConfiguration {
	parentNode := sc.m.node(parent)
	sc.node.parent = parentNode
	parentNode.children = append(parentNode.children, sc.node)
	return sc
}
