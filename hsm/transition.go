package hsm

import "context"

// Action runs on state entry, state exit, or as an onEntryFrom/onExitWith
// callback. Actions execute synchronously with respect to the engine and
// must not call Machine.Fire re-entrantly — the engine itself does not
// enforce this (it has no I/O and no notion of "the current actor"); the
// grain.Coordinator does, via its per-actor in-callback flag (§5, §7).
type Action func(ctx context.Context, t Transition, args ...any) error

// Transition records a single completed (or in-flight, while actions run)
// move from one state to another.
type Transition struct {
	From    State
	To      State
	Trigger Trigger
}

// Reentry reports whether this transition starts and ends on the same state.
// Permit/PermitIf reject self-transitions, so a Transition built by Fire
// never reports true.
func (t Transition) Reentry() bool { return t.From == t.To }

type actionBehaviour struct {
	action Action
	// trigger, if non-nil, restricts this callback to firings of that
	// specific trigger (onEntryFrom / onExitWith).
	trigger *Trigger
}

func (a actionBehaviour) appliesTo(t Transition) bool {
	return a.trigger == nil || *a.trigger == t.Trigger
}

func (a actionBehaviour) run(ctx context.Context, t Transition, args ...any) error {
	if !a.appliesTo(t) {
		return nil
	}
	return a.action(ctx, t, args...)
}
