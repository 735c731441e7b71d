package hsm

import "context"

// triggerBehaviour is one configured reaction to a trigger within a single
// state: transition to a destination, or ignore the trigger.
type triggerBehaviour interface {
	trigger() Trigger
	guardsMet(ctx context.Context, args ...any) bool
	unmetGuards(ctx context.Context, buf []string, args ...any) []string
}

type baseBehaviour struct {
	t Trigger
	g guardSet
}

func (b baseBehaviour) trigger() Trigger { return b.t }
func (b baseBehaviour) guardsMet(ctx context.Context, args ...any) bool {
	return b.g.met(ctx, args...)
}
func (b baseBehaviour) unmetGuards(ctx context.Context, buf []string, args ...any) []string {
	return b.g.unmet(ctx, buf, args...)
}

type transitioningBehaviour struct {
	baseBehaviour
	destination State
}

type ignoredBehaviour struct {
	baseBehaviour
}

// behaviourResult is the outcome of searching a state (and its ancestors)
// for a handler of a trigger: either a matched handler plus its unmet
// guards (empty if it is fireable), or no handler at all.
type behaviourResult struct {
	handler     triggerBehaviour
	unmet       []string
	foundInNode *stateNode
}

func (r behaviourResult) fireable() bool {
	return r.handler != nil && len(r.unmet) == 0
}
