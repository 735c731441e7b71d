package hsm

import "context"

// Guard is a boolean predicate gating a transition. Guards are pure with
// respect to engine state (§4.1 invariant) — they must not mutate anything
// reachable from the machine.
type Guard func(ctx context.Context, args ...any) bool

// guardSet is the conjunction of zero or more guards, each carrying a
// human-readable description for CanFireWithUnmetGuards-style reporting.
type guardSet struct {
	guards []namedGuard
}

type namedGuard struct {
	fn   Guard
	name string
}

func newGuardSet(name string, guards ...Guard) guardSet {
	gs := guardSet{guards: make([]namedGuard, len(guards))}
	for i, g := range guards {
		gs.guards[i] = namedGuard{fn: g, name: name}
	}
	return gs
}

func (gs guardSet) met(ctx context.Context, args ...any) bool {
	for _, g := range gs.guards {
		if !g.fn(ctx, args...) {
			return false
		}
	}
	return true
}

// unmet appends a description for every guard in the set that evaluates to
// false, into buf, and returns the extended slice.
func (gs guardSet) unmet(ctx context.Context, buf []string, args ...any) []string {
	for _, g := range gs.guards {
		if !g.fn(ctx, args...) {
			buf = append(buf, g.name)
		}
	}
	return buf
}
