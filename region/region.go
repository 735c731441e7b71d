// Package region implements the Orthogonal Region Manager (§4.5): a
// container actor's primary engine plus a set of independently-running
// named regions, each its own hsm.Machine, reacting to the same fire in
// parallel composition rather than hierarchical nesting.
package region

import (
	"context"
	"errors"
	"fmt"

	"github.com/grainkit/actorhsm/hsm"
)

// DefaultCascadeLimit bounds onRegionStateChanged-triggered re-fires (§4.5,
// §9's resolution of the open "how deep can cascades go" question).
const DefaultCascadeLimit = 16

// ErrCascadeLimitExceeded is returned when onRegionStateChanged-triggered
// fires recurse past the configured cascade limit.
var ErrCascadeLimitExceeded = errors.New("region: cascade limit exceeded")

// CascadeLimitExceededError reports that the cascade limit was exceeded.
// FireRegion names the region whose state change hit the limit; Fire does
// not know which reaction called it and reports "<root>".
type CascadeLimitExceededError struct {
	Region string
	Limit  int
}

func (e *CascadeLimitExceededError) Error() string {
	return fmt.Sprintf("region: cascade limit (%d) exceeded reacting to region %q", e.Limit, e.Region)
}

func (e *CascadeLimitExceededError) Unwrap() error { return ErrCascadeLimitExceeded }

// Region is one named orthogonal region: its own independent engine.
type Region struct {
	Name   string
	Engine *hsm.Machine
}

// FireOutcome reports what happened to one region on a composite fire.
type FireOutcome struct {
	Region string
	Fired  bool
	Err    error
}

// OnRegionStateChanged is invoked once per region that transitioned during
// a composite fire; it may call Manager.Fire again (bounded by
// CascadeLimit) to react in other regions.
type OnRegionStateChanged func(ctx context.Context, region string, from, to hsm.State) error

// CompositeStateFunc computes the externally-visible composite state from
// the primary engine and all region states; the default is simply the
// primary's current state.
type CompositeStateFunc func(primary hsm.State, regions map[string]hsm.State) hsm.State

// Manager owns a primary engine and a set of named regions, routing fires
// per a trigger->regions map (§4.5). Unmapped triggers broadcast to every
// region.
type Manager struct {
	primary       *hsm.Machine
	regions       map[string]*Region
	triggerRoutes map[hsm.Trigger]map[string]struct{}

	CompositeState    CompositeStateFunc
	OnStateChanged     OnRegionStateChanged
	CascadeLimit       int

	cascadeDepth int
}

// NewManager creates a Manager over primary, with no regions yet.
func NewManager(primary *hsm.Machine) *Manager {
	return &Manager{
		primary:       primary,
		regions:       make(map[string]*Region),
		triggerRoutes: make(map[hsm.Trigger]map[string]struct{}),
		CompositeState: func(p hsm.State, _ map[string]hsm.State) hsm.State { return p },
		OnStateChanged: func(context.Context, string, hsm.State, hsm.State) error { return nil },
		CascadeLimit:   DefaultCascadeLimit,
	}
}

// AddRegion registers a region under name.
func (m *Manager) AddRegion(name string, engine *hsm.Machine) {
	m.regions[name] = &Region{Name: name, Engine: engine}
}

// RouteTrigger restricts trigger to only the named regions (plus the
// primary, which is always evaluated). Triggers with no configured route
// broadcast to every region.
func (m *Manager) RouteTrigger(trigger hsm.Trigger, regionNames ...string) {
	set := make(map[string]struct{}, len(regionNames))
	for _, n := range regionNames {
		set[n] = struct{}{}
	}
	m.triggerRoutes[trigger] = set
}

func (m *Manager) targetRegions(trigger hsm.Trigger) map[string]struct{} {
	if set, ok := m.triggerRoutes[trigger]; ok {
		return set
	}
	all := make(map[string]struct{}, len(m.regions))
	for name := range m.regions {
		all[name] = struct{}{}
	}
	return all
}

// Fire routes trigger to the primary engine and the target regions (§4.5
// steps 1-4): primary fires first; each target region fires independently
// (one region's InvalidTransition does not abort the others); composite
// state is recomputed; OnStateChanged fires for every region that
// transitioned, which may itself call Fire again up to CascadeLimit deep.
func (m *Manager) Fire(ctx context.Context, trigger hsm.Trigger, args ...any) ([]FireOutcome, error) {
	if m.cascadeDepth > m.CascadeLimit {
		return nil, &CascadeLimitExceededError{Region: "<root>", Limit: m.CascadeLimit}
	}

	var outcomes []FireOutcome

	if m.primary.CanFire(ctx, trigger, args...) {
		if err := m.primary.Fire(ctx, trigger, args...); err != nil {
			outcomes = append(outcomes, FireOutcome{Region: "<primary>", Fired: false, Err: err})
		} else {
			outcomes = append(outcomes, FireOutcome{Region: "<primary>", Fired: true})
		}
	}

	targets := m.targetRegions(trigger)
	for name, r := range m.regions {
		if _, ok := targets[name]; !ok {
			continue
		}
		if !r.Engine.CanFire(ctx, trigger, args...) {
			continue
		}
		from := r.Engine.CurrentState()
		err := r.Engine.Fire(ctx, trigger, args...)
		if err != nil {
			outcomes = append(outcomes, FireOutcome{Region: name, Fired: false, Err: err})
			continue
		}
		outcomes = append(outcomes, FireOutcome{Region: name, Fired: true})
		to := r.Engine.CurrentState()
		if from != to {
			m.cascadeDepth++
			cbErr := m.OnStateChanged(ctx, name, from, to)
			m.cascadeDepth--
			if cbErr != nil {
				return outcomes, cbErr
			}
		}
	}

	return outcomes, nil
}

// FireRegion fires trigger against exactly the named region, independent
// of any configured trigger routing and without touching the primary
// engine. Used by hosts that want to target one region directly (§6
// fireInRegion) rather than rely on broadcast/routed composite fires.
func (m *Manager) FireRegion(ctx context.Context, name string, trigger hsm.Trigger, args ...any) (bool, error) {
	r, ok := m.regions[name]
	if !ok {
		return false, fmt.Errorf("region: no region named %q", name)
	}
	if !r.Engine.CanFire(ctx, trigger, args...) {
		return false, nil
	}
	from := r.Engine.CurrentState()
	if err := r.Engine.Fire(ctx, trigger, args...); err != nil {
		return false, err
	}
	to := r.Engine.CurrentState()
	if from != to {
		if m.cascadeDepth > m.CascadeLimit {
			return true, &CascadeLimitExceededError{Region: name, Limit: m.CascadeLimit}
		}
		m.cascadeDepth++
		err := m.OnStateChanged(ctx, name, from, to)
		m.cascadeDepth--
		if err != nil {
			return true, err
		}
	}
	return true, nil
}

// RegionState returns the current state of the named region.
func (m *Manager) RegionState(name string) (hsm.State, bool) {
	r, ok := m.regions[name]
	if !ok {
		return nil, false
	}
	return r.Engine.CurrentState(), true
}

// AllRegionStates snapshots every region's current state.
func (m *Manager) AllRegionStates() map[string]hsm.State {
	out := make(map[string]hsm.State, len(m.regions))
	for name, r := range m.regions {
		out[name] = r.Engine.CurrentState()
	}
	return out
}

// StateSummary computes the externally-visible composite state via
// m.CompositeState (§4.5 step 3).
func (m *Manager) StateSummary() hsm.State {
	return m.CompositeState(m.primary.CurrentState(), m.AllRegionStates())
}
