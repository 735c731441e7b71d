// Package upcast implements the Upcast Registry (§4.7): versioned event
// types with registered transformations, BFS over the type graph to find a
// chain from an older event to any reachable newer type.
//
// The source system scans assemblies reflectively for upcaster
// implementations at startup. Go has no assembly-scanning equivalent, so
// registration here is explicit — callers call Register (typically from an
// init() in the package that declares the event type), the same pattern
// database/sql drivers and image codecs use for self-registration.
package upcast

import (
	"context"
	"errors"
	"fmt"
	"reflect"
)

// MaxUpcastChainLength bounds the BFS path length (§4.7 default 10).
const MaxUpcastChainLength = 10

// ErrNoUpcastPath is the sentinel behind NoUpcastPathError (§7).
var ErrNoUpcastPath = errors.New("upcast: no path to requested type")

// NoUpcastPathError reports that strict-mode upcast was required but no
// registered chain reaches the target type.
type NoUpcastPathError struct {
	From, To reflect.Type
}

func (e *NoUpcastPathError) Error() string {
	return fmt.Sprintf("upcast: no path from %v to %v", e.From, e.To)
}

func (e *NoUpcastPathError) Unwrap() error { return ErrNoUpcastPath }

// MigrationContext carries whatever ambient information an upcaster needs
// (actor id, original event timestamp, schema registry lookups) without
// forcing every Upcaster signature to grow a new parameter each time one is
// needed.
type MigrationContext struct {
	ActorID string
	Extra   map[string]any
}

// Upcaster transforms an older event representation into the next
// registered type. Implementations must be pure functions of (old, ctx).
type Upcaster func(ctx context.Context, old any, mctx MigrationContext) (any, error)

// OnUpcastFailed is invoked (non-strict mode only) when no path is found;
// the default is a no-op. Hosts typically wire this to their logger/metrics.
type OnUpcastFailed func(from, to reflect.Type)

type edge struct {
	to reflect.Type
	fn Upcaster
}

// Registry is the process-wide (or test-scoped) upcast graph. Per §3
// ("Ownership"), a Registry is initialized at startup with writes, then
// used read-only; Register is not safe to call concurrently with Upcast —
// callers finish registration before serving traffic.
type Registry struct {
	edges    map[reflect.Type][]edge
	versions map[reflect.Type]int
	strict   bool
	onFailed OnUpcastFailed

	chainCache map[cacheKey][]Upcaster
}

type cacheKey struct {
	from reflect.Type
	to   reflect.Type
}

// Option configures a Registry at construction time.
type Option func(*Registry)

// Strict makes Upcast return NoUpcastPathError instead of (nil, nil) when no
// chain is found.
func Strict() Option { return func(r *Registry) { r.strict = true } }

// WithOnUpcastFailed installs a non-strict-mode failure hook.
func WithOnUpcastFailed(fn OnUpcastFailed) Option {
	return func(r *Registry) { r.onFailed = fn }
}

// NewRegistry creates an empty Registry.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		edges:      make(map[reflect.Type][]edge),
		versions:   make(map[reflect.Type]int),
		chainCache: make(map[cacheKey][]Upcaster),
		onFailed:   func(reflect.Type, reflect.Type) {},
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Register adds a (fromType, toType) -> upcaster edge. fromType and toType
// are inferred from zero values of the two event types. Registering the
// same (from, to) pair twice panics (the spec's "duplicates are rejected,
// warning emitted" — here promoted to a panic, since a silently-ignored
// duplicate at startup is strictly worse than a loud one).
func (r *Registry) Register(from, to any, version int, fn Upcaster) {
	ft, tt := reflect.TypeOf(from), reflect.TypeOf(to)
	for _, e := range r.edges[ft] {
		if e.to == tt {
			panic(fmt.Sprintf("upcast: duplicate registration for %v -> %v", ft, tt))
		}
	}
	r.edges[ft] = append(r.edges[ft], edge{to: tt, fn: fn})
	if version > 0 {
		r.versions[tt] = version
	}
	// The graph changed shape; any cached chains may now be stale (a new,
	// shorter path could exist).
	for k := range r.chainCache {
		delete(r.chainCache, k)
	}
}

// RegisterAll is sugar for calling Register for several upcasters, each
// carrying its own version, mirroring the spec's auto-registration pass in spirit (every
// upcaster a caller knows about is registered in one call, instead of
// hand-scanning assemblies for an interface).
type Registration struct {
	From, To any
	Version  int
	Upcaster Upcaster
}

func (r *Registry) RegisterAll(regs ...Registration) {
	for _, reg := range regs {
		r.Register(reg.From, reg.To, reg.Version, reg.Upcaster)
	}
}

// VersionOf returns the declared version of sample's type, defaulting to 1 when no
// version was registered for it (§4.7 "Version discovery").
func (r *Registry) VersionOf(sample any) int {
	if v, ok := r.versions[reflect.TypeOf(sample)]; ok {
		return v
	}
	return 1
}

// Upcast migrates oldEvent to target (a zero value of the desired type), or
// returns oldEvent unchanged if it is already of that type. It performs a
// breadth-first search over registered edges bounded by
// MaxUpcastChainLength, caches the found chain keyed by (sourceType,
// targetType), and applies the chain in sequence. Upcast results are not
// cached.
func (r *Registry) Upcast(ctx context.Context, oldEvent any, target any, mctx MigrationContext) (any, error) {
	from := reflect.TypeOf(oldEvent)
	to := reflect.TypeOf(target)
	if from == to {
		return oldEvent, nil
	}

	key := cacheKey{from: from, to: to}
	chain, ok := r.chainCache[key]
	if !ok {
		chain, ok = r.findChain(from, to)
		if !ok {
			if r.strict {
				return nil, &NoUpcastPathError{From: from, To: to}
			}
			r.onFailed(from, to)
			return nil, nil
		}
		r.chainCache[key] = chain
	}

	cur := oldEvent
	for _, fn := range chain {
		next, err := fn(ctx, cur, mctx)
		if err != nil {
			return nil, fmt.Errorf("upcast: applying chain %v -> %v: %w", from, to, err)
		}
		cur = next
	}
	return cur, nil
}

// findChain runs BFS from `from` over registered edges, stopping at the
// first path that reaches `to`, bounded by MaxUpcastChainLength hops.
func (r *Registry) findChain(from, to reflect.Type) ([]Upcaster, bool) {
	type frame struct {
		t     reflect.Type
		path  []Upcaster
		depth int
	}
	visited := map[reflect.Type]struct{}{from: {}}
	queue := []frame{{t: from}}
	for len(queue) > 0 {
		f := queue[0]
		queue = queue[1:]
		if f.t == to {
			return f.path, true
		}
		if f.depth >= MaxUpcastChainLength {
			continue
		}
		for _, e := range r.edges[f.t] {
			if _, seen := visited[e.to]; seen {
				continue
			}
			visited[e.to] = struct{}{}
			path := append(append([]Upcaster(nil), f.path...), e.fn)
			queue = append(queue, frame{t: e.to, path: path, depth: f.depth + 1})
		}
	}
	return nil, false
}
