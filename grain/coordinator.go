// Package grain implements the Transition Coordinator (§4.2): the
// per-actor orchestrator that turns a caller's fire into a durable,
// idempotent, observable transition, plus the public actor contract (§6)
// built on top of an hsm.Machine, an eventlog.Log/SnapshotStore pair, a
// timer.EphemeralScheduler, and an optional stream.Publisher.
//
// Grounded on comalice-statechartx's Runtime.SendEvent reentrancy guard
// (a "processing" flag checked before dispatch) generalized from a single
// in-process flag to the full persist/snapshot/publish/timer pipeline
// spec.md §4.2 requires around every fire.
package grain

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"

	"github.com/google/uuid"
	"github.com/grainkit/actorhsm/dedupe"
	"github.com/grainkit/actorhsm/eventlog"
	"github.com/grainkit/actorhsm/hsm"
	"github.com/grainkit/actorhsm/internal/backoffutil"
	"github.com/grainkit/actorhsm/region"
	"github.com/grainkit/actorhsm/timer"
	"github.com/grainkit/actorhsm/upcast"
	"go.uber.org/zap"
)

// Coordinator owns one actor's lifecycle: its engine, its log/snapshot
// persistence, its timers, and the bookkeeping (dedupe cache, transition
// count, correlation id) the public actor contract exposes.
type Coordinator struct {
	actorID string
	engine  *hsm.Machine
	log     eventlog.Log
	snaps   eventlog.SnapshotStore
	opts    Options

	timers          *timer.EphemeralScheduler
	reminders       *timer.ReminderManager
	timeoutsByState map[hsm.State][]timer.TimeoutConfig

	// Regions is set by a host that wants orthogonal composition (§4.5);
	// nil for a plain hierarchical/flat actor.
	Regions *region.Manager

	// OnReplayFailed is invoked (AutoConfirmEvents mode only) when an
	// append fails after retry: the actor continues running with
	// unpersisted history, and the host decides whether to force a
	// deactivate/reactivate cycle (§7).
	OnReplayFailed func(err error)

	dedupeCache     *dedupe.Cache
	transitionCount int
	lastLogIndex    int
	correlationID   string
	schemaVersion   int

	inCallback bool
}

// New creates a Coordinator for actorID over engine, persisting through log
// and snaps, configured by opts. Callers must call Activate before the
// first Fire to establish dedupe/transition-count state from any prior
// history (Activate is a no-op, not an error, for a brand-new actor).
func New(actorID string, engine *hsm.Machine, log eventlog.Log, snaps eventlog.SnapshotStore, opts Options) *Coordinator {
	opts = opts.withDefaults()
	return &Coordinator{
		actorID:         actorID,
		engine:          engine,
		log:             log,
		snaps:           snaps,
		opts:            opts,
		timers:          timer.NewEphemeralScheduler(),
		timeoutsByState: make(map[hsm.State][]timer.TimeoutConfig),
		dedupeCache:     dedupe.New(opts.MaxDedupeKeysInMemory),
		schemaVersion:   eventlog.CurrentSchemaVersion,
		lastLogIndex:    -1,
		OnReplayFailed:  func(error) {},
	}
}

// UseDurableReminders wires rm as this actor's durable reminder manager
// (§4.6); timeouts configured with timer.Durable mode register against it
// instead of the in-process ephemeral scheduler.
func (c *Coordinator) UseDurableReminders(rm *timer.ReminderManager) {
	c.reminders = rm
}

// ConfigureTimeout registers cfg to run whenever the engine enters
// cfg.State, scoped and cancelled per §4.6.
func (c *Coordinator) ConfigureTimeout(cfg timer.TimeoutConfig) {
	c.timeoutsByState[cfg.State] = append(c.timeoutsByState[cfg.State], cfg)
}

// Activate implements the §4.2 activation (replay) protocol: load the
// latest snapshot, replay events after it through the upcast registry,
// restore dedupe/transition-count/correlation bookkeeping, and rehydrate
// timers for the resulting state. Call this once before the first Fire.
func (c *Coordinator) Activate(ctx context.Context) error {
	afterIndex := -1

	snap, ok, err := c.snaps.Load(ctx, c.actorID)
	if err != nil {
		return fmt.Errorf("grain: loading snapshot for %q: %w", c.actorID, err)
	}
	if ok {
		c.engine.SetCurrentState(hsm.State(snap.CurrentState))
		c.dedupeCache = dedupe.Restore(c.opts.MaxDedupeKeysInMemory, snap.DedupeKeys)
		c.transitionCount = snap.TransitionCount
		c.correlationID = snap.CorrelationId
		if snap.SchemaVersion > 0 {
			c.schemaVersion = snap.SchemaVersion
		}
		afterIndex = snap.LogIndex
	}
	c.lastLogIndex = afterIndex

	events, err := c.log.Since(ctx, c.actorID, afterIndex)
	if err != nil {
		return fmt.Errorf("grain: reading events for %q: %w", c.actorID, err)
	}

	for i, se := range events {
		idx := afterIndex + 1 + i
		current, derr := c.decodeStored(ctx, se)
		if derr != nil {
			fromState, _ := se.Payload["FromState"].(string)
			toState, _ := se.Payload["ToState"].(string)
			return &EventReplayFailureError{ActorID: c.actorID, EventIndex: idx, FromState: fromState, ToState: toState, Cause: derr}
		}
		// Do not re-run entry/exit callbacks on replay (§4.2 step 3).
		c.engine.SetCurrentState(hsm.State(current.ToState))
		c.transitionCount++
		c.lastLogIndex = idx
	}

	c.startTimersForState(c.engine.CurrentState())
	return nil
}

// Fire performs the full per-fire protocol (§4.2 steps 1-9).
func (c *Coordinator) Fire(ctx context.Context, trigger hsm.Trigger, args ...any) error {
	return c.fire(ctx, trigger, args, "")
}

// fire is the shared implementation for caller-initiated and
// timer-synthesized fires; dedupeOverride, when non-empty, replaces the
// default actorId:trigger:hash(args) key (used by timer fires, which embed
// their tick number so REPEAT doesn't get idempotently suppressed, §9).
func (c *Coordinator) fire(ctx context.Context, trigger hsm.Trigger, args []any, dedupeOverride string) error {
	if c.inCallback {
		return &CallbackReentrancyError{ActorID: c.actorID, Trigger: fmt.Sprintf("%v", trigger)}
	}

	dedupeKey := dedupeOverride
	if dedupeKey == "" {
		dedupeKey = c.defaultDedupeKey(trigger, args)
	}
	if c.opts.EnableIdempotency && c.dedupeCache.Contains(dedupeKey) {
		return nil
	}

	from := c.engine.CurrentState()
	c.inCallback = true
	fireErr := c.engine.Fire(ctx, trigger, args...)
	c.inCallback = false
	if fireErr != nil {
		return fireErr
	}
	to := c.engine.CurrentState()

	now := c.opts.Clock().UTC()
	correlationID := c.correlationID
	if correlationID == "" {
		// No correlation id set by the caller: mint one so every persisted
		// event is still traceable. Not stored back onto c.correlationID —
		// LastCorrelationID only reflects what a caller explicitly set.
		correlationID = uuid.NewString()
	}
	ev := eventlog.TransitionEvent{
		FromState:           fmt.Sprintf("%v", from),
		ToState:             fmt.Sprintf("%v", to),
		Trigger:             fmt.Sprintf("%v", trigger),
		Timestamp:           now,
		CorrelationId:       correlationID,
		DedupeKey:           dedupeKey,
		StateMachineVersion: c.schemaVersion,
		Metadata:            c.hierarchyMetadata(from, to),
	}

	if err := c.persist(ctx, trigger, from, ev); err != nil {
		return err
	}

	c.transitionCount++
	if c.opts.EnableSnapshots && c.opts.SnapshotInterval > 0 && c.transitionCount%c.opts.SnapshotInterval == 0 {
		c.writeSnapshot(ctx)
	}

	if c.opts.PublishToStream {
		c.publish(ctx, ev)
	}

	c.rearmTimers(ctx, from, to)

	if c.opts.EnableIdempotency {
		c.dedupeCache.Add(dedupeKey)
	}

	return nil
}

// persist appends ev, honoring AutoConfirmEvents (§4.2 step 5, §7
// StorageTransient policy). In strict (non-AutoConfirm) mode, retry
// exhaustion rolls the engine back to its pre-fire state and surfaces
// TransitionPersistenceFailureError; the host is expected to
// deactivate/reactivate the actor to force a clean replay.
func (c *Coordinator) persist(ctx context.Context, trigger hsm.Trigger, preFireState hsm.State, ev eventlog.TransitionEvent) error {
	appendOnce := func() error {
		idx, err := c.log.Append(ctx, c.actorID, ev)
		if err != nil {
			return err
		}
		c.lastLogIndex = idx
		return nil
	}

	if c.opts.AutoConfirmEvents {
		if err := appendOnce(); err != nil {
			c.opts.Logger.Error("append failed under AutoConfirmEvents; actor continues with unpersisted transition",
				zap.String("actor_id", c.actorID), zap.Error(err))
			c.OnReplayFailed(err)
		}
		return nil
	}

	if err := backoffutil.Retry(ctx, c.opts.RetryPolicy, appendOnce); err != nil {
		c.engine.SetCurrentState(preFireState)
		return &TransitionPersistenceFailureError{ActorID: c.actorID, Trigger: fmt.Sprintf("%v", trigger), Cause: err}
	}
	return nil
}

func (c *Coordinator) publish(ctx context.Context, ev eventlog.TransitionEvent) {
	payload, err := json.Marshal(ev)
	if err != nil {
		c.opts.Logger.Error("marshaling event for publish", zap.Error(err))
		return
	}
	if err := c.opts.StreamPublisher.Publish(ctx, c.opts.StreamNamespace, c.actorID, payload); err != nil {
		c.opts.Logger.Warn("stream publish failed (best-effort)", zap.String("actor_id", c.actorID), zap.Error(err))
	}
}

// decodeStored decodes se into the historical Go type its SchemaVersion
// identifies, then runs it through the upcast registry to reach today's
// TransitionEvent. Logs written entirely under CurrentSchemaVersion still
// pass through Upcast (same-type, returned unchanged, §4.7); a log spanning
// a schema change produces a genuine from != to call, resolved by whatever
// migrations are registered (eventlog.RegisterUpcasts by default).
func (c *Coordinator) decodeStored(ctx context.Context, se eventlog.StoredEvent) (eventlog.TransitionEvent, error) {
	var old any
	if se.SchemaVersion == 1 {
		v1, err := se.DecodeV1()
		if err != nil {
			return eventlog.TransitionEvent{}, err
		}
		old = v1
	} else {
		cur, err := se.DecodeCurrent()
		if err != nil {
			return eventlog.TransitionEvent{}, err
		}
		old = cur
	}

	upcasted, err := c.opts.UpcastRegistry.Upcast(ctx, old, eventlog.TransitionEvent{}, upcast.MigrationContext{ActorID: c.actorID})
	if err != nil {
		return eventlog.TransitionEvent{}, err
	}
	current, ok := upcasted.(eventlog.TransitionEvent)
	if !ok {
		return eventlog.TransitionEvent{}, errors.New("no upcast path to current schema")
	}
	return current, nil
}

func (c *Coordinator) hierarchyMetadata(from, to hsm.State) map[string]any {
	ancestors := c.engine.Ancestors(to)
	if len(ancestors) == 0 {
		return nil
	}
	names := make([]string, len(ancestors))
	for i, a := range ancestors {
		names[i] = fmt.Sprintf("%v", a)
	}
	return map[string]any{"ancestorChain": names}
}

func (c *Coordinator) defaultDedupeKey(trigger hsm.Trigger, args []any) string {
	h := fnv.New64a()
	fmt.Fprintf(h, "%v", args)
	return fmt.Sprintf("%s:%v:%x", c.actorID, trigger, h.Sum64())
}

// rearmTimers cancels timers scoped to from and starts timers scoped to to
// (§4.2 step 8, §4.6).
func (c *Coordinator) rearmTimers(ctx context.Context, from, to hsm.State) {
	if from != to {
		var names []string
		for _, cfg := range c.timeoutsByState[from] {
			names = append(names, cfg.Name)
		}
		c.timers.CancelState(ctx, names...)
		if c.reminders != nil {
			for _, cfg := range c.timeoutsByState[from] {
				if cfg.Mode == timer.Durable {
					c.reminders.Cancel(ctx, cfg.Name)
				}
			}
		}
	}
	c.startTimersForState(to)
}

func (c *Coordinator) startTimersForState(s hsm.State) {
	for _, cfg := range c.timeoutsByState[s] {
		cfg := cfg
		switch cfg.Mode {
		case timer.Durable:
			if c.reminders != nil {
				c.reminders.Register(context.Background(), cfg, c.opts.Clock())
			}
		default:
			c.timers.Start(cfg, func(req timer.FireRequest) {
				c.fireTimerSynthesized(context.Background(), req)
			})
		}
	}
}

// fireTimerSynthesized routes a timer expiry through the full coordinator
// protocol. Timer fires ignore caller cancellation (they carry no caller
// context) and, per §7, a resulting InvalidTransition is logged and
// discarded rather than surfaced anywhere.
func (c *Coordinator) fireTimerSynthesized(ctx context.Context, req timer.FireRequest) {
	err := c.fire(ctx, req.TargetTrigger, nil, req.DedupeKey())
	if err == nil {
		return
	}
	var invalid *hsm.InvalidTransitionError
	if errors.As(err, &invalid) {
		c.opts.Logger.Info("timer-synthesized fire hit InvalidTransition, discarding",
			zap.String("actor_id", c.actorID), zap.String("timer", req.Name))
		return
	}
	c.opts.Logger.Error("timer-synthesized fire failed",
		zap.String("actor_id", c.actorID), zap.String("timer", req.Name), zap.Error(err))
}

func (c *Coordinator) writeSnapshot(ctx context.Context) {
	snap := eventlog.Snapshot{
		Version:         1,
		CurrentState:    fmt.Sprintf("%v", c.engine.CurrentState()),
		TransitionCount: c.transitionCount,
		DedupeKeys:      c.dedupeCache.Keys(),
		CorrelationId:   c.correlationID,
		SchemaVersion:   c.schemaVersion,
		LogIndex:        c.lastLogIndex,
	}
	if err := c.snaps.Save(ctx, c.actorID, snap); err != nil {
		c.opts.Logger.Error("snapshot write failed", zap.String("actor_id", c.actorID), zap.Error(err))
	}
}

// CreateSnapshot writes a snapshot on demand, outside the interval policy
// (§6 createSnapshot()).
func (c *Coordinator) CreateSnapshot(ctx context.Context) error {
	snap := eventlog.Snapshot{
		Version:         1,
		CurrentState:    fmt.Sprintf("%v", c.engine.CurrentState()),
		TransitionCount: c.transitionCount,
		DedupeKeys:      c.dedupeCache.Keys(),
		CorrelationId:   c.correlationID,
		SchemaVersion:   c.schemaVersion,
		LogIndex:        c.lastLogIndex,
	}
	return c.snaps.Save(ctx, c.actorID, snap)
}

// --- Public actor contract (§6) ---

func (c *Coordinator) CurrentState() hsm.State { return c.engine.CurrentState() }

func (c *Coordinator) IsInState(s hsm.State) bool { return c.engine.IsInState(s) }

func (c *Coordinator) CanFire(ctx context.Context, trigger hsm.Trigger, args ...any) bool {
	return c.engine.CanFire(ctx, trigger, args...)
}

func (c *Coordinator) CanFireWithUnmetGuards(ctx context.Context, trigger hsm.Trigger, args ...any) (bool, []string) {
	return c.engine.CanFireWithUnmetGuards(ctx, trigger, args...)
}

func (c *Coordinator) PermittedTriggers(ctx context.Context, args ...any) []hsm.Trigger {
	return c.engine.PermittedTriggers(ctx, args...)
}

func (c *Coordinator) DetailedPermittedTriggers() []hsm.DetailedTransition {
	return c.engine.DetailedPermittedTriggers()
}

func (c *Coordinator) MachineInfo(ctx context.Context) hsm.MachineInfo {
	return c.engine.Info(ctx)
}

func (c *Coordinator) SetCorrelationID(id string) { c.correlationID = id }

func (c *Coordinator) LastCorrelationID() string { return c.correlationID }

func (c *Coordinator) TransitionCount() int { return c.transitionCount }

func (c *Coordinator) SnapshotVersion() int { return c.schemaVersion }

// EventHistory returns every persisted event transitioning from -> to, in
// log order. It scans the full log, which is acceptable for the bundled
// reference persisters (spec.md §9 leaves indexing/querying to the storage
// provider for production deployments).
func (c *Coordinator) EventHistory(ctx context.Context, from, to hsm.State) ([]eventlog.TransitionEvent, error) {
	all, err := c.log.Since(ctx, c.actorID, -1)
	if err != nil {
		return nil, err
	}
	fromStr, toStr := fmt.Sprintf("%v", from), fmt.Sprintf("%v", to)
	var out []eventlog.TransitionEvent
	for _, se := range all {
		ev, derr := c.decodeStored(ctx, se)
		if derr != nil {
			return nil, derr
		}
		if ev.FromState == fromStr && ev.ToState == toStr {
			out = append(out, ev)
		}
	}
	return out, nil
}

// --- Hierarchical accessors (§6, delegating to hsm's §4.4 extension) ---

func (c *Coordinator) ParentOf(s hsm.State) (hsm.State, bool) { return c.engine.ParentOf(s) }
func (c *Coordinator) SubstatesOf(s hsm.State) []hsm.State    { return c.engine.SubstatesOf(s) }
func (c *Coordinator) Ancestors(s hsm.State) []hsm.State      { return c.engine.Ancestors(s) }
func (c *Coordinator) Descendants(s hsm.State) []hsm.State    { return c.engine.Descendants(s) }
func (c *Coordinator) CurrentPath() []hsm.State               { return c.engine.CurrentPath() }
func (c *Coordinator) IsInStateOrSubstate(s hsm.State) bool {
	return c.engine.IsInStateOrSubstate(s)
}

// --- Orthogonal accessors (§6, present only when Regions is set) ---

// FireInRegion routes trigger to a single named region via
// Regions.FireRegion. The region's transition is not appended to the log,
// snapshotted, published or deduplicated, and does not change
// TransitionCount.
func (c *Coordinator) FireInRegion(ctx context.Context, regionName string, trigger hsm.Trigger, args ...any) error {
	if c.Regions == nil {
		return fmt.Errorf("grain: actor %q has no orthogonal regions configured", c.actorID)
	}
	if c.inCallback {
		return &CallbackReentrancyError{ActorID: c.actorID, Trigger: fmt.Sprintf("%v", trigger)}
	}
	_, err := c.Regions.FireRegion(ctx, regionName, trigger, args...)
	return err
}

func (c *Coordinator) RegionState(name string) (hsm.State, bool) {
	if c.Regions == nil {
		return nil, false
	}
	return c.Regions.RegionState(name)
}

func (c *Coordinator) AllRegionStates() map[string]hsm.State {
	if c.Regions == nil {
		return nil
	}
	return c.Regions.AllRegionStates()
}

func (c *Coordinator) StateSummary() hsm.State {
	if c.Regions == nil {
		return c.engine.CurrentState()
	}
	return c.Regions.StateSummary()
}
