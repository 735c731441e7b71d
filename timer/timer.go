// Package timer implements the Timer/Reminder Scheduler (§4.6): per-state
// timeouts that synthesize a fire on the owning actor when they expire.
//
// Ephemeral timers are pure in-process scheduling and need no host
// cooperation, so this package schedules them itself over stdlib
// time.AfterFunc/time.Ticker — no pack library offers a better primitive
// for "call this function after a duration, on a single goroutine, with a
// cancel", and the actor framework contract (§6) only defines durable
// reminder registration as something the host supplies, not ephemeral
// timers.
//
// Durable reminders are framework-owned in the source system
// (registerReminder/unregisterReminder against the hosting actor
// framework, explicitly out of scope to implement per spec.md §1). This
// package defines the ReminderStore contract a host backs, plus
// MemoryReminderStore, a process-local implementation for hosts that have
// none of their own.
package timer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/grainkit/actorhsm/hsm"
)

// Mode distinguishes ephemeral (in-memory, lost on deactivation) from
// durable (survives deactivation/relocation) timeouts.
type Mode int

const (
	Ephemeral Mode = iota
	Durable
)

func (m Mode) String() string {
	if m == Durable {
		return "DURABLE"
	}
	return "EPHEMERAL"
}

// Repeat distinguishes single-fire from periodic timeouts.
type Repeat int

const (
	Once Repeat = iota
	Repeating
)

// TimeoutConfig is a per-state timeout declaration (§4.6).
type TimeoutConfig struct {
	State         hsm.State
	Duration      time.Duration
	TargetTrigger hsm.Trigger
	Mode          Mode
	Repeat        Repeat
	Name          string
}

// FireRequest is what a timer synthesizes on expiry: a trigger to fire on
// the owning actor, carrying the tick count so the coordinator can build a
// dedupe key that survives REPEAT without being suppressed (§4.6, §9).
type FireRequest struct {
	TargetTrigger hsm.Trigger
	Name          string
	Tick          int
}

// DedupeKey returns the dedupe key a timer-synthesized fire should use:
// "<name>:<tick>", per the spec's resolved open question (§9 "Timer
// identity and dedupe interaction").
func (r FireRequest) DedupeKey() string {
	return fmt.Sprintf("%s:%d", r.Name, r.Tick)
}

// FireFunc is invoked on timer expiry. Implementations (the grain
// coordinator) must not block past a single turn — scheduling runs on its
// own goroutine per timer and must hand off quickly.
type FireFunc func(req FireRequest)

// Handle cancels a scheduled timer or reminder. Cancel is idempotent.
type Handle interface {
	Cancel(ctx context.Context) error
}

type ephemeralHandle struct {
	timer  *time.Timer
	ticker *time.Ticker
	stop   chan struct{}
	once   sync.Once
}

func (h *ephemeralHandle) Cancel(_ context.Context) error {
	h.once.Do(func() {
		if h.timer != nil {
			h.timer.Stop()
		}
		if h.ticker != nil {
			h.ticker.Stop()
		}
		close(h.stop)
	})
	return nil
}

// EphemeralScheduler schedules in-process timers keyed by name, one set
// per actor. It holds no cross-actor state and performs no locking beyond
// what's needed to protect its own bookkeeping map, matching the
// single-writer-per-actor discipline of §5 (callers only touch one
// Scheduler instance from one actor's turn at a time, but Cancel can race
// a just-fired callback, hence the mutex).
type EphemeralScheduler struct {
	mu      sync.Mutex
	handles map[string]*ephemeralHandle
}

// NewEphemeralScheduler creates an empty scheduler for one actor.
func NewEphemeralScheduler() *EphemeralScheduler {
	return &EphemeralScheduler{handles: make(map[string]*ephemeralHandle)}
}

// Start schedules cfg, invoking fire on expiry. Starting a timer under a
// name that's already scheduled cancels the previous one first (state
// re-entry replaces, never stacks).
func (s *EphemeralScheduler) Start(cfg TimeoutConfig, fire FireFunc) Handle {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.handles[cfg.Name]; ok {
		existing.Cancel(context.Background())
		delete(s.handles, cfg.Name)
	}

	h := &ephemeralHandle{stop: make(chan struct{})}
	tick := 0

	if cfg.Repeat == Repeating {
		h.ticker = time.NewTicker(cfg.Duration)
		go func() {
			for {
				select {
				case <-h.stop:
					return
				case <-h.ticker.C:
					tick++
					fire(FireRequest{TargetTrigger: cfg.TargetTrigger, Name: cfg.Name, Tick: tick})
				}
			}
		}()
	} else {
		h.timer = time.AfterFunc(cfg.Duration, func() {
			select {
			case <-h.stop:
				return
			default:
			}
			fire(FireRequest{TargetTrigger: cfg.TargetTrigger, Name: cfg.Name, Tick: 1})
		})
	}

	s.handles[cfg.Name] = h
	return h
}

// CancelState cancels every timer started under names in names,
// confirming synchronously before returning, matching §4.6 "confirm
// cancellation synchronously for ephemeral".
func (s *EphemeralScheduler) CancelState(ctx context.Context, names ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, name := range names {
		if h, ok := s.handles[name]; ok {
			if err := h.Cancel(ctx); err != nil {
				return err
			}
			delete(s.handles, name)
		}
	}
	return nil
}

// CancelAll stops every timer owned by this scheduler, used on actor
// deactivation.
func (s *EphemeralScheduler) CancelAll(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for name, h := range s.handles {
		h.Cancel(ctx)
		delete(s.handles, name)
	}
}
