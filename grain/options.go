package grain

import (
	"time"

	"github.com/grainkit/actorhsm/dedupe"
	"github.com/grainkit/actorhsm/eventlog"
	"github.com/grainkit/actorhsm/internal/backoffutil"
	"github.com/grainkit/actorhsm/stream"
	"github.com/grainkit/actorhsm/upcast"
	"go.uber.org/zap"
)

// Options is the full §4.2 "Configuration options" set plus the
// collaborators a Coordinator needs wired in (stream publisher, upcast
// registry, logger, retry policy); the log and snapshot store are passed to
// New directly. Zero-value fields fall back to the documented defaults in
// New.
type Options struct {
	// AutoConfirmEvents skips awaiting storage confirmation after append
	// (default true).
	AutoConfirmEvents bool
	autoConfirmSet    bool

	// PublishToStream enables the best-effort stream publish step
	// (default false).
	PublishToStream bool

	// StreamNamespace is the publish namespace (default "StateMachine").
	StreamNamespace string

	// EnableIdempotency enables the dedupe-key check (default true).
	EnableIdempotency bool
	enableIdempotencySet bool

	// MaxDedupeKeysInMemory bounds the dedupe cache (default 1000).
	MaxDedupeKeysInMemory int

	// EnableSnapshots enables periodic snapshotting (default true).
	EnableSnapshots bool
	enableSnapshotsSet bool

	// SnapshotInterval is the transition-count modulus that triggers a
	// snapshot (default 100).
	SnapshotInterval int

	StreamPublisher stream.Publisher
	UpcastRegistry  *upcast.Registry
	RetryPolicy     backoffutil.Policy
	Logger          *zap.Logger

	// Clock is swappable for tests; defaults to time.Now.
	Clock func() time.Time
}

// withDefaults fills unset fields with the §4.2-mandated defaults and
// returns the filled copy; the caller's Options value is not modified.
func (o Options) withDefaults() Options {
	if !o.autoConfirmSet {
		o.AutoConfirmEvents = true
	}
	if o.StreamNamespace == "" {
		o.StreamNamespace = "StateMachine"
	}
	if !o.enableIdempotencySet {
		o.EnableIdempotency = true
	}
	if o.MaxDedupeKeysInMemory <= 0 {
		o.MaxDedupeKeysInMemory = dedupe.DefaultCapacity
	}
	if !o.enableSnapshotsSet {
		o.EnableSnapshots = true
	}
	if o.SnapshotInterval <= 0 {
		o.SnapshotInterval = 100
	}
	if o.StreamPublisher == nil {
		o.StreamPublisher = stream.NopPublisher{}
	}
	if o.UpcastRegistry == nil {
		o.UpcastRegistry = upcast.NewRegistry()
		eventlog.RegisterUpcasts(o.UpcastRegistry)
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	if o.Clock == nil {
		o.Clock = time.Now
	}
	return o
}

// DisableAutoConfirm marks AutoConfirmEvents as explicitly set to false.
// Plain struct literals can't distinguish "false" from "unset" for a
// bool-default-true option, so Options exposes this setter instead of a
// public bool the zero value would silently override.
func (o Options) DisableAutoConfirm() Options {
	o.AutoConfirmEvents = false
	o.autoConfirmSet = true
	return o
}

func (o Options) WithAutoConfirmEvents(v bool) Options {
	o.AutoConfirmEvents = v
	o.autoConfirmSet = true
	return o
}

func (o Options) WithIdempotency(v bool) Options {
	o.EnableIdempotency = v
	o.enableIdempotencySet = true
	return o
}

func (o Options) WithSnapshots(v bool) Options {
	o.EnableSnapshots = v
	o.enableSnapshotsSet = true
	return o
}

func (o Options) WithPublishToStream(v bool) Options {
	o.PublishToStream = v
	return o
}

func (o Options) WithStreamNamespace(ns string) Options {
	o.StreamNamespace = ns
	return o
}

func (o Options) WithMaxDedupeKeysInMemory(n int) Options {
	o.MaxDedupeKeysInMemory = n
	return o
}

func (o Options) WithSnapshotInterval(n int) Options {
	o.SnapshotInterval = n
	return o
}

func (o Options) WithRetryPolicy(p backoffutil.Policy) Options {
	o.RetryPolicy = p
	return o
}

func (o Options) WithStreamPublisher(p stream.Publisher) Options {
	o.StreamPublisher = p
	return o
}

func (o Options) WithUpcastRegistry(r *upcast.Registry) Options {
	o.UpcastRegistry = r
	return o
}

func (o Options) WithLogger(l *zap.Logger) Options {
	o.Logger = l
	return o
}
