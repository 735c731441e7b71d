package eventlog

import (
	"context"

	"github.com/grainkit/actorhsm/upcast"
)

// UpcastV1ToV2 migrates a schema-version-1 event to the current
// TransitionEvent shape. Version 1 predates the Metadata field (§4.4's
// ancestor-chain reporting did not exist yet), so there is no hierarchy
// information to recover for events recorded under it; Metadata is simply
// left unset.
func UpcastV1ToV2(_ context.Context, old any, _ upcast.MigrationContext) (any, error) {
	v1 := old.(TransitionEventV1)
	return TransitionEvent{
		FromState:           v1.FromState,
		ToState:             v1.ToState,
		Trigger:             v1.Trigger,
		Timestamp:           v1.Timestamp,
		CorrelationId:       v1.CorrelationId,
		DedupeKey:           v1.DedupeKey,
		StateMachineVersion: CurrentSchemaVersion,
	}, nil
}

// RegisterUpcasts wires this package's built-in schema migrations into r.
// grain.Options.withDefaults calls this against any registry it creates
// itself, so replay of a log spanning this schema change works without
// every host hand-registering it; a host supplying its own
// upcast.Registry (for its own domain payload migrations) should call this
// too if it wants version-1 events to keep replaying.
func RegisterUpcasts(r *upcast.Registry) {
	r.Register(TransitionEventV1{}, TransitionEvent{}, CurrentSchemaVersion, UpcastV1ToV2)
}
