// Package stream defines the stream-provider contract (§6 "Stream
// provider: publish(namespace, key, payload)") consumed by the Transition
// Coordinator, plus a NATS-backed implementation for hosts that want a
// real broker rather than the actor framework's own pub/sub (itself out of
// scope per spec.md §1 — only the one adapter bundled here is built).
package stream

import (
	"context"
)

// Publisher is the contract the coordinator's PublishToStream step (§4.2
// step 7) calls against. Publication is always best-effort: a Publisher
// returning an error only ever gets it logged, never propagated (§7
// "Stream-publish failures are logged only").
type Publisher interface {
	Publish(ctx context.Context, namespace, key string, payload []byte) error
}

// NopPublisher discards everything. It is the default when no
// StreamPublisher is set, so the coordinator never needs a nil check.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, string, string, []byte) error { return nil }
