package stream

import (
	"context"
	"fmt"

	"github.com/nats-io/nats.go"
)

// NATSPublisher publishes onto subject "<namespace>.<key>" over a
// pre-connected *nats.Conn. It does not own the connection's lifecycle —
// callers dial and close it, since one connection is typically shared
// across many actors.
type NATSPublisher struct {
	conn *nats.Conn
}

// NewNATSPublisher wraps an already-connected NATS client.
func NewNATSPublisher(conn *nats.Conn) *NATSPublisher {
	return &NATSPublisher{conn: conn}
}

// Publish implements Publisher. NATS publish is fire-and-forget over the
// wire already; ctx is honored only insofar as it's already expired.
func (p *NATSPublisher) Publish(ctx context.Context, namespace, key string, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	subject := fmt.Sprintf("%s.%s", namespace, key)
	return p.conn.Publish(subject, payload)
}
