// Package natsq wraps NATS connection setup. Unlike the teacher, which used
// JetStream as its durable queue backend, this system's durable queue is
// Redis (see core/queue) — NATS here is repurposed for its other named role
// in the design, core pub/sub alert dispatch (§4.2, §6.1), so only the
// plain connection helper survives; JetStream stream/consumer setup is not
// needed and is dropped.
package natsq

import (
	"fmt"

	"github.com/nats-io/nats.go"
)

// Config is the subset of connection parameters every service needs.
type Config struct {
	Name          string
	MaxReconnects int
}

// NewConnect dials NATS core (no JetStream context is requested).
func NewConnect(url string, cfg Config) (*nats.Conn, error) {
	nc, err := nats.Connect(url,
		nats.Name(cfg.Name),
		nats.MaxReconnects(cfg.MaxReconnects),
	)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	return nc, nil
}
