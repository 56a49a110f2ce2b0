// internal/adapter/events/subscriber.go

package events

import (
	"fmt"

	"github.com/nats-io/nats.go"
)

// Subscriber delivers raw event payloads from NATS subjects
type Subscriber struct {
	conn *nats.Conn
}

// NewSubscriber creates a subscriber on an open connection
func NewSubscriber(conn *nats.Conn) *Subscriber {
	return &Subscriber{conn: conn}
}

// Subscribe calls handler with the payload of every message on subject. The
// returned function cancels the subscription.
func (s *Subscriber) Subscribe(subject string, handler func(data []byte)) (func(), error) {
	sub, err := s.conn.Subscribe(subject, func(msg *nats.Msg) {
		handler(msg.Data)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to %s: %w", subject, err)
	}

	return func() {
		sub.Unsubscribe()
	}, nil
}
