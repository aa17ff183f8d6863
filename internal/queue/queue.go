// Package queue defines the publish-only broker contract and its adapters.
package queue

import (
	"context"
	"errors"
)

// ErrNacked indicates the broker rejected a published message.
var ErrNacked = errors.New("message not acknowledged by broker")

// Message represents a message to be published to a queue or topic.
type Message struct {
	// Queue or topic to publish to.
	Topic string
	// Key identifies the originating task; adapters may carry it as message metadata.
	Key string
	// Message body (will be JSON encoded).
	Body interface{}
}

// Pending tracks the delivery of one published message. Err is only valid
// once the channel returned by Done is closed.
type Pending interface {
	Done() <-chan struct{}
	Err() error
}

// Broker defines the interface for queue publish operations. Delivery may be
// asynchronous; callers hold on to the Pending handle and wait on it when
// they need delivery confirmation.
type Broker interface {
	Publish(ctx context.Context, msg *Message) (Pending, error)
	Close() error
}

var closedChan = func() chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}()

// Resolved is a Pending whose outcome was known at publish time. Used by
// adapters with synchronous delivery.
type Resolved struct {
	Outcome error
}

func (r Resolved) Done() <-chan struct{} { return closedChan }

func (r Resolved) Err() error { return r.Outcome }
