package queue

import (
	"context"
	"errors"
)

// ErrUnconfigured means the broker has no queue to talk to.
var ErrUnconfigured = errors.New("queue is not configured")

// Delivery pairs a task with the receipt needed to acknowledge it. The
// receipt is only valid until the visibility timeout elapses.
type Delivery struct {
	Receipt string
	Task    Task
}

// Broker is the at-least-once delivery contract. ReceiveOne long-polls and
// returns (nil, nil) when no message arrived in the poll window. A received
// message stays invisible to other consumers for the broker's visibility
// timeout; without an Acknowledge it becomes redeliverable afterwards.
type Broker interface {
	Enqueue(ctx context.Context, task Task) error
	ReceiveOne(ctx context.Context) (*Delivery, error)
	Acknowledge(ctx context.Context, receipt string) error
}
