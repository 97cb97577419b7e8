// Package outbox is the durable work queue decoupling clinic mutations from
// the network-dependent calendar and mail integrations. Items survive
// restarts, are delivered at least once in strict FIFO order, and are dropped
// after a capped number of failed attempts.
package outbox

import (
	"context"
	"time"
)

type Status string

const (
	StatusPending Status = "pending"
	StatusSent    Status = "sent"
	StatusFailed  Status = "failed"
)

// Item is one queued outbound command. Payload is the serialized command for
// the service named by Service.
type Item struct {
	ID        int64
	Service   string
	Payload   []byte
	Attempts  int
	Status    Status
	CreatedAt time.Time
}

// Store is the persistence contract for the queue.
type Store interface {
	// Enqueue appends a pending item. It never blocks on the network.
	Enqueue(ctx context.Context, service string, payload []byte) error

	// DequeueNext returns the oldest item that is pending, or failed with
	// fewer than maxAttempts attempts. Returns (nil, nil) when the queue
	// has nothing admissible.
	DequeueNext(ctx context.Context, maxAttempts int) (*Item, error)

	// MarkSent removes a delivered item; successes are not retained.
	MarkSent(ctx context.Context, id int64) error

	// MarkFailed increments the attempt count and drops the item once it
	// reaches maxAttempts. Reports whether the item was given up on.
	MarkFailed(ctx context.Context, id int64, maxAttempts int) (dropped bool, err error)

	// Reset re-admits an item: status back to pending, attempts to zero.
	Reset(ctx context.Context, id int64) error
}
