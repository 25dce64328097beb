package queue

import (
	"context"
	"fmt"
	"sync"
	"time"
)

type inflight struct {
	task      Task
	visibleAt time.Time
}

// MemoryBroker is a single-process Broker with the same claim/ack
// semantics as SQS: a received message is hidden until its visibility
// timeout elapses, then becomes deliverable again. Used in tests and for
// local runs without AWS.
type MemoryBroker struct {
	mu         sync.Mutex
	items      []Task
	inflight   map[string]inflight
	counter    uint64
	visibility time.Duration
	wait       time.Duration // empty-queue poll window
	now        func() time.Time
}

func NewMemoryBroker(visibility time.Duration) *MemoryBroker {
	if visibility <= 0 {
		visibility = 30 * time.Second
	}
	return &MemoryBroker{
		items:      make([]Task, 0, 64),
		inflight:   make(map[string]inflight),
		visibility: visibility,
		wait:       200 * time.Millisecond,
		now:        time.Now,
	}
}

func (b *MemoryBroker) Enqueue(_ context.Context, task Task) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.items = append(b.items, task)
	return nil
}

// ReceiveOne waits up to the poll window for a message, like the SQS long
// poll, and returns (nil, nil) when none arrived in time.
func (b *MemoryBroker) ReceiveOne(ctx context.Context) (*Delivery, error) {
	deadline := time.Now().Add(b.wait)
	for {
		if d := b.tryReceive(); d != nil {
			return d, nil
		}
		if !time.Now().Before(deadline) {
			return nil, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func (b *MemoryBroker) tryReceive() *Delivery {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.reclaimExpired()

	if len(b.items) == 0 {
		return nil
	}
	task := b.items[0]
	b.items = b.items[1:]

	b.counter++
	receipt := fmt.Sprintf("mem:%d", b.counter)
	b.inflight[receipt] = inflight{task: task, visibleAt: b.now().Add(b.visibility)}

	return &Delivery{Receipt: receipt, Task: task}
}

func (b *MemoryBroker) Acknowledge(_ context.Context, receipt string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	// Deleting an expired receipt is a no-op, same as a lost SQS ack.
	delete(b.inflight, receipt)
	return nil
}

// reclaimExpired moves timed-out inflight messages back to the head of the
// queue. Caller holds the lock.
func (b *MemoryBroker) reclaimExpired() {
	now := b.now()
	for receipt, inf := range b.inflight {
		if !inf.visibleAt.After(now) {
			b.items = append([]Task{inf.task}, b.items...)
			delete(b.inflight, receipt)
		}
	}
}

// InflightCount reports how many messages are currently claimed.
func (b *MemoryBroker) InflightCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.inflight)
}
