package queue

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryBrokerClaimHidesMessage(t *testing.T) {
	ctx := context.Background()
	b := NewMemoryBroker(30 * time.Second)
	b.wait = 0

	require.NoError(t, b.Enqueue(ctx, Task{Type: TaskThumb, Key: "uploads/alice/v.mp4"}))

	first, err := b.ReceiveOne(ctx)
	require.NoError(t, err)
	require.NotNil(t, first)
	assert.Equal(t, TaskThumb, first.Task.Type)

	// While the claim is live nobody else sees the message.
	second, err := b.ReceiveOne(ctx)
	require.NoError(t, err)
	assert.Nil(t, second)
	assert.Equal(t, 1, b.InflightCount())
}

func TestMemoryBrokerVisibilityTimeout(t *testing.T) {
	ctx := context.Background()
	b := NewMemoryBroker(30 * time.Second)
	b.wait = 0

	now := time.Now()
	b.now = func() time.Time { return now }

	require.NoError(t, b.Enqueue(ctx, Task{Type: TaskPreview, Key: "uploads/bob/v.mp4"}))

	first, err := b.ReceiveOne(ctx)
	require.NoError(t, err)
	require.NotNil(t, first)

	// Not yet expired: still hidden.
	now = now.Add(29 * time.Second)
	d, err := b.ReceiveOne(ctx)
	require.NoError(t, err)
	assert.Nil(t, d)

	// Expired: the same task becomes deliverable again.
	now = now.Add(2 * time.Second)
	redelivered, err := b.ReceiveOne(ctx)
	require.NoError(t, err)
	require.NotNil(t, redelivered)
	assert.Equal(t, first.Task, redelivered.Task)
	assert.NotEqual(t, first.Receipt, redelivered.Receipt)
}

func TestMemoryBrokerAckRemovesPermanently(t *testing.T) {
	ctx := context.Background()
	b := NewMemoryBroker(time.Second)
	b.wait = 0

	now := time.Now()
	b.now = func() time.Time { return now }

	require.NoError(t, b.Enqueue(ctx, Task{Type: TaskInspect, Key: "uploads/alice/v.mp4"}))

	d, err := b.ReceiveOne(ctx)
	require.NoError(t, err)
	require.NotNil(t, d)
	require.NoError(t, b.Acknowledge(ctx, d.Receipt))

	now = now.Add(time.Hour)
	gone, err := b.ReceiveOne(ctx)
	require.NoError(t, err)
	assert.Nil(t, gone)
}

func TestMemoryBrokerExpiredReceiptAckIsNoop(t *testing.T) {
	ctx := context.Background()
	b := NewMemoryBroker(time.Second)

	now := time.Now()
	b.now = func() time.Time { return now }

	require.NoError(t, b.Enqueue(ctx, Task{Type: TaskThumb, Key: "uploads/alice/v.mp4"}))

	d, err := b.ReceiveOne(ctx)
	require.NoError(t, err)
	require.NotNil(t, d)

	now = now.Add(2 * time.Second)
	redelivered, err := b.ReceiveOne(ctx)
	require.NoError(t, err)
	require.NotNil(t, redelivered)

	// The first receipt died with the timeout; acking it must not touch
	// the live claim.
	require.NoError(t, b.Acknowledge(ctx, d.Receipt))
	assert.Equal(t, 1, b.InflightCount())
}

func TestMemoryBrokerReceiveWaitsForArrival(t *testing.T) {
	ctx := context.Background()
	b := NewMemoryBroker(time.Minute)
	b.wait = time.Second

	go func() {
		time.Sleep(30 * time.Millisecond)
		_ = b.Enqueue(ctx, Task{Type: TaskInspect, Key: "uploads/alice/v.mp4"})
	}()

	d, err := b.ReceiveOne(ctx)
	require.NoError(t, err)
	require.NotNil(t, d)
	assert.Equal(t, TaskInspect, d.Task.Type)
}

func TestMemoryBrokerReceiveStopsOnContextCancel(t *testing.T) {
	b := NewMemoryBroker(time.Minute)
	b.wait = 10 * time.Second

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	_, err := b.ReceiveOne(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), time.Second)
}

func TestMemoryBrokerSingleClaimUnderConcurrency(t *testing.T) {
	ctx := context.Background()
	b := NewMemoryBroker(time.Minute)
	b.wait = 0

	require.NoError(t, b.Enqueue(ctx, Task{Type: TaskThumb, Key: "uploads/alice/v.mp4"}))

	var mu sync.Mutex
	claims := 0
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				d, err := b.ReceiveOne(ctx)
				require.NoError(t, err)
				if d != nil {
					mu.Lock()
					claims++
					mu.Unlock()
				}
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, claims)
}
