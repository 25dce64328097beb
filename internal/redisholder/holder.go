package redisholder

import (
	"context"
	"sync"

	"github.com/redis/go-redis/v9"
)

// Holder hands out the current redis client and lets the health loop swap
// in a replacement without callers noticing. Callers must not cache the
// returned client across reconnects.
type Holder struct {
	mu     sync.RWMutex
	client redis.UniversalClient
}

func NewHolder(initial redis.UniversalClient) *Holder {
	return &Holder{client: initial}
}

func (h *Holder) Get() redis.UniversalClient {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.client
}

// Ping checks the current client; the health loop uses the same probe
// before deciding to reconnect.
func (h *Holder) Ping(ctx context.Context) error {
	return h.Get().Ping(ctx).Err()
}

func (h *Holder) swap(newc redis.UniversalClient) (old redis.UniversalClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	old = h.client
	h.client = newc
	return old
}

func (h *Holder) Close() error {
	if c := h.Get(); c != nil {
		return c.Close()
	}
	return nil
}
