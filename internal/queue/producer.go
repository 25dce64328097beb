package queue

import (
	"context"
	"fmt"
	"log"

	"github.com/trunov/mediaforge/internal/metastore"
	"github.com/trunov/mediaforge/internal/s3store"
)

type MetaWriter interface {
	Put(ctx context.Context, rec metastore.Record) error
}

// Producer enqueues tasks and opportunistically marks the item PENDING_*
// in the metadata store. The pending write is best-effort: its failure is
// logged and never turns a successful enqueue into a submission failure.
type Producer struct {
	broker Broker
	meta   MetaWriter
}

func NewProducer(broker Broker, meta MetaWriter) *Producer {
	return &Producer{broker: broker, meta: meta}
}

func (p *Producer) Enqueue(ctx context.Context, task Task) error {
	if !task.Type.Valid() {
		return fmt.Errorf("unknown task type %q", task.Type)
	}
	if task.Key == "" {
		return fmt.Errorf("task key is required")
	}

	if err := p.broker.Enqueue(ctx, task); err != nil {
		return err
	}

	if p.meta != nil {
		rec := metastore.Record{
			Owner:     OwnerFor(task),
			ItemID:    ItemIDFor(task),
			SourceKey: task.Key,
			Status:    task.Type.PendingStatus(),
		}
		if err := p.meta.Put(ctx, rec); err != nil {
			log.Printf("[producer] pending write for %q failed (ignored): %v", task.Key, err)
		}
	}
	return nil
}

// OwnerFor attributes a task to an owner: descriptor field first, then the
// uploads/{owner}/... key convention, then the literal "unknown". Never
// blocks processing.
func OwnerFor(task Task) string {
	if task.Owner != "" {
		return task.Owner
	}
	if owner := s3store.OwnerFromKey(task.Key); owner != "" {
		return owner
	}
	return "unknown"
}

// ItemIDFor falls back to the source basename when the descriptor carries
// no explicit item id.
func ItemIDFor(task Task) string {
	if task.ItemID != "" {
		return task.ItemID
	}
	return s3store.BaseNoExt(task.Key)
}
