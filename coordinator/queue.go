package coordinator

import (
	"sync"
	"time"

	"github.com/dualtier/dtman/metrics"
	"github.com/dualtier/dtman/model"
)

// syncQueue is the FIFO buffer between cache writes and the durable store.
// Items are requeued at the tail on failure so one poisoned write cannot
// starve the rest of the batch.
type syncQueue struct {
	mu    sync.Mutex
	items []model.SyncQueueItem
}

func newSyncQueue() *syncQueue {
	return &syncQueue{}
}

func (q *syncQueue) Push(item model.SyncQueueItem) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if item.CreatedAt.IsZero() {
		item.CreatedAt = time.Now()
	}
	q.items = append(q.items, item)
	metrics.SyncQueueDepth.Set(float64(len(q.items)))
}

// PopBatch removes up to n items from the head of the queue.
func (q *syncQueue) PopBatch(n int) []model.SyncQueueItem {
	q.mu.Lock()
	defer q.mu.Unlock()
	if n <= 0 || len(q.items) == 0 {
		return nil
	}
	if n > len(q.items) {
		n = len(q.items)
	}
	batch := make([]model.SyncQueueItem, n)
	copy(batch, q.items[:n])
	q.items = q.items[n:]
	metrics.SyncQueueDepth.Set(float64(len(q.items)))
	return batch
}

func (q *syncQueue) Depth() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// OldestAge returns how long the head item has been waiting, zero when the
// queue is empty.
func (q *syncQueue) OldestAge() time.Duration {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return 0
	}
	return time.Since(q.items[0].CreatedAt)
}
