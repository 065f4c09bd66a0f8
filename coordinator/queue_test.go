package coordinator

import (
	"testing"
	"time"

	"github.com/dualtier/dtman/model"
	"github.com/stretchr/testify/assert"
)

func TestSyncQueueFIFO(t *testing.T) {
	q := newSyncQueue()
	for _, id := range []string{"a", "b", "c"} {
		q.Push(model.SyncQueueItem{Record: model.Record{Id: id}})
	}
	assert.Equal(t, 3, q.Depth())

	batch := q.PopBatch(2)
	assert.Len(t, batch, 2)
	assert.Equal(t, "a", batch[0].Record.Id)
	assert.Equal(t, "b", batch[1].Record.Id)
	assert.Equal(t, 1, q.Depth())

	batch = q.PopBatch(10)
	assert.Len(t, batch, 1)
	assert.Equal(t, "c", batch[0].Record.Id)
	assert.Equal(t, 0, q.Depth())
	assert.Nil(t, q.PopBatch(10))
}

func TestSyncQueueOldestAge(t *testing.T) {
	q := newSyncQueue()
	assert.Equal(t, time.Duration(0), q.OldestAge())

	q.Push(model.SyncQueueItem{
		Record:    model.Record{Id: "old"},
		CreatedAt: time.Now().Add(-time.Hour),
	})
	q.Push(model.SyncQueueItem{Record: model.Record{Id: "new"}})
	assert.GreaterOrEqual(t, q.OldestAge(), time.Hour)
}
