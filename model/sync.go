package model

import "time"

type SyncOp string

const (
	SyncOpInsert SyncOp = "insert"
	SyncOpUpdate SyncOp = "update"
	SyncOpUpsert SyncOp = "upsert"
)

// SyncQueueItem is a pending write destined for the durable store.
// Retries only ever grows; the item leaves the queue on success or once
// retries pass the configured ceiling.
type SyncQueueItem struct {
	Kind      string    `json:"kind"`
	Op        SyncOp    `json:"op"`
	Record    Record    `json:"record"`
	Retries   int       `json:"retries"`
	CreatedAt time.Time `json:"created_at"`
}
