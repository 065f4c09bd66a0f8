package model

import "time"

// Record is an opaque business record. The dual-tier core only relies on
// the stable Id for upsert and read-by-id; Payload is carried verbatim.
type Record struct {
	Id        string    `json:"id"`
	Kind      string    `json:"kind"`
	Payload   string    `json:"payload"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type ConfigEntry struct {
	Key       string    `json:"key"`
	Value     string    `json:"value"`
	Scope     string    `json:"scope"`
	UpdatedAt time.Time `json:"updated_at"`
}

type StoreResult struct {
	Success bool   `json:"success"`
	Id      string `json:"id,omitempty"`
	Error   string `json:"error,omitempty"`
}
