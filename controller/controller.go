package controller

// Request bodies shared by the API controllers.

type StoreRecordReq struct {
	Kind    string `json:"kind"`
	Payload string `json:"payload"`
}

type ConfigEntryReq struct {
	Key   string `json:"key"`
	Scope string `json:"scope"`
	Value string `json:"value"`
}

type FallbackReq struct {
	Reason string `json:"reason"`
}

type MigrationReq struct {
	Target int64 `json:"target"`
}
