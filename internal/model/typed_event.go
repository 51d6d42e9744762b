package model

// LedgerEvent is a committed pool operation enriched with ledger metadata.
type LedgerEvent struct {
	PoolID    string      `json:"pool_id"`
	Version   uint64      `json:"version"`
	EventName string      `json:"event_name"`
	Timestamp uint64      `json:"timestamp"`
	Decoded   interface{} `json:"decoded"`
}
