package model

import "encoding/json"

// LedgerEventRecord is the JSON representation used when reading events back.
type LedgerEventRecord struct {
	PoolID    string          `json:"pool_id"`
	Version   uint64          `json:"version"`
	EventName string          `json:"event_name"`
	Timestamp uint64          `json:"timestamp"`
	Decoded   json.RawMessage `json:"decoded"`
}
