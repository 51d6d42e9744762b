package model

import (
	"encoding/json"
	"reflect"
	"testing"
)

func TestLedgerEventRecordRoundTrip(t *testing.T) {
	payload := SwapEventData{
		User:        "0xb0b0000000000000000000000000000000000000",
		Pool:        "0x5d1f2c",
		Direction:   "a_to_b",
		AmountIn:    100000,
		AmountOut:   181322,
		ProtocolFee: 50,
	}
	event := LedgerEvent{
		PoolID:    "0x5d1f2c",
		Version:   3,
		EventName: EventSwap,
		Timestamp: 1700000000,
		Decoded:   payload,
	}

	b, err := json.Marshal(event)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	var rec LedgerEventRecord
	if err := json.Unmarshal(b, &rec); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if rec.PoolID != event.PoolID || rec.Version != 3 || rec.EventName != EventSwap || rec.Timestamp != 1700000000 {
		t.Fatalf("envelope mismatch: %+v", rec)
	}

	var decoded SwapEventData
	if err := json.Unmarshal(rec.Decoded, &decoded); err != nil {
		t.Fatalf("unmarshal payload failed: %v", err)
	}
	if !reflect.DeepEqual(payload, decoded) {
		t.Fatalf("payload mismatch: %+v != %+v", payload, decoded)
	}
}

func TestEventAmountsAreJSONNumbers(t *testing.T) {
	data, err := json.Marshal(DepositEventData{AmountAIn: 18446744073709551615, SharesMinted: 1})
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	var decoded map[string]json.RawMessage
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if string(decoded["amount_a_in"]) != "18446744073709551615" {
		t.Fatalf("amount_a_in should be an exact integer, got %s", decoded["amount_a_in"])
	}
	if string(decoded["shares_minted"]) != "1" {
		t.Fatalf("shares_minted should be an exact integer, got %s", decoded["shares_minted"])
	}
}
