package main

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

func TestParseAddress(t *testing.T) {
	got, err := parseAddress("caller", " 0xa11ce00000000000000000000000000000000000 ")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if got != common.HexToAddress("0xa11ce00000000000000000000000000000000000") {
		t.Fatalf("unexpected address: %s", got.Hex())
	}

	for _, input := range []string{"", "0x1234", "not-an-address"} {
		if _, err := parseAddress("caller", input); err == nil {
			t.Fatalf("expected error for %q", input)
		}
	}
}

func TestParsePoolID(t *testing.T) {
	want := common.HexToHash("0x0102030405060708091011121314151617181920212223242526272829303132")
	got, err := parsePoolID(want.Hex())
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if got != want {
		t.Fatalf("unexpected pool id: %s", got.Hex())
	}

	for _, input := range []string{"", "0x01", "0102", "0xzz"} {
		if _, err := parsePoolID(input); err == nil {
			t.Fatalf("expected error for %q", input)
		}
	}
}
