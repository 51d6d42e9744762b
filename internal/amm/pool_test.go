package amm

import (
	"errors"
	"reflect"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"poolLedger/internal/model"
)

var (
	assetA = common.HexToAddress("0x1111111111111111111111111111111111111111")
	assetB = common.HexToAddress("0x2222222222222222222222222222222222222222")
	admin  = common.HexToAddress("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	alice  = common.HexToAddress("0xa11ce00000000000000000000000000000000000")
	bob    = common.HexToAddress("0xb0b0000000000000000000000000000000000000")
)

func newTestPool(t *testing.T) Pool {
	t.Helper()
	out, err := Initialize(InitParams{AssetA: assetA, AssetB: assetB, FeeBps: 30, ProtocolFeeBps: 5, Admin: admin})
	if err != nil {
		t.Fatalf("initialize failed: %v", err)
	}
	return out.Pool
}

// seededPool returns a pool bootstrapped with (reserveA, reserveB).
func seededPool(t *testing.T, reserveA, reserveB uint64) Pool {
	t.Helper()
	out, err := Deposit(newTestPool(t), DepositRequest{Depositor: alice, AmountADesired: reserveA, AmountBDesired: reserveB})
	if err != nil {
		t.Fatalf("bootstrap deposit failed: %v", err)
	}
	return out.Pool
}

func TestInitialize(t *testing.T) {
	out, err := Initialize(InitParams{AssetA: assetA, AssetB: assetB, FeeBps: 30, ProtocolFeeBps: 5, Admin: admin})
	if err != nil {
		t.Fatalf("initialize failed: %v", err)
	}
	p := out.Pool
	if p.ReserveA != 0 || p.ReserveB != 0 || p.ShareSupply != 0 || p.FeeVaultA != 0 || p.FeeVaultB != 0 {
		t.Fatalf("new pool should be empty: %+v", p)
	}
	if p.ID != PoolID(assetA, assetB) {
		t.Fatalf("pool id mismatch")
	}
	if p.Custody != DeriveCustody(p.ID) {
		t.Fatalf("custody mismatch")
	}
	if p.Admin != admin || p.Paused || p.Version != 1 {
		t.Fatalf("unexpected pool fields: %+v", p)
	}
	if len(out.Transfers) != 0 || len(out.Shares) != 0 {
		t.Fatalf("initialize should not move funds")
	}
	if out.Event.Name != model.EventInitialize {
		t.Fatalf("event name = %s", out.Event.Name)
	}
	if err := CheckInvariants(p); err != nil {
		t.Fatalf("invariants: %v", err)
	}
}

func TestInitializeErrors(t *testing.T) {
	if _, err := Initialize(InitParams{AssetA: assetA, AssetB: assetA, FeeBps: 30}); !errors.Is(err, ErrDuplicateAsset) {
		t.Fatalf("expected duplicate asset, got %v", err)
	}
	if _, err := Initialize(InitParams{AssetA: assetA, AssetB: assetB, FeeBps: 10, ProtocolFeeBps: 11}); !errors.Is(err, ErrInvalidFeeConfig) {
		t.Fatalf("expected invalid fee config for protocol > fee, got %v", err)
	}
	if _, err := Initialize(InitParams{AssetA: assetA, AssetB: assetB, FeeBps: 10_001}); !errors.Is(err, ErrInvalidFeeConfig) {
		t.Fatalf("expected invalid fee config for fee > 10000, got %v", err)
	}
	if _, err := Initialize(InitParams{AssetA: assetA, AssetB: assetB, FeeBps: 10_000, ProtocolFeeBps: 10_000}); err != nil {
		t.Fatalf("boundary fee config should be accepted: %v", err)
	}
}

func TestPoolIDOrdered(t *testing.T) {
	if PoolID(assetA, assetB) != PoolID(assetA, assetB) {
		t.Fatalf("pool id should be deterministic")
	}
	if PoolID(assetA, assetB) == PoolID(assetB, assetA) {
		t.Fatalf("pool id should depend on pair order")
	}

	c := DeriveCustody(PoolID(assetA, assetB))
	seen := map[common.Address]bool{c.VaultA: true, c.VaultB: true, c.FeeVaultA: true, c.FeeVaultB: true}
	if len(seen) != 4 {
		t.Fatalf("custody accounts should be distinct: %+v", c)
	}
}

func TestCheckInvariants(t *testing.T) {
	p := seededPool(t, 1_000, 4_000)
	if err := CheckInvariants(p); err != nil {
		t.Fatalf("seeded pool invariants: %v", err)
	}

	broken := p
	broken.ReserveB = 0
	if err := CheckInvariants(broken); !errors.Is(err, ErrInvalidPoolState) {
		t.Fatalf("expected invalid state for zero reserve, got %v", err)
	}

	broken = p
	broken.ShareSupply = 0
	if err := CheckInvariants(broken); !errors.Is(err, ErrInvalidPoolState) {
		t.Fatalf("expected invalid state for reserves without shares, got %v", err)
	}

	broken = p
	broken.ProtocolFeeBps = broken.FeeBps + 1
	if err := CheckInvariants(broken); !errors.Is(err, ErrInvalidPoolState) {
		t.Fatalf("expected invalid state for fee config, got %v", err)
	}
}

func TestSetPaused(t *testing.T) {
	p := seededPool(t, 1_000_000, 2_000_000)

	if _, err := SetPaused(p, alice, true); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}

	out, err := SetPaused(p, admin, true)
	if err != nil {
		t.Fatalf("pause failed: %v", err)
	}
	paused := out.Pool
	if !paused.Paused || paused.Version != p.Version+1 {
		t.Fatalf("unexpected paused pool: %+v", paused)
	}

	if _, err := Deposit(paused, DepositRequest{Depositor: bob, AmountADesired: 10, AmountBDesired: 20}); !errors.Is(err, ErrPoolPaused) {
		t.Fatalf("deposit should be blocked, got %v", err)
	}
	if _, err := Swap(paused, SwapRequest{Trader: bob, AmountIn: 10, Direction: AtoB}); !errors.Is(err, ErrPoolPaused) {
		t.Fatalf("swap should be blocked, got %v", err)
	}
	if _, err := Withdraw(paused, paused.ShareSupply, WithdrawRequest{Owner: alice, ShareAmount: 1}); err != nil {
		t.Fatalf("withdraw should stay open while paused: %v", err)
	}

	resumed, err := SetPaused(paused, admin, false)
	if err != nil {
		t.Fatalf("unpause failed: %v", err)
	}
	want := p
	want.Version = p.Version + 2
	if !reflect.DeepEqual(resumed.Pool, want) {
		t.Fatalf("unpause mismatch: %+v != %+v", resumed.Pool, want)
	}
}
