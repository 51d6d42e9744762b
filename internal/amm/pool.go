package amm

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/zeebo/blake3"

	"poolLedger/internal/model"
)

// Custody seed labels. Each pool owns four custody accounts derived from its id.
const (
	seedPool      = "pool"
	seedVaultA    = "vault_a"
	seedVaultB    = "vault_b"
	seedFeeVaultA = "fee_vault_a"
	seedFeeVaultB = "fee_vault_b"
)

// Custody holds the custody identifiers owned by a pool.
type Custody struct {
	VaultA    common.Address `json:"vault_a"`
	VaultB    common.Address `json:"vault_b"`
	FeeVaultA common.Address `json:"fee_vault_a"`
	FeeVaultB common.Address `json:"fee_vault_b"`
}

// Pool is the complete accounting state of one ordered asset pair.
type Pool struct {
	ID             common.Hash    `json:"id"`
	AssetA         common.Address `json:"asset_a"`
	AssetB         common.Address `json:"asset_b"`
	Custody        Custody        `json:"custody"`
	ReserveA       uint64         `json:"reserve_a"`
	ReserveB       uint64         `json:"reserve_b"`
	ShareSupply    uint64         `json:"share_supply"`
	FeeBps         uint16         `json:"fee_bps"`
	ProtocolFeeBps uint16         `json:"protocol_fee_bps"`
	Admin          common.Address `json:"admin"`
	FeeVaultA      uint64         `json:"fee_vault_a"`
	FeeVaultB      uint64         `json:"fee_vault_b"`
	Paused         bool           `json:"paused"`
	Version        uint64         `json:"version"`
}

// InitParams configures a new pool.
type InitParams struct {
	AssetA         common.Address
	AssetB         common.Address
	FeeBps         uint16
	ProtocolFeeBps uint16
	Admin          common.Address
}

// PoolID derives the identifier of the pool for an ordered asset pair.
func PoolID(assetA, assetB common.Address) common.Hash {
	h := blake3.New()
	h.Write([]byte(seedPool))
	h.Write(assetA.Bytes())
	h.Write(assetB.Bytes())
	var id common.Hash
	h.Digest().Read(id[:])
	return id
}

// DeriveCustody returns the custody accounts owned by a pool.
func DeriveCustody(poolID common.Hash) Custody {
	return Custody{
		VaultA:    custodyAddress(poolID, seedVaultA),
		VaultB:    custodyAddress(poolID, seedVaultB),
		FeeVaultA: custodyAddress(poolID, seedFeeVaultA),
		FeeVaultB: custodyAddress(poolID, seedFeeVaultB),
	}
}

func custodyAddress(poolID common.Hash, label string) common.Address {
	h := blake3.New()
	h.Write([]byte(label))
	h.Write(poolID.Bytes())
	var digest [32]byte
	h.Digest().Read(digest[:])
	return common.BytesToAddress(digest[12:])
}

// Initialize creates an empty pool.
func Initialize(params InitParams) (Outcome, error) {
	if params.AssetA == params.AssetB {
		return Outcome{}, ErrDuplicateAsset
	}
	if err := validateFees(params.FeeBps, params.ProtocolFeeBps); err != nil {
		return Outcome{}, err
	}

	id := PoolID(params.AssetA, params.AssetB)
	pool := Pool{
		ID:             id,
		AssetA:         params.AssetA,
		AssetB:         params.AssetB,
		Custody:        DeriveCustody(id),
		FeeBps:         params.FeeBps,
		ProtocolFeeBps: params.ProtocolFeeBps,
		Admin:          params.Admin,
		Version:        1,
	}

	return Outcome{
		Pool: pool,
		Event: Event{
			Name: model.EventInitialize,
			Data: model.InitializeEventData{
				Pool:           id.Hex(),
				AssetA:         pool.AssetA.Hex(),
				AssetB:         pool.AssetB.Hex(),
				VaultA:         pool.Custody.VaultA.Hex(),
				VaultB:         pool.Custody.VaultB.Hex(),
				FeeVaultA:      pool.Custody.FeeVaultA.Hex(),
				FeeVaultB:      pool.Custody.FeeVaultB.Hex(),
				FeeBps:         pool.FeeBps,
				ProtocolFeeBps: pool.ProtocolFeeBps,
				Admin:          pool.Admin.Hex(),
				Paused:         pool.Paused,
			},
		},
	}, nil
}

func validateFees(feeBps, protocolFeeBps uint16) error {
	if uint64(feeBps) > BpsDenominator || protocolFeeBps > feeBps {
		return ErrInvalidFeeConfig
	}
	return nil
}

// CheckInvariants reports whether a pool state is internally consistent.
func CheckInvariants(p Pool) error {
	if p.AssetA == p.AssetB {
		return fmt.Errorf("%w: duplicate assets", ErrInvalidPoolState)
	}
	if err := validateFees(p.FeeBps, p.ProtocolFeeBps); err != nil {
		return fmt.Errorf("%w: fee %d protocol fee %d", ErrInvalidPoolState, p.FeeBps, p.ProtocolFeeBps)
	}
	if p.ShareSupply == 0 && (p.ReserveA != 0 || p.ReserveB != 0) {
		return fmt.Errorf("%w: reserves %d/%d without shares", ErrInvalidPoolState, p.ReserveA, p.ReserveB)
	}
	if p.ShareSupply != 0 && (p.ReserveA == 0 || p.ReserveB == 0) {
		return fmt.Errorf("%w: %d shares over reserves %d/%d", ErrInvalidPoolState, p.ShareSupply, p.ReserveA, p.ReserveB)
	}
	return nil
}

// SetPaused toggles the paused flag. Only the pool admin may call it.
func SetPaused(p Pool, caller common.Address, paused bool) (Outcome, error) {
	if caller != p.Admin {
		return Outcome{}, ErrUnauthorized
	}

	next := p.next()
	next.Paused = paused

	return Outcome{
		Pool: next,
		Event: Event{
			Name: model.EventPause,
			Data: model.PauseEventData{
				Admin:  caller.Hex(),
				Pool:   p.ID.Hex(),
				Paused: paused,
			},
		},
	}, nil
}

func (p Pool) next() Pool {
	n := p
	n.Version++
	return n
}

func (p Pool) requireActive() error {
	if p.Paused {
		return ErrPoolPaused
	}
	return nil
}
