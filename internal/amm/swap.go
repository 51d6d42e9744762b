package amm

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"poolLedger/internal/model"
)

// Direction selects which reserve a swap pays into.
type Direction uint8

const (
	AtoB Direction = iota
	BtoA
)

func (d Direction) String() string {
	switch d {
	case AtoB:
		return "a_to_b"
	case BtoA:
		return "b_to_a"
	default:
		return fmt.Sprintf("direction(%d)", uint8(d))
	}
}

// ParseDirection accepts "a_to_b"/"atob"/"ab" and "b_to_a"/"btoa"/"ba".
func ParseDirection(input string) (Direction, error) {
	switch strings.ReplaceAll(strings.ToLower(strings.TrimSpace(input)), "_", "") {
	case "atob", "ab":
		return AtoB, nil
	case "btoa", "ba":
		return BtoA, nil
	default:
		return 0, fmt.Errorf("invalid direction: %s", input)
	}
}

// SwapRequest asks to sell AmountIn of the input asset.
type SwapRequest struct {
	Trader       common.Address
	AmountIn     uint64
	MinAmountOut uint64
	Direction    Direction
}

// SwapQuote is the full fee split and output of a swap against current reserves.
type SwapQuote struct {
	AmountIn        uint64 `json:"amount_in"`
	ProtocolFee     uint64 `json:"protocol_fee"`
	AmountInToPool  uint64 `json:"amount_in_to_pool"`
	LPFeeBps        uint64 `json:"lp_fee_bps"`
	AmountInWithFee uint64 `json:"amount_in_with_fee"`
	AmountOut       uint64 `json:"amount_out"`
	ReserveIn       uint64 `json:"reserve_in"`
	ReserveOut      uint64 `json:"reserve_out"`
}

// QuoteSwap prices a swap without changing the pool.
func QuoteSwap(p Pool, amountIn uint64, dir Direction) (SwapQuote, error) {
	if amountIn == 0 {
		return SwapQuote{}, ErrInvalidAmount
	}
	reserveIn, reserveOut, err := p.reserves(dir)
	if err != nil {
		return SwapQuote{}, err
	}
	if reserveIn == 0 || reserveOut == 0 {
		return SwapQuote{}, ErrInsufficientLiquidity
	}

	q := SwapQuote{AmountIn: amountIn, ReserveIn: reserveIn, ReserveOut: reserveOut}

	if q.ProtocolFee, err = MulDiv(amountIn, uint64(p.ProtocolFeeBps), BpsDenominator); err != nil {
		return SwapQuote{}, fmt.Errorf("protocol fee: %w", err)
	}
	if q.AmountInToPool, err = Sub(amountIn, q.ProtocolFee); err != nil {
		return SwapQuote{}, fmt.Errorf("amount to pool: %w", err)
	}
	if q.LPFeeBps, err = Sub(uint64(p.FeeBps), uint64(p.ProtocolFeeBps)); err != nil {
		return SwapQuote{}, ErrInvalidFeeConfig
	}
	if q.AmountInWithFee, err = MulDiv(q.AmountInToPool, BpsDenominator-q.LPFeeBps, BpsDenominator); err != nil {
		return SwapQuote{}, fmt.Errorf("amount with fee: %w", err)
	}
	denominator, err := Add(reserveIn, q.AmountInWithFee)
	if err != nil {
		return SwapQuote{}, fmt.Errorf("swap denominator: %w", err)
	}
	if q.AmountOut, err = MulDiv(q.AmountInWithFee, reserveOut, denominator); err != nil {
		return SwapQuote{}, fmt.Errorf("amount out: %w", err)
	}
	return q, nil
}

// Swap sells AmountIn of one asset for the other under the constant-product
// rule. The protocol fee goes to the fee vault of the input asset; the LP
// fee stays in the input reserve.
func Swap(p Pool, req SwapRequest) (Outcome, error) {
	if err := p.requireActive(); err != nil {
		return Outcome{}, err
	}

	q, err := QuoteSwap(p, req.AmountIn, req.Direction)
	if err != nil {
		return Outcome{}, err
	}
	if q.AmountOut < req.MinAmountOut {
		return Outcome{}, ErrSlippageExceeded
	}
	if q.AmountOut >= q.ReserveOut {
		return Outcome{}, ErrInsufficientLiquidity
	}

	newReserveIn, err := Add(q.ReserveIn, q.AmountInToPool)
	if err != nil {
		return Outcome{}, fmt.Errorf("reserve in: %w", err)
	}
	newReserveOut, err := Sub(q.ReserveOut, q.AmountOut)
	if err != nil {
		return Outcome{}, fmt.Errorf("reserve out: %w", err)
	}

	next := p.next()
	assetIn, assetOut := p.AssetA, p.AssetB
	vaultIn, vaultOut, feeVault := p.Custody.VaultA, p.Custody.VaultB, p.Custody.FeeVaultA
	switch req.Direction {
	case AtoB:
		next.ReserveA, next.ReserveB = newReserveIn, newReserveOut
		if next.FeeVaultA, err = Add(p.FeeVaultA, q.ProtocolFee); err != nil {
			return Outcome{}, fmt.Errorf("fee vault a: %w", err)
		}
	case BtoA:
		next.ReserveB, next.ReserveA = newReserveIn, newReserveOut
		if next.FeeVaultB, err = Add(p.FeeVaultB, q.ProtocolFee); err != nil {
			return Outcome{}, fmt.Errorf("fee vault b: %w", err)
		}
		assetIn, assetOut = p.AssetB, p.AssetA
		vaultIn, vaultOut, feeVault = p.Custody.VaultB, p.Custody.VaultA, p.Custody.FeeVaultB
	}

	out := Outcome{
		Pool: next,
		Event: Event{
			Name: model.EventSwap,
			Data: model.SwapEventData{
				User:        req.Trader.Hex(),
				Pool:        p.ID.Hex(),
				Direction:   req.Direction.String(),
				AmountIn:    q.AmountIn,
				AmountOut:   q.AmountOut,
				ProtocolFee: q.ProtocolFee,
			},
		},
	}
	out.addTransfer(assetIn, req.Trader, vaultIn, q.AmountInToPool)
	out.addTransfer(assetIn, req.Trader, feeVault, q.ProtocolFee)
	out.addTransfer(assetOut, vaultOut, req.Trader, q.AmountOut)
	return out, nil
}

func (p Pool) reserves(dir Direction) (uint64, uint64, error) {
	switch dir {
	case AtoB:
		return p.ReserveA, p.ReserveB, nil
	case BtoA:
		return p.ReserveB, p.ReserveA, nil
	default:
		return 0, 0, fmt.Errorf("invalid direction: %s", dir)
	}
}
