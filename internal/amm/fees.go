package amm

import (
	"github.com/ethereum/go-ethereum/common"

	"poolLedger/internal/model"
)

// FeeWithdrawRequest asks to move accrued protocol fees to the admin.
type FeeWithdrawRequest struct {
	Caller     common.Address
	RequestedA uint64
	RequestedB uint64
}

// WithdrawProtocolFees pays accrued protocol fees out to the pool admin.
// The caller must be the admin; this is checked before anything else.
func WithdrawProtocolFees(p Pool, req FeeWithdrawRequest) (Outcome, error) {
	if req.Caller != p.Admin {
		return Outcome{}, ErrUnauthorized
	}
	if req.RequestedA == 0 && req.RequestedB == 0 {
		return Outcome{}, ErrInvalidAmount
	}
	if req.RequestedA > p.FeeVaultA || req.RequestedB > p.FeeVaultB {
		return Outcome{}, ErrInsufficientFeeBalance
	}

	next := p.next()
	next.FeeVaultA = p.FeeVaultA - req.RequestedA
	next.FeeVaultB = p.FeeVaultB - req.RequestedB

	out := Outcome{
		Pool: next,
		Event: Event{
			Name: model.EventWithdrawProtocolFees,
			Data: model.ProtocolFeeWithdrawEventData{
				Admin:   req.Caller.Hex(),
				Pool:    p.ID.Hex(),
				AmountA: req.RequestedA,
				AmountB: req.RequestedB,
			},
		},
	}
	out.addTransfer(p.AssetA, p.Custody.FeeVaultA, req.Caller, req.RequestedA)
	out.addTransfer(p.AssetB, p.Custody.FeeVaultB, req.Caller, req.RequestedB)
	return out, nil
}
