package amm

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"poolLedger/internal/model"
)

// DepositRequest asks to add liquidity. The pool never takes more than the
// desired amount of either asset.
type DepositRequest struct {
	Depositor      common.Address
	AmountADesired uint64
	AmountBDesired uint64
	MinShareOut    uint64
}

// WithdrawRequest asks to burn shares for a proportional slice of reserves.
type WithdrawRequest struct {
	Owner       common.Address
	ShareAmount uint64
	MinAOut     uint64
	MinBOut     uint64
}

// DepositQuote is the computed result of a deposit before it is applied.
type DepositQuote struct {
	AmountA      uint64
	AmountB      uint64
	SharesMinted uint64
}

// QuoteDeposit computes the actual deposit amounts and minted shares.
func QuoteDeposit(p Pool, amountADesired, amountBDesired uint64) (DepositQuote, error) {
	if amountADesired == 0 && amountBDesired == 0 {
		return DepositQuote{}, ErrInvalidAmount
	}

	if p.ShareSupply == 0 {
		shares := FloorSqrt(amountADesired, amountBDesired)
		if shares == 0 {
			return DepositQuote{}, ErrInsufficientInitialLiquidity
		}
		return DepositQuote{AmountA: amountADesired, AmountB: amountBDesired, SharesMinted: shares}, nil
	}

	actualA, actualB := amountADesired, uint64(0)
	idealB, err := MulDiv(amountADesired, p.ReserveB, p.ReserveA)
	if err != nil {
		return DepositQuote{}, fmt.Errorf("ideal b: %w", err)
	}
	if idealB <= amountBDesired {
		actualB = idealB
	} else {
		idealA, err := MulDiv(amountBDesired, p.ReserveA, p.ReserveB)
		if err != nil {
			return DepositQuote{}, fmt.Errorf("ideal a: %w", err)
		}
		actualA, actualB = idealA, amountBDesired
	}
	if actualA == 0 && actualB == 0 {
		return DepositQuote{}, ErrInvalidAmount
	}

	sharesA, err := MulDiv(actualA, p.ShareSupply, p.ReserveA)
	if err != nil {
		return DepositQuote{}, fmt.Errorf("shares from a: %w", err)
	}
	sharesB, err := MulDiv(actualB, p.ShareSupply, p.ReserveB)
	if err != nil {
		return DepositQuote{}, fmt.Errorf("shares from b: %w", err)
	}

	return DepositQuote{AmountA: actualA, AmountB: actualB, SharesMinted: min(sharesA, sharesB)}, nil
}

// Deposit adds liquidity and mints shares to the depositor.
func Deposit(p Pool, req DepositRequest) (Outcome, error) {
	if err := p.requireActive(); err != nil {
		return Outcome{}, err
	}

	quote, err := QuoteDeposit(p, req.AmountADesired, req.AmountBDesired)
	if err != nil {
		return Outcome{}, err
	}
	if quote.SharesMinted < req.MinShareOut {
		return Outcome{}, ErrSlippageExceeded
	}

	next := p.next()
	if next.ReserveA, err = Add(p.ReserveA, quote.AmountA); err != nil {
		return Outcome{}, fmt.Errorf("reserve a: %w", err)
	}
	if next.ReserveB, err = Add(p.ReserveB, quote.AmountB); err != nil {
		return Outcome{}, fmt.Errorf("reserve b: %w", err)
	}
	if next.ShareSupply, err = Add(p.ShareSupply, quote.SharesMinted); err != nil {
		return Outcome{}, fmt.Errorf("share supply: %w", err)
	}

	out := Outcome{
		Pool:   next,
		Shares: []ShareChange{{Owner: req.Depositor, Amount: quote.SharesMinted}},
		Event: Event{
			Name: model.EventDeposit,
			Data: model.DepositEventData{
				User:         req.Depositor.Hex(),
				Pool:         p.ID.Hex(),
				AmountAIn:    quote.AmountA,
				AmountBIn:    quote.AmountB,
				SharesMinted: quote.SharesMinted,
			},
		},
	}
	out.addTransfer(p.AssetA, req.Depositor, p.Custody.VaultA, quote.AmountA)
	out.addTransfer(p.AssetB, req.Depositor, p.Custody.VaultB, quote.AmountB)
	return out, nil
}

// Withdraw burns shares and returns the proportional reserves. holderBalance
// is the owner's current share balance.
func Withdraw(p Pool, holderBalance uint64, req WithdrawRequest) (Outcome, error) {
	if req.ShareAmount == 0 {
		return Outcome{}, ErrInvalidAmount
	}
	if req.ShareAmount > holderBalance {
		return Outcome{}, ErrInsufficientShareBalance
	}
	if req.ShareAmount > p.ShareSupply {
		return Outcome{}, fmt.Errorf("%w: %d shares over supply %d", ErrInvalidPoolState, req.ShareAmount, p.ShareSupply)
	}

	amountA, err := MulDiv(req.ShareAmount, p.ReserveA, p.ShareSupply)
	if err != nil {
		return Outcome{}, fmt.Errorf("amount a: %w", err)
	}
	amountB, err := MulDiv(req.ShareAmount, p.ReserveB, p.ShareSupply)
	if err != nil {
		return Outcome{}, fmt.Errorf("amount b: %w", err)
	}
	if amountA < req.MinAOut || amountB < req.MinBOut {
		return Outcome{}, ErrSlippageExceeded
	}

	next := p.next()
	if next.ReserveA, err = Sub(p.ReserveA, amountA); err != nil {
		return Outcome{}, fmt.Errorf("reserve a: %w", err)
	}
	if next.ReserveB, err = Sub(p.ReserveB, amountB); err != nil {
		return Outcome{}, fmt.Errorf("reserve b: %w", err)
	}
	if next.ShareSupply, err = Sub(p.ShareSupply, req.ShareAmount); err != nil {
		return Outcome{}, fmt.Errorf("share supply: %w", err)
	}

	out := Outcome{
		Pool:   next,
		Shares: []ShareChange{{Owner: req.Owner, Amount: req.ShareAmount, Burn: true}},
		Event: Event{
			Name: model.EventWithdraw,
			Data: model.WithdrawEventData{
				User:         req.Owner.Hex(),
				Pool:         p.ID.Hex(),
				SharesBurned: req.ShareAmount,
				AmountAOut:   amountA,
				AmountBOut:   amountB,
			},
		},
	}
	out.addTransfer(p.AssetA, p.Custody.VaultA, req.Owner, amountA)
	out.addTransfer(p.AssetB, p.Custody.VaultB, req.Owner, amountB)
	return out, nil
}
