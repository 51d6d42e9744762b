package storage

import (
	"context"
	"errors"

	"github.com/ethereum/go-ethereum/common"

	"poolLedger/internal/amm"
	"poolLedger/internal/model"
)

var (
	ErrPoolNotFound      = errors.New("pool not found")
	ErrPoolExists        = errors.New("pool already exists")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrVersionConflict   = errors.New("pool version conflict")
)

// Tx is one atomic unit of work against a single pool.
type Tx interface {
	// Pool returns the pool state as of the start of the transaction.
	Pool() amm.Pool
	ShareBalance(owner common.Address) (uint64, error)
	// Apply commits the outcome's transfers, share changes and pool state
	// together with the event, or none of them.
	Apply(out amm.Outcome, event model.LedgerEvent) error
}

// Store persists pools, custody balances and share balances.
type Store interface {
	CreatePool(ctx context.Context, out amm.Outcome, event model.LedgerEvent) error
	// UpdatePool runs fn inside a transaction on the pool. Operations on the
	// same pool are serialized; fn may be re-run by the caller on ErrVersionConflict.
	UpdatePool(ctx context.Context, id common.Hash, fn func(tx Tx) error) error
	Pool(ctx context.Context, id common.Hash) (amm.Pool, error)
	Pools(ctx context.Context) ([]amm.Pool, error)
	ShareBalance(ctx context.Context, id common.Hash, owner common.Address) (uint64, error)
	Balance(ctx context.Context, asset, custody common.Address) (uint64, error)
	// Credit adds funds to a custody account from outside the ledger.
	Credit(ctx context.Context, asset, custody common.Address, amount uint64) error
	Close()
}

// Journal is a sink for committed ledger events.
type Journal interface {
	PutEvents(events []model.LedgerEvent) error
}

// EventReader reads back the committed events of a pool, oldest first.
type EventReader interface {
	Events(ctx context.Context, id common.Hash) ([]model.LedgerEventRecord, error)
}
