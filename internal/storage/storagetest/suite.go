// Package storagetest holds a conformance suite shared by every storage.Store
// implementation.
package storagetest

import (
	"context"
	"crypto/rand"
	"errors"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"poolLedger/internal/amm"
	"poolLedger/internal/model"
	"poolLedger/internal/storage"
)

// Factory returns an empty (or at least isolated) store for one subtest.
type Factory func(t *testing.T) storage.Store

type fixture struct {
	assetA common.Address
	assetB common.Address
	admin  common.Address
	alice  common.Address
	bob    common.Address
}

// Addresses are random so suites can share a long-lived database.
func newFixture(t *testing.T) fixture {
	t.Helper()
	return fixture{
		assetA: randomAddress(t),
		assetB: randomAddress(t),
		admin:  randomAddress(t),
		alice:  randomAddress(t),
		bob:    randomAddress(t),
	}
}

func randomAddress(t *testing.T) common.Address {
	t.Helper()
	var b [common.AddressLength]byte
	_, err := rand.Read(b[:])
	require.NoError(t, err)
	return common.BytesToAddress(b[:])
}

// EventFor wraps an outcome's event in a ledger envelope.
func EventFor(out amm.Outcome) model.LedgerEvent {
	return model.LedgerEvent{
		PoolID:    out.Pool.ID.Hex(),
		Version:   out.Pool.Version,
		EventName: out.Event.Name,
		Decoded:   out.Event.Data,
	}
}

func createPool(t *testing.T, ctx context.Context, store storage.Store, f fixture) amm.Pool {
	t.Helper()
	out, err := amm.Initialize(amm.InitParams{AssetA: f.assetA, AssetB: f.assetB, FeeBps: 30, ProtocolFeeBps: 5, Admin: f.admin})
	require.NoError(t, err)
	require.NoError(t, store.CreatePool(ctx, out, EventFor(out)))
	return out.Pool
}

func deposit(ctx context.Context, store storage.Store, id common.Hash, req amm.DepositRequest) error {
	return store.UpdatePool(ctx, id, func(tx storage.Tx) error {
		out, err := amm.Deposit(tx.Pool(), req)
		if err != nil {
			return err
		}
		return tx.Apply(out, EventFor(out))
	})
}

func swap(ctx context.Context, store storage.Store, id common.Hash, req amm.SwapRequest) error {
	return store.UpdatePool(ctx, id, func(tx storage.Tx) error {
		out, err := amm.Swap(tx.Pool(), req)
		if err != nil {
			return err
		}
		return tx.Apply(out, EventFor(out))
	})
}

func seed(t *testing.T, ctx context.Context, store storage.Store, f fixture) amm.Pool {
	t.Helper()
	pool := createPool(t, ctx, store, f)
	require.NoError(t, store.Credit(ctx, f.assetA, f.alice, 1_000_000))
	require.NoError(t, store.Credit(ctx, f.assetB, f.alice, 2_000_000))
	require.NoError(t, deposit(ctx, store, pool.ID, amm.DepositRequest{
		Depositor: f.alice, AmountADesired: 1_000_000, AmountBDesired: 2_000_000,
	}))
	pool, err := store.Pool(ctx, pool.ID)
	require.NoError(t, err)
	return pool
}

func requireBalance(t *testing.T, ctx context.Context, store storage.Store, asset, custody common.Address, want uint64) {
	t.Helper()
	got, err := store.Balance(ctx, asset, custody)
	require.NoError(t, err)
	require.Equal(t, want, got, "balance of %s in %s", custody.Hex(), asset.Hex())
}

// Run exercises newStore against the Store contract.
func Run(t *testing.T, newStore Factory) {
	t.Run("create and load", func(t *testing.T) {
		ctx := context.Background()
		store := newStore(t)
		f := newFixture(t)

		pool := createPool(t, ctx, store, f)
		got, err := store.Pool(ctx, pool.ID)
		require.NoError(t, err)
		require.Equal(t, pool, got)

		out, err := amm.Initialize(amm.InitParams{AssetA: f.assetA, AssetB: f.assetB, FeeBps: 30, Admin: f.admin})
		require.NoError(t, err)
		require.ErrorIs(t, store.CreatePool(ctx, out, EventFor(out)), storage.ErrPoolExists)

		pools, err := store.Pools(ctx)
		require.NoError(t, err)
		require.Contains(t, pools, pool)
	})

	t.Run("unknown pool", func(t *testing.T) {
		ctx := context.Background()
		store := newStore(t)
		id := amm.PoolID(randomAddress(t), randomAddress(t))

		_, err := store.Pool(ctx, id)
		require.ErrorIs(t, err, storage.ErrPoolNotFound)
		err = store.UpdatePool(ctx, id, func(tx storage.Tx) error { return nil })
		require.ErrorIs(t, err, storage.ErrPoolNotFound)
	})

	t.Run("deposit moves funds and shares", func(t *testing.T) {
		ctx := context.Background()
		store := newStore(t)
		f := newFixture(t)

		pool := seed(t, ctx, store, f)
		require.Equal(t, uint64(1_000_000), pool.ReserveA)
		require.Equal(t, uint64(2_000_000), pool.ReserveB)
		require.Equal(t, uint64(1_414_213), pool.ShareSupply)
		require.Equal(t, uint64(2), pool.Version)

		requireBalance(t, ctx, store, f.assetA, f.alice, 0)
		requireBalance(t, ctx, store, f.assetB, f.alice, 0)
		requireBalance(t, ctx, store, f.assetA, pool.Custody.VaultA, 1_000_000)
		requireBalance(t, ctx, store, f.assetB, pool.Custody.VaultB, 2_000_000)

		shares, err := store.ShareBalance(ctx, pool.ID, f.alice)
		require.NoError(t, err)
		require.Equal(t, uint64(1_414_213), shares)
	})

	t.Run("swap routes protocol fee", func(t *testing.T) {
		ctx := context.Background()
		store := newStore(t)
		f := newFixture(t)

		pool := seed(t, ctx, store, f)
		require.NoError(t, store.Credit(ctx, f.assetA, f.bob, 100_000))
		require.NoError(t, swap(ctx, store, pool.ID, amm.SwapRequest{Trader: f.bob, AmountIn: 100_000, Direction: amm.AtoB}))

		pool, err := store.Pool(ctx, pool.ID)
		require.NoError(t, err)
		require.Equal(t, uint64(1_099_950), pool.ReserveA)
		require.Equal(t, uint64(1_818_678), pool.ReserveB)
		require.Equal(t, uint64(50), pool.FeeVaultA)

		requireBalance(t, ctx, store, f.assetA, f.bob, 0)
		requireBalance(t, ctx, store, f.assetB, f.bob, 181_322)
		requireBalance(t, ctx, store, f.assetA, pool.Custody.VaultA, 1_099_950)
		requireBalance(t, ctx, store, f.assetA, pool.Custody.FeeVaultA, 50)
		requireBalance(t, ctx, store, f.assetB, pool.Custody.VaultB, 1_818_678)
	})

	t.Run("insufficient funds rolls back", func(t *testing.T) {
		ctx := context.Background()
		store := newStore(t)
		f := newFixture(t)

		pool := createPool(t, ctx, store, f)
		require.NoError(t, store.Credit(ctx, f.assetA, f.alice, 1_000_000))
		require.NoError(t, store.Credit(ctx, f.assetB, f.alice, 10))

		err := deposit(ctx, store, pool.ID, amm.DepositRequest{
			Depositor: f.alice, AmountADesired: 1_000_000, AmountBDesired: 2_000_000,
		})
		require.ErrorIs(t, err, storage.ErrInsufficientFunds)

		got, err := store.Pool(ctx, pool.ID)
		require.NoError(t, err)
		require.Equal(t, pool, got)
		requireBalance(t, ctx, store, f.assetA, f.alice, 1_000_000)
		requireBalance(t, ctx, store, f.assetB, f.alice, 10)
		requireBalance(t, ctx, store, f.assetA, pool.Custody.VaultA, 0)
		shares, err := store.ShareBalance(ctx, pool.ID, f.alice)
		require.NoError(t, err)
		require.Zero(t, shares)
	})

	t.Run("stale outcome is a version conflict", func(t *testing.T) {
		ctx := context.Background()
		store := newStore(t)
		f := newFixture(t)

		stale := seed(t, ctx, store, f)
		require.NoError(t, store.Credit(ctx, f.assetA, f.bob, 2_000))
		require.NoError(t, swap(ctx, store, stale.ID, amm.SwapRequest{Trader: f.bob, AmountIn: 1_000, Direction: amm.AtoB}))

		out, err := amm.Swap(stale, amm.SwapRequest{Trader: f.bob, AmountIn: 1_000, Direction: amm.AtoB})
		require.NoError(t, err)
		err = store.UpdatePool(ctx, stale.ID, func(tx storage.Tx) error {
			return tx.Apply(out, EventFor(out))
		})
		require.ErrorIs(t, err, storage.ErrVersionConflict)
		requireBalance(t, ctx, store, f.assetA, f.bob, 1_000)
	})

	t.Run("withdraw burns shares", func(t *testing.T) {
		ctx := context.Background()
		store := newStore(t)
		f := newFixture(t)

		pool := seed(t, ctx, store, f)
		err := store.UpdatePool(ctx, pool.ID, func(tx storage.Tx) error {
			held, err := tx.ShareBalance(f.alice)
			if err != nil {
				return err
			}
			out, err := amm.Withdraw(tx.Pool(), held, amm.WithdrawRequest{Owner: f.alice, ShareAmount: held})
			if err != nil {
				return err
			}
			return tx.Apply(out, EventFor(out))
		})
		require.NoError(t, err)

		pool, err = store.Pool(ctx, pool.ID)
		require.NoError(t, err)
		require.Zero(t, pool.ShareSupply)
		require.Zero(t, pool.ReserveA)
		require.Zero(t, pool.ReserveB)
		requireBalance(t, ctx, store, f.assetA, f.alice, 1_000_000)
		requireBalance(t, ctx, store, f.assetB, f.alice, 2_000_000)
		shares, err := store.ShareBalance(ctx, pool.ID, f.alice)
		require.NoError(t, err)
		require.Zero(t, shares)
	})

	t.Run("concurrent swaps serialize", func(t *testing.T) {
		ctx := context.Background()
		store := newStore(t)
		f := newFixture(t)

		pool := seed(t, ctx, store, f)
		const traders = 8
		addrs := make([]common.Address, traders)
		for i := range addrs {
			addrs[i] = randomAddress(t)
			require.NoError(t, store.Credit(ctx, f.assetA, addrs[i], 10_000))
		}

		var wg sync.WaitGroup
		errs := make([]error, traders)
		for i, trader := range addrs {
			wg.Add(1)
			go func(i int, trader common.Address) {
				defer wg.Done()
				for {
					err := swap(ctx, store, pool.ID, amm.SwapRequest{Trader: trader, AmountIn: 10_000, Direction: amm.AtoB})
					if errors.Is(err, storage.ErrVersionConflict) {
						continue
					}
					errs[i] = err
					return
				}
			}(i, trader)
		}
		wg.Wait()
		for _, err := range errs {
			require.NoError(t, err)
		}

		pool, err := store.Pool(ctx, pool.ID)
		require.NoError(t, err)
		require.Equal(t, uint64(2+traders), pool.Version)

		vaultA, err := store.Balance(ctx, f.assetA, pool.Custody.VaultA)
		require.NoError(t, err)
		feeA, err := store.Balance(ctx, f.assetA, pool.Custody.FeeVaultA)
		require.NoError(t, err)
		require.Equal(t, pool.ReserveA, vaultA)
		require.Equal(t, pool.FeeVaultA, feeA)
		require.Equal(t, uint64(1_000_000+traders*10_000), vaultA+feeA)

		vaultB, err := store.Balance(ctx, f.assetB, pool.Custody.VaultB)
		require.NoError(t, err)
		var paid uint64
		for _, trader := range addrs {
			got, err := store.Balance(ctx, f.assetB, trader)
			require.NoError(t, err)
			paid += got
		}
		require.Equal(t, pool.ReserveB, vaultB)
		require.Equal(t, uint64(2_000_000), vaultB+paid)
	})
}
