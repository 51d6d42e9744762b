package postgres

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"os"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"poolLedger/internal/amm"
	"poolLedger/internal/model"
	"poolLedger/internal/storage"
	"poolLedger/internal/storage/storagetest"
)

func TestStore(t *testing.T) {
	dsn := os.Getenv("AMM_TEST_PG_DSN")
	if dsn == "" {
		t.Skip("AMM_TEST_PG_DSN not set")
	}

	storagetest.Run(t, func(t *testing.T) storage.Store {
		ctx := context.Background()
		store, err := NewStore(ctx, dsn)
		require.NoError(t, err)
		t.Cleanup(store.Close)
		require.NoError(t, store.Migrate(ctx))
		return store
	})
}

func TestNumericRoundTrip(t *testing.T) {
	for _, v := range []uint64{0, 1, 1_414_213, ^uint64(0)} {
		got, err := parseNumeric(numeric(v))
		require.NoError(t, err)
		require.Equal(t, v, got)
	}
	_, err := parseNumeric("18446744073709551616")
	require.Error(t, err)
}

func TestNewStoreRequiresDSN(t *testing.T) {
	_, err := NewStore(context.Background(), "")
	require.Error(t, err)
}

func TestStoreEvents(t *testing.T) {
	dsn := os.Getenv("AMM_TEST_PG_DSN")
	if dsn == "" {
		t.Skip("AMM_TEST_PG_DSN not set")
	}
	ctx := context.Background()
	store, err := NewStore(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(store.Close)
	require.NoError(t, store.Migrate(ctx))

	var seed [common.AddressLength]byte
	_, err = rand.Read(seed[:])
	require.NoError(t, err)
	assetA := common.BytesToAddress(seed[:])
	other := seed
	other[common.AddressLength-1] ^= 0xff
	assetB := common.BytesToAddress(other[:])
	admin := common.HexToAddress("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")

	created, err := amm.Initialize(amm.InitParams{AssetA: assetA, AssetB: assetB, FeeBps: 30, ProtocolFeeBps: 5, Admin: admin})
	require.NoError(t, err)
	require.NoError(t, store.CreatePool(ctx, created, storagetest.EventFor(created)))
	err = store.UpdatePool(ctx, created.Pool.ID, func(tx storage.Tx) error {
		out, err := amm.SetPaused(tx.Pool(), admin, true)
		if err != nil {
			return err
		}
		return tx.Apply(out, storagetest.EventFor(out))
	})
	require.NoError(t, err)

	records, err := store.Events(ctx, created.Pool.ID)
	require.NoError(t, err)
	require.Len(t, records, 2)
	require.Equal(t, model.EventInitialize, records[0].EventName)
	require.Equal(t, model.EventPause, records[1].EventName)
	require.Equal(t, uint64(2), records[1].Version)

	var pause model.PauseEventData
	require.NoError(t, json.Unmarshal(records[1].Decoded, &pause))
	require.True(t, pause.Paused)
}
