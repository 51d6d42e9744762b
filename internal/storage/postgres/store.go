package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"poolLedger/internal/amm"
	"poolLedger/internal/model"
	"poolLedger/internal/storage"
)

// Store provides Postgres persistence for the ledger. Pool rows carry a
// version column; concurrent writers to the same pool lose with
// storage.ErrVersionConflict and are expected to retry.
type Store struct {
	pool *pgxpool.Pool
}

var (
	_ storage.Store       = (*Store)(nil)
	_ storage.EventReader = (*Store)(nil)
)

func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

const schema = `
CREATE TABLE IF NOT EXISTS pools (
	id                 TEXT PRIMARY KEY,
	asset_a            TEXT NOT NULL,
	asset_b            TEXT NOT NULL,
	vault_a            TEXT NOT NULL,
	vault_b            TEXT NOT NULL,
	fee_vault_a        TEXT NOT NULL,
	fee_vault_b        TEXT NOT NULL,
	reserve_a          NUMERIC(20,0) NOT NULL,
	reserve_b          NUMERIC(20,0) NOT NULL,
	share_supply       NUMERIC(20,0) NOT NULL,
	fee_bps            INTEGER NOT NULL,
	protocol_fee_bps   INTEGER NOT NULL,
	admin              TEXT NOT NULL,
	fee_balance_a      NUMERIC(20,0) NOT NULL,
	fee_balance_b      NUMERIC(20,0) NOT NULL,
	paused             BOOLEAN NOT NULL DEFAULT false,
	version            BIGINT NOT NULL,
	created_at         TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at         TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS balances (
	asset      TEXT NOT NULL,
	custody    TEXT NOT NULL,
	amount     NUMERIC(20,0) NOT NULL CHECK (amount >= 0 AND amount <= 18446744073709551615),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (asset, custody)
);

CREATE TABLE IF NOT EXISTS pool_shares (
	pool_id    TEXT NOT NULL REFERENCES pools (id),
	owner      TEXT NOT NULL,
	amount     NUMERIC(20,0) NOT NULL CHECK (amount >= 0 AND amount <= 18446744073709551615),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (pool_id, owner)
);

CREATE TABLE IF NOT EXISTS pool_events (
	pool_id    TEXT NOT NULL REFERENCES pools (id),
	version    BIGINT NOT NULL,
	event_name TEXT NOT NULL,
	ts         BIGINT NOT NULL,
	decoded    JSONB NOT NULL,
	PRIMARY KEY (pool_id, version)
);
`

// Migrate creates the ledger tables if they do not exist.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("migrate schema: %w", err)
	}
	return nil
}

func (s *Store) CreatePool(ctx context.Context, out amm.Outcome, event model.LedgerEvent) error {
	if err := amm.CheckInvariants(out.Pool); err != nil {
		return err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	p := out.Pool
	tag, err := tx.Exec(ctx, `
		INSERT INTO pools (
			id, asset_a, asset_b, vault_a, vault_b, fee_vault_a, fee_vault_b,
			reserve_a, reserve_b, share_supply, fee_bps, protocol_fee_bps, admin,
			fee_balance_a, fee_balance_b, paused, version
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8::numeric,$9::numeric,$10::numeric,$11,$12,$13,$14::numeric,$15::numeric,$16,$17)
		ON CONFLICT (id) DO NOTHING
	`,
		p.ID.Hex(),
		p.AssetA.Hex(),
		p.AssetB.Hex(),
		p.Custody.VaultA.Hex(),
		p.Custody.VaultB.Hex(),
		p.Custody.FeeVaultA.Hex(),
		p.Custody.FeeVaultB.Hex(),
		numeric(p.ReserveA),
		numeric(p.ReserveB),
		numeric(p.ShareSupply),
		int32(p.FeeBps),
		int32(p.ProtocolFeeBps),
		p.Admin.Hex(),
		numeric(p.FeeVaultA),
		numeric(p.FeeVaultB),
		p.Paused,
		int64(p.Version),
	)
	if err != nil {
		return fmt.Errorf("insert pool: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrPoolExists
	}
	if err := insertEvent(ctx, tx, event); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return translate(fmt.Errorf("commit: %w", err))
	}
	return nil
}

func (s *Store) UpdatePool(ctx context.Context, id common.Hash, fn func(tx storage.Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	current, err := loadPool(ctx, tx, id)
	if err != nil {
		return err
	}
	if err := fn(&poolTx{ctx: ctx, tx: tx, pool: current}); err != nil {
		return translate(err)
	}
	if err := tx.Commit(ctx); err != nil {
		return translate(fmt.Errorf("commit: %w", err))
	}
	return nil
}

func (s *Store) Pool(ctx context.Context, id common.Hash) (amm.Pool, error) {
	return loadPool(ctx, s.pool, id)
}

func (s *Store) Pools(ctx context.Context) ([]amm.Pool, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+poolColumns+` FROM pools ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query pools: %w", err)
	}
	defer rows.Close()

	var pools []amm.Pool
	for rows.Next() {
		pool, err := scanPool(rows)
		if err != nil {
			return nil, err
		}
		pools = append(pools, pool)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read pools: %w", err)
	}
	return pools, nil
}

func (s *Store) ShareBalance(ctx context.Context, id common.Hash, owner common.Address) (uint64, error) {
	return shareBalance(ctx, s.pool, id, owner)
}

func (s *Store) Balance(ctx context.Context, asset, custody common.Address) (uint64, error) {
	return queryAmount(ctx, s.pool,
		`SELECT amount::text FROM balances WHERE asset=$1 AND custody=$2`,
		asset.Hex(), custody.Hex())
}

func (s *Store) Credit(ctx context.Context, asset, custody common.Address, amount uint64) error {
	if err := credit(ctx, s.pool, asset, custody, amount); err != nil {
		return translate(err)
	}
	return nil
}

// Events returns the stored events of a pool ordered by version.
func (s *Store) Events(ctx context.Context, id common.Hash) ([]model.LedgerEventRecord, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT pool_id, version, event_name, ts, decoded
		FROM pool_events WHERE pool_id=$1 ORDER BY version
	`, id.Hex())
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var records []model.LedgerEventRecord
	for rows.Next() {
		var (
			rec     model.LedgerEventRecord
			version int64
			ts      int64
			decoded []byte
		)
		if err := rows.Scan(&rec.PoolID, &version, &rec.EventName, &ts, &decoded); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		rec.Version = uint64(version)
		rec.Timestamp = uint64(ts)
		rec.Decoded = json.RawMessage(decoded)
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read events: %w", err)
	}
	return records, nil
}

// querier is satisfied by both the pool and a transaction.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type poolTx struct {
	ctx     context.Context
	tx      pgx.Tx
	pool    amm.Pool
	applied bool
}

func (t *poolTx) Pool() amm.Pool {
	return t.pool
}

func (t *poolTx) ShareBalance(owner common.Address) (uint64, error) {
	return shareBalance(t.ctx, t.tx, t.pool.ID, owner)
}

func (t *poolTx) Apply(out amm.Outcome, event model.LedgerEvent) error {
	if t.applied {
		return fmt.Errorf("transaction already applied")
	}
	if err := storage.CheckSuccessor(t.pool, out.Pool); err != nil {
		return err
	}

	// The guarded pool write comes first so that concurrent writers to the
	// same pool block on the row and then see the version move.
	if err := updatePool(t.ctx, t.tx, t.pool.Version, out.Pool); err != nil {
		return err
	}
	for _, tr := range out.Transfers {
		if err := debit(t.ctx, t.tx, tr.Asset, tr.From, tr.Amount); err != nil {
			return err
		}
		if err := credit(t.ctx, t.tx, tr.Asset, tr.To, tr.Amount); err != nil {
			return err
		}
	}
	for _, change := range out.Shares {
		if err := applyShareChange(t.ctx, t.tx, out.Pool.ID, change); err != nil {
			return err
		}
	}
	if err := insertEvent(t.ctx, t.tx, event); err != nil {
		return err
	}
	t.applied = true
	return nil
}

const poolColumns = `
	id, asset_a, asset_b, vault_a, vault_b, fee_vault_a, fee_vault_b,
	reserve_a::text, reserve_b::text, share_supply::text, fee_bps, protocol_fee_bps, admin,
	fee_balance_a::text, fee_balance_b::text, paused, version`

func loadPool(ctx context.Context, q querier, id common.Hash) (amm.Pool, error) {
	row := q.QueryRow(ctx, `SELECT `+poolColumns+` FROM pools WHERE id=$1`, id.Hex())
	pool, err := scanPool(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return amm.Pool{}, storage.ErrPoolNotFound
		}
		return amm.Pool{}, err
	}
	return pool, nil
}

func scanPool(row pgx.Row) (amm.Pool, error) {
	var (
		id, assetA, assetB, vaultA, vaultB, feeVaultA, feeVaultB, admin string
		reserveA, reserveB, supply, feeBalanceA, feeBalanceB           string
		feeBps, protocolFeeBps                                          int32
		paused                                                          bool
		version                                                         int64
	)
	if err := row.Scan(
		&id, &assetA, &assetB, &vaultA, &vaultB, &feeVaultA, &feeVaultB,
		&reserveA, &reserveB, &supply, &feeBps, &protocolFeeBps, &admin,
		&feeBalanceA, &feeBalanceB, &paused, &version,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return amm.Pool{}, err
		}
		return amm.Pool{}, fmt.Errorf("scan pool: %w", err)
	}

	pool := amm.Pool{
		ID:     common.HexToHash(id),
		AssetA: common.HexToAddress(assetA),
		AssetB: common.HexToAddress(assetB),
		Custody: amm.Custody{
			VaultA:    common.HexToAddress(vaultA),
			VaultB:    common.HexToAddress(vaultB),
			FeeVaultA: common.HexToAddress(feeVaultA),
			FeeVaultB: common.HexToAddress(feeVaultB),
		},
		FeeBps:         uint16(feeBps),
		ProtocolFeeBps: uint16(protocolFeeBps),
		Admin:          common.HexToAddress(admin),
		Paused:         paused,
		Version:        uint64(version),
	}
	for _, f := range []struct {
		dst *uint64
		src string
	}{
		{&pool.ReserveA, reserveA},
		{&pool.ReserveB, reserveB},
		{&pool.ShareSupply, supply},
		{&pool.FeeVaultA, feeBalanceA},
		{&pool.FeeVaultB, feeBalanceB},
	} {
		v, err := parseNumeric(f.src)
		if err != nil {
			return amm.Pool{}, fmt.Errorf("pool %s: %w", id, err)
		}
		*f.dst = v
	}
	return pool, nil
}

func updatePool(ctx context.Context, q querier, oldVersion uint64, p amm.Pool) error {
	tag, err := q.Exec(ctx, `
		UPDATE pools SET
			reserve_a = $3::numeric,
			reserve_b = $4::numeric,
			share_supply = $5::numeric,
			fee_balance_a = $6::numeric,
			fee_balance_b = $7::numeric,
			paused = $8,
			version = $9,
			updated_at = now()
		WHERE id = $1 AND version = $2
	`,
		p.ID.Hex(),
		int64(oldVersion),
		numeric(p.ReserveA),
		numeric(p.ReserveB),
		numeric(p.ShareSupply),
		numeric(p.FeeVaultA),
		numeric(p.FeeVaultB),
		p.Paused,
		int64(p.Version),
	)
	if err != nil {
		return fmt.Errorf("update pool: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: pool %s moved past version %d", storage.ErrVersionConflict, p.ID.Hex(), oldVersion)
	}
	return nil
}

func debit(ctx context.Context, q querier, asset, custody common.Address, amount uint64) error {
	tag, err := q.Exec(ctx, `
		UPDATE balances SET amount = amount - $3::numeric, updated_at = now()
		WHERE asset = $1 AND custody = $2 AND amount >= $3::numeric
	`, asset.Hex(), custody.Hex(), numeric(amount))
	if err != nil {
		return fmt.Errorf("debit balance: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s needs %d of %s", storage.ErrInsufficientFunds, custody.Hex(), amount, asset.Hex())
	}
	return nil
}

func credit(ctx context.Context, q querier, asset, custody common.Address, amount uint64) error {
	_, err := q.Exec(ctx, `
		INSERT INTO balances (asset, custody, amount, updated_at)
		VALUES ($1, $2, $3::numeric, now())
		ON CONFLICT (asset, custody)
		DO UPDATE SET amount = balances.amount + EXCLUDED.amount, updated_at = now()
	`, asset.Hex(), custody.Hex(), numeric(amount))
	if err != nil {
		return fmt.Errorf("credit balance: %w", err)
	}
	return nil
}

func applyShareChange(ctx context.Context, q querier, id common.Hash, change amm.ShareChange) error {
	if !change.Burn {
		_, err := q.Exec(ctx, `
			INSERT INTO pool_shares (pool_id, owner, amount, updated_at)
			VALUES ($1, $2, $3::numeric, now())
			ON CONFLICT (pool_id, owner)
			DO UPDATE SET amount = pool_shares.amount + EXCLUDED.amount, updated_at = now()
		`, id.Hex(), change.Owner.Hex(), numeric(change.Amount))
		if err != nil {
			return fmt.Errorf("mint shares: %w", err)
		}
		return nil
	}

	tag, err := q.Exec(ctx, `
		UPDATE pool_shares SET amount = amount - $3::numeric, updated_at = now()
		WHERE pool_id = $1 AND owner = $2 AND amount >= $3::numeric
	`, id.Hex(), change.Owner.Hex(), numeric(change.Amount))
	if err != nil {
		return fmt.Errorf("burn shares: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s burning %d", amm.ErrInsufficientShareBalance, change.Owner.Hex(), change.Amount)
	}
	return nil
}

func shareBalance(ctx context.Context, q querier, id common.Hash, owner common.Address) (uint64, error) {
	return queryAmount(ctx, q,
		`SELECT amount::text FROM pool_shares WHERE pool_id=$1 AND owner=$2`,
		id.Hex(), owner.Hex())
}

func insertEvent(ctx context.Context, q querier, event model.LedgerEvent) error {
	decoded, err := json.Marshal(event.Decoded)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	_, err = q.Exec(ctx, `
		INSERT INTO pool_events (pool_id, version, event_name, ts, decoded)
		VALUES ($1, $2, $3, $4, $5)
	`, event.PoolID, int64(event.Version), event.EventName, int64(event.Timestamp), decoded)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

func queryAmount(ctx context.Context, q querier, sql string, args ...any) (uint64, error) {
	var text string
	if err := q.QueryRow(ctx, sql, args...).Scan(&text); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil
		}
		return 0, err
	}
	return parseNumeric(text)
}

func numeric(v uint64) string {
	return strconv.FormatUint(v, 10)
}

func parseNumeric(text string) (uint64, error) {
	v, err := strconv.ParseUint(text, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse numeric %q: %w", text, err)
	}
	return v, nil
}

// Postgres error codes that mean a concurrent writer won.
const (
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
	codeCheckViolation       = "23514"
)

// translate maps concurrency failures to storage.ErrVersionConflict so the
// ledger retries them, and balance check violations to overflow.
func translate(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case codeSerializationFailure, codeDeadlockDetected:
		return fmt.Errorf("%w: %v", storage.ErrVersionConflict, err)
	case codeCheckViolation:
		return fmt.Errorf("%w: %v", amm.ErrArithmeticOverflow, err)
	}
	return err
}
