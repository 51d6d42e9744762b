package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"poolLedger/internal/amm"
	"poolLedger/internal/model"
)

type balanceKey struct {
	Asset   common.Address
	Custody common.Address
}

type shareKey struct {
	Pool  common.Hash
	Owner common.Address
}

// MemoryStore keeps the whole ledger in memory. Operations on one pool are
// serialized by a per-pool mutex; balances are guarded by a separate mutex so
// different pools can run in parallel.
type MemoryStore struct {
	mu    sync.RWMutex
	pools map[common.Hash]amm.Pool
	locks map[common.Hash]*sync.Mutex

	bankMu   sync.Mutex
	balances map[balanceKey]uint64
	shares   map[shareKey]uint64

	// persist, when set, must durably record the post-commit state before
	// memory changes. A persist error aborts the commit.
	persist func(snapshotRecord) error
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		pools:    make(map[common.Hash]amm.Pool),
		locks:    make(map[common.Hash]*sync.Mutex),
		balances: make(map[balanceKey]uint64),
		shares:   make(map[shareKey]uint64),
	}
}

// changeSet is a staged mutation. Balances and shares hold final values.
type changeSet struct {
	pool     *amm.Pool
	balances map[balanceKey]uint64
	shares   map[shareKey]uint64
}

// commit persists and then publishes cs. Callers hold bankMu.
func (s *MemoryStore) commit(cs changeSet) error {
	if s.persist != nil {
		if err := s.persist(s.snapshotWith(cs)); err != nil {
			return err
		}
	}

	for key, v := range cs.balances {
		s.balances[key] = v
	}
	for key, v := range cs.shares {
		if v == 0 {
			delete(s.shares, key)
			continue
		}
		s.shares[key] = v
	}
	if cs.pool != nil {
		s.mu.Lock()
		if _, ok := s.locks[cs.pool.ID]; !ok {
			s.locks[cs.pool.ID] = &sync.Mutex{}
		}
		s.pools[cs.pool.ID] = *cs.pool
		s.mu.Unlock()
	}
	return nil
}

// snapshotWith returns the ledger state as it will be once cs is committed.
// Callers hold bankMu.
func (s *MemoryStore) snapshotWith(cs changeSet) snapshotRecord {
	s.mu.RLock()
	pools := make([]amm.Pool, 0, len(s.pools)+1)
	for id, pool := range s.pools {
		if cs.pool != nil && cs.pool.ID == id {
			continue
		}
		pools = append(pools, pool)
	}
	s.mu.RUnlock()
	if cs.pool != nil {
		pools = append(pools, *cs.pool)
	}
	sortPools(pools)

	rec := snapshotRecord{
		Pools:    pools,
		Balances: make([]balanceRecord, 0, len(s.balances)+len(cs.balances)),
		Shares:   make([]shareRecord, 0, len(s.shares)+len(cs.shares)),
	}
	for key, amount := range s.balances {
		if _, staged := cs.balances[key]; staged {
			continue
		}
		rec.Balances = appendBalance(rec.Balances, key, amount)
	}
	for key, amount := range cs.balances {
		rec.Balances = appendBalance(rec.Balances, key, amount)
	}
	for key, amount := range s.shares {
		if _, staged := cs.shares[key]; staged {
			continue
		}
		rec.Shares = appendShare(rec.Shares, key, amount)
	}
	for key, amount := range cs.shares {
		rec.Shares = appendShare(rec.Shares, key, amount)
	}
	rec.sort()
	return rec
}

func (s *MemoryStore) CreatePool(ctx context.Context, out amm.Outcome, _ model.LedgerEvent) error {
	if err := amm.CheckInvariants(out.Pool); err != nil {
		return err
	}

	// Every mutation holds bankMu, so the existence check cannot race.
	s.bankMu.Lock()
	defer s.bankMu.Unlock()

	s.mu.RLock()
	_, exists := s.pools[out.Pool.ID]
	s.mu.RUnlock()
	if exists {
		return ErrPoolExists
	}
	pool := out.Pool
	return s.commit(changeSet{pool: &pool})
}

func (s *MemoryStore) UpdatePool(ctx context.Context, id common.Hash, fn func(tx Tx) error) error {
	s.mu.RLock()
	lock, ok := s.locks[id]
	s.mu.RUnlock()
	if !ok {
		return ErrPoolNotFound
	}

	lock.Lock()
	defer lock.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.RLock()
	pool := s.pools[id]
	s.mu.RUnlock()

	return fn(&memoryTx{store: s, pool: pool})
}

func (s *MemoryStore) Pool(ctx context.Context, id common.Hash) (amm.Pool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	pool, ok := s.pools[id]
	if !ok {
		return amm.Pool{}, ErrPoolNotFound
	}
	return pool, nil
}

func (s *MemoryStore) Pools(ctx context.Context) ([]amm.Pool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	pools := make([]amm.Pool, 0, len(s.pools))
	for _, pool := range s.pools {
		pools = append(pools, pool)
	}
	sortPools(pools)
	return pools, nil
}

func (s *MemoryStore) ShareBalance(ctx context.Context, id common.Hash, owner common.Address) (uint64, error) {
	s.bankMu.Lock()
	defer s.bankMu.Unlock()
	return s.shares[shareKey{Pool: id, Owner: owner}], nil
}

func (s *MemoryStore) Balance(ctx context.Context, asset, custody common.Address) (uint64, error) {
	s.bankMu.Lock()
	defer s.bankMu.Unlock()
	return s.balances[balanceKey{Asset: asset, Custody: custody}], nil
}

func (s *MemoryStore) Credit(ctx context.Context, asset, custody common.Address, amount uint64) error {
	s.bankMu.Lock()
	defer s.bankMu.Unlock()

	key := balanceKey{Asset: asset, Custody: custody}
	next, err := amm.Add(s.balances[key], amount)
	if err != nil {
		return fmt.Errorf("credit %s: %w", custody.Hex(), err)
	}
	return s.commit(changeSet{balances: map[balanceKey]uint64{key: next}})
}

func (s *MemoryStore) Close() {}

func sortPools(pools []amm.Pool) {
	sort.Slice(pools, func(i, j int) bool {
		return pools[i].ID.Hex() < pools[j].ID.Hex()
	})
}

type memoryTx struct {
	store   *MemoryStore
	pool    amm.Pool
	applied bool
}

func (t *memoryTx) Pool() amm.Pool {
	return t.pool
}

func (t *memoryTx) ShareBalance(owner common.Address) (uint64, error) {
	t.store.bankMu.Lock()
	defer t.store.bankMu.Unlock()
	return t.store.shares[shareKey{Pool: t.pool.ID, Owner: owner}], nil
}

func (t *memoryTx) Apply(out amm.Outcome, _ model.LedgerEvent) error {
	if t.applied {
		return fmt.Errorf("transaction already applied")
	}
	if err := CheckSuccessor(t.pool, out.Pool); err != nil {
		return err
	}

	s := t.store
	s.bankMu.Lock()
	defer s.bankMu.Unlock()

	balances := make(map[balanceKey]uint64)
	balance := func(key balanceKey) uint64 {
		if v, ok := balances[key]; ok {
			return v
		}
		return s.balances[key]
	}
	for _, tr := range out.Transfers {
		from := balanceKey{Asset: tr.Asset, Custody: tr.From}
		available := balance(from)
		if available < tr.Amount {
			return fmt.Errorf("%w: %s holds %d of %s, needs %d", ErrInsufficientFunds, tr.From.Hex(), available, tr.Asset.Hex(), tr.Amount)
		}
		balances[from] = available - tr.Amount

		to := balanceKey{Asset: tr.Asset, Custody: tr.To}
		credited, err := amm.Add(balance(to), tr.Amount)
		if err != nil {
			return fmt.Errorf("credit %s: %w", tr.To.Hex(), err)
		}
		balances[to] = credited
	}

	shares := make(map[shareKey]uint64)
	for _, change := range out.Shares {
		key := shareKey{Pool: out.Pool.ID, Owner: change.Owner}
		current, ok := shares[key]
		if !ok {
			current = s.shares[key]
		}
		next, err := applyShareChange(current, change)
		if err != nil {
			return err
		}
		shares[key] = next
	}

	pool := out.Pool
	if err := s.commit(changeSet{pool: &pool, balances: balances, shares: shares}); err != nil {
		return err
	}
	t.applied = true
	return nil
}

// CheckSuccessor verifies that next is a valid replacement for current: same
// pool, the following version, and a consistent state.
func CheckSuccessor(current, next amm.Pool) error {
	if next.ID != current.ID {
		return fmt.Errorf("outcome for pool %s applied to %s", next.ID.Hex(), current.ID.Hex())
	}
	if next.Version != current.Version+1 {
		return fmt.Errorf("%w: have %d, outcome %d", ErrVersionConflict, current.Version, next.Version)
	}
	return amm.CheckInvariants(next)
}

func applyShareChange(current uint64, change amm.ShareChange) (uint64, error) {
	if change.Burn {
		if change.Amount > current {
			return 0, fmt.Errorf("%w: %s holds %d shares, burning %d", amm.ErrInsufficientShareBalance, change.Owner.Hex(), current, change.Amount)
		}
		return current - change.Amount, nil
	}
	next, err := amm.Add(current, change.Amount)
	if err != nil {
		return 0, fmt.Errorf("mint shares: %w", err)
	}
	return next, nil
}
