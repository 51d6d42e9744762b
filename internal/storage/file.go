package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"poolLedger/internal/amm"
)

// FileStore is a MemoryStore persisted to a local JSON snapshot. Every
// mutation writes the snapshot it would produce first and only then changes
// memory, so a failed write leaves the ledger untouched.
type FileStore struct {
	*MemoryStore

	path string
}

type snapshotRecord struct {
	Pools     []amm.Pool      `json:"pools"`
	Balances  []balanceRecord `json:"balances"`
	Shares    []shareRecord   `json:"shares"`
	UpdatedAt string          `json:"updated_at"`
}

type balanceRecord struct {
	Asset   common.Address `json:"asset"`
	Custody common.Address `json:"custody"`
	Amount  uint64         `json:"amount"`
}

type shareRecord struct {
	Pool   common.Hash    `json:"pool"`
	Owner  common.Address `json:"owner"`
	Amount uint64         `json:"amount"`
}

func appendBalance(records []balanceRecord, key balanceKey, amount uint64) []balanceRecord {
	if amount == 0 {
		return records
	}
	return append(records, balanceRecord{Asset: key.Asset, Custody: key.Custody, Amount: amount})
}

func appendShare(records []shareRecord, key shareKey, amount uint64) []shareRecord {
	if amount == 0 {
		return records
	}
	return append(records, shareRecord{Pool: key.Pool, Owner: key.Owner, Amount: amount})
}

func (r *snapshotRecord) sort() {
	sort.Slice(r.Balances, func(i, j int) bool {
		if r.Balances[i].Asset != r.Balances[j].Asset {
			return r.Balances[i].Asset.Hex() < r.Balances[j].Asset.Hex()
		}
		return r.Balances[i].Custody.Hex() < r.Balances[j].Custody.Hex()
	})
	sort.Slice(r.Shares, func(i, j int) bool {
		if r.Shares[i].Pool != r.Shares[j].Pool {
			return r.Shares[i].Pool.Hex() < r.Shares[j].Pool.Hex()
		}
		return r.Shares[i].Owner.Hex() < r.Shares[j].Owner.Hex()
	})
}

// OpenFileStore loads the snapshot at path. A missing file yields an empty ledger.
func OpenFileStore(path string) (*FileStore, error) {
	if path == "" {
		return nil, fmt.Errorf("state file path is required")
	}
	mem := NewMemoryStore()

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read state: %w", err)
	}
	if err == nil {
		var rec snapshotRecord
		if err := json.Unmarshal(data, &rec); err != nil {
			return nil, fmt.Errorf("parse state: %w", err)
		}
		for _, pool := range rec.Pools {
			if err := amm.CheckInvariants(pool); err != nil {
				return nil, fmt.Errorf("load pool %s: %w", pool.ID.Hex(), err)
			}
			mem.pools[pool.ID] = pool
			mem.locks[pool.ID] = &sync.Mutex{}
		}
		for _, b := range rec.Balances {
			mem.balances[balanceKey{Asset: b.Asset, Custody: b.Custody}] = b.Amount
		}
		for _, sh := range rec.Shares {
			mem.shares[shareKey{Pool: sh.Pool, Owner: sh.Owner}] = sh.Amount
		}
	}

	s := &FileStore{MemoryStore: mem, path: path}
	mem.persist = s.write
	return s, nil
}

// write replaces the snapshot file. The memory store calls it with bankMu
// held, which also serializes writers.
func (s *FileStore) write(rec snapshotRecord) error {
	dir := filepath.Dir(s.path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create state dir: %w", err)
		}
	}

	rec.UpdatedAt = time.Now().UTC().Format(time.RFC3339Nano)
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write state tmp: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("rename state: %w", err)
	}
	return nil
}
