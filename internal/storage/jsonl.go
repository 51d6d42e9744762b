package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"poolLedger/internal/model"
)

// JsonlJournal appends committed ledger events to a JSONL file. The file is
// opened on first write and kept open; each batch is fsynced before
// PutEvents returns.
type JsonlJournal struct {
	path string

	mu   sync.Mutex
	file *os.File
}

func NewJsonlJournal(path string) *JsonlJournal {
	return &JsonlJournal{path: path}
}

func (j *JsonlJournal) open() error {
	if j.file != nil {
		return nil
	}
	dir := filepath.Dir(j.path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create journal dir: %w", err)
		}
	}
	file, err := os.OpenFile(j.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	j.file = file
	return nil
}

// PutEvents appends a batch of events as JSON lines. The batch is encoded
// in full before anything is written, so a bad event never leaves a partial batch.
func (j *JsonlJournal) PutEvents(events []model.LedgerEvent) error {
	if len(events) == 0 {
		return nil
	}

	var buf []byte
	for _, event := range events {
		line, err := json.Marshal(event)
		if err != nil {
			return fmt.Errorf("marshal event %s/%d: %w", event.PoolID, event.Version, err)
		}
		buf = append(buf, line...)
		buf = append(buf, '\n')
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	if err := j.open(); err != nil {
		return err
	}
	if _, err := j.file.Write(buf); err != nil {
		return fmt.Errorf("append journal: %w", err)
	}
	if err := j.file.Sync(); err != nil {
		return fmt.Errorf("sync journal: %w", err)
	}
	return nil
}

// Events returns the journaled events of one pool in append order.
func (j *JsonlJournal) Events(ctx context.Context, id common.Hash) ([]model.LedgerEventRecord, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	file, err := os.Open(j.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open journal: %w", err)
	}
	defer file.Close()

	poolID := id.Hex()
	var records []model.LedgerEventRecord
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for line := 1; scanner.Scan(); line++ {
		if len(scanner.Bytes()) == 0 {
			continue
		}
		var rec model.LedgerEventRecord
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			return nil, fmt.Errorf("parse journal line %d: %w", line, err)
		}
		if rec.PoolID == poolID {
			records = append(records, rec)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read journal: %w", err)
	}
	return records, nil
}

func (j *JsonlJournal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.file == nil {
		return nil
	}
	err := j.file.Close()
	j.file = nil
	return err
}
