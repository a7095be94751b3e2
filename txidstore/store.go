// Package txidstore records transaction ids the SDK has already used.
// Transaction ids seed the hashlock, so reusing one across transfers is
// unsafe; the orchestrator consults the store before every prepare.
package txidstore

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"transferkit/types"
)

// Record is what the store remembers about one transaction id.
type Record struct {
	SendingChainId   uint64               `json:"sendingChainId"`
	ReceivingChainId uint64               `json:"receivingChainId"`
	Status           types.TransferStatus `json:"status"`
	CreatedAt        time.Time            `json:"createdAt"`
	UpdatedAt        time.Time            `json:"updatedAt"`
}

// Store abstracts transaction id persistence. Get returns nil when the id
// has never been seen.
type Store interface {
	Get(ctx context.Context, txId common.Hash) (*Record, error)
	Save(ctx context.Context, txId common.Hash, record Record) error
}

// MemoryStore is mostly for testing.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[common.Hash]Record
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		data: make(map[common.Hash]Record),
	}
}

func (m *MemoryStore) Get(_ context.Context, txId common.Hash) (*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.data[txId]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (m *MemoryStore) Save(_ context.Context, txId common.Hash, record Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[txId] = record
	return nil
}

// FileStore persists records to disk. Suitable for local dev; can be swapped
// with SQLite later.
type FileStore struct {
	path string
	mu   sync.Mutex
	data map[string]Record
}

func NewFileStore(path string) (*FileStore, error) {
	fs := &FileStore{
		path: path,
		data: make(map[string]Record),
	}
	if err := fs.load(); err != nil {
		return nil, err
	}
	return fs, nil
}

func (f *FileStore) load() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	blob, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	if len(blob) == 0 {
		return nil
	}
	return json.Unmarshal(blob, &f.data)
}

func (f *FileStore) persist() error {
	if err := os.MkdirAll(filepath.Dir(f.path), 0o755); err != nil {
		return err
	}
	blob, err := json.MarshalIndent(f.data, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(f.path, blob, 0o600)
}

func (f *FileStore) Get(_ context.Context, txId common.Hash) (*Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	record, ok := f.data[txId.Hex()]
	if !ok {
		return nil, nil
	}
	return &record, nil
}

func (f *FileStore) Save(_ context.Context, txId common.Hash, record Record) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.data[txId.Hex()] = record
	return f.persist()
}
