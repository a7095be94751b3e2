package txidstore

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"transferkit/types"
)

func TestMemoryStore(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	if rec, _ := store.Get(ctx, common.HexToHash("0x01")); rec != nil {
		t.Fatalf("expected nil for unseen id")
	}

	record := Record{
		SendingChainId:   1337,
		ReceivingChainId: 1338,
		Status:           types.StatusSenderPrepared,
		CreatedAt:        time.Now(),
		UpdatedAt:        time.Now(),
	}
	txId := common.HexToHash("0xabc")
	if err := store.Save(ctx, txId, record); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	got, _ := store.Get(ctx, txId)
	if got == nil || got.Status != types.StatusSenderPrepared {
		t.Fatalf("unexpected record: %+v", got)
	}

	// Status updates overwrite.
	record.Status = types.StatusFulfilled
	if err := store.Save(ctx, txId, record); err != nil {
		t.Fatalf("update failed: %v", err)
	}
	got, _ = store.Get(ctx, txId)
	if got == nil || got.Status != types.StatusFulfilled {
		t.Fatalf("update not visible: %+v", got)
	}
}

func TestFileStorePersists(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "txids.json")

	store, err := NewFileStore(path)
	if err != nil {
		t.Fatalf("create store: %v", err)
	}

	ctx := context.Background()
	txId := common.HexToHash("0xdead")
	record := Record{
		SendingChainId:   1337,
		ReceivingChainId: 1338,
		Status:           types.StatusSenderPrepared,
		CreatedAt:        time.Unix(0, 0),
		UpdatedAt:        time.Unix(0, 0),
	}
	if err := store.Save(ctx, txId, record); err != nil {
		t.Fatalf("save: %v", err)
	}

	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected file on disk: %v", err)
	}

	store2, err := NewFileStore(path)
	if err != nil {
		t.Fatalf("re-open store: %v", err)
	}

	got, _ := store2.Get(ctx, txId)
	if got == nil || got.SendingChainId != 1337 {
		t.Fatalf("unexpected record: %+v", got)
	}
}
