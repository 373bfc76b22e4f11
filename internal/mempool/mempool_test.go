package mempool

import (
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/cdrn/memepool/internal/model"
)

func mkTx(h byte, seen time.Time) *model.PendingTx {
	return &model.PendingTx{
		Hash:      common.Hash{h},
		From:      common.Address{h},
		Value:     big.NewInt(0),
		GasLimit:  21000,
		FirstSeen: seen,
		Status:    model.StatusPending,
	}
}

// P1: ingest idempotence.
func TestIngestIdempotent(t *testing.T) {
	s := New()
	tx := mkTx(1, time.Now())
	s.Ingest(tx)
	s.Ingest(&model.PendingTx{Hash: tx.Hash, GasLimit: 999999}) // different payload, same hash

	got, ok := s.Get(tx.Hash)
	if !ok {
		t.Fatal("expected tx to be present")
	}
	if got.GasLimit != 21000 {
		t.Fatalf("expected first-seen payload to win, got GasLimit=%d", got.GasLimit)
	}
	if s.Len() != 1 {
		t.Fatalf("expected exactly one entry, got %d", s.Len())
	}
}

// P2: cleanup completeness.
func TestConfirmBlockRemovesAllHashes(t *testing.T) {
	s := New()
	a, b, c := mkTx(1, time.Now()), mkTx(2, time.Now()), mkTx(3, time.Now())
	s.Ingest(a)
	s.Ingest(b)
	s.Ingest(c)

	s.ConfirmBlock([]common.Hash{a.Hash, b.Hash})

	if _, ok := s.Get(a.Hash); ok {
		t.Fatal("a should be removed")
	}
	if _, ok := s.Get(b.Hash); ok {
		t.Fatal("b should be removed")
	}
	if _, ok := s.Get(c.Hash); !ok {
		t.Fatal("c should remain")
	}
}

func TestConfirmBlockIgnoresUnknownHashes(t *testing.T) {
	s := New()
	s.ConfirmBlock([]common.Hash{{9}}) // should not panic
	if s.Len() != 0 {
		t.Fatalf("expected empty mempool, got %d", s.Len())
	}
}

func TestEvictStaleRespectsTTL(t *testing.T) {
	s := New()
	now := time.Now()
	old := mkTx(1, now.Add(-2*time.Hour))
	fresh := mkTx(2, now.Add(-time.Minute))
	s.Ingest(old)
	s.Ingest(fresh)

	evicted := s.EvictStale(now, time.Hour)
	if evicted != 1 {
		t.Fatalf("expected 1 eviction, got %d", evicted)
	}
	if _, ok := s.Get(old.Hash); ok {
		t.Fatal("old tx should have been evicted")
	}
	if _, ok := s.Get(fresh.Hash); !ok {
		t.Fatal("fresh tx should remain")
	}
}

func TestResetClearsEverything(t *testing.T) {
	s := New()
	s.Ingest(mkTx(1, time.Now()))
	s.Ingest(mkTx(2, time.Now()))
	s.Reset()
	if s.Len() != 0 {
		t.Fatalf("expected empty mempool after reset, got %d", s.Len())
	}
}
