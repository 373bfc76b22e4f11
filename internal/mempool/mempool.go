// Package mempool holds the process-wide view of pending transactions
// (§4.5). It is the single-writer structure the spec calls for: every
// mutation happens under one mutex, ingest is idempotent, and eviction
// is driven by both block confirmation and TTL.
package mempool

import (
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/cdrn/memepool/internal/model"
)

// State is the thread-safe pending-transaction map plus its bookkeeping
// for TTL eviction. The annotation cache is a separate component
// (decode.Cache) so Mempool State itself stays a pure transaction store.
type State struct {
	mu  sync.RWMutex
	txs map[common.Hash]*model.PendingTx
}

// New creates an empty Mempool State.
func New() *State {
	return &State{txs: make(map[common.Hash]*model.PendingTx)}
}

// Ingest adds a transaction if its hash is not already known. Re-ingesting
// a known hash is a no-op (P1: ingest idempotence) — the mempool never
// overwrites fields from the first observation.
func (s *State) Ingest(tx *model.PendingTx) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.txs[tx.Hash]; exists {
		return
	}
	s.txs[tx.Hash] = tx
}

// Get returns the pending transaction for hash, if present.
func (s *State) Get(hash common.Hash) (*model.PendingTx, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tx, ok := s.txs[hash]
	return tx, ok
}

// ConfirmBlock removes every hash in hashes from the mempool (P2:
// cleanup completeness). Hashes the mempool never saw are ignored —
// §5 notes pending-tx events can arrive after the block that included
// them, so absence here is expected, not an error.
func (s *State) ConfirmBlock(hashes []common.Hash) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, h := range hashes {
		delete(s.txs, h)
	}
}

// EvictStale removes every entry whose FirstSeen is older than ttl,
// relative to now (§4.5: no entry has firstSeen < now - T_mempool).
func (s *State) EvictStale(now time.Time, ttl time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := now.Add(-ttl)
	evicted := 0
	for h, tx := range s.txs {
		if tx.FirstSeen.Before(cutoff) {
			delete(s.txs, h)
			evicted++
		}
	}
	return evicted
}

// Snapshot returns a point-in-time copy of every pending transaction.
// The slice order is unspecified; callers that need deterministic
// ordering (the Packer) sort it themselves.
func (s *State) Snapshot() []*model.PendingTx {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*model.PendingTx, 0, len(s.txs))
	for _, tx := range s.txs {
		out = append(out, tx)
	}
	return out
}

// Len reports the current mempool size, for metrics.
func (s *State) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.txs)
}

// Reset clears all pending transactions. Called on Node Client reconnect
// (§4.1, §7 item 1, P10): stream-dependent derived state does not
// survive a transport-fatal reconnect.
func (s *State) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.txs = make(map[common.Hash]*model.PendingTx)
}
