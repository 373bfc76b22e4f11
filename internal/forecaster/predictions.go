package forecaster

import (
	"sync"

	"github.com/cdrn/memepool/internal/model"
)

// predictionTable holds the latest in-memory prediction per block
// number. The Forecaster's "latest wins" rule (§4.9 step 6) lives here:
// Run overwrites any prior entry for the same block number outright.
type predictionTable struct {
	mu    sync.RWMutex
	byNum map[uint64]model.BlockPrediction
}

func newPredictionTable() *predictionTable {
	return &predictionTable{byNum: make(map[uint64]model.BlockPrediction)}
}

func (t *predictionTable) put(blockNumber uint64, p model.BlockPrediction) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.byNum[blockNumber] = p
}

func (t *predictionTable) get(blockNumber uint64) (model.BlockPrediction, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	p, ok := t.byNum[blockNumber]
	return p, ok
}

// dropBelow deletes every prediction whose block number is <= threshold.
func (t *predictionTable) dropBelow(threshold uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for num := range t.byNum {
		if num <= threshold {
			delete(t.byNum, num)
		}
	}
}
