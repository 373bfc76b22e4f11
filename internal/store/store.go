// Package store defines the persistence boundary (§4.11/§6): the rest
// of memepool depends only on the Store interface, never on sqlite
// directly, so the out-of-core HTTP surface (cmd/memepoolapi) can open
// the same database and only read from it, without pulling in the
// daemon's wiring.
package store

import (
	"context"

	"github.com/ethereum/go-ethereum/common"

	"github.com/cdrn/memepool/internal/model"
	"github.com/cdrn/memepool/internal/registry"
)

// Store is the full persistence surface memepool needs: predictions,
// comparisons, the contract registry cache, and the selector->name table.
type Store interface {
	SavePrediction(ctx context.Context, p model.BlockPrediction) error
	UpdatePredictionMetadata(ctx context.Context, blockNumber uint64, meta model.PredictionMetadata) error
	SaveComparison(ctx context.Context, c model.BlockComparison) error

	ListRecentPredictions(ctx context.Context, limit int) ([]model.BlockPrediction, error)
	CountPredictions(ctx context.Context) (int64, error)
	ListRecentComparisons(ctx context.Context, limit int) ([]model.BlockComparison, error)

	registry.ContractCacheStore

	Close() error
}

// addrHex renders an address in checksummed hex, as stored in the
// comparisons.miner column (contract addresses are stored lowercased).
func addrHex(a common.Address) string { return a.Hex() }
