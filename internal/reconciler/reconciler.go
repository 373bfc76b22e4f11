// Package reconciler implements the Reconciler (§4.10): on every new
// head it looks up the matching prediction, scores it against the
// block's actual transaction list, persists a BlockComparison, and
// folds the head back into the Base-Fee Oracle and mempool state.
package reconciler

import (
	"bytes"
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"

	"github.com/cdrn/memepool/internal/basefee"
	"github.com/cdrn/memepool/internal/forecaster"
	"github.com/cdrn/memepool/internal/mempool"
	"github.com/cdrn/memepool/internal/metrics"
	"github.com/cdrn/memepool/internal/model"
	"github.com/cdrn/memepool/internal/store"
)

// knownBuilders maps a best-effort substring found in a block's
// extraData to a human-readable builder name (§4.10 step 5). This is a
// heuristic, not an authoritative builder registry.
var knownBuilders = map[string]string{
	"beaverbuild": "beaverbuild",
	"Flashbots":   "Flashbots",
	"rsync":       "rsync-builder",
	"Titan":       "Titan Builder",
	"builder0x69": "builder0x69",
}

// Reconciler scores each block's actual inclusion list against the
// Forecaster's prediction for that block number.
type Reconciler struct {
	log        zerolog.Logger
	mempool    *mempool.State
	oracle     *basefee.Oracle
	forecaster *forecaster.Forecaster
	store      store.Store
	staleAfter uint64
}

func New(log zerolog.Logger, mem *mempool.State, oracle *basefee.Oracle, fc *forecaster.Forecaster, st store.Store, staleAfter uint64) *Reconciler {
	return &Reconciler{log: log, mempool: mem, oracle: oracle, forecaster: fc, store: st, staleAfter: staleAfter}
}

// OnHead processes a freshly observed block (§4.10 steps 1-7).
func (r *Reconciler) OnHead(ctx context.Context, block model.Block) {
	r.oracle.Observe(block.BaseFeePerGas)
	r.mempool.ConfirmBlock(block.TransactionHashes)

	if prediction, ok := r.forecaster.Prediction(block.Number); ok {
		comparison := r.compare(block, prediction)
		metrics.ReconciliationAccuracy.Observe(comparison.Accuracy)
		if r.store != nil {
			if err := r.store.SaveComparison(ctx, comparison); err != nil {
				r.log.Warn().Err(err).Uint64("block", block.Number).Msg("failed to persist comparison")
			}
		}
	}

	if r.forecaster != nil && block.Number > r.staleAfter {
		r.forecaster.DropBelow(block.Number - r.staleAfter)
	}
	if r.forecaster != nil {
		r.forecaster.SetBlockGasLimit(block.GasLimit)
	}
}

// compare scores a prediction against the block's actual inclusion list
// per §4.10's formula:
//
//	score = (exactMatches*100 + partialMatches*50) / |predicted|
//
// An exact match is a predicted hash that also mined. A partial match is
// a non-exact predicted tx paired with a distinct actual tx that is
// "similar" to it (same destination, same 4-byte selector, priority fee
// within 10%, value within 5%) — e.g. the same logical order routed
// through a different tx (different nonce/signature, same intent).
func (r *Reconciler) compare(block model.Block, prediction model.BlockPrediction) model.BlockComparison {
	actualSet := make(map[common.Hash]bool, len(block.TransactionHashes))
	for _, h := range block.TransactionHashes {
		actualSet[h] = true
	}

	exactMatches := 0
	usedActual := make(map[common.Hash]bool, len(block.TransactionHashes))
	var unmatchedPredicted []common.Hash
	for _, h := range prediction.PredictedTransactions {
		if actualSet[h] {
			exactMatches++
			usedActual[h] = true
		} else {
			unmatchedPredicted = append(unmatchedPredicted, h)
		}
	}

	partialMatches := 0
	for _, ph := range unmatchedPredicted {
		predSummary, ok := prediction.PredictedDetails[ph]
		if !ok {
			continue
		}
		for _, ah := range block.TransactionHashes {
			if usedActual[ah] {
				continue
			}
			actualSummary, ok := block.TransactionDetails[ah]
			if !ok {
				continue
			}
			if similarTx(predSummary, actualSummary) {
				partialMatches++
				usedActual[ah] = true
				break
			}
		}
	}

	denom := len(prediction.PredictedTransactions)
	if denom == 0 {
		denom = 1
	}
	accuracy := (float64(exactMatches)*100 + float64(partialMatches)*50) / float64(denom)
	if accuracy > 100 {
		accuracy = 100
	}

	builder, builderName := detectBuilder(block.ExtraData)

	return model.BlockComparison{
		BlockNumber:           block.Number,
		PredictedTransactions: prediction.PredictedTransactions,
		ActualTransactions:    block.TransactionHashes,
		Accuracy:              accuracy,
		Miner:                 block.Miner,
		Builder:               builder,
		BuilderName:           builderName,
		Timestamp:             block.Timestamp,
	}
}

// similarTx implements §4.10's partial-match test.
func similarTx(a, b model.TxSummary) bool {
	if a.To == nil || b.To == nil || *a.To != *b.To {
		return false
	}
	if a.HasSelector != b.HasSelector || a.Selector != b.Selector {
		return false
	}
	if !withinPercent(a.PriorityFee, b.PriorityFee, 10) {
		return false
	}
	if !withinPercent(a.Value, b.Value, 5) {
		return false
	}
	return true
}

// withinPercent reports whether a and b differ by no more than pct
// percent of their larger magnitude, computed entirely in big.Int to
// avoid rounding a wei value through floating point.
func withinPercent(a, b *big.Int, pct int64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	diff := new(big.Int).Sub(a, b)
	diff.Abs(diff)

	base := new(big.Int).Abs(a)
	if ab := new(big.Int).Abs(b); ab.Cmp(base) > 0 {
		base = ab
	}
	if base.Sign() == 0 {
		return diff.Sign() == 0
	}

	lhs := new(big.Int).Mul(diff, big.NewInt(100))
	rhs := new(big.Int).Mul(base, big.NewInt(pct))
	return lhs.Cmp(rhs) <= 0
}

func detectBuilder(extraData []byte) (string, string) {
	for marker, name := range knownBuilders {
		if bytes.Contains(extraData, []byte(marker)) {
			return marker, name
		}
	}
	return "", ""
}

