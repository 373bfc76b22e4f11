// Package forecaster implements the Forecaster (§4.9): it orchestrates
// the Packer and Sandwich Detector to produce one BlockPrediction per
// trigger, on a strict at-most-one-active-run basis.
package forecaster

import (
	"context"
	"math/big"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"

	"github.com/cdrn/memepool/internal/basefee"
	"github.com/cdrn/memepool/internal/mempool"
	"github.com/cdrn/memepool/internal/metrics"
	"github.com/cdrn/memepool/internal/model"
	"github.com/cdrn/memepool/internal/packer"
	"github.com/cdrn/memepool/internal/sandwich"
	"github.com/cdrn/memepool/internal/store"
)

// Forecaster runs one forecast at a time, dropping (never queuing)
// triggers that arrive while a run is in flight (§4.9 step 2).
type Forecaster struct {
	log     zerolog.Logger
	mempool *mempool.State
	oracle  *basefee.Oracle
	packer  *packer.Packer
	store   store.Store

	blockGasLimit atomic.Uint64
	running       atomic.Bool

	// predictions tracks, per block number, the most recently produced
	// prediction so the Reconciler can find it without a store round
	// trip. Guarded by its own field-level atomic.Value would need a
	// struct; a small map with a mutex is simpler and this is a
	// single-producer, single-consumer structure in practice.
	predictions *predictionTable
}

// New builds a Forecaster. Call SetBlockGasLimit once the Node Client
// observes the first head.
func New(log zerolog.Logger, mem *mempool.State, oracle *basefee.Oracle, pk *packer.Packer, st store.Store) *Forecaster {
	f := &Forecaster{log: log, mempool: mem, oracle: oracle, packer: pk, store: st, predictions: newPredictionTable()}
	f.blockGasLimit.Store(packer.DefaultBlockGasLimit)
	return f
}

// SetBlockGasLimit updates the gas limit used for the next run, normally
// called by the Reconciler after observing a new head.
func (f *Forecaster) SetBlockGasLimit(limit uint64) {
	if limit > 0 {
		f.blockGasLimit.Store(limit)
	}
}

// Prediction returns the most recent prediction made for blockNumber, if any.
func (f *Forecaster) Prediction(blockNumber uint64) (model.BlockPrediction, bool) {
	return f.predictions.get(blockNumber)
}

// DropBelow removes predictions for block numbers <= threshold (§4.10 step 7).
func (f *Forecaster) DropBelow(threshold uint64) {
	f.predictions.dropBelow(threshold)
}

// Run produces a forecast for targetBlock = headNumber+1. If a run is
// already in progress, this trigger is dropped rather than queued
// (§4.9 step 2, reentrancy guard).
func (f *Forecaster) Run(ctx context.Context, headNumber uint64) {
	if !f.running.CompareAndSwap(false, true) {
		f.log.Debug().Msg("forecast already running, dropping trigger")
		metrics.ForecastDropped.Inc()
		return
	}
	defer f.running.Store(false)
	metrics.ForecastRuns.Inc()

	target := headNumber + 1
	lastBaseFee := lastObservedBaseFee(f.oracle)

	out := packer.Run(ctx, f.packer, packer.Input{
		Mempool:             f.mempool.Snapshot(),
		NextBaseFee:         f.oracle.EstimateNext(),
		LastObservedBaseFee: lastBaseFee,
		BlockGasLimit:       f.blockGasLimit.Load(),
	})

	candidates := make([]sandwich.Candidate, 0, len(out.Predicted))
	for _, h := range out.Predicted {
		a, ok := out.Details[h]
		if !ok || a.Type != model.TypeSwap {
			continue
		}
		tx, ok := f.mempool.Get(h)
		if !ok {
			continue
		}
		pair, ok := sandwich.TokenPairFromCalldata(tx.Calldata)
		if !ok {
			continue
		}
		candidates = append(candidates, sandwich.Candidate{Tx: tx, Pair: pair, EffFee: out.EffectiveFees[h]})
	}

	triples := sandwich.Detect(candidates)
	metrics.SandwichesDetected.Add(float64(len(triples)))
	for _, tr := range triples {
		if a, ok := out.Details[tr.Victim]; ok {
			a.IsSandwichTarget = true
			out.Details[tr.Victim] = a
		}
	}

	meta := f.summarize(out)

	prediction := model.BlockPrediction{
		BlockNumber:           target,
		PredictedTransactions: out.Predicted,
		PredictedGasPrice:     out.PredictedGasPrice,
		TransactionDetails:    out.Details,
		PredictedDetails:      f.predictedDetails(out),
		Metadata:              &meta,
		CreatedAt:             time.Now(),
	}

	if f.store != nil {
		if err := f.store.SavePrediction(ctx, prediction); err != nil {
			f.log.Warn().Err(err).Uint64("block", target).Msg("failed to persist prediction")
		}
	}
	f.predictions.put(target, prediction)
}

// lastObservedBaseFee returns the most recent entry in the oracle's
// window, or nil if no head has been observed yet.
func lastObservedBaseFee(o *basefee.Oracle) *big.Int {
	window := o.Window()
	if len(window) == 0 {
		return nil
	}
	return window[len(window)-1]
}

// predictedDetails builds the per-tx summary (destination, priority fee,
// value, selector) the Reconciler needs for its similar-tx partial-match
// rule (§4.10), from the same mempool snapshot the Packer just consumed.
func (f *Forecaster) predictedDetails(out packer.Output) map[common.Hash]model.TxSummary {
	details := make(map[common.Hash]model.TxSummary, len(out.Predicted))
	for _, h := range out.Predicted {
		tx, ok := f.mempool.Get(h)
		if !ok {
			continue
		}
		sel, hasSel := model.SelectorOf(tx.Calldata)
		details[h] = model.TxSummary{
			To:          tx.To,
			PriorityFee: out.EffectiveFees[h],
			Value:       tx.Value,
			Selector:    sel,
			HasSelector: hasSel,
		}
	}
	return details
}

func (f *Forecaster) summarize(out packer.Output) model.PredictionMetadata {
	meta := model.PredictionMetadata{
		CountByProtocol: make(map[string]int),
		CountByType:     make(map[model.TxType]int),
		TotalValue:      big.NewInt(0),
	}
	for _, h := range out.Predicted {
		a, ok := out.Details[h]
		if ok {
			meta.CountByType[a.Type]++
			if a.ProtocolLabel != "" {
				meta.CountByProtocol[a.ProtocolLabel]++
			}
		}
		if tx, ok := f.mempool.Get(h); ok && tx.Value != nil {
			meta.TotalValue.Add(meta.TotalValue, tx.Value)
		}
	}
	return meta
}
