// Package packer implements the Block Packer (§4.7): given a mempool
// snapshot and the next base-fee estimate, it produces an ordered list
// of candidate transactions obeying fee eligibility and a gas budget,
// mirroring (at design level, not consensus level) how a validator or
// builder selects from its mempool.
package packer

import (
	"context"
	"math/big"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"

	"github.com/cdrn/memepool/internal/decode"
	"github.com/cdrn/memepool/internal/model"
	"github.com/cdrn/memepool/internal/ratelimit"
)

const (
	targetFraction = 0.95 // target = 0.95 * blockGasLimit
	hardCapFactor  = 1.14 // hard cap = 1.14 * target
)

// DefaultBlockGasLimit is used when no head has been observed yet (§4.7).
const DefaultBlockGasLimit = 30_000_000

// Input bundles everything the Packer needs for one run.
type Input struct {
	Mempool             []*model.PendingTx
	NextBaseFee         *big.Int
	LastObservedBaseFee *big.Int
	BlockGasLimit       uint64
}

// Output is the packer's result: ordered hashes, their annotations, and
// the average effective priority fee in Gwei.
type Output struct {
	Predicted         []common.Hash
	Details           map[common.Hash]model.TxAnnotation
	PredictedGasPrice float64
	EffectiveFees     map[common.Hash]*big.Int // wei, used by the sandwich detector
}

// Packer runs the filter/group/pack algorithm.
type Packer struct {
	log     zerolog.Logger
	decoder *decode.Decoder
	limiter *ratelimit.Limiter
}

func New(log zerolog.Logger, decoder *decode.Decoder, limiter *ratelimit.Limiter) *Packer {
	return &Packer{log: log, decoder: decoder, limiter: limiter}
}

type candidate struct {
	tx            *model.PendingTx
	effectiveFee  *big.Int
}

// Pack runs steps 1-4 of §4.7 and returns the ordered candidate list
// with its per-tx effective priority fee (annotation attachment, step 5,
// is done by Run so callers that only need ordering can skip it).
func Pack(in Input) []candidate {
	blockGasLimit := in.BlockGasLimit
	if blockGasLimit == 0 {
		blockGasLimit = DefaultBlockGasLimit
	}

	minFee := new(big.Int).Div(in.NextBaseFee, big.NewInt(2))

	eligible := make([]candidate, 0, len(in.Mempool))
	for _, tx := range in.Mempool {
		maxFee := effectiveMaxFee(tx)
		if maxFee.Cmp(minFee) < 0 {
			continue // P4: fee eligibility
		}
		fee := effectivePriorityFee(tx, in.LastObservedBaseFee)
		if fee.Sign() < 0 {
			fee = big.NewInt(0)
		}
		eligible = append(eligible, candidate{tx: tx, effectiveFee: fee})
	}

	// Group by fee descending; within a group, preserve ingestion order
	// (tie broken by FirstSeen) per §4.7 step 3.
	sort.SliceStable(eligible, func(i, j int) bool {
		cmp := eligible[i].effectiveFee.Cmp(eligible[j].effectiveFee)
		if cmp != 0 {
			return cmp > 0
		}
		return eligible[i].tx.FirstSeen.Before(eligible[j].tx.FirstSeen)
	})

	target := uint64(float64(blockGasLimit) * targetFraction)
	hardCap := uint64(float64(target) * hardCapFactor)

	packed := make([]candidate, 0, len(eligible))
	var gasUsed uint64
	for _, c := range eligible {
		if gasUsed >= target {
			break
		}
		if gasUsed+c.tx.GasLimit > hardCap {
			continue
		}
		packed = append(packed, c)
		gasUsed += c.tx.GasLimit
	}
	return packed
}

// effectiveMaxFee returns the value used for the fee-eligibility filter
// (§4.7 step 1): MaxFeePerGas for EIP-1559 txs, GasPrice for legacy ones.
func effectiveMaxFee(tx *model.PendingTx) *big.Int {
	if tx.IsEIP1559() {
		return tx.MaxFeePerGas
	}
	if tx.GasPrice != nil {
		return tx.GasPrice
	}
	return big.NewInt(0)
}

// effectivePriorityFee implements §4.7 step 2.
func effectivePriorityFee(tx *model.PendingTx, lastBaseFee *big.Int) *big.Int {
	if tx.IsEIP1559() {
		if lastBaseFee == nil {
			lastBaseFee = big.NewInt(0)
		}
		headroom := new(big.Int).Sub(tx.MaxFeePerGas, lastBaseFee)
		if headroom.Sign() < 0 {
			headroom.SetInt64(0)
		}
		if tx.MaxPriorityFeePerGas == nil {
			return headroom
		}
		if tx.MaxPriorityFeePerGas.Cmp(headroom) < 0 {
			return new(big.Int).Set(tx.MaxPriorityFeePerGas)
		}
		return headroom
	}
	if tx.GasPrice == nil {
		return big.NewInt(0)
	}
	fee := new(big.Int).Mul(tx.GasPrice, big.NewInt(10))
	return fee.Div(fee, big.NewInt(100))
}

// Run executes the full packer including annotation attachment (step 5).
// Each packed tx is annotated by calling the Decoder directly; only the
// Decoder's own token-metadata lookups go through the Rate Limiter, and a
// failed lookup leaves the annotation without token details rather than
// skipping it. Packed txs are never dropped for lack of an annotation;
// with no Decoder configured, Details stays empty.
func Run(ctx context.Context, p *Packer, in Input) Output {
	packed := Pack(in)

	out := Output{
		Predicted:     make([]common.Hash, 0, len(packed)),
		Details:       make(map[common.Hash]model.TxAnnotation, len(packed)),
		EffectiveFees: make(map[common.Hash]*big.Int, len(packed)),
	}

	var totalFee big.Int
	for _, c := range packed {
		out.Predicted = append(out.Predicted, c.tx.Hash)
		out.EffectiveFees[c.tx.Hash] = c.effectiveFee
		totalFee.Add(&totalFee, c.effectiveFee)

		if p.decoder != nil {
			a := p.decoder.Decode(ctx, c.tx)
			out.Details[c.tx.Hash] = a
		}
	}

	if len(packed) > 0 {
		avg := new(big.Int).Div(&totalFee, big.NewInt(int64(len(packed))))
		out.PredictedGasPrice = weiToGwei(avg)
	}
	return out
}

func weiToGwei(wei *big.Int) float64 {
	f := new(big.Float).SetInt(wei)
	f.Quo(f, big.NewFloat(1e9))
	v, _ := f.Float64()
	return v
}
