package ethrpc

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/cdrn/memepool/internal/model"
)

// ToPendingTx adapts a go-ethereum transaction into memepool's PendingTx,
// stamping FirstSeen with the moment it was fetched (§4.5: firstSeen is
// observation time, not any on-chain timestamp).
func ToPendingTx(tx *types.Transaction, firstSeen time.Time) *model.PendingTx {
	signer := types.LatestSignerForChainID(tx.ChainId())
	from, _ := types.Sender(signer, tx)

	pt := &model.PendingTx{
		Hash:      tx.Hash(),
		From:      from,
		To:        tx.To(),
		Value:     tx.Value(),
		GasLimit:  tx.Gas(),
		Calldata:  tx.Data(),
		FirstSeen: firstSeen,
		Status:    model.StatusPending,
	}
	nonce := tx.Nonce()
	pt.Nonce = &nonce

	switch tx.Type() {
	case types.DynamicFeeTxType, types.BlobTxType:
		pt.MaxFeePerGas = tx.GasFeeCap()
		pt.MaxPriorityFeePerGas = tx.GasTipCap()
	default:
		pt.GasPrice = tx.GasPrice()
	}
	return pt
}

// ToBlock adapts a go-ethereum block into memepool's Block, including a
// per-tx summary of the actual mined transactions (destination, paid
// priority fee, value, selector) that the Reconciler needs for its
// similar-tx partial-match rule (§4.10).
func ToBlock(b *types.Block) model.Block {
	out := model.Block{
		Number:             b.NumberU64(),
		Hash:               b.Hash(),
		ParentHash:         b.ParentHash(),
		Timestamp:          time.Unix(int64(b.Time()), 0),
		Miner:              b.Coinbase(),
		ExtraData:          b.Extra(),
		GasLimit:           b.GasLimit(),
		GasUsed:            b.GasUsed(),
		BaseFeePerGas:      b.BaseFee(),
		TransactionDetails: make(map[common.Hash]model.TxSummary),
	}
	for _, tx := range b.Transactions() {
		h := tx.Hash()
		out.TransactionHashes = append(out.TransactionHashes, h)

		sel, hasSel := model.SelectorOf(tx.Data())
		out.TransactionDetails[h] = model.TxSummary{
			To:          tx.To(),
			PriorityFee: actualPriorityFee(tx, b.BaseFee()),
			Value:       tx.Value(),
			Selector:    sel,
			HasSelector: hasSel,
		}
	}
	return out
}

// actualPriorityFee computes the priority fee a mined transaction actually
// paid, against the block's own (known, not estimated) base fee. For
// EIP-1559 txs this is the Packer's effective-priority-fee rule; for legacy
// txs it is gasPrice minus the base fee, not the Packer's 10%-of-gasPrice
// estimate.
func actualPriorityFee(tx *types.Transaction, baseFee *big.Int) *big.Int {
	if baseFee == nil {
		baseFee = big.NewInt(0)
	}
	switch tx.Type() {
	case types.DynamicFeeTxType, types.BlobTxType:
		headroom := new(big.Int).Sub(tx.GasFeeCap(), baseFee)
		if headroom.Sign() < 0 {
			headroom.SetInt64(0)
		}
		tip := tx.GasTipCap()
		if tip == nil {
			return headroom
		}
		if tip.Cmp(headroom) < 0 {
			return new(big.Int).Set(tip)
		}
		return headroom
	default:
		gp := tx.GasPrice()
		if gp == nil {
			return big.NewInt(0)
		}
		fee := new(big.Int).Sub(gp, baseFee)
		if fee.Sign() < 0 {
			fee.SetInt64(0)
		}
		return fee
	}
}
