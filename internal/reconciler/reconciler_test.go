package reconciler

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"

	"github.com/cdrn/memepool/internal/basefee"
	"github.com/cdrn/memepool/internal/forecaster"
	"github.com/cdrn/memepool/internal/mempool"
	"github.com/cdrn/memepool/internal/model"
	"github.com/cdrn/memepool/internal/packer"
)

func newTestReconciler(t *testing.T) (*Reconciler, *mempool.State, *forecaster.Forecaster) {
	t.Helper()
	mem := mempool.New()
	oracle := basefee.New(10)
	pk := packer.New(zerolog.Nop(), nil, nil)
	fc := forecaster.New(zerolog.Nop(), mem, oracle, pk, nil)
	rc := New(zerolog.Nop(), mem, oracle, fc, nil, 5)
	return rc, mem, fc
}

func TestOnHeadRemovesIncludedTxFromMempool(t *testing.T) {
	rc, mem, fc := newTestReconciler(t)
	tx := &model.PendingTx{
		Hash: common.Hash{1}, MaxFeePerGas: gweiVal(50), MaxPriorityFeePerGas: gweiVal(5),
		GasLimit: 21_000, FirstSeen: time.Now(),
	}
	mem.Ingest(tx)
	fc.Run(context.Background(), 9) // predicts block 10

	block := model.Block{
		Number:            10,
		BaseFeePerGas:     gweiVal(10),
		GasLimit:          30_000_000,
		TransactionHashes: []common.Hash{{1}},
		Timestamp:         time.Now(),
	}
	rc.OnHead(context.Background(), block)

	if _, ok := mem.Get(common.Hash{1}); ok {
		t.Fatal("expected confirmed tx to be removed from mempool")
	}
}

func TestCompareExactMatchIsFullAccuracy(t *testing.T) {
	rc, _, _ := newTestReconciler(t)
	prediction := model.BlockPrediction{
		BlockNumber:           10,
		PredictedTransactions: []common.Hash{{1}, {2}},
	}
	block := model.Block{
		Number:            10,
		TransactionHashes: []common.Hash{{1}, {2}},
		Timestamp:         time.Now(),
	}
	cmp := rc.compare(block, prediction)
	if cmp.Accuracy != 100 {
		t.Fatalf("expected 100%% accuracy for exact match, got %v", cmp.Accuracy)
	}
}

func TestCompareDisjointSetsScoresZero(t *testing.T) {
	rc, _, _ := newTestReconciler(t)
	prediction := model.BlockPrediction{
		BlockNumber:           10,
		PredictedTransactions: []common.Hash{{1}, {2}},
	}
	block := model.Block{
		Number:            10,
		TransactionHashes: []common.Hash{{3}, {4}},
		Timestamp:         time.Now(),
	}
	cmp := rc.compare(block, prediction)
	if cmp.Accuracy != 0 {
		t.Fatalf("expected 0%% accuracy for disjoint sets, got %v", cmp.Accuracy)
	}
}

// TestComparePartialMatchBySimilarity exercises §4.10's non-exact
// partial-match rule: a predicted tx whose hash never mined still earns
// half credit when a distinct actual tx shares its destination, selector,
// and a sufficiently close priority fee and value (e.g. the same swap
// resubmitted with a new nonce/signature).
func TestComparePartialMatchBySimilarity(t *testing.T) {
	rc, _, _ := newTestReconciler(t)

	addr := common.HexToAddress("0xabcabcabcabcabcabcabcabcabcabcabcabcabc")
	selector := [4]byte{0xaa, 0xbb, 0xcc, 0xdd}

	prediction := model.BlockPrediction{
		BlockNumber:           10,
		PredictedTransactions: []common.Hash{{1}, {2}, {3}},
		PredictedDetails: map[common.Hash]model.TxSummary{
			{2}: {To: &addr, PriorityFee: gweiVal(2), Value: gweiVal(100), Selector: selector, HasSelector: true},
		},
	}

	block := model.Block{
		Number:            10,
		TransactionHashes: []common.Hash{{1}, {10}, {20}},
		Timestamp:         time.Now(),
		TransactionDetails: map[common.Hash]model.TxSummary{
			// Same intent as predicted {2} (same to/selector, fee within
			// 10%, value within 5%) but a different hash entirely.
			{10}: {To: &addr, PriorityFee: gweiVal(2), Value: gweiVal(103), Selector: selector, HasSelector: true},
			{20}: {To: &common.Address{0x99}, PriorityFee: gweiVal(1), Value: gweiVal(1), HasSelector: false},
		},
	}

	cmp := rc.compare(block, prediction)
	if cmp.Accuracy != 50 {
		t.Fatalf("expected 50%% accuracy (1 exact + 1 partial over 3 predicted), got %v", cmp.Accuracy)
	}
}

func TestDetectBuilderMatchesKnownMarker(t *testing.T) {
	builder, name := detectBuilder([]byte("made by beaverbuild with love"))
	if builder != "beaverbuild" || name != "beaverbuild" {
		t.Fatalf("expected beaverbuild match, got %q/%q", builder, name)
	}
}

func TestDetectBuilderNoMatch(t *testing.T) {
	builder, name := detectBuilder([]byte("some random extra data"))
	if builder != "" || name != "" {
		t.Fatalf("expected no match, got %q/%q", builder, name)
	}
}

func TestOnHeadDropsStalePredictions(t *testing.T) {
	rc, _, fc := newTestReconciler(t)
	fc.Run(context.Background(), 9) // predicts block 10

	block := model.Block{Number: 20, BaseFeePerGas: gweiVal(10), Timestamp: time.Now()}
	rc.OnHead(context.Background(), block)

	if _, ok := fc.Prediction(10); ok {
		t.Fatal("expected stale prediction to be dropped once head advances past the threshold")
	}
}

func gweiVal(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), big.NewInt(1_000_000_000))
}
