package store

import (
	"context"
	"math/big"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/cdrn/memepool/internal/model"
	"github.com/cdrn/memepool/internal/registry"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	path := filepath.Join(t.TempDir(), "memepool.db")
	s, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSavePredictionRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	p := model.BlockPrediction{
		BlockNumber:           100,
		PredictedTransactions: []common.Hash{{1}, {2}},
		PredictedGasPrice:     42.5,
		TransactionDetails: map[common.Hash]model.TxAnnotation{
			{1}: {Type: model.TypeTransfer, Category: model.CategoryNative},
		},
		CreatedAt: time.Now(),
	}
	if err := s.SavePrediction(ctx, p); err != nil {
		t.Fatal(err)
	}

	out, err := s.ListRecentPredictions(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 1 {
		t.Fatalf("expected 1 prediction, got %d", len(out))
	}
	if out[0].BlockNumber != 100 || len(out[0].PredictedTransactions) != 2 {
		t.Fatalf("unexpected round-trip: %+v", out[0])
	}

	n, err := s.CountPredictions(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("expected count 1, got %d", n)
	}
}

func TestSaveComparisonUpsertsByBlockNumber(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	c := model.BlockComparison{
		BlockNumber:        200,
		Accuracy:           80,
		Miner:              common.HexToAddress("0xaaaa"),
		Timestamp:          time.Now(),
		PredictedTransactions: []common.Hash{{1}},
		ActualTransactions:    []common.Hash{{1}, {2}},
	}
	if err := s.SaveComparison(ctx, c); err != nil {
		t.Fatal(err)
	}
	c.Accuracy = 95
	if err := s.SaveComparison(ctx, c); err != nil {
		t.Fatal(err)
	}

	out, err := s.ListRecentComparisons(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 1 {
		t.Fatalf("expected exactly one comparison row per block number, got %d", len(out))
	}
	if out[0].Accuracy != 95 {
		t.Fatalf("expected upsert to overwrite accuracy, got %v", out[0].Accuracy)
	}
}

func TestContractCacheRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	addr := common.HexToAddress("0xbbbb")

	got, err := s.LookupContract(ctx, addr)
	if err != nil {
		t.Fatal(err)
	}
	if got != nil {
		t.Fatal("expected nil for unknown contract")
	}

	entry := model.ContractCacheEntry{Address: addr, Protocol: "Uniswap V2", TypeTag: "dex", UpdatedAt: time.Now()}
	if err := s.UpsertContract(ctx, entry); err != nil {
		t.Fatal(err)
	}
	if err := s.IncrementContractCallCount(ctx, addr); err != nil {
		t.Fatal(err)
	}

	got, err = s.LookupContract(ctx, addr)
	if err != nil {
		t.Fatal(err)
	}
	if got == nil || got.Protocol != "Uniswap V2" || got.CallCount != 1 {
		t.Fatalf("unexpected contract entry: %+v", got)
	}
}

func TestSignatureRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	var sel registry.Selector
	copy(sel[:], []byte{0xa9, 0x05, 0x9c, 0xbb})

	if err := s.SaveSignature(ctx, sel, "transfer"); err != nil {
		t.Fatal(err)
	}
	name, ok, err := s.LookupSignature(ctx, sel)
	if err != nil {
		t.Fatal(err)
	}
	if !ok || name != "transfer" {
		t.Fatalf("expected transfer, got %q, %v", name, ok)
	}
}

func TestAverageGasPriceRoundTripsThroughBigInt(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	c := model.BlockComparison{
		BlockNumber:     300,
		Miner:           common.HexToAddress("0xcccc"),
		Timestamp:       time.Now(),
		AverageGasPrice: big.NewInt(123456789),
	}
	if err := s.SaveComparison(ctx, c); err != nil {
		t.Fatal(err)
	}
	out, err := s.ListRecentComparisons(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 1 || out[0].AverageGasPrice == nil || out[0].AverageGasPrice.Cmp(big.NewInt(123456789)) != 0 {
		t.Fatalf("expected average gas price to round-trip, got %+v", out)
	}
}
