package packer

import (
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/cdrn/memepool/internal/model"
)

func gwei(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), big.NewInt(1_000_000_000))
}

func eip1559Tx(hash byte, maxFee, tip int64, gas uint64, seen time.Time) *model.PendingTx {
	return &model.PendingTx{
		Hash:                 common.Hash{hash},
		MaxFeePerGas:         gwei(maxFee),
		MaxPriorityFeePerGas: gwei(tip),
		GasLimit:             gas,
		FirstSeen:            seen,
	}
}

func TestPackRespectsGasBudget(t *testing.T) {
	now := time.Now()
	in := Input{
		NextBaseFee:         gwei(10),
		LastObservedBaseFee: gwei(10),
		BlockGasLimit:       1_000_000,
		Mempool: []*model.PendingTx{
			eip1559Tx(1, 50, 5, 400_000, now),
			eip1559Tx(2, 50, 5, 400_000, now.Add(time.Millisecond)),
			eip1559Tx(3, 50, 5, 400_000, now.Add(2*time.Millisecond)),
		},
	}
	packed := Pack(in)

	var used uint64
	for _, c := range packed {
		used += c.tx.GasLimit
	}
	hardCap := uint64(float64(uint64(float64(in.BlockGasLimit)*targetFraction)) * hardCapFactor)
	if used > hardCap {
		t.Fatalf("packed gas %d exceeds hard cap %d", used, hardCap)
	}
	if len(packed) == 3 {
		t.Fatal("expected packer to stop before including all three 400k-gas txs under a 1M gas limit")
	}
}

func TestPackDropsFeeIneligibleTx(t *testing.T) {
	now := time.Now()
	in := Input{
		NextBaseFee:         gwei(100),
		LastObservedBaseFee: gwei(100),
		BlockGasLimit:       1_000_000,
		Mempool: []*model.PendingTx{
			eip1559Tx(1, 200, 10, 21_000, now),  // maxFee 200 >= 50 (minFee) -> eligible
			eip1559Tx(2, 10, 1, 21_000, now),    // maxFee 10 < 50 -> ineligible
		},
	}
	packed := Pack(in)
	if len(packed) != 1 {
		t.Fatalf("expected exactly 1 fee-eligible tx, got %d", len(packed))
	}
	if packed[0].tx.Hash != (common.Hash{1}) {
		t.Fatalf("expected the fee-eligible tx to survive, got hash %v", packed[0].tx.Hash)
	}
}

func TestPackOrdersByEffectiveFeeDescending(t *testing.T) {
	now := time.Now()
	in := Input{
		NextBaseFee:         gwei(10),
		LastObservedBaseFee: gwei(10),
		BlockGasLimit:       10_000_000,
		Mempool: []*model.PendingTx{
			eip1559Tx(1, 50, 2, 21_000, now),
			eip1559Tx(2, 50, 8, 21_000, now.Add(time.Millisecond)),
			eip1559Tx(3, 50, 5, 21_000, now.Add(2*time.Millisecond)),
		},
	}
	packed := Pack(in)
	if len(packed) != 3 {
		t.Fatalf("expected all 3 txs packed, got %d", len(packed))
	}
	for i := 1; i < len(packed); i++ {
		if packed[i-1].effectiveFee.Cmp(packed[i].effectiveFee) < 0 {
			t.Fatalf("expected non-increasing effective fee ordering, got %v then %v",
				packed[i-1].effectiveFee, packed[i].effectiveFee)
		}
	}
	if packed[0].tx.Hash != (common.Hash{2}) {
		t.Fatalf("expected highest-tip tx first, got %v", packed[0].tx.Hash)
	}
}

func TestPackLegacyTxUsesGasPrice(t *testing.T) {
	now := time.Now()
	tx := &model.PendingTx{
		Hash:      common.Hash{9},
		GasPrice:  gwei(80),
		GasLimit:  21_000,
		FirstSeen: now,
	}
	in := Input{
		NextBaseFee:         gwei(10),
		LastObservedBaseFee: gwei(10),
		BlockGasLimit:       1_000_000,
		Mempool:             []*model.PendingTx{tx},
	}
	packed := Pack(in)
	if len(packed) != 1 {
		t.Fatalf("expected legacy tx to be fee-eligible, got %d packed", len(packed))
	}
}

func TestPackEmptyMempoolProducesEmptyOutput(t *testing.T) {
	in := Input{NextBaseFee: gwei(10), LastObservedBaseFee: gwei(10), BlockGasLimit: 1_000_000}
	packed := Pack(in)
	if len(packed) != 0 {
		t.Fatalf("expected no packed txs for empty mempool, got %d", len(packed))
	}
}
