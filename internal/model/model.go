// Package model holds the entities shared across memepool's components:
// PendingTx, TxAnnotation, Block, BlockPrediction, BlockComparison and
// ContractCacheEntry, per the data model.
package model

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// TxStatus is the lifecycle status of a PendingTx.
type TxStatus string

const (
	StatusPending  TxStatus = "pending"
	StatusIncluded TxStatus = "included"
	StatusFailed   TxStatus = "failed"
)

// PendingTx is an observed-but-not-yet-mined transaction.
//
// Fee fields follow EIP-1559: either GasPrice is set (legacy tx) or both
// MaxFeePerGas and MaxPriorityFeePerGas are set. All fee/value/gas
// arithmetic is done on these *big.Int fields directly; they are only
// converted to a display unit (Gwei, ETH) at serialization boundaries.
type PendingTx struct {
	Hash                 common.Hash
	From                 common.Address
	To                   *common.Address
	Value                *big.Int
	GasLimit             uint64
	Nonce                *uint64
	GasPrice             *big.Int
	MaxFeePerGas         *big.Int
	MaxPriorityFeePerGas *big.Int
	Calldata             []byte
	FirstSeen            time.Time
	Status               TxStatus
}

// IsEIP1559 reports whether the tx carries EIP-1559 fee fields.
func (tx *PendingTx) IsEIP1559() bool {
	return tx.MaxFeePerGas != nil
}

// TxType classifies the decoded intent of a transaction.
type TxType string

const (
	TypeSwap             TxType = "swap"
	TypeLiquidity        TxType = "liquidity"
	TypeBridge           TxType = "bridge"
	TypeLending          TxType = "lending"
	TypeTransfer         TxType = "transfer"
	TypeSandwich         TxType = "sandwich"
	TypeContractCreation TxType = "contract_creation"
	TypeUnknown          TxType = "unknown"
)

// TxCategory is the coarse-grained grouping of a TxType.
type TxCategory string

const (
	CategoryDex        TxCategory = "dex"
	CategoryDefi       TxCategory = "defi"
	CategoryBridge     TxCategory = "bridge"
	CategoryToken      TxCategory = "token"
	CategoryNative     TxCategory = "native"
	CategoryDeployment TxCategory = "deployment"
	CategoryOther      TxCategory = "other"
)

// TxAnnotation is the decoded interpretation of a PendingTx. It is a pure
// function of (calldata, to, value, registry snapshot) and is cached by
// hash with a TTL (see decode.Cache).
type TxAnnotation struct {
	ProtocolLabel    string         `json:"protocolLabel,omitempty"`
	Type             TxType         `json:"type"`
	Category         TxCategory     `json:"category"`
	MethodName       string         `json:"methodName,omitempty"`
	Params           map[string]string `json:"params,omitempty"` // decoded args, big ints as decimal strings
	IsSandwichTarget bool           `json:"isSandwichTarget,omitempty"`
	Token            *common.Address `json:"token,omitempty"`
	TokenSymbol      string         `json:"tokenSymbol,omitempty"`
	TokenDecimals    uint8          `json:"tokenDecimals,omitempty"`
	TokenAmount      string         `json:"tokenAmount,omitempty"` // decimal string, formatted by decimals
}

// Block is a canonical block observed from newHeads.
type Block struct {
	Number             uint64
	Hash               common.Hash
	ParentHash         common.Hash
	Timestamp          time.Time
	Miner              common.Address
	ExtraData          []byte
	GasLimit           uint64
	GasUsed            uint64
	BaseFeePerGas      *big.Int
	TransactionHashes  []common.Hash
	TransactionDetails map[common.Hash]TxSummary // actual mined tx summaries, for §4.10 partial matching
}

// BlockPrediction is a forecast for a specific future block number.
type BlockPrediction struct {
	ID                    string
	BlockNumber           uint64
	PredictedTransactions []common.Hash
	PredictedGasPrice     float64 // Gwei
	TransactionDetails    map[common.Hash]TxAnnotation
	PredictedDetails      map[common.Hash]TxSummary // for §4.10's similar-tx partial-match rule
	Metadata              *PredictionMetadata
	CreatedAt             time.Time
}

// TxSummary is the subset of a transaction's fields the Reconciler
// compares when deciding whether a predicted tx and an actual tx that
// don't share a hash are nonetheless the "same" transaction (§4.10):
// same destination, same 4-byte selector, priority fee within 10%, value
// within 5%.
type TxSummary struct {
	To          *common.Address
	PriorityFee *big.Int
	Value       *big.Int
	Selector    [4]byte
	HasSelector bool
}

// SelectorOf extracts the 4-byte function selector from calldata, if present.
func SelectorOf(calldata []byte) (sel [4]byte, ok bool) {
	if len(calldata) < 4 {
		return sel, false
	}
	copy(sel[:], calldata[:4])
	return sel, true
}

// PredictionMetadata carries aggregate counts over a BlockPrediction.
type PredictionMetadata struct {
	CountByProtocol map[string]int
	CountByType     map[TxType]int
	TotalValue      *big.Int
}

// BlockComparison is a reconciliation record, written once per block number.
type BlockComparison struct {
	ID                    string
	BlockNumber           uint64
	PredictedTransactions []common.Hash
	ActualTransactions    []common.Hash
	Accuracy              float64 // [0, 100]
	Miner                 common.Address
	Builder               string
	BuilderName           string
	AverageGasPrice       *big.Int // wei; unset (nil) unless explicitly computed, see DESIGN.md
	Timestamp             time.Time
}

// ContractCacheEntry resolves addr -> (protocol, type tag, decoding schema).
type ContractCacheEntry struct {
	Address         common.Address
	Protocol        string
	TypeTag         string
	Schema          string // JSON-encoded abbreviated ABI/argument schema, may be empty
	ContractName    string
	Verified        bool
	FetchAttempted  bool
	CallCount       uint64
	UpdatedAt       time.Time
}
