package ethrpc

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/core/types"
	"github.com/rs/zerolog"
)

func TestMissingRangeNoGapOnFirstHead(t *testing.T) {
	if _, _, ok := missingRange(0, 100); ok {
		t.Fatal("expected no backfill before any head has been processed")
	}
}

func TestMissingRangeNoGapOnConsecutiveHeads(t *testing.T) {
	if _, _, ok := missingRange(10, 11); ok {
		t.Fatal("expected no backfill for consecutive block numbers")
	}
}

func TestMissingRangeDetectsGap(t *testing.T) {
	from, to, ok := missingRange(10, 13)
	if !ok {
		t.Fatal("expected a gap to be detected")
	}
	if from != 11 || to != 12 {
		t.Fatalf("expected missing range [11,12], got [%d,%d]", from, to)
	}
}

// TestHandleHeadReplaysInOrderWithoutBackfillClient covers the no-gap path
// end to end through handleHead: consecutive heads are delivered to onHead
// one at a time with no attempt to contact a node (the Client has none
// connected), and lastHeadNumber advances accordingly.
func TestHandleHeadReplaysInOrderWithoutBackfillClient(t *testing.T) {
	c := New(zerolog.Nop(), "wss://example.invalid", nil)

	var seen []uint64
	onHead := func(h *types.Header) { seen = append(seen, h.Number.Uint64()) }

	c.handleHead(context.Background(), &types.Header{Number: big.NewInt(10)}, onHead)
	c.handleHead(context.Background(), &types.Header{Number: big.NewInt(11)}, onHead)

	if len(seen) != 2 || seen[0] != 10 || seen[1] != 11 {
		t.Fatalf("expected heads delivered in order [10 11], got %v", seen)
	}
	if c.lastHeadNumber.Load() != 11 {
		t.Fatalf("expected lastHeadNumber to advance to 11, got %d", c.lastHeadNumber.Load())
	}
}

// TestHandleHeadSkipsBackfillWithoutConnectedClient documents the
// degrade-gracefully path: if a gap is detected but there is no live
// ethclient.Client to fetch the missing headers from (e.g. called outside
// connectAndStream), backfillHeads is a no-op and only the incoming head
// is delivered, rather than panicking or blocking.
func TestHandleHeadSkipsBackfillWithoutConnectedClient(t *testing.T) {
	c := New(zerolog.Nop(), "wss://example.invalid", nil)
	c.lastHeadNumber.Store(10)

	var seen []uint64
	onHead := func(h *types.Header) { seen = append(seen, h.Number.Uint64()) }

	c.handleHead(context.Background(), &types.Header{Number: big.NewInt(13)}, onHead)

	if len(seen) != 1 || seen[0] != 13 {
		t.Fatalf("expected only the incoming head delivered with no connected client, got %v", seen)
	}
	if c.lastHeadNumber.Load() != 13 {
		t.Fatalf("expected lastHeadNumber to advance to 13, got %d", c.lastHeadNumber.Load())
	}
}
