// Package basefee implements the Base-Fee Oracle (§4.6): a small
// rolling window of observed base fees, used to produce a coarse
// next-block estimate. The heuristic is intentionally simple — EIP-1559's
// exact formula may be substituted later without changing downstream
// contracts (§4.6, §9).
package basefee

import (
	"math/big"
	"sync"
)

const defaultEstimate = 100_000_000 // 0.1 Gwei in wei, per §4.6

// Oracle keeps a rolling window of window-size W of observed
// baseFeePerGas values and estimates the next block's base fee.
type Oracle struct {
	mu     sync.Mutex
	window []*big.Int
	size   int
}

// New creates an Oracle with a rolling window of the given size.
func New(size int) *Oracle {
	if size <= 0 {
		size = 10
	}
	return &Oracle{size: size}
}

// Observe appends a newly observed base fee, evicting the oldest entry
// once the window is full.
func (o *Oracle) Observe(baseFee *big.Int) {
	if baseFee == nil {
		return
	}
	o.mu.Lock()
	defer o.mu.Unlock()

	o.window = append(o.window, new(big.Int).Set(baseFee))
	if len(o.window) > o.size {
		o.window = o.window[len(o.window)-o.size:]
	}
}

// EstimateNext returns the next-block base-fee estimate per §4.6:
//   - empty window -> 0.1 Gwei
//   - else trend = (last - first) / len; apply +/-12.5% of last accordingly.
func (o *Oracle) EstimateNext() *big.Int {
	o.mu.Lock()
	defer o.mu.Unlock()

	if len(o.window) == 0 {
		return big.NewInt(defaultEstimate)
	}

	first := o.window[0]
	last := o.window[len(o.window)-1]
	trend := new(big.Int).Sub(last, first)

	eighth := new(big.Int).Mul(last, big.NewInt(125))
	eighth.Div(eighth, big.NewInt(1000)) // last * 12.5%

	next := new(big.Int)
	if trend.Sign() > 0 {
		next.Add(last, eighth)
	} else {
		next.Sub(last, eighth)
		if next.Sign() < 0 {
			next.SetInt64(0)
		}
	}
	return next
}

// Window returns a copy of the currently observed base fees, oldest first.
func (o *Oracle) Window() []*big.Int {
	o.mu.Lock()
	defer o.mu.Unlock()

	out := make([]*big.Int, len(o.window))
	for i, v := range o.window {
		out[i] = new(big.Int).Set(v)
	}
	return out
}

// Reset clears the window. Called on Node Client reconnect (P10).
func (o *Oracle) Reset() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.window = nil
}
