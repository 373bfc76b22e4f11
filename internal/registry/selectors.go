package registry

// Selector is a 4-byte function selector, the first 4 bytes of calldata.
type Selector [4]byte

func sel(hex string) Selector {
	var s Selector
	for i := 0; i < 4; i++ {
		s[i] = hexByte(hex[i*2], hex[i*2+1])
	}
	return s
}

func hexByte(hi, lo byte) byte {
	return hexNibble(hi)<<4 | hexNibble(lo)
}

func hexNibble(c byte) byte {
	switch {
	case c >= '0' && c <= '9':
		return c - '0'
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10
	default:
		return 0
	}
}

// ERC20Selectors are the selectors decode.Decoder matches at step 3.
var ERC20Selectors = map[Selector]string{
	sel("a9059cbb"): "transfer",
	sel("23b872dd"): "transferFrom",
	sel("095ea7b3"): "approve",
}

// SwapSelectors covers common Uniswap V2/V3 router methods and variants
// from SushiSwap/1inch-style aggregators (§4.4 step 4). Whether fixed
// selector lists generalize across every DEX variant is an open question
// the spec itself flags (§9) — this table is deliberately the
// Uniswap-V2/V3-shaped common case, not exhaustive.
var SwapSelectors = map[Selector]string{
	sel("38ed1739"): "swapExactTokensForTokens",
	sel("8803dbee"): "swapTokensForExactTokens",
	sel("7ff36ab5"): "swapExactETHForTokens",
	sel("fb3bdb41"): "swapETHForExactTokens",
	sel("18cbafe5"): "swapExactTokensForETH",
	sel("4a25d94a"): "swapTokensForExactETH",
	sel("414bf389"): "exactInputSingle",
	sel("c04b8d59"): "exactInput",
	sel("db3e2198"): "exactOutputSingle",
	sel("f28c0498"): "exactOutput",
	sel("5ae401dc"): "multicall",
}

// LiquiditySelectors: add/remove liquidity on a constant-product pool.
var LiquiditySelectors = map[Selector]string{
	sel("e8e33700"): "addLiquidity",
	sel("f305d719"): "addLiquidityETH",
	sel("baa2abde"): "removeLiquidity",
	sel("02751cec"): "removeLiquidityETH",
}

// LendingSelectors: AAVE-V2/V3-shaped lending pool entry points.
var LendingSelectors = map[Selector]string{
	sel("e8eda9df"): "deposit",
	sel("69328dec"): "withdraw",
	sel("a415bcad"): "borrow",
	sel("573ade81"): "repay",
	sel("617ba037"): "supply",
}

// BridgeSelectors: common cross-chain bridge deposit entry points.
var BridgeSelectors = map[Selector]string{
	sel("b6b55f25"): "deposit",
	sel("8340f549"): "depositETH",
	sel("35d6e73e"): "depositTransfer",
}

// CommonSelectors is the embedded 4byte.directory-shaped table consulted
// before the persisted `signatures` table (§4.3 signature resolution).
var CommonSelectors = mergeSelectorNames(ERC20Selectors, SwapSelectors, LiquiditySelectors, LendingSelectors, BridgeSelectors)

func mergeSelectorNames(maps ...map[Selector]string) map[Selector]string {
	out := make(map[Selector]string)
	for _, m := range maps {
		for k, v := range m {
			out[k] = v
		}
	}
	return out
}
