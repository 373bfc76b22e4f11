// Package decode implements the Transaction Decoder (§4.4): given a
// PendingTx, produce a TxAnnotation by walking the fixed decision order
// the spec lays out. The Decoder never errors out on malformed calldata;
// it degrades to {type: unknown} (§7 item 4, "decode error").
package decode

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"

	"github.com/cdrn/memepool/internal/metrics"
	"github.com/cdrn/memepool/internal/model"
	"github.com/cdrn/memepool/internal/ratelimit"
	"github.com/cdrn/memepool/internal/registry"
)

// TokenMetadata is what TokenResolver returns for an ERC-20 address.
type TokenMetadata struct {
	Symbol   string
	Decimals uint8
}

// TokenResolver fetches ERC-20 symbol/decimals, typically via eth_call
// through the Node Client, behind the shared Rate Limiter.
type TokenResolver interface {
	ResolveToken(ctx context.Context, addr common.Address) (*TokenMetadata, error)
}

// Decoder turns PendingTx into TxAnnotation.
type Decoder struct {
	log     zerolog.Logger
	reg     *registry.Registry
	tokens  TokenResolver
	limiter *ratelimit.Limiter
	cache   *Cache
}

// New builds a Decoder. tokens may be nil, in which case DEX/token
// annotations omit symbol/decimals enrichment but are otherwise complete.
func New(log zerolog.Logger, reg *registry.Registry, tokens TokenResolver, limiter *ratelimit.Limiter, cacheTTL time.Duration) *Decoder {
	return &Decoder{
		log:     log,
		reg:     reg,
		tokens:  tokens,
		limiter: limiter,
		cache:   NewCache(50_000, cacheTTL),
	}
}

// Decode returns the annotation for tx, using the cache when possible
// (annotation is a pure function of (calldata, to, value, registry
// snapshot), memoized by hash per §3/§4.4, and purity is what makes
// caching by hash alone correct — P9).
func (d *Decoder) Decode(ctx context.Context, tx *model.PendingTx) model.TxAnnotation {
	now := time.Now()
	if a, ok := d.cache.Get(tx.Hash, now); ok {
		return a
	}
	a := d.decodeUncached(ctx, tx)
	d.cache.Put(tx.Hash, a, now)
	return a
}

// CacheLen exposes the annotation cache size for metrics.
func (d *Decoder) CacheLen() int { return d.cache.Len() }

// ResetCache clears the annotation cache (P10, on reconnect).
func (d *Decoder) ResetCache() { d.cache.Reset() }

func (d *Decoder) decodeUncached(ctx context.Context, tx *model.PendingTx) (out model.TxAnnotation) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Debug().Interface("panic", r).Str("tx", tx.Hash.Hex()).Msg("decode panic recovered, degrading to unknown")
			out = model.TxAnnotation{Type: model.TypeUnknown}
		}
	}()

	// Step 1: contract creation.
	if tx.To == nil {
		if len(tx.Calldata) > 0 {
			return model.TxAnnotation{Type: model.TypeContractCreation, Category: model.CategoryDeployment}
		}
		return model.TxAnnotation{Type: model.TypeUnknown}
	}

	// Step 2: extract selector.
	var selector registry.Selector
	hasSelector := len(tx.Calldata) >= 4
	if hasSelector {
		copy(selector[:], tx.Calldata[:4])
	}

	// Step 3: ERC-20 transfer/transferFrom/approve.
	if hasSelector {
		if method, ok := registry.ERC20Selectors[selector]; ok {
			return d.decodeERC20(ctx, tx, selector, method)
		}
	}

	// Step 4: swap set.
	if hasSelector {
		if method, ok := registry.SwapSelectors[selector]; ok {
			return d.decodeDEX(ctx, tx, model.TypeSwap, method)
		}
	}

	// Step 5: liquidity set.
	if hasSelector {
		if method, ok := registry.LiquiditySelectors[selector]; ok {
			return d.decodeDEX(ctx, tx, model.TypeLiquidity, method)
		}
	}

	// Step 6: lending set.
	if hasSelector {
		if method, ok := registry.LendingSelectors[selector]; ok {
			a := model.TxAnnotation{Type: model.TypeLending, Category: model.CategoryDefi, MethodName: method}
			d.attachProtocol(ctx, tx, &a)
			return a
		}
	}

	// Step 7: bridge set, or known bridge address.
	if hasSelector {
		if method, ok := registry.BridgeSelectors[selector]; ok {
			a := model.TxAnnotation{Type: model.TypeBridge, Category: model.CategoryBridge, MethodName: method}
			d.attachProtocol(ctx, tx, &a)
			return a
		}
	}
	if d.reg != nil && d.reg.IsBridgeAddress(*tx.To) {
		a := model.TxAnnotation{Type: model.TypeBridge, Category: model.CategoryBridge}
		d.attachProtocol(ctx, tx, &a)
		return a
	}

	// Step 8: registry type-tag fallback.
	if d.reg != nil {
		entry, err := d.reg.Resolve(ctx, *tx.To)
		if err == nil && entry != nil && entry.TypeTag != "" {
			t, c := typeTagToTypeCategory(entry.TypeTag)
			if t != model.TypeUnknown {
				return model.TxAnnotation{Type: t, Category: c, ProtocolLabel: entry.Protocol, MethodName: selectorMethodName(d, ctx, hasSelector, selector)}
			}
		}
	}

	// Step 9: plain native transfer.
	if len(tx.Calldata) == 0 && tx.Value != nil && tx.Value.Sign() > 0 {
		return model.TxAnnotation{Type: model.TypeTransfer, Category: model.CategoryNative, ProtocolLabel: "Ethereum"}
	}

	// Step 10: unknown.
	metrics.DecodeErrors.Inc()
	return model.TxAnnotation{Type: model.TypeUnknown}
}

func selectorMethodName(d *Decoder, ctx context.Context, has bool, s registry.Selector) string {
	if !has {
		return ""
	}
	name, ok := d.reg.ResolveSelector(ctx, s)
	if !ok {
		return ""
	}
	return name
}

func typeTagToTypeCategory(tag string) (model.TxType, model.TxCategory) {
	switch tag {
	case "dex":
		return model.TypeSwap, model.CategoryDex
	case "lending":
		return model.TypeLending, model.CategoryDefi
	case "bridge":
		return model.TypeBridge, model.CategoryBridge
	case "token":
		return model.TypeTransfer, model.CategoryToken
	case "nft", "oracle":
		return model.TypeUnknown, model.CategoryOther
	default:
		return model.TypeUnknown, model.CategoryOther
	}
}

func (d *Decoder) attachProtocol(ctx context.Context, tx *model.PendingTx, a *model.TxAnnotation) {
	if d.reg == nil {
		return
	}
	entry, err := d.reg.Resolve(ctx, *tx.To)
	if err == nil && entry != nil {
		a.ProtocolLabel = entry.Protocol
	}
}

func (d *Decoder) decodeERC20(ctx context.Context, tx *model.PendingTx, selector registry.Selector, method string) model.TxAnnotation {
	a := model.TxAnnotation{Type: model.TypeTransfer, Category: model.CategoryToken, MethodName: method}

	params, amount := decodeERC20Args(tx.Calldata, method)
	a.Params = params

	token := *tx.To
	a.Token = &token
	if d.tokens != nil {
		meta, err := ratelimit.Submit(ctx, d.limiter, func(ctx context.Context) (*TokenMetadata, error) {
			return d.tokens.ResolveToken(ctx, token)
		})
		if err == nil && meta != nil {
			a.TokenSymbol = meta.Symbol
			a.TokenDecimals = meta.Decimals
			if amount != nil {
				a.TokenAmount = formatByDecimals(amount, meta.Decimals)
			}
		}
	}
	if a.TokenAmount == "" && amount != nil {
		a.TokenAmount = amount.String()
	}
	return a
}

func (d *Decoder) decodeDEX(ctx context.Context, tx *model.PendingTx, t model.TxType, method string) model.TxAnnotation {
	a := model.TxAnnotation{Type: t, Category: model.CategoryDex, MethodName: method}
	d.attachProtocol(ctx, tx, &a)

	addrs := extractCandidateAddresses(tx.Calldata, 2)
	if len(addrs) > 0 && d.tokens != nil {
		first := addrs[0]
		meta, err := ratelimit.Submit(ctx, d.limiter, func(ctx context.Context) (*TokenMetadata, error) {
			return d.tokens.ResolveToken(ctx, first)
		})
		if err == nil && meta != nil {
			a.Token = &first
			a.TokenSymbol = meta.Symbol
			a.TokenDecimals = meta.Decimals
		}
	}
	return a
}

// decodeERC20Args decodes the name->value mapping for the three ERC-20
// selectors this decoder recognizes. Integer values are stored as
// decimal strings per §4.4 ("no native bigint in the serialized form").
func decodeERC20Args(calldata []byte, method string) (map[string]string, *big.Int) {
	args := calldata[4:]
	word := func(i int) []byte {
		start := i * 32
		if start+32 > len(args) {
			return nil
		}
		return args[start : start+32]
	}
	addrFromWord := func(w []byte) common.Address {
		var a common.Address
		if len(w) == 32 {
			copy(a[:], w[12:32])
		}
		return a
	}
	uintFromWord := func(w []byte) *big.Int {
		if w == nil {
			return nil
		}
		return new(big.Int).SetBytes(w)
	}

	switch method {
	case "transfer":
		to := addrFromWord(word(0))
		value := uintFromWord(word(1))
		params := map[string]string{"to": to.Hex()}
		if value != nil {
			params["value"] = value.String()
		}
		return params, value
	case "transferFrom":
		from := addrFromWord(word(0))
		to := addrFromWord(word(1))
		value := uintFromWord(word(2))
		params := map[string]string{"from": from.Hex(), "to": to.Hex()}
		if value != nil {
			params["value"] = value.String()
		}
		return params, value
	case "approve":
		spender := addrFromWord(word(0))
		value := uintFromWord(word(1))
		params := map[string]string{"spender": spender.Hex()}
		if value != nil {
			params["value"] = value.String()
		}
		return params, nil // approve isn't a transfer amount
	default:
		return nil, nil
	}
}

// extractCandidateAddresses scans calldata at 32-byte-aligned offsets
// (past the 4-byte selector) for words whose low 20 bytes look like a
// plausible address (top 12 bytes zero), per §4.4's DEX token
// extraction heuristic. Returns up to max candidates.
func extractCandidateAddresses(calldata []byte, max int) []common.Address {
	if len(calldata) <= 4 {
		return nil
	}
	args := calldata[4:]
	var out []common.Address
	for off := 0; off+32 <= len(args) && len(out) < max; off += 32 {
		word := args[off : off+32]
		if isZero(word[:12]) && !isZero(word[12:32]) {
			var a common.Address
			copy(a[:], word[12:32])
			out = append(out, a)
		}
	}
	return out
}

func isZero(b []byte) bool {
	for _, v := range b {
		if v != 0 {
			return false
		}
	}
	return true
}

// formatByDecimals renders raw as a decimal string divided by 10^decimals,
// done with big.Rat so the division never passes through a float64
// (§9: "never round a wei value through floating point").
func formatByDecimals(raw *big.Int, decimals uint8) string {
	if raw == nil {
		return ""
	}
	scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
	quotient, remainder := new(big.Int).QuoRem(raw, scale, new(big.Int))
	if remainder.Sign() == 0 {
		return quotient.String()
	}
	// Render the fractional part without floats: remainder / scale as a
	// zero-padded decimal string, trimmed of trailing zeros.
	fracStr := remainder.String()
	padCount := len(scale.String()) - 1 - len(fracStr)
	if padCount < 0 {
		padCount = 0
	}
	frac := zeroPad(fracStr, padCount)
	frac = trimTrailingZeros(frac)
	if frac == "" {
		return quotient.String()
	}
	return quotient.String() + "." + frac
}

func zeroPad(s string, n int) string {
	if n <= 0 {
		return s
	}
	zeros := make([]byte, n)
	for i := range zeros {
		zeros[i] = '0'
	}
	return string(zeros) + s
}

func trimTrailingZeros(s string) string {
	i := len(s)
	for i > 0 && s[i-1] == '0' {
		i--
	}
	return s[:i]
}
