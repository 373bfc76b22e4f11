// Package registry resolves a contract address to a known protocol
// label/type tag/decoding schema, and a 4-byte selector to a method
// name, per §4.3. Layers are checked in order: static table, persistent
// cache, optional external resolvers.
package registry

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"

	"github.com/cdrn/memepool/internal/metrics"
	"github.com/cdrn/memepool/internal/model"
	"github.com/cdrn/memepool/internal/ratelimit"
)

// ContractCacheStore is the slice of the repository interface (§6) the
// Registry needs for layer 2.
type ContractCacheStore interface {
	LookupContract(ctx context.Context, addr common.Address) (*model.ContractCacheEntry, error)
	UpsertContract(ctx context.Context, entry model.ContractCacheEntry) error
	IncrementContractCallCount(ctx context.Context, addr common.Address) error
	LookupSignature(ctx context.Context, selector Selector) (string, bool, error)
	SaveSignature(ctx context.Context, selector Selector, name string) error
}

// SourceResolver is an external, best-effort contract resolver — a
// Sourcify-shaped or Etherscan-shaped lookup (§4.3 layer 3).
type SourceResolver interface {
	Name() string
	Resolve(ctx context.Context, addr common.Address) (*model.ContractCacheEntry, error)
}

// Registry resolves contracts and selectors through the three layers.
type Registry struct {
	log zerolog.Logger

	staticByAddr map[string]StaticEntry
	bridgeAddrs  map[string]bool

	store     ContractCacheStore
	resolvers []SourceResolver
	limiter   *ratelimit.Limiter
	cacheTTL  time.Duration

	// firstFetch serializes concurrent first-time external lookups for the
	// same address so they converge on one write (§4.3: "one write wins").
	firstFetch sync.Map // common.Address -> *sync.Mutex
}

// New builds a Registry. resolvers is tried in order (Sourcify first,
// then an Etherscan-style API) and may be empty.
func New(log zerolog.Logger, store ContractCacheStore, limiter *ratelimit.Limiter, cacheTTL time.Duration, resolvers ...SourceResolver) (*Registry, error) {
	byAddr, bridges, err := loadStaticTable()
	if err != nil {
		return nil, err
	}
	return &Registry{
		log:          log,
		staticByAddr: byAddr,
		bridgeAddrs:  bridges,
		store:        store,
		resolvers:    resolvers,
		limiter:      limiter,
		cacheTTL:     cacheTTL,
	}, nil
}

// IsBridgeAddress reports whether addr is in the static bridge set
// (§4.4 step 7).
func (r *Registry) IsBridgeAddress(addr common.Address) bool {
	return r.bridgeAddrs[strings.ToLower(addr.Hex())]
}

// Resolve returns the best-known entry for addr, consulting the static
// table, then the persistent cache, then (if fetchAttempted is not
// already set) an external resolver.
func (r *Registry) Resolve(ctx context.Context, addr common.Address) (*model.ContractCacheEntry, error) {
	if s, ok := r.staticByAddr[strings.ToLower(addr.Hex())]; ok {
		metrics.RegistryResolutions.WithLabelValues("static").Inc()
		return &model.ContractCacheEntry{
			Address:  addr,
			Protocol: s.Label,
			TypeTag:  s.TypeTag,
			Verified: true,
		}, nil
	}

	cached, err := r.store.LookupContract(ctx, addr)
	if err != nil {
		return nil, err
	}
	if cached != nil {
		if r.cacheTTL <= 0 || time.Since(cached.UpdatedAt) < r.cacheTTL {
			_ = r.store.IncrementContractCallCount(ctx, addr)
			metrics.RegistryResolutions.WithLabelValues("cache").Inc()
			return cached, nil
		}
		// Entry expired (§9 Open Question: TTL policy elected, >= 24h). A
		// resolved entry is refreshed externally; an entry recording a failed
		// lookup (FetchAttempted) is returned as is and never retried.
	}
	if cached != nil && cached.FetchAttempted {
		return cached, nil
	}

	return r.resolveExternal(ctx, addr, cached)
}

func (r *Registry) resolveExternal(ctx context.Context, addr common.Address, existing *model.ContractCacheEntry) (*model.ContractCacheEntry, error) {
	muAny, _ := r.firstFetch.LoadOrStore(addr, &sync.Mutex{})
	mu := muAny.(*sync.Mutex)
	mu.Lock()
	defer mu.Unlock()

	// Re-check after acquiring the per-address lock: another goroutine may
	// have just finished the fetch we were about to duplicate.
	if refreshed, err := r.store.LookupContract(ctx, addr); err == nil && refreshed != nil && refreshed.FetchAttempted {
		return refreshed, nil
	}

	for _, resolver := range r.resolvers {
		entry, err := ratelimit.Submit(ctx, r.limiter, func(ctx context.Context) (*model.ContractCacheEntry, error) {
			return resolver.Resolve(ctx, addr)
		})
		if err != nil {
			if ratelimit.IsRateLimitedErr(err) {
				r.log.Debug().Str("resolver", resolver.Name()).Str("addr", addr.Hex()).Msg("external resolver rate limited")
				time.Sleep(ratelimit.BackoffForRateLimit)
			}
			continue
		}
		if entry != nil {
			entry.Address = addr
			entry.UpdatedAt = time.Now()
			if err := r.store.UpsertContract(ctx, *entry); err != nil {
				return nil, err
			}
			metrics.RegistryResolutions.WithLabelValues("external").Inc()
			return entry, nil
		}
	}

	metrics.RegistryResolutions.WithLabelValues("miss").Inc()
	miss := model.ContractCacheEntry{
		Address:        addr,
		FetchAttempted: true,
		UpdatedAt:      time.Now(),
	}
	if existing != nil {
		miss.CallCount = existing.CallCount
	}
	if err := r.store.UpsertContract(ctx, miss); err != nil {
		return nil, err
	}
	return &miss, nil
}

// ResolveSelector returns a human method name for a 4-byte selector,
// consulting the embedded common-selectors table, then the persisted
// table. No external directory is queried, and nothing is written back
// to the persisted table.
func (r *Registry) ResolveSelector(ctx context.Context, selector Selector) (string, bool) {
	if name, ok := CommonSelectors[selector]; ok {
		return name, true
	}
	name, ok, err := r.store.LookupSignature(ctx, selector)
	if err != nil || !ok {
		return "", false
	}
	return name, true
}
