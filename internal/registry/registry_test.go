package registry

import (
	"context"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"

	"github.com/cdrn/memepool/internal/model"
	"github.com/cdrn/memepool/internal/ratelimit"
)

type fakeStore struct {
	contracts map[common.Address]model.ContractCacheEntry
	sigs      map[Selector]string
	calls     map[common.Address]int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		contracts: make(map[common.Address]model.ContractCacheEntry),
		sigs:      make(map[Selector]string),
		calls:     make(map[common.Address]int),
	}
}

func (f *fakeStore) LookupContract(ctx context.Context, addr common.Address) (*model.ContractCacheEntry, error) {
	if e, ok := f.contracts[addr]; ok {
		return &e, nil
	}
	return nil, nil
}

func (f *fakeStore) UpsertContract(ctx context.Context, entry model.ContractCacheEntry) error {
	f.contracts[entry.Address] = entry
	return nil
}

func (f *fakeStore) IncrementContractCallCount(ctx context.Context, addr common.Address) error {
	f.calls[addr]++
	return nil
}

func (f *fakeStore) LookupSignature(ctx context.Context, selector Selector) (string, bool, error) {
	name, ok := f.sigs[selector]
	return name, ok, nil
}

func (f *fakeStore) SaveSignature(ctx context.Context, selector Selector, name string) error {
	f.sigs[selector] = name
	return nil
}

func TestResolveStaticTableHit(t *testing.T) {
	store := newFakeStore()
	reg, err := New(zerolog.Nop(), store, ratelimit.New(4), time.Hour)
	if err != nil {
		t.Fatal(err)
	}

	addr := common.HexToAddress("0x7a250d5630B4cF539739dF2C5dAcb4c659F2488D") // Uniswap V2 router
	entry, err := reg.Resolve(context.Background(), addr)
	if err != nil {
		t.Fatal(err)
	}
	if entry.Protocol != "Uniswap V2" {
		t.Fatalf("expected Uniswap V2, got %q", entry.Protocol)
	}
}

func TestResolveCachedMissSkipsExternal(t *testing.T) {
	store := newFakeStore()
	addr := common.HexToAddress("0x000000000000000000000000000000000000aa")
	store.contracts[addr] = model.ContractCacheEntry{
		Address:        addr,
		FetchAttempted: true,
		UpdatedAt:      time.Now(),
	}

	reg, err := New(zerolog.Nop(), store, ratelimit.New(4), time.Hour)
	if err != nil {
		t.Fatal(err)
	}

	entry, err := reg.Resolve(context.Background(), addr)
	if err != nil {
		t.Fatal(err)
	}
	if !entry.FetchAttempted {
		t.Fatal("expected cached fetchAttempted=true entry to be returned without retry")
	}
}

func TestResolveSelectorCommonTable(t *testing.T) {
	store := newFakeStore()
	reg, err := New(zerolog.Nop(), store, ratelimit.New(4), time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	name, ok := reg.ResolveSelector(context.Background(), sel("a9059cbb"))
	if !ok || name != "transfer" {
		t.Fatalf("expected transfer, got %q, %v", name, ok)
	}
}

func TestIsBridgeAddress(t *testing.T) {
	store := newFakeStore()
	reg, err := New(zerolog.Nop(), store, ratelimit.New(4), time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	addr := common.HexToAddress("0x3154cF16ccdb4C6d922629664174b904d80F2C35")
	if !reg.IsBridgeAddress(addr) {
		t.Fatal("expected known bridge address to match")
	}
}
