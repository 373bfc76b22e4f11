package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/cdrn/memepool/internal/model"
)

// httpGetJSON performs a GET and decodes the JSON body into T. A non-2xx
// status is surfaced verbatim so ratelimit.IsRateLimitedErr can classify
// a 429 by substring match on the returned error.
func httpGetJSON[T any](ctx context.Context, client *http.Client, url string) (T, error) {
	var zero T

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return zero, err
	}

	resp, err := client.Do(req)
	if err != nil {
		return zero, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return zero, fmt.Errorf("%s: unexpected status %d", url, resp.StatusCode)
	}

	var out T
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return zero, err
	}
	return out, nil
}

// SourcifyResolver resolves verified-contract metadata from a
// Sourcify-shaped repository API.
type SourcifyResolver struct {
	BaseURL string
	ChainID string
	HTTP    *http.Client
}

// NewSourcifyResolver builds a resolver against a Sourcify-compatible
// endpoint for the given chain ID (e.g. "1" for mainnet).
func NewSourcifyResolver(baseURL, chainID string) *SourcifyResolver {
	return &SourcifyResolver{
		BaseURL: baseURL,
		ChainID: chainID,
		HTTP:    &http.Client{Timeout: 5 * time.Second},
	}
}

func (s *SourcifyResolver) Name() string { return "sourcify" }

type sourcifyMetadata struct {
	ContractName string `json:"contractName"`
	CompilerInfo struct {
		Name string `json:"name"`
	} `json:"compiler"`
}

func (s *SourcifyResolver) Resolve(ctx context.Context, addr common.Address) (*model.ContractCacheEntry, error) {
	url := fmt.Sprintf("%s/files/any/%s/%s/metadata.json", s.BaseURL, s.ChainID, addr.Hex())
	meta, err := httpGetJSON[sourcifyMetadata](ctx, s.HTTP, url)
	if err != nil {
		return nil, err
	}
	if meta.ContractName == "" {
		return nil, fmt.Errorf("sourcify: no metadata for %s", addr.Hex())
	}
	return &model.ContractCacheEntry{
		ContractName: meta.ContractName,
		Verified:     true,
	}, nil
}

// EtherscanResolver resolves contract metadata from an Etherscan-style
// "getsourcecode" API. Only constructed when ETHERSCAN_API_KEY is set.
type EtherscanResolver struct {
	BaseURL string
	APIKey  string
	HTTP    *http.Client
}

func NewEtherscanResolver(baseURL, apiKey string) *EtherscanResolver {
	return &EtherscanResolver{
		BaseURL: baseURL,
		APIKey:  apiKey,
		HTTP:    &http.Client{Timeout: 5 * time.Second},
	}
}

func (e *EtherscanResolver) Name() string { return "etherscan" }

type etherscanResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Result  []struct {
		ContractName string `json:"ContractName"`
		ABI          string `json:"ABI"`
	} `json:"result"`
}

func (e *EtherscanResolver) Resolve(ctx context.Context, addr common.Address) (*model.ContractCacheEntry, error) {
	url := fmt.Sprintf("%s?module=contract&action=getsourcecode&address=%s&apikey=%s", e.BaseURL, addr.Hex(), e.APIKey)
	resp, err := httpGetJSON[etherscanResponse](ctx, e.HTTP, url)
	if err != nil {
		return nil, err
	}
	if resp.Status != "1" || len(resp.Result) == 0 || resp.Result[0].ContractName == "" {
		return nil, fmt.Errorf("etherscan: no verified source for %s", addr.Hex())
	}
	r := resp.Result[0]
	return &model.ContractCacheEntry{
		ContractName: r.ContractName,
		Schema:       r.ABI,
		Verified:     true,
	}, nil
}
