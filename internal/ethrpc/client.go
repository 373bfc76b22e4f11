// Package ethrpc implements the Node Client (§4.1): a long-lived
// websocket connection to an execution node, exposing the two
// subscriptions the rest of memepool depends on (pending transactions,
// new heads) with automatic reconnect and exponential backoff.
package ethrpc

import (
	"context"
	"fmt"
	"math/big"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/rs/zerolog"

	"github.com/cdrn/memepool/internal/metrics"
)

// State is the Node Client's connection state machine (§4.1).
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateLive         State = "live"
	StateReconnecting State = "reconnecting"
)

const (
	initialBackoff = 5 * time.Second
	maxBackoff     = 10 * time.Second
)

// ResetHook is invoked every time the client transitions into
// StateReconnecting, before the new connection is attempted, so callers
// can drop stream-dependent state (mempool, predictions, base-fee
// window, annotation cache) per P10.
type ResetHook func()

// Client owns the websocket connection and both subscriptions.
type Client struct {
	log  zerolog.Logger
	url  string
	hook ResetHook

	mu    sync.RWMutex
	state State
	eth   *ethclient.Client
	rpc   *rpc.Client

	// lastHeadNumber is the number of the last header handed to onHead,
	// 0 meaning none yet. It persists across reconnects so a gap opened
	// by a dropped connection still gets backfilled (§5).
	lastHeadNumber atomic.Uint64
}

// New builds a disconnected Client. Call Run to connect and start
// streaming; onReset is called on every reconnect (may be nil).
func New(log zerolog.Logger, wsURL string, onReset ResetHook) *Client {
	return &Client{log: log, url: wsURL, hook: onReset, state: StateDisconnected}
}

// State reports the current connection state.
func (c *Client) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

func (c *Client) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// PendingTxHandler receives every hash seen on newPendingTransactions.
type PendingTxHandler func(hash common.Hash)

// HeadHandler receives every header seen on newHeads.
type HeadHandler func(header *types.Header)

// Run connects and streams until ctx is canceled, reconnecting with
// exponential backoff (5s doubling to a 10s cap, per §4.1) on any
// transport-fatal error. It blocks until ctx.Done().
func (c *Client) Run(ctx context.Context, onPending PendingTxHandler, onHead HeadHandler) error {
	backoff := initialBackoff
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		err := c.connectAndStream(ctx, onPending, onHead)
		if ctx.Err() != nil {
			c.setState(StateDisconnected)
			return ctx.Err()
		}

		c.log.Warn().Err(err).Dur("backoff", backoff).Msg("node client disconnected, reconnecting")
		metrics.NodeClientReconnects.Inc()
		c.setState(StateReconnecting)
		if c.hook != nil {
			c.hook()
		}

		jittered := backoff + time.Duration(rand.Int63n(int64(backoff)/4+1))
		select {
		case <-time.After(jittered):
		case <-ctx.Done():
			return ctx.Err()
		}

		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

func (c *Client) connectAndStream(ctx context.Context, onPending PendingTxHandler, onHead HeadHandler) error {
	c.setState(StateConnecting)

	rpcClient, err := rpc.DialContext(ctx, c.url)
	if err != nil {
		return fmt.Errorf("dial %s: %w", c.url, err)
	}
	defer rpcClient.Close()

	ethClient := ethclient.NewClient(rpcClient)

	c.mu.Lock()
	c.rpc = rpcClient
	c.eth = ethClient
	c.mu.Unlock()

	pendingCh := make(chan common.Hash, 4096)
	pendingSub, err := rpcClient.EthSubscribe(ctx, pendingCh, "newPendingTransactions")
	if err != nil {
		return fmt.Errorf("subscribe newPendingTransactions: %w", err)
	}
	defer pendingSub.Unsubscribe()

	headCh := make(chan *types.Header, 64)
	headSub, err := ethClient.SubscribeNewHead(ctx, headCh)
	if err != nil {
		return fmt.Errorf("subscribe newHeads: %w", err)
	}
	defer headSub.Unsubscribe()

	c.setState(StateLive)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-pendingSub.Err():
			return fmt.Errorf("pending tx subscription: %w", err)
		case err := <-headSub.Err():
			return fmt.Errorf("head subscription: %w", err)
		case hash := <-pendingCh:
			if onPending != nil {
				onPending(hash)
			}
		case header := <-headCh:
			c.handleHead(ctx, header, onHead)
		}
	}
}

// handleHead invokes onHead for header, first backfilling and replaying,
// in order, any block numbers strictly between the last head processed
// and this one (§5: "missed heads ... are fetched and replayed in order
// before the incoming one is processed"). A gap can open either from a
// provider-side subscription skip or from the reconnect that just
// happened above.
func (c *Client) handleHead(ctx context.Context, header *types.Header, onHead HeadHandler) {
	if onHead == nil || header.Number == nil {
		return
	}
	num := header.Number.Uint64()

	if from, to, ok := missingRange(c.lastHeadNumber.Load(), num); ok {
		c.backfillHeads(ctx, from, to, onHead)
	}

	onHead(header)
	c.lastHeadNumber.Store(num)
}

// missingRange reports the inclusive block-number range that was skipped
// between the last head processed and the incoming one. last == 0 means
// no head has been processed yet, so there is nothing to backfill.
func missingRange(last, incoming uint64) (from, to uint64, ok bool) {
	if last == 0 || incoming <= last+1 {
		return 0, 0, false
	}
	return last + 1, incoming - 1, true
}

// backfillHeads fetches and replays, in ascending order, the headers for
// every block number in [from, to].
func (c *Client) backfillHeads(ctx context.Context, from, to uint64, onHead HeadHandler) {
	eth := c.ethClient()
	if eth == nil {
		return
	}
	for n := from; n <= to; n++ {
		header, err := eth.HeaderByNumber(ctx, new(big.Int).SetUint64(n))
		if err != nil {
			c.log.Warn().Err(err).Uint64("block", n).Msg("failed to backfill missed head, leaving gap")
			continue
		}
		onHead(header)
		c.lastHeadNumber.Store(n)
	}
}

// FetchTx resolves a full transaction by hash, used to populate
// PendingTx fields the subscription itself doesn't carry (gas price,
// calldata, value). Returns (nil, false, ethereum.NotFound) if the node
// no longer knows the hash (it may already have been mined or dropped).
func (c *Client) FetchTx(ctx context.Context, hash common.Hash) (*types.Transaction, bool, error) {
	eth := c.ethClient()
	if eth == nil {
		return nil, false, fmt.Errorf("node client not connected")
	}
	tx, isPending, err := eth.TransactionByHash(ctx, hash)
	if err != nil {
		return nil, false, err
	}
	return tx, isPending, nil
}

// FetchBlockByNumber resolves the full block (with transaction hashes)
// for a given number, used by the Reconciler to get the actual
// inclusion list (§4.10 step 1).
func (c *Client) FetchBlockByNumber(ctx context.Context, number uint64) (*types.Block, error) {
	eth := c.ethClient()
	if eth == nil {
		return nil, fmt.Errorf("node client not connected")
	}
	return eth.BlockByNumber(ctx, new(big.Int).SetUint64(number))
}

// FilterLogs is exposed for completeness (e.g. future ERC-20 Transfer
// backfill) though no current component calls it yet.
func (c *Client) FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	eth := c.ethClient()
	if eth == nil {
		return nil, fmt.Errorf("node client not connected")
	}
	return eth.FilterLogs(ctx, q)
}

func (c *Client) ethClient() *ethclient.Client {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.eth
}
