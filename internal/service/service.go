// Package service wires every component into a single runnable daemon:
// Node Client feeds Decoder and Mempool State, Reconciler and
// Forecaster react to head events, and a background ticker drives the
// Forecaster's 3-second cadence even between blocks (§4.9, §5).
package service

import (
	"context"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/rs/zerolog"

	"github.com/cdrn/memepool/internal/basefee"
	"github.com/cdrn/memepool/internal/config"
	"github.com/cdrn/memepool/internal/decode"
	"github.com/cdrn/memepool/internal/ethrpc"
	"github.com/cdrn/memepool/internal/forecaster"
	"github.com/cdrn/memepool/internal/mempool"
	"github.com/cdrn/memepool/internal/metrics"
	"github.com/cdrn/memepool/internal/packer"
	"github.com/cdrn/memepool/internal/ratelimit"
	"github.com/cdrn/memepool/internal/reconciler"
	"github.com/cdrn/memepool/internal/registry"
	"github.com/cdrn/memepool/internal/store"
)

// Service owns every long-lived component and runs until its context
// is canceled.
type Service struct {
	log zerolog.Logger
	cfg *config.Config

	store   store.Store
	mempool *mempool.State
	oracle  *basefee.Oracle
	limiter *ratelimit.Limiter
	reg     *registry.Registry
	decoder *decode.Decoder
	packer  *packer.Packer
	fc      *forecaster.Forecaster
	rc      *reconciler.Reconciler
	node    *ethrpc.Client

	headNumber atomic.Uint64 // last observed head, written by onHead, read by the forecast ticker
}

// New constructs the full dependency graph. st may be nil for a
// dry-run/benchmark configuration with no persistence.
func New(log zerolog.Logger, cfg *config.Config, st store.Store, resolvers ...registry.SourceResolver) (*Service, error) {
	mem := mempool.New()
	oracle := basefee.New(cfg.BaseFeeWindow)
	limiter := ratelimit.New(cfg.RateLimitMaxInFlight)

	reg, err := registry.New(logging(log, "registry"), st, limiter, cfg.ContractCacheTTL, resolvers...)
	if err != nil {
		return nil, err
	}

	decoder := decode.New(logging(log, "decoder"), reg, nil, limiter, cfg.AnnotationTTL)
	pk := packer.New(logging(log, "packer"), decoder, limiter)
	fc := forecaster.New(logging(log, "forecaster"), mem, oracle, pk, st)
	rc := reconciler.New(logging(log, "reconciler"), mem, oracle, fc, st, cfg.StaleBlockThreshold)

	svc := &Service{
		log:     log,
		cfg:     cfg,
		store:   st,
		mempool: mem,
		oracle:  oracle,
		limiter: limiter,
		reg:     reg,
		decoder: decoder,
		packer:  pk,
		fc:      fc,
		rc:      rc,
	}
	svc.node = ethrpc.New(logging(log, "node"), cfg.EthWSURL, svc.onReconnect)
	return svc, nil
}

func logging(base zerolog.Logger, component string) zerolog.Logger {
	return base.With().Str("component", component).Logger()
}

// onReconnect implements P10: every transport-fatal reconnect clears
// stream-dependent derived state.
func (s *Service) onReconnect() {
	s.mempool.Reset()
	s.oracle.Reset()
	s.decoder.ResetCache()
	s.fc.DropBelow(math.MaxUint64)
}

// Run blocks until ctx is canceled, streaming from the Node Client and
// driving the Forecaster's periodic tick alongside head-triggered runs.
func (s *Service) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	wg.Add(2)

	var nodeErr error
	go func() {
		defer wg.Done()
		nodeErr = s.node.Run(ctx, s.onPendingTx, s.onHead)
	}()

	go func() {
		defer wg.Done()
		s.runForecastTicker(ctx)
	}()

	wg.Wait()
	return nodeErr
}

func (s *Service) onPendingTx(hash common.Hash) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		tx, isPending, err := s.node.FetchTx(ctx, hash)
		if err != nil || !isPending || tx == nil {
			return
		}
		pt := ethrpc.ToPendingTx(tx, time.Now())
		s.mempool.Ingest(pt)
		metrics.PendingTxObserved.Inc()
		metrics.MempoolSize.Set(float64(s.mempool.Len()))
	}()
}

func (s *Service) onHead(header *types.Header) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	block, err := s.node.FetchBlockByNumber(ctx, header.Number.Uint64())
	if err != nil {
		s.log.Warn().Err(err).Uint64("block", header.Number.Uint64()).Msg("failed to fetch head block")
		return
	}

	modelBlock := ethrpc.ToBlock(block)
	s.headNumber.Store(modelBlock.Number)

	s.rc.OnHead(ctx, modelBlock)
	s.fc.Run(ctx, modelBlock.Number)

	metrics.MempoolSize.Set(float64(s.mempool.Len()))
	metrics.AnnotationCacheSize.Set(float64(s.decoder.CacheLen()))
	metrics.RateLimiterInFlight.Set(float64(s.limiter.InFlight()))
}

// runForecastTicker re-runs the Forecaster every ForecastTick even when
// no new head has arrived (§4.9: "every new block, and additionally
// every 3 seconds").
func (s *Service) runForecastTicker(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.ForecastTick)
	defer ticker.Stop()

	evictTicker := time.NewTicker(time.Minute)
	defer evictTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.fc.Run(ctx, s.headNumber.Load())
		case <-evictTicker.C:
			evicted := s.mempool.EvictStale(time.Now(), s.cfg.MempoolTTL)
			if evicted > 0 {
				s.log.Debug().Int("evicted", evicted).Msg("evicted stale mempool entries")
			}
		}
	}
}
