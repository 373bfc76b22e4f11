// Command memepoold is the core daemon: it connects to an execution
// node, observes the mempool and chain head, and continuously forecasts
// and reconciles block contents.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/cdrn/memepool/internal/config"
	"github.com/cdrn/memepool/internal/logging"
	"github.com/cdrn/memepool/internal/registry"
	"github.com/cdrn/memepool/internal/service"
	"github.com/cdrn/memepool/internal/store"
)

const sourcifyBaseURL = "https://repo.sourcify.dev"
const etherscanBaseURL = "https://api.etherscan.io/api"

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.New(os.Getenv("LOG_LEVEL"), os.Stderr).Fatal().Err(err).Msg("config error")
	}

	root := logging.New(os.Getenv("LOG_LEVEL"), os.Stderr)
	logger := logging.For(root, "memepoold")

	st, err := store.Open(cfg.DBPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open store")
	}
	defer st.Close()

	resolvers := []registry.SourceResolver{registry.NewSourcifyResolver(sourcifyBaseURL, "1")}
	if cfg.EtherscanAPIKey != "" {
		resolvers = append(resolvers, registry.NewEtherscanResolver(etherscanBaseURL, cfg.EtherscanAPIKey))
	}

	svc, err := service.New(logger, cfg, st, resolvers...)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build service")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())
	metricsSrv := &http.Server{Addr: ":9090", Handler: metricsMux}
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Warn().Err(err).Msg("metrics server error")
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info().Msg("shutdown signal received")
		cancel()
		_ = metricsSrv.Shutdown(context.Background())
	}()

	if err := svc.Run(ctx); err != nil && ctx.Err() == nil {
		logger.Fatal().Err(err).Msg("service exited unexpectedly")
	}
	logger.Info().Msg("memepoold stopped")
}
