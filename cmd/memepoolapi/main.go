// Command memepoolapi is the out-of-core HTTP surface (§4.12): it reads
// predictions and comparisons directly from the Store, with no
// dependency on the daemon's in-memory components, so it can run as a
// separate read replica against the same sqlite file.
package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/cdrn/memepool/internal/config"
	"github.com/cdrn/memepool/internal/logging"
	"github.com/cdrn/memepool/internal/store"
)

const defaultListLimit = 50

func main() {
	cfg, err := config.Load()
	logger := logging.For(logging.New(os.Getenv("LOG_LEVEL"), os.Stderr), "memepoolapi")
	if err != nil {
		logger.Fatal().Err(err).Msg("config error")
	}

	st, err := store.Open(cfg.DBPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open store")
	}
	defer st.Close()

	mux := http.NewServeMux()
	registerRoutes(mux, st, logger)

	srv := &http.Server{Addr: ":" + strconv.Itoa(cfg.APIPort), Handler: mux}

	go func() {
		logger.Info().Int("port", cfg.APIPort).Msg("memepoolapi listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	logger.Info().Msg("shutdown signal received")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Fatal().Err(err).Msg("graceful shutdown failed")
	}
	logger.Info().Msg("memepoolapi stopped")
}

func registerRoutes(mux *http.ServeMux, st store.Store, logger zerolog.Logger) {
	mux.HandleFunc("/api/predictions", func(w http.ResponseWriter, r *http.Request) {
		limit := queryLimit(r, defaultListLimit)
		preds, err := st.ListRecentPredictions(r.Context(), limit)
		if err != nil {
			logger.Warn().Err(err).Msg("list predictions failed")
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, preds)
	})

	mux.HandleFunc("/api/comparisons", func(w http.ResponseWriter, r *http.Request) {
		limit := queryLimit(r, defaultListLimit)
		cmps, err := st.ListRecentComparisons(r.Context(), limit)
		if err != nil {
			logger.Warn().Err(err).Msg("list comparisons failed")
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, cmps)
	})

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func queryLimit(r *http.Request, fallback int) int {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
