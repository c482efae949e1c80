package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/xf0e/autosense"
)

// To test it:
// curl -F image=@plate.jpg http://localhost:8080/scan

func init() {
	zerolog.TimeFieldFormat = time.StampMilli
	// Default level is info, unless debug flag is present
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
}

func main() {
	appConfig, err := autosense.DefaultConfigFlagsOverride(autosense.NoOpFlagFunction())
	if err != nil {
		log.Fatal().Err(err).Str("component", "CLI_HTTP").Msg("invalid configuration")
	}
	if appConfig.Debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
	)

	server, err := autosense.NewServerFromConfig(appConfig, registry)
	if err != nil {
		log.Fatal().Err(err).Str("component", "CLI_HTTP").Msg("could not create server")
	}
	mux := server.Routes()
	// expose metrics for prometheus
	mux.Handle("GET /metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	listenAddr := fmt.Sprintf(":%d", appConfig.HTTPPort)
	httpServer := &http.Server{
		Addr:              listenAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	sweepCtx, stopSweeper := context.WithCancel(context.Background())
	defer stopSweeper()
	go server.RunSessionSweeper(sweepCtx, time.Minute)

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGTERM, syscall.SIGINT)
	go func() {
		sig := <-signals
		log.Info().Str("component", "CLI_HTTP").Str("signal", sig.String()).
			Msg("Caught signal to terminate, draining in flight requests")
		stopSweeper()
		ctx, cancel := context.WithTimeout(context.Background(), appConfig.RecognizeTimeout+5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(ctx); err != nil {
			log.Error().Err(err).Str("component", "CLI_HTTP").Msg("graceful shutdown failed")
		}
	}()

	log.Info().Str("component", "CLI_HTTP").Str("listenAddr", listenAddr).Msg("Starting listener...")
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal().Err(err).Str("component", "CLI_HTTP").Caller().Msg("cli_http has failed to start")
	}
	log.Info().Str("component", "CLI_HTTP").Msg("http daemon stopped")
}
