package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	router "github.com/onlylang/livesignal/internal/adapters/http"
	"github.com/onlylang/livesignal/internal/adapters/ws"
	"github.com/onlylang/livesignal/internal/app"
	"github.com/onlylang/livesignal/internal/config"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize zerolog global logger early so config.Load can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	streamer := app.NewStreamManager()
	registry := app.NewRegistry()
	sigRouter := app.NewRouter(registry, streamer)
	acceptor := ws.NewAcceptor(cfg.WSAddr(), sigRouter, registry, streamer, cfg.ReadLimit, cfg.WriteTimeout)

	r := router.SetupRouter(cfg, streamer, acceptor)
	srv := &http.Server{
		Addr:    cfg.AdminAddr(),
		Handler: r,
	}

	acceptor.Start()
	go func() {
		log.Info().Str("addr", cfg.AdminAddr()).Msg("livesignal server started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("server error")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	acceptor.Stop(shutdownCtx)
	log.Info().Msg("Server exited gracefully")
}
