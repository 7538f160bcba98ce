package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/keyra/aicore/internal/adapters/gemini"
	router "github.com/keyra/aicore/internal/adapters/http"
	"github.com/keyra/aicore/internal/adapters/redisstore"
	"github.com/keyra/aicore/internal/adapters/rtc"
	"github.com/keyra/aicore/internal/adapters/ws"
	"github.com/keyra/aicore/internal/app"
	"github.com/keyra/aicore/internal/config"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize zerolog global logger early so config.Load can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	// Human-friendly output for terminal; in production you may want JSON only.
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid config")
	}

	kv, err := redisstore.New(ctx, cfg.RedisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to redis")
	}

	provider, err := gemini.NewClient(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create gemini client")
	}

	transports := rtc.NewFactory(rtc.DefaultWebRTCConfig())
	engine := app.NewEngine(provider, transports, kv, cfg.SessionTTL)
	conns := ws.NewConnectionManager()

	r := router.SetupRouter(ctx, cfg, engine, conns)
	addr := fmt.Sprintf(":%d", cfg.Port)

	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("AI Core server started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("server error")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	engine.CloseAll(shutdownCtx)

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	if err := kv.Close(); err != nil {
		log.Error().Err(err).Msg("failed to close redis")
	}
	log.Info().Msg("Server exited gracefully")
}
