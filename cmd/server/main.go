package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	router "github.com/dkeye/Roulette/internal/adapters/http"
	wssignal "github.com/dkeye/Roulette/internal/adapters/signal"
	"github.com/dkeye/Roulette/internal/app"
	"github.com/dkeye/Roulette/internal/app/orch"
	"github.com/dkeye/Roulette/internal/app/tokens"
	"github.com/dkeye/Roulette/internal/config"
	"github.com/dkeye/Roulette/internal/core"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// config.Load logs, so the global logger goes first.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	if cfg.Mode == "release" {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	}
	if lvl, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		zerolog.SetGlobalLevel(lvl)
	} else {
		log.Warn().Str("log_level", cfg.LogLevel).Msg("unknown log level, keeping info")
	}

	g, ctx := errgroup.WithContext(ctx)

	tokenCfg := core.TokenConfig{TTL: cfg.TokenTTL, Retention: cfg.TokenRetention}
	var store core.TokenStore
	switch cfg.TokenStore {
	case "redis":
		client, err := tokens.DialRedis(ctx, cfg.Redis.Addr)
		if err != nil {
			log.Fatal().Err(err).Str("addr", cfg.Redis.Addr).Msg("redis unavailable")
		}
		defer client.Close()
		store = tokens.NewRedisStore(client, cfg.Redis.KeyPrefix, tokenCfg)
	default:
		mem := tokens.NewMemoryStore(tokenCfg)
		g.Go(func() error {
			mem.Run(ctx, time.Minute)
			return nil
		})
		store = mem
	}

	reg := app.NewRegistry(store)
	rooms := app.NewRoomManager(reg)
	relay := app.NewRelay(reg, rooms, app.SimplePolicy{})
	presence := app.NewPresence(reg, cfg.PresenceInterval)
	o := orch.New(reg, rooms, relay, presence, orch.Settings{
		GraceWindow:     cfg.GraceWindow,
		TokenTTL:        cfg.TokenTTL,
		MatchMediaPrefs: cfg.MatchMediaPrefs,
		SearchTimeout:   cfg.SearchTimeout,
	})
	limiter := wssignal.NewClientRateLimiter(cfg.RateLimit, cfg.RateBurst)

	r := router.SetupRouter(ctx, cfg, o, limiter)
	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g.Go(func() error {
		log.Info().Str("addr", addr).Msg("Roulette server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		presence.Run(ctx)
		return nil
	})
	g.Go(func() error {
		o.Run(ctx)
		return nil
	})
	g.Go(func() error {
		limiter.Run(ctx, 5*time.Minute)
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		log.Info().Msg("Shutting down")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("server stopped with error")
		os.Exit(1)
	}
	log.Info().Msg("Server exited gracefully")
}
