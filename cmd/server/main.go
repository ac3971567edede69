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

	router "github.com/NolanKnievel/bucket-list-sub001/internal/adapters/http"
	wssignal "github.com/NolanKnievel/bucket-list-sub001/internal/adapters/signal"
	"github.com/NolanKnievel/bucket-list-sub001/internal/app"
	"github.com/NolanKnievel/bucket-list-sub001/internal/app/stats"
	"github.com/NolanKnievel/bucket-list-sub001/internal/config"
	"github.com/NolanKnievel/bucket-list-sub001/internal/store"
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
	switch cfg.Mode {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "release":
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	}

	if err := run(ctx, cfg); err != nil {
		log.Fatal().Err(err).Msg("server error")
	}
	log.Info().Msg("Server exited gracefully")
}

func openStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	if cfg.DatabaseURL == "" {
		log.Info().Str("module", "store").Msg("using in-memory store")
		return store.NewMemory(), nil
	}
	pg, err := store.Connect(ctx, store.PoolConfig{URL: cfg.DatabaseURL})
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return pg, nil
}

func run(ctx context.Context, cfg *config.Config) error {
	st, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	hub := app.NewHub(app.HubConfig{CommandBuffer: cfg.CommandBuffer, Policy: app.KickPolicy{}})
	groups := &app.Orchestrator{Store: st, Hub: hub}
	signalCtl := wssignal.NewSignalWSController(hub, groups, wssignal.Config{
		ReadLimit:         cfg.ReadLimit,
		PingPeriod:        cfg.PingPeriod,
		PongWait:          cfg.PongWait,
		WriteWait:         cfg.WriteWait,
		SendBuffer:        cfg.SendBuffer,
		MaxProtocolErrors: cfg.MaxProtocolErrors,
		RateBurst:         cfg.RateLimit.Burst,
		RateInterval:      cfg.RateLimit.Interval,
		AllowedOrigins:    cfg.AllowedOrigins,
	})

	r := router.SetupRouter(cfg, router.Deps{
		Groups: groups,
		Stats:  stats.NewService(hub),
		Signal: signalCtl,
	})
	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		hub.Run(gctx)
		return nil
	})
	g.Go(func() error {
		log.Info().Str("addr", addr).Msg("bucket-list server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("Shutting down")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer shutdownCancel()

		var errs []error
		if err := srv.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("http: %w", err))
		}
		if err := signalCtl.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, err)
		}
		if err := hub.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, err)
		}
		return errors.Join(errs...)
	})
	return g.Wait()
}
