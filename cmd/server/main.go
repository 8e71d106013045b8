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

	router "github.com/koinonia/liveworkshop/internal/adapters/http"
	"github.com/koinonia/liveworkshop/internal/adapters/notify"
	"github.com/koinonia/liveworkshop/internal/adapters/sfu"
	"github.com/koinonia/liveworkshop/internal/adapters/store"
	"github.com/koinonia/liveworkshop/internal/config"
	"github.com/koinonia/liveworkshop/internal/domain"
	"github.com/koinonia/liveworkshop/internal/session"
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

	issuer, err := sfu.NewTokenService(cfg.SFU.AppID, cfg.SFU.AppCertificate, cfg.SFU.TokenTTL)
	if err != nil {
		log.Fatal().Err(err).Msg("sfu token service")
	}

	workshops := store.NewMemory()
	for _, w := range cfg.Workshops {
		workshops.Seed(domain.Workshop{
			ID:       domain.WorkshopID(w.ID),
			Title:    w.Title,
			HostID:   domain.UserID(w.HostID),
			Capacity: w.Capacity,
		})
	}

	deps := session.Deps{
		Issuer:       issuer,
		Store:        workshops,
		Notifier:     notify.NewLogNotifier(),
		IssueRetries: cfg.SFU.IssueRetries,
		RetryBackoff: cfg.SFU.RetryBackoff,
		IssueTimeout: cfg.SFU.IssueTimeout,
	}
	manager := session.NewManager(deps, cfg.SweepInterval, cfg.IdleLobbyWarn)
	go manager.Run(ctx)

	r := router.SetupRouter(ctx, cfg, manager)
	addr := fmt.Sprintf(":%d", cfg.Port)

	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("Workshop coordinator started")
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
	manager.Shutdown()
	log.Info().Msg("Server exited gracefully")
}
