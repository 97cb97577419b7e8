package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/xXGrimmesXx/CabiLib/internal/clinic"
	"github.com/xXGrimmesXx/CabiLib/internal/config"
	"github.com/xXGrimmesXx/CabiLib/internal/db"
	"github.com/xXGrimmesXx/CabiLib/internal/outbound"
	"github.com/xXGrimmesXx/CabiLib/internal/outbox"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log := zerolog.New(os.Stdout).With().Timestamp().Logger()
	log.Info().Msg("outbound-worker starting up")

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config load error")
	}
	log.Info().
		Str("env", cfg.Env).
		Dur("poll_interval", cfg.WorkerPollInterval).
		Msg("configuration loaded")

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN)
	cancelPg()
	if err != nil {
		log.Fatal().Err(err).Msg("postgres connection error")
	}
	defer pgPool.Close()
	log.Info().Msg("connected to Postgres")

	repos := clinic.NewRepositories(pgPool)
	store := outbox.NewPgStore(pgPool)

	client := outbound.NewHTTPClient(cfg.CalendarEndpoint, cfg.MailEndpoint)
	handlers := outbox.NewHandlers(client, client, repos.Appointments, log)
	worker := outbox.NewWorker(store, outbox.NewHTTPProbe(cfg.ProbeURL),
		handlers, cfg.WorkerPollInterval, cfg.WorkerOfflineInterval, cfg.QueueMaxAttempts, log)

	worker.Run(rootCtx)
	log.Info().Msg("outbound-worker stopped")
}
