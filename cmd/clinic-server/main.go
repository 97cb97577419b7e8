package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/xXGrimmesXx/CabiLib/internal/api"
	"github.com/xXGrimmesXx/CabiLib/internal/billing"
	"github.com/xXGrimmesXx/CabiLib/internal/clinic"
	"github.com/xXGrimmesXx/CabiLib/internal/config"
	"github.com/xXGrimmesXx/CabiLib/internal/db"
	"github.com/xXGrimmesXx/CabiLib/internal/invoicedoc"
	"github.com/xXGrimmesXx/CabiLib/internal/outbound"
	"github.com/xXGrimmesXx/CabiLib/internal/outbox"
	redisclient "github.com/xXGrimmesXx/CabiLib/internal/redis"
)

const version = "1.0.0"

func main() {
	log := newLogger()
	log.Info().Msg("clinic-server starting up")

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config load error")
	}
	if cfg.Env == "dev" {
		log = log.Output(zerolog.ConsoleWriter{Out: os.Stdout})
	}
	log.Info().Str("env", cfg.Env).Str("http_port", cfg.HTTPPort).Msg("configuration loaded")

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

	rdb, err := redisclient.NewRedisClient(cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword)
	if err != nil {
		log.Fatal().Err(err).Msg("redis connection error")
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			log.Error().Err(err).Msg("error closing redis")
		}
	}()
	log.Info().Msg("connected to Redis")

	repos := clinic.NewRepositories(pgPool)
	locker := redisclient.NewRedisLocker(rdb, cfg.LockTTL)
	store := outbox.NewPgStore(pgPool)

	scheduler := clinic.NewScheduler(repos, locker, store, log)
	engine := billing.NewEngine(repos, invoicedoc.NewHTMLRenderer(), store, locker, cfg, log)

	// The delivery worker runs inside the server process; the standalone
	// outbound-worker binary exists for running it separately.
	client := outbound.NewHTTPClient(cfg.CalendarEndpoint, cfg.MailEndpoint)
	handlers := outbox.NewHandlers(client, client, repos.Appointments, log)
	worker := outbox.NewWorker(store, outbox.NewHTTPProbe(cfg.ProbeURL),
		handlers, cfg.WorkerPollInterval, cfg.WorkerOfflineInterval, cfg.QueueMaxAttempts, log)
	go worker.Run(rootCtx)

	router := api.NewRouter(api.RouterConfig{
		Repos:     repos,
		Scheduler: scheduler,
		Engine:    engine,
		PgPool:    pgPool,
		Redis:     rdb,
		Log:       log,
		Env:       cfg.Env,
		Version:   version,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("http server error")
		}
	}()

	<-rootCtx.Done()
	log.Info().Msg("shutting down clinic-server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http shutdown error")
	}

	select {
	case <-worker.Done():
	case <-shutdownCtx.Done():
		log.Warn().Msg("outbox worker did not stop in time")
	}
}

func newLogger() zerolog.Logger {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}
