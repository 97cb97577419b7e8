package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/xXGrimmesXx/CabiLib/internal/billing"
	"github.com/xXGrimmesXx/CabiLib/internal/clinic"
)

type RouterConfig struct {
	Repos     clinic.Repositories
	Scheduler *clinic.Scheduler
	Engine    *billing.Engine
	PgPool    *pgxpool.Pool
	Redis     *redis.Client
	Log       zerolog.Logger
	Env       string
	Version   string
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Log))

	health := NewHealthHandler(cfg.PgPool, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	r.Route("/patients", func(r chi.Router) {
		r.Post("/", createPatientHandler(cfg.Repos.Patients))
		r.Get("/", listPatientsHandler(cfg.Repos.Patients))
		r.Get("/{id}", getPatientHandler(cfg.Repos.Patients))
		r.Put("/{id}", updatePatientHandler(cfg.Repos.Patients))
		r.Post("/{id}/bill", billPatientHandler(cfg.Engine))
	})

	r.Route("/appointment-types", func(r chi.Router) {
		r.Post("/", createTypeHandler(cfg.Repos.Types))
		r.Get("/", listTypesHandler(cfg.Repos.Types))
		r.Get("/{id}", getTypeHandler(cfg.Repos.Types))
		r.Put("/{id}", updateTypeHandler(cfg.Scheduler))
		r.Delete("/{id}", deleteTypeHandler(cfg.Repos.Types))
	})

	r.Route("/appointments", func(r chi.Router) {
		r.Post("/", scheduleAppointmentHandler(cfg.Scheduler))
		r.Get("/", listAppointmentsHandler(cfg.Repos.Appointments))
		r.Get("/availability", slotAvailabilityHandler(cfg.Scheduler))
		r.Get("/{id}", getAppointmentHandler(cfg.Repos.Appointments))
		r.Put("/{id}", rescheduleAppointmentHandler(cfg.Scheduler))
		r.Post("/{id}/presence", recordPresenceHandler(cfg.Scheduler))
	})

	r.Post("/billing/run", billAllHandler(cfg.Engine))

	r.Route("/invoices", func(r chi.Router) {
		r.Get("/", listInvoicesHandler(cfg.Repos.Invoices))
		r.Get("/{id}", getInvoiceHandler(cfg.Repos.Invoices, cfg.Repos.Lines))
		r.Post("/{id}/pay", markInvoicePaidHandler(cfg.Repos.Invoices))
	})

	return r
}
