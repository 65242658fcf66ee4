package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/careline/teleconsult/internal/audit"
	"github.com/careline/teleconsult/internal/config"
	"github.com/careline/teleconsult/internal/consult"
	"github.com/careline/teleconsult/internal/dispatch"
	"github.com/careline/teleconsult/internal/slot"
)

type RouterConfig struct {
	Dispatcher *dispatch.Dispatcher
	Service    *consult.Service
	Recorder   *audit.Recorder
	Ledger     *slot.Ledger
	Config     config.Config
	PgPool     *pgxpool.Pool
	Redis      *redis.Client
	Env        string
	Version    string
	Logger     zerolog.Logger
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Logger))
	r.Use(ActorMiddleware)

	health := NewHealthHandler(cfg.PgPool, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	// Intake is the unauthenticated SMS-gateway webhook.
	r.Post("/intake/sms", intakeSMSHandler(cfg.Dispatcher))

	r.Get("/requests", listRequestsHandler(cfg.Service))
	r.Post("/requests/{id}/accept", acceptRequestHandler(cfg.Dispatcher, cfg.Config))
	r.Post("/requests/{id}/reject", rejectRequestHandler(cfg.Dispatcher))

	r.Get("/consultations/{id}", getConsultationHandler(cfg.Service))
	r.Post("/consultations/{id}/patient", assignPatientHandler(cfg.Dispatcher))
	r.Post("/consultations/{id}/calls", createCallHandler(cfg.Dispatcher))

	r.Get("/slots/free", listFreeSlotsHandler(cfg.Ledger))
	r.Put("/slots/{ownerID}/{date}", bulkUpsertSlotsHandler(cfg.Dispatcher))

	r.Get("/audit/recent", auditRecentHandler(cfg.Recorder))
	r.Get("/audit/users/{userID}", auditByUserHandler(cfg.Recorder))

	return r
}
