package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/hackgods/opd-token-allocation/internal/opd"
	"github.com/hackgods/opd-token-allocation/internal/ratelimit"
)

const rateLimitMessage = "Too many requests from this IP, please try again later."

type RouterConfig struct {
	Service        *opd.Service
	PgPool         *pgxpool.Pool
	Redis          *redis.Client
	Logger         zerolog.Logger
	Limiter        ratelimit.Limiter
	Env            string
	Version        string
	AllowedOrigins []string
	BodyLimit      int64
	RequestTimeout time.Duration
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	// Apply middleware
	r.Use(RequestIDMiddleware)
	r.Use(middleware.RealIP)
	r.Use(LoggingMiddleware(cfg.Logger))
	r.Use(RecoveryMiddleware(cfg.Logger))
	r.Use(SecurityHeadersMiddleware)
	r.Use(CORSMiddleware(cfg.AllowedOrigins))
	r.Use(BodyLimitMiddleware(cfg.BodyLimit))
	if cfg.RequestTimeout > 0 {
		r.Use(middleware.Timeout(cfg.RequestTimeout))
	}

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "Can't find "+r.URL.RequestURI()+" on this server!")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "Method "+r.Method+" not allowed on "+r.URL.Path)
	})

	// Health endpoints
	health := NewHealthHandler(cfg.PgPool, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	svc := cfg.Service
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(ratelimit.Middleware(ratelimit.Options{
			Limiter:  cfg.Limiter,
			KeyFn:    ratelimit.DefaultKeyFunc("", false),
			FailOpen: true,
			Logger:   cfg.Logger,
			OnReject: func(w http.ResponseWriter, _ *http.Request, _ ratelimit.Decision) {
				writeJSON(w, http.StatusTooManyRequests, Envelope{Status: statusError, Message: rateLimitMessage})
			},
		}))

		r.Get("/health", health.Service)

		r.Route("/doctors", func(r chi.Router) {
			r.Post("/", createDoctorHandler(svc))
			r.Get("/", listDoctorsHandler(svc))
			r.Get("/{doctorId}", getDoctorHandler(svc))
			r.Put("/{doctorId}", updateDoctorHandler(svc))
			r.Delete("/{doctorId}", deleteDoctorHandler(svc))
		})

		r.Route("/slots", func(r chi.Router) {
			r.Post("/", createSlotHandler(svc))
			r.Get("/doctor/{doctorId}", doctorSlotsHandler(svc))
			r.Get("/{doctorId}/{time}/status", slotStatusHandler(svc))
			r.Get("/{slotId}/events", slotEventsHandler(svc))
			r.Put("/{slotId}", updateSlotHandler(svc))
			r.Post("/{slotId}/delay", delaySlotHandler(svc))
		})

		r.Route("/tokens", func(r chi.Router) {
			r.Post("/book", bookTokenHandler(svc))
			r.Post("/cancel", cancelTokenHandler(svc))
			r.Post("/emergency", emergencyTokenHandler(svc))
			r.Get("/{tokenId}/status", tokenStatusHandler(svc))
			r.Put("/{tokenId}/status", updateTokenStatusHandler(svc))
		})
	})

	return otelhttp.NewHandler(r, "opd-api",
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return r.Method + " " + r.URL.Path
		}),
	)
}
