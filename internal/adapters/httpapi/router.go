// Package httpapi exposes batch ingestion and ledger status lookups over
// HTTP.
package httpapi

import (
	"context"
	"crypto/subtle"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"orderbridge/internal/commit"
	"orderbridge/internal/ledger"
	"orderbridge/internal/observability"
	"orderbridge/internal/orders"
	"orderbridge/internal/reliability"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
)

// DefaultMaxBodyBytes bounds a batch request body.
const DefaultMaxBodyBytes int64 = 8 << 20

const (
	headerAPIKey    = "X-API-Key"
	headerRequestID = "X-Request-ID"
)

// Service is the order pipeline behind the HTTP routes.
type Service interface {
	ProcessBatch(ctx context.Context, envs []orders.Envelope) []commit.Result
	Status(ctx context.Context, key orders.Key) (ledger.Entry, error)
}

// Config wires the router. Everything except Service is optional. An empty
// APIKey disables authentication.
type Config struct {
	Service      Service
	APIKey       string
	Limiter      *reliability.RateLimiter
	Stats        *observability.Stats
	Prometheus   *observability.Prometheus
	Feed         http.Handler
	Logger       *slog.Logger
	MaxBodyBytes int64
}

type api struct {
	service  Service
	stats    *observability.Stats
	prom     *observability.Prometheus
	logger   *slog.Logger
	maxBytes int64
}

// NewRouter builds the HTTP surface:
//
//	POST /api/v1/orders/batch
//	GET  /api/v1/orders/{externalOrderId}/{instanceId}
//	GET  /ws/outcomes (API key required)
//	GET  /healthz
func NewRouter(cfg Config) http.Handler {
	a := &api{
		service:  cfg.Service,
		stats:    cfg.Stats,
		prom:     cfg.Prometheus,
		logger:   cfg.Logger,
		maxBytes: cfg.MaxBodyBytes,
	}
	if a.logger == nil {
		a.logger = slog.Default()
	}
	if a.maxBytes <= 0 {
		a.maxBytes = DefaultMaxBodyBytes
	}

	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if cfg.Feed != nil {
		r.With(requireAPIKey(cfg.APIKey)).Handle("/ws/outcomes", cfg.Feed)
	}

	r.Route("/api/v1", func(v1 chi.Router) {
		v1.Use(requireAPIKey(cfg.APIKey))
		v1.Use(rateLimit(cfg.Limiter, cfg.Stats))
		v1.Post("/orders/batch", a.instrument("POST /api/v1/orders/batch", a.submitBatch))
		v1.Get("/orders/{externalOrderId}/{instanceId}", a.instrument("GET /api/v1/orders/{key}", a.orderStatus))
	})
	return r
}

type requestIDKey struct{}

// RequestID returns the request id assigned by the router.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(headerRequestID)
		if id == "" || len(id) > 128 {
			id = uuid.NewString()
		}
		w.Header().Set(headerRequestID, id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey{}, id)))
	})
}

func requireAPIKey(key string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if key == "" {
			return next
		}
		want := []byte(key)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := []byte(r.Header.Get(headerAPIKey))
			if subtle.ConstantTimeCompare(got, want) != 1 {
				writeError(w, http.StatusUnauthorized, "missing or invalid API key")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func rateLimit(limiter *reliability.RateLimiter, stats *observability.Stats) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow() {
				stats.AddRateLimitReject()
				w.Header().Set("Retry-After", "1")
				writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// instrument records the call under a fixed route name in Stats and
// Prometheus. Responses with a 5xx status count as errors.
func (a *api) instrument(route string, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		span := a.stats.Start(route)
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		h(ww, r)

		code := ww.Status()
		if code == 0 {
			code = http.StatusOK
		}
		var err error
		if code >= http.StatusInternalServerError {
			err = fmt.Errorf("http status %d", code)
		}
		span.End(err)
		a.prom.ObserveRequest(route, strconv.Itoa(code), time.Since(start))
	}
}
