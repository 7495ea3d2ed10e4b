// Package router assembles the chi router for the decision service:
// CORS → Security Headers → Request ID → Recoverer → Request Logger
// → Tracing → Body Size Limit, then auth + rate limiting in front of
// the /v1 API surface.
package router

import (
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/discordwell/vibariant/analytics"
	"github.com/discordwell/vibariant/config"
	"github.com/discordwell/vibariant/engine"
	"github.com/discordwell/vibariant/forecast"
	"github.com/discordwell/vibariant/handler"
	"github.com/discordwell/vibariant/history"
	gwmw "github.com/discordwell/vibariant/middleware"
	"github.com/discordwell/vibariant/observability"
	"github.com/discordwell/vibariant/policy"
	"github.com/discordwell/vibariant/resultcache"
)

// Deps bundles the service dependencies NewRouter wires into handlers.
// Pipeline, Metrics, Tracer, and Gate may be nil, in which case the
// corresponding instrumentation or routes are skipped.
type Deps struct {
	History  history.Store
	Cache    *resultcache.Cache
	Pipeline *analytics.Pipeline
	Metrics  *observability.Metrics
	Tracer   *observability.Tracer
	Gate     *policy.Gate
	Detector *forecast.AnomalyDetector
	Watchdog *observability.ConfigErrorWatchdog
	Datadog  *observability.DatadogExporter
	Splunk   *observability.SplunkForwarder
}

// engineDefaults returns the EngineConfig NewRouter seeds DecisionHandler
// with. Falls back to engine.DefaultConfig() if cfg.EngineDefaults was
// never populated (its MCSamples field is the zero value) — e.g. a test
// that builds a bare config.Config by hand instead of going through
// config.Load().
func engineDefaults(cfg *config.Config) engine.EngineConfig {
	if cfg.EngineDefaults.MCSamples <= 0 {
		return engine.DefaultConfig()
	}
	return cfg.EngineDefaults
}

// NewRouter returns a configured chi Router with the full middleware
// chain and all API routes mounted.
func NewRouter(cfg *config.Config, appLogger zerolog.Logger, deps Deps) http.Handler {
	r := chi.NewRouter()

	// --- Middleware Chain (order matters) ---
	r.Use(gwmw.CORSMiddleware([]string{"*"}))
	r.Use(gwmw.SecurityHeadersMiddleware)
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(mwRequestLogger(appLogger))

	if deps.Tracer != nil {
		r.Use(observability.TracingMiddleware(deps.Tracer))
	}

	r.Use(mwMaxBodySize(cfg.MaxBodyBytes))

	// --- Health endpoints (no auth required) ---
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok","service":"vibariant"}`))
	})

	r.Get("/ready", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ready","service":"vibariant"}`))
	})

	if deps.Metrics != nil {
		r.Get("/metrics", deps.Metrics.Handler())
	}

	r.Get("/openapi.json", handler.OpenAPIHandler())
	r.Get("/docs", handler.SwaggerUIHandler())

	// --- API Routes (auth + rate limiting required) ---
	decisionHandler := handler.NewDecisionHandler(deps.History, deps.Cache, deps.Pipeline, deps.Metrics, deps.Tracer, deps.Watchdog, deps.Datadog, deps.Splunk, engineDefaults(cfg), appLogger)
	cacheHandler := handler.NewCacheHandler(deps.Cache, appLogger)

	var analyticsHandler *handler.AnalyticsHandler
	if deps.Pipeline != nil {
		analyticsHandler = handler.NewAnalyticsHandler(deps.Pipeline, appLogger)
	}

	var policyHandler *handler.PolicyHandler
	if deps.Gate != nil {
		policyHandler = handler.NewPolicyHandler(deps.Gate, appLogger)
	}

	var forecastHandler *handler.ForecastHandler
	if deps.Detector != nil {
		forecastHandler = handler.NewForecastHandler(deps.Detector, appLogger)
	}

	authMW := gwmw.NewAuthMiddleware(appLogger, cfg.APIKeyHeader)
	rateLimiter := gwmw.NewRateLimiter(appLogger, cfg.RateLimitEnabled, cfg.RateLimitRPM, cfg.RateLimitBurst)
	timeoutMW := gwmw.NewTimeoutMiddleware(appLogger, cfg)
	concurrencyGuard := gwmw.NewConcurrencyGuard(8, 5*time.Second, appLogger)

	r.Route("/v1", func(r chi.Router) {
		r.Use(authMW.Handler)
		r.Use(rateLimiter.Handler)
		r.Use(concurrencyGuard.Middleware)
		r.Use(timeoutMW.Handler)

		// Decision engine
		r.Post("/experiments/{id}/evaluate", decisionHandler.Evaluate)
		r.Post("/experiments/{id}/calibrate", decisionHandler.Calibrate)

		// Result cache administration
		r.Get("/cache/stats", cacheHandler.Stats)
		r.Delete("/cache", cacheHandler.FlushAll)
		r.Delete("/cache/{namespace}", cacheHandler.FlushNamespace)
		r.Delete("/cache/{namespace}/{fingerprint}", cacheHandler.InvalidateEntry)

		// Decision-log pipeline health
		if analyticsHandler != nil {
			r.Get("/analytics/pipeline", analyticsHandler.PipelineStats)
		}

		// Ship-gate policy rules
		if policyHandler != nil {
			r.Get("/policies", policyHandler.ListRules)
			r.Post("/policies", policyHandler.CreateRule)
			r.Get("/policies/templates", policyHandler.ListTemplates)
			r.Get("/policies/evaluations", policyHandler.GetEvaluationLog)
			r.Post("/policies/evaluate", policyHandler.EvaluateRule)
			r.Get("/policies/{id}", policyHandler.GetRule)
			r.Put("/policies/{id}", policyHandler.UpdateRule)
			r.Delete("/policies/{id}", policyHandler.DeleteRule)
		}

		// Engagement-rate anomaly detection
		if forecastHandler != nil {
			r.Post("/experiments/{id}/variants/{variant}/anomaly", forecastHandler.CheckAnomaly)
		}
	})

	return r
}

// mwMaxBodySize returns middleware that limits the request body size.
func mwMaxBodySize(maxBytes int64) func(http.Handler) http.Handler {
	if maxBytes <= 0 {
		maxBytes = 1 * 1024 * 1024 // default 1MB
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			max := maxBytes
			if v := os.Getenv("VIBARIANT_MAX_BODY_BYTES"); v != "" {
				if parsed, err := strconv.ParseInt(v, 10, 64); err == nil && parsed > 0 {
					max = parsed
				}
			}

			if r.ContentLength > 0 && r.ContentLength > max {
				http.Error(w, `{"error":"request_too_large","message":"request body too large"}`, http.StatusRequestEntityTooLarge)
				return
			}

			r.Body = http.MaxBytesReader(w, r.Body, max)
			next.ServeHTTP(w, r)
		})
	}
}

func mwRequestLogger(appLogger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(rw, r)
			dur := time.Since(start)
			reqID := chimw.GetReqID(r.Context())
			appLogger.Info().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Str("req_id", reqID).
				Int("status", rw.Status()).
				Dur("duration", dur).
				Msg("request completed")
		})
	}
}
