// Command vibariant runs the statistical decision service: config →
// logger → history store → result cache → decision-log pipeline →
// observability → ship-gate policy → anomaly detector → HTTP server,
// with graceful shutdown on SIGTERM/SIGINT.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/discordwell/vibariant/analytics"
	"github.com/discordwell/vibariant/config"
	"github.com/discordwell/vibariant/forecast"
	"github.com/discordwell/vibariant/history"
	"github.com/discordwell/vibariant/logger"
	"github.com/discordwell/vibariant/observability"
	"github.com/discordwell/vibariant/policy"
	"github.com/discordwell/vibariant/resultcache"
	"github.com/discordwell/vibariant/router"
)

func main() {
	cfg := config.Load()
	log := logger.New(cfg)

	log.Info().Str("env", cfg.Env).Msg("vibariant starting")

	// History store: Redis-backed, falling back to an in-memory store
	// so the service is still usable without Redis in dev.
	var historyStore history.Store
	rc, err := history.New(cfg)
	if err != nil {
		log.Warn().Err(err).Msg("redis history store init failed — falling back to in-memory history")
		historyStore = history.NewInMemoryStore()
	} else if pingErr := rc.Ping(context.Background()); pingErr != nil {
		log.Warn().Err(pingErr).Msg("redis ping failed — falling back to in-memory history")
		historyStore = history.NewInMemoryStore()
	} else {
		log.Info().Msg("redis history store connected")
		historyStore = rc
	}

	cache := resultcache.New(log)

	// Decision-log pipeline
	var analyticsSink analytics.Sink
	if chDSN := os.Getenv("CLICKHOUSE_DSN"); chDSN != "" {
		chSink, err := analytics.NewClickHouseSink(chDSN, log)
		if err != nil {
			log.Warn().Err(err).Msg("clickhouse sink init failed — falling back to log sink")
			analyticsSink = analytics.NewLogSink(log)
		} else {
			analyticsSink = chSink
			log.Info().Msg("clickhouse analytics sink configured")
		}
	} else {
		analyticsSink = analytics.NewLogSink(log)
		log.Info().Msg("analytics using log sink (set CLICKHOUSE_DSN for production)")
	}
	analyticsPipeline := analytics.NewPipeline(log, analyticsSink)
	analyticsPipeline.Start(context.Background())

	// Observability
	metrics := observability.NewMetrics(log)
	traceExporter := observability.NewLogExporter(log)
	tracer := observability.NewTracer(log, traceExporter, 1.0) // sample 100% in dev

	var datadog *observability.DatadogExporter
	if os.Getenv("DATADOG_ENABLED") == "true" {
		ddCfg := observability.DefaultDatadogConfig()
		ddCfg.Enabled = true
		if addr := os.Getenv("DATADOG_AGENT_ADDRESS"); addr != "" {
			ddCfg.Address = addr
		}
		dd, err := observability.NewDatadogExporter(ddCfg, log)
		if err != nil {
			log.Warn().Err(err).Msg("datadog exporter init failed")
		} else {
			datadog = dd
			log.Info().Msg("datadog exporter enabled")
		}
	}

	var splunk *observability.SplunkForwarder
	if hecURL := os.Getenv("SPLUNK_HEC_URL"); hecURL != "" {
		splunkCfg := observability.DefaultSplunkConfig()
		splunkCfg.HECURL = hecURL
		splunkCfg.Token = os.Getenv("SPLUNK_HEC_TOKEN")
		splunkCfg.Enabled = true
		splunk = observability.NewSplunkForwarder(splunkCfg, log)
		log.Info().Msg("splunk forwarder enabled")
	}

	var watchdog *observability.ConfigErrorWatchdog
	if routingKey := os.Getenv("PAGERDUTY_ROUTING_KEY"); routingKey != "" {
		pdCfg := observability.DefaultPagerDutyConfig()
		pdCfg.RoutingKey = routingKey
		pdCfg.Enabled = true
		pagerduty := observability.NewPagerDutyClient(pdCfg, log)
		watchdog = observability.NewConfigErrorWatchdog(pagerduty, splunk, 5*time.Minute, 0.2)
		log.Info().Msg("pagerduty config-error watchdog enabled")
	}

	// Ship-gate policy, seeded with the built-in templates as a
	// starting point; operators adjust via the /v1/policies API.
	gate := policy.NewGate()
	for _, tmpl := range policy.BuiltinTemplates() {
		if _, err := gate.CreateRule(tmpl); err != nil {
			log.Warn().Err(err).Str("rule", tmpl.ID).Msg("failed to seed built-in policy template")
		}
	}

	detector := forecast.NewAnomalyDetector(24, 2.0)

	r := router.NewRouter(cfg, log, router.Deps{
		History:  historyStore,
		Cache:    cache,
		Pipeline: analyticsPipeline,
		Metrics:  metrics,
		Tracer:   tracer,
		Gate:     gate,
		Detector: detector,
		Watchdog: watchdog,
		Datadog:  datadog,
		Splunk:   splunk,
	})

	srv := &http.Server{
		Addr:         cfg.Addr,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: cfg.DefaultTimeout + 10*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		log.Info().Str("addr", cfg.Addr).Msg("vibariant listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	<-done
	log.Info().Msg("shutdown signal received")

	analyticsPipeline.Stop()
	tracer.Shutdown()
	if datadog != nil {
		datadog.Stop()
	}
	if splunk != nil {
		splunk.Stop()
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.GracefulTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	} else {
		log.Info().Msg("vibariant stopped gracefully")
	}
}
