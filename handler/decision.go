package handler

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/discordwell/vibariant/analytics"
	"github.com/discordwell/vibariant/engine"
	"github.com/discordwell/vibariant/history"
	"github.com/discordwell/vibariant/middleware"
	"github.com/discordwell/vibariant/observability"
	"github.com/discordwell/vibariant/resultcache"
)

// DecisionHandler provides the HTTP surface over engine.Evaluate and
// engine.Calibrate — the demo service that plays the role of "the
// caller" the engine's pure-function contract assumes (SPEC_FULL.md
// §"Demo HTTP service").
type DecisionHandler struct {
	history        history.Store
	cache          *resultcache.Cache
	pipeline       *analytics.Pipeline
	metrics        *observability.Metrics
	tracer         *observability.Tracer
	watchdog       *observability.ConfigErrorWatchdog
	datadog        *observability.DatadogExporter
	splunk         *observability.SplunkForwarder
	engineDefaults engine.EngineConfig
	dedup          *middleware.Deduplicator
	logger         zerolog.Logger
}

// NewDecisionHandler creates a decision handler. pipeline, metrics,
// tracer, watchdog, datadog and splunk may each be nil, in which case
// the corresponding instrumentation is simply skipped. engineDefaults
// seeds every EngineConfig field a request's config does not set.
func NewDecisionHandler(store history.Store, cache *resultcache.Cache, pipeline *analytics.Pipeline, metrics *observability.Metrics, tracer *observability.Tracer, watchdog *observability.ConfigErrorWatchdog, datadog *observability.DatadogExporter, splunk *observability.SplunkForwarder, engineDefaults engine.EngineConfig, logger zerolog.Logger) *DecisionHandler {
	return &DecisionHandler{
		history:        store,
		cache:          cache,
		pipeline:       pipeline,
		metrics:        metrics,
		tracer:         tracer,
		watchdog:       watchdog,
		datadog:        datadog,
		splunk:         splunk,
		engineDefaults: engineDefaults,
		dedup:          middleware.NewDeduplicator(),
		logger:         logger.With().Str("handler", "decision").Logger(),
	}
}

// evaluateRequest is the POST body for /v1/experiments/{id}/evaluate: a
// snapshot plus an optional config override, matching engine §3/§6.
type evaluateRequest struct {
	Variants    []string             `json:"variants"`
	Exposures   map[string]int       `json:"exposures"`
	Conversions map[string]int       `json:"conversions"`
	Engagement  map[string][]float64 `json:"engagement,omitempty"`
	Covariate   map[string][]float64 `json:"covariate,omitempty"`
	Config      *engine.EngineConfig `json:"config,omitempty"`

	// EngagementFeatures carries raw per-visitor proxy-metric inputs,
	// blended into Engagement scores via the project's last calibrated
	// weight vector (falling back to engine.DefaultEngagementWeights)
	// before the snapshot reaches engine.Evaluate. A variant present in
	// both Engagement and EngagementFeatures has its blended scores win.
	EngagementFeatures map[string][]engine.EngagementFeatures `json:"engagement_features,omitempty"`
}

// Evaluate handles POST /v1/experiments/{id}/evaluate.
func (h *DecisionHandler) Evaluate(w http.ResponseWriter, r *http.Request) {
	experimentKey := chi.URLParam(r, "id")
	projectID := middleware.GetAPIKey(r.Context())
	if projectID == "" {
		projectID = "default"
	}

	// The request's config is decoded over the defaults, so any option it
	// omits keeps its default value; an unknown key is a config error.
	cfg := h.engineDefaults
	body := evaluateRequest{Config: &cfg}
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&body); err != nil {
		code := "invalid_json"
		if strings.HasPrefix(err.Error(), "json: unknown field ") {
			code = "invalid_config"
		}
		writeError(w, http.StatusBadRequest, code, err.Error())
		return
	}

	if body.Config != nil {
		cfg = *body.Config
	}

	hist, err := h.history.List(r.Context(), projectID, 0)
	if err != nil {
		h.logger.Warn().Err(err).Str("project", projectID).Msg("history lookup failed, proceeding without it")
		hist = nil
	}

	if len(body.EngagementFeatures) > 0 {
		weights := engine.DefaultEngagementWeights
		if persisted, werr := h.history.GetEngagementWeights(r.Context(), projectID); werr != nil {
			h.logger.Warn().Err(werr).Str("project", projectID).Msg("engagement weight lookup failed, using defaults")
		} else if persisted != nil {
			weights = *persisted
		}
		if body.Engagement == nil {
			body.Engagement = make(map[string][]float64, len(body.EngagementFeatures))
		}
		for v, features := range body.EngagementFeatures {
			scores := make([]float64, len(features))
			for i, f := range features {
				scores[i] = engine.BlendEngagement(f, weights)
			}
			body.Engagement[v] = scores
		}
	}

	snapshot := engine.ExperimentSnapshot{
		ExperimentKey: experimentKey,
		Variants:      body.Variants,
		Exposures:     body.Exposures,
		Conversions:   body.Conversions,
		Engagement:    body.Engagement,
		Covariate:     body.Covariate,
		Config:        cfg,
		History:       hist,
	}

	fingerprint := resultcache.Fingerprint(experimentKey, snapshot)
	if h.cache != nil {
		if cached, ok := h.cache.Get(projectID, fingerprint); ok {
			if h.metrics != nil {
				h.metrics.TrackCacheResult(true)
			}
			if h.datadog != nil {
				h.datadog.RecordCacheResult(true)
			}
			writeJSON(w, http.StatusOK, cached)
			return
		}
		if h.metrics != nil {
			h.metrics.TrackCacheResult(false)
		}
		if h.datadog != nil {
			h.datadog.RecordCacheResult(false)
		}
	}

	var span *observability.Span
	if h.tracer != nil {
		span = h.tracer.StartSpan("Evaluate", nil)
		span.SetAttribute("experiment_key", experimentKey)
		span.SetAttribute("project_id", projectID)
	}

	dedupKey := projectID + ":" + fingerprint
	entry, isLeader := h.dedup.TryStart(dedupKey)

	var result *engine.EngineResult
	start := time.Now()
	if isLeader {
		if h.metrics != nil {
			h.metrics.MonteCarloSampleStarted()
		}
		result, err = engine.Evaluate(snapshot)
		if h.metrics != nil {
			h.metrics.MonteCarloSampleFinished()
		}
		h.dedup.Complete(dedupKey, result, err)
	} else {
		<-entry.Done
		if entry.Result != nil {
			result = entry.Result.(*engine.EngineResult)
		}
		err = entry.Err
	}
	latencyMs := float64(time.Since(start).Microseconds()) / 1000.0

	if err != nil {
		if span != nil {
			span.SetStatus("ERROR", err.Error())
			h.tracer.EndSpan(span)
		}
		if h.metrics != nil {
			h.metrics.TrackConfigError(projectID, err.Error())
		}
		if h.datadog != nil {
			h.datadog.RecordConfigError(projectID, err.Error())
		}
		if h.watchdog != nil {
			h.watchdog.RecordCall(projectID, true)
		}
		switch err.(type) {
		case *engine.ConfigError:
			writeError(w, http.StatusBadRequest, "invalid_config", err.Error())
		case *engine.DataError:
			writeError(w, http.StatusUnprocessableEntity, "invalid_data", err.Error())
		default:
			writeError(w, http.StatusInternalServerError, "evaluate_failed", err.Error())
		}
		return
	}

	if span != nil {
		span.SetAttribute("decision_status", string(result.Decision.DecisionStatus))
		h.tracer.EndSpan(span)
		h.tracer.EmitPipelineSpans(span, engine.PipelineStages, result.StageDurations)
	}
	if h.metrics != nil {
		h.metrics.TrackEvaluate(projectID, string(result.Decision.DecisionStatus), latencyMs)
	}
	if h.datadog != nil {
		h.datadog.RecordEvaluate(projectID, string(result.Decision.DecisionStatus), latencyMs)
	}
	if h.watchdog != nil {
		h.watchdog.RecordCall(projectID, false)
	}

	if h.cache != nil {
		h.cache.Put(projectID, fingerprint, *result)
	}

	if h.pipeline != nil {
		h.pipeline.Track(analytics.NewDecisionEvent(projectID, *result))
	}

	if h.splunk != nil {
		h.splunk.LogDecision(projectID, experimentKey, string(result.Decision.DecisionStatus), result.Decision.ConfidencePct, int64(result.TotalVisitors))
	}

	h.logger.Info().
		Str("experiment", experimentKey).
		Str("decision_status", string(result.Decision.DecisionStatus)).
		Msg("evaluate completed")

	writeJSON(w, http.StatusOK, result)
}

// calibrateRequest is the POST body for /v1/experiments/{id}/calibrate.
type calibrateRequest struct {
	Samples []engine.CalibrationSample `json:"samples"`
}

// Calibrate handles POST /v1/experiments/{id}/calibrate: runs the
// offline OLS calibrator over posted history and persists the resulting
// engagement weights for the project, so a subsequent Evaluate call
// with EngagementFeatures blends against the latest calibration instead
// of engine.DefaultEngagementWeights.
func (h *DecisionHandler) Calibrate(w http.ResponseWriter, r *http.Request) {
	projectID := middleware.GetAPIKey(r.Context())
	if projectID == "" {
		projectID = "default"
	}

	var body calibrateRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}

	weights := engine.Calibrate(body.Samples)

	if err := h.history.SetEngagementWeights(r.Context(), projectID, weights); err != nil {
		h.logger.Warn().Err(err).Str("project", projectID).Msg("failed to persist calibrated engagement weights")
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"weights": map[string]float64{
			"scroll_depth": weights[0],
			"active_time":  weights[1],
			"click_count":  weights[2],
			"form_engaged": weights[3],
		},
		"sample_count": len(body.Samples),
	})
}
