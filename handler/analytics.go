package handler

import (
	"net/http"

	"github.com/rs/zerolog"

	"github.com/discordwell/vibariant/analytics"
)

// AnalyticsHandler exposes the decision-event pipeline's own health,
// the only thing the demo service needs to report — the events
// themselves live in whatever Sink is configured, outside this
// process's read path.
type AnalyticsHandler struct {
	pipeline *analytics.Pipeline
	logger   zerolog.Logger
}

// NewAnalyticsHandler creates a new analytics handler.
func NewAnalyticsHandler(pipeline *analytics.Pipeline, logger zerolog.Logger) *AnalyticsHandler {
	return &AnalyticsHandler{
		pipeline: pipeline,
		logger:   logger.With().Str("handler", "analytics").Logger(),
	}
}

// PipelineStats handles GET /v1/analytics/pipeline.
func (h *AnalyticsHandler) PipelineStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.pipeline.Stats())
}
