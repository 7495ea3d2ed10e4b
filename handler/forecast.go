package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/discordwell/vibariant/forecast"
)

// ForecastHandler exposes the anomaly detector over HTTP.
type ForecastHandler struct {
	detector *forecast.AnomalyDetector
	logger   zerolog.Logger
}

// NewForecastHandler creates a new forecast handler.
func NewForecastHandler(detector *forecast.AnomalyDetector, logger zerolog.Logger) *ForecastHandler {
	return &ForecastHandler{detector: detector, logger: logger.With().Str("handler", "forecast").Logger()}
}

type anomalyCheckRequest struct {
	Value float64 `json:"value"`
}

// CheckAnomaly handles POST /v1/experiments/{id}/variants/{variant}/anomaly:
// appends value to the variant's rolling engagement-rate window and
// reports whether it deviates from that window's baseline.
func (h *ForecastHandler) CheckAnomaly(w http.ResponseWriter, r *http.Request) {
	experimentKey := chi.URLParam(r, "id")
	variant := chi.URLParam(r, "variant")

	var body anomalyCheckRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}

	key := experimentKey + ":" + variant
	result := h.detector.Check(key, body.Value)
	writeJSON(w, http.StatusOK, result)
}
