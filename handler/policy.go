package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/discordwell/vibariant/engine"
	"github.com/discordwell/vibariant/policy"
)

// policyEvaluateRequest wraps the result the gate evaluates; callers
// post the output of a prior Evaluate call.
type policyEvaluateRequest struct {
	Result engine.EngineResult `json:"result"`
}

// PolicyHandler provides HTTP handlers for the governance gate.
type PolicyHandler struct {
	gate   *policy.Gate
	logger zerolog.Logger
}

// NewPolicyHandler creates a new policy handler.
func NewPolicyHandler(gate *policy.Gate, logger zerolog.Logger) *PolicyHandler {
	return &PolicyHandler{gate: gate, logger: logger.With().Str("handler", "policy").Logger()}
}

// ListRules handles GET /v1/policies.
func (h *PolicyHandler) ListRules(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.gate.ListRules())
}

// CreateRule handles POST /v1/policies.
func (h *PolicyHandler) CreateRule(w http.ResponseWriter, r *http.Request) {
	var rule policy.Rule
	if err := json.NewDecoder(r.Body).Decode(&rule); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}

	created, err := h.gate.CreateRule(rule)
	if err != nil {
		writeError(w, http.StatusBadRequest, "create_failed", err.Error())
		return
	}

	h.logger.Info().Str("id", created.ID).Str("name", created.Name).Msg("policy rule created")
	writeJSON(w, http.StatusCreated, created)
}

// GetRule handles GET /v1/policies/{id}.
func (h *PolicyHandler) GetRule(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	rule, err := h.gate.GetRule(id)
	if err != nil {
		writeError(w, http.StatusNotFound, "not_found", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, rule)
}

// UpdateRule handles PUT /v1/policies/{id}.
func (h *PolicyHandler) UpdateRule(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var rule policy.Rule
	if err := json.NewDecoder(r.Body).Decode(&rule); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}
	rule.ID = id

	updated, err := h.gate.UpdateRule(rule)
	if err != nil {
		writeError(w, http.StatusBadRequest, "update_failed", err.Error())
		return
	}

	h.logger.Info().Str("id", id).Msg("policy rule updated")
	writeJSON(w, http.StatusOK, updated)
}

// DeleteRule handles DELETE /v1/policies/{id}.
func (h *PolicyHandler) DeleteRule(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.gate.DeleteRule(id); err != nil {
		writeError(w, http.StatusNotFound, "not_found", err.Error())
		return
	}
	h.logger.Info().Str("id", id).Msg("policy rule deleted")
	w.WriteHeader(http.StatusNoContent)
}

// EvaluateRule handles POST /v1/policies/evaluate, taking a full
// engine result and returning whether the configured rules allow
// auto-promotion.
func (h *PolicyHandler) EvaluateRule(w http.ResponseWriter, r *http.Request) {
	var result policyEvaluateRequest
	if err := json.NewDecoder(r.Body).Decode(&result); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}
	decision := h.gate.Evaluate(result.Result)
	writeJSON(w, http.StatusOK, decision)
}

// GetEvaluationLog handles GET /v1/policies/evaluations.
func (h *PolicyHandler) GetEvaluationLog(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.gate.EvaluationLog(0))
}

// ListTemplates handles GET /v1/policies/templates.
func (h *PolicyHandler) ListTemplates(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, policy.BuiltinTemplates())
}
