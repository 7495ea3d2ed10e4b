package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// OpenAPISpec returns the OpenAPI 3.0 specification for the vibariant
// decision service.
func OpenAPISpec() map[string]interface{} {
	return map[string]interface{}{
		"openapi": "3.0.3",
		"info": map[string]interface{}{
			"title":       "vibariant",
			"description": "Statistical decision engine for A/B tests at small sample sizes",
			"version":     "1.0.0",
		},
		"servers": []map[string]interface{}{
			{"url": "http://localhost:8080", "description": "Local development"},
		},
		"paths": openAPIPaths(),
		"components": map[string]interface{}{
			"securitySchemes": map[string]interface{}{
				"APIKeyAuth": map[string]interface{}{
					"type":   "http",
					"scheme": "bearer",
				},
			},
			"schemas": openAPISchemas(),
		},
		"security": []map[string]interface{}{
			{"APIKeyAuth": []string{}},
		},
		"tags": []map[string]interface{}{
			{"name": "Decision", "description": "Evaluate and calibrate experiment snapshots"},
			{"name": "Cache", "description": "Result cache administration"},
			{"name": "Policy", "description": "Ship-gate governance rules"},
			{"name": "Forecast", "description": "Engagement-rate anomaly detection"},
			{"name": "Analytics", "description": "Decision-log pipeline health"},
			{"name": "Health", "description": "Service health checks"},
		},
	}
}

func openAPIPaths() map[string]interface{} {
	return map[string]interface{}{
		"/v1/experiments/{id}/evaluate": map[string]interface{}{
			"post": map[string]interface{}{
				"tags":        []string{"Decision"},
				"summary":     "Evaluate an experiment snapshot",
				"operationId": "evaluateExperiment",
				"parameters": []map[string]interface{}{
					{"name": "id", "in": "path", "required": true, "schema": map[string]interface{}{"type": "string"}},
				},
				"requestBody": map[string]interface{}{
					"required": true,
					"content": map[string]interface{}{
						"application/json": map[string]interface{}{
							"schema": map[string]interface{}{"$ref": "#/components/schemas/EvaluateRequest"},
						},
					},
				},
				"responses": map[string]interface{}{
					"200": map[string]interface{}{
						"description": "Decision result",
						"content": map[string]interface{}{
							"application/json": map[string]interface{}{
								"schema": map[string]interface{}{"$ref": "#/components/schemas/EngineResult"},
							},
						},
					},
					"400": map[string]interface{}{"description": "Invalid configuration"},
					"422": map[string]interface{}{"description": "Invalid snapshot data"},
				},
			},
		},
		"/v1/experiments/{id}/calibrate": map[string]interface{}{
			"post": map[string]interface{}{
				"tags":        []string{"Decision"},
				"summary":     "Fit engagement-proxy weights from labeled history",
				"operationId": "calibrateExperiment",
				"parameters": []map[string]interface{}{
					{"name": "id", "in": "path", "required": true, "schema": map[string]interface{}{"type": "string"}},
				},
				"responses": map[string]interface{}{
					"200": map[string]interface{}{"description": "Fitted weights"},
				},
			},
		},
		"/v1/experiments/{id}/variants/{variant}/anomaly": map[string]interface{}{
			"post": map[string]interface{}{
				"tags":        []string{"Forecast"},
				"summary":     "Check a new engagement-rate observation for anomaly",
				"operationId": "checkAnomaly",
				"responses": map[string]interface{}{
					"200": map[string]interface{}{"description": "Anomaly check result"},
				},
			},
		},
		"/v1/cache/stats": map[string]interface{}{
			"get": map[string]interface{}{
				"tags":        []string{"Cache"},
				"summary":     "Get cache statistics",
				"operationId": "getCacheStats",
				"responses": map[string]interface{}{
					"200": map[string]interface{}{"description": "Cache hit/miss statistics"},
				},
			},
		},
		"/v1/policies": map[string]interface{}{
			"get": map[string]interface{}{
				"tags":        []string{"Policy"},
				"summary":     "List ship-gate rules",
				"operationId": "listPolicyRules",
				"responses": map[string]interface{}{
					"200": map[string]interface{}{"description": "All configured rules"},
				},
			},
			"post": map[string]interface{}{
				"tags":        []string{"Policy"},
				"summary":     "Create a ship-gate rule",
				"operationId": "createPolicyRule",
				"responses": map[string]interface{}{
					"201": map[string]interface{}{"description": "Rule created"},
				},
			},
		},
		"/v1/analytics/pipeline": map[string]interface{}{
			"get": map[string]interface{}{
				"tags":        []string{"Analytics"},
				"summary":     "Get decision-log pipeline health stats",
				"operationId": "getPipelineStats",
				"responses": map[string]interface{}{
					"200": map[string]interface{}{"description": "Pipeline health"},
				},
			},
		},
		"/healthz": map[string]interface{}{
			"get": map[string]interface{}{
				"tags":        []string{"Health"},
				"summary":     "Liveness probe",
				"operationId": "healthz",
				"security":    []map[string]interface{}{},
				"responses": map[string]interface{}{
					"200": map[string]interface{}{"description": "Service is alive"},
				},
			},
		},
		"/ready": map[string]interface{}{
			"get": map[string]interface{}{
				"tags":        []string{"Health"},
				"summary":     "Readiness probe",
				"operationId": "ready",
				"security":    []map[string]interface{}{},
				"responses": map[string]interface{}{
					"200": map[string]interface{}{"description": "Service is ready"},
				},
			},
		},
		"/metrics": map[string]interface{}{
			"get": map[string]interface{}{
				"tags":        []string{"Health"},
				"summary":     "Prometheus metrics",
				"operationId": "metrics",
				"security":    []map[string]interface{}{},
				"responses": map[string]interface{}{
					"200": map[string]interface{}{"description": "Prometheus text exposition format"},
				},
			},
		},
	}
}

func openAPISchemas() map[string]interface{} {
	return map[string]interface{}{
		"EvaluateRequest": map[string]interface{}{
			"type":     "object",
			"required": []string{"variants", "exposures", "conversions"},
			"properties": map[string]interface{}{
				"variants":    map[string]interface{}{"type": "array", "items": map[string]interface{}{"type": "string"}},
				"exposures":   map[string]interface{}{"type": "object", "additionalProperties": map[string]interface{}{"type": "integer"}},
				"conversions": map[string]interface{}{"type": "object", "additionalProperties": map[string]interface{}{"type": "integer"}},
				"engagement":  map[string]interface{}{"type": "object"},
				"covariate":   map[string]interface{}{"type": "object"},
				"config":      map[string]interface{}{"$ref": "#/components/schemas/EngineConfig"},
			},
		},
		"EngineConfig": map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"loss_threshold":    map[string]interface{}{"type": "number"},
				"rope_half_width":   map[string]interface{}{"type": "number"},
				"hdi_mass":          map[string]interface{}{"type": "number"},
				"mc_samples":        map[string]interface{}{"type": "integer"},
				"min_total_n":       map[string]interface{}{"type": "integer"},
				"explore_floor":     map[string]interface{}{"type": "number"},
				"top_two_beta":      map[string]interface{}{"type": "number"},
				"use_proxy":         map[string]interface{}{"type": "boolean"},
				"winsorize_p":       map[string]interface{}{"type": "number"},
				"shrinkage":         map[string]interface{}{"type": "boolean"},
			},
		},
		"VariantResult": map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"variant_key":       map[string]interface{}{"type": "string"},
				"visitors":          map[string]interface{}{"type": "integer"},
				"conversions":       map[string]interface{}{"type": "integer"},
				"conversion_rate":   map[string]interface{}{"type": "number"},
				"posterior_alpha":   map[string]interface{}{"type": "number"},
				"posterior_beta":    map[string]interface{}{"type": "number"},
				"posterior_mean":    map[string]interface{}{"type": "number"},
				"credible_interval": map[string]interface{}{"type": "array", "items": map[string]interface{}{"type": "number"}},
				"probability_best":  map[string]interface{}{"type": "number"},
				"expected_loss":     map[string]interface{}{"type": "number"},
			},
		},
		"EngineResult": map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"experiment_key":       map[string]interface{}{"type": "string"},
				"total_visitors":       map[string]interface{}{"type": "integer"},
				"variants":             map[string]interface{}{"type": "array", "items": map[string]interface{}{"$ref": "#/components/schemas/VariantResult"}},
				"decision":             map[string]interface{}{"type": "object"},
				"suggested_allocation": map[string]interface{}{"type": "object"},
				"prior_used":           map[string]interface{}{"type": "string"},
				"recommendation":       map[string]interface{}{"type": "string"},
			},
		},
		"Error": map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"error":   map[string]interface{}{"type": "string"},
				"message": map[string]interface{}{"type": "string"},
			},
		},
	}
}

// OpenAPIHandler serves the OpenAPI spec at /openapi.json.
func OpenAPIHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		spec := OpenAPISpec()
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Access-Control-Allow-Origin", "*")
		json.NewEncoder(w).Encode(spec)
	}
}

// SwaggerUIHandler serves a minimal Swagger UI page.
func SwaggerUIHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		html := `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <title>vibariant API</title>
    <link rel="stylesheet" href="https://cdn.jsdelivr.net/npm/swagger-ui-dist@5/swagger-ui.css">
</head>
<body>
    <div id="swagger-ui"></div>
    <script src="https://cdn.jsdelivr.net/npm/swagger-ui-dist@5/swagger-ui-bundle.js"></script>
    <script>
    SwaggerUI({
        url: '/openapi.json',
        dom_id: '#swagger-ui',
        deepLinking: true,
        presets: [SwaggerUIBundle.presets.apis, SwaggerUIBundle.SwaggerUIStandalonePreset],
        layout: "BaseLayout"
    });
    </script>
</body>
</html>`
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, html)
	}
}
