// Package policy gates automatic promotion of a ready_to_ship decision
// behind an organization-configurable rule. It never alters the
// engine's decision itself — it is diagnostic governance layered on
// top, same posture as the engine's own shrinkage diagnostics.
package policy

import (
	"fmt"
	"sync"
	"time"

	"github.com/discordwell/vibariant/engine"
)

// Rule is a single named predicate over an evaluated result. Deny
// reasons from all active rules accumulate in Decision.Deny.
type Rule struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Active      bool    `json:"active"`
	DryRun      bool    `json:"dry_run"`
	MinConfidencePct float64 `json:"min_confidence_pct"`
	MinTotalVisitors int     `json:"min_total_visitors"`
	RequireReadyToShip bool  `json:"require_ready_to_ship"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Decision is the outcome of evaluating all active rules against a
// result: Allow means auto-promotion is permitted.
type Decision struct {
	Allow bool     `json:"allow"`
	Deny  []string `json:"deny"`
	Warn  []string `json:"warn"`
}

// EvaluationRecord is one row in the gate's evaluation log.
type EvaluationRecord struct {
	RuleID        string    `json:"rule_id"`
	RuleName      string    `json:"rule_name"`
	ExperimentKey string    `json:"experiment_key"`
	Decision      Decision  `json:"decision"`
	DryRun        bool      `json:"dry_run"`
	Timestamp     time.Time `json:"timestamp"`
	LatencyMs     float64   `json:"latency_ms"`
}

// Gate holds the configured rules and the evaluation log.
type Gate struct {
	mu      sync.RWMutex
	rules   map[string]*Rule
	evalLog []EvaluationRecord
}

// NewGate creates an empty gate.
func NewGate() *Gate {
	return &Gate{rules: make(map[string]*Rule)}
}

// CreateRule adds a rule to the gate.
func (g *Gate) CreateRule(r Rule) (*Rule, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, exists := g.rules[r.ID]; exists {
		return nil, fmt.Errorf("rule %s already exists", r.ID)
	}
	now := time.Now()
	r.CreatedAt, r.UpdatedAt = now, now
	g.rules[r.ID] = &r
	return &r, nil
}

// UpdateRule replaces a rule's contents, keeping its ID and CreatedAt.
func (g *Gate) UpdateRule(r Rule) (*Rule, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	existing, ok := g.rules[r.ID]
	if !ok {
		return nil, fmt.Errorf("rule %s not found", r.ID)
	}
	r.CreatedAt = existing.CreatedAt
	r.UpdatedAt = time.Now()
	g.rules[r.ID] = &r
	return &r, nil
}

// DeleteRule removes a rule by ID.
func (g *Gate) DeleteRule(id string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.rules[id]; !ok {
		return fmt.Errorf("rule %s not found", id)
	}
	delete(g.rules, id)
	return nil
}

// GetRule returns a rule by ID.
func (g *Gate) GetRule(id string) (*Rule, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	r, ok := g.rules[id]
	if !ok {
		return nil, fmt.Errorf("rule %s not found", id)
	}
	return r, nil
}

// ListRules returns all configured rules.
func (g *Gate) ListRules() []*Rule {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]*Rule, 0, len(g.rules))
	for _, r := range g.rules {
		out = append(out, r)
	}
	return out
}

// Evaluate runs all active rules against an engine result and returns
// the combined allow/deny/warn decision, logging every rule fired.
func (g *Gate) Evaluate(result engine.EngineResult) Decision {
	g.mu.RLock()
	active := make([]*Rule, 0, len(g.rules))
	for _, r := range g.rules {
		if r.Active {
			active = append(active, r)
		}
	}
	g.mu.RUnlock()

	combined := Decision{Allow: true}
	for _, r := range active {
		start := time.Now()
		decision := evaluateRule(r, result)
		elapsed := time.Since(start)

		isDryRun := r.DryRun
		g.logEvaluation(r, result.ExperimentKey, decision, isDryRun, elapsed)

		if isDryRun {
			combined.Warn = append(combined.Warn, decision.Deny...)
			combined.Warn = append(combined.Warn, decision.Warn...)
			continue
		}

		combined.Deny = append(combined.Deny, decision.Deny...)
		combined.Warn = append(combined.Warn, decision.Warn...)
		if len(decision.Deny) > 0 {
			combined.Allow = false
		}
	}
	return combined
}

// evaluateRule applies a single rule's predicates to a result.
func evaluateRule(r *Rule, result engine.EngineResult) Decision {
	var deny []string

	if r.RequireReadyToShip && result.Decision.DecisionStatus != engine.DecisionReadyToShip {
		deny = append(deny, fmt.Sprintf("decision_status is %q, not ready_to_ship", result.Decision.DecisionStatus))
	}
	if r.MinConfidencePct > 0 && result.Decision.ConfidencePct < r.MinConfidencePct {
		deny = append(deny, fmt.Sprintf("confidence_pct %.1f below required %.1f", result.Decision.ConfidencePct, r.MinConfidencePct))
	}
	if r.MinTotalVisitors > 0 && result.TotalVisitors < r.MinTotalVisitors {
		deny = append(deny, fmt.Sprintf("total_visitors %d below required %d", result.TotalVisitors, r.MinTotalVisitors))
	}

	return Decision{Allow: len(deny) == 0, Deny: deny}
}

func (g *Gate) logEvaluation(r *Rule, experimentKey string, d Decision, dryRun bool, latency time.Duration) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.evalLog = append(g.evalLog, EvaluationRecord{
		RuleID:        r.ID,
		RuleName:      r.Name,
		ExperimentKey: experimentKey,
		Decision:      d,
		DryRun:        dryRun,
		Timestamp:     time.Now(),
		LatencyMs:     float64(latency.Microseconds()) / 1000.0,
	})
	if len(g.evalLog) > 10000 {
		g.evalLog = g.evalLog[len(g.evalLog)-10000:]
	}
}

// EvaluationLog returns up to limit recent evaluation records,
// most-recent last. limit <= 0 returns the whole log.
func (g *Gate) EvaluationLog(limit int) []EvaluationRecord {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if limit <= 0 || limit > len(g.evalLog) {
		limit = len(g.evalLog)
	}
	start := len(g.evalLog) - limit
	out := make([]EvaluationRecord, limit)
	copy(out, g.evalLog[start:])
	return out
}

// BuiltinTemplates returns ready-made rule templates organizations can
// adopt directly, the predicate-rule analogue of the teacher's
// built-in Rego policies.
func BuiltinTemplates() []Rule {
	return []Rule{
		{
			ID:                 "standard_ship_gate",
			Name:               "Standard Ship Gate",
			Description:        "Auto-promote only clear, well-powered wins",
			RequireReadyToShip: true,
			MinConfidencePct:   90,
			MinTotalVisitors:   200,
		},
		{
			ID:                 "conservative_ship_gate",
			Name:               "Conservative Ship Gate",
			Description:        "Higher bar for auto-promotion on high-stakes experiments",
			RequireReadyToShip: true,
			MinConfidencePct:   97,
			MinTotalVisitors:   1000,
		},
	}
}
