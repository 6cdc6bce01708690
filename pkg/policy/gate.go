package policy

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/open-policy-agent/opa/v1/ast"
	"github.com/open-policy-agent/opa/v1/rego"
	"github.com/rs/zerolog"

	"github.com/openloom/openloom/pkg/core"
)

// Gate evaluates governance rules against effective configurations.
type Gate struct {
	mu     sync.RWMutex
	rules  map[string]*compiledRule
	logger zerolog.Logger
}

// compiledRule pairs a rule with its parsed module.
type compiledRule struct {
	rule     *Rule
	module   *ast.Module
	compiled time.Time
}

// NewGate creates a gate with the built-in rules compiled.
func NewGate(logger zerolog.Logger) (*Gate, error) {
	g := &Gate{
		rules:  make(map[string]*compiledRule),
		logger: logger.With().Str("component", "policy-gate").Logger(),
	}

	builtins := GetBuiltinRules()
	for i := range builtins {
		if err := g.compileAndStore(&builtins[i]); err != nil {
			return nil, fmt.Errorf("failed to compile built-in rule %s: %w", builtins[i].Name, err)
		}
	}

	g.logger.Info().Int("count", len(builtins)).Msg("Built-in governance rules loaded")
	return g, nil
}

// Evaluate runs every enabled rule against every input and aggregates
// the findings into one decision.
func (g *Gate) Evaluate(ctx context.Context, inputs []GateInput) (*Decision, error) {
	start := time.Now()
	g.mu.RLock()
	defer g.mu.RUnlock()

	var violations []Violation
	var warnings []string

	for _, name := range g.ruleNames() {
		cr := g.rules[name]
		if !cr.rule.Enabled {
			continue
		}

		for i := range inputs {
			found, err := g.evaluateRule(ctx, cr, &inputs[i])
			if err != nil {
				g.logger.Error().Err(err).
					Str("rule", cr.rule.Name).
					Str("component", inputs[i].Component).
					Msg("Rule evaluation failed")
				warnings = append(warnings, fmt.Sprintf("rule %s evaluation failed: %v", cr.rule.Name, err))
				continue
			}
			violations = append(violations, found...)
		}
	}

	allowed := true
	for i := range violations {
		if Severity(violations[i].Severity).Blocking() {
			allowed = false
			break
		}
	}

	g.logger.Debug().
		Int("inputs", len(inputs)).
		Int("violations", len(violations)).
		Bool("allowed", allowed).
		Dur("duration", time.Since(start)).
		Msg("Governance gate evaluated")

	return &Decision{
		Allowed:     allowed,
		Violations:  violations,
		Warnings:    warnings,
		EvaluatedAt: time.Now(),
	}, nil
}

// GateInputs builds the per-component inputs from resolved
// configurations and the run scope.
func GateInputs(configs []*core.EffectiveConfig, specs []core.ComponentSpec, env *core.EnvironmentProfile) []GateInput {
	overrides := make(map[string]bool, len(specs))
	for _, s := range specs {
		overrides[s.Name] = s.Policy != nil && len(s.Policy.Overrides) > 0
	}

	inputs := make([]GateInput, 0, len(configs))
	for _, cfg := range configs {
		inputs = append(inputs, GateInput{
			Component:    cfg.Component,
			Type:         cfg.Type,
			Framework:    cfg.Framework,
			Environment:  cfg.Environment,
			Protected:    env.Protected,
			HasOverrides: overrides[cfg.Component],
			Config:       cfg.Values,
		})
	}
	return inputs
}

// LoadRules compiles governance rules from files or directories.
func (g *Gate) LoadRules(paths []string) error {
	loader := NewLoader(g.logger)
	rules, err := loader.LoadFromPaths(paths)
	if err != nil {
		return err
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	for i := range rules {
		if err := g.compileAndStore(&rules[i]); err != nil {
			return fmt.Errorf("failed to compile rule %s: %w", rules[i].Name, err)
		}
	}

	g.logger.Info().Int("count", len(rules)).Msg("Governance rules loaded")
	return nil
}

// GetRule returns a rule by name.
func (g *Gate) GetRule(name string) (*Rule, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	cr, exists := g.rules[name]
	if !exists {
		return nil, fmt.Errorf("rule not found: %s", name)
	}
	return cr.rule, nil
}

// ListRules returns the loaded rules sorted by name.
func (g *Gate) ListRules() []Rule {
	g.mu.RLock()
	defer g.mu.RUnlock()

	rules := make([]Rule, 0, len(g.rules))
	for _, name := range g.ruleNames() {
		rules = append(rules, *g.rules[name].rule)
	}
	return rules
}

// SetRuleEnabled toggles a rule by name.
func (g *Gate) SetRuleEnabled(name string, enabled bool) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	cr, exists := g.rules[name]
	if !exists {
		return fmt.Errorf("rule not found: %s", name)
	}
	cr.rule.Enabled = enabled
	cr.rule.UpdatedAt = time.Now()

	g.logger.Info().Str("rule", name).Bool("enabled", enabled).Msg("Rule toggled")
	return nil
}

// ruleNames returns the rule names sorted, for deterministic
// evaluation order. Callers hold the lock.
func (g *Gate) ruleNames() []string {
	names := make([]string, 0, len(g.rules))
	for name := range g.rules {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// evaluateRule queries the rule package's deny set for one input.
func (g *Gate) evaluateRule(ctx context.Context, cr *compiledRule, input *GateInput) ([]Violation, error) {
	query := cr.module.Package.Path.String() + ".deny"

	r := rego.New(
		rego.Module(cr.rule.Name, cr.rule.Rego),
		rego.Query(query),
		rego.Input(input),
	)

	results, err := r.Eval(ctx)
	if err != nil {
		return nil, fmt.Errorf("rule evaluation error: %w", err)
	}

	var violations []Violation
	for _, result := range results {
		for _, expr := range result.Expressions {
			denySet, ok := expr.Value.([]interface{})
			if !ok {
				continue
			}
			for _, d := range denySet {
				violations = append(violations, g.toViolation(cr.rule, d, input))
			}
		}
	}
	return violations, nil
}

// toViolation normalizes a deny result into a Violation.
func (g *Gate) toViolation(rule *Rule, result interface{}, input *GateInput) Violation {
	v := Violation{
		Rule:      rule.Name,
		Severity:  string(rule.Severity),
		Component: input.Component,
	}

	switch r := result.(type) {
	case string:
		v.Message = r
	case map[string]interface{}:
		if msg, ok := r["message"].(string); ok {
			v.Message = msg
		}
		if sev, ok := r["severity"].(string); ok {
			v.Severity = sev
		}
		if comp, ok := r["component"].(string); ok {
			v.Component = comp
		}
	default:
		v.Message = fmt.Sprintf("%v", result)
	}
	return v
}

// compileAndStore parses a rule's Rego and stores it. Callers hold the
// lock (or run before the gate is shared).
func (g *Gate) compileAndStore(rule *Rule) error {
	module, err := ast.ParseModuleWithOpts(rule.Name, rule.Rego, ast.ParserOptions{RegoVersion: ast.RegoV1})
	if err != nil {
		return fmt.Errorf("failed to parse rule: %w", err)
	}
	if !strings.HasPrefix(module.Package.Path.String(), "data.openloom.") {
		g.logger.Warn().
			Str("rule", rule.Name).
			Str("package", module.Package.Path.String()).
			Msg("Rule package outside the openloom namespace")
	}

	g.rules[rule.Name] = &compiledRule{
		rule:     rule,
		module:   module,
		compiled: time.Now(),
	}

	g.logger.Debug().Str("rule", rule.Name).Msg("Rule compiled")
	return nil
}
