package policy

import "time"

// Severity indicates how a rule violation affects the run.
type Severity string

const (
	// SeverityWarning is attached to the result without blocking.
	SeverityWarning Severity = "warning"

	// SeverityError blocks the run.
	SeverityError Severity = "error"

	// SeverityCritical blocks the run and flags a compliance breach.
	SeverityCritical Severity = "critical"
)

// Blocking reports whether a violation of this severity denies the run.
func (s Severity) Blocking() bool {
	return s == SeverityError || s == SeverityCritical
}

// Rule is one governance rule expressed in Rego.
type Rule struct {
	// Name is the rule's unique name.
	Name string `json:"name"`

	// Description is a human-readable summary.
	Description string `json:"description,omitempty"`

	// Rego is the rule source. The deny set of the rule's package is
	// queried during evaluation.
	Rego string `json:"rego"`

	// Severity is the default severity for violations of this rule; a
	// violation may override it.
	Severity Severity `json:"severity"`

	// Enabled controls whether the rule participates in evaluation.
	Enabled bool `json:"enabled"`

	// Tags classify the rule.
	Tags []string `json:"tags,omitempty"`

	// CreatedAt and UpdatedAt track rule lifecycle.
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Violation is one governance finding against a component.
type Violation struct {
	// Rule is the violated rule's name.
	Rule string `json:"rule"`

	// Message is the violation message produced by the rule.
	Message string `json:"message"`

	// Severity is the violation severity.
	Severity string `json:"severity"`

	// Component is the offending component name.
	Component string `json:"component,omitempty"`
}

// GateInput is the per-component input handed to rule evaluation.
type GateInput struct {
	// Component and Type identify the component.
	Component string `json:"component"`
	Type      string `json:"type"`

	// Framework and Environment record the run scope.
	Framework   string `json:"framework"`
	Environment string `json:"environment"`

	// Protected is true when the active environment is protected.
	Protected bool `json:"protected"`

	// HasOverrides is true when the component declares governance
	// policy overrides.
	HasOverrides bool `json:"hasOverrides"`

	// Config is the component's resolved effective configuration.
	Config map[string]interface{} `json:"config"`
}

// Decision is the outcome of one gate evaluation.
type Decision struct {
	// Allowed is false when any blocking-severity violation was found.
	Allowed bool `json:"allowed"`

	// Violations lists every finding, blocking or not.
	Violations []Violation `json:"violations,omitempty"`

	// Warnings lists evaluation problems that did not block the run
	// (e.g., a rule that failed to evaluate).
	Warnings []string `json:"warnings,omitempty"`

	// EvaluatedAt records when the gate ran.
	EvaluatedAt time.Time `json:"evaluated_at"`
}
