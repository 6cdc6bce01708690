package policy

import "time"

// GetBuiltinRules returns the governance rules that ship with the gate.
func GetBuiltinRules() []Rule {
	return []Rule{
		encryptionRequiredRule(),
		noPublicAccessRule(),
		protectedOverridesRule(),
	}
}

// encryptionRequiredRule denies any component whose effective
// configuration carries an encryption block with encryption disabled.
func encryptionRequiredRule() Rule {
	return Rule{
		Name:        "encryption-required",
		Description: "Components with an encryption block must keep encryption enabled",
		Severity:    SeverityError,
		Enabled:     true,
		Tags:        []string{"encryption", "compliance"},
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
		Rego: `package openloom.rules.encryption

import rego.v1

deny contains violation if {
	input.config.encryption
	input.config.encryption.enabled == false
	violation := {
		"message": sprintf("component %s has encryption disabled", [input.component]),
		"severity": "error",
		"component": input.component,
	}
}
`,
	}
}

// noPublicAccessRule denies publicly accessible storage under the
// maximum framework and warns everywhere else.
func noPublicAccessRule() Rule {
	return Rule{
		Name:        "no-public-access",
		Description: "Public access is forbidden under the maximum framework and flagged elsewhere",
		Severity:    SeverityError,
		Enabled:     true,
		Tags:        []string{"access", "compliance"},
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
		Rego: `package openloom.rules.publicaccess

import rego.v1

deny contains violation if {
	input.config.publicAccess == true
	input.framework == "maximum"
	violation := {
		"message": sprintf("component %s enables public access under the maximum framework", [input.component]),
		"severity": "error",
		"component": input.component,
	}
}

deny contains violation if {
	input.config.publicAccess == true
	input.framework != "maximum"
	violation := {
		"message": sprintf("component %s enables public access", [input.component]),
		"severity": "warning",
		"component": input.component,
	}
}
`,
	}
}

// protectedOverridesRule is a second line of defense behind the
// resolver's own protected-environment check.
func protectedOverridesRule() Rule {
	return Rule{
		Name:        "protected-environment-overrides",
		Description: "Governance overrides must never reach a protected environment",
		Severity:    SeverityCritical,
		Enabled:     true,
		Tags:        []string{"governance", "environments"},
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
		Rego: `package openloom.rules.protected

import rego.v1

deny contains violation if {
	input.protected == true
	input.hasOverrides == true
	violation := {
		"message": sprintf("component %s carries policy overrides into protected environment %s", [input.component, input.environment]),
		"severity": "critical",
		"component": input.component,
	}
}
`,
	}
}
