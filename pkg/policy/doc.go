// Package policy is the governance gate: Rego rules evaluated against
// every component's effective configuration after instantiation and
// before synthesis. A denying rule with error or critical severity
// blocks the run; warning-severity findings are attached to the
// synthesis result without aborting.
//
// Rules compile once (built-ins at construction, file-loaded rules on
// demand) and prepared queries are reused across runs. Rule files are
// plain .rego; a directory of rules can be watched for live reload.
package policy
