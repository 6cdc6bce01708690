package core

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorKind classifies a fatal orchestration error by the subsystem that
// raised it. Every kind is fatal to the run: the core never silently
// recovers from a phase-level failure and continues with a partial result.
type ErrorKind string

const (
	// KindConfiguration covers failures in the five-layer resolution chain.
	KindConfiguration ErrorKind = "configuration"

	// KindInstantiation covers factory lookup and construction failures.
	KindInstantiation ErrorKind = "instantiation"

	// KindSynthesis covers provisioner synthesis failures.
	KindSynthesis ErrorKind = "synthesis"

	// KindBinding covers binding resolution and dispatch failures.
	KindBinding ErrorKind = "binding"

	// KindPatch covers patch hook failures.
	KindPatch ErrorKind = "patch"
)

// Error codes for programmatic handling.
const (
	ErrCodeUnknownFramework      = "UNKNOWN_FRAMEWORK"
	ErrCodeMissingProfileSection = "MISSING_PROFILE_SECTION"
	ErrCodeMalformedProfile      = "MALFORMED_PROFILE"
	ErrCodeMalformedManifest     = "MALFORMED_MANIFEST"
	ErrCodePolicyViolation       = "POLICY_VIOLATION"
	ErrCodeNoFactory             = "NO_FACTORY"
	ErrCodeTypeNotPermitted      = "TYPE_NOT_PERMITTED"
	ErrCodeInvalidSpec           = "INVALID_SPEC"
	ErrCodeProvisionerFailed     = "PROVISIONER_FAILED"
	ErrCodeTargetNotFound        = "TARGET_NOT_FOUND"
	ErrCodeAmbiguousSelector     = "AMBIGUOUS_SELECTOR"
	ErrCodeCapabilityNotFound    = "CAPABILITY_NOT_FOUND"
	ErrCodeNoStrategy            = "NO_STRATEGY"
	ErrCodeStrategyFailed        = "STRATEGY_FAILED"
	ErrCodeInvalidDirective      = "INVALID_DIRECTIVE"
	ErrCodePatchFailed           = "PATCH_FAILED"
	ErrCodeCancelled             = "CANCELLED"
)

// CoreError is the classified error type for every fatal condition in the
// pipeline. It carries enough context (component, phase, directive,
// candidates) to be actionable without re-running in a debugger.
type CoreError struct {
	// Kind is the subsystem classification.
	Kind ErrorKind `json:"kind"`

	// Code is the specific error code.
	Code string `json:"code"`

	// Message is the human-readable error message.
	Message string `json:"message"`

	// Component is the offending component name, if applicable.
	Component string `json:"component,omitempty"`

	// Phase is the run phase during which the error occurred.
	Phase RunPhase `json:"phase,omitempty"`

	// Directive describes the binding directive involved, if any.
	Directive string `json:"directive,omitempty"`

	// Candidates enumerates alternatives for errors where authors need
	// them: matching component names for AMBIGUOUS_SELECTOR, compatible
	// capability keys for NO_STRATEGY, known values for UNKNOWN_FRAMEWORK
	// and NO_FACTORY.
	Candidates []string `json:"candidates,omitempty"`

	// Err is the wrapped underlying error.
	Err error `json:"-"`
}

// Error implements the error interface.
func (e *CoreError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s/%s] %s", e.Kind, e.Code, e.Message)

	var ctx []string
	if e.Component != "" {
		ctx = append(ctx, "component="+e.Component)
	}
	if e.Phase != "" {
		ctx = append(ctx, "phase="+string(e.Phase))
	}
	if e.Directive != "" {
		ctx = append(ctx, "directive="+e.Directive)
	}
	if len(ctx) > 0 {
		fmt.Fprintf(&b, " (%s)", strings.Join(ctx, ", "))
	}
	if len(e.Candidates) > 0 {
		fmt.Fprintf(&b, "; candidates: %s", strings.Join(e.Candidates, ", "))
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %s", e.Err.Error())
	}
	return b.String()
}

// Unwrap returns the underlying error for error chain inspection.
func (e *CoreError) Unwrap() error {
	return e.Err
}

// Is implements error equality checking for errors.Is: two CoreErrors are
// equal when kind and code match.
func (e *CoreError) Is(target error) bool {
	t, ok := target.(*CoreError)
	if !ok {
		return false
	}
	return e.Kind == t.Kind && e.Code == t.Code
}

// WithComponent adds the offending component name.
func (e *CoreError) WithComponent(name string) *CoreError {
	e.Component = name
	return e
}

// WithPhase adds the run phase.
func (e *CoreError) WithPhase(phase RunPhase) *CoreError {
	e.Phase = phase
	return e
}

// WithDirective adds the binding directive description.
func (e *CoreError) WithDirective(directive string) *CoreError {
	e.Directive = directive
	return e
}

// WithCandidates adds the enumerated alternatives.
func (e *CoreError) WithCandidates(candidates []string) *CoreError {
	e.Candidates = candidates
	return e
}

// NewConfigurationError creates a resolution-chain error.
func NewConfigurationError(code, message string, err error) *CoreError {
	return &CoreError{Kind: KindConfiguration, Code: code, Message: message, Err: err}
}

// NewInstantiationError creates a factory/construction error.
func NewInstantiationError(code, message string, err error) *CoreError {
	return &CoreError{Kind: KindInstantiation, Code: code, Message: message, Err: err}
}

// NewSynthesisError creates a provisioner synthesis error.
func NewSynthesisError(message string, err error) *CoreError {
	return &CoreError{Kind: KindSynthesis, Code: ErrCodeProvisionerFailed, Message: message, Err: err}
}

// NewBindingError creates a binding resolution or dispatch error.
func NewBindingError(code, message string, err error) *CoreError {
	return &CoreError{Kind: KindBinding, Code: code, Message: message, Err: err}
}

// NewPatchError creates a patch hook error.
func NewPatchError(message string, err error) *CoreError {
	return &CoreError{Kind: KindPatch, Code: ErrCodePatchFailed, Message: message, Err: err}
}

// KindOf returns the kind of err when it is (or wraps) a CoreError, and
// false otherwise.
func KindOf(err error) (ErrorKind, bool) {
	var e *CoreError
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}

// HasCode reports whether err is (or wraps) a CoreError with the given code.
func HasCode(err error, code string) bool {
	var e *CoreError
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// IsConfiguration reports whether err is a configuration error.
func IsConfiguration(err error) bool {
	k, ok := KindOf(err)
	return ok && k == KindConfiguration
}

// IsBinding reports whether err is a binding error.
func IsBinding(err error) bool {
	k, ok := KindOf(err)
	return ok && k == KindBinding
}

// IsPolicyViolation reports whether err is the protected-environment
// policy-override rejection or a governance denial.
func IsPolicyViolation(err error) bool {
	return HasCode(err, ErrCodePolicyViolation)
}
