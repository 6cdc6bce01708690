package bindings

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/openloom/openloom/pkg/core"
)

// Support declares one (source type, capability pattern) pair a
// strategy can handle. The capability pattern is either an exact key
// ("queue:write") or a domain glob ("queue:*").
type Support struct {
	SourceType string
	Capability string
}

// Advertiser is implemented by strategies that can enumerate their
// supported pairs, feeding the registry's compatibility matrix. The
// builtin strategies all implement it.
type Advertiser interface {
	Supports() []Support
}

// MatchCapability reports whether a capability pattern matches a
// concrete capability key. Patterns are exact keys or "<domain>:*".
func MatchCapability(pattern, capability string) bool {
	if pattern == capability {
		return true
	}
	if domain, ok := strings.CutSuffix(pattern, ":*"); ok {
		return strings.HasPrefix(capability, domain+":")
	}
	return false
}

// Registry maintains the ordered strategy list and dispatches binding
// requests. Read-mostly after initialization; safe for concurrent use
// across runs.
type Registry struct {
	logger     zerolog.Logger
	mu         sync.RWMutex
	strategies []core.BindingStrategy
	// matrix maps source type to the capability patterns advertised for
	// it, in registration order.
	matrix map[string][]string
}

// NewRegistry creates an empty strategy registry.
func NewRegistry(logger zerolog.Logger) *Registry {
	return &Registry{
		logger: logger.With().Str("component", "binding-registry").Logger(),
		matrix: make(map[string][]string),
	}
}

// NewDefaultRegistry creates a registry with the builtin strategies
// registered in their documented order.
func NewDefaultRegistry(logger zerolog.Logger) *Registry {
	r := NewRegistry(logger)
	for _, s := range BuiltinStrategies() {
		r.Register(s)
	}
	return r
}

// Register appends a strategy. Order matters: FindStrategy returns the
// first registered strategy that can handle a pair.
func (r *Registry) Register(strategy core.BindingStrategy) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.strategies = append(r.strategies, strategy)
	if adv, ok := strategy.(Advertiser); ok {
		for _, s := range adv.Supports() {
			r.matrix[s.SourceType] = append(r.matrix[s.SourceType], s.Capability)
		}
	}

	r.logger.Debug().Str("strategy", strategy.Name()).Msg("Binding strategy registered")
}

// FindStrategy returns the first registered strategy handling the
// (source type, capability) pair.
func (r *Registry) FindStrategy(sourceType, capability string) (core.BindingStrategy, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, s := range r.strategies {
		if s.CanHandle(sourceType, capability) {
			return s, true
		}
	}
	return nil, false
}

// CompatibleCapabilities lists the capability patterns advertised for a
// source type, sorted and de-duplicated.
func (r *Registry) CompatibleCapabilities(sourceType string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[string]bool)
	out := make([]string, 0, len(r.matrix[sourceType]))
	for _, c := range r.matrix[sourceType] {
		if !seen[c] {
			seen[c] = true
			out = append(out, c)
		}
	}
	sort.Strings(out)
	return out
}

// Bind dispatches one binding to its strategy. A registry with no
// strategies for the source type at all fails differently from one
// with strategies for the type but none matching the capability, so
// the author knows whether to fix the source type or the capability.
func (r *Registry) Bind(ctx context.Context, bc *core.BindContext) (*core.BindingResult, error) {
	sourceType := bc.Source.Spec.Type
	capability := bc.Directive.Capability

	strategy, ok := r.FindStrategy(sourceType, capability)
	if !ok {
		compatible := r.CompatibleCapabilities(sourceType)
		if len(compatible) == 0 {
			return nil, core.NewBindingError(core.ErrCodeNoStrategy,
				fmt.Sprintf("no binding strategies registered for source type %q", sourceType), nil).
				WithComponent(bc.Source.Spec.Name).
				WithDirective(bc.Directive.Describe())
		}
		return nil, core.NewBindingError(core.ErrCodeNoStrategy,
			fmt.Sprintf("no strategy handles capability %q for source type %q", capability, sourceType), nil).
			WithComponent(bc.Source.Spec.Name).
			WithDirective(bc.Directive.Describe()).
			WithCandidates(compatible)
	}

	result, err := strategy.Bind(ctx, bc)
	if err != nil {
		return nil, core.NewBindingError(core.ErrCodeStrategyFailed,
			fmt.Sprintf("strategy %q failed to apply binding", strategy.Name()), err).
			WithComponent(bc.Source.Spec.Name).
			WithDirective(bc.Directive.Describe())
	}

	r.logger.Debug().
		Str("strategy", strategy.Name()).
		Str("source", result.Source).
		Str("target", result.Target).
		Str("capability", result.Capability).
		Msg("Binding applied")

	return result, nil
}
