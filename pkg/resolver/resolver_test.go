package resolver

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"testing"

	"github.com/rs/zerolog"
	"pgregory.net/rapid"

	"github.com/openloom/openloom/pkg/core"
)

// stubFallbacks implements core.FallbackSource for tests.
type stubFallbacks map[string]map[string]interface{}

func (s stubFallbacks) Fallbacks(componentType string) (map[string]interface{}, bool) {
	fb, ok := s[componentType]
	return fb, ok
}

func testResolver(fallbacks stubFallbacks) *Resolver {
	return New(fallbacks, zerolog.Nop())
}

func baselineProfile() *core.FrameworkProfile {
	return &core.FrameworkProfile{
		Name:                  "baseline",
		Version:               "1.0.0",
		ProtectedEnvironments: []string{"prod"},
		Defaults: map[string]map[string]interface{}{
			"storage.bucket": {
				"storage": map[string]interface{}{
					"size": 20,
					"type": "standard",
				},
				"encryption": map[string]interface{}{"enabled": true},
			},
		},
	}
}

func devEnvironment() *core.EnvironmentProfile {
	return &core.EnvironmentProfile{
		Name: "dev",
		Defaults: map[string]interface{}{
			"region": "eu-west-1",
		},
	}
}

func bucketFallbacks() stubFallbacks {
	return stubFallbacks{
		"storage.bucket": {
			"encryption":   map[string]interface{}{"enabled": true},
			"publicAccess": false,
		},
	}
}

func TestResolveFrameworkDefaultsOverFallbacks(t *testing.T) {
	r := testResolver(bucketFallbacks())

	cfg, err := r.Resolve(core.ComponentSpec{Name: "data", Type: "storage.bucket"},
		baselineProfile(), devEnvironment())
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}

	if v, _ := cfg.Get("storage.size"); v != 20 {
		t.Errorf("expected storage.size=20 from framework layer, got %v", v)
	}
	if v := cfg.GetBool("encryption.enabled"); !v {
		t.Error("expected encryption.enabled=true")
	}
	if v, ok := cfg.Get("publicAccess"); !ok || v != false {
		t.Errorf("expected publicAccess=false from fallback layer, got %v", v)
	}
	if cfg.Trace["storage.size"] != core.LayerFramework {
		t.Errorf("expected storage.size traced to framework, got %s", cfg.Trace["storage.size"])
	}
	if cfg.Trace["publicAccess"] != core.LayerFallback {
		t.Errorf("expected publicAccess traced to fallback, got %s", cfg.Trace["publicAccess"])
	}
}

func TestResolveDeepMergePreservesSiblings(t *testing.T) {
	r := testResolver(bucketFallbacks())

	spec := core.ComponentSpec{
		Name: "data",
		Type: "storage.bucket",
		Config: map[string]interface{}{
			"storage": map[string]interface{}{"size": 50},
		},
	}

	cfg, err := r.Resolve(spec, baselineProfile(), devEnvironment())
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}

	if v, _ := cfg.Get("storage.size"); v != 50 {
		t.Errorf("expected manifest override storage.size=50, got %v", v)
	}
	if v := cfg.GetString("storage.type"); v != "standard" {
		t.Errorf("expected sibling storage.type=standard preserved, got %q", v)
	}
	if cfg.Trace["storage.size"] != core.LayerManifest {
		t.Errorf("expected storage.size traced to manifest, got %s", cfg.Trace["storage.size"])
	}
	if cfg.Trace["storage.type"] != core.LayerFramework {
		t.Errorf("expected storage.type traced to framework, got %s", cfg.Trace["storage.type"])
	}
}

func TestResolveArrayReplaceAndAppend(t *testing.T) {
	fallbacks := stubFallbacks{
		"compute.service": {
			"rules": []interface{}{"deny-all"},
			"tags":  []interface{}{"base"},
		},
	}
	profile := &core.FrameworkProfile{
		Name:    "baseline",
		Version: "1.0.0",
		Defaults: map[string]map[string]interface{}{
			"compute.service": {},
		},
	}
	spec := core.ComponentSpec{
		Name: "api",
		Type: "compute.service",
		Config: map[string]interface{}{
			"rules":  []interface{}{"allow-internal"},
			"tags+":  []interface{}{"extra"},
		},
	}

	cfg, err := testResolver(fallbacks).Resolve(spec, profile, devEnvironment())
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}

	rules, _ := cfg.Get("rules")
	if !reflect.DeepEqual(rules, []interface{}{"allow-internal"}) {
		t.Errorf("expected rules replaced wholesale, got %v", rules)
	}
	tags, _ := cfg.Get("tags")
	if !reflect.DeepEqual(tags, []interface{}{"base", "extra"}) {
		t.Errorf("expected tags appended, got %v", tags)
	}
	if _, ok := cfg.Get("tags+"); ok {
		t.Error("append suffix key must be stripped from effective config")
	}
}

func TestResolveMissingProfileSection(t *testing.T) {
	r := testResolver(stubFallbacks{
		"messaging.queue": {"encryption": map[string]interface{}{"enabled": true}},
	})

	_, err := r.Resolve(core.ComponentSpec{Name: "jobs", Type: "messaging.queue"},
		baselineProfile(), devEnvironment())
	if err == nil {
		t.Fatal("expected MISSING_PROFILE_SECTION error")
	}
	if !core.HasCode(err, core.ErrCodeMissingProfileSection) {
		t.Fatalf("expected MISSING_PROFILE_SECTION, got %v", err)
	}

	var ce *core.CoreError
	if !errors.As(err, &ce) {
		t.Fatal("expected a CoreError")
	}
	if ce.Component != "jobs" {
		t.Errorf("expected component jobs in error, got %q", ce.Component)
	}
	if len(ce.Candidates) == 0 || ce.Candidates[0] != "storage.bucket" {
		t.Errorf("expected known sections enumerated, got %v", ce.Candidates)
	}
}

func TestResolvePolicyOverridesInProtectedEnvironment(t *testing.T) {
	spec := core.ComponentSpec{
		Name:   "data",
		Type:   "storage.bucket",
		Policy: &core.PolicyBlock{Overrides: map[string]interface{}{"publicAccess": true}},
	}

	t.Run("protected environment fails hard", func(t *testing.T) {
		_, err := testResolver(bucketFallbacks()).Resolve(spec, baselineProfile(),
			&core.EnvironmentProfile{Name: "prod"})
		if !core.IsPolicyViolation(err) {
			t.Fatalf("expected POLICY_VIOLATION, got %v", err)
		}
	})

	t.Run("unprotected environment applies overrides", func(t *testing.T) {
		cfg, err := testResolver(bucketFallbacks()).Resolve(spec, baselineProfile(), devEnvironment())
		if err != nil {
			t.Fatalf("Resolve failed: %v", err)
		}
		if v, _ := cfg.Get("publicAccess"); v != true {
			t.Errorf("expected policy override applied, got %v", v)
		}
		if cfg.Trace["publicAccess"] != core.LayerPolicy {
			t.Errorf("expected publicAccess traced to policy, got %s", cfg.Trace["publicAccess"])
		}
	})
}

func TestResolveInterpolationTokens(t *testing.T) {
	env := &core.EnvironmentProfile{
		Name: "dev",
		Defaults: map[string]interface{}{
			"region":   "eu-west-1",
			"replicas": 2,
		},
	}
	spec := core.ComponentSpec{
		Name: "data",
		Type: "storage.bucket",
		Config: map[string]interface{}{
			"location": "${env:region}",
			"copies":   "${env:replicas}",
			"endpoint": "https://${env:region}.example.com",
			"missing":  "${env:zone}",
			"partial":  "prefix-${env:zone}-suffix",
		},
	}

	cfg, err := testResolver(bucketFallbacks()).Resolve(spec, baselineProfile(), env)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}

	if v := cfg.GetString("location"); v != "eu-west-1" {
		t.Errorf("expected location resolved, got %q", v)
	}
	if v, _ := cfg.Get("copies"); v != 2 {
		t.Errorf("expected full-token value to preserve type, got %v (%T)", v, v)
	}
	if v := cfg.GetString("endpoint"); v != "https://eu-west-1.example.com" {
		t.Errorf("expected embedded token substituted, got %q", v)
	}

	missing, _ := cfg.Get("missing")
	tok, ok := missing.(core.UnresolvedToken)
	if !ok {
		t.Fatalf("expected UnresolvedToken marker, got %v (%T)", missing, missing)
	}
	if tok.Key != "zone" || tok.Raw != "${env:zone}" {
		t.Errorf("unexpected token contents: %+v", tok)
	}
	if v := cfg.GetString("partial"); v != "prefix-${env:zone}-suffix" {
		t.Errorf("expected embedded unresolved token left intact, got %q", v)
	}
}

func TestResolveNoComponentConfigEqualsDefaults(t *testing.T) {
	// A spec with no config block resolves to the framework defaults
	// merged over the fallbacks and environment layer exactly.
	cfg, err := testResolver(bucketFallbacks()).Resolve(
		core.ComponentSpec{Name: "data", Type: "storage.bucket"},
		baselineProfile(), devEnvironment())
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}

	want := map[string]interface{}{
		"encryption":   map[string]interface{}{"enabled": true},
		"publicAccess": false,
		"storage": map[string]interface{}{
			"size": 20,
			"type": "standard",
		},
		"region": "eu-west-1",
	}
	if !reflect.DeepEqual(cfg.Values, want) {
		t.Errorf("unexpected resolved values:\n got %#v\nwant %#v", cfg.Values, want)
	}
}

func TestResolveDeterministicRoundTrip(t *testing.T) {
	spec := core.ComponentSpec{
		Name: "data",
		Type: "storage.bucket",
		Config: map[string]interface{}{
			"storage": map[string]interface{}{"size": 50},
			"labels":  []interface{}{"a", "b"},
		},
	}

	first, err := testResolver(bucketFallbacks()).Resolve(spec, baselineProfile(), devEnvironment())
	if err != nil {
		t.Fatalf("first Resolve failed: %v", err)
	}
	second, err := testResolver(bucketFallbacks()).Resolve(spec, baselineProfile(), devEnvironment())
	if err != nil {
		t.Fatalf("second Resolve failed: %v", err)
	}

	a, _ := json.Marshal(first)
	b, _ := json.Marshal(second)
	if string(a) != string(b) {
		t.Errorf("re-resolution not byte-identical:\n%s\n%s", a, b)
	}
}

func TestResolveInputLayersNotMutated(t *testing.T) {
	fallbacks := bucketFallbacks()
	profile := baselineProfile()
	spec := core.ComponentSpec{
		Name: "data",
		Type: "storage.bucket",
		Config: map[string]interface{}{
			"storage": map[string]interface{}{"size": 50},
		},
	}

	cfg, err := testResolver(fallbacks).Resolve(spec, profile, devEnvironment())
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}

	// Mutating the output must not reach back into the input layers.
	cfg.Values["storage"].(map[string]interface{})["size"] = 999
	if profile.Defaults["storage.bucket"]["storage"].(map[string]interface{})["size"] != 20 {
		t.Error("framework profile layer was mutated by resolution output")
	}
	if spec.Config["storage"].(map[string]interface{})["size"] != 50 {
		t.Error("manifest layer was mutated by resolution output")
	}
}

func TestResolveTokenValueDoesNotAliasEnvironment(t *testing.T) {
	env := &core.EnvironmentProfile{
		Name: "dev",
		Defaults: map[string]interface{}{
			"db": map[string]interface{}{
				"host":  "localhost",
				"ports": []interface{}{5432},
			},
		},
	}
	spec := core.ComponentSpec{
		Name: "api",
		Type: "storage.bucket",
		Config: map[string]interface{}{
			"conn": "${env:db}",
		},
	}

	cfg, err := testResolver(bucketFallbacks()).Resolve(spec, baselineProfile(), env)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}

	conn, ok := cfg.Values["conn"].(map[string]interface{})
	if !ok {
		t.Fatalf("expected conn to resolve to a map, got %T", cfg.Values["conn"])
	}
	if conn["host"] != "localhost" {
		t.Fatalf("expected conn.host=localhost, got %v", conn["host"])
	}

	// Mutating the resolved value must not reach the environment layer.
	conn["host"] = "evil"
	conn["ports"].([]interface{})[0] = 9999

	envDB := env.Defaults["db"].(map[string]interface{})
	if envDB["host"] != "localhost" {
		t.Errorf("environment layer was mutated through a resolved token: host = %v", envDB["host"])
	}
	if envDB["ports"].([]interface{})[0] != 5432 {
		t.Errorf("environment layer slice was mutated through a resolved token: ports[0] = %v", envDB["ports"].([]interface{})[0])
	}
}

// scalarGen draws scalar config values.
func scalarGen() *rapid.Generator[interface{}] {
	return rapid.OneOf(
		rapid.Map(rapid.IntRange(-1000, 1000), func(i int) interface{} { return i }),
		rapid.Map(rapid.Bool(), func(b bool) interface{} { return b }),
		rapid.Map(rapid.StringMatching(`[a-z]{1,8}`), func(s string) interface{} { return s }),
	)
}

func TestResolvePrecedenceProperty(t *testing.T) {
	// For any field defined in layers i and j with i < j, the resolved
	// value equals the layer-j value.
	rapid.Check(t, func(t *rapid.T) {
		keys := rapid.SliceOfNDistinct(rapid.StringMatching(`[a-z]{1,6}`), 1, 6,
			func(s string) string { return s }).Draw(t, "keys")

		layerMaps := make([]map[string]interface{}, 5)
		defined := make(map[string]int) // key -> highest defining layer index
		for layer := 0; layer < 5; layer++ {
			layerMaps[layer] = map[string]interface{}{}
			for _, k := range keys {
				if rapid.Bool().Draw(t, fmt.Sprintf("has_%d_%s", layer, k)) {
					layerMaps[layer][k] = scalarGen().Draw(t, fmt.Sprintf("val_%d_%s", layer, k))
					defined[k] = layer
				}
			}
		}
		// Layer 1 must define every key so resolution always has a base.
		for _, k := range keys {
			if _, ok := layerMaps[0][k]; !ok {
				layerMaps[0][k] = scalarGen().Draw(t, "base_"+k)
				if _, ok := defined[k]; !ok {
					defined[k] = 0
				}
			}
		}

		fallbacks := stubFallbacks{"t.t": layerMaps[0]}
		profile := &core.FrameworkProfile{
			Name:    "baseline",
			Version: "1.0.0",
			Defaults: map[string]map[string]interface{}{
				"t.t": layerMaps[1],
			},
		}
		env := &core.EnvironmentProfile{Name: "dev", Defaults: layerMaps[2]}
		spec := core.ComponentSpec{
			Name:   "c",
			Type:   "t.t",
			Config: layerMaps[3],
			Policy: &core.PolicyBlock{Overrides: layerMaps[4]},
		}

		cfg, err := testResolver(fallbacks).Resolve(spec, profile, env)
		if err != nil {
			t.Fatalf("Resolve failed: %v", err)
		}

		for _, k := range keys {
			winner := defined[k]
			got, ok := cfg.Get(k)
			if !ok {
				t.Fatalf("key %s missing from resolved config", k)
			}
			if !reflect.DeepEqual(got, layerMaps[winner][k]) {
				t.Fatalf("key %s: got %v, want layer-%d value %v", k, got, winner, layerMaps[winner][k])
			}
		}
	})
}

func TestResolveDeepMergeProperty(t *testing.T) {
	// Overriding one nested leaf leaves every sibling from lower layers
	// intact.
	rapid.Check(t, func(t *rapid.T) {
		siblings := rapid.SliceOfNDistinct(rapid.StringMatching(`[a-z]{1,6}`), 2, 6,
			func(s string) string { return s }).Draw(t, "siblings")

		nested := map[string]interface{}{}
		for _, k := range siblings {
			nested[k] = scalarGen().Draw(t, "sib_"+k)
		}
		overrideKey := siblings[0]
		overrideVal := scalarGen().Draw(t, "override")

		fallbacks := stubFallbacks{"t.t": {"section": nested}}
		profile := &core.FrameworkProfile{
			Name: "baseline", Version: "1.0.0",
			Defaults: map[string]map[string]interface{}{"t.t": {}},
		}
		spec := core.ComponentSpec{
			Name: "c", Type: "t.t",
			Config: map[string]interface{}{
				"section": map[string]interface{}{overrideKey: overrideVal},
			},
		}

		cfg, err := testResolver(fallbacks).Resolve(spec, profile,
			&core.EnvironmentProfile{Name: "dev"})
		if err != nil {
			t.Fatalf("Resolve failed: %v", err)
		}

		got, _ := cfg.Get("section." + overrideKey)
		if !reflect.DeepEqual(got, overrideVal) {
			t.Fatalf("override not applied: got %v want %v", got, overrideVal)
		}
		for _, k := range siblings[1:] {
			got, ok := cfg.Get("section." + k)
			if !ok || !reflect.DeepEqual(got, nested[k]) {
				t.Fatalf("sibling %s lost or changed: got %v want %v", k, got, nested[k])
			}
		}
	})
}
